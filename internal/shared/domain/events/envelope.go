package events

import (
	"encoding/json"
	"time"

	"github.com/gofrs/uuid/v5"
)

// Aggregate types known to the system. Projection handlers and the event
// store filter streams by these values.
const (
	AggregateUser     = "user"
	AggregateRecipe   = "recipe"
	AggregateMealPlan = "meal_plan"
)

// Envelope is the persisted form of every domain event. The same structure
// is stored in the event store, carried through projection delivery, and
// serialized onto the integration-event relay.
type Envelope struct {
	// EventID is the unique identifier for this event.
	EventID uuid.UUID `json:"event_id"`

	// EventType is the discriminator (e.g., "recipe.favorited").
	EventType string `json:"event_type"`

	// AggregateType names the aggregate kind ("user", "recipe", "meal_plan").
	AggregateType string `json:"aggregate_type"`

	// AggregateID identifies the aggregate instance this event belongs to.
	AggregateID uuid.UUID `json:"aggregate_id"`

	// SequenceNumber is the position of this event within its aggregate's
	// stream. Starts at 1 and is contiguous; assigned at append time.
	SequenceNumber int64 `json:"sequence_number"`

	// GlobalSeq is the commit-order position across all aggregates,
	// assigned by the event store. Projection cursors track this value.
	GlobalSeq int64 `json:"global_seq"`

	// RecordedAt is when the event was committed.
	RecordedAt time.Time `json:"recorded_at"`

	// Payload contains the event-specific data.
	Payload json.RawMessage `json:"payload"`

	// Metadata contains trace IDs, source info, schema version.
	Metadata Metadata `json:"metadata"`
}

// Metadata contains contextual information about the event.
type Metadata struct {
	// TraceID for request correlation (optional).
	TraceID string `json:"trace_id,omitempty"`

	// Source identifies where the event originated.
	Source string `json:"source,omitempty"`

	// SchemaVersion for payload evolution.
	SchemaVersion int `json:"schema_version"`
}

// Payload is implemented by every typed event payload. Aggregates emit
// payloads; the command handler wraps them in envelopes at append time.
type Payload interface {
	// EventType returns the discriminator this payload serializes under.
	EventType() string
}

// ParsePayload unmarshals the payload into the provided type.
func (e *Envelope) ParsePayload(v any) error {
	return json.Unmarshal(e.Payload, v)
}

// Wrap builds an unsequenced envelope from a typed payload. SequenceNumber,
// GlobalSeq and RecordedAt are assigned by the event store at append time.
func Wrap(aggregateType string, aggregateID uuid.UUID, payload Payload, metadata Metadata) (*Envelope, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	return &Envelope{
		EventID:       uuid.Must(uuid.NewV4()),
		EventType:     payload.EventType(),
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		Payload:       payloadBytes,
		Metadata:      metadata,
	}, nil
}

// WrapAll wraps a slice of payloads for the same aggregate instance,
// preserving order.
func WrapAll(aggregateType string, aggregateID uuid.UUID, payloads []Payload, metadata Metadata) ([]*Envelope, error) {
	envelopes := make([]*Envelope, 0, len(payloads))
	for _, p := range payloads {
		env, err := Wrap(aggregateType, aggregateID, p, metadata)
		if err != nil {
			return nil, err
		}
		envelopes = append(envelopes, env)
	}
	return envelopes, nil
}
