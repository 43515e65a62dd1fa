package eventstore

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"

	"github.com/mealstack/mealstack/internal/shared/domain/clock"
	"github.com/mealstack/mealstack/internal/shared/domain/events"
)

// MemoryStore is an in-memory Store and Reader with the same semantics as
// PostgresStore. It backs unit tests for command handlers and the
// projection runner; the pgx.Tx parameters are accepted and ignored.
type MemoryStore struct {
	mu        sync.Mutex
	streams   map[string][]*events.Envelope
	globalSeq int64
	log       []*events.Envelope
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		streams: make(map[string][]*events.Envelope),
	}
}

func streamKey(aggregateType string, aggregateID uuid.UUID) string {
	return aggregateType + "/" + aggregateID.String()
}

// AppendInTx implements Store.
func (s *MemoryStore) AppendInTx(_ context.Context, _ pgx.Tx, expectedVersion int64, envelopes []*events.Envelope) error {
	if err := validateBatch(envelopes); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	first := envelopes[0]
	key := streamKey(first.AggregateType, first.AggregateID)
	stream := s.streams[key]

	if int64(len(stream)) != expectedVersion {
		return fmt.Errorf("append %s at version %d (head %d): %w",
			key, expectedVersion, len(stream), ErrConcurrencyConflict)
	}

	now := clock.Now()
	for i, env := range envelopes {
		s.globalSeq++
		env.SequenceNumber = expectedVersion + int64(i) + 1
		env.GlobalSeq = s.globalSeq
		env.RecordedAt = now
		stream = append(stream, env)
		s.log = append(s.log, env)
	}
	s.streams[key] = stream

	return nil
}

// LoadInTx implements Store.
func (s *MemoryStore) LoadInTx(_ context.Context, _ pgx.Tx, aggregateType string, aggregateID uuid.UUID) ([]*events.Envelope, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.streams[streamKey(aggregateType, aggregateID)]), nil
}

// ReadSince implements Reader.
func (s *MemoryStore) ReadSince(_ context.Context, aggregateType string, afterGlobalSeq int64, eventTypes []string, limit int) ([]*events.Envelope, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []*events.Envelope
	for _, env := range s.log {
		if len(result) >= limit {
			break
		}
		if env.AggregateType != aggregateType || env.GlobalSeq <= afterGlobalSeq {
			continue
		}
		if len(eventTypes) > 0 && !slices.Contains(eventTypes, env.EventType) {
			continue
		}
		result = append(result, env)
	}
	return result, nil
}

// Ensure MemoryStore implements the store contracts.
var (
	_ Store  = (*MemoryStore)(nil)
	_ Reader = (*MemoryStore)(nil)
)
