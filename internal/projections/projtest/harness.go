// Package projtest couples command execution with projection catch-up for
// tests. Production code runs projections continuously, so a freshly
// committed event is only eventually visible in read models; a test that
// queries a read model right after a command races that delivery. The
// harness removes the race structurally: Do runs the command and drains
// the projections in one call, so a test cannot observe a read model
// without the drain having happened.
package projtest

import (
	"context"
	"testing"

	"github.com/mealstack/mealstack/internal/projections"
)

// Harness executes commands and guarantees projections have caught up
// before control returns to the test.
type Harness struct {
	runner *projections.Runner
}

// New creates a harness around a runner configured with the projections
// under test. The runner must not be concurrently active in Run mode.
func New(runner *projections.Runner) *Harness {
	return &Harness{runner: runner}
}

// Do executes the command and drains all projections. It fails the test on
// either a command error or a projection error, so handler bugs surface at
// the call site that triggered them.
func (h *Harness) Do(ctx context.Context, t *testing.T, command func(ctx context.Context) error) {
	t.Helper()

	if err := command(ctx); err != nil {
		t.Fatalf("command failed: %v", err)
	}
	if err := h.runner.Drain(ctx); err != nil {
		t.Fatalf("projection drain failed: %v", err)
	}
}

// Try runs commands that are expected to fail: the command error is
// returned for the test to assert on, and projections are still drained so
// the read models reflect whatever was committed before the failure.
func (h *Harness) Try(ctx context.Context, t *testing.T, command func(ctx context.Context) error) error {
	t.Helper()

	cmdErr := command(ctx)
	if err := h.runner.Drain(ctx); err != nil {
		t.Fatalf("projection drain failed: %v", err)
	}
	return cmdErr
}
