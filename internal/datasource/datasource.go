// Package datasource defines the raw dataset boundary: time-bounded,
// experiment-scoped queries over enrollment records and per-unit events.
//
// The dataset is read-only and shared; all blocking I/O in the analysis
// pipeline happens here, so per-query timeouts are applied at this boundary
// (see WithTimeout) rather than per whole run.
package datasource

import (
	"context"
	"time"

	"github.com/terrorizer1980/jetstream/internal/experiment"
)

// Event is one raw telemetry row: a timestamped JSON payload attributed to
// an analysis unit and its branch.
type Event struct {
	UnitID    string
	Branch    string
	Timestamp time.Time
	Payload   string
}

// RawDataset is the queryable store of enrollments and per-unit events.
type RawDataset interface {
	// Enrollments returns all enrollment records for the experiment,
	// ordered by unit id.
	Enrollments(ctx context.Context, experimentID string) ([]experiment.Enrollment, error)

	// Events returns all events for the experiment with timestamps in
	// [from, to), ordered by (unit id, timestamp).
	Events(ctx context.Context, experimentID string, from, to time.Time) ([]Event, error)
}

// WithTimeout wraps a dataset so every query runs under its own deadline.
// One slow window's query must not block unrelated windows indefinitely.
func WithTimeout(ds RawDataset, timeout time.Duration) RawDataset {
	if timeout <= 0 {
		return ds
	}
	return &timeoutDataset{ds: ds, timeout: timeout}
}

type timeoutDataset struct {
	ds      RawDataset
	timeout time.Duration
}

func (t *timeoutDataset) Enrollments(ctx context.Context, experimentID string) ([]experiment.Enrollment, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.ds.Enrollments(ctx, experimentID)
}

func (t *timeoutDataset) Events(ctx context.Context, experimentID string, from, to time.Time) ([]Event, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.ds.Events(ctx, experimentID, from, to)
}
