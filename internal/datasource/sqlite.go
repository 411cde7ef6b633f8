package datasource

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/terrorizer1980/jetstream/internal/experiment"
)

// SQLiteStore is a RawDataset backed by a local SQLite database.
//
// Timestamps are stored as Unix seconds in UTC. The store is safe for
// concurrent readers; the analysis core never writes to it during a run.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (creating if necessary) a SQLite-backed dataset at path.
// Use ":memory:" for an in-memory store.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite dataset: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) init() error {
	const schema = `
CREATE TABLE IF NOT EXISTS enrollments (
	experiment_id TEXT NOT NULL,
	unit_id       TEXT NOT NULL,
	branch        TEXT NOT NULL,
	enrolled_at   INTEGER NOT NULL,
	PRIMARY KEY (experiment_id, unit_id)
);
CREATE TABLE IF NOT EXISTS events (
	experiment_id TEXT NOT NULL,
	unit_id       TEXT NOT NULL,
	branch        TEXT NOT NULL,
	ts            INTEGER NOT NULL,
	payload       TEXT NOT NULL DEFAULT '{}'
);
CREATE INDEX IF NOT EXISTS idx_events_experiment_ts ON events (experiment_id, ts);
`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to initialize sqlite schema: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// AddEnrollment records one analysis unit's enrollment. Intended for data
// loading and tests; branch assignment is immutable, so conflicts fail.
func (s *SQLiteStore) AddEnrollment(ctx context.Context, experimentID string, e experiment.Enrollment) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO enrollments (experiment_id, unit_id, branch, enrolled_at) VALUES (?, ?, ?, ?)`,
		experimentID, e.UnitID, e.Branch, e.EnrolledAt.UTC().Unix())
	if err != nil {
		return fmt.Errorf("failed to insert enrollment for unit %s: %w", e.UnitID, err)
	}
	return nil
}

// AddEvent records one raw event.
func (s *SQLiteStore) AddEvent(ctx context.Context, experimentID string, ev Event) error {
	payload := ev.Payload
	if payload == "" {
		payload = "{}"
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO events (experiment_id, unit_id, branch, ts, payload) VALUES (?, ?, ?, ?, ?)`,
		experimentID, ev.UnitID, ev.Branch, ev.Timestamp.UTC().Unix(), payload)
	if err != nil {
		return fmt.Errorf("failed to insert event for unit %s: %w", ev.UnitID, err)
	}
	return nil
}

// Enrollments implements RawDataset.
func (s *SQLiteStore) Enrollments(ctx context.Context, experimentID string) ([]experiment.Enrollment, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT unit_id, branch, enrolled_at FROM enrollments WHERE experiment_id = ? ORDER BY unit_id`,
		experimentID)
	if err != nil {
		return nil, fmt.Errorf("enrollment query failed: %w", err)
	}
	defer rows.Close()

	var out []experiment.Enrollment
	for rows.Next() {
		var e experiment.Enrollment
		var ts int64
		if err := rows.Scan(&e.UnitID, &e.Branch, &ts); err != nil {
			return nil, fmt.Errorf("enrollment row scan failed: %w", err)
		}
		e.EnrolledAt = time.Unix(ts, 0).UTC()
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("enrollment query failed: %w", err)
	}
	return out, nil
}

// Events implements RawDataset.
func (s *SQLiteStore) Events(ctx context.Context, experimentID string, from, to time.Time) ([]Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT unit_id, branch, ts, payload FROM events
		 WHERE experiment_id = ? AND ts >= ? AND ts < ?
		 ORDER BY unit_id, ts`,
		experimentID, from.UTC().Unix(), to.UTC().Unix())
	if err != nil {
		return nil, fmt.Errorf("event query failed: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var ev Event
		var ts int64
		if err := rows.Scan(&ev.UnitID, &ev.Branch, &ts, &ev.Payload); err != nil {
			return nil, fmt.Errorf("event row scan failed: %w", err)
		}
		ev.Timestamp = time.Unix(ts, 0).UTC()
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("event query failed: %w", err)
	}
	return out, nil
}
