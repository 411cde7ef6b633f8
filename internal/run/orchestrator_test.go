package run

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/terrorizer1980/jetstream/internal/config"
	"github.com/terrorizer1980/jetstream/internal/datasource"
	"github.com/terrorizer1980/jetstream/internal/experiment"
	"github.com/terrorizer1980/jetstream/internal/export"
	"github.com/terrorizer1980/jetstream/internal/metric"
)

// fakeDataset serves in-memory enrollments and events, with an optional
// per-query failure predicate on the event envelope.
type fakeDataset struct {
	enrollments []experiment.Enrollment
	events      []datasource.Event

	failEvents func(from, to time.Time) error
}

func (f *fakeDataset) Enrollments(ctx context.Context, experimentID string) ([]experiment.Enrollment, error) {
	return f.enrollments, nil
}

func (f *fakeDataset) Events(ctx context.Context, experimentID string, from, to time.Time) ([]datasource.Event, error) {
	if f.failEvents != nil {
		if err := f.failEvents(from, to); err != nil {
			return nil, err
		}
	}
	var out []datasource.Event
	for _, ev := range f.events {
		if !ev.Timestamp.Before(from) && ev.Timestamp.Before(to) {
			out = append(out, ev)
		}
	}
	return out, nil
}

// recordingExporter captures exported windows keyed by window key.
type recordingExporter struct {
	mu       sync.Mutex
	exported map[string]*export.WindowResults
	err      error
}

func newRecordingExporter() *recordingExporter {
	return &recordingExporter{exported: make(map[string]*export.WindowResults)}
}

func (r *recordingExporter) ExportWindow(ctx context.Context, res *export.WindowResults) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.exported[res.Window.Key()] = res
	return nil
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func testExperiment() *experiment.Experiment {
	return &experiment.Experiment{
		ID:            "test-experiment",
		StartDate:     date(2024, time.January, 1),
		Branches:      []string{"control", "treatment"},
		ControlBranch: "control",
	}
}

func testRegistry(t *testing.T) *metric.Registry {
	t.Helper()
	reg, err := metric.RegistryFromConfig([]config.MetricConfig{
		{Name: "clicks", Type: "count", Aggregation: "count"},
	})
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	return reg
}

func testAnalysisConfig() config.AnalysisConfig {
	cfg := config.AnalysisConfig{}
	cfg.ApplyDefaults()
	// Keep resampling cheap in tests.
	cfg.Resamples = 100
	return cfg
}

func seedEvents(units []experiment.Enrollment, days int) []datasource.Event {
	var events []datasource.Event
	for _, u := range units {
		for d := 0; d < days; d++ {
			events = append(events, datasource.Event{
				UnitID:    u.UnitID,
				Branch:    u.Branch,
				Timestamp: u.EnrolledAt.Add(time.Duration(d)*24*time.Hour + time.Hour),
				Payload:   `{"action": "click"}`,
			})
		}
	}
	return events
}

func enrollCohort(n int, enrolledAt time.Time) []experiment.Enrollment {
	branches := []string{"control", "treatment"}
	out := make([]experiment.Enrollment, n)
	for i := range out {
		out[i] = experiment.Enrollment{
			UnitID:     string(rune('a'+i)) + "-unit",
			Branch:     branches[i%2],
			EnrolledAt: enrolledAt,
		}
	}
	return out
}

func TestRunAllWindowsSucceed(t *testing.T) {
	units := enrollCohort(10, date(2024, time.January, 1))
	ds := &fakeDataset{enrollments: units, events: seedEvents(units, 3)}
	exporter := newRecordingExporter()

	orch := New(ds, exporter, testAnalysisConfig(), nil)
	res, err := orch.Run(context.Background(), testExperiment(), testRegistry(t), date(2024, time.January, 4))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if res.Status != StatusSucceeded {
		t.Errorf("status = %s, want %s", res.Status, StatusSucceeded)
	}
	// Jan 1 start, asOf Jan 4: days 1-3 plus the running overall window.
	for _, key := range []string{"day_1", "day_2", "day_3", "overall"} {
		if _, ok := exporter.exported[key]; !ok {
			t.Errorf("window %s was not exported", key)
		}
	}
	if len(exporter.exported) != 4 {
		t.Errorf("exported %d windows, want 4", len(exporter.exported))
	}
	if res.RunID == "" {
		t.Error("run id must be assigned")
	}
}

func TestRunPartialFailureIsolatesWindows(t *testing.T) {
	units := enrollCohort(10, date(2024, time.January, 1))
	failFrom := date(2024, time.January, 3) // day_3's event envelope
	ds := &fakeDataset{
		enrollments: units,
		events:      seedEvents(units, 3),
		failEvents: func(from, to time.Time) error {
			if from.Equal(failFrom) {
				return errors.New("query timed out")
			}
			return nil
		},
	}
	exporter := newRecordingExporter()

	orch := New(ds, exporter, testAnalysisConfig(), nil)
	res, err := orch.Run(context.Background(), testExperiment(), testRegistry(t), date(2024, time.January, 4))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if res.Status != StatusPartialFailure {
		t.Fatalf("status = %s, want %s", res.Status, StatusPartialFailure)
	}

	// The failing window is recorded; its siblings still export.
	for _, key := range []string{"day_1", "day_2", "overall"} {
		if _, ok := exporter.exported[key]; !ok {
			t.Errorf("window %s was not exported", key)
		}
	}
	if _, ok := exporter.exported["day_3"]; ok {
		t.Error("failed window must not be exported")
	}

	var failed *WindowOutcome
	for i := range res.Windows {
		if res.Windows[i].Window.Key() == "day_3" {
			failed = &res.Windows[i]
		}
	}
	if failed == nil {
		t.Fatal("day_3 outcome missing from run result")
	}
	if failed.State != StateFailed {
		t.Errorf("day_3 state = %s, want %s", failed.State, StateFailed)
	}
	if failed.Error == "" {
		t.Error("failed outcome must carry the failure reason")
	}
}

func TestRunAllWindowsFail(t *testing.T) {
	units := enrollCohort(4, date(2024, time.January, 1))
	ds := &fakeDataset{enrollments: units, events: seedEvents(units, 3)}
	exporter := newRecordingExporter()
	exporter.err = errors.New("disk full")

	orch := New(ds, exporter, testAnalysisConfig(), nil)
	res, err := orch.Run(context.Background(), testExperiment(), testRegistry(t), date(2024, time.January, 4))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if res.Status != StatusFailed {
		t.Errorf("status = %s, want %s", res.Status, StatusFailed)
	}
}

func TestRunNoWindowsDue(t *testing.T) {
	ds := &fakeDataset{}
	exporter := newRecordingExporter()

	orch := New(ds, exporter, testAnalysisConfig(), nil)
	// Before the experiment starts nothing is due.
	res, err := orch.Run(context.Background(), testExperiment(), testRegistry(t), date(2023, time.December, 25))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if res.Status != StatusSucceeded {
		t.Errorf("status = %s, want %s", res.Status, StatusSucceeded)
	}
	if len(res.Windows) != 0 {
		t.Errorf("expected no window outcomes, got %d", len(res.Windows))
	}
	if len(exporter.exported) != 0 {
		t.Errorf("expected no exports, got %d", len(exporter.exported))
	}
}

func TestRunCancelledContext(t *testing.T) {
	units := enrollCohort(10, date(2024, time.January, 1))
	ds := &fakeDataset{enrollments: units, events: seedEvents(units, 3)}
	exporter := newRecordingExporter()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	orch := New(ds, exporter, testAnalysisConfig(), nil)
	res, err := orch.Run(ctx, testExperiment(), testRegistry(t), date(2024, time.January, 4))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	// Cancellation before any window starts fails every window.
	if res.Status != StatusFailed {
		t.Errorf("status = %s, want %s", res.Status, StatusFailed)
	}
	if len(exporter.exported) != 0 {
		t.Errorf("cancelled run must export nothing, got %d", len(exporter.exported))
	}
}

func TestAggregateStatus(t *testing.T) {
	exported := WindowOutcome{State: StateExported}
	failed := WindowOutcome{State: StateFailed}

	tests := []struct {
		name     string
		outcomes []WindowOutcome
		want     RunStatus
	}{
		{"empty", nil, StatusSucceeded},
		{"all exported", []WindowOutcome{exported, exported}, StatusSucceeded},
		{"mixed", []WindowOutcome{exported, failed}, StatusPartialFailure},
		{"all failed", []WindowOutcome{failed, failed}, StatusFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := aggregateStatus(tt.outcomes); got != tt.want {
				t.Errorf("aggregateStatus = %s, want %s", got, tt.want)
			}
		})
	}
}
