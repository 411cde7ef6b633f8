// Package export hands finished window results to downstream consumers.
//
// One result table is exported per (experiment, window). A fresh run for
// the same pair fully supersedes the prior table: exporters must replace
// atomically so partial results are never visible.
package export

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/terrorizer1980/jetstream/internal/compute"
	"github.com/terrorizer1980/jetstream/internal/experiment"
	"github.com/terrorizer1980/jetstream/internal/stats"
)

// WindowResults is the export payload for one (experiment, window) pair.
//
// The results schema is stable across versions (additive changes only);
// dashboards depend on the field names.
type WindowResults struct {
	RunID        string                    `json:"runId"`
	ExperimentID string                    `json:"experimentId"`
	AsOf         time.Time                 `json:"asOf"`
	GeneratedAt  time.Time                 `json:"generatedAt"`
	Window       experiment.AnalysisWindow `json:"window"`

	Results       []stats.Result         `json:"results"`
	Distributions []compute.Distribution `json:"distributions,omitempty"`
}

// Exporter consumes one window's result table.
type Exporter interface {
	ExportWindow(ctx context.Context, res *WindowResults) error
}

// JSONExporter writes one JSON file per (experiment, window) into a
// directory, replacing any prior file for the pair atomically via a temp
// file and rename.
type JSONExporter struct {
	Dir string
}

// NewJSONExporter creates a JSONExporter rooted at dir, creating it if
// needed.
func NewJSONExporter(dir string) (*JSONExporter, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create export directory: %w", err)
	}
	return &JSONExporter{Dir: dir}, nil
}

// ExportWindow implements Exporter.
func (e *JSONExporter) ExportWindow(ctx context.Context, res *WindowResults) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode results: %w", err)
	}

	final := filepath.Join(e.Dir, e.fileName(res))
	tmp, err := os.CreateTemp(e.Dir, ".statistics_*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp export file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write export file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close export file: %w", err)
	}

	if err := os.Rename(tmpName, final); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to publish export file: %w", err)
	}
	return nil
}

// fileName is stable per (experiment, window), so reruns overwrite in
// place: statistics_<experiment>_<window>.json.
func (e *JSONExporter) fileName(res *WindowResults) string {
	return fmt.Sprintf("statistics_%s_%s.json", res.ExperimentID, res.Window.Key())
}
