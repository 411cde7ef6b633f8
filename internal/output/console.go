// Package output formats run results for the console.
package output

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"

	"github.com/terrorizer1980/jetstream/internal/run"
	"github.com/terrorizer1980/jetstream/internal/stats"
)

// Formatter renders a run summary: per-window status, headline estimates,
// and the aggregate run status.
type Formatter struct {
	Writer  io.Writer
	NoColor bool
}

// NewFormatter creates a formatter for w. Color is disabled automatically
// when w is not a terminal.
func NewFormatter(w io.Writer, noColor bool) *Formatter {
	if !noColor {
		if f, ok := w.(*os.File); ok && !isatty.IsTerminal(f.Fd()) && !isatty.IsCygwinTerminal(f.Fd()) {
			noColor = true
		}
	}
	return &Formatter{Writer: w, NoColor: noColor}
}

// FormatRun writes the run summary.
func (f *Formatter) FormatRun(res *run.Result) {
	header := color.New(color.Bold)
	okColor := color.New(color.FgGreen)
	failColor := color.New(color.FgRed)
	warnColor := color.New(color.FgYellow)
	dim := color.New(color.Faint)
	if f.NoColor {
		for _, c := range []*color.Color{header, okColor, failColor, warnColor, dim} {
			c.DisableColor()
		}
	}

	var buf strings.Builder
	buf.WriteString(header.Sprintf("Experiment %s — run %s (as of %s)\n",
		res.ExperimentID, res.RunID, res.AsOf.Format("2006-01-02")))

	for _, w := range res.Windows {
		switch w.State {
		case run.StateExported:
			buf.WriteString(fmt.Sprintf("  %s %-10s %d results\n",
				okColor.Sprint("✓"), w.Window.Key(), len(w.Results)))
			for _, line := range headlineResults(w.Results) {
				buf.WriteString(dim.Sprintf("      %s\n", line))
			}
		case run.StateFailed:
			buf.WriteString(fmt.Sprintf("  %s %-10s %s\n",
				failColor.Sprint("✗"), w.Window.Key(), w.Error))
		default:
			buf.WriteString(fmt.Sprintf("  %s %-10s %s\n",
				warnColor.Sprint("•"), w.Window.Key(), w.State))
		}
	}

	statusColor := okColor
	switch res.Status {
	case run.StatusFailed:
		statusColor = failColor
	case run.StatusPartialFailure:
		statusColor = warnColor
	}
	buf.WriteString(fmt.Sprintf("Status: %s (%s)\n",
		statusColor.Sprint(string(res.Status)),
		res.FinishedAt.Sub(res.StartedAt).Round(1e6)))

	fmt.Fprint(f.Writer, buf.String())
}

// headlineResults picks the per-branch estimate lines for display, skipping
// comparisons to keep the summary short.
func headlineResults(results []stats.Result) []string {
	var lines []string
	for _, r := range results {
		if r.Comparison != "" {
			continue
		}
		if r.Status == stats.StatusInsufficientData {
			lines = append(lines, fmt.Sprintf("%s %s: insufficient data (n=%d)",
				r.Metric, r.Branch, r.SampleSize))
			continue
		}
		if r.Point == nil || r.Lower == nil || r.Upper == nil {
			continue
		}
		lines = append(lines, fmt.Sprintf("%s %s: %.4f [%.4f, %.4f] (n=%d)",
			r.Metric, r.Branch, *r.Point, *r.Lower, *r.Upper, r.SampleSize))
	}
	return lines
}
