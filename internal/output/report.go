package output

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/torosent/walwatch/internal/engine"
	"github.com/torosent/walwatch/internal/metrics"
	"github.com/torosent/walwatch/internal/threshold"
	"github.com/torosent/walwatch/internal/trace"
)

// Report is the outcome of one monitored scenario run.
type Report struct {
	ScenarioID int                `json:"scenario"`
	RunID      string             `json:"run_id"`
	Title      string             `json:"title"`
	Artifacts  trace.Artifacts    `json:"artifacts"`
	Summary    metrics.Summary    `json:"summary"`
	Thresholds []threshold.Result `json:"thresholds,omitempty"`
	Error      string             `json:"error,omitempty"`
}

// Passed reports whether the run finished without error and met every threshold.
func (r Report) Passed() bool {
	return r.Error == "" && !threshold.Failed(r.Thresholds)
}

// PrintReport outputs a human-readable summary report.
func PrintReport(w io.Writer, r Report) {
	fmt.Fprintf(w, "\n--- Scenario %d: %s ---\n", r.ScenarioID, r.Title)
	fmt.Fprintf(w, "Run ID:            %s\n", r.RunID)
	fmt.Fprintf(w, "Samples:           %d\n", r.Summary.Samples)
	fmt.Fprintf(w, "Events:            %d\n", r.Summary.Events)
	fmt.Fprintf(w, "Sample Errors:     %d\n", r.Summary.SampleErrors)
	fmt.Fprintf(w, "Duration:          %s\n", r.Summary.Duration)

	if r.Summary.Samples > 0 {
		fmt.Fprintln(w, "\nSizes:")
		fmt.Fprintf(w, "  %-4s %10s %10s %10s %10s %10s\n", "", "min", "avg", "p90", "max", "last")
		for _, s := range metrics.AllSeries {
			st := r.Summary.Series[s]
			fmt.Fprintf(w, "  %-4s %10s %10s %10s %10s %10s\n", s,
				FormatBytes(st.Min), FormatBytes(st.Mean), FormatBytes(st.P90), FormatBytes(st.Max), FormatBytes(st.Last))
		}
	}

	if len(r.Summary.Errors) > 0 {
		fmt.Fprintln(w, "\nSample Error Types:")
		for _, bucket := range metrics.FlattenErrors(r.Summary.Errors) {
			fmt.Fprintf(w, "  %s: %d\n", bucket.Name, bucket.Count)
		}
	}

	if len(r.Thresholds) > 0 {
		fmt.Fprintln(w, "\nThresholds:")
		for _, res := range r.Thresholds {
			fmt.Fprintf(w, "  %s\n", res.Message)
		}
	}

	if r.Artifacts.CSVPath != "" {
		fmt.Fprintln(w, "\nArtifacts:")
		fmt.Fprintf(w, "  %s\n  %s\n", r.Artifacts.CSVPath, r.Artifacts.SnapshotPath)
	}
	if r.Error != "" {
		fmt.Fprintf(w, "\nError: %s\n", r.Error)
	}
}

// PrintJSONReport outputs a JSON-formatted report of every run.
func PrintJSONReport(w io.Writer, reports []Report) error {
	if reports == nil {
		reports = []Report{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(reports)
}

// Environment is recorded once per invocation next to the results.
type Environment struct {
	SQLite    engine.Versions
	GoVersion string
	Rows      int
	RowSize   int
	PageSize  int
}

// WriteVersions writes the version and workload parameters in key: value lines.
func WriteVersions(w io.Writer, env Environment) error {
	lines := []struct {
		key string
		val any
	}{
		{"SQLite3 version", env.SQLite.Library},
		{"SQLite3 version number", env.SQLite.Number},
		{"SQLite3 source id", env.SQLite.SourceID},
		{"go-sqlite3 version", env.SQLite.Driver},
		{"Go version", env.GoVersion},
		{"num_rows", env.Rows},
		{"row_size", env.RowSize},
		{"page_size", env.PageSize},
	}
	for _, l := range lines {
		if _, err := fmt.Fprintf(w, "%s: %v\n", l.key, l.val); err != nil {
			return err
		}
	}
	return nil
}
