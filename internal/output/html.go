package output

import (
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/torosent/walwatch/internal/metrics"
	"github.com/torosent/walwatch/internal/threshold"
	"github.com/torosent/walwatch/internal/trace"
)

// HTMLReportData contains all data needed for the HTML report template.
type HTMLReportData struct {
	GeneratedAt      string
	Title            string
	RunID            string
	Summary          metrics.Summary
	Rows             []SeriesRow
	Events           []EventRow
	ThresholdResults []threshold.Result
	ThresholdSummary *ThresholdSummary
	PlotJSON         string
}

// SeriesRow is one line of the size table.
type SeriesRow struct {
	Name  metrics.Series
	Stats metrics.SeriesStats
}

// EventRow is one action marker, positioned in seconds from the first entry.
type EventRow struct {
	Offset float64 `json:"t"`
	Label  string  `json:"label"`
}

// ThresholdSummary counts passed and failed thresholds.
type ThresholdSummary struct {
	Total  int
	Passed int
	Failed int
}

type plotData struct {
	T      []float64  `json:"t"`
	DB     []float64  `json:"db"`
	SHM    []float64  `json:"shm"`
	WAL    []float64  `json:"wal"`
	Tmp    []float64  `json:"tmp"`
	Events []EventRow `json:"events"`
}

// Summarize replays the samples and events of a trace through a collector.
func Summarize(tr *trace.Trace) metrics.Summary {
	c := metrics.NewCollector()
	for _, e := range tr.Entries() {
		switch e.Kind {
		case trace.KindSample:
			c.ObserveSample(*e.Sample)
		case trace.KindEvent:
			c.ObserveEvent(*e.Event)
		}
	}
	return c.Summary()
}

// GenerateHTMLReport renders a standalone page plotting every sample of the
// trace in megabytes over seconds, with one marker per event.
func GenerateHTMLReport(w io.Writer, tr *trace.Trace, thresholdResults []threshold.Result) error {
	tr.Finalize()
	entries := tr.Entries()

	var plot plotData
	var origin time.Time
	if len(entries) > 0 {
		origin = entries[0].Timestamp()
	}
	for _, e := range entries {
		offset := e.Timestamp().Sub(origin).Seconds()
		switch e.Kind {
		case trace.KindSample:
			plot.T = append(plot.T, offset)
			plot.DB = append(plot.DB, toMB(e.Sample.MainBytes))
			plot.SHM = append(plot.SHM, toMB(e.Sample.SHMBytes))
			plot.WAL = append(plot.WAL, toMB(e.Sample.WALBytes))
			plot.Tmp = append(plot.Tmp, toMB(e.Sample.TempDirBytes))
		case trace.KindEvent:
			plot.Events = append(plot.Events, EventRow{Offset: offset, Label: e.Event.Label})
		}
	}

	plotJSON, err := json.Marshal(plot)
	if err != nil {
		return fmt.Errorf("failed to marshal plot data: %w", err)
	}

	var thresholdSummary *ThresholdSummary
	if len(thresholdResults) > 0 {
		thresholdSummary = &ThresholdSummary{Total: len(thresholdResults)}
		for _, r := range thresholdResults {
			if r.Pass {
				thresholdSummary.Passed++
			} else {
				thresholdSummary.Failed++
			}
		}
	}

	summary := Summarize(tr)
	rows := make([]SeriesRow, 0, len(metrics.AllSeries))
	for _, s := range metrics.AllSeries {
		rows = append(rows, SeriesRow{Name: s, Stats: summary.Series[s]})
	}

	title := tr.Title()
	if title == "" {
		title = "Untitled run"
	}
	data := HTMLReportData{
		GeneratedAt:      time.Now().Format(time.RFC3339),
		Title:            title,
		RunID:            tr.RunID,
		Summary:          summary,
		Rows:             rows,
		Events:           plot.Events,
		ThresholdResults: thresholdResults,
		ThresholdSummary: thresholdSummary,
		PlotJSON:         string(plotJSON),
	}

	tmpl, err := template.New("report").Funcs(template.FuncMap{
		"formatDuration": func(d time.Duration) string {
			return d.Truncate(time.Millisecond).String()
		},
		"formatBytes": FormatBytes,
		"formatSeconds": func(f float64) string {
			return fmt.Sprintf("%.2fs", f)
		},
	}).Parse(htmlTemplate)
	if err != nil {
		return fmt.Errorf("failed to parse template: %w", err)
	}

	if err := tmpl.Execute(w, data); err != nil {
		return fmt.Errorf("failed to execute template: %w", err)
	}

	return nil
}

func toMB(n int64) float64 {
	return float64(n) / 1e6
}

// PlotFile renders the snapshot at path to path with an .html extension and
// returns the written file.
func PlotFile(path string) (string, error) {
	tr, err := trace.LoadSnapshotFile(path)
	if err != nil {
		return "", err
	}
	out := strings.TrimSuffix(path, filepath.Ext(path)) + ".html"
	err = trace.WriteFileAtomic(out, func(w io.Writer) error {
		return GenerateHTMLReport(w, tr, nil)
	})
	if err != nil {
		return "", err
	}
	return out, nil
}

// PlotPath plots a single snapshot, or every snapshot in a directory. JSON
// files in a directory that are not walwatch snapshots are skipped.
func PlotPath(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		out, err := PlotFile(path)
		if err != nil {
			return nil, err
		}
		return []string{out}, nil
	}

	matches, err := filepath.Glob(filepath.Join(path, "*.json"))
	if err != nil {
		return nil, err
	}
	var written []string
	for _, m := range matches {
		out, err := PlotFile(m)
		if errors.Is(err, trace.ErrUnsupportedSnapshot) {
			continue
		}
		if err != nil {
			return written, fmt.Errorf("plot %s: %w", m, err)
		}
		written = append(written, out)
	}
	return written, nil
}

const htmlTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>{{.Title}} - walwatch</title>
    <style>
        * {
            margin: 0;
            padding: 0;
            box-sizing: border-box;
        }
        body {
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, 'Helvetica Neue', Arial, sans-serif;
            background: #f5f7fa;
            color: #2c3e50;
            line-height: 1.6;
            padding: 20px;
        }
        .container {
            max-width: 1400px;
            margin: 0 auto;
            background: white;
            border-radius: 8px;
            box-shadow: 0 2px 8px rgba(0,0,0,0.1);
            overflow: hidden;
        }
        header {
            background: linear-gradient(135deg, #667eea 0%, #764ba2 100%);
            color: white;
            padding: 30px 40px;
        }
        header h1 {
            font-size: 2rem;
            margin-bottom: 10px;
        }
        header .meta {
            opacity: 0.9;
            font-size: 0.9rem;
        }
        .content {
            padding: 40px;
        }
        .grid {
            display: grid;
            grid-template-columns: repeat(auto-fit, minmax(250px, 1fr));
            gap: 20px;
            margin-bottom: 40px;
        }
        .card {
            background: #f8f9fa;
            border-radius: 8px;
            padding: 20px;
            border-left: 4px solid #667eea;
        }
        .card h3 {
            font-size: 0.9rem;
            color: #6c757d;
            text-transform: uppercase;
            letter-spacing: 0.5px;
            margin-bottom: 10px;
        }
        .card .value {
            font-size: 2rem;
            font-weight: bold;
            color: #2c3e50;
        }
        .card .subvalue {
            font-size: 0.85rem;
            color: #6c757d;
            margin-top: 5px;
        }
        .card.success {
            border-left-color: #10b981;
        }
        .card.error {
            border-left-color: #ef4444;
        }
        .card.warning {
            border-left-color: #f59e0b;
        }
        .section {
            margin-bottom: 40px;
        }
        .section h2 {
            font-size: 1.5rem;
            margin-bottom: 20px;
            padding-bottom: 10px;
            border-bottom: 2px solid #e5e7eb;
        }
        .chart-container {
            background: white;
            border-radius: 8px;
            padding: 20px;
            margin-bottom: 30px;
            border: 1px solid #e5e7eb;
        }
        .chart-container h3 {
            font-size: 1.1rem;
            margin-bottom: 15px;
            color: #4b5563;
        }
        .chart {
            width: 100%;
            height: 420px;
        }
        .events td.time {
            font-family: monospace;
            white-space: nowrap;
        }
        table {
            width: 100%;
            border-collapse: collapse;
            background: white;
        }
        th, td {
            text-align: left;
            padding: 12px;
            border-bottom: 1px solid #e5e7eb;
        }
        th {
            background: #f8f9fa;
            font-weight: 600;
            color: #4b5563;
            font-size: 0.9rem;
            text-transform: uppercase;
            letter-spacing: 0.5px;
        }
        tr:hover {
            background: #f8f9fa;
        }
        .badge {
            display: inline-block;
            padding: 4px 12px;
            border-radius: 12px;
            font-size: 0.85rem;
            font-weight: 600;
        }
        .badge-success {
            background: #d1fae5;
            color: #065f46;
        }
        .badge-error {
            background: #fee2e2;
            color: #991b1b;
        }
        .no-data {
            text-align: center;
            padding: 40px;
            color: #6c757d;
            font-style: italic;
        }
    </style>
    <script src="https://cdn.jsdelivr.net/npm/uplot@1.6.24/dist/uPlot.iife.min.js"></script>
    <link rel="stylesheet" href="https://cdn.jsdelivr.net/npm/uplot@1.6.24/dist/uPlot.min.css">
</head>
<body>
    <div class="container">
        <header>
            <h1>{{.Title}}</h1>
            {{if .RunID}}<div class="meta" style="margin-top: 5px;">Run: {{.RunID}}</div>{{end}}
            <div class="meta">Generated: {{.GeneratedAt}} | Duration: {{formatDuration .Summary.Duration}}</div>
        </header>

        <div class="content">
            <div class="grid">
                <div class="card">
                    <h3>Samples</h3>
                    <div class="value">{{.Summary.Samples}}</div>
                </div>
                <div class="card success">
                    <h3>Events</h3>
                    <div class="value">{{.Summary.Events}}</div>
                </div>
                <div class="card {{if .Summary.SampleErrors}}error{{else}}success{{end}}">
                    <h3>Sample Errors</h3>
                    <div class="value">{{.Summary.SampleErrors}}</div>
                </div>
            </div>

            {{if .Summary.Samples}}
            <div class="section">
                <h2>File Sizes</h2>
                <div class="chart-container">
                    <h3>Size over time (MB)</h3>
                    <div id="size-chart" class="chart"></div>
                </div>
                <table>
                    <thead>
                        <tr><th>File</th><th>Min</th><th>Avg</th><th>P90</th><th>P99</th><th>Max</th><th>Last</th></tr>
                    </thead>
                    <tbody>
                        {{range .Rows}}
                        <tr>
                            <td><strong>{{.Name}}</strong></td>
                            <td>{{formatBytes .Stats.Min}}</td>
                            <td>{{formatBytes .Stats.Mean}}</td>
                            <td>{{formatBytes .Stats.P90}}</td>
                            <td>{{formatBytes .Stats.P99}}</td>
                            <td>{{formatBytes .Stats.Max}}</td>
                            <td>{{formatBytes .Stats.Last}}</td>
                        </tr>
                        {{end}}
                    </tbody>
                </table>
            </div>
            {{else}}
            <div class="no-data">No samples recorded</div>
            {{end}}

            {{if .ThresholdSummary}}
            <div class="section">
                <h2>Thresholds ({{.ThresholdSummary.Passed}}/{{.ThresholdSummary.Total}} Passed)</h2>
                <table>
                    <thead>
                        <tr><th>Threshold</th><th>Actual (bytes)</th><th>Status</th></tr>
                    </thead>
                    <tbody>
                        {{range .ThresholdResults}}
                        <tr>
                            <td>{{.Raw}}</td>
                            <td>{{printf "%.0f" .Actual}}</td>
                            <td>
                                {{if .Pass}}
                                <span class="badge badge-success">PASS</span>
                                {{else}}
                                <span class="badge badge-error">FAIL</span>
                                {{end}}
                            </td>
                        </tr>
                        {{end}}
                    </tbody>
                </table>
            </div>
            {{end}}

            {{if .Events}}
            <div class="section">
                <h2>Events</h2>
                <table class="events">
                    <thead>
                        <tr><th>Time</th><th>Action</th></tr>
                    </thead>
                    <tbody>
                        {{range .Events}}
                        <tr><td class="time">{{formatSeconds .Offset}}</td><td>{{.Label}}</td></tr>
                        {{end}}
                    </tbody>
                </table>
            </div>
            {{end}}
        </div>
    </div>

    {{if .Summary.Samples}}
    <script>
        const plotJSON = {{.PlotJSON}};
        const plot = JSON.parse(plotJSON);

        const eventMarkers = (u) => {
            const ctx = u.ctx;
            ctx.save();
            ctx.strokeStyle = "rgba(239, 68, 68, 0.4)";
            ctx.fillStyle = "rgba(239, 68, 68, 0.8)";
            ctx.setLineDash([5, 5]);
            ctx.font = "11px sans-serif";
            (plot.events || []).forEach((ev) => {
                const x = Math.round(u.valToPos(ev.t, "x", true));
                ctx.beginPath();
                ctx.moveTo(x, u.bbox.top);
                ctx.lineTo(x, u.bbox.top + u.bbox.height);
                ctx.stroke();
                ctx.save();
                ctx.translate(x - 3, u.bbox.top + u.bbox.height / 2);
                ctx.rotate(-Math.PI / 2);
                ctx.textAlign = "center";
                ctx.fillText(ev.label, 0, 0);
                ctx.restore();
            });
            ctx.restore();
        };

        new uPlot({
            title: "File sizes",
            width: document.getElementById('size-chart').offsetWidth,
            height: 420,
            scales: { x: { time: false } },
            series: [
                { label: "Time (s)" },
                { label: "db", stroke: "#2563eb", width: 2 },
                { label: "shm", stroke: "#8b5cf6", width: 1 },
                { label: "wal", stroke: "#f59e0b", width: 2 },
                { label: "tmp", stroke: "#10b981", width: 2 }
            ],
            axes: [
                { label: "Seconds (s)" },
                { label: "Megabyte (MB)" }
            ],
            hooks: { draw: [eventMarkers] }
        }, [plot.t, plot.db, plot.shm, plot.wal, plot.tmp], document.getElementById('size-chart'));
    </script>
    {{end}}
</body>
</html>
`
