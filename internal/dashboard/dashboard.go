// Package dashboard renders a live terminal view of the watched file sizes.
package dashboard

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	ui "github.com/gizak/termui/v3"
	"github.com/gizak/termui/v3/widgets"

	"github.com/torosent/walwatch/internal/metrics"
	"github.com/torosent/walwatch/internal/trace"
)

const (
	refreshInterval = 500 * time.Millisecond
	maxSparkPoints  = 120
	maxListRows     = 10
)

// RunConfig holds the workload parameters shown in the header.
type RunConfig struct {
	DBFile     string
	TmpDir     string
	Rows       int
	RowSize    int
	PageSize   int
	Interval   time.Duration
	ConfigFile string
}

// Dashboard renders a live terminal UI for the sampled sizes.
type Dashboard struct {
	collector    *metrics.Collector
	scenarioID   int
	title        string
	runStart     time.Time
	ctx          context.Context
	cancel       context.CancelFunc
	shutdownFunc func()
	wg           sync.WaitGroup
	mu           sync.Mutex
	stopOnce     sync.Once
	cfg          RunConfig

	// Widgets
	grid       *ui.Grid
	summary    *widgets.Paragraph
	sparks     *widgets.SparklineGroup
	sizesPara  *widgets.Paragraph
	eventList  *widgets.List
	errorList  *widgets.List
	sparkIndex map[metrics.Series]int
}

var seriesColors = map[metrics.Series]ui.Color{
	metrics.SeriesDB:  ui.ColorBlue,
	metrics.SeriesSHM: ui.ColorMagenta,
	metrics.SeriesWAL: ui.ColorYellow,
	metrics.SeriesTmp: ui.ColorGreen,
}

// New initializes the terminal. shutdownFunc runs when the user presses q or Ctrl-C.
func New(cfg RunConfig, shutdownFunc func()) (*Dashboard, error) {
	if err := ui.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize termui: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	d := &Dashboard{
		ctx:          ctx,
		cancel:       cancel,
		shutdownFunc: shutdownFunc,
		cfg:          cfg,
		runStart:     time.Now(),
	}
	d.initWidgets()
	d.setupGrid()
	return d, nil
}

// Attach switches the dashboard to a new run's collector.
func (d *Dashboard) Attach(scenarioID int, title string, collector *metrics.Collector) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.scenarioID = scenarioID
	d.title = title
	d.collector = collector
	d.runStart = time.Now()
}

func (d *Dashboard) initWidgets() {
	d.summary = widgets.NewParagraph()
	d.summary.Title = "walwatch"
	d.summary.Text = "Initializing..."
	d.summary.BorderStyle.Fg = ui.ColorCyan

	d.sparkIndex = make(map[metrics.Series]int, len(metrics.AllSeries))
	lines := make([]*widgets.Sparkline, 0, len(metrics.AllSeries))
	for i, s := range metrics.AllSeries {
		line := widgets.NewSparkline()
		line.Title = string(s)
		line.LineColor = seriesColors[s]
		line.Data = []float64{0}
		lines = append(lines, line)
		d.sparkIndex[s] = i
	}
	d.sparks = widgets.NewSparklineGroup(lines...)
	d.sparks.Title = "File Sizes (MB)"
	d.sparks.BorderStyle.Fg = ui.ColorCyan

	d.sizesPara = widgets.NewParagraph()
	d.sizesPara.Title = "Current / Peak"
	d.sizesPara.Text = "Waiting for samples..."
	d.sizesPara.BorderStyle.Fg = ui.ColorCyan

	d.eventList = widgets.NewList()
	d.eventList.Title = "Events"
	d.eventList.Rows = []string{"No events yet"}
	d.eventList.TextStyle = ui.NewStyle(ui.ColorWhite)
	d.eventList.BorderStyle.Fg = ui.ColorCyan

	d.errorList = widgets.NewList()
	d.errorList.Title = "Sample Errors"
	d.errorList.Rows = []string{"[No errors](fg:green)"}
	d.errorList.BorderStyle.Fg = ui.ColorCyan
}

func (d *Dashboard) setupGrid() {
	termWidth, termHeight := ui.TerminalDimensions()

	d.grid = ui.NewGrid()
	d.grid.SetRect(0, 0, termWidth, termHeight)
	d.grid.Set(
		ui.NewRow(0.15,
			ui.NewCol(1.0, d.summary),
		),
		ui.NewRow(0.50,
			ui.NewCol(0.68, d.sparks),
			ui.NewCol(0.32, d.sizesPara),
		),
		ui.NewRow(0.35,
			ui.NewCol(0.65, d.eventList),
			ui.NewCol(0.35, d.errorList),
		),
	)
}

// Start begins the dashboard update loop.
func (d *Dashboard) Start() {
	d.wg.Add(1)
	go d.run()
}

// Stop stops the dashboard and restores the terminal. Safe to call twice.
func (d *Dashboard) Stop() {
	d.stopOnce.Do(func() {
		d.cancel()
		d.wg.Wait()
		ui.Close()
		// Give terminal time to restore
		time.Sleep(100 * time.Millisecond)
	})
}

func (d *Dashboard) run() {
	defer d.wg.Done()

	ticker := time.NewTicker(refreshInterval)
	defer ticker.Stop()

	uiEvents := ui.PollEvents()

	d.render()

	for {
		select {
		case <-d.ctx.Done():
			for len(uiEvents) > 0 {
				<-uiEvents
			}
			return
		case e := <-uiEvents:
			select {
			case <-d.ctx.Done():
				return
			default:
			}

			switch e.ID {
			case "q", "<C-c>":
				if d.shutdownFunc != nil {
					d.shutdownFunc()
				}
				// Stop cancels the context once the run has wound down.
			case "<Resize>":
				payload := e.Payload.(ui.Resize)
				d.mu.Lock()
				d.grid.SetRect(0, 0, payload.Width, payload.Height)
				d.mu.Unlock()
				ui.Clear()
				d.render()
			}
		case <-ticker.C:
			d.update()
			d.render()
		}
	}
}

// update refreshes all widget data from the attached collector.
func (d *Dashboard) update() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.collector == nil {
		d.summary.Text = formatParams(d.cfg)
		return
	}

	stats := d.collector.Stats()
	summary := d.collector.Summary()
	history := d.collector.History()

	d.summary.Title = fmt.Sprintf("Scenario %d", d.scenarioID)
	d.summary.Text = fmt.Sprintf("%s\n%s\nElapsed: %s | Samples: %d | Events: %d | Errors: %d",
		d.title,
		formatParams(d.cfg),
		time.Since(d.runStart).Round(time.Second),
		stats.Samples,
		stats.Events,
		stats.SampleErrors,
	)

	for _, s := range metrics.AllSeries {
		line := d.sparks.Sparklines[d.sparkIndex[s]]
		line.Data = sparklineData(history, s, maxSparkPoints)
		line.Title = fmt.Sprintf("%s %s", s, formatBytes(s.Value(stats.Latest)))
	}

	d.sizesPara.Text = formatSizes(stats, summary)

	var origin time.Time
	if len(history) > 0 {
		origin = history[0].Timestamp
	}
	d.eventList.Rows = formatEventRows(d.collector.RecentEvents(), origin, maxListRows)
	d.errorList.Rows = formatErrorRows(summary.Errors, maxListRows)
}

// render draws all widgets to the screen.
func (d *Dashboard) render() {
	d.mu.Lock()
	defer d.mu.Unlock()

	ui.Render(d.grid)
}

// sparklineData returns the last limit values of a series in megabytes. A
// sparkline needs at least one point.
func sparklineData(history []trace.Sample, s metrics.Series, limit int) []float64 {
	if limit > 0 && len(history) > limit {
		history = history[len(history)-limit:]
	}
	if len(history) == 0 {
		return []float64{0}
	}
	out := make([]float64, len(history))
	for i, sample := range history {
		out[i] = float64(s.Value(sample)) / 1e6
	}
	return out
}

func formatSizes(stats metrics.Stats, summary metrics.Summary) string {
	if !stats.HasLatest {
		return "Waiting for samples..."
	}
	lines := make([]string, 0, len(metrics.AllSeries))
	for _, s := range metrics.AllSeries {
		lines = append(lines, fmt.Sprintf("[%-3s](fg:cyan) %9s / %9s",
			s, formatBytes(s.Value(stats.Latest)), formatBytes(summary.Series[s].Max)))
	}
	return joinLines(lines)
}

func formatEventRows(events []trace.Event, origin time.Time, limit int) []string {
	if len(events) == 0 {
		return []string{"No events yet"}
	}
	if limit > 0 && len(events) > limit {
		events = events[len(events)-limit:]
	}
	rows := make([]string, 0, len(events))
	for i := len(events) - 1; i >= 0; i-- {
		e := events[i]
		offset := ""
		if !origin.IsZero() {
			offset = fmt.Sprintf("[%6.1fs](fg:yellow) ", e.Timestamp.Sub(origin).Seconds())
		}
		rows = append(rows, offset+e.Label)
	}
	return rows
}

func formatErrorRows(errs map[string]int, limit int) []string {
	buckets := metrics.FlattenErrors(errs)
	if len(buckets) == 0 {
		return []string{"[No errors](fg:green)"}
	}
	if limit > 0 && len(buckets) > limit {
		buckets = buckets[:limit]
	}
	rows := make([]string, 0, len(buckets))
	for _, b := range buckets {
		rows = append(rows, fmt.Sprintf("[%s](fg:red) %d", b.Name, b.Count))
	}
	return rows
}

// formatParams formats the workload parameters for display.
func formatParams(cfg RunConfig) string {
	var parts []string
	if cfg.DBFile != "" {
		parts = append(parts, fmt.Sprintf("DB: %s", cfg.DBFile))
	}
	if cfg.Rows > 0 {
		parts = append(parts, fmt.Sprintf("Rows: %d x %s", cfg.Rows, formatBytes(int64(cfg.RowSize))))
	}
	if cfg.PageSize > 0 {
		parts = append(parts, fmt.Sprintf("Page: %d", cfg.PageSize))
	}
	if cfg.Interval > 0 {
		parts = append(parts, fmt.Sprintf("Interval: %s", cfg.Interval))
	}
	if cfg.ConfigFile != "" {
		parts = append(parts, fmt.Sprintf("Config: %s", cfg.ConfigFile))
	}
	return strings.Join(parts, " | ")
}

func formatBytes(n int64) string {
	switch {
	case n >= 1e9:
		return fmt.Sprintf("%.1fGB", float64(n)/1e9)
	case n >= 1e6:
		return fmt.Sprintf("%.1fMB", float64(n)/1e6)
	case n >= 1e3:
		return fmt.Sprintf("%.1fKB", float64(n)/1e3)
	default:
		return fmt.Sprintf("%dB", n)
	}
}

func joinLines(lines []string) string {
	if len(lines) == 0 {
		return ""
	}
	result := lines[0]
	for i := 1; i < len(lines); i++ {
		result += "\n" + lines[i]
	}
	return result
}
