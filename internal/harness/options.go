package harness

import (
	"fmt"
	"log/slog"
	"math"
	"os"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/torosent/walwatch/internal/archive"
	"github.com/torosent/walwatch/internal/config"
	"github.com/torosent/walwatch/internal/driver"
	"github.com/torosent/walwatch/internal/engine"
	"github.com/torosent/walwatch/internal/logging"
	"github.com/torosent/walwatch/internal/metrics"
	"github.com/torosent/walwatch/internal/monitor"
	"github.com/torosent/walwatch/internal/scenario"
	"github.com/torosent/walwatch/internal/threshold"
)

// DefaultGrace is how long sampling continues after a scenario finishes.
const DefaultGrace = 3 * time.Second

// Options configure a Harness.
type Options struct {
	ResultDir string
	DBFile    string
	TmpDir    string
	Catalog   *scenario.Catalog

	Rows      int // rows written by full-table steps
	RowSize   int // payload bytes per row
	PageSize  int
	WriteRate int // rows per second, 0 means unlimited

	Interval     time.Duration // sampling interval
	SettleBefore time.Duration
	SettleAfter  time.Duration
	Grace        time.Duration // defaults to DefaultGrace; negative disables
	Pauser       driver.Pauser

	Thresholds    []threshold.Threshold
	HTMLReport    bool
	Archive       archive.Store // nil disables archiving
	ArchivePrefix string

	// Observer receives every sample and event next to the per-run collector.
	Observer   monitor.Observer
	OnRunStart func(scenarioID int, title string, collector *metrics.Collector)
	OnRunEnd   func(report RunReport)

	Tracer trace.Tracer
	Logger *slog.Logger
	// Sleep waits out the grace period; used by tests.
	Sleep func(time.Duration)
}

func (o *Options) normalize() {
	if o.Rows <= 0 {
		o.Rows = config.DefaultRows
	}
	if o.RowSize <= 0 {
		o.RowSize = engine.DefaultRowBytes
	}
	if o.PageSize <= 0 {
		o.PageSize = engine.DefaultPageSize
	}
	if o.WriteRate < 0 {
		o.WriteRate = 0
	}
	if o.Interval <= 0 {
		o.Interval = monitor.DefaultInterval
	}
	if o.Grace == 0 {
		o.Grace = DefaultGrace
	}
	if o.Grace < 0 {
		o.Grace = 0
	}
	if o.Pauser == nil {
		o.Pauser = driver.NoPause{}
	}
	if o.Tracer == nil {
		o.Tracer = noop.NewTracerProvider().Tracer("walwatch")
	}
	if o.Logger == nil {
		o.Logger = logging.NewNop()
	}
	if o.Sleep == nil {
		o.Sleep = time.Sleep
	}
}

func (o Options) validate() error {
	switch {
	case o.ResultDir == "":
		return fmt.Errorf("harness: result dir is required")
	case o.DBFile == "":
		return fmt.Errorf("harness: db file is required")
	case o.TmpDir == "":
		return fmt.Errorf("harness: tmp dir is required")
	case o.Catalog == nil:
		return fmt.Errorf("harness: catalog is required")
	}
	return nil
}

// OptionsFromConfig maps the validated configuration onto harness options.
// Archive, observers, hooks, tracer and logger are left for the caller.
func OptionsFromConfig(cfg *config.Config, catalog *scenario.Catalog) (Options, error) {
	thresholds, err := threshold.ParseMultiple(cfg.Thresholds)
	if err != nil {
		return Options{}, err
	}

	grace := cfg.Grace
	if grace == 0 {
		grace = -1
	}

	opts := Options{
		ResultDir:     cfg.ResultDir,
		DBFile:        cfg.DBFile,
		TmpDir:        cfg.TmpDir,
		Catalog:       catalog,
		Rows:          cfg.Rows,
		RowSize:       cfg.RowSize,
		PageSize:      cfg.PageSize,
		WriteRate:     writeRate(cfg.WriteRate),
		Interval:      cfg.Interval,
		SettleBefore:  cfg.SettleBefore,
		SettleAfter:   cfg.SettleAfter,
		Grace:         grace,
		Thresholds:    thresholds,
		HTMLReport:    cfg.HTMLReport,
		ArchivePrefix: cfg.Archive.Prefix,
	}
	if cfg.ManualPrompt {
		opts.Pauser = &driver.PromptPauser{In: os.Stdin, Out: os.Stdout}
	}
	return opts, nil
}

// writeRate rounds a fractional rate up so any positive rate stays limited.
func writeRate(r float64) int {
	if r <= 0 {
		return 0
	}
	return int(math.Ceil(r))
}
