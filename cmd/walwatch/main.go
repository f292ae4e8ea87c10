package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/torosent/walwatch/internal/archive"
	"github.com/torosent/walwatch/internal/config"
	"github.com/torosent/walwatch/internal/dashboard"
	"github.com/torosent/walwatch/internal/engine"
	"github.com/torosent/walwatch/internal/harness"
	"github.com/torosent/walwatch/internal/logging"
	"github.com/torosent/walwatch/internal/metrics"
	"github.com/torosent/walwatch/internal/output"
	"github.com/torosent/walwatch/internal/tracing"
)

const (
	progressInterval = time.Second
	shutdownTimeout  = 5 * time.Second
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout io.Writer) error {
	loader := config.NewLoader()
	cfg, err := loader.Load(args)
	if err != nil {
		if errors.Is(err, config.ErrHelpRequested) {
			return nil
		}
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	logger := logging.New(level)

	if cfg.Plot != "" {
		return plot(stdout, cfg.Plot)
	}

	catalog, err := loadCatalog(cfg)
	if err != nil {
		return err
	}
	if cfg.List {
		printCatalog(stdout, catalog)
		return nil
	}
	ids, err := scenarioIDs(cfg, catalog)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	provider, err := tracing.Init(ctx, cfg.Tracing, tracing.SQLiteAttributes(engine.SQLiteVersion())...)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()
		if err := provider.Shutdown(shutdownCtx); err != nil {
			logger.Warn("tracing shutdown", "error", err)
		}
	}()

	store, err := archive.New(ctx, cfg.Archive)
	if err != nil {
		return err
	}

	opts, err := harness.OptionsFromConfig(cfg, catalog)
	if err != nil {
		return err
	}
	opts.Logger = logger
	opts.Tracer = provider.Tracer()
	opts.Archive = store

	if cfg.MetricsAddr != "" {
		exporter := metrics.NewExporter()
		opts.Observer = exporter
		stop := serveMetrics(cfg.MetricsAddr, exporter, logger)
		defer stop()
	}

	var dash *dashboard.Dashboard
	if cfg.Dashboard {
		dash, err = dashboard.New(dashboard.RunConfig{
			DBFile:     cfg.DBFile,
			TmpDir:     cfg.TmpDir,
			Rows:       cfg.Rows,
			RowSize:    cfg.RowSize,
			PageSize:   cfg.PageSize,
			Interval:   cfg.Interval,
			ConfigFile: cfg.ConfigFile,
		}, cancel)
		if err != nil {
			return err
		}
		dash.Start()
		defer dash.Stop()
	}

	hooks := newRunHooks(cfg, dash, stdout)
	opts.OnRunStart = hooks.start
	opts.OnRunEnd = hooks.end

	h, err := harness.New(opts)
	if err != nil {
		return err
	}
	if err := h.Prepare(); err != nil {
		return err
	}
	defer h.Close()

	reports, runErr := h.RunAll(ctx, ids)

	if dash != nil {
		dash.Stop()
		for _, r := range reports {
			output.PrintReport(stdout, r.Report)
		}
	}
	if cfg.JSONOutput {
		plain := make([]output.Report, 0, len(reports))
		for _, r := range reports {
			plain = append(plain, r.Report)
		}
		if err := output.PrintJSONReport(stdout, plain); err != nil {
			return err
		}
	}
	return runErr
}

// runHooks follows each run with a dashboard or progress line and prints the
// text report as soon as a run ends.
type runHooks struct {
	dash      *dashboard.Dashboard
	stdout    io.Writer
	progress  bool
	printText bool

	mu       sync.Mutex
	reporter *output.ProgressReporter
}

func newRunHooks(cfg *config.Config, dash *dashboard.Dashboard, stdout io.Writer) *runHooks {
	return &runHooks{
		dash:      dash,
		stdout:    stdout,
		progress:  !cfg.Quiet && !cfg.JSONOutput && dash == nil,
		printText: !cfg.JSONOutput && dash == nil,
	}
}

func (r *runHooks) start(scenarioID int, title string, collector *metrics.Collector) {
	if r.dash != nil {
		r.dash.Attach(scenarioID, title, collector)
	}
	if !r.progress {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(r.stdout, "Scenario %d: %s\n", scenarioID, title)
	r.reporter = output.NewProgressReporter(collector, progressInterval, r.stdout)
	r.reporter.Start()
}

func (r *runHooks) end(report harness.RunReport) {
	r.mu.Lock()
	if r.reporter != nil {
		r.reporter.Stop()
		r.reporter = nil
	}
	r.mu.Unlock()
	if r.printText {
		output.PrintReport(r.stdout, report.Report)
	}
}

func plot(stdout io.Writer, path string) error {
	written, err := output.PlotPath(path)
	for _, w := range written {
		fmt.Fprintln(stdout, w)
	}
	if err != nil {
		return err
	}
	if len(written) == 0 {
		return fmt.Errorf("no trace snapshots found in %s", path)
	}
	return nil
}
