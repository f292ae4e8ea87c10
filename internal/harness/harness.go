package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/gofrs/flock"
	"github.com/oklog/ulid/v2"

	"github.com/torosent/walwatch/internal/archive"
	"github.com/torosent/walwatch/internal/driver"
	"github.com/torosent/walwatch/internal/engine"
	"github.com/torosent/walwatch/internal/events"
	"github.com/torosent/walwatch/internal/metrics"
	"github.com/torosent/walwatch/internal/monitor"
	"github.com/torosent/walwatch/internal/output"
	"github.com/torosent/walwatch/internal/sampler"
	"github.com/torosent/walwatch/internal/scenario"
	"github.com/torosent/walwatch/internal/threshold"
	"github.com/torosent/walwatch/internal/trace"
	"github.com/torosent/walwatch/internal/tracing"
)

const (
	lockFileName     = ".walwatch.lock"
	versionsFileName = "versions.txt"
	tmpDirEnv        = "SQLITE_TMPDIR"
	closeStepLabel   = "Closing connection"
)

var (
	// ErrResultDirLocked is returned by Prepare when another walwatch process
	// holds the result directory.
	ErrResultDirLocked = errors.New("result directory is locked by another run")
	// ErrThresholdsFailed marks a run whose size thresholds did not hold.
	ErrThresholdsFailed = errors.New("thresholds failed")
)

// RunReport is the outcome of one scenario run.
type RunReport struct {
	output.Report
	Err error `json:"-"`
}

// Harness runs scenarios one after another against a single result directory.
type Harness struct {
	opt  Options
	lock *flock.Flock
}

// New validates opts and creates a harness. Call Prepare before running.
func New(opt Options) (*Harness, error) {
	opt.normalize()
	if err := opt.validate(); err != nil {
		return nil, err
	}
	return &Harness{opt: opt}, nil
}

// Prepare creates the working directories, exports the temp directory to
// SQLite, locks the result directory and writes versions.txt.
func (h *Harness) Prepare() error {
	for _, dir := range []string{h.opt.ResultDir, h.opt.TmpDir, filepath.Dir(h.opt.DBFile)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}

	tmp, err := filepath.Abs(h.opt.TmpDir)
	if err != nil {
		return fmt.Errorf("resolve tmp dir: %w", err)
	}
	if err := os.Setenv(tmpDirEnv, tmp); err != nil {
		return fmt.Errorf("set %s: %w", tmpDirEnv, err)
	}

	if h.lock == nil {
		lock := flock.New(filepath.Join(h.opt.ResultDir, lockFileName))
		locked, err := lock.TryLock()
		if err != nil {
			return fmt.Errorf("lock result dir: %w", err)
		}
		if !locked {
			return fmt.Errorf("%w: %s", ErrResultDirLocked, h.opt.ResultDir)
		}
		h.lock = lock
	}

	env := output.Environment{
		SQLite:    engine.SQLiteVersion(),
		GoVersion: runtime.Version(),
		Rows:      h.opt.Rows,
		RowSize:   h.opt.RowSize,
		PageSize:  h.opt.PageSize,
	}
	err = trace.WriteFileAtomic(filepath.Join(h.opt.ResultDir, versionsFileName), func(w io.Writer) error {
		return output.WriteVersions(w, env)
	})
	if err != nil {
		return fmt.Errorf("write %s: %w", versionsFileName, err)
	}
	h.opt.Logger.Debug("prepared", "result_dir", h.opt.ResultDir, "tmp_dir", tmp, "sqlite", env.SQLite.Library)
	return nil
}

// Close releases the result directory lock.
func (h *Harness) Close() error {
	if h.lock == nil {
		return nil
	}
	err := h.lock.Unlock()
	h.lock = nil
	return err
}

// OutputBase is the path, without extension, of a scenario's artifacts.
func (h *Harness) OutputBase(scenarioID int) string {
	return filepath.Join(h.opt.ResultDir, fmt.Sprintf("results_scenario_%d", scenarioID))
}

// RunAll runs the scenarios in order. A failure does not stop the remaining
// scenarios unless ctx is canceled.
func (h *Harness) RunAll(ctx context.Context, ids []int) ([]RunReport, error) {
	reports := make([]RunReport, 0, len(ids))
	var errs []error
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		report := h.RunScenario(ctx, id)
		reports = append(reports, report)
		if report.Err != nil {
			errs = append(errs, fmt.Errorf("scenario %d: %w", id, report.Err))
		}
	}
	return reports, errors.Join(errs...)
}

// RunScenario monitors one scenario from database setup to persisted trace.
// The monitor is stopped and its trace persisted even when the scenario fails.
func (h *Harness) RunScenario(ctx context.Context, id int) (report RunReport) {
	report = RunReport{Report: output.Report{ScenarioID: id}}

	sc, err := h.opt.Catalog.Get(id)
	if err != nil {
		return h.finish(report, err)
	}
	report.RunID = ulid.Make().String()
	report.Title = sc.Title
	log := h.opt.Logger.With("scenario", id, "run_id", report.RunID)

	ctx, span := tracing.StartScenarioSpan(ctx, h.opt.Tracer, id, report.RunID)
	defer func() { tracing.EndSpan(span, report.Err) }()

	tx, rx := events.New()
	collector := metrics.NewCollector()
	observers := monitor.Observers{collector}
	if h.opt.Observer != nil {
		observers = append(observers, h.opt.Observer)
	}

	mon := monitor.New(monitor.Options{
		Sampler:    sampler.New(sampler.PathsFor(h.opt.DBFile, h.opt.TmpDir)),
		Receiver:   rx,
		OutputBase: h.OutputBase(id),
		Interval:   h.opt.Interval,
		RunID:      report.RunID,
		Logger:     log,
		Observer:   observers,
	})

	if h.opt.OnRunStart != nil {
		h.opt.OnRunStart(id, sc.Title, collector)
	}
	if err := mon.Start(); err != nil {
		tx.Close()
		report = h.finish(report, err)
		return report
	}
	log.Info("scenario started", "title", sc.Title)

	runErr := h.drive(ctx, log, tx, sc)
	if ctx.Err() == nil {
		h.opt.Sleep(h.opt.Grace)
	}
	tx.Close()
	persistErr := mon.StopAndWait()

	report.Artifacts = mon.Artifacts()
	report.Summary = collector.Summary()
	if tr := mon.Trace(); tr != nil && tr.Title() != "" {
		report.Title = tr.Title()
	}

	var thresholdErr error
	if len(h.opt.Thresholds) > 0 {
		report.Thresholds = threshold.NewEvaluator(h.opt.Thresholds).Evaluate(report.Summary)
		if threshold.Failed(report.Thresholds) {
			thresholdErr = ErrThresholdsFailed
		}
	}

	var extras []string
	var htmlErr error
	if h.opt.HTMLReport && persistErr == nil {
		var path string
		path, htmlErr = h.writeHTML(mon.Trace(), report.Thresholds, id)
		if htmlErr == nil {
			extras = append(extras, path)
		}
	}

	var archiveErr error
	if h.opt.Archive != nil && persistErr == nil {
		archiveErr = h.archive(ctx, log, report, extras)
	}

	log.Info("scenario finished",
		"samples", report.Summary.Samples,
		"events", report.Summary.Events,
		"sample_errors", report.Summary.SampleErrors,
		"csv", report.Artifacts.CSVPath,
	)
	report = h.finish(report, errors.Join(runErr, persistErr, thresholdErr, htmlErr, archiveErr))
	return report
}

// drive recreates the database and executes the scenario. The connection is
// closed as its own step so the monitor records the companion files going away.
func (h *Harness) drive(ctx context.Context, log *slog.Logger, tx *events.Sender, sc scenario.Scenario) error {
	eng, err := engine.Setup(ctx, engine.Options{
		Path:      h.opt.DBFile,
		PageSize:  h.opt.PageSize,
		RowBytes:  h.opt.RowSize,
		WriteRate: h.opt.WriteRate,
		Logger:    h.opt.Logger,
	})
	if err != nil {
		log.Error("database setup failed", "error", err)
		return fmt.Errorf("setup database: %w", err)
	}

	d := driver.New(eng, tx, driver.Options{
		SettleBefore: h.opt.SettleBefore,
		SettleAfter:  h.opt.SettleAfter,
		Pauser:       h.opt.Pauser,
		Tracer:       h.opt.Tracer,
		Logger:       h.opt.Logger,
	})

	execErr := scenario.Execute(ctx, d, eng, sc, h.opt.Rows)

	if ctx.Err() != nil {
		return errors.Join(execErr, eng.Close())
	}
	finishErr := d.Finish(ctx)
	closeErr := d.Step(ctx, closeStepLabel, func(context.Context) error {
		return eng.Close()
	})
	if closeErr != nil {
		// Step may fail before running the close.
		closeErr = errors.Join(closeErr, eng.Close())
	}
	return errors.Join(execErr, finishErr, closeErr)
}

func (h *Harness) writeHTML(tr *trace.Trace, results []threshold.Result, id int) (string, error) {
	path := h.OutputBase(id) + ".html"
	err := trace.WriteFileAtomic(path, func(w io.Writer) error {
		return output.GenerateHTMLReport(w, tr, results)
	})
	if err != nil {
		return "", fmt.Errorf("write html report: %w", err)
	}
	return path, nil
}

func (h *Harness) archive(ctx context.Context, log *slog.Logger, report RunReport, extras []string) error {
	prefix := joinKey(h.opt.ArchivePrefix, report.RunID)
	keys, err := archive.UploadArtifacts(ctx, h.opt.Archive, prefix, report.Artifacts)
	if err != nil {
		return err
	}
	for _, local := range extras {
		key := archive.ObjectKey(prefix, local)
		if err := h.opt.Archive.Upload(ctx, local, key); err != nil {
			return fmt.Errorf("archive %s: %w", key, err)
		}
		keys = append(keys, key)
	}
	log.Info("artifacts archived", "keys", strings.Join(keys, ","))
	return nil
}

func (h *Harness) finish(report RunReport, err error) RunReport {
	report.Err = err
	if err != nil {
		report.Error = err.Error()
	}
	if h.opt.OnRunEnd != nil {
		h.opt.OnRunEnd(report)
	}
	return report
}

func joinKey(prefix, runID string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return runID
	}
	return prefix + "/" + runID
}
