package scenario

import (
	"context"
	"fmt"
	"strings"

	"github.com/torosent/walwatch/internal/driver"
	"github.com/torosent/walwatch/internal/engine"
	"github.com/torosent/walwatch/internal/tracing"
)

// Storage is the subset of the engine the steps use.
type Storage interface {
	WriteRows(ctx context.Context, n int, perRowCommit bool) error
	DeleteRows(ctx context.Context, from, to int, perRowCommit bool) error
	Checkpoint(ctx context.Context, mode engine.CheckpointMode) (engine.CheckpointResult, error)
	Vacuum(ctx context.Context) error
	IncrementalVacuum(ctx context.Context, pages int) error
	PageUsage(ctx context.Context) (engine.PageUsage, error)
	SetAutoCheckpoint(ctx context.Context, pages int) error
}

var _ Storage = (*engine.Engine)(nil)

// Execute sends the scenario title and runs every step in order. It stops at
// the first failing step.
func Execute(ctx context.Context, d *driver.Driver, st Storage, sc Scenario, totalRows int) error {
	if err := d.Title(ctx, sc.Title); err != nil {
		return err
	}
	x := executor{d: d, st: st, totalRows: totalRows}
	for i, step := range sc.Steps {
		if err := x.run(ctx, step); err != nil {
			return fmt.Errorf("scenario %d step %d (%s): %w", sc.ID, i, step.Op, err)
		}
	}
	return nil
}

type executor struct {
	d         *driver.Driver
	st        Storage
	totalRows int
}

func (x executor) run(ctx context.Context, s Step) error {
	switch s.Op {
	case OpWrite:
		rows := s.Rows
		if rows == 0 {
			rows = x.totalRows
		}
		return x.d.Step(ctx, fmt.Sprintf("Writing %d rows", rows), func(ctx context.Context) error {
			return x.st.WriteRows(ctx, rows, s.PerRowCommit)
		})

	case OpDelete:
		from, to := x.resolveRange(s.From, s.To)
		return x.d.Step(ctx, fmt.Sprintf("Deleting rows %d to %d", from, to-1), func(ctx context.Context) error {
			return x.st.DeleteRows(ctx, from, to, s.PerRowCommit)
		})

	case OpCheckpoint:
		mode, err := engine.ParseCheckpointMode(s.Mode)
		if err != nil {
			return err
		}
		return x.checkpoint(ctx, mode, s.LogResult)

	case OpVacuum:
		return x.d.Step(ctx, "vacuum", x.st.Vacuum)

	case OpIncrementalVacuum:
		return x.incrementalVacuum(ctx, s.Pages)

	case OpPageUsage:
		_, err := x.pageUsage(ctx)
		return err

	case OpAutoCheckpoint:
		return x.d.Step(ctx, fmt.Sprintf("wal_autocheckpoint(%d)", s.Pages), func(ctx context.Context) error {
			return x.st.SetAutoCheckpoint(ctx, s.Pages)
		})

	case OpVacuumUntilEmpty:
		return x.vacuumUntilEmpty(ctx, s)

	case OpVacuumInSteps:
		return x.vacuumInSteps(ctx, s)

	default:
		return fmt.Errorf("unknown op %q", s.Op)
	}
}

// resolveRange turns the step bounds into [from, to) within [0, totalRows].
func (x executor) resolveRange(from int, to *int) (int, int) {
	end := x.totalRows
	if to != nil {
		end = *to
		if end < 0 {
			end += x.totalRows
		}
	}
	if from < 0 {
		from += x.totalRows
	}
	from = clamp(from, 0, x.totalRows)
	end = clamp(end, from, x.totalRows)
	return from, end
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func (x executor) checkpoint(ctx context.Context, mode engine.CheckpointMode, logResult bool) error {
	label := fmt.Sprintf("Checkpoint (%s)", strings.ToLower(string(mode)))
	var res engine.CheckpointResult
	err := x.d.Step(ctx, label, func(ctx context.Context) error {
		var err error
		res, err = x.st.Checkpoint(ctx, mode)
		if err == nil {
			tracing.RecordCheckpoint(ctx, res)
		}
		return err
	})
	if err != nil || !logResult {
		return err
	}
	if res.LogFrames != res.CheckpointedFrames {
		return x.d.Note(ctx, fmt.Sprintf("Written to WAL: %d Moved to DB: %d", res.LogFrames, res.CheckpointedFrames))
	}
	return x.d.Note(ctx, fmt.Sprintf("WAL to DB: %d", res.CheckpointedFrames))
}

func (x executor) incrementalVacuum(ctx context.Context, pages int) error {
	return x.d.Step(ctx, fmt.Sprintf("incremental_vacuum(%d)", pages), func(ctx context.Context) error {
		return x.st.IncrementalVacuum(ctx, pages)
	})
}

func (x executor) pageUsage(ctx context.Context) (engine.PageUsage, error) {
	usage, err := x.st.PageUsage(ctx)
	if err != nil {
		return engine.PageUsage{}, err
	}
	tracing.RecordPageUsage(ctx, usage)
	return usage, x.d.Note(ctx, fmt.Sprintf("Pages Used:%d Free:%d", usage.Used, usage.Free))
}

// vacuumUntilEmpty releases s.Pages free pages per round until the freelist is
// empty or the iteration bound is hit.
func (x executor) vacuumUntilEmpty(ctx context.Context, s Step) error {
	limit := s.MaxIterations
	if limit == 0 {
		limit = DefaultMaxIterations
	}
	for i := 0; i < limit; i++ {
		usage, err := x.pageUsage(ctx)
		if err != nil {
			return err
		}
		if usage.Free == 0 {
			return nil
		}
		if err := x.incrementalVacuum(ctx, s.Pages); err != nil {
			return err
		}
		if err := x.roundCheckpoint(ctx, s); err != nil {
			return err
		}
	}
	return nil
}

// vacuumInSteps runs free/s.Pages+1 rounds of s.Pages pages each, with the
// free count taken once up front.
func (x executor) vacuumInSteps(ctx context.Context, s Step) error {
	usage, err := x.pageUsage(ctx)
	if err != nil {
		return err
	}
	rounds := int(usage.Free)/s.Pages + 1
	if s.MaxIterations > 0 && rounds > s.MaxIterations {
		rounds = s.MaxIterations
	}
	for i := 0; i < rounds; i++ {
		if err := x.incrementalVacuum(ctx, s.Pages); err != nil {
			return err
		}
		if err := x.roundCheckpoint(ctx, s); err != nil {
			return err
		}
	}
	return nil
}

func (x executor) roundCheckpoint(ctx context.Context, s Step) error {
	if s.Checkpoint == "" {
		return nil
	}
	mode, err := engine.ParseCheckpointMode(s.Checkpoint)
	if err != nil {
		return err
	}
	return x.checkpoint(ctx, mode, s.LogResult)
}
