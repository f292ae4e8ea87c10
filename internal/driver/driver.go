// Package driver runs scenario steps against the storage engine and announces
// each one to the monitor as a timestamped event.
package driver

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/torosent/walwatch/internal/events"
	"github.com/torosent/walwatch/internal/logging"
	"github.com/torosent/walwatch/internal/tracing"
)

const (
	DefaultSettleBefore = 3 * time.Second
	DefaultSettleAfter  = 400 * time.Millisecond
)

// ErrOpenTransaction is returned by Finish when the engine still holds an open
// transaction.
var ErrOpenTransaction = errors.New("transaction still open at end of scenario")

// Transactional reports whether a storage handle is inside a transaction.
type Transactional interface {
	InTransaction() bool
}

// Pauser blocks before a step until the operator lets it proceed.
type Pauser interface {
	Pause(ctx context.Context, prompt string) error
}

// NoPause never blocks.
type NoPause struct{}

func (NoPause) Pause(context.Context, string) error { return nil }

// PromptPauser prints the prompt and waits for a line on In.
type PromptPauser struct {
	In  io.Reader
	Out io.Writer

	scanner *bufio.Scanner
}

func (p *PromptPauser) Pause(ctx context.Context, prompt string) error {
	if p.scanner == nil {
		p.scanner = bufio.NewScanner(p.In)
	}
	if p.Out != nil {
		fmt.Fprintf(p.Out, "%s: press enter to continue", prompt)
	}

	done := make(chan error, 1)
	go func() {
		if p.scanner.Scan() {
			done <- nil
			return
		}
		if err := p.scanner.Err(); err != nil {
			done <- err
			return
		}
		done <- io.EOF
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Options configure a Driver.
type Options struct {
	SettleBefore time.Duration // pause before the event is emitted; defaults to DefaultSettleBefore
	SettleAfter  time.Duration // pause between the event and the operation; defaults to DefaultSettleAfter
	Pauser       Pauser
	Tracer       trace.Tracer
	Logger       *slog.Logger
	Sleep        func(ctx context.Context, d time.Duration) error
}

func (o *Options) normalize() {
	if o.SettleBefore < 0 {
		o.SettleBefore = 0
	}
	if o.SettleAfter < 0 {
		o.SettleAfter = 0
	}
	if o.Pauser == nil {
		o.Pauser = NoPause{}
	}
	if o.Tracer == nil {
		o.Tracer = noop.NewTracerProvider().Tracer("walwatch")
	}
	if o.Logger == nil {
		o.Logger = logging.NewNop()
	}
	if o.Sleep == nil {
		o.Sleep = sleepContext
	}
}

// DefaultOptions returns options with the reference settle times.
func DefaultOptions() Options {
	return Options{
		SettleBefore: DefaultSettleBefore,
		SettleAfter:  DefaultSettleAfter,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Driver sequences steps and emits their events.
type Driver struct {
	engine Transactional
	tx     *events.Sender
	opt    Options
}

// New creates a driver. engine may be nil when no open-transaction check is
// wanted.
func New(engine Transactional, tx *events.Sender, opt Options) *Driver {
	opt.normalize()
	return &Driver{engine: engine, tx: tx, opt: opt}
}

// Title names the run.
func (d *Driver) Title(ctx context.Context, title string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.opt.Logger.Info("scenario", "title", title)
	return d.tx.Title(title)
}

// Step waits for the operator, settles, emits label, settles again and runs
// fn. The event is always emitted before fn starts.
func (d *Driver) Step(ctx context.Context, label string, fn func(ctx context.Context) error) (err error) {
	if err := d.opt.Pauser.Pause(ctx, "Before "+label); err != nil {
		return fmt.Errorf("pause before %q: %w", label, err)
	}
	if err := d.emit(ctx, label); err != nil {
		return err
	}

	ctx, span := tracing.StartStepSpan(ctx, d.opt.Tracer, label)
	defer func() { tracing.EndSpan(span, err) }()

	if fn == nil {
		return nil
	}
	start := time.Now()
	if err = fn(ctx); err != nil {
		d.opt.Logger.Error("step failed", "step", label, "error", err)
		return fmt.Errorf("%s: %w", label, err)
	}
	d.opt.Logger.Debug("step done", "step", label, "elapsed", time.Since(start))
	return nil
}

// Note emits label without running an operation.
func (d *Driver) Note(ctx context.Context, label string) error {
	return d.emit(ctx, label)
}

func (d *Driver) emit(ctx context.Context, label string) error {
	if err := d.opt.Sleep(ctx, d.opt.SettleBefore); err != nil {
		return err
	}
	d.opt.Logger.Info("action", "label", label)
	if err := d.tx.Event(label); err != nil {
		return fmt.Errorf("emit %q: %w", label, err)
	}
	return d.opt.Sleep(ctx, d.opt.SettleAfter)
}

// Finish fails with ErrOpenTransaction when the engine is still inside a
// transaction.
func (d *Driver) Finish(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if d.engine != nil && d.engine.InTransaction() {
		return ErrOpenTransaction
	}
	return nil
}
