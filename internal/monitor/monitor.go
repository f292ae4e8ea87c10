package monitor

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/torosent/walwatch/internal/events"
	"github.com/torosent/walwatch/internal/logging"
	"github.com/torosent/walwatch/internal/sampler"
	"github.com/torosent/walwatch/internal/trace"
)

// DefaultInterval is the sampling period.
const DefaultInterval = 200 * time.Millisecond

// ErrAlreadyStarted is returned by Start on a monitor that was started before.
var ErrAlreadyStarted = errors.New("monitor already started")

// State is the lifecycle position of a Monitor.
type State int32

const (
	NotStarted State = iota
	Running
	Stopping
	Stopped
)

func (s State) String() string {
	switch s {
	case NotStarted:
		return "not-started"
	case Running:
		return "running"
	case Stopping:
		return "stopping"
	case Stopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// StopSignal is a one-shot flag raised by the controller and read by the
// monitor loop.
type StopSignal struct {
	once sync.Once
	done chan struct{}
}

// NewStopSignal returns an unfired signal.
func NewStopSignal() *StopSignal {
	return &StopSignal{done: make(chan struct{})}
}

// Fire raises the signal. Later calls have no effect.
func (s *StopSignal) Fire() {
	s.once.Do(func() { close(s.done) })
}

// Fired reports whether Fire was called.
func (s *StopSignal) Fired() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// Done is closed once the signal fires.
func (s *StopSignal) Done() <-chan struct{} {
	return s.done
}

// Options configure a monitor run.
type Options struct {
	Sampler    sampler.Sampler
	Receiver   *events.Receiver
	OutputBase string        // artifacts are written to OutputBase.csv and OutputBase.json
	Interval   time.Duration // defaults to DefaultInterval
	RunID      string
	Logger     *slog.Logger
	Observer   Observer
	// Sleep waits between ticks. The default returns early when the stop
	// signal fires.
	Sleep func(time.Duration)
}

func (o *Options) normalize() {
	if o.Interval <= 0 {
		o.Interval = DefaultInterval
	}
	if o.Logger == nil {
		o.Logger = logging.NewNop()
	}
	if o.Observer == nil {
		o.Observer = nopObserver{}
	}
}

// Run is the monitor loop. It returns after stop fires, with the finalized
// trace and the paths of the persisted artifacts.
func Run(stop *StopSignal, rx *events.Receiver, opts Options) (*trace.Trace, trace.Artifacts, error) {
	tr, _, artifacts, err := run(stop, rx, opts)
	return tr, artifacts, err
}

func run(stop *StopSignal, rx *events.Receiver, opts Options) (*trace.Trace, int64, trace.Artifacts, error) {
	opts.normalize()
	if opts.Sampler == nil {
		return nil, 0, trace.Artifacts{}, errors.New("monitor: sampler is required")
	}
	if opts.OutputBase == "" {
		return nil, 0, trace.Artifacts{}, errors.New("monitor: output base is required")
	}

	sleep := opts.Sleep
	if sleep == nil {
		sleep = func(d time.Duration) {
			timer := time.NewTimer(d)
			defer timer.Stop()
			select {
			case <-timer.C:
			case <-stop.Done():
			}
		}
	}

	tr := trace.New(opts.RunID)
	var sampleErrors int64
	log := opts.Logger.With("output", opts.OutputBase)
	log.Debug("monitor started", "interval", opts.Interval)

	for {
		drain(tr, rx, opts.Observer, log)

		s, err := opts.Sampler.Sample()
		if err != nil {
			sampleErrors++
			log.Warn("sample failed", "error", err)
			opts.Observer.ObserveSampleError(err)
		} else {
			_ = tr.AddSample(s)
			opts.Observer.ObserveSample(s)
		}

		sleep(opts.Interval)
		if stop.Fired() {
			break
		}
	}

	drain(tr, rx, opts.Observer, log)
	artifacts, err := tr.Persist(opts.OutputBase)
	if err != nil {
		log.Error("persist trace", "error", err)
		return tr, sampleErrors, trace.Artifacts{}, err
	}
	log.Debug("monitor stopped",
		"entries", tr.Len(),
		"sample_errors", sampleErrors,
		"csv", artifacts.CSVPath,
	)
	return tr, sampleErrors, artifacts, nil
}

func drain(tr *trace.Trace, rx *events.Receiver, obs Observer, log *slog.Logger) {
	if rx == nil {
		return
	}
	for _, msg := range rx.TryReceiveAll() {
		switch msg.Kind {
		case events.MessageTitle:
			tr.SetTitle(msg.Title)
		case events.MessageEvent:
			_ = tr.AddEvent(msg.Event)
			obs.ObserveEvent(msg.Event)
		default:
			log.Warn("ignoring unknown message", "kind", msg.Kind.String())
		}
	}
}

// Monitor runs the loop on its own goroutine.
type Monitor struct {
	opts  Options
	stop  *StopSignal
	state atomic.Int32
	done  chan struct{}

	trace        *trace.Trace
	artifacts    trace.Artifacts
	sampleErrors atomic.Int64
	err          error
}

// New creates a monitor that has not been started.
func New(opts Options) *Monitor {
	return &Monitor{
		opts: opts,
		stop: NewStopSignal(),
		done: make(chan struct{}),
	}
}

// Start launches the loop.
func (m *Monitor) Start() error {
	if !m.state.CompareAndSwap(int32(NotStarted), int32(Running)) {
		return ErrAlreadyStarted
	}
	go func() {
		defer close(m.done)
		tr, sampleErrors, artifacts, err := run(m.stop, m.opts.Receiver, m.opts)
		m.trace, m.artifacts, m.err = tr, artifacts, err
		m.sampleErrors.Store(sampleErrors)
		m.state.Store(int32(Stopped))
	}()
	return nil
}

// Stop asks the loop to finish. It does not wait; see Wait. Stopping a monitor
// that never started moves it straight to Stopped without writing anything.
func (m *Monitor) Stop() {
	if m.state.CompareAndSwap(int32(NotStarted), int32(Stopped)) {
		m.stop.Fire()
		close(m.done)
		return
	}
	m.state.CompareAndSwap(int32(Running), int32(Stopping))
	m.stop.Fire()
}

// Wait blocks until the loop has persisted its trace and returns the
// persistence error, if any.
func (m *Monitor) Wait() error {
	<-m.done
	return m.err
}

// StopAndWait is Stop followed by Wait.
func (m *Monitor) StopAndWait() error {
	m.Stop()
	return m.Wait()
}

// State returns the current lifecycle state.
func (m *Monitor) State() State {
	return State(m.state.Load())
}

// Trace returns the finalized trace once the monitor is stopped, nil before.
func (m *Monitor) Trace() *trace.Trace {
	if m.State() != Stopped {
		return nil
	}
	<-m.done
	return m.trace
}

// Artifacts returns the persisted paths once the monitor is stopped.
func (m *Monitor) Artifacts() trace.Artifacts {
	if m.State() != Stopped {
		return trace.Artifacts{}
	}
	<-m.done
	return m.artifacts
}

// SampleErrors returns the number of failed samples, known once stopped.
func (m *Monitor) SampleErrors() int64 {
	return m.sampleErrors.Load()
}
