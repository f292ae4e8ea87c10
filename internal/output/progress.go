package output

import (
	"fmt"
	"io"
	"strings"
	"sync/atomic"
	"time"

	"github.com/torosent/walwatch/internal/metrics"
	"github.com/torosent/walwatch/internal/trace"
)

// ProgressReporter displays real-time progress updates.
type ProgressReporter struct {
	collector *metrics.Collector
	ticker    *time.Ticker
	done      chan struct{}
	finished  chan struct{}
	writer    io.Writer
	active    int32
	start     time.Time
}

// NewProgressReporter creates a progress reporter that updates at the given interval.
func NewProgressReporter(collector *metrics.Collector, interval time.Duration, writer io.Writer) *ProgressReporter {
	if writer == nil {
		writer = io.Discard
	}
	return &ProgressReporter{
		collector: collector,
		ticker:    time.NewTicker(interval),
		done:      make(chan struct{}),
		finished:  make(chan struct{}),
		writer:    writer,
		start:     time.Now(),
	}
}

// Start begins displaying progress updates in a background goroutine.
func (p *ProgressReporter) Start() {
	if !atomic.CompareAndSwapInt32(&p.active, 0, 1) {
		return // already running
	}
	go p.run()
}

// Stop halts progress updates and terminates the status line.
func (p *ProgressReporter) Stop() {
	if atomic.CompareAndSwapInt32(&p.active, 1, 0) {
		close(p.done)
		p.ticker.Stop()
		<-p.finished
		fmt.Fprintln(p.writer)
	}
}

func (p *ProgressReporter) run() {
	defer close(p.finished)
	for {
		select {
		case <-p.ticker.C:
			fmt.Fprint(p.writer, "\r"+ProgressLine(p.collector.Stats(), p.collector.RecentEvents(), time.Since(p.start)))
		case <-p.done:
			return
		}
	}
}

// ProgressLine renders one status line from a collector view.
func ProgressLine(stats metrics.Stats, recent []trace.Event, elapsed time.Duration) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Elapsed: %s | Samples: %d | Events: %d", elapsed.Truncate(100*time.Millisecond), stats.Samples, stats.Events)
	if stats.HasLatest {
		for _, s := range metrics.AllSeries {
			fmt.Fprintf(&b, " | %s %s", s, FormatBytes(s.Value(stats.Latest)))
		}
	}
	if stats.SampleErrors > 0 {
		fmt.Fprintf(&b, " | Errors: %d", stats.SampleErrors)
	}
	if n := len(recent); n > 0 {
		fmt.Fprintf(&b, " | Last: %s", recent[n-1].Label)
	}
	return b.String()
}

// FormatBytes renders a size with decimal units, matching threshold suffixes.
func FormatBytes(n int64) string {
	const unit = 1000
	if n < unit && n > -unit {
		return fmt.Sprintf("%dB", n)
	}
	v := float64(n)
	for _, suffix := range []string{"KB", "MB", "GB"} {
		v /= unit
		if v < unit && v > -unit {
			return fmt.Sprintf("%.1f%s", v, suffix)
		}
	}
	return fmt.Sprintf("%.1fTB", v/unit)
}
