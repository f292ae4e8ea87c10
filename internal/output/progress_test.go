package output

import (
	"bytes"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/torosent/walwatch/internal/metrics"
	"github.com/torosent/walwatch/internal/trace"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestProgressLine(t *testing.T) {
	stats := metrics.Stats{
		Samples:      12,
		Events:       2,
		SampleErrors: 1,
		HasLatest:    true,
		Latest:       trace.Sample{MainBytes: 4096, SHMBytes: 32768, WALBytes: 64_000_000, TempDirBytes: 0},
	}
	recent := []trace.Event{{Label: "Writing 100 rows"}, {Label: "Checkpoint (truncate)"}}

	line := ProgressLine(stats, recent, 2345*time.Millisecond)

	for _, want := range []string{"Elapsed: 2.3s", "Samples: 12", "Events: 2", "db 4.1KB", "shm 32.8KB", "wal 64.0MB", "tmp 0B", "Errors: 1", "Last: Checkpoint (truncate)"} {
		if !strings.Contains(line, want) {
			t.Errorf("ProgressLine() = %q, missing %q", line, want)
		}
	}
}

func TestProgressLineBeforeFirstSample(t *testing.T) {
	line := ProgressLine(metrics.Stats{}, nil, 0)
	if strings.Contains(line, "wal") || strings.Contains(line, "Last:") {
		t.Errorf("ProgressLine() = %q, want no sizes or events", line)
	}
}

func TestProgressReporterBasic(t *testing.T) {
	collector := metrics.NewCollector()
	reporter := NewProgressReporter(collector, 100*time.Millisecond, nil)
	if reporter == nil {
		t.Fatal("Expected non-nil reporter")
	}
	// Stop without Start is a no-op.
	reporter.Stop()
}

func TestProgressReporterFormatting(t *testing.T) {
	collector := metrics.NewCollector()
	collector.ObserveSample(trace.Sample{Timestamp: time.Now(), WALBytes: 1500})
	collector.ObserveEvent(trace.Event{Timestamp: time.Now(), Label: "vacuum"})

	var buf syncBuffer
	reporter := NewProgressReporter(collector, 20*time.Millisecond, &buf)
	reporter.Start()
	reporter.Start()

	time.Sleep(100 * time.Millisecond)
	reporter.Stop()
	reporter.Stop()

	output := buf.String()
	if !strings.Contains(output, "Samples: 1") || !strings.Contains(output, "Last: vacuum") {
		t.Errorf("unexpected progress output %q", output)
	}
	if !strings.HasSuffix(output, "\n") {
		t.Error("Stop should terminate the status line")
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{0, "0B"},
		{999, "999B"},
		{1000, "1.0KB"},
		{1_500_000, "1.5MB"},
		{2_000_000_000, "2.0GB"},
		{3_000_000_000_000, "3.0TB"},
	}
	for _, tt := range tests {
		if got := FormatBytes(tt.in); got != tt.want {
			t.Errorf("FormatBytes(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
