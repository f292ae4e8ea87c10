package metrics

import (
	"fmt"
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"

	"github.com/torosent/walwatch/internal/trace"
)

// Series names one of the four sampled sizes.
type Series string

const (
	SeriesDB  Series = "db"
	SeriesSHM Series = "shm"
	SeriesWAL Series = "wal"
	SeriesTmp Series = "tmp"
)

// AllSeries lists the series in display order.
var AllSeries = []Series{SeriesDB, SeriesSHM, SeriesWAL, SeriesTmp}

// ParseSeries accepts a series name.
func ParseSeries(s string) (Series, error) {
	for _, series := range AllSeries {
		if string(series) == s {
			return series, nil
		}
	}
	return "", fmt.Errorf("unknown series %q", s)
}

// Value extracts the series from a sample.
func (s Series) Value(sample trace.Sample) int64 {
	switch s {
	case SeriesDB:
		return sample.MainBytes
	case SeriesSHM:
		return sample.SHMBytes
	case SeriesWAL:
		return sample.WALBytes
	case SeriesTmp:
		return sample.TempDirBytes
	default:
		return 0
	}
}

const (
	// Sizes are tracked up to 1 TiB with 3 significant figures.
	highestTrackableBytes = 1 << 40
	defaultHistory        = 300
	defaultRecentEvents   = 20
)

type seriesStats struct {
	hist  *hdrhistogram.Histogram
	min   int64
	max   int64
	sum   int64
	count int64
	last  int64
}

func newSeriesStats() *seriesStats {
	return &seriesStats{hist: hdrhistogram.New(1, highestTrackableBytes, 3)}
}

func (s *seriesStats) record(v int64) {
	if v < 0 {
		v = 0
	}
	clamped := v
	if clamped > s.hist.HighestTrackableValue() {
		clamped = s.hist.HighestTrackableValue()
	}
	_ = s.hist.RecordValue(clamped)
	if s.count == 0 || v < s.min {
		s.min = v
	}
	if v > s.max {
		s.max = v
	}
	s.sum += v
	s.count++
	s.last = v
}

func (s *seriesStats) snapshot() SeriesStats {
	out := SeriesStats{Min: s.min, Max: s.max, Last: s.last}
	if s.count > 0 {
		out.Mean = s.sum / s.count
		out.P50 = s.hist.ValueAtQuantile(50)
		out.P90 = s.hist.ValueAtQuantile(90)
		out.P99 = s.hist.ValueAtQuantile(99)
	}
	return out
}

// Collector aggregates the samples and events of one monitored run. It is an
// observer of the monitor and safe for concurrent readers.
type Collector struct {
	mu           sync.Mutex
	series       map[Series]*seriesStats
	samples      int64
	events       int64
	sampleErrors int64
	errorsByType map[string]int64

	history       []trace.Sample
	historyCap    int
	recent        []trace.Event
	recentCap     int
	first, latest time.Time
}

// Stats is a point-in-time view used by the progress line and the dashboard.
type Stats struct {
	Samples      int64
	Events       int64
	SampleErrors int64
	Latest       trace.Sample
	HasLatest    bool
	Elapsed      time.Duration
}

// SeriesStats summarizes one series in bytes.
type SeriesStats struct {
	Min  int64 `json:"min"`
	Max  int64 `json:"max"`
	Mean int64 `json:"avg"`
	P50  int64 `json:"p50"`
	P90  int64 `json:"p90"`
	P99  int64 `json:"p99"`
	Last int64 `json:"last"`
}

// Summary is the end-of-run aggregate.
type Summary struct {
	Samples      int64                  `json:"samples"`
	Events       int64                  `json:"events"`
	SampleErrors int64                  `json:"sample_errors"`
	Duration     time.Duration          `json:"-"`
	DurationMs   float64                `json:"duration_ms"`
	Series       map[Series]SeriesStats `json:"series"`
	Errors       map[string]int         `json:"errors,omitempty"`
}

// NewCollector creates an empty collector.
func NewCollector() *Collector {
	c := &Collector{
		series:       make(map[Series]*seriesStats, len(AllSeries)),
		errorsByType: make(map[string]int64),
		historyCap:   defaultHistory,
		recentCap:    defaultRecentEvents,
	}
	for _, s := range AllSeries {
		c.series[s] = newSeriesStats()
	}
	return c
}

// ObserveSample records one sample.
func (c *Collector) ObserveSample(s trace.Sample) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, series := range AllSeries {
		c.series[series].record(series.Value(s))
	}
	c.samples++
	if c.first.IsZero() {
		c.first = s.Timestamp
	}
	c.latest = s.Timestamp

	c.history = append(c.history, s)
	if len(c.history) > c.historyCap {
		c.history = append(c.history[:0], c.history[len(c.history)-c.historyCap:]...)
	}
}

// ObserveEvent records one event.
func (c *Collector) ObserveEvent(e trace.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.events++
	c.recent = append(c.recent, e)
	if len(c.recent) > c.recentCap {
		c.recent = append(c.recent[:0], c.recent[len(c.recent)-c.recentCap:]...)
	}
}

// ObserveSampleError counts a failed sample by error type.
func (c *Collector) ObserveSampleError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.sampleErrors++
	c.errorsByType[ErrorName(err)]++
}

// Stats returns the live view.
func (c *Collector) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := Stats{
		Samples:      c.samples,
		Events:       c.events,
		SampleErrors: c.sampleErrors,
	}
	if n := len(c.history); n > 0 {
		st.Latest = c.history[n-1]
		st.HasLatest = true
		st.Elapsed = c.latest.Sub(c.first)
	}
	return st
}

// History returns the retained samples, oldest first.
func (c *Collector) History() []trace.Sample {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]trace.Sample(nil), c.history...)
}

// RecentEvents returns the retained events, oldest first.
func (c *Collector) RecentEvents() []trace.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]trace.Event(nil), c.recent...)
}

// Summary computes the aggregate over every observed sample.
func (c *Collector) Summary() Summary {
	c.mu.Lock()
	defer c.mu.Unlock()

	sum := Summary{
		Samples:      c.samples,
		Events:       c.events,
		SampleErrors: c.sampleErrors,
		Duration:     c.latest.Sub(c.first),
		Series:       make(map[Series]SeriesStats, len(c.series)),
	}
	sum.DurationMs = float64(sum.Duration) / float64(time.Millisecond)
	for name, s := range c.series {
		sum.Series[name] = s.snapshot()
	}
	if len(c.errorsByType) > 0 {
		sum.Errors = make(map[string]int, len(c.errorsByType))
		for k, v := range c.errorsByType {
			sum.Errors[k] = int(v)
		}
	}
	return sum
}
