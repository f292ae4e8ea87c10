package metrics_test

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/torosent/walwatch/internal/metrics"
	"github.com/torosent/walwatch/internal/sampler"
	"github.com/torosent/walwatch/internal/trace"
)

var base = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func sample(ms int, db, wal int64) trace.Sample {
	return trace.Sample{Timestamp: base.Add(time.Duration(ms) * time.Millisecond), MainBytes: db, WALBytes: wal}
}

func TestCollectorSeriesStats(t *testing.T) {
	c := metrics.NewCollector()
	for i := 1; i <= 5; i++ {
		c.ObserveSample(sample(i*200, int64(i)*1000, 0))
	}

	sum := c.Summary()
	if sum.Samples != 5 {
		t.Errorf("expected 5 samples, got %d", sum.Samples)
	}
	db := sum.Series[metrics.SeriesDB]
	if db.Min != 1000 || db.Max != 5000 || db.Mean != 3000 || db.Last != 5000 {
		t.Errorf("unexpected db stats %+v", db)
	}
	if db.P50 < 2990 || db.P50 > 3010 {
		t.Errorf("expected p50 ~3000, got %d", db.P50)
	}
	if sum.Duration != 800*time.Millisecond {
		t.Errorf("expected duration 800ms, got %s", sum.Duration)
	}
	if wal := sum.Series[metrics.SeriesWAL]; wal.Max != 0 {
		t.Errorf("expected empty wal series, got %+v", wal)
	}
}

func TestPercentiles(t *testing.T) {
	c := metrics.NewCollector()
	for i := 1; i <= 100; i++ {
		c.ObserveSample(sample(i, 0, int64(i)*1_000_000))
	}
	wal := c.Summary().Series[metrics.SeriesWAL]

	within := func(got, want int64) bool {
		diff := got - want
		if diff < 0 {
			diff = -diff
		}
		return diff <= want/100
	}
	if !within(wal.P50, 50_000_000) {
		t.Errorf("expected P50 ~50MB, got %d", wal.P50)
	}
	if !within(wal.P90, 90_000_000) {
		t.Errorf("expected P90 ~90MB, got %d", wal.P90)
	}
	if !within(wal.P99, 99_000_000) {
		t.Errorf("expected P99 ~99MB, got %d", wal.P99)
	}
}

func TestHistoryIsBounded(t *testing.T) {
	c := metrics.NewCollector()
	for i := 0; i < 1000; i++ {
		c.ObserveSample(sample(i, int64(i), 0))
	}
	for i := 0; i < 50; i++ {
		c.ObserveEvent(trace.Event{Timestamp: base, Label: fmt.Sprintf("e%d", i)})
	}

	hist := c.History()
	if len(hist) != 300 {
		t.Fatalf("history length = %d, want 300", len(hist))
	}
	if hist[len(hist)-1].MainBytes != 999 {
		t.Fatalf("history does not end with the latest sample: %+v", hist[len(hist)-1])
	}
	recent := c.RecentEvents()
	if len(recent) != 20 || recent[19].Label != "e49" {
		t.Fatalf("unexpected recent events (%d), last %+v", len(recent), recent[len(recent)-1])
	}
	if c.Stats().Events != 50 {
		t.Fatalf("events counter = %d, want 50", c.Stats().Events)
	}
}

func TestSampleErrorBreakdown(t *testing.T) {
	c := metrics.NewCollector()
	c.ObserveSampleError(fmt.Errorf("%w: /tmp/x", sampler.ErrTempDirUnavailable))
	c.ObserveSampleError(fmt.Errorf("stat db: %w", &fs.PathError{Op: "stat", Path: "db", Err: fs.ErrPermission}))
	c.ObserveSampleError(&fs.PathError{Op: "stat", Path: "db", Err: errors.New("io")})
	c.ObserveSampleError(fmt.Errorf("%w: /tmp/x", sampler.ErrTempDirUnavailable))

	sum := c.Summary()
	if sum.SampleErrors != 4 {
		t.Fatalf("sample errors = %d, want 4", sum.SampleErrors)
	}
	rows := metrics.FlattenErrors(sum.Errors)
	if len(rows) != 3 {
		t.Fatalf("expected 3 buckets, got %+v", rows)
	}
	if rows[0].Name != "Temp directory unavailable" || rows[0].Count != 2 {
		t.Fatalf("unexpected top bucket %+v", rows[0])
	}
	if sum.Errors["Permission denied"] != 1 || sum.Errors["Stat failed"] != 1 {
		t.Fatalf("unexpected breakdown %v", sum.Errors)
	}
}

func TestStatsLatest(t *testing.T) {
	c := metrics.NewCollector()
	if c.Stats().HasLatest {
		t.Fatal("empty collector reports a latest sample")
	}
	c.ObserveSample(sample(0, 1, 2))
	c.ObserveSample(sample(400, 3, 4))
	st := c.Stats()
	if !st.HasLatest || st.Latest.MainBytes != 3 || st.Elapsed != 400*time.Millisecond {
		t.Fatalf("unexpected stats %+v", st)
	}
}

func TestSummaryJSON(t *testing.T) {
	c := metrics.NewCollector()
	c.ObserveSample(sample(0, 4096, 8192))
	data, err := json.Marshal(c.Summary())
	if err != nil {
		t.Fatalf("marshal summary: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatal(err)
	}
	series, ok := decoded["series"].(map[string]any)
	if !ok {
		t.Fatalf("missing series in %s", data)
	}
	wal, ok := series["wal"].(map[string]any)
	if !ok || wal["max"].(float64) != 8192 {
		t.Fatalf("unexpected wal summary in %s", data)
	}
}

func TestConcurrentObservers(t *testing.T) {
	c := metrics.NewCollector()
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			c.ObserveSample(sample(i, int64(i), int64(i)))
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			_ = c.Stats()
			_ = c.History()
		}
	}()
	wg.Wait()
	if got := c.Summary().Samples; got != 500 {
		t.Fatalf("samples = %d, want 500", got)
	}
}

func TestParseSeries(t *testing.T) {
	for _, s := range metrics.AllSeries {
		got, err := metrics.ParseSeries(string(s))
		if err != nil || got != s {
			t.Fatalf("ParseSeries(%q) = %q, %v", s, got, err)
		}
	}
	if _, err := metrics.ParseSeries("journal"); err == nil {
		t.Fatal("expected error for unknown series")
	}
}

func TestErrorName(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, "Unknown error"},
		{"temp dir", fmt.Errorf("sample: %w", sampler.ErrTempDirUnavailable), "Temp directory unavailable"},
		{"not exist", &fs.PathError{Op: "stat", Path: "x", Err: fs.ErrNotExist}, "File not found"},
		{"permission", &fs.PathError{Op: "open", Path: "x", Err: syscall.EACCES}, "Permission denied"},
		{"errno", &fs.PathError{Op: "stat", Path: "x", Err: syscall.EIO}, "I/O error"},
		{"unmapped errno", syscall.EBUSY, "Device or resource busy"},
		{"path op", &fs.PathError{Op: "readdirent", Path: "x", Err: errors.New("boom")}, "Readdirent failed"},
		{"plain", errors.New("boom"), "Error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := metrics.ErrorName(tt.err); got != tt.want {
				t.Errorf("ErrorName() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTypeLabel(t *testing.T) {
	tests := map[string]string{
		"*sqlite3.Error":                        "Error (sqlite3)",
		"github.com/mattn/go-sqlite3.ErrNoMask": "ErrNoMask (go-sqlite3)",
		"":                                      "Unknown error",
		"*fmt.wrapError":                        "Error",
		"main.failure":                          "Failure",
	}
	for in, want := range tests {
		if got := metrics.TypeLabel(in); got != want {
			t.Errorf("TypeLabel(%q) = %q, want %q", in, got, want)
		}
	}
}
