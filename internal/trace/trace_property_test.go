package trace_test

import (
	"strconv"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/torosent/walwatch/internal/trace"
)

// TestProperty_FinalizeOrdering checks that any finalized trace is
// non-decreasing in timestamp and keeps insertion order among equal timestamps.
func TestProperty_FinalizeOrdering(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("finalized entries are sorted and stable", prop.ForAll(
		func(offsets []int) bool {
			tr := trace.New("")
			for i, off := range offsets {
				ts := base.Add(time.Duration(off) * time.Millisecond)
				if i%2 == 0 {
					_ = tr.AddSample(trace.Sample{Timestamp: ts, MainBytes: int64(i)})
				} else {
					_ = tr.AddEvent(trace.Event{Timestamp: ts, Label: strconv.Itoa(i)})
				}
			}
			tr.Finalize()

			entries := tr.Entries()
			if len(entries) != len(offsets) {
				return false
			}
			for i := 1; i < len(entries); i++ {
				prev, cur := entries[i-1].Timestamp(), entries[i].Timestamp()
				if cur.Before(prev) {
					return false
				}
				if cur.Equal(prev) && insertionIndex(entries[i-1]) > insertionIndex(entries[i]) {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.IntRange(0, 5)),
	))

	properties.Property("snapshot round trip preserves the entry sequence", prop.ForAll(
		func(offsets []int, title string) bool {
			tr := trace.New("run")
			tr.SetTitle(title)
			for i, off := range offsets {
				ts := base.Add(time.Duration(off) * time.Millisecond)
				if i%3 == 0 {
					_ = tr.AddEvent(trace.Event{Timestamp: ts, Label: title})
				} else {
					_ = tr.AddSample(trace.Sample{Timestamp: ts, WALBytes: int64(off)})
				}
			}
			tr.Finalize()

			data, err := tr.MarshalSnapshot()
			if err != nil {
				return false
			}
			loaded, err := trace.LoadSnapshot(data)
			if err != nil || loaded.Title() != title || loaded.Len() != tr.Len() {
				return false
			}
			want, got := tr.Entries(), loaded.Entries()
			for i := range want {
				if want[i].Kind != got[i].Kind || !want[i].Timestamp().Equal(got[i].Timestamp()) {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.IntRange(0, 1000)),
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}

// insertionIndex recovers the insertion position stored in an entry payload.
func insertionIndex(e trace.Entry) int {
	if e.Kind == trace.KindSample {
		return int(e.Sample.MainBytes)
	}
	i, err := strconv.Atoi(e.Event.Label)
	if err != nil {
		return -1
	}
	return i
}
