package trace

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

// ErrFinalized is returned when an entry is added to a finalized trace.
var ErrFinalized = errors.New("trace is finalized")

// Kind discriminates the entry types stored in a Trace.
type Kind int

const (
	KindSample Kind = iota + 1
	KindEvent
)

func (k Kind) String() string {
	switch k {
	case KindSample:
		return "sample"
	case KindEvent:
		return "event"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Sample is one filesystem usage observation of the watched paths.
type Sample struct {
	Timestamp    time.Time `json:"timestamp"`
	MainBytes    int64     `json:"db"`
	SHMBytes     int64     `json:"shm"`
	WALBytes     int64     `json:"wal"`
	TempDirBytes int64     `json:"tmp_dir"`
}

// Event is a named occurrence raised by the scenario driver.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	Label     string    `json:"label"`
}

// Entry is a tagged union of Sample and Event.
type Entry struct {
	Kind   Kind
	Sample *Sample
	Event  *Event
}

// SampleEntry wraps s as an Entry.
func SampleEntry(s Sample) Entry {
	return Entry{Kind: KindSample, Sample: &s}
}

// EventEntry wraps e as an Entry.
func EventEntry(e Event) Entry {
	return Entry{Kind: KindEvent, Event: &e}
}

// Timestamp returns the capture time of the wrapped value.
func (e Entry) Timestamp() time.Time {
	switch e.Kind {
	case KindSample:
		if e.Sample != nil {
			return e.Sample.Timestamp
		}
	case KindEvent:
		if e.Event != nil {
			return e.Event.Timestamp
		}
	}
	return time.Time{}
}

// Trace is the ordered collection of entries produced by one monitored run.
// It is not safe for concurrent use; the monitor owns it for its lifetime.
type Trace struct {
	RunID     string
	title     string
	entries   []Entry
	finalized bool
}

// New creates an empty trace.
func New(runID string) *Trace {
	return &Trace{RunID: runID}
}

// SetTitle sets the trace title. The last call wins.
func (t *Trace) SetTitle(title string) {
	t.title = title
}

// Title returns the trace title, empty when none was set.
func (t *Trace) Title() string {
	return t.title
}

// AddSample appends a sample entry.
func (t *Trace) AddSample(s Sample) error {
	return t.add(SampleEntry(s))
}

// AddEvent appends an event entry.
func (t *Trace) AddEvent(e Event) error {
	return t.add(EventEntry(e))
}

func (t *Trace) add(entry Entry) error {
	if t.finalized {
		return ErrFinalized
	}
	t.entries = append(t.entries, entry)
	return nil
}

// Len returns the number of entries.
func (t *Trace) Len() int {
	return len(t.entries)
}

// Entries returns a copy of the entries in their current order.
func (t *Trace) Entries() []Entry {
	return append([]Entry(nil), t.entries...)
}

// Samples returns the sample entries in their current order.
func (t *Trace) Samples() []Sample {
	var out []Sample
	for _, e := range t.entries {
		if e.Kind == KindSample && e.Sample != nil {
			out = append(out, *e.Sample)
		}
	}
	return out
}

// Events returns the event entries in their current order.
func (t *Trace) Events() []Event {
	var out []Event
	for _, e := range t.entries {
		if e.Kind == KindEvent && e.Event != nil {
			out = append(out, *e.Event)
		}
	}
	return out
}

// Finalized reports whether Finalize has been called.
func (t *Trace) Finalized() bool {
	return t.finalized
}

// Finalize sorts the entries by timestamp and makes the trace immutable.
// Entries with equal timestamps keep their insertion order.
func (t *Trace) Finalize() {
	if t.finalized {
		return
	}
	sort.SliceStable(t.entries, func(i, j int) bool {
		return t.entries[i].Timestamp().Before(t.entries[j].Timestamp())
	})
	t.finalized = true
}
