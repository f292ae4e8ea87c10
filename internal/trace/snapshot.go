package trace

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/tidwall/gjson"
)

const (
	snapshotFormat  = "walwatch-trace"
	snapshotVersion = 1
)

// ErrUnsupportedSnapshot is returned when a snapshot has an unknown format or version.
var ErrUnsupportedSnapshot = errors.New("unsupported trace snapshot")

type snapshotDoc struct {
	Format  string          `json:"format"`
	Version int             `json:"version"`
	RunID   string          `json:"run_id,omitempty"`
	Title   string          `json:"title"`
	Entries []snapshotEntry `json:"entries"`
}

type snapshotEntry struct {
	Kind      string    `json:"kind"`
	Timestamp time.Time `json:"timestamp"`
	DB        *int64    `json:"db,omitempty"`
	SHM       *int64    `json:"shm,omitempty"`
	WAL       *int64    `json:"wal,omitempty"`
	TempDir   *int64    `json:"tmp_dir,omitempty"`
	Label     *string   `json:"label,omitempty"`
}

// MarshalSnapshot serializes the title and the entries in their current order.
func (t *Trace) MarshalSnapshot() ([]byte, error) {
	doc := snapshotDoc{
		Format:  snapshotFormat,
		Version: snapshotVersion,
		RunID:   t.RunID,
		Title:   t.title,
		Entries: make([]snapshotEntry, 0, len(t.entries)),
	}
	for i, entry := range t.entries {
		switch entry.Kind {
		case KindSample:
			s := *entry.Sample
			doc.Entries = append(doc.Entries, snapshotEntry{
				Kind:      KindSample.String(),
				Timestamp: s.Timestamp,
				DB:        &s.MainBytes,
				SHM:       &s.SHMBytes,
				WAL:       &s.WALBytes,
				TempDir:   &s.TempDirBytes,
			})
		case KindEvent:
			e := *entry.Event
			doc.Entries = append(doc.Entries, snapshotEntry{
				Kind:      KindEvent.String(),
				Timestamp: e.Timestamp,
				Label:     &e.Label,
			})
		default:
			return nil, fmt.Errorf("entry %d: unsupported kind %s", i, entry.Kind)
		}
	}
	return json.MarshalIndent(doc, "", "  ")
}

// LoadSnapshot rebuilds a finalized trace from MarshalSnapshot output.
func LoadSnapshot(data []byte) (*Trace, error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("%w: invalid JSON", ErrUnsupportedSnapshot)
	}
	header := gjson.GetManyBytes(data, "format", "version")
	if header[0].String() != snapshotFormat {
		return nil, fmt.Errorf("%w: format %q", ErrUnsupportedSnapshot, header[0].String())
	}
	if header[1].Int() != snapshotVersion {
		return nil, fmt.Errorf("%w: version %d", ErrUnsupportedSnapshot, header[1].Int())
	}

	var doc snapshotDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}

	t := New(doc.RunID)
	t.title = doc.Title
	t.entries = make([]Entry, 0, len(doc.Entries))
	for i, raw := range doc.Entries {
		switch raw.Kind {
		case KindSample.String():
			t.entries = append(t.entries, SampleEntry(Sample{
				Timestamp:    raw.Timestamp,
				MainBytes:    deref(raw.DB),
				SHMBytes:     deref(raw.SHM),
				WALBytes:     deref(raw.WAL),
				TempDirBytes: deref(raw.TempDir),
			}))
		case KindEvent.String():
			label := ""
			if raw.Label != nil {
				label = *raw.Label
			}
			t.entries = append(t.entries, EventEntry(Event{Timestamp: raw.Timestamp, Label: label}))
		default:
			return nil, fmt.Errorf("%w: entry %d has kind %q", ErrUnsupportedSnapshot, i, raw.Kind)
		}
	}
	t.finalized = true
	return t, nil
}

func deref(v *int64) int64 {
	if v == nil {
		return 0
	}
	return *v
}
