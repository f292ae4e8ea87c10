package trace

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"
)

// TimestampLayout is the timestamp format used in the CSV table.
const TimestampLayout = time.RFC3339Nano

var csvHeader = []string{"timestamp", "db size", "shm size", "wal size", "tmp dir size", "note"}

// WriteCSV writes the entries as a delimited table in their current order.
// Event rows leave the four size columns empty and carry the label as note.
func (t *Trace) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for i, entry := range t.entries {
		row, err := csvRow(entry)
		if err != nil {
			return fmt.Errorf("entry %d: %w", i, err)
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write csv row %d: %w", i, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func csvRow(entry Entry) ([]string, error) {
	switch entry.Kind {
	case KindSample:
		s := entry.Sample
		if s == nil {
			return nil, fmt.Errorf("sample entry without sample")
		}
		return []string{
			s.Timestamp.Format(TimestampLayout),
			strconv.FormatInt(s.MainBytes, 10),
			strconv.FormatInt(s.SHMBytes, 10),
			strconv.FormatInt(s.WALBytes, 10),
			strconv.FormatInt(s.TempDirBytes, 10),
			"",
		}, nil
	case KindEvent:
		e := entry.Event
		if e == nil {
			return nil, fmt.Errorf("event entry without event")
		}
		return []string{e.Timestamp.Format(TimestampLayout), "", "", "", "", e.Label}, nil
	default:
		return nil, fmt.Errorf("unsupported entry kind %s", entry.Kind)
	}
}
