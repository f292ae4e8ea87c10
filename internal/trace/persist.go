package trace

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Artifacts names the files written by Persist.
type Artifacts struct {
	CSVPath      string `json:"csv_path"`
	SnapshotPath string `json:"snapshot_path"`
}

// Paths returns the artifact paths for base without writing anything.
func Paths(base string) Artifacts {
	return Artifacts{CSVPath: base + ".csv", SnapshotPath: base + ".json"}
}

// Persist finalizes the trace and writes the CSV table and the snapshot next
// to base. Each file is replaced atomically.
func (t *Trace) Persist(base string) (Artifacts, error) {
	t.Finalize()
	artifacts := Paths(base)

	if err := WriteFileAtomic(artifacts.CSVPath, t.WriteCSV); err != nil {
		return Artifacts{}, fmt.Errorf("persist csv: %w", err)
	}

	data, err := t.MarshalSnapshot()
	if err != nil {
		return Artifacts{}, fmt.Errorf("persist snapshot: %w", err)
	}
	err = WriteFileAtomic(artifacts.SnapshotPath, func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	})
	if err != nil {
		return Artifacts{}, fmt.Errorf("persist snapshot: %w", err)
	}
	return artifacts, nil
}

// LoadSnapshotFile reads a snapshot written by Persist.
func LoadSnapshotFile(path string) (*Trace, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return LoadSnapshot(data)
}

// WriteFileAtomic writes to a temporary file in the destination directory and
// renames it over path once write succeeded and the data is synced.
func WriteFileAtomic(path string, write func(io.Writer) error) (err error) {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	buf := bufio.NewWriter(tmp)
	if err = write(buf); err != nil {
		return err
	}
	if err = buf.Flush(); err != nil {
		return err
	}
	if err = tmp.Sync(); err != nil {
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	if err = os.Chmod(tmpName, 0o644); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
