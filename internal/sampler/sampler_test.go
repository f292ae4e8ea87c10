package sampler

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(t *testing.T, path string, size int) {
	t.Helper()
	if err := os.WriteFile(path, make([]byte, size), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestPathsFor(t *testing.T) {
	p := PathsFor("/data/test.db", "/data/tmp")
	if p.SHM != "/data/test.db-shm" || p.WAL != "/data/test.db-wal" {
		t.Fatalf("unexpected companions: %+v", p)
	}
	if err := p.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if err := (Paths{}).Validate(); err == nil {
		t.Fatal("expected validation error for empty paths")
	}
}

func TestSampleMissingPathsAreZero(t *testing.T) {
	dir := t.TempDir()
	tmp := filepath.Join(dir, "tmp")
	if err := os.Mkdir(tmp, 0o755); err != nil {
		t.Fatal(err)
	}
	fixed := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s := New(PathsFor(filepath.Join(dir, "absent.db"), tmp), WithClock(func() time.Time { return fixed }))

	got, err := s.Sample()
	if err != nil {
		t.Fatalf("Sample() error = %v", err)
	}
	if got.MainBytes != 0 || got.SHMBytes != 0 || got.WALBytes != 0 || got.TempDirBytes != 0 {
		t.Fatalf("expected all zero sizes, got %+v", got)
	}
	if !got.Timestamp.Equal(fixed) {
		t.Fatalf("Timestamp = %v, want %v", got.Timestamp, fixed)
	}
}

func TestSampleReportsSizes(t *testing.T) {
	dir := t.TempDir()
	tmp := filepath.Join(dir, "tmp")
	if err := os.Mkdir(tmp, 0o755); err != nil {
		t.Fatal(err)
	}
	db := filepath.Join(dir, "test.db")
	writeFile(t, db, 4096)
	writeFile(t, db+"-shm", 32768)
	writeFile(t, db+"-wal", 1000)
	writeFile(t, filepath.Join(tmp, "etilqs_a"), 300)
	writeFile(t, filepath.Join(tmp, "etilqs_b"), 700)

	got, err := New(PathsFor(db, tmp)).Sample()
	if err != nil {
		t.Fatalf("Sample() error = %v", err)
	}
	if got.MainBytes != 4096 || got.SHMBytes != 32768 || got.WALBytes != 1000 || got.TempDirBytes != 1000 {
		t.Fatalf("unexpected sizes %+v", got)
	}
}

func TestTempDirRetriedOnce(t *testing.T) {
	dir := t.TempDir()
	tmp := filepath.Join(dir, "tmp")
	if err := os.Mkdir(tmp, 0o755); err != nil {
		t.Fatal(err)
	}
	writeFile(t, filepath.Join(tmp, "spill"), 512)

	calls := 0
	readDir := func(name string) ([]fs.DirEntry, error) {
		calls++
		if calls == 1 {
			return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrNotExist}
		}
		return os.ReadDir(name)
	}

	got, err := New(PathsFor(filepath.Join(dir, "db"), tmp), WithReadDir(readDir)).Sample()
	if err != nil {
		t.Fatalf("Sample() error = %v", err)
	}
	if calls != 2 {
		t.Fatalf("readDir called %d times, want 2", calls)
	}
	if got.TempDirBytes != 512 {
		t.Fatalf("TempDirBytes = %d, want 512", got.TempDirBytes)
	}
}

func TestTempDirSecondFailureSurfaces(t *testing.T) {
	calls := 0
	readDir := func(name string) ([]fs.DirEntry, error) {
		calls++
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrNotExist}
	}
	_, err := New(PathsFor("/nowhere/db", "/nowhere/tmp"), WithReadDir(readDir)).Sample()
	if !errors.Is(err, ErrTempDirUnavailable) {
		t.Fatalf("Sample() error = %v, want ErrTempDirUnavailable", err)
	}
	if calls != 2 {
		t.Fatalf("readDir called %d times, want exactly 2", calls)
	}
}

func TestTempDirOtherErrorsNotRetried(t *testing.T) {
	calls := 0
	readDir := func(name string) ([]fs.DirEntry, error) {
		calls++
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrPermission}
	}
	_, err := New(PathsFor("/nowhere/db", "/nowhere/tmp"), WithReadDir(readDir)).Sample()
	if err == nil || errors.Is(err, ErrTempDirUnavailable) {
		t.Fatalf("Sample() error = %v, want a plain listing error", err)
	}
	if calls != 1 {
		t.Fatalf("readDir called %d times, want 1", calls)
	}
}

func TestStatErrorsOtherThanMissingSurface(t *testing.T) {
	dir := t.TempDir()
	stat := func(name string) (fs.FileInfo, error) {
		return nil, &fs.PathError{Op: "stat", Path: name, Err: fs.ErrPermission}
	}
	if _, err := New(PathsFor(filepath.Join(dir, "db"), dir), WithStat(stat)).Sample(); !errors.Is(err, fs.ErrPermission) {
		t.Fatalf("Sample() error = %v, want permission error", err)
	}
}
