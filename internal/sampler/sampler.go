// Package sampler measures the on-disk footprint of the watched database paths.
package sampler

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/torosent/walwatch/internal/trace"
)

// ErrTempDirUnavailable is returned when the temp directory cannot be listed
// even after the retry.
var ErrTempDirUnavailable = errors.New("temp directory unavailable")

// Paths are the four watched locations.
type Paths struct {
	Main    string
	SHM     string
	WAL     string
	TempDir string
}

// PathsFor derives the shared-memory and write-ahead-log companions of mainFile.
func PathsFor(mainFile, tempDir string) Paths {
	return Paths{
		Main:    mainFile,
		SHM:     mainFile + "-shm",
		WAL:     mainFile + "-wal",
		TempDir: tempDir,
	}
}

// Validate reports missing paths.
func (p Paths) Validate() error {
	var issues []string
	if strings.TrimSpace(p.Main) == "" {
		issues = append(issues, "main file path is required")
	}
	if strings.TrimSpace(p.TempDir) == "" {
		issues = append(issues, "temp directory path is required")
	}
	if len(issues) > 0 {
		return fmt.Errorf("sampler paths: %s", strings.Join(issues, "; "))
	}
	return nil
}

// Sampler takes one observation of the watched paths.
type Sampler interface {
	Sample() (trace.Sample, error)
}

// FS samples the real filesystem.
type FS struct {
	paths   Paths
	now     func() time.Time
	stat    func(string) (fs.FileInfo, error)
	readDir func(string) ([]fs.DirEntry, error)
}

// Option customizes an FS sampler.
type Option func(*FS)

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *FS) {
		if now != nil {
			s.now = now
		}
	}
}

// WithStat overrides the function used to stat single files.
func WithStat(stat func(string) (fs.FileInfo, error)) Option {
	return func(s *FS) {
		if stat != nil {
			s.stat = stat
		}
	}
}

// WithReadDir overrides the function used to list the temp directory.
func WithReadDir(readDir func(string) ([]fs.DirEntry, error)) Option {
	return func(s *FS) {
		if readDir != nil {
			s.readDir = readDir
		}
	}
}

// New creates a filesystem sampler for paths.
func New(paths Paths, opts ...Option) *FS {
	s := &FS{
		paths:   paths,
		now:     time.Now,
		stat:    os.Stat,
		readDir: os.ReadDir,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Paths returns the watched paths.
func (s *FS) Paths() Paths {
	return s.paths
}

// Sample reads the size of every watched path. Missing single files count as
// zero; the temp directory listing is retried once if it is reported missing.
func (s *FS) Sample() (trace.Sample, error) {
	tmp, err := s.dirSize(s.paths.TempDir)
	if err != nil {
		return trace.Sample{}, err
	}
	main, err := s.sizeOrZero(s.paths.Main)
	if err != nil {
		return trace.Sample{}, err
	}
	shm, err := s.sizeOrZero(s.paths.SHM)
	if err != nil {
		return trace.Sample{}, err
	}
	wal, err := s.sizeOrZero(s.paths.WAL)
	if err != nil {
		return trace.Sample{}, err
	}
	return trace.Sample{
		Timestamp:    s.now(),
		MainBytes:    main,
		SHMBytes:     shm,
		WALBytes:     wal,
		TempDirBytes: tmp,
	}, nil
}

func (s *FS) sizeOrZero(path string) (int64, error) {
	info, err := s.stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("stat %s: %w", path, err)
	}
	return info.Size(), nil
}

func (s *FS) dirSize(dir string) (int64, error) {
	entries, err := s.readDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		// The engine may be recreating the directory; give it one more try.
		entries, err = s.readDir(dir)
	}
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, fmt.Errorf("%w: %s: %v", ErrTempDirUnavailable, dir, err)
		}
		return 0, fmt.Errorf("list %s: %w", dir, err)
	}

	var total int64
	for _, entry := range entries {
		info, err := entry.Info()
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return 0, fmt.Errorf("stat %s/%s: %w", dir, entry.Name(), err)
		}
		total += info.Size()
	}
	return total, nil
}
