// Package engine drives a SQLite database in WAL mode through the operations
// the scenarios are built from.
package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"
	"sync"

	"github.com/mattn/go-sqlite3"
	"golang.org/x/time/rate"

	"github.com/torosent/walwatch/internal/logging"
)

const (
	DefaultPageSize = 4096
	DefaultRowBytes = 1_000_000
)

var (
	// ErrOpenTransaction is returned by VerifyNoOpenTransaction when the
	// connection is inside a transaction.
	ErrOpenTransaction = errors.New("connection has an open transaction")
	// ErrClosed is returned by operations on a closed engine.
	ErrClosed = errors.New("engine closed")
	// ErrPageSizeMismatch is returned by Setup when the database does not use
	// the configured page size.
	ErrPageSizeMismatch = errors.New("page size mismatch")
)

// CheckpointMode selects the wal_checkpoint flavour.
type CheckpointMode string

const (
	CheckpointPassive  CheckpointMode = "PASSIVE"
	CheckpointTruncate CheckpointMode = "TRUNCATE"
)

// ParseCheckpointMode accepts passive or truncate in any case.
func ParseCheckpointMode(s string) (CheckpointMode, error) {
	switch CheckpointMode(strings.ToUpper(strings.TrimSpace(s))) {
	case CheckpointPassive:
		return CheckpointPassive, nil
	case CheckpointTruncate:
		return CheckpointTruncate, nil
	default:
		return "", fmt.Errorf("unknown checkpoint mode %q", s)
	}
}

// CheckpointResult is the row returned by PRAGMA wal_checkpoint.
type CheckpointResult struct {
	Busy               bool
	LogFrames          int64 // frames in the WAL
	CheckpointedFrames int64 // frames moved into the database
}

// PageUsage splits the database pages into used and free.
type PageUsage struct {
	Used int64
	Free int64
}

// Versions describes the linked SQLite library.
type Versions struct {
	Library  string
	Number   int
	SourceID string
	Driver   string // go-sqlite3 module version, "unknown" outside module builds
}

// Options configure Setup.
type Options struct {
	Path      string
	PageSize  int // defaults to DefaultPageSize
	RowBytes  int // payload size of one row; defaults to DefaultRowBytes
	WriteRate int // rows per second, 0 means unlimited
	Logger    *slog.Logger
	// LimiterFactory is optional; used by tests.
	LimiterFactory func(rps int) *rate.Limiter
}

func (o *Options) normalize() {
	if o.PageSize <= 0 {
		o.PageSize = DefaultPageSize
	}
	if o.RowBytes <= 0 {
		o.RowBytes = DefaultRowBytes
	}
	if o.WriteRate < 0 {
		o.WriteRate = 0
	}
	if o.Logger == nil {
		o.Logger = logging.NewNop()
	}
	if o.LimiterFactory == nil {
		o.LimiterFactory = func(rps int) *rate.Limiter {
			if rps <= 0 {
				return rate.NewLimiter(rate.Inf, 0)
			}
			return rate.NewLimiter(rate.Limit(rps), 1)
		}
	}
}

// Engine owns one dedicated connection so connection-scoped pragmas persist
// across operations. It is not safe for concurrent use.
type Engine struct {
	opt     Options
	db      *sql.DB
	conn    *sql.Conn
	limiter *rate.Limiter
	payload string

	closeOnce sync.Once
	closed    bool
	closeErr  error
}

// Setup recreates the database at opts.Path with incremental auto-vacuum, WAL
// journaling and the Data table.
func Setup(ctx context.Context, opts Options) (*Engine, error) {
	opts.normalize()
	if strings.TrimSpace(opts.Path) == "" {
		return nil, errors.New("engine: database path is required")
	}
	if err := os.MkdirAll(filepath.Dir(opts.Path), 0o755); err != nil {
		return nil, fmt.Errorf("engine: create database directory: %w", err)
	}
	for _, p := range []string{opts.Path, opts.Path + "-wal", opts.Path + "-shm"} {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("engine: remove %s: %w", p, err)
		}
	}

	db, err := sql.Open("sqlite3", opts.Path)
	if err != nil {
		return nil, fmt.Errorf("engine: open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	conn, err := db.Conn(ctx)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("engine: acquire connection: %w", err)
	}

	e := &Engine{
		opt:     opts,
		db:      db,
		conn:    conn,
		limiter: opts.LimiterFactory(opts.WriteRate),
		payload: strings.Repeat("x", opts.RowBytes),
	}

	setup := []string{
		fmt.Sprintf("PRAGMA page_size=%d", opts.PageSize),
		"PRAGMA auto_vacuum=2",
		"PRAGMA journal_mode=WAL",
		`CREATE TABLE Data (
			PrimaryKey INTEGER PRIMARY KEY,
			Stuff TEXT)`,
	}
	for _, stmt := range setup {
		if _, err := conn.ExecContext(ctx, stmt); err != nil {
			_ = e.Close()
			return nil, fmt.Errorf("engine: %s: %w", firstLine(stmt), err)
		}
	}

	var pageSize int
	if err := conn.QueryRowContext(ctx, "PRAGMA page_size").Scan(&pageSize); err != nil {
		_ = e.Close()
		return nil, fmt.Errorf("engine: read page size: %w", err)
	}
	if pageSize != opts.PageSize {
		_ = e.Close()
		return nil, fmt.Errorf("%w: database uses %d, want %d", ErrPageSizeMismatch, pageSize, opts.PageSize)
	}

	opts.Logger.Debug("database ready", "path", opts.Path, "page_size", pageSize)
	return e, nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[:i])
	}
	return s
}

// Path returns the database file path.
func (e *Engine) Path() string {
	return e.opt.Path
}

// RowBytes returns the payload size of one row.
func (e *Engine) RowBytes() int {
	return e.opt.RowBytes
}

// WriteRows inserts rows with keys [0, n). With perRowCommit every row is its
// own transaction, otherwise all rows share one.
func (e *Engine) WriteRows(ctx context.Context, n int, perRowCommit bool) error {
	if e.closed {
		return ErrClosed
	}
	insert := func(tx *sql.Tx, key int) error {
		if err := e.limiter.Wait(ctx); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, "INSERT INTO Data (PrimaryKey, Stuff) VALUES (?, ?)", key, e.payload); err != nil {
			return fmt.Errorf("insert row %d: %w", key, err)
		}
		return nil
	}

	if perRowCommit {
		for i := 0; i < n; i++ {
			if err := e.inTx(ctx, func(tx *sql.Tx) error { return insert(tx, i) }); err != nil {
				return err
			}
		}
		return nil
	}
	return e.inTx(ctx, func(tx *sql.Tx) error {
		for i := 0; i < n; i++ {
			if err := insert(tx, i); err != nil {
				return err
			}
		}
		return nil
	})
}

// DeleteRows removes keys [from, to). With perRowCommit every row is deleted
// in its own transaction.
func (e *Engine) DeleteRows(ctx context.Context, from, to int, perRowCommit bool) error {
	if e.closed {
		return ErrClosed
	}
	if to < from {
		return fmt.Errorf("delete range [%d, %d) is empty or inverted", from, to)
	}
	if perRowCommit {
		for i := from; i < to; i++ {
			err := e.inTx(ctx, func(tx *sql.Tx) error {
				_, err := tx.ExecContext(ctx, "DELETE FROM Data WHERE PrimaryKey = ?", i)
				return err
			})
			if err != nil {
				return fmt.Errorf("delete row %d: %w", i, err)
			}
		}
		return nil
	}
	return e.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM Data WHERE PrimaryKey >= ? AND PrimaryKey < ?", from, to); err != nil {
			return fmt.Errorf("delete rows %d..%d: %w", from, to-1, err)
		}
		return nil
	})
}

func (e *Engine) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := e.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Checkpoint runs PRAGMA wal_checkpoint in the given mode.
func (e *Engine) Checkpoint(ctx context.Context, mode CheckpointMode) (CheckpointResult, error) {
	if e.closed {
		return CheckpointResult{}, ErrClosed
	}
	var busy int
	var res CheckpointResult
	row := e.conn.QueryRowContext(ctx, fmt.Sprintf("PRAGMA wal_checkpoint(%s)", mode))
	if err := row.Scan(&busy, &res.LogFrames, &res.CheckpointedFrames); err != nil {
		return CheckpointResult{}, fmt.Errorf("checkpoint %s: %w", strings.ToLower(string(mode)), err)
	}
	res.Busy = busy != 0
	return res, nil
}

// Vacuum rebuilds the database file.
func (e *Engine) Vacuum(ctx context.Context) error {
	if e.closed {
		return ErrClosed
	}
	if _, err := e.conn.ExecContext(ctx, "VACUUM"); err != nil {
		return fmt.Errorf("vacuum: %w", err)
	}
	return nil
}

// IncrementalVacuum releases up to pages free pages; 0 releases all of them.
func (e *Engine) IncrementalVacuum(ctx context.Context, pages int) error {
	if e.closed {
		return ErrClosed
	}
	if pages < 0 {
		return fmt.Errorf("incremental_vacuum: negative page count %d", pages)
	}
	// The pragma frees pages one step at a time, so the result set must be
	// drained for it to run to completion.
	rows, err := e.conn.QueryContext(ctx, fmt.Sprintf("PRAGMA incremental_vacuum(%d)", pages))
	if err != nil {
		return fmt.Errorf("incremental_vacuum(%d): %w", pages, err)
	}
	defer rows.Close()
	for rows.Next() {
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("incremental_vacuum(%d): %w", pages, err)
	}
	return nil
}

// PageUsage reports used and free pages.
func (e *Engine) PageUsage(ctx context.Context) (PageUsage, error) {
	if e.closed {
		return PageUsage{}, ErrClosed
	}
	var pageCount, freeCount int64
	if err := e.conn.QueryRowContext(ctx, "PRAGMA page_count").Scan(&pageCount); err != nil {
		return PageUsage{}, fmt.Errorf("page_count: %w", err)
	}
	if err := e.conn.QueryRowContext(ctx, "PRAGMA freelist_count").Scan(&freeCount); err != nil {
		return PageUsage{}, fmt.Errorf("freelist_count: %w", err)
	}
	return PageUsage{Used: pageCount - freeCount, Free: freeCount}, nil
}

// SetAutoCheckpoint sets the WAL auto-checkpoint threshold in pages; 0
// disables it.
func (e *Engine) SetAutoCheckpoint(ctx context.Context, pages int) error {
	if e.closed {
		return ErrClosed
	}
	if _, err := e.conn.ExecContext(ctx, fmt.Sprintf("PRAGMA wal_autocheckpoint(%d)", pages)); err != nil {
		return fmt.Errorf("wal_autocheckpoint(%d): %w", pages, err)
	}
	return nil
}

// SQLiteVersion reports the linked library.
func SQLiteVersion() Versions {
	lib, num, source := sqlite3.Version()
	return Versions{Library: lib, Number: num, SourceID: source, Driver: driverVersion()}
}

const driverModule = "github.com/mattn/go-sqlite3"

func driverVersion() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "unknown"
	}
	for _, dep := range info.Deps {
		if dep.Path == driverModule {
			if dep.Replace != nil {
				return dep.Replace.Version
			}
			return dep.Version
		}
	}
	return "unknown"
}

// InTransaction reports whether the connection is outside autocommit mode.
func (e *Engine) InTransaction() bool {
	if e.closed {
		return false
	}
	inTx := false
	_ = e.conn.Raw(func(driverConn any) error {
		if c, ok := driverConn.(*sqlite3.SQLiteConn); ok {
			inTx = !c.AutoCommit()
		}
		return nil
	})
	return inTx
}

// VerifyNoOpenTransaction checks that no transaction is open and that a fresh
// one can be started and committed.
func (e *Engine) VerifyNoOpenTransaction(ctx context.Context) error {
	if e.closed {
		return ErrClosed
	}
	if e.InTransaction() {
		return ErrOpenTransaction
	}
	if _, err := e.conn.ExecContext(ctx, "BEGIN"); err != nil {
		return fmt.Errorf("%w: %v", ErrOpenTransaction, err)
	}
	if !e.InTransaction() {
		_, _ = e.conn.ExecContext(ctx, "ROLLBACK")
		return errors.New("transaction probe did not open a transaction")
	}
	if _, err := e.conn.ExecContext(ctx, "COMMIT"); err != nil {
		return fmt.Errorf("commit probe: %w", err)
	}
	if e.InTransaction() {
		return ErrOpenTransaction
	}
	return nil
}

// Close releases the connection. Later calls return the first result.
func (e *Engine) Close() error {
	e.closeOnce.Do(func() {
		e.closed = true
		var errs []error
		if e.conn != nil {
			errs = append(errs, e.conn.Close())
		}
		if e.db != nil {
			errs = append(errs, e.db.Close())
		}
		e.closeErr = errors.Join(errs...)
	})
	return e.closeErr
}
