package engine

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func setupTest(t *testing.T) *Engine {
	t.Helper()
	e, err := Setup(context.Background(), Options{
		Path:     filepath.Join(t.TempDir(), "nested", "test.db"),
		RowBytes: 16 * 1024,
	})
	if err != nil {
		t.Fatalf("Setup() error = %v", err)
	}
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func countRows(t *testing.T, e *Engine) int {
	t.Helper()
	var n int
	if err := e.conn.QueryRowContext(context.Background(), "SELECT COUNT(*) FROM Data").Scan(&n); err != nil {
		t.Fatalf("count rows: %v", err)
	}
	return n
}

func TestSetupConfiguresDatabase(t *testing.T) {
	e := setupTest(t)
	ctx := context.Background()

	var mode string
	if err := e.conn.QueryRowContext(ctx, "PRAGMA journal_mode").Scan(&mode); err != nil {
		t.Fatal(err)
	}
	if mode != "wal" {
		t.Fatalf("journal_mode = %q, want wal", mode)
	}
	var autoVacuum int
	if err := e.conn.QueryRowContext(ctx, "PRAGMA auto_vacuum").Scan(&autoVacuum); err != nil {
		t.Fatal(err)
	}
	if autoVacuum != 2 {
		t.Fatalf("auto_vacuum = %d, want 2 (incremental)", autoVacuum)
	}
	if _, err := os.Stat(e.Path() + "-wal"); err != nil {
		t.Fatalf("expected WAL file: %v", err)
	}
}

func TestSetupReplacesExistingDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	first, err := Setup(context.Background(), Options{Path: path, RowBytes: 1024})
	if err != nil {
		t.Fatal(err)
	}
	if err := first.WriteRows(context.Background(), 5, false); err != nil {
		t.Fatal(err)
	}
	if err := first.Close(); err != nil {
		t.Fatal(err)
	}

	second, err := Setup(context.Background(), Options{Path: path, RowBytes: 1024})
	if err != nil {
		t.Fatalf("second Setup() error = %v", err)
	}
	defer second.Close()
	if n := countRows(t, second); n != 0 {
		t.Fatalf("recreated database has %d rows", n)
	}
}

func TestWriteAndDeleteRows(t *testing.T) {
	tests := []struct {
		name         string
		perRowCommit bool
	}{
		{"single transaction", false},
		{"per row commit", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := setupTest(t)
			ctx := context.Background()
			if err := e.WriteRows(ctx, 20, tt.perRowCommit); err != nil {
				t.Fatalf("WriteRows() error = %v", err)
			}
			if n := countRows(t, e); n != 20 {
				t.Fatalf("rows = %d, want 20", n)
			}
			if err := e.DeleteRows(ctx, 15, 20, tt.perRowCommit); err != nil {
				t.Fatalf("DeleteRows() error = %v", err)
			}
			if n := countRows(t, e); n != 15 {
				t.Fatalf("rows after delete = %d, want 15", n)
			}
			if e.InTransaction() {
				t.Fatal("transaction left open")
			}
		})
	}
}

func TestDeleteRejectsInvertedRange(t *testing.T) {
	e := setupTest(t)
	if err := e.DeleteRows(context.Background(), 10, 5, false); err == nil {
		t.Fatal("expected error for inverted range")
	}
}

func TestCheckpointTruncateEmptiesWAL(t *testing.T) {
	e := setupTest(t)
	ctx := context.Background()
	if err := e.WriteRows(ctx, 10, true); err != nil {
		t.Fatal(err)
	}

	res, err := e.Checkpoint(ctx, CheckpointTruncate)
	if err != nil {
		t.Fatalf("Checkpoint() error = %v", err)
	}
	if res.Busy {
		t.Fatal("checkpoint reported busy")
	}
	info, err := os.Stat(e.Path() + "-wal")
	if err != nil {
		t.Fatal(err)
	}
	if info.Size() != 0 {
		t.Fatalf("WAL size after truncate = %d, want 0", info.Size())
	}

	passive, err := e.Checkpoint(ctx, CheckpointPassive)
	if err != nil {
		t.Fatalf("passive Checkpoint() error = %v", err)
	}
	if passive.LogFrames != passive.CheckpointedFrames {
		t.Fatalf("passive checkpoint left frames behind: %+v", passive)
	}
}

func TestIncrementalVacuumReleasesFreePages(t *testing.T) {
	e := setupTest(t)
	ctx := context.Background()
	if err := e.WriteRows(ctx, 20, true); err != nil {
		t.Fatal(err)
	}
	if err := e.DeleteRows(ctx, 0, 10, true); err != nil {
		t.Fatal(err)
	}

	before, err := e.PageUsage(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if before.Free == 0 {
		t.Fatal("expected free pages after delete")
	}

	if err := e.IncrementalVacuum(ctx, 1); err != nil {
		t.Fatalf("IncrementalVacuum(1) error = %v", err)
	}
	partial, err := e.PageUsage(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if partial.Free != before.Free-1 {
		t.Fatalf("free pages after one-page vacuum = %d, want %d", partial.Free, before.Free-1)
	}

	if err := e.IncrementalVacuum(ctx, 0); err != nil {
		t.Fatalf("IncrementalVacuum(0) error = %v", err)
	}
	after, err := e.PageUsage(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if after.Free != 0 {
		t.Fatalf("free pages after full vacuum = %d, want 0", after.Free)
	}
	if after.Used != before.Used {
		t.Fatalf("used pages changed from %d to %d", before.Used, after.Used)
	}
}

func TestVacuumAndAutoCheckpoint(t *testing.T) {
	e := setupTest(t)
	ctx := context.Background()
	if err := e.SetAutoCheckpoint(ctx, 0); err != nil {
		t.Fatalf("SetAutoCheckpoint() error = %v", err)
	}
	var pages int
	if err := e.conn.QueryRowContext(ctx, "PRAGMA wal_autocheckpoint").Scan(&pages); err != nil {
		t.Fatal(err)
	}
	if pages != 0 {
		t.Fatalf("wal_autocheckpoint = %d, want 0", pages)
	}
	if err := e.WriteRows(ctx, 5, false); err != nil {
		t.Fatal(err)
	}
	if err := e.Vacuum(ctx); err != nil {
		t.Fatalf("Vacuum() error = %v", err)
	}
}

func TestVerifyNoOpenTransaction(t *testing.T) {
	e := setupTest(t)
	ctx := context.Background()
	if err := e.VerifyNoOpenTransaction(ctx); err != nil {
		t.Fatalf("VerifyNoOpenTransaction() error = %v", err)
	}

	if _, err := e.conn.ExecContext(ctx, "BEGIN"); err != nil {
		t.Fatal(err)
	}
	if !e.InTransaction() {
		t.Fatal("InTransaction() = false inside BEGIN")
	}
	if err := e.VerifyNoOpenTransaction(ctx); !errors.Is(err, ErrOpenTransaction) {
		t.Fatalf("VerifyNoOpenTransaction() error = %v, want ErrOpenTransaction", err)
	}
	if _, err := e.conn.ExecContext(ctx, "ROLLBACK"); err != nil {
		t.Fatal(err)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	e := setupTest(t)
	if err := e.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := e.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}
	if err := e.WriteRows(context.Background(), 1, false); !errors.Is(err, ErrClosed) {
		t.Fatalf("WriteRows after Close error = %v, want ErrClosed", err)
	}
}

func TestWriteRowsHonoursRateAndCancellation(t *testing.T) {
	e, err := Setup(context.Background(), Options{
		Path:      filepath.Join(t.TempDir(), "rate.db"),
		RowBytes:  128,
		WriteRate: 1,
	})
	if err != nil {
		t.Fatal(err)
	}
	defer e.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := e.WriteRows(ctx, 3, true); err == nil {
		t.Fatal("expected cancelled write to fail")
	}
}

func TestParseCheckpointMode(t *testing.T) {
	tests := []struct {
		in      string
		want    CheckpointMode
		wantErr bool
	}{
		{"passive", CheckpointPassive, false},
		{"TRUNCATE", CheckpointTruncate, false},
		{"full", "", true},
	}
	for _, tt := range tests {
		got, err := ParseCheckpointMode(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Fatalf("ParseCheckpointMode(%q) = %q, %v", tt.in, got, err)
		}
	}
}

func TestSQLiteVersion(t *testing.T) {
	v := SQLiteVersion()
	if v.Library == "" || v.Number == 0 || v.SourceID == "" {
		t.Fatalf("incomplete version info %+v", v)
	}
}
