package archive

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/torosent/walwatch/internal/config"
	"github.com/torosent/walwatch/internal/trace"
)

func writeArtifacts(t *testing.T) trace.Artifacts {
	t.Helper()
	dir := t.TempDir()
	a := trace.Paths(filepath.Join(dir, "results_scenario_1"))
	if err := os.WriteFile(a.CSVPath, []byte("time,db,shm,wal,tmp,event\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(a.SnapshotPath, []byte(`{"version":1}`), 0o644); err != nil {
		t.Fatal(err)
	}
	return a
}

func TestObjectKey(t *testing.T) {
	tests := []struct {
		prefix string
		local  string
		want   string
	}{
		{"", "/tmp/results/a.csv", "a.csv"},
		{"runs", "/tmp/results/a.csv", "runs/a.csv"},
		{"/runs/nightly/", "a.json", "runs/nightly/a.json"},
	}
	for _, tt := range tests {
		if got := ObjectKey(tt.prefix, tt.local); got != tt.want {
			t.Errorf("ObjectKey(%q, %q) = %q, want %q", tt.prefix, tt.local, got, tt.want)
		}
	}
}

func TestLocalStoreUploadArtifacts(t *testing.T) {
	artifacts := writeArtifacts(t)
	store, err := NewLocalStore(filepath.Join(t.TempDir(), "archive"))
	if err != nil {
		t.Fatalf("NewLocalStore failed: %v", err)
	}

	keys, err := UploadArtifacts(context.Background(), store, "runs/01HQ", artifacts)
	if err != nil {
		t.Fatalf("UploadArtifacts failed: %v", err)
	}
	if len(keys) != 2 {
		t.Fatalf("expected 2 keys, got %v", keys)
	}
	for _, key := range keys {
		if !strings.HasPrefix(key, "runs/01HQ/") {
			t.Errorf("key %q missing prefix", key)
		}
		if !store.Exists(key) {
			t.Errorf("expected %q to exist", key)
		}
	}

	got, err := os.ReadFile(store.fullPath(keys[0]))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(got), "time,db") {
		t.Errorf("unexpected archived CSV: %q", got)
	}
}

func TestLocalStoreMissingSource(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	err = store.Upload(context.Background(), filepath.Join(t.TempDir(), "missing.csv"), "missing.csv")
	if !errors.Is(err, ErrUploadFailed) {
		t.Fatalf("expected ErrUploadFailed, got %v", err)
	}
}

func TestLocalStoreCanceledContext(t *testing.T) {
	artifacts := writeArtifacts(t)
	store, err := NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := store.Upload(ctx, artifacts.CSVPath, "a.csv"); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestUploadArtifactsNilStore(t *testing.T) {
	keys, err := UploadArtifacts(context.Background(), nil, "x", trace.Artifacts{CSVPath: "a.csv"})
	if err != nil || keys != nil {
		t.Fatalf("expected no-op, got %v, %v", keys, err)
	}
}

type fakePutter struct {
	failures int
	calls    int
	keys     []string
	bodies   []string
}

func (f *fakePutter) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.calls++
	body, _ := io.ReadAll(in.Body)
	if f.calls <= f.failures {
		return nil, errors.New("503 slow down")
	}
	f.keys = append(f.keys, aws.ToString(in.Key))
	f.bodies = append(f.bodies, string(body))
	return &s3.PutObjectOutput{}, nil
}

func newTestS3Store(client PutObjectAPI) *S3Store {
	s := NewS3StoreWithClient(client, "bucket")
	s.backoff = func(int) time.Duration { return time.Millisecond }
	return s
}

func TestS3StoreRetriesAndRewinds(t *testing.T) {
	artifacts := writeArtifacts(t)
	client := &fakePutter{failures: 2}
	store := newTestS3Store(client)

	if err := store.Upload(context.Background(), artifacts.SnapshotPath, "runs/a.json"); err != nil {
		t.Fatalf("Upload failed: %v", err)
	}
	if client.calls != 3 {
		t.Errorf("expected 3 attempts, got %d", client.calls)
	}
	if len(client.bodies) != 1 || client.bodies[0] != `{"version":1}` {
		t.Errorf("body not rewound between attempts: %q", client.bodies)
	}
	if client.keys[0] != "runs/a.json" {
		t.Errorf("unexpected key %q", client.keys[0])
	}
}

func TestS3StoreGivesUp(t *testing.T) {
	artifacts := writeArtifacts(t)
	client := &fakePutter{failures: 100}
	store := newTestS3Store(client)

	err := store.Upload(context.Background(), artifacts.CSVPath, "a.csv")
	if !errors.Is(err, ErrUploadFailed) {
		t.Fatalf("expected ErrUploadFailed, got %v", err)
	}
	if client.calls != 4 {
		t.Errorf("expected 1 try plus 3 retries, got %d", client.calls)
	}
}

func TestS3StoreStopsOnCancel(t *testing.T) {
	artifacts := writeArtifacts(t)
	client := &fakePutter{failures: 100}
	store := NewS3StoreWithClient(client, "bucket")
	store.backoff = func(int) time.Duration { return time.Hour }

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := store.Upload(ctx, artifacts.CSVPath, "a.csv")
	if !errors.Is(err, ErrUploadFailed) {
		t.Fatalf("expected ErrUploadFailed, got %v", err)
	}
	if client.calls != 1 {
		t.Errorf("expected a single attempt before cancel, got %d", client.calls)
	}
}

func TestExponentialBackoff(t *testing.T) {
	want := []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 400 * time.Millisecond}
	for i, w := range want {
		if got := exponentialBackoff(i); got != w {
			t.Errorf("attempt %d: got %v, want %v", i, got, w)
		}
	}
}

func TestNewFromConfig(t *testing.T) {
	store, err := New(context.Background(), config.ArchiveConfig{})
	if err != nil || store != nil {
		t.Fatalf("expected disabled archive, got %v, %v", store, err)
	}

	dir := filepath.Join(t.TempDir(), "copies")
	store, err = New(context.Background(), config.ArchiveConfig{Dir: dir})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := store.(*LocalStore); !ok {
		t.Fatalf("expected *LocalStore, got %T", store)
	}
	if _, err := os.Stat(dir); err != nil {
		t.Errorf("archive dir not created: %v", err)
	}
}
