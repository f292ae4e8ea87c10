// Package archive copies finished run artifacts to long-term storage.
package archive

import (
	"context"
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"github.com/torosent/walwatch/internal/config"
	"github.com/torosent/walwatch/internal/trace"
)

// ErrUploadFailed wraps every upload failure.
var ErrUploadFailed = errors.New("upload failed")

// Store receives artifact files.
type Store interface {
	// Upload copies localPath to objectPath, a slash-separated key.
	Upload(ctx context.Context, localPath, objectPath string) error
}

// New builds the store selected by cfg, or nil when archiving is disabled.
func New(ctx context.Context, cfg config.ArchiveConfig) (Store, error) {
	switch {
	case cfg.Bucket != "":
		store, err := NewS3Store(ctx, cfg.Bucket, S3Config{
			Region:       cfg.Region,
			Endpoint:     cfg.Endpoint,
			UsePathStyle: cfg.PathStyle,
		})
		if err != nil {
			return nil, err
		}
		return store, nil
	case cfg.Dir != "":
		store, err := NewLocalStore(cfg.Dir)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, nil
	}
}

// ObjectKey joins prefix and the base name of localPath.
func ObjectKey(prefix, localPath string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return filepath.Base(localPath)
	}
	return path.Join(prefix, filepath.Base(localPath))
}

// UploadArtifacts uploads the CSV table and the snapshot of a run under
// prefix and returns the object keys written.
func UploadArtifacts(ctx context.Context, store Store, prefix string, artifacts trace.Artifacts) ([]string, error) {
	if store == nil {
		return nil, nil
	}
	var keys []string
	for _, local := range []string{artifacts.CSVPath, artifacts.SnapshotPath} {
		if local == "" {
			continue
		}
		key := ObjectKey(prefix, local)
		if err := store.Upload(ctx, local, key); err != nil {
			return keys, fmt.Errorf("archive %s: %w", key, err)
		}
		keys = append(keys, key)
	}
	return keys, nil
}
