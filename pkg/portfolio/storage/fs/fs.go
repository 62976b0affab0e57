package fs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/tendant/portfolio-content/pkg/portfolio"
	"github.com/tendant/portfolio-content/pkg/portfolio/urlstrategy"
)

// ErrObjectNotFound is returned when bucket/key does not exist on disk.
var ErrObjectNotFound = errors.New("object not found")

// Backend is a filesystem implementation of the portfolio.ObjectStore
// interface. Each bucket is a directory under BaseDir.
type Backend struct {
	baseDir string
	urls    urlstrategy.Strategy
}

// Config options for the filesystem backend
type Config struct {
	BaseDir string               // Base directory for storing buckets
	URLs    urlstrategy.Strategy // Builds public URLs, usually pointing at a static file server
}

// New creates a new filesystem storage backend
func New(config Config) (*Backend, error) {
	if config.BaseDir == "" {
		return nil, errors.New("base directory is required")
	}
	if config.URLs == nil {
		return nil, errors.New("url strategy is required")
	}

	if err := os.MkdirAll(config.BaseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}

	return &Backend{
		baseDir: filepath.Clean(config.BaseDir),
		urls:    config.URLs,
	}, nil
}

var _ portfolio.ObjectStore = (*Backend)(nil)

// Upload writes content to baseDir/bucket/key
func (b *Backend) Upload(ctx context.Context, bucket, key string, reader io.Reader, contentType string) error {
	filePath, err := b.objectPath(bucket, key)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	// Written next to the target and renamed, so a failed upload never
	// leaves a partial object under key.
	tmp, err := os.CreateTemp(filepath.Dir(filePath), ".upload-*")
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmp.Name())
		}
	}()

	if err := tmp.Chmod(0644); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to set file mode: %w", err)
	}
	if _, err := io.Copy(tmp, reader); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close file: %w", err)
	}
	if err := os.Rename(tmp.Name(), filePath); err != nil {
		return fmt.Errorf("failed to move file into place: %w", err)
	}
	committed = true
	return nil
}

// Delete removes baseDir/bucket/key
func (b *Backend) Delete(ctx context.Context, bucket, key string) error {
	filePath, err := b.objectPath(bucket, key)
	if err != nil {
		return err
	}

	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		return ErrObjectNotFound
	}

	if err := os.Remove(filePath); err != nil {
		return fmt.Errorf("failed to delete file: %w", err)
	}

	b.cleanupEmptyDirectories(filepath.Dir(filePath), filepath.Join(b.baseDir, bucket))
	return nil
}

// PublicURL returns the public URL of bucket/key
func (b *Backend) PublicURL(bucket, key string) string {
	return b.urls.PublicURL(bucket, key)
}

// Open returns the stored file of bucket/key
func (b *Backend) Open(bucket, key string) (*os.File, error) {
	filePath, err := b.objectPath(bucket, key)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(filePath)
	if os.IsNotExist(err) {
		return nil, ErrObjectNotFound
	} else if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	return file, nil
}

// objectPath joins bucket and key under baseDir, rejecting traversal.
func (b *Backend) objectPath(bucket, key string) (string, error) {
	if bucket == "" || strings.ContainsAny(bucket, `/\`) || bucket == "." || bucket == ".." {
		return "", fmt.Errorf("invalid bucket name %q", bucket)
	}
	p := filepath.Join(b.baseDir, bucket, filepath.FromSlash(key))
	if !strings.HasPrefix(p, filepath.Join(b.baseDir, bucket)+string(filepath.Separator)) {
		return "", fmt.Errorf("invalid object key %q", key)
	}
	return p, nil
}

// cleanupEmptyDirectories removes empty directories up to stop
func (b *Backend) cleanupEmptyDirectories(dir, stop string) {
	if dir == stop || !strings.HasPrefix(dir, stop) {
		return
	}
	if entries, err := os.ReadDir(dir); err == nil && len(entries) == 0 {
		if os.Remove(dir) == nil {
			b.cleanupEmptyDirectories(filepath.Dir(dir), stop)
		}
	}
}
