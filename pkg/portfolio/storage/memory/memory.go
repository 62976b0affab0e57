package memory

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sort"
	"sync"

	"github.com/tendant/portfolio-content/pkg/portfolio"
	"github.com/tendant/portfolio-content/pkg/portfolio/urlstrategy"
)

// ErrObjectNotFound is returned when a bucket has no object under a key.
var ErrObjectNotFound = errors.New("object not found")

type object struct {
	data        []byte
	contentType string
}

// Backend is an in-memory implementation of the portfolio.ObjectStore interface
type Backend struct {
	mu      sync.RWMutex
	buckets map[string]map[string]object
	urls    urlstrategy.Strategy
}

var _ portfolio.ObjectStore = (*Backend)(nil)

// New creates a new in-memory storage backend. Public URLs are built by
// strategy; a nil strategy uses path-style URLs under http://memory.local.
func New(strategy urlstrategy.Strategy) *Backend {
	if strategy == nil {
		strategy = urlstrategy.NewPathStrategy("http://memory.local")
	}
	return &Backend{
		buckets: make(map[string]map[string]object),
		urls:    strategy,
	}
}

// Upload stores content under bucket/key
func (b *Backend) Upload(ctx context.Context, bucket, key string, reader io.Reader, contentType string) error {
	data, err := io.ReadAll(reader)
	if err != nil {
		return err
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	objects, ok := b.buckets[bucket]
	if !ok {
		objects = make(map[string]object)
		b.buckets[bucket] = objects
	}
	objects[key] = object{data: data, contentType: contentType}
	return nil
}

// Delete removes bucket/key
func (b *Backend) Delete(ctx context.Context, bucket, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.buckets[bucket][key]; !exists {
		return ErrObjectNotFound
	}
	delete(b.buckets[bucket], key)
	return nil
}

// PublicURL returns the public URL of bucket/key
func (b *Backend) PublicURL(bucket, key string) string {
	return b.urls.PublicURL(bucket, key)
}

// Download returns the stored bytes of bucket/key
func (b *Backend) Download(ctx context.Context, bucket, key string) (io.ReadCloser, string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	obj, exists := b.buckets[bucket][key]
	if !exists {
		return nil, "", ErrObjectNotFound
	}
	return io.NopCloser(bytes.NewReader(obj.data)), obj.contentType, nil
}

// Exists reports whether bucket/key is stored
func (b *Backend) Exists(bucket, key string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.buckets[bucket][key]
	return ok
}

// Keys lists the keys of bucket in sorted order
func (b *Backend) Keys(bucket string) []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	keys := make([]string, 0, len(b.buckets[bucket]))
	for k := range b.buckets[bucket] {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
