package portfolio_test

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/portfolio-content/pkg/portfolio"
	"github.com/tendant/portfolio-content/pkg/portfolio/objectkey"
	"github.com/tendant/portfolio-content/pkg/portfolio/storage/memory"
	"github.com/tendant/portfolio-content/pkg/portfolio/urlstrategy"
)

// recordingStore wraps the memory backend, recording deletions and
// optionally failing uploads or deletions.
type recordingStore struct {
	*memory.Backend

	mu        sync.Mutex
	deletes   []string
	uploadErr error
	deleteErr error
}

func newRecordingStore() *recordingStore {
	return &recordingStore{Backend: memory.New(urlstrategy.NewPathStrategy("https://store"))}
}

func (s *recordingStore) Upload(ctx context.Context, bucket, key string, r io.Reader, contentType string) error {
	if s.uploadErr != nil {
		return s.uploadErr
	}
	return s.Backend.Upload(ctx, bucket, key, r, contentType)
}

func (s *recordingStore) Delete(ctx context.Context, bucket, key string) error {
	s.mu.Lock()
	s.deletes = append(s.deletes, bucket+"/"+key)
	s.mu.Unlock()
	if s.deleteErr != nil {
		return s.deleteErr
	}
	return s.Backend.Delete(ctx, bucket, key)
}

func (s *recordingStore) Deletes() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.deletes...)
}

func (s *recordingStore) seed(t *testing.T, bucket, key string) string {
	t.Helper()
	require.NoError(t, s.Backend.Upload(context.Background(), bucket, key, strings.NewReader("old"), "image/png"))
	return s.PublicURL(bucket, key)
}

func newFile(name string) *portfolio.AssetFile {
	return &portfolio.AssetFile{Name: name, ContentType: "image/png", Reader: strings.NewReader("new bytes")}
}

func fixedKeys(key string) portfolio.SyncOption {
	return portfolio.WithSyncKeyGenerator(objectkey.NewCustomFuncGenerator(func(string) string { return key }))
}

func TestAssetSynchronizer_Sync(t *testing.T) {
	const bucket = "project-images"
	const oldURL = "https://store/project-images/old.png"

	tests := []struct {
		name       string
		oldURL     string
		input      portfolio.AssetInput
		wantFinal  string
		wantDelete bool
	}{
		{"upload replaces", oldURL, portfolio.AssetInput{File: newFile("new.png")}, "https://store/project-images/fresh.png", true},
		{"upload wins over clear and manual", oldURL,
			portfolio.AssetInput{File: newFile("new.png"), Cleared: true, ManualURL: "https://x/y.png"},
			"https://store/project-images/fresh.png", true},
		{"upload with no previous asset", "", portfolio.AssetInput{File: newFile("new.png")}, "https://store/project-images/fresh.png", false},
		{"clear sets null", oldURL, portfolio.AssetInput{Cleared: true}, "", true},
		{"clear wins over manual", oldURL, portfolio.AssetInput{Cleared: true, ManualURL: "https://x/y.png"}, "", true},
		{"clear with nothing to clear", "", portfolio.AssetInput{Cleared: true}, "", false},
		{"manual url taken verbatim", oldURL, portfolio.AssetInput{ManualURL: "https://cdn.example.org/pic.png"}, "https://cdn.example.org/pic.png", false},
		{"manual url equal to old", oldURL, portfolio.AssetInput{ManualURL: oldURL}, oldURL, false},
		{"manual url into managed bucket", oldURL, portfolio.AssetInput{ManualURL: "https://store/project-images/other.png"}, "https://store/project-images/other.png", false},
		{"no change", oldURL, portfolio.AssetInput{}, oldURL, false},
		{"clear of unmanaged url", "https://elsewhere/pic.png", portfolio.AssetInput{Cleared: true}, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			store := newRecordingStore()
			s := portfolio.NewAssetSynchronizer(store, fixedKeys("fresh.png"))

			res, err := s.Sync(ctx, tt.oldURL, tt.input, bucket)
			require.NoError(t, err)
			assert.Equal(t, tt.wantFinal, res.FinalURL)
			assert.Equal(t, tt.wantDelete, res.DeleteOldAfterCommit)
			assert.Empty(t, store.Deletes(), "sync must never delete")

			s.Commit(ctx, res)
			if tt.wantDelete {
				assert.Equal(t, []string{"project-images/old.png"}, store.Deletes())
			} else {
				assert.Empty(t, store.Deletes())
			}
		})
	}
}

func TestAssetSynchronizer_FreshKeys(t *testing.T) {
	ctx := context.Background()
	store := newRecordingStore()
	oldURL := store.seed(t, "project-images", "old.png")
	s := portfolio.NewAssetSynchronizer(store)

	// same file name as the stored object
	res, err := s.Sync(ctx, oldURL, portfolio.AssetInput{File: newFile("old.png")}, "project-images")
	require.NoError(t, err)
	assert.NotEqual(t, oldURL, res.FinalURL)
	assert.NotEqual(t, "old.png", res.Uploaded.Path)
	assert.True(t, store.Exists("project-images", "old.png"), "old object must survive the upload")
	assert.True(t, store.Exists("project-images", res.Uploaded.Path))
}

func TestAssetSynchronizer_UploadFailure(t *testing.T) {
	ctx := context.Background()
	store := newRecordingStore()
	store.uploadErr = errors.New("bucket unavailable")
	s := portfolio.NewAssetSynchronizer(store)

	res, err := s.Sync(ctx, "https://store/project-images/old.png", portfolio.AssetInput{File: newFile("a.png")}, "project-images")
	assert.Nil(t, res)
	require.Error(t, err)
	assert.ErrorIs(t, err, portfolio.ErrUpload)
	assert.Equal(t, portfolio.KindUpload, portfolio.Kind(err))
	assert.Empty(t, store.Deletes())
}

func TestAssetSynchronizer_CommitExactlyOnce(t *testing.T) {
	ctx := context.Background()
	store := newRecordingStore()
	oldURL := store.seed(t, "project-images", "old.png")
	s := portfolio.NewAssetSynchronizer(store)

	res, err := s.Sync(ctx, oldURL, portfolio.AssetInput{File: newFile("a.png")}, "project-images")
	require.NoError(t, err)

	s.Commit(ctx, res)
	s.Commit(ctx, res)
	s.Abort(ctx, res)

	assert.Equal(t, []string{"project-images/old.png"}, store.Deletes())
	assert.False(t, store.Exists("project-images", "old.png"))
	assert.True(t, store.Exists("project-images", res.Uploaded.Path))
}

func TestAssetSynchronizer_AbortKeepsOld(t *testing.T) {
	ctx := context.Background()
	store := newRecordingStore()
	oldURL := store.seed(t, "project-images", "old.png")
	s := portfolio.NewAssetSynchronizer(store)

	res, err := s.Sync(ctx, oldURL, portfolio.AssetInput{File: newFile("a.png")}, "project-images")
	require.NoError(t, err)

	s.Abort(ctx, res)
	s.Commit(ctx, res)

	assert.Equal(t, []string{"project-images/" + res.Uploaded.Path}, store.Deletes())
	assert.True(t, store.Exists("project-images", "old.png"))
}

func TestAssetSynchronizer_DeletionFailureIsSwallowed(t *testing.T) {
	ctx := context.Background()
	store := newRecordingStore()
	oldURL := store.seed(t, "about-images", "me.png")
	store.deleteErr = errors.New("permission denied")
	s := portfolio.NewAssetSynchronizer(store)

	res, err := s.Sync(ctx, oldURL, portfolio.AssetInput{Cleared: true}, "about-images")
	require.NoError(t, err)
	assert.NotPanics(t, func() { s.Commit(ctx, res) })
	assert.Equal(t, []string{"about-images/me.png"}, store.Deletes())
}
