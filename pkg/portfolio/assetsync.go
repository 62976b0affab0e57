package portfolio

import (
	"context"
	"io"
	"log/slog"

	"github.com/tendant/portfolio-content/pkg/portfolio/metrics"
	"github.com/tendant/portfolio-content/pkg/portfolio/objectkey"
)

// AssetFile is a newly supplied binary for an asset field.
type AssetFile struct {
	Name        string
	ContentType string
	Reader      io.Reader
}

// AssetInput is the editor's intent for one asset field in a single save.
// At most one of File, Cleared and ManualURL takes effect, in that order.
type AssetInput struct {
	File      *AssetFile
	Cleared   bool
	ManualURL string
}

// IsZero reports whether the input requests no change at all.
func (in AssetInput) IsZero() bool {
	return in.File == nil && !in.Cleared && in.ManualURL == ""
}

// SyncResult is the outcome of reconciling an asset field.
type SyncResult struct {
	Bucket string
	// FinalURL is the value to persist; "" means null.
	FinalURL string
	// DeleteOldAfterCommit is set when Old must be removed once the record
	// write has committed.
	DeleteOldAfterCommit bool
	// Old is the previous object, when its URL resolves in Bucket.
	Old *AssetReference
	// Uploaded is the object written by this sync, if any.
	Uploaded *AssetReference

	settled bool
}

// Changed reports whether FinalURL differs from the previous value.
func (r *SyncResult) Changed(oldURL string) bool {
	return r.FinalURL != oldURL
}

// AssetSynchronizer keeps a record's asset URL consistent with the object
// store across uploads, replacements and clears.
type AssetSynchronizer struct {
	store  ObjectStore
	keys   objectkey.Generator
	logger *slog.Logger
}

// SyncOption configures an AssetSynchronizer
type SyncOption func(*AssetSynchronizer)

// WithSyncKeyGenerator sets the object key generator
func WithSyncKeyGenerator(g objectkey.Generator) SyncOption {
	return func(s *AssetSynchronizer) {
		s.keys = g
	}
}

// WithSyncLogger sets the logger
func WithSyncLogger(l *slog.Logger) SyncOption {
	return func(s *AssetSynchronizer) {
		s.logger = l
	}
}

// NewAssetSynchronizer creates a synchronizer writing to store.
func NewAssetSynchronizer(store ObjectStore, opts ...SyncOption) *AssetSynchronizer {
	s := &AssetSynchronizer{
		store:  store,
		keys:   objectkey.NewTimestampGenerator(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Sync decides the final URL of an asset field. It uploads in.File when
// present; nothing is deleted here. The caller writes the record with
// FinalURL and then calls Commit on success or Abort on failure.
func (s *AssetSynchronizer) Sync(ctx context.Context, oldURL string, in AssetInput, bucket string) (*SyncResult, error) {
	res := &SyncResult{Bucket: bucket, FinalURL: oldURL}

	switch {
	case in.File != nil:
		key := s.keys.GenerateKey(in.File.Name)
		err := s.store.Upload(ctx, bucket, key, in.File.Reader, in.File.ContentType)
		metrics.RecordUpload(bucket, err)
		if err != nil {
			return nil, &StorageError{Bucket: bucket, Key: key, Op: OpUpload, Err: err}
		}
		publicURL := s.store.PublicURL(bucket, key)
		res.Uploaded = &AssetReference{Bucket: bucket, Path: key, PublicURL: publicURL}
		res.FinalURL = publicURL

	case in.Cleared && oldURL != "":
		res.FinalURL = ""

	case in.ManualURL != "" && in.ManualURL != oldURL:
		// Taken verbatim. The old object stays: a manual edit is not an
		// explicit replace or clear.
		res.FinalURL = in.ManualURL
		return res, nil

	default:
		return res, nil
	}

	if res.FinalURL != oldURL {
		if old, ok := ResolveReference(oldURL, bucket); ok {
			res.Old = old
			res.DeleteOldAfterCommit = true
		} else if oldURL != "" {
			s.logger.Info("Previous asset is not a managed object, leaving it in place",
				"kind", KindReferenceResolution, "bucket", bucket, "url", oldURL)
		}
	}
	return res, nil
}

// Commit removes the replaced object. It must only be called after the
// record write committed. Repeated calls do nothing. Deletion failures are
// logged and swallowed.
func (s *AssetSynchronizer) Commit(ctx context.Context, res *SyncResult) {
	if res == nil || res.settled {
		return
	}
	res.settled = true
	if !res.DeleteOldAfterCommit || res.Old == nil {
		return
	}
	s.remove(ctx, res.Old, "Failed to delete replaced asset")
}

// Abort discards the object uploaded by Sync after a failed record write.
// The previous object is never touched.
func (s *AssetSynchronizer) Abort(ctx context.Context, res *SyncResult) {
	if res == nil || res.settled {
		return
	}
	res.settled = true
	if res.Uploaded == nil {
		return
	}
	s.remove(ctx, res.Uploaded, "Failed to discard uploaded asset")
}

// Remove deletes the object a stored URL points at, if it resolves in
// bucket. It reports whether a deletion succeeded.
func (s *AssetSynchronizer) Remove(ctx context.Context, publicURL, bucket string) bool {
	ref, ok := ResolveReference(publicURL, bucket)
	if !ok {
		return false
	}
	return s.remove(ctx, ref, "Failed to delete asset")
}

func (s *AssetSynchronizer) remove(ctx context.Context, ref *AssetReference, msg string) bool {
	err := s.store.Delete(ctx, ref.Bucket, ref.Path)
	metrics.RecordObjectDeletion(ref.Bucket, err)
	if err != nil {
		werr := &StorageError{Bucket: ref.Bucket, Key: ref.Path, Op: OpDelete, Err: err}
		s.logger.Warn(msg, "kind", KindStorageDeletion, "bucket", ref.Bucket, "path", ref.Path, "error", werr)
		return false
	}
	s.logger.Debug("Deleted asset", "bucket", ref.Bucket, "path", ref.Path)
	return true
}
