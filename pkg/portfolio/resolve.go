package portfolio

import (
	"log/slog"
	"net/url"
	"strings"
)

// ResolvePath recovers the storage path of an object from its public URL.
//
// The URL path must contain the segment "/<bucket>/"; everything after the
// first occurrence is the path. URLs that do not match, including manually
// entered external URLs, are not eligible for automatic deletion and yield
// ok == false. Malformed URLs are logged and treated the same way.
func ResolvePath(publicURL, bucket string) (path string, ok bool) {
	if publicURL == "" || bucket == "" {
		return "", false
	}

	u, err := url.Parse(publicURL)
	if err != nil {
		slog.Warn("Unparseable asset URL, skipping deletion",
			"kind", KindReferenceResolution, "url", publicURL, "bucket", bucket, "error", err)
		return "", false
	}

	segment := "/" + bucket + "/"
	idx := strings.Index(u.Path, segment)
	if idx < 0 {
		return "", false
	}

	path = u.Path[idx+len(segment):]
	if path == "" {
		return "", false
	}
	return path, true
}

// ResolveReference is ResolvePath returning the full reference.
func ResolveReference(publicURL, bucket string) (*AssetReference, bool) {
	path, ok := ResolvePath(publicURL, bucket)
	if !ok {
		return nil, false
	}
	return &AssetReference{Bucket: bucket, Path: path, PublicURL: publicURL}, true
}
