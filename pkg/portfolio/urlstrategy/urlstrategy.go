package urlstrategy

import (
	"fmt"
	"net/url"
	"strings"
)

// Strategy builds the public URL of an object. Every strategy must place the
// segment "/<bucket>/" directly before the object key, since stored URLs are
// resolved back to keys by locating that segment.
type Strategy interface {
	PublicURL(bucket, key string) string
}

// StrategyType represents the type of URL strategy
type StrategyType string

const (
	// Path-style URLs: {base}/{bucket}/{key}
	StrategyTypePath StrategyType = "path"

	// Supabase-style public object URLs:
	// {base}/storage/v1/object/public/{bucket}/{key}
	StrategyTypeSupabase StrategyType = "supabase"
)

// Config holds configuration for strategy creation
type Config struct {
	Type    StrategyType
	BaseURL string
}

// New creates a URL strategy based on the configuration
func New(config Config) (Strategy, error) {
	if config.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required for %s strategy", config.Type)
	}
	switch config.Type {
	case StrategyTypePath, "":
		return NewPathStrategy(config.BaseURL), nil
	case StrategyTypeSupabase:
		return NewSupabaseStrategy(config.BaseURL), nil
	default:
		return nil, fmt.Errorf("unknown URL strategy type: %s", config.Type)
	}
}

// PathStrategy serves objects from a CDN or reverse proxy keyed by bucket
type PathStrategy struct {
	BaseURL string
}

func NewPathStrategy(baseURL string) *PathStrategy {
	return &PathStrategy{BaseURL: strings.TrimSuffix(baseURL, "/")}
}

func (s *PathStrategy) PublicURL(bucket, key string) string {
	return fmt.Sprintf("%s/%s/%s", s.BaseURL, url.PathEscape(bucket), escapeKey(key))
}

// SupabaseStrategy mirrors the public object URLs of a Supabase project
type SupabaseStrategy struct {
	ProjectURL string
}

func NewSupabaseStrategy(projectURL string) *SupabaseStrategy {
	return &SupabaseStrategy{ProjectURL: strings.TrimSuffix(projectURL, "/")}
}

func (s *SupabaseStrategy) PublicURL(bucket, key string) string {
	return fmt.Sprintf("%s/storage/v1/object/public/%s/%s", s.ProjectURL, url.PathEscape(bucket), escapeKey(key))
}

// escapeKey escapes each path segment, keeping the separators.
func escapeKey(key string) string {
	parts := strings.Split(strings.TrimPrefix(key, "/"), "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}
