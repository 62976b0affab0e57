package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/tendant/portfolio-content/pkg/portfolio/urlstrategy"
)

// Option applies configuration to a ServerConfig instance.
type Option func(*ServerConfig) error

// Load constructs a ServerConfig by applying the supplied options on top of library defaults.
func Load(opts ...Option) (*ServerConfig, error) {
	cfg := defaults()

	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func defaults() ServerConfig {
	return ServerConfig{
		Environment:   "development",
		DatabaseType:  "memory",
		DBSchema:      "public",
		StorageType:   "memory",
		PublicBaseURL: "http://localhost:8080/storage",
		URLStyle:      string(urlstrategy.StrategyTypePath),
		ObjectKeys:    "timestamp",
		S3: S3Config{
			Region: "us-east-1",
		},
		SessionTTL: 12 * time.Hour,
		Countdown:  5 * time.Second,
		CacheSize:  128,
	}
}

// ServerConfig represents configuration for the portfolio content service
type ServerConfig struct {
	Environment string // development, production, testing

	// Database configuration
	DatabaseType string // "memory", "sqlite", "postgres"
	DatabaseURL  string // sqlite file path or postgres connection string
	DBSchema     string // Postgres schema to use (default: public)

	// Object storage configuration
	StorageType   string // "memory", "fs", "s3"
	StorageDir    string // base directory of the fs backend
	PublicBaseURL string // base of every public object URL
	URLStyle      string // "path" or "supabase"
	ObjectKeys    string // "timestamp" or "sharded"
	S3            S3Config

	// Admin sessions
	JWTSecret  string
	SessionTTL time.Duration

	// Re-authentication. A password hash selects the static authenticator,
	// an identity URL the remote one.
	AdminIdentifier   string
	AdminPasswordHash string
	IdentityURL       string
	IdentityAPIKey    string

	// Bulk deletion
	PurgeFunctionURL   string
	PurgeFunctionToken string
	Countdown          time.Duration

	// Public view cache entries
	CacheSize int

	// SHA-256 hex of the key required on /metrics; empty leaves it open
	MetricsAPIKeySHA256 string
}

// S3Config holds settings of the S3 storage backend
type S3Config struct {
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	UsePathStyle    bool
	CreateBuckets   bool
}

// IsProduction reports whether the service runs in production.
func (c *ServerConfig) IsProduction() bool {
	return c.Environment == "production"
}

// Validate validates the server configuration
func (c *ServerConfig) Validate() error {
	switch c.DatabaseType {
	case "memory":
	case "sqlite", "postgres":
		if c.DatabaseURL == "" {
			return fmt.Errorf("database_url is required when using %s", c.DatabaseType)
		}
	default:
		return errors.New("database_type must be 'memory', 'sqlite' or 'postgres'")
	}

	switch c.StorageType {
	case "memory", "s3":
	case "fs":
		if c.StorageDir == "" {
			return errors.New("storage directory is required when using fs storage")
		}
	default:
		return errors.New("storage_type must be 'memory', 'fs' or 's3'")
	}

	if c.PublicBaseURL == "" {
		return errors.New("public base URL is required")
	}
	switch urlstrategy.StrategyType(c.URLStyle) {
	case urlstrategy.StrategyTypePath, urlstrategy.StrategyTypeSupabase:
	default:
		return fmt.Errorf("unknown URL style: %s", c.URLStyle)
	}

	if c.ObjectKeys != "timestamp" && c.ObjectKeys != "sharded" {
		return fmt.Errorf("unknown object key strategy: %s", c.ObjectKeys)
	}

	if c.Countdown < time.Second {
		return errors.New("countdown must be at least one second")
	}
	if c.SessionTTL <= 0 {
		return errors.New("session TTL must be positive")
	}
	if c.CacheSize <= 0 {
		return errors.New("cache size must be positive")
	}

	if c.AdminPasswordHash != "" && c.AdminIdentifier == "" {
		return errors.New("admin identifier is required with an admin password hash")
	}

	if c.IsProduction() {
		if c.JWTSecret == "" {
			return errors.New("jwt secret is required in production")
		}
		if c.AdminPasswordHash == "" && c.IdentityURL == "" {
			return errors.New("an admin password hash or identity URL is required in production")
		}
	}

	return nil
}
