package config

import (
	"fmt"
	"time"
)

// WithEnvironment sets the environment (development, production, testing)
func WithEnvironment(env string) Option {
	return func(c *ServerConfig) error {
		if env == "" {
			return fmt.Errorf("environment cannot be empty")
		}
		c.Environment = env
		return nil
	}
}

// WithDatabase configures the database backend
func WithDatabase(dbType, url string) Option {
	return func(c *ServerConfig) error {
		switch dbType {
		case "memory":
			url = ""
		case "sqlite", "postgres":
			if url == "" {
				return fmt.Errorf("database URL is required for %s", dbType)
			}
		default:
			return fmt.Errorf("database type must be 'memory', 'sqlite' or 'postgres', got: %s", dbType)
		}
		c.DatabaseType = dbType
		c.DatabaseURL = url
		return nil
	}
}

// WithDatabaseSchema sets the database schema (for Postgres)
func WithDatabaseSchema(schema string) Option {
	return func(c *ServerConfig) error {
		c.DBSchema = schema
		return nil
	}
}

// WithMemoryStorage keeps objects in process memory
func WithMemoryStorage() Option {
	return func(c *ServerConfig) error {
		c.StorageType = "memory"
		c.StorageDir = ""
		return nil
	}
}

// WithFilesystemStorage stores objects below baseDir
func WithFilesystemStorage(baseDir string) Option {
	return func(c *ServerConfig) error {
		if baseDir == "" {
			return fmt.Errorf("filesystem base directory cannot be empty")
		}
		c.StorageType = "fs"
		c.StorageDir = baseDir
		return nil
	}
}

// WithS3Storage stores objects in S3 or an S3-compatible service
func WithS3Storage(s3 S3Config) Option {
	return func(c *ServerConfig) error {
		if s3.Region == "" {
			s3.Region = "us-east-1"
		}
		c.StorageType = "s3"
		c.S3 = s3
		return nil
	}
}

// WithPublicURLs sets how public object URLs are built
func WithPublicURLs(style, baseURL string) Option {
	return func(c *ServerConfig) error {
		if baseURL == "" {
			return fmt.Errorf("public base URL cannot be empty")
		}
		if style != "" {
			c.URLStyle = style
		}
		c.PublicBaseURL = baseURL
		return nil
	}
}

// WithObjectKeys selects the object key strategy ("timestamp" or "sharded")
func WithObjectKeys(strategy string) Option {
	return func(c *ServerConfig) error {
		c.ObjectKeys = strategy
		return nil
	}
}

// WithJWTSecret sets the secret signing admin session tokens
func WithJWTSecret(secret string, ttl time.Duration) Option {
	return func(c *ServerConfig) error {
		if secret == "" {
			return fmt.Errorf("jwt secret cannot be empty")
		}
		c.JWTSecret = secret
		if ttl > 0 {
			c.SessionTTL = ttl
		}
		return nil
	}
}

// WithStaticAdmin authenticates the single administrator against a bcrypt hash
func WithStaticAdmin(identifier, passwordHash string) Option {
	return func(c *ServerConfig) error {
		if identifier == "" || passwordHash == "" {
			return fmt.Errorf("admin identifier and password hash are required")
		}
		c.AdminIdentifier = identifier
		c.AdminPasswordHash = passwordHash
		return nil
	}
}

// WithIdentityService authenticates against a GoTrue-compatible identity service
func WithIdentityService(url, apiKey string) Option {
	return func(c *ServerConfig) error {
		if url == "" {
			return fmt.Errorf("identity URL cannot be empty")
		}
		c.IdentityURL = url
		c.IdentityAPIKey = apiKey
		return nil
	}
}

// WithPurgeFunction sets the remote function executing bulk deletions
func WithPurgeFunction(url, token string) Option {
	return func(c *ServerConfig) error {
		c.PurgeFunctionURL = url
		c.PurgeFunctionToken = token
		return nil
	}
}

// WithCountdown sets the delay between re-authentication and confirmation
func WithCountdown(d time.Duration) Option {
	return func(c *ServerConfig) error {
		c.Countdown = d
		return nil
	}
}

// WithCacheSize sets how many public table views are cached
func WithCacheSize(size int) Option {
	return func(c *ServerConfig) error {
		c.CacheSize = size
		return nil
	}
}
