package config

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/jwtauth"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/tendant/portfolio-content/pkg/portfolio"
	"github.com/tendant/portfolio-content/pkg/portfolio/auth"
	"github.com/tendant/portfolio-content/pkg/portfolio/metrics"
	"github.com/tendant/portfolio-content/pkg/portfolio/objectkey"
	"github.com/tendant/portfolio-content/pkg/portfolio/purge"
	"github.com/tendant/portfolio-content/pkg/portfolio/repo/memory"
	repopg "github.com/tendant/portfolio-content/pkg/portfolio/repo/postgres"
	reposqlite "github.com/tendant/portfolio-content/pkg/portfolio/repo/sqlite"
	fsstorage "github.com/tendant/portfolio-content/pkg/portfolio/storage/fs"
	memorystorage "github.com/tendant/portfolio-content/pkg/portfolio/storage/memory"
	s3storage "github.com/tendant/portfolio-content/pkg/portfolio/storage/s3"
	"github.com/tendant/portfolio-content/pkg/portfolio/urlstrategy"
	"github.com/tendant/portfolio-content/pkg/portfolio/viewcache"
)

// store is a datastore holding both content records and the activity log.
type store interface {
	portfolio.Repository
	portfolio.ActivityStore
}

// Components are the wired collaborators of the service.
type Components struct {
	Registry *portfolio.Registry
	Service  portfolio.Service
	Activity *portfolio.ActivityLog
	Auth     portfolio.Authenticator
	Purges   *purge.Manager
	Views    *viewcache.Cache
	Objects  portfolio.ObjectStore
	Metrics  *prometheus.Registry
	Tokens   *jwtauth.JWTAuth

	SessionTTL time.Duration

	closers []func()
}

// Close releases database connections.
func (c *Components) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
	c.closers = nil
}

// Build wires every component from the configuration. The caller must Close
// the result.
func (c *ServerConfig) Build(ctx context.Context, logger *slog.Logger) (*Components, error) {
	if logger == nil {
		logger = slog.Default()
	}
	comps := &Components{
		Registry:   portfolio.DefaultRegistry(),
		SessionTTL: c.SessionTTL,
	}
	ok := false
	defer func() {
		if !ok {
			comps.Close()
		}
	}()

	comps.Metrics = prometheus.NewRegistry()
	comps.Metrics.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	if err := metrics.Init(comps.Metrics); err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}

	st, err := c.buildStore(ctx, comps)
	if err != nil {
		return nil, fmt.Errorf("failed to build repository: %w", err)
	}

	comps.Objects, err = c.buildObjectStore(ctx, comps.Registry)
	if err != nil {
		return nil, fmt.Errorf("failed to build object store: %w", err)
	}

	comps.Views, err = viewcache.New(c.CacheSize)
	if err != nil {
		return nil, err
	}

	comps.Activity = portfolio.NewActivityLog(st, logger)

	keys, err := c.buildKeyGenerator()
	if err != nil {
		return nil, err
	}

	comps.Service, err = portfolio.New(
		portfolio.WithRepository(st),
		portfolio.WithActivityStore(st),
		portfolio.WithActivityLogger(comps.Activity),
		portfolio.WithObjectStore(comps.Objects),
		portfolio.WithRegistry(comps.Registry),
		portfolio.WithViewCache(comps.Views),
		portfolio.WithKeyGenerator(keys),
		portfolio.WithLogger(logger),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to build service: %w", err)
	}

	comps.Auth, err = c.buildAuthenticator()
	if err != nil {
		return nil, err
	}

	invoker := purge.NewHTTPInvoker(c.PurgeFunctionURL, c.PurgeFunctionToken, &http.Client{Timeout: 60 * time.Second})
	if c.PurgeFunctionURL == "" {
		logger.Warn("PURGE_FUNCTION_URL not set; bulk deletions will fail")
	}
	comps.Purges = purge.NewManager(func() (*purge.Protocol, error) {
		return purge.New(comps.Registry, comps.Auth, invoker,
			purge.WithCountdown(c.Countdown),
			purge.WithActivityLogger(comps.Activity),
			purge.WithViewInvalidator(comps.Views),
			purge.WithLogger(logger),
		)
	}, purge.WithIdleTimeout(c.SessionTTL))

	secret := c.JWTSecret
	if secret == "" {
		secret, err = randomSecret()
		if err != nil {
			return nil, err
		}
		logger.Warn("JWT_SECRET not set; sessions will not survive a restart")
	}
	comps.Tokens = jwtauth.New("HS256", []byte(secret), nil)

	ok = true
	return comps, nil
}

func (c *ServerConfig) buildStore(ctx context.Context, comps *Components) (store, error) {
	switch c.DatabaseType {
	case "memory":
		return memory.New(), nil
	case "sqlite":
		repo, err := reposqlite.Open(c.DatabaseURL)
		if err != nil {
			return nil, err
		}
		comps.closers = append(comps.closers, func() { _ = repo.Close() })
		return repo, nil
	case "postgres":
		pool, err := repopg.Connect(ctx, c.DatabaseURL, c.DBSchema)
		if err != nil {
			return nil, err
		}
		comps.closers = append(comps.closers, pool.Close)
		repo := repopg.NewWithPool(pool)
		if err := repo.ApplySchema(ctx); err != nil {
			return nil, err
		}
		return repo, nil
	default:
		return nil, fmt.Errorf("unsupported database type: %s", c.DatabaseType)
	}
}

func (c *ServerConfig) buildObjectStore(ctx context.Context, registry *portfolio.Registry) (portfolio.ObjectStore, error) {
	urls, err := urlstrategy.New(urlstrategy.Config{
		Type:    urlstrategy.StrategyType(c.URLStyle),
		BaseURL: c.PublicBaseURL,
	})
	if err != nil {
		return nil, err
	}

	switch c.StorageType {
	case "memory":
		return memorystorage.New(urls), nil
	case "fs":
		return fsstorage.New(fsstorage.Config{BaseDir: c.StorageDir, URLs: urls})
	case "s3":
		return s3storage.New(ctx, s3storage.Config{
			Region:                 c.S3.Region,
			AccessKeyID:            c.S3.AccessKeyID,
			SecretAccessKey:        c.S3.SecretAccessKey,
			Endpoint:               c.S3.Endpoint,
			UsePathStyle:           c.S3.UsePathStyle,
			URLs:                   urls,
			CreateBucketIfNotExist: c.S3.CreateBuckets,
			Buckets:                assetBuckets(registry),
		})
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", c.StorageType)
	}
}

func (c *ServerConfig) buildKeyGenerator() (objectkey.Generator, error) {
	switch c.ObjectKeys {
	case "timestamp":
		return objectkey.NewTimestampGenerator(), nil
	case "sharded":
		return objectkey.NewShardedGenerator(), nil
	default:
		return nil, fmt.Errorf("unknown object key strategy: %s", c.ObjectKeys)
	}
}

func (c *ServerConfig) buildAuthenticator() (portfolio.Authenticator, error) {
	switch {
	case c.AdminPasswordHash != "":
		return auth.NewStatic(c.AdminIdentifier, c.AdminPasswordHash)
	case c.IdentityURL != "":
		return auth.NewGoTrue(c.IdentityURL, c.IdentityAPIKey, &http.Client{Timeout: 15 * time.Second})
	default:
		return nil, errors.New("no authenticator configured: set ADMIN_PASSWORD_HASH or IDENTITY_URL")
	}
}

// assetBuckets lists the buckets asset fields upload into.
func assetBuckets(registry *portfolio.Registry) []string {
	seen := map[string]bool{}
	var buckets []string
	for _, b := range registry.AssetBindings() {
		if !seen[b.Bucket] {
			seen[b.Bucket] = true
			buckets = append(buckets, b.Bucket)
		}
	}
	return buckets
}

func randomSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate jwt secret: %w", err)
	}
	return hex.EncodeToString(b), nil
}
