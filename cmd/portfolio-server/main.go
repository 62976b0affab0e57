package main

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
	"github.com/tendant/chi-demo/app"
	"github.com/tendant/chi-demo/middleware"

	"github.com/tendant/portfolio-content/pkg/portfolio"
	"github.com/tendant/portfolio-content/pkg/portfolio/api"
	"github.com/tendant/portfolio-content/pkg/portfolio/config"
	"github.com/tendant/portfolio-content/pkg/portfolio/metrics"
	fsstorage "github.com/tendant/portfolio-content/pkg/portfolio/storage/fs"
	memorystorage "github.com/tendant/portfolio-content/pkg/portfolio/storage/memory"
	"github.com/tendant/portfolio-content/pkg/portfolio/urlstrategy"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load(config.WithEnv())
	if err != nil {
		slog.Error("Failed to load configuration", "err", err)
		os.Exit(1)
	}

	var logger *slog.Logger
	if cfg.IsProduction() {
		logger = slog.New(slog.NewJSONHandler(os.Stdout, nil))
	} else {
		logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
	slog.SetDefault(logger)

	comps, err := cfg.Build(context.Background(), logger)
	if err != nil {
		slog.Error("Failed to build service", "err", err)
		os.Exit(1)
	}
	defer comps.Close()

	handler := api.NewHandler(comps.Service, comps.Purges, comps.Auth, comps.Tokens,
		api.WithActivityLogger(comps.Activity),
		api.WithSessionTTL(comps.SessionTTL),
		api.WithLogger(logger),
	)

	server := app.DefaultApp()

	app.RoutesHealthz(server.R)
	app.RoutesHealthzReady(server.R)
	if cfg.MetricsAPIKeySHA256 != "" {
		apiKeyMiddleware, err := middleware.ApiKeyMiddleware(middleware.ApiKeyConfig{
			APIKeys: map[string]string{"metrics": cfg.MetricsAPIKeySHA256},
		})
		if err != nil {
			slog.Error("Failed initialize API Key middleware", "err", err)
			os.Exit(1)
		}
		server.R.With(apiKeyMiddleware).Handle("/metrics", metrics.Handler(comps.Metrics))
	} else {
		server.R.Handle("/metrics", metrics.Handler(comps.Metrics))
	}

	if cfg.URLStyle == string(urlstrategy.StrategyTypePath) {
		routesObjects(server.R, cfg.PublicBaseURL, comps.Objects)
	}

	server.R.Route("/api/v1", func(r chi.Router) {
		r.Use(metrics.Middleware)
		r.Mount("/", handler.Routes())
	})

	slog.Info("Portfolio content server starting",
		"environment", cfg.Environment,
		"database", cfg.DatabaseType,
		"storage", cfg.StorageType,
	)
	server.Run()
}

// routesObjects serves stored objects for the local backends, under the
// path of the public base URL. S3 objects are served by S3 itself.
func routesObjects(r chi.Router, publicBaseURL string, objects portfolio.ObjectStore) {
	u, err := url.Parse(publicBaseURL)
	if err != nil {
		slog.Warn("Invalid public base URL, objects are not served", "url", publicBaseURL, "err", err)
		return
	}
	prefix := strings.TrimSuffix(u.Path, "/")
	if prefix == "" || prefix == "/api/v1" || strings.HasPrefix(prefix, "/api/v1/") {
		slog.Warn("Public base URL path must be a dedicated prefix, objects are not served", "url", publicBaseURL)
		return
	}
	pattern := prefix + "/{bucket}/*"

	switch store := objects.(type) {
	case *fsstorage.Backend:
		r.Get(pattern, func(w http.ResponseWriter, r *http.Request) {
			f, err := store.Open(chi.URLParam(r, "bucket"), chi.URLParam(r, "*"))
			if err != nil {
				http.NotFound(w, r)
				return
			}
			defer f.Close()
			info, err := f.Stat()
			if err != nil {
				http.NotFound(w, r)
				return
			}
			http.ServeContent(w, r, info.Name(), info.ModTime(), f)
		})
	case *memorystorage.Backend:
		r.Get(pattern, func(w http.ResponseWriter, r *http.Request) {
			body, contentType, err := store.Download(r.Context(), chi.URLParam(r, "bucket"), chi.URLParam(r, "*"))
			if err != nil {
				http.NotFound(w, r)
				return
			}
			defer body.Close()
			w.Header().Set("Content-Type", contentType)
			_, _ = io.Copy(w, body)
		})
	}
}
