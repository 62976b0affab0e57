package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/jwtauth"
	"github.com/go-chi/render"

	"github.com/tendant/portfolio-content/pkg/portfolio"
	"github.com/tendant/portfolio-content/pkg/portfolio/purge"
)

// maxRequestBody bounds record saves, asset uploads included.
const maxRequestBody = 32 << 20

// privateTables are never served by the public listing.
var privateTables = map[string]bool{
	"admin_activity_log":  true,
	"admin_profile":       true,
	"contact_submissions": true,
	"project_views":       true,
	"skill_interactions":  true,
}

// Handler serves the admin and public HTTP API
type Handler struct {
	service    portfolio.Service
	purges     *purge.Manager
	auth       portfolio.Authenticator
	tokens     *jwtauth.JWTAuth
	activity   portfolio.ActivityLogger
	sessionTTL time.Duration
	logger     *slog.Logger
	now        func() time.Time
}

// Option configures a Handler
type Option func(*Handler)

// WithActivityLogger records admin logins
func WithActivityLogger(l portfolio.ActivityLogger) Option {
	return func(h *Handler) { h.activity = l }
}

// WithSessionTTL sets the lifetime of issued session tokens
func WithSessionTTL(ttl time.Duration) Option {
	return func(h *Handler) {
		if ttl > 0 {
			h.sessionTTL = ttl
		}
	}
}

// WithLogger sets the request logger
func WithLogger(l *slog.Logger) Option {
	return func(h *Handler) {
		if l != nil {
			h.logger = l
		}
	}
}

// WithClock overrides the time source of token issuance
func WithClock(now func() time.Time) Option {
	return func(h *Handler) { h.now = now }
}

// NewHandler creates a new API handler
func NewHandler(service portfolio.Service, purges *purge.Manager, auth portfolio.Authenticator, tokens *jwtauth.JWTAuth, opts ...Option) *Handler {
	h := &Handler{
		service:    service,
		purges:     purges,
		auth:       auth,
		tokens:     tokens,
		sessionTTL: 12 * time.Hour,
		logger:     slog.Default(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Routes returns the API routes
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(render.SetContentType(render.ContentTypeJSON))

	r.Post("/auth/login", h.Login)
	r.Get("/public/{table}", h.ListPublic)

	r.Group(func(r chi.Router) {
		r.Use(jwtauth.Verifier(h.tokens))
		r.Use(h.requireSession)

		r.Post("/auth/logout", h.Logout)
		r.Get("/groups", h.ListGroups)
		r.Get("/activity", h.ListActivity)

		r.Route("/records/{table}", func(r chi.Router) {
			r.Get("/", h.ListRecords)
			r.Post("/", h.CreateRecord)
			r.Get("/{id}", h.GetRecord)
			r.Put("/{id}", h.UpdateRecord)
			r.Delete("/{id}", h.DeleteRecord)
		})

		r.Route("/deletion", func(r chi.Router) {
			r.Get("/", h.DeletionStatus)
			r.Put("/selection", h.SelectGroups)
			r.Post("/initiate", h.InitiateDeletion)
			r.Post("/reauthenticate", h.Reauthenticate)
			r.Get("/countdown", h.Countdown)
			r.Post("/confirm", h.ConfirmDeletion)
			r.Post("/cancel", h.CancelDeletion)
			r.Post("/dismiss", h.DismissDeletion)
		})
	})

	return r
}

// ListGroups returns the resource groups a bulk deletion can select
func (h *Handler) ListGroups(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, h.service.Registry().AllGroups())
}

// ListPublic returns the cached public view of a content table
func (h *Handler) ListPublic(w http.ResponseWriter, r *http.Request) {
	table := chi.URLParam(r, "table")
	if privateTables[table] {
		writeError(w, r, h.logger, portfolio.ErrRecordNotFound)
		return
	}

	records, err := h.service.ListPublic(r.Context(), table)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	render.JSON(w, r, toRecordResponses(records))
}
