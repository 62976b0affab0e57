package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/jwtauth"
	"github.com/go-chi/render"
	"github.com/google/uuid"

	"github.com/tendant/portfolio-content/pkg/portfolio"
)

type sessionKey struct{}

// LoginRequest is the request body for signing in
type LoginRequest struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
}

// LoginResponse carries the session token
type LoginResponse struct {
	Token      string    `json:"token"`
	ExpiresAt  time.Time `json:"expires_at"`
	Identifier string    `json:"identifier"`
}

// Login verifies the admin's credential and issues a session token
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, h.logger, portfolio.Validationf("invalid request body: %v", err))
		return
	}
	identifier := strings.TrimSpace(req.Identifier)
	if identifier == "" || req.Password == "" {
		writeError(w, r, h.logger, portfolio.Validationf("identifier and password are required"))
		return
	}

	if err := h.auth.Verify(r.Context(), identifier, req.Password); err != nil {
		h.logger.Warn("Admin login failed", "identifier", identifier, "error", err)
		writeError(w, r, h.logger, err)
		return
	}

	now := h.now()
	expires := now.Add(h.sessionTTL)
	session := &portfolio.Session{
		ID:         uuid.NewString(),
		UserID:     identifier,
		Identifier: identifier,
		IssuedAt:   now,
	}
	_, token, err := h.tokens.Encode(map[string]interface{}{
		"sub":        session.UserID,
		"sid":        session.ID,
		"identifier": session.Identifier,
		"iat":        now.UTC(),
		"exp":        expires.UTC(),
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	if h.activity != nil {
		h.activity.Append(r.Context(), portfolio.ActivityLogEntry{
			ActionType:     portfolio.ActionAdminLogin,
			Description:    "Admin signed in",
			UserIdentifier: session.UserIdentifier(),
		})
	}
	h.logger.Info("Admin signed in", "identifier", identifier, "session", session.ID)

	render.JSON(w, r, LoginResponse{Token: token, ExpiresAt: expires.UTC(), Identifier: identifier})
}

// Logout discards the session's deletion protocol. The token itself stays
// valid until it expires.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	session := sessionFrom(r.Context())
	if !h.purges.Drop(session.ID) {
		h.logger.Debug("No deletion protocol to drop", "session", session.ID)
	}
	w.WriteHeader(http.StatusNoContent)
}

// requireSession rejects requests without a valid session token and puts
// the session into the request context.
func (h *Handler) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, claims, err := jwtauth.FromContext(r.Context())
		if err != nil || token == nil {
			writeError(w, r, h.logger, portfolio.ErrNotAuthenticated)
			return
		}

		session := &portfolio.Session{
			ID:         stringClaim(claims, "sid"),
			UserID:     stringClaim(claims, "sub"),
			Identifier: stringClaim(claims, "identifier"),
		}
		if session.ID == "" {
			writeError(w, r, h.logger, portfolio.ErrNotAuthenticated)
			return
		}
		if iat, ok := claims["iat"].(time.Time); ok {
			session.IssuedAt = iat
		}

		ctx := context.WithValue(r.Context(), sessionKey{}, session)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// sessionFrom returns the session put into ctx by requireSession.
func sessionFrom(ctx context.Context) *portfolio.Session {
	session, _ := ctx.Value(sessionKey{}).(*portfolio.Session)
	return session
}

func stringClaim(claims map[string]interface{}, name string) string {
	s, _ := claims[name].(string)
	return s
}
