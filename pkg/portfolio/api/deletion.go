package api

import (
	"encoding/json"
	"fmt"
	"math"
	"net/http"

	"github.com/go-chi/render"

	"github.com/tendant/portfolio-content/pkg/portfolio"
	"github.com/tendant/portfolio-content/pkg/portfolio/purge"
)

// SelectionRequest replaces the groups selected for deletion
type SelectionRequest struct {
	GroupKeys []string `json:"group_keys"`
}

// ReauthenticateRequest re-verifies the signed-in admin
type ReauthenticateRequest struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
}

// ConfirmResponse reports a completed bulk deletion
type ConfirmResponse struct {
	Message string       `json:"message"`
	Status  purge.Status `json:"status"`
}

// protocol returns the deletion protocol of the request's session.
func (h *Handler) protocol(w http.ResponseWriter, r *http.Request) (*purge.Protocol, bool) {
	p, err := h.purges.For(sessionFrom(r.Context()))
	if err != nil {
		writeError(w, r, h.logger, err)
		return nil, false
	}
	return p, true
}

// DeletionStatus returns the session's deletion protocol status
func (h *Handler) DeletionStatus(w http.ResponseWriter, r *http.Request) {
	p, ok := h.protocol(w, r)
	if !ok {
		return
	}
	render.JSON(w, r, p.Status())
}

// SelectGroups replaces the selection
func (h *Handler) SelectGroups(w http.ResponseWriter, r *http.Request) {
	p, ok := h.protocol(w, r)
	if !ok {
		return
	}
	var req SelectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, h.logger, portfolio.Validationf("invalid request body: %v", err))
		return
	}
	if err := p.Select(req.GroupKeys); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	render.JSON(w, r, p.Status())
}

// InitiateDeletion asks for re-authentication
func (h *Handler) InitiateDeletion(w http.ResponseWriter, r *http.Request) {
	p, ok := h.protocol(w, r)
	if !ok {
		return
	}
	if err := p.Initiate(sessionFrom(r.Context())); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	render.JSON(w, r, p.Status())
}

// Reauthenticate verifies the admin's password and starts the countdown
func (h *Handler) Reauthenticate(w http.ResponseWriter, r *http.Request) {
	p, ok := h.protocol(w, r)
	if !ok {
		return
	}
	var req ReauthenticateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, h.logger, portfolio.Validationf("invalid request body: %v", err))
		return
	}
	if err := p.Reauthenticate(r.Context(), req.Identifier, req.Password); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	render.JSON(w, r, p.Status())
}

// Countdown streams the remaining seconds as server-sent events until
// confirmation is allowed or the countdown is left.
func (h *Handler) Countdown(w http.ResponseWriter, r *http.Request) {
	p, ok := h.protocol(w, r)
	if !ok {
		return
	}
	if p.State() != purge.StateCountdownArmed {
		writeError(w, r, h.logger, &purge.TransitionError{
			Code:    purge.CodeInvalidTransition,
			From:    p.State(),
			To:      purge.StateCountdownArmed,
			Message: "countdown is not running",
		})
		return
	}

	flusher, _ := w.(http.Flusher)
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)

	for left := range p.Ticks(r.Context()) {
		fmt.Fprintf(w, "event: countdown\ndata: %d\n\n", int(math.Ceil(left.Seconds())))
		if flusher != nil {
			flusher.Flush()
		}
	}
	fmt.Fprintf(w, "event: %s\ndata: %t\n\n", p.State(), p.ConfirmEnabled())
	if flusher != nil {
		flusher.Flush()
	}
}

// ConfirmDeletion runs the purge
func (h *Handler) ConfirmDeletion(w http.ResponseWriter, r *http.Request) {
	p, ok := h.protocol(w, r)
	if !ok {
		return
	}
	msg, err := p.Confirm(r.Context())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	render.JSON(w, r, ConfirmResponse{Message: msg, Status: p.Status()})
}

// CancelDeletion abandons the deletion before it executes
func (h *Handler) CancelDeletion(w http.ResponseWriter, r *http.Request) {
	p, ok := h.protocol(w, r)
	if !ok {
		return
	}
	if err := p.Cancel(); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	render.JSON(w, r, p.Status())
}

// DismissDeletion acknowledges a completed or failed deletion
func (h *Handler) DismissDeletion(w http.ResponseWriter, r *http.Request) {
	p, ok := h.protocol(w, r)
	if !ok {
		return
	}
	if err := p.Dismiss(); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	render.JSON(w, r, p.Status())
}
