package purge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/tendant/portfolio-content/pkg/portfolio"
	"github.com/tendant/portfolio-content/pkg/portfolio/metrics"
)

// DefaultCountdown is the delay between re-authentication and the moment
// the confirm action becomes available.
const DefaultCountdown = 5 * time.Second

// Status is a snapshot of a protocol.
type Status struct {
	State              State     `json:"state"`
	SelectedGroupKeys  []string  `json:"selected_group_keys"`
	RequestedAt        time.Time `json:"requested_at"`
	CountdownRemaining float64   `json:"countdown_remaining_seconds"`
	ConfirmEnabled     bool      `json:"confirm_enabled"`
	Message            string    `json:"message,omitempty"`
	Error              string    `json:"error,omitempty"`
}

// Protocol is one admin session's bulk-deletion run. Its methods are safe
// for concurrent use; remote calls happen outside the lock.
type Protocol struct {
	mu      sync.Mutex
	state   State
	request *portfolio.DeletionRequest
	session *portfolio.Session
	armedAt time.Time
	message string
	lastErr string
	// gen changes whenever the run is reset, so a re-authentication that
	// finishes after a cancel cannot arm the countdown.
	gen uint64

	registry  *portfolio.Registry
	auth      portfolio.Authenticator
	invoker   Invoker
	activity  portfolio.ActivityLogger
	views     portfolio.ViewInvalidator
	logger    *slog.Logger
	now       func() time.Time
	countdown time.Duration
	tick      time.Duration
}

// Option configures a Protocol
type Option func(*Protocol)

// WithClock sets the time source used by the countdown
func WithClock(now func() time.Time) Option {
	return func(p *Protocol) {
		p.now = now
	}
}

// WithCountdown sets the countdown length
func WithCountdown(d time.Duration) Option {
	return func(p *Protocol) {
		p.countdown = d
	}
}

// WithTickInterval sets how often Ticks reports the remaining time
func WithTickInterval(d time.Duration) Option {
	return func(p *Protocol) {
		p.tick = d
	}
}

// WithActivityLogger sets the audit sink
func WithActivityLogger(l portfolio.ActivityLogger) Option {
	return func(p *Protocol) {
		p.activity = l
	}
}

// WithViewInvalidator sets the cache dropped after a successful purge
func WithViewInvalidator(v portfolio.ViewInvalidator) Option {
	return func(p *Protocol) {
		p.views = v
	}
}

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(p *Protocol) {
		p.logger = l
	}
}

// New creates a protocol in the idle state.
func New(registry *portfolio.Registry, auth portfolio.Authenticator, invoker Invoker, opts ...Option) (*Protocol, error) {
	if registry == nil {
		return nil, errors.New("registry is required")
	}
	if auth == nil {
		return nil, errors.New("authenticator is required")
	}
	if invoker == nil {
		return nil, errors.New("purge invoker is required")
	}

	p := &Protocol{
		state:     StateIdle,
		registry:  registry,
		auth:      auth,
		invoker:   invoker,
		logger:    slog.Default(),
		now:       time.Now,
		countdown: DefaultCountdown,
		tick:      time.Second,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.activity == nil {
		p.activity = portfolio.NewActivityLog(nil, p.logger)
	}
	if p.countdown < 0 {
		p.countdown = 0
	}
	if p.tick <= 0 {
		p.tick = time.Second
	}
	return p, nil
}

// Select replaces the selection. It is only allowed while idle. Unknown
// keys reject the whole selection; an empty selection clears it.
func (p *Protocol) Select(keys []string) error {
	groups, err := p.registry.GroupsByKeys(keys)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != StateIdle {
		return &TransitionError{
			Code:    CodeSelectionLocked,
			From:    p.state,
			To:      p.state,
			Message: fmt.Sprintf("selection cannot change in state %s", p.state),
		}
	}
	if len(groups) == 0 {
		p.request = nil
		return nil
	}
	p.request = &portfolio.DeletionRequest{
		SelectedGroupKeys: portfolio.Keys(groups),
		RequestedAt:       p.now().UTC(),
	}
	return nil
}

// Initiate moves idle to awaiting_password_confirmation. With nothing
// selected or no session it returns ErrNoSelection or ErrNotAuthenticated
// and the state stays idle.
func (p *Protocol) Initiate(session *portfolio.Session) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !canTransition(p.state, StateAwaitingPassword) {
		return invalidTransition(p.state, StateAwaitingPassword)
	}
	if p.request == nil || len(p.request.SelectedGroupKeys) == 0 {
		return portfolio.ErrNoSelection
	}
	if session == nil {
		return portfolio.ErrNotAuthenticated
	}

	p.session = session
	p.message, p.lastErr = "", ""
	p.state = StateAwaitingPassword
	p.logger.Info("Bulk deletion initiated", "session", session.ID, "groups", p.request.SelectedGroupKeys)
	return nil
}

// Reauthenticate verifies the admin's credential. The session's own
// identifier is always the one verified; a supplied identifier that differs
// from it is rejected. On success the countdown starts.
func (p *Protocol) Reauthenticate(ctx context.Context, identifier, credential string) error {
	p.mu.Lock()
	if p.state != StateAwaitingPassword {
		err := invalidTransition(p.state, StateCountdownArmed)
		p.mu.Unlock()
		return err
	}
	session := p.session
	gen := p.gen
	p.mu.Unlock()

	sessionIdentifier := session.UserIdentifier()
	if identifier != "" && !strings.EqualFold(strings.TrimSpace(identifier), sessionIdentifier) {
		metrics.RecordReauthFailure()
		return &portfolio.AuthError{Identifier: identifier, Reason: "identifier does not match the signed-in admin"}
	}

	if err := p.auth.Verify(ctx, sessionIdentifier, credential); err != nil {
		metrics.RecordReauthFailure()
		p.logger.Warn("Re-authentication failed", "session", session.ID, "error", err)
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.gen != gen || p.state != StateAwaitingPassword {
		return &TransitionError{
			Code:    CodeSuperseded,
			From:    p.state,
			To:      StateCountdownArmed,
			Message: "deletion was cancelled during re-authentication",
		}
	}
	p.state = StateCountdownArmed
	p.armedAt = p.now()
	return nil
}

// Remaining returns the time left before confirmation is allowed. It is the
// full countdown before re-authentication and zero once executing.
func (p *Protocol) Remaining() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.remainingLocked()
}

func (p *Protocol) remainingLocked() time.Duration {
	switch p.state {
	case StateIdle, StateAwaitingPassword:
		return p.countdown
	case StateCountdownArmed:
		left := p.countdown - p.now().Sub(p.armedAt)
		if left < 0 {
			return 0
		}
		return left
	}
	return 0
}

// ConfirmEnabled reports whether Confirm would start the purge.
func (p *Protocol) ConfirmEnabled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state == StateCountdownArmed && p.remainingLocked() == 0
}

// Ticks reports the remaining countdown every tick interval. The channel
// closes after reporting zero, when the countdown is left (for example by
// Cancel) or when ctx is done.
func (p *Protocol) Ticks(ctx context.Context) <-chan time.Duration {
	out := make(chan time.Duration, 1)
	go func() {
		defer close(out)
		ticker := time.NewTicker(p.tick)
		defer ticker.Stop()

		for {
			p.mu.Lock()
			armed := p.state == StateCountdownArmed
			left := p.remainingLocked()
			p.mu.Unlock()
			if !armed {
				return
			}

			select {
			case out <- left:
			case <-ctx.Done():
				return
			}
			if left == 0 {
				return
			}

			select {
			case <-ticker.C:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// Confirm invokes the purge function for the selection. It is only
// available once the countdown reached zero. The call is not cancelled
// with ctx: once sent, the purge cannot be taken back.
func (p *Protocol) Confirm(ctx context.Context) (string, error) {
	p.mu.Lock()
	if p.state != StateCountdownArmed {
		err := invalidTransition(p.state, StateExecuting)
		p.mu.Unlock()
		return "", err
	}
	if left := p.remainingLocked(); left > 0 {
		p.mu.Unlock()
		return "", fmt.Errorf("%w: %s left", portfolio.ErrCountdownActive, left.Round(time.Millisecond))
	}

	keys := append([]string(nil), p.request.SelectedGroupKeys...)
	user := p.session.UserIdentifier()
	groups, err := p.registry.GroupsByKeys(keys)
	if err != nil {
		p.state = StateFailed
		p.lastErr = err.Error()
		p.mu.Unlock()
		p.logFailure(ctx, user, keys, err)
		return "", err
	}
	p.state = StateExecuting
	p.gen++
	p.mu.Unlock()

	p.logger.Info("Invoking purge function", "groups", keys, "user", user)
	message, err := p.invoker.Invoke(context.WithoutCancel(ctx), keys)
	metrics.RecordPurge(err)

	if err != nil {
		p.mu.Lock()
		p.state = StateFailed
		p.lastErr = err.Error()
		p.mu.Unlock()

		p.logger.Error("Bulk deletion failed", "groups", keys, "kind", portfolio.Kind(err), "error", err)
		p.logFailure(ctx, user, keys, err)
		return "", err
	}

	p.mu.Lock()
	p.state = StateCompleted
	p.message = message
	p.request = nil
	p.mu.Unlock()

	p.activity.Append(ctx, portfolio.ActivityLogEntry{
		ActionType:     portfolio.ActionDataDeletionSelective,
		Description:    fmt.Sprintf("Deleted content sections: %s", strings.Join(keys, ", ")),
		UserIdentifier: user,
		Details:        map[string]interface{}{"deletedGroupKeys": keys},
	})
	if p.views != nil {
		p.views.InvalidateTables(portfolio.Tables(groups)...)
	}
	p.logger.Info("Bulk deletion completed", "groups", keys, "message", message)
	return message, nil
}

func (p *Protocol) logFailure(ctx context.Context, user string, keys []string, err error) {
	p.activity.Append(ctx, portfolio.ActivityLogEntry{
		ActionType:     portfolio.ActionDataDeletionFailed,
		Description:    fmt.Sprintf("Failed to delete content sections: %s", strings.Join(keys, ", ")),
		UserIdentifier: user,
		Details: map[string]interface{}{
			"requestedGroupKeys": keys,
			"error":              err.Error(),
			"kind":               portfolio.Kind(err),
		},
	})
}

// Cancel abandons the run and clears the selection. It is refused once the
// purge function has been invoked.
func (p *Protocol) Cancel() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch p.state {
	case StateIdle, StateAwaitingPassword, StateCountdownArmed:
	default:
		return invalidTransition(p.state, StateIdle)
	}
	p.reset()
	p.request = nil
	return nil
}

// Dismiss returns a completed or failed run to idle. A failed run keeps
// its selection so it can be retried.
func (p *Protocol) Dismiss() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.state.Terminal() {
		return invalidTransition(p.state, StateIdle)
	}
	p.reset()
	return nil
}

func (p *Protocol) reset() {
	p.state = StateIdle
	p.session = nil
	p.armedAt = time.Time{}
	p.message, p.lastErr = "", ""
	p.gen++
}

// State returns the current state.
func (p *Protocol) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Status returns a snapshot for display.
func (p *Protocol) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()

	st := Status{
		State:              p.state,
		SelectedGroupKeys:  []string{},
		CountdownRemaining: p.remainingLocked().Seconds(),
		ConfirmEnabled:     p.state == StateCountdownArmed && p.remainingLocked() == 0,
		Message:            p.message,
		Error:              p.lastErr,
	}
	if p.request != nil {
		st.SelectedGroupKeys = append(st.SelectedGroupKeys, p.request.SelectedGroupKeys...)
		st.RequestedAt = p.request.RequestedAt
	}
	return st
}
