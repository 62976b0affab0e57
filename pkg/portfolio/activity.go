package portfolio

import (
	"context"
	"log/slog"
	"time"
)

// ActivityLog is the best-effort audit sink. Append never fails from the
// caller's point of view.
type ActivityLog struct {
	store  ActivityStore
	logger *slog.Logger
	now    func() time.Time
}

var _ ActivityLogger = (*ActivityLog)(nil)

// NewActivityLog creates an activity log writing to store. A nil store
// only logs.
func NewActivityLog(store ActivityStore, logger *slog.Logger) *ActivityLog {
	if logger == nil {
		logger = slog.Default()
	}
	return &ActivityLog{store: store, logger: logger, now: time.Now}
}

// Append inserts entry, filling OccurredAt when it is zero.
func (l *ActivityLog) Append(ctx context.Context, entry ActivityLogEntry) {
	if entry.OccurredAt.IsZero() {
		entry.OccurredAt = l.now().UTC()
	}
	if entry.UserIdentifier == "" {
		entry.UserIdentifier = "unknown"
	}
	if l.store == nil {
		l.logger.Info("Activity", "action", entry.ActionType, "user", entry.UserIdentifier, "description", entry.Description)
		return
	}

	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("Activity log store panicked", "action", entry.ActionType, "panic", r)
		}
	}()
	if err := l.store.InsertActivity(ctx, &entry); err != nil {
		l.logger.Error("Failed to write activity log entry",
			"action", entry.ActionType, "user", entry.UserIdentifier, "error", err)
	}
}
