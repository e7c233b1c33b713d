package audit

import (
	"context"
	"time"

	"slackmod/internal/storage"

	"go.uber.org/zap"
)

const (
	LevelInfo = "INFO"
	LevelWarn = "WARN"
)

// Event names recorded on the moderation trail.
const (
	EventRateFlagged     = "rate_flagged"
	EventMessagesDeleted = "messages_deleted"
	EventUserDeactivated = "user_deactivated"
	EventAlertIgnored    = "alert_ignored"
)

type Logger struct {
	store  *storage.Store
	logger *zap.Logger
}

func NewLogger(store *storage.Store, logger *zap.Logger) *Logger {
	return &Logger{store: store, logger: logger}
}

func (l *Logger) Log(ctx context.Context, level, userID, event, details string) {
	entry := storage.AuditLog{
		UserID:    userID,
		Level:     level,
		Event:     event,
		Details:   details,
		CreatedAt: time.Now(),
	}
	if l.store != nil {
		_ = l.store.AddAuditLog(ctx, entry)
	}
	l.logger.Info("audit",
		zap.String("level", level),
		zap.String("user_id", userID),
		zap.String("event", event),
		zap.String("details", details),
	)
}
