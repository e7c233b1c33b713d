// Package moderator glues inbound events to the rate tracker and drives the
// admin remediation workflow: alert on a burst, then apply exactly one of
// delete-all, deactivate, or ignore when the admin clicks a button.
package moderator

import (
	"context"
	"fmt"

	"slackmod/internal/audit"
	"slackmod/internal/platform"
	"slackmod/internal/storage"
	"slackmod/internal/tracker"

	"go.uber.org/zap"
)

// Tracker is the rate-tracking surface the moderator drives. Tracked state
// is only ever read and cleared through it.
type Tracker interface {
	Track(ctx context.Context, userID, channelID, messageTS, text string) (tracker.Result, error)
	Get(ctx context.Context, userID string) ([]storage.MessageRecord, error)
	Clear(ctx context.Context, userID string) error
}

// Platform is the outbound capability surface toward the chat platform.
type Platform interface {
	PostAlert(ctx context.Context, userID string, records []storage.MessageRecord) (platform.AlertRef, error)
	DeleteMessage(ctx context.Context, channelID, messageTS string) error
	DeactivateUser(ctx context.Context, userID string) error
	UpdateAlert(ctx context.Context, ref platform.AlertRef, text string) error
}

// MessageEvent is a normalized inbound message.
type MessageEvent struct {
	UserID    string
	ChannelID string
	MessageTS string
	Text      string
	SubType   string
	BotID     string
}

// Action is the closed set of remediation choices on an alert.
type Action int

const (
	ActionDeleteMessages Action = iota
	ActionDeactivateUser
	ActionIgnoreAlert
)

// ParseAction maps a wire action identifier to its Action. Unknown
// identifiers report false.
func ParseAction(actionID string) (Action, bool) {
	switch actionID {
	case platform.ActionIDDeleteMessages:
		return ActionDeleteMessages, true
	case platform.ActionIDDeactivateUser:
		return ActionDeactivateUser, true
	case platform.ActionIDIgnoreAlert:
		return ActionIgnoreAlert, true
	default:
		return 0, false
	}
}

// ActionRequest is a parsed button click from the admin alert.
type ActionRequest struct {
	Action       Action
	TargetUserID string
	Alert        platform.AlertRef
}

type Moderator struct {
	tracker     Tracker
	platform    Platform
	audit       *audit.Logger
	logger      *zap.Logger
	adminUserID string
}

func New(trk Tracker, plat Platform, auditLogger *audit.Logger, logger *zap.Logger, adminUserID string) *Moderator {
	return &Moderator{
		tracker:     trk,
		platform:    plat,
		audit:       auditLogger,
		logger:      logger,
		adminUserID: adminUserID,
	}
}

// HandleMessage tracks an authored message and alerts the admin when the
// user crosses the threshold. Store failures leave the event uncounted;
// alert failures keep the tracked state so a later burst re-alerts.
func (m *Moderator) HandleMessage(ctx context.Context, event MessageEvent) {
	if !m.shouldTrack(event) {
		return
	}

	result, err := m.tracker.Track(ctx, event.UserID, event.ChannelID, event.MessageTS, event.Text)
	if err != nil {
		m.logger.Error("tracking failed, message not counted",
			zap.String("user_id", event.UserID),
			zap.Error(err),
		)
		return
	}
	if !result.Exceeded {
		return
	}

	m.logger.Info("message threshold exceeded",
		zap.String("user_id", event.UserID),
		zap.Int("count", result.Count),
	)
	m.audit.Log(ctx, audit.LevelWarn, event.UserID, audit.EventRateFlagged,
		fmt.Sprintf("%d messages in window", result.Count))

	if _, err := m.platform.PostAlert(ctx, event.UserID, result.Records); err != nil {
		// Tracked state stays put so nothing is lost; the next burst
		// message triggers another alert attempt.
		m.logger.Error("alert failed, tracked state retained",
			zap.String("user_id", event.UserID),
			zap.Error(err),
		)
	}
}

// HandleAction applies one remediation choice from the admin alert and edits
// the alert in place with the outcome.
func (m *Moderator) HandleAction(ctx context.Context, request ActionRequest) {
	switch request.Action {
	case ActionDeleteMessages:
		m.deleteMessages(ctx, request)
	case ActionDeactivateUser:
		m.deactivateUser(ctx, request)
	case ActionIgnoreAlert:
		m.ignoreAlert(ctx, request)
	}
}

func (m *Moderator) deleteMessages(ctx context.Context, request ActionRequest) {
	records, err := m.tracker.Get(ctx, request.TargetUserID)
	if err != nil {
		m.logger.Error("loading tracked messages failed",
			zap.String("user_id", request.TargetUserID),
			zap.Error(err),
		)
		return
	}
	if len(records) == 0 {
		m.editAlert(ctx, request.Alert, fmt.Sprintf("No messages found for <@%s>.", request.TargetUserID))
		return
	}

	deleted, failed := 0, 0
	for _, record := range records {
		if record.ChannelID == "" || record.MessageTS == "" {
			failed++
			continue
		}
		if err := m.platform.DeleteMessage(ctx, record.ChannelID, record.MessageTS); err != nil {
			m.logger.Warn("message delete failed",
				zap.String("channel_id", record.ChannelID),
				zap.String("message_ts", record.MessageTS),
				zap.Error(err),
			)
			failed++
			continue
		}
		deleted++
	}

	// Cleared regardless of partial failure; failures are surfaced in the
	// alert text only, not retried.
	if err := m.tracker.Clear(ctx, request.TargetUserID); err != nil {
		m.logger.Error("clearing tracked messages failed",
			zap.String("user_id", request.TargetUserID),
			zap.Error(err),
		)
	}

	m.audit.Log(ctx, audit.LevelInfo, request.TargetUserID, audit.EventMessagesDeleted,
		fmt.Sprintf("deleted %d, failed %d", deleted, failed))

	text := fmt.Sprintf("✅ Deleted %d messages for <@%s>.", deleted, request.TargetUserID)
	if failed > 0 {
		text += fmt.Sprintf(" Failed to delete %d messages.", failed)
	}
	m.editAlert(ctx, request.Alert, text)
}

func (m *Moderator) deactivateUser(ctx context.Context, request ActionRequest) {
	if err := m.platform.DeactivateUser(ctx, request.TargetUserID); err != nil {
		// Tracked state is kept so the admin can retry from a fresh alert.
		m.logger.Error("deactivation failed",
			zap.String("user_id", request.TargetUserID),
			zap.Error(err),
		)
		m.editAlert(ctx, request.Alert, fmt.Sprintf("❌ Failed to deactivate user <@%s>: %v", request.TargetUserID, err))
		return
	}

	if err := m.tracker.Clear(ctx, request.TargetUserID); err != nil {
		m.logger.Error("clearing tracked messages failed",
			zap.String("user_id", request.TargetUserID),
			zap.Error(err),
		)
	}
	m.audit.Log(ctx, audit.LevelInfo, request.TargetUserID, audit.EventUserDeactivated, "account deactivated")
	m.editAlert(ctx, request.Alert, fmt.Sprintf("✅ User <@%s> has been deactivated.", request.TargetUserID))
}

func (m *Moderator) ignoreAlert(ctx context.Context, request ActionRequest) {
	if err := m.tracker.Clear(ctx, request.TargetUserID); err != nil {
		m.logger.Error("clearing tracked messages failed",
			zap.String("user_id", request.TargetUserID),
			zap.Error(err),
		)
	}
	m.audit.Log(ctx, audit.LevelInfo, request.TargetUserID, audit.EventAlertIgnored, "alert dismissed")
	m.editAlert(ctx, request.Alert, fmt.Sprintf("Alert ignored for <@%s>. Tracked messages cleared.", request.TargetUserID))
}

func (m *Moderator) editAlert(ctx context.Context, ref platform.AlertRef, text string) {
	if err := m.platform.UpdateAlert(ctx, ref, text); err != nil {
		m.logger.Error("alert update failed",
			zap.String("channel_id", ref.ChannelID),
			zap.String("message_ts", ref.MessageTS),
			zap.Error(err),
		)
	}
}

func (m *Moderator) shouldTrack(event MessageEvent) bool {
	switch event.SubType {
	case "bot_message", "message_changed", "message_deleted":
		return false
	}
	if event.BotID != "" {
		return false
	}
	if event.UserID == "" || event.UserID == m.adminUserID {
		return false
	}
	return true
}
