// Package platform wraps the Slack Web API calls the moderator needs:
// posting the admin alert, deleting flagged messages, deactivating accounts,
// and editing the alert in place with the remediation outcome.
package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"slackmod/internal/config"
	"slackmod/internal/storage"

	"github.com/slack-go/slack"
	"go.uber.org/zap"
)

// Wire action identifiers carried by the alert buttons. The interaction
// callback echoes these back on click.
const (
	ActionIDDeleteMessages = "delete_messages"
	ActionIDDeactivateUser = "deactivate_user"
	ActionIDIgnoreAlert    = "ignore_alert"
)

const (
	previewCount  = 5
	previewLength = 200
)

// AlertRef identifies a posted alert so it can be edited later.
type AlertRef struct {
	ChannelID string
	MessageTS string
}

type Client struct {
	bot         *slack.Client
	admin       *slack.Client
	httpClient  *http.Client
	apiURL      string
	adminToken  string
	adminUserID string
	window      time.Duration
	timeout     time.Duration
	logger      *zap.Logger
}

func New(cfg *config.Config, logger *zap.Logger) *Client {
	timeout := time.Duration(cfg.CallTimeoutSec) * time.Second
	httpClient := &http.Client{Timeout: timeout}
	return &Client{
		bot:         slack.New(cfg.BotToken, slack.OptionAPIURL(cfg.SlackAPIURL), slack.OptionHTTPClient(httpClient)),
		admin:       slack.New(cfg.AdminToken, slack.OptionAPIURL(cfg.SlackAPIURL), slack.OptionHTTPClient(httpClient)),
		httpClient:  httpClient,
		apiURL:      cfg.SlackAPIURL,
		adminToken:  cfg.AdminToken,
		adminUserID: cfg.AdminUserID,
		window:      time.Duration(cfg.Tracker.WindowSeconds) * time.Second,
		timeout:     timeout,
		logger:      logger,
	}
}

// PostAlert sends the interactive moderation alert to the admin DM and
// returns the reference needed to edit it later.
func (c *Client) PostAlert(ctx context.Context, userID string, records []storage.MessageRecord) (AlertRef, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	channel, ts, err := c.bot.PostMessageContext(ctx, c.adminUserID,
		slack.MsgOptionText(fmt.Sprintf("Message rate limit exceeded for user %s", userID), false),
		slack.MsgOptionBlocks(c.alertBlocks(userID, records)...),
	)
	if err != nil {
		return AlertRef{}, fmt.Errorf("post alert: %w", err)
	}
	return AlertRef{ChannelID: channel, MessageTS: ts}, nil
}

// DeleteMessage removes a single message using the elevated token. Transport
// failures are retried once; the call is idempotent on the platform side.
func (c *Client) DeleteMessage(ctx context.Context, channelID, messageTS string) error {
	err := c.deleteOnce(ctx, channelID, messageTS)
	if err != nil && isTransportError(err) {
		c.logger.Warn("delete retry after transport error",
			zap.String("channel_id", channelID),
			zap.String("message_ts", messageTS),
			zap.Error(err),
		)
		err = c.deleteOnce(ctx, channelID, messageTS)
	}
	if err != nil {
		return fmt.Errorf("delete message %s/%s: %w", channelID, messageTS, err)
	}
	return nil
}

func (c *Client) deleteOnce(ctx context.Context, channelID, messageTS string) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	_, _, err := c.admin.DeleteMessageContext(ctx, channelID, messageTS)
	return err
}

// DeactivateUser calls admin.users.setInactive, which slack-go does not
// cover, as a direct POST with the elevated token. An ok:false response is
// returned as an error carrying the platform error code.
func (c *Client) DeactivateUser(ctx context.Context, userID string) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := json.Marshal(map[string]string{"user_id": userID})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL+"admin.users.setInactive", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.adminToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("deactivate user %s: %w", userID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("deactivate user %s: status %d", userID, resp.StatusCode)
	}

	var decoded struct {
		OK    bool   `json:"ok"`
		Error string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return fmt.Errorf("deactivate user %s: %w", userID, err)
	}
	if !decoded.OK {
		if decoded.Error == "" {
			decoded.Error = "unknown error"
		}
		return fmt.Errorf("deactivate user %s: %s", userID, decoded.Error)
	}
	return nil
}

// UpdateAlert replaces the alert body with a single outcome line, dropping
// the action buttons so the remediation cannot be triggered twice.
func (c *Client) UpdateAlert(ctx context.Context, ref AlertRef, text string) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	_, _, _, err := c.bot.UpdateMessageContext(ctx, ref.ChannelID, ref.MessageTS,
		slack.MsgOptionText(text, false),
		slack.MsgOptionBlocks(
			slack.NewSectionBlock(slack.NewTextBlockObject(slack.MarkdownType, text, false, false), nil, nil),
		),
	)
	if err != nil {
		return fmt.Errorf("update alert %s/%s: %w", ref.ChannelID, ref.MessageTS, err)
	}
	return nil
}

func (c *Client) alertBlocks(userID string, records []storage.MessageRecord) []slack.Block {
	blocks := []slack.Block{
		slack.NewHeaderBlock(slack.NewTextBlockObject(slack.PlainTextType, "⚠️ Message Rate Limit Exceeded", true, false)),
		slack.NewSectionBlock(slack.NewTextBlockObject(slack.MarkdownType,
			fmt.Sprintf("User <@%s> has posted %d messages in the last %s.", userID, len(records), c.window), false, false), nil, nil),
		slack.NewDividerBlock(),
	}

	shown := records
	if len(shown) > previewCount {
		shown = shown[:previewCount]
	}
	for i, record := range shown {
		blocks = append(blocks, slack.NewSectionBlock(slack.NewTextBlockObject(slack.MarkdownType,
			fmt.Sprintf("*Message %d* in <#%s>:\n>%s", i+1, record.ChannelID, truncate(record.Text, previewLength)), false, false), nil, nil))
	}
	if remainder := len(records) - previewCount; remainder > 0 {
		blocks = append(blocks, slack.NewSectionBlock(slack.NewTextBlockObject(slack.MarkdownType,
			fmt.Sprintf("_...and %d more messages_", remainder), false, false), nil, nil))
	}

	blocks = append(blocks, slack.NewDividerBlock())

	deleteButton := slack.NewButtonBlockElement(ActionIDDeleteMessages, userID,
		slack.NewTextBlockObject(slack.PlainTextType, "🗑️ Delete All Messages", true, false)).
		WithStyle(slack.StyleDanger)

	deactivateButton := slack.NewButtonBlockElement(ActionIDDeactivateUser, userID,
		slack.NewTextBlockObject(slack.PlainTextType, "🚫 Deactivate User", true, false)).
		WithStyle(slack.StyleDanger).
		WithConfirm(slack.NewConfirmationBlockObject(
			slack.NewTextBlockObject(slack.PlainTextType, "Are you sure?", false, false),
			slack.NewTextBlockObject(slack.MarkdownType,
				fmt.Sprintf("This will deactivate user <@%s>. This action cannot be undone from this interface.", userID), false, false),
			slack.NewTextBlockObject(slack.PlainTextType, "Deactivate", false, false),
			slack.NewTextBlockObject(slack.PlainTextType, "Cancel", false, false),
		))

	ignoreButton := slack.NewButtonBlockElement(ActionIDIgnoreAlert, userID,
		slack.NewTextBlockObject(slack.PlainTextType, "✅ Ignore", true, false))

	blocks = append(blocks, slack.NewActionBlock("moderation_actions", deleteButton, deactivateButton, ignoreButton))
	return blocks
}

func isTransportError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

func truncate(text string, limit int) string {
	if len(text) <= limit {
		return text
	}
	return text[:limit]
}
