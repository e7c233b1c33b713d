// Package server is the HTTP ingestion adapter. It classifies inbound Slack
// payloads (liveness challenge, interactive button click, message event) and
// dispatches them to the moderator.
package server

import (
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"slackmod/internal/analytics"
	"slackmod/internal/moderator"
	"slackmod/internal/platform"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"go.uber.org/zap"
)

type Server struct {
	logger        *zap.Logger
	moderator     *moderator.Moderator
	analytics     *analytics.Service
	healthEnabled bool
}

func New(mod *moderator.Moderator, analyticsSvc *analytics.Service, logger *zap.Logger, healthEnabled bool) *Server {
	return &Server{
		logger:        logger,
		moderator:     mod,
		analytics:     analyticsSvc,
		healthEnabled: healthEnabled,
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/slack/events", s.handleEvents)
	mux.HandleFunc("/stats", s.handleStats)
	if s.healthEnabled {
		mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ok"))
		})
	}
	return mux
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		s.logger.Warn("body read failed", zap.Error(err))
		s.ack(w)
		return
	}
	body = normalizeBody(body)

	// Interactive button clicks arrive form-encoded with the callback JSON
	// in a payload parameter.
	if payload, ok := extractPayload(body); ok {
		s.handleInteraction(r, payload)
		s.ack(w)
		return
	}

	// Liveness handshake: echo the challenge token verbatim.
	var probe struct {
		Challenge string `json:"challenge"`
	}
	if err := json.Unmarshal(body, &probe); err == nil && probe.Challenge != "" {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(probe.Challenge))
		return
	}

	s.handleEventCallback(r, body)
	s.ack(w)
}

func (s *Server) handleInteraction(r *http.Request, payload string) {
	var callback slack.InteractionCallback
	if err := json.Unmarshal([]byte(payload), &callback); err != nil {
		s.logger.Warn("malformed interaction payload", zap.Error(err))
		return
	}
	if len(callback.ActionCallback.BlockActions) == 0 {
		s.logger.Warn("interaction payload without actions")
		return
	}

	blockAction := callback.ActionCallback.BlockActions[0]
	action, ok := moderator.ParseAction(blockAction.ActionID)
	if !ok {
		s.logger.Warn("unknown action id", zap.String("action_id", blockAction.ActionID))
		return
	}
	if blockAction.Value == "" {
		s.logger.Warn("interaction payload without target user")
		return
	}

	s.moderator.HandleAction(r.Context(), moderator.ActionRequest{
		Action:       action,
		TargetUserID: blockAction.Value,
		Alert: platform.AlertRef{
			ChannelID: callback.Channel.ID,
			MessageTS: callback.Container.MessageTs,
		},
	})
}

func (s *Server) handleEventCallback(r *http.Request, body []byte) {
	event, err := slackevents.ParseEvent(json.RawMessage(body), slackevents.OptionNoVerifyToken())
	if err != nil {
		s.logger.Warn("unparseable event payload", zap.Error(err))
		return
	}
	if event.Type != slackevents.CallbackEvent {
		return
	}

	message, ok := event.InnerEvent.Data.(*slackevents.MessageEvent)
	if !ok {
		return
	}
	s.moderator.HandleMessage(r.Context(), moderator.MessageEvent{
		UserID:    message.User,
		ChannelID: message.Channel,
		MessageTS: message.TimeStamp,
		Text:      message.Text,
		SubType:   message.SubType,
		BotID:     message.BotID,
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	hours := 24
	if raw := r.URL.Query().Get("hours"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			hours = parsed
		}
	}

	report, err := s.analytics.Report(r.Context(), time.Now().Add(-time.Duration(hours)*time.Hour))
	if err != nil {
		s.logger.Error("stats report failed", zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(report)
}

func (s *Server) ack(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"ok":true}`))
}

// normalizeBody decodes a base64-wrapped body. Anything that already looks
// like JSON or form data passes through untouched.
func normalizeBody(body []byte) []byte {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" || strings.HasPrefix(trimmed, "{") || strings.Contains(trimmed, "payload=") {
		return []byte(trimmed)
	}
	decoded, err := base64.StdEncoding.DecodeString(trimmed)
	if err != nil {
		return []byte(trimmed)
	}
	return []byte(strings.TrimSpace(string(decoded)))
}

func extractPayload(body []byte) (string, bool) {
	text := string(body)
	if !strings.HasPrefix(text, "{") && strings.Contains(text, "payload=") {
		values, err := url.ParseQuery(text)
		if err == nil {
			if payload := values.Get("payload"); payload != "" {
				return payload, true
			}
		}
	}

	// The upstream router also forwards the payload pre-extracted as a JSON
	// field.
	var wrapped struct {
		Payload string `json:"payload"`
	}
	if err := json.Unmarshal(body, &wrapped); err == nil && wrapped.Payload != "" {
		return wrapped.Payload, true
	}
	return "", false
}
