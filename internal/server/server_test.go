package server

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"slackmod/internal/analytics"
	"slackmod/internal/audit"
	"slackmod/internal/moderator"
	"slackmod/internal/platform"
	"slackmod/internal/storage"
	"slackmod/internal/tracker"

	"go.uber.org/zap"
)

type recordingTracker struct {
	tracked []string
	cleared []string
}

func (r *recordingTracker) Track(_ context.Context, userID, _, _, _ string) (tracker.Result, error) {
	r.tracked = append(r.tracked, userID)
	return tracker.Result{Count: len(r.tracked)}, nil
}

func (r *recordingTracker) Get(context.Context, string) ([]storage.MessageRecord, error) {
	return nil, nil
}

func (r *recordingTracker) Clear(_ context.Context, userID string) error {
	r.cleared = append(r.cleared, userID)
	return nil
}

type recordingPlatform struct {
	updates []string
}

func (r *recordingPlatform) PostAlert(context.Context, string, []storage.MessageRecord) (platform.AlertRef, error) {
	return platform.AlertRef{}, nil
}

func (r *recordingPlatform) DeleteMessage(context.Context, string, string) error { return nil }

func (r *recordingPlatform) DeactivateUser(context.Context, string) error { return nil }

func (r *recordingPlatform) UpdateAlert(_ context.Context, _ platform.AlertRef, text string) error {
	r.updates = append(r.updates, text)
	return nil
}

func newTestServer(t *testing.T) (*Server, *recordingTracker, *recordingPlatform) {
	t.Helper()
	store, err := storage.New(":memory:")
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(store.Close)
	if err := store.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	trk := &recordingTracker{}
	plat := &recordingPlatform{}
	mod := moderator.New(trk, plat, audit.NewLogger(store, zap.NewNop()), zap.NewNop(), "UADMIN")
	return New(mod, analytics.New(store), zap.NewNop(), true), trk, plat
}

func post(t *testing.T, handler http.Handler, body, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/slack/events", strings.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, req)
	return recorder
}

func TestChallengeEchoedVerbatim(t *testing.T) {
	srv, _, _ := newTestServer(t)

	resp := post(t, srv.Handler(), `{"challenge":"token-123"}`, "application/json")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if resp.Body.String() != "token-123" {
		t.Fatalf("expected challenge echoed, got %q", resp.Body.String())
	}
}

func TestBase64BodyTolerated(t *testing.T) {
	srv, _, _ := newTestServer(t)

	encoded := base64.StdEncoding.EncodeToString([]byte(`{"challenge":"token-456"}`))
	resp := post(t, srv.Handler(), encoded, "")
	if resp.Body.String() != "token-456" {
		t.Fatalf("expected challenge echoed from base64 body, got %q", resp.Body.String())
	}
}

func TestMessageEventDispatched(t *testing.T) {
	srv, trk, _ := newTestServer(t)

	body := `{
		"type": "event_callback",
		"event": {"type": "message", "user": "U1", "channel": "C1", "ts": "111.222", "text": "hello"}
	}`
	resp := post(t, srv.Handler(), body, "application/json")
	if resp.Code != http.StatusOK || resp.Body.String() != `{"ok":true}` {
		t.Fatalf("expected ok ack, got %d %q", resp.Code, resp.Body.String())
	}
	if len(trk.tracked) != 1 || trk.tracked[0] != "U1" {
		t.Fatalf("expected U1 tracked, got %v", trk.tracked)
	}
}

func TestBotMessageNotDispatched(t *testing.T) {
	srv, trk, _ := newTestServer(t)

	body := `{
		"type": "event_callback",
		"event": {"type": "message", "subtype": "bot_message", "user": "U1", "channel": "C1", "ts": "111.222", "text": "beep"}
	}`
	post(t, srv.Handler(), body, "application/json")
	if len(trk.tracked) != 0 {
		t.Fatalf("bot messages must not be tracked, got %v", trk.tracked)
	}
}

func TestInteractionFormPayload(t *testing.T) {
	srv, trk, plat := newTestServer(t)

	payload := `{
		"type": "block_actions",
		"channel": {"id": "D1"},
		"container": {"type": "message", "message_ts": "9.9", "channel_id": "D1"},
		"actions": [{"type": "button", "block_id": "moderation_actions", "action_id": "ignore_alert", "value": "U1"}]
	}`
	body := "payload=" + url.QueryEscape(payload)
	resp := post(t, srv.Handler(), body, "application/x-www-form-urlencoded")
	if resp.Code != http.StatusOK || resp.Body.String() != `{"ok":true}` {
		t.Fatalf("expected ok ack, got %d %q", resp.Code, resp.Body.String())
	}
	if len(trk.cleared) != 1 || trk.cleared[0] != "U1" {
		t.Fatalf("expected U1 cleared via ignore, got %v", trk.cleared)
	}
	if len(plat.updates) != 1 || !strings.Contains(plat.updates[0], "Alert ignored") {
		t.Fatalf("expected alert edited, got %v", plat.updates)
	}
}

func TestInteractionJSONWrappedPayload(t *testing.T) {
	srv, trk, _ := newTestServer(t)

	inner := `{"type":"block_actions","channel":{"id":"D1"},"container":{"type":"message","message_ts":"9.9"},"actions":[{"type":"button","block_id":"moderation_actions","action_id":"ignore_alert","value":"U2"}]}`
	body := `{"payload":` + quoteJSON(inner) + `}`
	post(t, srv.Handler(), body, "application/json")
	if len(trk.cleared) != 1 || trk.cleared[0] != "U2" {
		t.Fatalf("expected U2 cleared, got %v", trk.cleared)
	}
}

func TestMalformedInteractionAcked(t *testing.T) {
	srv, trk, plat := newTestServer(t)

	body := "payload=" + url.QueryEscape("{not json")
	resp := post(t, srv.Handler(), body, "application/x-www-form-urlencoded")
	if resp.Code != http.StatusOK || resp.Body.String() != `{"ok":true}` {
		t.Fatalf("malformed payload must still ack, got %d %q", resp.Code, resp.Body.String())
	}
	if len(trk.cleared) != 0 || len(plat.updates) != 0 {
		t.Fatalf("malformed payload must have no side effects")
	}
}

func TestHealthEndpoint(t *testing.T) {
	srv, _, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	recorder := httptest.NewRecorder()
	srv.Handler().ServeHTTP(recorder, req)
	if recorder.Code != http.StatusOK || recorder.Body.String() != "ok" {
		t.Fatalf("expected ok, got %d %q", recorder.Code, recorder.Body.String())
	}
}

func TestStatsEndpoint(t *testing.T) {
	srv, _, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/stats", nil)
	recorder := httptest.NewRecorder()
	srv.Handler().ServeHTTP(recorder, req)
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", recorder.Code)
	}
	if !strings.Contains(recorder.Body.String(), `"total"`) {
		t.Fatalf("expected report JSON, got %q", recorder.Body.String())
	}
}

func quoteJSON(s string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `"`, `\"`)
	return `"` + replacer.Replace(s) + `"`
}
