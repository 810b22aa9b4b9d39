// internal/webhook/server_test.go
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"application-sync/internal/common/config"
	"application-sync/internal/common/logger"
	"application-sync/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Test Helper Functions
// ==========================

type recordingHandler struct {
	mu     sync.Mutex
	events []models.TopicEvent
	err    error
}

func (h *recordingHandler) HandleTopicEvent(_ context.Context, ev models.TopicEvent) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.err != nil {
		return h.err
	}
	h.events = append(h.events, ev)
	return nil
}

func (h *recordingHandler) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.events)
}

func newTestServer(handler EventHandler, secrets ...string) *Server {
	cfg := &config.Config{}
	cfg.Server.ListenPort = 5055
	cfg.Chat.Mode = "test"
	cfg.Forum.BaseURL = "https://forum.example"
	cfg.Forum.WebhookSecrets = secrets
	cfg.Forum.CategoryID = 7
	return NewServer(cfg, handler, nil, logger.NewNoOpLogger())
}

func sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

const validPayload = `{"topic": {
	"id": 42,
	"title": "Application 42",
	"slug": "application-42",
	"category_id": 7,
	"tags": ["new-application"],
	"created_by": {"username": "applicant"}
}}`

func post(s *Server, body []byte, sig, event string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhooks/forum", bytes.NewReader(body))
	if sig != "" {
		req.Header.Set(signatureHeader, sig)
	}
	if event != "" {
		req.Header.Set(eventHeader, event)
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

// ==========================
// Signature Tests
// ==========================

func TestVerifySignature_AcceptsAnyConfiguredSecret(t *testing.T) {
	body := []byte(validPayload)

	assert.True(t, VerifySignature(body, sign(body, "old-secret"), []string{"old-secret", "new-secret"}))
	assert.True(t, VerifySignature(body, sign(body, "new-secret"), []string{"old-secret", "new-secret"}))
	assert.False(t, VerifySignature(body, sign(body, "other"), []string{"old-secret", "new-secret"}))
}

func TestVerifySignature_RejectsBadInput(t *testing.T) {
	body := []byte(validPayload)

	assert.False(t, VerifySignature(body, "", []string{"s"}))
	assert.False(t, VerifySignature(body, "sha256=nothex", []string{"s"}))
	assert.False(t, VerifySignature(body, sign(body, "s"), nil))
}

func TestWebhook_SecretRotation(t *testing.T) {
	h := &recordingHandler{}
	s := newTestServer(h, "old-secret", "new-secret")
	body := []byte(validPayload)

	w := post(s, body, sign(body, "new-secret"), "topic_created")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, h.count())
}

func TestWebhook_InvalidSignatureRejected(t *testing.T) {
	h := &recordingHandler{}
	s := newTestServer(h, "secret")
	body := []byte(validPayload)

	w := post(s, body, sign(body, "wrong"), "topic_created")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "signature verification failed")
	assert.Equal(t, 0, h.count())
}

// ==========================
// Payload Tests
// ==========================

func TestParseTopicEvent_Normalizes(t *testing.T) {
	ev, err := ParseTopicEvent([]byte(validPayload), "topic_created", "https://forum.example/")
	require.NoError(t, err)
	assert.Equal(t, int64(42), ev.TopicID)
	assert.Equal(t, "Application 42", ev.Title)
	assert.Equal(t, "applicant", ev.Author)
	assert.Equal(t, "https://forum.example/t/application-42/42", ev.URL)
	assert.Equal(t, []string{"new-application"}, ev.Tags)
	assert.Equal(t, models.EventTopicCreated, ev.Kind)
}

func TestParseTopicEvent_UpdateKindByDefault(t *testing.T) {
	ev, err := ParseTopicEvent([]byte(validPayload), "topic_edited", "https://forum.example")
	require.NoError(t, err)
	assert.Equal(t, models.EventTopicUpdated, ev.Kind)
}

func TestWebhook_MalformedPayloadRejected(t *testing.T) {
	h := &recordingHandler{}
	s := newTestServer(h, "secret")

	for _, body := range []string{
		`not json`,
		`{"topic": {"title": "no id"}}`,
		`{"topic": {"id": "42", "title": "wrong type", "category_id": 7}}`,
		`{}`,
	} {
		w := post(s, []byte(body), sign([]byte(body), "secret"), "topic_created")
		assert.Equal(t, http.StatusBadRequest, w.Code, "body: %s", body)
	}
	assert.Equal(t, 0, h.count())
}

// ==========================
// Category Filter Tests
// ==========================

func TestWebhook_OtherCategoryAcceptedAndDropped(t *testing.T) {
	h := &recordingHandler{}
	s := newTestServer(h, "secret")
	body := []byte(`{"topic": {"id": 42, "title": "t", "category_id": 99, "tags": []}}`)

	w := post(s, body, sign(body, "secret"), "topic_created")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 0, h.count())
}

// ==========================
// Endpoint Tests
// ==========================

func TestWebhook_MethodNotAllowed(t *testing.T) {
	s := newTestServer(&recordingHandler{}, "secret")
	req := httptest.NewRequest(http.MethodGet, "/webhooks/forum", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestHealth(t *testing.T) {
	s := newTestServer(&recordingHandler{}, "secret")
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)
}

func TestWebhook_HandlerErrorReturns500(t *testing.T) {
	h := &recordingHandler{err: assert.AnError}
	s := newTestServer(h, "secret")
	body := []byte(validPayload)

	w := post(s, body, sign(body, "secret"), "topic_created")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
