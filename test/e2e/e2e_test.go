// test/e2e/e2e_test.go
package e2e

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
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"application-sync/internal/audit"
	"application-sync/internal/chat"
	"application-sync/internal/common/config"
	"application-sync/internal/common/logger"
	"application-sync/internal/engine"
	"application-sync/internal/forum"
	"application-sync/internal/interaction"
	"application-sync/internal/models"
	"application-sync/internal/notify"
	"application-sync/internal/scheduler"
	"application-sync/internal/store"
	"application-sync/internal/webhook"
)

// ==========================
// Test Helper Functions
// ==========================

type stubForum struct {
	mu   sync.Mutex
	tags map[int64][]string
}

func (f *stubForum) FetchTopic(_ context.Context, topicID int64) (*models.Topic, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return &models.Topic{ID: topicID, Tags: f.tags[topicID]}, nil
}

func (f *stubForum) SetTags(_ context.Context, topicID int64, tags []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.tags == nil {
		f.tags = make(map[int64][]string)
	}
	f.tags[topicID] = append([]string(nil), tags...)
	return nil
}

var _ forum.Forum = (*stubForum)(nil)

type env struct {
	cfg      *config.Config
	store    *store.MemoryStore
	gateway  *chat.FakeGateway
	forum    *stubForum
	engine   *engine.Engine
	sched    *scheduler.Scheduler
	server   *webhook.Server
	shutdown func()
}

func newEnv(t *testing.T, archiveDelayMinutes int) *env {
	cfg := &config.Config{}
	cfg.Server.ListenPort = 5055
	cfg.Chat.Mode = "test"
	cfg.Chat.BotToken = "bot-token"
	cfg.Chat.TestGuildID = 1
	cfg.Chat.TestNotifyChannelID = 100
	cfg.Chat.TestArchiveChannelID = 900
	cfg.Chat.ClaimRoleNames = []string{"Reviewer"}
	cfg.Chat.OverrideRoleNames = []string{"Leads"}
	cfg.Chat.ArchiveDelayMinutes = archiveDelayMinutes
	cfg.Forum.BaseURL = "https://forum.example"
	cfg.Forum.WebhookSecrets = []string{"hook-secret"}
	cfg.Forum.CategoryID = 7
	cfg.Sync.RetryMaxAttempts = 2
	cfg.Sync.RetryInitialDelayMs = 1
	cfg.Sync.RetryMaxDelayMs = 5

	st := store.NewMemoryStore()
	gw := chat.NewFakeGateway()
	fc := &stubForum{}

	eng, err := engine.New(cfg, st, fc, gw, audit.NoOpIndexer{},
		&notify.LogNotifier{Log: logger.NewNoOpLogger()}, logger.NewTestLogger(t))
	require.NoError(t, err)

	sched := scheduler.New(eng, 0, logger.NewNoOpLogger())
	eng.SetArchiver(sched)

	srv := webhook.NewServer(cfg, eng, nil, logger.NewNoOpLogger())
	srv.Register("/interactions",
		interaction.NewHandler(eng, []string{cfg.Chat.BotToken}, logger.NewNoOpLogger()))

	e := &env{
		cfg: cfg, store: st, gateway: gw, forum: fc,
		engine: eng, sched: sched, server: srv,
		shutdown: sched.Stop,
	}
	t.Cleanup(e.shutdown)
	return e
}

func sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func (e *env) postTopicEvent(t *testing.T, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhooks/forum", bytes.NewReader([]byte(body)))
	req.Header.Set("X-Discourse-Event-Signature", sign([]byte(body), "hook-secret"))
	req.Header.Set("X-Discourse-Event", "topic_created")
	w := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(w, req)
	return w
}

func (e *env) postInteraction(t *testing.T, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/interactions", bytes.NewReader([]byte(body)))
	req.Header.Set("X-Interaction-Signature", sign([]byte(body), "bot-token"))
	w := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(w, req)
	return w
}

func topicPayload(tags string) string {
	return `{"topic": {
		"id": 42,
		"title": "Application 42",
		"slug": "application-42",
		"category_id": 7,
		"tags": [` + tags + `],
		"created_by": {"username": "applicant"}
	}}`
}

func waitFor(t *testing.T, cond func() bool) {
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

// ==========================
// Full Lifecycle Scenario
// ==========================

func TestScenario_ClaimAcceptHoldCancelsArchive(t *testing.T) {
	e := newEnv(t, 30)
	ctx := context.Background()

	// Topic 42 arrives tagged new-application: record created, card posted,
	// unclaimed.
	w := e.postTopicEvent(t, topicPayload(`"new-application"`))
	require.Equal(t, http.StatusOK, w.Code)

	rec, err := e.store.Get(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, models.StatusNew, rec.Status)
	assert.False(t, rec.Claimed())
	assert.Equal(t, 1, e.gateway.CallCount("PostCard"))

	// An authorized reviewer claims through the interaction endpoint: claim
	// set, thread created, controls posted.
	w = e.postInteraction(t, `{
		"custom_id": "app_claim:42",
		"actor": {"id": "u1", "display": "u1", "roles": ["Reviewer"]}
	}`)
	require.Equal(t, http.StatusOK, w.Code)

	rec, err = e.store.Get(ctx, 42)
	require.NoError(t, err)
	require.NotNil(t, rec.ClaimedBy)
	assert.Equal(t, "u1", *rec.ClaimedBy)
	require.NotNil(t, rec.ThreadID)
	require.NotNil(t, rec.ControlMessageID)

	// The accepted tag arrives: status Accepted, archive timer armed.
	w = e.postTopicEvent(t, topicPayload(`"p-file"`))
	require.Equal(t, http.StatusOK, w.Code)

	rec, err = e.store.Get(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, models.StatusAccepted, rec.Status)
	assert.NotNil(t, rec.ArchiveScheduledAt)
	assert.Equal(t, 1, e.sched.Pending())

	// Before the delay elapses the topic is put on hold: timer cancelled,
	// schedule cleared, record not archived.
	w = e.postTopicEvent(t, topicPayload(`"on-hold"`))
	require.Equal(t, http.StatusOK, w.Code)

	rec, err = e.store.Get(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, models.StatusOnHold, rec.Status)
	assert.Nil(t, rec.ArchiveScheduledAt)
	assert.False(t, rec.Archived)
	assert.Equal(t, 0, e.sched.Pending())
}

func TestScenario_ImmediateArchiveRunsSequence(t *testing.T) {
	e := newEnv(t, 0)
	ctx := context.Background()

	require.Equal(t, http.StatusOK, e.postTopicEvent(t, topicPayload(`"new-application"`)).Code)
	require.Equal(t, http.StatusOK, e.postInteraction(t, `{
		"custom_id": "app_claim:42",
		"actor": {"id": "u1", "display": "u1", "roles": ["Reviewer"]}
	}`).Code)

	// Zero delay: the timer fires as soon as the accepted tag lands.
	require.Equal(t, http.StatusOK, e.postTopicEvent(t, topicPayload(`"p-file"`)).Code)

	waitFor(t, func() bool {
		rec, err := e.store.Get(ctx, 42)
		return err == nil && rec.Archived
	})

	rec, err := e.store.Get(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, models.ArchiveStateComplete, rec.ArchiveState)
	assert.Nil(t, rec.ArchiveScheduledAt)
	assert.True(t, e.gateway.Cards[rec.MessageID].Stub)
}

func TestScenario_StatusSelectionRoundTripsWithoutEcho(t *testing.T) {
	e := newEnv(t, 30)
	ctx := context.Background()

	require.Equal(t, http.StatusOK, e.postTopicEvent(t, topicPayload(`"new-application"`)).Code)
	require.Equal(t, http.StatusOK, e.postInteraction(t, `{
		"custom_id": "app_claim:42",
		"actor": {"id": "u1", "display": "u1", "roles": ["Reviewer"]}
	}`).Code)

	// The claimant advances the stage from the controls.
	w := e.postInteraction(t, `{
		"custom_id": "app_set_status:42",
		"values": ["letter-sent"],
		"actor": {"id": "u1", "display": "u1", "roles": ["Reviewer"]}
	}`)
	require.Equal(t, http.StatusOK, w.Code)

	e.forum.mu.Lock()
	written := append([]string(nil), e.forum.tags[42]...)
	e.forum.mu.Unlock()
	assert.Equal(t, []string{"letter-sent"}, written)

	logLines := len(e.engine.Transcript(42))
	editCalls := e.gateway.CallCount("EditCard")

	// The forum echoes the tag write back through the webhook; one display
	// refresh at most, no new log line, no second forum write.
	require.Equal(t, http.StatusOK, e.postTopicEvent(t, topicPayload(`"letter-sent"`)).Code)

	assert.Len(t, e.engine.Transcript(42), logLines)
	assert.LessOrEqual(t, e.gateway.CallCount("EditCard"), editCalls+1)

	rec, err := e.store.Get(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, models.StatusLetterSent, rec.Status)
}

func TestScenario_UnauthorizedActorChangesNothing(t *testing.T) {
	e := newEnv(t, 30)
	ctx := context.Background()

	require.Equal(t, http.StatusOK, e.postTopicEvent(t, topicPayload(`"new-application"`)).Code)

	w := e.postInteraction(t, `{
		"custom_id": "app_claim:42",
		"actor": {"id": "intruder", "display": "intruder", "roles": ["Member"]}
	}`)
	assert.Equal(t, http.StatusForbidden, w.Code)

	rec, err := e.store.Get(ctx, 42)
	require.NoError(t, err)
	assert.False(t, rec.Claimed())
}
