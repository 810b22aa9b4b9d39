// internal/forum/client_test.go
package forum

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"application-sync/internal/common/config"
	"application-sync/internal/common/database"
	apperrors "application-sync/internal/common/errors"
	"application-sync/internal/common/logger"
	"application-sync/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Test Helper Functions
// ==========================

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	cfg := config.ForumConfig{
		BaseURL: srv.URL,
		APIKey:  "test-key",
		APIUser: "system",
	}
	return NewClient(cfg, 5*time.Second, logger.NewNoOpLogger()), srv
}

func newTestRedis(t *testing.T) *database.RedisClient {
	mr := miniredis.RunT(t)
	rc, err := database.NewRedis(config.RedisConfig{Address: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { rc.Close() })
	return rc
}

const topicJSON = `{
	"id": 42,
	"title": "Application 42",
	"slug": "application-42",
	"category_id": 7,
	"tags": ["new-application", "region-west"],
	"details": {"created_by": {"username": "applicant"}},
	"post_stream": {"posts": [{"username": "first-poster"}]}
}`

// ==========================
// Fetch Tests
// ==========================

func TestFetchTopic_ParsesTopicAndAuthor(t *testing.T) {
	c, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/t/42.json", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("Api-Key"))
		assert.Equal(t, "system", r.Header.Get("Api-Username"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(topicJSON))
	})

	topic, err := c.FetchTopic(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, int64(42), topic.ID)
	assert.Equal(t, "applicant", topic.Author)
	assert.Equal(t, []string{"new-application", "region-west"}, topic.Tags)
	assert.Equal(t, srv.URL+"/t/application-42/42", topic.URL)
}

func TestFetchTopic_AuthorFallsBackToFirstPost(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{
			"id": 42, "title": "t", "slug": "t", "category_id": 7,
			"post_stream": {"posts": [{"username": "first-poster"}]}
		}`))
	})

	topic, err := c.FetchTopic(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, "first-poster", topic.Author)
}

func TestFetchTopic_ErrorStatus(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	_, err := c.FetchTopic(context.Background(), 42)
	assert.Equal(t, apperrors.ErrCodeForumServiceFailed, apperrors.CodeOf(err))
	assert.False(t, apperrors.IsRetryable(err))
}

func TestSetTags_RetryabilityFollowsStatus(t *testing.T) {
	status := http.StatusUnprocessableEntity
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	})

	err := c.SetTags(context.Background(), 42, []string{"letter-sent"})
	assert.False(t, apperrors.IsRetryable(err))

	status = http.StatusServiceUnavailable
	err = c.SetTags(context.Background(), 42, []string{"letter-sent"})
	assert.True(t, apperrors.IsRetryable(err))
}

// ==========================
// Tag Write Tests
// ==========================

func TestSetTags_SendsForm(t *testing.T) {
	var gotTags []string
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/t/-/42.json", r.URL.Path)
		require.NoError(t, r.ParseForm())
		gotTags = r.PostForm["tags[]"]
		w.Write([]byte(`{}`))
	})

	err := c.SetTags(context.Background(), 42, []string{"letter-sent", "region-west"})
	require.NoError(t, err)
	assert.Equal(t, []string{"letter-sent", "region-west"}, gotTags)
}

func TestSetTags_EmptySetClearsTags(t *testing.T) {
	var gotTags []string
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		gotTags = r.PostForm["tags[]"]
		w.Write([]byte(`{}`))
	})

	require.NoError(t, c.SetTags(context.Background(), 42, nil))
	assert.Equal(t, []string{""}, gotTags)
}

// ==========================
// Cache Tests
// ==========================

func TestCachedForum_SecondFetchServedFromCache(t *testing.T) {
	calls := 0
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Write([]byte(topicJSON))
	})
	cached := NewCachedForum(c, newTestRedis(t), 5*time.Minute, logger.NewNoOpLogger())

	first, err := cached.FetchTopic(context.Background(), 42)
	require.NoError(t, err)
	second, err := cached.FetchTopic(context.Background(), 42)
	require.NoError(t, err)

	assert.Equal(t, 1, calls)
	assert.Equal(t, first, second)
}

func TestCachedForum_SetTagsInvalidates(t *testing.T) {
	calls := 0
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			calls++
		}
		w.Write([]byte(topicJSON))
	})
	cached := NewCachedForum(c, newTestRedis(t), 5*time.Minute, logger.NewNoOpLogger())

	_, err := cached.FetchTopic(context.Background(), 42)
	require.NoError(t, err)
	require.NoError(t, cached.SetTags(context.Background(), 42, []string{"letter-sent"}))
	_, err = cached.FetchTopic(context.Background(), 42)
	require.NoError(t, err)

	assert.Equal(t, 2, calls)
}

func TestCachedForum_CorruptEntryFallsThrough(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(topicJSON))
	})
	rc := newTestRedis(t)
	require.NoError(t, rc.Set(context.Background(), topicKey(42), "not-json", time.Minute))

	cached := NewCachedForum(c, rc, 5*time.Minute, logger.NewNoOpLogger())
	topic, err := cached.FetchTopic(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, &models.Topic{
		ID: 42, Title: "Application 42", Slug: "application-42",
		URL: topic.URL, CategoryID: 7,
		Tags: []string{"new-application", "region-west"}, Author: "applicant",
	}, topic)
}
