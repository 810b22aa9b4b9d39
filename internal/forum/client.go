// internal/forum/client.go
package forum

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"application-sync/internal/common/config"
	apperrors "application-sync/internal/common/errors"
	"application-sync/internal/common/httputil"
	"application-sync/internal/common/logger"
	"application-sync/internal/models"
)

// Forum is the read/write surface of the forum API that the sync engine
// needs: fetch a topic's current state and replace its tag set.
type Forum interface {
	FetchTopic(ctx context.Context, topicID int64) (*models.Topic, error)
	SetTags(ctx context.Context, topicID int64, tags []string) error
}

type statusError struct {
	op     string
	status int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("%s: status %d", e.op, e.status)
}

// forumError wraps a failure for callers; HTTP status failures are retryable
// only for throttling and server-side codes.
func forumError(op string, err error) error {
	serr := apperrors.NewForumServiceError(op, err)
	var st *statusError
	if errors.As(err, &st) {
		serr.Retryable = httputil.RetryableStatus(st.status)
	}
	return serr
}

// Client talks to the forum's admin API with key auth.
type Client struct {
	baseURL string
	apiKey  string
	apiUser string
	http    *httputil.Client
	log     logger.Logger
}

// NewClient creates a forum API client from the forum configuration.
func NewClient(cfg config.ForumConfig, timeout time.Duration, log logger.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		apiUser: cfg.APIUser,
		http:    httputil.NewClient(timeout),
		log:     log,
	}
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Api-Key", c.apiKey)
	req.Header.Set("Api-Username", c.apiUser)
	req.Header.Set("Accept", "application/json")
	return req, nil
}

// topicResponse mirrors the fields of the forum's topic JSON that matter
// here; everything else is ignored.
type topicResponse struct {
	ID         int64    `json:"id"`
	Title      string   `json:"title"`
	Slug       string   `json:"slug"`
	CategoryID int64    `json:"category_id"`
	Tags       []string `json:"tags"`
	Details    struct {
		CreatedBy struct {
			Username string `json:"username"`
		} `json:"created_by"`
	} `json:"details"`
	PostStream struct {
		Posts []struct {
			Username string `json:"username"`
		} `json:"posts"`
	} `json:"post_stream"`
}

// FetchTopic reads the authoritative topic state. The author comes from the
// topic creator when present, falling back to the first post's author.
func (c *Client) FetchTopic(ctx context.Context, topicID int64) (*models.Topic, error) {
	req, err := c.newRequest(ctx, http.MethodGet, fmt.Sprintf("/t/%d.json", topicID), nil)
	if err != nil {
		return nil, forumError("fetch_topic", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, forumError("fetch_topic", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, forumError("fetch_topic",
			&statusError{op: fmt.Sprintf("topic %d", topicID), status: resp.StatusCode})
	}

	var tr topicResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return nil, forumError("fetch_topic", err)
	}

	author := tr.Details.CreatedBy.Username
	if author == "" && len(tr.PostStream.Posts) > 0 {
		author = tr.PostStream.Posts[0].Username
	}

	return &models.Topic{
		ID:         tr.ID,
		Title:      tr.Title,
		Slug:       tr.Slug,
		URL:        fmt.Sprintf("%s/t/%s/%d", c.baseURL, tr.Slug, tr.ID),
		CategoryID: tr.CategoryID,
		Tags:       tr.Tags,
		Author:     author,
	}, nil
}

// SetTags replaces the topic's tag set. An empty slice clears all tags; the
// forum API expects a single empty tags[] value for that case.
func (c *Client) SetTags(ctx context.Context, topicID int64, tags []string) error {
	form := url.Values{}
	if len(tags) == 0 {
		form.Add("tags[]", "")
	} else {
		for _, t := range tags {
			form.Add("tags[]", t)
		}
	}

	req, err := c.newRequest(ctx, http.MethodPut,
		fmt.Sprintf("/t/-/%d.json", topicID), strings.NewReader(form.Encode()))
	if err != nil {
		return forumError("set_tags", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return forumError("set_tags", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return forumError("set_tags",
			&statusError{op: fmt.Sprintf("topic %d", topicID), status: resp.StatusCode})
	}

	c.log.Debug("Topic tags written", map[string]interface{}{
		"topic_id": topicID,
		"tags":     tags,
	})
	return nil
}
