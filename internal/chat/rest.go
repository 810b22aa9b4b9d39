// internal/chat/rest.go
package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"application-sync/internal/common/config"
	apperrors "application-sync/internal/common/errors"
	"application-sync/internal/common/httputil"
	"application-sync/internal/common/logger"
	"application-sync/internal/stage"
)

// RestGateway implements Gateway over the chat platform's REST API with bot
// token auth. Rendering stays minimal here; the engine owns all decisions.
type RestGateway struct {
	baseURL string
	token   string
	http    *httputil.Client
	log     logger.Logger
}

// NewRestGateway creates a gateway from the chat configuration.
func NewRestGateway(cfg config.ChatConfig, timeout time.Duration, log logger.Logger) *RestGateway {
	return &RestGateway{
		baseURL: cfg.BaseURL,
		token:   cfg.BotToken,
		http:    httputil.NewClient(timeout),
		log:     log,
	}
}

type embedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

type embed struct {
	Title       string       `json:"title,omitempty"`
	URL         string       `json:"url,omitempty"`
	Description string       `json:"description,omitempty"`
	Fields      []embedField `json:"fields,omitempty"`
}

type component struct {
	Type       int         `json:"type"`
	Style      int         `json:"style,omitempty"`
	Label      string      `json:"label,omitempty"`
	CustomID   string      `json:"custom_id,omitempty"`
	Disabled   bool        `json:"disabled,omitempty"`
	Components []component `json:"components,omitempty"`
}

type messageBody struct {
	Content    string      `json:"content,omitempty"`
	Embeds     []embed     `json:"embeds,omitempty"`
	Components []component `json:"components,omitzero"`
}

type messageResponse struct {
	ID string `json:"id"`
}

type statusError struct {
	method string
	path   string
	status int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("%s %s: status %d", e.method, e.path, e.status)
}

// chatError wraps a failure for callers; HTTP status failures are retryable
// only for throttling and server-side codes.
func chatError(op string, err error) error {
	serr := apperrors.NewChatServiceError(op, err)
	var st *statusError
	if errors.As(err, &st) {
		serr.Retryable = httputil.RetryableStatus(st.status)
	}
	return serr
}

func cardBody(card Card) messageBody {
	if card.Stub {
		desc := "This application has been archived."
		if card.ArchiveURL != "" {
			desc = "This application has been archived: " + card.ArchiveURL
		}
		return messageBody{Embeds: []embed{{
			Title:       card.Title,
			URL:         card.URL,
			Description: desc,
		}}}
	}
	fields := []embedField{
		{Name: "Status", Value: stage.Label(card.Status), Inline: true},
		{Name: "Author", Value: card.Author, Inline: true},
	}
	if card.ClaimedBy != "" {
		fields = append(fields, embedField{Name: "Claimed by", Value: card.ClaimedBy, Inline: true})
	}
	return messageBody{Embeds: []embed{{
		Title:  card.Title,
		URL:    card.URL,
		Fields: fields,
	}}}
}

func controlsBody(state ControlState) messageBody {
	row := component{Type: 1}
	for _, b := range []struct {
		label, id string
	}{
		{"Claim", "app_claim"},
		{"Unclaim", "app_unclaim"},
		{"Reassign", "app_reassign"},
		{"Set Status", "app_set_status"},
	} {
		row.Components = append(row.Components, component{
			Type: 2, Style: 2, Label: b.label,
			CustomID: fmt.Sprintf("%s:%d", b.id, state.TopicID),
			Disabled: state.Disabled,
		})
	}
	content := "Status: " + stage.Label(state.Status)
	if state.ClaimedBy != "" {
		content += " — claimed by " + state.ClaimedBy
	}
	return messageBody{Content: content, Components: []component{row}}
}

func (g *RestGateway) do(ctx context.Context, method, path string, body interface{}, out interface{}) error {
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, rd)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bot "+g.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := g.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, resp.Body)
		return &statusError{method: method, path: path, status: resp.StatusCode}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	io.Copy(io.Discard, resp.Body)
	return nil
}

func parseID(s string) (int64, error) {
	return strconv.ParseInt(s, 10, 64)
}

func (g *RestGateway) postMessage(ctx context.Context, channelID int64, body messageBody, op string) (int64, error) {
	var mr messageResponse
	err := g.do(ctx, http.MethodPost, fmt.Sprintf("/channels/%d/messages", channelID), body, &mr)
	if err != nil {
		return 0, chatError(op, err)
	}
	id, err := parseID(mr.ID)
	if err != nil {
		return 0, chatError(op, err)
	}
	return id, nil
}

func (g *RestGateway) PostCard(ctx context.Context, channelID int64, card Card) (int64, error) {
	return g.postMessage(ctx, channelID, cardBody(card), "post_card")
}

func (g *RestGateway) EditCard(ctx context.Context, channelID, messageID int64, card Card) error {
	err := g.do(ctx, http.MethodPatch,
		fmt.Sprintf("/channels/%d/messages/%d", channelID, messageID), cardBody(card), nil)
	if err != nil {
		return chatError("edit_card", err)
	}
	return nil
}

func (g *RestGateway) MessageExists(ctx context.Context, channelID, messageID int64) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/channels/%d/messages/%d", g.baseURL, channelID, messageID), nil)
	if err != nil {
		return false, chatError("message_exists", err)
	}
	req.Header.Set("Authorization", "Bot "+g.token)

	resp, err := g.http.Do(req)
	if err != nil {
		return false, chatError("message_exists", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode == http.StatusOK:
		return true, nil
	case resp.StatusCode == http.StatusNotFound:
		return false, nil
	default:
		return false, chatError("message_exists",
			&statusError{method: http.MethodGet, path: req.URL.Path, status: resp.StatusCode})
	}
}

func (g *RestGateway) CreateThread(ctx context.Context, channelID, messageID int64, name string) (int64, error) {
	var mr messageResponse
	err := g.do(ctx, http.MethodPost,
		fmt.Sprintf("/channels/%d/messages/%d/threads", channelID, messageID),
		map[string]interface{}{"name": name}, &mr)
	if err != nil {
		return 0, chatError("create_thread", err)
	}
	id, err := parseID(mr.ID)
	if err != nil {
		return 0, chatError("create_thread", err)
	}
	return id, nil
}

func (g *RestGateway) PostThreadMessage(ctx context.Context, threadID int64, text string) (int64, error) {
	return g.postMessage(ctx, threadID, messageBody{Content: text}, "post_thread_message")
}

func (g *RestGateway) LockAndArchive(ctx context.Context, threadID int64) error {
	err := g.do(ctx, http.MethodPatch, fmt.Sprintf("/channels/%d", threadID),
		map[string]interface{}{"archived": true, "locked": true}, nil)
	if err != nil {
		return chatError("lock_and_archive", err)
	}
	return nil
}

func (g *RestGateway) DeleteThread(ctx context.Context, threadID int64) error {
	err := g.do(ctx, http.MethodDelete, fmt.Sprintf("/channels/%d", threadID), nil, nil)
	if err != nil {
		return chatError("delete_thread", err)
	}
	return nil
}

func (g *RestGateway) PostControls(ctx context.Context, threadID int64, state ControlState) (int64, error) {
	return g.postMessage(ctx, threadID, controlsBody(state), "post_controls")
}

func (g *RestGateway) EditControls(ctx context.Context, threadID, controlMessageID int64, state ControlState) error {
	err := g.do(ctx, http.MethodPatch,
		fmt.Sprintf("/channels/%d/messages/%d", threadID, controlMessageID),
		controlsBody(state), nil)
	if err != nil {
		return chatError("edit_controls", err)
	}
	return nil
}

func (g *RestGateway) DisableControls(ctx context.Context, threadID, controlMessageID int64) error {
	err := g.do(ctx, http.MethodPatch,
		fmt.Sprintf("/channels/%d/messages/%d", threadID, controlMessageID),
		messageBody{Content: "Archived.", Components: []component{}}, nil)
	if err != nil {
		return chatError("disable_controls", err)
	}
	return nil
}

type auditLogResponse struct {
	Entries []struct {
		UserID     string `json:"user_id"`
		TargetID   string `json:"target_id"`
		ActionType int    `json:"action_type"`
	} `json:"audit_log_entries"`
}

// messageDeleteAction is the platform's audit action code for deletions.
const messageDeleteAction = 72

func (g *RestGateway) ReadAuditTrail(ctx context.Context, guildID, targetID int64) (string, error) {
	var ar auditLogResponse
	err := g.do(ctx, http.MethodGet,
		fmt.Sprintf("/guilds/%d/audit-logs?action_type=%d", guildID, messageDeleteAction),
		nil, &ar)
	if err != nil {
		return "", chatError("read_audit_trail", err)
	}
	target := strconv.FormatInt(targetID, 10)
	for _, e := range ar.Entries {
		if e.TargetID == target {
			return e.UserID, nil
		}
	}
	return "", nil
}
