// internal/webhook/payload.go
package webhook

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	apperrors "application-sync/internal/common/errors"
	"application-sync/internal/models"
)

// topicPayloadSchema validates the inbound event shape before any field is
// touched. Malformed payloads are a typed validation failure, not a partial
// best-effort parse.
const topicPayloadSchema = `{
	"type": "object",
	"required": ["topic"],
	"properties": {
		"topic": {
			"type": "object",
			"required": ["id", "title", "category_id"],
			"properties": {
				"id": {"type": "integer", "minimum": 1},
				"title": {"type": "string", "minLength": 1},
				"slug": {"type": "string"},
				"category_id": {"type": "integer"},
				"tags": {"type": "array", "items": {"type": "string"}},
				"created_by": {
					"type": "object",
					"properties": {
						"username": {"type": "string"}
					}
				}
			}
		}
	}
}`

var payloadSchema = gojsonschema.NewStringLoader(topicPayloadSchema)

type topicPayload struct {
	Topic struct {
		ID         int64    `json:"id"`
		Title      string   `json:"title"`
		Slug       string   `json:"slug"`
		CategoryID int64    `json:"category_id"`
		Tags       []string `json:"tags"`
		CreatedBy  struct {
			Username string `json:"username"`
		} `json:"created_by"`
	} `json:"topic"`
}

// ParseTopicEvent validates and normalizes an inbound payload. eventName is
// the upstream event header value; anything other than a creation event is
// treated as an update.
func ParseTopicEvent(body []byte, eventName, forumBaseURL string) (models.TopicEvent, error) {
	var ev models.TopicEvent

	result, err := gojsonschema.Validate(payloadSchema, gojsonschema.NewBytesLoader(body))
	if err != nil {
		return ev, apperrors.NewMalformedPayloadError(err.Error())
	}
	if !result.Valid() {
		details := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			details = append(details, e.String())
		}
		return ev, apperrors.NewMalformedPayloadError(strings.Join(details, "; "))
	}

	var p topicPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return ev, apperrors.NewMalformedPayloadError(err.Error())
	}

	kind := models.EventTopicUpdated
	if eventName == "topic_created" {
		kind = models.EventTopicCreated
	}

	url := ""
	if p.Topic.Slug != "" {
		url = fmt.Sprintf("%s/t/%s/%d", strings.TrimRight(forumBaseURL, "/"), p.Topic.Slug, p.Topic.ID)
	}

	return models.TopicEvent{
		TopicID:    p.Topic.ID,
		Title:      p.Topic.Title,
		Author:     p.Topic.CreatedBy.Username,
		URL:        url,
		CategoryID: p.Topic.CategoryID,
		Tags:       p.Topic.Tags,
		Kind:       kind,
	}, nil
}
