// internal/chat/gateway.go
package chat

import (
	"context"

	"application-sync/internal/models"
	"application-sync/internal/stage"
)

// Card is the renderable content of a record's notification message. The
// gateway turns it into platform formatting; nothing here is platform markup.
type Card struct {
	Title     string
	Author    string
	URL       string
	Status    models.Status
	ClaimedBy string
	Archived  bool

	// Stub renders the minimal non-interactive closed form. ArchiveURL, when
	// set, is linked from the stub; a stub without it is the generic fallback.
	Stub       bool
	ArchiveURL string
}

// ControlState drives the interactive controls message in a record's thread.
// TopicID is embedded in each control's custom id so the interaction
// endpoint can route a press back to its record.
type ControlState struct {
	TopicID   int64
	Status    models.Status
	ClaimedBy string
	Disabled  bool
}

// Gateway is the chat platform surface consumed by the engine and scheduler.
// Implementations must be safe for concurrent use across topics.
type Gateway interface {
	PostCard(ctx context.Context, channelID int64, card Card) (int64, error)
	EditCard(ctx context.Context, channelID, messageID int64, card Card) error
	MessageExists(ctx context.Context, channelID, messageID int64) (bool, error)

	CreateThread(ctx context.Context, channelID, messageID int64, name string) (int64, error)
	PostThreadMessage(ctx context.Context, threadID int64, text string) (int64, error)
	LockAndArchive(ctx context.Context, threadID int64) error
	DeleteThread(ctx context.Context, threadID int64) error

	PostControls(ctx context.Context, threadID int64, state ControlState) (int64, error)
	EditControls(ctx context.Context, threadID, controlMessageID int64, state ControlState) error
	DisableControls(ctx context.Context, threadID, controlMessageID int64) error

	// ReadAuditTrail resolves the actor who deleted the given message or
	// thread, returning "" when the trail has no answer.
	ReadAuditTrail(ctx context.Context, guildID, targetID int64) (string, error)
}

const maxThreadNameRunes = 100

// ThreadName builds the processing thread title for a topic, truncated to
// the platform's length limit.
func ThreadName(title string) string {
	name := "Application - " + title
	runes := []rune(name)
	if len(runes) > maxThreadNameRunes {
		return string(runes[:maxThreadNameRunes])
	}
	return name
}

// CardFor renders the card content for a record.
func CardFor(rec *models.ApplicationRecord) Card {
	return Card{
		Title:     rec.TopicTitle,
		Author:    rec.TopicAuthor,
		URL:       rec.TopicURL,
		Status:    rec.Status,
		ClaimedBy: claimant(rec),
		Archived:  rec.Archived,
	}
}

// ControlsFor renders the thread controls state for a record.
func ControlsFor(rec *models.ApplicationRecord) ControlState {
	return ControlState{
		TopicID:   rec.TopicID,
		Status:    rec.Status,
		ClaimedBy: claimant(rec),
		Disabled:  rec.Archived,
	}
}

func claimant(rec *models.ApplicationRecord) string {
	if rec.ClaimedBy != nil {
		return *rec.ClaimedBy
	}
	return ""
}

// StatusLine is the one-line summary used in workflow logs and archive
// transcripts.
func StatusLine(rec *models.ApplicationRecord) string {
	line := stage.Label(rec.Status)
	if c := claimant(rec); c != "" {
		line += " (claimed by " + c + ")"
	}
	return line
}
