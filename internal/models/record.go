// internal/models/record.go
package models

import "time"

// Status is the canonical workflow stage derived from the topic tag set.
type Status string

const (
	StatusNew                Status = "new"
	StatusLetterSent         Status = "letter_sent"
	StatusInterviewScheduled Status = "interview_scheduled"
	StatusInterviewHeld      Status = "interview_held"
	StatusOnHold             Status = "on_hold"
	StatusAccepted           Status = "accepted"
	StatusRejected           Status = "rejected"
)

// Terminal reports whether the status drives the archival workflow.
func (s Status) Terminal() bool {
	return s == StatusAccepted || s == StatusRejected
}

// ArchiveState tracks progress of the archive sequence for a record.
type ArchiveState string

const (
	ArchiveStateNone     ArchiveState = ""
	ArchiveStatePending  ArchiveState = "pending"
	ArchiveStatePartial  ArchiveState = "partial"
	ArchiveStateComplete ArchiveState = "complete"
)

// ArchiveStatePartialFor marks the archive sequence as degraded after the
// named step failed, so a later resume knows where to pick up.
func ArchiveStatePartialFor(step string) ArchiveState {
	return ArchiveStatePartial + ArchiveState(":"+step)
}

// ApplicationRecord is the durable workflow instance for one forum topic.
// topic_id is the primary key; this is the entire state that survives restart.
type ApplicationRecord struct {
	TopicID          int64   `json:"topicId"`
	ChannelID        int64   `json:"channelId"`
	MessageID        int64   `json:"messageId"`
	MessageMissing   bool    `json:"messageMissing"`
	ThreadID         *int64  `json:"threadId,omitempty"`
	ControlMessageID *int64  `json:"controlMessageId,omitempty"`
	ClaimedBy        *string `json:"claimedBy,omitempty"`

	Status       Status   `json:"status"`
	TagsLastSeen []string `json:"tagsLastSeen"`

	TopicTitle    string     `json:"topicTitle,omitempty"`
	TopicAuthor   string     `json:"topicAuthor,omitempty"`
	TopicURL      string     `json:"topicUrl,omitempty"`
	TopicSyncedAt *time.Time `json:"topicSyncedAt,omitempty"`

	TagsLastWritten []string   `json:"tagsLastWritten,omitempty"`
	TagsWrittenAt   *time.Time `json:"tagsWrittenAt,omitempty"`

	ArchiveScheduledAt *time.Time   `json:"archiveScheduledAt,omitempty"`
	ArchiveState       ArchiveState `json:"archiveState,omitempty"`
	Archived           bool         `json:"archived"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Claimed reports whether the record currently has an owner.
func (r *ApplicationRecord) Claimed() bool {
	return r.ClaimedBy != nil && *r.ClaimedBy != ""
}

// EventKind distinguishes the normalized webhook event variants.
type EventKind string

const (
	EventTopicCreated EventKind = "created"
	EventTopicUpdated EventKind = "updated"
)

// TopicEvent is the normalized form of an inbound forum change event.
type TopicEvent struct {
	TopicID    int64     `json:"topicId"`
	Title      string    `json:"title"`
	Author     string    `json:"author"`
	URL        string    `json:"url"`
	CategoryID int64     `json:"categoryId"`
	Tags       []string  `json:"tags"`
	Kind       EventKind `json:"kind"`
}

// Topic is the forum's authoritative view of one application topic.
type Topic struct {
	ID         int64    `json:"id"`
	Title      string   `json:"title"`
	Slug       string   `json:"slug"`
	URL        string   `json:"url"`
	CategoryID int64    `json:"categoryId"`
	Tags       []string `json:"tags"`
	Author     string   `json:"author"`
}

// CommandKind identifies the actor-triggered interaction commands.
type CommandKind string

const (
	CommandClaim     CommandKind = "claim"
	CommandUnclaim   CommandKind = "unclaim"
	CommandReassign  CommandKind = "reassign"
	CommandSetStatus CommandKind = "set_status"
)

// Actor is the authenticated identity behind an interaction, with the role
// set resolved by the chat platform at ingestion time.
type Actor struct {
	ID      string   `json:"id"`
	Display string   `json:"display"`
	Roles   []string `json:"roles"`
}

// Command is the normalized form of an actor interaction, bound to a topic.
type Command struct {
	Kind    CommandKind `json:"kind"`
	TopicID int64       `json:"topicId"`
	Actor   Actor       `json:"actor"`

	// Target is the reassignment target actor id for CommandReassign.
	Target string `json:"target,omitempty"`
	// StageTag is the requested stage tag for CommandSetStatus.
	StageTag string `json:"stageTag,omitempty"`
}

// WorkflowLogEntry is one line of the per-record processing log, rendered
// into the thread and flattened into the archive transcript.
type WorkflowLogEntry struct {
	ID       string    `json:"id"`
	TopicID  int64     `json:"topicId"`
	At       time.Time `json:"at"`
	Actor    string    `json:"actor"`
	External bool      `json:"external"`
	Message  string    `json:"message"`
}
