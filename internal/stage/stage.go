// internal/stage/stage.go
package stage

import (
	"application-sync/internal/models"
)

// Stage tags as they appear on the forum topic. The p-file tag is the
// forum-side alias for the accepted status.
const (
	TagNew                = "new-application"
	TagLetterSent         = "letter-sent"
	TagInterviewScheduled = "interview-scheduled"
	TagInterviewHeld      = "interview-held"
	TagOnHold             = "on-hold"
	TagAccepted           = "p-file"
)

// priority lists stage tags from highest to lowest precedence. Accepted is
// absolute: if present, all other stage tags are ignored.
var priority = []string{
	TagAccepted,
	TagOnHold,
	TagInterviewHeld,
	TagInterviewScheduled,
	TagLetterSent,
	TagNew,
}

var tagToStatus = map[string]models.Status{
	TagNew:                models.StatusNew,
	TagLetterSent:         models.StatusLetterSent,
	TagInterviewScheduled: models.StatusInterviewScheduled,
	TagInterviewHeld:      models.StatusInterviewHeld,
	TagOnHold:             models.StatusOnHold,
	TagAccepted:           models.StatusAccepted,
}

var statusToTag = map[models.Status]string{
	models.StatusNew:                TagNew,
	models.StatusLetterSent:         TagLetterSent,
	models.StatusInterviewScheduled: TagInterviewScheduled,
	models.StatusInterviewHeld:      TagInterviewHeld,
	models.StatusOnHold:             TagOnHold,
	models.StatusAccepted:           TagAccepted,
}

var labels = map[models.Status]string{
	models.StatusNew:                "New",
	models.StatusLetterSent:         "Letter Sent",
	models.StatusInterviewScheduled: "Interview Scheduled",
	models.StatusInterviewHeld:      "Interview Held",
	models.StatusOnHold:             "On Hold",
	models.StatusAccepted:           "Accepted",
	models.StatusRejected:           "Rejected",
}

// IsStageTag reports whether tag is one of the workflow stage tags.
func IsStageTag(tag string) bool {
	_, ok := tagToStatus[tag]
	return ok
}

// StatusFor maps a stage tag to its status. ok is false for non-stage tags.
func StatusFor(tag string) (models.Status, bool) {
	s, ok := tagToStatus[tag]
	return s, ok
}

// TagFor maps a status to its forum tag. Rejected has no tag: the rejected
// state is expressed by removing all stage tags, so ok is false for it.
func TagFor(status models.Status) (string, bool) {
	t, ok := statusToTag[status]
	return t, ok
}

// Label returns the human-readable name for a status.
func Label(status models.Status) string {
	if l, ok := labels[status]; ok {
		return l
	}
	return string(status)
}

// Resolve derives the workflow status from a topic tag set. hadStage reports
// whether the record previously carried a stage tag: an empty stage set after
// one was present means the application was rejected, while an empty set on a
// fresh topic is simply new.
func Resolve(tags []string, hadStage bool) models.Status {
	present := make(map[string]bool, len(tags))
	for _, t := range tags {
		if IsStageTag(t) {
			present[t] = true
		}
	}
	for _, t := range priority {
		if present[t] {
			return tagToStatus[t]
		}
	}
	if hadStage {
		return models.StatusRejected
	}
	return models.StatusNew
}

// HasStageTag reports whether any stage tag is present in tags.
func HasStageTag(tags []string) bool {
	for _, t := range tags {
		if IsStageTag(t) {
			return true
		}
	}
	return false
}

// NextTags computes the tag set to write back to the forum when the status
// changes: every non-stage tag is preserved, existing stage tags are dropped,
// and the tag for the new status (if any) is appended. For Rejected the
// result carries no stage tag at all.
func NextTags(current []string, status models.Status) []string {
	next := make([]string, 0, len(current)+1)
	for _, t := range current {
		if !IsStageTag(t) {
			next = append(next, t)
		}
	}
	if tag, ok := statusToTag[status]; ok {
		next = append(next, tag)
	}
	return next
}

// SameTagSet compares two tag slices as sets, ignoring order and duplicates.
func SameTagSet(a, b []string) bool {
	return subset(a, b) && subset(b, a)
}

func subset(a, b []string) bool {
	set := make(map[string]bool, len(b))
	for _, t := range b {
		set[t] = true
	}
	for _, t := range a {
		if !set[t] {
			return false
		}
	}
	return true
}
