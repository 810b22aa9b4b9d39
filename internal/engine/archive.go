// internal/engine/archive.go
package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"application-sync/internal/chat"
	apperrors "application-sync/internal/common/errors"
	"application-sync/internal/common/metrics"
	"application-sync/internal/models"
)

// RunArchive executes the archive sequence for a topic whose timer fired.
// It takes the topic's mutation lock, so a cancellation that won the race is
// observed as a cleared schedule and the run becomes a no-op. Each step is
// retried with bounded backoff; a step that still fails degrades the record
// to a persisted partial state and alerts the operator instead of leaving
// the timer pending.
func (e *Engine) RunArchive(ctx context.Context, topicID int64) error {
	unlock := e.locks.lock(topicID)
	defer unlock()

	rec, err := e.store.Get(ctx, topicID)
	if err != nil {
		if apperrors.CodeOf(err) == apperrors.ErrCodeRecordNotFound {
			return nil
		}
		return err
	}
	if rec.Archived || rec.ArchiveScheduledAt == nil || !rec.Status.Terminal() {
		// Cancelled or already done between fire and lock acquisition.
		metrics.ArchiveRuns.WithLabelValues("skipped").Inc()
		return nil
	}

	if step, err := e.archiveSequence(ctx, rec); err != nil {
		return e.degradeArchive(ctx, rec, step, err)
	}

	rec.Archived = true
	rec.ArchiveScheduledAt = nil
	rec.ArchiveState = models.ArchiveStateComplete
	if err := e.store.Save(ctx, rec); err != nil {
		return err
	}
	e.dropTranscript(topicID)

	metrics.ArchiveRuns.WithLabelValues("complete").Inc()
	e.log.Info("Record archived", map[string]interface{}{
		"topic_id": topicID,
	})
	return nil
}

// archiveSequence runs the ordered steps, returning the failing step's name.
func (e *Engine) archiveSequence(ctx context.Context, rec *models.ApplicationRecord) (string, error) {
	if rec.ThreadID != nil && rec.ControlMessageID != nil {
		if err := e.retry(ctx, "disable_controls", func() error {
			return e.gateway.DisableControls(ctx, *rec.ThreadID, *rec.ControlMessageID)
		}); err != nil {
			return "disable_controls", err
		}
	}

	if rec.ThreadID != nil {
		if err := e.retry(ctx, "lock_and_archive", func() error {
			return e.gateway.LockAndArchive(ctx, *rec.ThreadID)
		}); err != nil {
			return "lock_and_archive", err
		}
	}

	var summaryID int64
	archiveURL := ""
	if e.archiveChannelID != 0 {
		card := chat.CardFor(rec)
		card.Archived = true
		if err := e.retry(ctx, "post_summary", func() error {
			var perr error
			summaryID, perr = e.gateway.PostCard(ctx, e.archiveChannelID, card)
			return perr
		}); err != nil {
			return "post_summary", err
		}
		if summaryID != 0 {
			archiveURL = fmt.Sprintf("channels/%d/%d", e.archiveChannelID, summaryID)
		}
	}

	// Replace the live card with a stub. If the linked stub cannot be
	// written, fall back to the generic stub before giving up on this step.
	stub := chat.CardFor(rec)
	stub.Archived = true
	stub.Stub = true
	stub.ArchiveURL = archiveURL
	if err := e.retry(ctx, "stub_card", func() error {
		return e.gateway.EditCard(ctx, rec.ChannelID, rec.MessageID, stub)
	}); err != nil {
		stub.ArchiveURL = ""
		if err := e.retry(ctx, "stub_card_fallback", func() error {
			return e.gateway.EditCard(ctx, rec.ChannelID, rec.MessageID, stub)
		}); err != nil {
			return "stub_card", err
		}
	}

	if summaryID != 0 {
		if err := e.postTranscript(ctx, rec, summaryID); err != nil {
			return "transcript", err
		}
	}

	if rec.ThreadID != nil {
		if err := e.retry(ctx, "delete_thread", func() error {
			return e.gateway.DeleteThread(ctx, *rec.ThreadID)
		}); err != nil {
			return "delete_thread", err
		}
		rec.ThreadID = nil
		rec.ControlMessageID = nil
	}

	return "", nil
}

// postTranscript creates the final archive thread under the summary card and
// flattens the workflow log into it.
func (e *Engine) postTranscript(ctx context.Context, rec *models.ApplicationRecord, summaryID int64) error {
	var archiveThreadID int64
	if err := e.retry(ctx, "archive_thread", func() error {
		var terr error
		archiveThreadID, terr = e.gateway.CreateThread(ctx, e.archiveChannelID, summaryID,
			chat.ThreadName(rec.TopicTitle))
		return terr
	}); err != nil {
		return err
	}
	if archiveThreadID == 0 {
		return nil
	}

	lines := e.Transcript(rec.TopicID)
	if len(lines) == 0 {
		lines = []string{"No workflow log available for this process."}
	}
	lines = append([]string{chat.StatusLine(rec)}, lines...)
	return e.retry(ctx, "post_transcript", func() error {
		_, perr := e.gateway.PostThreadMessage(ctx, archiveThreadID, strings.Join(lines, "\n"))
		return perr
	})
}

// degradeArchive persists the partial state reached and alerts the operator.
// The timer never stays pending after a failed run.
func (e *Engine) degradeArchive(ctx context.Context, rec *models.ApplicationRecord, step string, cause error) error {
	rec.ArchiveScheduledAt = nil
	rec.ArchiveState = models.ArchiveStatePartialFor(step)
	if err := e.store.Save(ctx, rec); err != nil {
		e.log.Error("Failed to persist partial archive state", map[string]interface{}{
			"topic_id": rec.TopicID,
			"error":    err.Error(),
		})
	}

	metrics.ArchiveRuns.WithLabelValues("partial").Inc()
	e.log.Error("Archive degraded to partial state", map[string]interface{}{
		"topic_id": rec.TopicID,
		"step":     step,
		"error":    cause.Error(),
	})

	subject := fmt.Sprintf("Archive incomplete for topic %d", rec.TopicID)
	body := fmt.Sprintf("The archive sequence for topic %d stopped at step %q at %s: %v\n"+
		"Manual follow-up is required.",
		rec.TopicID, step, time.Now().UTC().Format(time.RFC3339), cause)
	if err := e.notifier.NotifyOperator(ctx, subject, body); err != nil {
		e.log.Error("Operator notification failed", map[string]interface{}{
			"topic_id": rec.TopicID,
			"error":    err.Error(),
		})
	}

	return apperrors.NewArchiveStepFailedError(step, cause)
}
