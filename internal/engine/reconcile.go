// internal/engine/reconcile.go
package engine

import (
	"context"
	"fmt"

	apperrors "application-sync/internal/common/errors"
)

// ReconcileOnce sweeps all records for cards that were deleted outside this
// engine's control. The chat-side artifacts are the source of truth for
// whether a ticket still exists: a confirmed-gone card removes the record
// after a best-effort audit summary naming the deleting actor.
//
// Detection is two-pass: the first miss only flags the record, the second
// confirms it. That keeps a transient read failure from destroying state.
func (e *Engine) ReconcileOnce(ctx context.Context) error {
	recs, err := e.store.List(ctx)
	if err != nil {
		return err
	}

	for _, rec := range recs {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if rec.MessageID == 0 {
			continue
		}
		if err := e.reconcileRecord(ctx, rec.TopicID); err != nil {
			e.log.Error("Reconciliation failed for record", map[string]interface{}{
				"topic_id": rec.TopicID,
				"error":    err.Error(),
			})
		}
	}
	return nil
}

func (e *Engine) reconcileRecord(ctx context.Context, topicID int64) error {
	unlock := e.locks.lock(topicID)
	defer unlock()

	rec, err := e.store.Get(ctx, topicID)
	if err != nil {
		if apperrors.CodeOf(err) == apperrors.ErrCodeRecordNotFound {
			return nil
		}
		return err
	}

	exists, err := e.gateway.MessageExists(ctx, rec.ChannelID, rec.MessageID)
	if err != nil {
		return err
	}
	if exists {
		if rec.MessageMissing {
			rec.MessageMissing = false
			return e.store.Save(ctx, rec)
		}
		return nil
	}

	if !rec.MessageMissing {
		rec.MessageMissing = true
		e.log.Warn("Card missing, awaiting confirmation", map[string]interface{}{
			"topic_id":   topicID,
			"message_id": rec.MessageID,
		})
		return e.store.Save(ctx, rec)
	}

	// Confirmed manual deletion: attribute, summarize, remove.
	actor, err := e.gateway.ReadAuditTrail(ctx, e.guildID, rec.MessageID)
	if err != nil {
		e.log.Warn("Audit trail lookup failed", map[string]interface{}{
			"topic_id": topicID,
			"error":    err.Error(),
		})
	}
	if actor == "" {
		actor = "unknown"
	}

	if e.archiveChannelID != 0 {
		summary := fmt.Sprintf("Application %q (topic %d) was deleted manually by %s; record removed.",
			rec.TopicTitle, topicID, actor)
		if _, err := e.gateway.PostThreadMessage(ctx, e.archiveChannelID, summary); err != nil {
			e.log.Warn("Deletion summary post failed", map[string]interface{}{
				"topic_id": topicID,
				"error":    err.Error(),
			})
		}
	}

	if e.archiver != nil {
		e.archiver.Cancel(topicID)
	}
	if rec.ThreadID != nil {
		if err := e.gateway.DeleteThread(ctx, *rec.ThreadID); err != nil {
			e.log.Warn("Orphan thread cleanup failed", map[string]interface{}{
				"topic_id": topicID,
				"error":    err.Error(),
			})
		}
	}
	e.dropTranscript(topicID)

	e.log.Info("Record removed after manual deletion", map[string]interface{}{
		"topic_id": topicID,
		"actor":    actor,
	})
	return e.store.Delete(ctx, topicID)
}
