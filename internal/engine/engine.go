// internal/engine/engine.go
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"application-sync/internal/audit"
	"application-sync/internal/authz"
	"application-sync/internal/chat"
	"application-sync/internal/common/config"
	apperrors "application-sync/internal/common/errors"
	"application-sync/internal/common/httputil"
	"application-sync/internal/common/logger"
	"application-sync/internal/common/metrics"
	"application-sync/internal/forum"
	"application-sync/internal/models"
	"application-sync/internal/notify"
	"application-sync/internal/stage"
	"application-sync/internal/store"
)

// Archiver is the scheduler surface the engine drives: arm a timer when a
// record enters a terminal status, cancel it when the status reverts.
type Archiver interface {
	Schedule(topicID int64, at time.Time)
	Cancel(topicID int64) bool
}

// Engine owns all record mutation: tag/status resolution, claim arbitration,
// loop suppression, and the collaborator round trips that render results.
// Every mutation path serializes per topic id.
type Engine struct {
	store    store.Store
	forum    forum.Forum
	gateway  chat.Gateway
	policy   authz.Policy
	indexer  audit.Indexer
	notifier notify.Notifier
	archiver Archiver
	locks    *keyLock

	guildID          int64
	notifyChannelID  int64
	archiveChannelID int64
	archiveDelay     time.Duration
	backoff          httputil.BackoffPolicy

	// transcript keeps this process's workflow-log lines per topic for the
	// archive flattening step. It does not survive restart; the durable copy
	// lives in the thread and the audit index.
	transcriptMu sync.Mutex
	transcript   map[int64][]string

	log logger.Logger
}

// New wires an engine from configuration. The forum client and chat gateway
// are wrapped with the mode gate here, so callers hand in the raw clients.
func New(cfg *config.Config, st store.Store, fc forum.Forum, gw chat.Gateway,
	idx audit.Indexer, nt notify.Notifier, log logger.Logger) (*Engine, error) {

	gate, err := newModeGate(cfg.Chat, log)
	if err != nil {
		return nil, err
	}

	var guildID, notifyCh int64
	if !cfg.Chat.IsDryRun() {
		guildID, notifyCh, err = cfg.Chat.TargetGuildChannel()
		if err != nil {
			return nil, apperrors.NewFatalConfigError(err.Error())
		}
	}

	return &Engine{
		store:    st,
		forum:    &gatedForum{inner: fc, gate: gate},
		gateway:  &gatedGateway{inner: gw, gate: gate},
		policy: authz.Policy{
			ClaimRoles:    cfg.Chat.ClaimRoleNames,
			OverrideRoles: cfg.Chat.OverrideRoleNames,
		},
		indexer:          idx,
		notifier:         nt,
		locks:            newKeyLock(),
		guildID:          guildID,
		notifyChannelID:  notifyCh,
		archiveChannelID: cfg.Chat.TargetArchiveChannel(),
		archiveDelay:     cfg.Chat.ArchiveDelay(),
		backoff: httputil.BackoffPolicy{
			MaxAttempts:  cfg.Sync.RetryMaxAttempts,
			InitialDelay: time.Duration(cfg.Sync.RetryInitialDelayMs) * time.Millisecond,
			MaxDelay:     time.Duration(cfg.Sync.RetryMaxDelayMs) * time.Millisecond,
		},
		transcript: make(map[int64][]string),
		log:        log,
	}, nil
}

// SetArchiver attaches the scheduler. Must be called before events flow.
func (e *Engine) SetArchiver(a Archiver) {
	e.archiver = a
}

func (e *Engine) retry(ctx context.Context, name string, op func() error) error {
	attempt := 0
	return httputil.RetryWithBackoff(ctx, e.backoff, e.log, name, func() error {
		if attempt > 0 {
			metrics.CollaboratorRetries.WithLabelValues(name).Inc()
		}
		attempt++
		return op()
	})
}

// ==========================
// Webhook path
// ==========================

// HandleTopicEvent applies one normalized forum event. Echoes of this
// engine's own tag writes refresh the display without producing a workflow
// log line or a fresh propagation.
func (e *Engine) HandleTopicEvent(ctx context.Context, ev models.TopicEvent) error {
	unlock := e.locks.lock(ev.TopicID)
	defer unlock()

	start := time.Now()
	defer func() {
		metrics.SyncOperationDuration.WithLabelValues("topic_event").Observe(time.Since(start).Seconds())
	}()

	rec, err := e.store.Get(ctx, ev.TopicID)
	if apperrors.CodeOf(err) == apperrors.ErrCodeRecordNotFound {
		return e.createRecord(ctx, ev)
	}
	if err != nil {
		return err
	}

	if rec.Archived {
		e.log.Debug("Event for archived record ignored", map[string]interface{}{
			"topic_id": ev.TopicID,
		})
		return nil
	}

	now := time.Now().UTC()
	rec.TopicTitle = ev.Title
	rec.TopicAuthor = ev.Author
	rec.TopicURL = ev.URL
	rec.TopicSyncedAt = &now

	if stage.SameTagSet(ev.Tags, rec.TagsLastSeen) {
		// Echo of our own write or a duplicate delivery: refresh only.
		if err := e.store.Save(ctx, rec); err != nil {
			return err
		}
		e.refreshDisplay(ctx, rec)
		metrics.SyncOperations.WithLabelValues("topic_event", "echo").Inc()
		return nil
	}

	hadStage := stage.HasStageTag(rec.TagsLastSeen) || rec.Status != models.StatusNew
	prevStatus := rec.Status
	rec.TagsLastSeen = append([]string(nil), ev.Tags...)
	rec.Status = stage.Resolve(ev.Tags, hadStage)

	e.applyStatusSideEffects(rec, prevStatus)

	if err := e.store.Save(ctx, rec); err != nil {
		return err
	}

	e.refreshDisplay(ctx, rec)
	e.appendLog(ctx, rec, ev.Author, true,
		fmt.Sprintf("Status changed to %s (external)", stage.Label(rec.Status)))
	metrics.SyncOperations.WithLabelValues("topic_event", "applied").Inc()
	return nil
}

func (e *Engine) createRecord(ctx context.Context, ev models.TopicEvent) error {
	now := time.Now().UTC()
	rec := &models.ApplicationRecord{
		TopicID:       ev.TopicID,
		ChannelID:     e.notifyChannelID,
		Status:        stage.Resolve(ev.Tags, false),
		TagsLastSeen:  append([]string(nil), ev.Tags...),
		TopicTitle:    ev.Title,
		TopicAuthor:   ev.Author,
		TopicURL:      ev.URL,
		TopicSyncedAt: &now,
	}

	var messageID int64
	err := e.retry(ctx, "post_card", func() error {
		var perr error
		messageID, perr = e.gateway.PostCard(ctx, e.notifyChannelID, chat.CardFor(rec))
		return perr
	})
	if err != nil {
		return err
	}
	rec.MessageID = messageID

	e.applyStatusSideEffects(rec, models.StatusNew)

	if err := e.store.Create(ctx, rec); err != nil {
		return err
	}

	e.appendLog(ctx, rec, ev.Author, true, "Application received")
	metrics.SyncOperations.WithLabelValues("topic_event", "created").Inc()
	e.log.Info("Record created", map[string]interface{}{
		"topic_id": rec.TopicID,
		"status":   string(rec.Status),
	})
	return nil
}

// ==========================
// Interaction path
// ==========================

// Claim assigns the record to the acting user. The store-level compare-and-
// set guarantees exactly one winner under concurrent claims.
func (e *Engine) Claim(ctx context.Context, cmd models.Command) error {
	unlock := e.locks.lock(cmd.TopicID)
	defer unlock()

	rec, err := e.store.Get(ctx, cmd.TopicID)
	if err != nil {
		return err
	}
	if rec.Archived {
		return apperrors.NewRecordAlreadyClosedError(cmd.TopicID)
	}
	if !e.policy.CanClaim(cmd.Actor) {
		return apperrors.NewAuthorizationDeniedError("claim requires a claim-authorized role")
	}

	if err := e.store.TryClaim(ctx, cmd.TopicID, cmd.Actor.ID); err != nil {
		metrics.InteractionsProcessed.WithLabelValues("claim", "conflict").Inc()
		return err
	}
	rec.ClaimedBy = &cmd.Actor.ID

	if err := e.ensureThread(ctx, rec); err != nil {
		e.log.Error("Thread creation failed after claim", map[string]interface{}{
			"topic_id": rec.TopicID,
			"error":    err.Error(),
		})
	}
	if err := e.store.Save(ctx, rec); err != nil {
		return err
	}

	e.refreshDisplay(ctx, rec)
	e.appendLog(ctx, rec, cmd.Actor.Display, false,
		fmt.Sprintf("Claimed by %s", cmd.Actor.Display))
	metrics.InteractionsProcessed.WithLabelValues("claim", "success").Inc()
	return nil
}

// Unclaim releases the claim. The precondition is re-checked at mutation
// time by the conditional store update, not just at authorization time.
func (e *Engine) Unclaim(ctx context.Context, cmd models.Command) error {
	unlock := e.locks.lock(cmd.TopicID)
	defer unlock()

	rec, err := e.store.Get(ctx, cmd.TopicID)
	if err != nil {
		return err
	}
	if rec.Archived {
		return apperrors.NewRecordAlreadyClosedError(cmd.TopicID)
	}
	if !e.policy.CanUnclaim(cmd.Actor, rec) {
		return apperrors.NewAuthorizationDeniedError("unclaim requires being the claimant or an override role")
	}

	expected := cmd.Actor.ID
	if e.policy.HasOverride(cmd.Actor) {
		expected = ""
	}
	if err := e.store.Unclaim(ctx, cmd.TopicID, expected); err != nil {
		metrics.InteractionsProcessed.WithLabelValues("unclaim", "conflict").Inc()
		return err
	}
	rec.ClaimedBy = nil

	e.refreshDisplay(ctx, rec)
	e.appendLog(ctx, rec, cmd.Actor.Display, false,
		fmt.Sprintf("Unclaimed by %s", cmd.Actor.Display))
	metrics.InteractionsProcessed.WithLabelValues("unclaim", "success").Inc()
	return nil
}

// Reassign moves the claim to another actor; override roles only.
func (e *Engine) Reassign(ctx context.Context, cmd models.Command) error {
	unlock := e.locks.lock(cmd.TopicID)
	defer unlock()

	rec, err := e.store.Get(ctx, cmd.TopicID)
	if err != nil {
		return err
	}
	if rec.Archived {
		return apperrors.NewRecordAlreadyClosedError(cmd.TopicID)
	}
	if !e.policy.CanReassign(cmd.Actor) {
		return apperrors.NewAuthorizationDeniedError("reassign requires an override role")
	}

	if err := e.store.SetClaim(ctx, cmd.TopicID, cmd.Target); err != nil {
		return err
	}
	rec.ClaimedBy = &cmd.Target

	if err := e.ensureThread(ctx, rec); err == nil {
		if err := e.store.Save(ctx, rec); err != nil {
			return err
		}
	}

	e.refreshDisplay(ctx, rec)
	e.appendLog(ctx, rec, cmd.Actor.Display, false,
		fmt.Sprintf("Reassigned to %s by %s", cmd.Target, cmd.Actor.Display))
	metrics.InteractionsProcessed.WithLabelValues("reassign", "success").Inc()
	return nil
}

// SetStatus applies an actor-selected stage. Chat-to-forum ordering: fetch
// the live topic, write the recomputed forum tags, record them as
// tags_last_seen so the webhook echo is suppressed, then update the display.
func (e *Engine) SetStatus(ctx context.Context, cmd models.Command) error {
	unlock := e.locks.lock(cmd.TopicID)
	defer unlock()

	rec, err := e.store.Get(ctx, cmd.TopicID)
	if err != nil {
		return err
	}
	if rec.Archived {
		return apperrors.NewRecordAlreadyClosedError(cmd.TopicID)
	}
	if !e.policy.CanSetStatus(cmd.Actor, rec) {
		return apperrors.NewAuthorizationDeniedError("status change requires the claimant or an override role")
	}

	newStatus, err := statusForCommand(cmd.StageTag)
	if err != nil {
		return err
	}

	// The live topic is the base for the rewrite; tags added on the forum
	// since the last event must survive it.
	var topic *models.Topic
	if err := e.retry(ctx, "fetch_topic", func() error {
		var ferr error
		topic, ferr = e.forum.FetchTopic(ctx, cmd.TopicID)
		return ferr
	}); err != nil {
		return err
	}

	newTags := stage.NextTags(topic.Tags, newStatus)
	if err := e.retry(ctx, "set_tags", func() error {
		return e.forum.SetTags(ctx, cmd.TopicID, newTags)
	}); err != nil {
		return err
	}

	now := time.Now().UTC()
	prevStatus := rec.Status
	rec.TagsLastSeen = newTags
	rec.TagsLastWritten = newTags
	rec.TagsWrittenAt = &now
	rec.Status = newStatus

	e.applyStatusSideEffects(rec, prevStatus)

	if err := e.store.Save(ctx, rec); err != nil {
		return err
	}

	e.refreshDisplay(ctx, rec)
	e.appendLog(ctx, rec, cmd.Actor.Display, false,
		fmt.Sprintf("Status set to %s by %s", stage.Label(newStatus), cmd.Actor.Display))
	metrics.InteractionsProcessed.WithLabelValues("set_status", "success").Inc()
	return nil
}

// statusForCommand maps an interaction stage selection to a status. The
// "rejected" selection has no forum tag; it resolves to clearing all stage
// tags on the topic.
func statusForCommand(tag string) (models.Status, error) {
	if tag == "rejected" {
		return models.StatusRejected, nil
	}
	if s, ok := stage.StatusFor(tag); ok {
		return s, nil
	}
	return "", apperrors.NewMalformedPayloadError(fmt.Sprintf("unknown stage selection %q", tag))
}

// ==========================
// Shared mutation helpers
// ==========================

// applyStatusSideEffects arms or cancels the archive timer on terminal
// status transitions. Caller holds the topic lock and saves the record.
func (e *Engine) applyStatusSideEffects(rec *models.ApplicationRecord, prev models.Status) {
	if rec.Status.Terminal() && !prev.Terminal() {
		at := time.Now().UTC().Add(e.archiveDelay)
		rec.ArchiveScheduledAt = &at
		rec.ArchiveState = models.ArchiveStatePending
		if e.archiver != nil {
			e.archiver.Schedule(rec.TopicID, at)
		}
	}
	if !rec.Status.Terminal() && prev.Terminal() {
		rec.ArchiveScheduledAt = nil
		rec.ArchiveState = models.ArchiveStateNone
		if e.archiver != nil {
			e.archiver.Cancel(rec.TopicID)
		}
	}
}

// ensureThread lazily creates the processing thread and its controls message.
func (e *Engine) ensureThread(ctx context.Context, rec *models.ApplicationRecord) error {
	if rec.ThreadID == nil {
		var threadID int64
		err := e.retry(ctx, "create_thread", func() error {
			var terr error
			threadID, terr = e.gateway.CreateThread(ctx, rec.ChannelID, rec.MessageID,
				chat.ThreadName(rec.TopicTitle))
			return terr
		})
		if err != nil {
			return err
		}
		if threadID != 0 {
			rec.ThreadID = &threadID
		}
	}
	if rec.ControlMessageID == nil && rec.ThreadID != nil {
		var controlID int64
		err := e.retry(ctx, "post_controls", func() error {
			var cerr error
			controlID, cerr = e.gateway.PostControls(ctx, *rec.ThreadID, chat.ControlsFor(rec))
			return cerr
		})
		if err != nil {
			return err
		}
		if controlID != 0 {
			rec.ControlMessageID = &controlID
		}
	}
	return nil
}

// refreshDisplay re-renders the card and thread controls. Failures degrade
// to a logged, visibly stale display rather than failing the operation.
func (e *Engine) refreshDisplay(ctx context.Context, rec *models.ApplicationRecord) {
	if rec.MessageID != 0 {
		err := e.retry(ctx, "edit_card", func() error {
			return e.gateway.EditCard(ctx, rec.ChannelID, rec.MessageID, chat.CardFor(rec))
		})
		if err != nil {
			e.log.Error("Card refresh failed", map[string]interface{}{
				"topic_id": rec.TopicID,
				"error":    err.Error(),
			})
		}
	}
	if rec.ThreadID != nil && rec.ControlMessageID != nil {
		err := e.retry(ctx, "edit_controls", func() error {
			return e.gateway.EditControls(ctx, *rec.ThreadID, *rec.ControlMessageID, chat.ControlsFor(rec))
		})
		if err != nil {
			e.log.Error("Controls refresh failed", map[string]interface{}{
				"topic_id": rec.TopicID,
				"error":    err.Error(),
			})
		}
	}
}

// appendLog adds a workflow-log line: to the processing thread, to the audit
// index, and to the in-memory transcript. All sinks are best-effort.
func (e *Engine) appendLog(ctx context.Context, rec *models.ApplicationRecord, actor string, external bool, msg string) {
	entry := models.WorkflowLogEntry{
		ID:       uuid.NewString(),
		TopicID:  rec.TopicID,
		At:       time.Now().UTC(),
		Actor:    actor,
		External: external,
		Message:  msg,
	}

	e.transcriptMu.Lock()
	e.transcript[rec.TopicID] = append(e.transcript[rec.TopicID],
		fmt.Sprintf("[%s] %s", entry.At.Format(time.RFC3339), msg))
	e.transcriptMu.Unlock()

	if err := e.indexer.Index(ctx, entry); err != nil {
		e.log.Warn("Audit indexing failed", map[string]interface{}{
			"topic_id": rec.TopicID,
			"error":    err.Error(),
		})
	}

	if rec.ThreadID != nil {
		if _, err := e.gateway.PostThreadMessage(ctx, *rec.ThreadID, msg); err != nil {
			e.log.Warn("Workflow log post failed", map[string]interface{}{
				"topic_id": rec.TopicID,
				"error":    err.Error(),
			})
		}
	}
}

// Transcript returns the flattened workflow log collected in this process.
func (e *Engine) Transcript(topicID int64) []string {
	e.transcriptMu.Lock()
	defer e.transcriptMu.Unlock()
	return append([]string(nil), e.transcript[topicID]...)
}

func (e *Engine) dropTranscript(topicID int64) {
	e.transcriptMu.Lock()
	defer e.transcriptMu.Unlock()
	delete(e.transcript, topicID)
}

// Restore re-arms archive timers for records whose schedule survived a
// restart. Overdue timers fire immediately.
func (e *Engine) Restore(ctx context.Context) error {
	if e.archiver == nil {
		return nil
	}
	pending, err := e.store.ListPendingArchives(ctx)
	if err != nil {
		return err
	}
	for _, rec := range pending {
		if rec.ArchiveScheduledAt == nil {
			continue
		}
		e.archiver.Schedule(rec.TopicID, *rec.ArchiveScheduledAt)
	}
	e.log.Info("Archive timers restored", map[string]interface{}{
		"count": len(pending),
	})
	return nil
}
