// internal/engine/archive_test.go
package engine

import (
	"context"
	"errors"
	"strings"
	"testing"

	apperrors "application-sync/internal/common/errors"
	"application-sync/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Archive Sequence Tests
// ==========================

func acceptedWithThread(t *testing.T, h *harness) *models.ApplicationRecord {
	ctx := context.Background()
	require.NoError(t, h.engine.HandleTopicEvent(ctx, topicEvent(42, "new-application")))
	require.NoError(t, h.engine.Claim(ctx, models.Command{TopicID: 42, Actor: reviewer("u1")}))
	require.NoError(t, h.engine.HandleTopicEvent(ctx, topicEvent(42, "p-file")))

	rec, err := h.store.Get(ctx, 42)
	require.NoError(t, err)
	require.NotNil(t, rec.ArchiveScheduledAt)
	require.NotNil(t, rec.ThreadID)
	return rec
}

func TestRunArchive_CompletesSequence(t *testing.T) {
	h := newHarness(t, "test")
	ctx := context.Background()
	rec := acceptedWithThread(t, h)
	threadID := *rec.ThreadID
	controlID := *rec.ControlMessageID

	require.NoError(t, h.engine.RunArchive(ctx, 42))

	rec, err := h.store.Get(ctx, 42)
	require.NoError(t, err)
	assert.True(t, rec.Archived)
	assert.Nil(t, rec.ArchiveScheduledAt)
	assert.Equal(t, models.ArchiveStateComplete, rec.ArchiveState)
	assert.Nil(t, rec.ThreadID)

	assert.True(t, h.gateway.Controls[controlID].Disabled)
	assert.True(t, h.gateway.Locked[threadID])
	assert.True(t, h.gateway.Deleted[threadID])

	// Summary card went to the archive channel, main card became a stub.
	summaryPosted := false
	for id, ch := range h.gateway.CardChannel {
		if ch == 900 && id != rec.MessageID {
			summaryPosted = true
		}
	}
	assert.True(t, summaryPosted)
	assert.True(t, h.gateway.Cards[rec.MessageID].Stub)
	assert.NotEmpty(t, h.gateway.Cards[rec.MessageID].ArchiveURL)
}

func TestRunArchive_FlattensTranscript(t *testing.T) {
	h := newHarness(t, "test")
	ctx := context.Background()
	acceptedWithThread(t, h)

	require.NoError(t, h.engine.RunArchive(ctx, 42))

	var transcript string
	for threadID, msgs := range h.gateway.ThreadMsgs {
		if h.gateway.Deleted[threadID] {
			continue
		}
		transcript = strings.Join(msgs, "\n")
	}
	// The transcript opens with the final status line and carries the log.
	lines := strings.Split(transcript, "\n")
	require.NotEmpty(t, lines)
	assert.Equal(t, "Accepted (claimed by u1)", lines[0])
	assert.Contains(t, transcript, "Application received")
	assert.Contains(t, transcript, "Claimed by u1")

	// Transcript memory is released once archived.
	assert.Empty(t, h.engine.Transcript(42))
}

func TestRunArchive_CancelledScheduleIsNoOp(t *testing.T) {
	h := newHarness(t, "test")
	ctx := context.Background()
	acceptedWithThread(t, h)
	require.NoError(t, h.engine.HandleTopicEvent(ctx, topicEvent(42, "on-hold")))

	require.NoError(t, h.engine.RunArchive(ctx, 42))

	rec, err := h.store.Get(ctx, 42)
	require.NoError(t, err)
	assert.False(t, rec.Archived)
	assert.Equal(t, models.StatusOnHold, rec.Status)
}

func TestRunArchive_MissingRecordIsNoOp(t *testing.T) {
	h := newHarness(t, "test")
	assert.NoError(t, h.engine.RunArchive(context.Background(), 999))
}

func TestRunArchive_StepFailureDegradesToPartial(t *testing.T) {
	h := newHarness(t, "test")
	ctx := context.Background()
	acceptedWithThread(t, h)

	h.gateway.FailOn["LockAndArchive"] = errors.New("remote unavailable")

	err := h.engine.RunArchive(ctx, 42)
	assert.Equal(t, apperrors.ErrCodeArchiveStepFailed, apperrors.CodeOf(err))

	rec, gerr := h.store.Get(ctx, 42)
	require.NoError(t, gerr)
	assert.False(t, rec.Archived)
	assert.Nil(t, rec.ArchiveScheduledAt)
	assert.Equal(t, models.ArchiveState("partial:lock_and_archive"), rec.ArchiveState)
}

func TestRunArchive_NoThreadStillArchives(t *testing.T) {
	// A record that was never claimed has no thread; the sequence skips the
	// thread steps and still reaches the terminal state.
	h := newHarness(t, "test")
	ctx := context.Background()
	require.NoError(t, h.engine.HandleTopicEvent(ctx, topicEvent(42, "p-file")))

	require.NoError(t, h.engine.RunArchive(ctx, 42))

	rec, err := h.store.Get(ctx, 42)
	require.NoError(t, err)
	assert.True(t, rec.Archived)
}

// ==========================
// Manual Deletion Reconciliation Tests
// ==========================

func TestReconcile_TwoPassDeletion(t *testing.T) {
	h := newHarness(t, "test")
	ctx := context.Background()
	rec := acceptedWithThread(t, h)
	h.gateway.AuditActor = "moderator"

	// Simulate a manual card deletion outside the engine.
	h.gateway.Deleted[rec.MessageID] = true
	delete(h.gateway.Cards, rec.MessageID)

	// First pass flags, second pass confirms and deletes.
	require.NoError(t, h.engine.ReconcileOnce(ctx))
	flagged, err := h.store.Get(ctx, 42)
	require.NoError(t, err)
	assert.True(t, flagged.MessageMissing)

	require.NoError(t, h.engine.ReconcileOnce(ctx))
	_, err = h.store.Get(ctx, 42)
	assert.Equal(t, apperrors.ErrCodeRecordNotFound, apperrors.CodeOf(err))

	// A deletion summary naming the actor went to the archive channel.
	summary := strings.Join(h.gateway.ThreadMsgs[900], "\n")
	assert.Contains(t, summary, "moderator")
	assert.Contains(t, summary, "topic 42")
}

func TestReconcile_PresentCardClearsFlag(t *testing.T) {
	h := newHarness(t, "test")
	ctx := context.Background()
	rec := acceptedWithThread(t, h)

	rec.MessageMissing = true
	require.NoError(t, h.store.Save(ctx, rec))

	require.NoError(t, h.engine.ReconcileOnce(ctx))
	rec, err := h.store.Get(ctx, 42)
	require.NoError(t, err)
	assert.False(t, rec.MessageMissing)
}
