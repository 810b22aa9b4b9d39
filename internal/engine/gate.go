// internal/engine/gate.go
package engine

import (
	"context"

	"application-sync/internal/chat"
	"application-sync/internal/common/config"
	apperrors "application-sync/internal/common/errors"
	"application-sync/internal/common/logger"
	"application-sync/internal/forum"
	"application-sync/internal/models"
)

// modeGate enforces the run mode on every mutating collaborator call,
// independent of the business logic that requested it. dry-run short-circuits
// before any network call; test/prod validate channel targets against the
// allowlist resolved from configuration and fail closed on mismatch.
type modeGate struct {
	cfg     config.ChatConfig
	allowed map[int64]bool
	log     logger.Logger
}

func newModeGate(cfg config.ChatConfig, log logger.Logger) (*modeGate, error) {
	g := &modeGate{cfg: cfg, allowed: make(map[int64]bool), log: log}
	if cfg.IsDryRun() {
		return g, nil
	}
	_, notifyCh, err := cfg.TargetGuildChannel()
	if err != nil {
		return nil, apperrors.NewFatalConfigError(err.Error())
	}
	g.allowed[notifyCh] = true
	if arch := cfg.TargetArchiveChannel(); arch != 0 {
		g.allowed[arch] = true
	}
	return g, nil
}

// check gates a mutation against channelID. A zero channelID marks a
// thread-scoped mutation, which inherits the allowlisting of the channel the
// thread was created under. proceed=false with nil error is the dry-run skip.
func (g *modeGate) check(channelID int64, op string) (bool, error) {
	if g.cfg.IsDryRun() {
		g.log.Info("Dry-run: skipping mutation", map[string]interface{}{
			"operation": op,
		})
		return false, nil
	}
	if channelID != 0 && !g.allowed[channelID] {
		guild, _, _ := g.cfg.TargetGuildChannel()
		g.log.Error("Mutation target outside allowlist", map[string]interface{}{
			"operation":  op,
			"channel_id": channelID,
			"mode":       g.cfg.Mode,
		})
		return false, apperrors.NewModeTargetMismatchError(g.cfg.Mode, guild, channelID)
	}
	return true, nil
}

// gatedGateway wraps a chat.Gateway with the mode gate. Read operations pass
// through untouched.
type gatedGateway struct {
	inner chat.Gateway
	gate  *modeGate
}

func (g *gatedGateway) PostCard(ctx context.Context, channelID int64, card chat.Card) (int64, error) {
	ok, err := g.gate.check(channelID, "post_card")
	if !ok {
		return 0, err
	}
	return g.inner.PostCard(ctx, channelID, card)
}

func (g *gatedGateway) EditCard(ctx context.Context, channelID, messageID int64, card chat.Card) error {
	ok, err := g.gate.check(channelID, "edit_card")
	if !ok {
		return err
	}
	return g.inner.EditCard(ctx, channelID, messageID, card)
}

func (g *gatedGateway) MessageExists(ctx context.Context, channelID, messageID int64) (bool, error) {
	return g.inner.MessageExists(ctx, channelID, messageID)
}

func (g *gatedGateway) CreateThread(ctx context.Context, channelID, messageID int64, name string) (int64, error) {
	ok, err := g.gate.check(channelID, "create_thread")
	if !ok {
		return 0, err
	}
	return g.inner.CreateThread(ctx, channelID, messageID, name)
}

func (g *gatedGateway) PostThreadMessage(ctx context.Context, threadID int64, text string) (int64, error) {
	ok, err := g.gate.check(0, "post_thread_message")
	if !ok {
		return 0, err
	}
	return g.inner.PostThreadMessage(ctx, threadID, text)
}

func (g *gatedGateway) LockAndArchive(ctx context.Context, threadID int64) error {
	ok, err := g.gate.check(0, "lock_and_archive")
	if !ok {
		return err
	}
	return g.inner.LockAndArchive(ctx, threadID)
}

func (g *gatedGateway) DeleteThread(ctx context.Context, threadID int64) error {
	ok, err := g.gate.check(0, "delete_thread")
	if !ok {
		return err
	}
	return g.inner.DeleteThread(ctx, threadID)
}

func (g *gatedGateway) PostControls(ctx context.Context, threadID int64, state chat.ControlState) (int64, error) {
	ok, err := g.gate.check(0, "post_controls")
	if !ok {
		return 0, err
	}
	return g.inner.PostControls(ctx, threadID, state)
}

func (g *gatedGateway) EditControls(ctx context.Context, threadID, controlMessageID int64, state chat.ControlState) error {
	ok, err := g.gate.check(0, "edit_controls")
	if !ok {
		return err
	}
	return g.inner.EditControls(ctx, threadID, controlMessageID, state)
}

func (g *gatedGateway) DisableControls(ctx context.Context, threadID, controlMessageID int64) error {
	ok, err := g.gate.check(0, "disable_controls")
	if !ok {
		return err
	}
	return g.inner.DisableControls(ctx, threadID, controlMessageID)
}

func (g *gatedGateway) ReadAuditTrail(ctx context.Context, guildID, targetID int64) (string, error) {
	return g.inner.ReadAuditTrail(ctx, guildID, targetID)
}

// gatedForum wraps the forum collaborator: reads pass through, tag writes
// honor dry-run.
type gatedForum struct {
	inner forum.Forum
	gate  *modeGate
}

func (g *gatedForum) FetchTopic(ctx context.Context, topicID int64) (*models.Topic, error) {
	return g.inner.FetchTopic(ctx, topicID)
}

func (g *gatedForum) SetTags(ctx context.Context, topicID int64, tags []string) error {
	ok, err := g.gate.check(0, "set_tags")
	if !ok {
		return err
	}
	return g.inner.SetTags(ctx, topicID, tags)
}
