// internal/interaction/handler.go
package interaction

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	apperrors "application-sync/internal/common/errors"
	"application-sync/internal/common/logger"
	"application-sync/internal/common/metrics"
	"application-sync/internal/models"
	"application-sync/internal/webhook"
)

// Dispatcher is the engine surface the interaction ingestor drives.
type Dispatcher interface {
	Claim(ctx context.Context, cmd models.Command) error
	Unclaim(ctx context.Context, cmd models.Command) error
	Reassign(ctx context.Context, cmd models.Command) error
	SetStatus(ctx context.Context, cmd models.Command) error
}

// Handler accepts signed interaction callbacks from the chat platform and
// dispatches them. Failures surface only to the requesting actor, as an
// ephemeral reply; nothing is broadcast.
type Handler struct {
	dispatcher Dispatcher
	secrets    []string
	log        logger.Logger
}

// NewHandler creates the interaction endpoint handler. secrets sign the
// callback bodies the same way the forum webhook is signed.
func NewHandler(dispatcher Dispatcher, secrets []string, log logger.Logger) *Handler {
	return &Handler{dispatcher: dispatcher, secrets: secrets, log: log}
}

// interactionPayload is the normalized callback shape posted by the chat
// platform adapter.
type interactionPayload struct {
	CustomID string   `json:"custom_id"`
	Values   []string `json:"values"`
	Actor    struct {
		ID      string   `json:"id"`
		Display string   `json:"display"`
		Roles   []string `json:"roles"`
	} `json:"actor"`
}

type interactionReply struct {
	Content   string `json:"content"`
	Ephemeral bool   `json:"ephemeral"`
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		http.Error(w, "read failed", http.StatusBadRequest)
		return
	}
	if !webhook.VerifySignature(body, r.Header.Get("X-Interaction-Signature"), h.secrets) {
		serr := apperrors.NewInvalidSignatureError("interaction callback signature matched no configured secret")
		h.log.Warn("Interaction signature rejected", map[string]interface{}{
			"remote": r.RemoteAddr,
			"code":   string(serr.Code),
		})
		http.Error(w, serr.Message, http.StatusUnauthorized)
		return
	}

	var p interactionPayload
	if err := json.Unmarshal(body, &p); err != nil {
		http.Error(w, "malformed payload", http.StatusBadRequest)
		return
	}

	actor := models.Actor{ID: p.Actor.ID, Display: p.Actor.Display, Roles: p.Actor.Roles}
	if actor.Display == "" {
		actor.Display = actor.ID
	}

	cmd, err := ParseCommand(p.CustomID, p.Values, actor)
	if err != nil {
		h.reply(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.Dispatch(r.Context(), cmd); err != nil {
		metrics.InteractionsProcessed.WithLabelValues(string(cmd.Kind), "rejected").Inc()
		h.reply(w, statusFor(err), ActorMessage(err))
		return
	}
	h.reply(w, http.StatusOK, "Done.")
}

// Dispatch routes a parsed command to the engine.
func (h *Handler) Dispatch(ctx context.Context, cmd models.Command) error {
	switch cmd.Kind {
	case models.CommandClaim:
		return h.dispatcher.Claim(ctx, cmd)
	case models.CommandUnclaim:
		return h.dispatcher.Unclaim(ctx, cmd)
	case models.CommandReassign:
		return h.dispatcher.Reassign(ctx, cmd)
	case models.CommandSetStatus:
		return h.dispatcher.SetStatus(ctx, cmd)
	}
	return apperrors.NewMalformedPayloadError(fmt.Sprintf("unknown command %q", cmd.Kind))
}

func (h *Handler) reply(w http.ResponseWriter, status int, content string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(interactionReply{Content: content, Ephemeral: true})
}

func statusFor(err error) int {
	switch apperrors.CodeOf(err) {
	case apperrors.ErrCodeAuthorizationDenied:
		return http.StatusForbidden
	case apperrors.ErrCodeClaimConflict, apperrors.ErrCodeRecordAlreadyClosed:
		return http.StatusConflict
	case apperrors.ErrCodeRecordNotFound:
		return http.StatusNotFound
	case apperrors.ErrCodeMalformedPayload:
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// ActorMessage renders an error as the text shown to the requesting actor.
func ActorMessage(err error) string {
	var serr *apperrors.StandardError
	if !errors.As(err, &serr) {
		return "Something went wrong. Please try again."
	}
	switch serr.Code {
	case apperrors.ErrCodeClaimConflict:
		if holder, ok := serr.Metadata["claimedBy"].(string); ok && holder != "" {
			return fmt.Sprintf("Already claimed by %s.", holder)
		}
		return "Already claimed."
	case apperrors.ErrCodeAuthorizationDenied:
		return "You are not allowed to do that."
	case apperrors.ErrCodeRecordAlreadyClosed:
		return "This application is already archived."
	case apperrors.ErrCodeRecordNotFound:
		return "This application no longer exists."
	}
	return "Something went wrong. Please try again."
}
