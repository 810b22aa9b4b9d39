// internal/interaction/parser.go
package interaction

import (
	"fmt"
	"strconv"
	"strings"

	apperrors "application-sync/internal/common/errors"
	"application-sync/internal/models"
)

// Control custom ids carry the command and the topic id they are bound to,
// e.g. "app_claim:42". Selection commands carry their argument in the
// interaction's submitted values.
const (
	customClaim     = "app_claim"
	customUnclaim   = "app_unclaim"
	customReassign  = "app_reassign"
	customSetStatus = "app_set_status"
)

// ParseCommand normalizes a control interaction into a Command.
func ParseCommand(customID string, values []string, actor models.Actor) (models.Command, error) {
	var cmd models.Command

	name, rest, found := strings.Cut(customID, ":")
	if !found {
		return cmd, apperrors.NewMalformedPayloadError(
			fmt.Sprintf("control id %q carries no topic id", customID))
	}
	topicID, err := strconv.ParseInt(rest, 10, 64)
	if err != nil || topicID <= 0 {
		return cmd, apperrors.NewMalformedPayloadError(
			fmt.Sprintf("control id %q carries an invalid topic id", customID))
	}

	cmd.TopicID = topicID
	cmd.Actor = actor

	switch name {
	case customClaim:
		cmd.Kind = models.CommandClaim
	case customUnclaim:
		cmd.Kind = models.CommandUnclaim
	case customReassign:
		cmd.Kind = models.CommandReassign
		if len(values) == 0 || values[0] == "" {
			return cmd, apperrors.NewMalformedPayloadError("reassign requires a target selection")
		}
		cmd.Target = values[0]
	case customSetStatus:
		cmd.Kind = models.CommandSetStatus
		if len(values) == 0 || values[0] == "" {
			return cmd, apperrors.NewMalformedPayloadError("status change requires a stage selection")
		}
		cmd.StageTag = values[0]
	default:
		return cmd, apperrors.NewMalformedPayloadError(
			fmt.Sprintf("unknown control id %q", name))
	}

	return cmd, nil
}
