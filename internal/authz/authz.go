// internal/authz/authz.go
package authz

import (
	"application-sync/internal/models"
)

// Policy holds the role names that grant workflow capabilities. Role
// membership is resolved by the chat platform; this package only decides
// whether a resolved role set permits an action.
type Policy struct {
	ClaimRoles    []string
	OverrideRoles []string
}

func hasAny(roles []string, allowed []string) bool {
	set := make(map[string]bool, len(allowed))
	for _, r := range allowed {
		set[r] = true
	}
	for _, r := range roles {
		if set[r] {
			return true
		}
	}
	return false
}

// CanClaim reports whether the actor may claim an unclaimed record.
func (p Policy) CanClaim(actor models.Actor) bool {
	return hasAny(actor.Roles, p.ClaimRoles)
}

// HasOverride reports whether the actor holds an override role.
func (p Policy) HasOverride(actor models.Actor) bool {
	return hasAny(actor.Roles, p.OverrideRoles)
}

// CanUnclaim reports whether the actor may release the record's claim.
// The current claimant may release their own claim; anyone with an override
// role may release any claim.
func (p Policy) CanUnclaim(actor models.Actor, rec *models.ApplicationRecord) bool {
	if p.HasOverride(actor) {
		return true
	}
	return p.CanClaim(actor) && rec.ClaimedBy != nil && *rec.ClaimedBy == actor.ID
}

// CanReassign reports whether the actor may move the claim to another actor.
// Reassignment always requires an override role.
func (p Policy) CanReassign(actor models.Actor) bool {
	return p.HasOverride(actor)
}

// CanSetStatus reports whether the actor may change the record's workflow
// status. The claimant (holding a claim role) may advance their own record;
// override roles may change any record.
func (p Policy) CanSetStatus(actor models.Actor, rec *models.ApplicationRecord) bool {
	if p.HasOverride(actor) {
		return true
	}
	return p.CanClaim(actor) && rec.ClaimedBy != nil && *rec.ClaimedBy == actor.ID
}
