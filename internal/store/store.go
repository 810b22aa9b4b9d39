// internal/store/store.go
package store

import (
	"context"
	"time"

	"application-sync/internal/models"
)

// Store is the durable record store keyed by topic id. Claim operations are
// atomic at the store level so that concurrent claims race safely even across
// service instances.
type Store interface {
	// Get returns the record for a topic, or a RECORD_NOT_FOUND error.
	Get(ctx context.Context, topicID int64) (*models.ApplicationRecord, error)

	// Create inserts a new record. CreatedAt/UpdatedAt are set by the store.
	Create(ctx context.Context, rec *models.ApplicationRecord) error

	// Save writes every mutable field of an existing record.
	Save(ctx context.Context, rec *models.ApplicationRecord) error

	// TryClaim atomically sets the claimant if and only if the record is
	// unclaimed. On conflict it returns a CLAIM_CONFLICT error carrying the
	// current claimant.
	TryClaim(ctx context.Context, topicID int64, actorID string) error

	// Unclaim clears the claim. When expected is non-empty the clear only
	// happens if the current claimant matches; a stale expectation returns
	// CLAIM_CONFLICT.
	Unclaim(ctx context.Context, topicID int64, expected string) error

	// SetClaim overwrites the claimant unconditionally (reassignment).
	SetClaim(ctx context.Context, topicID int64, actorID string) error

	// List returns every record, for reconciliation sweeps.
	List(ctx context.Context) ([]*models.ApplicationRecord, error)

	// ListPendingArchives returns records whose archive is scheduled and not
	// yet complete, for timer re-arming after restart.
	ListPendingArchives(ctx context.Context) ([]*models.ApplicationRecord, error)

	// Delete removes the record entirely.
	Delete(ctx context.Context, topicID int64) error
}

func now() time.Time {
	return time.Now().UTC()
}
