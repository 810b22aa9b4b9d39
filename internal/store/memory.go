// internal/store/memory.go
package store

import (
	"context"
	"sync"

	apperrors "application-sync/internal/common/errors"
	"application-sync/internal/models"
)

// MemoryStore is an in-process Store used by tests and dry-run tooling.
// Claim operations hold the store mutex, so the compare-and-set semantics
// match the SQL implementation.
type MemoryStore struct {
	mu      sync.Mutex
	records map[int64]*models.ApplicationRecord
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[int64]*models.ApplicationRecord)}
}

func copyRecord(rec *models.ApplicationRecord) *models.ApplicationRecord {
	cp := *rec
	cp.TagsLastSeen = append([]string(nil), rec.TagsLastSeen...)
	cp.TagsLastWritten = append([]string(nil), rec.TagsLastWritten...)
	if rec.ClaimedBy != nil {
		v := *rec.ClaimedBy
		cp.ClaimedBy = &v
	}
	if rec.ThreadID != nil {
		v := *rec.ThreadID
		cp.ThreadID = &v
	}
	if rec.ControlMessageID != nil {
		v := *rec.ControlMessageID
		cp.ControlMessageID = &v
	}
	if rec.TopicSyncedAt != nil {
		v := *rec.TopicSyncedAt
		cp.TopicSyncedAt = &v
	}
	if rec.TagsWrittenAt != nil {
		v := *rec.TagsWrittenAt
		cp.TagsWrittenAt = &v
	}
	if rec.ArchiveScheduledAt != nil {
		v := *rec.ArchiveScheduledAt
		cp.ArchiveScheduledAt = &v
	}
	return &cp
}

func (s *MemoryStore) Get(_ context.Context, topicID int64) (*models.ApplicationRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[topicID]
	if !ok {
		return nil, apperrors.NewRecordNotFoundError(topicID)
	}
	return copyRecord(rec), nil
}

func (s *MemoryStore) Create(_ context.Context, rec *models.ApplicationRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ts := now()
	rec.CreatedAt = ts
	rec.UpdatedAt = ts
	s.records[rec.TopicID] = copyRecord(rec)
	return nil
}

func (s *MemoryStore) Save(_ context.Context, rec *models.ApplicationRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[rec.TopicID]; !ok {
		return apperrors.NewRecordNotFoundError(rec.TopicID)
	}
	rec.UpdatedAt = now()
	s.records[rec.TopicID] = copyRecord(rec)
	return nil
}

func (s *MemoryStore) TryClaim(_ context.Context, topicID int64, actorID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[topicID]
	if !ok {
		return apperrors.NewRecordNotFoundError(topicID)
	}
	if rec.ClaimedBy != nil && *rec.ClaimedBy != "" {
		return apperrors.NewClaimConflictError(topicID, *rec.ClaimedBy)
	}
	rec.ClaimedBy = &actorID
	rec.UpdatedAt = now()
	return nil
}

func (s *MemoryStore) Unclaim(_ context.Context, topicID int64, expected string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[topicID]
	if !ok {
		return apperrors.NewRecordNotFoundError(topicID)
	}
	if expected != "" {
		if rec.ClaimedBy == nil || *rec.ClaimedBy != expected {
			holder := ""
			if rec.ClaimedBy != nil {
				holder = *rec.ClaimedBy
			}
			return apperrors.NewClaimConflictError(topicID, holder)
		}
	}
	rec.ClaimedBy = nil
	rec.UpdatedAt = now()
	return nil
}

func (s *MemoryStore) SetClaim(_ context.Context, topicID int64, actorID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[topicID]
	if !ok {
		return apperrors.NewRecordNotFoundError(topicID)
	}
	rec.ClaimedBy = &actorID
	rec.UpdatedAt = now()
	return nil
}

func (s *MemoryStore) List(_ context.Context) ([]*models.ApplicationRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*models.ApplicationRecord, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, copyRecord(rec))
	}
	return out, nil
}

func (s *MemoryStore) ListPendingArchives(_ context.Context) ([]*models.ApplicationRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.ApplicationRecord
	for _, rec := range s.records {
		if rec.ArchiveScheduledAt != nil && !rec.Archived {
			out = append(out, copyRecord(rec))
		}
	}
	return out, nil
}

func (s *MemoryStore) Delete(_ context.Context, topicID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[topicID]; !ok {
		return apperrors.NewRecordNotFoundError(topicID)
	}
	delete(s.records, topicID)
	return nil
}
