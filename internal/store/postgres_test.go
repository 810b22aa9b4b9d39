// internal/store/postgres_test.go
package store

import (
	"context"
	"testing"

	apperrors "application-sync/internal/common/errors"
	"application-sync/internal/common/logger"
	"application-sync/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Test Helper Functions
// ==========================

func newMockStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	s := NewPostgresStore(db, logger.NewNoOpLogger())
	return s, mock, func() { db.Close() }
}

func recordRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"topic_id", "channel_id", "message_id", "message_missing", "thread_id",
		"control_message_id", "claimed_by", "status", "tags_last_seen",
		"topic_title", "topic_author", "topic_url", "topic_synced_at",
		"tags_last_written", "tags_written_at",
		"archive_scheduled_at", "archive_state", "archived",
		"created_at", "updated_at",
	})
}

func addRecordRow(rows *sqlmock.Rows, topicID int64, claimedBy interface{}) *sqlmock.Rows {
	ts := now()
	return rows.AddRow(
		topicID, int64(100), int64(200), false, nil,
		nil, claimedBy, "new", pq.StringArray{"new-application"},
		"Application 42", "applicant", "https://forum.example/t/42", nil,
		pq.StringArray(nil), nil,
		nil, nil, false,
		ts, ts,
	)
}

// ==========================
// Claim CAS Tests
// ==========================

func TestTryClaim_Success(t *testing.T) {
	s, mock, done := newMockStore(t)
	defer done()

	mock.ExpectExec(`UPDATE application_records`).
		WithArgs(int64(42), "u1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := s.TryClaim(context.Background(), 42, "u1")
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTryClaim_ConflictReportsHolder(t *testing.T) {
	s, mock, done := newMockStore(t)
	defer done()

	// CAS misses, then the follow-up read reveals the current claimant.
	mock.ExpectExec(`UPDATE application_records`).
		WithArgs(int64(42), "u2", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT .+ FROM application_records`).
		WithArgs(int64(42)).
		WillReturnRows(addRecordRow(recordRows(), 42, "u1"))

	err := s.TryClaim(context.Background(), 42, "u2")
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeClaimConflict, apperrors.CodeOf(err))

	var serr *apperrors.StandardError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, "u1", serr.Metadata["claimedBy"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTryClaim_MissingRecord(t *testing.T) {
	s, mock, done := newMockStore(t)
	defer done()

	mock.ExpectExec(`UPDATE application_records`).
		WithArgs(int64(99), "u1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT .+ FROM application_records`).
		WithArgs(int64(99)).
		WillReturnRows(recordRows())

	err := s.TryClaim(context.Background(), 99, "u1")
	assert.Equal(t, apperrors.ErrCodeRecordNotFound, apperrors.CodeOf(err))
}

// ==========================
// Unclaim Tests
// ==========================

func TestUnclaim_ConditionalOnExpectedClaimant(t *testing.T) {
	s, mock, done := newMockStore(t)
	defer done()

	mock.ExpectExec(`UPDATE application_records`).
		WithArgs(int64(42), "u1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	assert.NoError(t, s.Unclaim(context.Background(), 42, "u1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUnclaim_StaleExpectationConflicts(t *testing.T) {
	s, mock, done := newMockStore(t)
	defer done()

	mock.ExpectExec(`UPDATE application_records`).
		WithArgs(int64(42), "u2", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT .+ FROM application_records`).
		WithArgs(int64(42)).
		WillReturnRows(addRecordRow(recordRows(), 42, "u1"))

	err := s.Unclaim(context.Background(), 42, "u2")
	assert.Equal(t, apperrors.ErrCodeClaimConflict, apperrors.CodeOf(err))
}

func TestUnclaim_ForcedIgnoresClaimant(t *testing.T) {
	s, mock, done := newMockStore(t)
	defer done()

	mock.ExpectExec(`UPDATE application_records`).
		WithArgs(int64(42), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	assert.NoError(t, s.Unclaim(context.Background(), 42, ""))
}

// ==========================
// CRUD Tests
// ==========================

func TestGet_NotFound(t *testing.T) {
	s, mock, done := newMockStore(t)
	defer done()

	mock.ExpectQuery(`SELECT .+ FROM application_records`).
		WithArgs(int64(7)).
		WillReturnRows(recordRows())

	_, err := s.Get(context.Background(), 7)
	assert.Equal(t, apperrors.ErrCodeRecordNotFound, apperrors.CodeOf(err))
}

func TestGet_ScansTags(t *testing.T) {
	s, mock, done := newMockStore(t)
	defer done()

	mock.ExpectQuery(`SELECT .+ FROM application_records`).
		WithArgs(int64(42)).
		WillReturnRows(addRecordRow(recordRows(), 42, nil))

	rec, err := s.Get(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, int64(42), rec.TopicID)
	assert.Equal(t, []string{"new-application"}, rec.TagsLastSeen)
	assert.False(t, rec.Claimed())
}

func TestCreate_InsertsAllColumns(t *testing.T) {
	s, mock, done := newMockStore(t)
	defer done()

	mock.ExpectExec(`INSERT INTO application_records`).
		WillReturnResult(sqlmock.NewResult(1, 1))

	rec := &models.ApplicationRecord{
		TopicID:      42,
		ChannelID:    100,
		MessageID:    200,
		Status:       models.StatusNew,
		TagsLastSeen: []string{"new-application"},
	}
	require.NoError(t, s.Create(context.Background(), rec))
	assert.False(t, rec.CreatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSave_MissingRecord(t *testing.T) {
	s, mock, done := newMockStore(t)
	defer done()

	mock.ExpectExec(`UPDATE application_records`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := s.Save(context.Background(), &models.ApplicationRecord{TopicID: 7})
	assert.Equal(t, apperrors.ErrCodeRecordNotFound, apperrors.CodeOf(err))
}

func TestListPendingArchives(t *testing.T) {
	s, mock, done := newMockStore(t)
	defer done()

	rows := recordRows()
	addRecordRow(rows, 42, nil)
	addRecordRow(rows, 43, "u1")
	mock.ExpectQuery(`SELECT .+ FROM application_records`).
		WillReturnRows(rows)

	recs, err := s.ListPendingArchives(context.Background())
	require.NoError(t, err)
	assert.Len(t, recs, 2)
}

func TestDelete(t *testing.T) {
	s, mock, done := newMockStore(t)
	defer done()

	mock.ExpectExec(`DELETE FROM application_records`).
		WithArgs(int64(42)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	assert.NoError(t, s.Delete(context.Background(), 42))
}
