// internal/store/postgres.go
package store

import (
	"context"
	"database/sql"
	"errors"

	apperrors "application-sync/internal/common/errors"
	"application-sync/internal/common/logger"
	"application-sync/internal/models"

	"github.com/lib/pq"
)

const recordColumns = `topic_id, channel_id, message_id, message_missing, thread_id,
		control_message_id, claimed_by, status, tags_last_seen,
		topic_title, topic_author, topic_url, topic_synced_at,
		tags_last_written, tags_written_at,
		archive_scheduled_at, archive_state, archived,
		created_at, updated_at`

// PostgresStore persists application records in the application_records table.
type PostgresStore struct {
	db  *sql.DB
	log logger.Logger
}

// NewPostgresStore creates a record store backed by the given database.
func NewPostgresStore(db *sql.DB, log logger.Logger) *PostgresStore {
	return &PostgresStore{db: db, log: log}
}

func (s *PostgresStore) Get(ctx context.Context, topicID int64) (*models.ApplicationRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+recordColumns+`
		FROM application_records
		WHERE topic_id = $1`, topicID)

	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewRecordNotFoundError(topicID)
	}
	if err != nil {
		return nil, apperrors.NewDatabaseFailedError(err)
	}
	return rec, nil
}

func (s *PostgresStore) Create(ctx context.Context, rec *models.ApplicationRecord) error {
	ts := now()
	rec.CreatedAt = ts
	rec.UpdatedAt = ts

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO application_records (`+recordColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10,
			$11, $12, $13, $14, $15, $16, $17, $18, $19, $20)`,
		rec.TopicID, rec.ChannelID, rec.MessageID, rec.MessageMissing, rec.ThreadID,
		rec.ControlMessageID, rec.ClaimedBy, rec.Status, pq.Array(rec.TagsLastSeen),
		rec.TopicTitle, rec.TopicAuthor, rec.TopicURL, rec.TopicSyncedAt,
		pq.Array(rec.TagsLastWritten), rec.TagsWrittenAt,
		rec.ArchiveScheduledAt, rec.ArchiveState, rec.Archived,
		rec.CreatedAt, rec.UpdatedAt)
	if err != nil {
		return apperrors.NewDatabaseFailedError(err)
	}

	s.log.Info("Record created", map[string]interface{}{"topic_id": rec.TopicID})
	return nil
}

func (s *PostgresStore) Save(ctx context.Context, rec *models.ApplicationRecord) error {
	rec.UpdatedAt = now()

	res, err := s.db.ExecContext(ctx, `
		UPDATE application_records SET
			channel_id = $2, message_id = $3, message_missing = $4, thread_id = $5,
			control_message_id = $6, claimed_by = $7, status = $8, tags_last_seen = $9,
			topic_title = $10, topic_author = $11, topic_url = $12, topic_synced_at = $13,
			tags_last_written = $14, tags_written_at = $15,
			archive_scheduled_at = $16, archive_state = $17, archived = $18,
			updated_at = $19
		WHERE topic_id = $1`,
		rec.TopicID, rec.ChannelID, rec.MessageID, rec.MessageMissing, rec.ThreadID,
		rec.ControlMessageID, rec.ClaimedBy, rec.Status, pq.Array(rec.TagsLastSeen),
		rec.TopicTitle, rec.TopicAuthor, rec.TopicURL, rec.TopicSyncedAt,
		pq.Array(rec.TagsLastWritten), rec.TagsWrittenAt,
		rec.ArchiveScheduledAt, rec.ArchiveState, rec.Archived,
		rec.UpdatedAt)
	if err != nil {
		return apperrors.NewDatabaseFailedError(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperrors.NewRecordNotFoundError(rec.TopicID)
	}
	return nil
}

// TryClaim is a compare-and-set: the WHERE clause only matches an unclaimed
// row, so exactly one of any number of concurrent claimants wins.
func (s *PostgresStore) TryClaim(ctx context.Context, topicID int64, actorID string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE application_records
		SET claimed_by = $2, updated_at = $3
		WHERE topic_id = $1 AND claimed_by IS NULL`,
		topicID, actorID, now())
	if err != nil {
		return apperrors.NewDatabaseFailedError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return apperrors.NewDatabaseFailedError(err)
	}
	if n == 1 {
		return nil
	}

	rec, err := s.Get(ctx, topicID)
	if err != nil {
		return err
	}
	holder := ""
	if rec.ClaimedBy != nil {
		holder = *rec.ClaimedBy
	}
	return apperrors.NewClaimConflictError(topicID, holder)
}

func (s *PostgresStore) Unclaim(ctx context.Context, topicID int64, expected string) error {
	var (
		res sql.Result
		err error
	)
	if expected == "" {
		res, err = s.db.ExecContext(ctx, `
			UPDATE application_records
			SET claimed_by = NULL, updated_at = $2
			WHERE topic_id = $1`,
			topicID, now())
	} else {
		res, err = s.db.ExecContext(ctx, `
			UPDATE application_records
			SET claimed_by = NULL, updated_at = $3
			WHERE topic_id = $1 AND claimed_by = $2`,
			topicID, expected, now())
	}
	if err != nil {
		return apperrors.NewDatabaseFailedError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return apperrors.NewDatabaseFailedError(err)
	}
	if n == 1 {
		return nil
	}

	rec, err := s.Get(ctx, topicID)
	if err != nil {
		return err
	}
	holder := ""
	if rec.ClaimedBy != nil {
		holder = *rec.ClaimedBy
	}
	return apperrors.NewClaimConflictError(topicID, holder)
}

func (s *PostgresStore) SetClaim(ctx context.Context, topicID int64, actorID string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE application_records
		SET claimed_by = $2, updated_at = $3
		WHERE topic_id = $1`,
		topicID, actorID, now())
	if err != nil {
		return apperrors.NewDatabaseFailedError(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperrors.NewRecordNotFoundError(topicID)
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context) ([]*models.ApplicationRecord, error) {
	return s.query(ctx, `
		SELECT `+recordColumns+`
		FROM application_records
		ORDER BY topic_id`)
}

func (s *PostgresStore) ListPendingArchives(ctx context.Context) ([]*models.ApplicationRecord, error) {
	return s.query(ctx, `
		SELECT `+recordColumns+`
		FROM application_records
		WHERE archive_scheduled_at IS NOT NULL AND archived = FALSE
		ORDER BY archive_scheduled_at`)
}

func (s *PostgresStore) query(ctx context.Context, q string) ([]*models.ApplicationRecord, error) {
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, apperrors.NewDatabaseFailedError(err)
	}
	defer rows.Close()

	var out []*models.ApplicationRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, apperrors.NewDatabaseFailedError(err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewDatabaseFailedError(err)
	}
	return out, nil
}

func (s *PostgresStore) Delete(ctx context.Context, topicID int64) error {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM application_records WHERE topic_id = $1`, topicID)
	if err != nil {
		return apperrors.NewDatabaseFailedError(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperrors.NewRecordNotFoundError(topicID)
	}
	s.log.Info("Record deleted", map[string]interface{}{"topic_id": topicID})
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row rowScanner) (*models.ApplicationRecord, error) {
	var (
		rec      models.ApplicationRecord
		seen     pq.StringArray
		written  pq.StringArray
		archived sql.NullString
	)
	err := row.Scan(
		&rec.TopicID, &rec.ChannelID, &rec.MessageID, &rec.MessageMissing, &rec.ThreadID,
		&rec.ControlMessageID, &rec.ClaimedBy, &rec.Status, &seen,
		&rec.TopicTitle, &rec.TopicAuthor, &rec.TopicURL, &rec.TopicSyncedAt,
		&written, &rec.TagsWrittenAt,
		&rec.ArchiveScheduledAt, &archived, &rec.Archived,
		&rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return nil, err
	}
	rec.TagsLastSeen = []string(seen)
	rec.TagsLastWritten = []string(written)
	if archived.Valid {
		rec.ArchiveState = models.ArchiveState(archived.String)
	}
	return &rec, nil
}
