// internal/audit/indexer.go
package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"time"

	"application-sync/internal/common/database"
	apperrors "application-sync/internal/common/errors"
	"application-sync/internal/common/logger"
	"application-sync/internal/models"
)

// Indexer writes workflow-log entries into Elasticsearch for operator
// search. Indexing is best-effort: callers log the returned error and move
// on, the workflow itself never depends on it.
type Indexer interface {
	Index(ctx context.Context, entry models.WorkflowLogEntry) error
}

// ESIndexer indexes entries into a single configured index.
type ESIndexer struct {
	es    *database.ElasticsearchClient
	index string
	log   logger.Logger
}

// NewESIndexer creates an indexer writing to the given index.
func NewESIndexer(es *database.ElasticsearchClient, index string, log logger.Logger) *ESIndexer {
	return &ESIndexer{es: es, index: index, log: log}
}

func (i *ESIndexer) Index(ctx context.Context, entry models.WorkflowLogEntry) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return apperrors.NewAuditIndexingFailedError(err)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	res, err := i.es.Client.Index(i.index, bytes.NewReader(raw),
		i.es.Client.Index.WithContext(ctx),
		i.es.Client.Index.WithDocumentID(entry.ID),
	)
	if err != nil {
		return apperrors.NewAuditIndexingFailedError(err)
	}
	defer res.Body.Close()
	io.Copy(io.Discard, res.Body)

	if res.IsError() {
		return apperrors.NewAuditIndexingFailedError(
			&indexStatusError{status: res.Status()})
	}
	return nil
}

type indexStatusError struct {
	status string
}

func (e *indexStatusError) Error() string {
	return "index response: " + e.status
}

// NoOpIndexer satisfies Indexer when Elasticsearch is disabled.
type NoOpIndexer struct{}

func (NoOpIndexer) Index(context.Context, models.WorkflowLogEntry) error { return nil }
