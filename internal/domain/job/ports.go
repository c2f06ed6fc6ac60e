package job

import (
	"context"

	"github.com/ewamal/bulk-data-import-export/internal/domain/record"
)

// BatchUpserter opens one store transaction per flushed batch.
type BatchUpserter interface {
	Begin(ctx context.Context) (RecordBatch, error)
}

// RecordBatch upserts validated records one at a time. Each call is isolated:
// a failed upsert must not poison the batch, and later calls must still
// succeed. References have already been resolved to internal ids.
type RecordBatch interface {
	UpsertUser(ctx context.Context, u record.User) error
	UpsertArticle(ctx context.Context, a record.Article, authorID int64) error
	UpsertComment(ctx context.Context, c record.Comment, articleID, authorID int64) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}
