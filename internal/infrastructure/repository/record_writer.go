package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ewamal/bulk-data-import-export/internal/domain/job"
	"github.com/ewamal/bulk-data-import-export/internal/domain/record"
)

const pgFKViolation = "23503"

const upsertUserSQL = `
INSERT INTO users (external_id, email, name, role, active, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
ON CONFLICT (email) DO UPDATE
  SET name = EXCLUDED.name,
      role = EXCLUDED.role,
      active = EXCLUDED.active,
      external_id = COALESCE(EXCLUDED.external_id, users.external_id),
      updated_at = NOW()
`

const upsertArticleSQL = `
INSERT INTO articles (external_id, slug, title, description, body, status, published_at, author_id, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW())
ON CONFLICT (slug) DO UPDATE
  SET title = EXCLUDED.title,
      description = EXCLUDED.description,
      body = EXCLUDED.body,
      status = EXCLUDED.status,
      published_at = EXCLUDED.published_at,
      author_id = EXCLUDED.author_id,
      external_id = COALESCE(EXCLUDED.external_id, articles.external_id),
      updated_at = NOW()
`

const upsertCommentByExternalIDSQL = `
INSERT INTO comments (external_id, body, article_id, author_id, created_at, updated_at)
VALUES ($1, $2, $3, $4, NOW(), NOW())
ON CONFLICT (external_id) DO UPDATE
  SET body = EXCLUDED.body,
      article_id = EXCLUDED.article_id,
      author_id = EXCLUDED.author_id,
      updated_at = NOW()
`

const insertCommentSQL = `
INSERT INTO comments (external_id, body, article_id, author_id, created_at, updated_at)
VALUES ($1, $2, $3, $4, NOW(), NOW())
`

// BatchWriter is the write side of the store contract: upsert by unique
// key, one transaction per flushed batch.
type BatchWriter struct {
	pool *pgxpool.Pool
}

func NewBatchWriter(pool *pgxpool.Pool) *BatchWriter {
	return &BatchWriter{pool: pool}
}

func (w *BatchWriter) Begin(ctx context.Context) (job.RecordBatch, error) {
	tx, err := w.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	return &recordBatch{tx: tx}, nil
}

type recordBatch struct {
	tx pgx.Tx
	n  int
}

func (b *recordBatch) UpsertUser(ctx context.Context, u record.User) error {
	return b.isolated(ctx, func() error {
		_, err := b.tx.Exec(ctx, upsertUserSQL,
			nullableText(u.ExternalID), u.Email, u.Name, nullableText(u.Role), u.Active)
		return err
	})
}

func (b *recordBatch) UpsertArticle(ctx context.Context, a record.Article, authorID int64) error {
	return b.isolated(ctx, func() error {
		_, err := b.tx.Exec(ctx, upsertArticleSQL,
			nullableText(a.ExternalID), a.Slug, a.Title, a.Description, a.Body,
			nullableText(a.Status), a.PublishedAt, authorID)
		return err
	})
}

func (b *recordBatch) UpsertComment(ctx context.Context, c record.Comment, articleID, authorID int64) error {
	return b.isolated(ctx, func() error {
		// Comments have no natural key; external_id is the only upsert
		// handle, so records without one are plain inserts.
		if c.ExternalID != "" {
			_, err := b.tx.Exec(ctx, upsertCommentByExternalIDSQL,
				c.ExternalID, c.Body, articleID, authorID)
			return err
		}
		_, err := b.tx.Exec(ctx, insertCommentSQL,
			nil, c.Body, articleID, authorID)
		return err
	})
}

func (b *recordBatch) Commit(ctx context.Context) error {
	return b.tx.Commit(ctx)
}

func (b *recordBatch) Rollback(ctx context.Context) error {
	return b.tx.Rollback(ctx)
}

// isolated wraps one upsert in a savepoint. PostgreSQL aborts the whole
// transaction on any statement error; rolling back to the savepoint keeps
// the rest of the batch usable, which is the per-record isolation contract.
func (b *recordBatch) isolated(ctx context.Context, fn func() error) error {
	b.n++
	sp := fmt.Sprintf("sp_%d", b.n)

	if _, err := b.tx.Exec(ctx, "SAVEPOINT "+sp); err != nil {
		return fmt.Errorf("create savepoint: %w", err)
	}

	if err := fn(); err != nil {
		if _, rbErr := b.tx.Exec(ctx, "ROLLBACK TO SAVEPOINT "+sp); rbErr != nil {
			return fmt.Errorf("rollback savepoint: %w", rbErr)
		}
		return classifyPgError(err)
	}

	if _, err := b.tx.Exec(ctx, "RELEASE SAVEPOINT "+sp); err != nil {
		return fmt.Errorf("release savepoint: %w", err)
	}
	return nil
}

// classifyPgError surfaces store-level referential failures under the same
// type the resolver uses, so imports report one foreign-key category.
func classifyPgError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgFKViolation {
		return &job.ForeignKeyViolation{Field: pgErr.ConstraintName, Reference: pgErr.Detail}
	}
	return err
}
