package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/ewamal/bulk-data-import-export/internal/domain/record"
	"github.com/ewamal/bulk-data-import-export/internal/infrastructure/db/models"
)

// RecordRepository serves the read side of the store contract: point lookup
// by unique key and paged ordered scan with equality filters.
type RecordRepository struct {
	db *gorm.DB
}

func NewRecordRepository(db *gorm.DB) *RecordRepository {
	return &RecordRepository{db: db}
}

// LookupIDByExternalID resolves an external opaque identifier against the
// resource's unique external-identifier index.
func (r *RecordRepository) LookupIDByExternalID(ctx context.Context, resource record.Resource, externalID string) (int64, error) {
	var id int64
	err := r.db.WithContext(ctx).
		Table(tableFor(resource)).
		Select("id").
		Where("external_id = ?", externalID).
		Take(&id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, record.ErrNotFound
		}
		return 0, fmt.Errorf("lookup %s external id: %w", resource, err)
	}
	return id, nil
}

// LookupExternalID is the inverse direction, used by export formatting.
// Records without an external id yield an empty string.
func (r *RecordRepository) LookupExternalID(ctx context.Context, resource record.Resource, id int64) (string, error) {
	var ext *string
	err := r.db.WithContext(ctx).
		Table(tableFor(resource)).
		Select("external_id").
		Where("id = ?", id).
		Take(&ext).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", record.ErrNotFound
		}
		return "", fmt.Errorf("lookup %s external id by id: %w", resource, err)
	}
	if ext == nil {
		return "", nil
	}
	return *ext, nil
}

// ScanPage reads one cursor page: id > afterID, ordered by id ascending,
// with the resource's equality filters applied. A short page ends the scan.
func (r *RecordRepository) ScanPage(ctx context.Context, resource record.Resource, filters map[string]any, afterID int64, limit int) ([]record.Stored, error) {
	q := r.db.WithContext(ctx).
		Where("id > ?", afterID).
		Order("id ASC").
		Limit(limit)

	switch resource {
	case record.ResourceUsers:
		q = applyFilters(q, filters, "active", "role")
		var rows []models.User
		if err := q.Find(&rows).Error; err != nil {
			return nil, fmt.Errorf("scan users: %w", err)
		}
		out := make([]record.Stored, 0, len(rows))
		for _, row := range rows {
			out = append(out, record.StoredUser{
				ID:         row.ID,
				ExternalID: derefText(row.ExternalID),
				Email:      row.Email,
				Name:       row.Name,
				Role:       derefText(row.Role),
				Active:     row.Active,
				CreatedAt:  row.CreatedAt,
				UpdatedAt:  row.UpdatedAt,
			})
		}
		return out, nil

	case record.ResourceArticles:
		q = applyFilters(q, filters, "status", "author_id")
		var rows []models.Article
		if err := q.Find(&rows).Error; err != nil {
			return nil, fmt.Errorf("scan articles: %w", err)
		}
		out := make([]record.Stored, 0, len(rows))
		for _, row := range rows {
			out = append(out, record.StoredArticle{
				ID:          row.ID,
				ExternalID:  derefText(row.ExternalID),
				Slug:        row.Slug,
				Title:       row.Title,
				Description: row.Description,
				Body:        row.Body,
				Status:      row.Status,
				PublishedAt: row.PublishedAt,
				AuthorID:    row.AuthorID,
				CreatedAt:   row.CreatedAt,
				UpdatedAt:   row.UpdatedAt,
			})
		}
		return out, nil

	case record.ResourceComments:
		q = applyFilters(q, filters, "article_id", "author_id")
		var rows []models.Comment
		if err := q.Find(&rows).Error; err != nil {
			return nil, fmt.Errorf("scan comments: %w", err)
		}
		out := make([]record.Stored, 0, len(rows))
		for _, row := range rows {
			out = append(out, record.StoredComment{
				ID:         row.ID,
				ExternalID: derefText(row.ExternalID),
				Body:       row.Body,
				ArticleID:  row.ArticleID,
				AuthorID:   row.AuthorID,
				CreatedAt:  row.CreatedAt,
				UpdatedAt:  row.UpdatedAt,
			})
		}
		return out, nil

	default:
		return nil, fmt.Errorf("unknown resource %q", resource)
	}
}

// applyFilters translates the job's opaque filter payload into equality
// predicates on the allowed columns. Unknown keys are ignored.
func applyFilters(q *gorm.DB, filters map[string]any, allowed ...string) *gorm.DB {
	for _, key := range allowed {
		v, ok := filters[key]
		if !ok || v == nil {
			continue
		}
		// JSON numbers arrive as float64; integral ids compare fine either
		// way, so the value is passed through as-is.
		q = q.Where(key+" = ?", v)
	}
	return q
}

func tableFor(resource record.Resource) string {
	switch resource {
	case record.ResourceUsers:
		return models.User{}.TableName()
	case record.ResourceArticles:
		return models.Article{}.TableName()
	case record.ResourceComments:
		return models.Comment{}.TableName()
	default:
		return string(resource)
	}
}
