package exporting

import (
	"context"

	"github.com/ewamal/bulk-data-import-export/internal/application/identity"
	"github.com/ewamal/bulk-data-import-export/internal/domain/record"
)

type externalizer interface {
	Externalize(ctx context.Context, resource record.Resource, id int64) any
}

// formatRecord projects a stored record into its export shape. The external
// identifier is preferred over the internal integer id wherever one exists,
// for the record itself and for its relational fields, so that re-imported
// exports round-trip. An optional field list restricts the output to exactly
// those keys.
func formatRecord(ctx context.Context, ext externalizer, s record.Stored, fields []string) map[string]any {
	var out map[string]any

	switch r := s.(type) {
	case record.StoredUser:
		out = map[string]any{
			"id":         identity.RefValue(r.ExternalID, r.ID),
			"email":      r.Email,
			"name":       r.Name,
			"role":       r.Role,
			"active":     r.Active,
			"created_at": r.CreatedAt,
			"updated_at": r.UpdatedAt,
		}
	case record.StoredArticle:
		out = map[string]any{
			"id":           identity.RefValue(r.ExternalID, r.ID),
			"slug":         r.Slug,
			"title":        r.Title,
			"description":  r.Description,
			"body":         r.Body,
			"status":       r.Status,
			"published_at": r.PublishedAt,
			"author_id":    ext.Externalize(ctx, record.ResourceUsers, r.AuthorID),
			"created_at":   r.CreatedAt,
			"updated_at":   r.UpdatedAt,
		}
	case record.StoredComment:
		out = map[string]any{
			"id":         identity.RefValue(r.ExternalID, r.ID),
			"body":       r.Body,
			"article_id": ext.Externalize(ctx, record.ResourceArticles, r.ArticleID),
			"author_id":  ext.Externalize(ctx, record.ResourceUsers, r.AuthorID),
			"created_at": r.CreatedAt,
			"updated_at": r.UpdatedAt,
		}
	default:
		return nil
	}

	if len(fields) == 0 {
		return out
	}

	// Simple map-key filtering, not a projection DSL.
	selected := make(map[string]any, len(fields))
	for _, f := range fields {
		if v, ok := out[f]; ok {
			selected[f] = v
		}
	}
	return selected
}
