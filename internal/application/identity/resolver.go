// Package identity maps external opaque identifiers to internal sequential
// ids during ingestion, and back again during export formatting.
package identity

import (
	"context"
	"errors"
	"fmt"

	"github.com/ewamal/bulk-data-import-export/internal/domain/job"
	"github.com/ewamal/bulk-data-import-export/internal/domain/record"
)

type externalIDIndex interface {
	LookupIDByExternalID(ctx context.Context, resource record.Resource, externalID string) (int64, error)
	LookupExternalID(ctx context.Context, resource record.Resource, id int64) (string, error)
}

type Resolver struct {
	index externalIDIndex
}

func NewResolver(index externalIDIndex) *Resolver {
	return &Resolver{index: index}
}

// Resolve turns a reference into an internal id. Internal references pass
// through without a store round-trip; external ones are looked up against
// the resource's unique external-identifier index. A miss is a
// ForeignKeyViolation naming the referencing field.
func (r *Resolver) Resolve(ctx context.Context, resource record.Resource, ref record.Ref, field string) (int64, error) {
	if id, ok := ref.Internal(); ok {
		return id, nil
	}

	id, err := r.index.LookupIDByExternalID(ctx, resource, ref.External())
	if err != nil {
		if errors.Is(err, record.ErrNotFound) {
			return 0, &job.ForeignKeyViolation{Field: field, Reference: ref.External()}
		}
		return 0, fmt.Errorf("lookup %s by external id: %w", resource, err)
	}
	return id, nil
}

// Externalizer translates internal ids back to external identifiers for
// export output, caching lookups for the duration of one export run so that
// hot references (a prolific author, a busy article) cost one round-trip.
type Externalizer struct {
	index externalIDIndex
	cache map[cacheKey]string
}

type cacheKey struct {
	resource record.Resource
	id       int64
}

func (r *Resolver) NewExternalizer() *Externalizer {
	return &Externalizer{index: r.index, cache: make(map[cacheKey]string)}
}

// Externalize prefers the record's external identifier over the raw internal
// id so that re-imported exports round-trip. When the referenced record has
// no external id, the numeric id is used as-is.
func (e *Externalizer) Externalize(ctx context.Context, resource record.Resource, id int64) any {
	key := cacheKey{resource: resource, id: id}
	if ext, ok := e.cache[key]; ok {
		if ext == "" {
			return id
		}
		return ext
	}

	ext, err := e.index.LookupExternalID(ctx, resource, id)
	if err != nil {
		return id
	}
	e.cache[key] = ext
	if ext == "" {
		return id
	}
	return ext
}

// RefValue formats an already-known external id, falling back to the id.
func RefValue(externalID string, id int64) any {
	if externalID != "" {
		return externalID
	}
	return id
}
