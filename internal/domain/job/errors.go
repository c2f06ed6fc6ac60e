package job

import (
	"errors"
	"fmt"

	"github.com/ewamal/bulk-data-import-export/internal/domain/record"
)

// ErrNotFound is returned by job lookups when no job has the requested id.
var ErrNotFound = errors.New("job not found")

// ErrorType categorizes a failed record for ImportError rows.
type ErrorType string

const (
	ErrorTypeValidation ErrorType = "VALIDATION_ERROR"
	ErrorTypeForeignKey ErrorType = "FOREIGN_KEY_VIOLATION"
	ErrorTypeParse      ErrorType = "PARSE_ERROR"
	ErrorTypeStore      ErrorType = "STORE_ERROR"
)

// ForeignKeyViolation means a referenced identifier could not be resolved to
// an internal id. Per-record, never job-fatal.
type ForeignKeyViolation struct {
	Field     string
	Reference string
}

func (e *ForeignKeyViolation) Error() string {
	return fmt.Sprintf("%s: no record found for reference %q", e.Field, e.Reference)
}

// ParseError means one source record could not be decoded. Per-record.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error: %v", e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// SourceError is fatal to the whole job: the source itself is unusable
// (missing file, failed download, top-level structure not a list).
type SourceError struct {
	Reason string
	Err    error
}

func (e *SourceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Reason, e.Err)
	}
	return e.Reason
}

func (e *SourceError) Unwrap() error { return e.Err }

// ClassifyError maps a per-record failure to its ErrorType category.
func ClassifyError(err error) ErrorType {
	var verr *record.ValidationError
	if errors.As(err, &verr) {
		return ErrorTypeValidation
	}
	var fk *ForeignKeyViolation
	if errors.As(err, &fk) {
		return ErrorTypeForeignKey
	}
	var perr *ParseError
	if errors.As(err, &perr) {
		return ErrorTypeParse
	}
	return ErrorTypeStore
}
