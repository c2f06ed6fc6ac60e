package job

import (
	"time"

	"github.com/ewamal/bulk-data-import-export/internal/domain/record"
)

// Status is the job lifecycle state. Transitions are one-directional:
// pending -> processing -> completed | failed.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Format names an output framing for exports and a parse mode for imports.
type Format string

const (
	FormatNDJSON    Format = "ndjson"
	FormatCSV       Format = "csv"
	FormatJSONArray Format = "json"
)

type ImportJob struct {
	ID             int64
	IdempotencyKey string
	Resource       record.Resource
	Status         Status
	FilePath       string // local path or remote URL
	TotalRecords   int64
	SuccessCount   int64
	ErrorCount     int64
	SkippedCount   int64
	ErrorMessage   string
	StartedAt      *time.Time
	CompletedAt    *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type ExportJob struct {
	ID             int64
	IdempotencyKey string
	Resource       record.Resource
	Status         Status
	Format         Format
	Filters        map[string]any
	Fields         []string
	FilePath       string
	DownloadURL    string
	TotalRecords   int64
	SuccessCount   int64
	ErrorCount     int64
	ErrorMessage   string
	StartedAt      *time.Time
	CompletedAt    *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// ImportError is one failed record of an import job. Rows are append-only.
type ImportError struct {
	ID           int64
	ImportJobID  int64
	RecordIndex  int64
	RecordData   string // raw, unvalidated input
	ErrorMessage string
	ErrorType    ErrorType
	CreatedAt    time.Time
}

// Counters is the per-flush delta applied to a job via atomic store-side
// increments, never read-modify-write.
type Counters struct {
	Succeeded int64
	Failed    int64
	Skipped   int64
}
