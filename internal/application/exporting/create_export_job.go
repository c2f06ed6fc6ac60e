package exporting

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ewamal/bulk-data-import-export/internal/domain/job"
	"github.com/ewamal/bulk-data-import-export/internal/domain/record"
)

var (
	ErrInvalidResource = errors.New("invalid resource")
	ErrInvalidFormat   = errors.New("invalid export format")
	ErrJobNotFound     = errors.New("export job not found")
)

type CreateExportJobInput struct {
	Resource       string
	Format         string
	Filters        map[string]any
	Fields         []string
	IdempotencyKey string
}

type CreateExportJobOutput struct {
	JobID  int64  `json:"job_id"`
	Status string `json:"status"`
}

type exportJobCreator interface {
	CreateExportOrGet(ctx context.Context, j *job.ExportJob) (bool, error)
}

type CreateExportJob struct {
	jobs exportJobCreator
}

func NewCreateExportJob(jobs exportJobCreator) *CreateExportJob {
	return &CreateExportJob{jobs: jobs}
}

func (uc *CreateExportJob) Execute(ctx context.Context, in CreateExportJobInput) (CreateExportJobOutput, error) {
	resource, err := record.ParseResource(in.Resource)
	if err != nil {
		return CreateExportJobOutput{}, ErrInvalidResource
	}

	format, err := ParseExportFormat(in.Format)
	if err != nil {
		return CreateExportJobOutput{}, ErrInvalidFormat
	}

	j := &job.ExportJob{
		IdempotencyKey: strings.TrimSpace(in.IdempotencyKey),
		Resource:       resource,
		Status:         job.StatusPending,
		Format:         format,
		Filters:        in.Filters,
		Fields:         in.Fields,
	}
	if _, err := uc.jobs.CreateExportOrGet(ctx, j); err != nil {
		return CreateExportJobOutput{}, fmt.Errorf("create export job: %w", err)
	}

	return CreateExportJobOutput{JobID: j.ID, Status: string(j.Status)}, nil
}

// ParseExportFormat accepts the two output framings, defaulting to NDJSON.
func ParseExportFormat(s string) (job.Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "ndjson":
		return job.FormatNDJSON, nil
	case "json":
		return job.FormatJSONArray, nil
	default:
		return "", fmt.Errorf("unknown export format %q", s)
	}
}
