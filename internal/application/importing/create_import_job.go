package importing

import (
	"context"
	"fmt"
	"strings"

	"github.com/ewamal/bulk-data-import-export/internal/domain/job"
	"github.com/ewamal/bulk-data-import-export/internal/domain/record"
)

type CreateImportJobInput struct {
	Resource       string
	Source         string // local path or http(s)/s3 URL
	IdempotencyKey string
}

type CreateImportJobOutput struct {
	JobID  int64  `json:"job_id"`
	Status string `json:"status"`
}

type importJobCreator interface {
	// CreateImportOrGet inserts the job, or loads the existing one when the
	// idempotency key is already taken. Returns true when a row was created.
	CreateImportOrGet(ctx context.Context, j *job.ImportJob) (bool, error)
}

type CreateImportJob struct {
	jobs importJobCreator
}

func NewCreateImportJob(jobs importJobCreator) *CreateImportJob {
	return &CreateImportJob{jobs: jobs}
}

func (uc *CreateImportJob) Execute(ctx context.Context, in CreateImportJobInput) (CreateImportJobOutput, error) {
	resource, err := record.ParseResource(in.Resource)
	if err != nil {
		return CreateImportJobOutput{}, ErrInvalidResource
	}

	source := strings.TrimSpace(in.Source)
	if source == "" {
		return CreateImportJobOutput{}, ErrInvalidSource
	}

	j := &job.ImportJob{
		IdempotencyKey: strings.TrimSpace(in.IdempotencyKey),
		Resource:       resource,
		Status:         job.StatusPending,
		FilePath:       source,
	}
	if _, err := uc.jobs.CreateImportOrGet(ctx, j); err != nil {
		return CreateImportJobOutput{}, fmt.Errorf("create import job: %w", err)
	}

	return CreateImportJobOutput{JobID: j.ID, Status: string(j.Status)}, nil
}
