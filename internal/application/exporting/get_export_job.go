package exporting

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ewamal/bulk-data-import-export/internal/domain/job"
)

type exportJobReader interface {
	GetExportJob(ctx context.Context, id int64) (*job.ExportJob, error)
}

type ExportJobStatus struct {
	JobID        int64      `json:"job_id"`
	Resource     string     `json:"resource"`
	Status       string     `json:"status"`
	Format       string     `json:"format"`
	TotalRecords int64      `json:"total_records"`
	SuccessCount int64      `json:"success_count"`
	ErrorCount   int64      `json:"error_count"`
	DownloadURL  string     `json:"download_url,omitempty"`
	ErrorMessage string     `json:"error_message,omitempty"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

type GetExportJob struct {
	jobs exportJobReader
}

func NewGetExportJob(jobs exportJobReader) *GetExportJob {
	return &GetExportJob{jobs: jobs}
}

func (uc *GetExportJob) Execute(ctx context.Context, id int64) (ExportJobStatus, error) {
	j, err := uc.jobs.GetExportJob(ctx, id)
	if err != nil {
		if errors.Is(err, job.ErrNotFound) {
			return ExportJobStatus{}, ErrJobNotFound
		}
		return ExportJobStatus{}, fmt.Errorf("get export job: %w", err)
	}

	return ExportJobStatus{
		JobID:        j.ID,
		Resource:     string(j.Resource),
		Status:       string(j.Status),
		Format:       string(j.Format),
		TotalRecords: j.TotalRecords,
		SuccessCount: j.SuccessCount,
		ErrorCount:   j.ErrorCount,
		DownloadURL:  j.DownloadURL,
		ErrorMessage: j.ErrorMessage,
		StartedAt:    j.StartedAt,
		CompletedAt:  j.CompletedAt,
		CreatedAt:    j.CreatedAt,
	}, nil
}
