package importing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ewamal/bulk-data-import-export/internal/domain/job"
)

// RecentErrorLimit caps the error rows exposed on the status view.
const RecentErrorLimit = 100

type importJobReader interface {
	GetImportJob(ctx context.Context, id int64) (*job.ImportJob, error)
	RecentImportErrors(ctx context.Context, jobID int64, limit int) ([]job.ImportError, error)
}

type ImportErrorView struct {
	RecordIndex int64  `json:"record_index"`
	Message     string `json:"message"`
	Type        string `json:"type"`
	RecordData  string `json:"record_data"`
}

type ImportJobStatus struct {
	JobID        int64             `json:"job_id"`
	Resource     string            `json:"resource"`
	Status       string            `json:"status"`
	TotalRecords int64             `json:"total_records"`
	SuccessCount int64             `json:"success_count"`
	ErrorCount   int64             `json:"error_count"`
	SkippedCount int64             `json:"skipped_count"`
	ErrorMessage string            `json:"error_message,omitempty"`
	StartedAt    *time.Time        `json:"started_at,omitempty"`
	CompletedAt  *time.Time        `json:"completed_at,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	Errors       []ImportErrorView `json:"errors"`
}

type GetImportJob struct {
	jobs importJobReader
}

func NewGetImportJob(jobs importJobReader) *GetImportJob {
	return &GetImportJob{jobs: jobs}
}

func (uc *GetImportJob) Execute(ctx context.Context, id int64) (ImportJobStatus, error) {
	j, err := uc.jobs.GetImportJob(ctx, id)
	if err != nil {
		if errors.Is(err, job.ErrNotFound) {
			return ImportJobStatus{}, ErrJobNotFound
		}
		return ImportJobStatus{}, fmt.Errorf("get import job: %w", err)
	}

	rows, err := uc.jobs.RecentImportErrors(ctx, id, RecentErrorLimit)
	if err != nil {
		return ImportJobStatus{}, fmt.Errorf("load import errors: %w", err)
	}

	views := make([]ImportErrorView, 0, len(rows))
	for _, e := range rows {
		views = append(views, ImportErrorView{
			RecordIndex: e.RecordIndex,
			Message:     e.ErrorMessage,
			Type:        string(e.ErrorType),
			RecordData:  e.RecordData,
		})
	}

	return ImportJobStatus{
		JobID:        j.ID,
		Resource:     string(j.Resource),
		Status:       string(j.Status),
		TotalRecords: j.TotalRecords,
		SuccessCount: j.SuccessCount,
		ErrorCount:   j.ErrorCount,
		SkippedCount: j.SkippedCount,
		ErrorMessage: j.ErrorMessage,
		StartedAt:    j.StartedAt,
		CompletedAt:  j.CompletedAt,
		CreatedAt:    j.CreatedAt,
		Errors:       views,
	}, nil
}
