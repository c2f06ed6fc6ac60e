package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/ewamal/bulk-data-import-export/internal/domain/job"
	"github.com/ewamal/bulk-data-import-export/internal/domain/record"
	"github.com/ewamal/bulk-data-import-export/internal/infrastructure/db/models"
)

// JobRepository persists import/export jobs and their error rows via gorm.
type JobRepository struct {
	db *gorm.DB
}

func NewJobRepository(db *gorm.DB) *JobRepository {
	return &JobRepository{db: db}
}

// CreateImportOrGet inserts the job; if the idempotency key is already
// taken it loads the existing row instead, so the same logical request
// never creates two jobs.
func (r *JobRepository) CreateImportOrGet(ctx context.Context, j *job.ImportJob) (bool, error) {
	row := importJobToModel(j)

	if row.IdempotencyKey == nil {
		if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
			return false, fmt.Errorf("create import job: %w", err)
		}
		*j = *importJobToDomain(&row)
		return true, nil
	}

	createErr := r.db.WithContext(ctx).Create(&row).Error
	if createErr == nil {
		*j = *importJobToDomain(&row)
		return true, nil
	}

	var existing models.ImportJob
	getErr := r.db.WithContext(ctx).
		Where("idempotency_key = ?", *row.IdempotencyKey).
		First(&existing).Error
	if getErr != nil {
		if errors.Is(getErr, gorm.ErrRecordNotFound) {
			return false, fmt.Errorf("create import job: %w", createErr)
		}
		return false, fmt.Errorf("load import job by idempotency key: %w", getErr)
	}

	*j = *importJobToDomain(&existing)
	return false, nil
}

func (r *JobRepository) CreateExportOrGet(ctx context.Context, j *job.ExportJob) (bool, error) {
	row, err := exportJobToModel(j)
	if err != nil {
		return false, err
	}

	if row.IdempotencyKey == nil {
		if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
			return false, fmt.Errorf("create export job: %w", err)
		}
		out, err := exportJobToDomain(&row)
		if err != nil {
			return false, err
		}
		*j = *out
		return true, nil
	}

	createErr := r.db.WithContext(ctx).Create(&row).Error
	if createErr == nil {
		out, err := exportJobToDomain(&row)
		if err != nil {
			return false, err
		}
		*j = *out
		return true, nil
	}

	var existing models.ExportJob
	getErr := r.db.WithContext(ctx).
		Where("idempotency_key = ?", *row.IdempotencyKey).
		First(&existing).Error
	if getErr != nil {
		if errors.Is(getErr, gorm.ErrRecordNotFound) {
			return false, fmt.Errorf("create export job: %w", createErr)
		}
		return false, fmt.Errorf("load export job by idempotency key: %w", getErr)
	}

	out, err := exportJobToDomain(&existing)
	if err != nil {
		return false, err
	}
	*j = *out
	return false, nil
}

func (r *JobRepository) GetImportJob(ctx context.Context, id int64) (*job.ImportJob, error) {
	var row models.ImportJob
	if err := r.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, job.ErrNotFound
		}
		return nil, fmt.Errorf("get import job: %w", err)
	}
	return importJobToDomain(&row), nil
}

func (r *JobRepository) GetExportJob(ctx context.Context, id int64) (*job.ExportJob, error) {
	var row models.ExportJob
	if err := r.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, job.ErrNotFound
		}
		return nil, fmt.Errorf("get export job: %w", err)
	}
	return exportJobToDomain(&row)
}

func (r *JobRepository) PendingImports(ctx context.Context, limit int, exclude []int64) ([]job.ImportJob, error) {
	q := r.db.WithContext(ctx).
		Where("status = ?", string(job.StatusPending)).
		Order("created_at ASC").
		Limit(limit)
	if len(exclude) > 0 {
		q = q.Where("id NOT IN ?", exclude)
	}

	var rows []models.ImportJob
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list pending import jobs: %w", err)
	}

	jobs := make([]job.ImportJob, 0, len(rows))
	for i := range rows {
		jobs = append(jobs, *importJobToDomain(&rows[i]))
	}
	return jobs, nil
}

func (r *JobRepository) PendingExports(ctx context.Context, limit int, exclude []int64) ([]job.ExportJob, error) {
	q := r.db.WithContext(ctx).
		Where("status = ?", string(job.StatusPending)).
		Order("created_at ASC").
		Limit(limit)
	if len(exclude) > 0 {
		q = q.Where("id NOT IN ?", exclude)
	}

	var rows []models.ExportJob
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list pending export jobs: %w", err)
	}

	jobs := make([]job.ExportJob, 0, len(rows))
	for i := range rows {
		out, err := exportJobToDomain(&rows[i])
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *out)
	}
	return jobs, nil
}

// MarkImportProcessing performs the atomic pending -> processing claim.
// Zero rows affected means another worker already owns the job.
func (r *JobRepository) MarkImportProcessing(ctx context.Context, id int64) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.ImportJob{}).
		Where("id = ? AND status = ?", id, string(job.StatusPending)).
		Updates(map[string]any{
			"status":     string(job.StatusProcessing),
			"started_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return false, fmt.Errorf("claim import job: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (r *JobRepository) MarkExportProcessing(ctx context.Context, id int64) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.ExportJob{}).
		Where("id = ? AND status = ?", id, string(job.StatusPending)).
		Updates(map[string]any{
			"status":     string(job.StatusProcessing),
			"started_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return false, fmt.Errorf("claim export job: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

// IncrementCounters applies a flush delta with store-side increments, so
// concurrent flushes never lose updates to read-modify-write races.
func (r *JobRepository) IncrementCounters(ctx context.Context, jobID int64, delta job.Counters) error {
	updates := map[string]any{}
	if delta.Succeeded != 0 {
		updates["success_count"] = gorm.Expr("success_count + ?", delta.Succeeded)
	}
	if delta.Failed != 0 {
		updates["error_count"] = gorm.Expr("error_count + ?", delta.Failed)
	}
	if delta.Skipped != 0 {
		updates["skipped_count"] = gorm.Expr("skipped_count + ?", delta.Skipped)
	}
	if len(updates) == 0 {
		return nil
	}

	if err := r.db.WithContext(ctx).Model(&models.ImportJob{}).
		Where("id = ?", jobID).
		Updates(updates).Error; err != nil {
		return fmt.Errorf("increment import counters: %w", err)
	}
	return nil
}

func (r *JobRepository) CompleteImport(ctx context.Context, jobID, totalRecords int64) error {
	if err := r.db.WithContext(ctx).Model(&models.ImportJob{}).
		Where("id = ? AND status = ?", jobID, string(job.StatusProcessing)).
		Updates(map[string]any{
			"status":        string(job.StatusCompleted),
			"total_records": totalRecords,
			"completed_at":  time.Now().UTC(),
		}).Error; err != nil {
		return fmt.Errorf("complete import job: %w", err)
	}
	return nil
}

func (r *JobRepository) FailImport(ctx context.Context, jobID int64, reason string) error {
	if err := r.db.WithContext(ctx).Model(&models.ImportJob{}).
		Where("id = ? AND status = ?", jobID, string(job.StatusProcessing)).
		Updates(map[string]any{
			"status":        string(job.StatusFailed),
			"error_message": reason,
			"completed_at":  time.Now().UTC(),
		}).Error; err != nil {
		return fmt.Errorf("fail import job: %w", err)
	}
	return nil
}

func (r *JobRepository) CompleteExport(ctx context.Context, jobID, totalRecords int64, filePath, downloadURL string) error {
	if err := r.db.WithContext(ctx).Model(&models.ExportJob{}).
		Where("id = ? AND status = ?", jobID, string(job.StatusProcessing)).
		Updates(map[string]any{
			"status":        string(job.StatusCompleted),
			"total_records": totalRecords,
			"success_count": totalRecords,
			"file_path":     filePath,
			"download_url":  downloadURL,
			"completed_at":  time.Now().UTC(),
		}).Error; err != nil {
		return fmt.Errorf("complete export job: %w", err)
	}
	return nil
}

func (r *JobRepository) FailExport(ctx context.Context, jobID int64, reason string) error {
	if err := r.db.WithContext(ctx).Model(&models.ExportJob{}).
		Where("id = ? AND status = ?", jobID, string(job.StatusProcessing)).
		Updates(map[string]any{
			"status":        string(job.StatusFailed),
			"error_message": reason,
			"completed_at":  time.Now().UTC(),
		}).Error; err != nil {
		return fmt.Errorf("fail export job: %w", err)
	}
	return nil
}

func (r *JobRepository) RecordImportError(ctx context.Context, e job.ImportError) error {
	row := models.ImportError{
		ImportJobID:  e.ImportJobID,
		RecordIndex:  e.RecordIndex,
		RecordData:   e.RecordData,
		ErrorMessage: e.ErrorMessage,
		ErrorType:    string(e.ErrorType),
	}
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("insert import error: %w", err)
	}
	return nil
}

// RecentImportErrors returns the most recent error rows first.
func (r *JobRepository) RecentImportErrors(ctx context.Context, jobID int64, limit int) ([]job.ImportError, error) {
	var rows []models.ImportError
	if err := r.db.WithContext(ctx).
		Where("import_job_id = ?", jobID).
		Order("id DESC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list import errors: %w", err)
	}

	out := make([]job.ImportError, 0, len(rows))
	for _, row := range rows {
		out = append(out, job.ImportError{
			ID:           row.ID,
			ImportJobID:  row.ImportJobID,
			RecordIndex:  row.RecordIndex,
			RecordData:   row.RecordData,
			ErrorMessage: row.ErrorMessage,
			ErrorType:    job.ErrorType(row.ErrorType),
			CreatedAt:    row.CreatedAt,
		})
	}
	return out, nil
}

func importJobToModel(j *job.ImportJob) models.ImportJob {
	return models.ImportJob{
		ID:             j.ID,
		IdempotencyKey: nullableText(j.IdempotencyKey),
		Resource:       string(j.Resource),
		Status:         string(j.Status),
		FilePath:       j.FilePath,
		TotalRecords:   j.TotalRecords,
		SuccessCount:   j.SuccessCount,
		ErrorCount:     j.ErrorCount,
		SkippedCount:   j.SkippedCount,
		ErrorMessage:   nullableText(j.ErrorMessage),
		StartedAt:      j.StartedAt,
		CompletedAt:    j.CompletedAt,
	}
}

func importJobToDomain(row *models.ImportJob) *job.ImportJob {
	return &job.ImportJob{
		ID:             row.ID,
		IdempotencyKey: derefText(row.IdempotencyKey),
		Resource:       record.Resource(row.Resource),
		Status:         job.Status(row.Status),
		FilePath:       row.FilePath,
		TotalRecords:   row.TotalRecords,
		SuccessCount:   row.SuccessCount,
		ErrorCount:     row.ErrorCount,
		SkippedCount:   row.SkippedCount,
		ErrorMessage:   derefText(row.ErrorMessage),
		StartedAt:      row.StartedAt,
		CompletedAt:    row.CompletedAt,
		CreatedAt:      row.CreatedAt,
		UpdatedAt:      row.UpdatedAt,
	}
}

func exportJobToModel(j *job.ExportJob) (models.ExportJob, error) {
	row := models.ExportJob{
		ID:             j.ID,
		IdempotencyKey: nullableText(j.IdempotencyKey),
		Resource:       string(j.Resource),
		Status:         string(j.Status),
		Format:         string(j.Format),
		FilePath:       nullableText(j.FilePath),
		DownloadURL:    nullableText(j.DownloadURL),
		TotalRecords:   j.TotalRecords,
		SuccessCount:   j.SuccessCount,
		ErrorCount:     j.ErrorCount,
		ErrorMessage:   nullableText(j.ErrorMessage),
		StartedAt:      j.StartedAt,
		CompletedAt:    j.CompletedAt,
	}

	if len(j.Filters) > 0 {
		data, err := json.Marshal(j.Filters)
		if err != nil {
			return models.ExportJob{}, fmt.Errorf("encode export filters: %w", err)
		}
		row.Filters = nullableText(string(data))
	}
	if len(j.Fields) > 0 {
		data, err := json.Marshal(j.Fields)
		if err != nil {
			return models.ExportJob{}, fmt.Errorf("encode export fields: %w", err)
		}
		row.Fields = nullableText(string(data))
	}
	return row, nil
}

func exportJobToDomain(row *models.ExportJob) (*job.ExportJob, error) {
	j := &job.ExportJob{
		ID:             row.ID,
		IdempotencyKey: derefText(row.IdempotencyKey),
		Resource:       record.Resource(row.Resource),
		Status:         job.Status(row.Status),
		Format:         job.Format(row.Format),
		FilePath:       derefText(row.FilePath),
		DownloadURL:    derefText(row.DownloadURL),
		TotalRecords:   row.TotalRecords,
		SuccessCount:   row.SuccessCount,
		ErrorCount:     row.ErrorCount,
		ErrorMessage:   derefText(row.ErrorMessage),
		StartedAt:      row.StartedAt,
		CompletedAt:    row.CompletedAt,
		CreatedAt:      row.CreatedAt,
		UpdatedAt:      row.UpdatedAt,
	}

	if row.Filters != nil {
		if err := json.Unmarshal([]byte(*row.Filters), &j.Filters); err != nil {
			return nil, fmt.Errorf("decode export filters: %w", err)
		}
	}
	if row.Fields != nil {
		if err := json.Unmarshal([]byte(*row.Fields), &j.Fields); err != nil {
			return nil, fmt.Errorf("decode export fields: %w", err)
		}
	}
	return j, nil
}

func nullableText(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}

func derefText(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
