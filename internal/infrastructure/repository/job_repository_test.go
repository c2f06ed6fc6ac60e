package repository_test

import (
	"context"
	"errors"
	"testing"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/ewamal/bulk-data-import-export/internal/domain/job"
	"github.com/ewamal/bulk-data-import-export/internal/domain/record"
	"github.com/ewamal/bulk-data-import-export/internal/infrastructure/db/models"
	"github.com/ewamal/bulk-data-import-export/internal/infrastructure/repository"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	// An in-memory sqlite database lives per connection.
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("unwrap sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(
		&models.User{},
		&models.Article{},
		&models.Comment{},
		&models.ImportJob{},
		&models.ExportJob{},
		&models.ImportError{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func TestCreateImportOrGetIsIdempotent(t *testing.T) {
	t.Parallel()

	repo := repository.NewJobRepository(newTestDB(t))
	ctx := context.Background()

	first := &job.ImportJob{
		IdempotencyKey: "req-1",
		Resource:       record.ResourceUsers,
		Status:         job.StatusPending,
		FilePath:       "users.ndjson",
	}
	created, err := repo.CreateImportOrGet(ctx, first)
	if err != nil {
		t.Fatalf("first create failed: %v", err)
	}
	if !created {
		t.Fatal("expected first call to create")
	}

	second := &job.ImportJob{
		IdempotencyKey: "req-1",
		Resource:       record.ResourceUsers,
		Status:         job.StatusPending,
		FilePath:       "users.ndjson",
	}
	created, err = repo.CreateImportOrGet(ctx, second)
	if err != nil {
		t.Fatalf("second create failed: %v", err)
	}
	if created {
		t.Fatal("expected second call to load the existing job")
	}
	if second.ID != first.ID {
		t.Fatalf("expected same job id, got %d and %d", first.ID, second.ID)
	}

	pending, err := repo.PendingImports(ctx, 10, nil)
	if err != nil {
		t.Fatalf("pending failed: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("expected a single job row, got %d", len(pending))
	}
}

func TestCreateImportWithoutKeyAlwaysCreates(t *testing.T) {
	t.Parallel()

	repo := repository.NewJobRepository(newTestDB(t))
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		j := &job.ImportJob{Resource: record.ResourceUsers, Status: job.StatusPending, FilePath: "users.ndjson"}
		created, err := repo.CreateImportOrGet(ctx, j)
		if err != nil {
			t.Fatalf("create failed: %v", err)
		}
		if !created {
			t.Fatal("keyless create must always insert")
		}
	}

	pending, err := repo.PendingImports(ctx, 10, nil)
	if err != nil {
		t.Fatalf("pending failed: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("expected two jobs, got %d", len(pending))
	}
}

func TestMarkImportProcessingClaimsOnce(t *testing.T) {
	t.Parallel()

	repo := repository.NewJobRepository(newTestDB(t))
	ctx := context.Background()

	j := &job.ImportJob{Resource: record.ResourceUsers, Status: job.StatusPending, FilePath: "u.ndjson"}
	if _, err := repo.CreateImportOrGet(ctx, j); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	claimed, err := repo.MarkImportProcessing(ctx, j.ID)
	if err != nil {
		t.Fatalf("claim failed: %v", err)
	}
	if !claimed {
		t.Fatal("expected first claim to win")
	}

	claimed, err = repo.MarkImportProcessing(ctx, j.ID)
	if err != nil {
		t.Fatalf("second claim failed: %v", err)
	}
	if claimed {
		t.Fatal("expected second claim to lose")
	}

	got, err := repo.GetImportJob(ctx, j.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.Status != job.StatusProcessing {
		t.Fatalf("expected processing status, got %q", got.Status)
	}
	if got.StartedAt == nil {
		t.Fatal("expected started_at to be set")
	}

	pending, err := repo.PendingImports(ctx, 10, nil)
	if err != nil {
		t.Fatalf("pending failed: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("claimed job must not appear pending, got %d", len(pending))
	}
}

func TestImportJobLifecycleCounters(t *testing.T) {
	t.Parallel()

	repo := repository.NewJobRepository(newTestDB(t))
	ctx := context.Background()

	j := &job.ImportJob{Resource: record.ResourceArticles, Status: job.StatusPending, FilePath: "a.csv"}
	if _, err := repo.CreateImportOrGet(ctx, j); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if _, err := repo.MarkImportProcessing(ctx, j.ID); err != nil {
		t.Fatalf("claim failed: %v", err)
	}

	if err := repo.IncrementCounters(ctx, j.ID, job.Counters{Succeeded: 900, Failed: 100, Skipped: 40}); err != nil {
		t.Fatalf("first increment failed: %v", err)
	}
	if err := repo.IncrementCounters(ctx, j.ID, job.Counters{Succeeded: 100}); err != nil {
		t.Fatalf("second increment failed: %v", err)
	}
	if err := repo.CompleteImport(ctx, j.ID, 1100); err != nil {
		t.Fatalf("complete failed: %v", err)
	}

	got, err := repo.GetImportJob(ctx, j.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.Status != job.StatusCompleted {
		t.Fatalf("expected completed, got %q", got.Status)
	}
	if got.SuccessCount != 1000 || got.ErrorCount != 100 || got.SkippedCount != 40 {
		t.Fatalf("unexpected counters: %+v", got)
	}
	if got.TotalRecords != 1100 {
		t.Fatalf("expected total 1100, got %d", got.TotalRecords)
	}
	if got.CompletedAt == nil {
		t.Fatal("expected completed_at to be set")
	}
}

func TestFailImportRecordsReason(t *testing.T) {
	t.Parallel()

	repo := repository.NewJobRepository(newTestDB(t))
	ctx := context.Background()

	j := &job.ImportJob{Resource: record.ResourceUsers, Status: job.StatusPending, FilePath: "u.ndjson"}
	if _, err := repo.CreateImportOrGet(ctx, j); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if _, err := repo.MarkImportProcessing(ctx, j.ID); err != nil {
		t.Fatalf("claim failed: %v", err)
	}
	if err := repo.FailImport(ctx, j.ID, "source file missing"); err != nil {
		t.Fatalf("fail failed: %v", err)
	}

	got, err := repo.GetImportJob(ctx, j.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.Status != job.StatusFailed || got.ErrorMessage != "source file missing" {
		t.Fatalf("unexpected job state: %+v", got)
	}
}

func TestImportErrorsRecentFirstWithLimit(t *testing.T) {
	t.Parallel()

	repo := repository.NewJobRepository(newTestDB(t))
	ctx := context.Background()

	for i := int64(0); i < 5; i++ {
		err := repo.RecordImportError(ctx, job.ImportError{
			ImportJobID: 1,
			RecordIndex: i,
			RecordData:  "{}",
			ErrorType:   job.ErrorTypeValidation,
		})
		if err != nil {
			t.Fatalf("record error failed: %v", err)
		}
	}

	rows, err := repo.RecentImportErrors(ctx, 1, 3)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}
	if rows[0].RecordIndex != 4 || rows[2].RecordIndex != 2 {
		t.Fatalf("expected most recent first, got %+v", rows)
	}
}

func TestExportJobRoundTripsFiltersAndFields(t *testing.T) {
	t.Parallel()

	repo := repository.NewJobRepository(newTestDB(t))
	ctx := context.Background()

	j := &job.ExportJob{
		Resource: record.ResourceArticles,
		Status:   job.StatusPending,
		Format:   job.FormatNDJSON,
		Filters:  map[string]any{"status": "published"},
		Fields:   []string{"id", "slug"},
	}
	if _, err := repo.CreateExportOrGet(ctx, j); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	got, err := repo.GetExportJob(ctx, j.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.Filters["status"] != "published" {
		t.Fatalf("filters did not round trip: %+v", got.Filters)
	}
	if len(got.Fields) != 2 || got.Fields[0] != "id" {
		t.Fatalf("fields did not round trip: %+v", got.Fields)
	}

	if _, err := repo.MarkExportProcessing(ctx, j.ID); err != nil {
		t.Fatalf("claim failed: %v", err)
	}
	if err := repo.CompleteExport(ctx, j.ID, 2, "/exports/a.ndjson", "http://localhost:8080/downloads/a.ndjson"); err != nil {
		t.Fatalf("complete failed: %v", err)
	}

	got, err = repo.GetExportJob(ctx, j.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.Status != job.StatusCompleted || got.SuccessCount != 2 {
		t.Fatalf("unexpected job state: %+v", got)
	}
	if got.DownloadURL != "http://localhost:8080/downloads/a.ndjson" {
		t.Fatalf("unexpected download url: %q", got.DownloadURL)
	}
}

func TestGetJobNotFound(t *testing.T) {
	t.Parallel()

	repo := repository.NewJobRepository(newTestDB(t))

	if _, err := repo.GetImportJob(context.Background(), 999); !errors.Is(err, job.ErrNotFound) {
		t.Fatalf("expected job.ErrNotFound, got %v", err)
	}
	if _, err := repo.GetExportJob(context.Background(), 999); !errors.Is(err, job.ErrNotFound) {
		t.Fatalf("expected job.ErrNotFound, got %v", err)
	}
}
