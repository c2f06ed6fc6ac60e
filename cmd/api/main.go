package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/jackc/pgx/v5/pgxpool"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/ewamal/bulk-data-import-export/internal/application/exporting"
	"github.com/ewamal/bulk-data-import-export/internal/application/identity"
	"github.com/ewamal/bulk-data-import-export/internal/application/importing"
	"github.com/ewamal/bulk-data-import-export/internal/application/orchestrator"
	"github.com/ewamal/bulk-data-import-export/internal/bootstrap"
	"github.com/ewamal/bulk-data-import-export/internal/config"
	"github.com/ewamal/bulk-data-import-export/internal/infrastructure/db/models"
	"github.com/ewamal/bulk-data-import-export/internal/infrastructure/repository"
	"github.com/ewamal/bulk-data-import-export/internal/infrastructure/source"
	"github.com/ewamal/bulk-data-import-export/internal/infrastructure/storage"
	"github.com/ewamal/bulk-data-import-export/internal/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}
	logger := logging.Setup(cfg.LogLevel, cfg.LogFormat)

	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{})
	if err != nil {
		logger.Error("connect database", "error", err)
		os.Exit(1)
	}
	if err := db.AutoMigrate(
		&models.User{},
		&models.Article{},
		&models.Comment{},
		&models.ImportJob{},
		&models.ExportJob{},
		&models.ImportError{},
	); err != nil {
		logger.Error("migrate schema", "error", err)
		os.Exit(1)
	}

	pool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
	if err != nil {
		logger.Error("create pgx pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	var sess *session.Session
	if cfg.AWSRegion != "" {
		sess, err = session.NewSession(&aws.Config{Region: aws.String(cfg.AWSRegion)})
		if err != nil {
			logger.Error("create aws session", "error", err)
			os.Exit(1)
		}
	}

	jobRepo := repository.NewJobRepository(db)
	recordRepo := repository.NewRecordRepository(db)
	batchWriter := repository.NewBatchWriter(pool)
	resolver := identity.NewResolver(recordRepo)
	stager := source.NewStager(cfg.ImportBaseDir, cfg.StagingDir, &http.Client{Timeout: cfg.HTTPTimeout}, sess)
	exportStore := storage.NewExportStore(cfg.ExportDir, cfg.DownloadBaseURL)

	metrics := orchestrator.NewTracker()
	importer := importing.NewImporter(jobRepo, jobRepo, batchWriter, resolver, stager, metrics, cfg.BatchSize)
	exporter := exporting.NewExporter(jobRepo, recordRepo, resolver, exportStore, metrics, cfg.PageSize)

	orch := orchestrator.New(jobRepo, importer, exporter, metrics, orchestrator.Config{
		MaxConcurrent: cfg.MaxConcurrentJobs,
		PollInterval:  cfg.PollInterval,
	})
	workerCtx, stopWorkers := context.WithCancel(context.Background())
	defer stopWorkers()
	orch.Start(workerCtx)

	server := bootstrap.NewHTTPServer(db, exporter, exportStore.Dir())

	go func() {
		if err := server.Start(":" + cfg.Port); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	stopWorkers()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
		os.Exit(1)
	}
}
