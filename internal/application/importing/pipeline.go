// Package importing runs the streaming ingestion pipeline: source staging,
// format dispatch, validation, batched upserts and per-record error
// isolation.
package importing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"strings"

	"github.com/ewamal/bulk-data-import-export/internal/domain/job"
	"github.com/ewamal/bulk-data-import-export/internal/domain/record"
)

const (
	// DefaultBatchSize trades memory for store round-trips. A tunable
	// constant, not a derived value.
	DefaultBatchSize = 1000

	progressInterval = 10000

	maxReasonLength = 1000
)

type importJobStore interface {
	IncrementCounters(ctx context.Context, jobID int64, delta job.Counters) error
	CompleteImport(ctx context.Context, jobID, totalRecords int64) error
	FailImport(ctx context.Context, jobID int64, reason string) error
}

type importErrorSink interface {
	RecordImportError(ctx context.Context, e job.ImportError) error
}

type sourceStager interface {
	// Stage makes the source available as a local file. cleanup removes
	// any staging copy and is safe to call unconditionally.
	Stage(ctx context.Context, location string) (path string, cleanup func(), err error)
}

type refResolver interface {
	Resolve(ctx context.Context, resource record.Resource, ref record.Ref, field string) (int64, error)
}

type progressTracker interface {
	Update(jobID int64, processed, succeeded, failed int64)
}

type Importer struct {
	jobs      importJobStore
	errs      importErrorSink
	store     job.BatchUpserter
	resolver  refResolver
	source    sourceStager
	metrics   progressTracker
	batchSize int
}

func NewImporter(jobs importJobStore, errs importErrorSink, store job.BatchUpserter, resolver refResolver, source sourceStager, metrics progressTracker, batchSize int) *Importer {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Importer{
		jobs:      jobs,
		errs:      errs,
		store:     store,
		resolver:  resolver,
		source:    source,
		metrics:   metrics,
		batchSize: batchSize,
	}
}

// ProcessJob runs one import job to completion. Per-record failures are
// recorded and counted but never abort the job; anything escaping the
// per-record boundary marks the job failed and is returned to the caller.
func (i *Importer) ProcessJob(ctx context.Context, j job.ImportJob) error {
	if err := i.run(ctx, j); err != nil {
		if failErr := i.jobs.FailImport(ctx, j.ID, truncateReason(err.Error())); failErr != nil {
			return fmt.Errorf("%v; fail update failed: %w", err, failErr)
		}
		return err
	}
	return nil
}

type batchItem struct {
	rec   record.Record
	index int64
	raw   string
}

func (i *Importer) run(ctx context.Context, j job.ImportJob) error {
	path, cleanup, err := i.source.Stage(ctx, j.FilePath)
	if err != nil {
		return err
	}
	defer cleanup()

	f, err := os.Open(path)
	if err != nil {
		return &job.SourceError{Reason: "open import source", Err: err}
	}
	defer f.Close()

	reader, err := newReader(DetectFormat(j.FilePath), f)
	if err != nil {
		return err
	}

	var (
		total      int64
		succeeded  int64
		failed     int64
		lastLogged int64

		// Validation and parse failures accumulated since the previous
		// flush; applied in the same atomic increment as upsert results.
		pendingFailed  int64
		pendingSkipped int64
	)
	batch := make([]batchItem, 0, i.batchSize)

	flush := func() error {
		if len(batch) == 0 && pendingFailed == 0 {
			return nil
		}

		var okCount, errCount int64
		if len(batch) > 0 {
			tx, err := i.store.Begin(ctx)
			if err != nil {
				return fmt.Errorf("begin batch: %w", err)
			}
			for _, item := range batch {
				if upsertErr := i.upsert(ctx, tx, item.rec); upsertErr != nil {
					errCount++
					if recErr := i.recordError(ctx, j.ID, item.index, item.raw, upsertErr); recErr != nil {
						tx.Rollback(ctx)
						return recErr
					}
					continue
				}
				okCount++
			}
			if err := tx.Commit(ctx); err != nil {
				tx.Rollback(ctx)
				return fmt.Errorf("commit batch: %w", err)
			}
		}

		delta := job.Counters{
			Succeeded: okCount,
			Failed:    errCount + pendingFailed,
			Skipped:   pendingSkipped,
		}
		if err := i.jobs.IncrementCounters(ctx, j.ID, delta); err != nil {
			return fmt.Errorf("update job counters: %w", err)
		}

		succeeded += okCount
		failed += errCount + pendingFailed
		pendingFailed, pendingSkipped = 0, 0
		batch = batch[:0]

		if i.metrics != nil {
			i.metrics.Update(j.ID, total, succeeded, failed)
		}
		if total-lastLogged >= progressInterval {
			lastLogged = total
			i.logProgress(j, total, succeeded, failed)
		}
		return nil
	}

	for {
		raw, rawText, err := reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}

		var perr *job.ParseError
		if errors.As(err, &perr) {
			index := total
			total++
			if recErr := i.recordError(ctx, j.ID, index, rawText, perr); recErr != nil {
				return recErr
			}
			pendingFailed++
			pendingSkipped++
			if len(batch)+int(pendingFailed) >= i.batchSize {
				if err := flush(); err != nil {
					return err
				}
			}
			continue
		}
		if err != nil {
			return err
		}

		index := total
		total++

		rec, verr := record.Validate(j.Resource, raw)
		if verr != nil {
			if rawText == "" {
				rawText = marshalRaw(raw)
			}
			if recErr := i.recordError(ctx, j.ID, index, rawText, verr); recErr != nil {
				return recErr
			}
			pendingFailed++
			pendingSkipped++
			if len(batch)+int(pendingFailed) >= i.batchSize {
				if err := flush(); err != nil {
					return err
				}
			}
			continue
		}

		if rawText == "" {
			rawText = marshalRaw(raw)
		}
		batch = append(batch, batchItem{rec: rec, index: index, raw: rawText})
		if len(batch)+int(pendingFailed) >= i.batchSize {
			if err := flush(); err != nil {
				return err
			}
		}
	}

	if err := flush(); err != nil {
		return err
	}

	if err := i.jobs.CompleteImport(ctx, j.ID, total); err != nil {
		return fmt.Errorf("complete job: %w", err)
	}

	i.logProgress(j, total, succeeded, failed)
	return nil
}

// upsert resolves any cross-record references and writes one record. The
// returned error, if any, is per-record.
func (i *Importer) upsert(ctx context.Context, tx job.RecordBatch, rec record.Record) error {
	switch r := rec.(type) {
	case record.User:
		return tx.UpsertUser(ctx, r)
	case record.Article:
		authorID, err := i.resolver.Resolve(ctx, record.ResourceUsers, r.Author, "author_id")
		if err != nil {
			return err
		}
		return tx.UpsertArticle(ctx, r, authorID)
	case record.Comment:
		articleID, err := i.resolver.Resolve(ctx, record.ResourceArticles, r.Article, "article_id")
		if err != nil {
			return err
		}
		authorID, err := i.resolver.Resolve(ctx, record.ResourceUsers, r.Author, "author_id")
		if err != nil {
			return err
		}
		return tx.UpsertComment(ctx, r, articleID, authorID)
	default:
		return fmt.Errorf("unsupported record type %T", rec)
	}
}

func (i *Importer) recordError(ctx context.Context, jobID, index int64, rawText string, cause error) error {
	e := job.ImportError{
		ImportJobID:  jobID,
		RecordIndex:  index,
		RecordData:   rawText,
		ErrorMessage: truncateReason(cause.Error()),
		ErrorType:    job.ClassifyError(cause),
	}
	if err := i.errs.RecordImportError(ctx, e); err != nil {
		return fmt.Errorf("record import error: %w", err)
	}
	return nil
}

func (i *Importer) logProgress(j job.ImportJob, total, succeeded, failed int64) {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	var errorRate float64
	if total > 0 {
		errorRate = float64(failed) / float64(total)
	}
	slog.Info("import progress",
		"job_id", j.ID,
		"resource", j.Resource,
		"processed", total,
		"succeeded", succeeded,
		"failed", failed,
		"error_rate", fmt.Sprintf("%.4f", errorRate),
		"heap_mb", mem.HeapAlloc/1024/1024,
	)
}

func marshalRaw(raw map[string]any) string {
	data, err := json.Marshal(raw)
	if err != nil {
		return ""
	}
	return string(data)
}

func truncateReason(reason string) string {
	reason = strings.TrimSpace(reason)
	if len(reason) <= maxReasonLength {
		return reason
	}
	return reason[:maxReasonLength]
}
