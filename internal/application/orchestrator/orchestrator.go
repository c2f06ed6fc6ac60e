// Package orchestrator drives the job worker loop: it polls for pending
// import and export jobs, enforces a process-wide concurrency cap via a
// bounded semaphore, and dispatches pipelines as independent goroutines.
package orchestrator

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/ewamal/bulk-data-import-export/internal/domain/job"
)

const (
	// DefaultMaxConcurrent bounds simultaneous in-flight jobs process-wide,
	// not batches within a job.
	DefaultMaxConcurrent = 3

	DefaultPollInterval = 5 * time.Second

	// A heartbeat line every 12 poll cycles is roughly one per minute at
	// the default interval.
	heartbeatEvery = 12
)

type jobQueue interface {
	PendingImports(ctx context.Context, limit int, exclude []int64) ([]job.ImportJob, error)
	PendingExports(ctx context.Context, limit int, exclude []int64) ([]job.ExportJob, error)
	// MarkImportProcessing is the atomic pending -> processing claim; false
	// means another worker won the job.
	MarkImportProcessing(ctx context.Context, id int64) (bool, error)
	MarkExportProcessing(ctx context.Context, id int64) (bool, error)
}

type importRunner interface {
	ProcessJob(ctx context.Context, j job.ImportJob) error
}

type exportRunner interface {
	ProcessJob(ctx context.Context, j job.ExportJob) error
}

type Config struct {
	MaxConcurrent int
	PollInterval  time.Duration
}

type Orchestrator struct {
	queue    jobQueue
	imports  importRunner
	exports  exportRunner
	metrics  *Tracker
	cfg      Config
	sem      chan struct{}
	wg       sync.WaitGroup
	once     sync.Once

	mu     sync.Mutex
	active map[int64]struct{}
}

func New(queue jobQueue, imports importRunner, exports exportRunner, metrics *Tracker, cfg Config) *Orchestrator {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = DefaultMaxConcurrent
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	return &Orchestrator{
		queue:   queue,
		imports: imports,
		exports: exports,
		metrics: metrics,
		cfg:     cfg,
		sem:     make(chan struct{}, cfg.MaxConcurrent),
		active:  make(map[int64]struct{}),
	}
}

// Start launches the poll loop. Cancelling ctx stops polling; jobs already
// in flight are not cancelled or awaited.
func (o *Orchestrator) Start(ctx context.Context) {
	o.once.Do(func() {
		go o.loop(ctx)
	})
}

func (o *Orchestrator) loop(ctx context.Context) {
	ticker := time.NewTicker(o.cfg.PollInterval)
	defer ticker.Stop()

	cycles := 0
	for {
		o.poll(ctx)

		cycles++
		if cycles%heartbeatEvery == 0 {
			slog.Info("worker heartbeat", "active", o.activeCount(), "max", o.cfg.MaxConcurrent)
		}

		select {
		case <-ctx.Done():
			slog.Info("worker loop stopping", "in_flight", o.activeCount())
			return
		case <-ticker.C:
		}
	}
}

func (o *Orchestrator) poll(ctx context.Context) {
	capacity := o.cfg.MaxConcurrent - o.activeCount()
	if capacity <= 0 {
		return
	}

	exclude := o.activeIDs()

	imports, err := o.queue.PendingImports(ctx, capacity, exclude)
	if err != nil {
		slog.Error("poll pending imports", "error", err)
		return
	}
	for _, j := range imports {
		if o.dispatchImport(ctx, j) {
			capacity--
		}
	}

	if capacity <= 0 {
		return
	}

	exports, err := o.queue.PendingExports(ctx, capacity, exclude)
	if err != nil {
		slog.Error("poll pending exports", "error", err)
		return
	}
	for _, j := range exports {
		o.dispatchExport(ctx, j)
	}
}

func (o *Orchestrator) dispatchImport(ctx context.Context, j job.ImportJob) bool {
	return o.dispatch(ctx, j.ID, func(runCtx context.Context) (bool, error) {
		claimed, err := o.queue.MarkImportProcessing(runCtx, j.ID)
		if err != nil || !claimed {
			return claimed, err
		}
		slog.Info("import job started", "job_id", j.ID, "resource", j.Resource, "source", j.FilePath)
		if err := o.imports.ProcessJob(runCtx, j); err != nil {
			slog.Error("import job failed", "job_id", j.ID, "error", err)
		}
		return true, nil
	})
}

func (o *Orchestrator) dispatchExport(ctx context.Context, j job.ExportJob) bool {
	return o.dispatch(ctx, j.ID, func(runCtx context.Context) (bool, error) {
		claimed, err := o.queue.MarkExportProcessing(runCtx, j.ID)
		if err != nil || !claimed {
			return claimed, err
		}
		slog.Info("export job started", "job_id", j.ID, "resource", j.Resource)
		if err := o.exports.ProcessJob(runCtx, j); err != nil {
			slog.Error("export job failed", "job_id", j.ID, "error", err)
		}
		return true, nil
	})
}

// dispatch acquires a permit, claims the job, and runs it on its own
// goroutine. The permit, the active-set entry and the job's metrics entry
// are all released on settle regardless of outcome, so a failed job never
// occupies a concurrency slot.
func (o *Orchestrator) dispatch(ctx context.Context, id int64, run func(context.Context) (bool, error)) bool {
	select {
	case o.sem <- struct{}{}:
	default:
		return false
	}

	if !o.markActive(id) {
		<-o.sem
		return false
	}

	o.wg.Add(1)
	go func() {
		defer func() {
			o.settle(id)
			o.wg.Done()
		}()

		claimed, err := run(ctx)
		if err != nil {
			slog.Error("claim job", "job_id", id, "error", err)
		} else if !claimed {
			slog.Debug("job claimed elsewhere", "job_id", id)
		}
	}()
	return true
}

// Wait blocks until all dispatched jobs have settled. Test hook; shutdown
// itself is best-effort and does not await in-flight jobs.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

func (o *Orchestrator) markActive(id int64) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, ok := o.active[id]; ok {
		return false
	}
	o.active[id] = struct{}{}
	return true
}

func (o *Orchestrator) settle(id int64) {
	o.mu.Lock()
	delete(o.active, id)
	o.mu.Unlock()

	<-o.sem
	if o.metrics != nil {
		o.metrics.Clear(id)
	}
}

func (o *Orchestrator) activeCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.active)
}

func (o *Orchestrator) activeIDs() []int64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	ids := make([]int64, 0, len(o.active))
	for id := range o.active {
		ids = append(ids, id)
	}
	return ids
}
