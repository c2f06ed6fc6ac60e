package orchestrator

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/ewamal/bulk-data-import-export/internal/domain/job"
)

type fakeQueue struct {
	mu      sync.Mutex
	imports []job.ImportJob
	exports []job.ExportJob

	unclaimable  map[int64]bool
	lastExcluded []int64
}

func (f *fakeQueue) PendingImports(ctx context.Context, limit int, exclude []int64) ([]job.ImportJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastExcluded = append([]int64(nil), exclude...)

	skip := make(map[int64]bool, len(exclude))
	for _, id := range exclude {
		skip[id] = true
	}
	var out []job.ImportJob
	for _, j := range f.imports {
		if skip[j.ID] {
			continue
		}
		out = append(out, j)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *fakeQueue) PendingExports(ctx context.Context, limit int, exclude []int64) ([]job.ExportJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	skip := make(map[int64]bool, len(exclude))
	for _, id := range exclude {
		skip[id] = true
	}
	var out []job.ExportJob
	for _, j := range f.exports {
		if skip[j.ID] {
			continue
		}
		out = append(out, j)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *fakeQueue) MarkImportProcessing(ctx context.Context, id int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.unclaimable[id] {
		return false, nil
	}
	kept := f.imports[:0]
	for _, j := range f.imports {
		if j.ID != id {
			kept = append(kept, j)
		}
	}
	f.imports = kept
	return true, nil
}

func (f *fakeQueue) MarkExportProcessing(ctx context.Context, id int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.unclaimable[id] {
		return false, nil
	}
	kept := f.exports[:0]
	for _, j := range f.exports {
		if j.ID != id {
			kept = append(kept, j)
		}
	}
	f.exports = kept
	return true, nil
}

// blockingRunner parks every job until released, so tests can observe the
// in-flight set.
type blockingRunner struct {
	mu      sync.Mutex
	started []int64
	release chan struct{}
}

func newBlockingRunner() *blockingRunner {
	return &blockingRunner{release: make(chan struct{})}
}

func (r *blockingRunner) ProcessJob(ctx context.Context, j job.ImportJob) error {
	r.mu.Lock()
	r.started = append(r.started, j.ID)
	r.mu.Unlock()
	<-r.release
	return nil
}

func (r *blockingRunner) startedIDs() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := append([]int64(nil), r.started...)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

type exportRunnerFunc func(ctx context.Context, j job.ExportJob) error

func (f exportRunnerFunc) ProcessJob(ctx context.Context, j job.ExportJob) error { return f(ctx, j) }

func noopExports() exportRunner {
	return exportRunnerFunc(func(ctx context.Context, j job.ExportJob) error { return nil })
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		if cond() {
			return
		}
		select {
		case <-deadline:
			t.Fatal("condition not reached in time")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestPollRespectsConcurrencyCap(t *testing.T) {
	t.Parallel()

	queue := &fakeQueue{}
	for i := int64(1); i <= 5; i++ {
		queue.imports = append(queue.imports, job.ImportJob{ID: i, Resource: "users"})
	}
	runner := newBlockingRunner()
	o := New(queue, runner, noopExports(), NewTracker(), Config{MaxConcurrent: 3, PollInterval: time.Hour})

	o.poll(context.Background())
	waitFor(t, func() bool { return len(runner.startedIDs()) == 3 })

	// At capacity: another poll must not start anything.
	o.poll(context.Background())
	time.Sleep(20 * time.Millisecond)
	if got := runner.startedIDs(); len(got) != 3 {
		t.Fatalf("expected 3 in-flight jobs, got %v", got)
	}

	close(runner.release)
	o.Wait()

	o.poll(context.Background())
	waitFor(t, func() bool { return len(runner.startedIDs()) == 5 })
	o.Wait()
}

func TestPollExcludesActiveJobs(t *testing.T) {
	t.Parallel()

	queue := &fakeQueue{imports: []job.ImportJob{{ID: 42, Resource: "users"}}}
	runner := newBlockingRunner()
	o := New(queue, runner, noopExports(), NewTracker(), Config{MaxConcurrent: 3, PollInterval: time.Hour})

	o.poll(context.Background())
	waitFor(t, func() bool { return len(runner.startedIDs()) == 1 })

	o.poll(context.Background())

	queue.mu.Lock()
	excluded := append([]int64(nil), queue.lastExcluded...)
	queue.mu.Unlock()
	if len(excluded) != 1 || excluded[0] != 42 {
		t.Fatalf("expected active job 42 excluded from poll, got %v", excluded)
	}

	close(runner.release)
	o.Wait()
}

func TestDispatchReleasesSlotWhenClaimLost(t *testing.T) {
	t.Parallel()

	queue := &fakeQueue{
		imports:     []job.ImportJob{{ID: 1, Resource: "users"}},
		unclaimable: map[int64]bool{1: true},
	}
	runner := newBlockingRunner()
	close(runner.release)
	o := New(queue, runner, noopExports(), NewTracker(), Config{MaxConcurrent: 1, PollInterval: time.Hour})

	o.poll(context.Background())
	o.Wait()

	if len(runner.startedIDs()) != 0 {
		t.Fatal("lost claim must not run the pipeline")
	}
	if o.activeCount() != 0 {
		t.Fatal("lost claim must release the active slot")
	}

	// The freed slot is usable by the next poll.
	queue.mu.Lock()
	queue.unclaimable = nil
	queue.mu.Unlock()
	o.poll(context.Background())
	o.Wait()
	if len(runner.startedIDs()) != 1 {
		t.Fatalf("expected job to run after claim freed, got %v", runner.startedIDs())
	}
}

func TestPollDispatchesExportsWithRemainingCapacity(t *testing.T) {
	t.Parallel()

	queue := &fakeQueue{
		imports: []job.ImportJob{{ID: 1, Resource: "users"}},
		exports: []job.ExportJob{{ID: 2, Resource: "articles"}, {ID: 3, Resource: "users"}},
	}
	runner := newBlockingRunner()
	close(runner.release)

	var exported []int64
	var mu sync.Mutex
	exportR := exportRunnerFunc(func(ctx context.Context, j job.ExportJob) error {
		mu.Lock()
		exported = append(exported, j.ID)
		mu.Unlock()
		return nil
	})

	o := New(queue, runner, exportR, NewTracker(), Config{MaxConcurrent: 2, PollInterval: time.Hour})
	o.poll(context.Background())
	o.Wait()

	if len(runner.startedIDs()) != 1 {
		t.Fatalf("expected the import to run, got %v", runner.startedIDs())
	}
	mu.Lock()
	defer mu.Unlock()
	if len(exported) != 1 {
		t.Fatalf("expected one export in remaining capacity, got %v", exported)
	}
}
