package orchestrator

import (
	"sync"
	"time"
)

// Tracker keeps ephemeral in-memory per-job counters for throughput and
// error-rate reporting. Entries live only while a job is in flight and are
// cleared on settle so the map never grows unbounded.
type Tracker struct {
	mu   sync.Mutex
	jobs map[int64]*jobMetrics
}

type jobMetrics struct {
	processed int64
	succeeded int64
	failed    int64
	startedAt time.Time
}

type Snapshot struct {
	Processed  int64
	Succeeded  int64
	Failed     int64
	ErrorRate  float64
	PerSecond  float64
	InFlightAt time.Time
}

func NewTracker() *Tracker {
	return &Tracker{jobs: make(map[int64]*jobMetrics)}
}

// Update sets the cumulative counters observed after a flush.
func (t *Tracker) Update(jobID int64, processed, succeeded, failed int64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	m, ok := t.jobs[jobID]
	if !ok {
		m = &jobMetrics{startedAt: time.Now()}
		t.jobs[jobID] = m
	}
	m.processed = processed
	m.succeeded = succeeded
	m.failed = failed
}

func (t *Tracker) Snapshot(jobID int64) (Snapshot, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	m, ok := t.jobs[jobID]
	if !ok {
		return Snapshot{}, false
	}

	s := Snapshot{
		Processed:  m.processed,
		Succeeded:  m.succeeded,
		Failed:     m.failed,
		InFlightAt: m.startedAt,
	}
	if m.processed > 0 {
		s.ErrorRate = float64(m.failed) / float64(m.processed)
	}
	if elapsed := time.Since(m.startedAt).Seconds(); elapsed > 0 {
		s.PerSecond = float64(m.processed) / elapsed
	}
	return s, true
}

func (t *Tracker) Clear(jobID int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.jobs, jobID)
}
