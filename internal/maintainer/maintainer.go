// Package maintainer is the cooperative background task scheduler (C7 in
// SPEC_FULL.md): a single-consumer, bounded task runner that drains a
// priority-ordered list of opportunistic chores between tool calls.
//
// Grounded on the teacher's goroutine-with-mutex-guarded-flag idiom (seen
// throughout internal/observability and the rate-limited clientEmbedder in
// internal/rag/embedder/embedder.go) adapted to the scheduler shape
// described in spec §4.7. Concurrent-run dedup uses golang.org/x/sync's
// singleflight.Group rather than a hand-rolled bool, since "at most one run
// in flight, late callers share its result" is exactly singleflight's
// contract.
package maintainer

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/biggs3d/manifold-memory/internal/memoryservice"
	"github.com/biggs3d/manifold-memory/internal/observability"
)

// Config carries the maintainer's env-derived knobs (spec §6) plus the
// supplemented toggles from SPEC_FULL.md §12.
type Config struct {
	MaxOperationsPerRun int
	MaxTimePerRun       time.Duration

	EnableEmbeddingBackfill bool
	EnableImportanceDecay   bool
	EnableOrphanCleanup     bool
	EnableDanglingSweep     bool

	EmbeddingBackfillBatchSize int
	OrphanCleanupMaxAge        time.Duration
}

// task is one priority-ordered unit of work. Each call counts as one
// operation against MaxOperationsPerRun regardless of how much internal
// work it performs.
type task struct {
	name string
	run  func(ctx context.Context) error
}

const scheduleKey = "run"

// Maintainer is the single in-process background scheduler. Concurrent
// Schedule calls are deduplicated onto one shared run by singleflight.Group
// itself (spec §5: "isRunning flag owned exclusively by C7") — Schedule no
// longer pre-checks a bool before calling DoChan, since that would leave
// singleflight with exactly one caller per key and nothing to coalesce.
type Maintainer struct {
	svc *memoryservice.Service
	cfg Config

	sf singleflight.Group

	mu      sync.Mutex
	running bool
	waitCh  chan struct{}
}

// New constructs a Maintainer bound to svc.
func New(svc *memoryservice.Service, cfg Config) *Maintainer {
	return &Maintainer{svc: svc, cfg: cfg}
}

// Schedule posts a deferred run. Concurrent calls share the in-flight run
// rather than starting a second one (spec §4.7): DoChan itself coalesces
// every caller using scheduleKey while a call is outstanding, so at most one
// run is ever in flight. running/waitCh exist only so Status and Dispose
// have something to observe; they do not gate whether DoChan runs fn.
func (m *Maintainer) Schedule(ctx context.Context) {
	m.mu.Lock()
	if m.waitCh == nil {
		m.waitCh = make(chan struct{})
	}
	myWait := m.waitCh
	m.running = true
	m.mu.Unlock()

	ch := m.sf.DoChan(scheduleKey, func() (interface{}, error) {
		m.runOnce(ctx)
		return nil, nil
	})

	go func() {
		<-ch
		m.mu.Lock()
		if m.waitCh == myWait {
			m.running = false
			m.waitCh = nil
			close(myWait)
		}
		m.mu.Unlock()
	}()
}

func (m *Maintainer) runOnce(ctx context.Context) {
	log := observability.LoggerWithTrace(ctx)

	start := time.Now()
	tasks := m.buildTaskList()
	ops := 0
	maxOps := m.cfg.MaxOperationsPerRun
	if maxOps <= 0 {
		maxOps = 5
	}
	maxTime := m.cfg.MaxTimePerRun
	if maxTime <= 0 {
		maxTime = 2 * time.Second
	}

	for _, t := range tasks {
		if ops >= maxOps {
			break
		}
		if time.Since(start) >= maxTime {
			break
		}
		if err := t.run(ctx); err != nil {
			log.Warn().Err(err).Str("task", t.name).Msg("maintainer_task_failed")
		}
		ops++
	}
}

// buildTaskList returns the priority-ordered task list of spec §4.7, plus
// the two supplemented tasks from SPEC_FULL.md §12 (resolved Open Questions).
func (m *Maintainer) buildTaskList() []task {
	var tasks []task

	if m.cfg.EnableEmbeddingBackfill {
		tasks = append(tasks, task{name: "embedding_backfill", run: m.embeddingBackfill})
	}
	if m.cfg.EnableImportanceDecay {
		tasks = append(tasks, task{name: "importance_decay", run: m.importanceDecay})
	}
	tasks = append(tasks, task{name: "consolidation_candidate_scan", run: m.consolidationCandidateScan})
	if m.cfg.EnableOrphanCleanup {
		tasks = append(tasks, task{name: "orphan_consolidation_cleanup", run: m.orphanCleanup})
	}
	if m.cfg.EnableDanglingSweep {
		tasks = append(tasks, task{name: "dangling_reference_sweep", run: m.danglingSweep})
	}

	return tasks
}

func (m *Maintainer) embeddingBackfill(ctx context.Context) error {
	const smallBatch = 3
	_, err := m.svc.GenerateEmbeddingsForExisting(ctx, smallBatch)
	return err
}

const (
	decayPageSize       = 20
	decayMaxUpdates     = 5
	decayOldThreshold   = 30 * 24 * time.Hour
	decayModerateWindow = 7 * 24 * time.Hour
	decayMinMagnitude   = 0.1
)

func (m *Maintainer) importanceDecay(ctx context.Context) error {
	records, err := m.svc.ListMemoriesInternalByLastAccessed(ctx, decayPageSize, 0)
	if err != nil {
		return err
	}

	updates := 0
	now := time.Now()
	for _, r := range records {
		if updates >= decayMaxUpdates {
			break
		}
		age := now.Sub(r.LastAccessed)
		delta := 0.0
		switch {
		case age > decayOldThreshold:
			delta -= 0.5
		case age > decayModerateWindow:
			delta -= 0.2
		}
		if r.AccessCount > 5 {
			delta += 0.3
		}
		if delta == 0 {
			continue
		}
		newImportance := float64(r.Importance) + delta
		if newImportance < 1 {
			newImportance = 1
		}
		if newImportance > 10 {
			newImportance = 10
		}
		if abs(newImportance-float64(r.Importance)) <= decayMinMagnitude {
			continue
		}
		rounded := int(newImportance + 0.5)
		if _, _, err := m.svc.UpdateMemory(ctx, r.ID, nil, &rounded, nil); err != nil {
			return err
		}
		updates++
	}
	return nil
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}

const (
	consolidationScanPageSize    = 50
	consolidationScanMinTagCount = 3
	consolidationScanExcludedTag = "consolidated"
)

// consolidationCandidateScan never mutates state; it only logs tags that
// appear on enough records to be worth consolidating (spec §4.7 task 3).
func (m *Maintainer) consolidationCandidateScan(ctx context.Context) error {
	records, err := m.svc.ListMemoriesInternal(ctx, consolidationScanPageSize, 0)
	if err != nil {
		return err
	}

	tagCounts := make(map[string]int)
	for _, r := range records {
		for _, t := range r.Tags {
			if t == consolidationScanExcludedTag {
				continue
			}
			tagCounts[t]++
		}
	}

	log := observability.LoggerWithTrace(ctx)
	for tag, count := range tagCounts {
		if count >= consolidationScanMinTagCount {
			log.Info().Str("tag", tag).Int("count", count).Msg("consolidation_candidate_tag")
		}
	}
	return nil
}

func (m *Maintainer) orphanCleanup(ctx context.Context) error {
	maxAge := m.cfg.OrphanCleanupMaxAge
	if maxAge <= 0 {
		maxAge = time.Hour
	}
	_, err := m.svc.CleanupOrphanedConsolidations(ctx, maxAge)
	return err
}

const danglingSweepMaxRecords = 50

// danglingSweep implements the recommended (spec §9, Open Question 2)
// bounded opportunistic pass stripping ids that no longer resolve from
// consolidatedFrom/consolidatedInto/relatedMemories.
func (m *Maintainer) danglingSweep(ctx context.Context) error {
	records, err := m.svc.ListMemoriesInternal(ctx, danglingSweepMaxRecords, 0)
	if err != nil {
		return err
	}
	return m.svc.SweepDanglingReferences(ctx, records)
}

// Status is a snapshot of the maintainer's current state, used by the
// get_background_status tool (spec §4.8).
type Status struct {
	IsRunning               bool
	MaxOperationsPerRun     int
	MaxTimePerRun           time.Duration
	EnableEmbeddingBackfill bool
	EnableImportanceDecay   bool
	EnableOrphanCleanup     bool
	EnableDanglingSweep     bool
}

// Status returns a snapshot of the maintainer's current state.
func (m *Maintainer) Status() Status {
	m.mu.Lock()
	running := m.running
	m.mu.Unlock()
	return Status{
		IsRunning:               running,
		MaxOperationsPerRun:     m.cfg.MaxOperationsPerRun,
		MaxTimePerRun:           m.cfg.MaxTimePerRun,
		EnableEmbeddingBackfill: m.cfg.EnableEmbeddingBackfill,
		EnableImportanceDecay:   m.cfg.EnableImportanceDecay,
		EnableOrphanCleanup:     m.cfg.EnableOrphanCleanup,
		EnableDanglingSweep:     m.cfg.EnableDanglingSweep,
	}
}

// Dispose implements spec §4.7's dispose(timeoutMs): waits up to timeout for
// an active run to finish, then force-clears the running flag.
func (m *Maintainer) Dispose(timeout time.Duration) {
	m.mu.Lock()
	running := m.running
	waitCh := m.waitCh
	m.mu.Unlock()

	if !running || waitCh == nil {
		return
	}

	select {
	case <-waitCh:
	case <-time.After(timeout):
	}

	m.mu.Lock()
	m.running = false
	m.mu.Unlock()
}
