package maintainer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/biggs3d/manifold-memory/internal/embedclient"
	"github.com/biggs3d/manifold-memory/internal/memoryservice"
	"github.com/biggs3d/manifold-memory/internal/store"
)

type fakeEmbedder struct{}

func (fakeEmbedder) Embed(ctx context.Context, text string, taskType embedclient.TaskType) ([]float32, error) {
	return []float32{1, 0}, nil
}

type fakeSummarizer struct{}

func (fakeSummarizer) Summarize(ctx context.Context, prompt string) (string, error) {
	return "summary", nil
}

func newTestMaintainer(t *testing.T) (*Maintainer, *memoryservice.Service) {
	t.Helper()
	dir := t.TempDir()
	coll, err := store.New(context.Background(), "json-file", dir, "", "memories")
	require.NoError(t, err)
	t.Cleanup(func() { _ = coll.Close() })

	svc := memoryservice.New(coll, fakeEmbedder{}, fakeSummarizer{})
	m := New(svc, Config{
		MaxOperationsPerRun:     5,
		MaxTimePerRun:           2 * time.Second,
		EnableEmbeddingBackfill: true,
		EnableImportanceDecay:   true,
		EnableOrphanCleanup:     true,
		EnableDanglingSweep:     true,
	})
	return m, svc
}

func TestSchedule_RunsAndCompletesWithinDispose(t *testing.T) {
	m, svc := newTestMaintainer(t)
	_, err := svc.Remember(context.Background(), "something to maintain", 5, []string{"a"})
	require.NoError(t, err)

	m.Schedule(context.Background())
	m.Dispose(time.Second)
}

func TestSchedule_ConcurrentCallsAreNoOp(t *testing.T) {
	m, _ := newTestMaintainer(t)
	m.Schedule(context.Background())
	m.Schedule(context.Background()) // should be a no-op, not a panic or double-run
	m.Dispose(time.Second)
}

func TestDispose_NoRunInFlightReturnsImmediately(t *testing.T) {
	m, _ := newTestMaintainer(t)
	done := make(chan struct{})
	go func() {
		m.Dispose(time.Second)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(500 * time.Millisecond):
		t.Fatal("Dispose blocked with no run in flight")
	}
}

func TestBuildTaskList_RespectsDisabledToggles(t *testing.T) {
	dir := t.TempDir()
	coll, err := store.New(context.Background(), "json-file", dir, "", "memories")
	require.NoError(t, err)
	defer coll.Close()
	svc := memoryservice.New(coll, fakeEmbedder{}, fakeSummarizer{})
	m := New(svc, Config{MaxOperationsPerRun: 5, MaxTimePerRun: time.Second})

	tasks := m.buildTaskList()
	// consolidation_candidate_scan always runs (never mutates, spec §4.7);
	// the other four are gated by their toggles, all false here.
	require.Len(t, tasks, 1)
	require.Equal(t, "consolidation_candidate_scan", tasks[0].name)
}
