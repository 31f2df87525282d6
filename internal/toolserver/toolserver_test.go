package toolserver

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/biggs3d/manifold-memory/internal/composer"
	"github.com/biggs3d/manifold-memory/internal/embedclient"
	"github.com/biggs3d/manifold-memory/internal/maintainer"
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

func newTestServer(t *testing.T) *Server {
	t.Helper()
	dir := t.TempDir()
	coll, err := store.New(context.Background(), "json-file", dir, "", "memories")
	require.NoError(t, err)
	t.Cleanup(func() { _ = coll.Close() })

	svc := memoryservice.New(coll, fakeEmbedder{}, fakeSummarizer{})
	m := maintainer.New(svc, maintainer.Config{MaxOperationsPerRun: 5, MaxTimePerRun: 0})
	return New(svc, m, composer.Config{TokenLimit: 25000, TokenBuffer: 2000, FullMemoryTokenThreshold: 0.7})
}

func TestHandleRemember_RejectsEmptyContent(t *testing.T) {
	s := newTestServer(t)
	res, _, err := s.handleRemember(context.Background(), nil, RememberArgs{Content: ""})
	require.NoError(t, err)
	require.True(t, res.IsError)
}

func TestHandleRemember_Succeeds(t *testing.T) {
	s := newTestServer(t)
	res, _, err := s.handleRemember(context.Background(), nil, RememberArgs{Content: "hello", Importance: 5})
	require.NoError(t, err)
	require.False(t, res.IsError)
}

func TestHandleRemember_RejectsOverlongContent(t *testing.T) {
	s := newTestServer(t)
	content := make([]byte, 2001)
	for i := range content {
		content[i] = 'x'
	}
	res, _, err := s.handleRemember(context.Background(), nil, RememberArgs{Content: string(content)})
	require.NoError(t, err)
	require.True(t, res.IsError)
}

func TestHandleGetMemory_NotFound(t *testing.T) {
	s := newTestServer(t)
	res, _, err := s.handleGetMemory(context.Background(), nil, GetMemoryArgs{ID: "missing"})
	require.NoError(t, err)
	require.True(t, res.IsError)
}

func TestHandleRecall_InvalidSearchType(t *testing.T) {
	s := newTestServer(t)
	res, _, err := s.handleRecall(context.Background(), nil, RecallArgs{Query: "x", SearchType: "bogus"})
	require.NoError(t, err)
	require.True(t, res.IsError)
}

func TestHandleRecall_ReturnsDigest(t *testing.T) {
	s := newTestServer(t)
	_, _, err := s.handleRemember(context.Background(), nil, RememberArgs{Content: "Dogs are loyal companions", Importance: 7, Tags: []string{"animals"}})
	require.NoError(t, err)

	res, _, err := s.handleRecall(context.Background(), nil, RecallArgs{Query: "loyal", SearchType: "text"})
	require.NoError(t, err)
	require.False(t, res.IsError)
}

func TestHandleForget_NotFound(t *testing.T) {
	s := newTestServer(t)
	res, _, err := s.handleForget(context.Background(), nil, ForgetArgs{ID: "missing"})
	require.NoError(t, err)
	require.True(t, res.IsError)
}

func TestHandleConsolidateMemories_RequiresTwoIDs(t *testing.T) {
	s := newTestServer(t)
	res, _, err := s.handleConsolidateMemories(context.Background(), nil, ConsolidateMemoriesArgs{IDs: []string{"only-one"}})
	require.NoError(t, err)
	require.True(t, res.IsError)
}

func TestHandleLinkMemories_RequiresBothIDs(t *testing.T) {
	s := newTestServer(t)
	res, _, err := s.handleLinkMemories(context.Background(), nil, LinkMemoriesArgs{A: "", B: "x"})
	require.NoError(t, err)
	require.True(t, res.IsError)
}

func TestHandleGetBackgroundStatus_ReportsToggleState(t *testing.T) {
	s := newTestServer(t)
	res, _, err := s.handleGetBackgroundStatus(context.Background(), nil, GetBackgroundStatusArgs{})
	require.NoError(t, err)
	require.False(t, res.IsError)
}
