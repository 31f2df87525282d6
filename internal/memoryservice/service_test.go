package memoryservice

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/biggs3d/manifold-memory/internal/embedclient"
	"github.com/biggs3d/manifold-memory/internal/store"
)

type fakeEmbedder struct {
	vectors map[string][]float32
	fail    bool
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string, taskType embedclient.TaskType) ([]float32, error) {
	if f.fail {
		return nil, errFakeEmbed
	}
	if v, ok := f.vectors[text]; ok {
		return v, nil
	}
	return []float32{1, 0, 0}, nil
}

var errFakeEmbed = &ServiceError{Kind: KindProviderError, Message: "fake embed failure"}

type fakeSummarizer struct {
	text string
	fail bool
}

func (f *fakeSummarizer) Summarize(ctx context.Context, prompt string) (string, error) {
	if f.fail {
		return "", errFakeEmbed
	}
	return f.text, nil
}

func newTestService(t *testing.T) *Service {
	t.Helper()
	dir := t.TempDir()
	coll, err := store.New(context.Background(), "json-file", dir, "", "memories")
	require.NoError(t, err)
	t.Cleanup(func() { _ = coll.Close() })
	return New(coll, &fakeEmbedder{vectors: map[string][]float32{}}, &fakeSummarizer{text: "a summary"})
}

func TestRemember_ClampsImportanceAndInitializesBookkeeping(t *testing.T) {
	svc := newTestService(t)
	r, err := svc.Remember(context.Background(), "hello world", 99, nil)
	require.NoError(t, err)
	require.Equal(t, 10, r.Importance)
	require.Equal(t, 1, r.AccessCount)
	require.NotEmpty(t, r.ID)
}

func TestRemember_RejectsOverlongContent(t *testing.T) {
	svc := newTestService(t)
	content := make([]byte, 2001)
	for i := range content {
		content[i] = 'a'
	}
	_, err := svc.Remember(context.Background(), string(content), 5, nil)
	require.Error(t, err)
	kind, ok := KindOf(err)
	require.True(t, ok)
	require.Equal(t, KindValidation, kind)
}

func TestRemember_AcceptsExactly2000Characters(t *testing.T) {
	svc := newTestService(t)
	content := make([]byte, 2000)
	for i := range content {
		content[i] = 'a'
	}
	_, err := svc.Remember(context.Background(), string(content), 5, nil)
	require.NoError(t, err)
}

func TestRememberThenGetMemory_RoundTrips(t *testing.T) {
	svc := newTestService(t)
	r, err := svc.Remember(context.Background(), "dogs are loyal", 7, []string{"animals"})
	require.NoError(t, err)

	got, ok, err := svc.GetMemory(context.Background(), r.ID)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "dogs are loyal", got.Content)
	require.Equal(t, []string{"animals"}, got.Tags)
	require.Equal(t, 2, got.AccessCount) // bumped by the get
}

func TestGetMemory_NotFound(t *testing.T) {
	svc := newTestService(t)
	_, ok, err := svc.GetMemory(context.Background(), "missing")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestUpdateMemory_OverwritesTagsAndReembeds(t *testing.T) {
	svc := newTestService(t)
	r, err := svc.Remember(context.Background(), "original", 5, []string{"a"})
	require.NoError(t, err)

	newContent := "changed"
	newImportance := 9
	updated, ok, err := svc.UpdateMemory(context.Background(), r.ID, &newContent, &newImportance, []string{"b", "c"})
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "changed", updated.Content)
	require.Equal(t, 9, updated.Importance)
	require.Equal(t, []string{"b", "c"}, updated.Tags)
}

func TestForget_RemovesRecord(t *testing.T) {
	svc := newTestService(t)
	r, err := svc.Remember(context.Background(), "temporary", 1, nil)
	require.NoError(t, err)

	ok, err := svc.Forget(context.Background(), r.ID)
	require.NoError(t, err)
	require.True(t, ok)

	_, found, err := svc.GetMemory(context.Background(), r.ID)
	require.NoError(t, err)
	require.False(t, found)
}

func TestRecall_TextStrategy(t *testing.T) {
	svc := newTestService(t)
	_, err := svc.Remember(context.Background(), "Dogs are loyal companions", 7, []string{"animals"})
	require.NoError(t, err)
	_, err = svc.Remember(context.Background(), "Cats are independent", 6, []string{"animals"})
	require.NoError(t, err)

	results, err := svc.Recall(context.Background(), "faithful", nil, 10, RecallText)
	require.NoError(t, err)
	require.Empty(t, results)

	results, err = svc.Recall(context.Background(), "loyal", nil, 10, RecallText)
	require.NoError(t, err)
	require.Len(t, results, 1)
}

func TestRecall_LimitZero_ReturnsEmpty(t *testing.T) {
	svc := newTestService(t)
	_, err := svc.Remember(context.Background(), "anything", 5, nil)
	require.NoError(t, err)
	results, err := svc.Recall(context.Background(), "anything", nil, 0, RecallText)
	require.NoError(t, err)
	require.Empty(t, results)
}

func TestConsolidateMemories_RequiresAtLeastTwoIDs(t *testing.T) {
	svc := newTestService(t)
	r, err := svc.Remember(context.Background(), "solo", 5, nil)
	require.NoError(t, err)
	_, err = svc.ConsolidateMemories(context.Background(), []string{r.ID}, "")
	require.Error(t, err)
	kind, _ := KindOf(err)
	require.Equal(t, KindValidation, kind)
}

func TestConsolidateMemories_MissingIDFailsWithoutMutation(t *testing.T) {
	svc := newTestService(t)
	r, err := svc.Remember(context.Background(), "exists", 5, nil)
	require.NoError(t, err)
	_, err = svc.ConsolidateMemories(context.Background(), []string{r.ID, "missing"}, "")
	require.Error(t, err)
	kind, _ := KindOf(err)
	require.Equal(t, KindNotFound, kind)

	got, ok, err := svc.GetMemory(context.Background(), r.ID)
	require.NoError(t, err)
	require.True(t, ok)
	require.Empty(t, got.ConsolidatedInto)
}

func TestConsolidateMemories_HappyPath(t *testing.T) {
	svc := newTestService(t)
	a, err := svc.Remember(context.Background(), "JS is dynamic", 7, []string{"js"})
	require.NoError(t, err)
	b, err := svc.Remember(context.Background(), "JS supports functional style", 7, []string{"js"})
	require.NoError(t, err)

	n, err := svc.ConsolidateMemories(context.Background(), []string{a.ID, b.ID}, "")
	require.NoError(t, err)
	require.Equal(t, 8, n.Importance)
	require.Contains(t, n.Tags, "js")
	require.Contains(t, n.Tags, "consolidated")
	require.ElementsMatch(t, []string{a.ID, b.ID}, n.ConsolidatedFrom)
	require.Equal(t, ConsolidationCompleted, n.ConsolidationStatus)

	gotA, ok, err := svc.GetMemory(context.Background(), a.ID)
	require.NoError(t, err)
	require.True(t, ok)
	require.Contains(t, gotA.ConsolidatedInto, n.ID)
}

func TestLinkMemories_Symmetric(t *testing.T) {
	svc := newTestService(t)
	x, err := svc.Remember(context.Background(), "x", 5, nil)
	require.NoError(t, err)
	y, err := svc.Remember(context.Background(), "y", 5, nil)
	require.NoError(t, err)

	require.NoError(t, svc.LinkMemories(context.Background(), x.ID, y.ID))

	gotX, _, err := svc.GetMemory(context.Background(), x.ID)
	require.NoError(t, err)
	gotY, _, err := svc.GetMemory(context.Background(), y.ID)
	require.NoError(t, err)
	require.Contains(t, gotX.RelatedMemories, y.ID)
	require.Contains(t, gotY.RelatedMemories, x.ID)
}

func TestLinkMemories_Idempotent(t *testing.T) {
	svc := newTestService(t)
	x, _ := svc.Remember(context.Background(), "x", 5, nil)
	y, _ := svc.Remember(context.Background(), "y", 5, nil)

	require.NoError(t, svc.LinkMemories(context.Background(), x.ID, y.ID))
	require.NoError(t, svc.LinkMemories(context.Background(), x.ID, y.ID))

	gotX, _, err := svc.GetMemory(context.Background(), x.ID)
	require.NoError(t, err)
	count := 0
	for _, id := range gotX.RelatedMemories {
		if id == y.ID {
			count++
		}
	}
	require.Equal(t, 1, count)
}

func TestUnlinkMemories_OnUnlinkedPairIsNoOp(t *testing.T) {
	svc := newTestService(t)
	x, _ := svc.Remember(context.Background(), "x", 5, nil)
	y, _ := svc.Remember(context.Background(), "y", 5, nil)

	ok, err := svc.UnlinkMemories(context.Background(), x.ID, y.ID)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestLinkThenUnlinkMemories_RemovesBothBackrefs(t *testing.T) {
	svc := newTestService(t)
	x, err := svc.Remember(context.Background(), "x", 5, nil)
	require.NoError(t, err)
	y, err := svc.Remember(context.Background(), "y", 5, nil)
	require.NoError(t, err)

	require.NoError(t, svc.LinkMemories(context.Background(), x.ID, y.ID))

	gotX, _, err := svc.GetMemory(context.Background(), x.ID)
	require.NoError(t, err)
	gotY, _, err := svc.GetMemory(context.Background(), y.ID)
	require.NoError(t, err)
	require.Contains(t, gotX.RelatedMemories, y.ID)
	require.Contains(t, gotY.RelatedMemories, x.ID)

	ok, err := svc.UnlinkMemories(context.Background(), x.ID, y.ID)
	require.NoError(t, err)
	require.True(t, ok)

	gotX, _, err = svc.GetMemory(context.Background(), x.ID)
	require.NoError(t, err)
	gotY, _, err = svc.GetMemory(context.Background(), y.ID)
	require.NoError(t, err)
	require.NotContains(t, gotX.RelatedMemories, y.ID)
	require.NotContains(t, gotY.RelatedMemories, x.ID)
	require.Empty(t, gotX.RelatedMemories)
	require.Empty(t, gotY.RelatedMemories)
}

func TestFindSimilarMemoriesWithScores_NoEmbeddingFails(t *testing.T) {
	dir := t.TempDir()
	coll, err := store.New(context.Background(), "json-file", dir, "", "memories")
	require.NoError(t, err)
	defer coll.Close()
	svc := New(coll, &fakeEmbedder{fail: true}, &fakeSummarizer{text: "s"})

	r, err := svc.Remember(context.Background(), "no embedding here", 5, nil)
	require.NoError(t, err)

	_, err = svc.FindSimilarMemoriesWithScores(context.Background(), r.ID, 0.5, 5)
	require.ErrorIs(t, err, ErrNoEmbedding)
}

func TestGenerateEmbeddingsForExisting_IdempotentOnSecondCall(t *testing.T) {
	svc := newTestService(t)
	_, err := svc.Remember(context.Background(), "a memory", 5, nil)
	require.NoError(t, err)

	_, err = svc.GenerateEmbeddingsForExisting(context.Background(), 10)
	require.NoError(t, err)

	result, err := svc.GenerateEmbeddingsForExisting(context.Background(), 10)
	require.NoError(t, err)
	require.Equal(t, 0, result.Updated)
}

func TestCleanupOrphanedConsolidations_MarksStalePendingAsFailed(t *testing.T) {
	svc := newTestService(t)
	a, err := svc.Remember(context.Background(), "source a", 5, nil)
	require.NoError(t, err)

	n, err := svc.Remember(context.Background(), "pending consolidation", 5, []string{"consolidated"})
	require.NoError(t, err)

	raw, ok, err := svc.readRecord(context.Background(), n.ID)
	require.NoError(t, err)
	require.True(t, ok)
	raw.ConsolidationStatus = ConsolidationPending
	raw.ConsolidatedFrom = []string{a.ID}
	raw.CreatedAt = raw.CreatedAt.Add(-2 * time.Hour)
	require.NoError(t, svc.writeRecord(context.Background(), raw))

	rawA, ok, err := svc.readRecord(context.Background(), a.ID)
	require.NoError(t, err)
	require.True(t, ok)
	rawA.ConsolidatedInto = []string{n.ID}
	require.NoError(t, svc.writeRecord(context.Background(), rawA))

	cleaned, err := svc.CleanupOrphanedConsolidations(context.Background(), 0)
	require.NoError(t, err)
	require.Equal(t, 1, cleaned)

	gotN, ok, err := svc.readRecord(context.Background(), n.ID)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, ConsolidationFailed, gotN.ConsolidationStatus)

	gotA, ok, err := svc.readRecord(context.Background(), a.ID)
	require.NoError(t, err)
	require.True(t, ok)
	require.NotContains(t, gotA.ConsolidatedInto, n.ID)
}

func TestService_DataDirLayout(t *testing.T) {
	dir := t.TempDir()
	coll, err := store.New(context.Background(), "json-file", dir, "", "memories")
	require.NoError(t, err)
	defer coll.Close()
	svc := New(coll, &fakeEmbedder{vectors: map[string][]float32{}}, &fakeSummarizer{text: "s"})
	_, err = svc.Remember(context.Background(), "layout check", 5, nil)
	require.NoError(t, err)
	entries, err := os.ReadDir(filepath.Join(dir, "memories"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
}
