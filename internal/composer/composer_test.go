package composer

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/biggs3d/manifold-memory/internal/memoryservice"
)

func sim(v float64) *float64 { return &v }

func TestCompose_HighImportanceGoesFull(t *testing.T) {
	candidates := []memoryservice.CleanSearchResult{
		{CleanRecord: memoryservice.CleanRecord{ID: "1", Content: "important stuff", Importance: 9}},
	}
	result := Compose(candidates, Config{TokenLimit: 25000, TokenBuffer: 2000, FullMemoryTokenThreshold: 0.7})
	require.Len(t, result.FullMemories, 1)
	require.Empty(t, result.Summaries)
}

func TestCompose_LowImportanceBecomesSummary(t *testing.T) {
	candidates := []memoryservice.CleanSearchResult{
		{CleanRecord: memoryservice.CleanRecord{ID: "1", Content: "minor detail", Importance: 2}},
	}
	result := Compose(candidates, Config{TokenLimit: 25000, TokenBuffer: 2000, FullMemoryTokenThreshold: 0.7})
	require.Empty(t, result.FullMemories)
	require.Len(t, result.Summaries, 1)
}

func TestCompose_HighSimilarityGoesFull(t *testing.T) {
	candidates := []memoryservice.CleanSearchResult{
		{CleanRecord: memoryservice.CleanRecord{ID: "1", Content: "semantically close", Importance: 1}, Similarity: sim(0.9)},
	}
	result := Compose(candidates, Config{TokenLimit: 25000, TokenBuffer: 2000, FullMemoryTokenThreshold: 0.7})
	require.Len(t, result.FullMemories, 1)
}

func TestCompose_SortsBySimilarityWhenPresent(t *testing.T) {
	candidates := []memoryservice.CleanSearchResult{
		{CleanRecord: memoryservice.CleanRecord{ID: "low", Content: "x", Importance: 1}, Similarity: sim(0.2)},
		{CleanRecord: memoryservice.CleanRecord{ID: "high", Content: "y", Importance: 1}, Similarity: sim(0.95)},
	}
	result := Compose(candidates, Config{TokenLimit: 25000, TokenBuffer: 2000, FullMemoryTokenThreshold: 0.7})
	require.Equal(t, "high", result.FullMemories[0].ID)
}

func TestCompose_TruncatesWhenOverBudget(t *testing.T) {
	candidates := make([]memoryservice.CleanSearchResult, 0, 50)
	for i := 0; i < 50; i++ {
		candidates = append(candidates, memoryservice.CleanSearchResult{
			CleanRecord: memoryservice.CleanRecord{
				ID:         string(rune('a' + i%26)),
				Content:    strings.Repeat("word ", 300),
				Importance: 5,
			},
		})
	}
	result := Compose(candidates, Config{TokenLimit: 2500, TokenBuffer: 500, FullMemoryTokenThreshold: 0.7})
	require.True(t, result.Truncated)
	require.Less(t, result.TokenCount, 2500-500)
}

func TestFormatDigest_ContainsExpectedSections(t *testing.T) {
	result := Result{
		TotalFound:   2,
		FullMemories: []memoryservice.CleanSearchResult{{CleanRecord: memoryservice.CleanRecord{ID: "1", Content: "full content", Importance: 9}}},
		Summaries:    []Summary{{ID: "2", Importance: 2, Snippet: "short snippet"}},
	}
	digest := FormatDigest(result)
	require.Contains(t, digest, "Found 2 memories")
	require.Contains(t, digest, "Full Memories (High Relevance)")
	require.Contains(t, digest, "Memory Summaries")
	require.Contains(t, digest, "short snippet")
}

func TestFormatDigest_TruncationFooter(t *testing.T) {
	digest := FormatDigest(Result{TotalFound: 1, Truncated: true})
	require.Contains(t, digest, "truncated")
}
