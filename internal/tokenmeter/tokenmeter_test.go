package tokenmeter

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCountText(t *testing.T) {
	require.Equal(t, 0, CountText(""))
	require.Equal(t, 3, CountText("1234567890")) // ceil(10/3.5) = 3
}

func TestCountObject(t *testing.T) {
	require.Greater(t, CountObject(map[string]any{"a": 1, "b": "hello world"}), 0)
}

func TestSnippet_NoTruncationNeeded(t *testing.T) {
	s := "short text"
	require.Equal(t, s, Snippet(s, 200))
}

func TestSnippet_SentenceBoundary(t *testing.T) {
	s := "This is sentence one. This is sentence two. This keeps going past the boundary with more words appended here."
	out := Snippet(s, 60)
	require.True(t, strings.HasSuffix(out, "…"))
	require.LessOrEqual(t, len([]rune(out)), 61)
}

func TestSnippet_WordBoundaryFallback(t *testing.T) {
	s := strings.Repeat("wordwithoutpunctuation ", 20)
	out := Snippet(s, 50)
	require.True(t, strings.HasSuffix(out, "…"))
}

func TestSnippet_HardCut(t *testing.T) {
	s := strings.Repeat("a", 200)
	out := Snippet(s, 10)
	require.True(t, strings.HasSuffix(out, "…"))
	require.Equal(t, 11, len([]rune(out)))
}
