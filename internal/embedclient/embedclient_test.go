package embedclient

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClient_FallbackWithoutAPIKey(t *testing.T) {
	c, err := New(context.Background(), "", "text-embedding-004")
	require.NoError(t, err)

	vec, err := c.Embed(context.Background(), "hello world", TaskDocument)
	require.NoError(t, err)
	require.Len(t, vec, defaultDimension)
}

func TestDeterministicEmbedding_Deterministic(t *testing.T) {
	a := deterministicEmbedding("the quick brown fox", 32)
	b := deterministicEmbedding("the quick brown fox", 32)
	require.Equal(t, a, b)

	c := deterministicEmbedding("a totally different sentence", 32)
	require.NotEqual(t, a, c)
}

func TestDeterministicEmbedding_Normalized(t *testing.T) {
	v := deterministicEmbedding("normalize me please", 16)
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	require.InDelta(t, 1.0, math.Sqrt(sum), 1e-6)
}

func TestDeterministicEmbedding_EmptyString(t *testing.T) {
	v := deterministicEmbedding("", 8)
	for _, x := range v {
		require.Equal(t, float32(0), x)
	}
}
