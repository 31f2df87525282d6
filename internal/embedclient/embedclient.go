// Package embedclient wraps the external embedding provider (C3 in
// SPEC_FULL.md). On provider failure it logs and returns a deterministic
// fallback vector so callers can proceed (spec §4.3).
//
// Grounded on internal/rag/embedder/embedder.go's clientEmbedder (rate
// limiting) and deterministicEmbedder (FNV-1a hash-gram fallback), and
// internal/llm/google/client.go's genai.NewClient usage.
package embedclient

import (
	"context"
	"hash/fnv"
	"math"
	"sync"
	"time"

	"google.golang.org/genai"

	"github.com/biggs3d/manifold-memory/internal/observability"
)

// TaskType biases the provider toward retrieval-query vs retrieval-document
// encoding (spec §4.3). Forwarded regardless of whether the provider uses it.
type TaskType string

const (
	TaskQuery    TaskType = "query"
	TaskDocument TaskType = "document"
)

// defaultDimension is used for the deterministic fallback vector when the
// real provider has never successfully returned a dimension.
const defaultDimension = 768

// minCallGap is the minimum delay enforced between provider calls, mirroring
// clientEmbedder's rate limiting (minDelay/lastCall/mutex).
const minCallGap = 50 * time.Millisecond

// Client embeds text via Gemini, falling back to a deterministic vector on
// any provider failure.
type Client struct {
	genaiClient *genai.Client
	model       string
	dim         int

	mu       sync.Mutex
	lastCall time.Time
}

// New constructs a Client. apiKey may be empty in which case every call
// immediately falls back to the deterministic embedder (useful for local
// development and tests without network access).
func New(ctx context.Context, apiKey, model string) (*Client, error) {
	c := &Client{model: model, dim: defaultDimension}
	if apiKey == "" {
		return c, nil
	}
	gc, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, err
	}
	c.genaiClient = gc
	return c, nil
}

// Embed returns the embedding vector for text, biased by taskType. On
// provider failure it logs and returns a deterministic fallback vector.
func (c *Client) Embed(ctx context.Context, text string, taskType TaskType) ([]float32, error) {
	log := observability.LoggerWithTrace(ctx)

	if c.genaiClient == nil {
		return deterministicEmbedding(text, c.dim), nil
	}

	c.rateLimit()

	genaiTaskType := "RETRIEVAL_DOCUMENT"
	if taskType == TaskQuery {
		genaiTaskType = "RETRIEVAL_QUERY"
	}

	resp, err := c.genaiClient.Models.EmbedContent(ctx, c.model,
		[]*genai.Content{genai.NewContentFromText(text, genai.RoleUser)},
		&genai.EmbedContentConfig{TaskType: genaiTaskType})
	if err != nil {
		log.Warn().Err(err).Str("model", c.model).Msg("embedding_provider_failed_using_fallback")
		return deterministicEmbedding(text, c.dim), nil
	}
	if resp == nil || len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Values) == 0 {
		log.Warn().Msg("embedding_provider_empty_response_using_fallback")
		return deterministicEmbedding(text, c.dim), nil
	}
	vec := resp.Embeddings[0].Values
	c.dim = len(vec)
	return vec, nil
}

func (c *Client) rateLimit() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.lastCall.IsZero() {
		if elapsed := time.Since(c.lastCall); elapsed < minCallGap {
			time.Sleep(minCallGap - elapsed)
		}
	}
	c.lastCall = time.Now()
}

// deterministicEmbedding hashes byte 3-grams of s, seeded by an FNV-1a hash
// of s itself, into a fixed-size, L2-normalized vector. Grounded on
// internal/rag/embedder/embedder.go's deterministicEmbedder/add.
func deterministicEmbedding(s string, dim int) []float32 {
	if dim <= 0 {
		dim = defaultDimension
	}
	v := make([]float32, dim)
	b := []byte(s)
	if len(b) == 0 {
		return v
	}
	seed := seedFor(b)
	if len(b) < 3 {
		addGram(seed, b, v)
	} else {
		for i := 0; i <= len(b)-3; i++ {
			addGram(seed, b[i:i+3], v)
		}
	}
	normalize(v)
	return v
}

func seedFor(b []byte) uint64 {
	h := fnv.New64a()
	_, _ = h.Write(b)
	return h.Sum64()
}

func addGram(seed uint64, gram []byte, v []float32) {
	h := fnv.New64a()
	var tmp [8]byte
	for i := 0; i < 8; i++ {
		tmp[i] = byte(seed >> (8 * i))
	}
	_, _ = h.Write(tmp[:])
	_, _ = h.Write(gram)
	hv := h.Sum64()
	idx := int(hv % uint64(len(v)))
	w := float32(int32(hv>>32)) / float32(1<<31)
	v[idx] += w
}

func normalize(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return
	}
	inv := float32(1.0 / math.Sqrt(sum))
	for i := range v {
		v[i] *= inv
	}
}
