// Package composer packs query results into a response that respects an
// external token budget (C6 in SPEC_FULL.md), preferring full records for
// high-value items and snippet summaries otherwise.
//
// Grounded on agentic_memory.go's SearchAgenticMemories response assembly
// (admit-then-format two-phase shape) adapted to the token-budget admission
// rule of spec §4.6; snippet truncation delegates to internal/tokenmeter.
package composer

import (
	"fmt"
	"sort"
	"strings"

	"github.com/biggs3d/manifold-memory/internal/memoryservice"
	"github.com/biggs3d/manifold-memory/internal/tokenmeter"
)

// Config is the external token-budget configuration (spec §6).
type Config struct {
	TokenLimit               int
	TokenBuffer              int
	FullMemoryTokenThreshold float64
}

const summarySnippetMaxChars = 200

// Summary is a token-bounded digest of one record (spec §4.6 step 4).
type Summary struct {
	ID                   string
	Importance           int
	Tags                 []string
	Similarity           *float64
	Snippet              string
	OriginalContentTokens int
}

// Result is the composer's structured output (spec §4.6 step 5), before
// textual formatting.
type Result struct {
	FullMemories []memoryservice.CleanSearchResult
	Summaries    []Summary
	TotalFound   int
	Truncated    bool
	TokenCount   int
}

const envelopeOverheadChars = 64 // rough minimal-envelope object, counted via tokenmeter below

// Compose runs the admission algorithm of spec §4.6.
func Compose(candidates []memoryservice.CleanSearchResult, cfg Config) Result {
	effectiveLimit := cfg.TokenLimit - cfg.TokenBuffer

	sorted := make([]memoryservice.CleanSearchResult, len(candidates))
	copy(sorted, candidates)
	sortBySalience(sorted)

	result := Result{TotalFound: len(candidates)}
	running := tokenmeter.CountText(strings.Repeat("x", envelopeOverheadChars))

	for _, c := range sorted {
		highValue := c.Importance >= 8 || (c.Similarity != nil && *c.Similarity >= 0.85)
		if highValue {
			cost := tokenmeter.CountObject(c)
			if float64(running+cost) < float64(effectiveLimit)*cfg.FullMemoryTokenThreshold {
				result.FullMemories = append(result.FullMemories, c)
				running += cost
				continue
			}
		}

		summary := Summary{
			ID:                    c.ID,
			Importance:            c.Importance,
			Tags:                  c.Tags,
			Similarity:            c.Similarity,
			Snippet:               tokenmeter.Snippet(c.Content, summarySnippetMaxChars),
			OriginalContentTokens: tokenmeter.CountText(c.Content),
		}
		cost := tokenmeter.CountObject(summary)
		if running+cost < effectiveLimit {
			result.Summaries = append(result.Summaries, summary)
			running += cost
			continue
		}

		result.Truncated = true
		break
	}

	result.TokenCount = running
	return result
}

func sortBySalience(items []memoryservice.CleanSearchResult) {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if a.Similarity != nil && b.Similarity != nil {
			return *a.Similarity > *b.Similarity
		}
		if a.Similarity != nil {
			return true
		}
		if b.Similarity != nil {
			return false
		}
		return a.Importance > b.Importance
	})
}

// FormatDigest renders Result as the textual digest described in spec
// §4.6: an opening count, a full-memories section, a summaries section,
// and a truncation footer.
func FormatDigest(r Result) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Found %d memories.\n", r.TotalFound)

	if len(r.FullMemories) > 0 {
		b.WriteString("\nFull Memories (High Relevance):\n")
		for _, m := range r.FullMemories {
			fmt.Fprintf(&b, "- [%s] importance=%d", m.ID, m.Importance)
			if m.Similarity != nil {
				fmt.Fprintf(&b, " similarity=%.1f%%", *m.Similarity*100)
			}
			fmt.Fprintf(&b, " tags=%s\n  %s\n", strings.Join(m.Tags, ","), m.Content)
		}
	}

	if len(r.Summaries) > 0 {
		b.WriteString("\nMemory Summaries:\n")
		for _, s := range r.Summaries {
			fmt.Fprintf(&b, "- [%s] importance=%d", s.ID, s.Importance)
			if s.Similarity != nil {
				fmt.Fprintf(&b, " similarity=%.1f%%", *s.Similarity*100)
			}
			fmt.Fprintf(&b, " tags=%s \"%s\"\n", strings.Join(s.Tags, ","), s.Snippet)
		}
	}

	if r.Truncated {
		b.WriteString("\n[response truncated to fit token budget]\n")
	}

	return b.String()
}
