// Package repository owns the query pipeline: filter -> search-strategy
// (text/vector/hybrid) -> sort -> paginate (C4 in SPEC_FULL.md). It
// implements cosine similarity and Reciprocal Rank Fusion.
//
// Grounded on internal/persistence/databases/memory_vector.go's cosine/norm/dot
// (diverged to fail-fast DimensionMismatch per spec §4.4 rather than the
// teacher's min-length truncation) and memory_search.go's substring/filter
// idiom (simplified to boolean substring per spec rather than the teacher's
// term-frequency scoring).
package repository

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"
)

// ErrDimensionMismatch is returned by CosineSimilarity when the two vectors
// have different lengths. Spec §4.4/§7 treats this as a programmer error:
// fail fast, never silently truncate.
var ErrDimensionMismatch = errors.New("repository: vector dimension mismatch")

// SearchStrategy selects the ranking algorithm for Find/Count.
type SearchStrategy string

const (
	StrategyText   SearchStrategy = "text"
	StrategyVector SearchStrategy = "vector"
	StrategyHybrid SearchStrategy = "hybrid"
)

// SortOrder is the direction applied to Query.SortBy.
type SortOrder string

const (
	SortDescending SortOrder = "desc"
	SortAscending  SortOrder = "asc"
)

// Record is the subset of MemoryRecord fields the repository needs to
// filter, rank, and paginate. memoryservice.MemoryRecord satisfies this via
// an adapter so the repository never imports memoryservice (avoids an
// import cycle: memoryservice depends on repository, not vice versa).
type Record struct {
	ID           string
	Content      string
	Importance   int
	Tags         []string
	Embedding    []float32
	CreatedAt    time.Time
	LastAccessed time.Time
	// InsertionSeq breaks sort ties deterministically (spec §4.4:
	// "ties broken by insertion order").
	InsertionSeq int64
}

// Query has the orthogonal parts described in spec §4.4.
type Query struct {
	TextQuery              string
	VectorQuery            []float32
	Tags                   []string // AND semantics
	HasImportanceRange     bool
	MinImportance          int
	MaxImportance          int
	HasDateRange           bool
	DateFrom               time.Time
	DateTo                 time.Time
	SortBy                 string // "createdAt", "importance", "relevance"
	SortOrder              SortOrder
	Offset                 int
	Limit                  int
	SearchStrategy         SearchStrategy
	IncludeSimilarityScores bool
}

// ScoredRecord pairs a Record with an optional similarity score (present
// only for vector/hybrid strategies that request it).
type ScoredRecord struct {
	Record     Record
	Similarity *float64
}

// Source supplies the full record set to scan. The repository itself holds
// no state; memoryservice owns the store and feeds records in.
type Source interface {
	AllRecords(ctx context.Context) ([]Record, error)
}

// Find runs the full filter -> strategy -> sort -> paginate pipeline.
func Find(ctx context.Context, src Source, q Query) ([]ScoredRecord, error) {
	all, err := src.AllRecords(ctx)
	if err != nil {
		return nil, err
	}

	switch q.SearchStrategy {
	case "", StrategyText:
		return findText(all, q), nil
	case StrategyVector:
		if q.VectorQuery == nil {
			return nil, errors.New("repository: vector strategy requires vectorQuery")
		}
		return findVector(all, q)
	case StrategyHybrid:
		if q.VectorQuery == nil {
			return nil, errors.New("repository: hybrid strategy requires vectorQuery")
		}
		return findHybrid(all, q)
	default:
		return nil, errors.New("repository: unknown search strategy: " + string(q.SearchStrategy))
	}
}

// Count returns len(Find(...)) without pagination applied, matching the
// spec's `count(Query)` passthrough.
func Count(ctx context.Context, src Source, q Query) (int, error) {
	unpaginated := q
	unpaginated.Offset = 0
	unpaginated.Limit = 0
	results, err := Find(ctx, src, unpaginated)
	if err != nil {
		return 0, err
	}
	return len(results), nil
}

func findText(all []Record, q Query) []ScoredRecord {
	filtered := applyAllFilters(all, q)
	sortBy := q.SortBy
	if sortBy == "" || sortBy == "relevance" {
		sortBy = "importance"
		if q.SortBy == "" {
			sortBy = "createdAt"
		}
	}
	order := q.SortOrder
	if order == "" {
		order = SortDescending
	}
	sortRecords(filtered, sortBy, order)
	return paginate(toScored(filtered, nil), q)
}

func findVector(all []Record, q Query) ([]ScoredRecord, error) {
	withEmbedding := make([]Record, 0, len(all))
	for _, r := range all {
		if r.Embedding != nil {
			withEmbedding = append(withEmbedding, r)
		}
	}
	scored, err := scoreByCosine(withEmbedding, q.VectorQuery)
	if err != nil {
		return nil, err
	}
	scored = applyNonTextFilters(scored, q)
	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].score != scored[j].score {
			return scored[i].score > scored[j].score
		}
		return scored[i].record.InsertionSeq < scored[j].record.InsertionSeq
	})
	out := make([]ScoredRecord, len(scored))
	for i, s := range scored {
		sim := s.score
		var simPtr *float64
		if q.IncludeSimilarityScores {
			simPtr = &sim
		}
		out[i] = ScoredRecord{Record: s.record, Similarity: simPtr}
	}
	return paginate(out, q), nil
}

func findHybrid(all []Record, q Query) ([]ScoredRecord, error) {
	textQ := q
	textQ.SearchStrategy = StrategyText
	textQ.Offset = 0
	textQ.Limit = 0
	textRanked := findText(all, textQ)

	vectorQ := q
	vectorQ.TextQuery = ""
	vectorQ.Offset = 0
	vectorQ.Limit = 0
	vectorQ.IncludeSimilarityScores = false
	vectorRanked, err := findVector(all, vectorQ)
	if err != nil {
		return nil, err
	}

	fused := reciprocalRankFusion(textRanked, vectorRanked)
	out := make([]ScoredRecord, 0, len(fused))
	for _, f := range fused {
		sim := f.score
		var simPtr *float64
		if q.IncludeSimilarityScores {
			simPtr = &sim
		}
		out = append(out, ScoredRecord{Record: f.record, Similarity: simPtr})
	}
	return paginate(out, q), nil
}

// --- filtering ---

func applyAllFilters(all []Record, q Query) []Record {
	out := make([]Record, 0, len(all))
	for _, r := range all {
		if matchesText(r, q.TextQuery) && matchesTags(r, q.Tags) && matchesImportance(r, q) && matchesDate(r, q) {
			out = append(out, r)
		}
	}
	return out
}

// applyNonTextFilters applies every filter except textQuery, per spec §4.4's
// "vector" strategy: "Consider only records with embedding...; apply
// non-text filters".
func applyNonTextFilters(scored []scoredInternal, q Query) []scoredInternal {
	out := make([]scoredInternal, 0, len(scored))
	for _, s := range scored {
		if matchesTags(s.record, q.Tags) && matchesImportance(s.record, q) && matchesDate(s.record, q) {
			out = append(out, s)
		}
	}
	return out
}

func matchesText(r Record, textQuery string) bool {
	if textQuery == "" {
		return true
	}
	q := strings.ToLower(textQuery)
	if strings.Contains(strings.ToLower(r.Content), q) {
		return true
	}
	for _, t := range r.Tags {
		if strings.Contains(strings.ToLower(t), q) {
			return true
		}
	}
	return false
}

func matchesTags(r Record, tags []string) bool {
	if len(tags) == 0 {
		return true
	}
	have := make(map[string]bool, len(r.Tags))
	for _, t := range r.Tags {
		have[t] = true
	}
	for _, t := range tags {
		if !have[t] {
			return false
		}
	}
	return true
}

func matchesImportance(r Record, q Query) bool {
	if !q.HasImportanceRange {
		return true
	}
	return r.Importance >= q.MinImportance && r.Importance <= q.MaxImportance
}

func matchesDate(r Record, q Query) bool {
	if !q.HasDateRange {
		return true
	}
	return !r.CreatedAt.Before(q.DateFrom) && !r.CreatedAt.After(q.DateTo)
}

// --- sorting/pagination ---

func sortRecords(records []Record, sortBy string, order SortOrder) {
	sort.SliceStable(records, func(i, j int) bool {
		a, b := records[i], records[j]
		var lt bool
		switch sortBy {
		case "importance":
			if a.Importance != b.Importance {
				lt = a.Importance < b.Importance
			} else {
				return a.InsertionSeq < b.InsertionSeq
			}
		case "lastAccessed":
			if !a.LastAccessed.Equal(b.LastAccessed) {
				lt = a.LastAccessed.Before(b.LastAccessed)
			} else {
				return a.InsertionSeq < b.InsertionSeq
			}
		default:
			if !a.CreatedAt.Equal(b.CreatedAt) {
				lt = a.CreatedAt.Before(b.CreatedAt)
			} else {
				return a.InsertionSeq < b.InsertionSeq
			}
		}
		if order == SortAscending {
			return lt
		}
		return !lt
	})
}

func toScored(records []Record, score *float64) []ScoredRecord {
	out := make([]ScoredRecord, len(records))
	for i, r := range records {
		out[i] = ScoredRecord{Record: r, Similarity: score}
	}
	return out
}

func paginate(records []ScoredRecord, q Query) []ScoredRecord {
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}
	if offset >= len(records) {
		return []ScoredRecord{}
	}
	records = records[offset:]
	if q.Limit > 0 && q.Limit < len(records) {
		records = records[:q.Limit]
	}
	return records
}
