// Package memoryservice is the business-logic core (C5 in SPEC_FULL.md):
// remember, recall, get, update, forget, list, consolidate, link/unlink,
// similarity-with-scores, auto-link, embedding backfill, orphan cleanup,
// and access-count bumps under optimistic locking.
//
// Grounded on agentic_memory.go's MemoryEngine shape (IngestAgenticMemory,
// SearchAgenticMemories, generateLinks) adapted from its Postgres/pgvector
// specifics to the narrower store.Collection + repository.Source contracts.
package memoryservice

import (
	"encoding/json"
	"time"
)

// MemoryRecord is the only durable entity in the system (spec §3). Internal
// callers use this full shape; external consumers only ever see CleanRecord.
type MemoryRecord struct {
	ID            string    `json:"id"`
	Content       string    `json:"content"`
	Importance    int       `json:"importance"`
	Tags          []string  `json:"tags"`
	Embedding     []float32 `json:"embedding,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
	LastAccessed  time.Time `json:"lastAccessed"`
	AccessCount   int       `json:"accessCount"`
	Version       int       `json:"version"`

	ConsolidatedFrom    []string `json:"consolidatedFrom,omitempty"`
	ConsolidatedInto    []string `json:"consolidatedInto,omitempty"`
	IsConsolidated      bool     `json:"isConsolidated,omitempty"`
	ConsolidationStatus string   `json:"consolidationStatus,omitempty"`

	RelatedMemories []string `json:"relatedMemories,omitempty"`

	// InsertionSeq is assigned at write time from a monotonic counter and is
	// never exposed externally; it exists only to give the repository's
	// ranking ties a deterministic, stable order (spec §4.4).
	InsertionSeq int64 `json:"insertionSeq"`
}

const (
	ConsolidationPending   = "pending"
	ConsolidationCompleted = "completed"
	ConsolidationFailed    = "failed"
)

// CleanRecord is what every external-facing operation returns: the record
// stripped of embedding and internal bookkeeping (version, consolidationStatus)
// per spec §4.5's "all service operations produce clean records" rule.
type CleanRecord struct {
	ID               string   `json:"id"`
	Content          string   `json:"content"`
	Importance       int      `json:"importance"`
	Tags             []string `json:"tags"`
	CreatedAt        time.Time `json:"createdAt"`
	LastAccessed     time.Time `json:"lastAccessed"`
	AccessCount      int      `json:"accessCount"`
	ConsolidatedFrom []string `json:"consolidatedFrom,omitempty"`
	ConsolidatedInto []string `json:"consolidatedInto,omitempty"`
	IsConsolidated   bool     `json:"isConsolidated,omitempty"`
	RelatedMemories  []string `json:"relatedMemories,omitempty"`
}

// CleanSearchResult pairs a CleanRecord with an optional similarity score.
type CleanSearchResult struct {
	CleanRecord
	Similarity *float64 `json:"similarity,omitempty"`
}

func clean(r MemoryRecord) CleanRecord {
	return CleanRecord{
		ID:               r.ID,
		Content:          r.Content,
		Importance:       r.Importance,
		Tags:             r.Tags,
		CreatedAt:        r.CreatedAt,
		LastAccessed:     r.LastAccessed,
		AccessCount:      r.AccessCount,
		ConsolidatedFrom: r.ConsolidatedFrom,
		ConsolidatedInto: r.ConsolidatedInto,
		IsConsolidated:   r.IsConsolidated,
		RelatedMemories:  r.RelatedMemories,
	}
}

func cleanSearchResult(r MemoryRecord, similarity *float64) CleanSearchResult {
	return CleanSearchResult{CleanRecord: clean(r), Similarity: similarity}
}

func clampImportance(i int) int {
	if i < 0 {
		return 0
	}
	if i > 10 {
		return 10
	}
	return i
}

// toDocument/fromDocument round-trip a MemoryRecord through the store's
// generic Document map via JSON, keeping the store adapter ignorant of the
// record's real shape (spec §4.1's narrow contract).
func toDocument(r MemoryRecord) (map[string]any, error) {
	b, err := json.Marshal(r)
	if err != nil {
		return nil, err
	}
	var doc map[string]any
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func fromDocument(doc map[string]any) (MemoryRecord, error) {
	b, err := json.Marshal(doc)
	if err != nil {
		return MemoryRecord{}, err
	}
	var r MemoryRecord
	if err := json.Unmarshal(b, &r); err != nil {
		return MemoryRecord{}, err
	}
	return r, nil
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func appendUnique(list []string, s string) []string {
	if containsString(list, s) {
		return list
	}
	return append(list, s)
}

func removeString(list []string, s string) []string {
	out := make([]string, 0, len(list))
	for _, v := range list {
		if v != s {
			out = append(out, v)
		}
	}
	return out
}
