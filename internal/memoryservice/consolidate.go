package memoryservice

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/biggs3d/manifold-memory/internal/observability"
)

const consolidatedTag = "consolidated"

// ConsolidateMemories implements the atomic saga/outbox protocol of spec
// §4.5.7. It is the only multi-document write in the system.
func (s *Service) ConsolidateMemories(ctx context.Context, ids []string, prompt string) (MemoryRecord, error) {
	if len(ids) < 2 {
		return MemoryRecord{}, newValidationError("consolidateMemories requires at least 2 ids")
	}

	sources := make([]MemoryRecord, 0, len(ids))
	for _, id := range ids {
		r, ok, err := s.readRecord(ctx, id)
		if err != nil {
			return MemoryRecord{}, err
		}
		if !ok {
			return MemoryRecord{}, newNotFoundError(fmt.Sprintf("consolidation source not found: %s", id))
		}
		sources = append(sources, r)
	}

	summary, err := s.summarizeSources(ctx, sources, prompt)
	if err != nil {
		// summarizeSources already falls back internally; this branch is
		// defensive only.
		summary = concatenationSummary(sources)
	}

	maxImportance := 0
	tagSet := make(map[string]bool)
	for _, src := range sources {
		if src.Importance > maxImportance {
			maxImportance = src.Importance
		}
		for _, t := range src.Tags {
			tagSet[t] = true
		}
	}
	tagSet[consolidatedTag] = true
	tags := make([]string, 0, len(tagSet))
	for t := range tagSet {
		tags = append(tags, t)
	}
	importance := clampImportance(maxImportance + 1)

	clean, err := s.Remember(ctx, summary, importance, tags)
	if err != nil {
		return MemoryRecord{}, err
	}

	n, ok, err := s.readRecord(ctx, clean.ID)
	if err != nil || !ok {
		return MemoryRecord{}, newStoreError(fmt.Errorf("consolidation record vanished immediately after creation"))
	}

	n.ConsolidatedFrom = ids
	n.IsConsolidated = true
	n.ConsolidationStatus = ConsolidationPending
	n.Version++
	if err := s.writeRecord(ctx, n); err != nil {
		return MemoryRecord{}, err
	}

	log := observability.LoggerWithTrace(ctx)
	for _, src := range sources {
		fresh, ok, err := s.readRecord(ctx, src.ID)
		if err != nil || !ok {
			log.Warn().Str("id", src.ID).Msg("consolidation_source_vanished_marking_failed")
			s.markConsolidationFailed(ctx, n.ID)
			return MemoryRecord{}, newStoreError(fmt.Errorf("consolidation source %s vanished mid-flight", src.ID))
		}
		fresh.ConsolidatedInto = appendUnique(fresh.ConsolidatedInto, n.ID)
		fresh.Version++
		if err := s.writeRecord(ctx, fresh); err != nil {
			s.markConsolidationFailed(ctx, n.ID)
			return MemoryRecord{}, err
		}
	}

	n.ConsolidationStatus = ConsolidationCompleted
	n.Version++
	if err := s.writeRecord(ctx, n); err != nil {
		return MemoryRecord{}, err
	}
	return n, nil
}

// markConsolidationFailed is best-effort (spec §4.5.7 step 7): a failure
// here is logged, never propagated, since the caller already has an error
// of its own to return.
func (s *Service) markConsolidationFailed(ctx context.Context, id string) {
	log := observability.LoggerWithTrace(ctx)
	r, ok, err := s.readRecord(ctx, id)
	if err != nil || !ok {
		log.Warn().Str("id", id).Msg("consolidation_failed_marker_could_not_read_record")
		return
	}
	r.ConsolidationStatus = ConsolidationFailed
	r.Version++
	if err := s.writeRecord(ctx, r); err != nil {
		log.Warn().Err(err).Str("id", id).Msg("consolidation_failed_marker_write_failed")
	}
}

func (s *Service) summarizeSources(ctx context.Context, sources []MemoryRecord, prompt string) (string, error) {
	log := observability.LoggerWithTrace(ctx)
	if prompt == "" {
		prompt = defaultConsolidationPrompt(sources)
	}
	if s.summarizer == nil {
		return concatenationSummary(sources), nil
	}
	summary, err := s.summarizer.Summarize(ctx, prompt)
	if err != nil || strings.TrimSpace(summary) == "" {
		log.Warn().Err(err).Msg("consolidation_summarizer_failed_using_concatenation")
		return concatenationSummary(sources), nil
	}
	return summary, nil
}

func defaultConsolidationPrompt(sources []MemoryRecord) string {
	var b strings.Builder
	b.WriteString("Summarize the following related memories into a single consolidated memory:\n\n")
	for i, src := range sources {
		fmt.Fprintf(&b, "%d. %s\n", i+1, src.Content)
	}
	return b.String()
}

func concatenationSummary(sources []MemoryRecord) string {
	parts := make([]string, len(sources))
	for i, src := range sources {
		parts[i] = src.Content
	}
	return strings.Join(parts, " ")
}

// CleanupOrphanedConsolidations implements spec §4.5.7's recovery sweep: mark
// stale pending consolidations as failed and strip their back-references
// from sources.
func (s *Service) CleanupOrphanedConsolidations(ctx context.Context, maxAge time.Duration) (int, error) {
	docs, err := s.coll.Scan(ctx)
	if err != nil {
		return 0, newStoreError(err)
	}

	cleaned := 0
	cutoff := time.Now().Add(-maxAge)
	for _, doc := range docs {
		r, err := fromDocument(doc)
		if err != nil {
			continue
		}
		if r.ConsolidationStatus != ConsolidationPending || r.CreatedAt.After(cutoff) {
			continue
		}

		r.ConsolidationStatus = ConsolidationFailed
		r.Version++
		if err := s.writeRecord(ctx, r); err != nil {
			continue
		}
		for _, srcID := range r.ConsolidatedFrom {
			src, ok, err := s.readRecord(ctx, srcID)
			if err != nil || !ok {
				continue
			}
			src.ConsolidatedInto = removeString(src.ConsolidatedInto, r.ID)
			src.Version++
			_ = s.writeRecord(ctx, src)
		}
		cleaned++
	}
	return cleaned, nil
}
