package memoryservice

import (
	"context"
	"time"

	"github.com/biggs3d/manifold-memory/internal/repository"
)

// RelatedMemories is the composite result of spec §4.5.8.
type RelatedMemories struct {
	ConsolidatedFrom []CleanRecord
	ConsolidatedInto []CleanRecord
	Similar          []CleanSearchResult
	RelatedByTags    []CleanRecord
}

// GetRelatedMemories implements spec §4.5.8.
func (s *Service) GetRelatedMemories(ctx context.Context, id string, includeConsolidated bool) (RelatedMemories, bool, error) {
	src, ok, err := s.readRecord(ctx, id)
	if err != nil {
		return RelatedMemories{}, false, err
	}
	if !ok {
		return RelatedMemories{}, false, nil
	}

	var result RelatedMemories

	if includeConsolidated {
		result.ConsolidatedFrom = s.batchReadClean(ctx, src.ConsolidatedFrom)
		result.ConsolidatedInto = s.batchReadClean(ctx, src.ConsolidatedInto)
	}

	similar, err := s.FindSimilarMemoriesWithScores(ctx, id, s.cfg.SimilarityThreshold, 5)
	if err != nil && KindKnown(err) != KindValidation {
		return RelatedMemories{}, false, err
	}
	result.Similar = similar

	if len(src.Tags) > 0 {
		q := repository.Query{
			Tags:           src.Tags,
			TextQuery:      joinTags(src.Tags),
			SearchStrategy: repository.StrategyText,
			Limit:          10,
		}
		found, err := repository.Find(ctx, s, q)
		if err != nil {
			return RelatedMemories{}, false, err
		}
		for _, f := range found {
			if f.Record.ID == id {
				continue
			}
			r, ok, err := s.readRecord(ctx, f.Record.ID)
			if err != nil || !ok {
				continue
			}
			result.RelatedByTags = append(result.RelatedByTags, clean(r))
		}
	}

	existingSimilar := make(map[string]bool, len(result.Similar))
	for _, sim := range result.Similar {
		existingSimilar[sim.ID] = true
	}
	for _, relID := range src.RelatedMemories {
		if existingSimilar[relID] {
			continue
		}
		r, ok, err := s.readRecord(ctx, relID)
		if err != nil || !ok {
			continue
		}
		result.Similar = append(result.Similar, cleanSearchResult(r, nil))
		existingSimilar[relID] = true
	}

	return result, true, nil
}

func (s *Service) batchReadClean(ctx context.Context, ids []string) []CleanRecord {
	out := make([]CleanRecord, 0, len(ids))
	for _, id := range ids {
		r, ok, err := s.readRecord(ctx, id)
		if err != nil || !ok {
			continue // dangling id, tolerated per spec §3 invariant 6
		}
		out = append(out, clean(r))
	}
	return out
}

func joinTags(tags []string) string {
	out := ""
	for i, t := range tags {
		if i > 0 {
			out += " "
		}
		out += t
	}
	return out
}

// KindKnown is a small helper so callers inline-checking error kinds don't
// need to import errors.As boilerplate at every call site.
func KindKnown(err error) ErrorKind {
	kind, _ := KindOf(err)
	return kind
}

// FindSimilarMemoriesWithScores implements spec §4.5.9.
func (s *Service) FindSimilarMemoriesWithScores(ctx context.Context, id string, threshold float64, limit int) ([]CleanSearchResult, error) {
	src, ok, err := s.readRecord(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, newNotFoundError("record not found: " + id)
	}
	if src.Embedding == nil {
		return nil, ErrNoEmbedding
	}

	q := repository.Query{
		SearchStrategy:          repository.StrategyVector,
		VectorQuery:             src.Embedding,
		Limit:                   limit + 1,
		IncludeSimilarityScores: true,
	}
	results, err := repository.Find(ctx, s, q)
	if err != nil {
		if err == repository.ErrDimensionMismatch {
			return nil, newDimensionMismatchError(err)
		}
		return nil, err
	}

	out := make([]CleanSearchResult, 0, limit)
	for _, res := range results {
		if res.Record.ID == id {
			continue
		}
		if res.Similarity == nil || *res.Similarity < threshold {
			continue
		}
		r, ok, err := s.readRecord(ctx, res.Record.ID)
		if err != nil || !ok {
			continue
		}
		out = append(out, cleanSearchResult(r, res.Similarity))
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

// LinkMemories implements spec §4.5.10: applies each side independently,
// each incrementing its own version. Non-atomic across the pair (spec §5).
func (s *Service) LinkMemories(ctx context.Context, a, b string) error {
	if a == b {
		return newValidationError("cannot link a memory to itself")
	}
	ra, ok, err := s.readRecord(ctx, a)
	if err != nil {
		return err
	}
	if !ok {
		return newNotFoundError("record not found: " + a)
	}
	rb, ok, err := s.readRecord(ctx, b)
	if err != nil {
		return err
	}
	if !ok {
		return newNotFoundError("record not found: " + b)
	}

	ra.RelatedMemories = appendUnique(ra.RelatedMemories, b)
	ra.Version++
	if err := s.writeRecord(ctx, ra); err != nil {
		return err
	}

	rb.RelatedMemories = appendUnique(rb.RelatedMemories, a)
	rb.Version++
	if err := s.writeRecord(ctx, rb); err != nil {
		return err
	}
	return nil
}

// UnlinkMemories implements spec §4.5.10.
func (s *Service) UnlinkMemories(ctx context.Context, a, b string) (bool, error) {
	ra, ok, err := s.readRecord(ctx, a)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, newNotFoundError("record not found: " + a)
	}
	rb, ok, err := s.readRecord(ctx, b)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, newNotFoundError("record not found: " + b)
	}

	ra.RelatedMemories = removeString(ra.RelatedMemories, b)
	ra.Version++
	if err := s.writeRecord(ctx, ra); err != nil {
		return false, err
	}

	rb.RelatedMemories = removeString(rb.RelatedMemories, a)
	rb.Version++
	if err := s.writeRecord(ctx, rb); err != nil {
		return false, err
	}
	return true, nil
}

// AutoLinkResult is the return shape of spec §4.5.11.
type AutoLinkResult struct {
	Linked int
	Errors []string
}

// AutoLinkSimilarMemories implements spec §4.5.11.
func (s *Service) AutoLinkSimilarMemories(ctx context.Context, threshold float64, maxPerMemory int) (AutoLinkResult, error) {
	const pageSize = 50
	result := AutoLinkResult{}
	offset := 0
	for {
		page, err := s.ListMemoriesInternal(ctx, pageSize, offset)
		if err != nil {
			return result, err
		}
		if len(page) == 0 {
			break
		}
		for _, r := range page {
			if r.Embedding == nil {
				continue
			}
			if len(r.RelatedMemories) >= maxPerMemory {
				continue
			}
			similar, err := s.FindSimilarMemoriesWithScores(ctx, r.ID, threshold, maxPerMemory)
			if err != nil {
				result.Errors = append(result.Errors, err.Error())
				continue
			}
			for _, sim := range similar {
				if containsString(r.RelatedMemories, sim.ID) {
					continue
				}
				if err := s.LinkMemories(ctx, r.ID, sim.ID); err != nil {
					result.Errors = append(result.Errors, err.Error())
					continue
				}
				result.Linked++
			}
		}
		offset += pageSize
		time.Sleep(time.Millisecond) // yield briefly between pages (spec §4.5.11)
		if len(page) < pageSize {
			break
		}
	}
	return result, nil
}

// ListMemoriesInternal returns raw (non-clean) records for internal
// maintenance tasks (auto-linking, backfill) that need the embedding field,
// ordered by createdAt descending.
func (s *Service) ListMemoriesInternal(ctx context.Context, limit, offset int) ([]MemoryRecord, error) {
	return s.listMemoriesInternalSorted(ctx, limit, offset, "createdAt")
}

// ListMemoriesInternalByLastAccessed is the lastAccessed-ordered variant used
// by the importance decay task (spec §4.7 task 2: "list up to 20 records by
// lastAccessed descending").
func (s *Service) ListMemoriesInternalByLastAccessed(ctx context.Context, limit, offset int) ([]MemoryRecord, error) {
	return s.listMemoriesInternalSorted(ctx, limit, offset, "lastAccessed")
}

func (s *Service) listMemoriesInternalSorted(ctx context.Context, limit, offset int, sortBy string) ([]MemoryRecord, error) {
	q := repository.Query{
		SortBy:         sortBy,
		SortOrder:      repository.SortDescending,
		Offset:         offset,
		Limit:          limit,
		SearchStrategy: repository.StrategyText,
	}
	results, err := repository.Find(ctx, s, q)
	if err != nil {
		return nil, err
	}
	out := make([]MemoryRecord, 0, len(results))
	for _, res := range results {
		r, ok, err := s.readRecord(ctx, res.Record.ID)
		if err != nil || !ok {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}
