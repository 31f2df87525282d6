package memoryservice

import "context"

// SweepDanglingReferences strips ids from consolidatedFrom, consolidatedInto,
// and relatedMemories that no longer resolve to a live record. This is the
// bounded opportunistic task recommended for spec §9's second Open Question
// ("whether the maintainer should sweep dangling ids"), wired in as the
// background maintainer's fifth-priority task.
func (s *Service) SweepDanglingReferences(ctx context.Context, candidates []MemoryRecord) error {
	for _, r := range candidates {
		changed := false

		r.ConsolidatedFrom, changed = s.dropDangling(ctx, r.ConsolidatedFrom, changed)
		r.ConsolidatedInto, changed = s.dropDangling(ctx, r.ConsolidatedInto, changed)
		r.RelatedMemories, changed = s.dropDangling(ctx, r.RelatedMemories, changed)

		if !changed {
			continue
		}
		r.Version++
		if err := s.writeRecord(ctx, r); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) dropDangling(ctx context.Context, ids []string, alreadyChanged bool) ([]string, bool) {
	if len(ids) == 0 {
		return ids, alreadyChanged
	}
	out := make([]string, 0, len(ids))
	changed := alreadyChanged
	for _, id := range ids {
		_, ok, err := s.readRecord(ctx, id)
		if err == nil && ok {
			out = append(out, id)
			continue
		}
		changed = true
	}
	return out, changed
}
