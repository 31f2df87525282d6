package memoryservice

import (
	"context"
	"time"

	"github.com/biggs3d/manifold-memory/internal/embedclient"
	"github.com/biggs3d/manifold-memory/internal/observability"
)

const (
	backfillPageSize        = 50
	backfillSubBatchGap      = 100 * time.Millisecond
	defaultEmbeddingBatchSize = 10
)

// BackfillResult is the return shape of spec §4.5.12.
type BackfillResult struct {
	Processed int
	Updated   int
	Errors    []string
}

// GenerateEmbeddingsForExisting implements spec §4.5.12.
func (s *Service) GenerateEmbeddingsForExisting(ctx context.Context, batchSize int) (BackfillResult, error) {
	if batchSize <= 0 {
		batchSize = s.cfg.EmbeddingBatchSize
	}
	if batchSize <= 0 {
		batchSize = defaultEmbeddingBatchSize
	}
	log := observability.LoggerWithTrace(ctx)
	result := BackfillResult{}

	offset := 0
	for {
		page, err := s.ListMemoriesInternal(ctx, backfillPageSize, offset)
		if err != nil {
			return result, err
		}
		if len(page) == 0 {
			break
		}

		var missing []MemoryRecord
		for _, r := range page {
			if r.Embedding == nil {
				missing = append(missing, r)
			}
		}

		for i := 0; i < len(missing); i += batchSize {
			end := i + batchSize
			if end > len(missing) {
				end = len(missing)
			}
			for _, r := range missing[i:end] {
				result.Processed++
				vec, err := s.embedder.Embed(ctx, r.Content, embedclient.TaskDocument)
				if err != nil {
					log.Warn().Err(err).Str("id", r.ID).Msg("backfill_embed_failed")
					result.Errors = append(result.Errors, err.Error())
					continue
				}
				r.Embedding = vec
				r.Version++
				if err := s.writeRecord(ctx, r); err != nil {
					result.Errors = append(result.Errors, err.Error())
					continue
				}
				result.Updated++
			}
			if end < len(missing) {
				time.Sleep(backfillSubBatchGap)
			}
		}

		offset += backfillPageSize
		if len(page) < backfillPageSize {
			break
		}
	}

	return result, nil
}
