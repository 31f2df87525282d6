package memoryservice

import (
	"context"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/biggs3d/manifold-memory/internal/embedclient"
	"github.com/biggs3d/manifold-memory/internal/observability"
	"github.com/biggs3d/manifold-memory/internal/repository"
	"github.com/biggs3d/manifold-memory/internal/store"
)

const collectionName = "memories"

const maxContentLength = 2000

// Embedder is the narrow capability interface C5 depends on (spec §9:
// "captured behind narrow capability interfaces"). embedclient.Client
// satisfies it.
type Embedder interface {
	Embed(ctx context.Context, text string, taskType embedclient.TaskType) ([]float32, error)
}

// Summarizer is the abstract "summarize(prompt) -> text" provider (spec §1,
// deliberately out of core scope but depended on via this interface).
type Summarizer interface {
	Summarize(ctx context.Context, prompt string) (string, error)
}

// Service is the memory engine (C5). It owns no long-lived record copies
// (spec §3 "Ownership"); every method reads through coll and writes back.
type Service struct {
	coll       store.Collection
	embedder   Embedder
	summarizer Summarizer
	cfg        Config

	insertionSeq atomic.Int64
}

// Config carries the handful of env-derived knobs the service needs at
// construction time (spec §6). Zero-value Config is replaced by
// defaultConfig()'s values, so New callers that don't need custom knobs can
// ignore WithConfig entirely.
type Config struct {
	SimilarityThreshold float64
	EmbeddingBatchSize  int
}

func defaultConfig() Config {
	return Config{SimilarityThreshold: 0.7, EmbeddingBatchSize: defaultEmbeddingBatchSize}
}

// New constructs a Service. coll must already be open (store.New called by
// the caller); embedder and summarizer may wrap provider handles that are
// process-lifetime singletons (spec §5, "Resource discipline").
func New(coll store.Collection, embedder Embedder, summarizer Summarizer) *Service {
	return &Service{coll: coll, embedder: embedder, summarizer: summarizer, cfg: defaultConfig()}
}

// WithConfig overrides the service's env-derived knobs (spec §6) and returns
// the receiver for chaining at construction time.
func (s *Service) WithConfig(cfg Config) *Service {
	if cfg.SimilarityThreshold > 0 {
		s.cfg.SimilarityThreshold = cfg.SimilarityThreshold
	}
	if cfg.EmbeddingBatchSize > 0 {
		s.cfg.EmbeddingBatchSize = cfg.EmbeddingBatchSize
	}
	return s
}

// AllRecords satisfies repository.Source by loading and decoding every
// document in the collection. Scan is a full snapshot per spec §4.1/§4.4's
// acknowledged "scan-based search" ceiling (spec §9).
func (s *Service) AllRecords(ctx context.Context) ([]repository.Record, error) {
	docs, err := s.coll.Scan(ctx)
	if err != nil {
		return nil, newStoreError(err)
	}
	out := make([]repository.Record, 0, len(docs))
	for _, doc := range docs {
		r, err := fromDocument(doc)
		if err != nil {
			continue // malformed document; skip rather than fail the whole scan
		}
		out = append(out, toRepoRecord(r))
	}
	return out, nil
}

func toRepoRecord(r MemoryRecord) repository.Record {
	return repository.Record{
		ID:           r.ID,
		Content:      r.Content,
		Importance:   r.Importance,
		Tags:         r.Tags,
		Embedding:    r.Embedding,
		CreatedAt:    r.CreatedAt,
		LastAccessed: r.LastAccessed,
		InsertionSeq: r.InsertionSeq,
	}
}

func (s *Service) nextInsertionSeq() int64 {
	return s.insertionSeq.Add(1)
}

func (s *Service) readRecord(ctx context.Context, id string) (MemoryRecord, bool, error) {
	doc, ok, err := s.coll.Read(ctx, id)
	if err != nil {
		return MemoryRecord{}, false, newStoreError(err)
	}
	if !ok {
		return MemoryRecord{}, false, nil
	}
	r, err := fromDocument(doc)
	if err != nil {
		return MemoryRecord{}, false, newStoreError(err)
	}
	return r, true, nil
}

// writeRecord persists the complete record r. It uses Replace, not Update:
// r is always the whole, already-modified record (every writeRecord caller
// has just read-modified-written it in full), and Update's merge semantics
// would silently keep a stale value for any list field r cleared back to
// empty (encoding/json's omitempty drops empty slices from the partial).
func (s *Service) writeRecord(ctx context.Context, r MemoryRecord) error {
	doc, err := toDocument(r)
	if err != nil {
		return newStoreError(err)
	}
	if _, _, err := s.coll.Replace(ctx, r.ID, doc); err != nil {
		return newStoreError(err)
	}
	return nil
}

func (s *Service) createRecord(ctx context.Context, r MemoryRecord) error {
	doc, err := toDocument(r)
	if err != nil {
		return newStoreError(err)
	}
	if _, err := s.coll.Create(ctx, doc); err != nil {
		return newStoreError(err)
	}
	return nil
}

// Remember implements spec §4.5.1.
func (s *Service) Remember(ctx context.Context, content string, importance int, tags []string) (CleanRecord, error) {
	if content == "" {
		return CleanRecord{}, newValidationError("content must not be empty")
	}
	if len([]rune(content)) > maxContentLength {
		return CleanRecord{}, newValidationError("content exceeds 2000 characters")
	}
	if tags == nil {
		tags = []string{}
	}

	log := observability.LoggerWithTrace(ctx)
	embedding, err := s.embedder.Embed(ctx, content, embedclient.TaskDocument)
	if err != nil {
		log.Warn().Err(err).Msg("remember_embedding_failed")
		embedding = nil
	}

	now := time.Now()
	r := MemoryRecord{
		ID:           uuid.NewString(),
		Content:      content,
		Importance:   clampImportance(importance),
		Tags:         tags,
		Embedding:    embedding,
		CreatedAt:    now,
		LastAccessed: now,
		AccessCount:  1,
		Version:      1,
		InsertionSeq: s.nextInsertionSeq(),
	}
	if err := s.createRecord(ctx, r); err != nil {
		return CleanRecord{}, err
	}
	return clean(r), nil
}

// RecallSearchType enumerates spec §4.5.2's searchType parameter.
type RecallSearchType string

const (
	RecallText     RecallSearchType = "text"
	RecallSemantic RecallSearchType = "semantic"
	RecallHybrid   RecallSearchType = "hybrid"
)

// Recall implements spec §4.5.2.
func (s *Service) Recall(ctx context.Context, query string, tags []string, limit int, searchType RecallSearchType) ([]CleanSearchResult, error) {
	if limit <= 0 {
		return []CleanSearchResult{}, nil
	}

	q := repository.Query{
		Tags:                    tags,
		SortBy:                  "relevance",
		SortOrder:               repository.SortDescending,
		Limit:                   limit,
		IncludeSimilarityScores: true,
	}

	switch searchType {
	case RecallSemantic:
		vec, err := s.embedder.Embed(ctx, query, embedclient.TaskQuery)
		if err != nil {
			return nil, err
		}
		q.VectorQuery = vec
		q.SearchStrategy = repository.StrategyVector
	case RecallHybrid:
		vec, err := s.embedder.Embed(ctx, query, embedclient.TaskQuery)
		if err != nil {
			return nil, err
		}
		q.TextQuery = query
		q.VectorQuery = vec
		q.SearchStrategy = repository.StrategyHybrid
	default:
		q.TextQuery = query
		q.SearchStrategy = repository.StrategyText
	}

	results, err := repository.Find(ctx, s, q)
	if err != nil {
		if err == repository.ErrDimensionMismatch {
			return nil, newDimensionMismatchError(err)
		}
		return nil, err
	}

	out := make([]CleanSearchResult, 0, len(results))
	for _, res := range results {
		r, ok, err := s.readRecord(ctx, res.Record.ID)
		if err != nil || !ok {
			continue
		}
		out = append(out, cleanSearchResult(r, res.Similarity))
	}
	return out, nil
}

// GetMemory implements the optimistic access-count increment protocol of
// spec §4.5.3.
func (s *Service) GetMemory(ctx context.Context, id string) (CleanRecord, bool, error) {
	log := observability.LoggerWithTrace(ctx)
	var lastSeen MemoryRecord
	var lastSeenOK bool

	const maxAttempts = 3
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		r, ok, err := s.readRecord(ctx, id)
		if err != nil {
			return CleanRecord{}, false, err
		}
		if !ok {
			return CleanRecord{}, false, nil
		}
		lastSeen, lastSeenOK = r, true

		updated := r
		updated.LastAccessed = time.Now()
		updated.AccessCount = r.AccessCount + 1
		updated.Version = r.Version + 1

		if ok, err := s.casUpdate(ctx, r.ID, r.Version, updated); err != nil {
			return CleanRecord{}, false, err
		} else if ok {
			return clean(updated), true, nil
		}

		if attempt < maxAttempts {
			backoff := time.Duration(rand.Intn(20)+5) * time.Millisecond
			time.Sleep(backoff)
		}
	}

	log.Warn().Str("id", id).Msg("get_memory_optimistic_lock_exhausted")
	if !lastSeenOK {
		return CleanRecord{}, false, nil
	}
	return clean(lastSeen), true, nil
}

// casUpdate re-reads the record, verifies its version still equals
// expectedVersion, and if so writes updated. Returns false (not an error) on
// a version mismatch so the caller can retry (spec §4.5.3 step 3).
func (s *Service) casUpdate(ctx context.Context, id string, expectedVersion int, updated MemoryRecord) (bool, error) {
	current, ok, err := s.readRecord(ctx, id)
	if err != nil {
		return false, err
	}
	if !ok || current.Version != expectedVersion {
		return false, nil
	}
	if err := s.writeRecord(ctx, updated); err != nil {
		return false, err
	}
	return true, nil
}

// UpdateMemory implements spec §4.5.4.
func (s *Service) UpdateMemory(ctx context.Context, id string, content *string, importance *int, tags []string) (CleanRecord, bool, error) {
	log := observability.LoggerWithTrace(ctx)
	r, ok, err := s.readRecord(ctx, id)
	if err != nil {
		return CleanRecord{}, false, err
	}
	if !ok {
		return CleanRecord{}, false, nil
	}

	if content != nil {
		if len([]rune(*content)) > maxContentLength {
			return CleanRecord{}, false, newValidationError("content exceeds 2000 characters")
		}
		r.Content = *content
		vec, err := s.embedder.Embed(ctx, *content, embedclient.TaskDocument)
		if err != nil {
			log.Warn().Err(err).Str("id", id).Msg("update_memory_embedding_failed_keeping_old")
		} else {
			r.Embedding = vec
		}
	}
	if importance != nil {
		r.Importance = clampImportance(*importance)
	}
	if tags != nil {
		r.Tags = tags
	}
	r.LastAccessed = time.Now()
	r.Version++

	if err := s.writeRecord(ctx, r); err != nil {
		return CleanRecord{}, false, err
	}
	return clean(r), true, nil
}

// Forget implements spec §4.5.5: deletes the record without attempting to
// unlink references in peers (dangling ids are tolerated; cleaned by C7).
func (s *Service) Forget(ctx context.Context, id string) (bool, error) {
	deleted, err := s.coll.Delete(ctx, id)
	if err != nil {
		return false, newStoreError(err)
	}
	return deleted, nil
}

// ListMemories implements spec §4.5.6: straight passthrough to find.
func (s *Service) ListMemories(ctx context.Context, tags []string, limit int, sortBy string, offset int) ([]CleanRecord, error) {
	if sortBy == "" {
		sortBy = "createdAt"
	}
	q := repository.Query{
		Tags:           tags,
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
	out := make([]CleanRecord, 0, len(results))
	for _, res := range results {
		r, ok, err := s.readRecord(ctx, res.Record.ID)
		if err != nil || !ok {
			continue
		}
		out = append(out, clean(r))
	}
	return out, nil
}
