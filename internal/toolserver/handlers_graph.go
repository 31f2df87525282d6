package toolserver

import (
	"context"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/biggs3d/manifold-memory/internal/memoryservice"
)

// GenerateEmbeddingsArgs is the input for generate_embeddings_for_existing
// (spec §4.5.12).
type GenerateEmbeddingsArgs struct {
	BatchSize int `json:"batchSize,omitempty" jsonschema:"description=Sub-batch size, default 10"`
}

func (s *Server) handleGenerateEmbeddings(ctx context.Context, req *mcp.CallToolRequest, args GenerateEmbeddingsArgs) (*mcp.CallToolResult, any, error) {
	defer s.scheduleMaintenance(ctx)

	result, err := s.svc.GenerateEmbeddingsForExisting(ctx, args.BatchSize)
	if err != nil {
		return serviceErrorResult(err)
	}
	return textResult(fmt.Sprintf("Processed %d, updated %d, errors %d", result.Processed, result.Updated, len(result.Errors)))
}

// ConsolidateMemoriesArgs is the input for consolidate_memories (spec §4.5.7).
type ConsolidateMemoriesArgs struct {
	IDs    []string `json:"ids" jsonschema:"required,description=At least 2 memory ids to consolidate"`
	Prompt string   `json:"prompt,omitempty" jsonschema:"description=Optional custom summarization prompt"`
}

func (s *Server) handleConsolidateMemories(ctx context.Context, req *mcp.CallToolRequest, args ConsolidateMemoriesArgs) (*mcp.CallToolResult, any, error) {
	defer s.scheduleMaintenance(ctx)

	if len(args.IDs) < 2 {
		return errorResult("consolidate_memories requires at least 2 ids")
	}

	n, err := s.svc.ConsolidateMemories(ctx, args.IDs, args.Prompt)
	if err != nil {
		return serviceErrorResult(err)
	}
	return textResult(fmt.Sprintf("Consolidated into ID: %s\nImportance: %d\nSources: %v\nContent: %s",
		n.ID, n.Importance, n.ConsolidatedFrom, n.Content))
}

// GetRelatedMemoriesArgs is the input for get_related_memories (spec §4.5.8).
type GetRelatedMemoriesArgs struct {
	ID                  string `json:"id" jsonschema:"required,description=Memory id"`
	IncludeConsolidated bool   `json:"includeConsolidated,omitempty" jsonschema:"description=Include consolidatedFrom/consolidatedInto sections"`
}

func (s *Server) handleGetRelatedMemories(ctx context.Context, req *mcp.CallToolRequest, args GetRelatedMemoriesArgs) (*mcp.CallToolResult, any, error) {
	defer s.scheduleMaintenance(ctx)

	if args.ID == "" {
		return errorResult("id must not be empty")
	}
	related, ok, err := s.svc.GetRelatedMemories(ctx, args.ID, args.IncludeConsolidated)
	if err != nil {
		return serviceErrorResult(err)
	}
	if !ok {
		return errorResult(fmt.Sprintf("memory not found: %s", args.ID))
	}
	return textResult(formatRelatedMemories(related))
}

func formatRelatedMemories(r memoryservice.RelatedMemories) string {
	var b strings.Builder
	if len(r.ConsolidatedFrom) > 0 {
		b.WriteString("Consolidated From:\n")
		for _, rec := range r.ConsolidatedFrom {
			fmt.Fprintf(&b, "- %s: %s\n", rec.ID, rec.Content)
		}
	}
	if len(r.ConsolidatedInto) > 0 {
		b.WriteString("Consolidated Into:\n")
		for _, rec := range r.ConsolidatedInto {
			fmt.Fprintf(&b, "- %s: %s\n", rec.ID, rec.Content)
		}
	}
	if len(r.Similar) > 0 {
		b.WriteString("Similar:\n")
		for _, rec := range r.Similar {
			if rec.Similarity != nil {
				fmt.Fprintf(&b, "- %s (%.1f%%): %s\n", rec.ID, *rec.Similarity*100, rec.Content)
			} else {
				fmt.Fprintf(&b, "- %s: %s\n", rec.ID, rec.Content)
			}
		}
	}
	if len(r.RelatedByTags) > 0 {
		b.WriteString("Related By Tags:\n")
		for _, rec := range r.RelatedByTags {
			fmt.Fprintf(&b, "- %s: %s\n", rec.ID, rec.Content)
		}
	}
	if b.Len() == 0 {
		return "No related memories found."
	}
	return b.String()
}

// FindSimilarMemoriesWithScoresArgs is the input for
// find_similar_memories_with_scores (spec §4.5.9).
type FindSimilarMemoriesWithScoresArgs struct {
	ID        string  `json:"id" jsonschema:"required,description=Source memory id"`
	Threshold float64 `json:"threshold,omitempty" jsonschema:"description=Minimum similarity, default 0.7"`
	Limit     int     `json:"limit,omitempty" jsonschema:"description=Maximum number of results, default 5"`
}

func (s *Server) handleFindSimilarMemoriesWithScores(ctx context.Context, req *mcp.CallToolRequest, args FindSimilarMemoriesWithScoresArgs) (*mcp.CallToolResult, any, error) {
	defer s.scheduleMaintenance(ctx)

	if args.ID == "" {
		return errorResult("id must not be empty")
	}
	threshold := clampThreshold(args.Threshold, 0.7)
	limit := args.Limit
	if limit <= 0 {
		limit = 5
	}

	results, err := s.svc.FindSimilarMemoriesWithScores(ctx, args.ID, threshold, limit)
	if err != nil {
		return serviceErrorResult(err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d similar memories.\n", len(results))
	for _, r := range results {
		sim := 0.0
		if r.Similarity != nil {
			sim = *r.Similarity
		}
		fmt.Fprintf(&b, "- %s (%.1f%%): %s\n", r.ID, sim*100, r.Content)
	}
	return textResult(b.String())
}

// FindSimilarMemoriesArgs is the input for find_similar_memories, the
// scoreless sibling of find_similar_memories_with_scores (spec §4.8's tool
// table lists both; this one omits the similarity percentages from its
// output).
type FindSimilarMemoriesArgs struct {
	ID        string  `json:"id" jsonschema:"required,description=Source memory id"`
	Threshold float64 `json:"threshold,omitempty" jsonschema:"description=Minimum similarity, default 0.7"`
	Limit     int     `json:"limit,omitempty" jsonschema:"description=Maximum number of results, default 5"`
}

func (s *Server) handleFindSimilarMemories(ctx context.Context, req *mcp.CallToolRequest, args FindSimilarMemoriesArgs) (*mcp.CallToolResult, any, error) {
	defer s.scheduleMaintenance(ctx)

	if args.ID == "" {
		return errorResult("id must not be empty")
	}
	threshold := clampThreshold(args.Threshold, 0.7)
	limit := args.Limit
	if limit <= 0 {
		limit = 5
	}

	results, err := s.svc.FindSimilarMemoriesWithScores(ctx, args.ID, threshold, limit)
	if err != nil {
		return serviceErrorResult(err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d similar memories.\n", len(results))
	for _, r := range results {
		fmt.Fprintf(&b, "- %s: %s\n", r.ID, r.Content)
	}
	return textResult(b.String())
}

// LinkMemoriesArgs is the input for link_memories and unlink_memories.
type LinkMemoriesArgs struct {
	A string `json:"a" jsonschema:"required,description=First memory id"`
	B string `json:"b" jsonschema:"required,description=Second memory id"`
}

func (s *Server) handleLinkMemories(ctx context.Context, req *mcp.CallToolRequest, args LinkMemoriesArgs) (*mcp.CallToolResult, any, error) {
	defer s.scheduleMaintenance(ctx)

	if args.A == "" || args.B == "" {
		return errorResult("both a and b must be provided")
	}
	if err := s.svc.LinkMemories(ctx, args.A, args.B); err != nil {
		return serviceErrorResult(err)
	}
	return textResult(fmt.Sprintf("Linked %s and %s.", args.A, args.B))
}

func (s *Server) handleUnlinkMemories(ctx context.Context, req *mcp.CallToolRequest, args LinkMemoriesArgs) (*mcp.CallToolResult, any, error) {
	defer s.scheduleMaintenance(ctx)

	if args.A == "" || args.B == "" {
		return errorResult("both a and b must be provided")
	}
	ok, err := s.svc.UnlinkMemories(ctx, args.A, args.B)
	if err != nil {
		return serviceErrorResult(err)
	}
	if !ok {
		return errorResult(fmt.Sprintf("could not unlink %s and %s", args.A, args.B))
	}
	return textResult(fmt.Sprintf("Unlinked %s and %s.", args.A, args.B))
}

// AutoLinkSimilarMemoriesArgs is the input for auto_link_similar_memories
// (spec §4.5.11).
type AutoLinkSimilarMemoriesArgs struct {
	Threshold    float64 `json:"threshold,omitempty" jsonschema:"description=Minimum similarity, default 0.7"`
	MaxPerMemory int     `json:"maxPerMemory,omitempty" jsonschema:"description=Maximum related links per memory, default 5"`
}

func (s *Server) handleAutoLinkSimilarMemories(ctx context.Context, req *mcp.CallToolRequest, args AutoLinkSimilarMemoriesArgs) (*mcp.CallToolResult, any, error) {
	defer s.scheduleMaintenance(ctx)

	threshold := clampThreshold(args.Threshold, 0.7)
	maxPerMemory := args.MaxPerMemory
	if maxPerMemory <= 0 {
		maxPerMemory = 5
	}

	result, err := s.svc.AutoLinkSimilarMemories(ctx, threshold, maxPerMemory)
	if err != nil {
		return serviceErrorResult(err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Linked %d pairs.\n", result.Linked)
	if len(result.Errors) > 0 {
		fmt.Fprintf(&b, "Errors (%d):\n", len(result.Errors))
		max := len(result.Errors)
		if max > 5 {
			max = 5
		}
		for _, e := range result.Errors[:max] {
			fmt.Fprintf(&b, "- %s\n", e)
		}
	}
	return textResult(b.String())
}
