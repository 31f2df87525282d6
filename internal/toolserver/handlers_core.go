package toolserver

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/biggs3d/manifold-memory/internal/composer"
	"github.com/biggs3d/manifold-memory/internal/memoryservice"
)

// RememberArgs is the input for the remember tool (spec §4.5.1 / §4.8).
type RememberArgs struct {
	Content    string   `json:"content" jsonschema:"required,description=Text content of the memory, at most 2000 characters"`
	Importance int      `json:"importance,omitempty" jsonschema:"description=Importance from 0 to 10, clamped"`
	Tags       []string `json:"tags,omitempty" jsonschema:"description=Tags to associate with this memory"`
}

func (s *Server) handleRemember(ctx context.Context, req *mcp.CallToolRequest, args RememberArgs) (*mcp.CallToolResult, any, error) {
	defer s.scheduleMaintenance(ctx)

	if len([]rune(args.Content)) == 0 {
		return errorResult("content must not be empty")
	}
	if len([]rune(args.Content)) > 2000 {
		return errorResult("content exceeds 2000 characters")
	}

	r, err := s.svc.Remember(ctx, args.Content, args.Importance, args.Tags)
	if err != nil {
		return serviceErrorResult(err)
	}
	return textResult(fmt.Sprintf("Memory stored with ID: %s", r.ID))
}

// RecallArgs is the input for the recall tool (spec §4.5.2 / §4.8).
type RecallArgs struct {
	Query      string   `json:"query" jsonschema:"required,description=Query text to search for"`
	Tags       []string `json:"tags,omitempty" jsonschema:"description=Restrict to memories containing every listed tag"`
	Limit      int      `json:"limit,omitempty" jsonschema:"description=Maximum number of results, default 10"`
	SearchType string   `json:"searchType,omitempty" jsonschema:"description=One of text, semantic, hybrid; default text"`
}

func (s *Server) handleRecall(ctx context.Context, req *mcp.CallToolRequest, args RecallArgs) (*mcp.CallToolResult, any, error) {
	defer s.scheduleMaintenance(ctx)

	limit := args.Limit
	if limit == 0 {
		limit = 10
	}
	if limit < 0 {
		return errorResult("limit must not be negative")
	}

	searchType := memoryservice.RecallSearchType(args.SearchType)
	switch searchType {
	case "", memoryservice.RecallText, memoryservice.RecallSemantic, memoryservice.RecallHybrid:
	default:
		return errorResult("searchType must be one of text, semantic, hybrid")
	}
	if searchType == "" {
		searchType = memoryservice.RecallText
	}

	results, err := s.svc.Recall(ctx, args.Query, args.Tags, limit, searchType)
	if err != nil {
		return serviceErrorResult(err)
	}

	composed := composer.Compose(results, s.composerCfg)
	return textResult(composer.FormatDigest(composed))
}

// GetMemoryArgs is the input for the get_memory tool.
type GetMemoryArgs struct {
	ID string `json:"id" jsonschema:"required,description=Memory id"`
}

func (s *Server) handleGetMemory(ctx context.Context, req *mcp.CallToolRequest, args GetMemoryArgs) (*mcp.CallToolResult, any, error) {
	defer s.scheduleMaintenance(ctx)

	if args.ID == "" {
		return errorResult("id must not be empty")
	}
	r, ok, err := s.svc.GetMemory(ctx, args.ID)
	if err != nil {
		return serviceErrorResult(err)
	}
	if !ok {
		return errorResult(fmt.Sprintf("memory not found: %s", args.ID))
	}
	return textResult(formatRecordCard(r))
}

// ListMemoriesArgs is the input for the list_memories tool (spec §4.5.6).
type ListMemoriesArgs struct {
	Tags   []string `json:"tags,omitempty" jsonschema:"description=Restrict to memories containing every listed tag"`
	Limit  int      `json:"limit,omitempty" jsonschema:"description=Maximum number of results, default 50"`
	SortBy string   `json:"sortBy,omitempty" jsonschema:"description=One of createdAt, importance, lastAccessed; default createdAt"`
	Offset int      `json:"offset,omitempty" jsonschema:"description=Number of results to skip"`
}

func (s *Server) handleListMemories(ctx context.Context, req *mcp.CallToolRequest, args ListMemoriesArgs) (*mcp.CallToolResult, any, error) {
	defer s.scheduleMaintenance(ctx)

	limit := args.Limit
	if limit == 0 {
		limit = 50
	}
	if limit < 0 || args.Offset < 0 {
		return errorResult("limit and offset must not be negative")
	}

	records, err := s.svc.ListMemories(ctx, args.Tags, limit, args.SortBy, args.Offset)
	if err != nil {
		return serviceErrorResult(err)
	}

	candidates := make([]memoryservice.CleanSearchResult, len(records))
	for i, r := range records {
		candidates[i] = memoryservice.CleanSearchResult{CleanRecord: r}
	}
	composed := composer.Compose(candidates, s.composerCfg)
	return textResult(composer.FormatDigest(composed))
}

// UpdateMemoryArgs is the input for the update_memory tool (spec §4.5.4).
type UpdateMemoryArgs struct {
	ID         string   `json:"id" jsonschema:"required,description=Memory id"`
	Content    *string  `json:"content,omitempty" jsonschema:"description=New content, at most 2000 characters"`
	Importance *int     `json:"importance,omitempty" jsonschema:"description=New importance from 0 to 10, clamped"`
	Tags       []string `json:"tags,omitempty" jsonschema:"description=Replacement tag set, overwrites existing tags"`
}

func (s *Server) handleUpdateMemory(ctx context.Context, req *mcp.CallToolRequest, args UpdateMemoryArgs) (*mcp.CallToolResult, any, error) {
	defer s.scheduleMaintenance(ctx)

	if args.ID == "" {
		return errorResult("id must not be empty")
	}
	if args.Content != nil && len([]rune(*args.Content)) > 2000 {
		return errorResult("content exceeds 2000 characters")
	}

	r, ok, err := s.svc.UpdateMemory(ctx, args.ID, args.Content, args.Importance, args.Tags)
	if err != nil {
		return serviceErrorResult(err)
	}
	if !ok {
		return errorResult(fmt.Sprintf("memory not found: %s", args.ID))
	}
	return textResult(formatRecordCard(r))
}

// ForgetArgs is the input for the forget tool.
type ForgetArgs struct {
	ID string `json:"id" jsonschema:"required,description=Memory id"`
}

func (s *Server) handleForget(ctx context.Context, req *mcp.CallToolRequest, args ForgetArgs) (*mcp.CallToolResult, any, error) {
	defer s.scheduleMaintenance(ctx)

	if args.ID == "" {
		return errorResult("id must not be empty")
	}
	deleted, err := s.svc.Forget(ctx, args.ID)
	if err != nil {
		return serviceErrorResult(err)
	}
	if !deleted {
		return errorResult(fmt.Sprintf("memory not found: %s", args.ID))
	}
	return textResult(fmt.Sprintf("Memory %s forgotten.", args.ID))
}
