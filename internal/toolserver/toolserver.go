// Package toolserver maps external MCP tool names to memoryservice methods
// (C8 in SPEC_FULL.md): validates inputs at the boundary, formats recall/
// list_memories output via internal/composer, and schedules the background
// maintainer at the end of every tool call except get_background_status.
// Scheduling does not depend on the outcome: calls that fail validation or
// return a service error schedule a run as well.
//
// Grounded on the other_examples romanroom handlers.go's mcp.AddTool /
// typed-args-per-tool registration shape (itself grounded on
// github.com/modelcontextprotocol/go-sdk/mcp, the teacher's actual
// go.mod dependency — see DESIGN.md's MCP transport decision) and the
// teacher's mcp.go per-tool typed jsonschema-tagged args struct idiom.
package toolserver

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/biggs3d/manifold-memory/internal/composer"
	"github.com/biggs3d/manifold-memory/internal/maintainer"
	"github.com/biggs3d/manifold-memory/internal/memoryservice"
)

// Server wires a memoryservice.Service, a response composer configuration,
// and a background maintainer behind the MCP tool surface of spec §4.8.
type Server struct {
	svc         *memoryservice.Service
	maintainer  *maintainer.Maintainer
	composerCfg composer.Config
}

// New constructs a Server.
func New(svc *memoryservice.Service, m *maintainer.Maintainer, composerCfg composer.Config) *Server {
	return &Server{svc: svc, maintainer: m, composerCfg: composerCfg}
}

// Register attaches every tool in spec §4.8's table to srv.
func (s *Server) Register(srv *mcp.Server) {
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "remember",
		Description: "Store a new memory with content, importance (0-10), and optional tags.",
	}, s.handleRemember)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "recall",
		Description: "Search memories by text, semantic similarity, or a hybrid of both.",
	}, s.handleRecall)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "get_memory",
		Description: "Fetch a single memory by id, bumping its access count.",
	}, s.handleGetMemory)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "list_memories",
		Description: "List memories, optionally filtered by tags, paginated and sorted.",
	}, s.handleListMemories)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "update_memory",
		Description: "Update a memory's content, importance, and/or tags.",
	}, s.handleUpdateMemory)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "forget",
		Description: "Permanently delete a memory by id.",
	}, s.handleForget)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "generate_embeddings_for_existing",
		Description: "Backfill embeddings for memories that lack one.",
	}, s.handleGenerateEmbeddings)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "consolidate_memories",
		Description: "Merge two or more memories into one consolidated memory.",
	}, s.handleConsolidateMemories)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "get_related_memories",
		Description: "List the consolidation, similarity, and tag relationships of a memory.",
	}, s.handleGetRelatedMemories)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "find_similar_memories",
		Description: "Find memories semantically similar to a given memory.",
	}, s.handleFindSimilarMemories)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "find_similar_memories_with_scores",
		Description: "Find memories semantically similar to a given memory, with similarity scores.",
	}, s.handleFindSimilarMemoriesWithScores)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "link_memories",
		Description: "Create a bidirectional link between two memories.",
	}, s.handleLinkMemories)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "unlink_memories",
		Description: "Remove a bidirectional link between two memories.",
	}, s.handleUnlinkMemories)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "auto_link_similar_memories",
		Description: "Automatically link memories that are semantically similar above a threshold.",
	}, s.handleAutoLinkSimilarMemories)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "get_background_status",
		Description: "Report the background maintainer's current status.",
	}, s.handleGetBackgroundStatus)
}

func textResult(text string) (*mcp.CallToolResult, any, error) {
	return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: text}}}, nil, nil
}

func errorResult(message string) (*mcp.CallToolResult, any, error) {
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{&mcp.TextContent{Text: message}},
	}, nil, nil
}

// serviceErrorResult renders a memoryservice error as a tool error response
// per spec §7's "convert all thrown errors into isError: true responses
// with a human-readable message" policy.
func serviceErrorResult(err error) (*mcp.CallToolResult, any, error) {
	return errorResult(err.Error())
}

func (s *Server) scheduleMaintenance(ctx context.Context) {
	if s.maintainer != nil {
		s.maintainer.Schedule(ctx)
	}
}

func clampThreshold(v, def float64) float64 {
	if v <= 0 || v > 1 {
		return def
	}
	return v
}

func formatRecordCard(r memoryservice.CleanRecord) string {
	return fmt.Sprintf("ID: %s\nImportance: %d\nTags: %v\nContent: %s\nAccessCount: %d\nCreatedAt: %s\n",
		r.ID, r.Importance, r.Tags, r.Content, r.AccessCount, r.CreatedAt.Format("2006-01-02T15:04:05Z07:00"))
}
