package toolserver

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// GetBackgroundStatusArgs takes no parameters; it exists so the handler
// signature matches the go-sdk's typed-args registration shape.
type GetBackgroundStatusArgs struct{}

func (s *Server) handleGetBackgroundStatus(ctx context.Context, req *mcp.CallToolRequest, args GetBackgroundStatusArgs) (*mcp.CallToolResult, any, error) {
	if s.maintainer == nil {
		return textResult("Background maintainer is not configured.")
	}
	st := s.maintainer.Status()
	return textResult(fmt.Sprintf(
		"Running: %v\nMaxOperationsPerRun: %d\nMaxTimePerRun: %s\nEmbeddingBackfill: %v\nImportanceDecay: %v\nOrphanCleanup: %v\nDanglingSweep: %v",
		st.IsRunning, st.MaxOperationsPerRun, st.MaxTimePerRun, st.EnableEmbeddingBackfill,
		st.EnableImportanceDecay, st.EnableOrphanCleanup, st.EnableDanglingSweep))
}
