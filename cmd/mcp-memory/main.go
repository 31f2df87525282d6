// Command mcp-memory runs the persistent memory service as an MCP tool
// server over stdio.
//
// Grounded on cmd/mcp-manifold/main.go's signal/error-channel graceful
// shutdown shape, retargeted from mcp-golang's stdio transport to
// github.com/modelcontextprotocol/go-sdk/mcp (see DESIGN.md's MCP
// transport decision).
package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog/log"

	"github.com/biggs3d/manifold-memory/internal/composer"
	"github.com/biggs3d/manifold-memory/internal/config"
	"github.com/biggs3d/manifold-memory/internal/embedclient"
	"github.com/biggs3d/manifold-memory/internal/maintainer"
	"github.com/biggs3d/manifold-memory/internal/memoryservice"
	"github.com/biggs3d/manifold-memory/internal/observability"
	"github.com/biggs3d/manifold-memory/internal/store"
	"github.com/biggs3d/manifold-memory/internal/toolserver"
)

const serverVersion = "0.1.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	observability.InitLogger(cfg.LogPath, cfg.LogLevel)
	log.Info().Msg("starting mcp-memory server")
	if raw, err := json.Marshal(cfg); err == nil {
		log.Debug().RawJSON("config", observability.RedactJSON(raw)).Msg("loaded configuration")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	coll, err := store.New(ctx, cfg.DatabaseType, cfg.DatabaseJSONFileDirectory, cfg.DatabasePostgresDSN, "memories")
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open store")
	}
	defer coll.Close()

	embedder, err := embedclient.New(ctx, cfg.GeminiAPIKey, cfg.EmbeddingModel)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to construct embedding client")
	}

	summarizer, err := memoryservice.NewGenaiSummarizer(ctx, cfg.GeminiAPIKey, cfg.EmbeddingModel)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to construct summarization client")
	}

	svc := memoryservice.New(coll, embedder, summarizer).WithConfig(memoryservice.Config{
		SimilarityThreshold: cfg.SimilarityThreshold,
		EmbeddingBatchSize:  cfg.EmbeddingBatchSize,
	})

	bg := maintainer.New(svc, maintainer.Config{
		MaxOperationsPerRun:        cfg.BGMaxOperations,
		MaxTimePerRun:              time.Duration(cfg.BGMaxTimeMs) * time.Millisecond,
		EnableEmbeddingBackfill:    cfg.BGEnableEmbeddingBackfill,
		EnableImportanceDecay:      cfg.BGEnableImportanceDecay,
		EnableOrphanCleanup:        cfg.BGEnableOrphanCleanup,
		EnableDanglingSweep:        cfg.BGEnableDanglingSweep,
		EmbeddingBackfillBatchSize: cfg.EmbeddingBatchSize,
		OrphanCleanupMaxAge:        time.Hour,
	})

	composerCfg := composer.Config{
		TokenLimit:               cfg.MCPTokenLimit,
		TokenBuffer:              cfg.MCPTokenBuffer,
		FullMemoryTokenThreshold: cfg.MCPFullMemoryTokenThreshold,
	}

	facade := toolserver.New(svc, bg, composerCfg)

	server := mcp.NewServer(&mcp.Implementation{Name: "mcp-memory", Version: serverVersion}, nil)
	facade.Register(server)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		errChan <- server.Run(ctx, &mcp.StdioTransport{})
	}()

	select {
	case err := <-errChan:
		if err != nil {
			log.Error().Err(err).Msg("mcp server exited with error")
		}
	case sig := <-sigChan:
		log.Info().Str("signal", sig.String()).Msg("received termination signal, shutting down")
	}

	cancel()
	bg.Dispose(time.Duration(cfg.BGMaxTimeMs) * time.Millisecond)
	log.Info().Msg("mcp-memory server stopped")
}
