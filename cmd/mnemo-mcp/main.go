// cmd/mnemo-mcp is the entry point for the Mnemo MCP (Model Context Protocol)
// server. It wires the four memory tiers through the orchestrator and serves
// memory tools over line-delimited JSON-RPC 2.0 on stdio.
//
// Startup sequence:
//  1. Load configuration from environment variables (and optional YAML file).
//  2. Build the embedder (Ollama, or the local hash embedder as fallback).
//  3. Open the long-term vector backend (chromem or PostgreSQL) and the
//     episodic SQLite database.
//  4. Assemble the orchestrator and start the background maintenance ticker.
//  5. Serve JSON-RPC 2.0 requests from stdin, writing responses to stdout.
//
// CRITICAL: ALL logging MUST go to stderr. Any bytes written to stdout that
// are not valid JSON-RPC 2.0 response frames will corrupt the protocol.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/mnemolabs/mnemo/internal/api/mcp"
	"github.com/mnemolabs/mnemo/internal/concepts"
	"github.com/mnemolabs/mnemo/internal/config"
	"github.com/mnemolabs/mnemo/internal/episodic"
	"github.com/mnemolabs/mnemo/internal/llm"
	"github.com/mnemolabs/mnemo/internal/longterm"
	"github.com/mnemolabs/mnemo/internal/orchestrator"
	"github.com/mnemolabs/mnemo/internal/stm"
	"github.com/mnemolabs/mnemo/internal/storage"
	chromemstore "github.com/mnemolabs/mnemo/internal/storage/chromem"
	"github.com/mnemolabs/mnemo/internal/storage/postgres"
)

// maintenanceInterval is how often decay, pruning and retention sweeps run.
const maintenanceInterval = 1 * time.Hour

func main() {
	// Redirect the default logger to stderr so that any incidental log calls
	// (including from imported packages) never pollute the stdout JSON-RPC
	// stream.
	log.SetOutput(os.Stderr)
	log.SetPrefix("mnemo-mcp: ")
	log.SetFlags(log.LstdFlags)

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	if err := os.MkdirAll(cfg.Storage.DataPath, 0o700); err != nil {
		log.Fatalf("failed to create data directory %q: %v", cfg.Storage.DataPath, err)
	}

	// Root context cancelled on SIGINT / SIGTERM.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("received shutdown signal")
		cancel()
	}()

	embedder, responder := buildLLM(ctx, cfg)

	index, err := buildVectorIndex(cfg)
	if err != nil {
		log.Fatalf("failed to open vector backend: %v", err)
	}

	durable := longterm.NewStore(index, embedder)
	if err := durable.Initialize(ctx); err != nil {
		log.Fatalf("failed to initialize long-term store: %v", err)
	}
	defer durable.Close()

	eventsPath := filepath.Join(cfg.Storage.DataPath, "events.db")
	events, err := episodic.NewStore(eventsPath, embedder)
	if err != nil {
		log.Fatalf("failed to open episodic store at %q: %v", eventsPath, err)
	}
	defer events.Close()

	graph := concepts.NewGraph(concepts.Config{
		MaxDepth:       cfg.Concepts.MaxDepth,
		PruneThreshold: cfg.Concepts.PruneThreshold,
	}, embedder)

	buffer := stm.NewBuffer(stm.Config{Capacity: cfg.ShortTerm.Capacity})

	orch, err := orchestrator.New(orchestrator.Config{
		RetrievalTimeout:      time.Duration(cfg.Orchestrator.RetrievalTimeoutSeconds) * time.Second,
		EpisodicMinSimilarity: cfg.Episodic.MinSimilarity,
		DurableLimit:          cfg.LongTerm.RetrievalLimit,
		PromotionThreshold:    cfg.LongTerm.ImportanceThreshold,
		EventThreshold:        cfg.Orchestrator.EpisodicThreshold,
		ConceptPruneThreshold: cfg.Concepts.PruneThreshold,
		EpisodicRetention:     time.Duration(cfg.Episodic.RetentionDays) * 24 * time.Hour,
		DurableRetention:      time.Duration(cfg.LongTerm.RetentionDays) * 24 * time.Hour,
	}, orchestrator.Deps{
		Recent:    buffer,
		Concepts:  graph,
		Episodes:  events,
		Durable:   durable,
		Responder: responder,
	})
	if err != nil {
		log.Fatalf("failed to build orchestrator: %v", err)
	}

	go runMaintenance(ctx, orch)

	server := mcp.NewServer(orch)
	transport := mcp.NewStdioTransport(server, os.Stdin, os.Stdout)

	log.Printf("serving MCP over stdio (backend=%s, embedder=%s)",
		cfg.Storage.Engine, embedder.GetModel())
	if err := transport.Serve(ctx); err != nil && err != context.Canceled {
		log.Fatalf("transport error: %v", err)
	}
	log.Println("shutdown complete")
}

// buildLLM returns the embedder and, when Ollama is reachable, a responder.
// An unreachable Ollama degrades to the deterministic local embedder so the
// server still starts; retrieval quality suffers but nothing breaks.
func buildLLM(ctx context.Context, cfg *config.Config) (llm.EmbeddingGenerator, llm.TextGenerator) {
	if cfg.LLM.Provider == "local" {
		return llm.NewLocalEmbedder(llm.DefaultLocalDimension), nil
	}

	client := llm.NewOllamaClient(llm.OllamaConfig{
		BaseURL:         cfg.LLM.OllamaURL,
		EmbeddingModel:  cfg.LLM.EmbeddingModel,
		CompletionModel: cfg.LLM.CompletionModel,
		Timeout:         time.Duration(cfg.LLM.TimeoutSeconds) * time.Second,
		EmbedRatePerSec: cfg.LLM.EmbedRatePerSec,
	})

	healthCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.HealthCheck(healthCtx); err != nil {
		log.Printf("ollama unreachable at %s (%v), falling back to local embedder", cfg.LLM.OllamaURL, err)
		return llm.NewLocalEmbedder(llm.DefaultLocalDimension), nil
	}
	return client, client
}

func buildVectorIndex(cfg *config.Config) (storage.VectorIndex, error) {
	switch cfg.Storage.Engine {
	case "postgres":
		return postgres.NewIndex(cfg.Storage.PostgresDSN)
	default:
		return chromemstore.NewIndex(), nil
	}
}

// runMaintenance sweeps the tiers on a fixed interval until ctx is cancelled.
func runMaintenance(ctx context.Context, orch *orchestrator.Orchestrator) {
	ticker := time.NewTicker(maintenanceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			report := orch.RunMaintenance(ctx)
			log.Printf("maintenance: pruned %d concepts, expired %d events, %d interactions",
				report.PrunedConcepts, report.ExpiredEvents, report.ExpiredInteractions)
		}
	}
}
