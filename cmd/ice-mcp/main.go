package main

import (
	"context"
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/server"
	"github.com/ternarybob/arbor"
	arbor_models "github.com/ternarybob/arbor/models"
	"github.com/ternarybob/ice/internal/common"
	"github.com/ternarybob/ice/internal/connectors"
	"github.com/ternarybob/ice/internal/services/attribution"
	"github.com/ternarybob/ice/internal/services/embeddings"
	"github.com/ternarybob/ice/internal/services/entities"
	"github.com/ternarybob/ice/internal/services/events"
	"github.com/ternarybob/ice/internal/services/financial"
	"github.com/ternarybob/ice/internal/services/knowledge"
	"github.com/ternarybob/ice/internal/services/llm"
	"github.com/ternarybob/ice/internal/services/pdf"
	"github.com/ternarybob/ice/internal/services/query"
	"github.com/ternarybob/ice/internal/services/search"
	"github.com/ternarybob/ice/internal/storage"
)

func main() {
	// Load configuration
	configPath := os.Getenv("ICE_CONFIG")
	if configPath == "" {
		configPath = "ice.toml"
	}

	// Loaded without KV replacement: the services that need stored API
	// keys (LLM, connectors) resolve them through storage directly
	config, err := common.LoadFromFile(nil, configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize minimal logger for MCP server (console only, no file output)
	logger := arbor.NewLogger().WithConsoleWriter(arbor_models.WriterConfiguration{
		Type:             arbor_models.LogWriterTypeConsole,
		TimeFormat:       "15:04:05",
		DisableTimestamp: false,
	}).WithLevelFromString("warn") // Minimal logging to avoid cluttering MCP stdio

	// Initialize storage
	storageManager, err := storage.NewStorageManager(logger, config)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize storage")
	}
	defer storageManager.Close()

	// Build the question pipeline. Without a usable LLM key retrieval
	// still works and answers degrade to extractive mode.
	eventService := events.NewService(logger)

	llmService, err := llm.NewLLMService(config, storageManager.KeyValueStorage(), logger)
	if err != nil {
		llmService = nil
		logger.Warn().Err(err).Msg("LLM service unavailable, answers degrade to extractive mode")
	}

	embedder := embeddings.NewService(llmService, &config.Embeddings, logger)
	extractor := entities.NewExtractor(config.Ingestion.Watchlist)

	searchService := search.NewService(
		storageManager.DocumentStorage(),
		storageManager.EntityStorage(),
		extractor,
		&config.Query,
		logger,
	)

	knowledgeService := knowledge.NewService(
		storageManager.DocumentStorage(),
		storageManager.EntityStorage(),
		extractor,
		embedder,
		llmService,
		searchService,
		eventService,
		&config.Query,
		logger,
	)

	attributor := attribution.NewSentenceAttributor(
		embedder,
		attribution.Thresholds{
			Strong:       config.Query.StrongThreshold,
			Moderate:     config.Query.ModerateThreshold,
			Weak:         config.Query.WeakThreshold,
			NumericBonus: config.Query.NumericBonus,
		},
		logger,
	)

	queryService := query.NewProcessor(
		knowledgeService,
		attributor,
		financial.NewService(storageManager.EntityStorage(), logger),
		extractor,
		eventService,
		logger,
	)

	formatter := attribution.NewFormatter(pdf.NewService(logger))

	// Connector registry for the status tool: enabled sources come from
	// config, breaker state is local to this process
	registry := connectors.NewRegistry(context.Background(), config, storageManager.KeyValueStorage(), logger)

	// Create MCP server
	mcpServer := server.NewMCPServer(
		"ice",
		common.GetVersion(),
		server.WithToolCapabilities(true),
	)

	// Register research tools
	mcpServer.AddTool(createResearchQueryTool(), handleResearchQuery(queryService, formatter, logger))
	mcpServer.AddTool(createSearchDocumentsTool(), handleSearchDocuments(searchService, storageManager.DocumentStorage(), logger))
	mcpServer.AddTool(createGetEntityGraphTool(), handleGetEntityGraph(storageManager.EntityStorage(), storageManager.DocumentStorage(), logger))
	mcpServer.AddTool(createIngestStatusTool(), handleIngestStatus(storageManager.RunStorage(), registry, storageManager.DocumentStorage(), logger))

	// Start server (blocks on stdio)
	if err := server.ServeStdio(mcpServer); err != nil {
		logger.Fatal().Err(err).Msg("MCP server failed")
	}
}
