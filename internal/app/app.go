// -----------------------------------------------------------------------
// Application Container - service wiring for the research pipeline
// Opens storage, resolves stored API keys into the runtime config, and
// builds every pipeline service in dependency order. Owns shutdown in
// reverse order.
// -----------------------------------------------------------------------

package app

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/ice/internal/common"
	"github.com/ternarybob/ice/internal/connectors"
	"github.com/ternarybob/ice/internal/handlers"
	"github.com/ternarybob/ice/internal/interfaces"
	"github.com/ternarybob/ice/internal/services/attribution"
	"github.com/ternarybob/ice/internal/services/email"
	"github.com/ternarybob/ice/internal/services/embeddings"
	"github.com/ternarybob/ice/internal/services/entities"
	"github.com/ternarybob/ice/internal/services/events"
	"github.com/ternarybob/ice/internal/services/financial"
	"github.com/ternarybob/ice/internal/services/ingestion"
	"github.com/ternarybob/ice/internal/services/knowledge"
	"github.com/ternarybob/ice/internal/services/kv"
	"github.com/ternarybob/ice/internal/services/llm"
	"github.com/ternarybob/ice/internal/services/mailer"
	"github.com/ternarybob/ice/internal/services/pdf"
	"github.com/ternarybob/ice/internal/services/query"
	"github.com/ternarybob/ice/internal/services/scheduler"
	"github.com/ternarybob/ice/internal/services/search"
	"github.com/ternarybob/ice/internal/services/validation"
	"github.com/ternarybob/ice/internal/storage"
)

// App holds all application components and dependencies
type App struct {
	Config         *common.Config
	Logger         arbor.ILogger
	ctx            context.Context
	cancelCtx      context.CancelFunc
	StorageManager interfaces.StorageManager

	// Knowledge pipeline
	EventService      interfaces.EventService
	LLMService        interfaces.LLMService
	EmbeddingService  interfaces.EmbeddingService
	Coordinator       *embeddings.Coordinator
	Extractor         *entities.Extractor
	SearchService     interfaces.SearchService
	KnowledgeService  interfaces.KnowledgeService
	QueryService      interfaces.QueryService
	FinancialService  interfaces.FinancialService
	ValidationService interfaces.ValidationService
	PDFService        interfaces.PDFService

	// Ingestion and delivery
	Registry         *connectors.Registry
	IngestionService interfaces.IngestionService
	EmailService     interfaces.EmailService
	MailerService    *mailer.Service
	SchedulerService interfaces.SchedulerService

	// Settings service (key/value storage)
	KVService *kv.Service

	// HTTP handlers
	APIHandler      *handlers.APIHandler
	QueryHandler    *handlers.QueryHandler
	DocumentHandler *handlers.DocumentHandler
	IngestHandler   *handlers.IngestHandler
	EntityHandler   *handlers.EntityHandler
	StatusHandler   *handlers.StatusHandler
	JobsHandler     *handlers.JobsHandler
	MailerHandler   *handlers.MailerHandler
	KVHandler       *handlers.KVHandler
	WSHandler       *handlers.WebSocketHandler
	LogStreamer     *handlers.LogStreamer
}

// New initializes the application with all dependencies
func New(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	ctx, cancel := context.WithCancel(context.Background())

	app := &App{
		Config:    cfg,
		Logger:    logger,
		ctx:       ctx,
		cancelCtx: cancel,
	}

	// Initialize database
	if err := app.initDatabase(); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	// Event service comes first so the websocket handler is subscribed
	// before any pipeline can publish.
	app.EventService = events.NewService(app.Logger)
	app.WSHandler = handlers.NewWebSocketHandler(app.EventService, app.Logger, &app.Config.WebSocket)

	// Server log lines ride the same websocket as pipeline events.
	// Arbor batches onto the context channel, the streamer relays.
	app.LogStreamer = handlers.NewLogStreamer(app.WSHandler, app.Logger, &app.Config.WebSocket)
	if err := app.LogStreamer.Start(); err != nil {
		app.Close()
		return nil, fmt.Errorf("failed to start log streamer: %w", err)
	}
	app.Logger.SetChannel("context", app.LogStreamer.GetChannel())

	if err := app.initServices(); err != nil {
		app.Close()
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	if err := app.initScheduler(); err != nil {
		app.Close()
		return nil, fmt.Errorf("failed to initialize scheduler: %w", err)
	}

	app.initHandlers()

	return app, nil
}

// initDatabase opens Badger storage and resolves stored keys into the
// runtime config.
func (a *App) initDatabase() error {
	storageManager, err := storage.NewStorageManager(a.Logger, a.Config)
	if err != nil {
		return fmt.Errorf("failed to create storage manager: %w", err)
	}

	a.StorageManager = storageManager
	a.Logger.Debug().
		Str("storage", "badger").
		Str("path", a.Config.Storage.Badger.Path).
		Msg("Storage layer initialized")

	// Import key files before config replacement so {key-name}
	// references can resolve against the freshly loaded pairs.
	if err := a.StorageManager.LoadKeysFromFiles(context.Background(), a.Config.Keys.Dir); err != nil {
		// Log warning but don't fail startup (consistent with other loaders)
		a.Logger.Warn().Err(err).Msg("Failed to load key files")
	}

	// .env pairs take precedence over key files
	if err := a.StorageManager.LoadEnvFile(context.Background(), ".env"); err != nil {
		a.Logger.Warn().Err(err).Msg("Failed to load .env file")
	}

	// Phase 2: perform {key-name} replacement in config now that the
	// store is populated. Must happen before the LLM service and the
	// connector registry read their keys.
	ctx := context.Background()
	kvMap, err := a.StorageManager.KeyValueStorage().GetAll(ctx)
	if err != nil {
		a.Logger.Warn().Err(err).Msg("Failed to fetch KV map for config replacement, skipping replacement")
	} else if len(kvMap) > 0 {
		if err := common.ReplaceInStruct(a.Config, kvMap, a.Logger); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to replace key references in config")
		} else {
			a.Logger.Debug().Int("keys", len(kvMap)).Msg("Applied key/value replacements to config")
		}
	}

	return nil
}

// initServices initializes all business services in dependency order.
//
// PIPELINE ARCHITECTURE:
// 1. LLM + embeddings - generation and vectors, degrade when keyless
// 2. Knowledge layer - enhancement, chunking, retrieval, synthesis
// 3. Query cascade - retrieval, sentence attribution, calculations
// 4. Connectors + ingestion - vendor fetch, validation, storage
// 5. Delivery - IMAP sync, digest mailer
func (a *App) initServices() error {
	var err error

	// A missing or invalid key disables generation. Retrieval still
	// works, answers degrade to extractive mode.
	a.LLMService, err = llm.NewLLMService(a.Config, a.StorageManager.KeyValueStorage(), a.Logger)
	if err != nil {
		a.LLMService = nil // Explicitly set to nil on error
		a.Logger.Warn().Err(err).Msg("LLM service unavailable, answers degrade to extractive mode")
	}

	a.EmbeddingService = embeddings.NewService(a.LLMService, &a.Config.Embeddings, a.Logger)

	a.Extractor = entities.NewExtractor(a.Config.Ingestion.Watchlist)

	a.SearchService = search.NewService(
		a.StorageManager.DocumentStorage(),
		a.StorageManager.EntityStorage(),
		a.Extractor,
		&a.Config.Query,
		a.Logger,
	)

	a.KnowledgeService = knowledge.NewService(
		a.StorageManager.DocumentStorage(),
		a.StorageManager.EntityStorage(),
		a.Extractor,
		a.EmbeddingService,
		a.LLMService,
		a.SearchService,
		a.EventService,
		&a.Config.Query,
		a.Logger,
	)

	attributor := attribution.NewSentenceAttributor(
		a.EmbeddingService,
		attribution.Thresholds{
			Strong:       a.Config.Query.StrongThreshold,
			Moderate:     a.Config.Query.ModerateThreshold,
			Weak:         a.Config.Query.WeakThreshold,
			NumericBonus: a.Config.Query.NumericBonus,
		},
		a.Logger,
	)

	a.FinancialService = financial.NewService(a.StorageManager.EntityStorage(), a.Logger)

	a.QueryService = query.NewProcessor(
		a.KnowledgeService,
		attributor,
		a.FinancialService,
		a.Extractor,
		a.EventService,
		a.Logger,
	)

	a.ValidationService = validation.NewService(
		a.StorageManager.DedupeStorage(),
		&a.Config.Validation,
		a.Logger,
	)

	a.PDFService = pdf.NewService(a.Logger)

	a.Registry = connectors.NewRegistry(a.ctx, a.Config, a.StorageManager.KeyValueStorage(), a.Logger)
	a.Logger.Debug().Int("enabled", len(a.Registry.Enabled())).Msg("Connector registry initialized")

	if a.Config.Email.Enabled {
		a.EmailService = email.NewService(
			&a.Config.Email,
			a.StorageManager.SyncStateStorage(),
			a.KnowledgeService,
			a.ValidationService,
			a.PDFService,
			a.EventService,
			a.Extractor,
			a.Logger,
		)
		a.Logger.Debug().Int("accounts", len(a.Config.Email.Accounts)).Msg("Email service initialized")
	}

	a.IngestionService = ingestion.NewService(
		a.Registry,
		a.ValidationService,
		a.KnowledgeService,
		a.EmailService,
		a.StorageManager.RunStorage(),
		a.EventService,
		a.Extractor,
		&a.Config.Ingestion,
		a.Logger,
	)

	// The mailer is always constructed. Sends fail with a clear error
	// until recipients and an SMTP host are configured.
	a.MailerService = mailer.NewService(
		&a.Config.Mailer,
		a.StorageManager.DocumentStorage(),
		a.StorageManager.RunStorage(),
		a.PDFService,
		a.Logger,
	)

	a.KVService = kv.NewService(a.StorageManager.KeyValueStorage(), a.Logger)

	// Embedding backfill coordinator re-embeds documents whose chunks
	// were left without vectors by provider rate limiting.
	a.Coordinator = embeddings.NewCoordinator(
		a.EmbeddingService,
		a.StorageManager.DocumentStorage(),
		a.EventService,
		a.Config.Ingestion.Concurrency,
		a.Logger,
	)
	if err := a.Coordinator.Start(); err != nil {
		return fmt.Errorf("failed to start embedding coordinator: %w", err)
	}

	a.SchedulerService = scheduler.NewService(a.Logger)

	return nil
}

// initScheduler registers the cron jobs that drive the pipeline. Jobs
// for disabled features are not registered at all, so the jobs API only
// lists what can actually run.
func (a *App) initScheduler() error {
	if a.Config.Ingestion.Enabled {
		err := a.SchedulerService.RegisterJob(
			"ingestion",
			a.Config.Ingestion.Schedule,
			"Fetch, validate, and store records from every enabled source",
			func() error {
				_, err := a.IngestionService.RunAll(a.ctx)
				return err
			},
		)
		if err != nil {
			return fmt.Errorf("failed to register ingestion job: %w", err)
		}
	}

	if a.Config.Email.Enabled && a.EmailService != nil {
		err := a.SchedulerService.RegisterJob(
			"email_sync",
			a.Config.Email.Schedule,
			"Sync messages from the configured IMAP accounts",
			func() error {
				results := a.EmailService.SyncAll(a.ctx)
				for _, result := range results {
					if result.Error != "" {
						return fmt.Errorf("account %s: %s", result.Account, result.Error)
					}
				}
				return nil
			},
		)
		if err != nil {
			return fmt.Errorf("failed to register email sync job: %w", err)
		}
	}

	if a.Config.Mailer.Enabled {
		err := a.SchedulerService.RegisterJob(
			"digest",
			a.Config.Mailer.Schedule,
			"Send the research digest email",
			func() error {
				return a.MailerService.SendDigest(a.ctx)
			},
		)
		if err != nil {
			return fmt.Errorf("failed to register digest job: %w", err)
		}
	}

	if err := a.SchedulerService.Start(); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	return nil
}

// initHandlers wires the HTTP handlers to their services
func (a *App) initHandlers() {
	a.APIHandler = handlers.NewAPIHandler()
	a.QueryHandler = handlers.NewQueryHandler(
		a.QueryService,
		attribution.NewFormatter(a.PDFService),
		a.Logger,
	)
	a.DocumentHandler = handlers.NewDocumentHandler(
		a.StorageManager.DocumentStorage(),
		a.SearchService,
		a.Logger,
	)
	a.IngestHandler = handlers.NewIngestHandler(a.IngestionService, a.EmailService, a.Logger)
	a.EntityHandler = handlers.NewEntityHandler(
		a.StorageManager.EntityStorage(),
		a.StorageManager.DocumentStorage(),
		a.Logger,
	)
	a.StatusHandler = handlers.NewStatusHandler(
		a.Registry,
		a.StorageManager.DocumentStorage(),
		a.StorageManager.EntityStorage(),
		a.StorageManager.RunStorage(),
		a.SchedulerService,
		a.EmailService,
		a.LLMService,
		a.Logger,
	)
	a.JobsHandler = handlers.NewJobsHandler(a.SchedulerService, a.Logger)
	a.MailerHandler = handlers.NewMailerHandler(a.MailerService, a.Logger)
	a.KVHandler = handlers.NewKVHandler(a.KVService, a.Logger)
}

// Close closes all application resources in reverse dependency order
func (a *App) Close() error {
	// Cancel background goroutines first so in-flight pipeline work
	// stops scheduling new stages.
	if a.cancelCtx != nil {
		a.Logger.Info().Msg("Cancelling background goroutines")
		a.cancelCtx()
		// Allow goroutines to finish gracefully
		time.Sleep(100 * time.Millisecond)
	}

	// Stop scheduler service
	if a.SchedulerService != nil {
		if err := a.SchedulerService.Stop(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to stop scheduler service")
		}
	}

	// Stop the log relay before dropping websocket clients
	if a.LogStreamer != nil {
		if err := a.LogStreamer.Stop(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to stop log streamer")
		}
	}

	// Disconnect websocket clients
	if a.WSHandler != nil {
		a.WSHandler.CloseAll()
	}

	// Close LLM service
	if a.LLMService != nil {
		if err := a.LLMService.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close LLM service")
		}
	}

	// Close event service
	if a.EventService != nil {
		if err := a.EventService.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close event service")
		}
	}

	// Close storage
	if a.StorageManager != nil {
		if err := a.StorageManager.Close(); err != nil {
			return fmt.Errorf("failed to close storage: %w", err)
		}
		a.Logger.Info().Msg("Storage closed")
	}

	return nil
}
