package embeddings

import (
	"context"
	"fmt"
	"sync"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/ice/internal/interfaces"
	"github.com/ternarybob/ice/internal/models"
	"github.com/ternarybob/ice/internal/services/workers"
)

// backfillBatchLimit caps documents re-embedded per trigger so one run
// cannot monopolize the provider quota.
const backfillBatchLimit = 100

// Coordinator backfills chunk embeddings for documents whose ingestion
// could not embed them, typically after provider rate limiting left
// chunks without vectors. It listens for the embedding trigger event,
// which the ingestion scheduler publishes at the end of each run.
type Coordinator struct {
	embeddingService interfaces.EmbeddingService
	documentStorage  interfaces.DocumentStorage
	eventService     interfaces.EventService
	concurrency      int
	logger           arbor.ILogger
	isProcessing     bool
	mu               sync.Mutex
}

// NewCoordinator creates a new embedding backfill coordinator
func NewCoordinator(
	embeddingService interfaces.EmbeddingService,
	documentStorage interfaces.DocumentStorage,
	eventService interfaces.EventService,
	concurrency int,
	logger arbor.ILogger,
) *Coordinator {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Coordinator{
		embeddingService: embeddingService,
		documentStorage:  documentStorage,
		eventService:     eventService,
		concurrency:      concurrency,
		logger:           logger,
	}
}

// Start subscribes to embedding trigger events
func (c *Coordinator) Start() error {
	handler := func(ctx context.Context, event interfaces.Event) error {
		return c.handleTrigger(ctx)
	}

	return c.eventService.Subscribe(interfaces.EventEmbeddingTriggered, handler)
}

// Run performs one backfill pass immediately, outside the event loop.
func (c *Coordinator) Run(ctx context.Context) error {
	return c.handleTrigger(ctx)
}

// handleTrigger re-embeds documents with missing chunk embeddings
func (c *Coordinator) handleTrigger(ctx context.Context) error {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error().
				Str("panic", fmt.Sprintf("%v", r)).
				Msg("Panic recovered in embedding backfill")
		}
	}()

	// Skip if a previous trigger is still working
	c.mu.Lock()
	if c.isProcessing {
		c.mu.Unlock()
		c.logger.Warn().Msg("Embedding backfill already in progress, skipping trigger")
		return nil
	}
	c.isProcessing = true
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.isProcessing = false
		c.mu.Unlock()
	}()

	if c.embeddingService == nil {
		return fmt.Errorf("embedding service is nil")
	}
	if c.documentStorage == nil {
		return fmt.Errorf("document storage is nil")
	}

	docs, err := c.documentStorage.GetUnembeddedDocuments(backfillBatchLimit)
	if err != nil {
		return fmt.Errorf("failed to get unembedded documents: %w", err)
	}
	if len(docs) == 0 {
		c.logger.Debug().Msg("No documents awaiting embedding backfill")
		return nil
	}

	c.logger.Info().
		Int("count", len(docs)).
		Msg("Backfilling document embeddings")

	pool := workers.NewPool(c.concurrency, c.logger)
	pool.Start()

	for _, doc := range docs {
		doc := doc
		job := func(ctx context.Context) error {
			return c.embedDocument(ctx, doc)
		}
		if err := pool.Submit(job); err != nil {
			c.logger.Error().
				Err(err).
				Str("doc_id", doc.ID).
				Msg("Failed to submit embedding backfill job")
		}
	}

	pool.Wait()

	if errs := pool.Errors(); len(errs) > 0 {
		for _, jobErr := range errs {
			c.logger.Error().Err(jobErr).Msg("Embedding backfill job failed")
		}
		return fmt.Errorf("embedding backfill completed with %d errors", len(errs))
	}

	c.logger.Info().
		Int("count", len(docs)).
		Msg("Embedding backfill complete")
	return nil
}

// embedDocument embeds and persists a single document
func (c *Coordinator) embedDocument(ctx context.Context, doc *models.Document) error {
	if doc == nil {
		return fmt.Errorf("document is nil")
	}

	if err := c.embeddingService.EmbedChunks(ctx, doc); err != nil {
		return fmt.Errorf("failed to embed document %s: %w", doc.ID, err)
	}

	if err := c.documentStorage.SaveDocument(doc); err != nil {
		return fmt.Errorf("failed to save document %s: %w", doc.ID, err)
	}

	c.logger.Debug().
		Str("doc_id", doc.ID).
		Int("chunk_count", len(doc.Chunks)).
		Msg("Document embeddings backfilled")
	return nil
}
