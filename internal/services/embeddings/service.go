package embeddings

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/ice/internal/common"
	"github.com/ternarybob/ice/internal/interfaces"
	"github.com/ternarybob/ice/internal/models"
)

// defaultBatchSize bounds a single provider call when config does not set one
const defaultBatchSize = 32

// Service implements EmbeddingService interface
type Service struct {
	llmService interfaces.LLMService
	model      string
	dimension  int
	batchSize  int
	logger     arbor.ILogger
}

// NewService creates a new embedding service
func NewService(llmService interfaces.LLMService, cfg *common.EmbeddingsConfig, logger arbor.ILogger) interfaces.EmbeddingService {
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	return &Service{
		llmService: llmService,
		model:      cfg.Model,
		dimension:  cfg.Dimension,
		batchSize:  batchSize,
		logger:     logger,
	}
}

// GenerateEmbedding creates a vector embedding for text
func (s *Service) GenerateEmbedding(ctx context.Context, text string) ([]float64, error) {
	if s.llmService == nil {
		return nil, fmt.Errorf("no embedding provider configured")
	}
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("text cannot be empty")
	}

	start := time.Now()
	embedding, err := s.llmService.Embed(ctx, text)
	duration := time.Since(start)
	if err != nil {
		return nil, fmt.Errorf("failed to generate embedding: %w", err)
	}

	if len(embedding) == 0 {
		return nil, fmt.Errorf("LLM service returned empty embedding")
	}

	s.logger.Debug().
		Int("embedding_dim", len(embedding)).
		Dur("duration", duration).
		Msg("Generated embedding")

	return embedding, nil
}

// GenerateEmbeddings creates embeddings for a batch of texts, preserving
// input order. The batch is split at the configured provider limit.
func (s *Service) GenerateEmbeddings(ctx context.Context, texts []string) ([][]float64, error) {
	if s.llmService == nil {
		return nil, fmt.Errorf("no embedding provider configured")
	}
	if len(texts) == 0 {
		return nil, nil
	}
	for i, text := range texts {
		if strings.TrimSpace(text) == "" {
			return nil, fmt.Errorf("text %d cannot be empty", i)
		}
	}

	start := time.Now()
	vectors := make([][]float64, 0, len(texts))
	for offset := 0; offset < len(texts); offset += s.batchSize {
		end := offset + s.batchSize
		if end > len(texts) {
			end = len(texts)
		}

		batch, err := s.llmService.EmbedBatch(ctx, texts[offset:end])
		if err != nil {
			return nil, fmt.Errorf("failed to embed batch at offset %d: %w", offset, err)
		}
		if len(batch) != end-offset {
			return nil, fmt.Errorf("embedding count mismatch: expected %d, got %d", end-offset, len(batch))
		}
		vectors = append(vectors, batch...)
	}

	s.logger.Debug().
		Int("text_count", len(texts)).
		Int("batch_size", s.batchSize).
		Dur("duration", time.Since(start)).
		Msg("Generated embeddings")

	return vectors, nil
}

// EmbedChunks generates and sets embeddings for all chunks of a document
func (s *Service) EmbedChunks(ctx context.Context, doc *models.Document) error {
	if doc == nil {
		return fmt.Errorf("document is nil")
	}
	if len(doc.Chunks) == 0 {
		return nil
	}

	texts := make([]string, len(doc.Chunks))
	for i, chunk := range doc.Chunks {
		texts[i] = chunk.Content
	}

	vectors, err := s.GenerateEmbeddings(ctx, texts)
	if err != nil {
		return fmt.Errorf("failed to embed chunks for document %s: %w", doc.ID, err)
	}

	for i := range doc.Chunks {
		doc.Chunks[i].Embedding = vectors[i]
	}

	s.logger.Debug().
		Str("doc_id", doc.ID).
		Int("chunk_count", len(doc.Chunks)).
		Msg("Embedded document chunks")

	return nil
}

// GenerateQueryEmbedding generates embedding for a search query.
// Queries share the embedding space of the chunks they are matched
// against, so no special handling is applied.
func (s *Service) GenerateQueryEmbedding(ctx context.Context, query string) ([]float64, error) {
	return s.GenerateEmbedding(ctx, query)
}

// ModelName returns the embedding model name
func (s *Service) ModelName() string {
	return s.model
}

// Dimension returns the embedding vector dimension
func (s *Service) Dimension() int {
	return s.dimension
}

// IsAvailable checks if the embedding service is available
func (s *Service) IsAvailable(ctx context.Context) bool {
	if s.llmService == nil {
		return false
	}
	return s.llmService.IsAvailable(ctx)
}
