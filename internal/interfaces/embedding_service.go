package interfaces

import (
	"context"

	"github.com/ternarybob/ice/internal/models"
)

// EmbeddingService generates vector embeddings
type EmbeddingService interface {
	// Generate embedding for raw text
	GenerateEmbedding(ctx context.Context, text string) ([]float64, error)

	// Generate embeddings for a batch of texts, preserving order
	GenerateEmbeddings(ctx context.Context, texts []string) ([][]float64, error)

	// Generate and set embeddings for a document's chunks
	EmbedChunks(ctx context.Context, doc *models.Document) error

	// Generate query embedding (may have different prompt than document embedding)
	GenerateQueryEmbedding(ctx context.Context, query string) ([]float64, error)

	// Get model information
	ModelName() string
	Dimension() int

	// Check if service is available
	IsAvailable(ctx context.Context) bool
}
