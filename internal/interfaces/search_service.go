package interfaces

import (
	"context"

	"github.com/ternarybob/ice/internal/models"
)

// SearchQuery carries one retrieval request through the search service.
type SearchQuery struct {
	// Text is the raw question or keyword query
	Text string

	// Embedding is the query vector; empty disables vector scoring
	Embedding []float64

	// Symbols narrows retrieval to documents mentioning these tickers
	Symbols []string

	// SourceTypes filters by document source (e.g., "benzinga", "edgar")
	SourceTypes []string

	// Limit maximum number of scored chunks returned
	Limit int

	// Mode selects the retrieval strategy
	Mode models.QueryMode
}

// ScoredChunk is one retrieval hit: a chunk, its parent document, and the
// combined relevance score that ranked it.
type ScoredChunk struct {
	Chunk    models.Chunk
	Document *models.Document
	Score    float64
	// VectorSimilarity is the raw cosine component of Score, 0 when the
	// chunk matched on keywords or graph expansion only.
	VectorSimilarity float64
}

// SearchService provides hybrid retrieval over ingested documents.
type SearchService interface {
	// Search returns ranked chunks for the query.
	Search(ctx context.Context, query SearchQuery) ([]ScoredChunk, error)

	// SearchDocuments returns ranked whole documents for keyword queries.
	SearchDocuments(ctx context.Context, text string, limit int) ([]*models.Document, error)
}
