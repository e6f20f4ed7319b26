package interfaces

import (
	"context"

	"github.com/ternarybob/ice/internal/models"
)

// KnowledgeResult is a generated answer together with the retrieval context
// it was produced from, so attribution can run against the same chunks.
type KnowledgeResult struct {
	Text      string
	Chunks    []ScoredChunk
	Sources   []models.SourceRef
	// Extractive is true when the text was stitched from chunks because
	// the LLM was unavailable.
	Extractive bool
}

// KnowledgeService is the retrieval-augmented answering surface. It owns
// document enhancement, chunking, embedding, and answer synthesis.
type KnowledgeService interface {
	// IngestDocument runs the enhancement pipeline on a document:
	// entity extraction, markup weaving, chunking, embedding, persistence.
	IngestDocument(ctx context.Context, doc *models.Document) error

	// Answer retrieves context for the question and synthesizes an answer.
	Answer(ctx context.Context, req models.QueryRequest) (*KnowledgeResult, error)
}
