package interfaces

import (
	"context"

	"github.com/ternarybob/ice/internal/models"
)

// AttributionService maps answer sentences to the chunks that support them.
type AttributionService interface {
	Attribute(ctx context.Context, answer string, chunks []ScoredChunk) ([]models.AttributedSentence, error)
}

// FinancialService computes deterministic metrics from stored entity inputs.
type FinancialService interface {
	ComputeForQuestion(ctx context.Context, question string, symbols []string) ([]models.CalculationTrace, error)
}

// QueryResult pairs a processed answer with the retrieval context used to
// produce it, so formatters can render source excerpts.
type QueryResult struct {
	Answer *models.QueryAnswer
	Chunks []ScoredChunk
}

// QueryService runs the full hybrid question pipeline: classify, retrieve,
// attribute, fall back to calculation, categorize.
type QueryService interface {
	Process(ctx context.Context, req models.QueryRequest) (*QueryResult, error)
}
