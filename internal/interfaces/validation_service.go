package interfaces

import (
	"context"

	"github.com/ternarybob/ice/internal/models"
)

// ValidationService runs schema, quality, and cross-source checks on
// vendor records before they become documents. Reports with error-level
// issues block the record; warnings travel with it as metadata.
type ValidationService interface {
	ValidateArticle(ctx context.Context, article *models.NewsArticle) models.ValidationReport
	ValidateQuote(ctx context.Context, quote *models.Quote) models.ValidationReport
	ValidateFiling(ctx context.Context, filing *models.Filing) models.ValidationReport
	ValidateEmail(ctx context.Context, message *models.EmailMessage) models.ValidationReport

	// CrossCheckQuotes flags close-price divergence between sources
	// reporting the same symbol.
	CrossCheckQuotes(symbol string, quotes []models.Quote) []models.ValidationIssue

	// CorrelateArticles finds the same story reported by independent
	// sources and returns, per article ID, the corroborating sources.
	CorrelateArticles(articles []models.NewsArticle) map[string][]string
}
