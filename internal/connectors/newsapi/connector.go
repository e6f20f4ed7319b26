package newsapi

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/ice/internal/interfaces"
	"github.com/ternarybob/ice/internal/models"
)

// truncationPattern matches NewsAPI's "[+1234 chars]" content suffix.
var truncationPattern = regexp.MustCompile(`\s*\[\+\d+ chars\]\s*$`)

// Connector adapts the NewsAPI client to the normalized news provider
// interface. NewsAPI has no ticker concept, so searches run on the
// symbol and, when configured, the company name.
type Connector struct {
	client       *Client
	companyNames map[string]string // symbol -> company name for query expansion
	logger       arbor.ILogger
}

// Compile-time interface check
var _ interfaces.NewsProvider = (*Connector)(nil)

// NewConnector creates a NewsAPI connector. companyNames may be nil.
func NewConnector(client *Client, companyNames map[string]string, logger arbor.ILogger) *Connector {
	return &Connector{
		client:       client,
		companyNames: companyNames,
		logger:       logger,
	}
}

// Name returns the connector's source name.
func (c *Connector) Name() string {
	return models.SourceNewsAPI
}

// FetchNews returns normalized articles for the symbol between from and to.
func (c *Connector) FetchNews(ctx context.Context, symbol string, from, to time.Time) ([]models.NewsArticle, error) {
	envelope, err := c.client.GetEverything(ctx,
		WithQuery(c.buildQuery(symbol)),
		WithDateRange(from, to),
	)
	if err != nil {
		return nil, fmt.Errorf("newsapi fetch failed for %s: %w", symbol, err)
	}

	articles := make([]models.NewsArticle, 0, len(envelope.Articles))
	for i := range envelope.Articles {
		articles = append(articles, c.normalize(&envelope.Articles[i], symbol))
	}

	c.logger.Debug().
		Str("symbol", symbol).
		Int("count", len(articles)).
		Int("total_results", envelope.TotalResults).
		Msg("Fetched NewsAPI articles")

	return articles, nil
}

// buildQuery expands a symbol into a keyword query. Known company names
// are OR-ed in to widen recall.
func (c *Connector) buildQuery(symbol string) string {
	if name, ok := c.companyNames[symbol]; ok && name != "" {
		return fmt.Sprintf("%q OR %s", name, symbol)
	}
	return symbol
}

// normalize converts a NewsAPI article to the shared article shape.
// NewsAPI truncates content with a "[+N chars]" marker which is stripped.
func (c *Connector) normalize(item *Article, symbol string) models.NewsArticle {
	published, err := time.Parse(time.RFC3339, item.PublishedAt)
	if err != nil {
		c.logger.Warn().Str("url", item.URL).Str("published", item.PublishedAt).Msg("Unparseable publish time")
	}

	content := truncationPattern.ReplaceAllString(item.Content, "")

	article := models.NewsArticle{
		ID:              uuid.New().String(),
		Source:          models.SourceNewsAPI,
		VendorID:        item.URL, // NewsAPI has no article ID; the URL is the stable handle
		Title:           strings.TrimSpace(item.Title),
		Summary:         strings.TrimSpace(item.Description),
		ContentMarkdown: strings.TrimSpace(content),
		URL:             item.URL,
		Author:          item.Author,
		PublishedAt:     published,
		Symbols:         models.NormalizeSymbols([]string{symbol}),
	}
	if item.Source.Name != "" {
		article.Raw = map[string]interface{}{"outlet": item.Source.Name}
	}
	return article
}
