package finnhub

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/ice/internal/interfaces"
	"github.com/ternarybob/ice/internal/models"
)

// Connector adapts the Finnhub client to the normalized provider
// interfaces.
type Connector struct {
	client *Client
	logger arbor.ILogger
}

// Compile-time interface checks
var (
	_ interfaces.NewsProvider  = (*Connector)(nil)
	_ interfaces.QuoteProvider = (*Connector)(nil)
)

// NewConnector creates a Finnhub connector.
func NewConnector(client *Client, logger arbor.ILogger) *Connector {
	return &Connector{
		client: client,
		logger: logger,
	}
}

// Name returns the connector's source name.
func (c *Connector) Name() string {
	return models.SourceFinnhub
}

// FetchNews returns normalized articles for the symbol between from and to.
func (c *Connector) FetchNews(ctx context.Context, symbol string, from, to time.Time) ([]models.NewsArticle, error) {
	items, err := c.client.GetCompanyNews(ctx, symbol, WithDateRange(from, to))
	if err != nil {
		return nil, fmt.Errorf("finnhub fetch failed for %s: %w", symbol, err)
	}

	articles := make([]models.NewsArticle, 0, len(items))
	for i := range items {
		articles = append(articles, c.normalize(&items[i], symbol))
	}

	c.logger.Debug().
		Str("symbol", symbol).
		Int("count", len(articles)).
		Msg("Fetched Finnhub news")

	return articles, nil
}

// FetchQuote returns the current quote for a symbol. Finnhub reports a
// zero timestamp for unknown symbols, which surfaces as an error.
func (c *Connector) FetchQuote(ctx context.Context, symbol string) (*models.Quote, error) {
	data, err := c.client.GetQuote(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("finnhub quote failed for %s: %w", symbol, err)
	}
	if data.Timestamp == 0 {
		return nil, fmt.Errorf("finnhub returned no quote for %s", symbol)
	}

	return &models.Quote{
		Symbol:    symbol,
		Open:      data.Open,
		High:      data.High,
		Low:       data.Low,
		Close:     data.Current,
		PrevClose: data.PrevClose,
		Timestamp: time.Unix(data.Timestamp, 0).UTC(),
		Source:    models.SourceFinnhub,
	}, nil
}

// normalize converts a Finnhub news item to the shared article shape.
func (c *Connector) normalize(item *CompanyNews, symbol string) models.NewsArticle {
	symbols := []string{symbol}
	for _, s := range strings.Split(item.Related, ",") {
		if s = strings.TrimSpace(s); s != "" {
			symbols = append(symbols, s)
		}
	}

	var topics []string
	if item.Category != "" {
		topics = []string{strings.ToLower(item.Category)}
	}

	article := models.NewsArticle{
		ID:          uuid.New().String(),
		Source:      models.SourceFinnhub,
		VendorID:    strconv.FormatInt(item.ID, 10),
		Title:       strings.TrimSpace(item.Headline),
		Summary:     strings.TrimSpace(item.Summary),
		URL:         item.URL,
		PublishedAt: time.Unix(item.Datetime, 0).UTC(),
		Symbols:     models.NormalizeSymbols(symbols),
		Topics:      topics,
	}
	if item.Source != "" {
		article.Raw = map[string]interface{}{"outlet": item.Source}
	}
	return article
}
