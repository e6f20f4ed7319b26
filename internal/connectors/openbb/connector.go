package openbb

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/ice/internal/interfaces"
	"github.com/ternarybob/ice/internal/models"
)

// Connector adapts the OpenBB client to the normalized provider
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

// NewConnector creates an OpenBB connector.
func NewConnector(client *Client, logger arbor.ILogger) *Connector {
	return &Connector{
		client: client,
		logger: logger,
	}
}

// Name returns the connector's source name.
func (c *Connector) Name() string {
	return models.SourceOpenBB
}

// FetchNews returns normalized articles for the symbol between from and to.
func (c *Connector) FetchNews(ctx context.Context, symbol string, from, to time.Time) ([]models.NewsArticle, error) {
	envelope, err := c.client.GetCompanyNews(ctx, symbol, WithDateRange(from, to))
	if err != nil {
		return nil, fmt.Errorf("openbb fetch failed for %s: %w", symbol, err)
	}

	articles := make([]models.NewsArticle, 0, len(envelope.Results))
	for i := range envelope.Results {
		articles = append(articles, c.normalize(&envelope.Results[i], symbol))
	}

	c.logger.Debug().
		Str("symbol", symbol).
		Int("count", len(articles)).
		Msg("Fetched OpenBB news")

	return articles, nil
}

// FetchQuote returns the latest quote for a symbol.
func (c *Connector) FetchQuote(ctx context.Context, symbol string) (*models.Quote, error) {
	envelope, err := c.client.GetQuote(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("openbb quote failed for %s: %w", symbol, err)
	}
	if len(envelope.Results) == 0 {
		return nil, fmt.Errorf("openbb returned no quote for %s", symbol)
	}

	q := envelope.Results[0]
	quote := &models.Quote{
		Symbol:    symbol,
		Open:      q.Open,
		High:      q.High,
		Low:       q.Low,
		Close:     q.LastPrice,
		PrevClose: q.PrevClose,
		Volume:    q.Volume,
		Source:    models.SourceOpenBB,
	}
	if t, err := time.Parse(time.RFC3339, q.LastTimestamp); err == nil {
		quote.Timestamp = t
	} else {
		quote.Timestamp = time.Now().UTC()
	}
	return quote, nil
}

// normalize converts an OpenBB news item to the shared article shape.
func (c *Connector) normalize(item *CompanyNews, symbol string) models.NewsArticle {
	published := parseNewsDate(item.Date)
	if published.IsZero() {
		c.logger.Warn().Str("url", item.URL).Str("date", item.Date).Msg("Unparseable publish time")
	}

	symbols := []string{symbol}
	for _, s := range strings.Split(item.Symbols, ",") {
		if s = strings.TrimSpace(s); s != "" {
			symbols = append(symbols, s)
		}
	}

	return models.NewsArticle{
		ID:              uuid.New().String(),
		Source:          models.SourceOpenBB,
		VendorID:        item.URL,
		Title:           strings.TrimSpace(item.Title),
		ContentMarkdown: strings.TrimSpace(item.Text),
		URL:             item.URL,
		PublishedAt:     published,
		Symbols:         models.NormalizeSymbols(symbols),
	}
}

// parseNewsDate handles the timestamp layouts OpenBB providers emit.
func parseNewsDate(value string) time.Time {
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, value); err == nil {
			return t
		}
	}
	return time.Time{}
}
