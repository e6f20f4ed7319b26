package benzinga

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/google/uuid"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/ice/internal/interfaces"
	"github.com/ternarybob/ice/internal/models"
)

// Connector adapts the Benzinga client to the normalized news provider
// interface.
type Connector struct {
	client    *Client
	converter *md.Converter
	logger    arbor.ILogger
}

// Compile-time interface check
var _ interfaces.NewsProvider = (*Connector)(nil)

// NewConnector creates a Benzinga news connector.
func NewConnector(client *Client, logger arbor.ILogger) *Connector {
	return &Connector{
		client:    client,
		converter: md.NewConverter("", true, nil),
		logger:    logger,
	}
}

// Name returns the connector's source name.
func (c *Connector) Name() string {
	return models.SourceBenzinga
}

// FetchNews returns normalized articles for the symbol between from and to.
func (c *Connector) FetchNews(ctx context.Context, symbol string, from, to time.Time) ([]models.NewsArticle, error) {
	items, err := c.client.GetNews(ctx,
		WithTickers(symbol),
		WithDateRange(from, to),
	)
	if err != nil {
		return nil, fmt.Errorf("benzinga fetch failed for %s: %w", symbol, err)
	}

	articles := make([]models.NewsArticle, 0, len(items))
	for i := range items {
		articles = append(articles, c.normalize(&items[i]))
	}

	c.logger.Debug().
		Str("symbol", symbol).
		Int("count", len(articles)).
		Msg("Fetched Benzinga news")

	return articles, nil
}

// normalize converts a Benzinga news item to the shared article shape.
// The HTML body becomes markdown; teaser text is kept as the summary.
func (c *Connector) normalize(item *NewsItem) models.NewsArticle {
	content := ""
	if item.Body != "" {
		converted, err := c.converter.ConvertString(item.Body)
		if err != nil {
			c.logger.Warn().Err(err).Int("vendor_id", item.ID).Msg("HTML conversion failed, keeping raw body")
			content = item.Body
		} else {
			content = converted
		}
	}

	symbols := make([]string, 0, len(item.Stocks))
	for _, s := range item.Stocks {
		symbols = append(symbols, s.Name)
	}
	topics := make([]string, 0, len(item.Channels)+len(item.Tags))
	for _, ch := range item.Channels {
		if ch.Name != "" {
			topics = append(topics, strings.ToLower(ch.Name))
		}
	}
	for _, tag := range item.Tags {
		if tag.Name != "" {
			topics = append(topics, strings.ToLower(tag.Name))
		}
	}

	published := item.Created
	if published.IsZero() {
		published = item.Updated
	}

	return models.NewsArticle{
		ID:              uuid.New().String(),
		Source:          models.SourceBenzinga,
		VendorID:        strconv.Itoa(item.ID),
		Title:           strings.TrimSpace(item.Title),
		Summary:         strings.TrimSpace(item.Teaser),
		ContentMarkdown: strings.TrimSpace(content),
		URL:             item.URL,
		Author:          item.Author,
		PublishedAt:     published,
		Symbols:         models.NormalizeSymbols(symbols),
		Topics:          topics,
	}
}
