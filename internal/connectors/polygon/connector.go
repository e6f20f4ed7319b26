package polygon

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/ice/internal/interfaces"
	"github.com/ternarybob/ice/internal/models"
)

// Connector adapts the Polygon client to the normalized provider
// interfaces. Polygon serves news, quotes, and historical bars.
type Connector struct {
	client *Client
	logger arbor.ILogger
}

// Compile-time interface checks
var (
	_ interfaces.NewsProvider  = (*Connector)(nil)
	_ interfaces.QuoteProvider = (*Connector)(nil)
	_ interfaces.BarProvider   = (*Connector)(nil)
)

// NewConnector creates a Polygon connector.
func NewConnector(client *Client, logger arbor.ILogger) *Connector {
	return &Connector{
		client: client,
		logger: logger,
	}
}

// Name returns the connector's source name.
func (c *Connector) Name() string {
	return models.SourcePolygon
}

// FetchNews returns normalized articles for the symbol between from and to.
func (c *Connector) FetchNews(ctx context.Context, symbol string, from, to time.Time) ([]models.NewsArticle, error) {
	envelope, err := c.client.GetNews(ctx,
		WithTicker(symbol),
		WithDateRange(from, to),
	)
	if err != nil {
		return nil, fmt.Errorf("polygon fetch failed for %s: %w", symbol, err)
	}

	articles := make([]models.NewsArticle, 0, len(envelope.Results))
	for i := range envelope.Results {
		articles = append(articles, c.normalize(&envelope.Results[i], symbol))
	}

	c.logger.Debug().
		Str("symbol", symbol).
		Int("count", len(articles)).
		Msg("Fetched Polygon news")

	return articles, nil
}

// FetchQuote returns the previous trading day's OHLCV as a quote.
func (c *Connector) FetchQuote(ctx context.Context, symbol string) (*models.Quote, error) {
	envelope, err := c.client.GetPreviousClose(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("polygon quote failed for %s: %w", symbol, err)
	}
	if len(envelope.Results) == 0 {
		return nil, fmt.Errorf("polygon returned no bars for %s", symbol)
	}

	bar := envelope.Results[0]
	return &models.Quote{
		Symbol:    symbol,
		Open:      bar.Open,
		High:      bar.High,
		Low:       bar.Low,
		Close:     bar.Close,
		Volume:    int64(bar.Volume),
		Timestamp: time.UnixMilli(bar.TimestampMS).UTC(),
		Source:    models.SourcePolygon,
	}, nil
}

// FetchBars returns daily OHLCV bars for the symbol between from and to.
func (c *Connector) FetchBars(ctx context.Context, symbol string, from, to time.Time) ([]models.PriceBar, error) {
	envelope, err := c.client.GetAggregates(ctx, symbol, from, to)
	if err != nil {
		return nil, fmt.Errorf("polygon aggregates failed for %s: %w", symbol, err)
	}

	bars := make([]models.PriceBar, 0, len(envelope.Results))
	for _, agg := range envelope.Results {
		bars = append(bars, models.PriceBar{
			Symbol: symbol,
			Open:   agg.Open,
			High:   agg.High,
			Low:    agg.Low,
			Close:  agg.Close,
			VWAP:   agg.VWAP,
			Volume: int64(agg.Volume),
			Start:  time.UnixMilli(agg.TimestampMS).UTC(),
			Trades: agg.Transactions,
		})
	}
	return bars, nil
}

// normalize converts a Polygon news result to the shared article shape.
// Per-ticker sentiment insights map onto a signed polarity.
func (c *Connector) normalize(item *NewsResult, symbol string) models.NewsArticle {
	published, err := time.Parse(time.RFC3339, item.PublishedUTC)
	if err != nil {
		c.logger.Warn().Str("vendor_id", item.ID).Str("published", item.PublishedUTC).Msg("Unparseable publish time")
	}

	article := models.NewsArticle{
		ID:          uuid.New().String(),
		Source:      models.SourcePolygon,
		VendorID:    item.ID,
		Title:       item.Title,
		Summary:     item.Description,
		URL:         item.ArticleURL,
		Author:      item.Author,
		PublishedAt: published,
		Symbols:     models.NormalizeSymbols(item.Tickers),
		Topics:      item.Keywords,
	}
	if item.Publisher.Name != "" {
		article.Raw = map[string]interface{}{"publisher": item.Publisher.Name}
	}

	for _, insight := range item.Insights {
		if insight.Ticker != symbol {
			continue
		}
		article.Sentiment = &models.ArticleSentiment{
			Polarity: sentimentPolarity(insight.Sentiment),
			Label:    insight.Sentiment,
		}
		break
	}

	return article
}

// sentimentPolarity maps Polygon's three-way sentiment onto a signed score.
func sentimentPolarity(sentiment string) float64 {
	switch sentiment {
	case "positive":
		return 0.5
	case "negative":
		return -0.5
	default:
		return 0
	}
}
