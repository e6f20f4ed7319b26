package interfaces

import (
	"context"
	"time"

	"github.com/ternarybob/ice/internal/models"
)

// NewsProvider fetches normalized news articles for a symbol window.
type NewsProvider interface {
	// Name returns the connector's source name (e.g. "benzinga")
	Name() string

	// FetchNews returns articles for the symbol between from and to.
	FetchNews(ctx context.Context, symbol string, from, to time.Time) ([]models.NewsArticle, error)
}

// QuoteProvider fetches current quote data for a symbol.
type QuoteProvider interface {
	Name() string
	FetchQuote(ctx context.Context, symbol string) (*models.Quote, error)
}

// BarProvider fetches historical OHLCV bars for a symbol.
type BarProvider interface {
	Name() string
	FetchBars(ctx context.Context, symbol string, from, to time.Time) ([]models.PriceBar, error)
}

// FilingProvider fetches regulatory filings for a symbol.
type FilingProvider interface {
	Name() string
	FetchFilings(ctx context.Context, symbol string, limit int) ([]models.Filing, error)
}

// BreakerStatus describes one connector's circuit breaker for the status
// endpoint.
type BreakerStatus struct {
	Host     string    `json:"host"`
	State    string    `json:"state"` // closed, open, half-open
	Failures int       `json:"failures"`
	OpenedAt time.Time `json:"opened_at,omitempty"`
}
