// Package benzinga provides a client for the Benzinga News API.
// This package centralizes all Benzinga API interactions for the application.
package benzinga

import (
	"fmt"
	"time"
)

// QueryOption represents an optional parameter for API queries.
type QueryOption func(*queryParams)

// queryParams holds optional query parameters.
type queryParams struct {
	Tickers  []string
	Channels []string
	From     time.Time
	To       time.Time
	PageSize int
	Page     int
}

// WithTickers restricts results to the given ticker symbols.
func WithTickers(tickers ...string) QueryOption {
	return func(p *queryParams) {
		p.Tickers = tickers
	}
}

// WithChannels restricts results to the given content channels.
func WithChannels(channels ...string) QueryOption {
	return func(p *queryParams) {
		p.Channels = channels
	}
}

// WithDateRange sets the date range for the query.
func WithDateRange(from, to time.Time) QueryOption {
	return func(p *queryParams) {
		p.From = from
		p.To = to
	}
}

// WithPageSize sets the page size (max 100).
func WithPageSize(size int) QueryOption {
	return func(p *queryParams) {
		p.PageSize = size
	}
}

// WithPage sets the zero-based page number.
func WithPage(page int) QueryOption {
	return func(p *queryParams) {
		p.Page = page
	}
}

// APIError represents an error from the Benzinga API.
type APIError struct {
	StatusCode int
	Message    string
	Endpoint   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("Benzinga API error: %s (status: %d, endpoint: %s)", e.Message, e.StatusCode, e.Endpoint)
}

// RateLimitError represents a rate limit error.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("Benzinga rate limit exceeded, retry after %v", e.RetryAfter)
}
