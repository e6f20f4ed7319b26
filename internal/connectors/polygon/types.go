// Package polygon provides a client for the Polygon.io REST API.
// This package centralizes all Polygon API interactions for the application.
package polygon

import (
	"fmt"
	"time"
)

// QueryOption represents an optional parameter for API queries.
type QueryOption func(*queryParams)

// queryParams holds optional query parameters.
type queryParams struct {
	Ticker string
	From   time.Time
	To     time.Time
	Limit  int
	Order  string // asc, desc
}

// WithTicker restricts results to one ticker symbol.
func WithTicker(ticker string) QueryOption {
	return func(p *queryParams) {
		p.Ticker = ticker
	}
}

// WithDateRange sets the date range for the query.
func WithDateRange(from, to time.Time) QueryOption {
	return func(p *queryParams) {
		p.From = from
		p.To = to
	}
}

// WithLimit sets the maximum number of results.
func WithLimit(limit int) QueryOption {
	return func(p *queryParams) {
		p.Limit = limit
	}
}

// WithOrder sets the sort order (asc or desc).
func WithOrder(order string) QueryOption {
	return func(p *queryParams) {
		p.Order = order
	}
}

// APIError represents an error from the Polygon API.
type APIError struct {
	StatusCode int
	Message    string
	Endpoint   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("Polygon API error: %s (status: %d, endpoint: %s)", e.Message, e.StatusCode, e.Endpoint)
}

// RateLimitError represents a rate limit error.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("Polygon rate limit exceeded, retry after %v", e.RetryAfter)
}
