// Package openbb provides a client for the OpenBB Platform REST API.
// Authentication uses an OAuth2 bearer token on every request.
package openbb

import (
	"fmt"
	"time"
)

// QueryOption represents an optional parameter for API queries.
type QueryOption func(*queryParams)

// queryParams holds optional query parameters.
type queryParams struct {
	From     time.Time
	To       time.Time
	Limit    int
	Provider string
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

// WithProvider selects the upstream data provider OpenBB routes to.
func WithProvider(provider string) QueryOption {
	return func(p *queryParams) {
		p.Provider = provider
	}
}

// APIError represents an error from the OpenBB API.
type APIError struct {
	StatusCode int
	Message    string
	Endpoint   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("OpenBB API error: %s (status: %d, endpoint: %s)", e.Message, e.StatusCode, e.Endpoint)
}

// RateLimitError represents a rate limit error.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("OpenBB rate limit exceeded, retry after %v", e.RetryAfter)
}
