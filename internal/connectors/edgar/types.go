// Package edgar provides a client for the SEC EDGAR data APIs.
// EDGAR needs no API key but rejects requests without a descriptive
// User-Agent, and asks for no more than 10 requests per second.
package edgar

import (
	"fmt"
	"time"
)

// APIError represents an error from the EDGAR API.
type APIError struct {
	StatusCode int
	Message    string
	Endpoint   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("EDGAR API error: %s (status: %d, endpoint: %s)", e.Message, e.StatusCode, e.Endpoint)
}

// RateLimitError represents a rate limit error.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("EDGAR rate limit exceeded, retry after %v", e.RetryAfter)
}

// UnknownSymbolError is returned when a ticker has no CIK mapping.
type UnknownSymbolError struct {
	Symbol string
}

func (e *UnknownSymbolError) Error() string {
	return fmt.Sprintf("EDGAR has no CIK mapping for symbol %s", e.Symbol)
}
