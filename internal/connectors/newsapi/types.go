// Package newsapi provides a client for the NewsAPI.org REST API.
// This package centralizes all NewsAPI interactions for the application.
package newsapi

import (
	"fmt"
	"time"
)

// QueryOption represents an optional parameter for API queries.
type QueryOption func(*queryParams)

// queryParams holds optional query parameters.
type queryParams struct {
	Query    string
	From     time.Time
	To       time.Time
	Language string
	SortBy   string // relevancy, popularity, publishedAt
	PageSize int
	Page     int
	Category string // top-headlines only
}

// WithQuery sets the keyword search query.
func WithQuery(query string) QueryOption {
	return func(p *queryParams) {
		p.Query = query
	}
}

// WithDateRange sets the date range for the query.
func WithDateRange(from, to time.Time) QueryOption {
	return func(p *queryParams) {
		p.From = from
		p.To = to
	}
}

// WithLanguage sets the article language (default en).
func WithLanguage(language string) QueryOption {
	return func(p *queryParams) {
		p.Language = language
	}
}

// WithSortBy sets the sort order (relevancy, popularity, publishedAt).
func WithSortBy(sortBy string) QueryOption {
	return func(p *queryParams) {
		p.SortBy = sortBy
	}
}

// WithPageSize sets the page size (max 100).
func WithPageSize(size int) QueryOption {
	return func(p *queryParams) {
		p.PageSize = size
	}
}

// WithPage sets the one-based page number.
func WithPage(page int) QueryOption {
	return func(p *queryParams) {
		p.Page = page
	}
}

// WithCategory sets the top-headlines category (e.g. business).
func WithCategory(category string) QueryOption {
	return func(p *queryParams) {
		p.Category = category
	}
}

// APIError represents an error from NewsAPI.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Endpoint   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("NewsAPI error: %s (code: %s, status: %d, endpoint: %s)", e.Message, e.Code, e.StatusCode, e.Endpoint)
}

// RateLimitError represents a rate limit error.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("NewsAPI rate limit exceeded, retry after %v", e.RetryAfter)
}
