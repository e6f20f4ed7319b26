package newsapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"
)

const (
	// DefaultBaseURL is the base URL for NewsAPI.
	DefaultBaseURL = "https://newsapi.org"

	// DefaultTimeout is the default HTTP timeout.
	DefaultTimeout = 30 * time.Second

	// DefaultPageSize is the default number of articles per page.
	DefaultPageSize = 100
)

// Client is a NewsAPI client.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     arbor.ILogger
	limiter    *rate.Limiter
}

// ClientOption configures the Client.
type ClientOption func(*Client)

// WithBaseURL sets a custom base URL.
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithLogger sets a logger.
func WithLogger(logger arbor.ILogger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithRateLimit sets a custom rate limit from a request interval and burst.
func WithRateLimit(interval time.Duration, burst int) ClientOption {
	return func(c *Client) {
		if interval <= 0 {
			return
		}
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Every(interval), burst)
	}
}

// NewClient creates a new NewsAPI client.
func NewClient(apiKey string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: DefaultBaseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		limiter: rate.NewLimiter(rate.Every(2*time.Second), 2),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// get performs a GET request to the API. Authentication uses the
// X-Api-Key header rather than a query parameter.
func (c *Client) get(ctx context.Context, path string, params url.Values, result interface{}) error {
	// Wait for rate limiter
	if err := c.limiter.Wait(ctx); err != nil {
		return &RateLimitError{RetryAfter: time.Minute}
	}

	if params == nil {
		params = url.Values{}
	}

	// Build URL
	reqURL := fmt.Sprintf("%s%s?%s", c.baseURL, path, params.Encode())

	// Create request
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("X-Api-Key", c.apiKey)

	// Log request
	if c.logger != nil {
		c.logger.Debug().
			Str("url", c.baseURL+path).
			Msg("NewsAPI request")
	}

	// Execute request
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	// Check status
	if resp.StatusCode == http.StatusTooManyRequests {
		return &RateLimitError{RetryAfter: time.Minute}
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{
			StatusCode: resp.StatusCode,
			Message:    string(body),
			Endpoint:   path,
		}
		// Error bodies carry {"status":"error","code":...,"message":...}
		var envelope Envelope
		if json.Unmarshal(body, &envelope) == nil && envelope.Code != "" {
			apiErr.Code = envelope.Code
			apiErr.Message = envelope.Message
		}
		return apiErr
	}

	// Parse response
	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return nil
}

// GetEverything searches the full article index.
func (c *Client) GetEverything(ctx context.Context, opts ...QueryOption) (*Envelope, error) {
	params := &queryParams{
		Language: "en",
		SortBy:   "publishedAt",
		PageSize: DefaultPageSize,
	}
	for _, opt := range opts {
		opt(params)
	}

	queryParams := url.Values{}
	if params.Query != "" {
		queryParams.Set("q", params.Query)
	}
	if !params.From.IsZero() {
		queryParams.Set("from", params.From.UTC().Format(time.RFC3339))
	}
	if !params.To.IsZero() {
		queryParams.Set("to", params.To.UTC().Format(time.RFC3339))
	}
	if params.Language != "" {
		queryParams.Set("language", params.Language)
	}
	if params.SortBy != "" {
		queryParams.Set("sortBy", params.SortBy)
	}
	if params.PageSize > 0 {
		queryParams.Set("pageSize", strconv.Itoa(params.PageSize))
	}
	if params.Page > 0 {
		queryParams.Set("page", strconv.Itoa(params.Page))
	}

	var result Envelope
	if err := c.get(ctx, "/v2/everything", queryParams, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetTopHeadlines retrieves current top headlines, optionally scoped to
// a category such as business.
func (c *Client) GetTopHeadlines(ctx context.Context, opts ...QueryOption) (*Envelope, error) {
	params := &queryParams{
		PageSize: DefaultPageSize,
	}
	for _, opt := range opts {
		opt(params)
	}

	queryParams := url.Values{}
	if params.Query != "" {
		queryParams.Set("q", params.Query)
	}
	if params.Category != "" {
		queryParams.Set("category", params.Category)
	}
	if params.PageSize > 0 {
		queryParams.Set("pageSize", strconv.Itoa(params.PageSize))
	}
	if params.Page > 0 {
		queryParams.Set("page", strconv.Itoa(params.Page))
	}

	var result Envelope
	if err := c.get(ctx, "/v2/top-headlines", queryParams, &result); err != nil {
		return nil, err
	}
	return &result, nil
}
