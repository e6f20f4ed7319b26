package polygon

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
	// DefaultBaseURL is the base URL for the Polygon API.
	DefaultBaseURL = "https://api.polygon.io"

	// DefaultTimeout is the default HTTP timeout.
	DefaultTimeout = 30 * time.Second

	// DefaultNewsLimit is the default number of articles per request.
	DefaultNewsLimit = 100
)

// Client is a Polygon API client.
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
// The free tier allows 5 requests per minute, hence the slow default.
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

// NewClient creates a new Polygon API client.
func NewClient(apiKey string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: DefaultBaseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		limiter: rate.NewLimiter(rate.Every(12*time.Second), 1),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// get performs a GET request to the API.
func (c *Client) get(ctx context.Context, path string, params url.Values, result interface{}) error {
	// Wait for rate limiter
	if err := c.limiter.Wait(ctx); err != nil {
		return &RateLimitError{RetryAfter: time.Minute}
	}

	// Add API key
	if params == nil {
		params = url.Values{}
	}
	params.Set("apiKey", c.apiKey)

	// Build URL
	reqURL := fmt.Sprintf("%s%s?%s", c.baseURL, path, params.Encode())

	// Create request
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	// Log request
	if c.logger != nil {
		c.logger.Debug().
			Str("url", c.baseURL+path).
			Msg("Polygon API request")
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
		return &APIError{
			StatusCode: resp.StatusCode,
			Message:    string(body),
			Endpoint:   path,
		}
	}

	// Parse response
	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return nil
}

// GetNews retrieves reference news articles matching the query options.
func (c *Client) GetNews(ctx context.Context, opts ...QueryOption) (*NewsEnvelope, error) {
	params := &queryParams{
		Limit: DefaultNewsLimit,
		Order: "desc",
	}
	for _, opt := range opts {
		opt(params)
	}

	queryParams := url.Values{}
	if params.Ticker != "" {
		queryParams.Set("ticker", params.Ticker)
	}
	if !params.From.IsZero() {
		queryParams.Set("published_utc.gte", params.From.UTC().Format(time.RFC3339))
	}
	if !params.To.IsZero() {
		queryParams.Set("published_utc.lte", params.To.UTC().Format(time.RFC3339))
	}
	if params.Limit > 0 {
		queryParams.Set("limit", strconv.Itoa(params.Limit))
	}
	if params.Order != "" {
		queryParams.Set("order", params.Order)
	}

	var result NewsEnvelope
	if err := c.get(ctx, "/v2/reference/news", queryParams, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetAggregates retrieves daily OHLCV bars for a symbol.
func (c *Client) GetAggregates(ctx context.Context, symbol string, from, to time.Time) (*AggsEnvelope, error) {
	path := fmt.Sprintf("/v2/aggs/ticker/%s/range/1/day/%s/%s",
		url.PathEscape(symbol),
		from.Format("2006-01-02"),
		to.Format("2006-01-02"))

	queryParams := url.Values{}
	queryParams.Set("adjusted", "true")
	queryParams.Set("sort", "asc")

	var result AggsEnvelope
	if err := c.get(ctx, path, queryParams, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetPreviousClose retrieves the prior trading day's bar for a symbol.
func (c *Client) GetPreviousClose(ctx context.Context, symbol string) (*AggsEnvelope, error) {
	path := fmt.Sprintf("/v2/aggs/ticker/%s/prev", url.PathEscape(symbol))

	queryParams := url.Values{}
	queryParams.Set("adjusted", "true")

	var result AggsEnvelope
	if err := c.get(ctx, path, queryParams, &result); err != nil {
		return nil, err
	}
	return &result, nil
}
