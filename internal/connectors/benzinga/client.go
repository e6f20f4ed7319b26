package benzinga

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
	// DefaultBaseURL is the base URL for the Benzinga API.
	DefaultBaseURL = "https://api.benzinga.com"

	// DefaultTimeout is the default HTTP timeout.
	DefaultTimeout = 30 * time.Second

	// DefaultPageSize is the default number of articles per page.
	DefaultPageSize = 100

	// Created/Updated timestamp layout used by the news feed.
	timeLayout = time.RFC1123Z
)

// Client is a Benzinga API client.
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

// NewClient creates a new Benzinga API client.
func NewClient(apiKey string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: DefaultBaseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		limiter: rate.NewLimiter(rate.Every(time.Second), 2),
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
		return &RateLimitError{RetryAfter: time.Second}
	}

	// Add API token
	if params == nil {
		params = url.Values{}
	}
	params.Set("token", c.apiKey)

	// Build URL
	reqURL := fmt.Sprintf("%s%s?%s", c.baseURL, path, params.Encode())

	// Create request
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	// Benzinga defaults to XML without this
	req.Header.Set("Accept", "application/json")

	// Log request
	if c.logger != nil {
		c.logger.Debug().
			Str("url", c.baseURL+path).
			Msg("Benzinga API request")
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

// GetNews retrieves news articles matching the query options.
func (c *Client) GetNews(ctx context.Context, opts ...QueryOption) ([]NewsItem, error) {
	params := &queryParams{
		PageSize: DefaultPageSize,
	}
	for _, opt := range opts {
		opt(params)
	}

	queryParams := url.Values{}
	queryParams.Set("displayOutput", "full")
	if len(params.Tickers) > 0 {
		queryParams.Set("tickers", strings.Join(params.Tickers, ","))
	}
	if len(params.Channels) > 0 {
		queryParams.Set("channels", strings.Join(params.Channels, ","))
	}
	if !params.From.IsZero() {
		queryParams.Set("dateFrom", params.From.Format("2006-01-02"))
	}
	if !params.To.IsZero() {
		queryParams.Set("dateTo", params.To.Format("2006-01-02"))
	}
	if params.PageSize > 0 {
		queryParams.Set("pageSize", strconv.Itoa(params.PageSize))
	}
	if params.Page > 0 {
		queryParams.Set("page", strconv.Itoa(params.Page))
	}

	var result []NewsItem
	if err := c.get(ctx, "/api/v2/news", queryParams, &result); err != nil {
		return nil, err
	}

	// Parse timestamps
	for i := range result {
		if t, err := time.Parse(timeLayout, result[i].CreatedStr); err == nil {
			result[i].Created = t
		}
		if t, err := time.Parse(timeLayout, result[i].UpdatedStr); err == nil {
			result[i].Updated = t
		}
	}

	return result, nil
}
