package openbb

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
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

const (
	// DefaultBaseURL is the base URL for the OpenBB Platform API.
	DefaultBaseURL = "https://api.openbb.co"

	// DefaultTimeout is the default HTTP timeout.
	DefaultTimeout = 30 * time.Second

	// DefaultNewsLimit is the default number of articles per request.
	DefaultNewsLimit = 50
)

// Client is an OpenBB Platform API client. The access token rides in an
// Authorization bearer header injected by an oauth2 transport.
type Client struct {
	baseURL    string
	baseClient *http.Client // transport the oauth2 client wraps
	httpClient *http.Client
	logger     arbor.ILogger
	limiter    *rate.Limiter
	token      string
}

// ClientOption configures the Client.
type ClientOption func(*Client)

// WithBaseURL sets a custom base URL.
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithHTTPClient sets the base HTTP client the bearer transport wraps.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.baseClient = httpClient
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

// NewClient creates a new OpenBB API client authenticated with the
// given personal access token.
func NewClient(token string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: DefaultBaseURL,
		token:   token,
		limiter: rate.NewLimiter(rate.Every(time.Second), 2),
	}

	for _, opt := range opts {
		opt(c)
	}

	// Wrap the base client with a bearer-token transport
	ctx := context.Background()
	if c.baseClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, c.baseClient)
	}
	ts := oauth2.StaticTokenSource(
		&oauth2.Token{AccessToken: token},
	)
	c.httpClient = oauth2.NewClient(ctx, ts)
	c.httpClient.Timeout = DefaultTimeout
	if c.baseClient != nil && c.baseClient.Timeout > 0 {
		c.httpClient.Timeout = c.baseClient.Timeout
	}

	return c
}

// get performs a GET request to the API.
func (c *Client) get(ctx context.Context, path string, params url.Values, result interface{}) error {
	// Wait for rate limiter
	if err := c.limiter.Wait(ctx); err != nil {
		return &RateLimitError{RetryAfter: time.Second}
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

	// Log request
	if c.logger != nil {
		c.logger.Debug().
			Str("url", c.baseURL+path).
			Msg("OpenBB API request")
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

// GetCompanyNews retrieves company news for a symbol.
func (c *Client) GetCompanyNews(ctx context.Context, symbol string, opts ...QueryOption) (*NewsEnvelope, error) {
	params := &queryParams{
		Limit: DefaultNewsLimit,
	}
	for _, opt := range opts {
		opt(params)
	}

	queryParams := url.Values{}
	queryParams.Set("symbol", symbol)
	if !params.From.IsZero() {
		queryParams.Set("start_date", params.From.Format("2006-01-02"))
	}
	if !params.To.IsZero() {
		queryParams.Set("end_date", params.To.Format("2006-01-02"))
	}
	if params.Limit > 0 {
		queryParams.Set("limit", strconv.Itoa(params.Limit))
	}
	if params.Provider != "" {
		queryParams.Set("provider", params.Provider)
	}

	var result NewsEnvelope
	if err := c.get(ctx, "/api/v1/news/company", queryParams, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetWorldNews retrieves general market news with no symbol filter.
func (c *Client) GetWorldNews(ctx context.Context, opts ...QueryOption) (*NewsEnvelope, error) {
	params := &queryParams{
		Limit: DefaultNewsLimit,
	}
	for _, opt := range opts {
		opt(params)
	}

	queryParams := url.Values{}
	if !params.From.IsZero() {
		queryParams.Set("start_date", params.From.Format("2006-01-02"))
	}
	if !params.To.IsZero() {
		queryParams.Set("end_date", params.To.Format("2006-01-02"))
	}
	if params.Limit > 0 {
		queryParams.Set("limit", strconv.Itoa(params.Limit))
	}
	if params.Provider != "" {
		queryParams.Set("provider", params.Provider)
	}

	var result NewsEnvelope
	if err := c.get(ctx, "/api/v1/news/world", queryParams, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetQuote retrieves the latest quote for a symbol.
func (c *Client) GetQuote(ctx context.Context, symbol string, opts ...QueryOption) (*QuoteEnvelope, error) {
	params := &queryParams{}
	for _, opt := range opts {
		opt(params)
	}

	queryParams := url.Values{}
	queryParams.Set("symbol", symbol)
	if params.Provider != "" {
		queryParams.Set("provider", params.Provider)
	}

	var result QuoteEnvelope
	if err := c.get(ctx, "/api/v1/equity/price/quote", queryParams, &result); err != nil {
		return nil, err
	}
	return &result, nil
}
