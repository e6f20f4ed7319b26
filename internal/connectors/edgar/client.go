package edgar

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"
)

const (
	// DefaultBaseURL is the base URL for the EDGAR data APIs.
	DefaultBaseURL = "https://data.sec.gov"

	// DefaultTickerMapURL is the ticker-to-CIK mapping file. It lives on
	// www.sec.gov, not the data host.
	DefaultTickerMapURL = "https://www.sec.gov/files/company_tickers.json"

	// DefaultArchivesURL is the base for filing documents.
	DefaultArchivesURL = "https://www.sec.gov/Archives"

	// DefaultTimeout is the default HTTP timeout.
	DefaultTimeout = 30 * time.Second
)

// Client is an EDGAR API client. UserAgent is mandatory; the SEC blocks
// anonymous clients.
type Client struct {
	baseURL      string
	tickerMapURL string
	archivesURL  string
	userAgent    string
	httpClient   *http.Client
	logger       arbor.ILogger
	limiter      *rate.Limiter

	mu       sync.Mutex
	cikCache map[string]TickerEntry // ticker -> entry, loaded once
}

// ClientOption configures the Client.
type ClientOption func(*Client)

// WithBaseURL sets a custom base URL for the data APIs.
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithTickerMapURL sets a custom URL for the ticker mapping file.
func WithTickerMapURL(tickerMapURL string) ClientOption {
	return func(c *Client) {
		c.tickerMapURL = tickerMapURL
	}
}

// WithArchivesURL sets a custom base URL for filing documents.
func WithArchivesURL(archivesURL string) ClientOption {
	return func(c *Client) {
		c.archivesURL = strings.TrimRight(archivesURL, "/")
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

// WithRateLimit sets a custom rate limit from a request interval.
func WithRateLimit(interval time.Duration) ClientOption {
	return func(c *Client) {
		if interval <= 0 {
			return
		}
		c.limiter = rate.NewLimiter(rate.Every(interval), 1)
	}
}

// NewClient creates a new EDGAR client with the given User-Agent.
func NewClient(userAgent string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:      DefaultBaseURL,
		tickerMapURL: DefaultTickerMapURL,
		archivesURL:  DefaultArchivesURL,
		userAgent:    userAgent,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		limiter:  rate.NewLimiter(rate.Every(200*time.Millisecond), 1),
		cikCache: make(map[string]TickerEntry),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// get performs a GET request against an absolute URL.
func (c *Client) get(ctx context.Context, reqURL string, result interface{}) error {
	body, err := c.getRaw(ctx, reqURL)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// getRaw performs a GET request and returns the response body.
func (c *Client) getRaw(ctx context.Context, reqURL string) ([]byte, error) {
	if c.userAgent == "" {
		return nil, fmt.Errorf("EDGAR requires a User-Agent identifying the caller")
	}

	// Wait for rate limiter
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, &RateLimitError{RetryAfter: time.Second}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept-Encoding", "gzip, deflate")

	if c.logger != nil {
		c.logger.Debug().
			Str("url", reqURL).
			Msg("EDGAR API request")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, &RateLimitError{RetryAfter: 10 * time.Minute}
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Message:    string(body),
			Endpoint:   reqURL,
		}
	}

	return io.ReadAll(resp.Body)
}

// ResolveCIK maps a ticker symbol to its CIK. The full mapping file is
// fetched once and cached for the client's lifetime.
func (c *Client) ResolveCIK(ctx context.Context, symbol string) (*TickerEntry, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))

	c.mu.Lock()
	if entry, ok := c.cikCache[symbol]; ok {
		c.mu.Unlock()
		return &entry, nil
	}
	loaded := len(c.cikCache) > 0
	c.mu.Unlock()

	if loaded {
		return nil, &UnknownSymbolError{Symbol: symbol}
	}

	// The mapping file is keyed by row index: {"0": {...}, "1": {...}}
	var rows map[string]TickerEntry
	if err := c.get(ctx, c.tickerMapURL, &rows); err != nil {
		return nil, fmt.Errorf("failed to load ticker mapping: %w", err)
	}

	c.mu.Lock()
	for _, entry := range rows {
		c.cikCache[strings.ToUpper(entry.Ticker)] = entry
	}
	entry, ok := c.cikCache[symbol]
	c.mu.Unlock()

	if c.logger != nil {
		c.logger.Debug().Int("tickers", len(rows)).Msg("Loaded EDGAR ticker mapping")
	}

	if !ok {
		return nil, &UnknownSymbolError{Symbol: symbol}
	}
	return &entry, nil
}

// GetSubmissions retrieves the submissions feed for a CIK.
func (c *Client) GetSubmissions(ctx context.Context, cik int) (*Submissions, error) {
	// Submissions paths use the 10-digit zero-padded CIK
	reqURL := fmt.Sprintf("%s/submissions/CIK%010d.json", c.baseURL, cik)

	var result Submissions
	if err := c.get(ctx, reqURL, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetDocument retrieves a filing's primary document. Accession numbers
// appear dashed in the feed but undashed in archive paths.
func (c *Client) GetDocument(ctx context.Context, cik int, accessionNumber, primaryDocument string) ([]byte, error) {
	accession := strings.ReplaceAll(accessionNumber, "-", "")
	reqURL := fmt.Sprintf("%s/edgar/data/%d/%s/%s", c.archivesURL, cik, accession, primaryDocument)
	return c.getRaw(ctx, reqURL)
}

// DocumentURL returns the public URL for a filing's primary document.
func (c *Client) DocumentURL(cik int, accessionNumber, primaryDocument string) string {
	accession := strings.ReplaceAll(accessionNumber, "-", "")
	return fmt.Sprintf("%s/edgar/data/%d/%s/%s", c.archivesURL, cik, accession, primaryDocument)
}
