// Package connectors assembles the enabled vendor connectors from
// configuration, sharing one resilient HTTP transport across them.
package connectors

import (
	"context"
	"net/http"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/ice/internal/common"
	"github.com/ternarybob/ice/internal/connectors/benzinga"
	"github.com/ternarybob/ice/internal/connectors/edgar"
	"github.com/ternarybob/ice/internal/connectors/finnhub"
	"github.com/ternarybob/ice/internal/connectors/newsapi"
	"github.com/ternarybob/ice/internal/connectors/openbb"
	"github.com/ternarybob/ice/internal/connectors/polygon"
	"github.com/ternarybob/ice/internal/connectors/robust"
	"github.com/ternarybob/ice/internal/interfaces"
)

// Registry holds the constructed connectors grouped by capability.
type Registry struct {
	news    []interfaces.NewsProvider
	quotes  []interfaces.QuoteProvider
	bars    []interfaces.BarProvider
	filings []interfaces.FilingProvider

	edgarConnector *edgar.Connector
	transport      *robust.Transport
	logger         arbor.ILogger
}

// NewRegistry builds connectors for every enabled vendor. API keys
// resolve through environment, KV store, then config fallback; a vendor
// whose key cannot be resolved is skipped with a warning rather than
// failing startup.
func NewRegistry(ctx context.Context, config *common.Config, kvStorage interfaces.KeyValueStorage, logger arbor.ILogger) *Registry {
	r := &Registry{
		transport: robust.NewTransport(logger),
		logger:    logger,
	}

	cc := &config.Connectors

	if cc.Benzinga.Enabled {
		if apiKey := r.resolveKey(ctx, kvStorage, "benzinga_api_key", cc.Benzinga.APIKey); apiKey != "" {
			client := benzinga.NewClient(apiKey,
				benzinga.WithBaseURL(cc.Benzinga.BaseURL),
				benzinga.WithHTTPClient(r.httpClient(cc.Benzinga.Timeout)),
				benzinga.WithLogger(logger),
				benzinga.WithRateLimit(parseInterval(cc.Benzinga.RateLimit), cc.Benzinga.Burst),
			)
			connector := benzinga.NewConnector(client, logger)
			r.news = append(r.news, connector)
		}
	}

	if cc.Polygon.Enabled {
		if apiKey := r.resolveKey(ctx, kvStorage, "polygon_api_key", cc.Polygon.APIKey); apiKey != "" {
			client := polygon.NewClient(apiKey,
				polygon.WithBaseURL(cc.Polygon.BaseURL),
				polygon.WithHTTPClient(r.httpClient(cc.Polygon.Timeout)),
				polygon.WithLogger(logger),
				polygon.WithRateLimit(parseInterval(cc.Polygon.RateLimit), cc.Polygon.Burst),
			)
			connector := polygon.NewConnector(client, logger)
			r.news = append(r.news, connector)
			r.quotes = append(r.quotes, connector)
			r.bars = append(r.bars, connector)
		}
	}

	if cc.NewsAPI.Enabled {
		if apiKey := r.resolveKey(ctx, kvStorage, "newsapi_api_key", cc.NewsAPI.APIKey); apiKey != "" {
			client := newsapi.NewClient(apiKey,
				newsapi.WithBaseURL(cc.NewsAPI.BaseURL),
				newsapi.WithHTTPClient(r.httpClient(cc.NewsAPI.Timeout)),
				newsapi.WithLogger(logger),
				newsapi.WithRateLimit(parseInterval(cc.NewsAPI.RateLimit), cc.NewsAPI.Burst),
			)
			connector := newsapi.NewConnector(client, nil, logger)
			r.news = append(r.news, connector)
		}
	}

	if cc.OpenBB.Enabled {
		if token := r.resolveKey(ctx, kvStorage, "openbb_api_key", cc.OpenBB.APIKey); token != "" {
			client := openbb.NewClient(token,
				openbb.WithBaseURL(cc.OpenBB.BaseURL),
				openbb.WithHTTPClient(r.httpClient(cc.OpenBB.Timeout)),
				openbb.WithLogger(logger),
				openbb.WithRateLimit(parseInterval(cc.OpenBB.RateLimit), cc.OpenBB.Burst),
			)
			connector := openbb.NewConnector(client, logger)
			r.news = append(r.news, connector)
			r.quotes = append(r.quotes, connector)
		}
	}

	if cc.Finnhub.Enabled {
		if apiKey := r.resolveKey(ctx, kvStorage, "finnhub_api_key", cc.Finnhub.APIKey); apiKey != "" {
			client := finnhub.NewClient(apiKey,
				finnhub.WithBaseURL(cc.Finnhub.BaseURL),
				finnhub.WithHTTPClient(r.httpClient(cc.Finnhub.Timeout)),
				finnhub.WithLogger(logger),
				finnhub.WithRateLimit(parseInterval(cc.Finnhub.RateLimit), cc.Finnhub.Burst),
			)
			connector := finnhub.NewConnector(client, logger)
			r.news = append(r.news, connector)
			r.quotes = append(r.quotes, connector)
		}
	}

	if cc.EDGAR.Enabled {
		if cc.EDGAR.UserAgent == "" {
			logger.Warn().Msg("EDGAR connector enabled but user_agent is empty, skipping")
		} else {
			client := edgar.NewClient(cc.EDGAR.UserAgent,
				edgar.WithBaseURL(cc.EDGAR.BaseURL),
				edgar.WithHTTPClient(r.httpClient("")),
				edgar.WithLogger(logger),
				edgar.WithRateLimit(parseInterval(cc.EDGAR.RateLimit)),
			)
			connector := edgar.NewConnector(client, cc.EDGAR.Forms, logger)
			r.filings = append(r.filings, connector)
			r.edgarConnector = connector
		}
	}

	logger.Info().
		Int("news", len(r.news)).
		Int("quotes", len(r.quotes)).
		Int("filings", len(r.filings)).
		Msg("Connector registry initialized")

	return r
}

// News returns the enabled news providers.
func (r *Registry) News() []interfaces.NewsProvider {
	return r.news
}

// Quotes returns the enabled quote providers.
func (r *Registry) Quotes() []interfaces.QuoteProvider {
	return r.quotes
}

// Bars returns the enabled bar providers.
func (r *Registry) Bars() []interfaces.BarProvider {
	return r.bars
}

// Filings returns the enabled filing providers.
func (r *Registry) Filings() []interfaces.FilingProvider {
	return r.filings
}

// EDGAR returns the EDGAR connector when enabled, for filing document
// fetches beyond the FilingProvider surface.
func (r *Registry) EDGAR() *edgar.Connector {
	return r.edgarConnector
}

// BreakerStatus reports circuit breaker state across all vendor hosts.
func (r *Registry) BreakerStatus() []interfaces.BreakerStatus {
	return r.transport.Breaker.Status()
}

// Enabled lists the active connector names for the status endpoint.
func (r *Registry) Enabled() []string {
	seen := make(map[string]bool)
	var names []string
	for _, p := range r.news {
		if !seen[p.Name()] {
			seen[p.Name()] = true
			names = append(names, p.Name())
		}
	}
	for _, p := range r.quotes {
		if !seen[p.Name()] {
			seen[p.Name()] = true
			names = append(names, p.Name())
		}
	}
	for _, p := range r.filings {
		if !seen[p.Name()] {
			seen[p.Name()] = true
			names = append(names, p.Name())
		}
	}
	return names
}

// resolveKey resolves a vendor API key, logging a warning when absent.
func (r *Registry) resolveKey(ctx context.Context, kvStorage interfaces.KeyValueStorage, name, fallback string) string {
	apiKey, err := common.ResolveAPIKey(ctx, kvStorage, name, fallback)
	if err != nil || apiKey == "" {
		r.logger.Warn().Str("key", name).Msg("API key not configured, connector disabled")
		return ""
	}
	return apiKey
}

// httpClient builds a client over the shared resilient transport.
func (r *Registry) httpClient(timeout string) *http.Client {
	d, err := time.ParseDuration(timeout)
	if err != nil || d <= 0 {
		d = 30 * time.Second
	}
	return robust.NewHTTPClient(r.transport, d)
}

// parseInterval parses a rate-limit interval, zero on failure so vendor
// defaults apply.
func parseInterval(interval string) time.Duration {
	d, err := time.ParseDuration(interval)
	if err != nil {
		return 0
	}
	return d
}
