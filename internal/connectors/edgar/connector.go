package edgar

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/ice/internal/interfaces"
	"github.com/ternarybob/ice/internal/models"
)

// Connector adapts the EDGAR client to the normalized filing provider
// interface.
type Connector struct {
	client *Client
	forms  map[string]bool // form types to keep; empty keeps all non-noise
	logger arbor.ILogger
}

// Compile-time interface check
var _ interfaces.FilingProvider = (*Connector)(nil)

// NewConnector creates an EDGAR filing connector. forms narrows results
// to the given form types; nil keeps everything except NOISE category.
func NewConnector(client *Client, forms []string, logger arbor.ILogger) *Connector {
	formSet := make(map[string]bool, len(forms))
	for _, f := range forms {
		formSet[f] = true
	}
	return &Connector{
		client: client,
		forms:  formSet,
		logger: logger,
	}
}

// Name returns the connector's source name.
func (c *Connector) Name() string {
	return models.SourceEDGAR
}

// FetchFilings returns recent filings for the symbol, most recent first.
// The submissions feed stores filings as parallel arrays which are
// zipped into one Filing per index.
func (c *Connector) FetchFilings(ctx context.Context, symbol string, limit int) ([]models.Filing, error) {
	entry, err := c.client.ResolveCIK(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("edgar CIK resolution failed for %s: %w", symbol, err)
	}

	submissions, err := c.client.GetSubmissions(ctx, entry.CIK)
	if err != nil {
		return nil, fmt.Errorf("edgar submissions failed for %s: %w", symbol, err)
	}

	recent := submissions.Filings.Recent
	count := len(recent.AccessionNumber)

	var filings []models.Filing
	for i := 0; i < count; i++ {
		form := valueAt(recent.Form, i)
		category := models.CategorizeForm(form)

		if len(c.forms) > 0 {
			if !c.forms[form] {
				continue
			}
		} else if category == models.FilingCategoryNoise {
			continue
		}

		accession := valueAt(recent.AccessionNumber, i)
		primaryDoc := valueAt(recent.PrimaryDocument, i)

		filing := models.Filing{
			ID:              fmt.Sprintf("%d-%s", entry.CIK, accession),
			CIK:             fmt.Sprintf("%010d", entry.CIK),
			Company:         submissions.Name,
			AccessionNumber: accession,
			FormType:        form,
			PrimaryDocument: primaryDoc,
			Description:     valueAt(recent.PrimaryDocDescription, i),
			Symbols:         models.NormalizeSymbols([]string{symbol}),
			Category:        category,
		}
		if primaryDoc != "" {
			filing.PrimaryDocURL = c.client.DocumentURL(entry.CIK, accession, primaryDoc)
		}
		if t, err := time.Parse("2006-01-02", valueAt(recent.FilingDate, i)); err == nil {
			filing.FilingDate = t
		}
		if t, err := time.Parse("2006-01-02", valueAt(recent.ReportDate, i)); err == nil {
			filing.ReportDate = t
		}

		filings = append(filings, filing)
		if limit > 0 && len(filings) >= limit {
			break
		}
	}

	c.logger.Debug().
		Str("symbol", symbol).
		Int("cik", entry.CIK).
		Int("count", len(filings)).
		Msg("Fetched EDGAR filings")

	return filings, nil
}

// FetchDocument retrieves a filing's primary document and reduces it to
// markdown.
func (c *Connector) FetchDocument(ctx context.Context, filing *models.Filing) (string, error) {
	if filing.PrimaryDocument == "" {
		return "", fmt.Errorf("filing %s has no primary document", filing.AccessionNumber)
	}

	var cik int
	if _, err := fmt.Sscanf(filing.CIK, "%d", &cik); err != nil {
		return "", fmt.Errorf("invalid CIK %q: %w", filing.CIK, err)
	}

	raw, err := c.client.GetDocument(ctx, cik, filing.AccessionNumber, filing.PrimaryDocument)
	if err != nil {
		return "", fmt.Errorf("edgar document fetch failed: %w", err)
	}

	markdown, err := ReduceFilingHTML(string(raw))
	if err != nil {
		return "", fmt.Errorf("failed to reduce filing document: %w", err)
	}
	return markdown, nil
}

// valueAt guards against ragged parallel arrays in the feed.
func valueAt(values []string, i int) string {
	if i < len(values) {
		return values[i]
	}
	return ""
}
