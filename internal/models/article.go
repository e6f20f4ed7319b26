package models

import (
	"sort"
	"strings"
	"time"
)

// Article source type constants
const (
	SourceBenzinga = "benzinga"
	SourcePolygon  = "polygon"
	SourceNewsAPI  = "newsapi"
	SourceOpenBB   = "openbb"
	SourceFinnhub  = "finnhub"
	SourceEDGAR    = "edgar"
	SourceEmail    = "email"
)

// ArticleSentiment holds vendor-supplied sentiment for an article.
// Label is one of "positive", "neutral", "negative".
type ArticleSentiment struct {
	Polarity float64 `json:"polarity"`
	Label    string  `json:"label"`
}

// NewsArticle is the normalized article shape every news connector produces.
// Vendor-specific fields that survive normalization live in Raw.
type NewsArticle struct {
	// Identity
	ID       string `json:"id"`                          // uuid assigned at normalization
	Source   string `json:"source" validate:"required"`  // benzinga, polygon, newsapi, openbb, finnhub
	VendorID string `json:"vendor_id"`                   // vendor's own article identifier

	// Content (markdown-first)
	Title           string `json:"title" validate:"required,notblank"`
	Summary         string `json:"summary,omitempty"`
	ContentMarkdown string `json:"content_markdown,omitempty"`
	URL             string `json:"url" validate:"omitempty,url"`
	Author          string `json:"author,omitempty"`

	// Classification
	PublishedAt time.Time         `json:"published_at" validate:"required"`
	Symbols     []string          `json:"symbols,omitempty" validate:"omitempty,dive,symbol"`
	Topics      []string          `json:"topics,omitempty"`
	Sentiment   *ArticleSentiment `json:"sentiment,omitempty"`

	Raw map[string]interface{} `json:"raw,omitempty"`
}

// NewsResponse wraps a batch of articles from one connector call.
type NewsResponse struct {
	Articles   []NewsArticle `json:"articles"`
	Source     string        `json:"source"`
	FetchedAt  time.Time     `json:"fetched_at"`
	Truncated  bool          `json:"truncated,omitempty"`
	NextCursor string        `json:"next_cursor,omitempty"`
}

// SentimentLabel maps a polarity score onto the three-way label.
func SentimentLabel(polarity float64) string {
	switch {
	case polarity > 0.1:
		return "positive"
	case polarity < -0.1:
		return "negative"
	default:
		return "neutral"
	}
}

// NormalizeSymbols upper-cases, trims, deduplicates and sorts ticker symbols.
// Connectors call this before an article leaves the package boundary.
func NormalizeSymbols(symbols []string) []string {
	if len(symbols) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(symbols))
	var out []string
	for _, s := range symbols {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
