package validation

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/ternarybob/ice/internal/models"
)

// correlationWindow bounds how far apart two articles can be published
// and still count as the same story.
const correlationWindow = 48 * time.Hour

// titleStemWords is how many leading significant words form the stem two
// headlines are compared on.
const titleStemWords = 8

// CrossCheckQuotes compares close prices for one symbol across sources
// and flags pairs diverging beyond the configured threshold. The caller
// attaches the returned issues to both records.
func (s *Service) CrossCheckQuotes(symbol string, quotes []models.Quote) []models.ValidationIssue {
	var issues []models.ValidationIssue

	for i := 0; i < len(quotes); i++ {
		for j := i + 1; j < len(quotes); j++ {
			a, b := quotes[i], quotes[j]
			if a.Source == b.Source || a.Close <= 0 || b.Close <= 0 {
				continue
			}
			pct := divergencePct(a.Close, b.Close)
			if pct > s.divergencePct {
				issues = append(issues, models.ValidationIssue{
					Field: "close",
					Code:  "quote_divergence",
					Message: fmt.Sprintf("%s close diverges %.2f%% between %s (%.4f) and %s (%.4f)",
						symbol, pct, a.Source, a.Close, b.Source, b.Close),
					Severity: models.SeverityWarning,
				})
			}
		}
	}

	if len(issues) > 0 {
		s.logger.Warn().
			Str("symbol", symbol).
			Int("divergent_pairs", len(issues)).
			Msg("Cross-source quote divergence detected")
	}

	return issues
}

// CorrelateArticles finds the same story reported by independent sources:
// matching title stems, overlapping symbols, published within the
// correlation window. Returns the corroborating sources per article ID so
// ingestion can annotate the stored documents.
func (s *Service) CorrelateArticles(articles []models.NewsArticle) map[string][]string {
	corroborated := make(map[string][]string)

	for i := 0; i < len(articles); i++ {
		for j := i + 1; j < len(articles); j++ {
			a, b := &articles[i], &articles[j]
			if a.Source == b.Source {
				continue
			}
			if !withinWindow(a.PublishedAt, b.PublishedAt, correlationWindow) {
				continue
			}
			if titleStem(a.Title) == "" || titleStem(a.Title) != titleStem(b.Title) {
				continue
			}
			if !symbolsOverlap(a.Symbols, b.Symbols) {
				continue
			}
			corroborated[a.ID] = appendSource(corroborated[a.ID], b.Source)
			corroborated[b.ID] = appendSource(corroborated[b.ID], a.Source)
		}
	}

	if len(corroborated) > 0 {
		s.logger.Debug().
			Int("articles", len(corroborated)).
			Msg("Cross-source article corroboration found")
	}

	return corroborated
}

// divergencePct is the absolute difference relative to the pair midpoint.
func divergencePct(a, b float64) float64 {
	mid := (a + b) / 2
	if mid == 0 {
		return 0
	}
	return math.Abs(a-b) / mid * 100
}

func withinWindow(a, b time.Time, window time.Duration) bool {
	if a.IsZero() || b.IsZero() {
		return false
	}
	diff := a.Sub(b)
	if diff < 0 {
		diff = -diff
	}
	return diff <= window
}

// titleStem normalizes a headline to its leading significant words so
// vendor-specific suffixes and punctuation differences do not break the
// match.
func titleStem(title string) string {
	cleaned := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == ' ':
			return r
		case r >= 'A' && r <= 'Z':
			return r + ('a' - 'A')
		default:
			return ' '
		}
	}, title)

	words := strings.Fields(cleaned)
	if len(words) > titleStemWords {
		words = words[:titleStemWords]
	}
	return strings.Join(words, " ")
}

func symbolsOverlap(a, b []string) bool {
	for _, x := range a {
		for _, y := range b {
			if strings.EqualFold(x, y) {
				return true
			}
		}
	}
	return false
}

func appendSource(sources []string, source string) []string {
	for _, existing := range sources {
		if existing == source {
			return sources
		}
	}
	return append(sources, source)
}
