package validation

import (
	"testing"
	"time"

	"github.com/ternarybob/ice/internal/models"
)

func TestCrossCheckQuotes(t *testing.T) {
	now := time.Now().UTC()
	tests := []struct {
		name       string
		quotes     []models.Quote
		wantIssues int
	}{
		{
			name: "agreeing sources produce no issues",
			quotes: []models.Quote{
				{Symbol: "AAPL", Close: 230.50, Source: models.SourcePolygon, Timestamp: now},
				{Symbol: "AAPL", Close: 230.75, Source: models.SourceFinnhub, Timestamp: now},
			},
			wantIssues: 0,
		},
		{
			name: "divergent sources flagged",
			quotes: []models.Quote{
				{Symbol: "AAPL", Close: 230.00, Source: models.SourcePolygon, Timestamp: now},
				{Symbol: "AAPL", Close: 241.00, Source: models.SourceFinnhub, Timestamp: now},
			},
			wantIssues: 1,
		},
		{
			name: "same source pairs skipped",
			quotes: []models.Quote{
				{Symbol: "AAPL", Close: 230.00, Source: models.SourcePolygon, Timestamp: now},
				{Symbol: "AAPL", Close: 280.00, Source: models.SourcePolygon, Timestamp: now},
			},
			wantIssues: 0,
		},
		{
			name: "zero close skipped",
			quotes: []models.Quote{
				{Symbol: "AAPL", Close: 0, Source: models.SourcePolygon, Timestamp: now},
				{Symbol: "AAPL", Close: 230.00, Source: models.SourceFinnhub, Timestamp: now},
			},
			wantIssues: 0,
		},
		{
			name: "three sources report each divergent pair",
			quotes: []models.Quote{
				{Symbol: "AAPL", Close: 230.00, Source: models.SourcePolygon, Timestamp: now},
				{Symbol: "AAPL", Close: 230.40, Source: models.SourceFinnhub, Timestamp: now},
				{Symbol: "AAPL", Close: 250.00, Source: models.SourceOpenBB, Timestamp: now},
			},
			wantIssues: 2,
		},
		{
			name:       "single quote has nothing to compare",
			quotes:     []models.Quote{{Symbol: "AAPL", Close: 230.00, Source: models.SourcePolygon, Timestamp: now}},
			wantIssues: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newTestService(&mockDedupeStorage{})

			issues := svc.CrossCheckQuotes("AAPL", tt.quotes)

			if len(issues) != tt.wantIssues {
				t.Errorf("Expected %d issues, got %d: %+v", tt.wantIssues, len(issues), issues)
			}
			for _, issue := range issues {
				if issue.Code != "quote_divergence" {
					t.Errorf("Expected quote_divergence code, got %s", issue.Code)
				}
				if issue.Severity != models.SeverityWarning {
					t.Errorf("Expected warning severity, got %s", issue.Severity)
				}
			}
		})
	}
}

func TestCorrelateArticles(t *testing.T) {
	now := time.Now().UTC()
	sameStory := func(id, source string, published time.Time) models.NewsArticle {
		return models.NewsArticle{
			ID:          id,
			Source:      source,
			Title:       "Apple beats earnings expectations for third quarter",
			PublishedAt: published,
			Symbols:     []string{"AAPL"},
		}
	}

	t.Run("matching stories corroborate both directions", func(t *testing.T) {
		svc := newTestService(&mockDedupeStorage{})
		articles := []models.NewsArticle{
			sameStory("a1", models.SourceBenzinga, now),
			sameStory("a2", models.SourceNewsAPI, now.Add(3*time.Hour)),
		}

		corroborated := svc.CorrelateArticles(articles)

		if len(corroborated["a1"]) != 1 || corroborated["a1"][0] != models.SourceNewsAPI {
			t.Errorf("Expected a1 corroborated by newsapi, got %+v", corroborated["a1"])
		}
		if len(corroborated["a2"]) != 1 || corroborated["a2"][0] != models.SourceBenzinga {
			t.Errorf("Expected a2 corroborated by benzinga, got %+v", corroborated["a2"])
		}
	})

	t.Run("same source never corroborates", func(t *testing.T) {
		svc := newTestService(&mockDedupeStorage{})
		articles := []models.NewsArticle{
			sameStory("a1", models.SourceBenzinga, now),
			sameStory("a2", models.SourceBenzinga, now),
		}

		corroborated := svc.CorrelateArticles(articles)

		if len(corroborated) != 0 {
			t.Errorf("Expected no corroboration, got %+v", corroborated)
		}
	})

	t.Run("outside publication window skipped", func(t *testing.T) {
		svc := newTestService(&mockDedupeStorage{})
		articles := []models.NewsArticle{
			sameStory("a1", models.SourceBenzinga, now),
			sameStory("a2", models.SourceNewsAPI, now.Add(-72*time.Hour)),
		}

		corroborated := svc.CorrelateArticles(articles)

		if len(corroborated) != 0 {
			t.Errorf("Expected no corroboration, got %+v", corroborated)
		}
	})

	t.Run("different stories skipped", func(t *testing.T) {
		svc := newTestService(&mockDedupeStorage{})
		other := sameStory("a2", models.SourceNewsAPI, now)
		other.Title = "Microsoft announces new datacenter investment in Ohio"
		other.Symbols = []string{"MSFT"}
		articles := []models.NewsArticle{sameStory("a1", models.SourceBenzinga, now), other}

		corroborated := svc.CorrelateArticles(articles)

		if len(corroborated) != 0 {
			t.Errorf("Expected no corroboration, got %+v", corroborated)
		}
	})

	t.Run("no symbol overlap skipped", func(t *testing.T) {
		svc := newTestService(&mockDedupeStorage{})
		other := sameStory("a2", models.SourceNewsAPI, now)
		other.Symbols = []string{"MSFT"}
		articles := []models.NewsArticle{sameStory("a1", models.SourceBenzinga, now), other}

		corroborated := svc.CorrelateArticles(articles)

		if len(corroborated) != 0 {
			t.Errorf("Expected no corroboration, got %+v", corroborated)
		}
	})

	t.Run("punctuation and case ignored in titles", func(t *testing.T) {
		svc := newTestService(&mockDedupeStorage{})
		variant := sameStory("a2", models.SourceNewsAPI, now)
		variant.Title = "APPLE Beats Earnings Expectations, For Third Quarter!"
		articles := []models.NewsArticle{sameStory("a1", models.SourceBenzinga, now), variant}

		corroborated := svc.CorrelateArticles(articles)

		if len(corroborated["a1"]) != 1 {
			t.Errorf("Expected title variants to match, got %+v", corroborated)
		}
	})

	t.Run("three sources accumulate", func(t *testing.T) {
		svc := newTestService(&mockDedupeStorage{})
		articles := []models.NewsArticle{
			sameStory("a1", models.SourceBenzinga, now),
			sameStory("a2", models.SourceNewsAPI, now.Add(time.Hour)),
			sameStory("a3", models.SourceOpenBB, now.Add(2*time.Hour)),
		}

		corroborated := svc.CorrelateArticles(articles)

		if len(corroborated["a1"]) != 2 {
			t.Errorf("Expected a1 corroborated by two sources, got %+v", corroborated["a1"])
		}
		if len(corroborated["a2"]) != 2 || len(corroborated["a3"]) != 2 {
			t.Errorf("Expected full cross-corroboration, got %+v", corroborated)
		}
	})
}
