package polygon

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ternarybob/arbor"
)

const newsFixture = `{
  "status": "OK",
  "count": 1,
  "results": [
    {
      "id": "abc123",
      "publisher": {"name": "The Motley Fool", "homepage_url": "https://www.fool.com"},
      "title": "Tesla Deliveries Beat Expectations",
      "author": "Jane Analyst",
      "published_utc": "2024-07-02T14:00:00Z",
      "article_url": "https://www.fool.com/tesla-deliveries",
      "tickers": ["TSLA", "F"],
      "description": "Tesla delivered 466000 vehicles in Q2.",
      "keywords": ["deliveries", "ev"],
      "insights": [
        {"ticker": "TSLA", "sentiment": "positive", "sentiment_reasoning": "Beat"},
        {"ticker": "F", "sentiment": "negative", "sentiment_reasoning": "Competition"}
      ]
    }
  ]
}`

const aggsFixture = `{
  "ticker": "TSLA",
  "status": "OK",
  "resultsCount": 2,
  "results": [
    {"o": 250.1, "h": 258.4, "l": 249.0, "c": 256.2, "v": 98000000, "vw": 254.7, "t": 1719878400000, "n": 812345},
    {"o": 256.5, "h": 262.0, "l": 255.1, "c": 261.4, "v": 87000000, "vw": 259.3, "t": 1719964800000, "n": 745220}
  ]
}`

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return NewClient("test-key",
		WithBaseURL(server.URL),
		WithLogger(arbor.NewLogger()),
		WithRateLimit(time.Millisecond, 10),
	)
}

func TestGetNews(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v2/reference/news" {
			t.Errorf("Unexpected path: %s", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("apiKey") != "test-key" {
			t.Error("Expected apiKey query parameter")
		}
		if q.Get("ticker") != "TSLA" {
			t.Errorf("Expected ticker=TSLA, got %s", q.Get("ticker"))
		}
		if q.Get("published_utc.gte") == "" || q.Get("published_utc.lte") == "" {
			t.Error("Expected published_utc range parameters")
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(newsFixture))
	})

	envelope, err := client.GetNews(context.Background(),
		WithTicker("TSLA"),
		WithDateRange(time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC), time.Date(2024, 7, 31, 0, 0, 0, 0, time.UTC)),
	)
	if err != nil {
		t.Fatalf("GetNews failed: %v", err)
	}
	if len(envelope.Results) != 1 {
		t.Fatalf("Expected 1 result, got %d", len(envelope.Results))
	}
	if envelope.Results[0].Publisher.Name != "The Motley Fool" {
		t.Errorf("Unexpected publisher: %s", envelope.Results[0].Publisher.Name)
	}
}

func TestConnectorSentimentForSymbol(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(newsFixture))
	})
	connector := NewConnector(client, arbor.NewLogger())

	articles, err := connector.FetchNews(context.Background(), "TSLA",
		time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC), time.Date(2024, 7, 31, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("FetchNews failed: %v", err)
	}
	if len(articles) != 1 {
		t.Fatalf("Expected 1 article, got %d", len(articles))
	}

	a := articles[0]
	if a.Sentiment == nil {
		t.Fatal("Expected sentiment for requested symbol")
	}
	if a.Sentiment.Label != "positive" || a.Sentiment.Polarity != 0.5 {
		t.Errorf("Expected positive/0.5, got %s/%v", a.Sentiment.Label, a.Sentiment.Polarity)
	}
	if len(a.Symbols) != 2 {
		t.Errorf("Expected 2 symbols, got %v", a.Symbols)
	}
	if a.Raw["publisher"] != "The Motley Fool" {
		t.Errorf("Expected publisher in raw metadata, got %v", a.Raw)
	}
}

func TestFetchBars(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v2/aggs/ticker/TSLA/range/1/day/2024-07-01/2024-07-05" {
			t.Errorf("Unexpected path: %s", r.URL.Path)
		}
		if r.URL.Query().Get("adjusted") != "true" {
			t.Error("Expected adjusted=true")
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(aggsFixture))
	})
	connector := NewConnector(client, arbor.NewLogger())

	bars, err := connector.FetchBars(context.Background(), "TSLA",
		time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC), time.Date(2024, 7, 5, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("FetchBars failed: %v", err)
	}
	if len(bars) != 2 {
		t.Fatalf("Expected 2 bars, got %d", len(bars))
	}
	if bars[0].Close != 256.2 {
		t.Errorf("Expected close 256.2, got %v", bars[0].Close)
	}
	if bars[0].Volume != 98000000 {
		t.Errorf("Expected volume 98000000, got %d", bars[0].Volume)
	}
	if bars[0].Start.Year() != 2024 {
		t.Errorf("Expected millisecond timestamp parsed, got %v", bars[0].Start)
	}
}

func TestFetchQuoteFromPreviousClose(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v2/aggs/ticker/TSLA/prev" {
			t.Errorf("Unexpected path: %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"OK","resultsCount":1,"results":[{"o":250.1,"h":258.4,"l":249.0,"c":256.2,"v":98000000,"vw":254.7,"t":1719878400000,"n":812345}]}`))
	})
	connector := NewConnector(client, arbor.NewLogger())

	quote, err := connector.FetchQuote(context.Background(), "TSLA")
	if err != nil {
		t.Fatalf("FetchQuote failed: %v", err)
	}
	if quote.Close != 256.2 {
		t.Errorf("Expected close 256.2, got %v", quote.Close)
	}
	if quote.Source != "polygon" {
		t.Errorf("Expected source polygon, got %s", quote.Source)
	}
}

func TestRateLimitError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := client.GetPreviousClose(context.Background(), "TSLA")
	if err == nil {
		t.Fatal("Expected error for 429 response")
	}
	if _, ok := err.(*RateLimitError); !ok {
		t.Fatalf("Expected *RateLimitError, got %T", err)
	}
}
