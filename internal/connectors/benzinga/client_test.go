package benzinga

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ternarybob/arbor"
)

const newsFixture = `[
  {
    "id": 38123001,
    "author": "Benzinga Newsdesk",
    "created": "Mon, 22 Jul 2024 12:30:45 -0400",
    "updated": "Mon, 22 Jul 2024 12:35:02 -0400",
    "title": "Apple Q3 Revenue Tops Estimates",
    "teaser": "Apple reported quarterly revenue of $94.9 billion.",
    "body": "<p>Apple Inc. reported <strong>revenue of $94.9 billion</strong> for the quarter.</p>",
    "url": "https://www.benzinga.com/news/38123001",
    "channels": [{"name": "Earnings"}],
    "stocks": [{"name": "AAPL"}],
    "tags": [{"name": "Consumer Tech"}]
  }
]`

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client := NewClient("test-key",
		WithBaseURL(server.URL),
		WithLogger(arbor.NewLogger()),
		WithRateLimit(time.Millisecond, 10),
	)
	return client, server
}

func TestGetNews(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v2/news" {
			t.Errorf("Unexpected path: %s", r.URL.Path)
		}
		if r.URL.Query().Get("token") != "test-key" {
			t.Error("Expected token query parameter")
		}
		if r.URL.Query().Get("tickers") != "AAPL" {
			t.Errorf("Expected tickers=AAPL, got %s", r.URL.Query().Get("tickers"))
		}
		if r.URL.Query().Get("displayOutput") != "full" {
			t.Error("Expected displayOutput=full")
		}
		if r.Header.Get("Accept") != "application/json" {
			t.Error("Expected Accept: application/json header")
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(newsFixture))
	})

	items, err := client.GetNews(context.Background(),
		WithTickers("AAPL"),
		WithDateRange(time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC), time.Date(2024, 7, 31, 0, 0, 0, 0, time.UTC)),
	)
	if err != nil {
		t.Fatalf("GetNews failed: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("Expected 1 item, got %d", len(items))
	}

	item := items[0]
	if item.ID != 38123001 {
		t.Errorf("Expected ID 38123001, got %d", item.ID)
	}
	if item.Created.IsZero() {
		t.Error("Expected created timestamp to parse")
	}
	if item.Created.Month() != time.July || item.Created.Day() != 22 {
		t.Errorf("Unexpected created time: %v", item.Created)
	}
}

func TestGetNewsAPIError(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"message":"invalid token"}`))
	})

	_, err := client.GetNews(context.Background())
	if err == nil {
		t.Fatal("Expected error for 401 response")
	}
	apiErr, ok := err.(*APIError)
	if !ok {
		t.Fatalf("Expected *APIError, got %T", err)
	}
	if apiErr.StatusCode != http.StatusUnauthorized {
		t.Errorf("Expected status 401, got %d", apiErr.StatusCode)
	}
}

func TestConnectorNormalize(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(newsFixture))
	})
	connector := NewConnector(client, arbor.NewLogger())

	articles, err := connector.FetchNews(context.Background(), "AAPL",
		time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC), time.Date(2024, 7, 31, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("FetchNews failed: %v", err)
	}
	if len(articles) != 1 {
		t.Fatalf("Expected 1 article, got %d", len(articles))
	}

	a := articles[0]
	if a.Source != "benzinga" {
		t.Errorf("Expected source benzinga, got %s", a.Source)
	}
	if a.VendorID != "38123001" {
		t.Errorf("Expected vendor ID 38123001, got %s", a.VendorID)
	}
	if a.ID == "" {
		t.Error("Expected a generated article ID")
	}
	if len(a.Symbols) != 1 || a.Symbols[0] != "AAPL" {
		t.Errorf("Expected symbols [AAPL], got %v", a.Symbols)
	}
	// HTML body converted to markdown
	if a.ContentMarkdown == "" {
		t.Fatal("Expected markdown content")
	}
	if !strings.Contains(a.ContentMarkdown, "**revenue of $94.9 billion**") {
		t.Errorf("Expected bold markdown in content, got %q", a.ContentMarkdown)
	}
	if strings.Contains(a.ContentMarkdown, "<p>") {
		t.Errorf("Expected HTML tags stripped, got %q", a.ContentMarkdown)
	}
	if len(a.Topics) == 0 || a.Topics[0] != "earnings" {
		t.Errorf("Expected lowercased channel topics, got %v", a.Topics)
	}
}
