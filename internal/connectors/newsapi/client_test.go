package newsapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ternarybob/arbor"
)

const everythingFixture = `{
  "status": "ok",
  "totalResults": 1,
  "articles": [
    {
      "source": {"id": "reuters", "name": "Reuters"},
      "author": "Staff Writer",
      "title": "Microsoft Cloud Growth Accelerates",
      "description": "Azure revenue grew 29% year over year.",
      "url": "https://reuters.com/msft-cloud",
      "publishedAt": "2024-07-10T08:15:00Z",
      "content": "Microsoft reported Azure revenue growth of 29% in the latest quarter. [+2841 chars]"
    }
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

func TestGetEverything(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v2/everything" {
			t.Errorf("Unexpected path: %s", r.URL.Path)
		}
		if r.Header.Get("X-Api-Key") != "test-key" {
			t.Error("Expected X-Api-Key header")
		}
		q := r.URL.Query()
		if q.Get("q") == "" {
			t.Error("Expected q parameter")
		}
		if q.Get("language") != "en" {
			t.Errorf("Expected language=en default, got %s", q.Get("language"))
		}
		if q.Get("sortBy") != "publishedAt" {
			t.Errorf("Expected sortBy=publishedAt default, got %s", q.Get("sortBy"))
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(everythingFixture))
	})

	envelope, err := client.GetEverything(context.Background(), WithQuery("MSFT"))
	if err != nil {
		t.Fatalf("GetEverything failed: %v", err)
	}
	if envelope.TotalResults != 1 {
		t.Errorf("Expected totalResults 1, got %d", envelope.TotalResults)
	}
	if len(envelope.Articles) != 1 {
		t.Fatalf("Expected 1 article, got %d", len(envelope.Articles))
	}
}

func TestAPIErrorEnvelope(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"status":"error","code":"apiKeyInvalid","message":"Your API key is invalid."}`))
	})

	_, err := client.GetEverything(context.Background(), WithQuery("MSFT"))
	if err == nil {
		t.Fatal("Expected error for 401 response")
	}
	apiErr, ok := err.(*APIError)
	if !ok {
		t.Fatalf("Expected *APIError, got %T", err)
	}
	if apiErr.Code != "apiKeyInvalid" {
		t.Errorf("Expected code apiKeyInvalid, got %s", apiErr.Code)
	}
	if !strings.Contains(apiErr.Message, "invalid") {
		t.Errorf("Expected vendor message, got %s", apiErr.Message)
	}
}

func TestNormalizeStripsTruncationMarker(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(everythingFixture))
	})
	connector := NewConnector(client, nil, arbor.NewLogger())

	articles, err := connector.FetchNews(context.Background(), "MSFT",
		time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC), time.Date(2024, 7, 31, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("FetchNews failed: %v", err)
	}
	if len(articles) != 1 {
		t.Fatalf("Expected 1 article, got %d", len(articles))
	}

	a := articles[0]
	if strings.Contains(a.ContentMarkdown, "chars]") {
		t.Errorf("Expected truncation marker stripped, got %q", a.ContentMarkdown)
	}
	if !strings.HasSuffix(a.ContentMarkdown, "quarter.") {
		t.Errorf("Unexpected content after stripping: %q", a.ContentMarkdown)
	}
	if a.VendorID != "https://reuters.com/msft-cloud" {
		t.Errorf("Expected URL as vendor ID, got %s", a.VendorID)
	}
	if len(a.Symbols) != 1 || a.Symbols[0] != "MSFT" {
		t.Errorf("Expected requested symbol attached, got %v", a.Symbols)
	}
}

func TestBuildQueryWithCompanyName(t *testing.T) {
	var gotQuery string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("q")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","totalResults":0,"articles":[]}`))
	})
	connector := NewConnector(client, map[string]string{"MSFT": "Microsoft"}, arbor.NewLogger())

	_, err := connector.FetchNews(context.Background(), "MSFT",
		time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC), time.Date(2024, 7, 31, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("FetchNews failed: %v", err)
	}
	if gotQuery != `"Microsoft" OR MSFT` {
		t.Errorf("Expected expanded query, got %q", gotQuery)
	}
}
