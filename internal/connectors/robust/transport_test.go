package robust

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ternarybob/arbor"
)

func newFastTransport() *Transport {
	t := NewTransport(arbor.NewLogger())
	t.Policy.InitialBackoff = time.Millisecond
	t.Policy.MaxBackoff = 5 * time.Millisecond
	return t
}

func TestTransportRetriesServerErrors(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewHTTPClient(newFastTransport(), 5*time.Second)
	resp, err := client.Get(server.URL)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected 200 after retries, got %d", resp.StatusCode)
	}
	if attempts != 3 {
		t.Errorf("Expected 3 attempts, got %d", attempts)
	}
}

func TestTransportDoesNotRetryClientErrors(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := NewHTTPClient(newFastTransport(), 5*time.Second)
	resp, err := client.Get(server.URL)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("Expected 404 passthrough, got %d", resp.StatusCode)
	}
	if attempts != 1 {
		t.Errorf("Expected single attempt for 404, got %d", attempts)
	}
}

func TestTransportReturnsLastResponseWhenExhausted(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := NewHTTPClient(newFastTransport(), 5*time.Second)
	resp, err := client.Get(server.URL)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("Expected 503 after exhausting retries, got %d", resp.StatusCode)
	}
}

func TestCircuitBreakerOpensAfterThreshold(t *testing.T) {
	breaker := NewCircuitBreaker(3, time.Hour)
	host := "api.example.com"

	for i := 0; i < 3; i++ {
		if err := breaker.Allow(host); err != nil {
			t.Fatalf("Expected request %d allowed, got %v", i, err)
		}
		breaker.RecordFailure(host)
	}

	if err := breaker.Allow(host); err != ErrCircuitOpen {
		t.Errorf("Expected ErrCircuitOpen after threshold, got %v", err)
	}

	statuses := breaker.Status()
	if len(statuses) != 1 || statuses[0].State != "open" {
		t.Errorf("Expected open breaker in status, got %+v", statuses)
	}
}

func TestCircuitBreakerHalfOpenTrial(t *testing.T) {
	breaker := NewCircuitBreaker(1, 10*time.Millisecond)
	host := "api.example.com"

	breaker.RecordFailure(host)
	if err := breaker.Allow(host); err != ErrCircuitOpen {
		t.Fatalf("Expected open breaker, got %v", err)
	}

	time.Sleep(20 * time.Millisecond)

	// Cooldown elapsed: one trial allowed
	if err := breaker.Allow(host); err != nil {
		t.Fatalf("Expected half-open trial allowed, got %v", err)
	}

	// Failed trial reopens immediately
	breaker.RecordFailure(host)
	if err := breaker.Allow(host); err != ErrCircuitOpen {
		t.Errorf("Expected reopened breaker after failed trial, got %v", err)
	}
}

func TestCircuitBreakerRecoversOnSuccess(t *testing.T) {
	breaker := NewCircuitBreaker(2, 10*time.Millisecond)
	host := "api.example.com"

	breaker.RecordFailure(host)
	breaker.RecordFailure(host)
	time.Sleep(20 * time.Millisecond)

	if err := breaker.Allow(host); err != nil {
		t.Fatalf("Expected half-open trial allowed, got %v", err)
	}
	breaker.RecordSuccess(host)

	if err := breaker.Allow(host); err != nil {
		t.Errorf("Expected closed breaker after success, got %v", err)
	}
	statuses := breaker.Status()
	if len(statuses) != 1 || statuses[0].State != "closed" || statuses[0].Failures != 0 {
		t.Errorf("Expected closed breaker with zero failures, got %+v", statuses)
	}
}

func TestRetryAfterHeaderHonored(t *testing.T) {
	attempts := 0
	var gap time.Duration
	var last time.Time

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		now := time.Now()
		if !last.IsZero() {
			gap = now.Sub(last)
		}
		last = now
		if attempts == 1 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	transport := newFastTransport()
	transport.Policy.MaxBackoff = 2 * time.Second

	client := NewHTTPClient(transport, 10*time.Second)
	resp, err := client.Get(server.URL)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected 200, got %d", resp.StatusCode)
	}
	if gap < 900*time.Millisecond {
		t.Errorf("Expected Retry-After to delay the retry by ~1s, waited %v", gap)
	}
}
