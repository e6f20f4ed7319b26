package robust

import (
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/ternarybob/arbor"
)

// Transport is an http.RoundTripper that applies the retry policy and
// circuit breaker to every request. Vendor clients share one Transport
// so breaker state spans all callers of a host.
type Transport struct {
	Base    http.RoundTripper
	Policy  *RetryPolicy
	Breaker *CircuitBreaker
	Logger  arbor.ILogger
}

// NewTransport creates a Transport with default policy and breaker.
func NewTransport(logger arbor.ILogger) *Transport {
	return &Transport{
		Base:    http.DefaultTransport,
		Policy:  NewRetryPolicy(),
		Breaker: NewCircuitBreaker(5, 60*time.Second),
		Logger:  logger,
	}
}

// NewHTTPClient wraps the transport in an http.Client with the given timeout.
func NewHTTPClient(transport *Transport, timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &http.Client{
		Transport: transport,
		Timeout:   timeout,
	}
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	host := req.URL.Host

	if err := t.Breaker.Allow(host); err != nil {
		if t.Logger != nil {
			t.Logger.Warn().Str("host", host).Msg("Circuit breaker open, failing fast")
		}
		return nil, err
	}

	// Requests with a non-rewindable body get a single attempt. All
	// connector calls are GETs so this only guards misuse.
	retryable := req.Body == nil || req.GetBody != nil

	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}

	var resp *http.Response
	var err error

	for attempt := 0; attempt < t.Policy.MaxAttempts; attempt++ {
		if attempt > 0 && req.GetBody != nil {
			body, bodyErr := req.GetBody()
			if bodyErr != nil {
				return nil, bodyErr
			}
			req.Body = body
		}

		resp, err = base.RoundTrip(req)

		statusCode := 0
		if resp != nil {
			statusCode = resp.StatusCode
		}

		if err == nil && !t.Policy.isRetryableStatusCode(statusCode) {
			if statusCode < http.StatusInternalServerError {
				t.Breaker.RecordSuccess(host)
			} else {
				t.Breaker.RecordFailure(host)
			}
			return resp, nil
		}

		if !retryable || !t.Policy.ShouldRetry(attempt, statusCode, err) {
			break
		}
		if attempt == t.Policy.MaxAttempts-1 {
			// Exhausted: return the last response rather than sleeping again
			break
		}

		backoff := t.Policy.CalculateBackoff(attempt)
		if resp != nil {
			if ra := retryAfter(resp); ra > 0 && ra > backoff {
				backoff = ra
				if backoff > t.Policy.MaxBackoff {
					backoff = t.Policy.MaxBackoff
				}
			}
			// Drain so the connection can be reused
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			resp = nil
		}

		if t.Logger != nil {
			t.Logger.Debug().
				Str("host", host).
				Int("attempt", attempt+1).
				Int("status_code", statusCode).
				Err(err).
				Dur("backoff", backoff).
				Msg("Retrying request after backoff")
		}

		select {
		case <-req.Context().Done():
			t.Breaker.RecordFailure(host)
			return nil, req.Context().Err()
		case <-time.After(backoff):
		}
	}

	t.Breaker.RecordFailure(host)
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// retryAfter parses a Retry-After header given in seconds.
func retryAfter(resp *http.Response) time.Duration {
	value := resp.Header.Get("Retry-After")
	if value == "" {
		return 0
	}
	seconds, err := strconv.Atoi(value)
	if err != nil || seconds <= 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second
}
