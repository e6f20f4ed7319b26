package llm

import (
	"sync"
	"time"
)

// UsageStats is a point-in-time snapshot of LLM call accounting,
// surfaced through the status endpoint.
type UsageStats struct {
	Completions   int64     `json:"completions"`
	Embeddings    int64     `json:"embeddings"`
	Failures      int64     `json:"failures"`
	AvgDurationMs int64     `json:"avg_duration_ms"`
	LastCallAt    time.Time `json:"last_call_at"`
	LastError     string    `json:"last_error,omitempty"`
}

// UsageTracker accumulates in-memory call statistics for LLM operations.
type UsageTracker struct {
	mu            sync.Mutex
	completions   int64
	embeddings    int64
	failures      int64
	totalDuration time.Duration
	lastCallAt    time.Time
	lastError     string
}

// NewUsageTracker creates an empty usage tracker
func NewUsageTracker() *UsageTracker {
	return &UsageTracker{}
}

// Record accounts for a single provider call.
func (t *UsageTracker) Record(operation string, duration time.Duration, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if operation == "embed" {
		t.embeddings++
	} else {
		t.completions++
	}
	t.totalDuration += duration
	t.lastCallAt = time.Now()
	if err != nil {
		t.failures++
		t.lastError = err.Error()
	}
}

// Snapshot returns a copy of the current counters.
func (t *UsageTracker) Snapshot() UsageStats {
	t.mu.Lock()
	defer t.mu.Unlock()

	stats := UsageStats{
		Completions: t.completions,
		Embeddings:  t.embeddings,
		Failures:    t.failures,
		LastCallAt:  t.lastCallAt,
		LastError:   t.lastError,
	}
	if calls := t.completions + t.embeddings; calls > 0 {
		stats.AvgDurationMs = t.totalDuration.Milliseconds() / calls
	}
	return stats
}
