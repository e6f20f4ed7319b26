package models

import "time"

// RunSummary records the outcome of one ingestion run for the status
// endpoint and the stored run history.
type RunSummary struct {
	ID         string        `json:"id" badgerhold:"key"`
	Source     string        `json:"source" badgerholdIndex:"Source"` // connector name, "all", "email" or "digest"
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Duration   time.Duration `json:"duration"`
	Fetched    int           `json:"fetched"`
	Valid      int           `json:"valid"`
	Rejected   int           `json:"rejected"`
	Stored     int           `json:"stored"`
	Entities   int           `json:"entities"`
	Errors     []string      `json:"errors,omitempty"`
}
