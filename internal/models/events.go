package models

import "time"

// Pipeline phase names used in streamed events.
const (
	PhaseClassify    = "classify"
	PhaseRetrieve    = "retrieve"
	PhaseGenerate    = "generate"
	PhaseAttribute   = "attribute"
	PhaseCalculate   = "calculate"
	PhaseCategorize  = "categorize"
	PhaseFormat      = "format"
	PhaseFetch       = "fetch"
	PhaseValidate    = "validate"
	PhaseExtract     = "extract"
	PhaseEnhance     = "enhance"
	PhaseEmbed       = "embed"
	PhaseStore       = "store"
	PhaseEmailSync   = "email_sync"
	PhaseRunComplete = "run_complete"
)

// PipelineEvent is one progress notification streamed to websocket
// subscribers while a query or ingestion run executes.
type PipelineEvent struct {
	Phase   string                 `json:"phase"`
	Message string                 `json:"message"`
	At      time.Time              `json:"at"`
	Data    map[string]interface{} `json:"data,omitempty"`
}
