package models

import "time"

// QueryMode selects the retrieval strategy.
type QueryMode string

const (
	ModeHybrid QueryMode = "hybrid" // vector + keyword + graph expansion
	ModeVector QueryMode = "vector" // embedding similarity only
	ModeGraph  QueryMode = "graph"  // entity relationship expansion only
)

// DetailLevel selects how much attribution detail the formatter renders.
type DetailLevel string

const (
	DetailSummary  DetailLevel = "summary"  // answer text only
	DetailSourced  DetailLevel = "sourced"  // + inline citations and source list
	DetailDetailed DetailLevel = "detailed" // + per-sentence attribution table
	DetailForensic DetailLevel = "forensic" // + entities, calculations, timing
)

// AttributionLevel grades how strongly a sentence is supported by a
// retrieved chunk.
type AttributionLevel string

const (
	AttributionStrong   AttributionLevel = "strong"
	AttributionModerate AttributionLevel = "moderate"
	AttributionWeak     AttributionLevel = "weak"
	AttributionNone     AttributionLevel = "none"
)

// QueryRequest is a question posed to the hybrid pipeline.
type QueryRequest struct {
	Question string      `json:"question"`
	Mode     QueryMode   `json:"mode,omitempty"`
	Detail   DetailLevel `json:"detail,omitempty"`
	Symbols  []string    `json:"symbols,omitempty"` // optional scope hint
}

// AttributedSentence is one answer sentence matched to its best source chunk.
type AttributedSentence struct {
	Text       string           `json:"text"`
	Index      int              `json:"index"`
	ChunkID    string           `json:"chunk_id,omitempty"`
	DocumentID string           `json:"document_id,omitempty"`
	Similarity float64          `json:"similarity"`
	Level      AttributionLevel `json:"level"`
}

// SourceRef points at one document that contributed to an answer.
type SourceRef struct {
	DocumentID string  `json:"document_id"`
	Title      string  `json:"title"`
	SourceType string  `json:"source_type"`
	URL        string  `json:"url,omitempty"`
	Score      float64 `json:"score"`
}

// CalculationTrace records one deterministic metric computation: the
// formula applied, named inputs, and the documents the inputs came from.
type CalculationTrace struct {
	Metric       string             `json:"metric"`
	Formula      string             `json:"formula"`
	Inputs       map[string]float64 `json:"inputs"`
	Result       float64            `json:"result"`
	Unit         string             `json:"unit"`
	InputSources []string           `json:"input_sources,omitempty"`
}

// QueryAnswer is the fully post-processed pipeline output.
type QueryAnswer struct {
	Text         string               `json:"text"`
	Sentences    []AttributedSentence `json:"sentences,omitempty"`
	Sources      []SourceRef          `json:"sources,omitempty"`
	Calculations []CalculationTrace   `json:"calculations,omitempty"`
	Entities     []CategorizedEntity  `json:"entities,omitempty"`
	Fallback     bool                 `json:"fallback"` // true when deterministic computation supplied values
	Elapsed      time.Duration        `json:"elapsed"`
}
