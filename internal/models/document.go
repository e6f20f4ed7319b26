package models

import "time"

// Document represents a normalized research document from any source.
// PRIMARY CONTENT FORMAT: Markdown (ContentMarkdown field).
// EnhancedContent is the markup-tagged version fed to the knowledge layer.
type Document struct {
	// Identity
	ID         string `json:"id" badgerhold:"key"`
	SourceType string `json:"source_type" badgerholdIndex:"SourceType"` // benzinga, polygon, edgar, email, ...
	SourceID   string `json:"source_id" badgerholdIndex:"SourceID"`     // stable per-source identifier for dedupe

	// Content (markdown-first)
	Title           string `json:"title"`
	ContentMarkdown string `json:"content_markdown"`
	EnhancedContent string `json:"enhanced_content,omitempty"` // inline entity markup + entity footer
	URL             string `json:"url,omitempty"`

	// Classification
	Symbols []string `json:"symbols,omitempty"`
	Tags    []string `json:"tags,omitempty"`

	// Metadata carries source-specific data plus validation annotations
	// (e.g. {"corroborated_by": ["finnhub"], "warnings": [...]})
	Metadata map[string]interface{} `json:"metadata,omitempty"`

	// Chunks are populated during ingestion, embeddings included
	Chunks []Chunk `json:"chunks,omitempty"`

	// Timestamps
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	IngestedAt *time.Time `json:"ingested_at,omitempty"`
}

// Chunk is one embeddable slice of a document.
type Chunk struct {
	ID            string    `json:"id"`
	DocumentID    string    `json:"document_id"`
	Index         int       `json:"index"`
	Content       string    `json:"content"`
	Embedding     []float64 `json:"embedding,omitempty"`
	TokenEstimate int       `json:"token_estimate,omitempty"`
}

// DocumentFilter narrows document listings.
type DocumentFilter struct {
	SourceType string
	Symbol     string
	Tag        string
	Since      time.Time
	Limit      int
	Offset     int
}

// DocumentStats summarizes the document store for the status endpoint.
type DocumentStats struct {
	TotalDocuments    int            `json:"total_documents"`
	DocumentsBySource map[string]int `json:"documents_by_source"`
	TotalChunks       int            `json:"total_chunks"`
	TotalEntities     int            `json:"total_entities"`
	LastIngested      *time.Time     `json:"last_ingested,omitempty"`
}
