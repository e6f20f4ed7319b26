// -----------------------------------------------------------------------
// Package search ranks document chunks for a query by merging vector
// similarity, keyword matches, and entity graph expansion into one
// weighted score.
// -----------------------------------------------------------------------

package search

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/ice/internal/common"
	"github.com/ternarybob/ice/internal/interfaces"
	"github.com/ternarybob/ice/internal/models"
	"github.com/ternarybob/ice/internal/services/attribution"
	"github.com/ternarybob/ice/internal/services/entities"
)

// Ranking weights. Cosine similarity is scaled by weightVector so a
// perfect vector match carries the same weight as a direct symbol match.
const (
	weightVector        = 10.0
	weightSymbolMatch   = 10.0
	weightGraphHop      = 5.0
	weightTitleTerm     = 3.0
	weightContentTerm   = 1.0
	weightCorroboration = 20.0
)

const (
	// defaultTopK bounds results when neither query nor config set a limit
	defaultTopK = 12
	// relatedDocumentLimit caps graph expansion per query symbol
	relatedDocumentLimit = 50
	// documentScanLimit bounds the candidate pool for document search
	documentScanLimit = 1000
	// defaultDocumentLimit bounds SearchDocuments results
	defaultDocumentLimit = 100
)

// Service implements hybrid retrieval over the chunk store.
type Service struct {
	documents interfaces.DocumentStorage
	entities  interfaces.EntityStorage
	extractor *entities.Extractor
	topK      int
	mode      models.QueryMode
	logger    arbor.ILogger
}

// NewService creates the search service. The extractor feeds graph
// expansion with ticker symbols found in the query text.
func NewService(
	documentStorage interfaces.DocumentStorage,
	entityStorage interfaces.EntityStorage,
	extractor *entities.Extractor,
	cfg *common.QueryConfig,
	logger arbor.ILogger,
) *Service {
	topK := defaultTopK
	mode := models.ModeHybrid
	if cfg != nil {
		if cfg.TopK > 0 {
			topK = cfg.TopK
		}
		switch m := models.QueryMode(cfg.Mode); m {
		case models.ModeHybrid, models.ModeVector, models.ModeGraph:
			mode = m
		}
	}

	return &Service{
		documents: documentStorage,
		entities:  entityStorage,
		extractor: extractor,
		topK:      topK,
		mode:      mode,
		logger:    logger,
	}
}

// Search returns ranked chunks for the query. Hybrid mode merges vector
// similarity, keyword matches, and graph expansion; vector and graph
// modes run a single leg.
func (s *Service) Search(ctx context.Context, q interfaces.SearchQuery) ([]interfaces.ScoredChunk, error) {
	start := time.Now()

	text := strings.TrimSpace(q.Text)
	if text == "" && len(q.Embedding) == 0 && len(q.Symbols) == 0 {
		return nil, fmt.Errorf("search query cannot be empty")
	}

	mode := s.resolveMode(q.Mode)
	if mode == models.ModeVector && len(q.Embedding) == 0 {
		return nil, fmt.Errorf("vector mode requires a query embedding")
	}

	limit := q.Limit
	if limit <= 0 {
		limit = s.topK
	}

	symbols := models.NormalizeSymbols(q.Symbols)
	if len(symbols) == 0 && s.extractor != nil && text != "" {
		symbols = s.extractor.TagSymbols(text)
	}

	var terms []Token
	if mode == models.ModeHybrid {
		terms = searchTerms(Tokenize(text))
	}

	var related map[string]bool
	if mode != models.ModeVector {
		related = s.relatedDocuments(symbols)
	}

	scoreVectors := mode != models.ModeGraph && len(q.Embedding) > 0

	contexts := make(map[string]*docContext)
	var results []interfaces.ScoredChunk

	err := s.documents.IterateChunks(func(doc *models.Document, chunk *models.Chunk) bool {
		if ctx.Err() != nil {
			return false
		}

		dc, ok := contexts[doc.ID]
		if !ok {
			dc = s.documentContext(doc, mode, q.SourceTypes, symbols, related, terms)
			contexts[doc.ID] = dc
		}
		if !dc.include {
			return true
		}

		score := dc.weight
		similarity := 0.0
		if scoreVectors && len(chunk.Embedding) > 0 {
			if sim := attribution.Cosine(q.Embedding, chunk.Embedding); sim > 0 {
				similarity = sim
				score += sim * weightVector
			}
		}
		if mode == models.ModeHybrid {
			score += chunkTermScore(chunk.Content, terms)
		}

		if score > 0 {
			results = append(results, interfaces.ScoredChunk{
				Chunk:            *chunk,
				Document:         doc,
				Score:            score,
				VectorSimilarity: similarity,
			})
		}
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("chunk scan failed: %w", err)
	}
	if cerr := ctx.Err(); cerr != nil {
		return nil, cerr
	}

	sortResults(results)
	if len(results) > limit {
		results = results[:limit]
	}

	s.logger.Debug().
		Str("mode", string(mode)).
		Int("symbols", len(symbols)).
		Int("results", len(results)).
		Int64("duration_ms", time.Since(start).Milliseconds()).
		Msg("Search completed")

	return results, nil
}

// SearchDocuments ranks whole documents for a keyword query. An empty
// query lists recent documents instead.
func (s *Service) SearchDocuments(ctx context.Context, text string, limit int) ([]*models.Document, error) {
	text = strings.TrimSpace(text)
	if limit <= 0 {
		limit = defaultDocumentLimit
	}

	if text == "" {
		docs, err := s.documents.ListDocuments(&models.DocumentFilter{Limit: limit})
		if err != nil {
			return nil, fmt.Errorf("document listing failed: %w", err)
		}
		return docs, nil
	}

	terms := searchTerms(Tokenize(text))
	docs, err := s.documents.ListDocuments(&models.DocumentFilter{Limit: documentScanLimit})
	if err != nil {
		return nil, fmt.Errorf("document scan failed: %w", err)
	}

	type rankedDocument struct {
		doc   *models.Document
		score float64
	}
	var ranked []rankedDocument

	for _, doc := range docs {
		title := strings.ToLower(doc.Title)
		body := strings.ToLower(searchableContent(doc))

		score := 0.0
		missing := false
		for _, term := range terms {
			inTitle := strings.Contains(title, term.Value)
			inBody := strings.Contains(body, term.Value)
			if term.Required && !inTitle && !inBody {
				missing = true
				break
			}
			if inTitle {
				score += weightTitleTerm
			}
			if inBody {
				score += weightContentTerm
			}
		}
		if missing || score == 0 {
			continue
		}
		ranked = append(ranked, rankedDocument{doc: doc, score: score})
	}

	// ListDocuments returns newest first; the stable sort keeps that
	// order within equal scores.
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].score > ranked[j].score
	})

	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	result := make([]*models.Document, len(ranked))
	for i := range ranked {
		result[i] = ranked[i].doc
	}

	s.logger.Debug().
		Str("query", text).
		Int("results", len(result)).
		Msg("Document search completed")

	return result, nil
}

// resolveMode falls back to the configured default for empty or unknown
// modes.
func (s *Service) resolveMode(mode models.QueryMode) models.QueryMode {
	switch mode {
	case models.ModeHybrid, models.ModeVector, models.ModeGraph:
		return mode
	case "":
		return s.mode
	default:
		s.logger.Warn().
			Str("mode", string(mode)).
			Str("fallback", string(s.mode)).
			Msg("Unknown search mode")
		return s.mode
	}
}

// docContext carries the document-level score shared by every chunk of
// one document, computed once per document per query.
type docContext struct {
	include bool
	weight  float64
}

// documentContext applies document-level filters and weights: source
// type, required terms, direct symbol match, graph hop, title terms,
// and the corroboration bonus. Vector mode ranks on similarity alone,
// so only the filters apply there.
func (s *Service) documentContext(
	doc *models.Document,
	mode models.QueryMode,
	sourceTypes []string,
	symbols []string,
	related map[string]bool,
	terms []Token,
) *docContext {
	if len(sourceTypes) > 0 && !containsFold(sourceTypes, doc.SourceType) {
		return &docContext{}
	}

	dc := &docContext{include: true}
	if mode == models.ModeVector {
		return dc
	}

	title := strings.ToLower(doc.Title)
	if len(terms) > 0 {
		body := strings.ToLower(searchableContent(doc))
		for _, term := range terms {
			if term.Required && !strings.Contains(title, term.Value) && !strings.Contains(body, term.Value) {
				return &docContext{}
			}
		}
	}

	switch {
	case matchesSymbol(doc.Symbols, symbols):
		dc.weight += weightSymbolMatch
	case related[doc.ID]:
		dc.weight += weightGraphHop
	}

	if corroborated(doc) {
		dc.weight += weightCorroboration
	}

	for _, term := range terms {
		if strings.Contains(title, term.Value) {
			dc.weight += weightTitleTerm
		}
	}

	return dc
}

// relatedDocuments collects document IDs one relationship hop away from
// the query symbols.
func (s *Service) relatedDocuments(symbols []string) map[string]bool {
	related := make(map[string]bool)
	if s.entities == nil {
		return related
	}

	for _, symbol := range symbols {
		ids, err := s.entities.RelatedDocuments(symbol, relatedDocumentLimit)
		if err != nil {
			s.logger.Warn().Err(err).Str("symbol", symbol).Msg("Relationship lookup failed")
			continue
		}
		for _, id := range ids {
			related[id] = true
		}
	}

	return related
}

// chunkTermScore counts distinct query terms present in the chunk text.
func chunkTermScore(content string, terms []Token) float64 {
	if len(terms) == 0 || content == "" {
		return 0
	}

	lower := strings.ToLower(content)
	score := 0.0
	for _, term := range terms {
		if strings.Contains(lower, term.Value) {
			score += weightContentTerm
		}
	}
	return score
}

// searchableContent prefers the markup-tagged content so entity tags
// participate in keyword matching.
func searchableContent(doc *models.Document) string {
	if doc.EnhancedContent != "" {
		return doc.EnhancedContent
	}
	return doc.ContentMarkdown
}

// corroborated reports whether validation recorded a second source
// confirming this document's figures.
func corroborated(doc *models.Document) bool {
	if doc.Metadata == nil {
		return false
	}
	switch v := doc.Metadata["corroborated_by"].(type) {
	case string:
		return v != ""
	case []string:
		return len(v) > 0
	case []interface{}:
		return len(v) > 0
	}
	return false
}

// matchesSymbol reports whether any query symbol appears on the document.
func matchesSymbol(docSymbols, querySymbols []string) bool {
	for _, qs := range querySymbols {
		for _, ds := range docSymbols {
			if strings.EqualFold(ds, qs) {
				return true
			}
		}
	}
	return false
}

func containsFold(values []string, value string) bool {
	for _, v := range values {
		if strings.EqualFold(v, value) {
			return true
		}
	}
	return false
}

// sortResults orders by score, breaking ties by vector similarity, then
// document recency, then chunk position.
func sortResults(results []interfaces.ScoredChunk) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		if results[i].VectorSimilarity != results[j].VectorSimilarity {
			return results[i].VectorSimilarity > results[j].VectorSimilarity
		}
		di, dj := results[i].Document, results[j].Document
		if di != nil && dj != nil && !di.CreatedAt.Equal(dj.CreatedAt) {
			return di.CreatedAt.After(dj.CreatedAt)
		}
		return results[i].Chunk.Index < results[j].Chunk.Index
	})
}
