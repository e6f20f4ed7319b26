// -----------------------------------------------------------------------
// Package knowledge owns the document ingestion pipeline (entity
// extraction, markup enhancement, chunking, embedding, persistence) and
// retrieval-augmented answering over the stored corpus.
// -----------------------------------------------------------------------

package knowledge

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/ice/internal/common"
	"github.com/ternarybob/ice/internal/interfaces"
	"github.com/ternarybob/ice/internal/models"
	"github.com/ternarybob/ice/internal/services/entities"
)

const (
	defaultMaxContextChars = 24000

	// extractiveChunkLimit caps how many chunks are stitched into a
	// fallback answer when no LLM is reachable.
	extractiveChunkLimit = 3
)

const answerSystemPrompt = `You are a financial research assistant answering questions from a curated store of market research, filings, and news.

Instructions:
1. Answer using only the information in the provided context documents.
2. Quote figures exactly as they appear in the context. Never invent or estimate numbers.
3. When the context does not contain the answer, say so directly instead of speculating.
4. Mention which documents support key statements when it helps the reader.
5. Be concise. Use markdown formatting when it improves readability.`

// Service implements the knowledge layer over document and entity storage.
type Service struct {
	documents       interfaces.DocumentStorage
	entities        interfaces.EntityStorage
	extractor       *entities.Extractor
	embedder        interfaces.EmbeddingService
	llm             interfaces.LLMService
	search          interfaces.SearchService
	events          interfaces.EventService
	maxContextChars int
	logger          arbor.ILogger
}

// NewService creates the knowledge service.
func NewService(
	documentStorage interfaces.DocumentStorage,
	entityStorage interfaces.EntityStorage,
	extractor *entities.Extractor,
	embedder interfaces.EmbeddingService,
	llm interfaces.LLMService,
	search interfaces.SearchService,
	events interfaces.EventService,
	cfg *common.QueryConfig,
	logger arbor.ILogger,
) *Service {
	maxContext := defaultMaxContextChars
	if cfg != nil && cfg.MaxContextChars > 0 {
		maxContext = cfg.MaxContextChars
	}

	return &Service{
		documents:       documentStorage,
		entities:        entityStorage,
		extractor:       extractor,
		embedder:        embedder,
		llm:             llm,
		search:          search,
		events:          events,
		maxContextChars: maxContext,
		logger:          logger,
	}
}

// IngestDocument runs the full enhancement pipeline: frontmatter
// extraction, entity extraction, markup weaving, chunking, embedding,
// then persistence of the document and its graph. Embedding failures are
// deferred rather than fatal so ingestion keeps working while the
// provider is down.
func (s *Service) IngestDocument(ctx context.Context, doc *models.Document) error {
	if doc == nil {
		return fmt.Errorf("document is nil")
	}
	if strings.TrimSpace(doc.ContentMarkdown) == "" && strings.TrimSpace(doc.Title) == "" {
		return fmt.Errorf("document has no content")
	}
	start := time.Now()

	if doc.ID == "" {
		doc.ID = common.NewDocumentID()
	}

	metadata, body, err := ParseFrontmatter(doc.ContentMarkdown)
	if err != nil {
		s.logger.Warn().Err(err).Str("doc_id", doc.ID).Msg("Frontmatter parse failed, keeping raw content")
	} else if len(metadata) > 0 {
		doc.ContentMarkdown = body
		if doc.Metadata == nil {
			doc.Metadata = make(map[string]interface{})
		}
		for key, value := range metadata {
			if _, exists := doc.Metadata[key]; !exists {
				doc.Metadata[key] = value
			}
		}
		applyFrontmatterFields(doc, metadata)
	}

	extracted, relationships := s.extractor.ExtractFromDocument(doc)
	s.phase(ctx, models.PhaseExtract, "Entities extracted", map[string]interface{}{
		"doc_id":        doc.ID,
		"entities":      len(extracted),
		"relationships": len(relationships),
	})

	doc.EnhancedContent = EnhanceDocument(doc, extracted, relationships)
	doc.Chunks = chunkDocument(doc)
	s.phase(ctx, models.PhaseEnhance, "Markup woven", map[string]interface{}{
		"doc_id": doc.ID,
		"chunks": len(doc.Chunks),
	})

	if err := s.embedder.EmbedChunks(ctx, doc); err != nil {
		s.logger.Warn().Err(err).Str("doc_id", doc.ID).Msg("Chunk embedding failed, deferring to embedding coordinator")
	} else if len(doc.Chunks) > 0 {
		s.phase(ctx, models.PhaseEmbed, "Chunks embedded", map[string]interface{}{
			"doc_id": doc.ID,
			"chunks": len(doc.Chunks),
		})
	}

	now := time.Now().UTC()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	doc.UpdatedAt = now
	doc.IngestedAt = &now

	if err := s.documents.SaveDocument(doc); err != nil {
		return fmt.Errorf("failed to save document %s: %w", doc.ID, err)
	}

	// Graph persistence degrades rather than failing the ingest: the
	// document is already searchable, only relationship expansion suffers.
	if len(extracted) > 0 {
		if err := s.entities.SaveEntities(extracted); err != nil {
			s.logger.Warn().Err(err).Str("doc_id", doc.ID).Msg("Failed to save entities")
		}
	}
	if len(relationships) > 0 {
		if err := s.entities.SaveRelationships(relationships); err != nil {
			s.logger.Warn().Err(err).Str("doc_id", doc.ID).Msg("Failed to save relationships")
		}
	}

	s.publish(ctx, interfaces.EventDocumentStored, models.PipelineEvent{
		Phase:   models.PhaseStore,
		Message: "Document stored",
		At:      time.Now(),
		Data: map[string]interface{}{
			"document_id": doc.ID,
			"source_type": doc.SourceType,
			"chunks":      len(doc.Chunks),
			"entities":    len(extracted),
		},
	})

	s.logger.Info().
		Str("doc_id", doc.ID).
		Str("source_type", doc.SourceType).
		Int("chunks", len(doc.Chunks)).
		Int("entities", len(extracted)).
		Int64("duration_ms", time.Since(start).Milliseconds()).
		Msg("Document ingested")

	return nil
}

// Answer retrieves context for the question and synthesizes an answer
// from it. When the LLM is unavailable or fails, the top chunks are
// stitched into an extractive answer instead so retrieval quality is
// never wasted.
func (s *Service) Answer(ctx context.Context, req models.QueryRequest) (*interfaces.KnowledgeResult, error) {
	question := strings.TrimSpace(req.Question)
	if question == "" {
		return nil, fmt.Errorf("question cannot be empty")
	}
	start := time.Now()

	query := interfaces.SearchQuery{
		Text:    question,
		Symbols: req.Symbols,
		Mode:    req.Mode,
	}

	if s.embedder.IsAvailable(ctx) {
		embedding, err := s.embedder.GenerateQueryEmbedding(ctx, question)
		if err != nil {
			s.logger.Warn().Err(err).Msg("Query embedding failed, falling back to keyword retrieval")
		} else {
			query.Embedding = embedding
		}
	}

	chunks, err := s.search.Search(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("retrieval failed: %w", err)
	}

	result := &interfaces.KnowledgeResult{Chunks: chunks}
	if len(chunks) == 0 {
		s.logger.Debug().Str("question", question).Msg("No context retrieved")
		return result, nil
	}

	result.Sources = sourceRefs(chunks)
	contextText := s.buildContext(chunks)

	if s.llm != nil && s.llm.IsAvailable(ctx) {
		text, lerr := s.llm.Complete(ctx, answerSystemPrompt+"\n\n"+contextText, question)
		if lerr != nil {
			s.logger.Warn().Err(lerr).Msg("Answer synthesis failed, returning extractive answer")
		} else {
			result.Text = strings.TrimSpace(text)
		}
	}

	if result.Text == "" {
		result.Text = extractiveAnswer(chunks, result.Sources)
		result.Extractive = true
	}

	s.logger.Debug().
		Int("chunks", len(chunks)).
		Bool("extractive", result.Extractive).
		Int64("duration_ms", time.Since(start).Milliseconds()).
		Msg("Answer generated")

	return result, nil
}

// applyFrontmatterFields promotes well-known frontmatter keys onto the
// document itself so classification works for hand-written notes.
func applyFrontmatterFields(doc *models.Document, metadata map[string]interface{}) {
	if title, ok := metadata["title"].(string); ok && doc.Title == "" {
		doc.Title = strings.TrimSpace(title)
	}
	if symbols := stringList(metadata["symbols"]); len(symbols) > 0 {
		doc.Symbols = models.NormalizeSymbols(append(doc.Symbols, symbols...))
	}
	if tags := stringList(metadata["tags"]); len(tags) > 0 {
		doc.Tags = mergeStrings(doc.Tags, tags)
	}
}

// stringList coerces a frontmatter value into a string slice. YAML lists
// arrive as []interface{}, comma-separated scalars as string.
func stringList(value interface{}) []string {
	switch v := value.(type) {
	case string:
		parts := strings.Split(v, ",")
		out := make([]string, 0, len(parts))
		for _, part := range parts {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
		return out
	case []string:
		return v
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				if s = strings.TrimSpace(s); s != "" {
					out = append(out, s)
				}
			}
		}
		return out
	}
	return nil
}

func mergeStrings(existing, extra []string) []string {
	seen := make(map[string]bool, len(existing)+len(extra))
	out := make([]string, 0, len(existing)+len(extra))
	for _, s := range existing {
		if s != "" && !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	for _, s := range extra {
		if s != "" && !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

// sourceRefs builds one reference per distinct document in retrieval
// order, keeping the best chunk score per document.
func sourceRefs(chunks []interfaces.ScoredChunk) []models.SourceRef {
	refs := make([]models.SourceRef, 0, len(chunks))
	index := make(map[string]int, len(chunks))

	for _, sc := range chunks {
		if sc.Document == nil {
			continue
		}
		if i, ok := index[sc.Document.ID]; ok {
			if sc.Score > refs[i].Score {
				refs[i].Score = sc.Score
			}
			continue
		}
		index[sc.Document.ID] = len(refs)
		refs = append(refs, models.SourceRef{
			DocumentID: sc.Document.ID,
			Title:      sc.Document.Title,
			SourceType: sc.Document.SourceType,
			URL:        sc.Document.URL,
			Score:      sc.Score,
		})
	}
	return refs
}

// contextBlock accumulates the retrieved chunks of one document.
type contextBlock struct {
	doc      *models.Document
	contents []string
}

// buildContext renders retrieved chunks into the context handed to the
// LLM, grouped per document in retrieval order and capped at the
// configured character budget. Document numbers line up with the source
// list so citations carry through.
func (s *Service) buildContext(chunks []interfaces.ScoredChunk) string {
	order := make([]string, 0, len(chunks))
	blocks := make(map[string]*contextBlock, len(chunks))

	for _, sc := range chunks {
		if sc.Document == nil {
			continue
		}
		block, ok := blocks[sc.Document.ID]
		if !ok {
			block = &contextBlock{doc: sc.Document}
			blocks[sc.Document.ID] = block
			order = append(order, sc.Document.ID)
		}
		block.contents = append(block.contents, sc.Chunk.Content)
	}

	budget := s.maxContextChars
	var sb strings.Builder
	sb.WriteString("RELEVANT CONTEXT:\n\n")

	for i, id := range order {
		text := renderBlock(i+1, blocks[id])
		if sb.Len()+len(text) > budget {
			if remaining := budget - sb.Len(); remaining > 200 {
				sb.WriteString(truncateText(text, remaining))
			}
			break
		}
		sb.WriteString(text)
	}

	return strings.TrimRight(sb.String(), "\n")
}

func renderBlock(number int, block *contextBlock) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Document %d:\n", number)
	fmt.Fprintf(&sb, "Source: %s\n", block.doc.SourceType)
	if block.doc.Title != "" {
		fmt.Fprintf(&sb, "Title: %s\n", block.doc.Title)
	}
	if block.doc.URL != "" {
		fmt.Fprintf(&sb, "URL: %s\n", block.doc.URL)
	}
	fmt.Fprintf(&sb, "Content: %s\n\n", strings.Join(block.contents, "\n\n"))
	return sb.String()
}

// truncateText cuts text to the byte limit at a rune boundary with a
// trailing ellipsis.
func truncateText(text string, limit int) string {
	if len(text) <= limit {
		return text
	}
	cut := limit - 3
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut] + "..."
}

// extractiveAnswer stitches the top retrieved chunks into a cited answer
// for when no LLM is reachable.
func extractiveAnswer(chunks []interfaces.ScoredChunk, sources []models.SourceRef) string {
	number := make(map[string]int, len(sources))
	for i, src := range sources {
		number[src.DocumentID] = i + 1
	}

	var sb strings.Builder
	count := 0
	for _, sc := range chunks {
		if count >= extractiveChunkLimit {
			break
		}
		content := strings.TrimSpace(sc.Chunk.Content)
		if content == "" {
			continue
		}
		if count > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(content)
		if sc.Document != nil {
			if n, ok := number[sc.Document.ID]; ok {
				fmt.Fprintf(&sb, " [%d]", n)
			}
		}
		count++
	}
	return sb.String()
}

func (s *Service) phase(ctx context.Context, phase, message string, data map[string]interface{}) {
	s.publish(ctx, interfaces.EventPipelinePhase, models.PipelineEvent{
		Phase:   phase,
		Message: message,
		At:      time.Now(),
		Data:    data,
	})
}

func (s *Service) publish(ctx context.Context, eventType interfaces.EventType, payload models.PipelineEvent) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(ctx, interfaces.Event{Type: eventType, Payload: payload}); err != nil {
		s.logger.Warn().Err(err).Str("event_type", string(eventType)).Msg("Failed to publish event")
	}
}

var _ interfaces.KnowledgeService = (*Service)(nil)
