// -----------------------------------------------------------------------
// Package query orchestrates the hybrid answer pipeline: classify the
// question, retrieve and synthesize, attribute sentences, fall back to
// deterministic calculation for metric questions, categorize entities.
// -----------------------------------------------------------------------

package query

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/ice/internal/interfaces"
	"github.com/ternarybob/ice/internal/models"
	"github.com/ternarybob/ice/internal/services/entities"
	"github.com/ternarybob/ice/internal/services/financial"
)

// ErrUnanswerable marks a question no pipeline stage could answer.
var ErrUnanswerable = errors.New("question could not be answered from stored knowledge")

// QuestionClass buckets a question for pipeline routing.
type QuestionClass string

const (
	ClassMetric  QuestionClass = "metric"
	ClassEntity  QuestionClass = "entity"
	ClassFiling  QuestionClass = "filing"
	ClassGeneral QuestionClass = "general"
)

var filingKeywords = []string{
	"10-k", "10-q", "8-k", "20-f", "filing", "filed", "edgar",
	"annual report", "quarterly report", "proxy statement", "prospectus",
}

var entityKeywords = []string{
	"rating", "analyst", "upgrade", "downgrade", "price target",
	"initiated", "coverage", "who ", "related to", "mentioned",
	"competitor",
}

// Classify buckets the question by keyword table. No LLM round-trip.
func Classify(question string) QuestionClass {
	if financial.DetectMetric(question) != "" {
		return ClassMetric
	}
	lower := strings.ToLower(question)
	for _, kw := range filingKeywords {
		if strings.Contains(lower, kw) {
			return ClassFiling
		}
	}
	for _, kw := range entityKeywords {
		if strings.Contains(lower, kw) {
			return ClassEntity
		}
	}
	return ClassGeneral
}

// Processor is the cascade orchestrator behind POST /api/query.
type Processor struct {
	knowledge  interfaces.KnowledgeService
	attributor interfaces.AttributionService
	financial  interfaces.FinancialService
	extractor  *entities.Extractor
	events     interfaces.EventService
	logger     arbor.ILogger
}

// NewProcessor wires the pipeline stages together.
func NewProcessor(
	knowledge interfaces.KnowledgeService,
	attributor interfaces.AttributionService,
	financialSvc interfaces.FinancialService,
	extractor *entities.Extractor,
	events interfaces.EventService,
	logger arbor.ILogger,
) *Processor {
	return &Processor{
		knowledge:  knowledge,
		attributor: attributor,
		financial:  financialSvc,
		extractor:  extractor,
		events:     events,
		logger:     logger,
	}
}

// Process runs the full cascade for one question. Stage failures degrade
// stepwise: attribution failure drops sentence detail, retrieval failure
// on a metric question goes straight to the calculator, and only a total
// failure returns an error.
func (p *Processor) Process(ctx context.Context, req models.QueryRequest) (*interfaces.QueryResult, error) {
	start := time.Now()
	question := strings.TrimSpace(req.Question)
	if question == "" {
		return nil, fmt.Errorf("question cannot be empty")
	}

	p.publish(ctx, interfaces.EventQueryStarted, models.PipelineEvent{
		Phase:   models.PhaseClassify,
		Message: "Query started",
		At:      time.Now(),
		Data:    map[string]interface{}{"question": question},
	})

	class := Classify(question)
	symbols := req.Symbols
	if len(symbols) == 0 {
		symbols = p.extractor.TagSymbols(question)
	}
	p.phase(ctx, models.PhaseClassify, "Question classified", map[string]interface{}{
		"class":   string(class),
		"symbols": symbols,
	})

	answer := &models.QueryAnswer{}
	var chunks []interfaces.ScoredChunk

	result, err := p.knowledge.Answer(ctx, req)
	if err != nil {
		p.logger.Warn().Err(err).Str("class", string(class)).Msg("Knowledge answer failed")
		if class != ClassMetric {
			return nil, fmt.Errorf("answering %q: %w", question, err)
		}
	} else {
		answer.Text = result.Text
		answer.Sources = result.Sources
		chunks = result.Chunks
		p.phase(ctx, models.PhaseRetrieve, "Context retrieved", map[string]interface{}{
			"chunks":     len(chunks),
			"extractive": result.Extractive,
		})
	}

	if answer.Text != "" && len(chunks) > 0 {
		sentences, aerr := p.attributor.Attribute(ctx, answer.Text, chunks)
		if aerr != nil {
			p.logger.Warn().Err(aerr).Msg("Sentence attribution failed")
		} else {
			answer.Sentences = sentences
			p.phase(ctx, models.PhaseAttribute, "Sentences attributed", map[string]interface{}{
				"sentences": len(sentences),
				"supported": supportedCount(sentences),
			})
		}
	}

	if class == ClassMetric && p.needsCalculation(answer, chunks) {
		traces, cerr := p.financial.ComputeForQuestion(ctx, question, symbols)
		if cerr != nil {
			p.logger.Debug().Err(cerr).Msg("Deterministic calculation unavailable")
		} else if len(traces) > 0 {
			answer.Calculations = traces
			answer.Fallback = true
			answer.Text = spliceComputedValues(answer.Text, traces)
			p.phase(ctx, models.PhaseCalculate, "Computed values spliced", map[string]interface{}{
				"traces": len(traces),
			})
		}
	}

	if answer.Text == "" {
		return nil, fmt.Errorf("%w: class=%s question=%q", ErrUnanswerable, class, question)
	}

	answer.Entities = p.categorize(answer.Text, symbols)
	p.phase(ctx, models.PhaseCategorize, "Entities categorized", map[string]interface{}{
		"entities": len(answer.Entities),
	})

	answer.Elapsed = time.Since(start)
	p.publish(ctx, interfaces.EventQueryFinished, models.PipelineEvent{
		Phase:   models.PhaseFormat,
		Message: "Query finished",
		At:      time.Now(),
		Data: map[string]interface{}{
			"elapsed_ms": answer.Elapsed.Milliseconds(),
			"fallback":   answer.Fallback,
		},
	})

	return &interfaces.QueryResult{Answer: answer, Chunks: chunks}, nil
}

var digitPattern = regexp.MustCompile(`\d`)

// needsCalculation reports whether a metric question still lacks a
// well-supported numeric sentence.
func (p *Processor) needsCalculation(answer *models.QueryAnswer, chunks []interfaces.ScoredChunk) bool {
	if len(chunks) == 0 || answer.Text == "" {
		return true
	}
	for _, sentence := range answer.Sentences {
		if sentence.Level != models.AttributionStrong && sentence.Level != models.AttributionModerate {
			continue
		}
		if digitPattern.MatchString(sentence.Text) {
			return false
		}
	}
	return true
}

// spliceComputedValues appends a deterministic results section to the
// answer text.
func spliceComputedValues(text string, traces []models.CalculationTrace) string {
	var b strings.Builder
	if text != "" {
		b.WriteString(strings.TrimRight(text, "\n"))
		b.WriteString("\n\n")
	}
	b.WriteString("## Computed values\n\n")
	for _, trace := range traces {
		b.WriteString(fmt.Sprintf("- %s = %s %s (`%s`)\n",
			trace.Metric,
			strconv.FormatFloat(trace.Result, 'f', -1, 64),
			trace.Unit,
			trace.Formula,
		))
	}
	return b.String()
}

func supportedCount(sentences []models.AttributedSentence) int {
	n := 0
	for _, s := range sentences {
		if s.Level == models.AttributionStrong || s.Level == models.AttributionModerate {
			n++
		}
	}
	return n
}

// categorize extracts entities from the final answer text and labels
// each with a category and its mention count. Extraction deduplicates,
// so mentions are recounted against the text.
func (p *Processor) categorize(text string, querySymbols []string) []models.CategorizedEntity {
	extracted := p.extractor.ExtractFromText(text)
	if len(extracted) == 0 {
		return nil
	}

	mentions := make([]int, len(extracted))
	for i, entity := range extracted {
		mentions[i] = mentionCount(text, entity)
	}
	primary := primarySymbol(extracted, mentions, querySymbols)

	categorized := make([]models.CategorizedEntity, 0, len(extracted))
	for i, entity := range extracted {
		categorized = append(categorized, models.CategorizedEntity{
			Entity:   entity,
			Category: categoryFor(entity, primary),
			Mentions: mentions[i],
		})
	}
	sort.SliceStable(categorized, func(i, j int) bool {
		return categorized[i].Mentions > categorized[j].Mentions
	})
	return categorized
}

func mentionCount(text string, entity models.Entity) int {
	needle := entity.Value
	if entity.Type == models.EntityTicker {
		needle = entity.Normalized
	}
	if needle == "" {
		return 1
	}
	if n := strings.Count(text, needle); n > 0 {
		return n
	}
	return 1
}

// primarySymbol picks the dominant ticker: the first query symbol when
// given, otherwise the most-mentioned extracted ticker.
func primarySymbol(extracted []models.Entity, mentions []int, querySymbols []string) string {
	if len(querySymbols) > 0 {
		return strings.ToUpper(querySymbols[0])
	}
	best := ""
	bestMentions := 0
	for i, entity := range extracted {
		if entity.Type != models.EntityTicker {
			continue
		}
		if mentions[i] > bestMentions {
			best = entity.Normalized
			bestMentions = mentions[i]
		}
	}
	return best
}

func categoryFor(entity models.Entity, primary string) string {
	switch entity.Type {
	case models.EntityTicker:
		if entity.Normalized == primary {
			return "primary_subject"
		}
		return "related_symbol"
	case models.EntityCompany:
		return "organization"
	case models.EntityRating:
		return "analyst_action"
	case models.EntityPriceTarget:
		return "price_level"
	case models.EntityFinancialMetric, models.EntityPercentage:
		return "metric"
	case models.EntityFiscalPeriod:
		return "period"
	case models.EntityPerson:
		return "person"
	default:
		return "other"
	}
}

// phase emits one pipeline progress event.
func (p *Processor) phase(ctx context.Context, phase, message string, data map[string]interface{}) {
	p.publish(ctx, interfaces.EventPipelinePhase, models.PipelineEvent{
		Phase:   phase,
		Message: message,
		At:      time.Now(),
		Data:    data,
	})
}

func (p *Processor) publish(ctx context.Context, eventType interfaces.EventType, payload models.PipelineEvent) {
	if p.events == nil {
		return
	}
	if err := p.events.Publish(ctx, interfaces.Event{Type: eventType, Payload: payload}); err != nil {
		p.logger.Warn().Err(err).Str("event_type", string(eventType)).Msg("Failed to publish event")
	}
}
