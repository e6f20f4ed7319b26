package query

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/ice/internal/interfaces"
	"github.com/ternarybob/ice/internal/models"
	"github.com/ternarybob/ice/internal/services/entities"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		question string
		want     QuestionClass
	}{
		{name: "Metric question", question: "What was Apple's net margin in Q3 FY2024?", want: ClassMetric},
		{name: "Growth question", question: "How fast is AAPL revenue growth year over year?", want: ClassMetric},
		{name: "Filing question", question: "Summarize the latest 10-Q from Apple", want: ClassFiling},
		{name: "Entity question", question: "Did any analyst upgrade AAPL this month?", want: ClassEntity},
		{name: "General question", question: "What happened with Apple this week?", want: ClassGeneral},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.question); got != tt.want {
				t.Errorf("Expected %s, got %s", tt.want, got)
			}
		})
	}
}

type mockKnowledge struct {
	result *interfaces.KnowledgeResult
	err    error
}

func (m *mockKnowledge) IngestDocument(ctx context.Context, doc *models.Document) error { return nil }

func (m *mockKnowledge) Answer(ctx context.Context, req models.QueryRequest) (*interfaces.KnowledgeResult, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.result, nil
}

type mockAttribution struct {
	sentences []models.AttributedSentence
	err       error
}

func (m *mockAttribution) Attribute(ctx context.Context, answer string, chunks []interfaces.ScoredChunk) ([]models.AttributedSentence, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.sentences, nil
}

type mockFinancial struct {
	traces []models.CalculationTrace
	err    error
	called bool
}

func (m *mockFinancial) ComputeForQuestion(ctx context.Context, question string, symbols []string) ([]models.CalculationTrace, error) {
	m.called = true
	if m.err != nil {
		return nil, m.err
	}
	return m.traces, nil
}

type recordingEvents struct {
	events []interfaces.Event
}

func (r *recordingEvents) Subscribe(eventType interfaces.EventType, handler interfaces.EventHandler) error {
	return nil
}

func (r *recordingEvents) Publish(ctx context.Context, event interfaces.Event) error {
	r.events = append(r.events, event)
	return nil
}

func (r *recordingEvents) PublishSync(ctx context.Context, event interfaces.Event) error {
	return r.Publish(ctx, event)
}

func (r *recordingEvents) Close() error { return nil }

func (r *recordingEvents) count(eventType interfaces.EventType) int {
	n := 0
	for _, e := range r.events {
		if e.Type == eventType {
			n++
		}
	}
	return n
}

func knowledgeFixture() *interfaces.KnowledgeResult {
	return &interfaces.KnowledgeResult{
		Text: "$AAPL revenue reached $94.9 billion, up 6%. $AAPL outpaced $MSFT.",
		Chunks: []interfaces.ScoredChunk{
			{Chunk: models.Chunk{ID: "chunk-a", DocumentID: "doc-1", Content: "Apple reported revenue of $94.9 billion."}},
		},
		Sources: []models.SourceRef{
			{DocumentID: "doc-1", Title: "Apple Q3 Earnings", SourceType: "benzinga"},
		},
	}
}

func newTestProcessor(knowledge *mockKnowledge, attributor *mockAttribution, financialSvc *mockFinancial, events *recordingEvents) *Processor {
	return NewProcessor(
		knowledge,
		attributor,
		financialSvc,
		entities.NewExtractor([]string{"AAPL", "MSFT"}),
		events,
		arbor.NewLogger(),
	)
}

func TestProcessGeneralQuestion(t *testing.T) {
	events := &recordingEvents{}
	attributor := &mockAttribution{sentences: []models.AttributedSentence{
		{Text: "$AAPL revenue reached $94.9 billion, up 6%.", Index: 0, ChunkID: "chunk-a", DocumentID: "doc-1", Similarity: 0.91, Level: models.AttributionStrong},
		{Text: "$AAPL outpaced $MSFT.", Index: 1, Similarity: 0.40, Level: models.AttributionNone},
	}}
	financialSvc := &mockFinancial{}
	processor := newTestProcessor(&mockKnowledge{result: knowledgeFixture()}, attributor, financialSvc, events)

	result, err := processor.Process(context.Background(), models.QueryRequest{Question: "What happened with Apple this week?"})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	answer := result.Answer

	if !strings.Contains(answer.Text, "$94.9 billion") {
		t.Error("Expected the knowledge answer text")
	}
	if len(answer.Sentences) != 2 {
		t.Errorf("Expected 2 attributed sentences, got %d", len(answer.Sentences))
	}
	if len(answer.Sources) != 1 || answer.Sources[0].DocumentID != "doc-1" {
		t.Error("Expected the source list to pass through")
	}
	if answer.Fallback {
		t.Error("General questions should not trigger the calculator")
	}
	if financialSvc.called {
		t.Error("Calculator should not run for general questions")
	}
	if len(result.Chunks) != 1 {
		t.Errorf("Expected retrieval chunks in the result, got %d", len(result.Chunks))
	}
	if answer.Elapsed <= 0 {
		t.Error("Expected elapsed time to be recorded")
	}

	if events.count(interfaces.EventQueryStarted) != 1 || events.count(interfaces.EventQueryFinished) != 1 {
		t.Error("Expected start and finish events")
	}
	if events.count(interfaces.EventPipelinePhase) < 3 {
		t.Errorf("Expected phase events, got %d", events.count(interfaces.EventPipelinePhase))
	}
}

func TestProcessCategorizesAnswerEntities(t *testing.T) {
	attributor := &mockAttribution{sentences: []models.AttributedSentence{
		{Text: "$AAPL revenue reached $94.9 billion, up 6%.", Index: 0, Similarity: 0.9, Level: models.AttributionStrong},
	}}
	processor := newTestProcessor(&mockKnowledge{result: knowledgeFixture()}, attributor, &mockFinancial{}, &recordingEvents{})

	result, err := processor.Process(context.Background(), models.QueryRequest{Question: "What happened with Apple this week?"})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	categorized := result.Answer.Entities
	if len(categorized) == 0 {
		t.Fatal("Expected categorized entities")
	}
	if categorized[0].Entity.Normalized != "AAPL" || categorized[0].Category != "primary_subject" {
		t.Errorf("Expected AAPL as primary subject, got %s (%s)", categorized[0].Entity.Normalized, categorized[0].Category)
	}
	if categorized[0].Mentions != 2 {
		t.Errorf("Expected 2 AAPL mentions, got %d", categorized[0].Mentions)
	}

	foundRelated := false
	for _, ce := range categorized {
		if ce.Entity.Normalized == "MSFT" && ce.Category == "related_symbol" {
			foundRelated = true
		}
	}
	if !foundRelated {
		t.Error("Expected MSFT as a related symbol")
	}
}

func TestProcessMetricFallback(t *testing.T) {
	knowledge := &mockKnowledge{result: &interfaces.KnowledgeResult{
		Text: "Apple had a solid quarter.",
		Chunks: []interfaces.ScoredChunk{
			{Chunk: models.Chunk{ID: "chunk-a", DocumentID: "doc-1", Content: "Commentary without figures."}},
		},
	}}
	attributor := &mockAttribution{sentences: []models.AttributedSentence{
		{Text: "Apple had a solid quarter.", Index: 0, ChunkID: "chunk-a", DocumentID: "doc-1", Similarity: 0.7, Level: models.AttributionModerate},
	}}
	financialSvc := &mockFinancial{traces: []models.CalculationTrace{
		{Metric: "AAPL:net_margin", Formula: "net_income / revenue * 100", Inputs: map[string]float64{"net_income": 23630000000, "revenue": 94930000000}, Result: 24.89, Unit: "%"},
	}}
	processor := newTestProcessor(knowledge, attributor, financialSvc, &recordingEvents{})

	result, err := processor.Process(context.Background(), models.QueryRequest{
		Question: "What was Apple's net margin in Q3 FY2024?",
		Symbols:  []string{"AAPL"},
	})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	answer := result.Answer

	if !answer.Fallback {
		t.Error("Expected the fallback flag")
	}
	if len(answer.Calculations) != 1 {
		t.Fatalf("Expected 1 calculation trace, got %d", len(answer.Calculations))
	}
	if !strings.HasPrefix(answer.Text, "Apple had a solid quarter.") {
		t.Error("Expected the retrieval answer to remain first")
	}
	if !strings.Contains(answer.Text, "## Computed values") {
		t.Error("Expected the computed values section")
	}
	if !strings.Contains(answer.Text, "- AAPL:net_margin = 24.89 % (`net_income / revenue * 100`)") {
		t.Errorf("Expected the spliced trace line, got:\n%s", answer.Text)
	}
}

func TestProcessMetricSkipsCalculatorWhenSupported(t *testing.T) {
	attributor := &mockAttribution{sentences: []models.AttributedSentence{
		{Text: "$AAPL revenue reached $94.9 billion, up 6%.", Index: 0, ChunkID: "chunk-a", DocumentID: "doc-1", Similarity: 0.91, Level: models.AttributionStrong},
	}}
	financialSvc := &mockFinancial{}
	processor := newTestProcessor(&mockKnowledge{result: knowledgeFixture()}, attributor, financialSvc, &recordingEvents{})

	result, err := processor.Process(context.Background(), models.QueryRequest{
		Question: "How fast is AAPL revenue growth year over year?",
		Symbols:  []string{"AAPL"},
	})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if financialSvc.called {
		t.Error("Calculator should not run when a numeric sentence is well supported")
	}
	if result.Answer.Fallback {
		t.Error("Fallback should stay false")
	}
}

func TestProcessMetricRetrievalFailure(t *testing.T) {
	knowledge := &mockKnowledge{err: errors.New("store offline")}
	financialSvc := &mockFinancial{traces: []models.CalculationTrace{
		{Metric: "AAPL:net_margin", Formula: "net_income / revenue * 100", Result: 24.89, Unit: "%"},
	}}
	processor := newTestProcessor(knowledge, &mockAttribution{}, financialSvc, &recordingEvents{})

	result, err := processor.Process(context.Background(), models.QueryRequest{
		Question: "What was Apple's net margin in Q3 FY2024?",
		Symbols:  []string{"AAPL"},
	})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !result.Answer.Fallback {
		t.Error("Expected the fallback flag")
	}
	if !strings.HasPrefix(result.Answer.Text, "## Computed values") {
		t.Errorf("Expected a purely computed answer, got:\n%s", result.Answer.Text)
	}
}

func TestProcessTotalFailure(t *testing.T) {
	knowledge := &mockKnowledge{err: errors.New("store offline")}
	financialSvc := &mockFinancial{err: errors.New("no inputs")}
	processor := newTestProcessor(knowledge, &mockAttribution{}, financialSvc, &recordingEvents{})

	_, err := processor.Process(context.Background(), models.QueryRequest{
		Question: "What was Apple's net margin in Q3 FY2024?",
		Symbols:  []string{"AAPL"},
	})
	if !errors.Is(err, ErrUnanswerable) {
		t.Errorf("Expected ErrUnanswerable, got %v", err)
	}
}

func TestProcessNonMetricRetrievalFailure(t *testing.T) {
	knowledge := &mockKnowledge{err: errors.New("store offline")}
	processor := newTestProcessor(knowledge, &mockAttribution{}, &mockFinancial{}, &recordingEvents{})

	_, err := processor.Process(context.Background(), models.QueryRequest{Question: "What happened with Apple this week?"})
	if err == nil {
		t.Fatal("Expected an error when retrieval fails on a general question")
	}
	if errors.Is(err, ErrUnanswerable) {
		t.Error("Expected the retrieval error, not ErrUnanswerable")
	}
}

func TestProcessAttributionFailureDegrades(t *testing.T) {
	attributor := &mockAttribution{err: errors.New("embedder offline")}
	processor := newTestProcessor(&mockKnowledge{result: knowledgeFixture()}, attributor, &mockFinancial{}, &recordingEvents{})

	result, err := processor.Process(context.Background(), models.QueryRequest{Question: "What happened with Apple this week?"})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(result.Answer.Sentences) != 0 {
		t.Error("Expected no sentences when attribution fails")
	}
	if result.Answer.Text == "" {
		t.Error("Expected the answer text to survive")
	}
}

func TestProcessEmptyQuestion(t *testing.T) {
	processor := newTestProcessor(&mockKnowledge{}, &mockAttribution{}, &mockFinancial{}, &recordingEvents{})
	if _, err := processor.Process(context.Background(), models.QueryRequest{Question: "   "}); err == nil {
		t.Fatal("Expected an error for an empty question")
	}
}
