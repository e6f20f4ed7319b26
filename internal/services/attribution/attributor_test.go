package attribution

import (
	"context"
	"errors"
	"math"
	"reflect"
	"testing"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/ice/internal/interfaces"
	"github.com/ternarybob/ice/internal/models"
)

func TestSplitSentences(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{
			name: "Abbreviations and decimals stay intact",
			text: "Apple Inc. reported revenue of $94.9 billion. Shares rose 3.2% after hours.",
			want: []string{
				"Apple Inc. reported revenue of $94.9 billion.",
				"Shares rose 3.2% after hours.",
			},
		},
		{
			name: "Country acronyms and share classes",
			text: "The U.S. market closed higher on Friday. BRK.A gained 1% on the session.",
			want: []string{
				"The U.S. market closed higher on Friday.",
				"BRK.A gained 1% on the session.",
			},
		},
		{
			name: "Markdown lists and headings survive as units",
			text: "## Summary\n\nRevenue grew strongly.\n\n- Revenue of $94.9 billion, up 6% vs. the prior year\n- Operating margin of 29.8%\n\nOverall a solid quarter.",
			want: []string{
				"## Summary",
				"Revenue grew strongly.",
				"- Revenue of $94.9 billion, up 6% vs. the prior year",
				"- Operating margin of 29.8%",
				"Overall a solid quarter.",
			},
		},
		{
			name: "Wrapped lines join into one sentence",
			text: "Revenue grew\nstrongly this quarter.",
			want: []string{"Revenue grew strongly this quarter."},
		},
		{
			name: "Question and exclamation marks terminate",
			text: "Did margins expand? They did! Guidance was raised.",
			want: []string{"Did margins expand?", "They did!", "Guidance was raised."},
		},
		{
			name: "Empty input",
			text: "   \n\n  ",
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SplitSentences(tt.text)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestCosine(t *testing.T) {
	tests := []struct {
		name string
		a    []float64
		b    []float64
		want float64
	}{
		{name: "Identical", a: []float64{1, 0, 0}, b: []float64{1, 0, 0}, want: 1},
		{name: "Orthogonal", a: []float64{1, 0}, b: []float64{0, 1}, want: 0},
		{name: "Opposite", a: []float64{1, 0}, b: []float64{-1, 0}, want: -1},
		{name: "Length mismatch", a: []float64{1, 2, 3}, b: []float64{1, 2}, want: 0},
		{name: "Zero vector", a: []float64{0, 0}, b: []float64{1, 1}, want: 0},
		{name: "Empty", a: nil, b: nil, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Cosine(tt.a, tt.b)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("Expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestNumbersCovered(t *testing.T) {
	chunk := "Apple reported revenue of $94.9 billion in Q3 FY2024, up 6% from a year earlier, on volume of 1,250 units."

	tests := []struct {
		name     string
		sentence string
		want     bool
	}{
		{name: "All figures present", sentence: "Revenue was $94.9 billion, up 6%.", want: true},
		{name: "Comma separators normalize", sentence: "Volume reached 1250 units.", want: true},
		{name: "Missing figure", sentence: "Margins expanded 12% in the quarter.", want: false},
		{name: "No figures earns no bonus", sentence: "The quarter was strong overall.", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := numbersCovered(tt.sentence, chunk); got != tt.want {
				t.Errorf("Expected %v, got %v", tt.want, got)
			}
		})
	}
}

// mockEmbedder returns one pre-seeded vector per input text, in order.
type mockEmbedder struct {
	vectors [][]float64
	err     error
}

func (m *mockEmbedder) GenerateEmbedding(ctx context.Context, text string) ([]float64, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.vectors[0], nil
}

func (m *mockEmbedder) GenerateEmbeddings(ctx context.Context, texts []string) ([][]float64, error) {
	if m.err != nil {
		return nil, m.err
	}
	if len(texts) != len(m.vectors) {
		return nil, errors.New("unexpected batch size")
	}
	return m.vectors, nil
}

func (m *mockEmbedder) EmbedChunks(ctx context.Context, doc *models.Document) error { return nil }

func (m *mockEmbedder) GenerateQueryEmbedding(ctx context.Context, query string) ([]float64, error) {
	return m.vectors[0], nil
}

func (m *mockEmbedder) ModelName() string                    { return "mock-embedder" }
func (m *mockEmbedder) Dimension() int                       { return 3 }
func (m *mockEmbedder) IsAvailable(ctx context.Context) bool { return true }

func testChunks() []interfaces.ScoredChunk {
	return []interfaces.ScoredChunk{
		{
			Chunk: models.Chunk{
				ID:         "chunk-a",
				DocumentID: "doc-1",
				Content:    "Apple reported revenue of $94.9 billion in Q3 FY2024, up 6% from a year earlier.",
				Embedding:  []float64{1, 0, 0},
			},
		},
		{
			Chunk: models.Chunk{
				ID:         "chunk-b",
				DocumentID: "doc-2",
				Content:    "Morgan Stanley maintained an Overweight rating on the stock.",
				Embedding:  []float64{0, 1, 0},
			},
		},
	}
}

func TestAttributeLevels(t *testing.T) {
	answer := "Apple's revenue reached $94.9 billion, up 6%. " +
		"Analysts viewed the quarter favorably. " +
		"Revenue rose 6% in the quarter. " +
		"Margins expanded 12% in the quarter. " +
		"The outlook was not discussed."

	// One vector per sentence, in split order. Components on the third
	// axis keep each vector at unit length without touching the chunk
	// axes, so the cosine equals the first or second component.
	embedder := &mockEmbedder{vectors: [][]float64{
		{1, 0, 0},                     // strong match on chunk-a
		{0, 0.70, 0.714142842854285},  // moderate match on chunk-b
		{0.62, 0, 0.7846018098373212}, // weak alone, moderate with numeric bonus
		{0.62, 0, 0.7846018098373212}, // weak, figures not in chunk
		{0.20, 0, 0.9797958971132712}, // below every threshold
	}}

	attributor := NewSentenceAttributor(embedder, Thresholds{}, arbor.NewLogger())
	sentences, err := attributor.Attribute(context.Background(), answer, testChunks())
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(sentences) != 5 {
		t.Fatalf("Expected 5 sentences, got %d", len(sentences))
	}

	tests := []struct {
		index   int
		level   models.AttributionLevel
		chunkID string
	}{
		{index: 0, level: models.AttributionStrong, chunkID: "chunk-a"},
		{index: 1, level: models.AttributionModerate, chunkID: "chunk-b"},
		{index: 2, level: models.AttributionModerate, chunkID: "chunk-a"},
		{index: 3, level: models.AttributionWeak, chunkID: "chunk-a"},
		{index: 4, level: models.AttributionNone, chunkID: ""},
	}

	for _, tt := range tests {
		got := sentences[tt.index]
		if got.Level != tt.level {
			t.Errorf("Sentence %d: expected level %s, got %s (similarity %.3f)", tt.index, tt.level, got.Level, got.Similarity)
		}
		if got.ChunkID != tt.chunkID {
			t.Errorf("Sentence %d: expected chunk %q, got %q", tt.index, tt.chunkID, got.ChunkID)
		}
		if got.Index != tt.index {
			t.Errorf("Sentence %d: index recorded as %d", tt.index, got.Index)
		}
	}

	// The numeric bonus lifted sentence 2 over the moderate line
	if sim := sentences[2].Similarity; sim < 0.65 || sim > 0.70 {
		t.Errorf("Expected bonus-adjusted similarity near 0.67, got %.3f", sim)
	}
	if sentences[1].DocumentID != "doc-2" {
		t.Errorf("Expected doc-2, got %s", sentences[1].DocumentID)
	}
}

func TestAttributeWithoutChunks(t *testing.T) {
	embedder := &mockEmbedder{vectors: [][]float64{{1, 0, 0}}}
	attributor := NewSentenceAttributor(embedder, Thresholds{}, arbor.NewLogger())

	sentences, err := attributor.Attribute(context.Background(), "Revenue grew strongly.", nil)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(sentences) != 1 {
		t.Fatalf("Expected 1 sentence, got %d", len(sentences))
	}
	if sentences[0].Level != models.AttributionNone {
		t.Errorf("Expected none, got %s", sentences[0].Level)
	}
	if sentences[0].ChunkID != "" {
		t.Errorf("Expected no chunk, got %s", sentences[0].ChunkID)
	}
}

func TestAttributeEmbeddingFailure(t *testing.T) {
	embedder := &mockEmbedder{err: errors.New("provider offline")}
	attributor := NewSentenceAttributor(embedder, Thresholds{}, arbor.NewLogger())

	_, err := attributor.Attribute(context.Background(), "Revenue grew strongly.", testChunks())
	if err == nil {
		t.Fatal("Expected an error when embedding fails")
	}
}

func TestAttributeSkipsChunksWithoutEmbeddings(t *testing.T) {
	embedder := &mockEmbedder{vectors: [][]float64{{1, 0, 0}}}
	attributor := NewSentenceAttributor(embedder, Thresholds{}, arbor.NewLogger())

	chunks := []interfaces.ScoredChunk{
		{Chunk: models.Chunk{ID: "bare", DocumentID: "doc-9", Content: "No vector here."}},
	}
	sentences, err := attributor.Attribute(context.Background(), "Revenue grew strongly.", chunks)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if sentences[0].Level != models.AttributionNone {
		t.Errorf("Expected none, got %s", sentences[0].Level)
	}
}
