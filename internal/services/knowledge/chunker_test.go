package knowledge

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/ternarybob/ice/internal/models"
)

func TestChunkDocumentSingleChunk(t *testing.T) {
	doc := &models.Document{
		ID:              "doc1",
		ContentMarkdown: "A short research note about quarterly results.",
	}

	chunks := chunkDocument(doc)

	if len(chunks) != 1 {
		t.Fatalf("Expected 1 chunk, got %d", len(chunks))
	}
	if chunks[0].ID != "doc1_c0" {
		t.Errorf("Expected chunk ID doc1_c0, got %s", chunks[0].ID)
	}
	if chunks[0].DocumentID != "doc1" {
		t.Errorf("Expected document ID doc1, got %s", chunks[0].DocumentID)
	}
	if chunks[0].Index != 0 {
		t.Errorf("Expected index 0, got %d", chunks[0].Index)
	}
	if chunks[0].Content != doc.ContentMarkdown {
		t.Errorf("Expected content preserved, got %q", chunks[0].Content)
	}
	if chunks[0].TokenEstimate == 0 {
		t.Errorf("Expected non-zero token estimate")
	}
}

func TestChunkDocumentPacksParagraphs(t *testing.T) {
	para1 := strings.Repeat("a", 400)
	para2 := strings.Repeat("b", 400)
	para3 := strings.Repeat("c", 500)
	doc := &models.Document{
		ID:              "doc2",
		ContentMarkdown: para1 + "\n\n" + para2 + "\n\n" + para3,
	}

	chunks := chunkDocument(doc)

	if len(chunks) != 2 {
		t.Fatalf("Expected 2 chunks, got %d", len(chunks))
	}
	if chunks[0].Content != para1+"\n\n"+para2 {
		t.Errorf("Expected first chunk to pack two paragraphs")
	}
	overlap := strings.Repeat("b", chunkOverlapRunes)
	if !strings.HasPrefix(chunks[1].Content, overlap+"\n\n") {
		t.Errorf("Expected second chunk to start with overlap from the first")
	}
	if !strings.HasSuffix(chunks[1].Content, para3) {
		t.Errorf("Expected second chunk to end with third paragraph")
	}
}

func TestChunkDocumentSplitsOversizedParagraph(t *testing.T) {
	doc := &models.Document{
		ID:              "doc3",
		ContentMarkdown: strings.Repeat("x", 3000),
	}

	chunks := chunkDocument(doc)

	if len(chunks) != 3 {
		t.Fatalf("Expected 3 chunks, got %d", len(chunks))
	}
	maxRunes := chunkTargetRunes + chunkOverlapRunes + 2
	for _, chunk := range chunks {
		if n := utf8.RuneCountInString(chunk.Content); n > maxRunes {
			t.Errorf("Chunk %d has %d runes, want at most %d", chunk.Index, n, maxRunes)
		}
	}
	overlap := strings.Repeat("x", chunkOverlapRunes)
	if !strings.HasPrefix(chunks[1].Content, overlap+"\n\n") {
		t.Errorf("Expected overlap carried into second chunk")
	}
}

func TestChunkDocumentSplitsAtWordBoundary(t *testing.T) {
	doc := &models.Document{
		ID:              "doc4",
		ContentMarkdown: strings.TrimSpace(strings.Repeat("word ", 250)),
	}

	chunks := chunkDocument(doc)

	if len(chunks) < 2 {
		t.Fatalf("Expected multiple chunks, got %d", len(chunks))
	}
	if !strings.HasSuffix(chunks[0].Content, "word") {
		t.Errorf("Expected first chunk to end on a whole word, got %q", chunks[0].Content[len(chunks[0].Content)-10:])
	}
}

func TestChunkDocumentPrefersEnhancedContent(t *testing.T) {
	doc := &models.Document{
		ID:              "doc5",
		ContentMarkdown: "Plain content.",
		EnhancedContent: "Plain content. [TICKER:AAPL]\n\n## Entities\n\n- ticker: AAPL",
	}

	chunks := chunkDocument(doc)

	if len(chunks) != 1 {
		t.Fatalf("Expected 1 chunk, got %d", len(chunks))
	}
	if !strings.Contains(chunks[0].Content, "[TICKER:AAPL]") {
		t.Errorf("Expected chunk built from enhanced content, got %q", chunks[0].Content)
	}
}

func TestChunkDocumentEmptyContent(t *testing.T) {
	doc := &models.Document{ID: "doc6"}

	if chunks := chunkDocument(doc); len(chunks) != 0 {
		t.Errorf("Expected no chunks for empty document, got %d", len(chunks))
	}
}

func TestChunkDocumentSequentialIndexes(t *testing.T) {
	doc := &models.Document{
		ID:              "doc7",
		ContentMarkdown: strings.Repeat("y", 5000),
	}

	chunks := chunkDocument(doc)

	if len(chunks) < 3 {
		t.Fatalf("Expected at least 3 chunks, got %d", len(chunks))
	}
	for i, chunk := range chunks {
		if chunk.Index != i {
			t.Errorf("Expected index %d, got %d", i, chunk.Index)
		}
	}
}
