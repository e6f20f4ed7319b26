package knowledge

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/ternarybob/ice/internal/models"
)

const (
	// chunkTargetRunes is the packing target per chunk. Paragraphs are
	// accumulated until the next one would push past this size.
	chunkTargetRunes = 1200

	// chunkOverlapRunes is carried from the tail of each chunk into the
	// next so sentences spanning a boundary stay retrievable.
	chunkOverlapRunes = 150
)

// chunkDocument splits a document's enhanced content into embeddable
// chunks. Enhanced content is preferred so embeddings and keyword search
// both see the woven entity markup.
func chunkDocument(doc *models.Document) []models.Chunk {
	source := doc.EnhancedContent
	if source == "" {
		source = doc.ContentMarkdown
	}

	units := splitUnits(source)
	if len(units) == 0 {
		return nil
	}

	var contents []string
	var current strings.Builder
	currentRunes := 0
	carry := ""

	flush := func() {
		if currentRunes == 0 {
			return
		}
		content := current.String()
		contents = append(contents, content)
		carry = overlapTail(content, chunkOverlapRunes)
		current.Reset()
		currentRunes = 0
	}

	for _, unit := range units {
		unitRunes := utf8.RuneCountInString(unit)
		if currentRunes > 0 && currentRunes+2+unitRunes > chunkTargetRunes {
			flush()
		}
		if currentRunes == 0 {
			if carry != "" {
				current.WriteString(carry)
				current.WriteString("\n\n")
				currentRunes = utf8.RuneCountInString(carry) + 2
			}
		} else {
			current.WriteString("\n\n")
			currentRunes += 2
		}
		current.WriteString(unit)
		currentRunes += unitRunes
	}
	flush()

	chunks := make([]models.Chunk, 0, len(contents))
	for i, content := range contents {
		chunks = append(chunks, models.Chunk{
			ID:            fmt.Sprintf("%s_c%d", doc.ID, i),
			DocumentID:    doc.ID,
			Index:         i,
			Content:       content,
			TokenEstimate: estimateTokens(content),
		})
	}
	return chunks
}

// splitUnits breaks content into paragraphs no larger than the chunk
// target. Oversized paragraphs are hard-split at the nearest preceding
// whitespace so words stay intact.
func splitUnits(content string) []string {
	paragraphs := strings.Split(content, "\n\n")
	units := make([]string, 0, len(paragraphs))

	for _, paragraph := range paragraphs {
		paragraph = strings.TrimSpace(paragraph)
		if paragraph == "" {
			continue
		}
		for utf8.RuneCountInString(paragraph) > chunkTargetRunes {
			runes := []rune(paragraph)
			cut := chunkTargetRunes
			for i := chunkTargetRunes - 1; i > chunkTargetRunes-200 && i > 0; i-- {
				if unicode.IsSpace(runes[i]) {
					cut = i
					break
				}
			}
			units = append(units, strings.TrimSpace(string(runes[:cut])))
			paragraph = strings.TrimSpace(string(runes[cut:]))
		}
		if paragraph != "" {
			units = append(units, paragraph)
		}
	}
	return units
}

// overlapTail returns the trailing n runes of a chunk, or "" when the
// chunk is small enough that carrying it forward would just duplicate it.
func overlapTail(content string, n int) string {
	runes := []rune(content)
	if len(runes) <= n {
		return ""
	}
	return strings.TrimSpace(string(runes[len(runes)-n:]))
}

// estimateTokens approximates the token count at four runes per token,
// close enough for budget accounting across embedding providers.
func estimateTokens(content string) int {
	count := utf8.RuneCountInString(content) / 4
	if count == 0 && content != "" {
		return 1
	}
	return count
}
