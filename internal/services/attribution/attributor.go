// -----------------------------------------------------------------------
// Package attribution maps answer sentences back to the source chunks
// that support them, scoring each pairing by embedding similarity.
// -----------------------------------------------------------------------

package attribution

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/ice/internal/interfaces"
	"github.com/ternarybob/ice/internal/models"
)

// Thresholds holds the similarity cut lines per attribution level plus
// the bonus applied when a sentence's figures all appear in the chunk.
type Thresholds struct {
	Strong       float64
	Moderate     float64
	Weak         float64
	NumericBonus float64
}

// DefaultThresholds returns the standard attribution cut lines.
func DefaultThresholds() Thresholds {
	return Thresholds{
		Strong:       0.80,
		Moderate:     0.65,
		Weak:         0.50,
		NumericBonus: 0.05,
	}
}

// SentenceAttributor scores every sentence of an answer against the
// retrieved chunks and labels it with the strongest supporting source.
type SentenceAttributor struct {
	embedder   interfaces.EmbeddingService
	thresholds Thresholds
	logger     arbor.ILogger
}

// NewSentenceAttributor creates an attributor. Zero-valued thresholds
// fall back to the defaults.
func NewSentenceAttributor(embedder interfaces.EmbeddingService, thresholds Thresholds, logger arbor.ILogger) *SentenceAttributor {
	if thresholds.Strong <= 0 {
		thresholds = DefaultThresholds()
	}
	return &SentenceAttributor{
		embedder:   embedder,
		thresholds: thresholds,
		logger:     logger,
	}
}

// Attribute splits the answer into sentences, embeds them in one batch,
// and assigns each sentence the chunk with the highest cosine
// similarity. Sentences whose numbers are all present verbatim in the
// winning chunk earn the numeric consistency bonus before leveling.
func (a *SentenceAttributor) Attribute(ctx context.Context, answer string, chunks []interfaces.ScoredChunk) ([]models.AttributedSentence, error) {
	sentences := SplitSentences(answer)
	if len(sentences) == 0 {
		return nil, nil
	}

	attributed := make([]models.AttributedSentence, len(sentences))
	for i, sentence := range sentences {
		attributed[i] = models.AttributedSentence{
			Text:  sentence,
			Index: i,
			Level: models.AttributionNone,
		}
	}
	if len(chunks) == 0 {
		return attributed, nil
	}

	embeddings, err := a.embedder.GenerateEmbeddings(ctx, sentences)
	if err != nil {
		return nil, fmt.Errorf("embedding %d sentences: %w", len(sentences), err)
	}
	if len(embeddings) != len(sentences) {
		return nil, fmt.Errorf("embedding count mismatch: %d sentences, %d vectors", len(sentences), len(embeddings))
	}

	for i, sentence := range sentences {
		best := -1
		bestSim := 0.0
		for j, chunk := range chunks {
			if len(chunk.Chunk.Embedding) == 0 {
				continue
			}
			sim := Cosine(embeddings[i], chunk.Chunk.Embedding)
			if sim > bestSim {
				bestSim = sim
				best = j
			}
		}
		if best < 0 {
			continue
		}

		similarity := bestSim
		if numbersCovered(sentence, chunks[best].Chunk.Content) {
			similarity += a.thresholds.NumericBonus
			if similarity > 1 {
				similarity = 1
			}
		}

		attributed[i].Similarity = similarity
		attributed[i].Level = a.level(similarity)
		if attributed[i].Level != models.AttributionNone {
			attributed[i].ChunkID = chunks[best].Chunk.ID
			attributed[i].DocumentID = chunks[best].Chunk.DocumentID
		}
	}

	a.logger.Debug().
		Int("sentences", len(sentences)).
		Int("chunks", len(chunks)).
		Msg("Attributed answer sentences")

	return attributed, nil
}

func (a *SentenceAttributor) level(similarity float64) models.AttributionLevel {
	switch {
	case similarity >= a.thresholds.Strong:
		return models.AttributionStrong
	case similarity >= a.thresholds.Moderate:
		return models.AttributionModerate
	case similarity >= a.thresholds.Weak:
		return models.AttributionWeak
	default:
		return models.AttributionNone
	}
}

// numberPattern captures figures with optional thousands separators,
// decimals and a percent sign.
var numberPattern = regexp.MustCompile(`\d+(?:,\d{3})*(?:\.\d+)?%?`)

// numbersCovered reports whether every figure in the sentence appears
// in the chunk content. Sentences without figures earn no bonus.
func numbersCovered(sentence, chunkContent string) bool {
	numbers := numberPattern.FindAllString(sentence, -1)
	if len(numbers) == 0 {
		return false
	}
	normalized := strings.ReplaceAll(chunkContent, ",", "")
	for _, number := range numbers {
		plain := strings.ReplaceAll(strings.TrimSuffix(number, "%"), ",", "")
		if !strings.Contains(normalized, plain) {
			return false
		}
	}
	return true
}

// Cosine returns the cosine similarity of two vectors, or 0 when the
// lengths differ or either vector has zero magnitude.
func Cosine(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
