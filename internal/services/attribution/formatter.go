package attribution

import (
	"bytes"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"

	"github.com/ternarybob/ice/internal/interfaces"
	"github.com/ternarybob/ice/internal/models"
)

const excerptRunes = 160

// Formatter renders a QueryAnswer as markdown at the requested detail
// level, with HTML and PDF conversions for the web UI, mail digests and
// export.
type Formatter struct {
	md  goldmark.Markdown
	pdf interfaces.PDFService
}

// NewFormatter creates a formatter. The PDF service may be nil when PDF
// export is not wired.
func NewFormatter(pdfService interfaces.PDFService) *Formatter {
	return &Formatter{
		md: goldmark.New(
			goldmark.WithExtensions(extension.GFM),
			goldmark.WithRendererOptions(
				html.WithHardWraps(),
				html.WithXHTML(),
			),
		),
		pdf: pdfService,
	}
}

// Format renders the answer as markdown. Chunks supply the source
// excerpts shown in the per-sentence attribution table; pass the chunks
// the pipeline retrieved for this answer.
func (f *Formatter) Format(answer *models.QueryAnswer, chunks []interfaces.ScoredChunk, level models.DetailLevel) string {
	if answer == nil {
		return ""
	}
	if level == "" {
		level = models.DetailSourced
	}

	var b strings.Builder

	switch level {
	case models.DetailSummary:
		b.WriteString(strings.TrimSpace(answer.Text))
	default:
		b.WriteString(strings.TrimSpace(f.citedText(answer)))
	}
	b.WriteString("\n")

	if level == models.DetailSummary {
		return b.String()
	}

	f.writeSources(&b, answer.Sources)

	if level == models.DetailDetailed || level == models.DetailForensic {
		f.writeAttributionTable(&b, answer.Sentences, chunks)
	}

	if level == models.DetailForensic {
		f.writeEntities(&b, answer.Entities)
		f.writeCalculations(&b, answer.Calculations)
		f.writeDiagnostics(&b, answer)
	}

	return b.String()
}

// ToHTML converts rendered markdown to HTML for the web UI and digests.
func (f *Formatter) ToHTML(markdown string) (string, error) {
	var buf bytes.Buffer
	if err := f.md.Convert([]byte(markdown), &buf); err != nil {
		return "", fmt.Errorf("converting markdown to HTML: %w", err)
	}
	return buf.String(), nil
}

// ToPDF converts rendered markdown to a PDF byte slice.
func (f *Formatter) ToPDF(markdown, title string) ([]byte, error) {
	if f.pdf == nil {
		return nil, fmt.Errorf("pdf service not configured")
	}
	return f.pdf.ConvertMarkdownToPDF(markdown, title)
}

// citedText inserts [n] citations after each attributed sentence, where
// n is the 1-based position of the sentence's document in Sources.
func (f *Formatter) citedText(answer *models.QueryAnswer) string {
	if len(answer.Sentences) == 0 || len(answer.Sources) == 0 {
		return answer.Text
	}

	sourceIndex := make(map[string]int, len(answer.Sources))
	for i, src := range answer.Sources {
		sourceIndex[src.DocumentID] = i + 1
	}

	var b strings.Builder
	text := answer.Text
	cursor := 0
	for _, sentence := range answer.Sentences {
		if sentence.DocumentID == "" {
			continue
		}
		n, ok := sourceIndex[sentence.DocumentID]
		if !ok {
			continue
		}
		idx := strings.Index(text[cursor:], sentence.Text)
		if idx < 0 {
			continue
		}
		end := cursor + idx + len(sentence.Text)
		b.WriteString(text[cursor:end])
		b.WriteString(fmt.Sprintf(" [%d]", n))
		cursor = end
	}
	b.WriteString(text[cursor:])
	return b.String()
}

func (f *Formatter) writeSources(b *strings.Builder, sources []models.SourceRef) {
	if len(sources) == 0 {
		return
	}
	b.WriteString("\n## Sources\n\n")
	for i, src := range sources {
		title := src.Title
		if title == "" {
			title = src.DocumentID
		}
		if src.URL != "" {
			fmt.Fprintf(b, "%d. [%s](%s) (%s)\n", i+1, title, src.URL, src.SourceType)
		} else {
			fmt.Fprintf(b, "%d. %s (%s)\n", i+1, title, src.SourceType)
		}
	}
}

func (f *Formatter) writeAttributionTable(b *strings.Builder, sentences []models.AttributedSentence, chunks []interfaces.ScoredChunk) {
	if len(sentences) == 0 {
		return
	}

	excerpts := make(map[string]string, len(chunks))
	for _, chunk := range chunks {
		excerpts[chunk.Chunk.ID] = chunk.Chunk.Content
	}

	b.WriteString("\n## Attribution\n\n")
	b.WriteString("| # | Support | Similarity | Sentence | Source excerpt |\n")
	b.WriteString("|---|---------|-----------:|----------|----------------|\n")
	for _, sentence := range sentences {
		excerpt := ""
		if content, ok := excerpts[sentence.ChunkID]; ok {
			excerpt = tableCell(content, excerptRunes)
		}
		fmt.Fprintf(b, "| %d | %s %s | %.2f | %s | %s |\n",
			sentence.Index+1,
			levelGlyph(sentence.Level),
			sentence.Level,
			sentence.Similarity,
			tableCell(sentence.Text, excerptRunes),
			excerpt,
		)
	}
}

func (f *Formatter) writeEntities(b *strings.Builder, entities []models.CategorizedEntity) {
	if len(entities) == 0 {
		return
	}
	b.WriteString("\n## Entities\n\n")
	b.WriteString("| Entity | Type | Category | Mentions |\n")
	b.WriteString("|--------|------|----------|---------:|\n")
	for _, ce := range entities {
		fmt.Fprintf(b, "| %s | %s | %s | %d |\n",
			tableCell(ce.Entity.Normalized, 60),
			ce.Entity.Type,
			ce.Category,
			ce.Mentions,
		)
	}
}

func (f *Formatter) writeCalculations(b *strings.Builder, calculations []models.CalculationTrace) {
	if len(calculations) == 0 {
		return
	}
	b.WriteString("\n## Calculations\n")
	for _, calc := range calculations {
		fmt.Fprintf(b, "\n### %s\n\n", calc.Metric)
		fmt.Fprintf(b, "Formula: `%s`\n\n", calc.Formula)

		if len(calc.Inputs) > 0 {
			names := make([]string, 0, len(calc.Inputs))
			for name := range calc.Inputs {
				names = append(names, name)
			}
			sort.Strings(names)

			b.WriteString("| Input | Value |\n")
			b.WriteString("|-------|------:|\n")
			for _, name := range names {
				fmt.Fprintf(b, "| %s | %s |\n", name, formatValue(calc.Inputs[name]))
			}
			b.WriteString("\n")
		}

		fmt.Fprintf(b, "Result: **%s %s**", formatValue(calc.Result), calc.Unit)
		if len(calc.InputSources) > 0 {
			fmt.Fprintf(b, " (from %s)", strings.Join(calc.InputSources, ", "))
		}
		b.WriteString("\n")
	}
}

func (f *Formatter) writeDiagnostics(b *strings.Builder, answer *models.QueryAnswer) {
	b.WriteString("\n## Diagnostics\n\n")
	if answer.Fallback {
		b.WriteString("- Deterministic calculation supplied values where retrieval fell short\n")
	}
	fmt.Fprintf(b, "- Elapsed: %s\n", answer.Elapsed.Round(time.Millisecond))
}

// levelGlyph maps an attribution level to its display glyph.
func levelGlyph(level models.AttributionLevel) string {
	switch level {
	case models.AttributionStrong:
		return "✓"
	case models.AttributionModerate:
		return "~"
	case models.AttributionWeak:
		return "?"
	default:
		return "✗"
	}
}

// tableCell flattens text into a single markdown table cell, truncated
// to max runes.
func tableCell(text string, max int) string {
	text = strings.Join(strings.Fields(text), " ")
	text = strings.ReplaceAll(text, "|", "\\|")
	if utf8.RuneCountInString(text) <= max {
		return text
	}
	runes := []rune(text)
	return strings.TrimSpace(string(runes[:max])) + "..."
}

func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
