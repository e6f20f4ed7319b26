package edgar

import (
	"fmt"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
)

// maxDocumentRunes caps reduced filing text. 10-K documents run to
// megabytes of HTML; downstream chunking never needs more than this.
const maxDocumentRunes = 120000

// ReduceFilingHTML strips an EDGAR filing document down to readable
// markdown: scripts, styles, XBRL header junk and hidden blocks go,
// the narrative and tables stay.
func ReduceFilingHTML(html string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", fmt.Errorf("failed to parse filing HTML: %w", err)
	}

	doc.Find("script, style, noscript, head").Remove()
	// Inline XBRL viewers hide the raw tagging in display:none blocks
	doc.Find("[style*='display:none'], [style*='display: none']").Remove()

	body := doc.Find("body")
	if body.Length() == 0 {
		body = doc.Selection
	}

	bodyHTML, err := body.Html()
	if err != nil {
		return "", fmt.Errorf("failed to serialize filing body: %w", err)
	}

	converter := md.NewConverter("", true, nil)
	markdown, err := converter.ConvertString(bodyHTML)
	if err != nil {
		return "", fmt.Errorf("failed to convert filing to markdown: %w", err)
	}

	markdown = collapseBlankLines(markdown)

	runes := []rune(markdown)
	if len(runes) > maxDocumentRunes {
		markdown = string(runes[:maxDocumentRunes]) + "\n\n[document truncated]"
	}

	return strings.TrimSpace(markdown), nil
}

// collapseBlankLines squeezes runs of blank lines down to one. Filing
// HTML produces huge vertical gaps once tags are stripped.
func collapseBlankLines(text string) string {
	lines := strings.Split(text, "\n")
	var out []string
	blank := 0
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			blank++
			if blank > 1 {
				continue
			}
			out = append(out, "")
			continue
		}
		blank = 0
		out = append(out, strings.TrimRight(line, " \t"))
	}
	return strings.Join(out, "\n")
}
