// -----------------------------------------------------------------------
// PDF Text Extraction - page-ordered text from PDF attachments
// pdfcpu decodes the page content streams; a small reader then collects
// the strings drawn by the text-showing operators.
// -----------------------------------------------------------------------

package pdf

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// ExtractText extracts page-ordered, whitespace-normalized text from a
// PDF byte slice. Extraction failures are recoverable: callers get an
// error and degrade to filename-only metadata.
func (s *Service) ExtractText(data []byte) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("empty PDF data")
	}

	tempDir, err := os.MkdirTemp("", "ice-pdf-")
	if err != nil {
		return "", fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(tempDir)

	inFile := filepath.Join(tempDir, "input.pdf")
	if err := os.WriteFile(inFile, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write temp PDF: %w", err)
	}

	pdfCtx, err := api.ReadContextFile(inFile)
	if err != nil {
		return "", fmt.Errorf("failed to read PDF: %w", err)
	}
	pageCount := pdfCtx.PageCount

	outDir := filepath.Join(tempDir, "content")
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create content dir: %w", err)
	}
	if err := api.ExtractContentFile(inFile, outDir, nil, model.NewDefaultConfiguration()); err != nil {
		return "", fmt.Errorf("failed to extract PDF content: %w", err)
	}

	entries, err := os.ReadDir(outDir)
	if err != nil {
		return "", fmt.Errorf("failed to read extracted content: %w", err)
	}

	pageTexts := make(map[int]string)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		pageNum, ok := pageNumberFromName(entry.Name())
		if !ok {
			continue
		}
		content, err := os.ReadFile(filepath.Join(outDir, entry.Name()))
		if err != nil {
			s.logger.Warn().Err(err).Str("file", entry.Name()).Msg("Failed to read page content")
			continue
		}
		pageTexts[pageNum] = extractShownText(string(content))
	}

	var pages []string
	for pageNum := 1; pageNum <= pageCount; pageNum++ {
		if text := normalizeWhitespace(pageTexts[pageNum]); text != "" {
			pages = append(pages, text)
		}
	}
	if len(pages) == 0 {
		return "", fmt.Errorf("no text content in PDF (%d pages)", pageCount)
	}

	s.logger.Debug().Int("pages", pageCount).Msg("Extracted PDF text")
	return strings.Join(pages, "\n\n"), nil
}

// pageNumberFromName parses the page number out of an extracted content
// file name like "input_Content_page_3.txt".
func pageNumberFromName(name string) (int, bool) {
	idx := strings.LastIndex(name, "page_")
	if idx < 0 {
		return 0, false
	}
	rest := strings.TrimSuffix(name[idx+len("page_"):], filepath.Ext(name))
	pageNum, err := strconv.Atoi(rest)
	if err != nil || pageNum < 1 {
		return 0, false
	}
	return pageNum, true
}

// extractShownText collects the literal strings drawn by the text
// operators (Tj, TJ, ' and ") in a decoded content stream. Positioning
// operators (Td, TD, T*) and ET become line breaks. Hex strings are
// skipped, so the reader covers simple (WinAnsi style) producers, not
// CID-keyed fonts.
func extractShownText(content string) string {
	var out strings.Builder
	var pending []string

	i := 0
	for i < len(content) {
		c := content[i]
		switch {
		case c == '(':
			lit, next := readLiteral(content, i)
			pending = append(pending, lit)
			i = next
		case c == '<':
			i = skipAngle(content, i)
		case c == '%':
			i = skipComment(content, i)
		case c == '[' || c == ']':
			i++
		case isPDFSpace(c):
			i++
		default:
			token, next := readToken(content, i)
			switch token {
			case "Tj", "TJ":
				for _, lit := range pending {
					out.WriteString(lit)
				}
				pending = pending[:0]
			case "'", "\"":
				out.WriteByte('\n')
				for _, lit := range pending {
					out.WriteString(lit)
				}
				pending = pending[:0]
			case "Td", "TD", "T*", "ET":
				out.WriteByte('\n')
				pending = pending[:0]
			default:
				// Numbers are TJ kerning or operands, keep the
				// pending literals for the operator that follows
				if !isNumeric(token) {
					pending = pending[:0]
				}
			}
			i = next
		}
	}

	return out.String()
}

// readLiteral consumes a parenthesized string starting at s[start],
// resolving the PDF escape sequences and balanced inner parens. Returns
// the decoded text and the index after the closing paren.
func readLiteral(s string, start int) (string, int) {
	var b strings.Builder
	depth := 1
	i := start + 1

	for i < len(s) && depth > 0 {
		c := s[i]
		switch c {
		case '\\':
			if i+1 >= len(s) {
				return b.String(), i + 1
			}
			i++
			esc := s[i]
			switch esc {
			case 'n':
				b.WriteByte('\n')
			case 'r':
				b.WriteByte('\r')
			case 't':
				b.WriteByte('\t')
			case 'b', 'f':
				// Not meaningful as text
			case '\n':
				// Line continuation
			case '\r':
				if i+1 < len(s) && s[i+1] == '\n' {
					i++
				}
			default:
				if esc >= '0' && esc <= '7' {
					val := int(esc - '0')
					for k := 0; k < 2 && i+1 < len(s) && s[i+1] >= '0' && s[i+1] <= '7'; k++ {
						i++
						val = val*8 + int(s[i]-'0')
					}
					b.WriteByte(byte(val))
				} else {
					b.WriteByte(esc)
				}
			}
			i++
		case '(':
			depth++
			b.WriteByte(c)
			i++
		case ')':
			depth--
			if depth > 0 {
				b.WriteByte(c)
			}
			i++
		default:
			b.WriteByte(c)
			i++
		}
	}

	return b.String(), i
}

// skipAngle skips a hex string <...> or a dictionary opener <<.
func skipAngle(s string, start int) int {
	if start+1 < len(s) && s[start+1] == '<' {
		return start + 2
	}
	for i := start + 1; i < len(s); i++ {
		if s[i] == '>' {
			return i + 1
		}
	}
	return len(s)
}

func skipComment(s string, start int) int {
	for i := start; i < len(s); i++ {
		if s[i] == '\n' || s[i] == '\r' {
			return i
		}
	}
	return len(s)
}

func readToken(s string, start int) (string, int) {
	i := start
	if s[i] == '/' {
		i++
	}
	for i < len(s) && !isPDFSpace(s[i]) && !isDelim(s[i]) {
		i++
	}
	if i == start {
		return string(s[start]), start + 1
	}
	return s[start:i], i
}

func isPDFSpace(c byte) bool {
	switch c {
	case ' ', '\t', '\r', '\n', '\f', 0:
		return true
	}
	return false
}

func isDelim(c byte) bool {
	return strings.IndexByte("()<>[]{}/%", c) >= 0
}

func isNumeric(token string) bool {
	if token == "" {
		return false
	}
	start := 0
	if token[0] == '+' || token[0] == '-' {
		start = 1
	}
	if start == len(token) {
		return false
	}
	for i := start; i < len(token); i++ {
		if token[i] != '.' && (token[i] < '0' || token[i] > '9') {
			return false
		}
	}
	return true
}

// normalizeWhitespace collapses runs of spaces inside lines and drops
// the blank lines left behind by the positioning operators.
func normalizeWhitespace(text string) string {
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		lines = append(lines, strings.Join(fields, " "))
	}
	return strings.Join(lines, "\n")
}
