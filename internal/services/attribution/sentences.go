package attribution

import (
	"regexp"
	"strings"
	"unicode"
)

// listItemPattern matches markdown bullet and numbered list lines, which
// stay intact as single sentences.
var listItemPattern = regexp.MustCompile(`^\s*(?:[-*+]|\d+\.)\s+`)

// abbreviations never end a sentence. Lowercased, no trailing period.
var abbreviations = map[string]bool{
	"inc": true, "corp": true, "ltd": true, "co": true, "plc": true,
	"mr": true, "mrs": true, "ms": true, "dr": true, "jr": true, "sr": true,
	"st": true, "vs": true, "etc": true, "approx": true, "est": true,
	"no": true, "fig": true, "rev": true, "dept": true,
}

// SplitSentences splits answer text into sentences. Markdown list items
// and headings each count as one sentence; periods inside decimals,
// tickers (BRK.A), initials and common abbreviations do not split.
func SplitSentences(text string) []string {
	var sentences []string
	var paragraph strings.Builder

	flush := func() {
		if paragraph.Len() > 0 {
			sentences = append(sentences, splitProse(paragraph.String())...)
			paragraph.Reset()
		}
	}

	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case trimmed == "":
			flush()
		case listItemPattern.MatchString(line):
			flush()
			sentences = append(sentences, trimmed)
		case strings.HasPrefix(trimmed, "#"):
			flush()
			sentences = append(sentences, trimmed)
		default:
			if paragraph.Len() > 0 {
				paragraph.WriteString(" ")
			}
			paragraph.WriteString(trimmed)
		}
	}
	flush()

	return sentences
}

// splitProse splits one paragraph on sentence terminators.
func splitProse(text string) []string {
	runes := []rune(text)
	var sentences []string
	start := 0

	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		if r == '.' && !periodEndsSentence(runes, i) {
			continue
		}

		// Pull trailing quotes and brackets into the sentence
		end := i + 1
		for end < len(runes) && isClosing(runes[end]) {
			end++
		}
		if sentence := strings.TrimSpace(string(runes[start:end])); sentence != "" {
			sentences = append(sentences, sentence)
		}
		start = end
		i = end - 1
	}

	if tail := strings.TrimSpace(string(runes[start:])); tail != "" {
		sentences = append(sentences, tail)
	}
	return sentences
}

// periodEndsSentence decides whether the period at index i is a real
// sentence boundary.
func periodEndsSentence(runes []rune, i int) bool {
	// Decimal point: 4.1
	if i > 0 && i+1 < len(runes) && unicode.IsDigit(runes[i-1]) && unicode.IsDigit(runes[i+1]) {
		return false
	}
	// No break when a letter follows immediately: BRK.A, U.S.
	if i+1 < len(runes) && unicode.IsLetter(runes[i+1]) {
		return false
	}

	word := trailingWord(runes, i)
	if abbreviations[strings.ToLower(word)] {
		return false
	}
	// Single capital: middle initials and acronym fragments
	if wordRunes := []rune(word); len(wordRunes) == 1 && unicode.IsUpper(wordRunes[0]) {
		return false
	}

	// A boundary needs end-of-text or whitespace then a plausible opener
	j := i + 1
	for j < len(runes) && isClosing(runes[j]) {
		j++
	}
	if j >= len(runes) {
		return true
	}
	if !unicode.IsSpace(runes[j]) {
		return false
	}
	for j < len(runes) && unicode.IsSpace(runes[j]) {
		j++
	}
	if j >= len(runes) {
		return true
	}
	next := runes[j]
	return unicode.IsUpper(next) || unicode.IsDigit(next) || next == '"' || next == '$' || next == '[' || next == '('
}

// trailingWord returns the word ending just before index i.
func trailingWord(runes []rune, i int) string {
	end := i
	start := end
	for start > 0 && (unicode.IsLetter(runes[start-1]) || unicode.IsDigit(runes[start-1])) {
		start--
	}
	return string(runes[start:end])
}

func isClosing(r rune) bool {
	return r == '"' || r == '\'' || r == ')' || r == ']'
}
