package search

import (
	"strings"
	"unicode"
)

// Token is one parsed element of a search query.
type Token struct {
	Value string
	// Phrase marks a quoted phrase, matched as an exact substring
	Phrase bool
	// Required marks a +term the document must contain
	Required bool
}

// Tokenize breaks a query into terms and quoted phrases using rune-safe
// iteration, so multi-byte characters survive intact.
// Handles:
//   - Quoted phrases: "gross margin" becomes a single phrase token
//   - Required terms: +revenue must appear in matching documents
//   - Escapes inside quotes: \" embeds a literal quote
//   - An unclosed quote is treated as a phrase to the end of the query
func Tokenize(query string) []Token {
	var tokens []Token
	var current strings.Builder
	var inQuote bool
	var escaped bool
	var required bool

	flush := func(phrase bool) {
		if current.Len() == 0 {
			return
		}
		tokens = append(tokens, Token{
			Value:    current.String(),
			Phrase:   phrase,
			Required: required,
		})
		current.Reset()
		required = false
	}

	for _, ch := range strings.TrimSpace(query) {
		if escaped {
			current.WriteRune(ch)
			escaped = false
			continue
		}

		if ch == '\\' && inQuote {
			escaped = true
			continue
		}

		if ch == '"' {
			flush(inQuote)
			if inQuote {
				required = false
			}
			inQuote = !inQuote
			continue
		}

		if inQuote {
			current.WriteRune(ch)
			continue
		}

		if ch == '+' && current.Len() == 0 {
			required = true
			continue
		}

		if unicode.IsSpace(ch) {
			flush(false)
			continue
		}

		current.WriteRune(ch)
	}

	flush(inQuote)

	return tokens
}

// searchTerms lowercases token values for case-insensitive matching and
// drops duplicates, keeping the required flag if any duplicate had it.
func searchTerms(tokens []Token) []Token {
	seen := make(map[string]int, len(tokens))
	var terms []Token

	for _, token := range tokens {
		value := strings.ToLower(strings.TrimSpace(token.Value))
		if value == "" {
			continue
		}
		if i, ok := seen[value]; ok {
			if token.Required {
				terms[i].Required = true
			}
			continue
		}
		seen[value] = len(terms)
		terms = append(terms, Token{Value: value, Phrase: token.Phrase, Required: token.Required})
	}

	return terms
}
