// -----------------------------------------------------------------------
// Package entities extracts financial entities (tickers, companies,
// analyst ratings, price targets, metrics) from document text with
// precompiled regex patterns.
// -----------------------------------------------------------------------

package entities

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/ternarybob/ice/internal/models"
)

// ratingLevels is the analyst rating vocabulary. Multi-word levels come
// first so alternation prefers the longest match.
const ratingLevels = `Strong Buy|Market Perform|Sector Perform|Equal[ -]Weight|Overweight|Underweight|Outperform|Underperform|Accumulate|Neutral|Reduce|Buy|Sell|Hold`

// contextWindow is how many runes of surrounding text each entity keeps.
const contextWindow = 80

// confidenceByPattern ranks pattern classes by precision. Cashtags are
// unambiguous; bare symbols only count when the watchlist vouches for them.
var confidenceByPattern = map[string]float64{
	"cashtag":             0.98,
	"exchange_symbol":     0.95,
	"bare_symbol":         0.70,
	"company":             0.80,
	"rating":              0.85,
	"price_target":        0.90,
	"price_target_abbrev": 0.85,
	"money":               0.75,
	"money_compact":       0.70,
	"percentage":          0.70,
	"fiscal_quarter":      0.90,
	"fiscal_quarter_word": 0.90,
	"fiscal_year":         0.85,
}

// metricContext matches the metric vocabulary that qualifies a number as
// a financial metric rather than an incidental figure. Multi-word labels
// precede their substrings so alternation prefers the specific form.
var metricContext = regexp.MustCompile(`(?i)\b(cost of goods sold|cost of sales|cost of revenue|earnings per share|operating cash flow|free cash flow|operating income|net income|gross profit|shares outstanding|capital expenditures?|total debt|total equity|current assets|current liabilities|revenue|sales|earnings|eps|income|profit|margin|growth|yield|guidance|decline|cash flow|ebitda|dividend|cogs|capex)\b`)

// Extractor finds financial entities in text. Patterns are compiled once
// at construction; bare ticker symbols only match against the watchlist.
type Extractor struct {
	patterns  map[string]*regexp.Regexp
	watchlist map[string]bool
}

// NewExtractor creates an extractor. watchlist bounds bare-symbol
// matching; cashtags and exchange-qualified symbols always match.
func NewExtractor(watchlist []string) *Extractor {
	watch := make(map[string]bool, len(watchlist))
	for _, s := range watchlist {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s != "" {
			watch[s] = true
		}
	}

	return &Extractor{
		watchlist: watch,
		patterns: map[string]*regexp.Regexp{
			// Cashtags: $AAPL, $BRK.A
			"cashtag": regexp.MustCompile(`\$([A-Z]{1,5}(?:\.[A-Z])?)\b`),

			// Exchange-qualified symbols: (NASDAQ: AAPL), NYSE: BRK.A, ASX:BHP
			"exchange_symbol": regexp.MustCompile(`\b(?:NASDAQ|NYSE|AMEX|ASX|LSE|TSX|OTC)\s*:\s*([A-Z]{1,5}(?:\.[A-Z])?)\b`),

			// Bare symbols, gated by the watchlist to avoid matching CEO, GAAP, ...
			"bare_symbol": regexp.MustCompile(`\b([A-Z]{1,5}(?:\.[A-Z])?)\b`),

			// Company names by corporate suffix: Apple Inc., Barrick Gold Corp
			"company": regexp.MustCompile(`\b([A-Z][A-Za-z&'.-]+(?:\s+[A-Z][A-Za-z&'.-]+){0,3})(?:,)?\s+(Inc|Incorporated|Corp|Corporation|Ltd|Limited|PLC|Holdings|Group)\b\.?`),

			// Analyst actions: "Morgan Stanley upgraded ... to Overweight",
			// "Citi initiated coverage ... with a Buy rating"
			"rating": regexp.MustCompile(`\b([A-Z][A-Za-z.&'-]+(?:\s+[A-Z][A-Za-z.&'-]+){0,2})\s+(upgraded|downgraded|initiated|reiterated|maintained|raised|lowered)\b[^.;]{0,60}?\b(?:to|at|with)\s+(?:an?\s+)?(` + ratingLevels + `)\b`),

			// Price targets: "price target ... $250", "PT $250"
			"price_target":        regexp.MustCompile(`(?i)\bprice\s+target\b[^.$]{0,30}?\$\s?(\d+(?:,\d{3})*(?:\.\d+)?)`),
			"price_target_abbrev": regexp.MustCompile(`\bPT\s+(?:of\s+)?\$\s?(\d+(?:,\d{3})*(?:\.\d+)?)\b`),

			// Money with scale words: $4.1 billion, $250M; compact 2.3B form
			"money":         regexp.MustCompile(`\$\s?(\d+(?:,\d{3})*(?:\.\d+)?)\s?(?i:(trillion|billion|million|thousand|tn|bn|mn|mm|[tbmk]))\b`),
			"money_compact": regexp.MustCompile(`\b(\d+(?:\.\d+)?)\s?([TBMK])\b`),

			// Percentages; only kept when metric vocabulary appears nearby
			"percentage": regexp.MustCompile(`\b(\d+(?:\.\d+)?)\s?%`),

			// Fiscal periods: Q3 FY2025, fourth quarter of 2024, FY2024
			"fiscal_quarter":      regexp.MustCompile(`(?i)\bQ([1-4])\s?(?:FY)?\s?(\d{4})\b`),
			"fiscal_quarter_word": regexp.MustCompile(`(?i)\b(first|second|third|fourth)\s+quarter\s+(?:of\s+)?(\d{4})\b`),
			"fiscal_year":         regexp.MustCompile(`(?i)\bFY\s?(\d{4})\b`),
		},
	}
}

// ExtractFromText finds all entities in text. Results are deduplicated
// by (type, normalized value), keeping the highest-confidence mention.
func (e *Extractor) ExtractFromText(text string) []models.Entity {
	var entities []models.Entity

	entities = append(entities, e.extractSymbols(text)...)
	entities = append(entities, e.extractCompanies(text)...)
	entities = append(entities, e.extractRatings(text)...)
	entities = append(entities, e.extractPriceTargets(text)...)
	entities = append(entities, e.extractMoney(text)...)
	entities = append(entities, e.extractPercentages(text)...)
	entities = append(entities, e.extractFiscalPeriods(text)...)

	return dedupe(entities)
}

// ExtractFromDocument extracts entities from a document's title and
// content, then derives the relationships between them. Metric, price
// target and percentage entities get the document's primary symbol
// stamped into Attributes so they can be narrowed by symbol later.
func (e *Extractor) ExtractFromDocument(doc *models.Document) ([]models.Entity, []models.Relationship) {
	text := doc.Title + "\n\n" + doc.ContentMarkdown
	entities := e.ExtractFromText(text)

	// Source-attached symbols are authoritative even when absent from text
	for _, symbol := range doc.Symbols {
		entities = append(entities, models.Entity{
			ID:         uuid.New().String(),
			Type:       models.EntityTicker,
			Value:      symbol,
			Normalized: strings.ToUpper(symbol),
			Confidence: 0.99,
		})
	}
	entities = dedupe(entities)

	primary := ""
	if len(doc.Symbols) > 0 {
		primary = strings.ToUpper(doc.Symbols[0])
	}
	period := ""

	for i := range entities {
		entities[i].DocumentID = doc.ID
		if entities[i].Type == models.EntityFiscalPeriod && period == "" {
			period = entities[i].Normalized
		}
	}
	for i := range entities {
		switch entities[i].Type {
		case models.EntityFinancialMetric, models.EntityPercentage, models.EntityPriceTarget:
			if entities[i].Attributes == nil {
				entities[i].Attributes = map[string]string{}
			}
			if primary != "" {
				entities[i].Attributes["symbol"] = primary
			}
			if period != "" && entities[i].Attributes["period"] == "" {
				entities[i].Attributes["period"] = period
			}
		}
	}

	return entities, e.deriveRelationships(doc.ID, primary, entities)
}

// TagSymbols is the fast path for email ingestion: ticker symbols only,
// normalized and deduplicated.
func (e *Extractor) TagSymbols(text string) []string {
	var symbols []string
	for _, entity := range e.extractSymbols(text) {
		symbols = append(symbols, entity.Normalized)
	}
	return models.NormalizeSymbols(symbols)
}

// Watching reports whether a symbol is on the watchlist.
func (e *Extractor) Watching(symbol string) bool {
	return e.watchlist[strings.ToUpper(strings.TrimSpace(symbol))]
}

func (e *Extractor) extractSymbols(text string) []models.Entity {
	var entities []models.Entity

	for _, name := range []string{"cashtag", "exchange_symbol"} {
		for _, match := range e.patterns[name].FindAllStringSubmatchIndex(text, -1) {
			symbol := text[match[2]:match[3]]
			entities = append(entities, models.Entity{
				ID:         uuid.New().String(),
				Type:       models.EntityTicker,
				Value:      text[match[0]:match[1]],
				Normalized: strings.ToUpper(symbol),
				Confidence: confidenceByPattern[name],
				Context:    contextAround(text, match[0], match[1]),
			})
		}
	}

	if len(e.watchlist) > 0 {
		for _, match := range e.patterns["bare_symbol"].FindAllStringSubmatchIndex(text, -1) {
			symbol := text[match[2]:match[3]]
			if !e.watchlist[symbol] {
				continue
			}
			entities = append(entities, models.Entity{
				ID:         uuid.New().String(),
				Type:       models.EntityTicker,
				Value:      symbol,
				Normalized: symbol,
				Confidence: confidenceByPattern["bare_symbol"],
				Context:    contextAround(text, match[0], match[1]),
			})
		}
	}

	return entities
}

func (e *Extractor) extractCompanies(text string) []models.Entity {
	var entities []models.Entity
	for _, match := range e.patterns["company"].FindAllStringSubmatchIndex(text, -1) {
		name := text[match[2]:match[3]]
		suffix := text[match[4]:match[5]]
		full := name + " " + suffix
		entities = append(entities, models.Entity{
			ID:         uuid.New().String(),
			Type:       models.EntityCompany,
			Value:      strings.TrimSpace(text[match[0]:match[1]]),
			Normalized: strings.ToLower(full),
			Confidence: confidenceByPattern["company"],
			Context:    contextAround(text, match[0], match[1]),
		})
	}
	return entities
}

func (e *Extractor) extractRatings(text string) []models.Entity {
	var entities []models.Entity
	for _, match := range e.patterns["rating"].FindAllStringSubmatchIndex(text, -1) {
		firm := strings.TrimSpace(text[match[2]:match[3]])
		action := strings.ToLower(text[match[4]:match[5]])
		level := text[match[6]:match[7]]
		entities = append(entities, models.Entity{
			ID:         uuid.New().String(),
			Type:       models.EntityRating,
			Value:      text[match[0]:match[1]],
			Normalized: fmt.Sprintf("%s|%s|%s", strings.ToLower(firm), action, strings.ToLower(level)),
			Confidence: confidenceByPattern["rating"],
			Context:    contextAround(text, match[0], match[1]),
			Attributes: map[string]string{
				"firm":   firm,
				"action": action,
				"level":  level,
			},
		})
	}
	return entities
}

func (e *Extractor) extractPriceTargets(text string) []models.Entity {
	var entities []models.Entity
	for _, name := range []string{"price_target", "price_target_abbrev"} {
		for _, match := range e.patterns[name].FindAllStringSubmatchIndex(text, -1) {
			raw := text[match[2]:match[3]]
			value, err := strconv.ParseFloat(strings.ReplaceAll(raw, ",", ""), 64)
			if err != nil {
				continue
			}
			entities = append(entities, models.Entity{
				ID:         uuid.New().String(),
				Type:       models.EntityPriceTarget,
				Value:      text[match[0]:match[1]],
				Normalized: strconv.FormatFloat(value, 'f', -1, 64),
				Confidence: confidenceByPattern[name],
				Context:    contextAround(text, match[0], match[1]),
				Attributes: map[string]string{
					"value":    strconv.FormatFloat(value, 'f', -1, 64),
					"currency": "USD",
				},
			})
		}
	}
	return entities
}

func (e *Extractor) extractMoney(text string) []models.Entity {
	var entities []models.Entity

	collect := func(name string, match []int) {
		raw := text[match[2]:match[3]]
		number, err := strconv.ParseFloat(strings.ReplaceAll(raw, ",", ""), 64)
		if err != nil {
			return
		}
		scale := ""
		if match[4] >= 0 {
			scale = text[match[4]:match[5]]
		}
		// Round to cents so scale multiplication stays clean in float64
		value := math.Round(number*scaleFactor(scale)*100) / 100
		context := contextAround(text, match[0], match[1])

		attrs := map[string]string{
			"value": strconv.FormatFloat(value, 'f', -1, 64),
			"unit":  "USD",
		}
		if metric := nearestMetric(text, match[0], match[1]); metric != "" {
			attrs["metric"] = metric
		}

		entities = append(entities, models.Entity{
			ID:         uuid.New().String(),
			Type:       models.EntityFinancialMetric,
			Value:      strings.TrimSpace(text[match[0]:match[1]]),
			Normalized: attrs["value"],
			Confidence: confidenceByPattern[name],
			Context:    context,
			Attributes: attrs,
		})
	}

	for _, match := range e.patterns["money"].FindAllStringSubmatchIndex(text, -1) {
		collect("money", match)
	}
	for _, match := range e.patterns["money_compact"].FindAllStringSubmatchIndex(text, -1) {
		// Skip compact matches inside a $-prefixed figure already taken
		if match[0] > 0 && text[match[0]-1] == '$' {
			continue
		}
		collect("money_compact", match)
	}

	return entities
}

func (e *Extractor) extractPercentages(text string) []models.Entity {
	var entities []models.Entity
	for _, match := range e.patterns["percentage"].FindAllStringSubmatchIndex(text, -1) {
		metric := nearestMetric(text, match[0], match[1])
		if metric == "" {
			// A number with a percent sign but no metric vocabulary
			// nearby is noise (poll results, battery levels, ...)
			continue
		}
		value := text[match[2]:match[3]]
		entities = append(entities, models.Entity{
			ID:         uuid.New().String(),
			Type:       models.EntityPercentage,
			Value:      strings.TrimSpace(text[match[0]:match[1]]),
			Normalized: value,
			Confidence: confidenceByPattern["percentage"],
			Context:    contextAround(text, match[0], match[1]),
			Attributes: map[string]string{
				"value":  value,
				"metric": metric,
			},
		})
	}
	return entities
}

func (e *Extractor) extractFiscalPeriods(text string) []models.Entity {
	var entities []models.Entity

	add := func(name, value, normalized string, start, end int) {
		entities = append(entities, models.Entity{
			ID:         uuid.New().String(),
			Type:       models.EntityFiscalPeriod,
			Value:      value,
			Normalized: normalized,
			Confidence: confidenceByPattern[name],
			Context:    contextAround(text, start, end),
		})
	}

	for _, match := range e.patterns["fiscal_quarter"].FindAllStringSubmatchIndex(text, -1) {
		quarter := text[match[2]:match[3]]
		year := text[match[4]:match[5]]
		add("fiscal_quarter", text[match[0]:match[1]], fmt.Sprintf("Q%s FY%s", quarter, year), match[0], match[1])
	}
	for _, match := range e.patterns["fiscal_quarter_word"].FindAllStringSubmatchIndex(text, -1) {
		word := strings.ToLower(text[match[2]:match[3]])
		year := text[match[4]:match[5]]
		add("fiscal_quarter_word", text[match[0]:match[1]], fmt.Sprintf("Q%d FY%s", quarterNumber(word), year), match[0], match[1])
	}
	for _, match := range e.patterns["fiscal_year"].FindAllStringSubmatchIndex(text, -1) {
		year := text[match[2]:match[3]]
		add("fiscal_year", text[match[0]:match[1]], "FY"+year, match[0], match[1])
	}

	return entities
}

// deriveRelationships builds the graph edges for one document. Ticker
// symbols anchor every relationship so symbol lookups reach related
// documents in one hop.
func (e *Extractor) deriveRelationships(docID, primary string, entities []models.Entity) []models.Relationship {
	var tickers []string
	for _, entity := range entities {
		if entity.Type == models.EntityTicker {
			tickers = append(tickers, entity.Normalized)
		}
	}
	if primary == "" && len(tickers) > 0 {
		primary = tickers[0]
	}

	now := time.Now().UTC()
	var rels []models.Relationship

	add := func(relType models.RelationType, from, to string, weight float64) {
		rels = append(rels, models.Relationship{
			ID:         uuid.New().String(),
			Type:       relType,
			FromValue:  from,
			ToValue:    to,
			DocumentID: docID,
			Weight:     weight,
			CreatedAt:  now,
		})
	}

	// Co-mention edges in both directions so either symbol reaches the doc
	for i := 0; i < len(tickers); i++ {
		for j := i + 1; j < len(tickers); j++ {
			add(models.RelCoMentioned, tickers[i], tickers[j], 1.0)
			add(models.RelCoMentioned, tickers[j], tickers[i], 1.0)
		}
	}

	if primary == "" {
		return rels
	}

	for _, entity := range entities {
		switch entity.Type {
		case models.EntityRating:
			add(models.RelRatedBy, primary, entity.Attributes["firm"], 2.0)
		case models.EntityFinancialMetric:
			metric := entity.Attributes["metric"]
			if metric == "" {
				metric = entity.Normalized
			}
			add(models.RelReportsMetric, primary, metric, 1.5)
		case models.EntityPriceTarget:
			add(models.RelTargetsPrice, primary, entity.Normalized, 2.0)
		}
	}

	return rels
}

// dedupe collapses entities sharing (type, normalized), keeping the
// highest-confidence mention. Order of first appearance is preserved.
func dedupe(entities []models.Entity) []models.Entity {
	type key struct {
		entityType models.EntityType
		normalized string
	}
	index := make(map[key]int, len(entities))
	var out []models.Entity

	for _, entity := range entities {
		k := key{entity.Type, entity.Normalized}
		if i, ok := index[k]; ok {
			if entity.Confidence > out[i].Confidence {
				id := out[i].ID
				out[i] = entity
				out[i].ID = id
			}
			continue
		}
		index[k] = len(out)
		out = append(out, entity)
	}
	return out
}

// nearestMetric finds the metric label closest to a matched figure.
// Labels normally precede the figure ("revenue of $4.1 billion"), so the
// last preceding match wins; a following match is the fallback.
func nearestMetric(text string, start, end int) string {
	before := runesBefore(text, start, 60)
	if locs := metricContext.FindAllStringIndex(before, -1); len(locs) > 0 {
		last := locs[len(locs)-1]
		return strings.ToLower(before[last[0]:last[1]])
	}
	after := runesAfter(text, end, 40)
	if loc := metricContext.FindStringIndex(after); loc != nil {
		return strings.ToLower(after[loc[0]:loc[1]])
	}
	return ""
}

// runesBefore returns up to n runes of text ending at byte offset pos.
func runesBefore(text string, pos, n int) string {
	start := pos
	for i := 0; i < n && start > 0; i++ {
		_, size := utf8.DecodeLastRuneInString(text[:start])
		start -= size
	}
	return text[start:pos]
}

// runesAfter returns up to n runes of text starting at byte offset pos.
func runesAfter(text string, pos, n int) string {
	end := pos
	for i := 0; i < n && end < len(text); i++ {
		_, size := utf8.DecodeRuneInString(text[end:])
		end += size
	}
	return text[pos:end]
}

// contextAround returns up to contextWindow runes either side of the match.
func contextAround(text string, start, end int) string {
	runes := []rune(text)
	// Byte offsets from the regexp need converting to rune offsets
	startRune := len([]rune(text[:start]))
	endRune := startRune + len([]rune(text[start:end]))

	from := startRune - contextWindow
	if from < 0 {
		from = 0
	}
	to := endRune + contextWindow
	if to > len(runes) {
		to = len(runes)
	}
	return strings.TrimSpace(string(runes[from:to]))
}

// scaleFactor maps a scale word or suffix to its multiplier.
func scaleFactor(scale string) float64 {
	switch strings.ToLower(scale) {
	case "trillion", "tn", "t":
		return 1e12
	case "billion", "bn", "b":
		return 1e9
	case "million", "mn", "mm", "m":
		return 1e6
	case "thousand", "k":
		return 1e3
	default:
		return 1
	}
}

// quarterNumber maps a spelled-out quarter to its number.
func quarterNumber(word string) int {
	switch word {
	case "first":
		return 1
	case "second":
		return 2
	case "third":
		return 3
	case "fourth":
		return 4
	default:
		return 0
	}
}
