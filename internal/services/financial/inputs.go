package financial

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/ice/internal/interfaces"
	"github.com/ternarybob/ice/internal/models"
)

// questionMetrics maps question keywords to computable metrics. Checked
// in order so specific phrases win over generic ones.
var questionMetrics = []struct {
	metric   string
	keywords []string
}{
	{"gross_margin", []string{"gross margin"}},
	{"operating_margin", []string{"operating margin"}},
	{"net_margin", []string{"net margin", "profit margin"}},
	{"free_cash_flow", []string{"free cash flow", "fcf"}},
	{"debt_to_equity", []string{"debt to equity", "debt-to-equity"}},
	{"current_ratio", []string{"current ratio"}},
	{"eps", []string{"earnings per share", "eps"}},
	{"qoq_growth", []string{"quarter over quarter", "quarter-over-quarter", "qoq", "sequential growth"}},
	{"yoy_growth", []string{"year over year", "year-over-year", "yoy", "growth", "grew", "grow"}},
	{"gross_margin_generic", []string{"margin"}},
}

// inputAliases maps formula input names to the metric labels the entity
// extractor stamps on stored figures.
var inputAliases = map[string][]string{
	"revenue":             {"revenue", "sales"},
	"cogs":                {"cogs", "cost of goods sold", "cost of sales", "cost of revenue"},
	"net_income":          {"net income", "income", "profit", "earnings"},
	"operating_income":    {"operating income", "ebitda"},
	"operating_cash_flow": {"operating cash flow", "cash flow"},
	"capex":               {"capex", "capital expenditure", "capital expenditures"},
	"total_debt":          {"total debt"},
	"total_equity":        {"total equity"},
	"current_assets":      {"current assets"},
	"current_liabilities": {"current liabilities"},
	"shares_outstanding":  {"shares outstanding"},
}

// periodPattern parses normalized fiscal periods ("Q3 FY2025", "FY2024").
var periodPattern = regexp.MustCompile(`^(?:Q([1-4]) )?FY(\d{4})$`)

// questionPeriodPattern finds a fiscal period mentioned in a question.
var questionPeriodPattern = regexp.MustCompile(`(?i)\bQ([1-4])\s?(?:FY)?\s?(\d{4})\b|\bFY\s?(\d{4})\b`)

// Service answers metric questions from stored entity inputs.
type Service struct {
	calc     *Calculator
	entities interfaces.EntityStorage
	logger   arbor.ILogger
}

// NewService creates a financial calculation service over the entity store.
func NewService(entityStorage interfaces.EntityStorage, logger arbor.ILogger) *Service {
	return &Service{
		calc:     NewCalculator(),
		entities: entityStorage,
		logger:   logger,
	}
}

// Calculator exposes the underlying formula set.
func (s *Service) Calculator() *Calculator {
	return s.calc
}

// DetectMetric returns the computable metric a question asks about, or
// empty when the question is not a metric question.
func DetectMetric(question string) string {
	q := strings.ToLower(question)
	for _, entry := range questionMetrics {
		for _, keyword := range entry.keywords {
			if strings.Contains(q, keyword) {
				if entry.metric == "gross_margin_generic" {
					return "gross_margin"
				}
				return entry.metric
			}
		}
	}
	return ""
}

// ComputeForQuestion detects the metric a question asks about, gathers
// inputs from the entity store for each symbol, and computes. Symbols
// that lack inputs are skipped; no computable symbol at all returns
// ErrInsufficientInputs.
func (s *Service) ComputeForQuestion(ctx context.Context, question string, symbols []string) ([]models.CalculationTrace, error) {
	metric := DetectMetric(question)
	if metric == "" {
		return nil, fmt.Errorf("question asks for no computable metric: %w", ErrInsufficientInputs)
	}
	if len(symbols) == 0 {
		return nil, fmt.Errorf("no symbols to compute %s for: %w", metric, ErrInsufficientInputs)
	}
	period := questionPeriod(question)

	var traces []models.CalculationTrace
	for _, symbol := range symbols {
		symbol = strings.ToUpper(strings.TrimSpace(symbol))
		trace, err := s.computeMetric(ctx, metric, symbol, period, question)
		if err != nil {
			s.logger.Debug().
				Str("symbol", symbol).
				Str("metric", metric).
				Err(err).
				Msg("Skipping symbol without usable inputs")
			continue
		}
		trace.Metric = fmt.Sprintf("%s:%s", symbol, trace.Metric)
		traces = append(traces, *trace)
	}

	if len(traces) == 0 {
		return nil, fmt.Errorf("no inputs stored for %s across %v: %w", metric, symbols, ErrInsufficientInputs)
	}
	return traces, nil
}

func (s *Service) computeMetric(ctx context.Context, metric, symbol, period, question string) (*models.CalculationTrace, error) {
	switch metric {
	case "gross_margin":
		revenue, err := s.gather(symbol, "revenue", period)
		if err != nil {
			return nil, err
		}
		cogs, err := s.gather(symbol, "cogs", period)
		if err != nil {
			return nil, err
		}
		trace, err := s.calc.GrossMargin(revenue.value, cogs.value)
		return withSources(trace, err, revenue, cogs)

	case "operating_margin":
		operating, err := s.gather(symbol, "operating_income", period)
		if err != nil {
			return nil, err
		}
		revenue, err := s.gather(symbol, "revenue", period)
		if err != nil {
			return nil, err
		}
		trace, err := s.calc.OperatingMargin(operating.value, revenue.value)
		return withSources(trace, err, operating, revenue)

	case "net_margin":
		income, err := s.gather(symbol, "net_income", period)
		if err != nil {
			return nil, err
		}
		revenue, err := s.gather(symbol, "revenue", period)
		if err != nil {
			return nil, err
		}
		trace, err := s.calc.NetMargin(income.value, revenue.value)
		return withSources(trace, err, income, revenue)

	case "free_cash_flow":
		ocf, err := s.gather(symbol, "operating_cash_flow", period)
		if err != nil {
			return nil, err
		}
		capex, err := s.gather(symbol, "capex", period)
		if err != nil {
			return nil, err
		}
		trace, err := s.calc.FreeCashFlow(ocf.value, capex.value)
		return withSources(trace, err, ocf, capex)

	case "debt_to_equity":
		debt, err := s.gather(symbol, "total_debt", period)
		if err != nil {
			return nil, err
		}
		equity, err := s.gather(symbol, "total_equity", period)
		if err != nil {
			return nil, err
		}
		trace, err := s.calc.DebtToEquity(debt.value, equity.value)
		return withSources(trace, err, debt, equity)

	case "current_ratio":
		assets, err := s.gather(symbol, "current_assets", period)
		if err != nil {
			return nil, err
		}
		liabilities, err := s.gather(symbol, "current_liabilities", period)
		if err != nil {
			return nil, err
		}
		trace, err := s.calc.CurrentRatio(assets.value, liabilities.value)
		return withSources(trace, err, assets, liabilities)

	case "eps":
		income, err := s.gather(symbol, "net_income", period)
		if err != nil {
			return nil, err
		}
		shares, err := s.gather(symbol, "shares_outstanding", period)
		if err != nil {
			return nil, err
		}
		trace, err := s.calc.EPS(income.value, shares.value)
		return withSources(trace, err, income, shares)

	case "yoy_growth", "qoq_growth":
		subject := growthSubject(question)
		current, prior, err := s.growthPair(symbol, subject, metric == "yoy_growth")
		if err != nil {
			return nil, err
		}
		var trace *models.CalculationTrace
		if metric == "yoy_growth" {
			trace, err = s.calc.YoYGrowth(current.value, prior.value)
		} else {
			trace, err = s.calc.QoQGrowth(current.value, prior.value)
		}
		return withSources(trace, err, current, prior)

	default:
		return nil, fmt.Errorf("unknown metric %s: %w", metric, ErrInsufficientInputs)
	}
}

// input is one gathered figure with its provenance.
type input struct {
	value  float64
	period string
	source string
}

// gather finds the most recent stored figure for one formula input.
func (s *Service) gather(symbol, inputName, period string) (*input, error) {
	aliases, ok := inputAliases[inputName]
	if !ok {
		return nil, fmt.Errorf("no aliases for input %s: %w", inputName, ErrInsufficientInputs)
	}

	for _, alias := range aliases {
		entities, err := s.entities.MetricInputs(symbol, alias, period, 5)
		if err != nil {
			return nil, fmt.Errorf("metric input lookup failed: %w", err)
		}
		for _, entity := range entities {
			value, err := strconv.ParseFloat(entity.Attributes["value"], 64)
			if err != nil {
				continue
			}
			return &input{
				value:  value,
				period: entity.Attributes["period"],
				source: entity.DocumentID,
			}, nil
		}
	}
	return nil, fmt.Errorf("no stored %s for %s: %w", inputName, symbol, ErrInsufficientInputs)
}

// growthPair finds the two most relevant figures for a growth metric:
// same quarter a year apart for YoY, the two most recent distinct
// periods otherwise.
func (s *Service) growthPair(symbol, inputName string, yoy bool) (*input, *input, error) {
	aliases := inputAliases[inputName]

	// One figure per period, most recent mention wins
	byPeriod := map[string]*input{}
	for _, alias := range aliases {
		entities, err := s.entities.MetricInputs(symbol, alias, "", 25)
		if err != nil {
			return nil, nil, fmt.Errorf("metric input lookup failed: %w", err)
		}
		for _, entity := range entities {
			period := entity.Attributes["period"]
			if period == "" {
				continue
			}
			if _, ok := byPeriod[period]; ok {
				continue
			}
			value, err := strconv.ParseFloat(entity.Attributes["value"], 64)
			if err != nil {
				continue
			}
			byPeriod[period] = &input{value: value, period: period, source: entity.DocumentID}
		}
	}
	if len(byPeriod) < 2 {
		return nil, nil, fmt.Errorf("need figures from two periods for %s growth of %s: %w", inputName, symbol, ErrInsufficientInputs)
	}

	ordered := orderPeriods(byPeriod)
	current := ordered[0]

	if yoy {
		// Prefer the same quarter one year earlier
		quarter, year := parsePeriod(current.period)
		for _, candidate := range ordered[1:] {
			q, y := parsePeriod(candidate.period)
			if q == quarter && y == year-1 {
				return current, candidate, nil
			}
		}
	}
	return current, ordered[1], nil
}

// withSources attaches input provenance to a computed trace.
func withSources(trace *models.CalculationTrace, err error, inputs ...*input) (*models.CalculationTrace, error) {
	if err != nil {
		return nil, err
	}
	seen := map[string]bool{}
	for _, in := range inputs {
		if in.source != "" && !seen[in.source] {
			seen[in.source] = true
			trace.InputSources = append(trace.InputSources, in.source)
		}
	}
	return trace, nil
}

// growthSubject picks which figure a growth question is about.
func growthSubject(question string) string {
	q := strings.ToLower(question)
	switch {
	case strings.Contains(q, "earnings") || strings.Contains(q, "income") || strings.Contains(q, "profit"):
		return "net_income"
	case strings.Contains(q, "cash flow"):
		return "operating_cash_flow"
	default:
		return "revenue"
	}
}

// questionPeriod extracts a normalized fiscal period from a question.
func questionPeriod(question string) string {
	match := questionPeriodPattern.FindStringSubmatch(question)
	if match == nil {
		return ""
	}
	if match[1] != "" {
		return fmt.Sprintf("Q%s FY%s", match[1], match[2])
	}
	return "FY" + match[3]
}

// orderPeriods sorts period buckets most recent first.
func orderPeriods(byPeriod map[string]*input) []*input {
	ordered := make([]*input, 0, len(byPeriod))
	for _, in := range byPeriod {
		ordered = append(ordered, in)
	}
	for i := 0; i < len(ordered); i++ {
		for j := i + 1; j < len(ordered); j++ {
			if periodAfter(ordered[j].period, ordered[i].period) {
				ordered[i], ordered[j] = ordered[j], ordered[i]
			}
		}
	}
	return ordered
}

// periodAfter reports whether period a is later than period b.
func periodAfter(a, b string) bool {
	qa, ya := parsePeriod(a)
	qb, yb := parsePeriod(b)
	if ya != yb {
		return ya > yb
	}
	return qa > qb
}

// parsePeriod splits a normalized period into quarter and year. Annual
// periods report quarter 0.
func parsePeriod(period string) (quarter, year int) {
	match := periodPattern.FindStringSubmatch(period)
	if match == nil {
		return 0, 0
	}
	if match[1] != "" {
		quarter, _ = strconv.Atoi(match[1])
	}
	year, _ = strconv.Atoi(match[2])
	return quarter, year
}
