// -----------------------------------------------------------------------
// Package financial computes deterministic metrics (margins, growth,
// valuation ratios) from stored entity inputs when retrieval cannot
// answer a metric question.
// -----------------------------------------------------------------------

package financial

import (
	"errors"
	"fmt"
	"math"

	"github.com/ternarybob/ice/internal/models"
)

var (
	// ErrInsufficientInputs means the entity store had no usable inputs
	// for the requested metric.
	ErrInsufficientInputs = errors.New("insufficient inputs for calculation")

	// ErrDivideByZero means a denominator was zero or invalid.
	ErrDivideByZero = errors.New("division by zero in calculation")
)

// Calculator evaluates financial formulas. All arithmetic runs in
// float64 with results rounded to two decimals at the boundary; NaN and
// Inf never escape.
type Calculator struct{}

// NewCalculator creates a calculator.
func NewCalculator() *Calculator {
	return &Calculator{}
}

// GrossMargin computes (revenue - cogs) / revenue as a percentage.
func (c *Calculator) GrossMargin(revenue, cogs float64) (*models.CalculationTrace, error) {
	if revenue == 0 {
		return nil, fmt.Errorf("gross margin: %w", ErrDivideByZero)
	}
	return trace("gross_margin", "(revenue - cogs) / revenue * 100",
		map[string]float64{"revenue": revenue, "cogs": cogs},
		(revenue-cogs)/revenue*100, "%")
}

// OperatingMargin computes operating income / revenue as a percentage.
func (c *Calculator) OperatingMargin(operatingIncome, revenue float64) (*models.CalculationTrace, error) {
	if revenue == 0 {
		return nil, fmt.Errorf("operating margin: %w", ErrDivideByZero)
	}
	return trace("operating_margin", "operating_income / revenue * 100",
		map[string]float64{"operating_income": operatingIncome, "revenue": revenue},
		operatingIncome/revenue*100, "%")
}

// NetMargin computes net income / revenue as a percentage.
func (c *Calculator) NetMargin(netIncome, revenue float64) (*models.CalculationTrace, error) {
	if revenue == 0 {
		return nil, fmt.Errorf("net margin: %w", ErrDivideByZero)
	}
	return trace("net_margin", "net_income / revenue * 100",
		map[string]float64{"net_income": netIncome, "revenue": revenue},
		netIncome/revenue*100, "%")
}

// YoYGrowth computes year-over-year growth as a percentage.
func (c *Calculator) YoYGrowth(current, prior float64) (*models.CalculationTrace, error) {
	if prior == 0 {
		return nil, fmt.Errorf("yoy growth: %w", ErrDivideByZero)
	}
	return trace("yoy_growth", "(current - prior) / |prior| * 100",
		map[string]float64{"current": current, "prior": prior},
		(current-prior)/math.Abs(prior)*100, "%")
}

// QoQGrowth computes quarter-over-quarter growth as a percentage.
func (c *Calculator) QoQGrowth(current, prior float64) (*models.CalculationTrace, error) {
	if prior == 0 {
		return nil, fmt.Errorf("qoq growth: %w", ErrDivideByZero)
	}
	return trace("qoq_growth", "(current - prior) / |prior| * 100",
		map[string]float64{"current": current, "prior": prior},
		(current-prior)/math.Abs(prior)*100, "%")
}

// EPS computes earnings per share.
func (c *Calculator) EPS(netIncome, shares float64) (*models.CalculationTrace, error) {
	if shares <= 0 {
		return nil, fmt.Errorf("eps: %w", ErrDivideByZero)
	}
	return trace("eps", "net_income / shares_outstanding",
		map[string]float64{"net_income": netIncome, "shares_outstanding": shares},
		netIncome/shares, "USD")
}

// PERatio computes price / earnings per share.
func (c *Calculator) PERatio(price, eps float64) (*models.CalculationTrace, error) {
	if eps == 0 {
		return nil, fmt.Errorf("pe ratio: %w", ErrDivideByZero)
	}
	return trace("pe_ratio", "price / eps",
		map[string]float64{"price": price, "eps": eps},
		price/eps, "x")
}

// PriceChangePercent computes the percent move between two prices.
func (c *Calculator) PriceChangePercent(from, to float64) (*models.CalculationTrace, error) {
	if from == 0 {
		return nil, fmt.Errorf("price change: %w", ErrDivideByZero)
	}
	return trace("price_change", "(to - from) / |from| * 100",
		map[string]float64{"from": from, "to": to},
		(to-from)/math.Abs(from)*100, "%")
}

// CAGR computes compound annual growth rate over the given years.
func (c *Calculator) CAGR(begin, end, years float64) (*models.CalculationTrace, error) {
	if begin <= 0 || years <= 0 {
		return nil, fmt.Errorf("cagr: %w", ErrDivideByZero)
	}
	if end <= 0 {
		return nil, fmt.Errorf("cagr requires positive ending value: %w", ErrInsufficientInputs)
	}
	return trace("cagr", "((end / begin) ^ (1/years) - 1) * 100",
		map[string]float64{"begin": begin, "end": end, "years": years},
		(math.Pow(end/begin, 1/years)-1)*100, "%")
}

// DebtToEquity computes total debt / total equity.
func (c *Calculator) DebtToEquity(debt, equity float64) (*models.CalculationTrace, error) {
	if equity == 0 {
		return nil, fmt.Errorf("debt to equity: %w", ErrDivideByZero)
	}
	return trace("debt_to_equity", "total_debt / total_equity",
		map[string]float64{"total_debt": debt, "total_equity": equity},
		debt/equity, "x")
}

// CurrentRatio computes current assets / current liabilities.
func (c *Calculator) CurrentRatio(assets, liabilities float64) (*models.CalculationTrace, error) {
	if liabilities == 0 {
		return nil, fmt.Errorf("current ratio: %w", ErrDivideByZero)
	}
	return trace("current_ratio", "current_assets / current_liabilities",
		map[string]float64{"current_assets": assets, "current_liabilities": liabilities},
		assets/liabilities, "x")
}

// FreeCashFlow computes operating cash flow minus capital expenditure.
func (c *Calculator) FreeCashFlow(operatingCashFlow, capex float64) (*models.CalculationTrace, error) {
	return trace("free_cash_flow", "operating_cash_flow - capex",
		map[string]float64{"operating_cash_flow": operatingCashFlow, "capex": capex},
		operatingCashFlow-capex, "USD")
}

// trace validates and packages one computation.
func trace(metric, formula string, inputs map[string]float64, result float64, unit string) (*models.CalculationTrace, error) {
	if math.IsNaN(result) || math.IsInf(result, 0) {
		return nil, fmt.Errorf("%s produced a non-finite result: %w", metric, ErrDivideByZero)
	}
	return &models.CalculationTrace{
		Metric:  metric,
		Formula: formula,
		Inputs:  inputs,
		Result:  round2(result),
		Unit:    unit,
	}, nil
}

// round2 rounds to two decimal places.
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
