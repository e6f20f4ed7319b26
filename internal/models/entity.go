package models

import "time"

// EntityType classifies an extracted entity. String-typed so badgerhold
// indexes and JSON round-trips stay readable.
type EntityType string

const (
	EntityTicker          EntityType = "ticker"
	EntityCompany         EntityType = "company"
	EntityRating          EntityType = "rating"
	EntityPriceTarget     EntityType = "price_target"
	EntityFinancialMetric EntityType = "financial_metric"
	EntityPercentage      EntityType = "percentage"
	EntityFiscalPeriod    EntityType = "fiscal_period"
	EntityPerson          EntityType = "person"
)

// Entity is one extracted mention: a ticker, company, analyst rating,
// price target, or financial figure found in document text.
type Entity struct {
	ID         string     `json:"id" badgerhold:"key"`
	Type       EntityType `json:"type" badgerholdIndex:"Type"`
	Value      string     `json:"value"`                                    // text as matched
	Normalized string     `json:"normalized" badgerholdIndex:"Normalized"`  // canonical form (upper symbol, scaled number)
	Confidence float64    `json:"confidence"`
	DocumentID string     `json:"document_id" badgerholdIndex:"DocumentID"`
	Context    string     `json:"context,omitempty"` // surrounding text window
	// Attributes carries pattern-class specifics:
	// ratings: firm, action, level; metrics: metric, value, unit, period;
	// price targets: value, currency.
	Attributes map[string]string `json:"attributes,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
}

// RelationType classifies a derived relationship between entities.
type RelationType string

const (
	RelMentions      RelationType = "mentions"
	RelRatedBy       RelationType = "rated_by"
	RelReportsMetric RelationType = "reports_metric"
	RelFiled         RelationType = "filed"
	RelCoMentioned   RelationType = "co_mentioned"
	RelTargetsPrice  RelationType = "targets_price"
)

// Relationship links two entity values within a document. FromValue and
// ToValue are normalized entity values so cross-document joins work
// without resolving entity IDs first.
type Relationship struct {
	ID         string       `json:"id" badgerhold:"key"`
	Type       RelationType `json:"type"`
	FromID     string       `json:"from_id,omitempty"`
	ToID       string       `json:"to_id,omitempty"`
	FromValue  string       `json:"from_value" badgerholdIndex:"FromValue"`
	ToValue    string       `json:"to_value"`
	DocumentID string       `json:"document_id"`
	Weight     float64      `json:"weight"`
	CreatedAt  time.Time    `json:"created_at"`
}

// CategorizedEntity groups an entity with its mention count for answer
// categorization output.
type CategorizedEntity struct {
	Entity   Entity `json:"entity"`
	Category string `json:"category"`
	Mentions int    `json:"mentions"`
}
