package finnhub

// CompanyNews is one article from /api/v1/company-news.
type CompanyNews struct {
	ID       int64  `json:"id"`
	Category string `json:"category"`
	Datetime int64  `json:"datetime"` // unix seconds
	Headline string `json:"headline"`
	Related  string `json:"related"` // comma-separated symbols
	Source   string `json:"source"`
	Summary  string `json:"summary"`
	URL      string `json:"url"`
}

// QuoteData is the /api/v1/quote response. Finnhub uses single-letter
// field names: c=current, d=change, dp=percent change, pc=previous close.
type QuoteData struct {
	Current       float64 `json:"c"`
	Change        float64 `json:"d"`
	PercentChange float64 `json:"dp"`
	High          float64 `json:"h"`
	Low           float64 `json:"l"`
	Open          float64 `json:"o"`
	PrevClose     float64 `json:"pc"`
	Timestamp     int64   `json:"t"` // unix seconds
}
