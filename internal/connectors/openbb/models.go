package openbb

// NewsEnvelope wraps a company news response.
type NewsEnvelope struct {
	Results []CompanyNews `json:"results"`
}

// CompanyNews is one article from /api/v1/news/company. Symbols arrive
// as a comma-separated string.
type CompanyNews struct {
	Date    string `json:"date"`
	Title   string `json:"title"`
	Text    string `json:"text"`
	URL     string `json:"url"`
	Symbols string `json:"symbols"`
}

// QuoteEnvelope wraps an equity quote response.
type QuoteEnvelope struct {
	Results []EquityQuote `json:"results"`
}

// EquityQuote is one quote from /api/v1/equity/price/quote.
type EquityQuote struct {
	Symbol        string  `json:"symbol"`
	LastPrice     float64 `json:"last_price"`
	Open          float64 `json:"open"`
	High          float64 `json:"high"`
	Low           float64 `json:"low"`
	PrevClose     float64 `json:"prev_close"`
	Volume        int64   `json:"volume"`
	LastTimestamp string  `json:"last_timestamp"`
}
