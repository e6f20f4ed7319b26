package polygon

// NewsResult is one article from the /v2/reference/news endpoint.
type NewsResult struct {
	ID           string    `json:"id"`
	Publisher    Publisher `json:"publisher"`
	Title        string    `json:"title"`
	Author       string    `json:"author"`
	PublishedUTC string    `json:"published_utc"`
	ArticleURL   string    `json:"article_url"`
	Tickers      []string  `json:"tickers"`
	Description  string    `json:"description"`
	Keywords     []string  `json:"keywords"`
	Insights     []Insight `json:"insights"`
}

// Publisher identifies the article's outlet.
type Publisher struct {
	Name        string `json:"name"`
	HomepageURL string `json:"homepage_url"`
}

// Insight is Polygon's per-ticker sentiment annotation.
type Insight struct {
	Ticker             string `json:"ticker"`
	Sentiment          string `json:"sentiment"` // positive, neutral, negative
	SentimentReasoning string `json:"sentiment_reasoning"`
}

// NewsEnvelope wraps the news results list.
type NewsEnvelope struct {
	Results   []NewsResult `json:"results"`
	Status    string       `json:"status"`
	Count     int          `json:"count"`
	NextURL   string       `json:"next_url"`
	RequestID string       `json:"request_id"`
}

// Agg is one OHLCV aggregate bar. Field names follow Polygon's
// single-letter scheme.
type Agg struct {
	Open         float64 `json:"o"`
	High         float64 `json:"h"`
	Low          float64 `json:"l"`
	Close        float64 `json:"c"`
	Volume       float64 `json:"v"`
	VWAP         float64 `json:"vw"`
	TimestampMS  int64   `json:"t"`
	Transactions int     `json:"n"`
}

// AggsEnvelope wraps an aggregates response.
type AggsEnvelope struct {
	Ticker       string `json:"ticker"`
	Results      []Agg  `json:"results"`
	ResultsCount int    `json:"resultsCount"`
	Status       string `json:"status"`
	RequestID    string `json:"request_id"`
}
