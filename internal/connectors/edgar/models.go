package edgar

// TickerEntry is one row of the company_tickers.json mapping file. The
// file is an object keyed by row index, not an array.
type TickerEntry struct {
	CIK    int    `json:"cik_str"`
	Ticker string `json:"ticker"`
	Title  string `json:"title"`
}

// Submissions is the per-company submissions feed.
type Submissions struct {
	CIK     string   `json:"cik"`
	Name    string   `json:"name"`
	Tickers []string `json:"tickers"`
	Filings Filings  `json:"filings"`
}

// Filings holds the recent filings window.
type Filings struct {
	Recent RecentFilings `json:"recent"`
}

// RecentFilings carries filings as parallel arrays: index i of every
// slice describes the same filing.
type RecentFilings struct {
	AccessionNumber       []string `json:"accessionNumber"`
	FilingDate            []string `json:"filingDate"`
	ReportDate            []string `json:"reportDate"`
	Form                  []string `json:"form"`
	PrimaryDocument       []string `json:"primaryDocument"`
	PrimaryDocDescription []string `json:"primaryDocDescription"`
}
