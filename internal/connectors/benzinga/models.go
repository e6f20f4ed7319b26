package benzinga

import "time"

// NewsItem is one article from the /api/v2/news feed.
type NewsItem struct {
	ID         int         `json:"id"`
	Author     string      `json:"author"`
	CreatedStr string      `json:"created"`
	UpdatedStr string      `json:"updated"`
	Title      string      `json:"title"`
	Teaser     string      `json:"teaser"`
	Body       string      `json:"body"`
	URL        string      `json:"url"`
	Channels   []NamedItem `json:"channels"`
	Stocks     []NamedItem `json:"stocks"`
	Tags       []NamedItem `json:"tags"`

	// Parsed from CreatedStr/UpdatedStr (RFC1123Z)
	Created time.Time `json:"-"`
	Updated time.Time `json:"-"`
}

// NamedItem is the {"name": "..."} shape Benzinga uses for channels,
// stocks and tags.
type NamedItem struct {
	Name string `json:"name"`
}
