package newsapi

// Envelope is the response wrapper for both /v2/everything and
// /v2/top-headlines. On errors the status/code/message trio is set
// instead of articles.
type Envelope struct {
	Status       string    `json:"status"`
	TotalResults int       `json:"totalResults"`
	Articles     []Article `json:"articles"`
	Code         string    `json:"code,omitempty"`
	Message      string    `json:"message,omitempty"`
}

// Article is one NewsAPI article.
type Article struct {
	Source      ArticleSource `json:"source"`
	Author      string        `json:"author"`
	Title       string        `json:"title"`
	Description string        `json:"description"`
	URL         string        `json:"url"`
	PublishedAt string        `json:"publishedAt"`
	Content     string        `json:"content"`
}

// ArticleSource identifies the article's outlet.
type ArticleSource struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}
