package ingestion

import (
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/ice/internal/models"
)

// articleDocument converts a validated article into a document, folding
// validation warnings and corroborating sources into the metadata the
// search layer ranks on.
func (s *Service) articleDocument(article *models.NewsArticle, corroborators []string, warnings []models.ValidationIssue) *models.Document {
	content := article.ContentMarkdown
	if content == "" {
		content = article.Summary
	}

	metadata := map[string]interface{}{
		"published_at": article.PublishedAt.Format(time.RFC3339),
	}
	if article.VendorID != "" {
		metadata["vendor_id"] = article.VendorID
	}
	if article.Author != "" {
		metadata["author"] = article.Author
	}
	if len(article.Topics) > 0 {
		metadata["topics"] = article.Topics
	}
	if article.Sentiment != nil {
		metadata["sentiment"] = article.Sentiment.Label
		metadata["sentiment_polarity"] = article.Sentiment.Polarity
	}
	if len(corroborators) > 0 {
		metadata["corroborated_by"] = corroborators
	}
	if msgs := issueMessages(warnings); len(msgs) > 0 {
		metadata["warnings"] = msgs
	}

	symbols := article.Symbols
	if s.extractor != nil {
		symbols = append(symbols, s.extractor.TagSymbols(article.Title+"\n"+content)...)
	}

	return &models.Document{
		SourceType:      article.Source,
		SourceID:        articleSourceID(article),
		Title:           article.Title,
		ContentMarkdown: content,
		URL:             article.URL,
		Symbols:         models.NormalizeSymbols(symbols),
		Tags:            []string{"news", article.Source},
		Metadata:        metadata,
		CreatedAt:       article.PublishedAt,
	}
}

// articleSourceID builds the dedupe key, preferring the vendor's own
// identifier over the URL over the assigned ID.
func articleSourceID(article *models.NewsArticle) string {
	switch {
	case article.VendorID != "":
		return fmt.Sprintf("%s:%s", article.Source, article.VendorID)
	case article.URL != "":
		return fmt.Sprintf("%s:%s", article.Source, article.URL)
	default:
		return fmt.Sprintf("%s:%s", article.Source, article.ID)
	}
}

// quoteDocument renders a quote snapshot as a small markdown document
// so price context is retrievable alongside the narrative sources. The
// dedupe key is daily: re-running a day overwrites that day's snapshot.
func (s *Service) quoteDocument(quote *models.Quote, warnings []models.ValidationIssue) *models.Document {
	day := quote.Timestamp.Format("2006-01-02")

	var sb strings.Builder
	sb.WriteString("| Open | High | Low | Close | Volume |\n")
	sb.WriteString("|---|---|---|---|---|\n")
	fmt.Fprintf(&sb, "| %.2f | %.2f | %.2f | %.2f | %d |\n",
		quote.Open, quote.High, quote.Low, quote.Close, quote.Volume)

	metadata := map[string]interface{}{
		"close":  quote.Close,
		"volume": quote.Volume,
	}
	if quote.PrevClose > 0 {
		change := (quote.Close - quote.PrevClose) / quote.PrevClose * 100
		fmt.Fprintf(&sb, "\nChange from previous close: %+.2f%%\n", change)
		metadata["prev_close"] = quote.PrevClose
		metadata["change_pct"] = change
	}
	if msgs := issueMessages(warnings); len(msgs) > 0 {
		metadata["warnings"] = msgs
	}

	return &models.Document{
		SourceType:      quote.Source,
		SourceID:        fmt.Sprintf("%s:quote:%s:%s", quote.Source, quote.Symbol, day),
		Title:           fmt.Sprintf("%s quote %s (%s)", quote.Symbol, day, quote.Source),
		ContentMarkdown: sb.String(),
		Symbols:         []string{quote.Symbol},
		Tags:            []string{"quote", quote.Source},
		Metadata:        metadata,
		CreatedAt:       quote.Timestamp,
	}
}

// filingDocument converts a filing into a document. Text fetched from
// the archive is appended below the header block when available.
func (s *Service) filingDocument(filing *models.Filing, content string, warnings []models.ValidationIssue) *models.Document {
	subject := filing.Company
	if subject == "" && len(filing.Symbols) > 0 {
		subject = filing.Symbols[0]
	}
	title := fmt.Sprintf("%s filing", filing.FormType)
	if subject != "" {
		title = fmt.Sprintf("%s %s filing", subject, filing.FormType)
	}

	var sb strings.Builder
	if subject != "" {
		fmt.Fprintf(&sb, "%s filed a %s on %s.\n", subject, filing.FormType, filing.FilingDate.Format("2006-01-02"))
	} else {
		fmt.Fprintf(&sb, "%s filed on %s.\n", filing.FormType, filing.FilingDate.Format("2006-01-02"))
	}
	if filing.Description != "" {
		fmt.Fprintf(&sb, "\n%s\n", filing.Description)
	}
	if filing.PrimaryDocURL != "" {
		fmt.Fprintf(&sb, "\nPrimary document: %s\n", filing.PrimaryDocURL)
	}
	if content != "" {
		sb.WriteString("\n")
		sb.WriteString(content)
	}

	metadata := map[string]interface{}{
		"cik":              filing.CIK,
		"accession_number": filing.AccessionNumber,
		"form_type":        filing.FormType,
		"category":         filing.Category,
		"filing_date":      filing.FilingDate.Format("2006-01-02"),
	}
	if !filing.ReportDate.IsZero() {
		metadata["report_date"] = filing.ReportDate.Format("2006-01-02")
	}
	if msgs := issueMessages(warnings); len(msgs) > 0 {
		metadata["warnings"] = msgs
	}

	symbols := filing.Symbols
	if s.extractor != nil && filing.Company != "" {
		symbols = append(symbols, s.extractor.TagSymbols(filing.Company)...)
	}

	return &models.Document{
		SourceType:      models.SourceEDGAR,
		SourceID:        fmt.Sprintf("edgar:%s", filing.AccessionNumber),
		Title:           title,
		ContentMarkdown: sb.String(),
		URL:             filing.PrimaryDocURL,
		Symbols:         models.NormalizeSymbols(symbols),
		Tags:            []string{"filing", models.SourceEDGAR},
		Metadata:        metadata,
		CreatedAt:       filing.FilingDate,
	}
}

// barsDocument summarizes a window of daily OHLCV bars as one document
// per symbol and source, so the corpus carries recent price action.
func (s *Service) barsDocument(symbol, source string, bars []models.PriceBar) *models.Document {
	first, last := bars[0], bars[len(bars)-1]

	var sb strings.Builder
	sb.WriteString("| Date | Open | High | Low | Close | Volume |\n")
	sb.WriteString("|---|---|---|---|---|---|\n")
	for _, bar := range bars {
		fmt.Fprintf(&sb, "| %s | %.2f | %.2f | %.2f | %.2f | %d |\n",
			bar.Start.Format("2006-01-02"), bar.Open, bar.High, bar.Low, bar.Close, bar.Volume)
	}
	if first.Open > 0 {
		change := (last.Close - first.Open) / first.Open * 100
		fmt.Fprintf(&sb, "\nChange over window: %+.2f%%\n", change)
	}

	windowEnd := last.Start.Format("2006-01-02")
	return &models.Document{
		SourceType:      source,
		SourceID:        fmt.Sprintf("%s:bars:%s:%s", source, symbol, windowEnd),
		Title:           fmt.Sprintf("%s price history to %s (%s)", symbol, windowEnd, source),
		ContentMarkdown: sb.String(),
		Symbols:         []string{symbol},
		Tags:            []string{"bars", source},
		Metadata: map[string]interface{}{
			"bar_count":    len(bars),
			"window_start": first.Start.Format("2006-01-02"),
			"window_end":   windowEnd,
			"latest_close": last.Close,
		},
		CreatedAt: last.Start,
	}
}

// issueMessages flattens validation issues into the metadata strings
// stored on the document.
func issueMessages(issues []models.ValidationIssue) []string {
	if len(issues) == 0 {
		return nil
	}
	out := make([]string, 0, len(issues))
	for _, issue := range issues {
		out = append(out, fmt.Sprintf("%s: %s", issue.Code, issue.Message))
	}
	return out
}
