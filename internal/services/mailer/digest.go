package mailer

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ternarybob/ice/internal/models"
)

// generalSection collects documents that carry no symbol.
const generalSection = "General"

// SendDigest mails a summary of the documents stored since the previous
// digest to the configured recipients. The window falls back to the last
// 24 hours when no digest has been sent before. A send with no new
// documents is skipped and leaves the window open.
func (s *Service) SendDigest(ctx context.Context) error {
	if !s.IsConfigured() {
		return fmt.Errorf("mailer is not configured")
	}
	if len(s.config.To) == 0 {
		return fmt.Errorf("no digest recipients configured")
	}

	started := time.Now()
	since := s.digestWindowStart(ctx, started)

	docs, err := s.documents.ListDocuments(&models.DocumentFilter{Since: since, Limit: digestDocumentLimit})
	if err != nil {
		return fmt.Errorf("failed to list digest documents: %w", err)
	}
	if len(docs) == 0 {
		s.logger.Info().Str("since", since.Format(time.RFC3339)).Msg("No new documents for digest, skipping send")
		return nil
	}

	subject := fmt.Sprintf("Research digest %s", started.Format("2006-01-02"))
	markdown := digestMarkdown(docs, since, started)

	htmlBody, err := s.renderHTML(markdown)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Digest HTML rendering failed, sending plain text only")
		htmlBody = ""
	}

	var attachments []Attachment
	if s.pdf != nil {
		pdfData, err := s.pdf.ConvertMarkdownToPDF(markdown, subject)
		if err != nil {
			s.logger.Warn().Err(err).Msg("Digest PDF generation failed, sending without attachment")
		} else {
			attachments = append(attachments, Attachment{
				Filename:    fmt.Sprintf("digest-%s.pdf", started.Format("2006-01-02")),
				ContentType: "application/pdf",
				Content:     pdfData,
			})
		}
	}

	if err := s.SendEmailWithAttachments(ctx, s.config.To, subject, htmlBody, markdown, attachments); err != nil {
		return fmt.Errorf("failed to send digest: %w", err)
	}

	s.recordDigestRun(ctx, started, docs)

	s.logger.Info().
		Int("documents", len(docs)).
		Int("recipients", len(s.config.To)).
		Dur("duration", time.Since(started)).
		Msg("Digest sent")

	return nil
}

// digestWindowStart returns the start of the document window. The last
// recorded digest run extends the window past the lookback so that
// nothing stored during an outage is dropped; the document limit bounds
// the catch-up size.
func (s *Service) digestWindowStart(ctx context.Context, now time.Time) time.Time {
	floor := now.Add(-digestLookback)
	if s.runs == nil {
		return floor
	}

	last, err := s.runs.LastRun(ctx, digestRunName)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Failed to load last digest run, using lookback window")
		return floor
	}
	if last == nil || last.FinishedAt.IsZero() {
		return floor
	}
	return last.FinishedAt
}

// recordDigestRun saves the send as a run summary so the run history and
// the next window pick it up.
func (s *Service) recordDigestRun(ctx context.Context, started time.Time, docs []*models.Document) {
	if s.runs == nil {
		return
	}

	symbols := make(map[string]struct{})
	for _, doc := range docs {
		for _, symbol := range doc.Symbols {
			symbols[symbol] = struct{}{}
		}
	}

	finished := time.Now()
	summary := &models.RunSummary{
		ID:         fmt.Sprintf("run_%s", uuid.New().String()),
		Source:     digestRunName,
		StartedAt:  started,
		FinishedAt: finished,
		Duration:   finished.Sub(started),
		Fetched:    len(docs),
		Valid:      len(docs),
		Stored:     len(docs),
		Entities:   len(symbols),
	}
	if err := s.runs.SaveRunSummary(ctx, summary); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to save digest run summary")
	}
}

// digestMarkdown renders the digest body. Documents are grouped under
// their first symbol, symbol sections sorted alphabetically with the
// General section last. Within a section the storage order is kept,
// newest first.
func digestMarkdown(docs []*models.Document, since, now time.Time) string {
	groups := make(map[string][]*models.Document)
	for _, doc := range docs {
		key := generalSection
		if len(doc.Symbols) > 0 {
			key = doc.Symbols[0]
		}
		groups[key] = append(groups[key], doc)
	}

	sections := make([]string, 0, len(groups))
	for name := range groups {
		if name != generalSection {
			sections = append(sections, name)
		}
	}
	sort.Strings(sections)
	if _, ok := groups[generalSection]; ok {
		sections = append(sections, generalSection)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# Research digest %s\n\n", now.Format("2006-01-02"))
	fmt.Fprintf(&b, "New documents since %s: %d.\n", since.Format("Jan 2 15:04 MST"), len(docs))

	for _, name := range sections {
		fmt.Fprintf(&b, "\n## %s\n\n", name)
		for _, doc := range groups[name] {
			b.WriteString(digestLine(doc))
		}
	}

	return b.String()
}

// digestLine renders one document as a list item.
func digestLine(doc *models.Document) string {
	title := strings.TrimSpace(doc.Title)
	if title == "" {
		title = doc.ID
	}

	var b strings.Builder
	if doc.URL != "" {
		fmt.Fprintf(&b, "- [%s](%s)", title, doc.URL)
	} else {
		fmt.Fprintf(&b, "- **%s**", title)
	}
	fmt.Fprintf(&b, " (%s, %s)\n", doc.SourceType, doc.CreatedAt.Format("Jan 2"))
	return b.String()
}

// renderHTML converts the digest markdown and wraps it in the email
// template.
func (s *Service) renderHTML(markdown string) (string, error) {
	var buf bytes.Buffer
	if err := s.md.Convert([]byte(markdown), &buf); err != nil {
		return "", fmt.Errorf("failed to render digest HTML: %w", err)
	}
	return wrapHTMLBody(buf.String()), nil
}

// wrapHTMLBody wraps rendered digest HTML in the styled email template.
func wrapHTMLBody(content string) string {
	return `<!DOCTYPE html>
<html>
<head>
  <meta charset="UTF-8">
  <meta name="viewport" content="width=device-width, initial-scale=1.0">
  <style>
    body {
      font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, 'Helvetica Neue', Arial, sans-serif;
      line-height: 1.6;
      color: #333;
      max-width: 800px;
      margin: 0 auto;
      padding: 20px;
      background-color: #f9f9f9;
    }
    .content {
      background-color: #fff;
      padding: 30px;
      border-radius: 8px;
      box-shadow: 0 1px 3px rgba(0,0,0,0.1);
    }
    h1 { color: #1a1a1a; font-size: 24px; margin-top: 0; border-bottom: 2px solid #eee; padding-bottom: 10px; }
    h2 { color: #2a2a2a; font-size: 20px; margin-top: 24px; }
    p { margin: 12px 0; }
    ul, ol { padding-left: 24px; margin: 12px 0; }
    li { margin: 6px 0; }
    strong { color: #1a1a1a; }
    table { border-collapse: collapse; width: 100%; margin: 16px 0; }
    th, td { border: 1px solid #ddd; padding: 8px 12px; text-align: left; }
    th { background: #f4f4f4; font-weight: 600; }
    a { color: #0066cc; text-decoration: none; }
    a:hover { text-decoration: underline; }
    .footer { margin-top: 30px; padding-top: 20px; border-top: 1px solid #eee; font-size: 12px; color: #888; }
  </style>
</head>
<body>
  <div class="content">
    ` + content + `
  </div>
  <div class="footer">
    <p>This digest was generated automatically by ICE.</p>
  </div>
</body>
</html>`
}
