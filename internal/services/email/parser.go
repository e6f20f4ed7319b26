package email

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-message/mail"

	// Registers extended charsets for mail body decoding.
	_ "github.com/emersion/go-message/charset"

	"github.com/ternarybob/ice/internal/models"
)

// parseMessage builds an EmailMessage from a fetched IMAP message. The
// envelope supplies headers when the body section is missing or does not
// parse, so a broken message still yields a subject-only record.
func (s *Service) parseMessage(accountName string, msg *imap.Message, section *imap.BodySectionName) *models.EmailMessage {
	parsed := &models.EmailMessage{
		ID:          fmt.Sprintf("email:%s:%d", accountName, msg.Uid),
		AccountName: accountName,
		UID:         msg.Uid,
	}
	if env := msg.Envelope; env != nil {
		parsed.Subject = env.Subject
		parsed.Date = env.Date
		parsed.MessageID = env.MessageId
		if len(env.From) > 0 {
			parsed.From = env.From[0].Address()
		}
	}

	body := msg.GetBody(section)
	if body == nil {
		s.logger.Warn().
			Str("account", accountName).
			Uint32("uid", msg.Uid).
			Msg("Message has no body section, using envelope only")
		return parsed
	}

	if err := s.parseMIME(body, parsed); err != nil {
		s.logger.Warn().Err(err).
			Str("account", accountName).
			Uint32("uid", msg.Uid).
			Msg("Failed to parse message body, using envelope only")
	}
	return parsed
}

// parseMIME fills body and attachment fields from a raw RFC 5322 message.
// The first text/plain inline part wins; text/html is kept separately as
// a fallback for the document builder.
func (s *Service) parseMIME(r io.Reader, parsed *models.EmailMessage) error {
	mr, err := mail.CreateReader(r)
	if err != nil {
		return fmt.Errorf("failed to create mail reader: %w", err)
	}

	if from, err := mr.Header.AddressList("From"); err == nil && len(from) > 0 {
		parsed.From = from[0].Address
	}
	if subject, err := mr.Header.Subject(); err == nil && subject != "" {
		parsed.Subject = subject
	}
	if date, err := mr.Header.Date(); err == nil && !date.IsZero() {
		parsed.Date = date
	}
	if id, err := mr.Header.MessageID(); err == nil && id != "" {
		parsed.MessageID = id
	}

	for {
		p, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read next part: %w", err)
		}

		switch h := p.Header.(type) {
		case *mail.InlineHeader:
			contentType, _, _ := h.ContentType()
			switch {
			case strings.HasPrefix(contentType, "text/plain"):
				if parsed.TextBody != "" {
					continue
				}
				b, err := io.ReadAll(p.Body)
				if err != nil {
					return fmt.Errorf("failed to read text part: %w", err)
				}
				parsed.TextBody = strings.TrimSpace(string(b))
			case strings.HasPrefix(contentType, "text/html"):
				if parsed.HTMLBody != "" {
					continue
				}
				b, err := io.ReadAll(p.Body)
				if err != nil {
					return fmt.Errorf("failed to read html part: %w", err)
				}
				parsed.HTMLBody = strings.TrimSpace(string(b))
			}
		case *mail.AttachmentHeader:
			parsed.Attachments = append(parsed.Attachments, s.parseAttachment(h, p.Body))
		}
	}

	return nil
}

// parseAttachment reads one attachment, extracting text from PDFs.
// Extraction failures degrade to filename-only metadata.
func (s *Service) parseAttachment(h *mail.AttachmentHeader, body io.Reader) models.EmailAttachment {
	filename, _ := h.Filename()
	contentType, _, _ := h.ContentType()
	attachment := models.EmailAttachment{
		Filename:    filename,
		ContentType: contentType,
	}

	data, err := io.ReadAll(body)
	if err != nil {
		s.logger.Warn().Err(err).Str("filename", filename).Msg("Failed to read attachment body")
		return attachment
	}
	attachment.Size = len(data)

	if !isPDF(contentType, filename) || s.pdf == nil {
		return attachment
	}

	text, err := s.pdf.ExtractText(data)
	if err != nil {
		s.logger.Warn().Err(err).Str("filename", filename).Msg("PDF text extraction failed, keeping filename only")
		return attachment
	}
	attachment.Text = strings.TrimSpace(text)
	return attachment
}

func isPDF(contentType, filename string) bool {
	return strings.HasPrefix(contentType, "application/pdf") ||
		strings.EqualFold(filepath.Ext(filename), ".pdf")
}
