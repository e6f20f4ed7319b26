// -----------------------------------------------------------------------
// Mailer Service - SMTP delivery for the research digest
// Sends the periodic digest of newly stored documents to the configured
// recipients over TLS (with STARTTLS fallback) and exposes the raw send
// primitives used by the test-email endpoint.
// -----------------------------------------------------------------------

package mailer

import (
	"context"
	"crypto/rand"
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"net/smtp"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"

	"github.com/ternarybob/ice/internal/common"
	"github.com/ternarybob/ice/internal/interfaces"
	"github.com/ternarybob/ice/internal/models"
)

const (
	digestRunName       = "digest"
	digestLookback      = 24 * time.Hour
	digestDocumentLimit = 200
	defaultSMTPPort     = 587
)

// Attachment is a file attached to an outgoing email.
type Attachment struct {
	Filename    string
	ContentType string
	Content     []byte
}

// documentLister is the slice of the document store the digest reads.
type documentLister interface {
	ListDocuments(filter *models.DocumentFilter) ([]*models.Document, error)
}

// Service sends email through the SMTP server configured in [mailer].
type Service struct {
	config    *common.MailerConfig
	documents documentLister
	runs      interfaces.RunStorage
	pdf       interfaces.PDFService
	md        goldmark.Markdown
	logger    arbor.ILogger
}

// NewService creates a mailer. The PDF service may be nil; the digest is
// then sent without its PDF attachment.
func NewService(config *common.MailerConfig, documents documentLister, runs interfaces.RunStorage, pdfService interfaces.PDFService, logger arbor.ILogger) *Service {
	if config == nil {
		config = &common.MailerConfig{}
	}
	return &Service{
		config:    config,
		documents: documents,
		runs:      runs,
		pdf:       pdfService,
		md: goldmark.New(
			goldmark.WithExtensions(extension.GFM),
			goldmark.WithRendererOptions(
				html.WithHardWraps(),
				html.WithXHTML(),
			),
		),
		logger: logger,
	}
}

// IsConfigured reports whether the minimum SMTP settings are present.
func (s *Service) IsConfigured() bool {
	return s.config.Host != "" && s.config.From != ""
}

// SendEmail sends a plain text email.
func (s *Service) SendEmail(ctx context.Context, to []string, subject, body string) error {
	return s.SendHTMLEmail(ctx, to, subject, "", body)
}

// SendHTMLEmail sends an email with HTML and/or plain text body.
func (s *Service) SendHTMLEmail(ctx context.Context, to []string, subject, htmlBody, textBody string) error {
	if err := s.checkSendable(to); err != nil {
		return err
	}
	return s.send(ctx, to, s.buildMessage(to, subject, htmlBody, textBody))
}

// SendEmailWithAttachments sends an email with HTML/text body and file
// attachments.
func (s *Service) SendEmailWithAttachments(ctx context.Context, to []string, subject, htmlBody, textBody string, attachments []Attachment) error {
	if len(attachments) == 0 {
		return s.SendHTMLEmail(ctx, to, subject, htmlBody, textBody)
	}
	if err := s.checkSendable(to); err != nil {
		return err
	}
	return s.send(ctx, to, s.buildMixedMessage(to, subject, htmlBody, textBody, attachments))
}

// buildMessage assembles a plain or multipart/alternative message.
func (s *Service) buildMessage(to []string, subject, htmlBody, textBody string) string {
	var msg strings.Builder
	s.writeHeaders(&msg, to, subject)

	if htmlBody != "" {
		boundary := generateBoundary()
		msg.WriteString("MIME-Version: 1.0\r\n")
		msg.WriteString(fmt.Sprintf("Content-Type: multipart/alternative; boundary=\"%s\"\r\n", boundary))
		msg.WriteString("\r\n")
		writeAlternativeParts(&msg, boundary, htmlBody, textBody)
	} else {
		msg.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n")
		msg.WriteString("\r\n")
		msg.WriteString(textBody)
	}

	return msg.String()
}

// buildMixedMessage assembles a multipart/mixed message with the body as
// a nested multipart/alternative section followed by the attachments.
func (s *Service) buildMixedMessage(to []string, subject, htmlBody, textBody string, attachments []Attachment) string {
	mixedBoundary := generateBoundary()
	altBoundary := generateBoundary()

	var msg strings.Builder
	s.writeHeaders(&msg, to, subject)
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString(fmt.Sprintf("Content-Type: multipart/mixed; boundary=\"%s\"\r\n", mixedBoundary))
	msg.WriteString("\r\n")

	msg.WriteString(fmt.Sprintf("--%s\r\n", mixedBoundary))
	msg.WriteString(fmt.Sprintf("Content-Type: multipart/alternative; boundary=\"%s\"\r\n", altBoundary))
	msg.WriteString("\r\n")
	writeAlternativeParts(&msg, altBoundary, htmlBody, textBody)

	for _, att := range attachments {
		msg.WriteString(fmt.Sprintf("--%s\r\n", mixedBoundary))
		contentType := att.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		msg.WriteString(fmt.Sprintf("Content-Type: %s; name=\"%s\"\r\n", contentType, att.Filename))
		msg.WriteString("Content-Transfer-Encoding: base64\r\n")
		msg.WriteString(fmt.Sprintf("Content-Disposition: attachment; filename=\"%s\"\r\n", att.Filename))
		msg.WriteString("\r\n")
		msg.WriteString(encodeBase64WithLineBreaks(string(att.Content)))
		msg.WriteString("\r\n")
	}

	msg.WriteString(fmt.Sprintf("--%s--\r\n", mixedBoundary))

	return msg.String()
}

// SendTestEmail sends a short test message to verify the configuration.
func (s *Service) SendTestEmail(ctx context.Context, to string) error {
	subject := "ICE test email"
	body := "This is a test email from ICE to verify the SMTP configuration is working."

	if err := s.SendEmail(ctx, []string{to}, subject, body); err != nil {
		s.logger.Error().Err(err).Str("to", to).Msg("Failed to send test email")
		return err
	}

	s.logger.Info().Str("to", to).Msg("Test email sent")
	return nil
}

func (s *Service) checkSendable(to []string) error {
	if s.config.Host == "" {
		return fmt.Errorf("SMTP host not configured")
	}
	if s.config.From == "" {
		return fmt.Errorf("from address not configured")
	}
	if len(to) == 0 {
		return fmt.Errorf("no recipients given")
	}
	return nil
}

func (s *Service) writeHeaders(msg *strings.Builder, to []string, subject string) {
	msg.WriteString(fmt.Sprintf("From: %s\r\n", s.config.From))
	msg.WriteString(fmt.Sprintf("To: %s\r\n", strings.Join(to, ", ")))
	msg.WriteString(fmt.Sprintf("Subject: %s\r\n", subject))
}

// writeAlternativeParts appends the text and HTML bodies of a
// multipart/alternative section. Base64 keeps every line under the RFC
// 5322 length limit regardless of the rendered HTML.
func writeAlternativeParts(msg *strings.Builder, boundary, htmlBody, textBody string) {
	if textBody != "" {
		msg.WriteString(fmt.Sprintf("--%s\r\n", boundary))
		msg.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n")
		msg.WriteString("Content-Transfer-Encoding: base64\r\n")
		msg.WriteString("\r\n")
		msg.WriteString(encodeBase64WithLineBreaks(textBody))
		msg.WriteString("\r\n")
	}

	if htmlBody != "" {
		msg.WriteString(fmt.Sprintf("--%s\r\n", boundary))
		msg.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n")
		msg.WriteString("Content-Transfer-Encoding: base64\r\n")
		msg.WriteString("\r\n")
		msg.WriteString(encodeBase64WithLineBreaks(htmlBody))
		msg.WriteString("\r\n")
	}

	msg.WriteString(fmt.Sprintf("--%s--\r\n", boundary))
}

func (s *Service) send(ctx context.Context, to []string, msg string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	port := s.config.Port
	if port == 0 {
		port = defaultSMTPPort
	}
	addr := fmt.Sprintf("%s:%d", s.config.Host, port)

	var auth smtp.Auth
	if s.config.Username != "" {
		auth = smtp.PlainAuth("", s.config.Username, s.config.Password, s.config.Host)
	}

	if s.config.UseTLS {
		return s.sendWithTLS(addr, auth, s.config.From, to, msg)
	}
	return smtp.SendMail(addr, auth, s.config.From, to, []byte(msg))
}

// sendWithTLS delivers over an implicit TLS connection, falling back to
// STARTTLS when the direct TLS dial fails.
func (s *Service) sendWithTLS(addr string, auth smtp.Auth, from string, to []string, msg string) error {
	host := strings.Split(addr, ":")[0]

	conn, err := tls.Dial("tcp", addr, &tls.Config{ServerName: host})
	if err != nil {
		return s.sendWithSTARTTLS(addr, auth, from, to, msg)
	}
	defer conn.Close()

	client, err := smtp.NewClient(conn, host)
	if err != nil {
		return fmt.Errorf("failed to create SMTP client: %w", err)
	}
	defer client.Close()

	return transmit(client, auth, from, to, msg)
}

// sendWithSTARTTLS connects in plain text and upgrades the session.
func (s *Service) sendWithSTARTTLS(addr string, auth smtp.Auth, from string, to []string, msg string) error {
	host := strings.Split(addr, ":")[0]

	client, err := smtp.Dial(addr)
	if err != nil {
		return fmt.Errorf("failed to connect to SMTP server: %w", err)
	}
	defer client.Close()

	if err := client.StartTLS(&tls.Config{ServerName: host}); err != nil {
		return fmt.Errorf("failed to start TLS: %w", err)
	}

	return transmit(client, auth, from, to, msg)
}

// transmit runs the envelope exchange on an established session.
func transmit(client *smtp.Client, auth smtp.Auth, from string, to []string, msg string) error {
	if auth != nil {
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("SMTP authentication failed: %w", err)
		}
	}

	if err := client.Mail(from); err != nil {
		return fmt.Errorf("failed to set mail from: %w", err)
	}
	for _, rcpt := range to {
		if err := client.Rcpt(rcpt); err != nil {
			return fmt.Errorf("failed to set recipient %s: %w", rcpt, err)
		}
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("failed to start data: %w", err)
	}
	if _, err := w.Write([]byte(msg)); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to close data writer: %w", err)
	}

	return client.Quit()
}

// generateBoundary creates a unique MIME boundary string. Uses
// crypto/rand so the boundary cannot collide with encoded content.
func generateBoundary() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "ice_boundary_fallback"
	}
	return fmt.Sprintf("ice_%x", b)
}

// encodeBase64WithLineBreaks encodes content as base64 with 76-char line
// breaks per RFC 2045.
func encodeBase64WithLineBreaks(content string) string {
	encoded := base64.StdEncoding.EncodeToString([]byte(content))

	var result strings.Builder
	const lineLen = 76

	for i := 0; i < len(encoded); i += lineLen {
		end := i + lineLen
		if end > len(encoded) {
			end = len(encoded)
		}
		result.WriteString(encoded[i:end])
		if end < len(encoded) {
			result.WriteString("\r\n")
		}
	}

	return result.String()
}
