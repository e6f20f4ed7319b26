// -----------------------------------------------------------------------
// Package validation runs schema, quality, and cross-source checks on
// vendor records before they are stored and enhanced. Error-level issues
// block a record; warnings travel with it as document metadata.
// -----------------------------------------------------------------------

package validation

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/ice/internal/common"
	"github.com/ternarybob/ice/internal/interfaces"
	"github.com/ternarybob/ice/internal/models"
)

const (
	defaultMinContentRunes = 40
	defaultMaxFutureSkew   = 24 * time.Hour
	defaultMaxAge          = 365 * 24 * time.Hour
	defaultDupWindow       = 7 * 24 * time.Hour
	maxTitleRunes          = 300
)

// symbolPattern matches ticker symbols: 1-6 upper alphanumerics with an
// optional exchange class suffix (BRK.A, BHP.AX).
var symbolPattern = regexp.MustCompile(`^[A-Z0-9]{1,6}(\.[A-Z]{1,2})?$`)

// Service validates vendor records against schema tags and quality rules.
type Service struct {
	validate      *validator.Validate
	dedupe        interfaces.DedupeStorage
	minContent    int
	maxFutureSkew time.Duration
	maxAge        time.Duration
	dupWindow     time.Duration
	divergencePct float64
	promoPhrases  []string
	logger        arbor.ILogger
}

// NewService creates the validation service and registers the custom
// symbol and notblank validators.
func NewService(dedupe interfaces.DedupeStorage, cfg *common.ValidationConfig, logger arbor.ILogger) *Service {
	v := validator.New()
	v.RegisterValidation("symbol", validSymbol)
	v.RegisterValidation("notblank", notBlank)

	s := &Service{
		validate:      v,
		dedupe:        dedupe,
		minContent:    defaultMinContentRunes,
		maxFutureSkew: defaultMaxFutureSkew,
		maxAge:        defaultMaxAge,
		dupWindow:     defaultDupWindow,
		divergencePct: 2.0,
		logger:        logger,
	}

	if cfg != nil {
		if cfg.MinContentRunes > 0 {
			s.minContent = cfg.MinContentRunes
		}
		s.maxFutureSkew = durationOr(cfg.MaxFutureSkew, defaultMaxFutureSkew)
		s.maxAge = durationOr(cfg.MaxAge, defaultMaxAge)
		s.dupWindow = durationOr(cfg.DuplicateWindow, defaultDupWindow)
		if cfg.QuoteDivergencePct > 0 {
			s.divergencePct = cfg.QuoteDivergencePct
		}
		s.promoPhrases = cfg.PromoPhrases
	}

	return s
}

func validSymbol(fl validator.FieldLevel) bool {
	return symbolPattern.MatchString(fl.Field().String())
}

func notBlank(fl validator.FieldLevel) bool {
	return strings.TrimSpace(fl.Field().String()) != ""
}

func durationOr(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}

// ValidateArticle checks one normalized article. Schema violations and
// duplicates block the record; quality findings pass through as warnings.
func (s *Service) ValidateArticle(ctx context.Context, article *models.NewsArticle) models.ValidationReport {
	report := newReport(article.ID, article.Source)

	s.applySchema(&report, article)
	s.checkTimestamps(&report, article.PublishedAt)
	s.checkContentQuality(&report, article)
	s.checkDuplicate(ctx, &report, article)

	return report
}

// ValidateQuote checks a price snapshot for structural sanity.
func (s *Service) ValidateQuote(ctx context.Context, quote *models.Quote) models.ValidationReport {
	report := newReport("", quote.Source)

	if err := s.validate.Var(quote.Symbol, "required,symbol"); err != nil {
		addIssue(&report, "symbol", "invalid_symbol",
			fmt.Sprintf("symbol %q is not a valid ticker", quote.Symbol), models.SeverityError)
	}
	if quote.Close <= 0 {
		addIssue(&report, "close", "invalid_price",
			fmt.Sprintf("close price %.4f must be positive", quote.Close), models.SeverityError)
	}
	if quote.High != 0 && quote.Low != 0 && quote.High < quote.Low {
		addIssue(&report, "high", "invalid_range",
			fmt.Sprintf("high %.4f below low %.4f", quote.High, quote.Low), models.SeverityError)
	}
	if quote.Volume < 0 {
		addIssue(&report, "volume", "invalid_volume", "volume cannot be negative", models.SeverityError)
	}
	s.checkTimestamps(&report, quote.Timestamp)

	return report
}

// ValidateFiling checks an EDGAR filing record.
func (s *Service) ValidateFiling(ctx context.Context, filing *models.Filing) models.ValidationReport {
	report := newReport(filing.ID, models.SourceEDGAR)

	if strings.TrimSpace(filing.CIK) == "" {
		addIssue(&report, "cik", "missing_cik", "filing has no CIK", models.SeverityError)
	}
	if strings.TrimSpace(filing.AccessionNumber) == "" {
		addIssue(&report, "accession_number", "missing_accession", "filing has no accession number", models.SeverityError)
	}
	if strings.TrimSpace(filing.FormType) == "" {
		addIssue(&report, "form_type", "missing_form_type", "filing has no form type", models.SeverityError)
	}
	if filing.FilingDate.IsZero() {
		addIssue(&report, "filing_date", "missing_date", "filing has no date", models.SeverityError)
	} else {
		s.checkTimestamps(&report, filing.FilingDate)
	}
	if filing.Category == models.FilingCategoryNoise {
		addIssue(&report, "form_type", "noise_form",
			fmt.Sprintf("form %s carries no research signal", filing.FormType), models.SeverityWarning)
	}

	return report
}

// ValidateEmail checks a parsed IMAP message before it becomes a document.
func (s *Service) ValidateEmail(ctx context.Context, message *models.EmailMessage) models.ValidationReport {
	report := newReport(message.ID, models.SourceEmail)

	if strings.TrimSpace(message.AccountName) == "" {
		addIssue(&report, "account_name", "missing_account", "message has no account name", models.SeverityError)
	}
	if strings.TrimSpace(message.From) == "" {
		addIssue(&report, "from", "missing_sender", "message has no sender", models.SeverityError)
	}
	if strings.TrimSpace(message.Subject) == "" &&
		strings.TrimSpace(message.TextBody) == "" &&
		strings.TrimSpace(message.HTMLBody) == "" {
		addIssue(&report, "subject", "empty_message", "message has no subject or body", models.SeverityError)
	}
	if !message.Date.IsZero() {
		s.checkTimestamps(&report, message.Date)
	}

	return report
}

// applySchema runs struct tag validation and maps failures onto issues.
// Symbol format failures downgrade to warnings: vendor feeds carry
// instruments outside the ticker grammar and those should not block the
// whole article.
func (s *Service) applySchema(report *models.ValidationReport, article *models.NewsArticle) {
	err := s.validate.Struct(article)
	if err == nil {
		return
	}

	fieldErrors, ok := err.(validator.ValidationErrors)
	if !ok {
		addIssue(report, "", "schema_invalid", err.Error(), models.SeverityError)
		return
	}

	for _, fe := range fieldErrors {
		severity := models.SeverityError
		code := "schema_invalid"
		if fe.Tag() == "symbol" {
			severity = models.SeverityWarning
			code = "symbol_format"
		}
		addIssue(report, fe.Field(), code,
			fmt.Sprintf("field %s failed %s validation", fe.Field(), fe.Tag()), severity)
	}
}

// checkTimestamps flags future timestamps as errors and records past the
// retention horizon as stale warnings.
func (s *Service) checkTimestamps(report *models.ValidationReport, ts time.Time) {
	if ts.IsZero() {
		return
	}
	now := time.Now().UTC()
	if ts.After(now.Add(s.maxFutureSkew)) {
		addIssue(report, "published_at", "future_timestamp",
			fmt.Sprintf("timestamp %s is more than %s in the future", ts.Format(time.RFC3339), s.maxFutureSkew),
			models.SeverityError)
	}
	if ts.Before(now.Add(-s.maxAge)) {
		addIssue(report, "published_at", "stale_record",
			fmt.Sprintf("timestamp %s is older than the %s retention horizon", ts.Format(time.RFC3339), s.maxAge),
			models.SeverityWarning)
	}
}

// checkContentQuality applies the advisory article heuristics.
func (s *Service) checkContentQuality(report *models.ValidationReport, article *models.NewsArticle) {
	content := article.ContentMarkdown
	if content == "" {
		content = article.Summary
	}
	if runes := utf8.RuneCountInString(content); runes < s.minContent {
		addIssue(report, "content_markdown", "content_too_short",
			fmt.Sprintf("content has %d runes, minimum is %d", runes, s.minContent), models.SeverityWarning)
	}

	if titleRunes := utf8.RuneCountInString(article.Title); titleRunes > maxTitleRunes {
		addIssue(report, "title", "title_quality",
			fmt.Sprintf("title has %d runes, maximum is %d", titleRunes, maxTitleRunes), models.SeverityWarning)
	} else if isShouting(article.Title) {
		addIssue(report, "title", "title_quality", "title is all capitals", models.SeverityWarning)
	}

	lowered := strings.ToLower(article.Title + " " + content)
	for _, phrase := range s.promoPhrases {
		if phrase != "" && strings.Contains(lowered, strings.ToLower(phrase)) {
			addIssue(report, "content_markdown", "promotional_content",
				fmt.Sprintf("content matches promotional phrase %q", phrase), models.SeverityWarning)
			break
		}
	}
}

// checkDuplicate hashes the normalized title and source and consults the
// dedupe store. Store failures log and skip the check rather than block.
func (s *Service) checkDuplicate(ctx context.Context, report *models.ValidationReport, article *models.NewsArticle) {
	if s.dedupe == nil || article.Title == "" {
		return
	}

	hash := contentHash(article.Title, article.Source)
	seen, err := s.dedupe.Seen(ctx, hash, s.dupWindow)
	if err != nil {
		s.logger.Warn().Err(err).Str("source", article.Source).Msg("Duplicate check unavailable")
		return
	}
	if seen {
		addIssue(report, "title", "duplicate_record",
			fmt.Sprintf("same title from %s seen within %s", article.Source, s.dupWindow), models.SeverityError)
	}
}

// contentHash builds the dedupe key from the normalized title and source.
func contentHash(title, source string) string {
	normalized := strings.Join(strings.Fields(strings.ToLower(title)), " ")
	sum := sha256.Sum256([]byte(normalized + "|" + strings.ToLower(source)))
	return hex.EncodeToString(sum[:])
}

// isShouting reports whether a title contains letters and none of them
// are lowercase.
func isShouting(title string) bool {
	hasLetter := false
	for _, r := range title {
		if unicode.IsLetter(r) {
			hasLetter = true
			if unicode.IsLower(r) {
				return false
			}
		}
	}
	return hasLetter
}

func newReport(recordID, source string) models.ValidationReport {
	return models.ValidationReport{
		RecordID:  recordID,
		Source:    source,
		Valid:     true,
		CheckedAt: time.Now().UTC(),
	}
}

func addIssue(report *models.ValidationReport, field, code, message string, severity models.IssueSeverity) {
	report.Issues = append(report.Issues, models.ValidationIssue{
		Field:    field,
		Code:     code,
		Message:  message,
		Severity: severity,
	})
	if severity == models.SeverityError {
		report.Valid = false
	}
}

var _ interfaces.ValidationService = (*Service)(nil)
