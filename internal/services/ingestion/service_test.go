package ingestion

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/ice/internal/common"
	"github.com/ternarybob/ice/internal/connectors/edgar"
	"github.com/ternarybob/ice/internal/interfaces"
	"github.com/ternarybob/ice/internal/models"
	"github.com/ternarybob/ice/internal/services/entities"
)

var errDown = errors.New("service down")

// fakeNewsProvider returns canned articles
type fakeNewsProvider struct {
	name     string
	articles []models.NewsArticle
	err      error
}

func (f *fakeNewsProvider) Name() string { return f.name }
func (f *fakeNewsProvider) FetchNews(ctx context.Context, symbol string, from, to time.Time) ([]models.NewsArticle, error) {
	return f.articles, f.err
}

// fakeQuoteProvider returns one canned quote
type fakeQuoteProvider struct {
	name  string
	quote *models.Quote
	err   error
}

func (f *fakeQuoteProvider) Name() string { return f.name }
func (f *fakeQuoteProvider) FetchQuote(ctx context.Context, symbol string) (*models.Quote, error) {
	return f.quote, f.err
}

// fakeFilingProvider returns canned filings
type fakeFilingProvider struct {
	name    string
	filings []models.Filing
	err     error
}

func (f *fakeFilingProvider) Name() string { return f.name }
func (f *fakeFilingProvider) FetchFilings(ctx context.Context, symbol string, limit int) ([]models.Filing, error) {
	return f.filings, f.err
}

// fakeBarProvider returns a canned bar series
type fakeBarProvider struct {
	name string
	bars []models.PriceBar
	err  error
}

func (f *fakeBarProvider) Name() string { return f.name }
func (f *fakeBarProvider) FetchBars(ctx context.Context, symbol string, from, to time.Time) ([]models.PriceBar, error) {
	return f.bars, f.err
}

// fakeRegistry satisfies providerRegistry with injected providers
type fakeRegistry struct {
	news    []interfaces.NewsProvider
	quotes  []interfaces.QuoteProvider
	bars    []interfaces.BarProvider
	filings []interfaces.FilingProvider
	enabled []string
}

func (f *fakeRegistry) News() []interfaces.NewsProvider      { return f.news }
func (f *fakeRegistry) Quotes() []interfaces.QuoteProvider   { return f.quotes }
func (f *fakeRegistry) Bars() []interfaces.BarProvider       { return f.bars }
func (f *fakeRegistry) Filings() []interfaces.FilingProvider { return f.filings }
func (f *fakeRegistry) EDGAR() *edgar.Connector              { return nil }
func (f *fakeRegistry) Enabled() []string                    { return f.enabled }

// mockValidationService passes everything through unless overridden
type mockValidationService struct {
	articleFn func(*models.NewsArticle) models.ValidationReport
	quoteFn   func(*models.Quote) models.ValidationReport
	filingFn  func(*models.Filing) models.ValidationReport
	crossFn   func(string, []models.Quote) []models.ValidationIssue
	correlate map[string][]string
}

func (m *mockValidationService) ValidateArticle(ctx context.Context, article *models.NewsArticle) models.ValidationReport {
	if m.articleFn != nil {
		return m.articleFn(article)
	}
	return models.ValidationReport{RecordID: article.ID, Valid: true}
}

func (m *mockValidationService) ValidateQuote(ctx context.Context, quote *models.Quote) models.ValidationReport {
	if m.quoteFn != nil {
		return m.quoteFn(quote)
	}
	return models.ValidationReport{Valid: true}
}

func (m *mockValidationService) ValidateFiling(ctx context.Context, filing *models.Filing) models.ValidationReport {
	if m.filingFn != nil {
		return m.filingFn(filing)
	}
	return models.ValidationReport{Valid: true}
}

func (m *mockValidationService) ValidateEmail(ctx context.Context, message *models.EmailMessage) models.ValidationReport {
	return models.ValidationReport{Valid: true}
}

func (m *mockValidationService) CrossCheckQuotes(symbol string, quotes []models.Quote) []models.ValidationIssue {
	if m.crossFn != nil {
		return m.crossFn(symbol, quotes)
	}
	return nil
}

func (m *mockValidationService) CorrelateArticles(articles []models.NewsArticle) map[string][]string {
	return m.correlate
}

// mockKnowledgeService records ingested documents; the store phase is
// concurrent so access is guarded
type mockKnowledgeService struct {
	mu       sync.Mutex
	ingested []*models.Document
	err      error
}

func (m *mockKnowledgeService) IngestDocument(ctx context.Context, doc *models.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.ingested = append(m.ingested, doc)
	return nil
}

func (m *mockKnowledgeService) Answer(ctx context.Context, req models.QueryRequest) (*interfaces.KnowledgeResult, error) {
	return nil, nil
}

func (m *mockKnowledgeService) docs() []*models.Document {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*models.Document, len(m.ingested))
	copy(out, m.ingested)
	return out
}

// mockRunStorage records saved summaries
type mockRunStorage struct {
	saved []*models.RunSummary
	last  map[string]*models.RunSummary
}

func (m *mockRunStorage) SaveRunSummary(ctx context.Context, summary *models.RunSummary) error {
	m.saved = append(m.saved, summary)
	return nil
}

func (m *mockRunStorage) ListRunSummaries(ctx context.Context, limit int) ([]models.RunSummary, error) {
	return nil, nil
}

func (m *mockRunStorage) LastRun(ctx context.Context, source string) (*models.RunSummary, error) {
	if m.last == nil {
		return nil, nil
	}
	return m.last[source], nil
}

// mockEmailService returns canned sync results
type mockEmailService struct {
	results []models.AccountSyncResult
}

func (m *mockEmailService) SyncAll(ctx context.Context) []models.AccountSyncResult {
	return m.results
}

func (m *mockEmailService) LastResults() []models.AccountSyncResult { return m.results }

type testDeps struct {
	registry  *fakeRegistry
	validator *mockValidationService
	knowledge *mockKnowledgeService
	email     *mockEmailService
	runs      *mockRunStorage
	config    *common.IngestionConfig
}

func newTestService(deps testDeps) *Service {
	if deps.registry == nil {
		deps.registry = &fakeRegistry{}
	}
	if deps.validator == nil {
		deps.validator = &mockValidationService{}
	}
	if deps.knowledge == nil {
		deps.knowledge = &mockKnowledgeService{}
	}
	if deps.runs == nil {
		deps.runs = &mockRunStorage{}
	}
	if deps.config == nil {
		deps.config = &common.IngestionConfig{
			Watchlist:   []string{"AAPL"},
			Concurrency: 2,
		}
	}
	var email interfaces.EmailService
	if deps.email != nil {
		email = deps.email
	}
	return NewService(
		deps.registry,
		deps.validator,
		deps.knowledge,
		email,
		deps.runs,
		nil,
		entities.NewExtractor([]string{"AAPL", "MSFT"}),
		deps.config,
		arbor.NewLogger(),
	)
}

func testArticle(id, title string) models.NewsArticle {
	return models.NewsArticle{
		ID:          id,
		Source:      models.SourceBenzinga,
		VendorID:    "v-" + id,
		Title:       title,
		Summary:     "Apple reported quarterly revenue above analyst estimates.",
		URL:         "https://example.com/" + id,
		PublishedAt: time.Now().Add(-2 * time.Hour),
		Symbols:     []string{"AAPL"},
	}
}

func TestRunSourceFullPipeline(t *testing.T) {
	articles := []models.NewsArticle{
		testArticle("a1", "Apple tops revenue estimates"),
		testArticle("a2", "reject this one"),
	}
	deps := testDeps{
		registry: &fakeRegistry{
			news:    []interfaces.NewsProvider{&fakeNewsProvider{name: models.SourceBenzinga, articles: articles}},
			enabled: []string{models.SourceBenzinga},
		},
		validator: &mockValidationService{
			articleFn: func(a *models.NewsArticle) models.ValidationReport {
				if strings.HasPrefix(a.Title, "reject") {
					return models.ValidationReport{RecordID: a.ID, Valid: false, Issues: []models.ValidationIssue{
						{Code: "schema_invalid", Severity: models.SeverityError},
					}}
				}
				return models.ValidationReport{RecordID: a.ID, Valid: true}
			},
			correlate: map[string][]string{"a1": {models.SourceNewsAPI}},
		},
		knowledge: &mockKnowledgeService{},
		runs:      &mockRunStorage{},
	}
	service := newTestService(deps)

	summary, err := service.RunSource(context.Background(), models.SourceBenzinga)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if summary.Source != models.SourceBenzinga {
		t.Errorf("Expected source benzinga, got %s", summary.Source)
	}
	if summary.Fetched != 2 {
		t.Errorf("Expected 2 fetched, got %d", summary.Fetched)
	}
	if summary.Valid != 1 {
		t.Errorf("Expected 1 valid, got %d", summary.Valid)
	}
	if summary.Rejected != 1 {
		t.Errorf("Expected 1 rejected, got %d", summary.Rejected)
	}
	if summary.Stored != 1 {
		t.Errorf("Expected 1 stored, got %d", summary.Stored)
	}
	if summary.FinishedAt.IsZero() {
		t.Errorf("Expected finished timestamp to be set")
	}

	docs := deps.knowledge.docs()
	if len(docs) != 1 {
		t.Fatalf("Expected 1 ingested document, got %d", len(docs))
	}
	doc := docs[0]
	if doc.SourceID != "benzinga:v-a1" {
		t.Errorf("Expected source id benzinga:v-a1, got %s", doc.SourceID)
	}
	corroborated, ok := doc.Metadata["corroborated_by"].([]string)
	if !ok || len(corroborated) != 1 || corroborated[0] != models.SourceNewsAPI {
		t.Errorf("Expected corroborated_by [newsapi], got %v", doc.Metadata["corroborated_by"])
	}

	if len(deps.runs.saved) != 1 {
		t.Fatalf("Expected 1 saved run summary, got %d", len(deps.runs.saved))
	}
	if deps.runs.saved[0].ID != summary.ID {
		t.Errorf("Expected saved summary %s, got %s", summary.ID, deps.runs.saved[0].ID)
	}
}

func TestRunSourceUnknownSource(t *testing.T) {
	service := newTestService(testDeps{
		registry: &fakeRegistry{enabled: []string{models.SourceBenzinga}},
	})

	_, err := service.RunSource(context.Background(), "bloomberg")
	if err == nil {
		t.Fatalf("Expected error for unknown source")
	}
}

func TestRunSourceEmail(t *testing.T) {
	deps := testDeps{
		email: &mockEmailService{results: []models.AccountSyncResult{
			{Account: "research", Fetched: 5, Ingested: 3, Skipped: 2},
			{Account: "signals", Error: "IMAP login failed"},
		}},
		runs: &mockRunStorage{},
	}
	service := newTestService(deps)

	summary, err := service.RunSource(context.Background(), models.SourceEmail)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if summary.Source != models.SourceEmail {
		t.Errorf("Expected source email, got %s", summary.Source)
	}
	if summary.Fetched != 5 {
		t.Errorf("Expected 5 fetched, got %d", summary.Fetched)
	}
	if summary.Stored != 3 {
		t.Errorf("Expected 3 stored, got %d", summary.Stored)
	}
	if summary.Rejected != 2 {
		t.Errorf("Expected 2 rejected, got %d", summary.Rejected)
	}
	if len(summary.Errors) != 1 || !strings.Contains(summary.Errors[0], "signals") {
		t.Errorf("Expected signals account error, got %v", summary.Errors)
	}
	if len(deps.runs.saved) != 1 {
		t.Errorf("Expected email run summary to be saved")
	}
}

func TestRunSourceEmailNotConfigured(t *testing.T) {
	service := newTestService(testDeps{})

	_, err := service.RunSource(context.Background(), models.SourceEmail)
	if err == nil {
		t.Fatalf("Expected error when email service is absent")
	}
}

func TestRunAllCrossChecksQuotes(t *testing.T) {
	deps := testDeps{
		registry: &fakeRegistry{
			quotes: []interfaces.QuoteProvider{
				&fakeQuoteProvider{name: models.SourcePolygon, quote: &models.Quote{
					Symbol: "AAPL", Open: 229, High: 232, Low: 228, Close: 230,
					Volume: 100, Timestamp: time.Now(), Source: models.SourcePolygon,
				}},
				&fakeQuoteProvider{name: models.SourceFinnhub, quote: &models.Quote{
					Symbol: "AAPL", Open: 238, High: 243, Low: 237, Close: 241,
					Volume: 90, Timestamp: time.Now(), Source: models.SourceFinnhub,
				}},
			},
			enabled: []string{models.SourcePolygon, models.SourceFinnhub},
		},
		validator: &mockValidationService{
			crossFn: func(symbol string, quotes []models.Quote) []models.ValidationIssue {
				if len(quotes) == 2 {
					return []models.ValidationIssue{{
						Code:     "quote_divergence",
						Message:  "polygon and finnhub close prices diverge",
						Severity: models.SeverityWarning,
					}}
				}
				return nil
			},
		},
		knowledge: &mockKnowledgeService{},
	}
	service := newTestService(deps)

	summary, err := service.RunAll(context.Background())
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if summary.Source != "all" {
		t.Errorf("Expected source all, got %s", summary.Source)
	}
	if summary.Valid != 2 {
		t.Errorf("Expected 2 valid quotes, got %d", summary.Valid)
	}
	if summary.Stored != 2 {
		t.Errorf("Expected 2 stored, got %d", summary.Stored)
	}
	if summary.Entities != 1 {
		t.Errorf("Expected 1 entity, got %d", summary.Entities)
	}

	for _, doc := range deps.knowledge.docs() {
		warningMsgs, ok := doc.Metadata["warnings"].([]string)
		if !ok || len(warningMsgs) != 1 {
			t.Errorf("Expected divergence warning on %s, got %v", doc.SourceID, doc.Metadata["warnings"])
		}
	}
}

func TestRunPipelineEmptyWatchlist(t *testing.T) {
	service := newTestService(testDeps{
		registry: &fakeRegistry{enabled: []string{models.SourceBenzinga}},
		config:   &common.IngestionConfig{Concurrency: 2},
	})

	_, err := service.RunAll(context.Background())
	if err == nil {
		t.Fatalf("Expected error for empty watchlist")
	}
}

func TestRunPipelineSkipsWhenRunning(t *testing.T) {
	service := newTestService(testDeps{
		registry: &fakeRegistry{enabled: []string{models.SourceBenzinga}},
	})

	service.runMu.Lock()
	defer service.runMu.Unlock()

	_, err := service.RunSource(context.Background(), models.SourceBenzinga)
	if err == nil || !strings.Contains(err.Error(), "already in progress") {
		t.Fatalf("Expected run-in-progress error, got %v", err)
	}
}

func TestRunSourceFetchErrorContinues(t *testing.T) {
	deps := testDeps{
		registry: &fakeRegistry{
			news:    []interfaces.NewsProvider{&fakeNewsProvider{name: models.SourceBenzinga, err: errDown}},
			enabled: []string{models.SourceBenzinga},
		},
		runs: &mockRunStorage{},
	}
	service := newTestService(deps)

	summary, err := service.RunSource(context.Background(), models.SourceBenzinga)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if summary.Fetched != 0 {
		t.Errorf("Expected 0 fetched, got %d", summary.Fetched)
	}
	if len(summary.Errors) != 1 || !strings.Contains(summary.Errors[0], "benzinga news AAPL") {
		t.Errorf("Expected fetch error recorded, got %v", summary.Errors)
	}
	if len(deps.runs.saved) != 1 {
		t.Errorf("Expected failed run to still save its summary")
	}
}

func TestRunSourceStoreErrorContinues(t *testing.T) {
	deps := testDeps{
		registry: &fakeRegistry{
			news: []interfaces.NewsProvider{&fakeNewsProvider{
				name:     models.SourceBenzinga,
				articles: []models.NewsArticle{testArticle("a1", "Apple tops revenue estimates")},
			}},
			enabled: []string{models.SourceBenzinga},
		},
		knowledge: &mockKnowledgeService{err: errDown},
		runs:      &mockRunStorage{},
	}
	service := newTestService(deps)

	summary, err := service.RunSource(context.Background(), models.SourceBenzinga)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if summary.Valid != 1 {
		t.Errorf("Expected 1 valid, got %d", summary.Valid)
	}
	if summary.Stored != 0 {
		t.Errorf("Expected 0 stored, got %d", summary.Stored)
	}
	if len(summary.Errors) != 1 || !strings.Contains(summary.Errors[0], "store") {
		t.Errorf("Expected store error recorded, got %v", summary.Errors)
	}
}

func TestRunSourceFilings(t *testing.T) {
	filingDate := time.Date(2025, time.August, 1, 0, 0, 0, 0, time.UTC)
	deps := testDeps{
		registry: &fakeRegistry{
			filings: []interfaces.FilingProvider{&fakeFilingProvider{
				name: models.SourceEDGAR,
				filings: []models.Filing{{
					ID:              "f1",
					CIK:             "0000320193",
					Company:         "Apple Inc.",
					AccessionNumber: "0000320193-25-000001",
					FormType:        "10-Q",
					FilingDate:      filingDate,
					Symbols:         []string{"AAPL"},
					Category:        models.FilingCategoryHigh,
				}},
			}},
			enabled: []string{models.SourceEDGAR},
		},
		knowledge: &mockKnowledgeService{},
	}
	service := newTestService(deps)

	summary, err := service.RunSource(context.Background(), models.SourceEDGAR)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if summary.Stored != 1 {
		t.Fatalf("Expected 1 stored filing, got %d", summary.Stored)
	}
	doc := deps.knowledge.docs()[0]
	if doc.SourceID != "edgar:0000320193-25-000001" {
		t.Errorf("Expected accession source id, got %s", doc.SourceID)
	}
	if doc.Metadata["form_type"] != "10-Q" {
		t.Errorf("Expected form_type 10-Q, got %v", doc.Metadata["form_type"])
	}
}

func TestRunAllIncludesBars(t *testing.T) {
	day := func(d int) time.Time {
		return time.Date(2025, time.August, d, 0, 0, 0, 0, time.UTC)
	}
	deps := testDeps{
		registry: &fakeRegistry{
			bars: []interfaces.BarProvider{&fakeBarProvider{
				name: models.SourcePolygon,
				bars: []models.PriceBar{
					{Symbol: "AAPL", Open: 225, High: 228, Low: 224, Close: 227, Volume: 100, Start: day(18)},
					{Symbol: "AAPL", Open: 227, High: 231, Low: 226, Close: 230, Volume: 120, Start: day(19)},
				},
			}},
			enabled: []string{models.SourcePolygon},
		},
		knowledge: &mockKnowledgeService{},
	}
	service := newTestService(deps)

	summary, err := service.RunAll(context.Background())
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if summary.Fetched != 1 {
		t.Errorf("Expected 1 fetched bar series, got %d", summary.Fetched)
	}
	if summary.Stored != 1 {
		t.Fatalf("Expected 1 stored document, got %d", summary.Stored)
	}
	doc := deps.knowledge.docs()[0]
	if doc.SourceID != "polygon:bars:AAPL:2025-08-19" {
		t.Errorf("Expected bars source id, got %s", doc.SourceID)
	}
	if doc.Metadata["bar_count"] != 2 {
		t.Errorf("Expected bar_count 2, got %v", doc.Metadata["bar_count"])
	}
}

func TestWindowStart(t *testing.T) {
	now := time.Date(2025, time.August, 21, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		last     *models.RunSummary
		lookback int
		want     time.Time
	}{
		{
			name:     "no previous run uses lookback floor",
			last:     nil,
			lookback: 7,
			want:     now.AddDate(0, 0, -7),
		},
		{
			name:     "recent run resumes from its finish",
			last:     &models.RunSummary{FinishedAt: now.Add(-6 * time.Hour)},
			lookback: 7,
			want:     now.Add(-6 * time.Hour),
		},
		{
			name:     "stale run is floored at the lookback",
			last:     &models.RunSummary{FinishedAt: now.AddDate(0, 0, -60)},
			lookback: 7,
			want:     now.AddDate(0, 0, -7),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runs := &mockRunStorage{}
			if tt.last != nil {
				runs.last = map[string]*models.RunSummary{"all": tt.last}
			}
			service := newTestService(testDeps{
				runs: runs,
				config: &common.IngestionConfig{
					Watchlist:    []string{"AAPL"},
					LookbackDays: tt.lookback,
				},
			})

			got := service.windowStart(context.Background(), "all", now)
			if !got.Equal(tt.want) {
				t.Errorf("Expected window start %v, got %v", tt.want, got)
			}
		})
	}
}
