// -----------------------------------------------------------------------
// Ingestion Service - scheduled pipeline runs over the vendor connectors
// Fetches the watchlist from every enabled source, validates and
// cross-checks the records, and stores each survivor as a document
// through the knowledge pipeline. Every run leaves a RunSummary behind.
// -----------------------------------------------------------------------

package ingestion

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/ice/internal/common"
	"github.com/ternarybob/ice/internal/connectors/edgar"
	"github.com/ternarybob/ice/internal/interfaces"
	"github.com/ternarybob/ice/internal/models"
	"github.com/ternarybob/ice/internal/services/entities"
	"github.com/ternarybob/ice/internal/services/workers"
)

const (
	defaultConcurrency  = 3
	defaultLookbackDays = 30

	// filingFetchLimit caps filings pulled per symbol per run.
	filingFetchLimit = 25
)

// providerRegistry is the slice of the connector registry the pipeline
// consumes.
type providerRegistry interface {
	News() []interfaces.NewsProvider
	Quotes() []interfaces.QuoteProvider
	Bars() []interfaces.BarProvider
	Filings() []interfaces.FilingProvider
	EDGAR() *edgar.Connector
	Enabled() []string
}

// Service runs the fetch, validate, convert, store pipeline.
type Service struct {
	registry  providerRegistry
	validator interfaces.ValidationService
	knowledge interfaces.KnowledgeService
	email     interfaces.EmailService
	runs      interfaces.RunStorage
	events    interfaces.EventService
	extractor *entities.Extractor
	config    *common.IngestionConfig
	logger    arbor.ILogger

	// runMu serializes pipeline runs; a run that cannot take it is
	// skipped rather than queued.
	runMu sync.Mutex
}

// NewService creates the ingestion orchestrator.
func NewService(
	registry providerRegistry,
	validator interfaces.ValidationService,
	knowledge interfaces.KnowledgeService,
	email interfaces.EmailService,
	runs interfaces.RunStorage,
	events interfaces.EventService,
	extractor *entities.Extractor,
	cfg *common.IngestionConfig,
	logger arbor.ILogger,
) *Service {
	if cfg == nil {
		cfg = &common.IngestionConfig{}
	}
	return &Service{
		registry:  registry,
		validator: validator,
		knowledge: knowledge,
		email:     email,
		runs:      runs,
		events:    events,
		extractor: extractor,
		config:    cfg,
		logger:    logger,
	}
}

// RunAll fetches every watchlist symbol from every enabled source.
func (s *Service) RunAll(ctx context.Context) (*models.RunSummary, error) {
	return s.runPipeline(ctx, "all", s.registry.Enabled())
}

// RunSource runs the pipeline for a single source. The special source
// "email" syncs the configured IMAP accounts instead of a connector.
func (s *Service) RunSource(ctx context.Context, source string) (*models.RunSummary, error) {
	source = strings.ToLower(strings.TrimSpace(source))
	if source == models.SourceEmail {
		return s.runEmail(ctx)
	}
	for _, name := range s.registry.Enabled() {
		if name == source {
			return s.runPipeline(ctx, source, []string{source})
		}
	}
	return nil, fmt.Errorf("unknown or disabled source: %s", source)
}

// runPipeline executes one fetch, validate, convert, store cycle over
// the given sources and records the outcome.
func (s *Service) runPipeline(ctx context.Context, runName string, sources []string) (*models.RunSummary, error) {
	if !s.runMu.TryLock() {
		return nil, fmt.Errorf("ingestion run already in progress")
	}
	defer s.runMu.Unlock()

	if len(s.config.Watchlist) == 0 {
		return nil, fmt.Errorf("ingestion watchlist is empty")
	}
	if len(sources) == 0 {
		return nil, fmt.Errorf("no enabled sources to ingest from")
	}

	started := time.Now().UTC()
	summary := &models.RunSummary{
		ID:        common.NewRunID(),
		Source:    runName,
		StartedAt: started,
	}
	from := s.windowStart(ctx, runName, started)

	s.publish(ctx, interfaces.EventIngestStarted, models.PipelineEvent{
		Phase:   models.PhaseFetch,
		Message: "Ingestion run started",
		At:      started,
		Data: map[string]interface{}{
			"run_id":  summary.ID,
			"source":  runName,
			"symbols": len(s.config.Watchlist),
			"since":   from.Format(time.RFC3339),
		},
	})
	s.logger.Info().
		Str("run_id", summary.ID).
		Str("source", runName).
		Int("symbols", len(s.config.Watchlist)).
		Str("since", from.Format(time.RFC3339)).
		Msg("Ingestion run started")

	b := s.fetch(ctx, sources, from, started)
	summary.Fetched = b.size()
	summary.Errors = append(summary.Errors, b.errors...)

	docs := s.convert(ctx, b, summary)
	s.store(ctx, docs, summary)

	s.finish(ctx, summary)
	return summary, nil
}

// runEmail records a mailbox sync pass as a pipeline run so email shows
// up in the same run history as the vendor connectors.
func (s *Service) runEmail(ctx context.Context) (*models.RunSummary, error) {
	if s.email == nil {
		return nil, fmt.Errorf("email ingestion is not configured")
	}

	started := time.Now().UTC()
	summary := &models.RunSummary{
		ID:        common.NewRunID(),
		Source:    models.SourceEmail,
		StartedAt: started,
	}

	for _, result := range s.email.SyncAll(ctx) {
		summary.Fetched += result.Fetched
		summary.Valid += result.Ingested
		summary.Stored += result.Ingested
		summary.Rejected += result.Skipped
		if result.Error != "" {
			summary.Errors = append(summary.Errors, fmt.Sprintf("%s: %s", result.Account, result.Error))
		}
	}

	s.finish(ctx, summary)
	return summary, nil
}

// windowStart picks the fetch window's lower bound: the previous run's
// finish time when one exists, floored at the configured lookback.
func (s *Service) windowStart(ctx context.Context, runName string, now time.Time) time.Time {
	lookback := s.config.LookbackDays
	if lookback <= 0 {
		lookback = defaultLookbackDays
	}
	floor := now.AddDate(0, 0, -lookback)

	if s.runs == nil {
		return floor
	}
	last, err := s.runs.LastRun(ctx, runName)
	if err != nil {
		s.logger.Warn().Err(err).Str("source", runName).Msg("Last run lookup failed, using lookback window")
		return floor
	}
	if last == nil || last.FinishedAt.IsZero() || last.FinishedAt.Before(floor) {
		return floor
	}
	return last.FinishedAt
}

// barSeries is one symbol's OHLCV window from one source.
type barSeries struct {
	symbol string
	source string
	bars   []models.PriceBar
}

// batch accumulates fetched records across the worker pool.
type batch struct {
	mu       sync.Mutex
	articles []models.NewsArticle
	quotes   map[string][]models.Quote // symbol -> quotes across sources
	filings  []models.Filing
	bars     []barSeries
	errors   []string
}

func newBatch() *batch {
	return &batch{quotes: make(map[string][]models.Quote)}
}

func (b *batch) addArticles(articles []models.NewsArticle) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.articles = append(b.articles, articles...)
}

func (b *batch) addQuote(symbol string, quote models.Quote) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.quotes[symbol] = append(b.quotes[symbol], quote)
}

func (b *batch) addFilings(filings []models.Filing) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.filings = append(b.filings, filings...)
}

func (b *batch) addBars(symbol, source string, bars []models.PriceBar) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.bars = append(b.bars, barSeries{symbol: symbol, source: source, bars: bars})
}

func (b *batch) addError(msg string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.errors = append(b.errors, msg)
}

// size counts fetched records: articles, quotes, filings, bar series.
func (b *batch) size() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := len(b.articles) + len(b.filings) + len(b.bars)
	for _, quotes := range b.quotes {
		n += len(quotes)
	}
	return n
}

// providerSet indexes the registry's providers by source name.
type providerSet struct {
	news    map[string]interfaces.NewsProvider
	quotes  map[string]interfaces.QuoteProvider
	bars    map[string]interfaces.BarProvider
	filings map[string]interfaces.FilingProvider
}

func (s *Service) providerSet() *providerSet {
	ps := &providerSet{
		news:    make(map[string]interfaces.NewsProvider),
		quotes:  make(map[string]interfaces.QuoteProvider),
		bars:    make(map[string]interfaces.BarProvider),
		filings: make(map[string]interfaces.FilingProvider),
	}
	for _, p := range s.registry.News() {
		ps.news[p.Name()] = p
	}
	for _, p := range s.registry.Quotes() {
		ps.quotes[p.Name()] = p
	}
	for _, p := range s.registry.Bars() {
		ps.bars[p.Name()] = p
	}
	for _, p := range s.registry.Filings() {
		ps.filings[p.Name()] = p
	}
	return ps
}

// fetch pulls every (symbol, source) pair through a bounded worker pool
// and gathers the results into one batch.
func (s *Service) fetch(ctx context.Context, sources []string, from, to time.Time) *batch {
	b := newBatch()
	ps := s.providerSet()

	concurrency := s.config.Concurrency
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	pool := workers.NewPool(concurrency, s.logger)
	pool.Start()

	for _, symbol := range s.config.Watchlist {
		for _, source := range sources {
			symbol, source := symbol, source
			job := func(_ context.Context) error {
				s.fetchSymbolSource(ctx, symbol, source, from, to, ps, b)
				return nil
			}
			if err := pool.Submit(job); err != nil {
				b.addError(fmt.Sprintf("%s %s: %v", source, symbol, err))
			}
		}
	}
	pool.Wait()
	return b
}

// fetchSymbolSource pulls everything one source offers for one symbol.
// Fetch failures are recorded on the batch and never stop the run.
func (s *Service) fetchSymbolSource(ctx context.Context, symbol, source string, from, to time.Time, ps *providerSet, b *batch) {
	if np, ok := ps.news[source]; ok {
		articles, err := np.FetchNews(ctx, symbol, from, to)
		if err != nil {
			b.addError(fmt.Sprintf("%s news %s: %v", source, symbol, err))
			s.logger.Warn().Err(err).Str("source", source).Str("symbol", symbol).Msg("News fetch failed")
		} else {
			b.addArticles(articles)
		}
	}
	if qp, ok := ps.quotes[source]; ok {
		quote, err := qp.FetchQuote(ctx, symbol)
		if err != nil {
			b.addError(fmt.Sprintf("%s quote %s: %v", source, symbol, err))
			s.logger.Warn().Err(err).Str("source", source).Str("symbol", symbol).Msg("Quote fetch failed")
		} else if quote != nil {
			b.addQuote(symbol, *quote)
		}
	}
	if bp, ok := ps.bars[source]; ok {
		series, err := bp.FetchBars(ctx, symbol, from, to)
		if err != nil {
			b.addError(fmt.Sprintf("%s bars %s: %v", source, symbol, err))
			s.logger.Warn().Err(err).Str("source", source).Str("symbol", symbol).Msg("Bar fetch failed")
		} else if len(series) > 0 {
			b.addBars(symbol, source, series)
		}
	}
	if fp, ok := ps.filings[source]; ok {
		filings, err := fp.FetchFilings(ctx, symbol, filingFetchLimit)
		if err != nil {
			b.addError(fmt.Sprintf("%s filings %s: %v", source, symbol, err))
			s.logger.Warn().Err(err).Str("source", source).Str("symbol", symbol).Msg("Filing fetch failed")
		} else {
			b.addFilings(filings)
		}
	}
}

// convert validates the batch and turns the survivors into documents.
// Articles are correlated across sources after validation so the
// corroboration metadata only names records that will be stored.
func (s *Service) convert(ctx context.Context, b *batch, summary *models.RunSummary) []*models.Document {
	var docs []*models.Document

	var validArticles []models.NewsArticle
	warnings := make(map[string][]models.ValidationIssue)
	for i := range b.articles {
		article := b.articles[i]
		report := s.validator.ValidateArticle(ctx, &article)
		if !report.Valid {
			summary.Rejected++
			s.logger.Debug().
				Str("source", article.Source).
				Str("title", article.Title).
				Interface("issues", report.Errors()).
				Msg("Article rejected")
			continue
		}
		validArticles = append(validArticles, article)
		warnings[article.ID] = report.Warnings()
	}
	corroborated := s.validator.CorrelateArticles(validArticles)
	for i := range validArticles {
		article := validArticles[i]
		docs = append(docs, s.articleDocument(&article, corroborated[article.ID], warnings[article.ID]))
	}
	summary.Valid += len(validArticles)

	symbols := make([]string, 0, len(b.quotes))
	for symbol := range b.quotes {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)
	for _, symbol := range symbols {
		var valid []models.Quote
		var reports []models.ValidationReport
		for i := range b.quotes[symbol] {
			quote := b.quotes[symbol][i]
			report := s.validator.ValidateQuote(ctx, &quote)
			if !report.Valid {
				summary.Rejected++
				s.logger.Debug().
					Str("source", quote.Source).
					Str("symbol", symbol).
					Interface("issues", report.Errors()).
					Msg("Quote rejected")
				continue
			}
			valid = append(valid, quote)
			reports = append(reports, report)
		}
		divergence := s.validator.CrossCheckQuotes(symbol, valid)
		for i := range valid {
			issues := append(reports[i].Warnings(), divergence...)
			docs = append(docs, s.quoteDocument(&valid[i], issues))
		}
		summary.Valid += len(valid)
	}

	for i := range b.filings {
		filing := b.filings[i]
		report := s.validator.ValidateFiling(ctx, &filing)
		if !report.Valid {
			summary.Rejected++
			s.logger.Debug().
				Str("accession", filing.AccessionNumber).
				Str("form_type", filing.FormType).
				Interface("issues", report.Errors()).
				Msg("Filing rejected")
			continue
		}
		content := ""
		if filing.Category == models.FilingCategoryHigh {
			content = s.filingContent(ctx, &filing)
		}
		docs = append(docs, s.filingDocument(&filing, content, report.Warnings()))
		summary.Valid++
	}

	for _, series := range b.bars {
		docs = append(docs, s.barsDocument(series.symbol, series.source, series.bars))
		summary.Valid++
	}

	return docs
}

// filingContent pulls the primary document text for material filings.
// Only HIGH-category forms justify the extra archive request.
func (s *Service) filingContent(ctx context.Context, filing *models.Filing) string {
	conn := s.registry.EDGAR()
	if conn == nil || filing.PrimaryDocument == "" {
		return ""
	}
	text, err := conn.FetchDocument(ctx, filing)
	if err != nil {
		s.logger.Warn().Err(err).Str("accession", filing.AccessionNumber).Msg("Filing document fetch failed")
		return ""
	}
	return text
}

// store hands each document to the knowledge pipeline through the
// worker pool. Per-record failures land on the summary, the batch
// continues.
func (s *Service) store(ctx context.Context, docs []*models.Document, summary *models.RunSummary) {
	if len(docs) == 0 {
		return
	}

	concurrency := s.config.Concurrency
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	pool := workers.NewPool(concurrency, s.logger)
	pool.Start()

	var mu sync.Mutex
	entitySet := make(map[string]bool)

	for _, doc := range docs {
		doc := doc
		job := func(_ context.Context) error {
			if err := s.knowledge.IngestDocument(ctx, doc); err != nil {
				s.logger.Warn().Err(err).Str("source_id", doc.SourceID).Msg("Document ingest failed")
				mu.Lock()
				summary.Errors = append(summary.Errors, fmt.Sprintf("store %s: %v", doc.SourceID, err))
				mu.Unlock()
				return nil
			}
			mu.Lock()
			summary.Stored++
			for _, symbol := range doc.Symbols {
				entitySet[symbol] = true
			}
			mu.Unlock()
			return nil
		}
		if err := pool.Submit(job); err != nil {
			summary.Errors = append(summary.Errors, fmt.Sprintf("store %s: %v", doc.SourceID, err))
		}
	}
	pool.Wait()

	summary.Entities = len(entitySet)
}

// finish stamps the summary, persists it, and emits the run events.
func (s *Service) finish(ctx context.Context, summary *models.RunSummary) {
	summary.FinishedAt = time.Now().UTC()
	summary.Duration = summary.FinishedAt.Sub(summary.StartedAt)

	if s.runs != nil {
		if err := s.runs.SaveRunSummary(ctx, summary); err != nil {
			s.logger.Warn().Err(err).Str("run_id", summary.ID).Msg("Failed to save run summary")
		}
	}

	s.publish(ctx, interfaces.EventIngestFinished, models.PipelineEvent{
		Phase:   models.PhaseRunComplete,
		Message: "Ingestion run complete",
		At:      summary.FinishedAt,
		Data: map[string]interface{}{
			"run_id":   summary.ID,
			"source":   summary.Source,
			"fetched":  summary.Fetched,
			"valid":    summary.Valid,
			"rejected": summary.Rejected,
			"stored":   summary.Stored,
			"entities": summary.Entities,
			"errors":   len(summary.Errors),
		},
	})

	// Wake the backfill coordinator for any chunks the run could not
	// embed inline.
	s.publish(ctx, interfaces.EventEmbeddingTriggered, models.PipelineEvent{
		Phase:   models.PhaseEmbed,
		Message: "Embedding backfill triggered",
		At:      summary.FinishedAt,
	})

	s.logger.Info().
		Str("run_id", summary.ID).
		Str("source", summary.Source).
		Int("fetched", summary.Fetched).
		Int("valid", summary.Valid).
		Int("rejected", summary.Rejected).
		Int("stored", summary.Stored).
		Int("entities", summary.Entities).
		Int64("duration_ms", summary.Duration.Milliseconds()).
		Msg("Ingestion run complete")
}

func (s *Service) publish(ctx context.Context, eventType interfaces.EventType, payload models.PipelineEvent) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(ctx, interfaces.Event{Type: eventType, Payload: payload}); err != nil {
		s.logger.Warn().Err(err).Str("event_type", string(eventType)).Msg("Failed to publish event")
	}
}

var _ interfaces.IngestionService = (*Service)(nil)
