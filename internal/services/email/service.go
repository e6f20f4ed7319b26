// -----------------------------------------------------------------------
// Email Service - incremental IMAP ingestion for research mailboxes
// Each configured account is synced by UID against stored SyncState so
// messages are fetched once, parsed, and fed through the knowledge
// pipeline as documents.
// -----------------------------------------------------------------------

package email

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/ice/internal/common"
	"github.com/ternarybob/ice/internal/interfaces"
	"github.com/ternarybob/ice/internal/models"
	"github.com/ternarybob/ice/internal/services/entities"
)

// Service syncs configured IMAP accounts into the document store.
type Service struct {
	accounts  []common.EmailAccountConfig
	syncState interfaces.SyncStateStorage
	knowledge interfaces.KnowledgeService
	validator interfaces.ValidationService
	pdf       interfaces.PDFService
	events    interfaces.EventService
	extractor *entities.Extractor
	converter *md.Converter
	logger    arbor.ILogger

	mu          sync.Mutex
	lastResults map[string]models.AccountSyncResult
}

// NewService creates the email ingestion service
func NewService(
	cfg *common.EmailConfig,
	syncState interfaces.SyncStateStorage,
	knowledge interfaces.KnowledgeService,
	validator interfaces.ValidationService,
	pdf interfaces.PDFService,
	events interfaces.EventService,
	extractor *entities.Extractor,
	logger arbor.ILogger,
) *Service {
	var accounts []common.EmailAccountConfig
	if cfg != nil {
		accounts = cfg.Accounts
	}
	return &Service{
		accounts:    accounts,
		syncState:   syncState,
		knowledge:   knowledge,
		validator:   validator,
		pdf:         pdf,
		events:      events,
		extractor:   extractor,
		converter:   md.NewConverter("", true, nil),
		logger:      logger,
		lastResults: make(map[string]models.AccountSyncResult),
	}
}

// SyncAll syncs every configured account in order. A failing account is
// logged and recorded but never aborts the remaining accounts.
func (s *Service) SyncAll(ctx context.Context) []models.AccountSyncResult {
	results := make([]models.AccountSyncResult, 0, len(s.accounts))
	for _, account := range s.accounts {
		if ctx.Err() != nil {
			break
		}
		result, err := s.SyncAccount(ctx, account)
		if err != nil {
			s.logger.Warn().Err(err).Str("account", account.Name).Msg("Account sync failed")
		}
		results = append(results, result)
	}
	return results
}

// SyncAccount connects to one account, fetches messages above the stored
// UID cursor, and ingests each as a document. SyncState is persisted
// after every message so an interrupted sync never re-ingests.
func (s *Service) SyncAccount(ctx context.Context, account common.EmailAccountConfig) (models.AccountSyncResult, error) {
	result := models.AccountSyncResult{Account: account.Name, SyncedAt: time.Now().UTC()}

	c, err := s.dial(account)
	if err != nil {
		return s.fail(result, err)
	}
	defer c.Logout()

	if err := c.Login(account.Username, account.Password); err != nil {
		return s.fail(result, fmt.Errorf("IMAP login failed for %s: %w", account.Name, err))
	}

	mailbox := account.Mailbox
	if mailbox == "" {
		mailbox = "INBOX"
	}
	mbox, err := c.Select(mailbox, false)
	if err != nil {
		return s.fail(result, fmt.Errorf("failed to select %s: %w", mailbox, err))
	}

	stored, err := s.syncState.GetSyncState(ctx, account.Name)
	if err != nil {
		return s.fail(result, fmt.Errorf("failed to load sync state: %w", err))
	}
	state, reset := resolveSyncState(stored, account.Name, mbox.UidValidity)
	if reset {
		s.logger.Warn().
			Str("account", account.Name).
			Uint32("uid_validity", mbox.UidValidity).
			Msg("UIDVALIDITY changed, resyncing mailbox from scratch")
	}

	uids, err := s.searchNewUIDs(c, state.LastUID)
	if err != nil {
		return s.fail(result, err)
	}

	if len(uids) == 0 {
		state.LastSync = time.Now().UTC()
		if err := s.syncState.SaveSyncState(ctx, state); err != nil {
			s.logger.Warn().Err(err).Str("account", account.Name).Msg("Failed to save sync state")
		}
		s.logger.Debug().Str("account", account.Name).Msg("No new messages")
		s.record(result)
		return result, nil
	}

	s.logger.Info().
		Str("account", account.Name).
		Int("count", len(uids)).
		Uint32("last_uid", state.LastUID).
		Msg("Fetching new messages")

	seqSet := new(imap.SeqSet)
	seqSet.AddNum(uids...)

	// Peek keeps the fetch from setting \Seen as a side effect; the flag
	// is stored explicitly when the account asks for it.
	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{imap.FetchEnvelope, imap.FetchUid, section.FetchItem()}

	messages := make(chan *imap.Message, len(uids))
	done := make(chan error, 1)
	go func() {
		done <- c.UidFetch(seqSet, items, messages)
	}()

	for msg := range messages {
		if msg == nil {
			continue
		}
		result.Fetched++

		ingested, err := s.processMessage(ctx, c, account, state, msg, section)
		if err != nil {
			s.logger.Warn().Err(err).
				Str("account", account.Name).
				Uint32("uid", msg.Uid).
				Msg("Message ingest failed")
			result.Skipped++
			continue
		}
		if ingested {
			result.Ingested++
		} else {
			result.Skipped++
		}
	}

	if err := <-done; err != nil {
		return s.fail(result, fmt.Errorf("failed to fetch messages: %w", err))
	}

	s.publish(ctx, interfaces.EventEmailSynced, models.PipelineEvent{
		Phase:   models.PhaseEmailSync,
		Message: "Mailbox synced",
		At:      time.Now(),
		Data: map[string]interface{}{
			"account":  account.Name,
			"fetched":  result.Fetched,
			"ingested": result.Ingested,
			"skipped":  result.Skipped,
		},
	})

	s.logger.Info().
		Str("account", account.Name).
		Int("fetched", result.Fetched).
		Int("ingested", result.Ingested).
		Int("skipped", result.Skipped).
		Msg("Mailbox synced")

	s.record(result)
	return result, nil
}

// LastResults returns the most recent sync outcome per account, ordered
// by account name.
func (s *Service) LastResults() []models.AccountSyncResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	results := make([]models.AccountSyncResult, 0, len(s.lastResults))
	for _, result := range s.lastResults {
		results = append(results, result)
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Account < results[j].Account })
	return results
}

// processMessage parses, filters, validates, and ingests one message.
// The UID cursor advances past failures too: ingestion is at-most-once,
// a lost message is logged rather than refetched forever.
func (s *Service) processMessage(ctx context.Context, c *client.Client, account common.EmailAccountConfig, state *models.SyncState, msg *imap.Message, section *imap.BodySectionName) (bool, error) {
	parsed := s.parseMessage(account.Name, msg, section)

	defer func() {
		state.LastUID = msg.Uid
		state.MessagesSeen++
		state.LastSync = time.Now().UTC()
		if err := s.syncState.SaveSyncState(ctx, state); err != nil {
			s.logger.Warn().Err(err).Str("account", account.Name).Msg("Failed to save sync state")
		}
	}()

	if !accountAccepts(account, parsed.From, parsed.Subject) {
		s.logger.Debug().
			Str("account", account.Name).
			Uint32("uid", msg.Uid).
			Str("from", parsed.From).
			Msg("Message rejected by account filters")
		return false, nil
	}

	report := s.validator.ValidateEmail(ctx, parsed)
	if !report.Valid {
		s.logger.Warn().
			Str("account", account.Name).
			Uint32("uid", msg.Uid).
			Interface("issues", report.Errors()).
			Msg("Message failed validation, skipping")
		return false, nil
	}

	doc := s.buildDocument(parsed)
	if err := s.knowledge.IngestDocument(ctx, doc); err != nil {
		return false, fmt.Errorf("failed to ingest message %d: %w", msg.Uid, err)
	}

	if account.MarkSeen {
		if err := s.markSeen(c, msg.Uid); err != nil {
			s.logger.Warn().Err(err).Uint32("uid", msg.Uid).Msg("Failed to mark message as seen")
		}
	}

	return true, nil
}

// buildDocument converts a parsed message into an ingestable document.
// The body keeps its markdown as-is so frontmatter on research notes
// survives into the enhancement pipeline.
func (s *Service) buildDocument(msg *models.EmailMessage) *models.Document {
	var sections []string

	body := msg.TextBody
	if body == "" && msg.HTMLBody != "" {
		body = s.htmlToMarkdown(msg.HTMLBody)
	}
	if body != "" {
		sections = append(sections, body)
	}

	var filenames []string
	for _, attachment := range msg.Attachments {
		filenames = append(filenames, attachment.Filename)
		if attachment.Text == "" {
			continue
		}
		sections = append(sections, fmt.Sprintf("## Attachment: %s\n\n%s", attachment.Filename, attachment.Text))
	}

	title := msg.Subject
	if title == "" {
		title = fmt.Sprintf("Email from %s", msg.From)
	}

	content := strings.Join(sections, "\n\n")

	doc := &models.Document{
		SourceType:      models.SourceEmail,
		SourceID:        fmt.Sprintf("email:%s:%d", msg.AccountName, msg.UID),
		Title:           title,
		ContentMarkdown: content,
		Symbols:         s.extractor.TagSymbols(title + "\n" + content),
		Tags:            []string{"email"},
		Metadata: map[string]interface{}{
			"account": msg.AccountName,
			"from":    msg.From,
			"uid":     msg.UID,
		},
	}
	if msg.MessageID != "" {
		doc.Metadata["message_id"] = msg.MessageID
	}
	if len(filenames) > 0 {
		doc.Metadata["attachments"] = filenames
	}
	if !msg.Date.IsZero() {
		doc.CreatedAt = msg.Date
		doc.Metadata["date"] = msg.Date.Format(time.RFC3339)
	}
	return doc
}

func (s *Service) htmlToMarkdown(html string) string {
	converted, err := s.converter.ConvertString(html)
	if err != nil {
		s.logger.Warn().Err(err).Msg("HTML to markdown conversion failed, extracting plain text")
		doc, qErr := goquery.NewDocumentFromReader(strings.NewReader(html))
		if qErr != nil {
			return html
		}
		return strings.TrimSpace(doc.Text())
	}
	return strings.TrimSpace(converted)
}

func (s *Service) dial(account common.EmailAccountConfig) (*client.Client, error) {
	port := account.Port
	if port == 0 {
		port = 143
		if account.UseTLS {
			port = 993
		}
	}
	addr := fmt.Sprintf("%s:%d", account.Server, port)

	var c *client.Client
	var err error
	if account.UseTLS {
		c, err = client.DialTLS(addr, nil)
	} else {
		c, err = client.Dial(addr)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", addr, err)
	}
	return c, nil
}

func (s *Service) searchNewUIDs(c *client.Client, lastUID uint32) ([]uint32, error) {
	criteria := imap.NewSearchCriteria()
	criteria.Uid = new(imap.SeqSet)
	criteria.Uid.AddRange(lastUID+1, 0)

	uids, err := c.UidSearch(criteria)
	if err != nil {
		return nil, fmt.Errorf("UID search failed: %w", err)
	}

	// A range of N:* always matches the highest-UID message, so servers
	// echo the newest message back even when nothing is new.
	var fresh []uint32
	for _, uid := range uids {
		if uid > lastUID {
			fresh = append(fresh, uid)
		}
	}
	// Ascending order keeps the cursor monotonic when a fetch aborts midway.
	sort.Slice(fresh, func(i, j int) bool { return fresh[i] < fresh[j] })
	return fresh, nil
}

func (s *Service) markSeen(c *client.Client, uid uint32) error {
	seqSet := new(imap.SeqSet)
	seqSet.AddNum(uid)

	item := imap.FormatFlagsOp(imap.AddFlags, true)
	flags := []interface{}{imap.SeenFlag}
	return c.UidStore(seqSet, item, flags, nil)
}

func (s *Service) fail(result models.AccountSyncResult, err error) (models.AccountSyncResult, error) {
	result.Error = err.Error()
	s.record(result)
	return result, err
}

func (s *Service) record(result models.AccountSyncResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastResults[result.Account] = result
}

func (s *Service) publish(ctx context.Context, eventType interfaces.EventType, payload models.PipelineEvent) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(ctx, interfaces.Event{Type: eventType, Payload: payload}); err != nil {
		s.logger.Warn().Err(err).Str("event_type", string(eventType)).Msg("Failed to publish event")
	}
}

// resolveSyncState returns the state to sync from. A UIDVALIDITY change
// on the server invalidates the stored cursor and forces a full resync.
func resolveSyncState(stored *models.SyncState, account string, uidValidity uint32) (*models.SyncState, bool) {
	if stored == nil {
		return &models.SyncState{AccountName: account, UIDValidity: uidValidity}, false
	}
	if stored.UIDValidity != uidValidity {
		return &models.SyncState{AccountName: account, UIDValidity: uidValidity}, true
	}
	return stored, false
}

// accountAccepts applies the account's sender allowlist and subject
// filters. Empty lists accept everything.
func accountAccepts(account common.EmailAccountConfig, from, subject string) bool {
	if len(account.FromAllowlist) > 0 {
		allowed := false
		for _, sender := range account.FromAllowlist {
			if strings.Contains(strings.ToLower(from), strings.ToLower(sender)) {
				allowed = true
				break
			}
		}
		if !allowed {
			return false
		}
	}

	if len(account.SubjectFilters) > 0 {
		for _, filter := range account.SubjectFilters {
			if strings.Contains(strings.ToLower(subject), strings.ToLower(filter)) {
				return true
			}
		}
		return false
	}

	return true
}

var _ interfaces.EmailService = (*Service)(nil)
