package interfaces

import (
	"context"

	"github.com/ternarybob/ice/internal/models"
)

// EmailService pulls new messages from configured IMAP accounts and feeds
// them through the document ingestion pipeline.
type EmailService interface {
	// SyncAll syncs every configured account. Per-account failures are
	// recorded in the results and do not abort the other accounts.
	SyncAll(ctx context.Context) []models.AccountSyncResult

	// LastResults returns the most recent sync outcome per account.
	LastResults() []models.AccountSyncResult
}
