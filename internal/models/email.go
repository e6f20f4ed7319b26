package models

import "time"

// EmailAttachment is one attachment on an ingested message. Text holds
// extracted content for PDF attachments, empty when extraction failed.
type EmailAttachment struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Size        int    `json:"size"`
	Text        string `json:"text,omitempty"`
}

// EmailMessage is a parsed message pulled from an IMAP account.
type EmailMessage struct {
	ID          string            `json:"id"`
	AccountName string            `json:"account_name"`
	UID         uint32            `json:"uid"`
	MessageID   string            `json:"message_id,omitempty"`
	From        string            `json:"from"`
	Subject     string            `json:"subject"`
	Date        time.Time         `json:"date"`
	TextBody    string            `json:"text_body,omitempty"`
	HTMLBody    string            `json:"html_body,omitempty"`
	Attachments []EmailAttachment `json:"attachments,omitempty"`
}

// AccountSyncResult summarizes one mailbox sync pass for an account.
type AccountSyncResult struct {
	Account  string    `json:"account"`
	Fetched  int       `json:"fetched"`
	Ingested int       `json:"ingested"`
	Skipped  int       `json:"skipped"`
	Error    string    `json:"error,omitempty"`
	SyncedAt time.Time `json:"synced_at"`
}

// SyncState tracks incremental IMAP sync progress per account.
// A UIDVALIDITY change on the server invalidates LastUID and forces a
// full resync of the mailbox.
type SyncState struct {
	AccountName  string    `json:"account_name" badgerhold:"key"`
	UIDValidity  uint32    `json:"uid_validity"`
	LastUID      uint32    `json:"last_uid"`
	LastSync     time.Time `json:"last_sync"`
	MessagesSeen int       `json:"messages_seen"`
}
