// Package mailbox is the email-based Source Runner: it searches an inbox
// for provider invoice notifications and extracts attachments, leaving the
// concrete IMAP wire protocol behind a pluggable MailboxClient (the
// retrieval pack carries no IMAP library, so the client is a documented
// external collaborator rather than a wired dependency).
package mailbox

import (
	"context"
	"time"
)

// Message is one fetched email, reduced to the fields invoice extraction
// needs.
type Message struct {
	UID         string
	Date        time.Time
	Subject     string
	From        string
	Attachments []Attachment
}

// Attachment is one email attachment, already fetched into memory.
type Attachment struct {
	Filename string
	Content  []byte
}

// MailboxClient is the pluggable contract the runner drives.
type MailboxClient interface {
	// Search returns the UIDs of messages received on or after since,
	// matching the given sender filter (empty means no filter).
	Search(ctx context.Context, since time.Time, from string) ([]string, error)

	// Fetch retrieves one message (headers + attachments) by UID.
	Fetch(ctx context.Context, uid string) (Message, error)
}
