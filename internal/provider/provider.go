package provider

import (
	"context"
	"fmt"
	"time"
)

// Name identifies an email provider.
type Name string

const (
	Outlook Name = "outlook"
	Gmail   Name = "gmail"
)

// PageSize bounds how many messages a single fetch pulls. A sync run is a
// recent-page merge, not a historical backfill.
const PageSize = 100

// Email is the provider-agnostic record shape produced by an adapter.
type Email struct {
	ExternalID     string
	Subject        string
	From           string
	To             []string
	Cc             []string
	Body           string
	BodyPreview    string
	ReceivedAt     time.Time
	HasAttachments bool
	IsRead         bool
	Importance     string
	Categories     []string
	ConversationID string
}

// Mailbox is the capability both providers implement: fetch a page of
// normalized messages, newest first, and send one.
type Mailbox interface {
	Fetch(ctx context.Context, since *time.Time) ([]Email, error)
	Send(ctx context.Context, to []string, subject, body string) error
}

// Factory builds a Mailbox for a provider with a bearer credential. The
// concrete adapters live in subpackages; main wires them together so this
// package stays import-cycle free.
type Factory func(ctx context.Context, name Name, accessToken string) (Mailbox, error)

// Parse validates a provider string from a job payload or request.
func Parse(s string) (Name, error) {
	switch Name(s) {
	case Outlook:
		return Outlook, nil
	case Gmail:
		return Gmail, nil
	default:
		return "", fmt.Errorf("unsupported provider %q", s)
	}
}
