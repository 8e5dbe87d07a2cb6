package gmail

import (
	"context"
	"encoding/base64"
	"fmt"
	"log"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/mailpilot-dev/mailpilot/internal/provider"
)

// Adapter implements provider.Mailbox for Gmail.
type Adapter struct {
	svc *gmail.Service
}

// New creates a Gmail adapter authenticated with a bearer token.
func New(ctx context.Context, accessToken string) (*Adapter, error) {
	src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken})
	httpClient := oauth2.NewClient(ctx, src)

	svc, err := gmail.NewService(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gmail service: %w", err)
	}

	return &Adapter{svc: svc}, nil
}

// Fetch lists the most recent inbox page and normalizes each message.
// A failure fetching one message is logged and skipped; it does not abort
// the page.
func (a *Adapter) Fetch(ctx context.Context, since *time.Time) ([]provider.Email, error) {
	query := "in:inbox"
	if since != nil {
		query += fmt.Sprintf(" after:%d", since.Unix())
	}

	resp, err := a.svc.Users.Messages.List("me").
		MaxResults(provider.PageSize).
		Q(query).
		Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}

	emails := make([]provider.Email, 0, len(resp.Messages))
	for _, m := range resp.Messages {
		full, err := a.svc.Users.Messages.Get("me", m.Id).Format("full").Context(ctx).Do()
		if err != nil {
			log.Printf("[gmail] error fetching message %s: %v", m.Id, err)
			continue
		}
		emails = append(emails, normalize(full))
	}

	return emails, nil
}

// Send builds an RFC 2822 message and sends it through the Gmail API.
func (a *Adapter) Send(ctx context.Context, to []string, subject, body string) error {
	var b strings.Builder
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(to, ", "))
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(body)

	msg := &gmail.Message{Raw: base64.URLEncoding.EncodeToString([]byte(b.String()))}
	if _, err := a.svc.Users.Messages.Send("me", msg).Context(ctx).Do(); err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}

func normalize(m *gmail.Message) provider.Email {
	headers := make(map[string]string)
	if m.Payload != nil {
		for _, kv := range m.Payload.Headers {
			headers[strings.ToLower(kv.Name)] = kv.Value
		}
	}

	subject := headers["subject"]
	if subject == "" {
		subject = "(No Subject)"
	}

	importance := "normal"
	isRead := true
	for _, label := range m.LabelIds {
		switch label {
		case "IMPORTANT":
			importance = "high"
		case "UNREAD":
			isRead = false
		}
	}

	return provider.Email{
		ExternalID:     m.Id,
		Subject:        subject,
		From:           headers["from"],
		To:             splitAddrs(headers["to"]),
		Cc:             splitAddrs(headers["cc"]),
		Body:           extractBody(m.Payload),
		BodyPreview:    m.Snippet,
		ReceivedAt:     time.UnixMilli(m.InternalDate),
		HasAttachments: hasAttachments(m.Payload),
		IsRead:         isRead,
		Importance:     importance,
		Categories:     m.LabelIds,
		ConversationID: m.ThreadId,
	}
}

// extractBody decodes the message body, preferring the top-level part and
// falling back to the first decodable text part.
func extractBody(p *gmail.MessagePart) string {
	if p == nil {
		return ""
	}
	if p.Body != nil && p.Body.Data != "" {
		if decoded, err := decodeBase64(p.Body.Data); err == nil {
			return decoded
		}
	}
	for _, part := range p.Parts {
		if part.MimeType == "text/plain" || part.MimeType == "text/html" {
			if part.Body != nil && part.Body.Data != "" {
				if decoded, err := decodeBase64(part.Body.Data); err == nil {
					return decoded
				}
			}
		}
	}
	return ""
}

func decodeBase64(s string) (string, error) {
	decoded, err := base64.URLEncoding.DecodeString(s)
	if err != nil {
		decoded, err = base64.RawURLEncoding.DecodeString(s)
	}
	if err != nil {
		return "", err
	}
	return string(decoded), nil
}

func hasAttachments(p *gmail.MessagePart) bool {
	if p == nil {
		return false
	}
	for _, part := range p.Parts {
		if part.Filename != "" {
			return true
		}
	}
	return false
}

func splitAddrs(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		trimmed := strings.TrimSpace(p)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
