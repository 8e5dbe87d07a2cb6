package outlook

import (
	"context"
	"fmt"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	msgraphsdk "github.com/microsoftgraph/msgraph-sdk-go"
	"github.com/microsoftgraph/msgraph-sdk-go/models"
	"github.com/microsoftgraph/msgraph-sdk-go/users"

	"github.com/mailpilot-dev/mailpilot/internal/provider"
)

var messageFields = []string{
	"id", "conversationId", "subject", "from", "toRecipients", "ccRecipients",
	"body", "bodyPreview", "receivedDateTime", "hasAttachments", "isRead",
	"importance", "categories",
}

// Adapter implements provider.Mailbox for Outlook via Microsoft Graph.
type Adapter struct {
	client *msgraphsdk.GraphServiceClient
}

// New creates an Outlook adapter authenticated with a bearer token.
func New(accessToken string) (*Adapter, error) {
	cred := &staticTokenCredential{token: accessToken}

	client, err := msgraphsdk.NewGraphServiceClientWithCredentials(cred, []string{})
	if err != nil {
		return nil, fmt.Errorf("failed to create Graph client: %w", err)
	}

	return &Adapter{client: client}, nil
}

// Fetch lists the most recent message page, newest first, optionally
// filtered to messages received after since.
func (a *Adapter) Fetch(ctx context.Context, since *time.Time) ([]provider.Email, error) {
	params := &users.ItemMessagesRequestBuilderGetQueryParameters{
		Top:     int32Ptr(provider.PageSize),
		Select:  messageFields,
		Orderby: []string{"receivedDateTime DESC"},
	}
	if since != nil {
		filter := fmt.Sprintf("receivedDateTime ge %s", since.UTC().Format(time.RFC3339))
		params.Filter = &filter
	}

	result, err := a.client.Me().Messages().Get(ctx, &users.ItemMessagesRequestBuilderGetRequestConfiguration{
		QueryParameters: params,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}

	msgs := result.GetValue()
	emails := make([]provider.Email, 0, len(msgs))
	for _, m := range msgs {
		emails = append(emails, normalize(m))
	}
	return emails, nil
}

// Send sends an HTML message through the Graph sendMail action.
func (a *Adapter) Send(ctx context.Context, to []string, subject, body string) error {
	message := models.NewMessage()
	message.SetSubject(&subject)

	content := models.NewItemBody()
	contentType := models.HTML_BODYTYPE
	content.SetContentType(&contentType)
	content.SetContent(&body)
	message.SetBody(content)

	recipients := make([]models.Recipientable, 0, len(to))
	for i := range to {
		addr := models.NewEmailAddress()
		addr.SetAddress(&to[i])
		r := models.NewRecipient()
		r.SetEmailAddress(addr)
		recipients = append(recipients, r)
	}
	message.SetToRecipients(recipients)

	request := users.NewItemSendMailPostRequestBody()
	request.SetMessage(message)

	if err := a.client.Me().SendMail().Post(ctx, request, nil); err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}

func normalize(m models.Messageable) provider.Email {
	e := provider.Email{Importance: "normal", Subject: "(No Subject)"}

	if id := m.GetId(); id != nil {
		e.ExternalID = *id
	}
	if subject := m.GetSubject(); subject != nil && *subject != "" {
		e.Subject = *subject
	}
	if from := m.GetFrom(); from != nil {
		if addr := from.GetEmailAddress(); addr != nil {
			if v := addr.GetAddress(); v != nil {
				e.From = *v
			}
		}
	}
	e.To = extractAddresses(m.GetToRecipients())
	e.Cc = extractAddresses(m.GetCcRecipients())
	if body := m.GetBody(); body != nil {
		if v := body.GetContent(); v != nil {
			e.Body = *v
		}
	}
	if preview := m.GetBodyPreview(); preview != nil {
		e.BodyPreview = *preview
	}
	if rcvd := m.GetReceivedDateTime(); rcvd != nil {
		e.ReceivedAt = *rcvd
	}
	if att := m.GetHasAttachments(); att != nil {
		e.HasAttachments = *att
	}
	if read := m.GetIsRead(); read != nil {
		e.IsRead = *read
	}
	if imp := m.GetImportance(); imp != nil {
		e.Importance = imp.String()
	}
	if cats := m.GetCategories(); cats != nil {
		e.Categories = cats
	}
	if convID := m.GetConversationId(); convID != nil {
		e.ConversationID = *convID
	}

	return e
}

func extractAddresses(recipients []models.Recipientable) []string {
	var addrs []string
	for _, r := range recipients {
		if emailAddr := r.GetEmailAddress(); emailAddr != nil {
			if addr := emailAddr.GetAddress(); addr != nil {
				addrs = append(addrs, *addr)
			}
		}
	}
	return addrs
}

// staticTokenCredential hands the stored bearer token to the Graph SDK.
type staticTokenCredential struct {
	token string
}

func (c *staticTokenCredential) GetToken(ctx context.Context, options policy.TokenRequestOptions) (azcore.AccessToken, error) {
	return azcore.AccessToken{
		Token:     c.token,
		ExpiresOn: time.Now().Add(1 * time.Hour),
	}, nil
}

func int32Ptr(i int32) *int32 {
	return &i
}
