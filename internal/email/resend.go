package email

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	resend "github.com/resend/resend-go/v3"
)

const defaultResendBaseURL = "https://api.resend.com/"

// ResendProvider sends through the Resend SDK. Order notifications carry
// template and order tags plus an idempotency key, so a webhook replay that
// re-sends the same notification is dropped by Resend.
type ResendProvider struct {
	from   string
	client *resend.Client
}

func NewResendProvider(apiKey, from string, httpClient *http.Client) *ResendProvider {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &ResendProvider{
		from:   from,
		client: resend.NewCustomClient(httpClient, apiKey),
	}
}

func (r *ResendProvider) setBaseURL(raw string) error {
	if !strings.HasSuffix(raw, "/") {
		raw += "/"
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid resend base url: %w", err)
	}
	r.client.BaseURL = parsed
	return nil
}

func (r *ResendProvider) SendEmail(ctx context.Context, email *Email) error {
	if email == nil {
		return fmt.Errorf("email is required")
	}
	if r.client == nil {
		return fmt.Errorf("resend client not configured")
	}
	if email.HTML == "" && email.Text == "" {
		return fmt.Errorf("email body is empty")
	}

	params := &resend.SendEmailRequest{
		From:    r.from,
		To:      []string{email.To},
		Subject: email.Subject,
		Html:    email.HTML,
		Text:    email.Text,
		Tags:    resendTags(email),
	}

	var err error
	if key := email.idempotencyKey(); key != "" {
		_, err = r.client.Emails.SendWithOptions(ctx, params, &resend.SendEmailOptions{IdempotencyKey: key})
	} else {
		_, err = r.client.Emails.SendWithContext(ctx, params)
	}
	if err != nil {
		return fmt.Errorf("failed to send email via resend: %w", err)
	}
	return nil
}

func (r *ResendProvider) ValidateAPIKey(ctx context.Context) error {
	if r.client == nil {
		return fmt.Errorf("resend client not configured")
	}
	if _, err := r.client.ApiKeys.ListWithContext(ctx); err != nil {
		return fmt.Errorf("invalid API key: %w", err)
	}
	return nil
}

// resendTags labels the message for Resend's dashboard. Tag values only
// allow ASCII letters, digits, underscores and dashes.
func resendTags(email *Email) []resend.Tag {
	var tags []resend.Tag
	if email.Template != "" {
		tags = append(tags, resend.Tag{Name: "template", Value: tagValue(email.Template)})
	}
	if email.OrderNumber != "" {
		tags = append(tags, resend.Tag{Name: "order", Value: tagValue(email.OrderNumber)})
	}
	return tags
}

func tagValue(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			return r
		default:
			return '_'
		}
	}, s)
}
