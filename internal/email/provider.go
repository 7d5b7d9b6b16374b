// Package email sends order notifications through a transactional email API.
package email

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gitshopapp/storefront/internal/observability"
)

type Provider interface {
	SendEmail(ctx context.Context, email *Email) error
	ValidateAPIKey(ctx context.Context) error
}

type Email struct {
	To      string
	Subject string
	Text    string
	HTML    string

	// Template and OrderNumber are set by Render and let providers tag and
	// deduplicate order notifications.
	Template    string
	OrderNumber string
}

// idempotencyKey identifies one notification for one order, or "" when the
// email is not tied to an order.
func (e *Email) idempotencyKey() string {
	if e.Template == "" || e.OrderNumber == "" {
		return ""
	}
	return "order/" + e.OrderNumber + "/" + e.Template
}

type Config struct {
	Provider string
	APIKey   string
	From     string
	Domain   string // For Mailgun
	BaseURL  string
	Timeout  time.Duration
}

const defaultTimeout = 30 * time.Second

func NewProvider(config Config) (Provider, error) {
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	httpClient := observability.NewHTTPClient(timeout, apiBaseURL(config))

	switch config.Provider {
	case "postmark":
		provider := NewPostmarkProvider(config.APIKey, config.From, httpClient)
		if config.BaseURL != "" {
			provider.baseURL = config.BaseURL
		}
		return provider, nil
	case "mailgun":
		baseURL := config.BaseURL
		if baseURL == "" {
			baseURL = defaultMailgunBaseURL
		}
		return NewMailgunProvider(config.APIKey, config.Domain, config.From, baseURL, httpClient), nil
	case "resend":
		provider := NewResendProvider(config.APIKey, config.From, httpClient)
		if config.BaseURL != "" {
			if err := provider.setBaseURL(config.BaseURL); err != nil {
				return nil, err
			}
		}
		return provider, nil
	default:
		return nil, fmt.Errorf("EMAIL_PROVIDER must be either 'postmark', 'mailgun', or 'resend'")
	}
}

func apiBaseURL(config Config) string {
	if config.BaseURL != "" {
		return config.BaseURL
	}
	switch config.Provider {
	case "postmark":
		return defaultPostmarkBaseURL
	case "mailgun":
		return defaultMailgunBaseURL
	case "resend":
		return defaultResendBaseURL
	}
	return ""
}

// readBody drains and closes an API response body.
func readBody(resp *http.Response, provider string) ([]byte, error) {
	body, readErr := readAll(resp)
	closeErr := resp.Body.Close()
	if readErr != nil {
		return nil, fmt.Errorf("failed to read %s response: %w", provider, readErr)
	}
	if closeErr != nil {
		return nil, fmt.Errorf("failed to close %s response body: %w", provider, closeErr)
	}
	return body, nil
}
