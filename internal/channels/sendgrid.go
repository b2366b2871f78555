package channels

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// SendGridEmail sends email through the SendGrid v3 mail API.
type SendGridEmail struct {
	apiKey    string
	fromEmail string
	fromName  string
	baseURL   string
	client    *http.Client
}

// SendGridConfig configures the SendGrid adapter.
type SendGridConfig struct {
	APIKey    string
	FromEmail string
	FromName  string
	// BaseURL overrides the API endpoint, used by tests.
	BaseURL string
	// Timeout bounds each API call. Defaults to 30s.
	Timeout time.Duration
}

// NewSendGridEmail creates a SendGrid email adapter.
func NewSendGridEmail(cfg SendGridConfig) *SendGridEmail {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.sendgrid.com"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &SendGridEmail{
		apiKey:    cfg.APIKey,
		fromEmail: cfg.FromEmail,
		fromName:  cfg.FromName,
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		client:    &http.Client{Timeout: cfg.Timeout},
	}
}

// SendEmail posts the message to the SendGrid API.
func (s *SendGridEmail) SendEmail(ctx context.Context, msg EmailMessage) (SendResult, error) {
	payload := map[string]any{
		"personalizations": []map[string]any{
			{"to": []map[string]string{{"email": msg.To}}},
		},
		"from":    map[string]string{"email": s.fromEmail, "name": s.fromName},
		"subject": msg.Subject,
		"content": []map[string]string{
			{"type": "text/html", "value": msg.Body},
		},
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return SendResult{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/v3/mail/send", bytes.NewReader(raw))
	if err != nil {
		return SendResult{}, err
	}
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return SendResult{}, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return SendResult{}, fmt.Errorf("%w: sendgrid returned %d", ErrProviderUnavailable, resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		return SendResult{}, fmt.Errorf("sendgrid rejected message: status %d", resp.StatusCode)
	}

	return SendResult{ID: resp.Header.Get("X-Message-Id"), Status: "accepted"}, nil
}

var _ EmailSender = (*SendGridEmail)(nil)
