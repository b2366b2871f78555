package channels

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// TwilioSMS sends text messages through the Twilio Messages REST API.
type TwilioSMS struct {
	accountSID string
	authToken  string
	from       string
	baseURL    string
	client     *http.Client
}

// TwilioConfig configures the Twilio adapter.
type TwilioConfig struct {
	AccountSID string
	AuthToken  string
	From       string
	// BaseURL overrides the API endpoint, used by tests.
	BaseURL string
	// Timeout bounds each API call. Defaults to 30s.
	Timeout time.Duration
}

// NewTwilioSMS creates a Twilio SMS adapter.
func NewTwilioSMS(cfg TwilioConfig) *TwilioSMS {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.twilio.com"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &TwilioSMS{
		accountSID: cfg.AccountSID,
		authToken:  cfg.AuthToken,
		from:       cfg.From,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		client:     &http.Client{Timeout: cfg.Timeout},
	}
}

// SendSMS posts the message to the Twilio API. 5xx responses map to
// ErrProviderUnavailable so the engine can treat them as transient.
func (t *TwilioSMS) SendSMS(ctx context.Context, msg SMSMessage) (SendResult, error) {
	from := msg.From
	if from == "" {
		from = t.from
	}

	form := url.Values{}
	form.Set("To", msg.To)
	form.Set("From", from)
	form.Set("Body", msg.Message)

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", t.baseURL, t.accountSID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return SendResult{}, err
	}
	req.SetBasicAuth(t.accountSID, t.authToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := t.client.Do(req)
	if err != nil {
		return SendResult{}, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return SendResult{}, fmt.Errorf("%w: twilio returned %d", ErrProviderUnavailable, resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		return SendResult{}, fmt.Errorf("twilio rejected message: status %d", resp.StatusCode)
	}

	var body struct {
		SID    string `json:"sid"`
		Status string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return SendResult{}, fmt.Errorf("decode twilio response: %w", err)
	}

	return SendResult{ID: body.SID, Status: body.Status}, nil
}

var _ SMSSender = (*TwilioSMS)(nil)
