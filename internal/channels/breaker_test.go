package channels

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type flakySMS struct {
	calls int
	err   error
}

func (f *flakySMS) SendSMS(_ context.Context, _ SMSMessage) (SendResult, error) {
	f.calls++
	if f.err != nil {
		return SendResult{}, f.err
	}
	return SendResult{ID: "SM1", Status: "queued"}, nil
}

func breakerTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestResilientSMS_PassesThrough(t *testing.T) {
	inner := &flakySMS{}
	r := NewResilientSMS(inner, DefaultBreakerConfig(), breakerTestLogger())

	res, err := r.SendSMS(context.Background(), SMSMessage{To: "+15551234567", Message: "hi"})

	require.NoError(t, err)
	assert.Equal(t, "SM1", res.ID)
	assert.Equal(t, 1, inner.calls)
}

func TestResilientSMS_OpensAfterConsecutiveFailures(t *testing.T) {
	inner := &flakySMS{err: ErrProviderUnavailable}
	cfg := DefaultBreakerConfig()
	cfg.FailureThreshold = 5
	r := NewResilientSMS(inner, cfg, breakerTestLogger())

	for i := 0; i < 5; i++ {
		_, err := r.SendSMS(context.Background(), SMSMessage{To: "+15551234567", Message: "hi"})
		assert.ErrorIs(t, err, ErrProviderUnavailable)
	}
	assert.Equal(t, 5, inner.calls)

	// Circuit is open: the provider is no longer called.
	_, err := r.SendSMS(context.Background(), SMSMessage{To: "+15551234567", Message: "hi"})
	assert.ErrorIs(t, err, ErrProviderUnavailable)
	assert.Equal(t, 5, inner.calls)
}

func TestResilientSMS_RecoversAfterOpenTimeout(t *testing.T) {
	inner := &flakySMS{err: ErrProviderUnavailable}
	cfg := DefaultBreakerConfig()
	cfg.FailureThreshold = 2
	cfg.Timeout = 20 * time.Millisecond
	r := NewResilientSMS(inner, cfg, breakerTestLogger())

	for i := 0; i < 2; i++ {
		r.SendSMS(context.Background(), SMSMessage{To: "+15551234567", Message: "hi"})
	}

	inner.err = nil
	time.Sleep(30 * time.Millisecond) // half-open

	res, err := r.SendSMS(context.Background(), SMSMessage{To: "+15551234567", Message: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "SM1", res.ID)
}

type flakyEmail struct {
	calls int
	err   error
}

func (f *flakyEmail) SendEmail(_ context.Context, _ EmailMessage) (SendResult, error) {
	f.calls++
	if f.err != nil {
		return SendResult{}, f.err
	}
	return SendResult{ID: "EM1", Status: "accepted"}, nil
}

func TestResilientEmail_OpensAfterConsecutiveFailures(t *testing.T) {
	inner := &flakyEmail{err: ErrProviderUnavailable}
	cfg := DefaultBreakerConfig()
	cfg.FailureThreshold = 3
	r := NewResilientEmail(inner, cfg, breakerTestLogger())

	for i := 0; i < 3; i++ {
		r.SendEmail(context.Background(), EmailMessage{To: "john@example.com", Subject: "hi"})
	}

	_, err := r.SendEmail(context.Background(), EmailMessage{To: "john@example.com", Subject: "hi"})
	assert.ErrorIs(t, err, ErrProviderUnavailable)
	assert.Equal(t, 3, inner.calls)
}
