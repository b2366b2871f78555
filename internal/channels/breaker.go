package channels

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker/v2"
)

// BreakerConfig tunes the circuit breaker wrapped around a provider.
type BreakerConfig struct {
	// MaxRequests allowed through in half-open state.
	MaxRequests uint32
	// Interval is the cyclic period of the closed state.
	Interval time.Duration
	// Timeout is the period of the open state.
	Timeout time.Duration
	// FailureThreshold trips the breaker after this many consecutive failures.
	FailureThreshold uint32
	// CallTimeout bounds each provider call.
	CallTimeout time.Duration
}

// DefaultBreakerConfig returns sensible defaults for provider calls.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		MaxRequests:      3,
		Interval:         10 * time.Second,
		Timeout:          30 * time.Second,
		FailureThreshold: 5,
		CallTimeout:      30 * time.Second,
	}
}

func newBreaker(name string, cfg BreakerConfig, logger *slog.Logger) *gobreaker.CircuitBreaker[SendResult] {
	return gobreaker.NewCircuitBreaker[SendResult](gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Info("channel circuit breaker state changed",
				"channel", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
	})
}

// ResilientSMS wraps an SMSSender with a per-call timeout and a circuit
// breaker. An open circuit surfaces as ErrProviderUnavailable so the
// engine treats it like any other transient provider failure.
type ResilientSMS struct {
	inner   SMSSender
	breaker *gobreaker.CircuitBreaker[SendResult]
	timeout time.Duration
}

// NewResilientSMS wraps sender with breaker protection.
func NewResilientSMS(inner SMSSender, cfg BreakerConfig, logger *slog.Logger) *ResilientSMS {
	if logger == nil {
		logger = slog.Default()
	}
	return &ResilientSMS{
		inner:   inner,
		breaker: newBreaker("sms", cfg, logger),
		timeout: cfg.CallTimeout,
	}
}

// SendSMS delivers through the wrapped sender.
func (r *ResilientSMS) SendSMS(ctx context.Context, msg SMSMessage) (SendResult, error) {
	result, err := r.breaker.Execute(func() (SendResult, error) {
		callCtx, cancel := context.WithTimeout(ctx, r.timeout)
		defer cancel()
		return r.inner.SendSMS(callCtx, msg)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return SendResult{}, fmt.Errorf("%w: sms circuit open", ErrProviderUnavailable)
	}
	return result, err
}

// ResilientEmail wraps an EmailSender the same way.
type ResilientEmail struct {
	inner   EmailSender
	breaker *gobreaker.CircuitBreaker[SendResult]
	timeout time.Duration
}

// NewResilientEmail wraps sender with breaker protection.
func NewResilientEmail(inner EmailSender, cfg BreakerConfig, logger *slog.Logger) *ResilientEmail {
	if logger == nil {
		logger = slog.Default()
	}
	return &ResilientEmail{
		inner:   inner,
		breaker: newBreaker("email", cfg, logger),
		timeout: cfg.CallTimeout,
	}
}

// SendEmail delivers through the wrapped sender.
func (r *ResilientEmail) SendEmail(ctx context.Context, msg EmailMessage) (SendResult, error) {
	result, err := r.breaker.Execute(func() (SendResult, error) {
		callCtx, cancel := context.WithTimeout(ctx, r.timeout)
		defer cancel()
		return r.inner.SendEmail(callCtx, msg)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return SendResult{}, fmt.Errorf("%w: email circuit open", ErrProviderUnavailable)
	}
	return result, err
}

var (
	_ SMSSender   = (*ResilientSMS)(nil)
	_ EmailSender = (*ResilientEmail)(nil)
)
