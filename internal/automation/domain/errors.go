package domain

import "errors"

// Dispatch error taxonomy. Classification decides retry/fallback policy:
// configuration errors never retry, missing-recipient and transient channel
// failures are eligible for the fallback channel, persistence failures are
// swallowed at the logging layer with a diagnostic.
var (
	// ErrConfiguration marks a non-retryable rule configuration problem
	// (missing action type, malformed template, absent required config).
	ErrConfiguration = errors.New("invalid automation configuration")

	// ErrMissingRecipient marks a firing whose recipient phone/email could
	// not be resolved from the context. Retryable only via fallback.
	ErrMissingRecipient = errors.New("no recipient resolvable from context")

	// ErrTransientChannel marks a provider timeout or 5xx. Eligible for the
	// fallback channel; same-channel retry belongs to the queue poller.
	ErrTransientChannel = errors.New("transient channel failure")
)

// IsFallbackEligible reports whether an error may be redirected to the
// configured fallback channel.
func IsFallbackEligible(err error) bool {
	return errors.Is(err, ErrMissingRecipient) || errors.Is(err, ErrTransientChannel)
}
