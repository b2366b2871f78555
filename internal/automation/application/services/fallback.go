package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/calloutapp/callout/internal/automation/domain"
)

// smsBodyLimit is the single-segment SMS length a converted email message
// is truncated to.
const smsBodyLimit = 160

// fallbackSubjectTemplate is the subject used when an SMS is rerouted to
// email, which has no subject of its own.
const fallbackSubjectTemplate = "Message from {{company_name}}"

// FallbackController reroutes a failed message send through the rule's
// secondary channel, either immediately or via the deferred queue when
// the rule configures a fallback delay.
type FallbackController struct {
	dispatcher *Dispatcher
	queue      domain.QueuedActionRepository
	logger     *slog.Logger
	now        func() time.Time
}

func NewFallbackController(dispatcher *Dispatcher, queue domain.QueuedActionRepository, logger *slog.Logger) *FallbackController {
	if logger == nil {
		logger = slog.Default()
	}
	return &FallbackController{
		dispatcher: dispatcher,
		queue:      queue,
		logger:     logger,
		now:        time.Now,
	}
}

// Engage converts the failed primary send to the fallback channel and
// delivers it. With a configured delay the converted message is queued
// instead and the returned QueuedAction is non-nil. Fallback failures are
// terminal: there is no tertiary channel.
func (f *FallbackController) Engage(
	ctx context.Context,
	rule *domain.AutomationRule,
	executionID uuid.UUID,
	ec *domain.ExecutionContext,
	primary *ResolvedAction,
	primaryErr error,
) (*ActionResult, *domain.QueuedAction, error) {
	mc := rule.MultiChannel
	if !mc.HasFallback() {
		return nil, nil, primaryErr
	}

	op, err := f.Convert(mc, primary, ec)
	if err != nil {
		return nil, nil, err
	}

	f.logger.Info("engaging channel fallback",
		"rule_id", rule.ID,
		"from_channel", primary.Channel,
		"to_channel", op.Channel,
		"reason", primaryErr.Error(),
	)

	if mc.FallbackDelayHours > 0 {
		runAt := f.now().Add(time.Duration(mc.FallbackDelayHours) * time.Hour)
		qa := domain.NewQueuedAction(rule.ID, executionID, rule.OrganizationID, domain.QueuedKindFallback, op.Channel, op.Payload(), runAt)
		if err := f.queue.Create(ctx, qa); err != nil {
			return nil, nil, fmt.Errorf("queue fallback: %w", err)
		}
		return &ActionResult{
			Type:   op.Kind,
			Status: "queued",
			Output: map[string]any{"queued_action_id": qa.ID.String(), "run_at": runAt.UTC().Format(time.RFC3339)},
		}, qa, nil
	}

	result, err := f.dispatcher.Perform(ctx, op)
	if err != nil {
		return nil, nil, fmt.Errorf("fallback via %s: %w", op.Channel, err)
	}
	return result, nil, nil
}

// Convert translates the already-resolved primary message into the
// fallback channel's shape. SMS text becomes an email body under a
// generated subject; an email collapses to "subject: body" truncated to
// one SMS segment.
func (f *FallbackController) Convert(mc domain.MultiChannel, primary *ResolvedAction, ec *domain.ExecutionContext) (*ResolvedAction, error) {
	if mc.FallbackChannel == primary.Channel {
		return nil, fmt.Errorf("%w: fallback channel %s equals primary", domain.ErrConfiguration, mc.FallbackChannel)
	}

	op := &ResolvedAction{
		Channel:        mc.FallbackChannel,
		OrganizationID: primary.OrganizationID,
		JobID:          primary.JobID,
		ClientID:       primary.ClientID,
		TechnicianID:   primary.TechnicianID,
	}

	switch mc.FallbackChannel {
	case domain.ChannelEmail:
		to, err := resolveEmail("customer", ec)
		if err != nil {
			return nil, err
		}
		op.Kind = domain.ActionSendEmail
		op.To = to
		op.Subject = Interpolate(fallbackSubjectTemplate, ec)
		op.Body = primary.Message

	case domain.ChannelSMS:
		to, err := resolvePhone("customer", ec)
		if err != nil {
			return nil, err
		}
		op.Kind = domain.ActionSendSMS
		op.To = to
		op.Message = truncateSMS(primary.Subject, primary.Body)

	default:
		return nil, fmt.Errorf("%w: unsupported fallback channel %q", domain.ErrConfiguration, mc.FallbackChannel)
	}

	return op, nil
}

func truncateSMS(subject, body string) string {
	msg := body
	if subject != "" {
		msg = subject + ": " + body
	}
	if len(msg) <= smsBodyLimit {
		return msg
	}
	// Cut on a rune boundary so a multi-byte character straddling the
	// limit is dropped whole instead of split into invalid UTF-8.
	cut := smsBodyLimit
	for cut > 0 && !utf8.RuneStart(msg[cut]) {
		cut--
	}
	return msg[:cut]
}
