// Package workers contains the background loops that drain the deferred
// delivery queue.
package workers

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/calloutapp/callout/internal/automation/application/services"
	"github.com/calloutapp/callout/internal/automation/domain"
	"github.com/calloutapp/callout/pkg/observability"
)

// PollerConfig holds configuration for the queue poller.
type PollerConfig struct {
	PollInterval     time.Duration
	BatchSize        int
	RetryBackoffBase time.Duration
	RetryBackoffMax  time.Duration
}

// DefaultPollerConfig returns sensible defaults.
func DefaultPollerConfig() PollerConfig {
	return PollerConfig{
		PollInterval:     30 * time.Second,
		BatchSize:        50,
		RetryBackoffBase: 1 * time.Minute,
		RetryBackoffMax:  30 * time.Minute,
	}
}

// Poller drains due queued actions and performs them through the
// dispatcher. Deferred sends, delayed fallbacks, and window-parked
// messages all flow through here.
type Poller struct {
	queue      domain.QueuedActionRepository
	dispatcher *services.Dispatcher
	config     PollerConfig
	logger     *slog.Logger
	metrics    observability.Metrics

	wg       sync.WaitGroup
	stopChan chan struct{}
	running  bool
	mu       sync.Mutex

	statsMu sync.Mutex
	stats   Stats
}

// NewPoller creates a queue poller.
func NewPoller(queue domain.QueuedActionRepository, dispatcher *services.Dispatcher, config PollerConfig, logger *slog.Logger) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{
		queue:      queue,
		dispatcher: dispatcher,
		config:     config,
		logger:     logger,
		metrics:    observability.NoopMetrics{},
		stopChan:   make(chan struct{}),
	}
}

// SetMetrics installs a telemetry sink for queue counters.
func (p *Poller) SetMetrics(m observability.Metrics) {
	if m != nil {
		p.metrics = m
	}
}

// Start begins the polling loop in a goroutine.
func (p *Poller) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = true
	p.stopChan = make(chan struct{})
	p.mu.Unlock()

	p.wg.Add(1)
	go p.run(ctx)

	p.logger.Info("queue poller started",
		"poll_interval", p.config.PollInterval,
		"batch_size", p.config.BatchSize,
	)

	return nil
}

// Stop gracefully stops the poller.
func (p *Poller) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	close(p.stopChan)
	p.mu.Unlock()

	p.wg.Wait()
	p.logger.Info("queue poller stopped")
}

// IsRunning returns true if the poller is running.
func (p *Poller) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *Poller) run(ctx context.Context) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopChan:
			return
		case <-ticker.C:
			if err := p.processBatch(ctx); err != nil {
				p.logger.Error("failed to process queue batch", "error", err)
			}
		}
	}
}

func (p *Poller) processBatch(ctx context.Context) error {
	timer := observability.StartTimer("queue.process_batch").WithMetrics(p.metrics)
	err := p.drainDue(ctx)
	timer.StopWithError(err)
	return err
}

func (p *Poller) drainDue(ctx context.Context) error {
	due, err := p.queue.GetDue(ctx, time.Now(), p.config.BatchSize)
	if err != nil {
		p.recordError(err)
		return err
	}

	p.recordProcessed(due)

	for _, qa := range due {
		if err := p.deliver(ctx, qa); err != nil {
			p.logger.Warn("queued action delivery failed",
				"id", qa.ID,
				"rule_id", qa.RuleID,
				"kind", qa.Kind,
				"channel", qa.Channel,
				"retry_count", qa.RetryCount,
				"error", err,
			)
			qa.MarkFailed(err.Error())
			if qa.Status == domain.QueuedStatusFailed {
				p.recordDead(err)
				p.metrics.Counter(observability.MetricQueueDead, 1, observability.T("channel", string(qa.Channel)))
			} else {
				p.recordFailed(err)
				p.metrics.Counter(observability.MetricQueueRetried, 1, observability.T("channel", string(qa.Channel)))
				qa.RunAt = time.Now().Add(p.retryBackoff(qa.RetryCount))
			}
			if updateErr := p.queue.Update(ctx, qa); updateErr != nil {
				p.logger.Error("failed to update queued action after failure",
					"id", qa.ID,
					"error", updateErr,
				)
			}
			continue
		}

		qa.MarkExecuted()
		if err := p.queue.Update(ctx, qa); err != nil {
			p.logger.Error("failed to mark queued action executed",
				"id", qa.ID,
				"error", err,
			)
		} else {
			p.recordDelivered()
			p.metrics.Counter(observability.MetricQueueDelivered, 1, observability.T("channel", string(qa.Channel)))
		}
	}

	return nil
}

func (p *Poller) deliver(ctx context.Context, qa *domain.QueuedAction) error {
	op, err := services.ResolvedFromPayload(qa.Payload)
	if err != nil {
		return err
	}
	_, err = p.dispatcher.Perform(ctx, op)
	return err
}

func (p *Poller) retryBackoff(retryCount int) time.Duration {
	base := p.config.RetryBackoffBase
	if base <= 0 {
		base = time.Minute
	}
	max := p.config.RetryBackoffMax
	if max <= 0 {
		max = 30 * time.Minute
	}
	if retryCount < 1 {
		retryCount = 1
	}

	backoff := base * time.Duration(1<<(retryCount-1))
	if backoff > max {
		return max
	}
	return backoff
}

// ProcessOnce processes a single batch synchronously (useful for testing).
func (p *Poller) ProcessOnce(ctx context.Context) error {
	return p.processBatch(ctx)
}

// Stats returns poller statistics.
type Stats struct {
	IsRunning       bool
	DeliveredCount  uint64
	FailedCount     uint64
	DeadCount       uint64
	LagSeconds      float64
	LastError       string
	LastErrorAt     *time.Time
	LastProcessedAt *time.Time
	OldestDueAt     *time.Time
}

// GetStats returns current poller statistics.
func (p *Poller) GetStats() Stats {
	p.statsMu.Lock()
	defer p.statsMu.Unlock()

	stats := p.stats
	stats.IsRunning = p.IsRunning()
	return stats
}

func (p *Poller) recordDelivered() {
	p.statsMu.Lock()
	defer p.statsMu.Unlock()
	p.stats.DeliveredCount++
}

func (p *Poller) recordFailed(err error) {
	p.statsMu.Lock()
	defer p.statsMu.Unlock()
	p.stats.FailedCount++
	now := time.Now()
	p.stats.LastError = err.Error()
	p.stats.LastErrorAt = &now
}

func (p *Poller) recordDead(err error) {
	p.statsMu.Lock()
	defer p.statsMu.Unlock()
	p.stats.DeadCount++
	now := time.Now()
	p.stats.LastError = err.Error()
	p.stats.LastErrorAt = &now
}

func (p *Poller) recordError(err error) {
	p.statsMu.Lock()
	defer p.statsMu.Unlock()
	now := time.Now()
	p.stats.LastError = err.Error()
	p.stats.LastErrorAt = &now
}

func (p *Poller) recordProcessed(due []*domain.QueuedAction) {
	p.statsMu.Lock()
	defer p.statsMu.Unlock()
	now := time.Now()
	p.stats.LastProcessedAt = &now
	if len(due) == 0 {
		p.stats.LagSeconds = 0
		p.stats.OldestDueAt = nil
		p.metrics.Gauge(observability.MetricQueueLag, 0)
		return
	}

	oldest := due[0].RunAt
	for _, qa := range due[1:] {
		if qa.RunAt.Before(oldest) {
			oldest = qa.RunAt
		}
	}
	p.stats.OldestDueAt = &oldest
	p.stats.LagSeconds = now.Sub(oldest).Seconds()
	p.metrics.Gauge(observability.MetricQueueLag, p.stats.LagSeconds)
}
