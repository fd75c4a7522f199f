package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"kakeibo/internal/core"
	"kakeibo/internal/log"
	"kakeibo/internal/ports"
)

// GrantRecoveryConfig holds configuration for the grant recovery processor
type GrantRecoveryConfig struct {
	// PollInterval is how often to look for failed grants (default: 30s)
	PollInterval time.Duration

	// BatchSize is the max number of attempts handled per poll (default: 10)
	BatchSize int

	// MaxRetries is how many grant retries an attempt gets before it is
	// abandoned (default: 3)
	MaxRetries int
}

// DefaultGrantRecoveryConfig returns the defaults
func DefaultGrantRecoveryConfig() GrantRecoveryConfig {
	return GrantRecoveryConfig{
		PollInterval: 30 * time.Second,
		BatchSize:    10,
		MaxRetries:   3,
	}
}

// RecoveryReport counts what one pass did.
type RecoveryReport struct {
	Scanned   int `json:"scanned"`
	Granted   int `json:"granted"`
	Retrying  int `json:"retrying"`
	Abandoned int `json:"abandoned"`
}

// GrantRecoveryProcessor retries the grant step of draws that deducted
// points but never granted the prize.
type GrantRecoveryProcessor struct {
	attempts    ports.DrawAttempts
	coordinator *RewardCoordinator
	config      GrantRecoveryConfig
	opts        Options

	// Lifecycle management
	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func NewGrantRecoveryProcessor(attempts ports.DrawAttempts, coordinator *RewardCoordinator, config GrantRecoveryConfig, opts Options) *GrantRecoveryProcessor {
	defaults := DefaultGrantRecoveryConfig()
	if config.PollInterval <= 0 {
		config.PollInterval = defaults.PollInterval
	}
	if config.BatchSize <= 0 {
		config.BatchSize = defaults.BatchSize
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = defaults.MaxRetries
	}
	return &GrantRecoveryProcessor{
		attempts:    attempts,
		coordinator: coordinator,
		config:      config,
		opts:        opts.resolve(log.ComponentRecovery),
	}
}

// Start begins the polling loop. Returns an error if already running.
func (p *GrantRecoveryProcessor) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("grant recovery processor is already running")
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})
	p.mu.Unlock()

	go p.runLoop(ctx)

	p.opts.Logger.InfoContext(ctx, "Grant recovery processor started",
		"poll_interval", p.config.PollInterval,
		"batch_size", p.config.BatchSize,
		"max_retries", p.config.MaxRetries)
	return nil
}

// Stop signals the loop and waits for the current pass to finish.
func (p *GrantRecoveryProcessor) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	stopCh, doneCh := p.stopCh, p.doneCh
	p.mu.Unlock()

	close(stopCh)

	select {
	case <-doneCh:
		p.opts.Logger.InfoContext(ctx, "Grant recovery processor stopped gracefully")
	case <-ctx.Done():
		p.opts.Logger.WarnContext(ctx, "Grant recovery processor stop timed out")
		return ctx.Err()
	}

	p.mu.Lock()
	p.running = false
	p.mu.Unlock()
	return nil
}

// IsRunning returns whether the processor is currently running
func (p *GrantRecoveryProcessor) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *GrantRecoveryProcessor) runLoop(ctx context.Context) {
	defer close(p.doneCh)

	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	// Process immediately on startup
	p.processBatch(ctx, p.stopCh)

	for {
		select {
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.processBatch(ctx, p.stopCh)
		}
	}
}

// RunOnce performs a single pass outside the loop.
func (p *GrantRecoveryProcessor) RunOnce(ctx context.Context) (RecoveryReport, error) {
	return p.processBatch(ctx, nil)
}

func (p *GrantRecoveryProcessor) processBatch(ctx context.Context, stopCh <-chan struct{}) (RecoveryReport, error) {
	var report RecoveryReport

	attempts, err := p.attempts.ListAttemptsByState(ctx, core.DrawGrantFailed, p.config.BatchSize)
	if err != nil {
		p.opts.Logger.ErrorContext(ctx, "Failed to list failed grants", log.FieldError, err)
		return report, fmt.Errorf("list failed grants: %w", err)
	}
	if len(attempts) == 0 {
		return report, nil
	}

	p.opts.Logger.DebugContext(ctx, "Processing failed grants", "count", len(attempts))

	for _, a := range attempts {
		select {
		case <-stopCh:
			return report, nil
		case <-ctx.Done():
			return report, ctx.Err()
		default:
		}
		report.Scanned++

		if a.Retries >= p.config.MaxRetries {
			if _, ok := p.coordinator.Abandon(ctx, a); ok {
				p.opts.Metrics.GrantRecovery("abandoned")
				report.Abandoned++
			}
			continue
		}

		outcome, err := p.coordinator.ResumeGrant(ctx, a)
		if errors.Is(err, core.ErrDrawInProgress) {
			p.opts.Logger.DebugContext(ctx, "Failed grant already claimed", log.FieldAttemptID, a.ID)
			continue
		}
		if err != nil {
			p.handleFailure(ctx, outcome.Attempt, err, &report)
			continue
		}
		p.opts.Metrics.GrantRecovery("granted")
		report.Granted++
		p.opts.Logger.InfoContext(ctx, "Recovered failed grant",
			log.FieldAttemptID, a.ID, log.FieldInventoryID, outcome.Item.ID)
	}
	return report, nil
}

func (p *GrantRecoveryProcessor) handleFailure(ctx context.Context, a core.DrawAttempt, err error, report *RecoveryReport) {
	if a.Retries >= p.config.MaxRetries {
		if _, ok := p.coordinator.Abandon(ctx, a); ok {
			p.opts.Metrics.GrantRecovery("abandoned")
			report.Abandoned++
		}
		return
	}
	p.opts.Metrics.GrantRecovery("retry")
	report.Retrying++
	p.opts.Logger.WarnContext(ctx, "Grant retry failed",
		log.FieldAttemptID, a.ID, log.FieldRetries, a.Retries, log.FieldError, err)
}
