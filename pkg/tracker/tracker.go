// Package tracker polls venue order status on a fixed cadence until the
// order reaches a terminal state or the attempt budget runs out. Running
// out of attempts is a timeout outcome, not an error: the order is still
// progressing on the venue side, the tracker just stopped watching.
package tracker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"gasless-swap/pkg/types"
)

const (
	defaultInterval    = 5 * time.Second
	defaultMaxAttempts = 60
)

// Outcome says how tracking ended.
type Outcome string

const (
	// OutcomeTerminal means the order reached a final status.
	OutcomeTerminal Outcome = "terminal"
	// OutcomeTimeout means the attempt budget ran out first.
	OutcomeTimeout Outcome = "timeout"
)

// Result is the final tracking report.
type Result struct {
	Outcome Outcome
	// Order is the last successfully observed state, nil when every poll
	// failed.
	Order    *types.OrderInfo
	Attempts int
}

// StatusSource is the venue surface the tracker needs.
type StatusSource interface {
	GetOrderStatus(ctx context.Context, id string) (*types.OrderInfo, error)
}

// UpdateFunc receives every successful observation as it happens.
type UpdateFunc func(info *types.OrderInfo, attempt int)

// Config sizes the polling loop.
type Config struct {
	Interval    time.Duration
	MaxAttempts int
}

func (c *Config) fill() {
	if c.Interval <= 0 {
		c.Interval = defaultInterval
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = defaultMaxAttempts
	}
}

// Tracker watches one order at a time.
type Tracker struct {
	source StatusSource
	cfg    Config
	logger *zap.Logger
}

// New returns a tracker.
func New(source StatusSource, cfg Config, logger *zap.Logger) *Tracker {
	cfg.fill()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{source: source, cfg: cfg, logger: logger.With(zap.String("module", "tracker"))}
}

// Track polls immediately, then on the configured interval. Poll failures
// are transient and consume an attempt. Cancellation aborts with the
// context error.
func (t *Tracker) Track(ctx context.Context, orderID string, onUpdate UpdateFunc) (*Result, error) {
	const op = "tracker.Track"

	ticker := time.NewTicker(t.cfg.Interval)
	defer ticker.Stop()

	var last *types.OrderInfo
	for attempt := 1; attempt <= t.cfg.MaxAttempts; attempt++ {
		info, err := t.source.GetOrderStatus(ctx, orderID)
		switch {
		case err != nil && ctx.Err() != nil:
			return nil, types.E(types.CodeNetwork, op, ctx.Err())
		case err != nil:
			t.logger.Debug("status poll failed",
				zap.String("order_id", orderID), zap.Int("attempt", attempt), zap.Error(err))
		default:
			last = info
			if onUpdate != nil {
				onUpdate(info, attempt)
			}
			if info.Status.Terminal() {
				t.logger.Info("order reached terminal status",
					zap.String("order_id", orderID),
					zap.String("status", string(info.Status)),
					zap.Int("attempts", attempt))
				return &Result{Outcome: OutcomeTerminal, Order: info, Attempts: attempt}, nil
			}
		}

		if attempt == t.cfg.MaxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return nil, types.E(types.CodeNetwork, op, ctx.Err())
		case <-ticker.C:
		}
	}

	t.logger.Warn("tracking window exhausted",
		zap.String("order_id", orderID), zap.Int("attempts", t.cfg.MaxAttempts))
	return &Result{Outcome: OutcomeTimeout, Order: last, Attempts: t.cfg.MaxAttempts}, nil
}
