package app

import (
	"context"
	"log/slog"
	"time"
)

// Sweeper is implemented by ModerationAppService.
type Sweeper interface {
	SweepExpired(ctx context.Context) (int, error)
}

// ExpirySweeper periodically persists expiry of played messages. Reads already hide
// expired messages, so the sweeper only keeps stored statuses tidy.
type ExpirySweeper struct {
	sweeper  Sweeper
	interval time.Duration
	logger   *slog.Logger
}

func NewExpirySweeper(sweeper Sweeper, interval time.Duration, logger *slog.Logger) *ExpirySweeper {
	return &ExpirySweeper{sweeper: sweeper, interval: interval, logger: logger.With("component", "expiry_sweeper")}
}

// Run sweeps every interval until ctx is cancelled. Sweep errors are logged and the
// next tick retries.
func (w *ExpirySweeper) Run(ctx context.Context) error {
	w.logger.InfoContext(ctx, "Starting expiry sweeper", "interval", w.interval)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.InfoContext(ctx, "Expiry sweeper shutting down")
			return nil
		case <-ticker.C:
			n, err := w.sweeper.SweepExpired(ctx)
			if err != nil {
				w.logger.ErrorContext(ctx, "Expiry sweep failed", "error", err)
				continue
			}
			if n > 0 {
				w.logger.DebugContext(ctx, "Expiry sweep finished", "expired", n)
			}
		}
	}
}
