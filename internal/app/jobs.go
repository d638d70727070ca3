package app

import (
	"context"
	"time"

	"github.com/garyellow/timetable-linebot-go/internal/config"
)

// startBackgroundJobs starts all background goroutines tracked by the
// WaitGroup.
func (a *Application) startBackgroundJobs(ctx context.Context) {
	if a.digest != nil {
		a.wg.Go(func() {
			a.digest.Run(ctx)
		})
	}
	if a.backup != nil {
		a.wg.Go(func() {
			a.backup.Run(ctx)
		})
	}
	a.wg.Go(func() {
		a.updateLimiterMetrics(ctx, config.RateLimiterCleanupInterval)
	})
}

// updateLimiterMetrics periodically records the number of tracked keys per
// limiter.
func (a *Application) updateLimiterMetrics(ctx context.Context, interval time.Duration) {
	a.logger.Debug("Limiter metrics job started")
	defer a.logger.Debug("Limiter metrics job stopped")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.recordLimiterMetrics()
		}
	}
}

func (a *Application) recordLimiterMetrics() {
	if a.metrics == nil {
		return
	}
	if a.userLimiter != nil {
		a.metrics.SetRateLimiterKeys("user", a.userLimiter.ActiveKeys())
	}
	if a.llmLimiter != nil {
		a.metrics.SetRateLimiterKeys("llm", a.llmLimiter.ActiveKeys())
	}
}
