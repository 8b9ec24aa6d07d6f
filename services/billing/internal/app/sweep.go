package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// ExpireSubscriptions marks every subscription whose end date has passed as
// inactive and returns how many changed.
func (a *App) ExpireSubscriptions(ctx context.Context) (int64, error) {
	n, err := a.store.ExpireSubscriptions(ctx, a.clock())
	if err != nil {
		return 0, fmt.Errorf("expire subscriptions: %w", err)
	}
	a.metrics.SubscriptionsExpired(n)
	return n, nil
}

// NewExpirySweeper schedules ExpireSubscriptions on a cron expression. The
// caller starts and stops the returned scheduler.
func NewExpirySweeper(a *App, schedule string, logger *slog.Logger) (*cron.Cron, error) {
	if logger == nil {
		logger = slog.Default()
	}
	c := cron.New(cron.WithLocation(time.UTC), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	_, err := c.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		n, err := a.ExpireSubscriptions(ctx)
		if err != nil {
			logger.Error("subscription expiry sweep failed", "err", err)
			return
		}
		if n > 0 {
			logger.Info("subscriptions expired", "count", n)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("schedule expiry sweep: %w", err)
	}
	return c, nil
}
