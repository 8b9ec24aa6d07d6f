package app

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
	"personapost/internal/util"
	"personapost/pkg/domain"
)

const usageCachePrefix = "personapost:usage:"

// UsageReport aggregates the token ledger for the month containing ref and
// compares it with the previous month.
func (a *App) UsageReport(ctx context.Context, ref time.Time) (domain.UsageReport, error) {
	start, end := domain.MonthRange(ref)
	prevStart, _ := domain.MonthRange(start.AddDate(0, 0, -1))
	month := start.Format("2006-01")

	if report, ok := a.cachedReport(ctx, month); ok {
		return report, nil
	}

	var (
		cur, prev domain.UsageTotals
		daily     []domain.DailyUsage
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		cur, err = a.store.UsageTotals(gctx, start, end)
		return err
	})
	g.Go(func() error {
		var err error
		prev, err = a.store.UsageTotals(gctx, prevStart, start)
		return err
	})
	g.Go(func() error {
		var err error
		daily, err = a.store.DailyUsage(gctx, start, end)
		return err
	})
	if err := g.Wait(); err != nil {
		return domain.UsageReport{}, fmt.Errorf("usage report: %w", err)
	}

	points := make(map[string]domain.DailyUsage, len(daily))
	for _, d := range daily {
		points[d.Date] = d
	}
	report := domain.UsageReport{
		Month:           month,
		Current:         cur,
		Previous:        prev,
		TokensChangePct: domain.PercentChange(float64(cur.Tokens), float64(prev.Tokens)),
		CostChangePct:   domain.PercentChange(cur.Cost, prev.Cost),
		Daily:           domain.FillDaily(start, end, points),
		GeneratedAt:     a.clock(),
	}
	a.storeReport(ctx, month, report)
	return report, nil
}

func (a *App) cachedReport(ctx context.Context, month string) (domain.UsageReport, bool) {
	if a.cache == nil {
		return domain.UsageReport{}, false
	}
	data, err := a.cache.Get(ctx, usageCachePrefix+month).Bytes()
	if err != nil {
		if err != redis.Nil {
			util.LoggerFromContext(ctx).Warn("usage cache read failed", "err", err)
		}
		return domain.UsageReport{}, false
	}
	var report domain.UsageReport
	if err := json.Unmarshal(data, &report); err != nil {
		return domain.UsageReport{}, false
	}
	return report, true
}

func (a *App) storeReport(ctx context.Context, month string, report domain.UsageReport) {
	if a.cache == nil {
		return
	}
	data, err := json.Marshal(report)
	if err != nil {
		return
	}
	if err := a.cache.Set(ctx, usageCachePrefix+month, data, a.usageTTL).Err(); err != nil {
		util.LoggerFromContext(ctx).Warn("usage cache write failed", "err", err)
	}
}
