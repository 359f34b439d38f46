package service

import (
	"context"
	"fmt"

	"github.com/LoGit3X/peonyv0.1-sub001/internal/db"
	"github.com/LoGit3X/peonyv0.1-sub001/internal/domain"
	"github.com/LoGit3X/peonyv0.1-sub001/internal/jalali"
	"github.com/LoGit3X/peonyv0.1-sub001/internal/metrics"
	"github.com/LoGit3X/peonyv0.1-sub001/internal/repository"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

// SalesAggregator keeps the sales_summary rollup consistent with orders. The
// rollup is a cache: every path that removes rows rebuilds them from orders.
type SalesAggregator struct {
	DB           *db.SQLite
	Summaries    repository.SalesSummaryRepository
	Activities   repository.ActivityLogRepository
	Calendar     jalali.Calendar
	MaxRangeDays int
	Logger       *zap.Logger
}

// DaySummary is one day of a summary report. Source tells whether the figures
// came from the stored rollup or were computed from orders.
type DaySummary struct {
	Date        string `json:"date"`
	TotalSales  int64  `json:"totalSales"`
	TotalOrders int64  `json:"totalOrders"`
	Source      string `json:"source"`
}

type SummaryReport struct {
	From        string       `json:"from"`
	To          string       `json:"to"`
	TotalSales  int64        `json:"totalSales"`
	TotalOrders int64        `json:"totalOrders"`
	Days        []DaySummary `json:"days"`
}

type ClearResult struct {
	Scope   jalali.Scope `json:"scope"`
	Prefix  string       `json:"prefix"`
	Cleared int64        `json:"cleared"`
	Rebuilt int64        `json:"rebuilt"`
}

const (
	sourceSummary = "summary"
	sourceOrders  = "orders"
)

func (a *SalesAggregator) log() *zap.Logger {
	if a.Logger == nil {
		return zap.NewNop()
	}
	return a.Logger
}

// RecordOrderWithTx adds a freshly inserted order to its day.
func (a *SalesAggregator) RecordOrderWithTx(ctx context.Context, tx *sqlx.Tx, o *domain.Order) error {
	return a.Summaries.RecordOrderWithTx(ctx, tx, o.JalaliDate, o.TotalAmount, a.Calendar.Now())
}

// RemoveOrderWithTx takes a deleted order out of its day.
func (a *SalesAggregator) RemoveOrderWithTx(ctx context.Context, tx *sqlx.Tx, o *domain.Order) error {
	return a.Summaries.RemoveOrderWithTx(ctx, tx, o.JalaliDate, o.TotalAmount, a.Calendar.Now())
}

// AdjustOrderWithTx applies a change of delta to an order's total, as when
// its items are edited.
func (a *SalesAggregator) AdjustOrderWithTx(ctx context.Context, tx *sqlx.Tx, o *domain.Order, delta int64) error {
	if delta == 0 {
		return nil
	}
	return a.Summaries.AdjustSalesWithTx(ctx, tx, o.JalaliDate, delta, a.Calendar.Now())
}

// ClearCache drops the rollup rows of scope and rebuilds them from orders in
// the same transaction. Orders are never touched.
func (a *SalesAggregator) ClearCache(ctx context.Context, scope jalali.Scope, userID int64) (ClearResult, error) {
	prefix := a.Calendar.Prefix(scope)
	res := ClearResult{Scope: scope, Prefix: prefix}
	err := a.DB.WithTx(ctx, func(ctx context.Context, tx *sqlx.Tx) error {
		cleared, err := a.Summaries.DeleteByPrefixWithTx(ctx, tx, prefix)
		if err != nil {
			return err
		}
		rebuilt, err := a.Summaries.RebuildByPrefixWithTx(ctx, tx, prefix, a.Calendar.Now())
		if err != nil {
			return err
		}
		res.Cleared, res.Rebuilt = cleared, rebuilt
		_, err = a.Activities.CreateWithTx(ctx, tx, repository.CreateActivityInput{
			Type:        domain.ActivityDelete,
			Entity:      "sales_summary",
			Description: fmt.Sprintf("cleared %s sales cache (%d rows) and rebuilt %d days", scope, cleared, rebuilt),
			UserID:      userID,
			At:          a.Calendar.Now(),
		})
		return err
	})
	if err != nil {
		return ClearResult{}, err
	}
	metrics.SummaryRebuilds.WithLabelValues(string(scope), "clear").Inc()
	a.log().Info("sales cache cleared",
		zap.String("scope", string(scope)),
		zap.String("prefix", prefix),
		zap.Int64("cleared", res.Cleared),
		zap.Int64("rebuilt", res.Rebuilt),
	)
	return res, nil
}

// Rebuild recomputes the rollup of scope from orders. It is idempotent.
func (a *SalesAggregator) Rebuild(ctx context.Context, scope jalali.Scope) (int64, error) {
	prefix := a.Calendar.Prefix(scope)
	var rebuilt int64
	err := a.DB.WithTx(ctx, func(ctx context.Context, tx *sqlx.Tx) error {
		n, err := a.Summaries.RebuildByPrefixWithTx(ctx, tx, prefix, a.Calendar.Now())
		rebuilt = n
		return err
	})
	if err != nil {
		return 0, err
	}
	metrics.SummaryRebuilds.WithLabelValues(string(scope), "manual").Inc()
	a.log().Info("sales summary rebuilt", zap.String("scope", string(scope)), zap.Int64("days", rebuilt))
	return rebuilt, nil
}

// EnsureFresh rebuilds the whole rollup when any day disagrees with orders.
func (a *SalesAggregator) EnsureFresh(ctx context.Context) (bool, error) {
	stale, err := a.Summaries.StaleDays(ctx)
	if err != nil {
		return false, err
	}
	if stale == 0 {
		return false, nil
	}
	a.log().Warn("sales summary out of date, rebuilding", zap.Int64("stale_days", stale))
	err = a.DB.WithTx(ctx, func(ctx context.Context, tx *sqlx.Tx) error {
		_, err := a.Summaries.RebuildByPrefixWithTx(ctx, tx, "", a.Calendar.Now())
		return err
	})
	if err != nil {
		return false, err
	}
	metrics.SummaryRebuilds.WithLabelValues(string(jalali.ScopeAll), "startup").Inc()
	return true, nil
}

// GetSummary reports every day in [from, to]. Days without a stored row are
// computed from orders instead of being reported as zero.
func (a *SalesAggregator) GetSummary(ctx context.Context, from, to jalali.Date) (SummaryReport, error) {
	if to.Before(from) {
		return SummaryReport{}, domain.Validationf("range start %s is after range end %s", from, to)
	}
	days := jalali.DaysBetween(from, to)
	if a.MaxRangeDays > 0 && days > a.MaxRangeDays {
		return SummaryReport{}, domain.Validationf("range covers %d days, at most %d allowed", days, a.MaxRangeDays)
	}

	stored, err := a.Summaries.List(ctx, from.String(), to.String())
	if err != nil {
		return SummaryReport{}, err
	}
	byDate := make(map[string]domain.SalesSummary, len(stored))
	for _, s := range stored {
		byDate[s.Date] = s
	}

	var computed map[string]repository.DayTotal
	if len(byDate) < days {
		totals, err := a.Summaries.ComputeFromOrders(ctx, from.String(), to.String())
		if err != nil {
			return SummaryReport{}, err
		}
		computed = make(map[string]repository.DayTotal, len(totals))
		for _, t := range totals {
			computed[t.Date] = t
		}
	}

	report := SummaryReport{From: from.String(), To: to.String(), Days: make([]DaySummary, 0, days)}
	var onDemand int
	for _, d := range jalali.Range(from, to) {
		key := d.String()
		day := DaySummary{Date: key, Source: sourceSummary}
		if s, ok := byDate[key]; ok {
			day.TotalSales, day.TotalOrders = s.TotalSales, s.TotalOrders
		} else {
			t := computed[key]
			day.TotalSales, day.TotalOrders, day.Source = t.TotalSales, t.TotalOrders, sourceOrders
			onDemand++
		}
		report.TotalSales += day.TotalSales
		report.TotalOrders += day.TotalOrders
		report.Days = append(report.Days, day)
	}
	if onDemand > 0 {
		metrics.SummaryOnDemandDays.Add(float64(onDemand))
	}
	return report, nil
}

// GetDay returns a single day; missing rows are computed from orders.
func (a *SalesAggregator) GetDay(ctx context.Context, date jalali.Date) (DaySummary, error) {
	rep, err := a.GetSummary(ctx, date, date)
	if err != nil {
		return DaySummary{}, err
	}
	return rep.Days[0], nil
}

// ListStored returns the stored rollup rows, newest first.
func (a *SalesAggregator) ListStored(ctx context.Context) ([]domain.SalesSummary, error) {
	return a.Summaries.List(ctx, "", "")
}
