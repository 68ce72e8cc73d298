// Package scheduler runs the daily accrual batch: every active
// investment is re-snapshotted, its stored interest figures are
// overwritten, a per-day log row is written and matured investments are
// completed.
package scheduler

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/solari/invest-engine/internal/accrual"
	"github.com/solari/invest-engine/internal/feed"
	"github.com/solari/invest-engine/internal/lock"
	"github.com/solari/invest-engine/internal/metrics"
	"github.com/solari/invest-engine/internal/model"
	"github.com/solari/invest-engine/internal/store"
)

const (
	runLockKey = "accrual:run"
	runLockTTL = 15 * time.Minute
)

// ErrRunInProgress is returned when another run holds the accrual lock.
var ErrRunInProgress = errors.New("scheduler: accrual run already in progress")

// RunStats summarises one accrual run.
type RunStats struct {
	Date    string `json:"date"`
	Total   int    `json:"total"`
	Updated int    `json:"updated"`
	Matured int    `json:"matured"`
	Skipped int    `json:"skipped"`
	Errors  int    `json:"errors"`
}

// Runner executes accrual runs.
type Runner struct {
	store   store.Store
	engine  *accrual.Engine
	locker  lock.Locker      // optional
	feed    feed.Broadcaster // optional
	workers int
	tracer  trace.Tracer
	now     func() time.Time
}

// NewRunner creates a runner that processes up to workers investments
// concurrently.
func NewRunner(st store.Store, engine *accrual.Engine, locker lock.Locker, fb feed.Broadcaster, workers int) *Runner {
	if workers < 1 {
		workers = 1
	}
	return &Runner{
		store:   st,
		engine:  engine,
		locker:  locker,
		feed:    fb,
		workers: workers,
		tracer:  otel.Tracer("invest-engine/scheduler"),
		now:     time.Now,
	}
}

// WithClock replaces the wall clock. Used by tests.
func (r *Runner) WithClock(now func() time.Time) *Runner {
	r.now = now
	return r
}

// RunOnce accrues every active investment as of now. Failures on single
// investments are logged and counted; only listing failures, lock
// contention and cancellation abort the run.
func (r *Runner) RunOnce(ctx context.Context, now time.Time) (RunStats, error) {
	now = now.UTC()
	stats := RunStats{Date: now.Format(time.DateOnly)}

	if r.locker != nil {
		unlock, err := r.locker.TryLock(ctx, runLockKey, runLockTTL)
		if errors.Is(err, lock.ErrNotObtained) {
			metrics.AccrualRunsSkipped.Inc()
			return stats, ErrRunInProgress
		}
		if err != nil {
			return stats, fmt.Errorf("acquire run lock: %w", err)
		}
		defer unlock()
	}

	start := time.Now()
	ctx, span := r.tracer.Start(ctx, "scheduler.accrual_run")
	defer span.End()

	invs, err := r.store.ListInvestments(ctx, model.StatusActive)
	if err != nil {
		return stats, fmt.Errorf("list active investments: %w", err)
	}
	stats.Total = len(invs)

	var updated, matured, skipped, failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)
	for i := range invs {
		inv := invs[i]
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			done, err := r.accrue(gctx, &inv, now, stats.Date)
			if errors.Is(err, store.ErrStatusConflict) {
				// Topped up or completed since it was listed.
				skipped.Add(1)
				metrics.AccrualRecords.WithLabelValues("skipped").Inc()
				slog.Info("accrual skipped, investment changed", "investment_id", inv.ID)
				return nil
			}
			if err != nil {
				failed.Add(1)
				metrics.AccrualRecords.WithLabelValues("error").Inc()
				slog.Error("accrual failed", "investment_id", inv.ID, "error", err)
				return nil
			}
			updated.Add(1)
			metrics.AccrualRecords.WithLabelValues("updated").Inc()
			if done {
				matured.Add(1)
				metrics.AccrualRecords.WithLabelValues("matured").Inc()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return stats, err
	}

	stats.Updated = int(updated.Load())
	stats.Matured = int(matured.Load())
	stats.Skipped = int(skipped.Load())
	stats.Errors = int(failed.Load())

	metrics.ActiveInvestments.Set(float64(stats.Total - stats.Matured))
	metrics.AccrualRunDuration.Observe(time.Since(start).Seconds())
	span.SetAttributes(
		attribute.Int("total", stats.Total),
		attribute.Int("updated", stats.Updated),
		attribute.Int("matured", stats.Matured),
		attribute.Int("skipped", stats.Skipped),
		attribute.Int("errors", stats.Errors),
	)

	slog.Info("accrual run complete",
		"date", stats.Date,
		"total", stats.Total,
		"updated", stats.Updated,
		"matured", stats.Matured,
		"skipped", stats.Skipped,
		"errors", stats.Errors,
		"duration", time.Since(start),
	)

	if r.feed != nil {
		r.feed.Broadcast(feed.Message{
			Type:    feed.TypeAccrualRun,
			Date:    stats.Date,
			Updated: stats.Updated,
			Matured: stats.Matured,
		})
	}
	return stats, nil
}

// accrue processes one investment and reports whether it matured. Store
// writes are conditional on the basis that was listed, so a top-up that
// lands mid-run surfaces as store.ErrStatusConflict.
func (r *Runner) accrue(ctx context.Context, inv *model.Investment, now time.Time, date string) (bool, error) {
	basis := inv.Basis()
	snap, err := r.engine.Snapshot(inv.Terms(), now)
	if err != nil {
		return false, fmt.Errorf("snapshot: %w", err)
	}

	earned := snap.CurrentInterest.Sub(inv.CurrentInterest)
	if earned.IsNegative() {
		earned = decimal.Zero
	}
	metrics.InterestLogDrift.Observe(earned.Sub(snap.YesterdayInterest).Abs().InexactFloat64())

	if err := r.store.UpdateAccrual(ctx, inv.ID, basis, snap.CurrentInterest, snap.ExpectedInterest); err != nil {
		return false, fmt.Errorf("update accrual: %w", err)
	}
	if err := r.store.UpsertInterestLog(ctx, &model.InterestLogEntry{
		InvestmentID:   inv.ID,
		Date:           date,
		Principal:      inv.Principal,
		InterestEarned: earned,
		TotalValue:     snap.CurrentValue,
		CreatedAt:      now,
	}); err != nil {
		return false, fmt.Errorf("write interest log: %w", err)
	}

	status := model.StatusActive
	if !now.Before(inv.EndDate) {
		if err := r.store.CompleteInvestment(ctx, inv.ID, basis); err != nil {
			return false, fmt.Errorf("complete: %w", err)
		}
		status = model.StatusCompleted
		slog.Info("investment matured",
			"investment_id", inv.ID,
			"user", inv.UserID,
			"principal", inv.Principal.String(),
			"interest", snap.CurrentInterest.String(),
		)
	}

	if r.feed != nil {
		typ := feed.TypeAccrual
		if status == model.StatusCompleted {
			typ = feed.TypeMatured
		}
		r.feed.Broadcast(feed.Message{
			Type:             typ,
			InvestmentID:     inv.ID,
			UserID:           inv.UserID,
			CurrentInterest:  snap.CurrentInterest.String(),
			ExpectedInterest: snap.ExpectedInterest.String(),
			Status:           status,
			Date:             date,
		})
	}
	return status == model.StatusCompleted, nil
}

// Run executes RunOnce every interval until ctx is done.
func (r *Runner) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	slog.Info("accrual scheduler started", "interval", interval, "workers", r.workers)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.RunOnce(ctx, r.now()); err != nil && !errors.Is(err, context.Canceled) {
				slog.Warn("scheduled accrual run failed", "error", err)
			}
		}
	}
}

// CronHandler returns the handler for GET /api/v1/cron/accrue. Requests
// must carry "Bearer <secret>"; an empty secret disables the endpoint.
func (r *Runner) CronHandler(secret string) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		got, ok := strings.CutPrefix(req.Header.Get("Authorization"), "Bearer ")
		if secret == "" || !ok || subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}

		stats, err := r.RunOnce(req.Context(), r.now())
		switch {
		case errors.Is(err, ErrRunInProgress):
			writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
		case err != nil:
			slog.Error("cron accrual run failed", "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "accrual run failed"})
		default:
			writeJSON(w, http.StatusOK, stats)
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
