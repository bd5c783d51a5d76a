// Package sweeper repairs unresolved differential refunds from
// maximum-balance dispenses and re-runs revenue splits that never committed
// after a completion. It is the compensating-transaction mechanism for the
// side effects the settlement transaction cannot carry itself.
package sweeper

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/andyyen817/ATMWater-BACKEND--sub000/internal/metrics"
	"github.com/andyyen817/ATMWater-BACKEND--sub000/internal/models"
)

// Refunds is the persistence behind the sweep.
type Refunds interface {
	ListDue(ctx context.Context, maxRetries, limit int) ([]models.RefundRecord, error)
	MarkProcessing(ctx context.Context, id int64, reclaimAfter time.Duration) (bool, error)
	MarkSuccess(ctx context.Context, id int64, at time.Time) error
	MarkFailure(ctx context.Context, id int64, lastError string) error
	RecordAudit(ctx context.Context, entry models.RefundAuditEntry) error
}

// Orders lists completed orders whose revenue split never committed.
type Orders interface {
	ListUnshared(ctx context.Context, limit int) ([]*models.WaterOrder, error)
}

// Shares re-runs the revenue split. Application is idempotent, so repairing
// an order that a concurrent settlement just split is a no-op.
type Shares interface {
	Apply(ctx context.Context, order *models.WaterOrder) error
}

// VendorClient pushes the differential credit back through the platform.
type VendorClient interface {
	RefundToCard(ctx context.Context, orderNo string, accountID, amount int64) error
}

// Config tunes the worker; zero values take the reference deployment's
// defaults (hourly sweep, 3 retries, 24h staleness flag).
type Config struct {
	Interval   time.Duration
	MaxRetries int
	BatchSize  int
	StaleAfter time.Duration
	RunTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.Interval <= 0 {
		c.Interval = time.Hour
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 100
	}
	if c.StaleAfter <= 0 {
		c.StaleAfter = 24 * time.Hour
	}
	if c.RunTimeout <= 0 {
		c.RunTimeout = 5 * time.Minute
	}
	return c
}

// Worker runs the periodic reconciliation sweep.
type Worker struct {
	refunds Refunds
	orders  Orders
	shares  Shares
	vendor  VendorClient
	cfg     Config
	metrics *metrics.Set
	logger  *zap.Logger
}

// NewWorker builds the sweeper.
func NewWorker(refunds Refunds, orders Orders, shares Shares, vendor VendorClient, cfg Config, set *metrics.Set, logger *zap.Logger) *Worker {
	return &Worker{
		refunds: refunds,
		orders:  orders,
		shares:  shares,
		vendor:  vendor,
		cfg:     cfg.withDefaults(),
		metrics: set,
		logger:  logger,
	}
}

// RunForever sweeps on the configured interval until the context ends. A
// failed sweep is logged and the next tick tries again; it can never affect
// in-flight dispenses.
func (w *Worker) RunForever(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()

	for {
		if err := w.RunOnce(ctx); err != nil {
			w.logger.Warn("refund sweep failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// RunOnce performs a single sweep over the due refund records.
func (w *Worker) RunOnce(parentCtx context.Context) error {
	ctx, cancel := context.WithTimeout(parentCtx, w.cfg.RunTimeout)
	defer cancel()

	records, err := w.refunds.ListDue(ctx, w.cfg.MaxRetries, w.cfg.BatchSize)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	for _, rec := range records {
		w.process(ctx, rec, now)
	}

	return w.repairShares(ctx)
}

// repairShares re-runs the revenue split for completed orders that settled
// without one, which happens when the process dies or the split transaction
// fails after the completion committed.
func (w *Worker) repairShares(ctx context.Context) error {
	unshared, err := w.orders.ListUnshared(ctx, w.cfg.BatchSize)
	if err != nil {
		return err
	}

	for _, order := range unshared {
		if err := w.shares.Apply(ctx, order); err != nil {
			w.logger.Warn("share repair failed",
				zap.String("order_no", order.OrderNo), zap.Error(err))
			continue
		}
		w.metrics.SweepResults.WithLabelValues("share_repaired").Inc()
		w.logger.Info("revenue split repaired",
			zap.String("order_no", order.OrderNo),
			zap.String("device_no", order.DeviceNo))
	}
	return nil
}

func (w *Worker) process(ctx context.Context, rec models.RefundRecord, now time.Time) {
	if age := now.Sub(rec.CreatedAt); age > w.cfg.StaleAfter {
		// Still attempted, but the account may have moved through
		// unrelated activity since; flag for the operators.
		w.logger.Warn("stale refund record",
			zap.String("order_no", rec.OrderNo),
			zap.Duration("age", age))
	}

	if rec.RefundAmount <= 0 {
		if err := w.refunds.MarkSuccess(ctx, rec.ID, now); err != nil {
			w.logger.Error("close zero refund failed",
				zap.String("order_no", rec.OrderNo), zap.Error(err))
			return
		}
		w.metrics.SweepResults.WithLabelValues("zero_action").Inc()
		return
	}

	claimed, err := w.refunds.MarkProcessing(ctx, rec.ID, w.cfg.RunTimeout)
	if err != nil {
		w.logger.Error("claim refund failed",
			zap.String("order_no", rec.OrderNo), zap.Error(err))
		return
	}
	if !claimed {
		return
	}

	if err := w.vendor.RefundToCard(ctx, rec.OrderNo, rec.AccountID, rec.RefundAmount); err != nil {
		w.metrics.SweepResults.WithLabelValues("failed").Inc()
		w.logger.Warn("refund attempt failed",
			zap.String("order_no", rec.OrderNo),
			zap.Int("retry", rec.RetryCount+1),
			zap.Error(err))
		if markErr := w.refunds.MarkFailure(ctx, rec.ID, err.Error()); markErr != nil {
			w.logger.Error("record refund failure failed",
				zap.String("order_no", rec.OrderNo), zap.Error(markErr))
		}
		if rec.RetryCount+1 >= w.cfg.MaxRetries {
			// Permanently failed; surfaces through the ops alert on
			// this log line, never to the end user.
			w.logger.Error("refund retries exhausted",
				zap.String("order_no", rec.OrderNo),
				zap.Int64("amount", rec.RefundAmount))
		}
		return
	}

	if err := w.refunds.MarkSuccess(ctx, rec.ID, now); err != nil {
		w.logger.Error("finalize refund failed",
			zap.String("order_no", rec.OrderNo), zap.Error(err))
		return
	}
	if err := w.refunds.RecordAudit(ctx, models.RefundAuditEntry{
		ID:      uuid.NewString(),
		OrderNo: rec.OrderNo,
		Amount:  rec.RefundAmount,
	}); err != nil {
		w.logger.Error("refund audit failed",
			zap.String("order_no", rec.OrderNo), zap.Error(err))
	}
	w.metrics.SweepResults.WithLabelValues("success").Inc()
	w.logger.Info("refund reconciled",
		zap.String("order_no", rec.OrderNo),
		zap.Int64("amount", rec.RefundAmount))
}
