// Package settlement owns the order lifecycle: pending -> dispensing ->
// completed|failed. Terminal states are absorbing; every transition is a
// status-guarded storage operation, so whichever of the hardware result,
// transport failure, or safety timer arrives first wins and the rest
// collapse to no-ops.
package settlement

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/andyyen817/ATMWater-BACKEND--sub000/internal/metrics"
	"github.com/andyyen817/ATMWater-BACKEND--sub000/internal/models"
)

// Fail reasons recorded on the order.
const (
	ReasonSendFailed     = "tcp_send_failed"
	ReasonDeviceReported = "device_reported_failure"
	ReasonTimeout        = "dispense_timeout"
)

// Store is the guarded persistence behind the state machine.
type Store interface {
	CompletePending(ctx context.Context, orderNo string, dispensedML, settledAmount int64, at time.Time) (*models.WaterOrder, error)
	FailPendingAndRefund(ctx context.Context, orderNo, reason string) (*models.WaterOrder, error)
}

// ShareEngine runs the revenue split for a completed order.
type ShareEngine interface {
	Apply(ctx context.Context, order *models.WaterOrder) error
}

// Notifier publishes order status changes to observers.
type Notifier interface {
	OrderStatus(ctx context.Context, orderNo, deviceNo, status string)
}

// Service drives settlements.
type Service struct {
	store    Store
	shares   ShareEngine
	notifier Notifier
	metrics  *metrics.Set
	logger   *zap.Logger

	mu     sync.Mutex
	timers map[string]*time.Timer
}

// NewService builds the settlement service.
func NewService(store Store, shares ShareEngine, notifier Notifier, set *metrics.Set, logger *zap.Logger) *Service {
	return &Service{
		store:    store,
		shares:   shares,
		notifier: notifier,
		metrics:  set,
		logger:   logger,
		timers:   make(map[string]*time.Timer),
	}
}

// Complete moves the order to completed and runs the profit-sharing engine
// once. A duplicate event returns models.ErrAlreadySettled with no mutation.
func (s *Service) Complete(ctx context.Context, orderNo string, dispensedML, settledAmount int64) (*models.WaterOrder, error) {
	order, err := s.store.CompletePending(ctx, orderNo, dispensedML, settledAmount, time.Now().UTC())
	if err != nil {
		if errors.Is(err, models.ErrAlreadySettled) {
			s.logger.Debug("duplicate completion ignored", zap.String("order_no", orderNo))
		}
		return nil, err
	}

	s.cancelTimer(orderNo)
	s.metrics.Settlements.WithLabelValues(string(models.OrderCompleted)).Inc()
	s.notifier.OrderStatus(ctx, order.OrderNo, order.DeviceNo, string(models.OrderCompleted))
	s.logger.Info("order completed",
		zap.String("order_no", orderNo),
		zap.String("device_no", order.DeviceNo),
		zap.Int64("dispensed_ml", dispensedML),
		zap.Int64("settled_amount", settledAmount))

	if err := s.shares.Apply(ctx, order); err != nil {
		// The order is settled; the split failure must not unsettle it.
		// The order stays unstamped and the sweeper re-runs the split.
		s.logger.Error("profit sharing failed",
			zap.String("order_no", orderNo), zap.Error(err))
		return order, err
	}
	return order, nil
}

// Fail moves the order to failed and credits the original debit back in the
// same atomic step. A duplicate event returns models.ErrAlreadySettled with
// no mutation.
func (s *Service) Fail(ctx context.Context, orderNo, reason string) (*models.WaterOrder, error) {
	order, err := s.store.FailPendingAndRefund(ctx, orderNo, reason)
	if err != nil {
		if errors.Is(err, models.ErrAlreadySettled) {
			s.logger.Debug("duplicate failure ignored", zap.String("order_no", orderNo))
		}
		return nil, err
	}

	s.cancelTimer(orderNo)
	s.metrics.Settlements.WithLabelValues(string(models.OrderFailed)).Inc()
	s.notifier.OrderStatus(ctx, order.OrderNo, order.DeviceNo, string(models.OrderFailed))
	s.logger.Info("order failed and refunded",
		zap.String("order_no", orderNo),
		zap.String("device_no", order.DeviceNo),
		zap.String("reason", reason),
		zap.Int64("refunded", order.Amount))
	return order, nil
}

// LiveOrders lists orders that have not reached a terminal state.
type LiveOrders interface {
	ListLive(ctx context.Context, limit int) ([]*models.WaterOrder, error)
}

// RearmTimeouts schedules safety timers for orders that were live when the
// process last stopped. Orders already past the window fire almost
// immediately; the guarded transition makes a race with a late device
// result harmless.
func (s *Service) RearmTimeouts(ctx context.Context, orders LiveOrders, window time.Duration) error {
	live, err := orders.ListLive(ctx, rearmBatchSize)
	if err != nil {
		return err
	}

	now := time.Now()
	for _, order := range live {
		remaining := window - now.Sub(order.CreatedAt)
		if remaining < time.Second {
			remaining = time.Second
		}
		s.ScheduleTimeout(order.OrderNo, remaining)
	}
	if len(live) > 0 {
		s.logger.Info("safety timers re-armed", zap.Int("orders", len(live)))
	}
	return nil
}

const rearmBatchSize = 1000

// ScheduleTimeout arms the safety timer: if the order is still live when it
// fires, it is failed exactly as a device-reported failure would fail it.
func (s *Service) ScheduleTimeout(orderNo string, d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.timers[orderNo]; ok {
		old.Stop()
	}
	s.timers[orderNo] = time.AfterFunc(d, func() {
		s.cancelTimer(orderNo)
		if _, err := s.Fail(context.Background(), orderNo, ReasonTimeout); err != nil &&
			!errors.Is(err, models.ErrAlreadySettled) {
			s.logger.Error("timeout settlement failed",
				zap.String("order_no", orderNo), zap.Error(err))
		}
	})
}

func (s *Service) cancelTimer(orderNo string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.timers[orderNo]; ok {
		t.Stop()
		delete(s.timers, orderNo)
	}
}
