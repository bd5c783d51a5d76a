// Package gateway validates dispense requests, reserves funds and issues the
// hardware command. Everything after the command leaves this process is the
// settlement state machine's problem.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/andyyen817/ATMWater-BACKEND--sub000/internal/metrics"
	"github.com/andyyen817/ATMWater-BACKEND--sub000/internal/models"
	"github.com/andyyen817/ATMWater-BACKEND--sub000/internal/protocol"
	"github.com/andyyen817/ATMWater-BACKEND--sub000/internal/repository"
)

// ErrValidation rejects malformed requests before any mutation.
var ErrValidation = errors.New("invalid dispense request")

// Link is the slice of the device link manager the gateway uses.
type Link interface {
	IsConnected(deviceNo string) bool
	Send(ctx context.Context, deviceNo string, cmd protocol.Command) error
}

// StatusLookup reads the cluster-visible device status record.
type StatusLookup interface {
	Lookup(ctx context.Context, deviceNo string) (online bool, local bool, err error)
}

// Store reserves funds and creates the pending order atomically.
type Store interface {
	CreatePendingOrder(ctx context.Context, ord repository.NewOrder) (*models.WaterOrder, error)
}

// Devices resolves device calibration and configuration.
type Devices interface {
	GetByNo(ctx context.Context, deviceNo string) (*models.Device, error)
}

// Orders marks the optional pending -> dispensing transition.
type Orders interface {
	MarkDispensing(ctx context.Context, orderNo string) error
}

// Pricing resolves the unit price, minor units per liter.
type Pricing interface {
	UnitPrice(ctx context.Context, deviceNo string, waterType int) (int64, error)
}

// Settler is the settlement surface the gateway needs: the rollback path for
// transport failures and the safety timer.
type Settler interface {
	Fail(ctx context.Context, orderNo, reason string) (*models.WaterOrder, error)
	ScheduleTimeout(orderNo string, d time.Duration)
}

// Notifier publishes the dispensing status after command submission.
type Notifier interface {
	OrderStatus(ctx context.Context, orderNo, deviceNo, status string)
}

// OrderNoSource generates correlation ids.
type OrderNoSource interface {
	OrderNo() string
}

// Request is one dispense attempt. Either VolumeML (fixed mode) or CapAmount
// (maximum-balance mode) must be set.
type Request struct {
	AccountID  int64
	DeviceNo   string
	WaterType  int
	VolumeML   int64
	MaxBalance bool
	CapAmount  int64
	RFID       string
}

// Service is the dispense request gateway.
type Service struct {
	link      Link
	statusRec StatusLookup
	store     Store
	devices   Devices
	orders    Orders
	pricing   Pricing
	settler   Settler
	notifier  Notifier
	orderNos  OrderNoSource
	timeout   time.Duration
	metrics   *metrics.Set
	logger    *zap.Logger
}

// NewService builds the gateway. timeout is the safety window after which a
// still-pending order is failed and refunded.
func NewService(
	link Link,
	statusRec StatusLookup,
	store Store,
	devices Devices,
	orders Orders,
	pricing Pricing,
	settler Settler,
	notifier Notifier,
	orderNos OrderNoSource,
	timeout time.Duration,
	set *metrics.Set,
	logger *zap.Logger,
) *Service {
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &Service{
		link:      link,
		statusRec: statusRec,
		store:     store,
		devices:   devices,
		orders:    orders,
		pricing:   pricing,
		settler:   settler,
		notifier:  notifier,
		orderNos:  orderNos,
		timeout:   timeout,
		metrics:   set,
		logger:    logger,
	}
}

// Dispense runs the full authorization flow and returns the pending order.
func (s *Service) Dispense(ctx context.Context, req Request) (*models.WaterOrder, error) {
	order, err := s.dispense(ctx, req)
	s.metrics.DispenseRequests.WithLabelValues(outcomeLabel(err)).Inc()
	return order, err
}

func (s *Service) dispense(ctx context.Context, req Request) (*models.WaterOrder, error) {
	if err := validate(req); err != nil {
		return nil, err
	}

	device, err := s.devices.GetByNo(ctx, req.DeviceNo)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, fmt.Errorf("%w: unknown device %s", ErrValidation, req.DeviceNo)
		}
		return nil, err
	}

	if err := s.checkReachable(ctx, device.DeviceNo); err != nil {
		return nil, err
	}

	price, err := s.pricing.UnitPrice(ctx, device.DeviceNo, req.WaterType)
	if err != nil {
		return nil, err
	}
	if price <= 0 {
		return nil, fmt.Errorf("%w: no price for device %s type %d", ErrValidation, device.DeviceNo, req.WaterType)
	}

	mode := models.ModeFixedVolume
	volumeML := req.VolumeML
	amount := ceilDiv(price*req.VolumeML, 1000)
	if req.MaxBalance {
		mode = models.ModeMaxBalance
		amount = req.CapAmount
		volumeML = req.CapAmount * 1000 / price
	}
	if amount <= 0 || volumeML <= 0 {
		return nil, fmt.Errorf("%w: amount resolves to zero", ErrValidation)
	}

	// Reserve funds and create the pending order in one atomic step.
	order, err := s.store.CreatePendingOrder(ctx, repository.NewOrder{
		OrderNo:     s.orderNos.OrderNo(),
		AccountID:   req.AccountID,
		DeviceNo:    device.DeviceNo,
		WaterType:   req.WaterType,
		Mode:        mode,
		RequestedML: volumeML,
		Amount:      amount,
	})
	if err != nil {
		return nil, err
	}

	pulses := volumeML * device.PulsesPerLiter / 1000
	cmd := protocol.OpenWater(req.RFID, amount, pulses, req.WaterType, order.OrderNo)

	if err := s.link.Send(ctx, device.DeviceNo, cmd); err != nil {
		// Funds are already held; this is the one rollback path outside
		// the settlement state machine, routed through it so the credit
		// and the status flip stay atomic.
		if _, failErr := s.settler.Fail(ctx, order.OrderNo, failReason(err)); failErr != nil &&
			!errors.Is(failErr, models.ErrAlreadySettled) {
			s.logger.Error("rollback after send failure failed",
				zap.String("order_no", order.OrderNo), zap.Error(failErr))
		}
		return nil, err
	}

	if err := s.orders.MarkDispensing(ctx, order.OrderNo); err != nil {
		s.logger.Warn("mark dispensing failed",
			zap.String("order_no", order.OrderNo), zap.Error(err))
	}
	s.settler.ScheduleTimeout(order.OrderNo, s.timeout)
	s.notifier.OrderStatus(ctx, order.OrderNo, device.DeviceNo, string(models.OrderDispensing))

	s.logger.Info("dispense command issued",
		zap.String("order_no", order.OrderNo),
		zap.String("device_no", device.DeviceNo),
		zap.String("mode", string(mode)),
		zap.Int64("amount", amount),
		zap.Int64("volume_ml", volumeML),
		zap.Int64("pulses", pulses))
	return order, nil
}

// checkReachable enforces process-local connection affinity: a device whose
// socket lives on another instance is rejected rather than proxied.
func (s *Service) checkReachable(ctx context.Context, deviceNo string) error {
	if s.link.IsConnected(deviceNo) {
		return nil
	}
	online, local, err := s.statusRec.Lookup(ctx, deviceNo)
	if err != nil {
		return err
	}
	if !online {
		return models.ErrDeviceOffline
	}
	if !local {
		return models.ErrDeviceOnRemote
	}
	// The record claims this instance but the registry disagrees; the
	// record is stale until its TTL expires.
	return models.ErrDeviceOffline
}

func validate(req Request) error {
	switch {
	case req.AccountID <= 0:
		return fmt.Errorf("%w: account id required", ErrValidation)
	case req.DeviceNo == "":
		return fmt.Errorf("%w: device number required", ErrValidation)
	case req.MaxBalance && req.CapAmount <= 0:
		return fmt.Errorf("%w: cap amount required", ErrValidation)
	case !req.MaxBalance && req.VolumeML <= 0:
		return fmt.Errorf("%w: volume required", ErrValidation)
	}
	return nil
}

func failReason(err error) string {
	if errors.Is(err, models.ErrTransportFailure) {
		return "tcp_send_failed"
	}
	return "send_failed"
}

func ceilDiv(n, d int64) int64 {
	return (n + d - 1) / d
}

func outcomeLabel(err error) string {
	switch {
	case err == nil:
		return "accepted"
	case errors.Is(err, models.ErrInsufficientBalance):
		return "insufficient_balance"
	case errors.Is(err, models.ErrDeviceOffline), errors.Is(err, models.ErrDeviceOnRemote):
		return "device_offline"
	case errors.Is(err, models.ErrTransportFailure):
		return "transport_failure"
	case errors.Is(err, ErrValidation):
		return "invalid"
	default:
		return "error"
	}
}
