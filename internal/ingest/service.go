// Package ingest verifies and classifies the asynchronous result
// notifications pushed by the vendor platform. Handlers are idempotent: a
// push matching an already-settled order is acknowledged without touching
// anything, so the platform stops retrying without double-applying.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/andyyen817/ATMWater-BACKEND--sub000/internal/metrics"
	"github.com/andyyen817/ATMWater-BACKEND--sub000/internal/models"
	"github.com/andyyen817/ATMWater-BACKEND--sub000/internal/protocol"
	"github.com/andyyen817/ATMWater-BACKEND--sub000/internal/settlement"
)

// Code is the acknowledgment code returned to the vendor platform. The
// transport always answers 200 so that the platform stops redelivering;
// the code carries the real outcome.
type Code int

const (
	CodeOK          Code = 0
	CodeBadSign     Code = 1
	CodeBadPayload  Code = 2
	CodeUnknownData Code = 3
	CodeInternal    Code = 4
)

// Settler is the settlement surface ingestion drives.
type Settler interface {
	Complete(ctx context.Context, orderNo string, dispensedML, settledAmount int64) (*models.WaterOrder, error)
	Fail(ctx context.Context, orderNo, reason string) (*models.WaterOrder, error)
}

// Orders looks up and creates order records.
type Orders interface {
	GetByOrderNo(ctx context.Context, orderNo string) (*models.WaterOrder, error)
	CreateDeviceInitiated(ctx context.Context, o *models.WaterOrder) (bool, error)
}

// Devices persists sensor snapshots.
type Devices interface {
	UpdateSnapshot(ctx context.Context, deviceNo string, tds, temperatureC int64, at time.Time) error
}

// ShareEngine applies the revenue split to device-initiated records, which
// are born completed and never pass through the settlement transition.
type ShareEngine interface {
	Apply(ctx context.Context, order *models.WaterOrder) error
}

// Service is the ingestion pipeline.
type Service struct {
	appkey  string
	settler Settler
	orders  Orders
	devices Devices
	shares  ShareEngine
	metrics *metrics.Set
	logger  *zap.Logger
}

// NewService builds the pipeline. appkey is the shared secret notifications
// are signed with.
func NewService(
	appkey string,
	settler Settler,
	orders Orders,
	devices Devices,
	shares ShareEngine,
	set *metrics.Set,
	logger *zap.Logger,
) *Service {
	return &Service{
		appkey:  appkey,
		settler: settler,
		orders:  orders,
		devices: devices,
		shares:  shares,
		metrics: set,
		logger:  logger,
	}
}

// Handle verifies one raw push body and dispatches it by data type.
func (s *Service) Handle(ctx context.Context, raw []byte) Code {
	n, err := protocol.VerifyNotification(raw, s.appkey)
	if err != nil {
		if errors.Is(err, protocol.ErrSignatureInvalid) {
			s.metrics.RejectedSignatures.Inc()
			s.logger.Warn("push signature rejected")
			return CodeBadSign
		}
		s.logger.Warn("push payload rejected", zap.Error(err))
		return CodeBadPayload
	}

	switch n.DataType {
	case protocol.DataTypeCardless, protocol.DataTypeECard:
		return s.handleOrderResult(ctx, n)
	case protocol.DataTypeCoin, protocol.DataTypeCardSwipe:
		return s.handleDeviceInitiated(ctx, n)
	case protocol.DataTypeSnapshot:
		return s.handleSnapshot(ctx, n)
	default:
		s.logger.Warn("unknown data_type", zap.Int("data_type", int(n.DataType)))
		return CodeUnknownData
	}
}

// handleOrderResult settles an order this process (or a peer) created: the
// correlation id in the push matches the RE field of the issued command.
func (s *Service) handleOrderResult(ctx context.Context, n *protocol.Notification) Code {
	if n.OrderNo == "" {
		return CodeBadPayload
	}

	order, err := s.orders.GetByOrderNo(ctx, n.OrderNo)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			s.logger.Warn("push for unknown order", zap.String("order_no", n.OrderNo))
			return CodeBadPayload
		}
		return s.internal(err, n.OrderNo)
	}
	if order.Status.Terminal() {
		s.logger.Debug("duplicate push acknowledged", zap.String("order_no", n.OrderNo))
		return CodeOK
	}

	if !n.Success() {
		if _, err := s.settler.Fail(ctx, order.OrderNo, settlement.ReasonDeviceReported); err != nil &&
			!errors.Is(err, models.ErrAlreadySettled) {
			return s.internal(err, order.OrderNo)
		}
		return CodeOK
	}

	settled := order.Amount
	if order.Mode == models.ModeMaxBalance {
		settled = n.Cash
		if settled > order.Amount {
			settled = order.Amount
		}
		if settled < 0 {
			settled = 0
		}
	}
	dispensed := n.Volume
	if dispensed <= 0 {
		dispensed = order.RequestedML
	}

	// Completion records the maximum-balance differential for the sweeper
	// in the same transaction as the status flip, so a crash or redelivery
	// after this point can no longer lose the owed refund.
	if _, err := s.settler.Complete(ctx, order.OrderNo, dispensed, settled); err != nil &&
		!errors.Is(err, models.ErrAlreadySettled) {
		return s.internal(err, order.OrderNo)
	}
	return CodeOK
}

// handleDeviceInitiated records dispenses the device started without a prior
// client request (coin box, anonymous card). The record is born completed;
// the deterministic order number makes duplicated pushes no-ops.
func (s *Service) handleDeviceInitiated(ctx context.Context, n *protocol.Notification) Code {
	if !n.Success() {
		s.logger.Info("device-initiated dispense failed on hardware",
			zap.String("device_no", n.DeviceNo))
		return CodeOK
	}

	orderNo := n.OrderNo
	if orderNo == "" {
		orderNo = fmt.Sprintf("%s-%d-%d", n.DeviceNo, n.DataType, n.WaterTime)
	}

	order := &models.WaterOrder{
		OrderNo:       orderNo,
		DeviceNo:      n.DeviceNo,
		Mode:          models.ModeFixedVolume,
		RequestedML:   n.Volume,
		DispensedML:   n.Volume,
		Amount:        n.Cash,
		SettledAmount: n.Cash,
		BalanceBefore: n.StartBalance,
		BalanceAfter:  n.EndBalance,
		Status:        models.OrderCompleted,
	}

	created, err := s.orders.CreateDeviceInitiated(ctx, order)
	if err != nil {
		return s.internal(err, orderNo)
	}
	if !created {
		s.logger.Debug("duplicate device-initiated push acknowledged",
			zap.String("order_no", orderNo))
		return CodeOK
	}

	s.metrics.Settlements.WithLabelValues(string(models.OrderCompleted)).Inc()
	if err := s.shares.Apply(ctx, order); err != nil {
		s.logger.Error("profit sharing failed for device-initiated order",
			zap.String("order_no", orderNo), zap.Error(err))
		return CodeInternal
	}
	return CodeOK
}

func (s *Service) handleSnapshot(ctx context.Context, n *protocol.Notification) Code {
	if err := s.devices.UpdateSnapshot(ctx, n.DeviceNo, n.TDS, n.TemperatureC, time.Now().UTC()); err != nil {
		return s.internal(err, "")
	}
	return CodeOK
}

func (s *Service) internal(err error, orderNo string) Code {
	s.logger.Error("push processing failed",
		zap.String("order_no", orderNo), zap.Error(err))
	return CodeInternal
}
