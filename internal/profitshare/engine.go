package profitshare

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/andyyen817/ATMWater-BACKEND--sub000/internal/models"
)

// Store commits one order's Application under an exclusive lock on the
// device's aggregate for the month. The bool reports whether the order was
// actually applied; false means a previous application already committed.
type Store interface {
	ApplyWithinMonth(ctx context.Context, orderNo, deviceNo, month string, threshold int64,
		apply func(prior models.MonthlySalesAggregate) (Application, error)) (bool, error)
}

// DeviceReader resolves the split configuration of a device.
type DeviceReader interface {
	GetByNo(ctx context.Context, deviceNo string) (*models.Device, error)
}

// Engine applies the revenue split once per settled order. The store claims
// the order's shared_at stamp inside the application transaction, so the
// engine is safe to re-invoke: the settlement transition, a redelivered
// push, and the sweeper's repair pass can all call Apply for the same order
// and exactly one of them splits the money.
type Engine struct {
	store       Store
	devices     DeviceReader
	hqAccountID int64
	logger      *zap.Logger
}

// NewEngine builds the engine. hqAccountID receives the headquarters cut.
func NewEngine(store Store, devices DeviceReader, hqAccountID int64, logger *zap.Logger) *Engine {
	return &Engine{
		store:       store,
		devices:     devices,
		hqAccountID: hqAccountID,
		logger:      logger,
	}
}

// Month formats the calendar month an order settles into.
func Month(t time.Time) string {
	return t.UTC().Format("200601")
}

// Apply splits the order's settled amount and commits aggregate increments,
// ledger entries and beneficiary credits atomically.
func (e *Engine) Apply(ctx context.Context, order *models.WaterOrder) error {
	device, err := e.devices.GetByNo(ctx, order.DeviceNo)
	if err != nil {
		return fmt.Errorf("profitshare: resolve device %s: %w", order.DeviceNo, err)
	}

	settledAt := time.Now()
	if order.CompletedAt.Valid {
		settledAt = order.CompletedAt.Time
	}
	month := Month(settledAt)

	applied, err := e.store.ApplyWithinMonth(ctx, order.OrderNo, device.DeviceNo, month, device.FreeThresholdML,
		func(prior models.MonthlySalesAggregate) (Application, error) {
			split := SplitAmount(
				order.SettledAmount, order.DispensedML,
				prior.VolumeML, prior.FreeThresholdML,
				Ratios{OperatorPermille: device.OperatorShare, PartnerPermille: device.PartnerShare},
			)
			return e.buildApplication(order, device, month, split), nil
		})
	if err != nil {
		return err
	}
	if !applied {
		e.logger.Debug("revenue split already applied",
			zap.String("order_no", order.OrderNo))
		return nil
	}

	e.logger.Info("revenue split applied",
		zap.String("order_no", order.OrderNo),
		zap.String("device_no", order.DeviceNo),
		zap.Int64("amount", order.SettledAmount),
		zap.String("month", month))
	return nil
}

func (e *Engine) buildApplication(order *models.WaterOrder, device *models.Device, month string, split Split) Application {
	app := Application{
		VolumeDeltaML: order.DispensedML,
		RevenueDelta:  order.SettledAmount,
		SharedDeltaML: split.SharedML,
	}

	add := func(accountID int64, kind models.BeneficiaryKind, class models.ShareClass, amount int64) {
		if amount == 0 {
			return
		}
		app.Entries = append(app.Entries, models.ProfitLedgerEntry{
			OrderNo:     order.OrderNo,
			AccountID:   accountID,
			Beneficiary: kind,
			Class:       class,
			Amount:      amount,
			Month:       month,
		})
		if accountID != 0 {
			app.Credits = append(app.Credits, Credit{AccountID: accountID, Amount: amount})
		}
	}

	add(device.OperatorAccount, models.BeneficiaryOperator, models.ShareClassShared, split.Operator)
	add(device.PartnerAccount, models.BeneficiaryPartner, models.ShareClassShared, split.Partner)

	hqClass := models.ShareClassFree
	if split.SharedAmount > 0 {
		hqClass = models.ShareClassShared
	}
	add(e.hqAccountID, models.BeneficiaryHeadquarters, hqClass, split.Headquarters)

	return app
}
