package repository

import (
	"context"
	"database/sql"

	"github.com/andyyen817/ATMWater-BACKEND--sub000/internal/models"
	"github.com/andyyen817/ATMWater-BACKEND--sub000/internal/profitshare"
)

// ShareStore applies one settled order's revenue split. The aggregate row is
// locked for the duration, so the tier boundary seen by the split callback
// cannot move under a concurrent settlement of the same device and month.
type ShareStore struct {
	db *sql.DB
}

// NewShareStore returns store.
func NewShareStore(db *sql.DB) *ShareStore {
	return &ShareStore{db: db}
}

// ApplyWithinMonth locks (creating on first use) the device's aggregate for
// the month, invokes the split callback with the prior state, and commits
// the aggregate increments, ledger entries and beneficiary credits as one
// transaction. The order's shared_at stamp is claimed in that same
// transaction, so re-applying an already split order is a no-op; the bool
// reports whether this call actually applied.
func (s *ShareStore) ApplyWithinMonth(
	ctx context.Context,
	orderNo, deviceNo, month string,
	threshold int64,
	apply func(prior models.MonthlySalesAggregate) (profitshare.Application, error),
) (bool, error) {
	applied := false
	err := withinTx(ctx, s.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE water_orders SET shared_at = NOW()
			WHERE order_no = $1 AND shared_at IS NULL
		`, orderNo)
		if err != nil {
			return err
		}
		claimed, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if claimed == 0 {
			return nil
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO monthly_sales_aggregates (device_no, month, volume_ml, revenue, free_threshold_ml, shared_ml)
			VALUES ($1, $2, 0, 0, $3, 0)
			ON CONFLICT (device_no, month) DO NOTHING
		`, deviceNo, month, threshold); err != nil {
			return err
		}

		var agg models.MonthlySalesAggregate
		if err := tx.QueryRowContext(ctx, `
			SELECT device_no, month, volume_ml, revenue, free_threshold_ml, shared_ml
			FROM monthly_sales_aggregates
			WHERE device_no = $1 AND month = $2
			FOR UPDATE
		`, deviceNo, month).Scan(
			&agg.DeviceNo, &agg.Month, &agg.VolumeML, &agg.Revenue,
			&agg.FreeThresholdML, &agg.SharedML,
		); err != nil {
			return err
		}

		app, err := apply(agg)
		if err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE monthly_sales_aggregates
			SET volume_ml = volume_ml + $3,
			    revenue = revenue + $4,
			    shared_ml = shared_ml + $5
			WHERE device_no = $1 AND month = $2
		`, deviceNo, month, app.VolumeDeltaML, app.RevenueDelta, app.SharedDeltaML); err != nil {
			return err
		}

		for _, entry := range app.Entries {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO profit_ledger_entries (order_no, account_id, beneficiary, class, amount, month, created_at)
				VALUES ($1, $2, $3, $4, $5, $6, NOW())
			`, entry.OrderNo, entry.AccountID, entry.Beneficiary, entry.Class, entry.Amount, entry.Month); err != nil {
				return err
			}
		}

		for _, credit := range app.Credits {
			if _, err := tx.ExecContext(ctx,
				`UPDATE accounts SET balance = balance + $2 WHERE id = $1`,
				credit.AccountID, credit.Amount); err != nil {
				return err
			}
		}
		applied = true
		return nil
	})
	return applied, err
}
