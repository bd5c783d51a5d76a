package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/andyyen817/ATMWater-BACKEND--sub000/internal/models"
)

// SettlementStore flips orders into their terminal states. Both operations
// use a status-guarded UPDATE, so a duplicated event or a racing safety
// timer sees zero affected rows and becomes a no-op instead of a second
// mutation.
type SettlementStore struct {
	db *sql.DB
}

// NewSettlementStore returns store.
func NewSettlementStore(db *sql.DB) *SettlementStore {
	return &SettlementStore{db: db}
}

func classifyMiss(ctx context.Context, q interface {
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}, orderNo string) error {
	var status models.OrderStatus
	err := q.QueryRowContext(ctx,
		`SELECT status FROM water_orders WHERE order_no = $1`, orderNo).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return models.ErrNotFound
	}
	if err != nil {
		return err
	}
	if status.Terminal() {
		return models.ErrAlreadySettled
	}
	return models.ErrNotFound
}

// CompletePending moves a live order to completed, stamping the final volume,
// settled amount and completion time. For a maximum-balance order the owed
// differential is recorded as a refund record in the same transaction: once
// a completion commits, the refund the sweeper must repay is already on
// file, so no later failure can strand it. Returns models.ErrAlreadySettled
// when the order is already terminal.
func (s *SettlementStore) CompletePending(ctx context.Context, orderNo string, dispensedML, settledAmount int64, at time.Time) (*models.WaterOrder, error) {
	var completed *models.WaterOrder
	err := withinTx(ctx, s.db, func(tx *sql.Tx) error {
		query := `
			UPDATE water_orders
			SET status = $2, dispensed_ml = $3, settled_amount = $4, completed_at = $5
			WHERE order_no = $1 AND status IN ($6, $7)
			RETURNING ` + orderColumns
		order, err := scanOrder(tx.QueryRowContext(ctx, query,
			orderNo, models.OrderCompleted, dispensedML, settledAmount, at,
			models.OrderPending, models.OrderDispensing))
		if errors.Is(err, models.ErrNotFound) {
			return classifyMiss(ctx, tx, orderNo)
		}
		if err != nil {
			return err
		}

		if order.Mode == models.ModeMaxBalance {
			if refund := order.Amount - order.SettledAmount; refund > 0 {
				if _, err := tx.ExecContext(ctx, `
					INSERT INTO refund_records (
						order_no, account_id, authorized_amount, actual_amount,
						refund_amount, status, retry_count, last_error, created_at
					)
					VALUES ($1, $2, $3, $4, $5, $6, 0, '', NOW())
					ON CONFLICT (order_no) DO NOTHING
				`, order.OrderNo, order.AccountID, order.Amount, order.SettledAmount,
					refund, models.RefundPending); err != nil {
					return err
				}
			}
		}
		completed = order
		return nil
	})
	if err != nil {
		return nil, err
	}
	return completed, nil
}

// FailPendingAndRefund moves a live order to failed and credits the original
// debit back in the same transaction, so a retried evaluation of the same
// event or timer cannot refund twice.
func (s *SettlementStore) FailPendingAndRefund(ctx context.Context, orderNo, reason string) (*models.WaterOrder, error) {
	var failed *models.WaterOrder
	err := withinTx(ctx, s.db, func(tx *sql.Tx) error {
		query := `
			UPDATE water_orders
			SET status = $2, fail_reason = $3, completed_at = NOW()
			WHERE order_no = $1 AND status IN ($4, $5)
			RETURNING ` + orderColumns
		order, err := scanOrder(tx.QueryRowContext(ctx, query,
			orderNo, models.OrderFailed, reason,
			models.OrderPending, models.OrderDispensing))
		if errors.Is(err, models.ErrNotFound) {
			return classifyMiss(ctx, tx, orderNo)
		}
		if err != nil {
			return err
		}

		if order.AccountID != 0 && order.Amount > 0 {
			if _, err := tx.ExecContext(ctx,
				`UPDATE accounts SET balance = balance + $2 WHERE id = $1`,
				order.AccountID, order.Amount); err != nil {
				return err
			}
		}
		failed = order
		return nil
	})
	if err != nil {
		return nil, err
	}
	return failed, nil
}
