package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/andyyen817/ATMWater-BACKEND--sub000/internal/models"
)

// DispenseStore performs the fund reservation for a new order: the balance
// decrement and the pending order insert commit together or not at all.
type DispenseStore struct {
	db *sql.DB
}

// NewDispenseStore returns store.
func NewDispenseStore(db *sql.DB) *DispenseStore {
	return &DispenseStore{db: db}
}

// NewOrder are the gateway-resolved parameters of a dispense.
type NewOrder struct {
	OrderNo     string
	AccountID   int64
	DeviceNo    string
	WaterType   int
	Mode        models.DispenseMode
	RequestedML int64
	Amount      int64
}

// CreatePendingOrder atomically debits the account and inserts the pending
// order, recording the balance snapshot around the debit. Returns
// models.ErrInsufficientBalance without any mutation when the balance does
// not cover the amount.
func (s *DispenseStore) CreatePendingOrder(ctx context.Context, ord NewOrder) (*models.WaterOrder, error) {
	var created *models.WaterOrder
	err := withinTx(ctx, s.db, func(tx *sql.Tx) error {
		// Conditional decrement: the WHERE guard is the authoritative
		// balance check, so a concurrent spend can never drive the
		// balance negative.
		var after int64
		err := tx.QueryRowContext(ctx, `
			UPDATE accounts SET balance = balance - $2
			WHERE id = $1 AND balance >= $2
			RETURNING balance
		`, ord.AccountID, ord.Amount).Scan(&after)
		if errors.Is(err, sql.ErrNoRows) {
			var exists bool
			if err := tx.QueryRowContext(ctx,
				`SELECT EXISTS (SELECT 1 FROM accounts WHERE id = $1)`,
				ord.AccountID).Scan(&exists); err != nil {
				return err
			}
			if !exists {
				return models.ErrNotFound
			}
			return models.ErrInsufficientBalance
		}
		if err != nil {
			return err
		}

		o := &models.WaterOrder{
			OrderNo:       ord.OrderNo,
			AccountID:     ord.AccountID,
			DeviceNo:      ord.DeviceNo,
			WaterType:     ord.WaterType,
			Mode:          ord.Mode,
			RequestedML:   ord.RequestedML,
			Amount:        ord.Amount,
			BalanceBefore: after + ord.Amount,
			BalanceAfter:  after,
			Status:        models.OrderPending,
		}
		err = tx.QueryRowContext(ctx, `
			INSERT INTO water_orders (
				order_no, account_id, device_no, water_type, mode,
				requested_ml, dispensed_ml, amount, settled_amount,
				balance_before, balance_after, status, fail_reason, created_at
			)
			VALUES ($1, $2, $3, $4, $5, $6, 0, $7, 0, $8, $9, $10, '', NOW())
			RETURNING id, created_at
		`,
			o.OrderNo, o.AccountID, o.DeviceNo, o.WaterType, o.Mode,
			o.RequestedML, o.Amount, o.BalanceBefore, o.BalanceAfter, o.Status,
		).Scan(&o.ID, &o.CreatedAt)
		if err != nil {
			return err
		}
		created = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}
