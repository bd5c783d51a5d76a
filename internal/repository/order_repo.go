package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/andyyen817/ATMWater-BACKEND--sub000/internal/models"
)

const orderColumns = `
	id, order_no, account_id, device_no, water_type, mode,
	requested_ml, dispensed_ml, amount, settled_amount,
	balance_before, balance_after, status, fail_reason,
	shared_at, created_at, completed_at
`

func scanOrder(row interface {
	Scan(dest ...interface{}) error
}) (*models.WaterOrder, error) {
	var o models.WaterOrder
	err := row.Scan(
		&o.ID, &o.OrderNo, &o.AccountID, &o.DeviceNo, &o.WaterType, &o.Mode,
		&o.RequestedML, &o.DispensedML, &o.Amount, &o.SettledAmount,
		&o.BalanceBefore, &o.BalanceAfter, &o.Status, &o.FailReason,
		&o.SharedAt, &o.CreatedAt, &o.CompletedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}

// OrderRepository reads water orders.
type OrderRepository struct {
	db *sql.DB
}

// NewOrderRepository returns repository.
func NewOrderRepository(db *sql.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

// GetByOrderNo fetches an order by its correlation id.
func (r *OrderRepository) GetByOrderNo(ctx context.Context, orderNo string) (*models.WaterOrder, error) {
	query := `SELECT ` + orderColumns + ` FROM water_orders WHERE order_no = $1`
	return scanOrder(r.db.QueryRowContext(ctx, query, orderNo))
}

// MarkDispensing moves a pending order to dispensing after the device
// accepted the command. Best effort: a no-op if the order already settled.
func (r *OrderRepository) MarkDispensing(ctx context.Context, orderNo string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE water_orders SET status = $2 WHERE order_no = $1 AND status = $3`,
		orderNo, models.OrderDispensing, models.OrderPending)
	return err
}

// ListLive returns orders that have not reached a terminal state yet, oldest
// first. Used at startup to re-arm safety timers lost with the process.
func (r *OrderRepository) ListLive(ctx context.Context, limit int) ([]*models.WaterOrder, error) {
	query := `SELECT ` + orderColumns + `
		FROM water_orders
		WHERE status IN ($1, $2)
		ORDER BY created_at
		LIMIT $3`
	return r.listOrders(ctx, query, models.OrderPending, models.OrderDispensing, limit)
}

// ListUnshared returns completed orders whose revenue split never committed,
// oldest first. The sweeper re-runs the split for them.
func (r *OrderRepository) ListUnshared(ctx context.Context, limit int) ([]*models.WaterOrder, error) {
	query := `SELECT ` + orderColumns + `
		FROM water_orders
		WHERE status = $1 AND shared_at IS NULL
		ORDER BY completed_at
		LIMIT $2`
	return r.listOrders(ctx, query, models.OrderCompleted, limit)
}

func (r *OrderRepository) listOrders(ctx context.Context, query string, args ...interface{}) ([]*models.WaterOrder, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []*models.WaterOrder
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	return orders, rows.Err()
}

// CreateDeviceInitiated inserts a standalone completed order for a dispense
// the device started on its own (coin, anonymous card). The unique order_no
// makes duplicated vendor pushes collapse to no-ops; the bool reports
// whether a row was actually created.
func (r *OrderRepository) CreateDeviceInitiated(ctx context.Context, o *models.WaterOrder) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO water_orders (
			order_no, account_id, device_no, water_type, mode,
			requested_ml, dispensed_ml, amount, settled_amount,
			balance_before, balance_after, status, fail_reason,
			created_at, completed_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, '', NOW(), NOW())
		ON CONFLICT (order_no) DO NOTHING
	`,
		o.OrderNo, o.AccountID, o.DeviceNo, o.WaterType, o.Mode,
		o.RequestedML, o.DispensedML, o.Amount, o.SettledAmount,
		o.BalanceBefore, o.BalanceAfter, models.OrderCompleted,
	)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}
