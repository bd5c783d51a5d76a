// Package pricing reads the regional price table. Pricing is owned
// elsewhere; this core only resolves the unit price for a device and water
// type, falling back to the device's own configured price when no regional
// row exists.
package pricing

import (
	"context"
	"database/sql"
	"errors"

	"github.com/andyyen817/ATMWater-BACKEND--sub000/internal/models"
)

// Resolver resolves unit prices, in minor units per liter.
type Resolver struct {
	db *sql.DB
}

// NewResolver returns resolver.
func NewResolver(db *sql.DB) *Resolver {
	return &Resolver{db: db}
}

// UnitPrice returns the price per liter for the device/water-type pair.
func (r *Resolver) UnitPrice(ctx context.Context, deviceNo string, waterType int) (int64, error) {
	var price int64
	err := r.db.QueryRowContext(ctx, `
		SELECT price_per_liter FROM water_prices
		WHERE device_no = $1 AND water_type = $2
	`, deviceNo, waterType).Scan(&price)
	if err == nil {
		return price, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, err
	}

	err = r.db.QueryRowContext(ctx,
		`SELECT price_per_liter FROM devices WHERE device_no = $1`,
		deviceNo).Scan(&price)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, models.ErrNotFound
	}
	if err != nil {
		return 0, err
	}
	return price, nil
}
