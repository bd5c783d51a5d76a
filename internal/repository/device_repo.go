package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/andyyen817/ATMWater-BACKEND--sub000/internal/models"
)

// DeviceRepository reads and updates vending devices.
type DeviceRepository struct {
	db *sql.DB
}

// NewDeviceRepository returns repository.
func NewDeviceRepository(db *sql.DB) *DeviceRepository {
	return &DeviceRepository{db: db}
}

const deviceColumns = `
	id, device_no, secret, price_per_liter, pulses_per_liter,
	operator_account_id, partner_account_id, free_threshold_ml,
	operator_share_permille, partner_share_permille,
	COALESCE(last_heartbeat_at, 'epoch'), tds, temperature_c
`

// GetByNo fetches a device by its hardware number.
func (r *DeviceRepository) GetByNo(ctx context.Context, deviceNo string) (*models.Device, error) {
	query := `SELECT ` + deviceColumns + ` FROM devices WHERE device_no = $1`
	var d models.Device
	err := r.db.QueryRowContext(ctx, query, deviceNo).Scan(
		&d.ID, &d.DeviceNo, &d.Secret, &d.PricePerLiter, &d.PulsesPerLiter,
		&d.OperatorAccount, &d.PartnerAccount, &d.FreeThresholdML,
		&d.OperatorShare, &d.PartnerShare,
		&d.LastHeartbeatAt, &d.TDS, &d.TemperatureC,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// TouchHeartbeat refreshes the device's last heartbeat timestamp.
func (r *DeviceRepository) TouchHeartbeat(ctx context.Context, deviceNo string, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE devices SET last_heartbeat_at = $2 WHERE device_no = $1`,
		deviceNo, at)
	return err
}

// UpdateSnapshot stores the latest sensor readings.
func (r *DeviceRepository) UpdateSnapshot(ctx context.Context, deviceNo string, tds, temperatureC int64, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE devices SET tds = $2, temperature_c = $3, last_heartbeat_at = $4 WHERE device_no = $1`,
		deviceNo, tds, temperatureC, at)
	return err
}
