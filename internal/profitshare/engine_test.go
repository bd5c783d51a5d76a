package profitshare

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/andyyen817/ATMWater-BACKEND--sub000/internal/models"
)

// memShareStore applies the callback against an in-memory aggregate the way
// the SQL store does under its row lock, including the per-order claim that
// makes re-application a no-op.
type memShareStore struct {
	aggregates map[string]*models.MonthlySalesAggregate
	entries    []models.ProfitLedgerEntry
	credits    map[int64]int64
	applied    map[string]bool
}

func newMemShareStore() *memShareStore {
	return &memShareStore{
		aggregates: make(map[string]*models.MonthlySalesAggregate),
		credits:    make(map[int64]int64),
		applied:    make(map[string]bool),
	}
}

func (s *memShareStore) ApplyWithinMonth(_ context.Context, orderNo, deviceNo, month string, threshold int64,
	apply func(prior models.MonthlySalesAggregate) (Application, error)) (bool, error) {
	if s.applied[orderNo] {
		return false, nil
	}

	key := deviceNo + "/" + month
	agg, ok := s.aggregates[key]
	if !ok {
		agg = &models.MonthlySalesAggregate{
			DeviceNo:        deviceNo,
			Month:           month,
			FreeThresholdML: threshold,
		}
		s.aggregates[key] = agg
	}

	app, err := apply(*agg)
	if err != nil {
		return false, err
	}

	agg.VolumeML += app.VolumeDeltaML
	agg.Revenue += app.RevenueDelta
	agg.SharedML += app.SharedDeltaML
	s.entries = append(s.entries, app.Entries...)
	for _, c := range app.Credits {
		s.credits[c.AccountID] += c.Amount
	}
	s.applied[orderNo] = true
	return true, nil
}

type memDevices struct {
	device *models.Device
}

func (d *memDevices) GetByNo(_ context.Context, deviceNo string) (*models.Device, error) {
	if d.device == nil || d.device.DeviceNo != deviceNo {
		return nil, models.ErrNotFound
	}
	return d.device, nil
}

func completedOrder(orderNo string, amount, volumeML int64, at time.Time) *models.WaterOrder {
	o := &models.WaterOrder{
		OrderNo:       orderNo,
		DeviceNo:      "WD-0042",
		SettledAmount: amount,
		DispensedML:   volumeML,
		Status:        models.OrderCompleted,
	}
	o.CompletedAt.Time = at
	o.CompletedAt.Valid = true
	return o
}

func TestEngineAppliesSplitAcrossOrders(t *testing.T) {
	store := newMemShareStore()
	devices := &memDevices{device: &models.Device{
		DeviceNo:        "WD-0042",
		OperatorAccount: 11,
		PartnerAccount:  12,
		FreeThresholdML: 1000,
		OperatorShare:   400,
		PartnerShare:    300,
	}}
	engine := NewEngine(store, devices, 99, zap.NewNop())

	at := time.Date(2026, 8, 15, 12, 0, 0, 0, time.UTC)

	// First order stays entirely inside the free allotment.
	require.NoError(t, engine.Apply(context.Background(), completedOrder("ord-1", 6000, 600, at)))
	assert.EqualValues(t, 0, store.credits[11])
	assert.EqualValues(t, 0, store.credits[12])
	assert.EqualValues(t, 6000, store.credits[99])

	// Second order straddles the threshold: 200 of its 600 ml are shared.
	require.NoError(t, engine.Apply(context.Background(), completedOrder("ord-2", 6000, 600, at)))
	assert.EqualValues(t, 800, store.credits[11])
	assert.EqualValues(t, 600, store.credits[12])
	assert.EqualValues(t, 6000+4600, store.credits[99])

	agg := store.aggregates["WD-0042/202608"]
	require.NotNil(t, agg)
	assert.EqualValues(t, 1200, agg.VolumeML)
	assert.EqualValues(t, 12000, agg.Revenue)
	assert.EqualValues(t, 200, agg.SharedML)

	// Credits plus unaccounted remainders always reproduce total revenue.
	var total int64
	for _, amount := range store.credits {
		total += amount
	}
	assert.EqualValues(t, 12000, total)
}

func TestEngineSplitsByCompletionMonth(t *testing.T) {
	store := newMemShareStore()
	devices := &memDevices{device: &models.Device{DeviceNo: "WD-0042", FreeThresholdML: 1000}}
	engine := NewEngine(store, devices, 99, zap.NewNop())

	jan := time.Date(2026, 1, 31, 23, 0, 0, 0, time.UTC)
	feb := time.Date(2026, 2, 1, 1, 0, 0, 0, time.UTC)

	require.NoError(t, engine.Apply(context.Background(), completedOrder("ord-1", 1000, 500, jan)))
	require.NoError(t, engine.Apply(context.Background(), completedOrder("ord-2", 1000, 500, feb)))

	assert.Len(t, store.aggregates, 2)
	assert.EqualValues(t, 500, store.aggregates["WD-0042/202601"].VolumeML)
	assert.EqualValues(t, 500, store.aggregates["WD-0042/202602"].VolumeML)
}

func TestEngineSkipsZeroBeneficiaryAccounts(t *testing.T) {
	store := newMemShareStore()
	// No operator or partner account configured: everything lands on HQ.
	devices := &memDevices{device: &models.Device{DeviceNo: "WD-0042"}}
	engine := NewEngine(store, devices, 99, zap.NewNop())

	at := time.Date(2026, 8, 15, 12, 0, 0, 0, time.UTC)
	require.NoError(t, engine.Apply(context.Background(), completedOrder("ord-1", 1000, 500, at)))

	require.Len(t, store.entries, 1)
	assert.Equal(t, models.BeneficiaryHeadquarters, store.entries[0].Beneficiary)
	assert.EqualValues(t, 1000, store.credits[99])
}

func TestEngineReapplyIsNoOp(t *testing.T) {
	store := newMemShareStore()
	devices := &memDevices{device: &models.Device{DeviceNo: "WD-0042"}}
	engine := NewEngine(store, devices, 99, zap.NewNop())

	at := time.Date(2026, 8, 15, 12, 0, 0, 0, time.UTC)
	order := completedOrder("ord-1", 1000, 500, at)

	require.NoError(t, engine.Apply(context.Background(), order))
	require.NoError(t, engine.Apply(context.Background(), order))

	assert.Len(t, store.entries, 1)
	assert.EqualValues(t, 1000, store.credits[99])
	assert.EqualValues(t, 500, store.aggregates["WD-0042/202608"].VolumeML)
}

func TestEngineUnknownDevice(t *testing.T) {
	engine := NewEngine(newMemShareStore(), &memDevices{}, 99, zap.NewNop())
	err := engine.Apply(context.Background(), completedOrder("ord-1", 1000, 500, time.Now()))
	assert.ErrorIs(t, err, models.ErrNotFound)
}
