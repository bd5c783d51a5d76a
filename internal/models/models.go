package models

import (
	"database/sql"
	"time"
)

// OrderStatus is the settlement lifecycle of a water order. Completed and
// Failed are terminal; a settled order never changes status again.
type OrderStatus string

const (
	OrderPending    OrderStatus = "pending"
	OrderDispensing OrderStatus = "dispensing"
	OrderCompleted  OrderStatus = "completed"
	OrderFailed     OrderStatus = "failed"
)

// Terminal reports whether the status is absorbing.
func (s OrderStatus) Terminal() bool {
	return s == OrderCompleted || s == OrderFailed
}

// DispenseMode distinguishes fixed-volume orders from maximum-balance orders,
// where the debited amount is a cap settled by a differential refund.
type DispenseMode string

const (
	ModeFixedVolume DispenseMode = "fixed_volume"
	ModeMaxBalance  DispenseMode = "max_balance"
)

// Device is one physical vending unit.
type Device struct {
	ID              int64     `db:"id"`
	DeviceNo        string    `db:"device_no"`
	Secret          string    `db:"secret"`
	PricePerLiter   int64     `db:"price_per_liter"` // minor units
	PulsesPerLiter  int64     `db:"pulses_per_liter"`
	OperatorAccount int64     `db:"operator_account_id"`
	PartnerAccount  int64     `db:"partner_account_id"`
	FreeThresholdML int64     `db:"free_threshold_ml"` // monthly volume before revenue sharing
	OperatorShare   int64     `db:"operator_share_permille"`
	PartnerShare    int64     `db:"partner_share_permille"`
	LastHeartbeatAt time.Time `db:"last_heartbeat_at"`
	TDS             int64     `db:"tds"`
	TemperatureC    int64     `db:"temperature_c"`
}

// Account holds a balance in integer minor units. The balance is only ever
// changed through atomic increment/decrement statements tied to an order.
type Account struct {
	ID      int64  `db:"id"`
	Kind    string `db:"kind"` // user, operator, partner, headquarters
	Balance int64  `db:"balance"`
}

// WaterOrder is the transaction record for one dispense attempt. OrderNo is
// the external correlation id: assigned once at creation, embedded in the
// hardware command, echoed back by the vendor platform, never reused.
type WaterOrder struct {
	ID               int64        `db:"id"`
	OrderNo          string       `db:"order_no"`
	AccountID        int64        `db:"account_id"`
	DeviceNo         string       `db:"device_no"`
	WaterType        int          `db:"water_type"`
	Mode             DispenseMode `db:"mode"`
	RequestedML      int64        `db:"requested_ml"`
	DispensedML      int64        `db:"dispensed_ml"`
	Amount           int64        `db:"amount"`         // debited amount (cap, in max-balance mode)
	SettledAmount    int64        `db:"settled_amount"` // final price, stamped at completion
	BalanceBefore    int64        `db:"balance_before"`
	BalanceAfter     int64        `db:"balance_after"`
	Status           OrderStatus  `db:"status"`
	FailReason       string       `db:"fail_reason"`
	SharedAt         sql.NullTime `db:"shared_at"` // stamped when the revenue split committed
	CreatedAt        time.Time    `db:"created_at"`
	CompletedAt      sql.NullTime `db:"completed_at"`
}

// BeneficiaryKind tags a profit ledger entry with who the money belongs to.
type BeneficiaryKind string

const (
	BeneficiaryOperator     BeneficiaryKind = "operator"
	BeneficiaryPartner      BeneficiaryKind = "partner"
	BeneficiaryHeadquarters BeneficiaryKind = "headquarters"
)

// ShareClass classifies a ledger entry as inside the free monthly allotment
// or part of the revenue-shared tier.
type ShareClass string

const (
	ShareClassFree   ShareClass = "free_threshold"
	ShareClassShared ShareClass = "revenue_shared"
)

// ProfitLedgerEntry is one beneficiary's cut of a settled order. Entries for
// an order always sum to the order's settled amount.
type ProfitLedgerEntry struct {
	ID          int64           `db:"id"`
	OrderNo     string          `db:"order_no"`
	AccountID   int64           `db:"account_id"`
	Beneficiary BeneficiaryKind `db:"beneficiary"`
	Class       ShareClass      `db:"class"`
	Amount      int64           `db:"amount"`
	Month       string          `db:"month"` // YYYYMM
	CreatedAt   time.Time       `db:"created_at"`
}

// MonthlySalesAggregate accumulates one device's month. SharedML is the part
// of VolumeML that has already crossed the free threshold.
type MonthlySalesAggregate struct {
	DeviceNo        string `db:"device_no"`
	Month           string `db:"month"`
	VolumeML        int64  `db:"volume_ml"`
	Revenue         int64  `db:"revenue"`
	FreeThresholdML int64  `db:"free_threshold_ml"`
	SharedML        int64  `db:"shared_ml"`
}

// RefundStatus is the reconciliation lifecycle of a differential refund.
type RefundStatus string

const (
	RefundPending    RefundStatus = "pending"
	RefundProcessing RefundStatus = "processing"
	RefundSuccess    RefundStatus = "success"
	RefundFailed     RefundStatus = "failed"
)

// RefundRecord tracks the differential refund of a maximum-balance dispense
// until the sweeper resolves it.
type RefundRecord struct {
	ID               int64        `db:"id"`
	OrderNo          string       `db:"order_no"`
	AccountID        int64        `db:"account_id"`
	AuthorizedAmount int64        `db:"authorized_amount"`
	ActualAmount     int64        `db:"actual_amount"`
	RefundAmount     int64        `db:"refund_amount"`
	Status           RefundStatus `db:"status"`
	RetryCount       int          `db:"retry_count"`
	LastError        string       `db:"last_error"`
	CreatedAt        time.Time    `db:"created_at"`
	ClaimedAt        sql.NullTime `db:"claimed_at"` // last sweep that took the record
	RefundedAt       sql.NullTime `db:"refunded_at"`
}

// RefundAuditEntry links a finished refund back to its parent order.
type RefundAuditEntry struct {
	ID        string    `db:"id"` // uuid
	OrderNo   string    `db:"order_no"`
	Amount    int64     `db:"amount"`
	CreatedAt time.Time `db:"created_at"`
}
