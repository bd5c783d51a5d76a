// Package profitshare computes the tiered revenue split for settled orders
// and maintains the per-device monthly aggregates.
package profitshare

import "github.com/andyyen817/ATMWater-BACKEND--sub000/internal/models"

// Ratios are the revenue-sharing cuts, in permille of the shared portion.
// The remainder of the shared portion, all floor-rounding remainders, and
// the whole free-threshold portion go to headquarters.
type Ratios struct {
	OperatorPermille int64
	PartnerPermille  int64
}

// Split is the outcome of splitting one order's settled amount.
type Split struct {
	SharedAmount int64 // part of the amount in the revenue-shared tier
	FreeAmount   int64 // part still inside the free monthly allotment
	SharedML     int64 // volume above the threshold
	Operator     int64
	Partner      int64
	Headquarters int64 // free portion + shared remainder + rounding
}

// SplitAmount splits amount across beneficiaries given the aggregate volume
// already recorded this month (prior), this order's volume, and the free
// threshold in effect. When the order straddles the threshold the amount is
// prorated by the fraction of volume above it. Per-beneficiary amounts round
// down; the remainder lands on headquarters so the split always sums to
// amount exactly.
func SplitAmount(amount, volumeML, priorML, thresholdML int64, r Ratios) Split {
	var split Split

	switch {
	case volumeML <= 0 || amount <= 0:
		split.Headquarters = amount
		split.FreeAmount = amount
		return split
	case priorML >= thresholdML:
		split.SharedAmount = amount
		split.SharedML = volumeML
	case priorML+volumeML <= thresholdML:
		split.SharedAmount = 0
	default:
		split.SharedML = priorML + volumeML - thresholdML
		split.SharedAmount = amount * split.SharedML / volumeML
	}

	split.FreeAmount = amount - split.SharedAmount
	split.Operator = split.SharedAmount * r.OperatorPermille / 1000
	split.Partner = split.SharedAmount * r.PartnerPermille / 1000
	split.Headquarters = amount - split.Operator - split.Partner
	return split
}

// Credit is one beneficiary account credit.
type Credit struct {
	AccountID int64
	Amount    int64
}

// Application is the full effect of one order on the month: aggregate
// increments, ledger entries, and account credits. A store commits all of it
// atomically.
type Application struct {
	VolumeDeltaML int64
	RevenueDelta  int64
	SharedDeltaML int64
	Entries       []models.ProfitLedgerEntry
	Credits       []Credit
}
