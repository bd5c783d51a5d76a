package profitshare

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitAmountBelowThreshold(t *testing.T) {
	s := SplitAmount(6000, 600, 0, 1000, Ratios{OperatorPermille: 400, PartnerPermille: 300})

	assert.EqualValues(t, 0, s.SharedAmount)
	assert.EqualValues(t, 6000, s.FreeAmount)
	assert.EqualValues(t, 0, s.Operator)
	assert.EqualValues(t, 0, s.Partner)
	assert.EqualValues(t, 6000, s.Headquarters)
}

func TestSplitAmountFullyAboveThreshold(t *testing.T) {
	s := SplitAmount(6000, 600, 1500, 1000, Ratios{OperatorPermille: 400, PartnerPermille: 300})

	assert.EqualValues(t, 6000, s.SharedAmount)
	assert.EqualValues(t, 600, s.SharedML)
	assert.EqualValues(t, 2400, s.Operator)
	assert.EqualValues(t, 1800, s.Partner)
	assert.EqualValues(t, 1800, s.Headquarters)
}

func TestSplitAmountStraddlingThreshold(t *testing.T) {
	// 600 ml on top of 600 prior with a 1000 ml threshold: 200 ml above,
	// so one third of the amount enters the shared tier.
	s := SplitAmount(6000, 600, 600, 1000, Ratios{OperatorPermille: 400, PartnerPermille: 300})

	assert.EqualValues(t, 200, s.SharedML)
	assert.EqualValues(t, 2000, s.SharedAmount)
	assert.EqualValues(t, 4000, s.FreeAmount)
	assert.EqualValues(t, 800, s.Operator)
	assert.EqualValues(t, 600, s.Partner)
	assert.EqualValues(t, 4600, s.Headquarters)
}

func TestSplitAmountRoundingRemainderGoesToHeadquarters(t *testing.T) {
	s := SplitAmount(1001, 500, 9999, 1000, Ratios{OperatorPermille: 333, PartnerPermille: 333})

	assert.EqualValues(t, 333, s.Operator)
	assert.EqualValues(t, 333, s.Partner)
	assert.EqualValues(t, 335, s.Headquarters)
	assert.EqualValues(t, 1001, s.Operator+s.Partner+s.Headquarters)
}

func TestSplitAmountConservation(t *testing.T) {
	ratios := Ratios{OperatorPermille: 450, PartnerPermille: 250}
	cases := []struct {
		amount, volume, prior, threshold int64
	}{
		{7, 3, 0, 10},
		{999, 1000, 500, 1000},
		{123456, 7890, 1234, 5000},
		{1, 1, 0, 0},
	}
	for _, c := range cases {
		s := SplitAmount(c.amount, c.volume, c.prior, c.threshold, ratios)
		assert.EqualValues(t, c.amount, s.Operator+s.Partner+s.Headquarters,
			"split must conserve the settled amount")
		assert.EqualValues(t, c.amount, s.SharedAmount+s.FreeAmount)
	}
}

func TestSplitAmountZeroVolume(t *testing.T) {
	s := SplitAmount(500, 0, 0, 1000, Ratios{OperatorPermille: 400, PartnerPermille: 300})

	assert.EqualValues(t, 0, s.SharedAmount)
	assert.EqualValues(t, 500, s.Headquarters)
}
