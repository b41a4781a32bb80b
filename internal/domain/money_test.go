package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestMoney_ToDecimal(t *testing.T) {
	m := NewMoney(10_500_000, "USD") // 10.50 USD
	d := m.ToDecimal()
	assert.Equal(t, "10.5", d.String())
}

func TestFromDecimal(t *testing.T) {
	d := decimal.NewFromFloat(10.50)
	micros := FromDecimal(d)
	assert.Equal(t, int64(10_500_000), micros)
}

func TestFeeFor(t *testing.T) {
	// 15% of 100.00 USD -> 15.00 USD
	fee := FeeFor(100_000_000, decimal.NewFromInt(15))
	assert.Equal(t, int64(15_000_000), fee)
}

func TestFeeFor_RoundsDown(t *testing.T) {
	// 15% of 1 micro is 0.15 micros; the fee truncates to zero.
	assert.Equal(t, int64(0), FeeFor(1, decimal.NewFromInt(15)))

	// 2.5% of 33 micros is 0.825 micros.
	rate, err := decimal.NewFromString("2.5")
	assert.NoError(t, err)
	assert.Equal(t, int64(0), FeeFor(33, rate))

	// 2.5% of 1,000,001 micros is 25,000.025 -> 25,000.
	assert.Equal(t, int64(25_000), FeeFor(1_000_001, rate))
}

func TestFeeFor_ZeroPercent(t *testing.T) {
	assert.Equal(t, int64(0), FeeFor(100_000_000, decimal.Zero))
}

func TestMoney_String(t *testing.T) {
	m := NewMoney(1_250_000, "EUR")
	assert.Equal(t, "1.25 EUR", m.String())
}
