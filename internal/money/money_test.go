package money

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestSplitFee(t *testing.T) {
	net, fee := SplitFee(decimal.NewFromInt(10))
	assert.True(t, net.Equal(decimal.RequireFromString("9.50")), "net=%s", net)
	assert.True(t, fee.Equal(decimal.RequireFromString("0.50")), "fee=%s", fee)

	net, fee = SplitFee(decimal.RequireFromString("0.50"))
	assert.True(t, net.Add(fee).Equal(decimal.RequireFromString("0.50")))
}

func TestMinorUnits(t *testing.T) {
	assert.Equal(t, int64(1999), ToMinor(decimal.RequireFromString("19.99")))
	assert.Equal(t, int64(1000), ToMinor(decimal.RequireFromString("10.004")))
	assert.True(t, FromMinor(1234).Equal(decimal.RequireFromString("12.34")))
}

func TestEqualWithinOneCent(t *testing.T) {
	assert.True(t, Equal(decimal.RequireFromString("1000"), decimal.RequireFromString("999.995")))
	assert.False(t, Equal(decimal.RequireFromString("1000"), decimal.RequireFromString("999.99")))
	assert.True(t, Sum(decimal.NewFromInt(400), decimal.NewFromInt(600)).Equal(decimal.NewFromInt(1000)))
}
