package money

import "github.com/shopspring/decimal"

var (
	// Epsilon is the tolerance used for every monetary equality check.
	Epsilon = decimal.New(1, -2)
	// PlatformFeeRate is the share of a tip retained by the platform.
	PlatformFeeRate = decimal.New(5, -2)

	hundred = decimal.NewFromInt(100)
)

// Round rounds to cents.
func Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// Equal compares two amounts within one cent.
func Equal(a, b decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThan(Epsilon)
}

// ToMinor converts an amount to integer minor units (cents) as sent to the gateway.
func ToMinor(d decimal.Decimal) int64 {
	return d.Mul(hundred).Round(0).IntPart()
}

// FromMinor converts gateway minor units back to a decimal amount.
func FromMinor(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}

// SplitFee returns the net amount credited to a tip recipient and the platform fee levied on it.
func SplitFee(gross decimal.Decimal) (net, fee decimal.Decimal) {
	fee = Round(gross.Mul(PlatformFeeRate))
	net = Round(gross).Sub(fee)
	return net, fee
}

// Sum adds up amounts.
func Sum(amounts ...decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, a := range amounts {
		total = total.Add(a)
	}
	return total
}
