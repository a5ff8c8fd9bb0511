package types

import "github.com/shopspring/decimal"

// MoneyPlaces is the scale of every persisted amount.
const MoneyPlaces = 2

// ClampZero returns v, or zero when v is negative.
func ClampZero(v decimal.Decimal) decimal.Decimal {
	if v.IsNegative() {
		return decimal.Zero
	}
	return v
}

// RoundMoney rounds half away from zero to cents.
func RoundMoney(v decimal.Decimal) decimal.Decimal {
	return v.Round(MoneyPlaces)
}

// FormatMoney renders v with exactly two decimals.
func FormatMoney(v decimal.Decimal) string {
	return v.StringFixed(MoneyPlaces)
}

// IsMoney reports whether v carries no more than two decimals.
func IsMoney(v decimal.Decimal) bool {
	return v.Equal(v.Round(MoneyPlaces))
}
