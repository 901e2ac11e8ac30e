// Package money provides exact decimal amounts and asset precision (spec.md
// 3.1, 3.2; SPEC_FULL 12.1).
package money

import (
	"strings"

	"github.com/shopspring/decimal"

	kerr "github.com/apex-ledger/kernel/internal/errors"
)

// AssetCode is an opaque, uppercase ASCII asset identifier (e.g. "USDT").
type AssetCode string

// Valid reports whether a is a syntactically valid asset code: non-empty,
// ASCII, uppercase letters and digits only.
func (a AssetCode) Valid() bool {
	if a == "" {
		return false
	}
	for _, r := range string(a) {
		if !((r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')) {
			return false
		}
	}
	return true
}

func (a AssetCode) String() string { return string(a) }

// precisionTable centralizes the AssetCode -> fractional-digit precision
// mapping that spec.md section 9 flags as referenced but not tabulated.
var precisionTable = map[AssetCode]int32{
	"USDT": 6,
	"BTC":  8,
	"ETH":  18,
	"VND":  0,
}

// Precision returns the configured fractional precision for asset, and
// whether the asset is registered at all.
func Precision(asset AssetCode) (int32, bool) {
	p, ok := precisionTable[asset]
	return p, ok
}

// RegisterAsset adds or overrides an asset's precision. Intended for test
// setup and for extending the table without a kernel release when the
// asset's behavior is otherwise standard (see spec.md 3.3 on DOMAIN
// extensibility requiring a kernel release; ASSET precision does not).
func RegisterAsset(asset AssetCode, precision int32) {
	precisionTable[asset] = precision
}

// Amount is a non-negative exact decimal quantity, bounded by its asset's
// registered precision. The zero value is not a valid Amount; use Zero(asset).
type Amount struct {
	asset AssetCode
	value decimal.Decimal
}

// Zero returns the zero amount for asset.
func Zero(asset AssetCode) Amount {
	return Amount{asset: asset, value: decimal.Zero}
}

// New constructs an Amount from a decimal string, validating against the
// asset's registered precision. The amount may be zero (used by postings
// validation elsewhere to additionally require > 0 where needed).
func New(asset AssetCode, literal string) (Amount, error) {
	if !asset.Valid() {
		return Amount{}, kerr.InvalidAccountKey(string(asset), "asset code must be uppercase ASCII")
	}
	precision, ok := Precision(asset)
	if !ok {
		return Amount{}, kerr.UnknownAsset(string(asset))
	}
	d, err := decimal.NewFromString(strings.TrimSpace(literal))
	if err != nil {
		return Amount{}, kerr.New(kerr.CodeAmountNotPositive, "amount is not a valid decimal").WithDetail("literal", literal)
	}
	if d.IsNegative() {
		return Amount{}, kerr.New(kerr.CodeAmountNotPositive, "amount must not be negative").WithDetail("literal", literal)
	}
	if -d.Exponent() > precision {
		return Amount{}, kerr.PrecisionExceeded(string(asset), int(precision))
	}
	return Amount{asset: asset, value: d}, nil
}

// Asset returns the amount's asset code.
func (a Amount) Asset() AssetCode { return a.asset }

// IsPositive reports whether the amount is strictly greater than zero.
func (a Amount) IsPositive() bool { return a.value.IsPositive() }

// IsZero reports whether the amount is exactly zero.
func (a Amount) IsZero() bool { return a.value.IsZero() }

// Add returns a + b. Both amounts must share the same asset.
func (a Amount) Add(b Amount) (Amount, error) {
	if a.asset != b.asset {
		return Amount{}, kerr.New(kerr.CodeAccountAssetMismatch, "cannot add amounts of different assets")
	}
	return Amount{asset: a.asset, value: a.value.Add(b.value)}, nil
}

// Sub returns a - b. Both amounts must share the same asset. Overflow into
// a negative result is not itself an error here — callers (risk engine)
// decide whether a negative result is permitted.
func (a Amount) Sub(b Amount) (Amount, error) {
	if a.asset != b.asset {
		return Amount{}, kerr.New(kerr.CodeAccountAssetMismatch, "cannot subtract amounts of different assets")
	}
	return Amount{asset: a.asset, value: a.value.Sub(b.value)}, nil
}

// Cmp compares a to b, which must share a's asset: -1, 0, or 1.
func (a Amount) Cmp(b Amount) int {
	return a.value.Cmp(b.value)
}

// Negative reports whether the amount is below zero (used by the risk
// engine on hypothetical post-application balances).
func (a Amount) Negative() bool { return a.value.IsNegative() }

// Canonical renders the amount with full precision, no trailing-zero
// trimming, and no exponent form, per spec.md 3.7's canonical hashing rule.
func (a Amount) Canonical() string {
	precision, ok := Precision(a.asset)
	if !ok {
		precision = 0
	}
	return a.value.StringFixed(precision)
}

// String implements fmt.Stringer using the canonical representation.
func (a Amount) String() string {
	return a.Canonical()
}
