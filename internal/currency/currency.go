// Package currency converts between the decimal amount strings users see
// and the integer base-unit representation the payment hub settles in.
// All balance arithmetic happens on the integer representation, never on
// floats.
package currency

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// Decimals is the number of base units per whole token, hub convention.
const Decimals = 18

// Amount is a non-negative fixed-point amount. The zero value is zero.
type Amount struct {
	wei *big.Int
}

func Zero() Amount {
	return Amount{wei: new(big.Int)}
}

// Parse converts a decimal string like "0.10" into an Amount. Fractional
// digits beyond the base-unit precision are truncated.
func Parse(s string) (Amount, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Amount{}, fmt.Errorf("invalid amount %q: %v", s, err)
	}
	if d.IsNegative() {
		return Amount{}, fmt.Errorf("invalid amount %q: negative", s)
	}
	return Amount{wei: d.Shift(Decimals).BigInt()}, nil
}

func MustParse(s string) Amount {
	a, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return a
}

// FromWei wraps an integer base-unit value. The value is copied.
func FromWei(w *big.Int) Amount {
	return Amount{wei: new(big.Int).Set(w)}
}

// Wei returns a copy of the integer base-unit value.
func (a Amount) Wei() *big.Int {
	return new(big.Int).Set(a.weiOrZero())
}

func (a Amount) weiOrZero() *big.Int {
	if a.wei == nil {
		return new(big.Int)
	}
	return a.wei
}

func (a Amount) Add(b Amount) Amount {
	return Amount{wei: new(big.Int).Add(a.weiOrZero(), b.weiOrZero())}
}

func (a Amount) Sub(b Amount) Amount {
	return Amount{wei: new(big.Int).Sub(a.weiOrZero(), b.weiOrZero())}
}

func (a Amount) Cmp(b Amount) int {
	return a.weiOrZero().Cmp(b.weiOrZero())
}

func (a Amount) LessThan(b Amount) bool {
	return a.Cmp(b) < 0
}

func (a Amount) GreaterThan(b Amount) bool {
	return a.Cmp(b) > 0
}

func (a Amount) IsZero() bool {
	return a.weiOrZero().Sign() == 0
}

func (a Amount) IsPositive() bool {
	return a.weiOrZero().Sign() > 0
}

// String formats the amount as a decimal string without trailing zeros,
// e.g. "0.1" for a tenth of a token.
func (a Amount) String() string {
	return decimal.NewFromBigInt(a.weiOrZero(), -Decimals).String()
}
