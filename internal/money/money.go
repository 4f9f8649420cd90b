// Package money implements a fixed-point decimal amount so that route
// hop-cost subtraction (amount - total_cost) and allocation math never
// drift the way binary floats do across many additions.
//
// Grounded on the teacher's btcToSats/btcutil.NewAmount helper
// (internal/api/routes.go), which performs correctly-rounded float→integer
// conversion for Bitcoin amounts; New reuses btcutil.NewAmount itself for
// that rounding step and rescales its 1e8 satoshi units down to this
// package's 1e6 "micro-unit" precision, suitable for USD-denominated
// cross-chain amounts.
package money

import (
	"fmt"
	"math"

	"github.com/btcsuite/btcd/btcutil"
)

// Scale is the number of fractional micro-units per whole unit.
const Scale = 1_000_000

// satsPerUnit is btcutil.Amount's fixed-point scale (1 BTC = 1e8 satoshi).
const satsPerUnit = 1e8

// Amount is a fixed-point decimal value stored as micro-units.
type Amount int64

// New converts a float64 amount into an Amount. The correctly-rounded
// float->integer conversion is delegated to btcutil.NewAmount (it rejects
// NaN/Inf and rounds half away from zero at its own 1e8 scale), and the
// result is rescaled onto this package's 1e6 micro-unit grid.
func New(f float64) Amount {
	sats, err := btcutil.NewAmount(f)
	if err != nil {
		return 0
	}
	micro := float64(sats) / satsPerUnit * Scale
	return Amount(math.Round(micro))
}

// Float64 returns the amount as a binary float, for display or for feeding
// into formulas where exactness is not load-bearing (risk scores, ratios).
func (a Amount) Float64() float64 {
	return float64(a) / Scale
}

func (a Amount) Add(b Amount) Amount { return a + b }
func (a Amount) Sub(b Amount) Amount { return a - b }

// MulFrac multiplies the amount by a fraction (e.g. a fee percent / 100).
func (a Amount) MulFrac(frac float64) Amount {
	return New(a.Float64() * frac)
}

func (a Amount) IsNegative() bool { return a < 0 }
func (a Amount) IsZero() bool     { return a == 0 }

func (a Amount) String() string {
	return fmt.Sprintf("%.6f", a.Float64())
}
