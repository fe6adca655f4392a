// Package strike derives option strikes from a spot price.
package strike

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// ErrInvalidInput is returned for a non-positive spot price, step or strike.
var ErrInvalidInput = errors.New("strike: invalid input")

// ComputeATM returns the smallest multiple of step that is >= spot,
// i.e. ceil(spot/step)*step. A spot that is already a multiple of step is
// returned unchanged.
func ComputeATM(spot decimal.Decimal, step int64) (decimal.Decimal, error) {
	if !spot.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: spot price %s must be positive", ErrInvalidInput, spot)
	}
	if step <= 0 {
		return decimal.Zero, fmt.Errorf("%w: step %d must be positive", ErrInvalidInput, step)
	}

	s := decimal.NewFromInt(step)
	q, rem := spot.QuoRem(s, 0)
	if !rem.IsZero() {
		q = q.Add(decimal.NewFromInt(1))
	}
	return q.Mul(s), nil
}

// Offset moves atm by n steps; n may be negative. The result must stay positive.
func Offset(atm decimal.Decimal, step int64, n int) (decimal.Decimal, error) {
	if step <= 0 {
		return decimal.Zero, fmt.Errorf("%w: step %d must be positive", ErrInvalidInput, step)
	}
	out := atm.Add(decimal.NewFromInt(step).Mul(decimal.NewFromInt(int64(n))))
	if !out.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: %s offset by %d steps of %d is not positive", ErrInvalidInput, atm, n, step)
	}
	return out, nil
}

// Nearest rounds spot to the closest multiple of step, halves rounding up.
// Used for display; order selection always goes through ComputeATM.
func Nearest(spot decimal.Decimal, step int64) (decimal.Decimal, error) {
	if !spot.IsPositive() || step <= 0 {
		return decimal.Zero, fmt.Errorf("%w: spot %s step %d", ErrInvalidInput, spot, step)
	}
	s := decimal.NewFromInt(step)
	return spot.Div(s).Round(0).Mul(s), nil
}
