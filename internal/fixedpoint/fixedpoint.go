// Package fixedpoint implements basis-point arithmetic over signed
// 128-bit integer amounts. Intermediate products are computed with
// big.Int so they cannot wrap; results outside the 128-bit range fail
// with ErrOverflow instead.
package fixedpoint

import (
	"errors"
	"math/big"
)

// BpsDenominator is the basis-point scale: 10000 bp == 100%.
const BpsDenominator = 10000

// PriceScale is the fixed-point scale for USD prices: 1e7 units == $1.
const PriceScale = 10_000_000

// ErrOverflow is returned when a value leaves the signed 128-bit range.
var ErrOverflow = errors.New("fixedpoint: arithmetic overflow")

var (
	maxInt128 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 127), big.NewInt(1))
	minInt128 = new(big.Int).Neg(new(big.Int).Lsh(big.NewInt(1), 127))

	bpsDenom = big.NewInt(BpsDenominator)
)

// CheckRange verifies v fits in a signed 128-bit integer.
func CheckRange(v *big.Int) error {
	if v.Cmp(maxInt128) > 0 || v.Cmp(minInt128) < 0 {
		return ErrOverflow
	}
	return nil
}

// MulBps computes amount * bps / 10000 with truncation toward zero.
func MulBps(amount *big.Int, bps uint32) (*big.Int, error) {
	if err := CheckRange(amount); err != nil {
		return nil, err
	}
	out := new(big.Int).Mul(amount, big.NewInt(int64(bps)))
	out.Quo(out, bpsDenom)
	if err := CheckRange(out); err != nil {
		return nil, err
	}
	return out, nil
}

// MulDiv computes a * b / den with truncation toward zero. A zero
// denominator yields zero rather than a panic (no-loss division).
func MulDiv(a, b, den *big.Int) (*big.Int, error) {
	if den.Sign() == 0 {
		return new(big.Int), nil
	}
	out := new(big.Int).Mul(a, b)
	out.Quo(out, den)
	if err := CheckRange(out); err != nil {
		return nil, err
	}
	return out, nil
}

// AbsDiff returns |a - b| for basis-point weights.
func AbsDiff(a, b uint32) uint32 {
	if a > b {
		return a - b
	}
	return b - a
}

// PercentOf returns part * 10000 / total in basis points, or 0 when the
// total is not positive.
func PercentOf(part, total *big.Int) uint32 {
	if total.Sign() <= 0 {
		return 0
	}
	out := new(big.Int).Mul(part, bpsDenom)
	out.Quo(out, total)
	if !out.IsUint64() {
		return BpsDenominator
	}
	v := out.Uint64()
	if v > BpsDenominator {
		return BpsDenominator
	}
	return uint32(v)
}
