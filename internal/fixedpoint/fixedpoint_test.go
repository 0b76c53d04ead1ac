package fixedpoint

import (
	"math/big"
	"testing"
)

func TestMulBpsTruncates(t *testing.T) {
	// 333 * 100 / 10000 = 3.33 -> 3
	out, err := MulBps(big.NewInt(333), 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Int64() != 3 {
		t.Fatalf("expected 3, got %s", out)
	}
}

func TestMulBpsFullScale(t *testing.T) {
	out, err := MulBps(big.NewInt(5_000_000), 10000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Int64() != 5_000_000 {
		t.Fatalf("expected identity at 10000bp, got %s", out)
	}
}

func TestMulBpsOverflow(t *testing.T) {
	over := new(big.Int).Lsh(big.NewInt(1), 127) // 2^127, just out of range
	if _, err := MulBps(over, 100); err != ErrOverflow {
		t.Fatalf("expected ErrOverflow, got %v", err)
	}
}

func TestCheckRangeBounds(t *testing.T) {
	max := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 127), big.NewInt(1))
	if err := CheckRange(max); err != nil {
		t.Fatalf("max int128 should be in range: %v", err)
	}
	min := new(big.Int).Neg(new(big.Int).Lsh(big.NewInt(1), 127))
	if err := CheckRange(min); err != nil {
		t.Fatalf("min int128 should be in range: %v", err)
	}
	if err := CheckRange(new(big.Int).Add(max, big.NewInt(1))); err != ErrOverflow {
		t.Fatalf("expected overflow above max, got %v", err)
	}
	if err := CheckRange(new(big.Int).Sub(min, big.NewInt(1))); err != ErrOverflow {
		t.Fatalf("expected overflow below min, got %v", err)
	}
}

func TestMulDivZeroDenominator(t *testing.T) {
	out, err := MulDiv(big.NewInt(100), big.NewInt(100), new(big.Int))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Sign() != 0 {
		t.Fatalf("expected 0 on zero denominator, got %s", out)
	}
}

func TestAbsDiff(t *testing.T) {
	if AbsDiff(2000, 3500) != 1500 {
		t.Fatalf("abs diff wrong")
	}
	if AbsDiff(3500, 2000) != 1500 {
		t.Fatalf("abs diff not symmetric")
	}
	if AbsDiff(500, 500) != 0 {
		t.Fatalf("abs diff of equal values should be 0")
	}
}

func TestPercentOf(t *testing.T) {
	if got := PercentOf(big.NewInt(25), big.NewInt(100)); got != 2500 {
		t.Fatalf("expected 2500bp, got %d", got)
	}
	if got := PercentOf(big.NewInt(1), new(big.Int)); got != 0 {
		t.Fatalf("expected 0 on zero total, got %d", got)
	}
	if got := PercentOf(big.NewInt(200), big.NewInt(100)); got != 10000 {
		t.Fatalf("expected cap at 10000bp, got %d", got)
	}
}
