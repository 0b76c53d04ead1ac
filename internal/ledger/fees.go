package ledger

import (
	"math/big"

	"github.com/kalefund/fundgate/internal/fixedpoint"
)

// Fee computation is pure: no state is read or written here. All
// divisions truncate toward zero.

// WithdrawalFee computes amount * feeBps / 10000.
func WithdrawalFee(amount *big.Int, feeBps uint32) (*big.Int, error) {
	return fixedpoint.MulBps(amount, feeBps)
}

// EarlyWithdrawalPenalty is amount * penaltyBps / 10000 while the lock
// is still active, zero afterwards.
func EarlyWithdrawalPenalty(amount *big.Int, penaltyBps uint32, now, lockedUntil int64) (*big.Int, error) {
	if now >= lockedUntil {
		return new(big.Int), nil
	}
	return fixedpoint.MulBps(amount, penaltyBps)
}

// ReferralBonus computes amount * bonusBps / 10000.
func ReferralBonus(amount *big.Int, bonusBps uint32) (*big.Int, error) {
	return fixedpoint.MulBps(amount, bonusBps)
}

// NetAmount is amount - fee - penalty.
func NetAmount(amount, fee, penalty *big.Int) *big.Int {
	net := new(big.Int).Sub(amount, fee)
	return net.Sub(net, penalty)
}
