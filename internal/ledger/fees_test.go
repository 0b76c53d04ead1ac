package ledger

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithdrawalFee(t *testing.T) {
	fee, err := WithdrawalFee(big.NewInt(5_000_000), 100)
	require.NoError(t, err)
	assert.Equal(t, int64(50_000), fee.Int64())

	// truncates toward zero
	fee, err = WithdrawalFee(big.NewInt(333), 100)
	require.NoError(t, err)
	assert.Equal(t, int64(3), fee.Int64())

	fee, err = WithdrawalFee(big.NewInt(1_000_000), 0)
	require.NoError(t, err)
	assert.Zero(t, fee.Sign())
}

func TestEarlyWithdrawalPenalty(t *testing.T) {
	const lockedUntil = int64(2_592_000)

	penalty, err := EarlyWithdrawalPenalty(big.NewInt(5_000_000), 500, 0, lockedUntil)
	require.NoError(t, err)
	assert.Equal(t, int64(250_000), penalty.Int64())

	// expiry boundary is inclusive: no penalty exactly at lockedUntil
	penalty, err = EarlyWithdrawalPenalty(big.NewInt(5_000_000), 500, lockedUntil, lockedUntil)
	require.NoError(t, err)
	assert.Zero(t, penalty.Sign())

	penalty, err = EarlyWithdrawalPenalty(big.NewInt(5_000_000), 500, lockedUntil+1, lockedUntil)
	require.NoError(t, err)
	assert.Zero(t, penalty.Sign())
}

func TestNetAmount(t *testing.T) {
	net := NetAmount(big.NewInt(5_000_000), big.NewInt(50_000), big.NewInt(250_000))
	assert.Equal(t, int64(4_700_000), net.Int64())

	net = NetAmount(big.NewInt(100), big.NewInt(60), big.NewInt(60))
	assert.Equal(t, int64(-20), net.Int64())
}

func TestReferralBonusFee(t *testing.T) {
	bonus, err := ReferralBonus(big.NewInt(10_000_000), 50)
	require.NoError(t, err)
	assert.Equal(t, int64(50_000), bonus.Int64())
}
