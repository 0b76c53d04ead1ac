package ledger

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kalefund/fundgate/internal/custody"
	"github.com/kalefund/fundgate/internal/model"
	"github.com/kalefund/fundgate/internal/pkg/apperrors"
	"github.com/kalefund/fundgate/internal/repository"
)

func testFundConfig() *model.FundConfig {
	return &model.FundConfig{
		SettlementAsset:           model.AssetKALE,
		MinDeposit:                model.NewAmount(1_000_000),
		MaxDeposit:                model.NewAmount(10_000_000_000),
		LockPeriod:                2_592_000,
		WithdrawalFeeBps:          100,
		EarlyWithdrawalPenaltyBps: 500,
		ReferralBonusBps:          50,
	}
}

func newTestLedger(t *testing.T) (*Ledger, *repository.MemoryStore, *custody.SimulatedCustody) {
	t.Helper()
	store := repository.NewMemoryStore()
	require.NoError(t, store.InitializeFund(context.Background(), "admin", testFundConfig()))
	cust := custody.NewSimulatedCustody()
	l := New(store, cust)
	l.Now = func() time.Time { return time.Unix(0, 0) }
	return l, store, cust
}

// failingCustody rejects every transfer.
type failingCustody struct{}

func (failingCustody) Transfer(ctx context.Context, from, to string, amount *big.Int) error {
	return errors.New("token client unavailable")
}

// payoutFailingCustody accepts inbound transfers but rejects payouts.
type payoutFailingCustody struct {
	inner *custody.SimulatedCustody
}

func (c *payoutFailingCustody) Transfer(ctx context.Context, from, to string, amount *big.Int) error {
	if from == custody.FundAccount {
		return errors.New("token client unavailable")
	}
	return c.inner.Transfer(ctx, from, to, amount)
}

// reentrantCustody fires a second withdrawal for the same participant
// while the first payout is still in flight, exercising the window
// between the balance debit and the custody transfer.
type reentrantCustody struct {
	inner    *custody.SimulatedCustody
	ledger   *Ledger
	fired    bool
	racedErr error
}

func (c *reentrantCustody) Transfer(ctx context.Context, from, to string, amount *big.Int) error {
	if from == custody.FundAccount && !c.fired {
		c.fired = true
		_, c.racedErr = c.ledger.Withdraw(ctx, to, model.NewAmount(10_000_000))
	}
	return c.inner.Transfer(ctx, from, to, amount)
}

func TestDepositThenEarlyWithdrawal(t *testing.T) {
	l, store, _ := newTestLedger(t)
	ctx := context.Background()

	dep, err := l.Deposit(ctx, "alice", model.NewAmount(10_000_000), model.ProfileModerate, "")
	require.NoError(t, err)
	assert.Equal(t, "10000000", dep.NewBalance.String())
	assert.Equal(t, int64(2_592_000), dep.LockedUntil)

	// still locked: 1% fee plus 5% penalty
	wd, err := l.Withdraw(ctx, "alice", model.NewAmount(5_000_000))
	require.NoError(t, err)
	assert.Equal(t, "50000", wd.Fee.String())
	assert.Equal(t, "250000", wd.Penalty.String())
	assert.Equal(t, "4700000", wd.NetAmount.String())
	assert.Equal(t, "5000000", wd.NewBalance.String())

	total, err := store.GetTotalLocked(ctx)
	require.NoError(t, err)
	assert.Equal(t, "5000000", total.String())

	// after the lock expires the penalty disappears, fee remains
	l.Now = func() time.Time { return time.Unix(2_592_001, 0) }
	wd, err = l.Withdraw(ctx, "alice", model.NewAmount(5_000_000))
	require.NoError(t, err)
	assert.Equal(t, "50000", wd.Fee.String())
	assert.Equal(t, "0", wd.Penalty.String())
	assert.Equal(t, "4950000", wd.NetAmount.String())
	assert.Equal(t, "0", wd.NewBalance.String())

	total, err = store.GetTotalLocked(ctx)
	require.NoError(t, err)
	assert.Zero(t, total.Sign())
}

func TestDepositBounds(t *testing.T) {
	l, _, _ := newTestLedger(t)
	ctx := context.Background()

	_, err := l.Deposit(ctx, "alice", model.NewAmount(999_999), model.ProfileConservative, "")
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrInvalidAmount))

	_, err = l.Deposit(ctx, "alice", model.NewAmount(10_000_000_001), model.ProfileConservative, "")
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrInvalidAmount))

	// inclusive bounds
	_, err = l.Deposit(ctx, "alice", model.NewAmount(1_000_000), model.ProfileConservative, "")
	assert.NoError(t, err)
}

func TestDepositBeforeInitialize(t *testing.T) {
	l := New(repository.NewMemoryStore(), custody.NewSimulatedCustody())
	_, err := l.Deposit(context.Background(), "alice", model.NewAmount(1_000_000), model.ProfileConservative, "")
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrNotInitialized))
}

func TestDepositResetsLock(t *testing.T) {
	l, _, _ := newTestLedger(t)
	ctx := context.Background()

	_, err := l.Deposit(ctx, "alice", model.NewAmount(2_000_000), model.ProfileConservative, "")
	require.NoError(t, err)

	l.Now = func() time.Time { return time.Unix(1_000_000, 0) }
	dep, err := l.Deposit(ctx, "alice", model.NewAmount(2_000_000), model.ProfileAggressive, "")
	require.NoError(t, err)
	assert.Equal(t, int64(1_000_000+2_592_000), dep.LockedUntil)

	acct, err := l.GetAccount(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, model.ProfileAggressive, acct.RiskProfile)
	assert.Equal(t, int64(1_000_000), acct.LastDeposit)
}

func TestWithdrawInsufficientBalance(t *testing.T) {
	l, store, cust := newTestLedger(t)
	ctx := context.Background()

	_, err := l.Deposit(ctx, "alice", model.NewAmount(2_000_000), model.ProfileConservative, "")
	require.NoError(t, err)
	before := len(cust.Movements())

	_, err = l.Withdraw(ctx, "alice", model.NewAmount(2_000_001))
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrInsufficientBalance))

	// nothing moved, nothing mutated
	assert.Len(t, cust.Movements(), before)
	total, err := store.GetTotalLocked(ctx)
	require.NoError(t, err)
	assert.Equal(t, "2000000", total.String())
}

func TestWithdrawUnknownParticipant(t *testing.T) {
	l, _, _ := newTestLedger(t)
	_, err := l.Withdraw(context.Background(), "nobody", model.NewAmount(1))
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrInsufficientBalance))
}

func TestConcurrentWithdrawalsCannotDoubleSpend(t *testing.T) {
	store := repository.NewMemoryStore()
	require.NoError(t, store.InitializeFund(context.Background(), "admin", testFundConfig()))
	cust := &reentrantCustody{inner: custody.NewSimulatedCustody()}
	l := New(store, cust)
	l.Now = func() time.Time { return time.Unix(0, 0) }
	cust.ledger = l
	ctx := context.Background()

	_, err := l.Deposit(ctx, "alice", model.NewAmount(10_000_000), model.ProfileModerate, "")
	require.NoError(t, err)

	_, err = l.Withdraw(ctx, "alice", model.NewAmount(10_000_000))
	require.NoError(t, err)

	// the competing withdrawal found the balance already debited
	require.True(t, cust.fired)
	require.Error(t, cust.racedErr)
	assert.True(t, apperrors.Is(cust.racedErr, apperrors.ErrInsufficientBalance))

	// exactly one payout left custody
	payouts := 0
	for _, m := range cust.inner.Movements() {
		if m.From == custody.FundAccount {
			payouts++
		}
	}
	assert.Equal(t, 1, payouts)

	acct, err := store.GetAccount(ctx, "alice")
	require.NoError(t, err)
	assert.Zero(t, acct.Balance.Sign())
	total, err := store.GetTotalLocked(ctx)
	require.NoError(t, err)
	assert.Zero(t, total.Sign())
}

func TestWithdrawPayoutFailureRevertsDebit(t *testing.T) {
	store := repository.NewMemoryStore()
	require.NoError(t, store.InitializeFund(context.Background(), "admin", testFundConfig()))
	l := New(store, &payoutFailingCustody{inner: custody.NewSimulatedCustody()})
	l.Now = func() time.Time { return time.Unix(0, 0) }
	ctx := context.Background()

	_, err := l.Deposit(ctx, "alice", model.NewAmount(10_000_000), model.ProfileModerate, "")
	require.NoError(t, err)

	_, err = l.Withdraw(ctx, "alice", model.NewAmount(5_000_000))
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrUpstream))

	// the reservation was re-credited in full
	acct, err := store.GetAccount(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "10000000", acct.Balance.String())
	assert.Zero(t, acct.TotalWithdrawals.Sign())
	total, err := store.GetTotalLocked(ctx)
	require.NoError(t, err)
	assert.Equal(t, "10000000", total.String())
	pools, err := store.GetPoolBalances(ctx)
	require.NoError(t, err)
	assert.Equal(t, "10000000", pools[model.AssetKALE].String())
}

func TestPoolTracksSettlementFlows(t *testing.T) {
	l, store, _ := newTestLedger(t)
	ctx := context.Background()

	_, err := l.Deposit(ctx, "alice", model.NewAmount(10_000_000), model.ProfileModerate, "bob")
	require.NoError(t, err)
	pools, err := store.GetPoolBalances(ctx)
	require.NoError(t, err)
	// the 50_000 referral bonus left custody with the deposit
	assert.Equal(t, "9950000", pools[model.AssetKALE].String())

	// 1% fee and 5% penalty stay in the pool as fund revenue
	_, err = l.Withdraw(ctx, "alice", model.NewAmount(5_000_000))
	require.NoError(t, err)
	pools, err = store.GetPoolBalances(ctx)
	require.NoError(t, err)
	assert.Equal(t, "5250000", pools[model.AssetKALE].String())

	_, err = l.DistributeRewards(ctx, "treasury", model.NewAmount(4_000))
	require.NoError(t, err)
	pools, err = store.GetPoolBalances(ctx)
	require.NoError(t, err)
	assert.Equal(t, "5254000", pools[model.AssetKALE].String())
}

func TestTransferFailureAbortsDeposit(t *testing.T) {
	store := repository.NewMemoryStore()
	require.NoError(t, store.InitializeFund(context.Background(), "admin", testFundConfig()))
	l := New(store, failingCustody{})
	l.Now = func() time.Time { return time.Unix(0, 0) }

	_, err := l.Deposit(context.Background(), "alice", model.NewAmount(2_000_000), model.ProfileConservative, "")
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrUpstream))

	acct, err := store.GetAccount(context.Background(), "alice")
	require.NoError(t, err)
	assert.Zero(t, acct.Balance.Sign())
	total, err := store.GetTotalLocked(context.Background())
	require.NoError(t, err)
	assert.Zero(t, total.Sign())
}

func TestReferralBonus(t *testing.T) {
	l, _, cust := newTestLedger(t)
	ctx := context.Background()

	dep, err := l.Deposit(ctx, "alice", model.NewAmount(10_000_000), model.ProfileConservative, "bob")
	require.NoError(t, err)
	assert.Equal(t, "50000", dep.ReferralBonus.String())
	// bonus is paid out of custody, not credited to alice's balance
	assert.Equal(t, "10000000", dep.NewBalance.String())

	moves := cust.Movements()
	require.Len(t, moves, 2)
	assert.Equal(t, custody.FundAccount, moves[0].To)
	assert.Equal(t, "bob", moves[1].To)
	assert.Equal(t, int64(50_000), moves[1].Amount.Int64())

	// self-referral earns nothing
	dep, err = l.Deposit(ctx, "carol", model.NewAmount(10_000_000), model.ProfileConservative, "carol")
	require.NoError(t, err)
	assert.Zero(t, dep.ReferralBonus.Sign())
}

func TestDistributeRewards(t *testing.T) {
	l, store, _ := newTestLedger(t)
	ctx := context.Background()

	_, err := l.Deposit(ctx, "alice", model.NewAmount(1_000_000), model.ProfileConservative, "")
	require.NoError(t, err)
	_, err = l.Deposit(ctx, "bob", model.NewAmount(3_000_000), model.ProfileAggressive, "")
	require.NoError(t, err)

	distributed, err := l.DistributeRewards(ctx, "treasury", model.NewAmount(4_000))
	require.NoError(t, err)
	assert.Equal(t, "4000", distributed.String())

	alice, err := store.GetAccount(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "1001000", alice.Balance.String())
	assert.Equal(t, "1000", alice.RewardsEarned.String())

	bob, err := store.GetAccount(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, "3003000", bob.Balance.String())

	// TotalLocked tracks the credited rewards
	total, err := store.GetTotalLocked(ctx)
	require.NoError(t, err)
	assert.Equal(t, "4004000", total.String())

	// identity: balance == deposits - withdrawals + rewards
	for _, acct := range []*model.UserAccount{alice, bob} {
		want := new(big.Int).Sub(acct.TotalDeposits.Big(), acct.TotalWithdrawals.Big())
		want.Add(want, acct.RewardsEarned.Big())
		assert.Zero(t, acct.Balance.Big().Cmp(want), acct.Participant)
	}
}

func TestDistributeRewardsEmptyFund(t *testing.T) {
	l, _, cust := newTestLedger(t)

	distributed, err := l.DistributeRewards(context.Background(), "treasury", model.NewAmount(4_000))
	require.NoError(t, err)
	assert.Zero(t, distributed.Sign())
	assert.Empty(t, cust.Movements())
}

func TestDistributeRewardsTruncationDust(t *testing.T) {
	l, _, _ := newTestLedger(t)
	ctx := context.Background()

	_, err := l.Deposit(ctx, "alice", model.NewAmount(1_000_000), model.ProfileConservative, "")
	require.NoError(t, err)
	_, err = l.Deposit(ctx, "bob", model.NewAmount(2_000_000), model.ProfileConservative, "")
	require.NoError(t, err)

	// 100 * 1/3 and 100 * 2/3 truncate to 33 and 66; 1 unit of dust
	// stays in custody
	distributed, err := l.DistributeRewards(ctx, "treasury", model.NewAmount(100))
	require.NoError(t, err)
	assert.Equal(t, "99", distributed.String())
}

func TestAccountingIdentityAcrossOperations(t *testing.T) {
	l, store, _ := newTestLedger(t)
	ctx := context.Background()

	_, err := l.Deposit(ctx, "alice", model.NewAmount(10_000_000), model.ProfileModerate, "")
	require.NoError(t, err)
	_, err = l.Withdraw(ctx, "alice", model.NewAmount(3_000_000))
	require.NoError(t, err)
	_, err = l.DistributeRewards(ctx, "treasury", model.NewAmount(70_000))
	require.NoError(t, err)

	acct, err := store.GetAccount(ctx, "alice")
	require.NoError(t, err)
	want := new(big.Int).Sub(acct.TotalDeposits.Big(), acct.TotalWithdrawals.Big())
	want.Add(want, acct.RewardsEarned.Big())
	assert.Zero(t, acct.Balance.Big().Cmp(want))

	// TotalLocked equals the sum of all balances
	total, err := store.GetTotalLocked(ctx)
	require.NoError(t, err)
	accts, err := store.ListAccounts(ctx)
	require.NoError(t, err)
	sum := new(big.Int)
	for _, a := range accts {
		sum.Add(sum, a.Balance.Big())
	}
	assert.Zero(t, total.Big().Cmp(sum))
}
