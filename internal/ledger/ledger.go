// Package ledger owns per-participant balance, lock and history state.
// All value movement is delegated to the custody collaborator. Inbound
// transfers (deposits, reward funding) run before any ledger state is
// committed, so a failed transfer aborts with zero mutation. Outbound
// payouts (withdrawals) reserve the balance under the store lock first
// and only then transfer; a failed payout reverts the reservation.
package ledger

import (
	"context"
	"errors"
	"math/big"
	"time"

	"github.com/kalefund/fundgate/internal/custody"
	"github.com/kalefund/fundgate/internal/fixedpoint"
	"github.com/kalefund/fundgate/internal/model"
	"github.com/kalefund/fundgate/internal/pkg/apperrors"
	"github.com/kalefund/fundgate/internal/pkg/logger"
	"github.com/kalefund/fundgate/internal/pkg/metrics"
	"github.com/kalefund/fundgate/internal/repository"
)

type Ledger struct {
	store   repository.Store
	custody custody.TokenTransfer

	// Now is injectable so lock-period behavior is testable.
	Now func() time.Time
}

func New(store repository.Store, tt custody.TokenTransfer) *Ledger {
	return &Ledger{
		store:   store,
		custody: tt,
		Now:     time.Now,
	}
}

func (l *Ledger) loadConfig(ctx context.Context) (*model.FundConfig, error) {
	cfg, err := l.store.GetFundConfig(ctx)
	if err != nil {
		return nil, apperrors.Wrap(err)
	}
	if cfg == nil {
		return nil, apperrors.New(apperrors.ErrNotInitialized, "fund not initialized", nil)
	}
	return cfg, nil
}

// Deposit moves amount into fund custody, then records it against the
// participant's account. The referral bonus, when a referrer is named,
// is paid out of custody as a side transfer and is not added to either
// account's ledger balance.
func (l *Ledger) Deposit(ctx context.Context, participant string, amount *model.Amount, profile model.RiskProfile, referral string) (*model.DepositResult, error) {
	cfg, err := l.loadConfig(ctx)
	if err != nil {
		return nil, err
	}

	amt := amount.Big()
	if err := fixedpoint.CheckRange(amt); err != nil {
		return nil, overflowErr(err)
	}
	if amt.Cmp(cfg.MinDeposit.Big()) < 0 || amt.Cmp(cfg.MaxDeposit.Big()) > 0 {
		metrics.LedgerRejects.WithLabelValues("invalid_amount").Inc()
		return nil, apperrors.Newf(apperrors.ErrInvalidAmount,
			"deposit %s outside [%s, %s]", amount, cfg.MinDeposit, cfg.MaxDeposit)
	}

	// 先转账，后记账。Transfer failure aborts before any state change.
	if err := l.custody.Transfer(ctx, participant, custody.FundAccount, amt); err != nil {
		metrics.DepositsTotal.WithLabelValues("transfer_failed").Inc()
		return nil, apperrors.New(apperrors.ErrUpstream, "deposit transfer failed", err)
	}

	bonus := new(big.Int)
	if referral != "" && referral != participant {
		bonus, err = ReferralBonus(amt, cfg.ReferralBonusBps)
		if err != nil {
			return nil, overflowErr(err)
		}
		if bonus.Sign() > 0 {
			if err := l.custody.Transfer(ctx, custody.FundAccount, referral, bonus); err != nil {
				metrics.DepositsTotal.WithLabelValues("transfer_failed").Inc()
				return nil, apperrors.New(apperrors.ErrUpstream, "referral transfer failed", err)
			}
		}
	}

	now := l.Now().Unix()
	acct, err := l.store.MutateAccount(ctx, participant, func(acct *model.UserAccount) (*repository.Mutation, error) {
		newBalance := new(big.Int).Add(acct.Balance.Big(), amt)
		if err := fixedpoint.CheckRange(newBalance); err != nil {
			return nil, overflowErr(err)
		}
		newDeposits := new(big.Int).Add(acct.TotalDeposits.Big(), amt)
		if err := fixedpoint.CheckRange(newDeposits); err != nil {
			return nil, overflowErr(err)
		}

		acct.Balance = model.NewAmountFromBig(newBalance)
		acct.TotalDeposits = model.NewAmountFromBig(newDeposits)
		acct.RiskProfile = profile
		acct.LockedUntil = now + cfg.LockPeriod
		acct.LastDeposit = now
		if referral != "" {
			acct.ReferralCode = referral
		}
		// the referral bonus already left custody as a side transfer
		return &repository.Mutation{
			LockedDelta: new(big.Int).Set(amt),
			PoolDeltas: map[model.Asset]*big.Int{
				cfg.SettlementAsset: new(big.Int).Sub(amt, bonus),
			},
		}, nil
	})
	if err != nil {
		return nil, apperrors.Wrap(err)
	}

	metrics.DepositsTotal.WithLabelValues("ok").Inc()
	l.publishTotalLocked(ctx)

	logger.Info("deposit",
		"participant", participant,
		"amount", amount.String(),
		"new_balance", acct.Balance.String(),
		"locked_until", acct.LockedUntil,
		"referral_bonus", bonus.String(),
	)

	return &model.DepositResult{
		Participant:   participant,
		Amount:        amount.Clone(),
		NewBalance:    acct.Balance.Clone(),
		LockedUntil:   acct.LockedUntil,
		ReferralBonus: model.NewAmountFromBig(bonus),
	}, nil
}

// Withdraw books the gross amount against the account and pays the
// participant the net after fee and (if still locked) penalty. The
// debit happens under the store lock before custody pays out, so a
// concurrent withdrawal against the same balance cannot double-spend
// it; a failed payout reverts the debit.
func (l *Ledger) Withdraw(ctx context.Context, participant string, amount *model.Amount) (*model.WithdrawalResult, error) {
	cfg, err := l.loadConfig(ctx)
	if err != nil {
		return nil, err
	}

	amt := amount.Big()
	if err := fixedpoint.CheckRange(amt); err != nil {
		return nil, overflowErr(err)
	}
	if amt.Sign() <= 0 {
		metrics.LedgerRejects.WithLabelValues("invalid_amount").Inc()
		return nil, apperrors.Newf(apperrors.ErrInvalidAmount, "withdrawal must be positive, got %s", amount)
	}

	now := l.Now().Unix()
	var fee, penalty, net *big.Int
	updated, err := l.store.MutateAccount(ctx, participant, func(acct *model.UserAccount) (*repository.Mutation, error) {
		if acct.Balance.Big().Cmp(amt) < 0 {
			return nil, apperrors.Newf(apperrors.ErrInsufficientBalance,
				"withdrawal %s exceeds balance %s", amount, acct.Balance)
		}
		var ferr error
		fee, ferr = WithdrawalFee(amt, cfg.WithdrawalFeeBps)
		if ferr != nil {
			return nil, overflowErr(ferr)
		}
		penalty, ferr = EarlyWithdrawalPenalty(amt, cfg.EarlyWithdrawalPenaltyBps, now, acct.LockedUntil)
		if ferr != nil {
			return nil, overflowErr(ferr)
		}
		net = NetAmount(amt, fee, penalty)
		if net.Sign() < 0 {
			// only reachable with fee_bp + penalty_bp > 10000
			return nil, apperrors.NewInvalidRequest("fee and penalty exceed withdrawal amount")
		}
		acct.Balance = model.NewAmountFromBig(new(big.Int).Sub(acct.Balance.Big(), amt))
		acct.TotalWithdrawals = model.NewAmountFromBig(new(big.Int).Add(acct.TotalWithdrawals.Big(), amt))
		// fee and penalty stay in custody as fund revenue
		return &repository.Mutation{
			LockedDelta: new(big.Int).Neg(amt),
			PoolDeltas: map[model.Asset]*big.Int{
				cfg.SettlementAsset: new(big.Int).Neg(net),
			},
		}, nil
	})
	if err != nil {
		if apperrors.Is(err, apperrors.ErrInsufficientBalance) {
			metrics.LedgerRejects.WithLabelValues("insufficient_balance").Inc()
		}
		return nil, apperrors.Wrap(err)
	}

	if err := l.custody.Transfer(ctx, custody.FundAccount, participant, net); err != nil {
		l.revertWithdrawal(ctx, cfg, participant, amt, net)
		metrics.WithdrawalsTotal.WithLabelValues("transfer_failed").Inc()
		return nil, apperrors.New(apperrors.ErrUpstream, "withdrawal transfer failed", err)
	}

	metrics.WithdrawalsTotal.WithLabelValues("ok").Inc()
	l.publishTotalLocked(ctx)

	logger.Info("withdrawal",
		"participant", participant,
		"amount", amount.String(),
		"fee", fee.String(),
		"penalty", penalty.String(),
		"net_amount", net.String(),
	)

	return &model.WithdrawalResult{
		Participant: participant,
		Amount:      amount.Clone(),
		Fee:         model.NewAmountFromBig(fee),
		Penalty:     model.NewAmountFromBig(penalty),
		NetAmount:   model.NewAmountFromBig(net),
		NewBalance:  updated.Balance.Clone(),
	}, nil
}

// revertWithdrawal re-credits a reservation whose custody payout
// failed. The revert runs under the same store lock as any competing
// withdrawal, so the balance is never observable in a half-paid state.
func (l *Ledger) revertWithdrawal(ctx context.Context, cfg *model.FundConfig, participant string, amt, net *big.Int) {
	_, err := l.store.MutateAccount(ctx, participant, func(acct *model.UserAccount) (*repository.Mutation, error) {
		acct.Balance = model.NewAmountFromBig(new(big.Int).Add(acct.Balance.Big(), amt))
		acct.TotalWithdrawals = model.NewAmountFromBig(new(big.Int).Sub(acct.TotalWithdrawals.Big(), amt))
		return &repository.Mutation{
			LockedDelta: new(big.Int).Set(amt),
			PoolDeltas: map[model.Asset]*big.Int{
				cfg.SettlementAsset: new(big.Int).Set(net),
			},
		}, nil
	})
	if err != nil {
		logger.LogError(ctx, err, "withdrawal revert failed", "participant", participant, "amount", amt.String())
	}
}

// GetAccount never fails for unknown participants; it returns the zero
// account instead.
func (l *Ledger) GetAccount(ctx context.Context, participant string) (*model.UserAccount, error) {
	acct, err := l.store.GetAccount(ctx, participant)
	if err != nil {
		return nil, apperrors.Wrap(err)
	}
	return acct, nil
}

func (l *Ledger) TotalLocked(ctx context.Context) (*model.Amount, error) {
	total, err := l.store.GetTotalLocked(ctx)
	if err != nil {
		return nil, apperrors.Wrap(err)
	}
	return total, nil
}

// DistributeRewards credits every account with its balance-weighted
// share of totalRewards, preserving the accounting identity
// balance == deposits - withdrawals + rewards. Truncation dust stays in
// custody. No-op when nothing is locked.
func (l *Ledger) DistributeRewards(ctx context.Context, funder string, totalRewards *model.Amount) (*model.Amount, error) {
	cfg, err := l.loadConfig(ctx)
	if err != nil {
		return nil, err
	}
	pot := totalRewards.Big()
	if pot.Sign() <= 0 {
		return nil, apperrors.Newf(apperrors.ErrInvalidAmount, "reward pot must be positive, got %s", totalRewards)
	}

	locked, err := l.store.GetTotalLocked(ctx)
	if err != nil {
		return nil, apperrors.Wrap(err)
	}
	if locked.Sign() == 0 {
		return model.NewAmount(0), nil
	}

	if err := l.custody.Transfer(ctx, funder, custody.FundAccount, pot); err != nil {
		return nil, apperrors.New(apperrors.ErrUpstream, "reward funding transfer failed", err)
	}

	distributed := new(big.Int)
	err = l.store.MutateAllAccounts(ctx, func(accts []*model.UserAccount) (*repository.Mutation, error) {
		total := new(big.Int)
		for _, acct := range accts {
			total.Add(total, acct.Balance.Big())
		}
		if total.Sign() == 0 {
			return nil, nil
		}
		for _, acct := range accts {
			share, err := fixedpoint.MulDiv(pot, acct.Balance.Big(), total)
			if err != nil {
				return nil, overflowErr(err)
			}
			if share.Sign() == 0 {
				continue
			}
			acct.Balance = model.NewAmountFromBig(new(big.Int).Add(acct.Balance.Big(), share))
			acct.RewardsEarned = model.NewAmountFromBig(new(big.Int).Add(acct.RewardsEarned.Big(), share))
			distributed.Add(distributed, share)
		}
		return &repository.Mutation{
			LockedDelta: new(big.Int).Set(distributed),
			PoolDeltas: map[model.Asset]*big.Int{
				cfg.SettlementAsset: new(big.Int).Set(distributed),
			},
		}, nil
	})
	if err != nil {
		return nil, apperrors.Wrap(err)
	}

	l.publishTotalLocked(ctx)
	logger.Info("rewards distributed", "pot", pot.String(), "distributed", distributed.String())
	return model.NewAmountFromBig(distributed), nil
}

func (l *Ledger) publishTotalLocked(ctx context.Context) {
	total, err := l.store.GetTotalLocked(ctx)
	if err != nil {
		return
	}
	f, _ := new(big.Float).SetInt(total.Big()).Float64()
	metrics.TotalLocked.Set(f)
}

func overflowErr(err error) error {
	if errors.Is(err, fixedpoint.ErrOverflow) {
		return apperrors.New(apperrors.ErrArithmeticOverflow, "amount exceeds 128-bit range", err)
	}
	return apperrors.Wrap(err)
}
