package model

import "fmt"

// RiskProfile selects a target allocation table for a participant.
type RiskProfile string

const (
	ProfileConservative RiskProfile = "conservative"
	ProfileModerate     RiskProfile = "moderate"
	ProfileAggressive   RiskProfile = "aggressive"
)

func ParseRiskProfile(s string) (RiskProfile, error) {
	switch RiskProfile(s) {
	case ProfileConservative, ProfileModerate, ProfileAggressive:
		return RiskProfile(s), nil
	}
	return "", fmt.Errorf("unknown risk profile %q", s)
}

func AllRiskProfiles() []RiskProfile {
	return []RiskProfile{ProfileConservative, ProfileModerate, ProfileAggressive}
}

// UserAccount is the per-participant ledger record. Accounts are created
// lazily on first deposit and never deleted; a missing account reads as
// the zero account.
//
// Accounting identity: Balance == TotalDeposits - TotalWithdrawals + RewardsEarned.
type UserAccount struct {
	Participant      string      `json:"participant"`
	Balance          *Amount     `json:"balance"`
	RiskProfile      RiskProfile `json:"risk_profile"`
	LockedUntil      int64       `json:"locked_until"` // unix seconds
	LastDeposit      int64       `json:"last_deposit"` // unix seconds
	TotalDeposits    *Amount     `json:"total_deposits"`
	TotalWithdrawals *Amount     `json:"total_withdrawals"`
	RewardsEarned    *Amount     `json:"rewards_earned"`
	ReferralCode     string      `json:"referral_code"`
}

// ZeroAccount returns the default account a participant has before
// their first deposit.
func ZeroAccount(participant string) *UserAccount {
	return &UserAccount{
		Participant:      participant,
		Balance:          NewAmount(0),
		RiskProfile:      ProfileConservative,
		TotalDeposits:    NewAmount(0),
		TotalWithdrawals: NewAmount(0),
		RewardsEarned:    NewAmount(0),
	}
}

func (a *UserAccount) Clone() *UserAccount {
	cp := *a
	cp.Balance = a.Balance.Clone()
	cp.TotalDeposits = a.TotalDeposits.Clone()
	cp.TotalWithdrawals = a.TotalWithdrawals.Clone()
	cp.RewardsEarned = a.RewardsEarned.Clone()
	return &cp
}

type DepositResult struct {
	Participant   string  `json:"participant"`
	Amount        *Amount `json:"amount"`
	NewBalance    *Amount `json:"new_balance"`
	LockedUntil   int64   `json:"locked_until"`
	ReferralBonus *Amount `json:"referral_bonus"`
}

type WithdrawalResult struct {
	Participant string  `json:"participant"`
	Amount      *Amount `json:"amount"`
	Fee         *Amount `json:"fee"`
	Penalty     *Amount `json:"penalty"`
	NetAmount   *Amount `json:"net_amount"`
	NewBalance  *Amount `json:"new_balance"`
}
