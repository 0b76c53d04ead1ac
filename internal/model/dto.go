package model

// InitializeRequest seeds the fund singletons. The authenticated caller
// becomes the stored admin identity.
type InitializeRequest struct {
	SettlementAsset           string  `json:"settlement_asset"` // empty falls back to the configured default
	MinDeposit                *Amount `json:"min_deposit" binding:"required"`
	MaxDeposit                *Amount `json:"max_deposit" binding:"required"`
	LockPeriod                int64   `json:"lock_period" binding:"required"`
	WithdrawalFeeBps          uint32  `json:"withdrawal_fee_bps"`
	PerformanceFeeBps         uint32  `json:"performance_fee_bps"`
	EarlyWithdrawalPenaltyBps uint32  `json:"early_withdrawal_penalty_bps"`
	ReferralBonusBps          uint32  `json:"referral_bonus_bps"`
}

type DepositRequest struct {
	Amount      *Amount `json:"amount" binding:"required"`
	RiskProfile string  `json:"risk_profile" binding:"required,oneof=conservative moderate aggressive"`
	Referral    string  `json:"referral,omitempty"`
}

type WithdrawRequest struct {
	Amount *Amount `json:"amount" binding:"required"`
}

type DistributeRewardsRequest struct {
	TotalRewards *Amount `json:"total_rewards" binding:"required"`
}

type AssessRiskRequest struct {
	Profile           string           `json:"profile" binding:"required,oneof=conservative moderate aggressive"`
	CurrentAllocation AssetAllocation  `json:"current_allocation" binding:"required"`
	VolatilitySamples []VolatilityData `json:"volatility_samples,omitempty"`
}

type RebalanceRequest struct {
	// TargetAllocations maps asset -> basis points and must sum to 10000.
	TargetAllocations map[Asset]uint32 `json:"target_allocations" binding:"required"`
	// CurrentPrices maps asset -> USD price at the oracle price scale.
	// Missing assets fall back to the oracle's cached or default prices.
	CurrentPrices map[Asset]*Amount `json:"current_prices,omitempty"`
}

type PriceOverrideRequest struct {
	PriceUSD *Amount `json:"price_usd" binding:"required"`
	Reason   string  `json:"reason" binding:"required"`
}
