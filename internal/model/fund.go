package model

// FundConfig is the fund singleton, written once at initialize and
// patched by the admin afterwards. Fee fields are basis points.
type FundConfig struct {
	SettlementAsset           Asset   `json:"settlement_asset"`
	MinDeposit                *Amount `json:"min_deposit"`
	MaxDeposit                *Amount `json:"max_deposit"`
	LockPeriod                int64   `json:"lock_period"` // seconds
	WithdrawalFeeBps          uint32  `json:"withdrawal_fee_bps"`
	PerformanceFeeBps         uint32  `json:"performance_fee_bps"`
	EarlyWithdrawalPenaltyBps uint32  `json:"early_withdrawal_penalty_bps"`
	ReferralBonusBps          uint32  `json:"referral_bonus_bps"`
}

// FundConfigPatch applies field-by-field over the stored config; nil
// fields keep their prior value.
type FundConfigPatch struct {
	MinDeposit                *Amount `json:"min_deposit,omitempty"`
	MaxDeposit                *Amount `json:"max_deposit,omitempty"`
	WithdrawalFeeBps          *uint32 `json:"withdrawal_fee_bps,omitempty"`
	PerformanceFeeBps         *uint32 `json:"performance_fee_bps,omitempty"`
	EarlyWithdrawalPenaltyBps *uint32 `json:"early_withdrawal_penalty_bps,omitempty"`
	ReferralBonusBps          *uint32 `json:"referral_bonus_bps,omitempty"`
}

func (p FundConfigPatch) Apply(cfg *FundConfig) {
	if p.MinDeposit != nil {
		cfg.MinDeposit = p.MinDeposit
	}
	if p.MaxDeposit != nil {
		cfg.MaxDeposit = p.MaxDeposit
	}
	if p.WithdrawalFeeBps != nil {
		cfg.WithdrawalFeeBps = *p.WithdrawalFeeBps
	}
	if p.PerformanceFeeBps != nil {
		cfg.PerformanceFeeBps = *p.PerformanceFeeBps
	}
	if p.EarlyWithdrawalPenaltyBps != nil {
		cfg.EarlyWithdrawalPenaltyBps = *p.EarlyWithdrawalPenaltyBps
	}
	if p.ReferralBonusBps != nil {
		cfg.ReferralBonusBps = *p.ReferralBonusBps
	}
}

// RiskParameters is the admin-mutable risk singleton (all basis points).
type RiskParameters struct {
	MaxPositionSizeBps    uint32 `json:"max_position_size_bps"`
	MaxDailyVolatilityBps uint32 `json:"max_daily_volatility_bps"`
	CorrelationThreshold  uint32 `json:"correlation_threshold_bps"`
	StressTestThreshold   uint32 `json:"stress_test_threshold_bps"`
	RebalanceThresholdBps uint32 `json:"rebalance_threshold_bps"`
}

type RiskParametersPatch struct {
	MaxPositionSizeBps    *uint32 `json:"max_position_size_bps,omitempty"`
	MaxDailyVolatilityBps *uint32 `json:"max_daily_volatility_bps,omitempty"`
	CorrelationThreshold  *uint32 `json:"correlation_threshold_bps,omitempty"`
	StressTestThreshold   *uint32 `json:"stress_test_threshold_bps,omitempty"`
	RebalanceThresholdBps *uint32 `json:"rebalance_threshold_bps,omitempty"`
}

func (p RiskParametersPatch) Apply(rp *RiskParameters) {
	if p.MaxPositionSizeBps != nil {
		rp.MaxPositionSizeBps = *p.MaxPositionSizeBps
	}
	if p.MaxDailyVolatilityBps != nil {
		rp.MaxDailyVolatilityBps = *p.MaxDailyVolatilityBps
	}
	if p.CorrelationThreshold != nil {
		rp.CorrelationThreshold = *p.CorrelationThreshold
	}
	if p.StressTestThreshold != nil {
		rp.StressTestThreshold = *p.StressTestThreshold
	}
	if p.RebalanceThresholdBps != nil {
		rp.RebalanceThresholdBps = *p.RebalanceThresholdBps
	}
}
