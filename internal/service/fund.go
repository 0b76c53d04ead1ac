// Package service orchestrates the admin surface: fund initialization
// and the admin-gated configuration singletons.
package service

import (
	"context"

	"github.com/kalefund/fundgate/internal/fixedpoint"
	"github.com/kalefund/fundgate/internal/ledger"
	"github.com/kalefund/fundgate/internal/model"
	"github.com/kalefund/fundgate/internal/pkg/apperrors"
	"github.com/kalefund/fundgate/internal/pkg/logger"
	"github.com/kalefund/fundgate/internal/repository"
	"github.com/kalefund/fundgate/internal/risk"
)

// Initialization-time defaults for the singletons the initialize
// request does not cover.
var (
	defaultRiskParameters = model.RiskParameters{
		MaxPositionSizeBps:    4000,
		MaxDailyVolatilityBps: 2000,
		CorrelationThreshold:  7000,
		StressTestThreshold:   1500,
		RebalanceThresholdBps: 500,
	}
)

type FundService struct {
	store  repository.Store
	ledger *ledger.Ledger
	risk   *risk.Engine

	// defaults applied to the rebalance singleton at initialize
	rebalanceDefaults model.RebalanceConfig
}

func NewFundService(store repository.Store, l *ledger.Ledger, r *risk.Engine, rebalanceDefaults model.RebalanceConfig) *FundService {
	return &FundService{
		store:             store,
		ledger:            l,
		risk:              r,
		rebalanceDefaults: rebalanceDefaults,
	}
}

// Initialize seeds every singleton exactly once. The caller becomes the
// admin; a second call fails with ALREADY_INITIALIZED.
func (s *FundService) Initialize(ctx context.Context, caller string, req *model.InitializeRequest) (*model.FundConfig, error) {
	asset, ok := model.ParseAsset(req.SettlementAsset)
	if !ok {
		return nil, apperrors.NewInvalidRequest("unknown settlement asset " + req.SettlementAsset)
	}
	if req.MinDeposit.Sign() <= 0 || req.MaxDeposit.Cmp(req.MinDeposit) < 0 {
		return nil, apperrors.Newf(apperrors.ErrInvalidAmount,
			"deposit bounds invalid: min=%s max=%s", req.MinDeposit, req.MaxDeposit)
	}
	if req.LockPeriod < 0 {
		return nil, apperrors.NewInvalidRequest("lock period must not be negative")
	}
	if err := validateBps(req.WithdrawalFeeBps, req.PerformanceFeeBps,
		req.EarlyWithdrawalPenaltyBps, req.ReferralBonusBps); err != nil {
		return nil, err
	}

	cfg := &model.FundConfig{
		SettlementAsset:           asset,
		MinDeposit:                req.MinDeposit,
		MaxDeposit:                req.MaxDeposit,
		LockPeriod:                req.LockPeriod,
		WithdrawalFeeBps:          req.WithdrawalFeeBps,
		PerformanceFeeBps:         req.PerformanceFeeBps,
		EarlyWithdrawalPenaltyBps: req.EarlyWithdrawalPenaltyBps,
		ReferralBonusBps:          req.ReferralBonusBps,
	}
	if err := s.store.InitializeFund(ctx, caller, cfg); err != nil {
		if err == repository.ErrAlreadyInitialized {
			return nil, apperrors.New(apperrors.ErrAlreadyInitialized, "fund already initialized", nil)
		}
		return nil, apperrors.Wrap(err)
	}

	if err := s.store.PutRiskParameters(ctx, &defaultRiskParameters); err != nil {
		return nil, apperrors.Wrap(err)
	}
	reb := s.rebalanceDefaults
	if err := s.store.PutRebalanceConfig(ctx, &reb); err != nil {
		return nil, apperrors.Wrap(err)
	}
	if err := s.risk.SeedDefaults(ctx); err != nil {
		return nil, err
	}

	logger.Info("fund initialized",
		"admin", caller,
		"settlement_asset", asset,
		"min_deposit", cfg.MinDeposit.String(),
		"max_deposit", cfg.MaxDeposit.String(),
		"lock_period", cfg.LockPeriod,
	)
	return cfg, nil
}

// RequireAdmin fails with UNAUTHORIZED unless caller is the stored
// admin identity.
func (s *FundService) RequireAdmin(ctx context.Context, caller string) error {
	admin, err := s.store.GetAdmin(ctx)
	if err != nil {
		return apperrors.Wrap(err)
	}
	if admin == "" {
		return apperrors.New(apperrors.ErrNotInitialized, "fund not initialized", nil)
	}
	if caller != admin {
		return apperrors.NewUnauthorized("caller is not the fund admin")
	}
	return nil
}

func (s *FundService) GetConfig(ctx context.Context) (*model.FundConfig, error) {
	cfg, err := s.store.GetFundConfig(ctx)
	if err != nil {
		return nil, apperrors.Wrap(err)
	}
	if cfg == nil {
		return nil, apperrors.New(apperrors.ErrNotInitialized, "fund not initialized", nil)
	}
	return cfg, nil
}

// UpdateConfig applies a patch to the fund singleton (admin only).
func (s *FundService) UpdateConfig(ctx context.Context, caller string, patch model.FundConfigPatch) (*model.FundConfig, error) {
	if err := s.RequireAdmin(ctx, caller); err != nil {
		return nil, err
	}
	cfg, err := s.GetConfig(ctx)
	if err != nil {
		return nil, err
	}
	patch.Apply(cfg)
	if cfg.MinDeposit.Sign() <= 0 || cfg.MaxDeposit.Cmp(cfg.MinDeposit) < 0 {
		return nil, apperrors.Newf(apperrors.ErrInvalidAmount,
			"deposit bounds invalid: min=%s max=%s", cfg.MinDeposit, cfg.MaxDeposit)
	}
	if err := validateBps(cfg.WithdrawalFeeBps, cfg.PerformanceFeeBps,
		cfg.EarlyWithdrawalPenaltyBps, cfg.ReferralBonusBps); err != nil {
		return nil, err
	}
	if err := s.store.PutFundConfig(ctx, cfg); err != nil {
		return nil, apperrors.Wrap(err)
	}
	logger.Info("fund config updated", "admin", caller)
	return cfg, nil
}

func (s *FundService) GetRiskParameters(ctx context.Context) (*model.RiskParameters, error) {
	rp, err := s.store.GetRiskParameters(ctx)
	if err != nil {
		return nil, apperrors.Wrap(err)
	}
	if rp == nil {
		return nil, apperrors.New(apperrors.ErrNotInitialized, "risk parameters not set", nil)
	}
	return rp, nil
}

func (s *FundService) UpdateRiskParameters(ctx context.Context, caller string, patch model.RiskParametersPatch) (*model.RiskParameters, error) {
	if err := s.RequireAdmin(ctx, caller); err != nil {
		return nil, err
	}
	rp, err := s.GetRiskParameters(ctx)
	if err != nil {
		return nil, err
	}
	patch.Apply(rp)
	if err := validateBps(rp.MaxPositionSizeBps, rp.MaxDailyVolatilityBps,
		rp.CorrelationThreshold, rp.StressTestThreshold, rp.RebalanceThresholdBps); err != nil {
		return nil, err
	}
	if err := s.store.PutRiskParameters(ctx, rp); err != nil {
		return nil, apperrors.Wrap(err)
	}
	logger.Info("risk parameters updated", "admin", caller)
	return rp, nil
}

func (s *FundService) GetRebalanceConfig(ctx context.Context) (*model.RebalanceConfig, error) {
	cfg, err := s.store.GetRebalanceConfig(ctx)
	if err != nil {
		return nil, apperrors.Wrap(err)
	}
	if cfg == nil {
		return nil, apperrors.New(apperrors.ErrNotInitialized, "rebalancer not configured", nil)
	}
	return cfg, nil
}

func (s *FundService) UpdateRebalanceConfig(ctx context.Context, caller string, patch model.RebalanceConfigPatch) (*model.RebalanceConfig, error) {
	if err := s.RequireAdmin(ctx, caller); err != nil {
		return nil, err
	}
	cfg, err := s.GetRebalanceConfig(ctx)
	if err != nil {
		return nil, err
	}
	patch.Apply(cfg)
	if cfg.MinRebalanceAmount == nil || cfg.MinRebalanceAmount.Sign() < 0 {
		return nil, apperrors.Newf(apperrors.ErrInvalidAmount, "min rebalance amount must not be negative")
	}
	if err := validateBps(cfg.MaxSlippageBps); err != nil {
		return nil, err
	}
	if cfg.RebalanceFrequency < 0 || cfg.MaxTradesPerRebalance < 0 {
		return nil, apperrors.NewInvalidRequest("rebalance frequency and trade cap must not be negative")
	}
	if err := s.store.PutRebalanceConfig(ctx, cfg); err != nil {
		return nil, apperrors.Wrap(err)
	}
	logger.Info("rebalance config updated", "admin", caller)
	return cfg, nil
}

// DistributeRewards is the admin-gated entry into the ledger's
// pro-rata reward credit. The admin's identity funds the pot.
func (s *FundService) DistributeRewards(ctx context.Context, caller string, totalRewards *model.Amount) (*model.Amount, error) {
	if err := s.RequireAdmin(ctx, caller); err != nil {
		return nil, err
	}
	return s.ledger.DistributeRewards(ctx, caller, totalRewards)
}

// GetLastRebalance exposes the last executed rebalance timestamp.
func (s *FundService) GetLastRebalance(ctx context.Context) (int64, error) {
	ts, err := s.store.GetLastRebalance(ctx)
	if err != nil {
		return 0, apperrors.Wrap(err)
	}
	return ts, nil
}

func validateBps(values ...uint32) error {
	for _, v := range values {
		if v > fixedpoint.BpsDenominator {
			return apperrors.Newf(apperrors.ErrInvalidRequest,
				"basis-point value %d exceeds %d", v, fixedpoint.BpsDenominator)
		}
	}
	return nil
}
