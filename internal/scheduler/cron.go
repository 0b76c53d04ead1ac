// Package scheduler drives unattended rebalance checks on a cron
// schedule. Each tick targets the stored allocation of one configured
// profile; the rebalancer's own gates decide whether anything trades.
package scheduler

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"

	"github.com/kalefund/fundgate/internal/model"
	"github.com/kalefund/fundgate/internal/pkg/apperrors"
	"github.com/kalefund/fundgate/internal/pkg/logger"
	"github.com/kalefund/fundgate/internal/rebalance"
	"github.com/kalefund/fundgate/internal/risk"
)

type AutoRebalancer struct {
	rebalancer *rebalance.Rebalancer
	risk       *risk.Engine
	profile    model.RiskProfile

	cron *cron.Cron
}

func NewAutoRebalancer(r *rebalance.Rebalancer, engine *risk.Engine, profile model.RiskProfile) *AutoRebalancer {
	return &AutoRebalancer{
		rebalancer: r,
		risk:       engine,
		profile:    profile,
	}
}

// Start schedules rebalance checks on the given cron expression.
func (a *AutoRebalancer) Start(spec string) error {
	a.cron = cron.New()
	if _, err := a.cron.AddFunc(spec, func() {
		if err := a.RunOnce(context.Background()); err != nil {
			logger.Error("scheduled rebalance failed", "error", err)
		}
	}); err != nil {
		return fmt.Errorf("add cron job: %w", err)
	}
	a.cron.Start()
	logger.Info("auto-rebalancer started", "schedule", spec, "profile", a.profile)
	return nil
}

// RunOnce performs one rebalance check against the profile's stored
// target allocation. Frequency and drift gates inside the rebalancer
// make this safe to call more often than anything trades.
func (a *AutoRebalancer) RunOnce(ctx context.Context) error {
	alloc, err := a.risk.Allocation(ctx, a.profile)
	if err != nil {
		return err
	}
	targets := map[model.Asset]uint32{
		model.AssetKALE: alloc.KaleBps,
		model.AssetBTC:  alloc.BtcBps,
		model.AssetUSDC: alloc.UsdcBps,
		model.AssetXLM:  alloc.XlmBps,
	}

	result, err := a.rebalancer.Rebalance(ctx, targets, nil)
	if err != nil {
		// the gate firing is routine, not a failure
		if apperrors.Is(err, apperrors.ErrRebalanceTooSoon) {
			logger.Debug("scheduled rebalance skipped: frequency gate")
			return nil
		}
		return err
	}

	if result.OrdersExecuted > 0 {
		logger.Info("scheduled rebalance traded",
			"orders_executed", result.OrdersExecuted,
			"value_before", result.TotalValueBefore.String(),
			"value_after", result.TotalValueAfter.String(),
		)
	}
	return nil
}

// Stop halts the schedule and waits for a running job to finish.
func (a *AutoRebalancer) Stop() {
	if a.cron != nil {
		<-a.cron.Stop().Done()
	}
}
