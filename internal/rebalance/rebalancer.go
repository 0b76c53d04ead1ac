// Package rebalance drifts the fund's asset pools back toward a target
// allocation. Every trade routes through the USDC leg: over-allocated
// assets are sold into USDC first, then USDC buys the under-allocated
// side, so each order has a stable quote currency.
package rebalance

import (
	"context"
	"math/big"
	"sort"
	"time"

	"github.com/kalefund/fundgate/internal/fixedpoint"
	"github.com/kalefund/fundgate/internal/model"
	"github.com/kalefund/fundgate/internal/pkg/apperrors"
	"github.com/kalefund/fundgate/internal/pkg/logger"
	"github.com/kalefund/fundgate/internal/pkg/metrics"
	"github.com/kalefund/fundgate/internal/repository"
)

// needThresholdBps: only drift beyond 5% on some asset justifies
// paying for trades.
const needThresholdBps = 500

// orderSlippageBps is the per-order tolerance, capped by the
// configured maximum.
const orderSlippageBps = 200

// PriceSource supplies the current USD price for an asset at the 1e7
// fixed-point scale.
type PriceSource interface {
	Price(ctx context.Context, asset model.Asset) (*model.Amount, error)
}

type Rebalancer struct {
	store    repository.Store
	prices   PriceSource
	executor Executor

	Now func() time.Time
}

func New(store repository.Store, prices PriceSource, executor Executor) *Rebalancer {
	return &Rebalancer{
		store:    store,
		prices:   prices,
		executor: executor,
		Now:      time.Now,
	}
}

func (r *Rebalancer) loadConfig(ctx context.Context) (*model.RebalanceConfig, error) {
	cfg, err := r.store.GetRebalanceConfig(ctx)
	if err != nil {
		return nil, apperrors.Wrap(err)
	}
	if cfg == nil {
		return nil, apperrors.New(apperrors.ErrNotInitialized, "rebalancer not configured", nil)
	}
	return cfg, nil
}

// resolvePrices fills in any asset the caller did not quote from the
// price source.
func (r *Rebalancer) resolvePrices(ctx context.Context, supplied map[model.Asset]*model.Amount) (map[model.Asset]*big.Int, error) {
	out := make(map[model.Asset]*big.Int, len(model.SupportedAssets()))
	for _, asset := range model.SupportedAssets() {
		if p, ok := supplied[asset]; ok && p != nil && p.Sign() > 0 {
			out[asset] = p.Big()
			continue
		}
		p, err := r.prices.Price(ctx, asset)
		if err != nil {
			return nil, apperrors.Wrap(err)
		}
		if p.Sign() <= 0 {
			return nil, apperrors.Newf(apperrors.ErrUpstream, "no usable price for %s", asset)
		}
		out[asset] = p.Big()
	}
	return out, nil
}

// Snapshot values the current pool balances at the given prices.
func (r *Rebalancer) Snapshot(ctx context.Context, prices map[model.Asset]*big.Int) (*model.PortfolioSnapshot, error) {
	balances, err := r.store.GetPoolBalances(ctx)
	if err != nil {
		return nil, apperrors.Wrap(err)
	}

	snap := &model.PortfolioSnapshot{
		Balances:    make(map[model.Asset]*model.Amount, len(balances)),
		Values:      make(map[model.Asset]*model.Amount, len(balances)),
		Percentages: make(map[model.Asset]uint32, len(balances)),
	}
	scale := big.NewInt(fixedpoint.PriceScale)
	total := new(big.Int)
	for _, asset := range model.SupportedAssets() {
		bal := balances[asset].Big()
		value, err := fixedpoint.MulDiv(bal, prices[asset], scale)
		if err != nil {
			return nil, apperrors.New(apperrors.ErrArithmeticOverflow, "portfolio value exceeds 128-bit range", err)
		}
		snap.Balances[asset] = model.NewAmountFromBig(bal)
		snap.Values[asset] = model.NewAmountFromBig(value)
		total.Add(total, value)
	}
	snap.TotalValueUSD = model.NewAmountFromBig(total)
	for _, asset := range model.SupportedAssets() {
		snap.Percentages[asset] = fixedpoint.PercentOf(snap.Values[asset].Big(), total)
	}
	return snap, nil
}

// needsRebalancing gates on portfolio size and on drift: below the
// minimum value, or with every asset within the threshold, trading is
// not worth its cost.
func needsRebalancing(cfg *model.RebalanceConfig, snap *model.PortfolioSnapshot, targets map[model.Asset]uint32) bool {
	if snap.TotalValueUSD.Big().Cmp(cfg.MinRebalanceAmount.Big()) < 0 {
		return false
	}
	for _, asset := range model.SupportedAssets() {
		if fixedpoint.AbsDiff(snap.Percentages[asset], targets[asset]) > needThresholdBps {
			return true
		}
	}
	return false
}

// GenerateOrders produces the trade list that moves the snapshot to the
// target weights. Sells (priority 5) run before buys (priority 4) so
// the USDC leg is funded when the buys execute. USDC itself never
// appears as a from/to pair with itself; its weight is balanced by the
// other legs.
func (r *Rebalancer) GenerateOrders(cfg *model.RebalanceConfig, snap *model.PortfolioSnapshot, targets map[model.Asset]uint32, prices map[model.Asset]*big.Int) ([]*model.RebalanceOrder, error) {
	slip := uint32(orderSlippageBps)
	if cfg.MaxSlippageBps < slip {
		slip = cfg.MaxSlippageBps
	}

	scale := big.NewInt(fixedpoint.PriceScale)
	total := snap.TotalValueUSD.Big()
	var orders []*model.RebalanceOrder
	for _, asset := range model.SupportedAssets() {
		if asset == model.AssetUSDC {
			continue
		}
		targetValue, err := fixedpoint.MulBps(total, targets[asset])
		if err != nil {
			return nil, apperrors.New(apperrors.ErrArithmeticOverflow, "target value exceeds 128-bit range", err)
		}
		current := snap.Values[asset].Big()

		switch current.Cmp(targetValue) {
		case 1: // over-allocated: sell excess into USDC
			excess := new(big.Int).Sub(current, targetValue)
			tokens, err := fixedpoint.MulDiv(excess, scale, prices[asset])
			if err != nil {
				return nil, apperrors.Wrap(err)
			}
			if tokens.Sign() == 0 {
				continue
			}
			minRecv, err := fixedpoint.MulBps(excess, fixedpoint.BpsDenominator-slip)
			if err != nil {
				return nil, apperrors.Wrap(err)
			}
			orders = append(orders, &model.RebalanceOrder{
				FromAsset:      asset,
				ToAsset:        model.AssetUSDC,
				Amount:         model.NewAmountFromBig(tokens),
				MinReceived:    model.NewAmountFromBig(minRecv),
				MaxSlippageBps: slip,
				Priority:       5,
			})
		case -1: // under-allocated: buy with USDC
			deficit := new(big.Int).Sub(targetValue, current)
			usdcTokens, err := fixedpoint.MulDiv(deficit, scale, prices[model.AssetUSDC])
			if err != nil {
				return nil, apperrors.Wrap(err)
			}
			if usdcTokens.Sign() == 0 {
				continue
			}
			minRecv, err := fixedpoint.MulBps(deficit, fixedpoint.BpsDenominator-slip)
			if err != nil {
				return nil, apperrors.Wrap(err)
			}
			orders = append(orders, &model.RebalanceOrder{
				FromAsset:      model.AssetUSDC,
				ToAsset:        asset,
				Amount:         model.NewAmountFromBig(usdcTokens),
				MinReceived:    model.NewAmountFromBig(minRecv),
				MaxSlippageBps: slip,
				Priority:       4,
			})
		}
	}

	sort.SliceStable(orders, func(i, j int) bool { return orders[i].Priority > orders[j].Priority })
	return orders, nil
}

// Rebalance runs one full cycle: frequency gate, snapshot, drift check,
// order generation and execution up to the trade cap. The last-run
// timestamp advances only when a cycle actually trades.
func (r *Rebalancer) Rebalance(ctx context.Context, targets map[model.Asset]uint32, supplied map[model.Asset]*model.Amount) (*model.RebalanceResult, error) {
	cfg, err := r.loadConfig(ctx)
	if err != nil {
		return nil, err
	}

	now := r.Now().Unix()
	last, err := r.store.GetLastRebalance(ctx)
	if err != nil {
		return nil, apperrors.Wrap(err)
	}
	if now < last+cfg.RebalanceFrequency {
		metrics.RebalanceRuns.WithLabelValues("too_soon").Inc()
		return nil, apperrors.Newf(apperrors.ErrRebalanceTooSoon,
			"next rebalance allowed at %d, now %d", last+cfg.RebalanceFrequency, now)
	}

	var sum uint32
	for _, asset := range model.SupportedAssets() {
		sum += targets[asset]
	}
	if sum != fixedpoint.BpsDenominator {
		return nil, apperrors.Newf(apperrors.ErrInvalidAllocation,
			"target allocations must sum to %d basis points, got %d", fixedpoint.BpsDenominator, sum)
	}

	prices, err := r.resolvePrices(ctx, supplied)
	if err != nil {
		return nil, err
	}
	snap, err := r.Snapshot(ctx, prices)
	if err != nil {
		return nil, err
	}

	if !needsRebalancing(cfg, snap, targets) {
		metrics.RebalanceRuns.WithLabelValues("noop").Inc()
		logger.Info("no rebalancing needed", "total_value_usd", snap.TotalValueUSD.String())
		return &model.RebalanceResult{
			TotalValueBefore: snap.TotalValueUSD.Clone(),
			TotalValueAfter:  snap.TotalValueUSD.Clone(),
			Timestamp:        now,
		}, nil
	}

	orders, err := r.GenerateOrders(cfg, snap, targets, prices)
	if err != nil {
		return nil, err
	}

	result := &model.RebalanceResult{
		TotalValueBefore: snap.TotalValueUSD.Clone(),
		Timestamp:        now,
	}
	scale := big.NewInt(fixedpoint.PriceScale)
	for _, order := range orders {
		if result.OrdersExecuted >= cfg.MaxTradesPerRebalance {
			break
		}
		// the sells that fund the USDC leg credit slightly under face
		// value, so a buy can find less USDC than its nominal deficit;
		// clamp to what the pool actually holds
		if order.FromAsset == model.AssetUSDC {
			pools, perr := r.store.GetPoolBalances(ctx)
			if perr != nil {
				return nil, apperrors.Wrap(perr)
			}
			avail := pools[model.AssetUSDC].Big()
			if avail.Cmp(order.Amount.Big()) < 0 {
				if avail.Sign() <= 0 {
					continue
				}
				value, verr := fixedpoint.MulDiv(avail, prices[model.AssetUSDC], scale)
				if verr != nil {
					return nil, apperrors.Wrap(verr)
				}
				minRecv, verr := fixedpoint.MulBps(value, fixedpoint.BpsDenominator-order.MaxSlippageBps)
				if verr != nil {
					return nil, apperrors.Wrap(verr)
				}
				order.Amount = model.NewAmountFromBig(avail)
				order.MinReceived = model.NewAmountFromBig(minRecv)
			}
		}

		report, err := r.executor.Execute(ctx, order)
		if err != nil {
			// stop the cycle but keep what already traded on the books
			logger.LogError(ctx, err, "order execution failed",
				"from", order.FromAsset, "to", order.ToAsset)
			break
		}

		receivedTokens, err := fixedpoint.MulDiv(report.ReceivedUSD, scale, prices[order.ToAsset])
		if err != nil {
			return nil, apperrors.Wrap(err)
		}
		if err := r.store.AdjustPoolBalance(ctx, order.FromAsset, new(big.Int).Neg(order.Amount.Big())); err != nil {
			return nil, apperrors.Wrap(err)
		}
		if err := r.store.AdjustPoolBalance(ctx, order.ToAsset, receivedTokens); err != nil {
			return nil, apperrors.Wrap(err)
		}

		result.OrdersExecuted++
		result.CostUnits += report.CostUnits
		if report.SlippageBps > result.SlippageBps {
			result.SlippageBps = report.SlippageBps
		}
		metrics.RebalanceOrdersExecuted.Inc()
	}

	after, err := r.Snapshot(ctx, prices)
	if err != nil {
		return nil, err
	}
	result.TotalValueAfter = after.TotalValueUSD.Clone()

	if err := r.store.SetLastRebalance(ctx, now); err != nil {
		return nil, apperrors.Wrap(err)
	}
	metrics.RebalanceRuns.WithLabelValues("executed").Inc()

	logger.Info("rebalance completed",
		"orders_executed", result.OrdersExecuted,
		"cost_units", result.CostUnits,
		"slippage_bps", result.SlippageBps,
		"value_before", result.TotalValueBefore.String(),
		"value_after", result.TotalValueAfter.String(),
	)
	return result, nil
}

// Preview values the portfolio and generates the order list without
// executing anything or advancing the frequency gate.
func (r *Rebalancer) Preview(ctx context.Context, targets map[model.Asset]uint32, supplied map[model.Asset]*model.Amount) (*model.PortfolioSnapshot, []*model.RebalanceOrder, error) {
	cfg, err := r.loadConfig(ctx)
	if err != nil {
		return nil, nil, err
	}
	prices, err := r.resolvePrices(ctx, supplied)
	if err != nil {
		return nil, nil, err
	}
	snap, err := r.Snapshot(ctx, prices)
	if err != nil {
		return nil, nil, err
	}
	if !needsRebalancing(cfg, snap, targets) {
		return snap, nil, nil
	}
	orders, err := r.GenerateOrders(cfg, snap, targets, prices)
	if err != nil {
		return nil, nil, err
	}
	return snap, orders, nil
}
