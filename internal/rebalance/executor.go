package rebalance

import (
	"context"
	"math/big"

	"github.com/kalefund/fundgate/internal/model"
	"github.com/kalefund/fundgate/internal/pkg/logger"
)

// ExecutionReport is what one filled order came back with. ReceivedUSD
// is the value actually credited to the to-asset leg, never less than
// the order's MinReceived on a successful fill.
type ExecutionReport struct {
	ReceivedUSD *big.Int
	CostUnits   uint64
	SlippageBps uint32
}

// Executor fills a single rebalance order against a trading venue.
type Executor interface {
	Execute(ctx context.Context, order *model.RebalanceOrder) (*ExecutionReport, error)
}

// SimulatedExecutor fills every order at half the allowed slippage with
// a flat per-trade cost. It stands in for a DEX client in local runs.
type SimulatedExecutor struct {
	// CostPerTrade defaults to 50000 resource units when zero.
	CostPerTrade uint64
}

const defaultCostPerTrade = 50000

func (e *SimulatedExecutor) Execute(ctx context.Context, order *model.RebalanceOrder) (*ExecutionReport, error) {
	cost := e.CostPerTrade
	if cost == 0 {
		cost = defaultCostPerTrade
	}
	logger.Debug("order filled",
		"from", order.FromAsset,
		"to", order.ToAsset,
		"amount", order.Amount.String(),
		"min_received", order.MinReceived.String(),
	)
	return &ExecutionReport{
		ReceivedUSD: order.MinReceived.Big(),
		CostUnits:   cost,
		SlippageBps: order.MaxSlippageBps / 2,
	}, nil
}
