package model

// RebalanceConfig gates how often and how hard the rebalancer may act.
type RebalanceConfig struct {
	MinRebalanceAmount    *Amount `json:"min_rebalance_amount"` // USD value, price scale units
	MaxSlippageBps        uint32  `json:"max_slippage_bps"`
	RebalanceFrequency    int64   `json:"rebalance_frequency"` // seconds
	MaxTradesPerRebalance int     `json:"max_trades_per_rebalance"`
}

type RebalanceConfigPatch struct {
	MinRebalanceAmount    *Amount `json:"min_rebalance_amount,omitempty"`
	MaxSlippageBps        *uint32 `json:"max_slippage_bps,omitempty"`
	RebalanceFrequency    *int64  `json:"rebalance_frequency,omitempty"`
	MaxTradesPerRebalance *int    `json:"max_trades_per_rebalance,omitempty"`
}

func (p RebalanceConfigPatch) Apply(cfg *RebalanceConfig) {
	if p.MinRebalanceAmount != nil {
		cfg.MinRebalanceAmount = p.MinRebalanceAmount
	}
	if p.MaxSlippageBps != nil {
		cfg.MaxSlippageBps = *p.MaxSlippageBps
	}
	if p.RebalanceFrequency != nil {
		cfg.RebalanceFrequency = *p.RebalanceFrequency
	}
	if p.MaxTradesPerRebalance != nil {
		cfg.MaxTradesPerRebalance = *p.MaxTradesPerRebalance
	}
}

// PortfolioSnapshot is derived from live pool balances and prices on
// each rebalance call; it is never persisted.
type PortfolioSnapshot struct {
	TotalValueUSD *Amount           `json:"total_value_usd"`
	Balances      map[Asset]*Amount `json:"balances"`
	Values        map[Asset]*Amount `json:"values"`
	Percentages   map[Asset]uint32  `json:"percentages"`
}

// RebalanceOrder is produced and consumed within a single rebalance
// invocation. Amount is denominated in FromAsset token units,
// MinReceived in USD value units.
type RebalanceOrder struct {
	FromAsset      Asset   `json:"from_asset"`
	ToAsset        Asset   `json:"to_asset"`
	Amount         *Amount `json:"amount"`
	MinReceived    *Amount `json:"min_received"`
	MaxSlippageBps uint32  `json:"max_slippage_bps"`
	Priority       int     `json:"priority"` // 1-10, 10 highest
}

type RebalanceResult struct {
	TotalValueBefore *Amount `json:"total_value_before"`
	TotalValueAfter  *Amount `json:"total_value_after"`
	OrdersExecuted   int     `json:"orders_executed"`
	CostUnits        uint64  `json:"cost_units"`
	SlippageBps      uint32  `json:"slippage_bps"` // max slippage observed
	Timestamp        int64   `json:"timestamp"`
}

// PriceFeed is one cached oracle observation, USD price scaled by the
// oracle price scale (1e7).
type PriceFeed struct {
	Asset         Asset   `json:"asset"`
	PriceUSD      *Amount `json:"price_usd"`
	Timestamp     int64   `json:"timestamp"`
	ConfidenceBps uint32  `json:"confidence_bps"`
	Source        string  `json:"source"`
}

// AggregatedPrices bundles the latest USD price per supported asset.
type AggregatedPrices struct {
	KaleUSD       *Amount `json:"kale_usd"`
	XlmUSD        *Amount `json:"xlm_usd"`
	BtcUSD        *Amount `json:"btc_usd"`
	UsdcUSD       *Amount `json:"usdc_usd"`
	LastUpdated   int64   `json:"last_updated"`
	DataFreshness int64   `json:"data_freshness"` // seconds since last update
}
