package model

// Asset identifies a portfolio asset. KALE is the fund's settlement
// token; USDC is the stable leg rebalance orders route through.
type Asset string

const (
	AssetKALE Asset = "KALE"
	AssetBTC  Asset = "BTC"
	AssetUSDC Asset = "USDC"
	AssetXLM  Asset = "XLM"
)

// SupportedAssets returns the portfolio assets in canonical order:
// primary, hedge, stable, native.
func SupportedAssets() []Asset {
	return []Asset{AssetKALE, AssetBTC, AssetUSDC, AssetXLM}
}

func ParseAsset(s string) (Asset, bool) {
	switch Asset(s) {
	case AssetKALE, AssetBTC, AssetUSDC, AssetXLM:
		return Asset(s), true
	}
	return "", false
}

// AssetAllocation is a target weight vector in basis points. A valid
// allocation sums to exactly 10000.
type AssetAllocation struct {
	KaleBps uint32 `json:"kale_bps"`
	BtcBps  uint32 `json:"btc_bps"`
	UsdcBps uint32 `json:"usdc_bps"`
	XlmBps  uint32 `json:"xlm_bps"`
}

func (a AssetAllocation) Sum() uint32 {
	return a.KaleBps + a.BtcBps + a.UsdcBps + a.XlmBps
}

func (a AssetAllocation) Weight(asset Asset) uint32 {
	switch asset {
	case AssetKALE:
		return a.KaleBps
	case AssetBTC:
		return a.BtcBps
	case AssetUSDC:
		return a.UsdcBps
	case AssetXLM:
		return a.XlmBps
	}
	return 0
}

// VolatilityData is an admin-supplied market sample, overwritten
// wholesale per update call.
type VolatilityData struct {
	Asset              Asset  `json:"asset"`
	DailyVolatilityBps uint32 `json:"daily_volatility_bps"`
	WeeklyVolBps       uint32 `json:"weekly_volatility_bps"`
	MonthlyVolBps      uint32 `json:"monthly_volatility_bps"`
	LastUpdated        int64  `json:"last_updated"`
}

// RiskAssessment scores are all on a 0-10000 scale.
type RiskAssessment struct {
	Profile               RiskProfile     `json:"profile"`
	RecommendedAllocation AssetAllocation `json:"recommended_allocation"`
	RiskScore             uint32          `json:"risk_score"`
	VolatilityScore       uint32          `json:"volatility_score"`
	CorrelationRisk       uint32          `json:"correlation_risk"`
	LiquidityRisk         uint32          `json:"liquidity_risk"`
}
