// Package oracle caches USD price feeds for the portfolio assets and
// answers pricing questions for the rebalancer. Prices are fixed-point
// integers at the 1e7 scale.
package oracle

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/kalefund/fundgate/internal/fixedpoint"
	"github.com/kalefund/fundgate/internal/model"
	"github.com/kalefund/fundgate/internal/pkg/apperrors"
	"github.com/kalefund/fundgate/internal/pkg/logger"
	"github.com/kalefund/fundgate/internal/pkg/metrics"
)

const (
	// SourceFeed marks prices that arrived over the live feed.
	SourceFeed = "feed"
	// SourceEmergency marks admin overrides.
	SourceEmergency = "emergency"
	// SourceDefault marks built-in fallback quotes.
	SourceDefault = "default"

	feedConfidenceBps      = 9500
	emergencyConfidenceBps = 5000
)

// Cache stores the latest feed per asset. Get returns (nil, nil) on a
// miss.
type Cache interface {
	Get(ctx context.Context, asset model.Asset) (*model.PriceFeed, error)
	Put(ctx context.Context, feed *model.PriceFeed) error
}

// MemoryCache is the in-process cache used by tests and single-node
// deployments.
type MemoryCache struct {
	mu    sync.RWMutex
	feeds map[model.Asset]*model.PriceFeed
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{feeds: make(map[model.Asset]*model.PriceFeed)}
}

func (c *MemoryCache) Get(ctx context.Context, asset model.Asset) (*model.PriceFeed, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	feed, ok := c.feeds[asset]
	if !ok {
		return nil, nil
	}
	cp := *feed
	cp.PriceUSD = feed.PriceUSD.Clone()
	return &cp, nil
}

func (c *MemoryCache) Put(ctx context.Context, feed *model.PriceFeed) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	cp := *feed
	cp.PriceUSD = feed.PriceUSD.Clone()
	c.feeds[feed.Asset] = &cp
	return nil
}

// Config bounds feed acceptance and staleness.
type Config struct {
	MaxPriceAge           int64  // seconds before a feed counts as stale
	UpdateFrequency       int64  // minimum seconds between full refreshes
	DeviationThresholdBps uint32 // tick-to-tick move that triggers a warning
}

type Service struct {
	cache Cache
	cfg   Config

	mu         sync.Mutex
	lastUpdate int64

	Now func() time.Time
}

func NewService(cache Cache, cfg Config) *Service {
	return &Service{cache: cache, cfg: cfg, Now: time.Now}
}

// DefaultPrice is the built-in fallback quote for an asset.
func DefaultPrice(asset model.Asset) *model.Amount {
	switch asset {
	case model.AssetKALE:
		return model.NewAmount(100_000_000) // $10.00
	case model.AssetBTC:
		return model.NewAmount(430_000_000_000) // $43,000.00
	case model.AssetUSDC:
		return model.NewAmount(10_000_000) // $1.00
	case model.AssetXLM:
		return model.NewAmount(11_000_000) // $0.11
	}
	return model.NewAmount(0)
}

// GetPrice returns the cached feed for an asset, or the built-in
// default feed when nothing has ever been cached.
func (s *Service) GetPrice(ctx context.Context, asset model.Asset) (*model.PriceFeed, error) {
	if _, ok := model.ParseAsset(string(asset)); !ok {
		return nil, apperrors.NewInvalidRequest("unknown asset " + string(asset))
	}
	feed, err := s.cache.Get(ctx, asset)
	if err != nil {
		return nil, apperrors.New(apperrors.ErrUpstream, "price cache read failed", err)
	}
	if feed != nil {
		return feed, nil
	}
	return &model.PriceFeed{
		Asset:         asset,
		PriceUSD:      DefaultPrice(asset),
		Timestamp:     0,
		ConfidenceBps: 0,
		Source:        SourceDefault,
	}, nil
}

// IsPriceFresh reports whether a cached feed exists and is within the
// configured maximum age. Default quotes are never fresh.
func (s *Service) IsPriceFresh(ctx context.Context, asset model.Asset) (bool, error) {
	feed, err := s.cache.Get(ctx, asset)
	if err != nil {
		return false, apperrors.New(apperrors.ErrUpstream, "price cache read failed", err)
	}
	if feed == nil {
		return false, nil
	}
	return s.Now().Unix()-feed.Timestamp <= s.cfg.MaxPriceAge, nil
}

// GetFreshPrice is GetPrice restricted to non-stale feeds.
func (s *Service) GetFreshPrice(ctx context.Context, asset model.Asset) (*model.PriceFeed, error) {
	fresh, err := s.IsPriceFresh(ctx, asset)
	if err != nil {
		return nil, err
	}
	if !fresh {
		return nil, apperrors.Newf(apperrors.ErrNotFound, "no fresh price for %s", asset)
	}
	return s.cache.Get(ctx, asset)
}

// Price satisfies the rebalancer's price source: a fresh feed when one
// exists, the default quote otherwise.
func (s *Service) Price(ctx context.Context, asset model.Asset) (*model.Amount, error) {
	fresh, err := s.IsPriceFresh(ctx, asset)
	if err != nil {
		return nil, err
	}
	if fresh {
		feed, err := s.cache.Get(ctx, asset)
		if err != nil {
			return nil, apperrors.New(apperrors.ErrUpstream, "price cache read failed", err)
		}
		return feed.PriceUSD, nil
	}
	return DefaultPrice(asset), nil
}

// AggregatedPrices bundles the latest USD quote per asset. Missing
// assets report zero, except USDC which defaults to $1.
func (s *Service) AggregatedPrices(ctx context.Context) (*model.AggregatedPrices, error) {
	out := &model.AggregatedPrices{
		KaleUSD: model.NewAmount(0),
		XlmUSD:  model.NewAmount(0),
		BtcUSD:  model.NewAmount(0),
		UsdcUSD: model.NewAmount(10_000_000),
	}
	for _, asset := range model.SupportedAssets() {
		feed, err := s.cache.Get(ctx, asset)
		if err != nil {
			return nil, apperrors.New(apperrors.ErrUpstream, "price cache read failed", err)
		}
		if feed == nil {
			continue
		}
		switch asset {
		case model.AssetKALE:
			out.KaleUSD = feed.PriceUSD
		case model.AssetXLM:
			out.XlmUSD = feed.PriceUSD
		case model.AssetBTC:
			out.BtcUSD = feed.PriceUSD
		case model.AssetUSDC:
			out.UsdcUSD = feed.PriceUSD
		}
		if feed.Timestamp > out.LastUpdated {
			out.LastUpdated = feed.Timestamp
		}
	}
	if now := s.Now().Unix(); now > out.LastUpdated {
		out.DataFreshness = now - out.LastUpdated
	}
	return out, nil
}

// PriceUpdate describes one applied feed tick.
type PriceUpdate struct {
	Asset          model.Asset   `json:"asset"`
	OldPrice       *model.Amount `json:"old_price"`
	NewPrice       *model.Amount `json:"new_price"`
	PriceChangeBps int64         `json:"price_change_bps"` // signed
	Timestamp      int64         `json:"timestamp"`
}

// ApplyFeed stores a new feed observation and reports the move against
// the previous cached price. Large moves are logged but not rejected.
func (s *Service) ApplyFeed(ctx context.Context, feed *model.PriceFeed) (*PriceUpdate, error) {
	if _, ok := model.ParseAsset(string(feed.Asset)); !ok {
		return nil, apperrors.NewInvalidRequest("unknown asset " + string(feed.Asset))
	}
	if feed.PriceUSD == nil || feed.PriceUSD.Sign() <= 0 {
		return nil, apperrors.Newf(apperrors.ErrInvalidAmount, "price for %s must be positive", feed.Asset)
	}

	prev, err := s.cache.Get(ctx, feed.Asset)
	if err != nil {
		return nil, apperrors.New(apperrors.ErrUpstream, "price cache read failed", err)
	}

	update := &PriceUpdate{
		Asset:     feed.Asset,
		NewPrice:  feed.PriceUSD.Clone(),
		Timestamp: feed.Timestamp,
	}
	if prev != nil && prev.PriceUSD.Sign() > 0 {
		update.OldPrice = prev.PriceUSD.Clone()
		change := new(big.Int).Sub(feed.PriceUSD.Big(), prev.PriceUSD.Big())
		change.Mul(change, big.NewInt(fixedpoint.BpsDenominator))
		change.Quo(change, prev.PriceUSD.Big())
		update.PriceChangeBps = change.Int64()
	} else {
		update.OldPrice = feed.PriceUSD.Clone()
	}

	abs := update.PriceChangeBps
	if abs < 0 {
		abs = -abs
	}
	if s.cfg.DeviationThresholdBps > 0 && abs > int64(s.cfg.DeviationThresholdBps) {
		logger.Warn("price moved beyond deviation threshold",
			"asset", feed.Asset, "change_bps", update.PriceChangeBps)
	}

	if err := s.cache.Put(ctx, feed); err != nil {
		return nil, apperrors.New(apperrors.ErrUpstream, "price cache write failed", err)
	}
	s.mu.Lock()
	if feed.Timestamp > s.lastUpdate {
		s.lastUpdate = feed.Timestamp
	}
	s.mu.Unlock()

	metrics.OraclePriceUpdates.WithLabelValues(string(feed.Asset), feed.Source).Inc()
	return update, nil
}

// EmergencyOverride pins an asset's price by hand. The override carries
// medium confidence and a fresh timestamp so it immediately wins over
// stale feed data.
func (s *Service) EmergencyOverride(ctx context.Context, asset model.Asset, price *model.Amount, reason string) (*model.PriceFeed, error) {
	feed := &model.PriceFeed{
		Asset:         asset,
		PriceUSD:      price,
		Timestamp:     s.Now().Unix(),
		ConfidenceBps: emergencyConfidenceBps,
		Source:        SourceEmergency,
	}
	if _, err := s.ApplyFeed(ctx, feed); err != nil {
		return nil, err
	}
	logger.Warn("emergency price override",
		"asset", asset, "price", price.String(), "reason", reason)
	return feed, nil
}

// PriceImpact estimates the basis-point impact of a trade against the
// available liquidity: amount/liquidity, capped at 100%. Zero liquidity
// reads as full impact.
func PriceImpact(tradeAmount, totalLiquidity *big.Int) uint32 {
	if totalLiquidity.Sign() == 0 {
		return fixedpoint.BpsDenominator
	}
	return fixedpoint.PercentOf(tradeAmount, totalLiquidity)
}

// TWAP returns the time-weighted average price over the window.
// TODO: back this with the history the redis cache already retains
// instead of returning the spot price.
func (s *Service) TWAP(ctx context.Context, asset model.Asset, window time.Duration) (*model.Amount, error) {
	feed, err := s.GetPrice(ctx, asset)
	if err != nil {
		return nil, err
	}
	return feed.PriceUSD, nil
}
