package oracle

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kalefund/fundgate/internal/model"
	"github.com/kalefund/fundgate/internal/pkg/apperrors"
)

func newTestService() *Service {
	s := NewService(NewMemoryCache(), Config{
		MaxPriceAge:           300,
		UpdateFrequency:       60,
		DeviationThresholdBps: 1000,
	})
	s.Now = func() time.Time { return time.Unix(10_000, 0) }
	return s
}

func TestGetPriceDefaults(t *testing.T) {
	s := newTestService()
	ctx := context.Background()

	feed, err := s.GetPrice(ctx, model.AssetBTC)
	require.NoError(t, err)
	assert.Equal(t, "430000000000", feed.PriceUSD.String())
	assert.Equal(t, SourceDefault, feed.Source)

	feed, err = s.GetPrice(ctx, model.AssetUSDC)
	require.NoError(t, err)
	assert.Equal(t, "10000000", feed.PriceUSD.String())
}

func TestGetPriceRejectsUnknownAsset(t *testing.T) {
	s := newTestService()
	_, err := s.GetPrice(context.Background(), "DOGE")
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrInvalidRequest))
}

func TestApplyFeedAndFreshness(t *testing.T) {
	s := newTestService()
	ctx := context.Background()

	update, err := s.ApplyFeed(ctx, &model.PriceFeed{
		Asset:         model.AssetKALE,
		PriceUSD:      model.NewAmount(100_000_000),
		Timestamp:     9_900,
		ConfidenceBps: feedConfidenceBps,
		Source:        SourceFeed,
	})
	require.NoError(t, err)
	assert.Zero(t, update.PriceChangeBps)

	fresh, err := s.IsPriceFresh(ctx, model.AssetKALE)
	require.NoError(t, err)
	assert.True(t, fresh)

	feed, err := s.GetFreshPrice(ctx, model.AssetKALE)
	require.NoError(t, err)
	assert.Equal(t, "100000000", feed.PriceUSD.String())

	// 10% move against the cached price
	update, err = s.ApplyFeed(ctx, &model.PriceFeed{
		Asset:     model.AssetKALE,
		PriceUSD:  model.NewAmount(110_000_000),
		Timestamp: 9_950,
		Source:    SourceFeed,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1000), update.PriceChangeBps)
}

func TestStalePriceFallsBackToDefault(t *testing.T) {
	s := newTestService()
	ctx := context.Background()

	_, err := s.ApplyFeed(ctx, &model.PriceFeed{
		Asset:     model.AssetKALE,
		PriceUSD:  model.NewAmount(200_000_000),
		Timestamp: 9_000, // 1000s old, max age 300
		Source:    SourceFeed,
	})
	require.NoError(t, err)

	fresh, err := s.IsPriceFresh(ctx, model.AssetKALE)
	require.NoError(t, err)
	assert.False(t, fresh)

	_, err = s.GetFreshPrice(ctx, model.AssetKALE)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrNotFound))

	// the rebalancer price source ignores the stale feed
	price, err := s.Price(ctx, model.AssetKALE)
	require.NoError(t, err)
	assert.Equal(t, "100000000", price.String())
}

func TestApplyFeedRejectsNonPositivePrice(t *testing.T) {
	s := newTestService()
	_, err := s.ApplyFeed(context.Background(), &model.PriceFeed{
		Asset:    model.AssetKALE,
		PriceUSD: model.NewAmount(0),
	})
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrInvalidAmount))
}

func TestAggregatedPrices(t *testing.T) {
	s := newTestService()
	ctx := context.Background()

	// nothing cached: zeros except the USDC $1 default
	agg, err := s.AggregatedPrices(ctx)
	require.NoError(t, err)
	assert.Zero(t, agg.KaleUSD.Sign())
	assert.Equal(t, "10000000", agg.UsdcUSD.String())

	_, err = s.ApplyFeed(ctx, &model.PriceFeed{
		Asset:     model.AssetKALE,
		PriceUSD:  model.NewAmount(95_000_000),
		Timestamp: 9_400,
		Source:    SourceFeed,
	})
	require.NoError(t, err)

	agg, err = s.AggregatedPrices(ctx)
	require.NoError(t, err)
	assert.Equal(t, "95000000", agg.KaleUSD.String())
	assert.Equal(t, int64(9_400), agg.LastUpdated)
	assert.Equal(t, int64(600), agg.DataFreshness)
}

func TestEmergencyOverride(t *testing.T) {
	s := newTestService()
	ctx := context.Background()

	feed, err := s.EmergencyOverride(ctx, model.AssetXLM, model.NewAmount(9_000_000), "depeg")
	require.NoError(t, err)
	assert.Equal(t, uint32(emergencyConfidenceBps), feed.ConfidenceBps)
	assert.Equal(t, SourceEmergency, feed.Source)

	// override stamps the service clock, so it is immediately fresh
	price, err := s.Price(ctx, model.AssetXLM)
	require.NoError(t, err)
	assert.Equal(t, "9000000", price.String())
}

func TestPriceImpact(t *testing.T) {
	assert.Equal(t, uint32(10000), PriceImpact(big.NewInt(1), big.NewInt(0)))
	assert.Equal(t, uint32(100), PriceImpact(big.NewInt(1_000), big.NewInt(100_000)))
	// capped at 100%
	assert.Equal(t, uint32(10000), PriceImpact(big.NewInt(200_000), big.NewInt(100_000)))
}

func TestScalePrice(t *testing.T) {
	p, err := scalePrice("43000.25")
	require.NoError(t, err)
	assert.Equal(t, "430002500000", p.String())

	// excess precision truncates
	p, err = scalePrice("0.123456789")
	require.NoError(t, err)
	assert.Equal(t, "1234567", p.String())

	_, err = scalePrice("not-a-price")
	require.Error(t, err)
}
