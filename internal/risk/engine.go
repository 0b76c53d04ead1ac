// Package risk maps risk profiles to target allocations and scores
// portfolios against them. All scores live on a 0-10000 basis-point
// scale.
package risk

import (
	"context"

	"github.com/kalefund/fundgate/internal/fixedpoint"
	"github.com/kalefund/fundgate/internal/model"
	"github.com/kalefund/fundgate/internal/pkg/apperrors"
	"github.com/kalefund/fundgate/internal/pkg/logger"
	"github.com/kalefund/fundgate/internal/repository"
)

// Overall score weights, in percent.
const (
	weightAllocation  = 30
	weightVolatility  = 40
	weightCorrelation = 20
	weightLiquidity   = 10
)

// neutralVolatilityScore is assumed when no market samples exist.
const neutralVolatilityScore = 5000

// CorrelationEstimator scores cross-asset correlation risk from market
// samples. The default is a fixed placeholder; swap in a real
// estimator once historical price series are available.
type CorrelationEstimator interface {
	Estimate(samples []model.VolatilityData) uint32
}

type placeholderCorrelation struct{}

func (placeholderCorrelation) Estimate([]model.VolatilityData) uint32 { return 3000 }

type Engine struct {
	store       repository.Store
	correlation CorrelationEstimator
}

func New(store repository.Store) *Engine {
	return &Engine{store: store, correlation: placeholderCorrelation{}}
}

// WithCorrelationEstimator replaces the placeholder estimator.
func (e *Engine) WithCorrelationEstimator(ce CorrelationEstimator) *Engine {
	e.correlation = ce
	return e
}

// DefaultAllocation is the built-in target vector for a profile. Each
// vector sums to exactly 10000.
func DefaultAllocation(profile model.RiskProfile) model.AssetAllocation {
	switch profile {
	case model.ProfileConservative:
		return model.AssetAllocation{KaleBps: 2000, BtcBps: 3000, UsdcBps: 4000, XlmBps: 1000}
	case model.ProfileAggressive:
		return model.AssetAllocation{KaleBps: 5000, BtcBps: 3500, UsdcBps: 1000, XlmBps: 500}
	default:
		return model.AssetAllocation{KaleBps: 3500, BtcBps: 4000, UsdcBps: 2000, XlmBps: 500}
	}
}

// SeedDefaults writes the built-in allocation for every profile that
// has none stored yet. Called once at fund initialization.
func (e *Engine) SeedDefaults(ctx context.Context) error {
	for _, profile := range model.AllRiskProfiles() {
		existing, err := e.store.GetAllocation(ctx, profile)
		if err != nil {
			return apperrors.Wrap(err)
		}
		if existing != nil {
			continue
		}
		if err := e.store.PutAllocation(ctx, profile, DefaultAllocation(profile)); err != nil {
			return apperrors.Wrap(err)
		}
	}
	return nil
}

// Allocation returns the stored target vector for a profile, falling
// back to the built-in default when none was ever written.
func (e *Engine) Allocation(ctx context.Context, profile model.RiskProfile) (model.AssetAllocation, error) {
	stored, err := e.store.GetAllocation(ctx, profile)
	if err != nil {
		return model.AssetAllocation{}, apperrors.Wrap(err)
	}
	if stored != nil {
		return *stored, nil
	}
	return DefaultAllocation(profile), nil
}

// validateWeights rejects any allocation weight above 10000 bps. The
// check must run before Sum, which can wrap uint32 on hostile input.
func validateWeights(alloc model.AssetAllocation) error {
	for _, asset := range model.SupportedAssets() {
		if w := alloc.Weight(asset); w > fixedpoint.BpsDenominator {
			return apperrors.Newf(apperrors.ErrInvalidAllocation,
				"%s weight %d exceeds %d basis points", asset, w, fixedpoint.BpsDenominator)
		}
	}
	return nil
}

// UpdateAllocation replaces a profile's target vector. The vector must
// sum to exactly 10000 basis points.
func (e *Engine) UpdateAllocation(ctx context.Context, profile model.RiskProfile, alloc model.AssetAllocation) error {
	if err := validateWeights(alloc); err != nil {
		return err
	}
	if alloc.Sum() != fixedpoint.BpsDenominator {
		return apperrors.Newf(apperrors.ErrInvalidAllocation,
			"allocation must sum to %d basis points, got %d", fixedpoint.BpsDenominator, alloc.Sum())
	}
	if err := e.store.PutAllocation(ctx, profile, alloc); err != nil {
		return apperrors.Wrap(err)
	}
	logger.Info("allocation updated",
		"profile", profile,
		"kale_bps", alloc.KaleBps,
		"btc_bps", alloc.BtcBps,
		"usdc_bps", alloc.UsdcBps,
		"xlm_bps", alloc.XlmBps,
	)
	return nil
}

// UpdateVolatility stores market samples, overwriting per asset.
func (e *Engine) UpdateVolatility(ctx context.Context, samples []model.VolatilityData, now int64) error {
	if len(samples) == 0 {
		return apperrors.NewInvalidRequest("no volatility samples supplied")
	}
	for i := range samples {
		if _, ok := model.ParseAsset(string(samples[i].Asset)); !ok {
			return apperrors.NewInvalidRequest("unknown asset " + string(samples[i].Asset))
		}
		if samples[i].LastUpdated == 0 {
			samples[i].LastUpdated = now
		}
	}
	if err := e.store.PutVolatility(ctx, samples); err != nil {
		return apperrors.Wrap(err)
	}
	logger.Info("volatility data updated", "assets", len(samples))
	return nil
}

// AssessRisk scores a current allocation against the profile's target.
// When no samples are supplied the stored per-asset samples are used.
func (e *Engine) AssessRisk(ctx context.Context, profile model.RiskProfile, current model.AssetAllocation, samples []model.VolatilityData) (*model.RiskAssessment, error) {
	if err := validateWeights(current); err != nil {
		return nil, err
	}
	recommended, err := e.Allocation(ctx, profile)
	if err != nil {
		return nil, err
	}
	if len(samples) == 0 {
		samples, err = e.storedSamples(ctx)
		if err != nil {
			return nil, err
		}
	}

	allocationRisk := allocationRisk(current, recommended)
	volatilityScore := volatilityScore(samples)
	correlationRisk := e.correlation.Estimate(samples)
	liquidityRisk := liquidityRisk(current)

	riskScore := (allocationRisk*weightAllocation +
		volatilityScore*weightVolatility +
		correlationRisk*weightCorrelation +
		liquidityRisk*weightLiquidity) / 100

	logger.Info("risk assessment",
		"profile", profile,
		"risk_score", riskScore,
		"volatility_score", volatilityScore,
		"correlation_risk", correlationRisk,
		"liquidity_risk", liquidityRisk,
	)

	return &model.RiskAssessment{
		Profile:               profile,
		RecommendedAllocation: recommended,
		RiskScore:             riskScore,
		VolatilityScore:       volatilityScore,
		CorrelationRisk:       correlationRisk,
		LiquidityRisk:         liquidityRisk,
	}, nil
}

// ShouldRebalance reports whether any asset's current weight deviates
// from the profile target by more than the configured threshold.
func (e *Engine) ShouldRebalance(ctx context.Context, profile model.RiskProfile, current model.AssetAllocation) (bool, error) {
	if err := validateWeights(current); err != nil {
		return false, err
	}
	recommended, err := e.Allocation(ctx, profile)
	if err != nil {
		return false, err
	}
	params, err := e.store.GetRiskParameters(ctx)
	if err != nil {
		return false, apperrors.Wrap(err)
	}
	if params == nil {
		return false, apperrors.New(apperrors.ErrNotInitialized, "risk parameters not set", nil)
	}
	return MaxDeviation(current, recommended) > params.RebalanceThresholdBps, nil
}

// MaxDeviation is the largest per-asset weight difference between two
// allocation vectors, in basis points.
func MaxDeviation(current, recommended model.AssetAllocation) uint32 {
	var max uint32
	for _, asset := range model.SupportedAssets() {
		d := fixedpoint.AbsDiff(current.Weight(asset), recommended.Weight(asset))
		if d > max {
			max = d
		}
	}
	return max
}

func (e *Engine) storedSamples(ctx context.Context) ([]model.VolatilityData, error) {
	var out []model.VolatilityData
	for _, asset := range model.SupportedAssets() {
		sample, err := e.store.GetVolatility(ctx, asset)
		if err != nil {
			return nil, apperrors.Wrap(err)
		}
		if sample != nil {
			out = append(out, *sample)
		}
	}
	return out, nil
}

// allocationRisk is the mean per-asset deviation from the target.
func allocationRisk(current, recommended model.AssetAllocation) uint32 {
	var sum uint32
	for _, asset := range model.SupportedAssets() {
		sum += fixedpoint.AbsDiff(current.Weight(asset), recommended.Weight(asset))
	}
	return sum / uint32(len(model.SupportedAssets()))
}

// volatilityScore is the mean daily volatility across samples, or a
// neutral medium score when no data exists.
func volatilityScore(samples []model.VolatilityData) uint32 {
	if len(samples) == 0 {
		return neutralVolatilityScore
	}
	var total uint32
	for _, s := range samples {
		total += s.DailyVolatilityBps
	}
	return total / uint32(len(samples))
}

// liquidityRisk tiers on the stable (USDC) and volatile (KALE) legs:
// stable-heavy books are cheap to unwind, KALE-heavy books are not.
func liquidityRisk(alloc model.AssetAllocation) uint32 {
	switch {
	case alloc.UsdcBps > 5000:
		return 1000
	case alloc.KaleBps > 5000:
		return 8000
	default:
		return 4000
	}
}
