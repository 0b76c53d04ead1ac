package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kalefund/fundgate/internal/custody"
	"github.com/kalefund/fundgate/internal/ledger"
	"github.com/kalefund/fundgate/internal/model"
	"github.com/kalefund/fundgate/internal/pkg/apperrors"
	"github.com/kalefund/fundgate/internal/repository"
	"github.com/kalefund/fundgate/internal/risk"
)

func testInitRequest() *model.InitializeRequest {
	return &model.InitializeRequest{
		SettlementAsset:           "KALE",
		MinDeposit:                model.NewAmount(1_000_000),
		MaxDeposit:                model.NewAmount(10_000_000_000),
		LockPeriod:                2_592_000,
		WithdrawalFeeBps:          100,
		EarlyWithdrawalPenaltyBps: 500,
		ReferralBonusBps:          50,
	}
}

func newTestService(t *testing.T) (*FundService, *repository.MemoryStore) {
	t.Helper()
	store := repository.NewMemoryStore()
	l := ledger.New(store, custody.NewSimulatedCustody())
	svc := NewFundService(store, l, risk.New(store), model.RebalanceConfig{
		MinRebalanceAmount:    model.NewAmount(1_000),
		MaxSlippageBps:        200,
		RebalanceFrequency:    3600,
		MaxTradesPerRebalance: 5,
	})
	return svc, store
}

func TestInitializeSeedsSingletons(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	cfg, err := svc.Initialize(ctx, "admin", testInitRequest())
	require.NoError(t, err)
	assert.Equal(t, model.AssetKALE, cfg.SettlementAsset)

	admin, err := store.GetAdmin(ctx)
	require.NoError(t, err)
	assert.Equal(t, "admin", admin)

	rp, err := svc.GetRiskParameters(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint32(500), rp.RebalanceThresholdBps)

	reb, err := svc.GetRebalanceConfig(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint32(200), reb.MaxSlippageBps)

	// default allocations are written for every profile
	for _, profile := range model.AllRiskProfiles() {
		alloc, err := store.GetAllocation(ctx, profile)
		require.NoError(t, err)
		require.NotNil(t, alloc, profile)
		assert.Equal(t, uint32(10000), alloc.Sum())
	}
}

func TestInitializeOnlyOnce(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Initialize(ctx, "admin", testInitRequest())
	require.NoError(t, err)

	_, err = svc.Initialize(ctx, "someone-else", testInitRequest())
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrAlreadyInitialized))
}

func TestInitializeValidation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	req := testInitRequest()
	req.SettlementAsset = "DOGE"
	_, err := svc.Initialize(ctx, "admin", req)
	assert.True(t, apperrors.Is(err, apperrors.ErrInvalidRequest))

	req = testInitRequest()
	req.MinDeposit = model.NewAmount(10)
	req.MaxDeposit = model.NewAmount(5)
	_, err = svc.Initialize(ctx, "admin", req)
	assert.True(t, apperrors.Is(err, apperrors.ErrInvalidAmount))

	req = testInitRequest()
	req.WithdrawalFeeBps = 10_001
	_, err = svc.Initialize(ctx, "admin", req)
	assert.True(t, apperrors.Is(err, apperrors.ErrInvalidRequest))
}

func TestUpdateConfigAdminGate(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	_, err := svc.Initialize(ctx, "admin", testInitRequest())
	require.NoError(t, err)

	fee := uint32(250)
	_, err = svc.UpdateConfig(ctx, "mallory", model.FundConfigPatch{WithdrawalFeeBps: &fee})
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrUnauthorized))

	cfg, err := svc.UpdateConfig(ctx, "admin", model.FundConfigPatch{WithdrawalFeeBps: &fee})
	require.NoError(t, err)
	assert.Equal(t, uint32(250), cfg.WithdrawalFeeBps)
	// untouched fields survive the patch
	assert.Equal(t, uint32(500), cfg.EarlyWithdrawalPenaltyBps)
}

func TestUpdateConfigRejectsInvalidPatch(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	_, err := svc.Initialize(ctx, "admin", testInitRequest())
	require.NoError(t, err)

	_, err = svc.UpdateConfig(ctx, "admin", model.FundConfigPatch{
		MinDeposit: model.NewAmount(20_000_000_000),
	})
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrInvalidAmount))

	// rejected patch leaves stored config untouched
	cfg, err := svc.GetConfig(ctx)
	require.NoError(t, err)
	assert.Equal(t, "1000000", cfg.MinDeposit.String())
}

func TestUpdateRiskParameters(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	_, err := svc.Initialize(ctx, "admin", testInitRequest())
	require.NoError(t, err)

	threshold := uint32(750)
	rp, err := svc.UpdateRiskParameters(ctx, "admin", model.RiskParametersPatch{
		RebalanceThresholdBps: &threshold,
	})
	require.NoError(t, err)
	assert.Equal(t, uint32(750), rp.RebalanceThresholdBps)
	assert.Equal(t, uint32(4000), rp.MaxPositionSizeBps)

	bad := uint32(20_000)
	_, err = svc.UpdateRiskParameters(ctx, "admin", model.RiskParametersPatch{
		MaxPositionSizeBps: &bad,
	})
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrInvalidRequest))
}

func TestUpdateRebalanceConfig(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	_, err := svc.Initialize(ctx, "admin", testInitRequest())
	require.NoError(t, err)

	freq := int64(7200)
	cfg, err := svc.UpdateRebalanceConfig(ctx, "admin", model.RebalanceConfigPatch{
		RebalanceFrequency: &freq,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(7200), cfg.RebalanceFrequency)
	assert.Equal(t, 5, cfg.MaxTradesPerRebalance)
}

func TestDistributeRewardsAdminGate(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	_, err := svc.Initialize(ctx, "admin", testInitRequest())
	require.NoError(t, err)

	_, err = svc.DistributeRewards(ctx, "mallory", model.NewAmount(1_000))
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrUnauthorized))

	// empty fund: admin call succeeds as a no-op
	distributed, err := svc.DistributeRewards(ctx, "admin", model.NewAmount(1_000))
	require.NoError(t, err)
	assert.Zero(t, distributed.Sign())
}

func TestAdminGateBeforeInitialize(t *testing.T) {
	svc, _ := newTestService(t)
	err := svc.RequireAdmin(context.Background(), "anyone")
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrNotInitialized))
}
