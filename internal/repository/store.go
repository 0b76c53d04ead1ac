package repository

import (
	"context"
	"errors"
	"math/big"

	"github.com/kalefund/fundgate/internal/model"
)

var (
	ErrAlreadyInitialized = errors.New("fund already initialized")
	ErrNotInitialized     = errors.New("fund not initialized")
)

// Mutation is the side-effect set a mutation callback returns: the
// TotalLocked delta plus any pool balance deltas. The store applies it
// in the same atomic unit as the account write, so the pools can never
// drift from the booked ledger state.
type Mutation struct {
	LockedDelta *big.Int
	PoolDeltas  map[model.Asset]*big.Int
}

// Store is the persistence boundary for the fund: a small fixed set of
// singleton records plus keyed collections for accounts, allocations,
// volatility samples and asset pools. Implementations must make every
// mutating call atomic; no caller may observe a partial mutation.
type Store interface {
	// Singletons. GetFundConfig returns (nil, nil) before initialize.
	InitializeFund(ctx context.Context, admin string, cfg *model.FundConfig) error
	GetAdmin(ctx context.Context) (string, error)
	GetFundConfig(ctx context.Context) (*model.FundConfig, error)
	PutFundConfig(ctx context.Context, cfg *model.FundConfig) error
	GetRiskParameters(ctx context.Context) (*model.RiskParameters, error)
	PutRiskParameters(ctx context.Context, rp *model.RiskParameters) error
	GetRebalanceConfig(ctx context.Context) (*model.RebalanceConfig, error)
	PutRebalanceConfig(ctx context.Context, cfg *model.RebalanceConfig) error
	GetTotalLocked(ctx context.Context) (*model.Amount, error)
	GetLastRebalance(ctx context.Context) (int64, error)
	SetLastRebalance(ctx context.Context, ts int64) error

	// Accounts. GetAccount returns the zero account when none exists.
	GetAccount(ctx context.Context, participant string) (*model.UserAccount, error)
	// MutateAccount applies fn to the participant's account under
	// exclusive locking. The returned Mutation is applied atomically
	// with the account write; any error from fn aborts with zero
	// mutation.
	MutateAccount(ctx context.Context, participant string, fn func(acct *model.UserAccount) (*Mutation, error)) (*model.UserAccount, error)
	// MutateAllAccounts applies fn to every existing account at once
	// (used by reward distribution).
	MutateAllAccounts(ctx context.Context, fn func(accts []*model.UserAccount) (*Mutation, error)) error
	ListAccounts(ctx context.Context) ([]*model.UserAccount, error)

	// Per-profile allocations. GetAllocation returns (nil, nil) when the
	// profile has never been written.
	GetAllocation(ctx context.Context, profile model.RiskProfile) (*model.AssetAllocation, error)
	PutAllocation(ctx context.Context, profile model.RiskProfile, alloc model.AssetAllocation) error

	// Volatility samples, overwritten wholesale per asset.
	PutVolatility(ctx context.Context, samples []model.VolatilityData) error
	GetVolatility(ctx context.Context, asset model.Asset) (*model.VolatilityData, error)

	// Asset pools: the fund's custody balances per portfolio asset.
	GetPoolBalances(ctx context.Context) (map[model.Asset]*model.Amount, error)
	AdjustPoolBalance(ctx context.Context, asset model.Asset, delta *big.Int) error
}
