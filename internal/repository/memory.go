package repository

import (
	"context"
	"math/big"
	"sync"

	"github.com/kalefund/fundgate/internal/model"
)

// MemoryStore 用于本地开发与测试，生产环境请配置 Postgres。
// A single mutex serializes all mutations, which directly gives the
// one-atomic-unit-per-call model the ledger expects.
type MemoryStore struct {
	mu sync.RWMutex

	initialized     bool
	admin           string
	fundConfig      *model.FundConfig
	riskParams      *model.RiskParameters
	rebalanceConfig *model.RebalanceConfig
	totalLocked     *big.Int
	lastRebalance   int64

	accounts    map[string]*model.UserAccount
	allocations map[model.RiskProfile]model.AssetAllocation
	volatility  map[model.Asset]model.VolatilityData
	pools       map[model.Asset]*big.Int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		totalLocked: new(big.Int),
		accounts:    make(map[string]*model.UserAccount),
		allocations: make(map[model.RiskProfile]model.AssetAllocation),
		volatility:  make(map[model.Asset]model.VolatilityData),
		pools:       make(map[model.Asset]*big.Int),
	}
}

func (s *MemoryStore) InitializeFund(ctx context.Context, admin string, cfg *model.FundConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.initialized {
		return ErrAlreadyInitialized
	}
	s.initialized = true
	s.admin = admin
	cp := *cfg
	s.fundConfig = &cp
	return nil
}

func (s *MemoryStore) GetAdmin(ctx context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.admin, nil
}

func (s *MemoryStore) GetFundConfig(ctx context.Context) (*model.FundConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.fundConfig == nil {
		return nil, nil
	}
	cp := *s.fundConfig
	return &cp, nil
}

func (s *MemoryStore) PutFundConfig(ctx context.Context, cfg *model.FundConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *cfg
	s.fundConfig = &cp
	return nil
}

func (s *MemoryStore) GetRiskParameters(ctx context.Context) (*model.RiskParameters, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.riskParams == nil {
		return nil, nil
	}
	cp := *s.riskParams
	return &cp, nil
}

func (s *MemoryStore) PutRiskParameters(ctx context.Context, rp *model.RiskParameters) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *rp
	s.riskParams = &cp
	return nil
}

func (s *MemoryStore) GetRebalanceConfig(ctx context.Context) (*model.RebalanceConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.rebalanceConfig == nil {
		return nil, nil
	}
	cp := *s.rebalanceConfig
	return &cp, nil
}

func (s *MemoryStore) PutRebalanceConfig(ctx context.Context, cfg *model.RebalanceConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *cfg
	s.rebalanceConfig = &cp
	return nil
}

func (s *MemoryStore) GetTotalLocked(ctx context.Context) (*model.Amount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return model.NewAmountFromBig(s.totalLocked), nil
}

func (s *MemoryStore) GetLastRebalance(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastRebalance, nil
}

func (s *MemoryStore) SetLastRebalance(ctx context.Context, ts int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastRebalance = ts
	return nil
}

func (s *MemoryStore) GetAccount(ctx context.Context, participant string) (*model.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if acct, ok := s.accounts[participant]; ok {
		return acct.Clone(), nil
	}
	return model.ZeroAccount(participant), nil
}

func (s *MemoryStore) MutateAccount(ctx context.Context, participant string, fn func(acct *model.UserAccount) (*Mutation, error)) (*model.UserAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var working *model.UserAccount
	if acct, ok := s.accounts[participant]; ok {
		working = acct.Clone()
	} else {
		working = model.ZeroAccount(participant)
	}

	mut, err := fn(working)
	if err != nil {
		return nil, err
	}

	s.accounts[participant] = working
	s.applyMutation(mut)
	return working.Clone(), nil
}

func (s *MemoryStore) MutateAllAccounts(ctx context.Context, fn func(accts []*model.UserAccount) (*Mutation, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	working := make([]*model.UserAccount, 0, len(s.accounts))
	for _, acct := range s.accounts {
		working = append(working, acct.Clone())
	}

	mut, err := fn(working)
	if err != nil {
		return err
	}

	for _, acct := range working {
		s.accounts[acct.Participant] = acct
	}
	s.applyMutation(mut)
	return nil
}

// applyMutation runs under s.mu, held by the mutating caller.
func (s *MemoryStore) applyMutation(mut *Mutation) {
	if mut == nil {
		return
	}
	if mut.LockedDelta != nil {
		s.totalLocked.Add(s.totalLocked, mut.LockedDelta)
	}
	for asset, delta := range mut.PoolDeltas {
		bal, ok := s.pools[asset]
		if !ok {
			bal = new(big.Int)
			s.pools[asset] = bal
		}
		bal.Add(bal, delta)
	}
}

func (s *MemoryStore) ListAccounts(ctx context.Context) ([]*model.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*model.UserAccount, 0, len(s.accounts))
	for _, acct := range s.accounts {
		out = append(out, acct.Clone())
	}
	return out, nil
}

func (s *MemoryStore) GetAllocation(ctx context.Context, profile model.RiskProfile) (*model.AssetAllocation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if alloc, ok := s.allocations[profile]; ok {
		cp := alloc
		return &cp, nil
	}
	return nil, nil
}

func (s *MemoryStore) PutAllocation(ctx context.Context, profile model.RiskProfile, alloc model.AssetAllocation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.allocations[profile] = alloc
	return nil
}

func (s *MemoryStore) PutVolatility(ctx context.Context, samples []model.VolatilityData) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sample := range samples {
		s.volatility[sample.Asset] = sample
	}
	return nil
}

func (s *MemoryStore) GetVolatility(ctx context.Context, asset model.Asset) (*model.VolatilityData, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if sample, ok := s.volatility[asset]; ok {
		cp := sample
		return &cp, nil
	}
	return nil, nil
}

func (s *MemoryStore) GetPoolBalances(ctx context.Context) (map[model.Asset]*model.Amount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[model.Asset]*model.Amount, len(s.pools))
	for _, asset := range model.SupportedAssets() {
		if bal, ok := s.pools[asset]; ok {
			out[asset] = model.NewAmountFromBig(bal)
		} else {
			out[asset] = model.NewAmount(0)
		}
	}
	return out, nil
}

func (s *MemoryStore) AdjustPoolBalance(ctx context.Context, asset model.Asset, delta *big.Int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	bal, ok := s.pools[asset]
	if !ok {
		bal = new(big.Int)
		s.pools[asset] = bal
	}
	bal.Add(bal, delta)
	return nil
}
