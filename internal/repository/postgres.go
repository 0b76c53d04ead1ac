package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/kalefund/fundgate/internal/model"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

const (
	keyAdmin           = "admin"
	keyFundConfig      = "fund_config"
	keyRiskParams      = "risk_params"
	keyRebalanceConfig = "rebalance_config"
	keyTotalLocked     = "total_locked"
	keyLastRebalance   = "last_rebalance"
)

type singletonRow struct {
	Key   string `gorm:"primaryKey;size:32"`
	Value string `gorm:"type:text;not null"`
}

func (singletonRow) TableName() string { return "fund_singletons" }

type accountRow struct {
	Participant      string        `gorm:"primaryKey;size:128"`
	Balance          *model.Amount `gorm:"type:numeric(40,0);not null"`
	RiskProfile      string        `gorm:"size:16;not null"`
	LockedUntil      int64         `gorm:"not null"`
	LastDeposit      int64         `gorm:"not null"`
	TotalDeposits    *model.Amount `gorm:"type:numeric(40,0);not null"`
	TotalWithdrawals *model.Amount `gorm:"type:numeric(40,0);not null"`
	RewardsEarned    *model.Amount `gorm:"type:numeric(40,0);not null"`
	ReferralCode     string        `gorm:"size:128"`
	UpdatedAt        time.Time
}

func (accountRow) TableName() string { return "accounts" }

func (r *accountRow) toDomain() *model.UserAccount {
	return &model.UserAccount{
		Participant:      r.Participant,
		Balance:          r.Balance.Clone(),
		RiskProfile:      model.RiskProfile(r.RiskProfile),
		LockedUntil:      r.LockedUntil,
		LastDeposit:      r.LastDeposit,
		TotalDeposits:    r.TotalDeposits.Clone(),
		TotalWithdrawals: r.TotalWithdrawals.Clone(),
		RewardsEarned:    r.RewardsEarned.Clone(),
		ReferralCode:     r.ReferralCode,
	}
}

func accountRowFrom(a *model.UserAccount) *accountRow {
	return &accountRow{
		Participant:      a.Participant,
		Balance:          a.Balance.Clone(),
		RiskProfile:      string(a.RiskProfile),
		LockedUntil:      a.LockedUntil,
		LastDeposit:      a.LastDeposit,
		TotalDeposits:    a.TotalDeposits.Clone(),
		TotalWithdrawals: a.TotalWithdrawals.Clone(),
		RewardsEarned:    a.RewardsEarned.Clone(),
		ReferralCode:     a.ReferralCode,
	}
}

type allocationRow struct {
	Profile string `gorm:"primaryKey;size:16"`
	KaleBps uint32 `gorm:"not null"`
	BtcBps  uint32 `gorm:"not null"`
	UsdcBps uint32 `gorm:"not null"`
	XlmBps  uint32 `gorm:"not null"`
}

func (allocationRow) TableName() string { return "allocations" }

type volatilityRow struct {
	Asset         string `gorm:"primaryKey;size:16"`
	DailyVolBps   uint32 `gorm:"not null"`
	WeeklyVolBps  uint32 `gorm:"not null"`
	MonthlyVolBps uint32 `gorm:"not null"`
	LastUpdated   int64  `gorm:"not null"`
}

func (volatilityRow) TableName() string { return "volatility_samples" }

type poolRow struct {
	Asset   string        `gorm:"primaryKey;size:16"`
	Balance *model.Amount `gorm:"type:numeric(40,0);not null"`
}

func (poolRow) TableName() string { return "asset_pools" }

// PostgresStore persists fund state via gorm. Account mutations run in
// a transaction with row-level locking so TotalLocked stays consistent
// with the sum of balances.
type PostgresStore struct {
	db *gorm.DB
}

func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to db: %w", err)
	}
	if err := db.AutoMigrate(&singletonRow{}, &accountRow{}, &allocationRow{}, &volatilityRow{}, &poolRow{}, &auditRow{}); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

// DB exposes the underlying handle for the audit repository.
func (s *PostgresStore) DB() *gorm.DB { return s.db }

func (s *PostgresStore) InitializeFund(ctx context.Context, admin string, cfg *model.FundConfig) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row singletonRow
		err := tx.Where("key = ?", keyAdmin).First(&row).Error
		if err == nil {
			return ErrAlreadyInitialized
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		cfgJSON, err := json.Marshal(cfg)
		if err != nil {
			return err
		}
		rows := []singletonRow{
			{Key: keyAdmin, Value: admin},
			{Key: keyFundConfig, Value: string(cfgJSON)},
			{Key: keyTotalLocked, Value: "0"},
			{Key: keyLastRebalance, Value: "0"},
		}
		return tx.Create(&rows).Error
	})
}

func (s *PostgresStore) getSingleton(ctx context.Context, key string) (string, bool, error) {
	var row singletonRow
	err := s.db.WithContext(ctx).Where("key = ?", key).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return row.Value, true, nil
}

func (s *PostgresStore) putSingleton(ctx context.Context, key, value string) error {
	row := singletonRow{Key: key, Value: value}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value"}),
	}).Create(&row).Error
}

func (s *PostgresStore) GetAdmin(ctx context.Context) (string, error) {
	admin, _, err := s.getSingleton(ctx, keyAdmin)
	return admin, err
}

func (s *PostgresStore) GetFundConfig(ctx context.Context) (*model.FundConfig, error) {
	raw, ok, err := s.getSingleton(ctx, keyFundConfig)
	if err != nil || !ok {
		return nil, err
	}
	var cfg model.FundConfig
	if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (s *PostgresStore) PutFundConfig(ctx context.Context, cfg *model.FundConfig) error {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	return s.putSingleton(ctx, keyFundConfig, string(raw))
}

func (s *PostgresStore) GetRiskParameters(ctx context.Context) (*model.RiskParameters, error) {
	raw, ok, err := s.getSingleton(ctx, keyRiskParams)
	if err != nil || !ok {
		return nil, err
	}
	var rp model.RiskParameters
	if err := json.Unmarshal([]byte(raw), &rp); err != nil {
		return nil, err
	}
	return &rp, nil
}

func (s *PostgresStore) PutRiskParameters(ctx context.Context, rp *model.RiskParameters) error {
	raw, err := json.Marshal(rp)
	if err != nil {
		return err
	}
	return s.putSingleton(ctx, keyRiskParams, string(raw))
}

func (s *PostgresStore) GetRebalanceConfig(ctx context.Context) (*model.RebalanceConfig, error) {
	raw, ok, err := s.getSingleton(ctx, keyRebalanceConfig)
	if err != nil || !ok {
		return nil, err
	}
	var cfg model.RebalanceConfig
	if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (s *PostgresStore) PutRebalanceConfig(ctx context.Context, cfg *model.RebalanceConfig) error {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	return s.putSingleton(ctx, keyRebalanceConfig, string(raw))
}

func (s *PostgresStore) GetTotalLocked(ctx context.Context) (*model.Amount, error) {
	raw, ok, err := s.getSingleton(ctx, keyTotalLocked)
	if err != nil {
		return nil, err
	}
	if !ok {
		return model.NewAmount(0), nil
	}
	return model.ParseAmount(raw)
}

func (s *PostgresStore) GetLastRebalance(ctx context.Context) (int64, error) {
	raw, ok, err := s.getSingleton(ctx, keyLastRebalance)
	if err != nil || !ok {
		return 0, err
	}
	var ts int64
	if _, err := fmt.Sscanf(raw, "%d", &ts); err != nil {
		return 0, err
	}
	return ts, nil
}

func (s *PostgresStore) SetLastRebalance(ctx context.Context, ts int64) error {
	return s.putSingleton(ctx, keyLastRebalance, fmt.Sprintf("%d", ts))
}

func (s *PostgresStore) GetAccount(ctx context.Context, participant string) (*model.UserAccount, error) {
	var row accountRow
	err := s.db.WithContext(ctx).Where("participant = ?", participant).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.ZeroAccount(participant), nil
	}
	if err != nil {
		return nil, err
	}
	return row.toDomain(), nil
}

func (s *PostgresStore) MutateAccount(ctx context.Context, participant string, fn func(acct *model.UserAccount) (*Mutation, error)) (*model.UserAccount, error) {
	var out *model.UserAccount
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row accountRow
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("participant = ?", participant).First(&row).Error

		acct := model.ZeroAccount(participant)
		switch {
		case err == nil:
			acct = row.toDomain()
		case errors.Is(err, gorm.ErrRecordNotFound):
			// first deposit creates the account
		default:
			return err
		}

		mut, err := fn(acct)
		if err != nil {
			return err
		}

		if err := tx.Save(accountRowFrom(acct)).Error; err != nil {
			return err
		}
		if err := applyMutationTx(tx, mut); err != nil {
			return err
		}
		out = acct
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *PostgresStore) MutateAllAccounts(ctx context.Context, fn func(accts []*model.UserAccount) (*Mutation, error)) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rows []accountRow
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Find(&rows).Error; err != nil {
			return err
		}
		accts := make([]*model.UserAccount, len(rows))
		for i := range rows {
			accts[i] = rows[i].toDomain()
		}

		mut, err := fn(accts)
		if err != nil {
			return err
		}

		for _, acct := range accts {
			if err := tx.Save(accountRowFrom(acct)).Error; err != nil {
				return err
			}
		}
		return applyMutationTx(tx, mut)
	})
}

// applyMutationTx books the TotalLocked and pool deltas inside the
// caller's transaction so the pools commit or roll back with the
// account rows.
func applyMutationTx(tx *gorm.DB, mut *Mutation) error {
	if mut == nil {
		return nil
	}
	if mut.LockedDelta != nil && mut.LockedDelta.Sign() != 0 {
		if err := adjustLockedTotal(tx, mut.LockedDelta); err != nil {
			return err
		}
	}
	for asset, delta := range mut.PoolDeltas {
		if delta.Sign() == 0 {
			continue
		}
		if err := adjustPoolTx(tx, asset, delta); err != nil {
			return err
		}
	}
	return nil
}

func adjustLockedTotal(tx *gorm.DB, delta *big.Int) error {
	var row singletonRow
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("key = ?", keyTotalLocked).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		row = singletonRow{Key: keyTotalLocked, Value: "0"}
	} else if err != nil {
		return err
	}
	cur, ok := new(big.Int).SetString(row.Value, 10)
	if !ok {
		return fmt.Errorf("corrupt total_locked value %q", row.Value)
	}
	cur.Add(cur, delta)
	row.Value = cur.String()
	return tx.Save(&row).Error
}

func (s *PostgresStore) ListAccounts(ctx context.Context) ([]*model.UserAccount, error) {
	var rows []accountRow
	if err := s.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]*model.UserAccount, len(rows))
	for i := range rows {
		out[i] = rows[i].toDomain()
	}
	return out, nil
}

func (s *PostgresStore) GetAllocation(ctx context.Context, profile model.RiskProfile) (*model.AssetAllocation, error) {
	var row allocationRow
	err := s.db.WithContext(ctx).Where("profile = ?", string(profile)).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &model.AssetAllocation{
		KaleBps: row.KaleBps,
		BtcBps:  row.BtcBps,
		UsdcBps: row.UsdcBps,
		XlmBps:  row.XlmBps,
	}, nil
}

func (s *PostgresStore) PutAllocation(ctx context.Context, profile model.RiskProfile, alloc model.AssetAllocation) error {
	row := allocationRow{
		Profile: string(profile),
		KaleBps: alloc.KaleBps,
		BtcBps:  alloc.BtcBps,
		UsdcBps: alloc.UsdcBps,
		XlmBps:  alloc.XlmBps,
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "profile"}},
		DoUpdates: clause.AssignmentColumns([]string{"kale_bps", "btc_bps", "usdc_bps", "xlm_bps"}),
	}).Create(&row).Error
}

func (s *PostgresStore) PutVolatility(ctx context.Context, samples []model.VolatilityData) error {
	if len(samples) == 0 {
		return nil
	}
	rows := make([]volatilityRow, len(samples))
	for i, sample := range samples {
		rows[i] = volatilityRow{
			Asset:         string(sample.Asset),
			DailyVolBps:   sample.DailyVolatilityBps,
			WeeklyVolBps:  sample.WeeklyVolBps,
			MonthlyVolBps: sample.MonthlyVolBps,
			LastUpdated:   sample.LastUpdated,
		}
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "asset"}},
		DoUpdates: clause.AssignmentColumns([]string{"daily_vol_bps", "weekly_vol_bps", "monthly_vol_bps", "last_updated"}),
	}).Create(&rows).Error
}

func (s *PostgresStore) GetVolatility(ctx context.Context, asset model.Asset) (*model.VolatilityData, error) {
	var row volatilityRow
	err := s.db.WithContext(ctx).Where("asset = ?", string(asset)).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &model.VolatilityData{
		Asset:              model.Asset(row.Asset),
		DailyVolatilityBps: row.DailyVolBps,
		WeeklyVolBps:       row.WeeklyVolBps,
		MonthlyVolBps:      row.MonthlyVolBps,
		LastUpdated:        row.LastUpdated,
	}, nil
}

func (s *PostgresStore) GetPoolBalances(ctx context.Context) (map[model.Asset]*model.Amount, error) {
	var rows []poolRow
	if err := s.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[model.Asset]*model.Amount, len(model.SupportedAssets()))
	for _, asset := range model.SupportedAssets() {
		out[asset] = model.NewAmount(0)
	}
	for i := range rows {
		out[model.Asset(rows[i].Asset)] = rows[i].Balance.Clone()
	}
	return out, nil
}

func (s *PostgresStore) AdjustPoolBalance(ctx context.Context, asset model.Asset, delta *big.Int) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return adjustPoolTx(tx, asset, delta)
	})
}

func adjustPoolTx(tx *gorm.DB, asset model.Asset, delta *big.Int) error {
	var row poolRow
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("asset = ?", string(asset)).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		row = poolRow{Asset: string(asset), Balance: model.NewAmount(0)}
	} else if err != nil {
		return err
	}
	next := new(big.Int).Add(row.Balance.Big(), delta)
	row.Balance = model.NewAmountFromBig(next)
	return tx.Save(&row).Error
}
