package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/backyardfi/vaultledger/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Gorm is the postgres-backed Store implementation.
type Gorm struct {
	db *gorm.DB
}

// NewGorm wraps a connected gorm handle.
func NewGorm(db *gorm.DB) *Gorm {
	return &Gorm{db: db}
}

func (s *Gorm) CreateVault(ctx context.Context, vault *models.Vault) error {
	if err := s.db.WithContext(ctx).Create(vault).Error; err != nil {
		return fmt.Errorf("failed to create vault: %w", err)
	}
	return nil
}

func (s *Gorm) GetVault(ctx context.Context, id string) (*models.Vault, error) {
	var vault models.Vault
	err := s.db.WithContext(ctx).First(&vault, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("vault %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch vault: %w", err)
	}
	return &vault, nil
}

func (s *Gorm) ListVaults(ctx context.Context) ([]models.Vault, error) {
	var vaults []models.Vault
	if err := s.db.WithContext(ctx).Order("created_at").Find(&vaults).Error; err != nil {
		return nil, fmt.Errorf("failed to list vaults: %w", err)
	}
	return vaults, nil
}

func (s *Gorm) ListVaultsByPlatform(ctx context.Context, platform string) ([]models.Vault, error) {
	var vaults []models.Vault
	if err := s.db.WithContext(ctx).Where("platform = ?", platform).Order("created_at").Find(&vaults).Error; err != nil {
		return nil, fmt.Errorf("failed to list %s vaults: %w", platform, err)
	}
	return vaults, nil
}

func (s *Gorm) SaveVault(ctx context.Context, vault *models.Vault) error {
	if err := s.db.WithContext(ctx).Save(vault).Error; err != nil {
		return fmt.Errorf("failed to save vault: %w", err)
	}
	return nil
}

func (s *Gorm) UpsertSnapshot(ctx context.Context, snapshot *models.VaultSnapshot) error {
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "vault_id"}, {Name: "recorded_at"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"tvl", "apy", "asset_price", "reward_rate",
		}),
	}).Create(snapshot).Error
	if err != nil {
		return fmt.Errorf("failed to upsert snapshot: %w", err)
	}
	return nil
}

func (s *Gorm) ListSnapshots(ctx context.Context, vaultID string) ([]models.VaultSnapshot, error) {
	var snapshots []models.VaultSnapshot
	err := s.db.WithContext(ctx).
		Where("vault_id = ?", vaultID).
		Order("recorded_at").
		Find(&snapshots).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	return snapshots, nil
}

func (s *Gorm) ListSnapshotsSince(ctx context.Context, vaultID string, since time.Time) ([]models.VaultSnapshot, error) {
	var snapshots []models.VaultSnapshot
	err := s.db.WithContext(ctx).
		Where("vault_id = ? AND recorded_at >= ?", vaultID, since).
		Order("recorded_at").
		Find(&snapshots).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	return snapshots, nil
}

func (s *Gorm) CreateStrategy(ctx context.Context, strategy *models.Strategy) error {
	if err := s.db.WithContext(ctx).Create(strategy).Error; err != nil {
		return fmt.Errorf("failed to create strategy: %w", err)
	}
	return nil
}

func (s *Gorm) GetStrategy(ctx context.Context, id string) (*models.Strategy, error) {
	var strategy models.Strategy
	err := s.db.WithContext(ctx).First(&strategy, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("strategy %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch strategy: %w", err)
	}
	return &strategy, nil
}

func (s *Gorm) ListStrategiesByUser(ctx context.Context, userID string) ([]models.Strategy, error) {
	var strategies []models.Strategy
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at").
		Find(&strategies).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list strategies: %w", err)
	}
	return strategies, nil
}

// DeleteStrategy removes the strategy and its ledger entries together.
func (s *Gorm) DeleteStrategy(ctx context.Context, id string) error {
	return s.Transact(ctx, func(tx Store) error {
		gtx := tx.(*Gorm)
		if err := gtx.db.Where("strategy_id = ?", id).Delete(&models.VaultStrategy{}).Error; err != nil {
			return fmt.Errorf("failed to delete ledger entries: %w", err)
		}
		res := gtx.db.Delete(&models.Strategy{}, "id = ?", id)
		if res.Error != nil {
			return fmt.Errorf("failed to delete strategy: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("strategy %s: %w", id, ErrNotFound)
		}
		return nil
	})
}

func (s *Gorm) CreateEntry(ctx context.Context, entry *models.VaultStrategy) error {
	if err := s.db.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("failed to create ledger entry: %w", err)
	}
	return nil
}

func (s *Gorm) ListEntriesByStrategy(ctx context.Context, strategyID string) ([]models.VaultStrategy, error) {
	var entries []models.VaultStrategy
	err := s.db.WithContext(ctx).
		Where("strategy_id = ?", strategyID).
		Order("created_at").
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list ledger entries: %w", err)
	}
	return entries, nil
}

func (s *Gorm) ListEntriesByVault(ctx context.Context, vaultID string) ([]models.VaultStrategy, error) {
	var entries []models.VaultStrategy
	err := s.db.WithContext(ctx).
		Where("vault_id = ?", vaultID).
		Order("created_at").
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list ledger entries: %w", err)
	}
	return entries, nil
}

// UpdateEntryAccrual overwrites the cumulative interest fields. The deposit
// basis columns are never touched here.
func (s *Gorm) UpdateEntryAccrual(ctx context.Context, entryID string, interestToken, interestUSD float64) error {
	res := s.db.WithContext(ctx).
		Model(&models.VaultStrategy{}).
		Where("id = ?", entryID).
		Updates(map[string]interface{}{
			"interest_earned":     interestToken,
			"interest_earned_usd": interestUSD,
		})
	if res.Error != nil {
		return fmt.Errorf("failed to update accrual: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("ledger entry %s: %w", entryID, ErrNotFound)
	}
	return nil
}

func (s *Gorm) Transact(ctx context.Context, fn func(Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Gorm{db: tx})
	})
}
