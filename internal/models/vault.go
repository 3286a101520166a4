package models

import (
	"time"
)

// Platform identifiers for the vault metrics sources we ingest from.
const (
	PlatformKamino  = "kamino"
	PlatformJupiter = "jupiter"
)

// Vault represents a pooled yield source on an external platform.
// The current_* columns are mutated only by snapshot ingestion.
type Vault struct {
	ID       string `gorm:"type:uuid;primaryKey"`
	Address  string `gorm:"size:44;uniqueIndex;not null"`
	Name     string `gorm:"size:128;not null"`
	Platform string `gorm:"size:20;index;not null"`

	// Latest reported metrics, overwritten on every ingestion cycle.
	CurrentTVL        float64 `gorm:"column:current_tvl;default:0"`
	CurrentAPY        float64 `gorm:"column:current_apy;default:0"`
	CurrentAssetPrice float64 `gorm:"default:0"`
	CurrentRewardRate float64 `gorm:"default:0"`

	CreatedAt time.Time
	UpdatedAt time.Time

	// Relationships
	Snapshots []VaultSnapshot `gorm:"foreignKey:VaultID"`
	Entries   []VaultStrategy `gorm:"foreignKey:VaultID"`
}

// VaultSnapshot is an immutable point-in-time copy of a vault's metrics,
// at most one row per (vault, recorded_at) bucket.
type VaultSnapshot struct {
	ID         uint      `gorm:"primaryKey"`
	VaultID    string    `gorm:"type:uuid;uniqueIndex:idx_vault_snapshots_vault_time;not null"`
	RecordedAt time.Time `gorm:"uniqueIndex:idx_vault_snapshots_vault_time;index;not null"`

	TVL        float64 `gorm:"column:tvl"`
	APY        float64 `gorm:"column:apy"`
	AssetPrice float64
	RewardRate float64
}
