package models

import (
	"time"
)

// User is a wallet-identified principal owning strategies.
type User struct {
	ID            string `gorm:"type:uuid;primaryKey"`
	WalletAddress string `gorm:"size:44;uniqueIndex;not null"`
	CreatedAt     time.Time

	Strategies []Strategy `gorm:"foreignKey:UserID"`
}

// Strategy is a user-named basket of vault deposits. CreatedAt doubles as
// the floor for history queries: nothing existed before the strategy did.
type Strategy struct {
	ID        string `gorm:"type:uuid;primaryKey"`
	UserID    string `gorm:"type:uuid;index;not null"`
	Name      string `gorm:"size:128"`
	CreatedAt time.Time `gorm:"index"`

	Entries []VaultStrategy `gorm:"foreignKey:StrategyID;constraint:OnDelete:CASCADE"`
}

// VaultStrategy is an ownership ledger entry: the join between a strategy
// and a vault. The deposit basis (amounts and ownership fraction) is frozen
// at deposit time; only the interest fields are rewritten by accrual.
type VaultStrategy struct {
	ID         string `gorm:"type:uuid;primaryKey"`
	StrategyID string `gorm:"type:uuid;index;not null"`
	VaultID    string `gorm:"type:uuid;index;not null"`

	DepositedAmount    float64 `gorm:"not null"`
	DepositedAmountUSD float64 `gorm:"not null"`
	OwnershipFraction  float64 `gorm:"not null"`

	InterestEarned    float64 `gorm:"default:0"`
	InterestEarnedUSD float64 `gorm:"default:0"`

	CreatedAt time.Time `gorm:"index"`
	UpdatedAt time.Time
}
