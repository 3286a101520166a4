package store

import (
	"context"
	"errors"
	"time"

	"github.com/backyardfi/vaultledger/internal/models"
)

// ErrNotFound is returned when a vault, strategy or ledger entry referenced
// by id does not exist.
var ErrNotFound = errors.New("record not found")

// Store is the persistence boundary for the accrual engine. Aggregation
// reads are side-effect free; writes happen through the mutating methods,
// optionally scoped by Transact.
type Store interface {
	// Vaults
	CreateVault(ctx context.Context, vault *models.Vault) error
	GetVault(ctx context.Context, id string) (*models.Vault, error)
	ListVaults(ctx context.Context) ([]models.Vault, error)
	ListVaultsByPlatform(ctx context.Context, platform string) ([]models.Vault, error)
	SaveVault(ctx context.Context, vault *models.Vault) error

	// Snapshots
	UpsertSnapshot(ctx context.Context, snapshot *models.VaultSnapshot) error
	ListSnapshots(ctx context.Context, vaultID string) ([]models.VaultSnapshot, error)
	ListSnapshotsSince(ctx context.Context, vaultID string, since time.Time) ([]models.VaultSnapshot, error)

	// Strategies
	CreateStrategy(ctx context.Context, strategy *models.Strategy) error
	GetStrategy(ctx context.Context, id string) (*models.Strategy, error)
	ListStrategiesByUser(ctx context.Context, userID string) ([]models.Strategy, error)
	DeleteStrategy(ctx context.Context, id string) error

	// Ownership ledger
	CreateEntry(ctx context.Context, entry *models.VaultStrategy) error
	ListEntriesByStrategy(ctx context.Context, strategyID string) ([]models.VaultStrategy, error)
	ListEntriesByVault(ctx context.Context, vaultID string) ([]models.VaultStrategy, error)
	UpdateEntryAccrual(ctx context.Context, entryID string, interestToken, interestUSD float64) error

	// Transact runs fn against a transactional view of the store. All writes
	// made through fn's argument commit together or not at all.
	Transact(ctx context.Context, fn func(Store) error) error
}
