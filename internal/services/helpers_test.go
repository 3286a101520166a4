package services

import (
	"context"
	"testing"
	"time"

	"github.com/backyardfi/vaultledger/internal/models"
	"github.com/backyardfi/vaultledger/internal/store"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func seedVault(t *testing.T, st store.Store, name string, tvl, apy, assetPrice float64) *models.Vault {
	t.Helper()
	vault := &models.Vault{
		ID:                uuid.NewString(),
		Address:           uuid.NewString(), // uniqueness is all the memory store checks
		Name:              name,
		Platform:          models.PlatformKamino,
		CurrentTVL:        tvl,
		CurrentAPY:        apy,
		CurrentAssetPrice: assetPrice,
		CreatedAt:         time.Now().UTC(),
	}
	if err := st.CreateVault(context.Background(), vault); err != nil {
		t.Fatalf("failed to seed vault: %v", err)
	}
	return vault
}

func seedStrategy(t *testing.T, st store.Store, userID, name string, createdAt time.Time) *models.Strategy {
	t.Helper()
	strategy := &models.Strategy{
		ID:        uuid.NewString(),
		UserID:    userID,
		Name:      name,
		CreatedAt: createdAt,
	}
	if err := st.CreateStrategy(context.Background(), strategy); err != nil {
		t.Fatalf("failed to seed strategy: %v", err)
	}
	return strategy
}

func seedEntry(t *testing.T, st store.Store, strategyID, vaultID string, depositedUSD, fraction float64, createdAt time.Time) *models.VaultStrategy {
	t.Helper()
	entry := &models.VaultStrategy{
		ID:                 uuid.NewString(),
		StrategyID:         strategyID,
		VaultID:            vaultID,
		DepositedAmount:    depositedUSD,
		DepositedAmountUSD: depositedUSD,
		OwnershipFraction:  fraction,
		CreatedAt:          createdAt,
	}
	if err := st.CreateEntry(context.Background(), entry); err != nil {
		t.Fatalf("failed to seed ledger entry: %v", err)
	}
	return entry
}

func seedSnapshot(t *testing.T, st store.Store, vaultID string, recordedAt time.Time, tvl, apy, assetPrice float64) {
	t.Helper()
	err := st.UpsertSnapshot(context.Background(), &models.VaultSnapshot{
		VaultID:    vaultID,
		RecordedAt: recordedAt,
		TVL:        tvl,
		APY:        apy,
		AssetPrice: assetPrice,
	})
	if err != nil {
		t.Fatalf("failed to seed snapshot: %v", err)
	}
}

func entryByID(t *testing.T, st store.Store, strategyID, entryID string) models.VaultStrategy {
	t.Helper()
	entries, err := st.ListEntriesByStrategy(context.Background(), strategyID)
	if err != nil {
		t.Fatalf("failed to list entries: %v", err)
	}
	for _, entry := range entries {
		if entry.ID == entryID {
			return entry
		}
	}
	t.Fatalf("entry %s not found in strategy %s", entryID, strategyID)
	return models.VaultStrategy{}
}

func approxEqual(a, b float64) bool {
	const epsilon = 1e-9
	diff := a - b
	return diff < epsilon && diff > -epsilon
}

func nopLogger() zerolog.Logger {
	return zerolog.Nop()
}
