package services

import (
	"context"
	"fmt"
	"time"

	"github.com/backyardfi/vaultledger/internal/models"
	"github.com/backyardfi/vaultledger/internal/store"
	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// VaultInfo is the public projection of a vault's current metrics.
type VaultInfo struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	Platform   string  `json:"platform"`
	TVL        float64 `json:"tvl"`
	APY        float64 `json:"apy"`
	AssetPrice float64 `json:"assetPrice"`
	RewardRate float64 `json:"rewardRate"`
}

// VaultHistoryInfo is one historical metrics row of a vault.
type VaultHistoryInfo struct {
	RecordedAt time.Time `json:"recordedAt"`
	TVL        float64   `json:"tvl"`
	APY        float64   `json:"apy"`
	AssetPrice float64   `json:"assetPrice"`
	RewardRate float64   `json:"rewardRate"`
}

// UserVaultHistoryInfo is a vault history row with the caller's own slice of
// the pool at that point in time attached.
type UserVaultHistoryInfo struct {
	VaultHistoryInfo
	UserPositionUSD float64 `json:"userPositionUsd"`
	UserAPY         float64 `json:"userApy"`
}

// StrategyBreakdown attributes a user's vault position to one of their
// strategies. Weight is the strategy's share of the user's own deposits in
// this vault, not of the vault pool.
type StrategyBreakdown struct {
	StrategyID      string  `json:"strategyId"`
	StrategyName    string  `json:"strategyName"`
	DepositedAmount float64 `json:"depositedAmount"`
	InterestEarned  float64 `json:"interestEarned"`
	VaultWeight     float64 `json:"vaultWeight"`
}

// VaultPosition answers "what does this user hold in this vault".
type VaultPosition struct {
	VaultInfo
	MyPositionUSD       float64             `json:"myPositionUsd"`
	MyOwnershipFraction float64             `json:"myOwnershipFraction"`
	Strategies          []StrategyBreakdown `json:"strategies"`
}

// VaultService maintains the vault registry and serves read-only position
// and history projections.
type VaultService struct {
	store  store.Store
	logger zerolog.Logger
}

// NewVaultService wires the service to its store.
func NewVaultService(s store.Store, logger zerolog.Logger) *VaultService {
	return &VaultService{
		store:  s,
		logger: logger.With().Str("component", "vault_service").Logger(),
	}
}

// RegisterVault adds a vault to the registry. The on-chain address must be a
// valid base58 Solana public key. Metrics start at zero until the first
// ingestion cycle fills them in.
func (v *VaultService) RegisterVault(ctx context.Context, address, name, platform string) (*models.Vault, error) {
	if _, err := solana.PublicKeyFromBase58(address); err != nil {
		return nil, fmt.Errorf("vault address %q: %w", address, ErrInvalidInput)
	}
	if name == "" || platform == "" {
		return nil, fmt.Errorf("vault name and platform are required: %w", ErrInvalidInput)
	}

	vault := &models.Vault{
		ID:        uuid.NewString(),
		Address:   address,
		Name:      name,
		Platform:  platform,
		CreatedAt: time.Now().UTC(),
	}
	if err := v.store.CreateVault(ctx, vault); err != nil {
		return nil, err
	}

	v.logger.Info().
		Str("vault_id", vault.ID).
		Str("platform", platform).
		Str("address", address).
		Msg("Vault registered")
	return vault, nil
}

// GetVaults lists all registered vaults with their current metrics.
func (v *VaultService) GetVaults(ctx context.Context) ([]VaultInfo, error) {
	vaults, err := v.store.ListVaults(ctx)
	if err != nil {
		return nil, err
	}
	infos := make([]VaultInfo, 0, len(vaults))
	for _, vault := range vaults {
		infos = append(infos, vaultInfo(&vault))
	}
	return infos, nil
}

// GetVaultHistory returns a vault's snapshot history, oldest first.
func (v *VaultService) GetVaultHistory(ctx context.Context, vaultID string) ([]VaultHistoryInfo, error) {
	if _, err := v.store.GetVault(ctx, vaultID); err != nil {
		return nil, err
	}
	snapshots, err := v.store.ListSnapshots(ctx, vaultID)
	if err != nil {
		return nil, err
	}
	infos := make([]VaultHistoryInfo, 0, len(snapshots))
	for _, snap := range snapshots {
		infos = append(infos, snapshotInfo(&snap))
	}
	return infos, nil
}

// GetUserVaultHistory returns a vault's snapshot history with the user's
// position slice at each row: the sum of their frozen fractions (counting
// only entries that already existed at the row's timestamp) scaled by the
// row's TVL.
func (v *VaultService) GetUserVaultHistory(ctx context.Context, vaultID, userID string) ([]UserVaultHistoryInfo, error) {
	if _, err := v.store.GetVault(ctx, vaultID); err != nil {
		return nil, err
	}
	entries, err := v.userEntriesForVault(ctx, vaultID, userID)
	if err != nil {
		return nil, err
	}
	snapshots, err := v.store.ListSnapshots(ctx, vaultID)
	if err != nil {
		return nil, err
	}

	infos := make([]UserVaultHistoryInfo, 0, len(snapshots))
	for _, snap := range snapshots {
		var fraction float64
		for _, entry := range entries {
			if !snap.RecordedAt.Before(entry.entry.CreatedAt) {
				fraction += entry.entry.OwnershipFraction
			}
		}
		infos = append(infos, UserVaultHistoryInfo{
			VaultHistoryInfo: snapshotInfo(&snap),
			UserPositionUSD:  snap.TVL * fraction,
			UserAPY:          snap.APY,
		})
	}
	return infos, nil
}

// GetVaultPositionForUser projects the user's current position in a vault.
// Ownership fractions add across the user's strategies; the position value
// is deposit basis plus accrued interest, not tvl * fraction, since accrual
// has already folded the TVL movement into the interest fields.
func (v *VaultService) GetVaultPositionForUser(ctx context.Context, vaultID, userID string) (*VaultPosition, error) {
	vault, err := v.store.GetVault(ctx, vaultID)
	if err != nil {
		return nil, err
	}
	entries, err := v.userEntriesForVault(ctx, vaultID, userID)
	if err != nil {
		return nil, err
	}

	position := &VaultPosition{
		VaultInfo:  vaultInfo(vault),
		Strategies: make([]StrategyBreakdown, 0, len(entries)),
	}

	var totalDepositedUSD float64
	perStrategy := make(map[string]*StrategyBreakdown)
	order := make([]string, 0, len(entries))
	for _, ue := range entries {
		entry := ue.entry
		position.MyOwnershipFraction += entry.OwnershipFraction
		position.MyPositionUSD += entry.DepositedAmountUSD + entry.InterestEarnedUSD
		totalDepositedUSD += entry.DepositedAmountUSD

		b, ok := perStrategy[entry.StrategyID]
		if !ok {
			b = &StrategyBreakdown{
				StrategyID:   entry.StrategyID,
				StrategyName: ue.strategyName,
			}
			perStrategy[entry.StrategyID] = b
			order = append(order, entry.StrategyID)
		}
		b.DepositedAmount += entry.DepositedAmountUSD + entry.InterestEarnedUSD
		b.InterestEarned += entry.InterestEarnedUSD
		b.VaultWeight += entry.DepositedAmountUSD
	}

	for _, strategyID := range order {
		b := perStrategy[strategyID]
		if totalDepositedUSD > 0 {
			b.VaultWeight /= totalDepositedUSD
		} else {
			b.VaultWeight = 0
		}
		position.Strategies = append(position.Strategies, *b)
	}
	return position, nil
}

type userEntry struct {
	entry        models.VaultStrategy
	strategyName string
}

// userEntriesForVault collects the user's ledger entries for one vault
// across all their strategies. A user without strategies yields an empty
// slice, which projects to a zero position.
func (v *VaultService) userEntriesForVault(ctx context.Context, vaultID, userID string) ([]userEntry, error) {
	strategies, err := v.store.ListStrategiesByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	var entries []userEntry
	for _, strategy := range strategies {
		strategyEntries, err := v.store.ListEntriesByStrategy(ctx, strategy.ID)
		if err != nil {
			return nil, err
		}
		for _, entry := range strategyEntries {
			if entry.VaultID == vaultID {
				entries = append(entries, userEntry{entry: entry, strategyName: strategy.Name})
			}
		}
	}
	return entries, nil
}

func vaultInfo(vault *models.Vault) VaultInfo {
	return VaultInfo{
		ID:         vault.ID,
		Name:       vault.Name,
		Platform:   vault.Platform,
		TVL:        vault.CurrentTVL,
		APY:        vault.CurrentAPY,
		AssetPrice: vault.CurrentAssetPrice,
		RewardRate: vault.CurrentRewardRate,
	}
}

func snapshotInfo(snap *models.VaultSnapshot) VaultHistoryInfo {
	return VaultHistoryInfo{
		RecordedAt: snap.RecordedAt,
		TVL:        snap.TVL,
		APY:        snap.APY,
		AssetPrice: snap.AssetPrice,
		RewardRate: snap.RewardRate,
	}
}
