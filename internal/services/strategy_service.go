package services

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/backyardfi/vaultledger/internal/models"
	"github.com/backyardfi/vaultledger/internal/store"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// StrategyHistoryPoint is one minute-bucketed point of a strategy's series.
type StrategyHistoryPoint struct {
	RecordedAt  time.Time `json:"recordedAt"`
	PositionUSD float64   `json:"positionUsd"`
	APY         float64   `json:"apy"`
}

// PortfolioHistoryPoint is one hour-bucketed point across all of a user's
// strategies.
type PortfolioHistoryPoint struct {
	RecordedAt       time.Time `json:"recordedAt"`
	TotalPositionUSD float64   `json:"totalPositionUsd"`
	AvgAPY           float64   `json:"avgApy"`
}

// StrategyVaultInfo describes one vault holding inside a strategy dashboard.
type StrategyVaultInfo struct {
	VaultID         string  `json:"id"`
	Name            string  `json:"name"`
	Platform        string  `json:"platform"`
	TVL             float64 `json:"tvl"`
	APY             float64 `json:"apy"`
	Amount          float64 `json:"amount"`
	DepositedAmount float64 `json:"depositedAmount"`
}

// StrategyInfo is the dashboard projection of a strategy: its current
// exposure-weighted value and blended APY plus the per-vault holdings.
type StrategyInfo struct {
	StrategyID      string              `json:"strategyId"`
	StrategyName    string              `json:"strategyName"`
	DepositedAmount float64             `json:"strategyDepositedAmount"`
	APY             float64             `json:"strategyApy"`
	Vaults          []StrategyVaultInfo `json:"vaults"`
}

// StrategyService owns the strategy lifecycle, the ownership ledger's
// deposit admission and the history aggregation over vault snapshots.
type StrategyService struct {
	store  store.Store
	logger zerolog.Logger
}

// NewStrategyService wires the service to its store.
func NewStrategyService(s store.Store, logger zerolog.Logger) *StrategyService {
	return &StrategyService{
		store:  s,
		logger: logger.With().Str("component", "strategy_service").Logger(),
	}
}

// CreateStrategy creates a strategy and one ledger entry per requested vault
// deposit (vault id -> native amount).
func (s *StrategyService) CreateStrategy(ctx context.Context, userID, name string, vaultDeposits map[string]float64) (*models.Strategy, error) {
	strategy := &models.Strategy{
		ID:        uuid.NewString(),
		UserID:    userID,
		Name:      name,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.CreateStrategy(ctx, strategy); err != nil {
		return nil, err
	}

	for vaultID, amount := range vaultDeposits {
		if _, err := s.AddDeposit(ctx, strategy.ID, vaultID, amount); err != nil {
			return nil, fmt.Errorf("failed to add deposit for vault %s: %w", vaultID, err)
		}
	}

	s.logger.Info().
		Str("strategy_id", strategy.ID).
		Str("user_id", userID).
		Int("deposits", len(vaultDeposits)).
		Msg("Strategy created")
	return strategy, nil
}

// AddDeposit admits a deposit into the ownership ledger. The ownership
// fraction is frozen here against the vault's current TVL and never
// recomputed afterwards; a vault with zero TVL yields fraction 0.
func (s *StrategyService) AddDeposit(ctx context.Context, strategyID, vaultID string, amountNative float64) (string, error) {
	if amountNative <= 0 || math.IsNaN(amountNative) || math.IsInf(amountNative, 0) {
		return "", fmt.Errorf("deposit amount %v: %w", amountNative, ErrInvalidInput)
	}

	if _, err := s.store.GetStrategy(ctx, strategyID); err != nil {
		return "", err
	}
	vault, err := s.store.GetVault(ctx, vaultID)
	if err != nil {
		return "", err
	}

	depositedUSD := amountNative * vault.CurrentAssetPrice
	fraction := 0.0
	if vault.CurrentTVL > 0 {
		fraction = depositedUSD / vault.CurrentTVL
	}

	entry := &models.VaultStrategy{
		ID:                 uuid.NewString(),
		StrategyID:         strategyID,
		VaultID:            vaultID,
		DepositedAmount:    amountNative,
		DepositedAmountUSD: depositedUSD,
		OwnershipFraction:  fraction,
		CreatedAt:          time.Now().UTC(),
	}
	if err := s.store.CreateEntry(ctx, entry); err != nil {
		return "", err
	}

	s.logger.Info().
		Str("strategy_id", strategyID).
		Str("vault_id", vaultID).
		Float64("deposited_usd", depositedUSD).
		Float64("ownership_fraction", fraction).
		Msg("Deposit admitted")
	return entry.ID, nil
}

// DeleteStrategy removes a strategy and its ledger entries.
func (s *StrategyService) DeleteStrategy(ctx context.Context, strategyID string) error {
	return s.store.DeleteStrategy(ctx, strategyID)
}

// GetStrategyInfo returns the dashboard projection for one strategy.
func (s *StrategyService) GetStrategyInfo(ctx context.Context, strategyID string) (*StrategyInfo, error) {
	strategy, err := s.store.GetStrategy(ctx, strategyID)
	if err != nil {
		return nil, err
	}
	return s.buildStrategyInfo(ctx, strategy)
}

// GetStrategiesInfo returns dashboard projections for all of a user's
// strategies.
func (s *StrategyService) GetStrategiesInfo(ctx context.Context, userID string) ([]StrategyInfo, error) {
	strategies, err := s.store.ListStrategiesByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	infos := make([]StrategyInfo, 0, len(strategies))
	for i := range strategies {
		info, err := s.buildStrategyInfo(ctx, &strategies[i])
		if err != nil {
			return nil, err
		}
		infos = append(infos, *info)
	}
	return infos, nil
}

func (s *StrategyService) buildStrategyInfo(ctx context.Context, strategy *models.Strategy) (*StrategyInfo, error) {
	entries, err := s.store.ListEntriesByStrategy(ctx, strategy.ID)
	if err != nil {
		return nil, err
	}

	info := &StrategyInfo{
		StrategyID:   strategy.ID,
		StrategyName: strategy.Name,
		Vaults:       make([]StrategyVaultInfo, 0, len(entries)),
	}

	var apyNum float64
	for _, entry := range entries {
		vault, err := s.store.GetVault(ctx, entry.VaultID)
		if err != nil {
			return nil, err
		}

		exposure := vault.CurrentTVL * entry.OwnershipFraction
		info.DepositedAmount += exposure
		apyNum += vault.CurrentAPY * exposure

		info.Vaults = append(info.Vaults, StrategyVaultInfo{
			VaultID:         vault.ID,
			Name:            vault.Name,
			Platform:        vault.Platform,
			TVL:             vault.CurrentTVL,
			APY:             vault.CurrentAPY,
			Amount:          entry.DepositedAmount,
			DepositedAmount: entry.DepositedAmountUSD + entry.InterestEarnedUSD,
		})
	}
	if info.DepositedAmount > 0 {
		info.APY = apyNum / info.DepositedAmount
	}
	return info, nil
}

// GetStrategyHistory reconstructs the strategy's time series from vault
// snapshots: minute-bucketed position value with exposure-weighted APY.
// A vault added to the strategy later than a snapshot gets no credit for it.
func (s *StrategyService) GetStrategyHistory(ctx context.Context, strategyID string) ([]StrategyHistoryPoint, error) {
	entries, err := s.store.ListEntriesByStrategy(ctx, strategyID)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return []StrategyHistoryPoint{}, nil
	}

	floor := entries[0].CreatedAt
	for _, entry := range entries[1:] {
		if entry.CreatedAt.Before(floor) {
			floor = entry.CreatedAt
		}
	}

	snapshotsByVault := make(map[string][]models.VaultSnapshot)
	for _, entry := range entries {
		if _, ok := snapshotsByVault[entry.VaultID]; ok {
			continue
		}
		snapshots, err := s.store.ListSnapshotsSince(ctx, entry.VaultID, floor)
		if err != nil {
			return nil, err
		}
		snapshotsByVault[entry.VaultID] = snapshots
	}

	buckets := make(map[time.Time]*historyBucket)
	for _, entry := range entries {
		for _, snap := range snapshotsByVault[entry.VaultID] {
			if snap.RecordedAt.Before(entry.CreatedAt) {
				continue
			}
			exposure := snap.TVL * entry.OwnershipFraction
			key := snap.RecordedAt.UTC().Truncate(time.Minute)
			b, ok := buckets[key]
			if !ok {
				b = &historyBucket{recordedAt: key}
				buckets[key] = b
			}
			b.add(exposure, snap.APY)
		}
	}

	points := make([]StrategyHistoryPoint, 0, len(buckets))
	for _, b := range buckets {
		points = append(points, StrategyHistoryPoint{
			RecordedAt:  b.recordedAt,
			PositionUSD: b.totalPositionUSD,
			APY:         b.blendedAPY(),
		})
	}
	sort.Slice(points, func(i, j int) bool {
		return points[i].RecordedAt.Before(points[j].RecordedAt)
	})
	return points, nil
}

// GetPortfolioHistory merges all of a user's strategy series into an hourly
// series, re-weighting APY by each point's position value. The portfolio
// view is deliberately coarser than the per-strategy minute buckets.
func (s *StrategyService) GetPortfolioHistory(ctx context.Context, userID string) ([]PortfolioHistoryPoint, error) {
	strategies, err := s.store.ListStrategiesByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(strategies) == 0 {
		return []PortfolioHistoryPoint{}, nil
	}

	buckets := make(map[time.Time]*historyBucket)
	for _, strategy := range strategies {
		points, err := s.GetStrategyHistory(ctx, strategy.ID)
		if err != nil {
			return nil, err
		}
		for _, point := range points {
			key := point.RecordedAt.UTC().Truncate(time.Hour)
			b, ok := buckets[key]
			if !ok {
				b = &historyBucket{recordedAt: key}
				buckets[key] = b
			}
			b.add(point.PositionUSD, point.APY)
		}
	}

	points := make([]PortfolioHistoryPoint, 0, len(buckets))
	for _, b := range buckets {
		points = append(points, PortfolioHistoryPoint{
			RecordedAt:       b.recordedAt,
			TotalPositionUSD: b.totalPositionUSD,
			AvgAPY:           b.blendedAPY(),
		})
	}
	sort.Slice(points, func(i, j int) bool {
		return points[i].RecordedAt.Before(points[j].RecordedAt)
	})
	return points, nil
}

// historyBucket accumulates exposure and the weighted-APY terms for one
// bucketed timestamp.
type historyBucket struct {
	recordedAt       time.Time
	totalPositionUSD float64
	apyNum           float64
	apyDen           float64
}

func (b *historyBucket) add(exposureUSD, apy float64) {
	b.totalPositionUSD += exposureUSD
	b.apyNum += apy * exposureUSD
	b.apyDen += exposureUSD
}

// blendedAPY is the exposure-weighted average; a bucket with zero total
// exposure reports 0.
func (b *historyBucket) blendedAPY() float64 {
	if b.apyDen > 0 {
		return b.apyNum / b.apyDen
	}
	return 0
}
