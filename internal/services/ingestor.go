package services

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/backyardfi/vaultledger/internal/metrics"
	"github.com/backyardfi/vaultledger/internal/models"
	"github.com/backyardfi/vaultledger/internal/store"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// SnapshotInput is one freshly pulled set of vault metrics.
type SnapshotInput struct {
	VaultID       string
	TVLUSD        float64
	APY           float64
	AssetPriceUSD float64
	RewardRate    float64
	AsOf          time.Time
}

// IngestFailure reports a vault whose snapshot could not be applied.
type IngestFailure struct {
	VaultID string
	Err     error
}

// Ingestor applies vault snapshots: it overwrites the vault's current
// metrics, records an immutable history row and recomputes accrued interest
// for every ledger entry holding a slice of that vault. All three steps for
// one vault commit in a single transaction.
type Ingestor struct {
	store       store.Store
	logger      zerolog.Logger
	interval    time.Duration
	concurrency int
}

// NewIngestor creates an ingestor. interval is the ingestion cadence used to
// bucket snapshot timestamps; concurrency bounds how many vaults of a batch
// are processed in parallel.
func NewIngestor(s store.Store, logger zerolog.Logger, interval time.Duration, concurrency int) *Ingestor {
	if interval <= 0 {
		interval = time.Hour
	}
	if concurrency <= 0 {
		concurrency = 4
	}
	return &Ingestor{
		store:       s,
		logger:      logger.With().Str("component", "ingestor").Logger(),
		interval:    interval,
		concurrency: concurrency,
	}
}

// IngestSnapshot applies a single vault's snapshot.
func (i *Ingestor) IngestSnapshot(ctx context.Context, input SnapshotInput) error {
	if err := validateInput(input); err != nil {
		return err
	}

	bucket := input.AsOf.UTC().Truncate(i.interval)
	start := time.Now()

	err := i.store.Transact(ctx, func(tx store.Store) error {
		vault, err := tx.GetVault(ctx, input.VaultID)
		if err != nil {
			return err
		}

		vault.CurrentTVL = input.TVLUSD
		vault.CurrentAPY = input.APY
		vault.CurrentAssetPrice = input.AssetPriceUSD
		vault.CurrentRewardRate = input.RewardRate
		vault.UpdatedAt = time.Now().UTC()
		if err := tx.SaveVault(ctx, vault); err != nil {
			return err
		}

		if err := tx.UpsertSnapshot(ctx, &models.VaultSnapshot{
			VaultID:    vault.ID,
			RecordedAt: bucket,
			TVL:        input.TVLUSD,
			APY:        input.APY,
			AssetPrice: input.AssetPriceUSD,
			RewardRate: input.RewardRate,
		}); err != nil {
			return err
		}

		return i.accrueEntries(ctx, tx, vault.ID, input)
	})
	if err != nil {
		metrics.RecordIngest(time.Since(start), false)
		return err
	}

	metrics.RecordIngest(time.Since(start), true)
	i.logger.Debug().
		Str("vault_id", input.VaultID).
		Time("bucket", bucket).
		Float64("tvl_usd", input.TVLUSD).
		Msg("Snapshot applied")
	return nil
}

// accrueEntries recomputes every ledger entry's interest from its frozen
// deposit basis against the new TVL. This is a full overwrite, not an
// incremental add: re-running it for the same snapshot is a no-op.
func (i *Ingestor) accrueEntries(ctx context.Context, tx store.Store, vaultID string, input SnapshotInput) error {
	entries, err := tx.ListEntriesByVault(ctx, vaultID)
	if err != nil {
		return err
	}

	for _, entry := range entries {
		currentValueUSD := entry.OwnershipFraction * input.TVLUSD
		pnlUSD := currentValueUSD - entry.DepositedAmountUSD

		// A zero, negative or otherwise unusable asset price yields zero
		// token interest rather than NaN or Inf.
		interestToken := 0.0
		if input.AssetPriceUSD > 0 && !math.IsInf(input.AssetPriceUSD, 0) {
			interestToken = pnlUSD / input.AssetPriceUSD
		}

		if err := tx.UpdateEntryAccrual(ctx, entry.ID, interestToken, pnlUSD); err != nil {
			return err
		}
		metrics.LedgerEntriesUpdated.Inc()
	}
	return nil
}

// IngestBatch applies a batch of snapshots, one transaction per vault, and
// returns the vaults that failed. A failing vault rolls back only its own
// writes; the rest of the batch proceeds.
func (i *Ingestor) IngestBatch(ctx context.Context, inputs []SnapshotInput) []IngestFailure {
	var (
		mu       sync.Mutex
		failures []IngestFailure
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(i.concurrency)

	for _, input := range inputs {
		input := input
		g.Go(func() error {
			if err := i.IngestSnapshot(gctx, input); err != nil {
				i.logger.Error().
					Err(err).
					Str("vault_id", input.VaultID).
					Msg("Failed to ingest snapshot")
				mu.Lock()
				failures = append(failures, IngestFailure{VaultID: input.VaultID, Err: err})
				mu.Unlock()
			}
			return nil
		})
	}
	// Workers never return errors, they record failures instead.
	_ = g.Wait()

	return failures
}

func validateInput(input SnapshotInput) error {
	for name, v := range map[string]float64{
		"tvl":         input.TVLUSD,
		"apy":         input.APY,
		"asset_price": input.AssetPriceUSD,
		"reward_rate": input.RewardRate,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("non-finite %s for vault %s: %w", name, input.VaultID, ErrInvalidInput)
		}
	}
	if input.TVLUSD < 0 {
		return fmt.Errorf("negative tvl for vault %s: %w", input.VaultID, ErrInvalidInput)
	}
	if input.AsOf.IsZero() {
		return fmt.Errorf("missing snapshot timestamp for vault %s: %w", input.VaultID, ErrInvalidInput)
	}
	return nil
}
