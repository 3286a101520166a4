package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/backyardfi/vaultledger/internal/metrics"
	"github.com/backyardfi/vaultledger/internal/services"
	"github.com/backyardfi/vaultledger/internal/store"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Scheduler triggers the ingestion cycle on a cron cadence: every tick it
// pulls fresh metrics from each platform source and hands them to the
// ingestor as one batch per platform.
type Scheduler struct {
	cron     *cron.Cron
	store    store.Store
	ingestor *services.Ingestor
	sources  []services.MetricsSource
	logger   zerolog.Logger
}

// New creates a scheduler over the given metrics sources.
func New(s store.Store, ingestor *services.Ingestor, sources []services.MetricsSource, logger zerolog.Logger) *Scheduler {
	return &Scheduler{
		cron:     cron.New(),
		store:    s,
		ingestor: ingestor,
		sources:  sources,
		logger:   logger.With().Str("component", "scheduler").Logger(),
	}
}

// Start registers the ingestion job under the given cron spec (standard
// five-field format, e.g. "0 * * * *" for hourly) and starts the scheduler.
func (s *Scheduler) Start(spec string) error {
	_, err := s.cron.AddFunc(spec, func() {
		if err := s.RunOnce(context.Background()); err != nil {
			s.logger.Error().Err(err).Msg("Ingestion cycle failed")
		}
	})
	if err != nil {
		return fmt.Errorf("failed to register ingestion job: %w", err)
	}
	s.cron.Start()
	s.logger.Info().Str("spec", spec).Msg("Scheduler started")
	return nil
}

// Stop halts the cron loop and waits for a running cycle to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info().Msg("Scheduler stopped")
}

// RunOnce executes a single ingestion cycle across all sources. A failing
// source skips only that platform; per-vault failures inside a batch are
// already isolated by the ingestor.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	asOf := time.Now().UTC()
	var firstErr error
	var tracked int

	for _, source := range s.sources {
		platform := source.Platform()
		vaults, err := s.store.ListVaultsByPlatform(ctx, platform)
		if err != nil {
			s.logger.Error().Err(err).Str("platform", platform).Msg("Failed to list vaults")
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		tracked += len(vaults)
		if len(vaults) == 0 {
			continue
		}

		fetched, err := source.FetchMetrics(ctx, vaults)
		if err != nil {
			s.logger.Error().Err(err).Str("platform", platform).Msg("Failed to fetch metrics")
			metrics.SourceFetchFailures.WithLabelValues(platform).Inc()
			if firstErr == nil {
				firstErr = err
			}
			continue
		}

		inputs := make([]services.SnapshotInput, 0, len(fetched))
		for _, vault := range vaults {
			m, ok := fetched[vault.ID]
			if !ok {
				s.logger.Warn().
					Str("platform", platform).
					Str("vault_id", vault.ID).
					Msg("Source returned no metrics for vault")
				continue
			}
			inputs = append(inputs, services.SnapshotInput{
				VaultID:       vault.ID,
				TVLUSD:        m.TVLUSD,
				APY:           m.APY,
				AssetPriceUSD: m.AssetPriceUSD,
				RewardRate:    m.RewardRate,
				AsOf:          asOf,
			})
		}

		failures := s.ingestor.IngestBatch(ctx, inputs)
		s.logger.Info().
			Str("platform", platform).
			Int("vaults", len(inputs)).
			Int("failures", len(failures)).
			Msg("Ingestion cycle completed")
	}

	metrics.VaultsTracked.Set(float64(tracked))
	return firstErr
}
