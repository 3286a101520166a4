package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SnapshotsIngested tracks applied vault snapshots by outcome
	SnapshotsIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vaultledger_snapshots_ingested_total",
			Help: "The total number of vault snapshots processed",
		},
		[]string{"status"}, // success, failed
	)

	// LedgerEntriesUpdated tracks accrual recomputations on ledger entries
	LedgerEntriesUpdated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vaultledger_ledger_entries_updated_total",
		Help: "The total number of ownership ledger entries whose accrual was recomputed",
	})

	// IngestDurationSeconds tracks how long a single vault's snapshot takes to apply
	IngestDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "vaultledger_ingest_duration_seconds",
		Help:    "Time taken to apply one vault snapshot in seconds",
		Buckets: prometheus.DefBuckets,
	})

	// SourceFetchFailures tracks platform API fetch failures
	SourceFetchFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vaultledger_source_fetch_failures_total",
			Help: "The total number of failed metrics fetches per platform",
		},
		[]string{"platform"},
	)

	// VaultsTracked reports the number of registered vaults
	VaultsTracked = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "vaultledger_vaults_tracked",
		Help: "The number of vaults currently registered",
	})
)

// RecordIngest records one vault snapshot application
func RecordIngest(duration time.Duration, success bool) {
	status := "success"
	if !success {
		status = "failed"
	}
	SnapshotsIngested.WithLabelValues(status).Inc()
	if success {
		IngestDurationSeconds.Observe(duration.Seconds())
	}
}
