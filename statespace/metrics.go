package statespace

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the manager's Prometheus instruments. Kept in one struct so
// the manager itself stays free of registration plumbing.
type Metrics struct {
	LastProcessedBlock prometheus.Gauge
	PoolsTracked       prometheus.Gauge
	ManagerState       prometheus.Gauge

	BlocksProcessed  prometheus.Counter
	DeltasApplied    prometheus.Counter
	DecodeFailures   prometheus.Counter
	ReorgsRecovered  prometheus.Counter
	BlocksRolledBack prometheus.Counter
	Stalls           prometheus.Counter

	BlockProcessingDur prometheus.Histogram
}

// NewMetrics creates and registers the manager's metrics against reg.
func NewMetrics(reg prometheus.Registerer, systemName string) *Metrics {
	return &Metrics{
		LastProcessedBlock: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Subsystem: systemName,
			Name:      "mirror_last_processed_block",
			Help:      "The block number of the last block committed to the mirror.",
		}),
		PoolsTracked: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Subsystem: systemName,
			Name:      "mirror_pools_tracked",
			Help:      "The number of pools currently held in the registry.",
		}),
		ManagerState: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Subsystem: systemName,
			Name:      "mirror_manager_state",
			Help:      "The manager's lifecycle state (1=idle, 2=syncing, 3=reorg_recovering, 4=stalled).",
		}),
		BlocksProcessed: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Subsystem: systemName,
			Name:      "mirror_blocks_processed_total",
			Help:      "Total number of blocks decoded, applied and committed.",
		}),
		DeltasApplied: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Subsystem: systemName,
			Name:      "mirror_deltas_applied_total",
			Help:      "Total number of state deltas applied to tracked pools.",
		}),
		DecodeFailures: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Subsystem: systemName,
			Name:      "mirror_decode_failures_total",
			Help:      "Total number of logs from tracked pools that failed to decode.",
		}),
		ReorgsRecovered: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Subsystem: systemName,
			Name:      "mirror_reorgs_recovered_total",
			Help:      "Total number of chain reorganizations rolled back and replayed.",
		}),
		BlocksRolledBack: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Subsystem: systemName,
			Name:      "mirror_blocks_rolled_back_total",
			Help:      "Total number of committed blocks inverted during reorg recovery.",
		}),
		Stalls: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Subsystem: systemName,
			Name:      "mirror_stalls_total",
			Help:      "Total number of times the manager stalled on an unrecoverable reorg or exhausted provider retries.",
		}),
		BlockProcessingDur: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Subsystem: systemName,
			Name:      "mirror_block_processing_duration_seconds",
			Help:      "A histogram of the time spent decoding and applying one block.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
}
