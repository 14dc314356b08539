package mirror

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// lastSyncTimestamp is a Gauge that captures the timestamp of the last
	// successful sync cycle
	lastSyncTimestamp *prometheus.GaugeVec
	// syncCount is a Counter vector of sync cycles
	syncCount *prometheus.CounterVec
	// syncLatency is a Histogram vector that keeps track of sync cycle durations
	syncLatency *prometheus.HistogramVec
)

// EnableMetrics will enable metrics collection for sync cycles.
// Available metrics are...
//   - git_last_sync_timestamp - (tags: repo)
//     A Gauge that captures the Timestamp of the last successful sync per repo.
//   - git_sync_count - (tags: repo,outcome,success)
//     A Counter for each sync cycle, incremented per attempt and tagged with the
//     cycle outcome (up-to-date|fast-forwarded|diverged|failed) and the result
//     (success=true|false)
//   - git_sync_latency_seconds - (tags: repo)
//     A Histogram that keeps track of the sync cycle latency per repo.
func EnableMetrics(metricsNamespace string, registerer prometheus.Registerer) {
	lastSyncTimestamp = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Name:      "git_last_sync_timestamp",
		Help:      "Timestamp of the last successful git sync",
	},
		[]string{
			// name of the repository
			"repo",
		},
	)

	syncCount = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "git_sync_count",
		Help:      "Count of git sync cycles",
	},
		[]string{
			// name of the repository
			"repo",
			// terminal classification of the cycle
			"outcome",
			// Whether the cycle was successful or not
			"success",
		},
	)

	syncLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: metricsNamespace,
		Name:      "git_sync_latency_seconds",
		Help:      "Latency for git sync cycles",
		Buckets:   []float64{0.5, 1, 5, 10, 20, 30, 60, 90, 120, 150, 300},
	},
		[]string{
			// name of the repository
			"repo",
		},
	)

	registerer.MustRegister(
		lastSyncTimestamp,
		syncCount,
		syncLatency,
	)
}

// recordSync records a sync cycle attempt by updating all the
// relevant metrics
func recordSync(repo string, outcome Outcome, success bool) {
	// if metrics not enabled return
	if lastSyncTimestamp == nil || syncCount == nil {
		return
	}
	if outcome == "" {
		outcome = outcomeFailed
	}
	if success {
		lastSyncTimestamp.With(prometheus.Labels{
			"repo": repo,
		}).Set(float64(time.Now().Unix()))
	}
	syncCount.With(prometheus.Labels{
		"repo":    repo,
		"outcome": string(outcome),
		"success": strconv.FormatBool(success),
	}).Inc()
}

func updateSyncLatency(repo string, start time.Time) {
	// if metrics not enabled return
	if syncLatency == nil {
		return
	}
	syncLatency.WithLabelValues(repo).Observe(time.Since(start).Seconds())
}
