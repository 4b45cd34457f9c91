package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Instance metrics
	InstancesTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "mcserver_instances_total",
			Help: "Total number of managed instances by status",
		},
		[]string{"status"},
	)

	OnlinePlayersTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "mcserver_online_players_total",
			Help: "Current online player count per instance",
		},
		[]string{"instance_id"},
	)

	InstanceCPUPercent = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "mcserver_instance_cpu_percent",
			Help: "Last sampled CPU percentage of an instance's child process",
		},
		[]string{"instance_id"},
	)

	InstanceMemoryBytes = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "mcserver_instance_memory_bytes",
			Help: "Last sampled resident memory of an instance's child process",
		},
		[]string{"instance_id"},
	)

	// Cache metrics
	CacheHitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mcserver_cache_hits_total",
			Help: "Cache lookups served fresh or stale",
		},
		[]string{"result"}, // hit, stale, miss
	)

	// Artifact store metrics
	ArtifactStoreBytes = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "mcserver_artifact_store_bytes",
			Help: "Total bytes held in the artifact store by algorithm",
		},
		[]string{"algo"},
	)

	ArtifactPrunedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "mcserver_artifact_pruned_total",
			Help: "Total number of artifacts removed by prune passes",
		},
	)

	// Download metrics
	DownloadAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mcserver_download_attempts_total",
			Help: "Total download attempts by outcome",
		},
		[]string{"outcome"}, // success, retry, failure
	)

	DownloadDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "mcserver_download_duration_seconds",
			Help:    "Time taken to complete a download",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Provider metrics
	ProviderRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mcserver_provider_requests_total",
			Help: "Total catalogue provider requests by provider and status",
		},
		[]string{"provider", "status"},
	)

	// Supervisor metrics
	CrashesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mcserver_crashes_total",
			Help: "Total non-graceful exits observed, by instance",
		},
		[]string{"instance_id"},
	)

	RestartsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mcserver_restarts_total",
			Help: "Total automatic restarts performed, by instance",
		},
		[]string{"instance_id"},
	)

	PrepareServerDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "mcserver_prepare_server_duration_seconds",
			Help:    "Time taken to provision an instance's binary",
			Buckets: prometheus.DefBuckets,
		},
	)

	StartDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "mcserver_start_duration_seconds",
			Help:    "Time from Start() call to the Running transition",
			Buckets: prometheus.DefBuckets,
		},
	)

	StopDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "mcserver_stop_duration_seconds",
			Help:    "Time from Stop() call to the Stopped transition",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Maintenance metrics
	MaintenanceDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "mcserver_maintenance_duration_seconds",
			Help:    "Time taken for a maintenance pass",
			Buckets: prometheus.DefBuckets,
		},
	)
)

func init() {
	prometheus.MustRegister(InstancesTotal)
	prometheus.MustRegister(OnlinePlayersTotal)
	prometheus.MustRegister(InstanceCPUPercent)
	prometheus.MustRegister(InstanceMemoryBytes)
	prometheus.MustRegister(CacheHitsTotal)
	prometheus.MustRegister(ArtifactStoreBytes)
	prometheus.MustRegister(ArtifactPrunedTotal)
	prometheus.MustRegister(DownloadAttemptsTotal)
	prometheus.MustRegister(DownloadDuration)
	prometheus.MustRegister(ProviderRequestsTotal)
	prometheus.MustRegister(CrashesTotal)
	prometheus.MustRegister(RestartsTotal)
	prometheus.MustRegister(PrepareServerDuration)
	prometheus.MustRegister(StartDuration)
	prometheus.MustRegister(StopDuration)
	prometheus.MustRegister(MaintenanceDuration)
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
