package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics definitions
var (
	ParseDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "py4a_parse_seconds",
		Help:    "Time spent parsing a source file.",
		Buckets: prometheus.DefBuckets,
	}, []string{"mode"})

	EntitiesExtracted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "py4a_entities_extracted_total",
		Help: "Total number of API entities extracted, by origin.",
	}, []string{"origin"})

	ExtractionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "py4a_extraction_seconds",
		Help:    "Wall time of a full package extraction, by phase.",
		Buckets: prometheus.DefBuckets,
	}, []string{"phase"})

	SandboxLaunchesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "py4a_sandbox_launches_total",
		Help: "Total number of sandboxed interpreter launches.",
	})

	SandboxFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "py4a_sandbox_failures_total",
		Help: "Total number of sandbox runs that ended in a timeout or crash.",
	}, []string{"reason"})

	SandboxesActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "py4a_sandboxes_active",
		Help: "Current number of running sandboxed interpreters.",
	})

	MergeConflictsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "py4a_merge_conflicts_total",
		Help: "Total number of entities where static and dynamic views disagreed.",
	})

	ChangeRecordsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "py4a_change_records_total",
		Help: "Total number of change records produced, by severity.",
	}, []string{"severity"})

	UsageRecordsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "py4a_usage_records_total",
		Help: "Total number of resolved client references, by confidence.",
	}, []string{"confidence"})

	StoreWriteDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "py4a_store_write_seconds",
		Help:    "Latency for persisting a record batch.",
		Buckets: prometheus.DefBuckets,
	}, []string{"table"})
)
