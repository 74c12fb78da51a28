// Package metrics exposes vaultaire's runtime counters and gauges as
// Prometheus collectors: chunk pipeline throughput, garbage collection
// results, replication health, and Raft cluster state.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds every metric vaultaire reports, registered against its own
// prometheus.Registry so callers embedding vaultaire don't collide with
// the default global registry.
type Registry struct {
	reg *prometheus.Registry

	ChunksWritten    prometheus.Counter
	ChunksDeduped    prometheus.Counter
	BytesStored      prometheus.Counter
	ReplicationFails prometheus.Counter
	ObjectPuts       prometheus.Counter
	ObjectGets       prometheus.Counter
	ObjectDeletes    prometheus.Counter

	GCRunsTotal       prometheus.Counter
	GCOrphansFound    prometheus.Gauge
	GCPhysicalErrors  prometheus.Counter

	RaftIsLeader     prometheus.Gauge
	RaftAppliedIndex prometheus.Gauge
	RaftTermCurrent  prometheus.Gauge
}

// New builds and registers every collector.
func New() *Registry {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	r := &Registry{
		reg: reg,
		ChunksWritten: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "vaultaire", Subsystem: "pipeline", Name: "chunks_written_total",
			Help: "Chunks newly stored (post-dedup).",
		}),
		ChunksDeduped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "vaultaire", Subsystem: "pipeline", Name: "chunks_deduped_total",
			Help: "Chunks whose content already existed in the catalog.",
		}),
		BytesStored: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "vaultaire", Subsystem: "pipeline", Name: "bytes_stored_total",
			Help: "Plaintext bytes accepted by Put across all objects.",
		}),
		ReplicationFails: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "vaultaire", Subsystem: "pipeline", Name: "replication_failures_total",
			Help: "Replica uploads that failed (primary upload failures are fatal and not counted here).",
		}),
		ObjectPuts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "vaultaire", Subsystem: "pipeline", Name: "object_puts_total",
			Help: "Completed Put operations.",
		}),
		ObjectGets: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "vaultaire", Subsystem: "pipeline", Name: "object_gets_total",
			Help: "Completed Get operations.",
		}),
		ObjectDeletes: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "vaultaire", Subsystem: "pipeline", Name: "object_deletes_total",
			Help: "Completed Delete operations.",
		}),
		GCRunsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "vaultaire", Subsystem: "gc", Name: "runs_total",
			Help: "Garbage collection passes executed (dry-run and commit).",
		}),
		GCOrphansFound: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "vaultaire", Subsystem: "gc", Name: "orphans_found",
			Help: "Orphan chunks and replicas found in the most recent GC pass.",
		}),
		GCPhysicalErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "vaultaire", Subsystem: "gc", Name: "physical_delete_errors_total",
			Help: "Physical backend deletes that failed during GC commit.",
		}),
		RaftIsLeader: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "vaultaire", Subsystem: "raft", Name: "is_leader",
			Help: "1 if this node is the current Raft leader, else 0.",
		}),
		RaftAppliedIndex: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "vaultaire", Subsystem: "raft", Name: "applied_index",
			Help: "Last log index applied to the local FSM.",
		}),
		RaftTermCurrent: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "vaultaire", Subsystem: "raft", Name: "current_term",
			Help: "Current Raft term as observed by this node.",
		}),
	}
	return r
}

// Handler returns the HTTP handler to mount for Prometheus scraping.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}
