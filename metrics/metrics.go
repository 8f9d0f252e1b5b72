// Package metrics exposes Prometheus counters and gauges for the ingest,
// clustering and distribution paths.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	eventsIngested = promauto.NewCounter(prometheus.CounterOpts{
		Name: "attmap_events_ingested_total",
		Help: "Events accepted by the upload endpoint.",
	})
	clustersCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "attmap_clusters_created_total",
		Help: "Clusters seeded by an event with no qualifying neighbors.",
	})
	clustersMerged = promauto.NewCounter(prometheus.CounterOpts{
		Name: "attmap_clusters_merged_total",
		Help: "Clusters deactivated by a bridging event.",
	})
	assignConflicts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "attmap_assign_conflicts_total",
		Help: "Transaction conflicts retried during cluster assignment.",
	})
	broadcasts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "attmap_broadcasts_total",
		Help: "Notifications handed to the distribution hub.",
	})
	droppedNotifications = promauto.NewCounter(prometheus.CounterOpts{
		Name: "attmap_dropped_notifications_total",
		Help: "Notifications dropped from full subscriber buffers.",
	})
	subscriptions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "attmap_subscriptions",
		Help: "Currently registered stream subscriptions.",
	})
	activeClusters = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "attmap_active_clusters",
		Help: "Active clusters with more than one event, refreshed by the sweep job.",
	})
)

func IncEventsIngested() { eventsIngested.Inc() }

func IncClustersCreated() { clustersCreated.Inc() }

func AddClustersMerged(n int) { clustersMerged.Add(float64(n)) }

func IncAssignConflicts() { assignConflicts.Inc() }

func IncBroadcasts() { broadcasts.Inc() }

func IncDropped() { droppedNotifications.Inc() }

func IncSubscriptions() { subscriptions.Inc() }

func DecSubscriptions() { subscriptions.Dec() }

func SetActiveClusters(n int) { activeClusters.Set(float64(n)) }
