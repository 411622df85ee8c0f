// Package metrics declares the Prometheus collectors exported by qg serve.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// DefectsCreated counts persisted defects by severity.
	DefectsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "qualitygate",
		Name:      "defects_created_total",
		Help:      "Defects recorded, by severity.",
	}, []string{"severity"})

	// InspectionsCompleted counts completions by resulting status.
	InspectionsCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "qualitygate",
		Name:      "inspections_completed_total",
		Help:      "Inspections completed, by terminal status.",
	}, []string{"status"})

	// DefectRate observes the defect rate (percent) computed at completion.
	DefectRate = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "qualitygate",
		Name:      "inspection_defect_rate_percent",
		Help:      "Defect rate computed when an inspection completes.",
		Buckets:   []float64{0, 1, 2, 5, 10, 25, 50, 100},
	})

	// AlertsEmitted counts alerts handed to the dispatcher, by kind.
	AlertsEmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "qualitygate",
		Name:      "alerts_emitted_total",
		Help:      "Alerts raised by the decision logic, by kind.",
	}, []string{"kind"})

	// AlertDeliveries counts notifier deliveries, by notifier and outcome.
	AlertDeliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "qualitygate",
		Name:      "alert_deliveries_total",
		Help:      "Alert deliveries attempted, by notifier and outcome.",
	}, []string{"notifier", "outcome"})

	// AlertsDropped counts alerts discarded because the queue was full or closed.
	AlertsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "qualitygate",
		Name:      "alerts_dropped_total",
		Help:      "Alerts dropped before delivery.",
	})

	// ActivityFailures counts audit trail writes that failed or were dropped.
	ActivityFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "qualitygate",
		Name:      "activity_record_failures_total",
		Help:      "Activity records that could not be written.",
	})

	// ImageStoreFailures counts image store operations that failed, by op.
	ImageStoreFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "qualitygate",
		Name:      "image_store_failures_total",
		Help:      "Image store failures, by operation.",
	}, []string{"op"})
)
