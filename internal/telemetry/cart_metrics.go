package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/dukerupert/dbcart/internal/events"
)

// CartMetrics holds Prometheus metrics for cart resolution, line changes,
// status transitions and the cleanup sweep.
type CartMetrics struct {
	// Resolution
	CartsCreated    *prometheus.CounterVec
	CartsReassigned prometheus.Counter
	CartsMerged     prometheus.Counter
	LinesMerged     prometheus.Counter

	// Lines
	LinesAdded   prometheus.Counter
	LinesUpdated prometheus.Counter
	LinesRemoved prometheus.Counter
	CartsCleared prometheus.Counter
	CartsDeleted prometheus.Counter

	// Lifecycle
	StatusTransitions *prometheus.CounterVec
	CheckoutValue     prometheus.Histogram
	CheckoutItemCount prometheus.Histogram

	// Cleanup sweep
	CleanupExpired  prometheus.Counter
	CleanupDeleted  prometheus.Counter
	CleanupFailures *prometheus.CounterVec
	CleanupDuration prometheus.Histogram
}

// NewCartMetrics creates cart metrics and registers them on reg.
// A nil reg registers on the default Prometheus registry.
func NewCartMetrics(namespace string, reg prometheus.Registerer) *CartMetrics {
	if namespace == "" {
		namespace = "dbcart"
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	factory := promauto.With(reg)
	subsystem := "cart"

	return &CartMetrics{
		// =======================================================================
		// Resolution
		// =======================================================================
		CartsCreated: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "created_total",
				Help:      "Total carts created",
			},
			[]string{"owner"}, // owner: user, session
		),
		CartsReassigned: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "reassigned_total",
			Help:      "Total guest carts handed to a user on login",
		}),
		CartsMerged: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "merged_total",
			Help:      "Total cart transfers that moved at least one line",
		}),
		LinesMerged: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "merged_lines_total",
			Help:      "Total lines moved between carts",
		}),

		// =======================================================================
		// Lines
		// =======================================================================
		LinesAdded: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "lines_added_total",
			Help:      "Total cart lines inserted",
		}),
		LinesUpdated: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "lines_updated_total",
			Help:      "Total cart line quantity or price changes",
		}),
		LinesRemoved: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "lines_removed_total",
			Help:      "Total cart lines removed",
		}),
		CartsCleared: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "cleared_total",
			Help:      "Total carts emptied",
		}),
		CartsDeleted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "deleted_total",
			Help:      "Total carts deleted explicitly",
		}),

		// =======================================================================
		// Lifecycle
		// =======================================================================
		StatusTransitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "status_transitions_total",
				Help:      "Total cart status transitions",
			},
			[]string{"from", "to"},
		),
		CheckoutValue: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "checkout_value",
			Help:      "Cart total price at checkout",
			Buckets:   []float64{10, 25, 50, 75, 100, 150, 250, 500, 1000},
		}),
		CheckoutItemCount: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "checkout_item_count",
			Help:      "Cart item count at checkout",
			Buckets:   []float64{1, 2, 3, 5, 10, 15, 20},
		}),

		// =======================================================================
		// Cleanup
		// =======================================================================
		CleanupExpired: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "cleanup_expired_total",
			Help:      "Total session carts expired by the cleanup sweep",
		}),
		CleanupDeleted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "cleanup_deleted_total",
			Help:      "Total expired carts deleted by the cleanup sweep",
		}),
		CleanupFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "cleanup_failures_total",
				Help:      "Total cleanup sweep step failures",
			},
			[]string{"step"}, // step: expire, delete
		),
		CleanupDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "cleanup_duration_seconds",
			Help:      "Cleanup sweep duration",
			Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}),
	}
}

// RecordEvent updates the counters that correspond to a committed cart event.
// Safe to call on a nil receiver.
func (m *CartMetrics) RecordEvent(ev events.Event) {
	if m == nil {
		return
	}

	switch e := ev.(type) {
	case events.CartCreatedEvent:
		owner := "user"
		if e.Guest {
			owner = "session"
		}
		m.CartsCreated.WithLabelValues(owner).Inc()
	case events.CartReassignedEvent:
		m.CartsReassigned.Inc()
	case events.CartMergedEvent:
		if e.MovedLines > 0 {
			m.CartsMerged.Inc()
			m.LinesMerged.Add(float64(e.MovedLines))
		}
	case events.LineAddedEvent:
		m.LinesAdded.Inc()
	case events.LineUpdatedEvent:
		m.LinesUpdated.Inc()
	case events.LineRemovedEvent:
		m.LinesRemoved.Inc()
	case events.CartClearedEvent:
		m.CartsCleared.Inc()
	case events.CartDeletedEvent:
		m.CartsDeleted.Inc()
	case events.StatusChangedEvent:
		m.StatusTransitions.WithLabelValues(e.From, e.To).Inc()
		if e.To == "pending" {
			value, _ := e.TotalPrice.Float64()
			m.CheckoutValue.Observe(value)
			m.CheckoutItemCount.Observe(float64(e.ItemCount))
		}
	}
}

// RecordCleanup records the outcome of one cleanup sweep. Safe on a nil receiver.
func (m *CartMetrics) RecordCleanup(expired, deleted int64, failedSteps []string, took time.Duration) {
	if m == nil {
		return
	}
	m.CleanupExpired.Add(float64(expired))
	m.CleanupDeleted.Add(float64(deleted))
	for _, step := range failedSteps {
		m.CleanupFailures.WithLabelValues(step).Inc()
	}
	m.CleanupDuration.Observe(took.Seconds())
}
