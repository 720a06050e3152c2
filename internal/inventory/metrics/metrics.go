// Package metrics holds the Prometheus collectors of the inventory engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	LedgerOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inventory_ledger_operations_total",
			Help: "Total number of ledger operations by outcome",
		},
		[]string{"operation", "outcome"},
	)

	LedgerOperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "inventory_ledger_operation_duration_seconds",
			Help:    "Duration of ledger operations in seconds, retries included",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	LedgerVersionConflictsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inventory_ledger_version_conflicts_total",
			Help: "Compare-and-swap attempts lost to a concurrent writer",
		},
		[]string{"operation"},
	)

	InvariantViolationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inventory_invariant_violations_total",
			Help: "Ledger invariant violations. Any increase needs operator attention",
		},
		[]string{"operation"},
	)

	ReservationTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inventory_reservation_transitions_total",
			Help: "Reservation state transitions by target state and result",
		},
		[]string{"state", "result"},
	)

	SweeperRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inventory_sweeper_runs_total",
			Help: "Sweeper ticks by result",
		},
		[]string{"result"},
	)

	SweeperExpiredTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "inventory_sweeper_expired_total",
			Help: "Reservations expired by the sweeper",
		},
	)

	SweeperFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "inventory_sweeper_failures_total",
			Help: "Reservations the sweeper failed to expire",
		},
	)

	BulkItemsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inventory_bulk_items_total",
			Help: "Bulk job items by job type and outcome",
		},
		[]string{"type", "outcome"},
	)

	BulkJobsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inventory_bulk_jobs_total",
			Help: "Finished bulk jobs by final status",
		},
		[]string{"status"},
	)

	StockEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inventory_stock_events_total",
			Help: "Stock level events by signal and publish result",
		},
		[]string{"signal", "result"},
	)

	GRPCRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inventory_grpc_requests_total",
			Help: "Total number of gRPC requests by method and status code",
		},
		[]string{"method", "code"},
	)

	GRPCRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "inventory_grpc_request_duration_seconds",
			Help:    "Duration of gRPC requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	EventsConsumedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inventory_events_consumed_total",
			Help: "Consumed Kafka events by type and handling result",
		},
		[]string{"event_type", "result"},
	)
)

func init() {
	prometheus.MustRegister(LedgerOperationsTotal)
	prometheus.MustRegister(LedgerOperationDuration)
	prometheus.MustRegister(LedgerVersionConflictsTotal)
	prometheus.MustRegister(InvariantViolationsTotal)
	prometheus.MustRegister(ReservationTransitionsTotal)
	prometheus.MustRegister(SweeperRunsTotal)
	prometheus.MustRegister(SweeperExpiredTotal)
	prometheus.MustRegister(SweeperFailuresTotal)
	prometheus.MustRegister(BulkItemsTotal)
	prometheus.MustRegister(BulkJobsTotal)
	prometheus.MustRegister(StockEventsTotal)
	prometheus.MustRegister(GRPCRequestsTotal)
	prometheus.MustRegister(GRPCRequestDuration)
	prometheus.MustRegister(EventsConsumedTotal)
}
