package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// CheckoutTotal counts checkout attempts by result: placed, validation,
	// conflict, discount_invalid, not_found, error.
	CheckoutTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "commerce_checkout_total",
		Help: "Checkout attempts by result.",
	}, []string{"result"})

	// SweepRuns counts reconciliation sweep executions by job and result
	// (ok, error, panic).
	SweepRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "commerce_sweep_runs_total",
		Help: "Reconciliation sweep executions by job and result.",
	}, []string{"job", "result"})

	// SweepAffected counts rows touched by each sweep.
	SweepAffected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "commerce_sweep_rows_total",
		Help: "Rows affected by reconciliation sweeps.",
	}, []string{"job"})

	// TasksProcessed counts queue task executions by kind and result
	// (done, retried, failed).
	TasksProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "commerce_tasks_processed_total",
		Help: "Queue task executions by kind and result.",
	}, []string{"kind", "result"})
)

// Handler serves the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
