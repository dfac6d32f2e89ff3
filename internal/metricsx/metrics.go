// Package metricsx provides the Prometheus collectors shared by a run's
// components: the solver, the call engine, and the IPC dispatcher.
package metricsx

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles every collector a run registers. One Metrics is created
// per runtime thread (spec §5: threads don't share mutable state), each with
// its own registry so that concurrent runs against different runtimes never
// collide on a duplicate-registration panic.
type Metrics struct {
	Registry *prometheus.Registry

	CallsTotal        *prometheus.CounterVec
	SolveDuration      prometheus.Histogram
	ModelsPerCall      prometheus.Histogram
	DispatchDuration   prometheus.Histogram
	SolveFailuresTotal *prometheus.CounterVec
	PoolAcquire        prometheus.Histogram
}

// New constructs a fresh Metrics with its own registry, labeled by the
// runtime identifier this thread is driving.
func New(runtime string) *Metrics {
	reg := prometheus.NewRegistry()
	constLabels := prometheus.Labels{"runtime": runtime}

	m := &Metrics{
		Registry: reg,
		CallsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "wazzi",
			Name:        "calls_total",
			Help:        "Number of calls dispatched to the guest executor, by function name and errno.",
			ConstLabels: constLabels,
		}, []string{"function", "errno"}),
		SolveDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   "wazzi",
			Name:        "solve_duration_seconds",
			Help:        "Time spent in a single constraint-solver invocation.",
			ConstLabels: constLabels,
			Buckets:     prometheus.DefBuckets,
		}),
		ModelsPerCall: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   "wazzi",
			Name:        "models_total",
			Help:        "Number of models collected from the solution space for a call.",
			ConstLabels: constLabels,
			Buckets:     []float64{0, 1, 2, 4, 8, 16, 32, 64, 100},
		}),
		DispatchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   "wazzi",
			Name:        "dispatch_duration_seconds",
			Help:        "Time spent waiting for the guest executor's IPC response.",
			ConstLabels: constLabels,
			Buckets:     prometheus.DefBuckets,
		}),
		SolveFailuresTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "wazzi",
			Name:        "solve_failures_total",
			Help:        "Number of unsat or timed-out solver invocations, by function name.",
			ConstLabels: constLabels,
		}, []string{"function", "reason"}),
		PoolAcquire: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   "wazzi",
			Name:        "executor_pool_acquire_seconds",
			Help:        "Time spent acquiring an in-process executor backend instance.",
			ConstLabels: constLabels,
			Buckets:     prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		m.CallsTotal,
		m.SolveDuration,
		m.ModelsPerCall,
		m.DispatchDuration,
		m.SolveFailuresTotal,
		m.PoolAcquire,
	)
	return m
}
