// Package observability turns lifecycle hooks into Prometheus metrics.
package observability

import (
	"context"
	"net/http"

	"github.com/aretw0/rehearsal/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "rehearsal"

// Metrics owns a Prometheus registry with the engine's collectors.
type Metrics struct {
	registry *prometheus.Registry

	ActionsTotal   *prometheus.CounterVec
	ActionDuration *prometheus.HistogramVec
	TestsTotal     *prometheus.CounterVec
	TestDuration   prometheus.Histogram
	RunningTests   prometheus.Gauge
}

// NewMetrics creates the collectors and registers them on a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		ActionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "actions_total",
			Help:      "Total number of executed actions",
		}, []string{"action", "outcome"}),
		ActionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "action_duration_seconds",
			Help:      "Duration of action executions in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"action"}),
		TestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tests_total",
			Help:      "Total number of finished tests",
		}, []string{"outcome"}),
		TestDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "test_duration_seconds",
			Help:      "Duration of test runs in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
		RunningTests: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "running_tests",
			Help:      "Number of tests currently running",
		}),
	}
	reg.MustRegister(m.ActionsTotal, m.ActionDuration, m.TestsTotal, m.TestDuration, m.RunningTests)
	return m
}

// Registry returns the registry holding the collectors.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the collected metrics in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Hooks returns lifecycle hooks that record into m.
func (m *Metrics) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnTestStart: func(context.Context, *domain.TestEvent) {
			m.RunningTests.Inc()
		},
		OnTestFinish: func(_ context.Context, e *domain.TestEvent) {
			m.RunningTests.Dec()
			if e.Result == nil {
				return
			}
			m.TestsTotal.WithLabelValues(string(e.Result.Outcome)).Inc()
			m.TestDuration.Observe(e.Result.Duration().Seconds())
		},
		OnActionFinish: func(_ context.Context, e *domain.ActionEvent) {
			outcome := "success"
			if e.Err != nil {
				outcome = "failure"
			}
			m.ActionsTotal.WithLabelValues(e.Action, outcome).Inc()
			m.ActionDuration.WithLabelValues(e.Action).Observe(e.Duration.Seconds())
		},
	}
}
