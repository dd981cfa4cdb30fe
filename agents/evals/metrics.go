/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package evals

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	evaluationCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agent_evaluations_total",
			Help: "Total number of session checks performed",
		},
		[]string{"namespace"},
	)

	failureCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agent_evaluation_failures_total",
			Help: "Total number of failed session checks",
		},
		[]string{"namespace"},
	)

	gradeGauge = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "agent_evaluation_grade",
			Help: "Most recent session check grade (0.0-1.0)",
		},
		[]string{"namespace"},
	)
)

// MetricsObserver exports check results as Prometheus metrics labelled
// with its namespace.
type MetricsObserver struct {
	evalCounter prometheus.Counter
	failCounter prometheus.Counter
	gradeGauge  prometheus.Gauge
	total       atomic.Int64
}

// NewMetricsObserver creates an observer for namespace. It fits
// NewNamespacedObserver as the factory.
func NewMetricsObserver(namespace string) *MetricsObserver {
	labels := prometheus.Labels{"namespace": namespace}
	return &MetricsObserver{
		evalCounter: evaluationCounter.With(labels),
		failCounter: failureCounter.With(labels),
		gradeGauge:  gradeGauge.With(labels),
	}
}

func (m *MetricsObserver) Increment() {
	m.total.Add(1)
	m.evalCounter.Inc()
}

func (m *MetricsObserver) Fail(string) { m.failCounter.Inc() }

func (m *MetricsObserver) Grade(score float64, _ string) { m.gradeGauge.Set(score) }

// Log is a no-op.
func (m *MetricsObserver) Log(string) {}

func (m *MetricsObserver) Total() int64 { return m.total.Load() }
