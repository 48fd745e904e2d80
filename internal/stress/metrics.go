// Copyright 2016 Aleksandr Demakin. All rights reserved.

package stress

import (
	"io"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

const metricsNamespace = "shmstress"

// Metrics collects stress run statistics. A nil *Metrics discards everything.
type Metrics struct {
	registry    *prometheus.Registry
	iterations  prometheus.Counter
	corruptions prometheus.Counter
	lockWait    prometheus.Histogram
	children    *prometheus.CounterVec
}

// NewMetrics returns metrics registered in a new private registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		iterations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "iterations_total",
			Help:      "Number of completed lock-verify-write iterations.",
		}),
		corruptions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "corruptions_total",
			Help:      "Number of detected data corruptions.",
		}),
		lockWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "lock_wait_seconds",
			Help:      "Time spent waiting for the process mutex.",
			Buckets:   prometheus.ExponentialBuckets(1e-6, 10, 7),
		}),
		children: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "workers_total",
			Help:      "Number of finished workers by result.",
		}, []string{"result"}),
	}
	m.registry.MustRegister(m.iterations, m.corruptions, m.lockWait, m.children)
	return m
}

func (m *Metrics) iterationDone(wait time.Duration) {
	if m == nil {
		return
	}
	m.iterations.Inc()
	m.lockWait.Observe(wait.Seconds())
}

func (m *Metrics) corruptionFound() {
	if m != nil {
		m.corruptions.Inc()
	}
}

func (m *Metrics) workerDone(err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "failed"
	}
	m.children.WithLabelValues(result).Inc()
}

// Registry returns the registry the metrics are registered in.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// WriteText writes all the metrics in the prometheus text format.
func (m *Metrics) WriteText(w io.Writer) error {
	if m == nil {
		return nil
	}
	families, err := m.registry.Gather()
	if err != nil {
		return errors.Wrap(err, "failed to gather metrics")
	}
	for _, family := range families {
		if _, err := expfmt.MetricFamilyToText(w, family); err != nil {
			return errors.Wrap(err, "failed to write metrics")
		}
	}
	return nil
}
