// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package text2cypher

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	metricsNamespace   = "text2cypher"
	generatorSubsystem = "generator"
)

// Metrics holds the Prometheus instruments of a Generator.
//
// # Thread Safety
//
// All operations are thread-safe. A nil *Metrics records nothing.
type Metrics struct {
	// RequestsTotal counts turns by provider and status
	// (success, violation, backend_error, rejected).
	RequestsTotal *prometheus.CounterVec

	// RequestDurationSeconds measures the backend round trip.
	RequestDurationSeconds *prometheus.HistogramVec

	// ContractViolationsTotal counts broken rules.
	ContractViolationsTotal *prometheus.CounterVec

	// ActiveSessions is the number of live conversation sessions.
	ActiveSessions prometheus.Gauge
}

// NewMetrics creates the instruments and registers them with reg. A nil
// reg creates unregistered instruments.
//
// # Limitations
//
//   - Panics when the same reg already holds these metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: generatorSubsystem,
				Name:      "requests_total",
				Help:      "Total generation turns by provider and status",
			},
			[]string{"provider", "status"},
		),
		RequestDurationSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: generatorSubsystem,
				Name:      "request_duration_seconds",
				Help:      "Backend round trip duration in seconds",
				Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 60},
			},
			[]string{"provider"},
		),
		ContractViolationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: generatorSubsystem,
				Name:      "contract_violations_total",
				Help:      "Total rule violations found in generated queries",
			},
			[]string{"rule"},
		),
		ActiveSessions: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: generatorSubsystem,
				Name:      "active_sessions",
				Help:      "Number of live conversation sessions",
			},
		),
	}
}

func (m *Metrics) recordTurn(provider, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(provider, status).Inc()
	if duration > 0 {
		m.RequestDurationSeconds.WithLabelValues(provider).Observe(duration.Seconds())
	}
}

func (m *Metrics) recordViolations(violations []Violation) {
	if m == nil {
		return
	}
	for _, v := range violations {
		m.ContractViolationsTotal.WithLabelValues(string(v.Rule)).Inc()
	}
}

func (m *Metrics) sessionOpened() {
	if m == nil {
		return
	}
	m.ActiveSessions.Inc()
}

func (m *Metrics) sessionClosed() {
	if m == nil {
		return
	}
	m.ActiveSessions.Dec()
}
