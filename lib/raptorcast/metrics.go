// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package raptorcast

import (
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "raptorcast"

// metrics are the engine's Prometheus collectors.
type metrics struct {
	propagations      *prometheus.CounterVec
	chunksGenerated   prometheus.Counter
	chunksSent        prometheus.Counter
	propagateDuration prometheus.Histogram
	replication       prometheus.Histogram
	verifications     *prometheus.CounterVec
	evolutions        prometheus.Counter
	persistFailures   *prometheus.CounterVec
	persistRetries    prometheus.Counter
	breakerOpen       prometheus.Gauge
	nodesOnline       prometheus.Gauge
}

func newMetrics(registerer prometheus.Registerer) (*metrics, error) {
	m := &metrics{
		propagations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "propagations_total",
			Help:      "Propagate calls by outcome: created, cached or failed.",
		}, []string{"outcome"}),
		chunksGenerated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "chunks_generated_total",
			Help:      "Encoded chunks produced by new propagations.",
		}),
		chunksSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "chunks_sent_total",
			Help:      "Chunks delivered by simulated distribution.",
		}),
		propagateDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "propagate_duration_seconds",
			Help:      "Time to encode, distribute and score a new propagation.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
		}),
		replication: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "replication_factor",
			Help:      "Replication factor of new propagations.",
			Buckets:   prometheus.LinearBuckets(0.1, 0.1, 10),
		}),
		verifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "verifications_total",
			Help:      "Verify calls by result: success or failure.",
		}, []string{"result"}),
		evolutions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "evolutions_total",
			Help:      "Artifacts derived by Evolve.",
		}),
		persistFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "persist_failures_total",
			Help:      "Provenance writes that failed, by namespace.",
		}, []string{"namespace"}),
		persistRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "persist_retries_total",
			Help:      "Background retry rounds for failed provenance writes.",
		}),
		breakerOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "persist_breaker_open",
			Help:      "1 while the persistence circuit breaker is open.",
		}),
		nodesOnline: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "nodes_online",
			Help:      "Registered nodes currently online.",
		}),
	}
	if registerer == nil {
		return m, nil
	}

	collectors := []prometheus.Collector{
		m.propagations, m.chunksGenerated, m.chunksSent, m.propagateDuration,
		m.replication, m.verifications, m.evolutions, m.persistFailures,
		m.persistRetries, m.breakerOpen, m.nodesOnline,
	}
	for _, collector := range collectors {
		if err := registerer.Register(collector); err != nil {
			var already prometheus.AlreadyRegisteredError
			if errors.As(err, &already) {
				return nil, fmt.Errorf("%w: metrics already registered (one engine per registry)", ErrInvalidConfig)
			}
			return nil, fmt.Errorf("registering metrics: %w", err)
		}
	}
	return m, nil
}
