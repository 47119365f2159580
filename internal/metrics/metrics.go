// Copyright 2025 Stefan Prodan.
// SPDX-License-Identifier: AGPL-3.0

// Package metrics holds the Prometheus collectors of the key sources.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "drm_keysource"

// License request outcomes.
const (
	OutcomeOK             = "ok"
	OutcomeTimeout        = "timeout"
	OutcomeTransportError = "transport_error"
	OutcomeTransientError = "transient_error"
	OutcomeServerError    = "server_error"
	OutcomeCanceled       = "canceled"
)

// Crypto period lookup results.
const (
	LookupHit       = "hit"
	LookupCollected = "collected"
	LookupNotFound  = "not_found"
	LookupTimeout   = "timeout"
	LookupFailed    = "failed"
)

var registry = prometheus.NewRegistry()

var (
	licenseRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "license_requests_total",
			Help:      "The number of license request attempts by outcome.",
		},
		[]string{"outcome"},
	)

	licenseRequestDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "license_request_duration_seconds",
			Help:      "The duration of license request attempts.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		},
	)

	cryptoPeriodsProduced = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "crypto_periods_produced_total",
			Help:      "The number of crypto period batches added to the key pool.",
		},
	)

	keyPoolBatches = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "key_pool_batches",
			Help:      "The number of crypto period batches held by the key pool.",
		},
	)

	cryptoPeriodLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "crypto_period_lookups_total",
			Help:      "The number of crypto period key lookups by result.",
		},
		[]string{"result"},
	)
)

func collectors() []prometheus.Collector {
	return []prometheus.Collector{
		licenseRequests,
		licenseRequestDuration,
		cryptoPeriodsProduced,
		keyPoolBatches,
		cryptoPeriodLookups,
	}
}

// Registerer returns the metrics registerer.
func Registerer() prometheus.Registerer {
	return registry
}

// Gatherer returns the metrics gatherer, for use with promhttp.
func Gatherer() prometheus.Gatherer {
	return registry
}

// MustRegisterMetrics registers the key source collectors in the
// package registry.
func MustRegisterMetrics() {
	registry.MustRegister(collectors()...)
}

// RecordLicenseRequest records one license request attempt.
func RecordLicenseRequest(outcome string, duration time.Duration) {
	licenseRequests.WithLabelValues(outcome).Inc()
	licenseRequestDuration.Observe(duration.Seconds())
}

// RecordCryptoPeriodProduced records a batch added to the key pool.
func RecordCryptoPeriodProduced() {
	cryptoPeriodsProduced.Inc()
}

// SetKeyPoolBatches records the number of batches in the key pool.
func SetKeyPoolBatches(n int) {
	keyPoolBatches.Set(float64(n))
}

// RecordCryptoPeriodLookup records the result of a crypto period lookup.
func RecordCryptoPeriodLookup(result string) {
	cryptoPeriodLookups.WithLabelValues(result).Inc()
}
