// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package metrics holds the daemon's Prometheus collectors, grounded on
// the discovery handlers' promauto.NewCounterVec/NewHistogramVec
// pattern: counters for claims, claim retries, lock contention,
// publish/subscribe activity, rate-limit rejections, and reaper sweep
// duration.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PortClaims = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "portd_port_claims_total",
		Help: "Total port claim attempts, by outcome.",
	}, []string{"outcome"})

	PortClaimRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "portd_port_claim_retries_total",
		Help: "Total retries spent searching for a free port within the configured range.",
	})

	LockContention = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "portd_lock_contention_total",
		Help: "Lock acquire/extend attempts rejected because another owner holds the lock.",
	}, []string{"operation"})

	MessagesPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "portd_messages_published_total",
		Help: "Total messages published, by channel.",
	}, []string{"channel"})

	SubscribersActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "portd_subscribers_active",
		Help: "Current count of live SSE subscribers across all channels.",
	})

	RateLimitRejections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "portd_rate_limit_rejections_total",
		Help: "Total requests rejected by the per-source rate limiter.",
	})

	ReaperSweepDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "portd_reaper_sweep_duration_seconds",
		Help:    "Wall-clock duration of a full reaper sweep pass.",
		Buckets: prometheus.DefBuckets,
	})

	ResurrectionEntriesCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "portd_resurrection_entries_created_total",
		Help: "Total resurrection entries created for agents that transitioned to dead.",
	})
)
