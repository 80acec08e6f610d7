// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package ratelimit provides the per-source token-bucket limiter for
// the HTTP surface, keyed by a blake3 hash of a source address and a
// second identity string. The HTTP middleware passes the request path
// as that string; request bodies are not part of the key, so requests
// for different identities on the same path from one source share a
// bucket.
package ratelimit

import (
	"encoding/hex"
	"sync"
	"time"

	"github.com/zeebo/blake3"
	"golang.org/x/time/rate"

	"github.com/curiositech/port-daddy/lib/clock"
)

// Limiter manages one token bucket per derived key, evicting idle
// buckets so the map does not grow unboundedly over the daemon's
// lifetime.
type Limiter struct {
	mu           sync.Mutex
	buckets      map[string]*bucket
	ratePerMin   int
	burst        int
	clock        clock.Clock
	idleEviction time.Duration
}

type bucket struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// Config configures a Limiter.
type Config struct {
	// RequestsPerMinute is the sustained rate per key.
	RequestsPerMinute int

	// Burst is the maximum burst size per key.
	Burst int

	// IdleEviction bounds how long an unused bucket is kept before
	// the reaper's sweep may evict it. Defaults to 1 hour.
	IdleEviction time.Duration

	Clock clock.Clock
}

// New constructs a Limiter.
func New(cfg Config) *Limiter {
	clk := cfg.Clock
	if clk == nil {
		clk = clock.Real()
	}
	idle := cfg.IdleEviction
	if idle <= 0 {
		idle = time.Hour
	}
	return &Limiter{
		buckets:      make(map[string]*bucket),
		ratePerMin:   cfg.RequestsPerMinute,
		burst:        cfg.Burst,
		clock:        clk,
		idleEviction: idle,
	}
}

// Key derives the bucket key for a request: blake3(sourceAddr ||
// 0x00 || bodyIdentity).
func Key(sourceAddr, bodyIdentity string) string {
	hasher := blake3.New()
	hasher.Write([]byte(sourceAddr))
	hasher.Write([]byte{0})
	hasher.Write([]byte(bodyIdentity))
	return hex.EncodeToString(hasher.Sum(nil))
}

// Allow reports whether a request for key is within budget, consuming
// one token if so.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(rate.Limit(float64(l.ratePerMin)/60.0), l.burst)}
		l.buckets[key] = b
	}
	b.lastAccess = l.clock.Now()
	return b.limiter.Allow()
}

// EvictIdle removes buckets that have not been used within the
// configured idle-eviction window. Called by the reaper sweep to
// bound memory growth. Returns the count evicted.
func (l *Limiter) EvictIdle() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	evicted := 0
	for key, b := range l.buckets {
		if now.Sub(b.lastAccess) > l.idleEviction {
			delete(l.buckets, key)
			evicted++
		}
	}
	return evicted
}

// Len returns the number of tracked buckets, for metrics.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}
