// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ratelimit

import (
	"testing"
	"time"

	"github.com/curiositech/port-daddy/lib/clock"
)

func TestKeyIsStableAndDistinguishesIdentity(t *testing.T) {
	a := Key("127.0.0.1", "acme:api")
	b := Key("127.0.0.1", "acme:api")
	if a != b {
		t.Fatalf("expected Key to be deterministic, got %q vs %q", a, b)
	}

	c := Key("127.0.0.1", "acme:worker")
	if a == c {
		t.Fatalf("expected distinct identities sharing a source to derive distinct keys")
	}

	d := Key("10.0.0.1", "acme:api")
	if a == d {
		t.Fatalf("expected distinct sources to derive distinct keys")
	}
}

func TestAllowRespectsBurst(t *testing.T) {
	l := New(Config{RequestsPerMinute: 60, Burst: 3, Clock: clock.Fake(time.Unix(0, 0))})
	key := Key("127.0.0.1", "acme:api")

	for i := 0; i < 3; i++ {
		if !l.Allow(key) {
			t.Fatalf("expected request %d within burst to be allowed", i)
		}
	}
	if l.Allow(key) {
		t.Fatalf("expected request beyond burst to be refused")
	}
}

func TestAllowTracksKeysIndependently(t *testing.T) {
	l := New(Config{RequestsPerMinute: 60, Burst: 1, Clock: clock.Fake(time.Unix(0, 0))})

	a := Key("127.0.0.1", "acme:api")
	b := Key("127.0.0.1", "acme:worker")

	if !l.Allow(a) {
		t.Fatalf("expected first request for a to be allowed")
	}
	if l.Allow(a) {
		t.Fatalf("expected second request for a to be refused")
	}
	if !l.Allow(b) {
		t.Fatalf("expected a distinct key's budget to be untouched by a's consumption")
	}
}

func TestLenTracksBucketCount(t *testing.T) {
	l := New(Config{RequestsPerMinute: 60, Burst: 1, Clock: clock.Fake(time.Unix(0, 0))})
	if l.Len() != 0 {
		t.Fatalf("expected no buckets before any request")
	}

	l.Allow(Key("127.0.0.1", "acme:api"))
	l.Allow(Key("127.0.0.1", "acme:worker"))
	if l.Len() != 2 {
		t.Fatalf("expected 2 tracked buckets, got %d", l.Len())
	}
}

func TestEvictIdleRemovesStaleBuckets(t *testing.T) {
	clk := clock.Fake(time.Unix(1700000000, 0))
	l := New(Config{RequestsPerMinute: 60, Burst: 1, IdleEviction: time.Minute, Clock: clk})

	stale := Key("127.0.0.1", "acme:api")
	l.Allow(stale)

	clk.Advance(2 * time.Minute)

	fresh := Key("127.0.0.1", "acme:worker")
	l.Allow(fresh)

	evicted := l.EvictIdle()
	if evicted != 1 {
		t.Fatalf("expected 1 stale bucket evicted, got %d", evicted)
	}
	if l.Len() != 1 {
		t.Fatalf("expected the fresh bucket to survive, got %d remaining", l.Len())
	}
}
