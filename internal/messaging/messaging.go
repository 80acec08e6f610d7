// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package messaging implements the durable-history, fan-out pub/sub
// hub: publish persists to the store and wakes live subscribers;
// subscribers drain through a bounded per-subscriber queue so one
// slow reader cannot stall publish.
package messaging

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/curiositech/port-daddy/internal/kernelerr"
	"github.com/curiositech/port-daddy/internal/metrics"
	"github.com/curiositech/port-daddy/internal/store"
	"github.com/curiositech/port-daddy/lib/clock"
)

// Config configures the Messaging hub.
type Config struct {
	// SubscriberQueueSize bounds each subscriber's backlog before it is
	// considered a slow consumer and evicted.
	SubscriberQueueSize int

	// MaxAge and MaxPerChannel bound stored history; enforced by
	// TruncateHistory, called from the reaper sweep.
	MaxAge        time.Duration
	MaxPerChannel int
}

// Messaging is the pub/sub hub.
type Messaging struct {
	store  *store.Store
	clock  clock.Clock
	logger *slog.Logger
	cfg    Config

	mu          sync.Mutex
	subscribers map[string][]*subscriber
}

// subscriber is one live SSE connection's delivery queue.
type subscriber struct {
	channel string
	queue   chan store.Message
	closed  chan struct{}
	once    sync.Once
}

func (sub *subscriber) close() {
	sub.once.Do(func() { close(sub.closed) })
}

// New constructs a Messaging hub.
func New(st *store.Store, clk clock.Clock, cfg Config, logger *slog.Logger) *Messaging {
	if cfg.SubscriberQueueSize <= 0 {
		cfg.SubscriberQueueSize = 64
	}
	return &Messaging{
		store:       st,
		clock:       clk,
		logger:      logger,
		cfg:         cfg,
		subscribers: make(map[string][]*subscriber),
	}
}

// Publish persists payload on channel and fans it out to live
// subscribers. Fan-out happens outside the registry lock: a slow
// subscriber's full queue causes that subscriber alone to be evicted,
// never blocks the publisher or other subscribers.
func (m *Messaging) Publish(ctx context.Context, channel string, payload json.RawMessage, sender *string) (int64, error) {
	now := m.clock.Now().UnixMilli()
	id, err := m.store.InsertMessage(ctx, channel, payload, sender, now)
	if err != nil {
		return 0, err
	}

	msg := store.Message{ID: id, Channel: channel, Payload: payload, Sender: sender, CreatedAt: now}
	m.fanOut(channel, msg)
	metrics.MessagesPublished.WithLabelValues(channel).Inc()
	return id, nil
}

// fanOut delivers msg to every live subscriber of channel, evicting
// any whose queue is full.
func (m *Messaging) fanOut(channel string, msg store.Message) {
	m.mu.Lock()
	subs := append([]*subscriber(nil), m.subscribers[channel]...)
	m.mu.Unlock()

	var dead []*subscriber
	for _, sub := range subs {
		select {
		case sub.queue <- msg:
		default:
			if m.logger != nil {
				m.logger.Warn("messaging: evicting slow subscriber", "channel", channel)
			}
			dead = append(dead, sub)
		}
	}

	if len(dead) > 0 {
		m.mu.Lock()
		for _, sub := range dead {
			if m.removeSubscriberLocked(sub) {
				metrics.SubscribersActive.Dec()
			}
			sub.close()
		}
		m.mu.Unlock()
	}
}

// Subscribe registers a new subscriber for channel and returns a
// receive channel of messages, a channel closed when the subscription
// ends (ctx canceled or slow-consumer eviction — the message queue
// itself is never closed, since a concurrent fan-out send could race
// a close), and an unsubscribe func.
func (m *Messaging) Subscribe(ctx context.Context, channel string) (<-chan store.Message, <-chan struct{}, func()) {
	sub := &subscriber{
		channel: channel,
		queue:   make(chan store.Message, m.cfg.SubscriberQueueSize),
		closed:  make(chan struct{}),
	}

	m.mu.Lock()
	m.subscribers[channel] = append(m.subscribers[channel], sub)
	m.mu.Unlock()
	metrics.SubscribersActive.Inc()

	unsubscribe := func() {
		m.mu.Lock()
		removed := m.removeSubscriberLocked(sub)
		m.mu.Unlock()
		if removed {
			metrics.SubscribersActive.Dec()
		}
		sub.close()
	}

	go func() {
		select {
		case <-ctx.Done():
			unsubscribe()
		case <-sub.closed:
		}
	}()

	return sub.queue, sub.closed, unsubscribe
}

// removeSubscriberLocked removes sub from its channel's subscriber
// list, reporting whether it was present (a caller may race another
// removal of the same subscriber — eviction and unsubscribe can run
// concurrently).
func (m *Messaging) removeSubscriberLocked(sub *subscriber) bool {
	subs := m.subscribers[sub.channel]
	removed := false
	for i, s := range subs {
		if s == sub {
			m.subscribers[sub.channel] = append(subs[:i], subs[i+1:]...)
			removed = true
			break
		}
	}
	if len(m.subscribers[sub.channel]) == 0 {
		delete(m.subscribers, sub.channel)
	}
	return removed
}

// Messages returns stored history for channel, with id > since, up to
// limit rows (0 for unlimited).
func (m *Messaging) Messages(ctx context.Context, channel string, since int64, limit int) ([]store.Message, error) {
	return m.store.ListMessages(ctx, channel, since, limit)
}

// Channels returns a summary of every channel with stored history.
func (m *Messaging) Channels(ctx context.Context) ([]store.ChannelSummary, error) {
	return m.store.Channels(ctx)
}

// ClearChannel deletes channel's stored history. Live subscribers are
// unaffected.
func (m *Messaging) ClearChannel(ctx context.Context, channel string) (int, error) {
	if channel == "" {
		return 0, kernelerr.New(kernelerr.Validation, "channel is required")
	}
	return m.store.ClearChannel(ctx, channel)
}

// TruncateHistory enforces the configured age and per-channel count
// bounds. Called by the reaper sweep.
func (m *Messaging) TruncateHistory(ctx context.Context) (int, error) {
	var ageCutoff int64
	if m.cfg.MaxAge > 0 {
		ageCutoff = m.clock.Now().Add(-m.cfg.MaxAge).UnixMilli()
	}
	return m.store.TruncateMessageHistory(ctx, ageCutoff, m.cfg.MaxPerChannel)
}

// SubscriberCount returns the number of live subscribers across all
// channels, for the /metrics endpoint.
func (m *Messaging) SubscriberCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, subs := range m.subscribers {
		count += len(subs)
	}
	return count
}
