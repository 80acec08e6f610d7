// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package reaper implements the periodic sweep that moves entities
// through their lifecycles and reclaims resources from dead
// processes and agents.
package reaper

import (
	"context"
	"log/slog"
	"time"

	"github.com/curiositech/port-daddy/internal/activity"
	"github.com/curiositech/port-daddy/internal/agents"
	"github.com/curiositech/port-daddy/internal/locks"
	"github.com/curiositech/port-daddy/internal/messaging"
	"github.com/curiositech/port-daddy/internal/metrics"
	"github.com/curiositech/port-daddy/internal/ports"
	"github.com/curiositech/port-daddy/internal/ratelimit"
	"github.com/curiositech/port-daddy/internal/salvage"
	"github.com/curiositech/port-daddy/lib/clock"
	"github.com/curiositech/port-daddy/lib/cron"
)

// Config configures the sweep schedule. If Cron is non-empty it takes
// precedence over Interval.
type Config struct {
	Interval time.Duration
	Cron     string
}

// Deps are the components the reaper sweeps.
type Deps struct {
	Ports     *ports.Ports
	Locks     *locks.Locks
	Agents    *agents.Agents
	Messaging *messaging.Messaging
	Salvage   *salvage.Salvage
	Activity  *activity.Activity
	RateLimit *ratelimit.Limiter
}

// Reaper runs the periodic sweep.
type Reaper struct {
	deps     Deps
	clock    clock.Clock
	logger   *slog.Logger
	interval time.Duration
	schedule *cron.Schedule

	previouslyDead map[string]bool
}

// New constructs a Reaper. Invalid cron expressions are reported at
// construction time.
func New(deps Deps, clk clock.Clock, cfg Config, logger *slog.Logger) (*Reaper, error) {
	r := &Reaper{
		deps:           deps,
		clock:          clk,
		logger:         logger,
		interval:       cfg.Interval,
		previouslyDead: make(map[string]bool),
	}

	if cfg.Cron != "" {
		schedule, err := cron.Parse(cfg.Cron)
		if err != nil {
			return nil, err
		}
		r.schedule = &schedule
	}
	if r.schedule == nil && r.interval <= 0 {
		r.interval = 5 * time.Minute
	}

	return r, nil
}

// Run blocks, executing Sweep on the configured cadence, until ctx is
// canceled.
func (r *Reaper) Run(ctx context.Context) {
	if r.schedule != nil {
		r.runCron(ctx)
		return
	}
	r.runInterval(ctx)
}

func (r *Reaper) runInterval(ctx context.Context) {
	ticker := r.clock.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep(ctx)
		}
	}
}

func (r *Reaper) runCron(ctx context.Context) {
	for {
		next, err := r.schedule.Next(r.clock.Now())
		if err != nil {
			if r.logger != nil {
				r.logger.Error("reaper: computing next cron fire time", "error", err)
			}
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-r.clock.After(next.Sub(r.clock.Now())):
			r.Sweep(ctx)
		}
	}
}

// Sweep runs one pass of the reaper's steps, each its own independent
// unit of work so one step's failure does not block the rest.
func (r *Reaper) Sweep(ctx context.Context) {
	start := r.clock.Now()
	defer func() { metrics.ReaperSweepDuration.Observe(r.clock.Now().Sub(start).Seconds()) }()

	if released, err := r.deps.Ports.ReleaseExpired(ctx); err != nil {
		r.logError("releasing stale-pid services", err)
	} else if released > 0 {
		r.logInfo("released stale-pid services", "count", released)
	}

	if removed, err := r.deps.Locks.SweepExpired(ctx); err != nil {
		r.logError("sweeping expired locks", err)
	} else if removed > 0 {
		r.logInfo("swept expired locks", "count", removed)
	}

	r.sweepAgents(ctx)

	if removed, err := r.deps.Messaging.TruncateHistory(ctx); err != nil {
		r.logError("truncating message history", err)
	} else if removed > 0 {
		r.logInfo("truncated message history", "count", removed)
	}

	if removed, err := r.deps.Activity.Truncate(ctx); err != nil {
		r.logError("truncating activity log", err)
	} else if removed > 0 {
		r.logInfo("truncated activity log", "count", removed)
	}

	if r.deps.RateLimit != nil {
		if evicted := r.deps.RateLimit.EvictIdle(); evicted > 0 {
			r.logInfo("evicted idle rate-limit buckets", "count", evicted)
		}
	}
}

// sweepAgents re-derives agent states and, on each active→dead
// transition with open sessions, creates a resurrection entry.
func (r *Reaper) sweepAgents(ctx context.Context) {
	newlyDead, err := r.deps.Agents.DeadWithTransition(ctx, r.previouslyDead)
	if err != nil {
		r.logError("deriving agent states", err)
		return
	}

	for _, agent := range newlyDead {
		r.previouslyDead[agent.ID] = true

		var identity *string
		if agent.IdentityProject != nil {
			id := *agent.IdentityProject
			if agent.IdentityStack != nil {
				id += ":" + *agent.IdentityStack
				if agent.IdentityContext != nil {
					id += ":" + *agent.IdentityContext
				}
			}
			identity = &id
		}

		entry, err := r.deps.Salvage.CreateEntry(ctx, agent.ID, identity)
		if err != nil {
			r.logError("creating resurrection entry", err)
			continue
		}
		if entry != nil {
			metrics.ResurrectionEntriesCreated.Inc()
			r.deps.Activity.Record(ctx, "agent", "dead", &agent.ID, map[string]any{"resurrection_entry_id": entry.ID}, nil)
		} else {
			r.deps.Activity.Record(ctx, "agent", "dead", &agent.ID, nil, nil)
		}
	}

	// Agents that recovered (heartbeated again) or were unregistered
	// stop being tracked as previously-dead so a future death is
	// detected again. A row merely existing isn't enough — Register
	// and Heartbeat upsert the same row, so a recovered agent keeps
	// its id; only its derived state changes.
	all, err := r.deps.Agents.List(ctx, "", "")
	if err != nil {
		r.logError("listing agents for dead-set pruning", err)
		return
	}
	stillDead := make(map[string]bool, len(all))
	for _, entry := range all {
		if entry.State == agents.Dead {
			stillDead[entry.Agent.ID] = true
		}
	}
	for id := range r.previouslyDead {
		if !stillDead[id] {
			delete(r.previouslyDead, id)
		}
	}
}

func (r *Reaper) logError(msg string, err error) {
	if r.logger != nil {
		r.logger.Error("reaper: "+msg, "error", err)
	}
}

func (r *Reaper) logInfo(msg string, args ...any) {
	if r.logger != nil {
		r.logger.Info("reaper: "+msg, args...)
	}
}
