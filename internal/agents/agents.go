// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package agents implements the agent registry: registration,
// heartbeats, and the derived active/stale/dead liveness state that
// drives salvage handoff.
package agents

import (
	"context"
	"log/slog"
	"time"

	"github.com/curiositech/port-daddy/internal/kernelerr"
	"github.com/curiositech/port-daddy/internal/store"
	"github.com/curiositech/port-daddy/lib/clock"
)

// State is an agent's derived liveness state.
type State string

const (
	Active State = "active"
	Stale  State = "stale"
	Dead   State = "dead"
)

// Config configures liveness thresholds.
type Config struct {
	StaleAfter time.Duration
	DeadAfter  time.Duration
}

// Agents manages agent registration and derives liveness state.
type Agents struct {
	store  *store.Store
	clock  clock.Clock
	logger *slog.Logger
	cfg    Config
}

// New constructs an Agents component.
func New(st *store.Store, clk clock.Clock, cfg Config, logger *slog.Logger) *Agents {
	return &Agents{store: st, clock: clk, logger: logger, cfg: cfg}
}

// StateOf derives an agent's liveness state from the heartbeat gap.
func (a *Agents) StateOf(agent store.Agent) State {
	gap := a.clock.Now().Sub(time.UnixMilli(agent.LastHeartbeat))
	switch {
	case gap < a.cfg.StaleAfter:
		return Active
	case gap < a.cfg.DeadAfter:
		return Stale
	default:
		return Dead
	}
}

// RegisterRequest carries the optional fields accepted by Register.
type RegisterRequest struct {
	Type            string
	Purpose         *string
	IdentityProject *string
	IdentityStack   *string
	IdentityContext *string
	WorktreeID      *string
}

// RegisterResult is the outcome of Register.
type RegisterResult struct {
	IsNew bool
	// DeadAgentsInProject counts dead agents sharing IdentityProject,
	// so callers can proactively offer salvage.
	DeadAgentsInProject int
}

// Register upserts an agent row, refreshing lastHeartbeat and
// preserving the first registeredAt.
func (a *Agents) Register(ctx context.Context, id string, req RegisterRequest) (*RegisterResult, error) {
	if id == "" {
		return nil, kernelerr.New(kernelerr.Validation, "agent id is required")
	}
	now := a.clock.Now().UnixMilli()

	isNew, err := a.store.UpsertAgent(ctx, store.Agent{
		ID:              id,
		Type:            req.Type,
		Purpose:         req.Purpose,
		IdentityProject: req.IdentityProject,
		IdentityStack:   req.IdentityStack,
		IdentityContext: req.IdentityContext,
		WorktreeID:      req.WorktreeID,
		RegisteredAt:    now,
		LastHeartbeat:   now,
	})
	if err != nil {
		return nil, err
	}

	result := &RegisterResult{IsNew: isNew}
	if req.IdentityProject != nil {
		count, err := a.countDeadInProject(ctx, *req.IdentityProject)
		if err != nil {
			return nil, err
		}
		result.DeadAgentsInProject = count
	}
	return result, nil
}

func (a *Agents) countDeadInProject(ctx context.Context, project string) (int, error) {
	all, err := a.store.ListAgents(ctx)
	if err != nil {
		return 0, err
	}
	count := 0
	for _, agent := range all {
		if agent.IdentityProject == nil || *agent.IdentityProject != project {
			continue
		}
		if a.StateOf(agent) == Dead {
			count++
		}
	}
	return count, nil
}

// Heartbeat refreshes lastHeartbeat for id. Returns kernelerr.NotFound
// if id is unknown.
func (a *Agents) Heartbeat(ctx context.Context, id string) error {
	now := a.clock.Now().UnixMilli()
	found, err := a.store.TouchAgentHeartbeat(ctx, id, now)
	if err != nil {
		return err
	}
	if !found {
		return kernelerr.New(kernelerr.NotFound, "unknown agent").WithDetail("id", id)
	}
	return nil
}

// Unregister removes the agent row. Sessions it created are not
// cascaded.
func (a *Agents) Unregister(ctx context.Context, id string) (bool, error) {
	return a.store.DeleteAgent(ctx, id)
}

// Entry pairs a stored agent row with its derived state.
type Entry struct {
	store.Agent
	State State
}

// Get returns the agent and its derived state, or nil.
func (a *Agents) Get(ctx context.Context, id string) (*Entry, error) {
	agent, err := a.store.GetAgent(ctx, id)
	if err != nil {
		return nil, err
	}
	if agent == nil {
		return nil, nil
	}
	return &Entry{Agent: *agent, State: a.StateOf(*agent)}, nil
}

// List returns every agent with its derived state, optionally
// filtered by a project prefix and/or state.
func (a *Agents) List(ctx context.Context, projectPrefix string, stateFilter State) ([]Entry, error) {
	all, err := a.store.ListAgents(ctx)
	if err != nil {
		return nil, err
	}

	var results []Entry
	for _, agent := range all {
		if projectPrefix != "" && (agent.IdentityProject == nil || *agent.IdentityProject != projectPrefix) {
			continue
		}
		state := a.StateOf(agent)
		if stateFilter != "" && state != stateFilter {
			continue
		}
		results = append(results, Entry{Agent: agent, State: state})
	}
	return results, nil
}

// DeadWithTransition returns the agents that are currently Dead and
// whose ids are not in previouslyDead — used by the reaper to detect
// active→dead transitions. previouslyDead is the set of agent ids
// already known dead as of the previous sweep.
func (a *Agents) DeadWithTransition(ctx context.Context, previouslyDead map[string]bool) ([]store.Agent, error) {
	all, err := a.store.ListAgents(ctx)
	if err != nil {
		return nil, err
	}
	var newlyDead []store.Agent
	for _, agent := range all {
		if a.StateOf(agent) != Dead {
			continue
		}
		if previouslyDead[agent.ID] {
			continue
		}
		newlyDead = append(newlyDead, agent)
	}
	return newlyDead, nil
}
