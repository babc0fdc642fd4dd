// Package agentmgr implements the agent manager (C5): a registry of live
// child agents, spawn/stop operations, and lookup by id or session id. The
// registry and its session map are shared across all pipelines and
// protected by a single coarse lock held only long enough to
// insert/remove/lookup, never across an await — per spec §5's shared-
// resource discipline.
package agentmgr

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/autopipe/engine/pkg/agentproc"
	"github.com/autopipe/engine/pkg/model"
	"github.com/autopipe/engine/pkg/pipelineerr"
)

const stopGracePeriod = 5 * time.Second

// Registry is the shared, mutex-guarded id → AgentProcess table plus the
// session_id → agent_id map described in spec §3/§4.1.
type Registry struct {
	mu        sync.Mutex
	agents    map[string]*agentproc.AgentProcess
	sessions  map[string]string // session_id -> agent_id
}

// New builds an empty Registry.
func New() *Registry {
	return &Registry{
		agents:   make(map[string]*agentproc.AgentProcess),
		sessions: make(map[string]string),
	}
}

// Spawn resolves the coding-CLI binary, starts a child process, registers it
// under a fresh agent id, and returns the live AgentProcess. Binary
// discovery failure surfaces as pipelineerr.KindNotFound; process-start
// failure surfaces as pipelineerr.KindSpawnError, both per spec §4.1.
func (r *Registry) Spawn(ctx context.Context, pipelineID string, cfg agentproc.SpawnConfig, binaryOverride string) (*agentproc.AgentProcess, error) {
	binPath, err := agentproc.DiscoverBinary(binaryOverride)
	if err != nil {
		return nil, pipelineerr.New(pipelineerr.KindNotFound, pipelineID, pipelineerr.WithCause(err))
	}
	cfg.BinaryPath = binPath

	ap, err := agentproc.Spawn(ctx, cfg)
	if err != nil {
		return nil, pipelineerr.New(pipelineerr.KindSpawnError, pipelineID, pipelineerr.WithCause(err))
	}

	r.mu.Lock()
	r.agents[ap.ID] = ap
	r.mu.Unlock()
	return ap, nil
}

// RecordSession links a session id to an agent id the first time it is
// observed, per spec §4.1's session mapping rule. It is a no-op if the
// session is already mapped.
func (r *Registry) RecordSession(sessionID, agentID string) {
	if sessionID == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.sessions[sessionID]; !exists {
		r.sessions[sessionID] = agentID
	}
}

// Get looks up a live agent by id.
func (r *Registry) Get(agentID string) (*agentproc.AgentProcess, error) {
	r.mu.Lock()
	ap, ok := r.agents[agentID]
	r.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: agent %s", pipelineerr.ErrNotFound, agentID)
	}
	return ap, nil
}

// GetBySession looks up a live agent by its session id.
func (r *Registry) GetBySession(sessionID string) (*agentproc.AgentProcess, error) {
	r.mu.Lock()
	agentID, ok := r.sessions[sessionID]
	r.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: session %s", pipelineerr.ErrNotFound, sessionID)
	}
	return r.Get(agentID)
}

// Stop requests graceful-then-forced termination of the named agent. It is
// idempotent: stopping an already-stopped or unknown agent is a no-op (per
// spec §8's round-trip property).
func (r *Registry) Stop(agentID string) {
	r.mu.Lock()
	ap, ok := r.agents[agentID]
	r.mu.Unlock()
	if !ok {
		return
	}
	ap.Stop(stopGracePeriod)
}

// Reap removes a terminal agent's entry from the registry. pkg/pipeline does
// not call it: a pipeline's stage agents stay registered after the pipeline
// reaches a terminal state.
func (r *Registry) Reap(agentID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.agents, agentID)
}

// Status returns the run status of the named agent, or model.RunStatus("")
// with a not-found error if it is not registered.
func (r *Registry) Status(agentID string) (model.RunStatus, error) {
	ap, err := r.Get(agentID)
	if err != nil {
		return "", err
	}
	return ap.Status(), nil
}

// Len reports the number of currently registered agents, for introspection
// and tests.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.agents)
}
