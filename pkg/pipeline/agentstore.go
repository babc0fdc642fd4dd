package pipeline

import (
	"fmt"
	"sync"

	"github.com/autopipe/engine/pkg/orchestrator"
)

// agentStore is the pipeline_id → orchestrator.Agent take/restore table
// from spec §5: a stage extracts its agent under lock, drives it without
// the lock held, then restores it. This serializes access per pipeline
// without ever holding the lock across an await, following the same
// reserve-then-register shape as the teacher's SubAgentRunner's
// concurrency guard, applied here to single-owner
// checkout instead of a concurrency cap.
type agentStore struct {
	mu      sync.Mutex
	agents  map[string]*orchestrator.Agent
	taken   map[string]bool
}

func newAgentStore() *agentStore {
	return &agentStore{
		agents: make(map[string]*orchestrator.Agent),
		taken:  make(map[string]bool),
	}
}

// put registers a freshly created agent for pipelineID. Called once, when
// the pipeline starts.
func (s *agentStore) put(pipelineID string, agent *orchestrator.Agent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.agents[pipelineID] = agent
}

// take checks out the agent for exclusive use by the calling stage. It
// returns an error if the agent is unknown or already checked out —
// callers are expected to restore before taking again, so concurrent takes
// on the same pipeline indicate a caller bug.
func (s *agentStore) take(pipelineID string) (*orchestrator.Agent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	agent, ok := s.agents[pipelineID]
	if !ok {
		return nil, fmt.Errorf("pipeline: no orchestrator agent for pipeline %s", pipelineID)
	}
	if s.taken[pipelineID] {
		return nil, fmt.Errorf("pipeline: orchestrator agent for pipeline %s is already checked out", pipelineID)
	}
	s.taken[pipelineID] = true
	return agent, nil
}

// restore returns the agent after the stage has finished driving it.
func (s *agentStore) restore(pipelineID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.taken, pipelineID)
}

// release removes a pipeline's agent entirely, once the pipeline has
// reached a terminal state and no further stages will take it.
func (s *agentStore) release(pipelineID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.agents, pipelineID)
	delete(s.taken, pipelineID)
}
