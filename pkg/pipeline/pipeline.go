// Package pipeline implements the pipeline loop (C10) and its step handlers
// (C11): the top-level driver that sequences a Pipeline through planning,
// building, and verifying, spawning one child agent per stage and branching
// on the orchestrator agent's verification decision.
package pipeline

import (
	"context"
	"time"

	"github.com/autopipe/engine/pkg/agentproc"
	"github.com/autopipe/engine/pkg/events"
	"github.com/autopipe/engine/pkg/model"
)

// completionPollInterval is the fixed child-agent completion poll cadence
// from spec §5: there is no per-stage wall-clock timeout beyond the
// iteration cap, only this cooperative poll.
const completionPollInterval = 2 * time.Second

// verificationTimeout is the deadline applied to the verifying stage's
// post-verification decision call to run_until_action (covering every LLM
// turn of that call), per spec §5.
const verificationTimeout = 120 * time.Second

// Store is the subset of pkg/store.Client the pipeline loop needs: pipeline
// and run persistence. A narrow interface here keeps this package testable
// against a fake without a real Postgres instance.
type Store interface {
	SavePipeline(ctx context.Context, p *model.Pipeline) error
	SaveRun(ctx context.Context, r *model.RunRecord) error
	AppendOutput(ctx context.Context, agentID string, e model.AgentOutputEvent) error
}

// AgentRegistry is the subset of pkg/agentmgr.Registry the pipeline loop
// needs to spawn and supervise stage child agents.
type AgentRegistry interface {
	Spawn(ctx context.Context, pipelineID string, cfg agentproc.SpawnConfig, binaryOverride string) (*agentproc.AgentProcess, error)
	Stop(agentID string)
	Status(agentID string) (model.RunStatus, error)
}

// EventSink is the subset of pkg/events.Publisher the pipeline loop
// publishes to.
type EventSink interface {
	PublishStageStarted(pipelineID string, payload events.StageStartedPayload)
	PublishStageCompleted(pipelineID string, payload events.StageCompletedPayload)
	PublishStateChanged(pipelineID string, payload events.StateChangedPayload)
	PublishAgentOutput(pipelineID string, payload events.AgentOutputPayload)
	PublishAgentTerminal(pipelineID string, payload events.AgentTerminalPayload)
}
