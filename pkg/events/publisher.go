package events

import (
	"encoding/json"
	"log/slog"
)

// Publisher fans pipeline and agent lifecycle payloads out to the
// ConnectionManager. Every publish is best-effort and fire-and-forget: a
// marshal failure is logged and swallowed rather than propagated, since an
// observability failure must never fail the pipeline step that triggered
// it (per the drop-tolerant delivery contract).
type Publisher struct {
	mgr *ConnectionManager
}

// NewPublisher builds a Publisher over the given ConnectionManager.
func NewPublisher(mgr *ConnectionManager) *Publisher {
	return &Publisher{mgr: mgr}
}

// PublishStageStarted broadcasts EventStageStarted on the pipeline's channel.
func (p *Publisher) PublishStageStarted(pipelineID string, payload StageStartedPayload) {
	payload.Type = EventStageStarted
	p.broadcast(pipelineID, payload)
}

// PublishStageCompleted broadcasts EventStageCompleted on the pipeline's channel.
func (p *Publisher) PublishStageCompleted(pipelineID string, payload StageCompletedPayload) {
	payload.Type = EventStageCompleted
	p.broadcast(pipelineID, payload)
}

// PublishStateChanged broadcasts EventStateChanged on both the pipeline's
// channel and the global dashboard channel.
func (p *Publisher) PublishStateChanged(pipelineID string, payload StateChangedPayload) {
	payload.Type = EventStateChanged
	p.broadcast(pipelineID, payload)
	p.broadcastRaw(GlobalChannel, payload)
}

// PublishAgentOutput broadcasts EventAgentOutput on the pipeline's channel.
func (p *Publisher) PublishAgentOutput(pipelineID string, payload AgentOutputPayload) {
	payload.Type = EventAgentOutput
	p.broadcast(pipelineID, payload)
}

// PublishAgentStatus broadcasts EventAgentStatus on the pipeline's channel.
func (p *Publisher) PublishAgentStatus(pipelineID string, payload AgentStatusPayload) {
	payload.Type = EventAgentStatus
	p.broadcast(pipelineID, payload)
}

// PublishAgentTerminal broadcasts EventAgentTerminal on the pipeline's channel.
func (p *Publisher) PublishAgentTerminal(pipelineID string, payload AgentTerminalPayload) {
	payload.Type = EventAgentTerminal
	p.broadcast(pipelineID, payload)
}

func (p *Publisher) broadcast(pipelineID string, payload any) {
	p.broadcastRaw(PipelineChannel(pipelineID), payload)
}

func (p *Publisher) broadcastRaw(channel string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Warn("failed to marshal event payload", "channel", channel, "error", err)
		return
	}
	p.mgr.Broadcast(channel, data)
}
