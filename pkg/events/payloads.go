package events

import "time"

// StageStartedPayload accompanies EventStageStarted.
type StageStartedPayload struct {
	Type       string    `json:"type"`
	PipelineID string    `json:"pipeline_id"`
	Stage      string    `json:"stage"`
	StartedAt  time.Time `json:"started_at"`
}

// StageCompletedPayload accompanies EventStageCompleted.
type StageCompletedPayload struct {
	Type       string    `json:"type"`
	PipelineID string    `json:"pipeline_id"`
	Stage      string    `json:"stage"`
	Status     string    `json:"status"`
	EndedAt    time.Time `json:"ended_at"`
}

// StateChangedPayload accompanies EventStateChanged.
type StateChangedPayload struct {
	Type       string    `json:"type"`
	PipelineID string    `json:"pipeline_id"`
	From       string    `json:"from"`
	To         string    `json:"to"`
	ChangedAt  time.Time `json:"changed_at"`
}

// AgentOutputPayload accompanies EventAgentOutput, carrying a single parsed
// output line from a child agent's stdout/stderr.
type AgentOutputPayload struct {
	Type       string    `json:"type"`
	PipelineID string    `json:"pipeline_id"`
	AgentID    string    `json:"agent_id"`
	EventType  string    `json:"event_type"`
	Content    string    `json:"content"`
	Timestamp  time.Time `json:"timestamp"`
}

// AgentStatusPayload accompanies EventAgentStatus.
type AgentStatusPayload struct {
	Type       string `json:"type"`
	PipelineID string `json:"pipeline_id"`
	AgentID    string `json:"agent_id"`
	Status     string `json:"status"`
}

// AgentTerminalPayload accompanies EventAgentTerminal, fired once when a
// child agent process exits (cleanly, crashed, or stopped).
type AgentTerminalPayload struct {
	Type       string `json:"type"`
	PipelineID string `json:"pipeline_id"`
	AgentID    string `json:"agent_id"`
	Status     string `json:"status"`
	ExitReason string `json:"exit_reason,omitempty"`
}
