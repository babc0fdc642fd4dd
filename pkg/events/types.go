// Package events provides best-effort, drop-tolerant delivery of pipeline
// and agent lifecycle events to attached WebSocket observers. Unlike the
// teacher's PostgreSQL NOTIFY/LISTEN design, events here are never
// persisted: a disconnected observer simply misses events published while
// it was away, since these events are advisory observability and not part
// of the durability contract (see DESIGN.md's pkg/events entry).
package events

// Event types, matching the six named events in the pipeline/agent
// lifecycle.
const (
	EventStageStarted   = "pipeline:stage:started"
	EventStageCompleted = "pipeline:stage:completed"
	EventStateChanged   = "pipeline:state:changed"
	EventAgentOutput    = "agent:output"
	EventAgentStatus    = "agent:status"
	EventAgentTerminal  = "agent:terminal"
)

// PipelineChannel returns the channel name carrying every event for one
// pipeline run. Format: "pipeline:{pipeline_id}".
func PipelineChannel(pipelineID string) string {
	return "pipeline:" + pipelineID
}

// GlobalChannel is the channel carrying a copy of every pipeline's
// state-change events, for a dashboard-style observer that watches all
// runs at once.
const GlobalChannel = "pipelines"

// ClientMessage is the JSON structure for client → server WebSocket
// messages.
type ClientMessage struct {
	Action  string `json:"action"`            // "subscribe", "unsubscribe", "ping"
	Channel string `json:"channel,omitempty"` // e.g. "pipeline:abc-123"
}
