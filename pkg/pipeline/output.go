package pipeline

import (
	"strings"

	"github.com/autopipe/engine/pkg/agentproc"
	"github.com/autopipe/engine/pkg/model"
)

// summarize renders an agent's buffered output events into the plain text
// attached to the orchestrator agent's conversation as a user message,
// preferring the child's final "result" message (the coding CLI's own
// summary of what it did) and falling back to concatenated assistant text
// when no result event was ever emitted (e.g. the child crashed mid-run).
func summarize(ap *agentproc.AgentProcess) string {
	events := ap.OutputBuffer()

	for i := len(events) - 1; i >= 0; i-- {
		if events[i].Type == model.OutputResult {
			return events[i].Content
		}
	}

	var sb strings.Builder
	for _, e := range events {
		if e.Type == model.OutputAssistant {
			sb.WriteString(e.Content)
			sb.WriteString("\n")
		}
	}
	if sb.Len() > 0 {
		return strings.TrimSpace(sb.String())
	}
	return "(child agent produced no output)"
}
