package orchestrator

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/autopipe/engine/pkg/llm"
	"github.com/autopipe/engine/pkg/state"
	"github.com/autopipe/engine/pkg/tools"
)

// scriptedClient replays a fixed sequence of replies, one per Generate call,
// ignoring the request content — enough to drive the loop deterministically
// without a real LLM.
type scriptedClient struct {
	replies []llm.ConversationMessage
	calls   int
}

func (c *scriptedClient) Name() string  { return "scripted" }
func (c *scriptedClient) Model() string { return "scripted-model" }

func (c *scriptedClient) Generate(ctx context.Context, in *llm.GenerateInput) (<-chan llm.Chunk, error) {
	if c.calls >= len(c.replies) {
		ch := make(chan llm.Chunk)
		close(ch)
		return ch, nil
	}
	reply := c.replies[c.calls]
	c.calls++

	ch := make(chan llm.Chunk, len(reply.ToolCalls)+2)
	if reply.Content != "" {
		ch <- llm.TextChunk{Content: reply.Content}
	}
	for _, tc := range reply.ToolCalls {
		ch <- llm.ToolCallChunk{Call: tc}
	}
	close(ch)
	return ch, nil
}

func toolCall(name string, args map[string]any) llm.ToolCall {
	raw, _ := json.Marshal(args)
	return llm.ToolCall{ID: "call-" + name, Name: name, Arguments: raw}
}

func TestRunUntilActionStopsOnStateChangingTool(t *testing.T) {
	agent := New("p1", "/tmp/work", "system prompt", "do the thing")
	client := &scriptedClient{
		replies: []llm.ConversationMessage{
			{Role: llm.RoleAssistant, ToolCalls: []llm.ToolCall{toolCall(tools.NameStartPlanning, map[string]any{})}},
		},
	}
	driver := NewDriver(client, tools.NewRegistry())

	action, err := driver.RunUntilAction(context.Background(), agent)
	if err != nil {
		t.Fatal(err)
	}
	if action.Name != tools.NameStartPlanning {
		t.Errorf("action.Name = %q, want %q", action.Name, tools.NameStartPlanning)
	}
	if agent.State() != state.Planning {
		t.Errorf("state = %s, want Planning", agent.State())
	}
	if agent.TakePendingSpawn() != "planning" {
		t.Error("expected RequestSpawn(\"planning\") to have been recorded")
	}
}

func TestRunUntilActionIgnoresInformationalToolsAndLoops(t *testing.T) {
	agent := New("p1", "/tmp/work", "system prompt", "do the thing")
	client := &scriptedClient{
		replies: []llm.ConversationMessage{
			{Role: llm.RoleAssistant, ToolCalls: []llm.ToolCall{
				toolCall(tools.NameCreateSkill, map[string]any{"name": "a", "content": "b"}),
			}},
			{Role: llm.RoleAssistant, ToolCalls: []llm.ToolCall{toolCall(tools.NameStartPlanning, map[string]any{})}},
		},
	}
	driver := NewDriver(client, tools.NewRegistry())

	action, err := driver.RunUntilAction(context.Background(), agent)
	if err != nil {
		t.Fatal(err)
	}
	if action.Name != tools.NameStartPlanning {
		t.Errorf("action.Name = %q, want %q", action.Name, tools.NameStartPlanning)
	}
	if len(agent.GeneratedSkills()) != 1 || agent.GeneratedSkills()[0] != "a" {
		t.Error("expected the informational create_skill call to have been applied before stopping")
	}
}

func TestRunUntilActionCapturesReplanReason(t *testing.T) {
	agent := New("p1", "/tmp/work", "system prompt", "do the thing")
	agent.SetState(state.VerificationFailed)
	client := &scriptedClient{
		replies: []llm.ConversationMessage{
			{Role: llm.RoleAssistant, ToolCalls: []llm.ToolCall{
				toolCall(tools.NameReplan, map[string]any{"reason": "missed an edge case"}),
			}},
		},
	}
	driver := NewDriver(client, tools.NewRegistry())

	action, err := driver.RunUntilAction(context.Background(), agent)
	if err != nil {
		t.Fatal(err)
	}
	if action.Name != tools.NameReplan || action.Reason != "missed an edge case" {
		t.Errorf("action = %+v, want {replan, missed an edge case}", action)
	}
}

func TestRunUntilActionExhaustsTurnCapWithNoProgress(t *testing.T) {
	agent := New("p1", "/tmp/work", "system prompt", "do the thing")
	client := &scriptedClient{} // no scripted replies: every Generate returns no tool calls
	driver := NewDriver(client, tools.NewRegistry())
	driver.MaxTurns = 3

	_, err := driver.RunUntilAction(context.Background(), agent)
	if err == nil {
		t.Fatal("expected a loop-exhausted error")
	}
}
