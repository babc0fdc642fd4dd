package agentproc

import (
	"testing"

	"github.com/autopipe/engine/pkg/model"
)

func newTestProcess() *AgentProcess {
	return &AgentProcess{
		ID:   "test-agent",
		done: make(chan struct{}),
		stats: Statistics{PerModelUsage: map[string]*model.ModelUsage{}},
	}
}

func TestClassifyByTypeField(t *testing.T) {
	ap := newTestProcess()
	cases := map[string]model.OutputType{
		`{"type":"assistant"}`:    model.OutputAssistant,
		`{"type":"user"}`:         model.OutputUser,
		`{"type":"system"}`:       model.OutputSystem,
		`{"type":"result"}`:       model.OutputResult,
		`{"type":"stream_event"}`: model.OutputStreamEvt,
		`{"type":"bogus"}`:        model.OutputUnknown,
	}
	for line, want := range cases {
		got := ap.classify(line, "")
		if got.Type != want {
			t.Errorf("classify(%q) = %q, want %q", line, got.Type, want)
		}
	}
}

func TestClassifyByResultFieldWhenTypeAbsent(t *testing.T) {
	ap := newTestProcess()
	got := ap.classify(`{"result":"ok"}`, "")
	if got.Type != model.OutputResult {
		t.Errorf("got %q, want result", got.Type)
	}
}

func TestClassifyUnparseableLineIsPlain(t *testing.T) {
	ap := newTestProcess()
	got := ap.classify("not json at all", "")
	if got.Type != model.OutputPlain {
		t.Errorf("got %q, want plain", got.Type)
	}
}

func TestClassifyExtractsSessionMetadata(t *testing.T) {
	ap := newTestProcess()
	got := ap.classify(`{"type":"assistant","session_id":"s1","uuid":"u1","parent_tool_use_id":"p1","subtype":"init"}`, "")
	if got.SessionID != "s1" || got.UUID != "u1" || got.ParentToolUseID != "p1" || got.Subtype != "init" {
		t.Errorf("metadata not extracted: %+v", got)
	}
	if ap.SessionID() != "s1" {
		t.Errorf("session map not updated, got %q", ap.SessionID())
	}
}

func TestBufferEvictsOldestBeyondCap(t *testing.T) {
	ap := newTestProcess()
	for i := 0; i < outputBufferCap+10; i++ {
		ap.bufferEvent(model.AgentOutputEvent{Content: "x"})
	}
	buf := ap.OutputBuffer()
	if len(buf) != outputBufferCap {
		t.Fatalf("buffer length = %d, want %d", len(buf), outputBufferCap)
	}
}

func TestApplyStatisticsCountsToolUseAndUsage(t *testing.T) {
	ap := newTestProcess()
	assistantWithTool := ap.classify(`{"type":"assistant","message":{"content":[{"type":"tool_use","name":"read"},{"type":"text","text":"hi"}]}}`, "")
	ap.applyStatistics(assistantWithTool)

	result := ap.classify(`{"type":"result","model":"claude-x","usage":{"total_tokens":42},"total_cost_usd":0.01}`, "")
	ap.applyStatistics(result)

	stats := ap.Stats()
	if stats.TotalToolCalls != 1 {
		t.Errorf("TotalToolCalls = %d, want 1", stats.TotalToolCalls)
	}
	if stats.TotalPrompts != 1 {
		t.Errorf("TotalPrompts = %d, want 1", stats.TotalPrompts)
	}
	if stats.TotalTokensUsed != 42 {
		t.Errorf("TotalTokensUsed = %d, want 42", stats.TotalTokensUsed)
	}
	if mu, ok := stats.PerModelUsage["claude-x"]; !ok || mu.InputTokens != 42 {
		t.Errorf("per-model usage not recorded: %+v", stats.PerModelUsage)
	}
}
