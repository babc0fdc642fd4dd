package pipeline

import (
	"context"
	"sync"
	"testing"

	"github.com/autopipe/engine/pkg/agentproc"
	"github.com/autopipe/engine/pkg/events"
	"github.com/autopipe/engine/pkg/llm"
	"github.com/autopipe/engine/pkg/model"
	"github.com/autopipe/engine/pkg/orchestrator"
	"github.com/autopipe/engine/pkg/tools"
)

// scriptedClient replays a fixed sequence of assistant replies, one per
// Generate call, exactly like orchestrator's own loop_test.go fixture —
// duplicated locally since it is an unexported test helper there.
type scriptedClient struct {
	mu      sync.Mutex
	replies []llm.ConversationMessage
	calls   int
}

func (s *scriptedClient) Name() string  { return "scripted" }
func (s *scriptedClient) Model() string { return "scripted-model" }

func (s *scriptedClient) Generate(ctx context.Context, in *llm.GenerateInput) (<-chan llm.Chunk, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch := make(chan llm.Chunk)
	if s.calls >= len(s.replies) {
		close(ch)
		return ch, nil
	}
	reply := s.replies[s.calls]
	s.calls++
	go func() {
		defer close(ch)
		if reply.Content != "" {
			ch <- llm.TextChunk{Content: reply.Content}
		}
		for _, call := range reply.ToolCalls {
			ch <- llm.ToolCallChunk{Call: call}
		}
		ch <- llm.StopChunk{Reason: "end_turn"}
	}()
	return ch, nil
}

func toolCallMsg(name string, args string) llm.ConversationMessage {
	return llm.ConversationMessage{
		Role: llm.RoleAssistant,
		ToolCalls: []llm.ToolCall{
			{ID: name + "-1", Name: name, Arguments: []byte(args)},
		},
	}
}

// fakeAgents is a minimal in-memory AgentRegistry: every Spawn immediately
// yields a zero-value *agentproc.AgentProcess (no real child process, no
// captured output — summarize() falls back to its no-output placeholder,
// which verificationPassed treats as a pass) and reports it Completed on
// the very first Status poll.
type fakeAgents struct {
	spawned []string
}

func (f *fakeAgents) Spawn(ctx context.Context, pipelineID string, cfg agentproc.SpawnConfig, binaryOverride string) (*agentproc.AgentProcess, error) {
	f.spawned = append(f.spawned, pipelineID)
	return &agentproc.AgentProcess{ID: "child-" + pipelineID, PipelineID: pipelineID, WorkingDir: cfg.WorkingDir}, nil
}

func (f *fakeAgents) Stop(agentID string) {}

func (f *fakeAgents) Status(agentID string) (model.RunStatus, error) {
	return model.RunCompleted, nil
}

type fakeStore struct {
	mu        sync.Mutex
	pipelines []*model.Pipeline
}

func (f *fakeStore) SavePipeline(ctx context.Context, p *model.Pipeline) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pipelines = append(f.pipelines, p)
	return nil
}
func (f *fakeStore) SaveRun(ctx context.Context, r *model.RunRecord) error { return nil }
func (f *fakeStore) AppendOutput(ctx context.Context, agentID string, e model.AgentOutputEvent) error {
	return nil
}

type fakeSink struct{}

func (fakeSink) PublishStageStarted(string, events.StageStartedPayload)     {}
func (fakeSink) PublishStageCompleted(string, events.StageCompletedPayload) {}
func (fakeSink) PublishStateChanged(string, events.StateChangedPayload)     {}
func (fakeSink) PublishAgentOutput(string, events.AgentOutputPayload)       {}
func (fakeSink) PublishAgentTerminal(string, events.AgentTerminalPayload)   {}

func newTestDriver(client llm.Client) (*Driver, *fakeAgents, *fakeStore) {
	agents := &fakeAgents{}
	store := &fakeStore{}
	orch := orchestrator.NewDriver(client, tools.NewRegistry())
	return NewDriver(agents, store, fakeSink{}, orch, "/bin/true"), agents, store
}

// TestRunPipelineHappyPathReachesCompleted drives a pipeline through every
// stage on the first attempt: start_planning -> approve_plan ->
// start_execution -> start_verification -> complete, matching the
// testable scenario where every stage succeeds without a single replan or
// iterate loop.
func TestRunPipelineHappyPathReachesCompleted(t *testing.T) {
	client := &scriptedClient{replies: []llm.ConversationMessage{
		toolCallMsg("start_planning", `{}`),
		toolCallMsg("approve_plan", `{}`),
		toolCallMsg("start_execution", `{}`),
		toolCallMsg("start_verification", `{}`),
		toolCallMsg("complete", `{}`),
	}}
	driver, agents, store := newTestDriver(client)

	p := model.NewPipeline("pipe-1", "add a feature", "/tmp/work", 10)
	if err := driver.RunPipeline(context.Background(), p); err != nil {
		t.Fatalf("RunPipeline: %v", err)
	}

	if p.CurrentState != "Completed" {
		t.Errorf("CurrentState = %s, want Completed", p.CurrentState)
	}
	for _, s := range p.Stages {
		if s.Status != model.StageCompleted {
			t.Errorf("stage %s status = %s, want Completed", s.Name, s.Status)
		}
	}
	if len(agents.spawned) != 3 {
		t.Errorf("spawned %d child agents, want 3 (one per stage)", len(agents.spawned))
	}
	if len(store.pipelines) == 0 {
		t.Error("expected at least one SavePipeline call")
	}
}

// TestRunPipelineReplanDuringPlanningLoopsBackToPlanning exercises the
// approve_plan/replan sub-loop inside the planning stage: the orchestrator
// rejects the first draft (replan from PlanReady lands in
// PlanRevisionRequired, the only legal single-hop target from there), a
// second replan call is what actually returns the agent to Planning, the
// planning child re-runs, and only then is the plan approved.
func TestRunPipelineReplanDuringPlanningLoopsBackToPlanning(t *testing.T) {
	client := &scriptedClient{replies: []llm.ConversationMessage{
		toolCallMsg("start_planning", `{}`),
		toolCallMsg("replan", `{"reason":"missing an edge case"}`),
		toolCallMsg("replan", `{"reason":"still missing it"}`),
		toolCallMsg("approve_plan", `{}`),
		toolCallMsg("start_execution", `{}`),
		toolCallMsg("start_verification", `{}`),
		toolCallMsg("complete", `{}`),
	}}
	driver, agents, _ := newTestDriver(client)

	p := model.NewPipeline("pipe-2", "add a feature", "/tmp/work", 10)
	if err := driver.RunPipeline(context.Background(), p); err != nil {
		t.Fatalf("RunPipeline: %v", err)
	}

	if p.CurrentState != "Completed" {
		t.Errorf("CurrentState = %s, want Completed", p.CurrentState)
	}
	// PlanningReplans is tracked on the orchestrator agent, not copied back
	// onto Pipeline by this driver; the spawn count is the observable proxy
	// that the planning child ran twice (replan, then a second draft).
	if len(agents.spawned) != 4 {
		t.Errorf("spawned %d child agents, want 4 (planning x2, building, verifying)", len(agents.spawned))
	}
}

func TestVerificationPassedDetectsFailureMarkers(t *testing.T) {
	cases := []struct {
		summary string
		want    bool
	}{
		{"all tests passed, build succeeded", true},
		{"Verification FAILED: 2 tests did not pass", false},
		{"tests failed: TestFoo", false},
		{"build failed with exit code 1", false},
		{"(child agent produced no output)", true},
	}
	for _, c := range cases {
		if got := verificationPassed(c.summary); got != c.want {
			t.Errorf("verificationPassed(%q) = %v, want %v", c.summary, got, c.want)
		}
	}
}
