package tools

import (
	"encoding/json"
	"testing"

	"github.com/autopipe/engine/pkg/llm"
	"github.com/autopipe/engine/pkg/state"
)

type fakeTarget struct {
	state                 state.PipelineState
	plan                  string
	implementationSummary string
	skills                []string
	subagents             []string
	claudeMD              string
	planningReplans       int
	spawnRequests         []string
	files                 map[string]string
}

func newFakeTarget(s state.PipelineState) *fakeTarget {
	return &fakeTarget{state: s, files: map[string]string{}}
}

func (f *fakeTarget) State() state.PipelineState         { return f.state }
func (f *fakeTarget) SetState(next state.PipelineState)  { f.state = next }
func (f *fakeTarget) Plan() string                       { return f.plan }
func (f *fakeTarget) SetPlan(text string)                { f.plan = text }
func (f *fakeTarget) ImplementationSummary() string       { return f.implementationSummary }
func (f *fakeTarget) SetImplementationSummary(text string) { f.implementationSummary = text }
func (f *fakeTarget) GeneratedSkills() []string           { return f.skills }
func (f *fakeTarget) RecordGeneratedSkill(name string)    { f.skills = append(f.skills, name) }
func (f *fakeTarget) RecordSubagent(name string)          { f.subagents = append(f.subagents, name) }
func (f *fakeTarget) RecordClaudeMD(content string)       { f.claudeMD = content }
func (f *fakeTarget) IncrementPlanningReplans()           { f.planningReplans++ }
func (f *fakeTarget) RequestSpawn(stage string)           { f.spawnRequests = append(f.spawnRequests, stage) }
func (f *fakeTarget) ReadFile(path string) (string, error) { return f.files[path], nil }

func call(name string, args any) llm.ToolCall {
	raw, _ := json.Marshal(args)
	return llm.ToolCall{ID: "c1", Name: name, Arguments: raw}
}

func TestForStateReturnsOnlyPermittedTools(t *testing.T) {
	r := NewRegistry()
	defs := r.ForState(state.ReadyForExecution)
	if len(defs) != 1 || defs[0].Name != NameStartExecution {
		t.Fatalf("got %+v, want only start_execution", defs)
	}
}

func TestForStateTerminalIsEmpty(t *testing.T) {
	r := NewRegistry()
	if len(r.ForState(state.Completed)) != 0 {
		t.Error("expected no tools permitted in a terminal state")
	}
}

func TestDispatchRejectsToolNotPermittedInCurrentState(t *testing.T) {
	r := NewRegistry()
	target := newFakeTarget(state.ReceivedTask)
	result, err := r.Dispatch(target, call(NameComplete, map[string]any{}))
	if err != nil {
		t.Fatal(err)
	}
	if !result.IsError {
		t.Error("expected IsError for a tool outside its permitted state")
	}
}

func TestDispatchRejectsBadArguments(t *testing.T) {
	r := NewRegistry()
	target := newFakeTarget(state.ReceivedTask)
	badCall := llm.ToolCall{ID: "c1", Name: NameCreateSkill, Arguments: json.RawMessage(`{"name":"x"}`)}
	result, err := r.Dispatch(target, badCall)
	if err != nil {
		t.Fatal(err)
	}
	if !result.IsError {
		t.Error("expected IsError when a required field is missing")
	}
}

func TestApprovePlanRejectsWhenPlanEmpty(t *testing.T) {
	r := NewRegistry()
	target := newFakeTarget(state.PlanReady)
	result, err := r.Dispatch(target, call(NameApprovePlan, map[string]any{}))
	if err != nil {
		t.Fatal(err)
	}
	if !result.IsError {
		t.Error("expected rejection of approve_plan with an empty plan")
	}
	if target.State() != state.PlanReady {
		t.Error("state must not change on rejected approve_plan")
	}
}

func TestApprovePlanSucceedsAndAdvancesState(t *testing.T) {
	r := NewRegistry()
	target := newFakeTarget(state.PlanReady)
	target.SetPlan("do the thing")
	result, err := r.Dispatch(target, call(NameApprovePlan, map[string]any{}))
	if err != nil {
		t.Fatal(err)
	}
	if result.IsError {
		t.Fatalf("unexpected error: %s", result.Content)
	}
	if target.State() != state.ReadyForExecution {
		t.Errorf("state = %s, want ReadyForExecution", target.State())
	}
}

func TestReplanPreservesGeneratedSkillsAndClearsPlan(t *testing.T) {
	r := NewRegistry()
	target := newFakeTarget(state.PlanRevisionRequired)
	target.SetPlan("old plan")
	target.RecordGeneratedSkill("skill-a")

	result, err := r.Dispatch(target, call(NameReplan, map[string]any{"reason": "missing edge case"}))
	if err != nil {
		t.Fatal(err)
	}
	if result.IsError {
		t.Fatalf("unexpected error: %s", result.Content)
	}
	if target.Plan() != "" {
		t.Error("expected plan to be cleared")
	}
	if len(target.GeneratedSkills()) != 1 || target.GeneratedSkills()[0] != "skill-a" {
		t.Error("expected generated skills to survive replan")
	}
	if target.planningReplans != 1 {
		t.Error("expected planning replan counter to increment")
	}
	if target.State() != state.Planning {
		t.Errorf("state = %s, want Planning", target.State())
	}
}

func TestGiveUpOnlyPermittedInVerificationFailed(t *testing.T) {
	r := NewRegistry()
	target := newFakeTarget(state.Verifying)
	result, err := r.Dispatch(target, call(NameGiveUp, map[string]any{}))
	if err != nil {
		t.Fatal(err)
	}
	if !result.IsError {
		t.Error("expected give_up to be rejected outside VerificationFailed")
	}
}

func TestGiveUpSucceedsFromVerificationFailed(t *testing.T) {
	r := NewRegistry()
	target := newFakeTarget(state.VerificationFailed)
	result, err := r.Dispatch(target, call(NameGiveUp, map[string]any{"reason": "unfixable"}))
	if err != nil {
		t.Fatal(err)
	}
	if result.IsError {
		t.Fatalf("unexpected error: %s", result.Content)
	}
	if target.State() != state.GaveUp {
		t.Errorf("state = %s, want GaveUp", target.State())
	}
}

func TestStartExecutionRequestsBuildStageSpawn(t *testing.T) {
	r := NewRegistry()
	target := newFakeTarget(state.ReadyForExecution)
	result, err := r.Dispatch(target, call(NameStartExecution, map[string]any{}))
	if err != nil {
		t.Fatal(err)
	}
	if result.IsError {
		t.Fatalf("unexpected error: %s", result.Content)
	}
	if len(target.spawnRequests) != 1 || target.spawnRequests[0] != "building" {
		t.Errorf("spawnRequests = %v, want [building]", target.spawnRequests)
	}
}

func TestStartPlanningLaddersUpFromReceivedTask(t *testing.T) {
	r := NewRegistry()
	target := newFakeTarget(state.ReceivedTask)
	result, err := r.Dispatch(target, call(NameStartPlanning, map[string]any{}))
	if err != nil {
		t.Fatal(err)
	}
	if result.IsError {
		t.Fatalf("unexpected error: %s", result.Content)
	}
	if target.State() != state.Planning {
		t.Errorf("state = %s, want Planning", target.State())
	}
	if len(target.spawnRequests) != 1 || target.spawnRequests[0] != "planning" {
		t.Errorf("spawnRequests = %v, want [planning]", target.spawnRequests)
	}
}

func TestStartPlanningLaddersUpFromSelectingInstructions(t *testing.T) {
	r := NewRegistry()
	target := newFakeTarget(state.SelectingInstructions)
	result, err := r.Dispatch(target, call(NameStartPlanning, map[string]any{}))
	if err != nil {
		t.Fatal(err)
	}
	if result.IsError {
		t.Fatalf("unexpected error: %s", result.Content)
	}
	if target.State() != state.Planning {
		t.Errorf("state = %s, want Planning", target.State())
	}
}

func TestReplanFallsBackToPlanRevisionRequiredFromPlanReady(t *testing.T) {
	r := NewRegistry()
	target := newFakeTarget(state.PlanReady)
	target.SetPlan("old plan")

	result, err := r.Dispatch(target, call(NameReplan, map[string]any{"reason": "needs more detail"}))
	if err != nil {
		t.Fatal(err)
	}
	if result.IsError {
		t.Fatalf("unexpected error: %s", result.Content)
	}
	if target.State() != state.PlanRevisionRequired {
		t.Errorf("state = %s, want PlanRevisionRequired", target.State())
	}
}

func TestReplanFromVerificationFailedGoesDirectlyToPlanning(t *testing.T) {
	r := NewRegistry()
	target := newFakeTarget(state.VerificationFailed)

	result, err := r.Dispatch(target, call(NameReplan, map[string]any{"reason": "wrong approach"}))
	if err != nil {
		t.Fatal(err)
	}
	if result.IsError {
		t.Fatalf("unexpected error: %s", result.Content)
	}
	if target.State() != state.Planning {
		t.Errorf("state = %s, want Planning", target.State())
	}
}

func TestUnknownToolIsRejected(t *testing.T) {
	r := NewRegistry()
	target := newFakeTarget(state.ReceivedTask)
	result, err := r.Dispatch(target, call("not_a_real_tool", map[string]any{}))
	if err != nil {
		t.Fatal(err)
	}
	if !result.IsError {
		t.Error("expected unknown tool to be rejected")
	}
}
