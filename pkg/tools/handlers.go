package tools

import (
	"encoding/json"
	"fmt"

	"github.com/autopipe/engine/pkg/llm"
	"github.com/autopipe/engine/pkg/state"
)

// Handler mutates target in response to a single tool call and returns the
// result to hand back to the LLM. A handler never returns a Go error for a
// recoverable, LLM-correctable mistake (bad arguments, illegal transition) —
// those come back as ToolResult{IsError: true}, per spec §4.3's "errors are
// non-fatal" rule; a ReadFile failure is reported the same way. No handler
// in this package returns a non-nil Go error; the orchestrator loop treats
// one as a fatal BadToolUsage error.
type Handler func(target Target, call llm.ToolCall) (llm.ToolResult, error)

var handlers = map[string]Handler{
	NameReadInstructionFile: handleReadInstructionFile,
	NameCreateSkill:         handleCreateSkill,
	NameCreateSubagent:      handleCreateSubagent,
	NameGenerateClaudeMD:    handleGenerateClaudeMD,
	NameStartPlanning:       handleStartPlanning,
	NameApprovePlan:         handleApprovePlan,
	NameReplan:              handleReplan,
	NameStartExecution:      handleStartExecution,
	NameStartVerification:   handleStartVerification,
	NameComplete:            handleComplete,
	NameIterate:             handleIterate,
	NameGiveUp:              handleGiveUp,
}

func ok(call llm.ToolCall, content string) llm.ToolResult {
	return llm.ToolResult{ToolCallID: call.ID, Content: content, IsError: false}
}

func fail(call llm.ToolCall, content string) llm.ToolResult {
	return llm.ToolResult{ToolCallID: call.ID, Content: content, IsError: true}
}

// transition validates and applies a state change, or returns a non-nil
// ToolResult describing why the transition was refused.
func transition(target Target, call llm.ToolCall, next state.PipelineState) *llm.ToolResult {
	if !state.CanTransition(target.State(), next) {
		r := fail(call, fmt.Sprintf("cannot move from %s to %s", target.State(), next))
		return &r
	}
	target.SetState(next)
	return nil
}

func handleReadInstructionFile(target Target, call llm.ToolCall) (llm.ToolResult, error) {
	var args struct {
		Path string `json:"path"`
	}
	if err := json.Unmarshal(call.Arguments, &args); err != nil {
		return fail(call, "invalid arguments: "+err.Error()), nil
	}
	content, err := target.ReadFile(args.Path)
	if err != nil {
		return fail(call, "failed to read "+args.Path+": "+err.Error()), nil
	}
	return ok(call, content), nil
}

func handleCreateSkill(target Target, call llm.ToolCall) (llm.ToolResult, error) {
	var args struct {
		Name    string `json:"name"`
		Content string `json:"content"`
	}
	if err := json.Unmarshal(call.Arguments, &args); err != nil {
		return fail(call, "invalid arguments: "+err.Error()), nil
	}
	target.RecordGeneratedSkill(args.Name)
	return ok(call, fmt.Sprintf("recorded skill %q", args.Name)), nil
}

func handleCreateSubagent(target Target, call llm.ToolCall) (llm.ToolResult, error) {
	var args struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(call.Arguments, &args); err != nil {
		return fail(call, "invalid arguments: "+err.Error()), nil
	}
	target.RecordSubagent(args.Name)
	return ok(call, fmt.Sprintf("recorded subagent %q", args.Name)), nil
}

func handleGenerateClaudeMD(target Target, call llm.ToolCall) (llm.ToolResult, error) {
	var args struct {
		Content string `json:"content"`
	}
	if err := json.Unmarshal(call.Arguments, &args); err != nil {
		return fail(call, "invalid arguments: "+err.Error()), nil
	}
	target.RecordClaudeMD(args.Content)
	return ok(call, "CLAUDE.md recorded"), nil
}

// analysisLadder gives the single next hop toward Planning for each of the
// four analysis states. SelectingInstructions and GeneratingSkills both
// reach Planning directly per the transition relation; GeneratingSkills is
// never itself entered by a tool in this catalog (no handler here produces
// it), but the ladder still covers it so a future caller that does reach it
// is not stuck.
var analysisLadder = map[state.PipelineState]state.PipelineState{
	state.ReceivedTask:          state.AnalyzingTask,
	state.AnalyzingTask:         state.SelectingInstructions,
	state.SelectingInstructions: state.Planning,
	state.GeneratingSkills:      state.Planning,
}

// handleStartPlanning is the one tool that closes out the analysis phase:
// it walks the current state forward, one legal hop at a time, until it
// reaches Planning. Nothing else in this catalog advances
// ReceivedTask/AnalyzingTask/SelectingInstructions, so a single call must
// cover the whole chain regardless of where analysis left off.
func handleStartPlanning(target Target, call llm.ToolCall) (llm.ToolResult, error) {
	current := target.State()
	for hops := 0; current != state.Planning; hops++ {
		if hops > len(analysisLadder) {
			return fail(call, fmt.Sprintf("no path from %s to Planning", target.State())), nil
		}
		next, known := analysisLadder[current]
		if !known || !state.CanTransition(current, next) {
			return fail(call, fmt.Sprintf("cannot advance from %s toward Planning", current)), nil
		}
		current = next
	}
	target.SetState(state.Planning)
	target.RequestSpawn("planning")
	return ok(call, "planning stage starting"), nil
}

// handleApprovePlan expects the pipeline loop to have already moved the
// state to PlanReady once the planning child agent's draft was attached to
// the conversation (see pkg/pipeline) — approve_plan itself only performs
// the PlanReady -> ReadyForExecution hop named in the transition relation.
func handleApprovePlan(target Target, call llm.ToolCall) (llm.ToolResult, error) {
	if target.Plan() == "" {
		return fail(call, "cannot approve an empty plan"), nil
	}
	if r := transition(target, call, state.ReadyForExecution); r != nil {
		return *r, nil
	}
	return ok(call, "plan approved"), nil
}

// replanCandidates is tried in order: the first target CanTransition allows
// from the caller's current state wins. Planning is attempted first because
// it is the only legal replan target from PlanRevisionRequired and from
// VerificationFailed; PlanRevisionRequired is the fallback for Planning and
// PlanReady, which cannot reach Planning in a single hop. This mirrors the
// transition relation's own two-step path (e.g. PlanReady ->
// PlanRevisionRequired -> Planning) rather than picking one fixed target
// that would only be legal from some of replan's permitted states.
var replanCandidates = []state.PipelineState{state.Planning, state.PlanRevisionRequired}

func handleReplan(target Target, call llm.ToolCall) (llm.ToolResult, error) {
	current := target.State()
	var next state.PipelineState
	found := false
	for _, candidate := range replanCandidates {
		if state.CanTransition(current, candidate) {
			next, found = candidate, true
			break
		}
	}
	if !found {
		return fail(call, fmt.Sprintf("cannot replan from %s", current)), nil
	}
	target.SetState(next)
	target.SetPlan("")
	target.SetImplementationSummary("")
	target.IncrementPlanningReplans()
	return ok(call, "returning to planning"), nil
}

func handleStartExecution(target Target, call llm.ToolCall) (llm.ToolResult, error) {
	if r := transition(target, call, state.Executing); r != nil {
		return *r, nil
	}
	target.RequestSpawn("building")
	return ok(call, "build stage starting"), nil
}

func handleStartVerification(target Target, call llm.ToolCall) (llm.ToolResult, error) {
	if r := transition(target, call, state.Verifying); r != nil {
		return *r, nil
	}
	target.RequestSpawn("verifying")
	return ok(call, "verification stage starting"), nil
}

func handleComplete(target Target, call llm.ToolCall) (llm.ToolResult, error) {
	if r := transition(target, call, state.Completed); r != nil {
		return *r, nil
	}
	return ok(call, "pipeline completed"), nil
}

func handleIterate(target Target, call llm.ToolCall) (llm.ToolResult, error) {
	if r := transition(target, call, state.ReadyForExecution); r != nil {
		return *r, nil
	}
	target.SetImplementationSummary("")
	return ok(call, "returning to execution"), nil
}

func handleGiveUp(target Target, call llm.ToolCall) (llm.ToolResult, error) {
	if r := transition(target, call, state.GaveUp); r != nil {
		return *r, nil
	}
	return ok(call, "pipeline abandoned"), nil
}
