// Package orchestrator implements the orchestrator agent (C9): the
// tool-gated LLM conversation that drives a pipeline through its state
// machine by calling the fixed tool set (pkg/tools) a turn at a time.
package orchestrator

import (
	"encoding/json"

	"github.com/autopipe/engine/pkg/llm"
	"github.com/autopipe/engine/pkg/state"
	"github.com/autopipe/engine/pkg/tools"
)

// actionTools is the set of tool names whose handler produces a
// state-changing action, per spec §4.4: a successful call to one of these
// ends the current run_until_action turn and hands control back to the
// pipeline loop. Every other tool in the catalog (read_instruction_file,
// create_skill, create_subagent, generate_claudemd) is purely informational
// and keeps the loop going.
var actionTools = map[string]bool{
	tools.NameStartPlanning:     true,
	tools.NameApprovePlan:       true,
	tools.NameStartExecution:    true,
	tools.NameStartVerification: true,
	tools.NameComplete:          true,
	tools.NameIterate:           true,
	tools.NameReplan:            true,
	tools.NameGiveUp:            true,
}

// Action is the terminating event a run_until_action call returns: the name
// of the state-changing tool the LLM called, plus the free-text reason
// argument for replan/give_up (empty for the other six).
type Action struct {
	Name   string
	Reason string
}

func reasonFrom(call llm.ToolCall) string {
	var args struct {
		Reason string `json:"reason"`
	}
	_ = json.Unmarshal(call.Arguments, &args)
	return args.Reason
}

// Agent is the orchestrator's own mutable state: the live pipeline state
// mirror, conversation history, and the analysis artifacts the tool
// handlers in pkg/tools accumulate. It implements tools.Target.
type Agent struct {
	pipelineID string
	workingDir string

	current state.PipelineState

	conversation []llm.ConversationMessage

	plan                  string
	implementationSummary string
	generatedSkills       []string
	subagents             []string
	claudeMD              string
	planningReplans       int

	// pendingSpawn is set by RequestSpawn and read (then cleared) by
	// TakePendingSpawn; it names the stage to spawn. pkg/pipeline does not
	// read it: it picks the stage to spawn from the returned Action.
	pendingSpawn string
}

// New builds an Agent in its initial state, with systemPrompt and the
// user's task as the opening conversation turns.
func New(pipelineID, workingDir, systemPrompt, userRequest string) *Agent {
	return &Agent{
		pipelineID: pipelineID,
		workingDir: workingDir,
		current:    state.ReceivedTask,
		conversation: []llm.ConversationMessage{
			{Role: llm.RoleSystem, Content: systemPrompt},
			{Role: llm.RoleUser, Content: userRequest},
		},
	}
}

// --- tools.Target ---

func (a *Agent) State() state.PipelineState        { return a.current }
func (a *Agent) SetState(next state.PipelineState) { a.current = next }

func (a *Agent) Plan() string          { return a.plan }
func (a *Agent) SetPlan(text string)   { a.plan = text }

func (a *Agent) ImplementationSummary() string        { return a.implementationSummary }
func (a *Agent) SetImplementationSummary(text string) { a.implementationSummary = text }

func (a *Agent) GeneratedSkills() []string { return a.generatedSkills }
func (a *Agent) RecordGeneratedSkill(name string) {
	a.generatedSkills = append(a.generatedSkills, name)
}

func (a *Agent) RecordSubagent(name string) { a.subagents = append(a.subagents, name) }
func (a *Agent) RecordClaudeMD(content string) { a.claudeMD = content }

func (a *Agent) IncrementPlanningReplans() { a.planningReplans++ }

func (a *Agent) RequestSpawn(stage string) { a.pendingSpawn = stage }

func (a *Agent) ReadFile(path string) (string, error) {
	return readWorkingDirFile(a.workingDir, path)
}

var _ tools.Target = (*Agent)(nil)

// TakePendingSpawn returns and clears the stage name recorded by the most
// recent RequestSpawn call, or "" if none is pending.
func (a *Agent) TakePendingSpawn() string {
	stage := a.pendingSpawn
	a.pendingSpawn = ""
	return stage
}

// PipelineID and WorkingDir expose the identifiers the pipeline loop needs
// when it spawns a child agent on this Agent's behalf.
func (a *Agent) PipelineID() string { return a.pipelineID }
func (a *Agent) WorkingDir() string { return a.workingDir }

// AppendUserMessage injects a plain user-role turn into the conversation —
// used by the pipeline loop between stages ("Plan approved; call
// start_execution.") and to attach a completed child agent's output. The
// output goes in as plain text content, not as a tool result.
func (a *Agent) AppendUserMessage(content string) {
	a.conversation = append(a.conversation, llm.ConversationMessage{
		Role:    llm.RoleUser,
		Content: content,
	})
}

// GeneratedClaudeMD returns the CLAUDE.md content recorded via
// generate_claudemd, if any.
func (a *Agent) GeneratedClaudeMD() string { return a.claudeMD }

// Subagents returns the subagent configurations recorded via
// create_subagent.
func (a *Agent) Subagents() []string { return a.subagents }

// PlanningReplans returns how many times replan has returned the pipeline
// to the planning stage.
func (a *Agent) PlanningReplans() int { return a.planningReplans }
