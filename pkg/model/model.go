// Package model holds the plain data shapes shared across the orchestration
// core: Pipeline and StageRecord (owned by the pipeline loop, C10/C11),
// AgentOutputEvent and RunRecord (owned by the agent process / stream parser
// and run store, C3/C4/C2). Stateful, lock-guarded wrappers around these
// shapes (OrchestratorAgent, AgentProcess) live in the packages that own
// their concurrency, not here, so this package stays free of import cycles.
package model

import (
	"time"

	"github.com/autopipe/engine/pkg/state"
)

// StageName identifies one of the three fixed pipeline stages.
type StageName string

const (
	StagePlanning   StageName = "planning"
	StageBuilding   StageName = "building"
	StageVerifying  StageName = "verifying"
)

// StageStatus is the lifecycle status of a single StageRecord.
type StageStatus string

const (
	StagePending   StageStatus = "Pending"
	StageRunning   StageStatus = "Running"
	StageCompleted StageStatus = "Completed"
	StageFailed    StageStatus = "Failed"
)

// StepOutput is the captured result of the child agent that executed a
// stage: its raw text, a best-effort parsed JSON value (nil if the agent's
// final message did not decode as JSON), and the full list of output events
// the agent emitted during this stage.
type StepOutput struct {
	RawText    string
	ParsedJSON any
	Events     []AgentOutputEvent
}

// StageRecord is the per-stage bookkeeping entry described in spec §3: a
// status, an optional StepOutput, start/end timestamps, and the id of the
// agent that executed it.
type StageRecord struct {
	Name      StageName
	Status    StageStatus
	Output    *StepOutput
	StartedAt *time.Time
	EndedAt   *time.Time
	AgentID   string // empty until the stage's child agent has been spawned
}

// Pipeline is the top-level entity described in spec §3. It is created in
// state ReceivedTask and mutated exclusively by its owning loop
// (pkg/pipeline). Reaching a terminal state releases its orchestrator agent;
// its stage agents are not reaped from the agent registry.
type Pipeline struct {
	ID               string
	UserRequest      string
	WorkingDir       string
	Stages           []*StageRecord
	CurrentState     state.PipelineState
	Iterations       int
	IterationCeiling int
	PlanningReplans  int
	CreatedAt        time.Time
	UpdatedAt        time.Time
	FailureReason    string
	// Cancelled is checked by the owning loop (pkg/pipeline) once at the
	// start of each planning/building/verifying cycle. It is not checked
	// between LLM turns or while a stage's child agent is running, and a
	// running child agent is not stopped when it is set.
	Cancelled bool
}

// NewPipeline builds a Pipeline in its initial state with its three fixed
// stage records pre-populated as Pending.
func NewPipeline(id, userRequest, workingDir string, iterationCeiling int) *Pipeline {
	now := time.Now()
	return &Pipeline{
		ID:               id,
		UserRequest:      userRequest,
		WorkingDir:       workingDir,
		CurrentState:     state.ReceivedTask,
		IterationCeiling: iterationCeiling,
		CreatedAt:        now,
		UpdatedAt:        now,
		Stages: []*StageRecord{
			{Name: StagePlanning, Status: StagePending},
			{Name: StageBuilding, Status: StagePending},
			{Name: StageVerifying, Status: StagePending},
		},
	}
}

// Stage returns the stage record for name, or nil if name is not one of the
// three fixed stages.
func (p *Pipeline) Stage(name StageName) *StageRecord {
	for _, s := range p.Stages {
		if s.Name == name {
			return s
		}
	}
	return nil
}

// StageStatuses returns the Status field of each stage record in order,
// primarily for assertions in end-to-end tests (spec §8 scenario 1 expects
// exactly [Completed, Completed, Completed]).
func (p *Pipeline) StageStatuses() []StageStatus {
	out := make([]StageStatus, len(p.Stages))
	for i, s := range p.Stages {
		out[i] = s.Status
	}
	return out
}

// OutputType categorizes a single AgentOutputEvent per the classification
// rules in spec §4.1.
type OutputType string

const (
	OutputAssistant  OutputType = "assistant"
	OutputUser       OutputType = "user"
	OutputSystem     OutputType = "system"
	OutputResult     OutputType = "result"
	OutputStreamEvt  OutputType = "stream_event"
	OutputToolUse    OutputType = "tool_use"
	OutputToolResult OutputType = "tool_result"
	OutputError      OutputType = "error"
	OutputPlain      OutputType = "plain"
	OutputUnknown    OutputType = "unknown"
)

// EventMetadata carries the optional per-event metadata spec §3 describes:
// language, line count, byte size, and a truncation flag.
type EventMetadata struct {
	Language    string
	LineCount   int
	ByteSize    int
	Truncated   bool
}

// AgentOutputEvent is a single emitted message from a child agent, per
// spec §3's AgentOutputEvent data model entry.
type AgentOutputEvent struct {
	AgentID         string
	Type            OutputType
	Content         string
	ParsedJSON      any
	Metadata        EventMetadata
	SessionID       string
	UUID            string
	ParentToolUseID string
	Subtype         string
	Timestamp       time.Time
}

// RunStatus is the lifecycle status of a Run record, advancing monotonically
// per spec §3's invariant: Running → {Completed, Stopped, Crashed, WaitingInput}.
type RunStatus string

const (
	RunRunning      RunStatus = "Running"
	RunCompleted    RunStatus = "Completed"
	RunStopped      RunStatus = "Stopped"
	RunCrashed      RunStatus = "Crashed"
	RunWaitingInput RunStatus = "WaitingInput"
)

// SourceCategory identifies who spawned an agent run.
type SourceCategory string

const (
	SourceUI       SourceCategory = "UI"
	SourceMeta     SourceCategory = "Meta"
	SourcePipeline SourceCategory = "Pipeline"
	SourcePool     SourceCategory = "Pool"
	SourceManual   SourceCategory = "Manual"
)

// ModelUsage is the per-model token/cost breakdown aggregated onto a RunRecord.
type ModelUsage struct {
	Model        string
	InputTokens  int64
	OutputTokens int64
	CostUSD      float64
}

// RunRecord is the persisted record described in spec §3, stored in the run
// store (C2) and keyed by AgentID.
type RunRecord struct {
	AgentID         string
	SessionID       string
	WorkingDir      string
	Source          SourceCategory
	Status          RunStatus
	StartedAt       time.Time
	EndedAt         *time.Time
	LastActivity    time.Time
	InitialPrompt   string
	ErrorMessage    string
	PipelineID      string
	TotalPrompts    int64
	TotalToolCalls  int64
	TotalOutputBytes int64
	TotalTokensUsed int64
	TotalCostUSD    float64
	PerModelUsage   []ModelUsage
	Resumable       bool
	ResumePayload   string
}
