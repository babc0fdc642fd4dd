package tools

import "github.com/autopipe/engine/pkg/state"

// Target is the mutation surface a tool handler operates on. It is
// implemented by pkg/orchestrator's Agent; defining the
// interface here (rather than importing orchestrator) keeps pkg/tools free
// of the import cycle that would otherwise result, since orchestrator must
// import tools to drive dispatch.
type Target interface {
	// State returns the orchestrator agent's current pipeline state.
	State() state.PipelineState

	// SetState transitions to next. Callers must have already validated
	// state.CanTransition(State(), next) — SetState itself does not
	// re-validate, so handlers are the single place that enforces it.
	SetState(next state.PipelineState)

	// Plan returns the currently accepted plan text, empty if none.
	Plan() string
	SetPlan(text string)

	// ImplementationSummary returns the builder stage's summary text.
	ImplementationSummary() string
	SetImplementationSummary(text string)

	// GeneratedSkills returns the names of skills created so far in this
	// pipeline run. Preserved across a replan per spec §4.3.
	GeneratedSkills() []string
	RecordGeneratedSkill(name string)

	// RecordSubagent registers a generated subagent configuration by name.
	RecordSubagent(name string)

	// RecordClaudeMD stores the generated CLAUDE.md content for child
	// agents to consume.
	RecordClaudeMD(content string)

	// IncrementPlanningReplans bumps the replan counter used for loop-safety
	// bookkeeping (spec §9).
	IncrementPlanningReplans()

	// RequestSpawn signals the pipeline loop that the named stage's child
	// agent must now be spawned (spec §4.3's start_planning/start_execution/
	// start_verification semantics).
	RequestSpawn(stage string)

	// ReadFile returns the contents of a file under the pipeline's working
	// directory, for read_instruction_file.
	ReadFile(path string) (string, error)
}
