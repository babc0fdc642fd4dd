// Package state implements the pipeline state machine (C7): the enumerated
// pipeline states and the fixed matrix of legal transitions between them.
// The machine is purely declarative — this package holds no mutable state of
// its own.
package state

// PipelineState is one of the fixed pipeline lifecycle states.
type PipelineState string

const (
	ReceivedTask          PipelineState = "ReceivedTask"
	AnalyzingTask         PipelineState = "AnalyzingTask"
	SelectingInstructions PipelineState = "SelectingInstructions"
	GeneratingSkills      PipelineState = "GeneratingSkills"
	Planning              PipelineState = "Planning"
	PlanReady             PipelineState = "PlanReady"
	PlanRevisionRequired  PipelineState = "PlanRevisionRequired"
	ReadyForExecution     PipelineState = "ReadyForExecution"
	Executing             PipelineState = "Executing"
	Verifying             PipelineState = "Verifying"
	VerificationPassed    PipelineState = "VerificationPassed"
	VerificationFailed    PipelineState = "VerificationFailed"
	Completed             PipelineState = "Completed"
	Failed                PipelineState = "Failed"
	GaveUp                PipelineState = "GaveUp"
)

// transitions is the literal transition relation from spec §4.2. Every key
// is a source state; every value is the set of states directly reachable
// from it in one transition.
var transitions = map[PipelineState]map[PipelineState]bool{
	ReceivedTask: set(AnalyzingTask, Failed),
	AnalyzingTask: set(SelectingInstructions, Failed),
	SelectingInstructions: set(GeneratingSkills, Planning, Failed),
	GeneratingSkills: set(Planning, Failed),
	Planning: set(PlanReady, PlanRevisionRequired, Failed),
	PlanReady: set(ReadyForExecution, PlanRevisionRequired, Failed),
	PlanRevisionRequired: set(Planning, Failed),
	ReadyForExecution: set(Executing, Failed),
	Executing: set(Verifying, Failed),
	Verifying: set(VerificationPassed, VerificationFailed, Failed),
	VerificationPassed: set(Completed, ReadyForExecution),
	VerificationFailed: set(ReadyForExecution, Planning, GaveUp, Failed),
	Completed: {},
	Failed:    {},
	GaveUp:    {},
}

func set(states ...PipelineState) map[PipelineState]bool {
	m := make(map[PipelineState]bool, len(states))
	for _, s := range states {
		m[s] = true
	}
	return m
}

// terminal is the set of states from which no further transitions are legal.
var terminal = map[PipelineState]bool{
	Completed: true,
	Failed:    true,
	GaveUp:    true,
}

// IsValid reports whether s is one of the fifteen enumerated states.
func (s PipelineState) IsValid() bool {
	_, ok := transitions[s]
	return ok
}

// IsTerminal reports whether s is Completed, Failed, or GaveUp.
func (s PipelineState) IsTerminal() bool {
	return terminal[s]
}

// CanTransition reports whether moving from s to next is legal per the
// declared transition relation.
func CanTransition(from, to PipelineState) bool {
	targets, ok := transitions[from]
	if !ok {
		return false
	}
	return targets[to]
}

// AllStates returns every enumerated state, in declaration order, primarily
// for tests and for building per-state tool-list caches.
func AllStates() []PipelineState {
	return []PipelineState{
		ReceivedTask, AnalyzingTask, SelectingInstructions, GeneratingSkills,
		Planning, PlanReady, PlanRevisionRequired, ReadyForExecution,
		Executing, Verifying, VerificationPassed, VerificationFailed,
		Completed, Failed, GaveUp,
	}
}
