package config

// Defaults holds the system-wide settings spec.md §6 names, used when a
// pipeline or stage doesn't specify its own override. Every field has a
// concrete zero value (applied by resolveDefaults in loader.go) so callers
// never have to nil-check this struct's fields after Initialize returns.
type Defaults struct {
	// LLMProvider selects the orchestrator's vendor entry from the provider
	// table (LLMProviderRegistry). The orchestrator uses that entry's model;
	// ORCHESTRATOR_MODEL is not read.
	LLMProvider string `yaml:"llm_provider,omitempty"`

	// OrchestratorMaxTurns is the per-stage LLM turn cap (ORCHESTRATOR_MAX_TURNS).
	OrchestratorMaxTurns int `yaml:"orchestrator_max_turns,omitempty" validate:"omitempty,min=1"`

	// IterationCeiling is the default per-pipeline iterate/replan budget
	// (PIPELINE_ITERATION_CEILING) applied when a pipeline is created
	// without an explicit override.
	IterationCeiling int `yaml:"iteration_ceiling,omitempty" validate:"omitempty,min=1"`

	// CodingAgentBin overrides the child coding-CLI binary discovery probe
	// (CODING_AGENT_BIN); empty means auto-discover.
	CodingAgentBin string `yaml:"coding_agent_bin,omitempty"`
}

// DefaultOrchestratorMaxTurns matches orchestrator.DefaultMaxTurns; kept as
// its own constant here (so pkg/config does not import pkg/orchestrator)
// since this is the fallback applied before any YAML or env override is read.
const DefaultOrchestratorMaxTurns = 100

// DefaultIterationCeiling is the fallback iteration ceiling, per spec.md §6.
const DefaultIterationCeiling = 5
