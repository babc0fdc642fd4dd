package tools

import "github.com/autopipe/engine/pkg/llm"

// Tool names, used both as map keys and as the wire name the LLM sees.
const (
	NameReadInstructionFile = "read_instruction_file"
	NameCreateSkill         = "create_skill"
	NameCreateSubagent      = "create_subagent"
	NameGenerateClaudeMD    = "generate_claudemd"
	NameStartPlanning       = "start_planning"
	NameApprovePlan         = "approve_plan"
	NameReplan              = "replan"
	NameStartExecution      = "start_execution"
	NameStartVerification   = "start_verification"
	NameComplete            = "complete"
	NameIterate             = "iterate"
	NameGiveUp              = "give_up"
)

// definitions is the full tool catalog. ForState filters this down to the
// subset permitted in a given pipeline state (spec §4.3's table).
var definitions = []llm.ToolDefinition{
	{
		Name:        NameReadInstructionFile,
		Description: "Read a project instruction or documentation file relative to the working directory.",
		InputSchema: schema(`{
			"type": "object",
			"properties": {"path": {"type": "string"}},
			"required": ["path"],
			"additionalProperties": false
		}`),
	},
	{
		Name:        NameCreateSkill,
		Description: "Record a reusable skill the child agents should follow for this task.",
		InputSchema: schema(`{
			"type": "object",
			"properties": {
				"name": {"type": "string"},
				"content": {"type": "string"}
			},
			"required": ["name", "content"],
			"additionalProperties": false
		}`),
	},
	{
		Name:        NameCreateSubagent,
		Description: "Record a named subagent configuration to make available to child agents.",
		InputSchema: schema(`{
			"type": "object",
			"properties": {
				"name": {"type": "string"},
				"config": {"type": "string"}
			},
			"required": ["name", "config"],
			"additionalProperties": false
		}`),
	},
	{
		Name:        NameGenerateClaudeMD,
		Description: "Generate the CLAUDE.md content child agents will read at spawn time.",
		InputSchema: schema(`{
			"type": "object",
			"properties": {"content": {"type": "string"}},
			"required": ["content"],
			"additionalProperties": false
		}`),
	},
	{
		Name:        NameStartPlanning,
		Description: "Advance to the planning stage and spawn the planning child agent.",
		InputSchema: schema(`{"type": "object", "properties": {}, "additionalProperties": false}`),
	},
	{
		Name:        NameApprovePlan,
		Description: "Approve the current plan and advance to execution.",
		InputSchema: schema(`{"type": "object", "properties": {}, "additionalProperties": false}`),
	},
	{
		Name:        NameReplan,
		Description: "Discard the current plan and implementation, and return to the planning stage.",
		InputSchema: schema(`{
			"type": "object",
			"properties": {"reason": {"type": "string"}},
			"additionalProperties": false
		}`),
	},
	{
		Name:        NameStartExecution,
		Description: "Advance to the building stage and spawn the build child agent.",
		InputSchema: schema(`{"type": "object", "properties": {}, "additionalProperties": false}`),
	},
	{
		Name:        NameStartVerification,
		Description: "Advance to the verification stage and spawn the verification child agent.",
		InputSchema: schema(`{"type": "object", "properties": {}, "additionalProperties": false}`),
	},
	{
		Name:        NameComplete,
		Description: "Mark the pipeline as successfully completed.",
		InputSchema: schema(`{"type": "object", "properties": {}, "additionalProperties": false}`),
	},
	{
		Name:        NameIterate,
		Description: "Return to execution to address verification findings without replanning.",
		InputSchema: schema(`{"type": "object", "properties": {}, "additionalProperties": false}`),
	},
	{
		Name:        NameGiveUp,
		Description: "Abandon the pipeline after verification has failed and iteration will not help.",
		InputSchema: schema(`{
			"type": "object",
			"properties": {"reason": {"type": "string"}},
			"additionalProperties": false
		}`),
	},
}

func schema(raw string) []byte {
	return []byte(raw)
}
