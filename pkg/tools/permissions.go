package tools

import "github.com/autopipe/engine/pkg/state"

// permitted is the per-state tool-name allow-list from spec §4.3's table.
// A state absent from this map (including every terminal state) permits no
// tools at all.
var permitted = map[state.PipelineState][]string{
	state.ReceivedTask:          analysisTools,
	state.AnalyzingTask:         analysisTools,
	state.SelectingInstructions: analysisTools,
	state.GeneratingSkills:      analysisTools,

	state.Planning:             {NameApprovePlan, NameReplan},
	state.PlanReady:            {NameApprovePlan, NameReplan},
	state.PlanRevisionRequired: {NameApprovePlan, NameReplan},

	state.ReadyForExecution: {NameStartExecution},
	state.Executing:         {NameStartVerification},

	state.Verifying:           {NameComplete, NameIterate, NameReplan},
	state.VerificationPassed:  {NameComplete, NameIterate},
	state.VerificationFailed:  {NameIterate, NameReplan, NameGiveUp},
}

var analysisTools = []string{
	NameReadInstructionFile, NameCreateSkill, NameCreateSubagent,
	NameGenerateClaudeMD, NameStartPlanning,
}
