package orchestrator

import (
	"fmt"
	"strings"
)

// systemPromptInstructions gives the orchestrator LLM its fixed operating
// procedure: the tool-gated state machine it drives and which eight tools
// end a run_until_action call.
const systemPromptInstructions = `You are the orchestrator agent for an automated coding pipeline. You do not
write code yourself — you drive a sequence of three stages (planning,
building, verifying) by calling the tools offered to you at each step, and by
spawning and reading the output of child coding-CLI agents that do the actual
work.

At each point you are offered a fixed, state-dependent subset of tools.
Calling a tool outside its permitted state, or with arguments that violate
its schema, is rejected with an error result you should recover from by
trying something else — it never ends the conversation.

Only one of the following tools ends your current turn and hands control
back to the pipeline driver: start_planning, approve_plan, start_execution,
start_verification, complete, iterate, replan, give_up. Every other tool
(read_instruction_file, create_skill, create_subagent, generate_claudemd) is
informational — use as many of those as you need before calling one of the
eight.`

// BuildSystemPrompt assembles the orchestrator's system prompt: the fixed
// operating instructions plus any project-specific skills text the caller
// has already selected for this pipeline (empty when none apply).
func BuildSystemPrompt(projectSkills []string) string {
	var sb strings.Builder
	sb.WriteString(systemPromptInstructions)
	if len(projectSkills) > 0 {
		sb.WriteString("\n\n## Project skills\n")
		for _, s := range projectSkills {
			sb.WriteString("- " + s + "\n")
		}
	}
	return sb.String()
}

// BuildUserRequest renders the opening user turn from the pipeline's task
// description and working directory.
func BuildUserRequest(userRequest, workingDir string) string {
	return fmt.Sprintf("Working directory: %s\n\nTask:\n%s", workingDir, userRequest)
}
