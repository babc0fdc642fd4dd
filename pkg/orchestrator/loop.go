package orchestrator

import (
	"context"
	"fmt"

	"github.com/autopipe/engine/pkg/llm"
	"github.com/autopipe/engine/pkg/pipelineerr"
	"github.com/autopipe/engine/pkg/tools"
)

// DefaultMaxTurns is the per-stage hard iteration cap from spec §4.4.
const DefaultMaxTurns = 100

// Driver runs the orchestrator agent's run_until_action loop against one
// LLM client and tool registry. It holds no per-pipeline state itself —
// callers pass the Agent each call — so a single Driver is safe to share
// across every pipeline's stages.
type Driver struct {
	Client   llm.Client
	Registry *tools.Registry
	MaxTurns int
}

// NewDriver builds a Driver with spec §4.4's default turn cap.
func NewDriver(client llm.Client, registry *tools.Registry) *Driver {
	return &Driver{Client: client, Registry: registry, MaxTurns: DefaultMaxTurns}
}

// RunUntilAction drives one or more LLM turns against agent until either the
// LLM responds with no tool-use blocks (treated as an implicit continue, and
// the loop goes around again) or a state-changing tool succeeds, per spec
// §4.4. ctx cancellation is observed between turns so a pipeline
// cancellation can preempt a stuck loop.
func (d *Driver) RunUntilAction(ctx context.Context, agent *Agent) (Action, error) {
	for turn := 0; turn < d.MaxTurns; turn++ {
		if err := ctx.Err(); err != nil {
			return Action{}, pipelineerr.New(pipelineerr.KindCancelled, agent.pipelineID, pipelineerr.WithCause(err))
		}

		toolSet := d.Registry.ForState(agent.current)

		reply, err := llm.Collect(mustGenerate(ctx, d.Client, agent, toolSet))
		if err != nil {
			return Action{}, pipelineerr.New(pipelineerr.KindLLMError, agent.pipelineID, pipelineerr.WithCause(err))
		}
		agent.conversation = append(agent.conversation, reply)

		if len(reply.ToolCalls) == 0 {
			// Implicit Continue: no tool use this turn, loop again.
			continue
		}

		var results []llm.ToolResult
		var action *Action
		for _, call := range reply.ToolCalls {
			result, dispatchErr := d.Registry.Dispatch(agent, call)
			if dispatchErr != nil {
				return Action{}, pipelineerr.New(pipelineerr.KindBadToolUsage, agent.pipelineID, pipelineerr.WithCause(dispatchErr))
			}
			results = append(results, result)

			if action == nil && actionTools[call.Name] && !result.IsError {
				action = &Action{Name: call.Name, Reason: reasonFrom(call)}
			}
		}

		agent.conversation = append(agent.conversation, llm.ConversationMessage{
			Role:        llm.RoleUser,
			ToolResults: results,
		})

		if action != nil {
			return *action, nil
		}
	}
	return Action{}, pipelineerr.New(pipelineerr.KindLoopExhausted, agent.pipelineID)
}

// mustGenerate issues the LLM call and returns its chunk stream, wrapping a
// Generate-construction failure as an already-closed, single-error channel
// so llm.Collect reports it uniformly with a mid-stream ErrorChunk.
func mustGenerate(ctx context.Context, client llm.Client, agent *Agent, toolSet []llm.ToolDefinition) <-chan llm.Chunk {
	ch, err := client.Generate(ctx, &llm.GenerateInput{
		Messages: agent.conversation,
		Tools:    toolSet,
		Model:    client.Model(),
	})
	if err != nil {
		errCh := make(chan llm.Chunk, 1)
		errCh <- llm.ErrorChunk{Message: fmt.Sprintf("generate: %v", err)}
		close(errCh)
		return errCh
	}
	return ch
}
