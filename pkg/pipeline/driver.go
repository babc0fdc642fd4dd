package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/autopipe/engine/pkg/agentproc"
	"github.com/autopipe/engine/pkg/events"
	"github.com/autopipe/engine/pkg/model"
	"github.com/autopipe/engine/pkg/orchestrator"
	"github.com/autopipe/engine/pkg/pipelineerr"
	"github.com/autopipe/engine/pkg/state"
)

// Driver is the pipeline loop (C10): it owns the orchestrator-agent
// take/restore table and sequences a Pipeline through its three stages,
// spawning one child agent per stage via AgentRegistry and persisting every
// mutation via Store.
type Driver struct {
	Agents    AgentRegistry
	Store     Store
	Events    EventSink
	Orch      *orchestrator.Driver
	BinaryBin string // CODING_AGENT_BIN override; "" means auto-discover

	agentStore *agentStore
}

// NewDriver builds a Driver. binaryOverride is passed through to every
// stage spawn; pass "" to let agentproc.DiscoverBinary probe the standard
// install locations.
func NewDriver(agents AgentRegistry, store Store, sink EventSink, orch *orchestrator.Driver, binaryOverride string) *Driver {
	return &Driver{
		Agents:     agents,
		Store:      store,
		Events:     sink,
		Orch:       orch,
		BinaryBin:  binaryOverride,
		agentStore: newAgentStore(),
	}
}

// RunPipeline drives p from ReceivedTask to a terminal state, per spec
// §4.5. It blocks until the pipeline terminates (Completed, Failed, or
// GaveUp) or ctx is cancelled.
func (d *Driver) RunPipeline(ctx context.Context, p *model.Pipeline) error {
	agent := orchestrator.New(
		p.ID, p.WorkingDir,
		orchestrator.BuildSystemPrompt(nil),
		orchestrator.BuildUserRequest(p.UserRequest, p.WorkingDir),
	)
	d.agentStore.put(p.ID, agent)
	defer d.agentStore.release(p.ID)

	for {
		if p.Cancelled {
			return d.fail(ctx, p, pipelineerr.New(pipelineerr.KindCancelled, p.ID, pipelineerr.WithReason("Cancelled")))
		}

		if err := d.runPlanningStage(ctx, p); err != nil {
			return d.fail(ctx, p, err)
		}
		if err := d.runBuildingStage(ctx, p); err != nil {
			return d.fail(ctx, p, err)
		}
		action, err := d.runVerifyingStage(ctx, p)
		if err != nil {
			return d.fail(ctx, p, err)
		}

		switch action.Name {
		case "complete":
			return d.complete(ctx, p)
		case "give_up":
			return d.giveUp(ctx, p, action.Reason)
		case "iterate":
			if done, err := d.advanceIteration(ctx, p); done || err != nil {
				return err
			}
			p.Stage(model.StageBuilding).Status = model.StagePending
			continue
		case "replan":
			if done, err := d.advanceIteration(ctx, p); done || err != nil {
				return err
			}
			p.Stage(model.StagePlanning).Status = model.StagePending
			p.Stage(model.StageBuilding).Status = model.StagePending
			continue
		default:
			return d.fail(ctx, p, fmt.Errorf("pipeline: unexpected terminating action %q", action.Name))
		}
	}
}

// advanceIteration increments the shared iteration counter used by both
// Iterate and Replan (spec §4.5's "increment iteration counter" applies to
// both branches identically) and fails the pipeline with
// IterationLimitExceeded once the ceiling is exceeded. With ceiling N,
// exactly N iterate/replan decisions succeed and the (N+1)-th fails.
func (d *Driver) advanceIteration(ctx context.Context, p *model.Pipeline) (bool, error) {
	p.Iterations++
	if p.Iterations > p.IterationCeiling {
		return true, d.fail(ctx, p, pipelineerr.New(pipelineerr.KindIterationLimitExceeded, p.ID))
	}
	return false, nil
}

func (d *Driver) complete(ctx context.Context, p *model.Pipeline) error {
	p.CurrentState = state.Completed
	p.UpdatedAt = time.Now()
	d.publishState(p, state.VerificationPassed, state.Completed)
	return d.persist(ctx, p)
}

func (d *Driver) giveUp(ctx context.Context, p *model.Pipeline, reason string) error {
	p.CurrentState = state.GaveUp
	p.FailureReason = reason
	p.UpdatedAt = time.Now()
	d.publishState(p, state.VerificationFailed, state.GaveUp)
	return d.persist(ctx, p)
}

func (d *Driver) fail(ctx context.Context, p *model.Pipeline, cause error) error {
	from := p.CurrentState
	p.CurrentState = state.Failed
	if perr, ok := cause.(*pipelineerr.Error); ok && perr.Reason != "" {
		p.FailureReason = perr.Reason
	} else {
		p.FailureReason = cause.Error()
	}
	p.UpdatedAt = time.Now()
	d.publishState(p, from, state.Failed)
	if err := d.persist(ctx, p); err != nil {
		return err
	}
	return cause
}

func (d *Driver) persist(ctx context.Context, p *model.Pipeline) error {
	return d.Store.SavePipeline(ctx, p)
}

func (d *Driver) publishState(p *model.Pipeline, from, to state.PipelineState) {
	if d.Events == nil {
		return
	}
	d.Events.PublishStateChanged(p.ID, events.StateChangedPayload{
		PipelineID: p.ID,
		From:       string(from),
		To:         string(to),
		ChangedAt:  time.Now(),
	})
}

// spawnStage starts a child agent for the named stage, polls it to
// completion on the fixed 2-second cadence from spec §5, persists its run
// record and output events, and returns the finished AgentProcess
// (finishStage builds the text summary from it).
func (d *Driver) spawnStage(ctx context.Context, p *model.Pipeline, stageName model.StageName, prompt string) (*agentproc.AgentProcess, error) {
	stage := p.Stage(stageName)
	now := time.Now()
	stage.Status = model.StageRunning
	stage.StartedAt = &now
	if d.Events != nil {
		d.Events.PublishStageStarted(p.ID, events.StageStartedPayload{
			PipelineID: p.ID,
			Stage:      string(stageName),
			StartedAt:  now,
		})
	}

	ap, err := d.Agents.Spawn(ctx, p.ID, agentproc.SpawnConfig{
		WorkingDir:    p.WorkingDir,
		InitialPrompt: prompt,
		Source:        model.SourcePipeline,
		PipelineID:    p.ID,
		OnEvent: func(e model.AgentOutputEvent) {
			if saveErr := d.Store.AppendOutput(context.Background(), e.AgentID, e); saveErr != nil {
				return
			}
			if d.Events != nil {
				d.Events.PublishAgentOutput(p.ID, events.AgentOutputPayload{
					PipelineID: p.ID,
					AgentID:    e.AgentID,
					EventType:  string(e.Type),
					Content:    e.Content,
					Timestamp:  e.Timestamp,
				})
			}
		},
	}, d.BinaryBin)
	if err != nil {
		stage.Status = model.StageFailed
		return nil, err
	}
	stage.AgentID = ap.ID

	if err := d.Store.SaveRun(ctx, runRecord(p, ap, prompt, now)); err != nil {
		stage.Status = model.StageFailed
		return ap, fmt.Errorf("pipeline: save run record: %w", err)
	}

	waitErr := d.waitForCompletion(ctx, ap)
	if saveErr := d.Store.SaveRun(ctx, runRecord(p, ap, prompt, now)); saveErr != nil && waitErr == nil {
		waitErr = fmt.Errorf("pipeline: save run record: %w", saveErr)
	}
	if waitErr != nil {
		stage.Status = model.StageFailed
		return ap, waitErr
	}
	return ap, nil
}

// runRecord builds the RunRecord for ap's current state, per spec §3's
// invariant that a run record is inserted when an agent is spawned and its
// status is monotonically advanced thereafter (Running →
// {Completed|Stopped|Crashed|WaitingInput}).
func runRecord(p *model.Pipeline, ap *agentproc.AgentProcess, prompt string, startedAt time.Time) *model.RunRecord {
	stats := ap.Stats()
	perModel := make([]model.ModelUsage, 0, len(stats.PerModelUsage))
	for name, usage := range stats.PerModelUsage {
		u := *usage
		u.Model = name
		perModel = append(perModel, u)
	}

	status := ap.Status()
	now := time.Now()
	var endedAt *time.Time
	if status != model.RunRunning {
		endedAt = &now
	}

	return &model.RunRecord{
		AgentID:          ap.ID,
		SessionID:        ap.SessionID(),
		WorkingDir:       ap.WorkingDir,
		Source:           ap.Source,
		Status:           status,
		StartedAt:        startedAt,
		EndedAt:          endedAt,
		LastActivity:     now,
		InitialPrompt:    prompt,
		PipelineID:       p.ID,
		TotalPrompts:     stats.TotalPrompts,
		TotalToolCalls:   stats.TotalToolCalls,
		TotalOutputBytes: stats.TotalOutputBytes,
		TotalTokensUsed:  stats.TotalTokensUsed,
		TotalCostUSD:     stats.TotalCostUSD,
		PerModelUsage:    perModel,
	}
}

// waitForCompletion polls ap's status every completionPollInterval until it
// leaves RunRunning, or ctx is cancelled.
func (d *Driver) waitForCompletion(ctx context.Context, ap *agentproc.AgentProcess) error {
	ticker := time.NewTicker(completionPollInterval)
	defer ticker.Stop()
	for {
		status, err := d.Agents.Status(ap.ID)
		if err != nil {
			return err
		}
		if status != model.RunRunning {
			if d.Events != nil {
				d.Events.PublishAgentTerminal(ap.PipelineID, events.AgentTerminalPayload{
					PipelineID: ap.PipelineID,
					AgentID:    ap.ID,
					Status:     string(status),
				})
			}
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (d *Driver) finishStage(ctx context.Context, p *model.Pipeline, stageName model.StageName, ap *agentproc.AgentProcess) string {
	stage := p.Stage(stageName)
	summary := summarize(ap)
	endedAt := time.Now()
	stage.Status = model.StageCompleted
	stage.EndedAt = &endedAt
	stage.Output = &model.StepOutput{
		RawText: summary,
		Events:  ap.OutputBuffer(),
	}
	var parsed any
	if json.Unmarshal([]byte(summary), &parsed) == nil {
		stage.Output.ParsedJSON = parsed
	}
	if d.Events != nil {
		d.Events.PublishStageCompleted(p.ID, events.StageCompletedPayload{
			PipelineID: p.ID,
			Stage:      string(stageName),
			Status:     string(stage.Status),
			EndedAt:    endedAt,
		})
	}
	return summary
}
