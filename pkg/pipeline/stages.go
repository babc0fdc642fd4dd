package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/autopipe/engine/pkg/model"
	"github.com/autopipe/engine/pkg/orchestrator"
	"github.com/autopipe/engine/pkg/state"
)

// runPlanningStage drives the orchestrator agent until it reaches Planning,
// spawns the planning child agent, waits for it, attaches its output, then
// keeps driving until approve_plan — per spec §4.5.
//
// Reaching Planning is not always a single start_planning call: a replan
// from PlanReady lands in PlanRevisionRequired first (the only legal
// single-hop target from there — see the pkg/tools replanCandidates
// comment), and a second replan call is what actually returns to Planning.
// driveToPlanning accepts either tool as progress and only stops once the
// agent's state is actually Planning, so a plan revision re-spawns the
// planning child the same way the initial draft did.
//
// approve_plan is only legal once the agent has left Planning for
// PlanReady — no tool in the catalog produces PlanReady, so this loop sets
// it itself,
// exactly where spec §4.5 says the planning child's draft is attached to
// the conversation, before handing control back to RunUntilAction.
func (d *Driver) runPlanningStage(ctx context.Context, p *model.Pipeline) error {
	stage := p.Stage(model.StagePlanning)
	if stage.Status == model.StageCompleted {
		return nil
	}

	agent, err := d.agentStore.take(p.ID)
	if err != nil {
		return err
	}
	defer d.agentStore.restore(p.ID)

	for {
		if err := d.driveToPlanning(ctx, agent); err != nil {
			return err
		}

		ap, err := d.spawnStage(ctx, p, model.StagePlanning, planningPrompt(p, agent))
		if err != nil {
			return err
		}
		summary := d.finishStage(ctx, p, model.StagePlanning, ap)
		agent.SetPlan(summary)
		agent.SetState(state.PlanReady)
		agent.AppendUserMessage("Planning agent completed. Output:\n\n" + summary + "\n\nCall approve_plan if this plan is acceptable, or replan if it needs revision.")

		action, err := d.Orch.RunUntilAction(ctx, agent)
		if err != nil {
			return err
		}
		switch action.Name {
		case "approve_plan":
			return d.persist(ctx, p)
		case "replan":
			agent.AppendUserMessage("Understood — the plan needs revision.")
			continue
		default:
			return fmt.Errorf("pipeline: unexpected action %q while awaiting plan approval", action.Name)
		}
	}
}

// driveToPlanning runs the orchestrator until the agent's state is
// Planning, accepting either start_planning (from the analysis phase) or
// replan (from PlanReady/PlanRevisionRequired) as the tool that gets it
// there — replan may need to be called twice in a row to land on Planning,
// per the candidate-transition resolution in pkg/tools.
func (d *Driver) driveToPlanning(ctx context.Context, agent *orchestrator.Agent) error {
	for agent.State() != state.Planning {
		action, err := d.Orch.RunUntilAction(ctx, agent)
		if err != nil {
			return err
		}
		if action.Name != "start_planning" && action.Name != "replan" {
			return fmt.Errorf("pipeline: unexpected action %q while driving toward Planning", action.Name)
		}
	}
	return nil
}

// runBuildingStage drives the orchestrator agent until it calls
// start_execution, spawns the build child agent, waits for it, and attaches
// its output. Building does not loop further within this call — the
// verifying stage is what decides whether the implementation is acceptable.
func (d *Driver) runBuildingStage(ctx context.Context, p *model.Pipeline) error {
	stage := p.Stage(model.StageBuilding)
	if stage.Status == model.StageCompleted {
		return nil
	}

	agent, err := d.agentStore.take(p.ID)
	if err != nil {
		return err
	}
	defer d.agentStore.restore(p.ID)

	agent.AppendUserMessage("Plan approved; call start_execution.")

	action, err := d.Orch.RunUntilAction(ctx, agent)
	if err != nil {
		return err
	}
	if action.Name != "start_execution" {
		return fmt.Errorf("pipeline: expected start_execution, got %q", action.Name)
	}

	ap, err := d.spawnStage(ctx, p, model.StageBuilding, buildingPrompt(p, agent))
	if err != nil {
		return err
	}
	summary := d.finishStage(ctx, p, model.StageBuilding, ap)
	agent.SetImplementationSummary(summary)

	return d.persist(ctx, p)
}

// runVerifyingStage stops the build agent, drives the orchestrator agent
// until it calls start_verification, spawns the verify child agent, waits
// for it, attaches its output, then keeps driving until one of
// complete/iterate/replan/give_up — returning that decision to the caller.
//
// complete is only legal from VerificationPassed, replan/give_up are only
// legal from VerificationFailed, and iterate is legal from either — neither
// state is
// produced by any tool, so this is where the verify child's outcome is
// turned into one of them, before the orchestrator is asked to decide.
func (d *Driver) runVerifyingStage(ctx context.Context, p *model.Pipeline) (orchestrator.Action, error) {
	stage := p.Stage(model.StageVerifying)

	if buildStage := p.Stage(model.StageBuilding); buildStage.AgentID != "" {
		d.Agents.Stop(buildStage.AgentID)
	}

	agent, err := d.agentStore.take(p.ID)
	if err != nil {
		return orchestrator.Action{}, err
	}
	defer d.agentStore.restore(p.ID)

	agent.AppendUserMessage("Implementation complete; call start_verification.")

	action, err := d.Orch.RunUntilAction(ctx, agent)
	if err != nil {
		return orchestrator.Action{}, err
	}
	if action.Name != "start_verification" {
		return orchestrator.Action{}, fmt.Errorf("pipeline: expected start_verification, got %q", action.Name)
	}

	stage.Status = model.StageRunning
	ap, err := d.spawnStage(ctx, p, model.StageVerifying, verifyingPrompt(p, agent))
	if err != nil {
		return orchestrator.Action{}, err
	}
	summary := d.finishStage(ctx, p, model.StageVerifying, ap)

	if verificationPassed(summary) {
		agent.SetState(state.VerificationPassed)
		agent.AppendUserMessage("Verification agent completed and reported success. Output:\n\n" + summary + "\n\nCall complete, or iterate if further polish is warranted.")
	} else {
		agent.SetState(state.VerificationFailed)
		agent.AppendUserMessage("Verification agent completed and reported failure. Output:\n\n" + summary + "\n\nDecide: iterate, replan, or give_up.")
	}

	decisionCtx, cancel := context.WithTimeout(ctx, verificationTimeout)
	defer cancel()
	return d.Orch.RunUntilAction(decisionCtx, agent)
}

// verificationPassed makes the pass/fail call from the verify child's
// summarized output. The coding CLIs this wraps report their own result
// text freely rather than a structured verdict, so this looks for an
// explicit failure marker and otherwise treats a clean run as a pass — a
// judgment call recorded in DESIGN.md rather than something the spec
// dictates a mechanism for.
func verificationPassed(summary string) bool {
	lower := strings.ToLower(summary)
	for _, marker := range []string{"verification failed", "verification: fail", "fail: ", "tests failed", "build failed"} {
		if strings.Contains(lower, marker) {
			return false
		}
	}
	return true
}

func planningPrompt(p *model.Pipeline, agent *orchestrator.Agent) string {
	return fmt.Sprintf(
		"Produce an implementation plan for the following task. Do not write code yet.\n\nWorking directory: %s\n\nTask:\n%s",
		p.WorkingDir, p.UserRequest,
	)
}

func buildingPrompt(p *model.Pipeline, agent *orchestrator.Agent) string {
	return fmt.Sprintf(
		"Implement the following plan in %s.\n\nPlan:\n%s",
		p.WorkingDir, agent.Plan(),
	)
}

func verifyingPrompt(p *model.Pipeline, agent *orchestrator.Agent) string {
	return fmt.Sprintf(
		"Verify the implementation in %s against the plan below. Run the project's build, test, and lint commands and report pass/fail with details.\n\nPlan:\n%s\n\nImplementation summary:\n%s",
		p.WorkingDir, agent.Plan(), agent.ImplementationSummary(),
	)
}
