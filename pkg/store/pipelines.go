package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/autopipe/engine/pkg/model"
	"github.com/autopipe/engine/pkg/pipelineerr"
	"github.com/autopipe/engine/pkg/state"
)

// SavePipeline upserts a Pipeline and its stage records in a single
// transaction, per the Pipeline invariant that stage records are never
// persisted independently of their owning pipeline.
func (c *Client) SavePipeline(ctx context.Context, p *model.Pipeline) error {
	tx, err := c.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO pipelines (id, user_request, working_dir, current_state, iterations,
			iteration_ceiling, planning_replans, failure_reason, cancelled, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		ON CONFLICT (id) DO UPDATE SET
			current_state = EXCLUDED.current_state,
			iterations = EXCLUDED.iterations,
			iteration_ceiling = EXCLUDED.iteration_ceiling,
			planning_replans = EXCLUDED.planning_replans,
			failure_reason = EXCLUDED.failure_reason,
			cancelled = EXCLUDED.cancelled,
			updated_at = EXCLUDED.updated_at`,
		p.ID, p.UserRequest, p.WorkingDir, string(p.CurrentState), p.Iterations,
		p.IterationCeiling, p.PlanningReplans, nullableString(p.FailureReason), p.Cancelled,
		p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert pipeline: %w", err)
	}

	for _, stage := range p.Stages {
		outputJSON, err := json.Marshal(stage.Output)
		if err != nil {
			return fmt.Errorf("marshal stage output: %w", err)
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO stage_records (pipeline_id, name, status, output, agent_id, started_at, ended_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7)
			ON CONFLICT (pipeline_id, name) DO UPDATE SET
				status = EXCLUDED.status,
				output = EXCLUDED.output,
				agent_id = EXCLUDED.agent_id,
				started_at = EXCLUDED.started_at,
				ended_at = EXCLUDED.ended_at`,
			p.ID, string(stage.Name), string(stage.Status), outputJSON,
			nullableString(stage.AgentID), stage.StartedAt, stage.EndedAt,
		)
		if err != nil {
			return fmt.Errorf("upsert stage %s: %w", stage.Name, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// GetPipeline loads a Pipeline and its stage records by id.
func (c *Client) GetPipeline(ctx context.Context, id string) (*model.Pipeline, error) {
	row := c.pool.QueryRow(ctx, `
		SELECT id, user_request, working_dir, current_state, iterations,
			iteration_ceiling, planning_replans, failure_reason, cancelled, created_at, updated_at
		FROM pipelines WHERE id = $1`, id)

	p := &model.Pipeline{}
	var currentState string
	var failureReason *string
	if err := row.Scan(&p.ID, &p.UserRequest, &p.WorkingDir, &currentState, &p.Iterations,
		&p.IterationCeiling, &p.PlanningReplans, &failureReason, &p.Cancelled, &p.CreatedAt, &p.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, pipelineerr.New(pipelineerr.KindNotFound, id)
		}
		return nil, fmt.Errorf("scan pipeline: %w", err)
	}
	p.CurrentState = state.PipelineState(currentState)
	if failureReason != nil {
		p.FailureReason = *failureReason
	}

	rows, err := c.pool.Query(ctx, `
		SELECT name, status, output, agent_id, started_at, ended_at
		FROM stage_records WHERE pipeline_id = $1 ORDER BY id`, id)
	if err != nil {
		return nil, fmt.Errorf("query stage records: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		sr := &model.StageRecord{}
		var name, status string
		var agentID *string
		var outputJSON []byte
		if err := rows.Scan(&name, &status, &outputJSON, &agentID, &sr.StartedAt, &sr.EndedAt); err != nil {
			return nil, fmt.Errorf("scan stage record: %w", err)
		}
		sr.Name = model.StageName(name)
		sr.Status = model.StageStatus(status)
		if agentID != nil {
			sr.AgentID = *agentID
		}
		if len(outputJSON) > 0 && string(outputJSON) != "null" {
			sr.Output = &model.StepOutput{}
			if err := json.Unmarshal(outputJSON, sr.Output); err != nil {
				return nil, fmt.Errorf("unmarshal stage output: %w", err)
			}
		}
		p.Stages = append(p.Stages, sr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stage records: %w", err)
	}

	return p, nil
}

// ListPipelines returns summary-level pipeline records (without stage
// records) ordered newest first. pkg/api serves no listing route.
func (c *Client) ListPipelines(ctx context.Context, limit int) ([]*model.Pipeline, error) {
	rows, err := c.pool.Query(ctx, `
		SELECT id, user_request, working_dir, current_state, iterations,
			iteration_ceiling, planning_replans, failure_reason, cancelled, created_at, updated_at
		FROM pipelines ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query pipelines: %w", err)
	}
	defer rows.Close()

	var out []*model.Pipeline
	for rows.Next() {
		p := &model.Pipeline{}
		var currentState string
		var failureReason *string
		if err := rows.Scan(&p.ID, &p.UserRequest, &p.WorkingDir, &currentState, &p.Iterations,
			&p.IterationCeiling, &p.PlanningReplans, &failureReason, &p.Cancelled, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan pipeline: %w", err)
		}
		p.CurrentState = state.PipelineState(currentState)
		if failureReason != nil {
			p.FailureReason = *failureReason
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pipelines: %w", err)
	}
	return out, nil
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
