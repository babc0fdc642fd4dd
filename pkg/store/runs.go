package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/autopipe/engine/pkg/model"
	"github.com/autopipe/engine/pkg/pipelineerr"
)

// SaveRun upserts a RunRecord. pkg/pipeline calls it on spawn (insert) and
// once more after the child agent process leaves Running (update).
func (c *Client) SaveRun(ctx context.Context, r *model.RunRecord) error {
	perModelJSON, err := json.Marshal(r.PerModelUsage)
	if err != nil {
		return fmt.Errorf("marshal per-model usage: %w", err)
	}
	resumeJSON, err := json.Marshal(r.ResumePayload)
	if err != nil {
		return fmt.Errorf("marshal resume payload: %w", err)
	}

	_, err = c.pool.Exec(ctx, `
		INSERT INTO agent_runs (agent_id, session_id, working_dir, source, status, initial_prompt,
			error_message, pipeline_id, total_prompts, total_tool_calls, total_output_bytes,
			total_tokens_used, total_cost_usd, per_model_usage, resumable, resume_payload,
			started_at, ended_at, last_activity)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)
		ON CONFLICT (agent_id) DO UPDATE SET
			session_id = EXCLUDED.session_id,
			status = EXCLUDED.status,
			error_message = EXCLUDED.error_message,
			total_prompts = EXCLUDED.total_prompts,
			total_tool_calls = EXCLUDED.total_tool_calls,
			total_output_bytes = EXCLUDED.total_output_bytes,
			total_tokens_used = EXCLUDED.total_tokens_used,
			total_cost_usd = EXCLUDED.total_cost_usd,
			per_model_usage = EXCLUDED.per_model_usage,
			resumable = EXCLUDED.resumable,
			resume_payload = EXCLUDED.resume_payload,
			ended_at = EXCLUDED.ended_at,
			last_activity = EXCLUDED.last_activity`,
		r.AgentID, nullableString(r.SessionID), r.WorkingDir, string(r.Source), string(r.Status),
		r.InitialPrompt, nullableString(r.ErrorMessage), nullableString(r.PipelineID),
		r.TotalPrompts, r.TotalToolCalls, r.TotalOutputBytes, r.TotalTokensUsed, r.TotalCostUSD,
		perModelJSON, r.Resumable, resumeJSON, r.StartedAt, r.EndedAt, r.LastActivity,
	)
	if err != nil {
		return fmt.Errorf("upsert agent run: %w", err)
	}
	return nil
}

// GetRun loads a RunRecord by agent id.
func (c *Client) GetRun(ctx context.Context, agentID string) (*model.RunRecord, error) {
	row := c.pool.QueryRow(ctx, `
		SELECT agent_id, session_id, working_dir, source, status, initial_prompt, error_message,
			pipeline_id, total_prompts, total_tool_calls, total_output_bytes, total_tokens_used,
			total_cost_usd, per_model_usage, resumable, resume_payload, started_at, ended_at, last_activity
		FROM agent_runs WHERE agent_id = $1`, agentID)

	r := &model.RunRecord{}
	var sessionID, errMsg, pipelineID *string
	var source, status string
	var perModelJSON, resumeJSON []byte
	if err := row.Scan(&r.AgentID, &sessionID, &r.WorkingDir, &source, &status, &r.InitialPrompt,
		&errMsg, &pipelineID, &r.TotalPrompts, &r.TotalToolCalls, &r.TotalOutputBytes,
		&r.TotalTokensUsed, &r.TotalCostUSD, &perModelJSON, &r.Resumable, &resumeJSON,
		&r.StartedAt, &r.EndedAt, &r.LastActivity); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: agent %s", pipelineerr.ErrNotFound, agentID)
		}
		return nil, fmt.Errorf("scan agent run: %w", err)
	}
	r.Source = model.SourceCategory(source)
	r.Status = model.RunStatus(status)
	if sessionID != nil {
		r.SessionID = *sessionID
	}
	if errMsg != nil {
		r.ErrorMessage = *errMsg
	}
	if pipelineID != nil {
		r.PipelineID = *pipelineID
	}
	if len(perModelJSON) > 0 {
		if err := json.Unmarshal(perModelJSON, &r.PerModelUsage); err != nil {
			return nil, fmt.Errorf("unmarshal per-model usage: %w", err)
		}
	}
	if len(resumeJSON) > 0 && string(resumeJSON) != "null" {
		if err := json.Unmarshal(resumeJSON, &r.ResumePayload); err != nil {
			return nil, fmt.Errorf("unmarshal resume payload: %w", err)
		}
	}
	return r, nil
}

// AppendOutput persists a single classified agent output event.
func (c *Client) AppendOutput(ctx context.Context, agentID string, e model.AgentOutputEvent) error {
	parsedJSON, err := json.Marshal(e.ParsedJSON)
	if err != nil {
		return fmt.Errorf("marshal parsed output: %w", err)
	}
	_, err = c.pool.Exec(ctx, `
		INSERT INTO agent_outputs (agent_id, event_type, content, parsed_json, session_id, uuid,
			parent_tool_use_id, subtype, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		agentID, string(e.Type), e.Content, parsedJSON, nullableString(e.SessionID),
		nullableString(e.UUID), nullableString(e.ParentToolUseID), nullableString(e.Subtype), e.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert agent output: %w", err)
	}
	return nil
}
