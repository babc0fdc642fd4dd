package api

import "time"

// PipelineResponse is returned by GET /api/v1/pipelines/:id.
type PipelineResponse struct {
	ID               string          `json:"id"`
	UserRequest      string          `json:"user_request"`
	WorkingDir       string          `json:"working_dir"`
	CurrentState     string          `json:"current_state"`
	Iterations       int             `json:"iterations"`
	IterationCeiling int             `json:"iteration_ceiling"`
	PlanningReplans  int             `json:"planning_replans"`
	FailureReason    string          `json:"failure_reason,omitempty"`
	Cancelled        bool            `json:"cancelled"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
	Stages           []StageResponse `json:"stages,omitempty"`
}

// StageResponse summarizes one of the pipeline's three fixed stage records.
type StageResponse struct {
	Name      string     `json:"name"`
	Status    string     `json:"status"`
	AgentID   string     `json:"agent_id,omitempty"`
	StartedAt *time.Time `json:"started_at,omitempty"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status  string                 `json:"status"`
	Version string                 `json:"version"`
	Checks  map[string]HealthCheck `json:"checks"`
}

// HealthCheck represents the status of a single health check component.
type HealthCheck struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}
