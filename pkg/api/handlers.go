package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/autopipe/engine/pkg/model"
)

// getPipelineHandler handles GET /api/v1/pipelines/:id: a read-only
// introspection view of status, current state, and iteration count. There
// is no corresponding submit or cancel route — those stay a Go-native call
// into pkg/pipeline from cmd/autopipe.
func (s *Server) getPipelineHandler(c *gin.Context) {
	id := c.Param("id")

	if running := s.runningPipeline(id); running != nil {
		c.JSON(http.StatusOK, toPipelineResponse(running))
		return
	}

	p, err := s.store.GetPipeline(c.Request.Context(), id)
	if err != nil {
		status, msg := mapPipelineError(err)
		c.JSON(status, gin.H{"error": msg})
		return
	}
	c.JSON(http.StatusOK, toPipelineResponse(p))
}

func toPipelineResponse(p *model.Pipeline) PipelineResponse {
	stages := make([]StageResponse, len(p.Stages))
	for i, st := range p.Stages {
		stages[i] = StageResponse{
			Name:      string(st.Name),
			Status:    string(st.Status),
			AgentID:   st.AgentID,
			StartedAt: st.StartedAt,
			EndedAt:   st.EndedAt,
		}
	}
	return PipelineResponse{
		ID:               p.ID,
		UserRequest:      p.UserRequest,
		WorkingDir:       p.WorkingDir,
		CurrentState:     string(p.CurrentState),
		Iterations:       p.Iterations,
		IterationCeiling: p.IterationCeiling,
		PlanningReplans:  p.PlanningReplans,
		FailureReason:    p.FailureReason,
		Cancelled:        p.Cancelled,
		CreatedAt:        p.CreatedAt,
		UpdatedAt:        p.UpdatedAt,
		Stages:           stages,
	}
}
