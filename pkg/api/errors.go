package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/autopipe/engine/pkg/pipelineerr"
)

// mapPipelineError maps pipeline-core errors to an HTTP status and message.
func mapPipelineError(err error) (int, string) {
	var perr *pipelineerr.Error
	if errors.As(err, &perr) {
		switch perr.Kind {
		case pipelineerr.KindNotFound:
			return http.StatusNotFound, "pipeline not found"
		case pipelineerr.KindBadTransition, pipelineerr.KindBadToolUsage:
			return http.StatusConflict, perr.Error()
		case pipelineerr.KindCancelled, pipelineerr.KindIterationLimitExceeded, pipelineerr.KindLoopExhausted:
			return http.StatusUnprocessableEntity, perr.Error()
		}
	}

	slog.Error("unexpected pipeline error", "error", err)
	return http.StatusInternalServerError, "internal server error"
}
