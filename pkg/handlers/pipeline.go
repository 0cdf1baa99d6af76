package handlers

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/saplens-io/saplens-engine/pkg/apperrors"
	"github.com/saplens-io/saplens-engine/pkg/services"
)

// PipelineHandler exposes the full ingestion pipeline.
type PipelineHandler struct {
	pipeline services.PipelineService
	logger   *zap.Logger
}

// NewPipelineHandler creates a new PipelineHandler.
func NewPipelineHandler(pipeline services.PipelineService, logger *zap.Logger) *PipelineHandler {
	return &PipelineHandler{pipeline: pipeline, logger: logger}
}

// RegisterRoutes registers the pipeline handler's routes on the given mux.
func (h *PipelineHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/ai-pipeline/run", h.Run)
	mux.HandleFunc("GET /api/ai-pipeline/status", h.Status)
}

// Run handles POST /api/ai-pipeline/run
// Executes the full chain synchronously and returns the stage results.
func (h *PipelineHandler) Run(w http.ResponseWriter, r *http.Request) {
	result, err := h.pipeline.Run(r.Context())
	if err != nil {
		if errors.Is(err, apperrors.ErrConflict) {
			if err := ErrorResponse(w, http.StatusConflict, "pipeline_running", "A pipeline run is already in progress"); err != nil {
				h.logger.Error("Failed to write error response", zap.Error(err))
			}
			return
		}
		h.logger.Error("Pipeline run failed", zap.Error(err))
		if writeErr := ErrorResponse(w, http.StatusBadGateway, "pipeline_failed", err.Error()); writeErr != nil {
			h.logger.Error("Failed to write error response", zap.Error(writeErr))
		}
		return
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: result}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Status handles GET /api/ai-pipeline/status
// Returns the latest run's state; 404 before the first run.
func (h *PipelineHandler) Status(w http.ResponseWriter, r *http.Request) {
	status := h.pipeline.Status()
	if status == nil {
		if err := ErrorResponse(w, http.StatusNotFound, "no_pipeline_run", "The pipeline has not run yet"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: status}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}
