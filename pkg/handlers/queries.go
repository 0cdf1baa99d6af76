package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/saplens-io/saplens-engine/pkg/apperrors"
	"github.com/saplens-io/saplens-engine/pkg/models"
	"github.com/saplens-io/saplens-engine/pkg/services"
)

// --- Request Types ---

// GenerateQueryRequest carries the natural-language question.
type GenerateQueryRequest struct {
	Question string `json:"question"`
}

// ExecuteQueryRequest names a previously generated query.
type ExecuteQueryRequest struct {
	QueryID uuid.UUID `json:"query_id"`
}

// ValidateQueryRequest carries raw SQL to check against the ground truth.
type ValidateQueryRequest struct {
	SQL string `json:"sql"`
}

// QueryHandler handles query generation, validation, and execution requests.
type QueryHandler struct {
	queryService      services.QueryService
	validationService services.ValidationService
	groundTruth       services.GroundTruthService
	logger            *zap.Logger
}

// NewQueryHandler creates a new QueryHandler.
func NewQueryHandler(
	queryService services.QueryService,
	validationService services.ValidationService,
	groundTruth services.GroundTruthService,
	logger *zap.Logger,
) *QueryHandler {
	return &QueryHandler{
		queryService:      queryService,
		validationService: validationService,
		groundTruth:       groundTruth,
		logger:            logger,
	}
}

// RegisterRoutes registers the query handler's routes on the given mux.
func (h *QueryHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/query/generate", h.Generate)
	mux.HandleFunc("POST /api/query/execute", h.Execute)
	mux.HandleFunc("POST /api/query/validate", h.Validate)
	mux.HandleFunc("GET /api/query/history", h.History)
}

// Generate handles POST /api/query/generate
// Turns a natural-language question into validated SQL.
func (h *QueryHandler) Generate(w http.ResponseWriter, r *http.Request) {
	var req GenerateQueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_request", "Invalid request body"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		if err := ErrorResponse(w, http.StatusBadRequest, "missing_question", "question is required"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	result, err := h.queryService.Generate(r.Context(), req.Question)
	if err != nil {
		if errors.Is(err, apperrors.ErrNoGroundTruth) {
			if err := ErrorResponse(w, http.StatusConflict, "no_ground_truth", "No ground truth graph available; run the pipeline first"); err != nil {
				h.logger.Error("Failed to write error response", zap.Error(err))
			}
			return
		}
		h.logger.Error("Query generation failed", zap.Error(err))
		if err := ErrorResponse(w, http.StatusBadGateway, "generate_failed", "Failed to generate query"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: result}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Execute handles POST /api/query/execute
// Runs a previously generated, valid query read-only against the SAP source.
func (h *QueryHandler) Execute(w http.ResponseWriter, r *http.Request) {
	var req ExecuteQueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.QueryID == uuid.Nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_request", "query_id is required"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	result, err := h.queryService.Execute(r.Context(), req.QueryID)
	if err != nil {
		switch {
		case errors.Is(err, apperrors.ErrNotFound):
			if err := ErrorResponse(w, http.StatusNotFound, "query_not_found", "Generated query not found"); err != nil {
				h.logger.Error("Failed to write error response", zap.Error(err))
			}
		case errors.Is(err, apperrors.ErrQueryNotAllowed):
			if err := ErrorResponse(w, http.StatusForbidden, "query_not_allowed", err.Error()); err != nil {
				h.logger.Error("Failed to write error response", zap.Error(err))
			}
		default:
			h.logger.Error("Query execution failed",
				zap.String("query_id", req.QueryID.String()), zap.Error(err))
			if err := ErrorResponse(w, http.StatusBadGateway, "execute_failed", "Failed to execute query"); err != nil {
				h.logger.Error("Failed to write error response", zap.Error(err))
			}
		}
		return
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: result}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Validate handles POST /api/query/validate
// Checks arbitrary SQL against the current ground truth graph.
func (h *QueryHandler) Validate(w http.ResponseWriter, r *http.Request) {
	var req ValidateQueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.SQL) == "" {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_request", "sql is required"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	// Without a ground truth the validator still runs its statement checks
	// and flags the missing graph in the report.
	var graph *models.GroundTruthGraph
	gt, err := h.groundTruth.Current(r.Context())
	switch {
	case err == nil:
		graph = &gt.Graph
	case errors.Is(err, apperrors.ErrNoGroundTruth):
	default:
		h.logger.Error("Failed to load ground truth", zap.Error(err))
		if err := ErrorResponse(w, http.StatusInternalServerError, "get_ground_truth_failed", "Failed to load ground truth"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	report := h.validationService.Validate(req.SQL, graph)
	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: report}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// History handles GET /api/query/history
// Returns recent generations, newest first. ?limit=N caps the page size.
func (h *QueryHandler) History(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			if err := ErrorResponse(w, http.StatusBadRequest, "invalid_limit", "limit must be a positive integer"); err != nil {
				h.logger.Error("Failed to write error response", zap.Error(err))
			}
			return
		}
		limit = parsed
	}

	queries, err := h.queryService.History(r.Context(), limit)
	if err != nil {
		h.logger.Error("Failed to load query history", zap.Error(err))
		if err := ErrorResponse(w, http.StatusInternalServerError, "history_failed", "Failed to load query history"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: queries}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}
