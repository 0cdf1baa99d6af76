package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/saplens-io/saplens-engine/pkg/adapters/sapdb"
	"github.com/saplens-io/saplens-engine/pkg/apperrors"
	"github.com/saplens-io/saplens-engine/pkg/models"
	"github.com/saplens-io/saplens-engine/pkg/services"
)

// --- Request Types ---

// TableStageRequest selects which tables a single AI stage runs over.
// An empty list means every known SAP table.
type TableStageRequest struct {
	Tables []string `json:"tables,omitempty"`
}

// --- Response Types ---

// SummarizeSchemaResponse lists the summaries written by one run.
type SummarizeSchemaResponse struct {
	Summaries []*models.SchemaSummary `json:"summaries"`
	Failed    []string                `json:"failed,omitempty"`
}

// AnalyzeColumnsResponse lists per-table column analysis results.
type AnalyzeColumnsResponse struct {
	Columns []*models.ColumnMetadata `json:"columns"`
	Failed  []string                 `json:"failed,omitempty"`
}

// InferRelationshipsResponse lists the rebuilt relationship set.
type InferRelationshipsResponse struct {
	Relationships []*models.TableRelationship `json:"relationships"`
	TotalCount    int                         `json:"total_count"`
}

// AIHandler exposes the individual AI stages plus the ground truth graph.
// The pipeline endpoints run the whole chain; these run one stage at a time.
type AIHandler struct {
	extractor     sapdb.Extractor
	summaries     services.SchemaSummaryService
	columns       services.ColumnAnalysisService
	relationships services.RelationshipService
	groundTruth   services.GroundTruthService
	logger        *zap.Logger
}

// NewAIHandler creates a new AIHandler.
func NewAIHandler(
	extractor sapdb.Extractor,
	summaries services.SchemaSummaryService,
	columns services.ColumnAnalysisService,
	relationships services.RelationshipService,
	groundTruth services.GroundTruthService,
	logger *zap.Logger,
) *AIHandler {
	return &AIHandler{
		extractor:     extractor,
		summaries:     summaries,
		columns:       columns,
		relationships: relationships,
		groundTruth:   groundTruth,
		logger:        logger,
	}
}

// RegisterRoutes registers the AI stage routes on the given mux.
func (h *AIHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/ai/summarize-schema", h.SummarizeSchema)
	mux.HandleFunc("POST /api/ai/analyze-columns", h.AnalyzeColumns)
	mux.HandleFunc("POST /api/ai/infer-relationships", h.InferRelationships)
	mux.HandleFunc("GET /api/ai/ground-truth", h.GetGroundTruth)
	mux.HandleFunc("POST /api/ai/ground-truth/rebuild", h.RebuildGroundTruth)
}

// SummarizeSchema handles POST /api/ai/summarize-schema
// Extracts the requested tables and writes an LLM summary for each.
func (h *AIHandler) SummarizeSchema(w http.ResponseWriter, r *http.Request) {
	tables, ok := h.resolveTables(w, r)
	if !ok {
		return
	}

	response := SummarizeSchemaResponse{Summaries: []*models.SchemaSummary{}}
	for _, table := range tables {
		extract, err := h.extractor.ExtractTable(r.Context(), table)
		if err != nil {
			h.logger.Error("Failed to extract table for summarization",
				zap.String("table", table), zap.Error(err))
			response.Failed = append(response.Failed, fmt.Sprintf("%s: %v", table, err))
			continue
		}
		summary, err := h.summaries.Summarize(r.Context(), extract)
		if err != nil {
			h.logger.Error("Failed to summarize table",
				zap.String("table", table), zap.Error(err))
			response.Failed = append(response.Failed, fmt.Sprintf("%s: %v", table, err))
			continue
		}
		response.Summaries = append(response.Summaries, summary)
	}

	if len(response.Summaries) == 0 {
		if err := ErrorResponse(w, http.StatusBadGateway, "summarize_failed", "No table could be summarized"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: response}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// AnalyzeColumns handles POST /api/ai/analyze-columns
// Extracts the requested tables and runs column analysis per table.
func (h *AIHandler) AnalyzeColumns(w http.ResponseWriter, r *http.Request) {
	tables, ok := h.resolveTables(w, r)
	if !ok {
		return
	}

	response := AnalyzeColumnsResponse{Columns: []*models.ColumnMetadata{}}
	for _, table := range tables {
		extract, err := h.extractor.ExtractTable(r.Context(), table)
		if err != nil {
			h.logger.Error("Failed to extract table for column analysis",
				zap.String("table", table), zap.Error(err))
			response.Failed = append(response.Failed, fmt.Sprintf("%s: %v", table, err))
			continue
		}
		columns, err := h.columns.AnalyzeTable(r.Context(), extract)
		if err != nil {
			h.logger.Error("Failed to analyze columns",
				zap.String("table", table), zap.Error(err))
			response.Failed = append(response.Failed, fmt.Sprintf("%s: %v", table, err))
			continue
		}
		response.Columns = append(response.Columns, columns...)
	}

	if len(response.Columns) == 0 {
		if err := ErrorResponse(w, http.StatusBadGateway, "analyze_columns_failed", "No table could be analyzed"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: response}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// InferRelationships handles POST /api/ai/infer-relationships
// Extracts the requested tables and rebuilds the relationship set.
func (h *AIHandler) InferRelationships(w http.ResponseWriter, r *http.Request) {
	tables, ok := h.resolveTables(w, r)
	if !ok {
		return
	}

	var extracts []*sapdb.TableExtract
	for _, table := range tables {
		extract, err := h.extractor.ExtractTable(r.Context(), table)
		if err != nil {
			h.logger.Error("Failed to extract table for relationship inference",
				zap.String("table", table), zap.Error(err))
			continue
		}
		extracts = append(extracts, extract)
	}

	relationships, err := h.relationships.Infer(r.Context(), extracts)
	if err != nil {
		h.logger.Error("Relationship inference failed", zap.Error(err))
		if err := ErrorResponse(w, http.StatusBadGateway, "infer_relationships_failed", "Relationship inference failed"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	data := InferRelationshipsResponse{Relationships: relationships, TotalCount: len(relationships)}
	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: data}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// GetGroundTruth handles GET /api/ai/ground-truth
// Returns the current graph, or a specific one via ?version=N.
func (h *AIHandler) GetGroundTruth(w http.ResponseWriter, r *http.Request) {
	var (
		gt  *models.GroundTruth
		err error
	)
	if raw := r.URL.Query().Get("version"); raw != "" {
		version, parseErr := strconv.Atoi(raw)
		if parseErr != nil || version < 1 {
			if err := ErrorResponse(w, http.StatusBadRequest, "invalid_version", "version must be a positive integer"); err != nil {
				h.logger.Error("Failed to write error response", zap.Error(err))
			}
			return
		}
		gt, err = h.groundTruth.GetVersion(r.Context(), version)
	} else {
		gt, err = h.groundTruth.Current(r.Context())
	}

	if err != nil {
		if errors.Is(err, apperrors.ErrNoGroundTruth) || errors.Is(err, apperrors.ErrNotFound) {
			if err := ErrorResponse(w, http.StatusNotFound, "ground_truth_not_found", "No ground truth graph available"); err != nil {
				h.logger.Error("Failed to write error response", zap.Error(err))
			}
			return
		}
		h.logger.Error("Failed to load ground truth", zap.Error(err))
		if err := ErrorResponse(w, http.StatusInternalServerError, "get_ground_truth_failed", "Failed to load ground truth"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: gt}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// RebuildGroundTruth handles POST /api/ai/ground-truth/rebuild
// Assembles a new ground truth version from the stored analysis results.
func (h *AIHandler) RebuildGroundTruth(w http.ResponseWriter, r *http.Request) {
	gt, err := h.groundTruth.Build(r.Context())
	if err != nil {
		h.logger.Error("Ground truth rebuild failed", zap.Error(err))
		if err := ErrorResponse(w, http.StatusConflict, "rebuild_failed", err.Error()); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	if err := WriteJSON(w, http.StatusCreated, ApiResponse{Success: true, Data: gt}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// resolveTables reads the optional request body and returns the table set
// to operate on. Unknown table names are rejected up front.
func (h *AIHandler) resolveTables(w http.ResponseWriter, r *http.Request) ([]string, bool) {
	// An empty body selects all tables; anything else malformed is an error.
	var req TableStageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_request", "Invalid request body"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return nil, false
	}

	if len(req.Tables) == 0 {
		return sapdb.KnownTables, true
	}

	tables := make([]string, 0, len(req.Tables))
	for _, table := range req.Tables {
		name := strings.ToUpper(strings.TrimSpace(table))
		if !sapdb.IsKnownTable(name) {
			if err := ErrorResponse(w, http.StatusBadRequest, "unknown_table", fmt.Sprintf("Unknown table %q", table)); err != nil {
				h.logger.Error("Failed to write error response", zap.Error(err))
			}
			return nil, false
		}
		tables = append(tables, name)
	}
	return tables, true
}
