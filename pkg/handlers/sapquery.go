package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/saplens-io/saplens-engine/pkg/adapters/sapdb"
	"github.com/saplens-io/saplens-engine/pkg/apperrors"
)

// --- Response Types ---

// SAPTableInfo describes one table of the simulated SAP schema.
type SAPTableInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// ListTablesResponse lists the known SAP tables.
type ListTablesResponse struct {
	Tables []SAPTableInfo `json:"tables"`
}

// ExtractResponse summarizes one extraction run without the LLM stages.
type ExtractResponse struct {
	Extracts []*sapdb.TableExtract `json:"extracts"`
	Failed   []string              `json:"failed,omitempty"`
}

// SAPQueryHandler exposes direct read access to the SAP source.
type SAPQueryHandler struct {
	extractor   sapdb.Extractor
	sampleLimit int
	logger      *zap.Logger
}

// NewSAPQueryHandler creates a new SAPQueryHandler. sampleLimit caps rows
// returned by the sample endpoint.
func NewSAPQueryHandler(extractor sapdb.Extractor, sampleLimit int, logger *zap.Logger) *SAPQueryHandler {
	return &SAPQueryHandler{extractor: extractor, sampleLimit: sampleLimit, logger: logger}
}

// RegisterRoutes registers the SAP query routes on the given mux.
func (h *SAPQueryHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/sap-query/tables", h.ListTables)
	mux.HandleFunc("GET /api/sap-query/tables/{table}/sample", h.SampleTable)
	mux.HandleFunc("POST /api/sap-query/extract", h.Extract)
}

// ListTables handles GET /api/sap-query/tables
func (h *SAPQueryHandler) ListTables(w http.ResponseWriter, r *http.Request) {
	response := ListTablesResponse{}
	for _, name := range sapdb.KnownTables {
		response.Tables = append(response.Tables, SAPTableInfo{
			Name:        name,
			Description: sapdb.TableDescriptions[name],
		})
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: response}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// SampleTable handles GET /api/sap-query/tables/{table}/sample
// Returns a bounded number of rows from one table. ?limit=N shrinks the page.
func (h *SAPQueryHandler) SampleTable(w http.ResponseWriter, r *http.Request) {
	table := strings.ToUpper(r.PathValue("table"))
	if !sapdb.IsKnownTable(table) {
		if err := ErrorResponse(w, http.StatusNotFound, "unknown_table", fmt.Sprintf("Unknown table %q", table)); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	limit := h.sampleLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			if err := ErrorResponse(w, http.StatusBadRequest, "invalid_limit", "limit must be a positive integer"); err != nil {
				h.logger.Error("Failed to write error response", zap.Error(err))
			}
			return
		}
		if parsed < limit {
			limit = parsed
		}
	}

	result, err := h.extractor.Query(r.Context(), "SELECT * FROM "+h.extractor.QuoteIdentifier(table), limit)
	if err != nil {
		h.logger.Error("Failed to sample table",
			zap.String("table", table), zap.Error(err))
		if err := ErrorResponse(w, http.StatusBadGateway, "sample_failed", "Failed to read from the SAP source"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: result}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Extract handles POST /api/sap-query/extract
// Runs schema extraction for every known table and returns the raw extracts.
func (h *SAPQueryHandler) Extract(w http.ResponseWriter, r *http.Request) {
	response := ExtractResponse{}
	for _, table := range sapdb.KnownTables {
		extract, err := h.extractor.ExtractTable(r.Context(), table)
		if err != nil {
			if !errors.Is(err, apperrors.ErrUnknownTable) {
				h.logger.Error("Failed to extract table",
					zap.String("table", table), zap.Error(err))
			}
			response.Failed = append(response.Failed, fmt.Sprintf("%s: %v", table, err))
			continue
		}
		response.Extracts = append(response.Extracts, extract)
	}

	if len(response.Extracts) == 0 {
		if err := ErrorResponse(w, http.StatusBadGateway, "extract_failed", "No table could be extracted"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: response}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}
