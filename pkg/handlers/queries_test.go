package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/saplens-io/saplens-engine/pkg/adapters/sapdb"
	"github.com/saplens-io/saplens-engine/pkg/apperrors"
	"github.com/saplens-io/saplens-engine/pkg/models"
	"github.com/saplens-io/saplens-engine/pkg/services"
)

func TestQueryHandler_Generate_Success(t *testing.T) {
	queryService := &mockQueryService{
		result: &services.GenerateResult{
			Query: &models.GeneratedQuery{
				ID:           uuid.New(),
				Prompt:       "total sales per customer",
				GeneratedSQL: `SELECT "KNA1".NAME1, SUM("VBAK".NETWR) FROM "VBAK" JOIN "KNA1" ON "VBAK".KUNNR = "KNA1".KUNNR GROUP BY "KNA1".NAME1`,
				IsValid:      true,
				Confidence:   1.0,
			},
			Report: &services.ValidationReport{IsValid: true, Confidence: 1.0},
		},
	}
	handler := NewQueryHandler(queryService, &mockValidationService{}, &mockGroundTruthService{}, zap.NewNop())

	body := strings.NewReader(`{"question": "total sales per customer"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/query/generate", body)
	rec := httptest.NewRecorder()

	handler.Generate(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if queryService.lastQuestion != "total sales per customer" {
		t.Errorf("expected question forwarded, got %q", queryService.lastQuestion)
	}

	var resp ApiResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if !resp.Success {
		t.Error("expected success response")
	}
}

func TestQueryHandler_Generate_MissingQuestion(t *testing.T) {
	handler := NewQueryHandler(&mockQueryService{}, &mockValidationService{}, &mockGroundTruthService{}, zap.NewNop())

	req := httptest.NewRequest(http.MethodPost, "/api/query/generate", strings.NewReader(`{"question": "  "}`))
	rec := httptest.NewRecorder()

	handler.Generate(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", rec.Code)
	}
}

func TestQueryHandler_Generate_NoGroundTruth(t *testing.T) {
	queryService := &mockQueryService{generateErr: apperrors.ErrNoGroundTruth}
	handler := NewQueryHandler(queryService, &mockValidationService{}, &mockGroundTruthService{}, zap.NewNop())

	req := httptest.NewRequest(http.MethodPost, "/api/query/generate", strings.NewReader(`{"question": "anything"}`))
	rec := httptest.NewRecorder()

	handler.Generate(rec, req)

	if rec.Code != http.StatusConflict {
		t.Errorf("expected status 409, got %d", rec.Code)
	}
}

func TestQueryHandler_Execute_Success(t *testing.T) {
	queryService := &mockQueryService{
		rows: &sapdb.QueryResult{
			Columns:  []string{"VBELN"},
			Rows:     []map[string]any{{"VBELN": "0000000001"}},
			RowCount: 1,
		},
	}
	handler := NewQueryHandler(queryService, &mockValidationService{}, &mockGroundTruthService{}, zap.NewNop())

	body := strings.NewReader(`{"query_id": "` + uuid.NewString() + `"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/query/execute", body)
	rec := httptest.NewRecorder()

	handler.Execute(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestQueryHandler_Execute_NotFound(t *testing.T) {
	queryService := &mockQueryService{executeErr: apperrors.ErrNotFound}
	handler := NewQueryHandler(queryService, &mockValidationService{}, &mockGroundTruthService{}, zap.NewNop())

	body := strings.NewReader(`{"query_id": "` + uuid.NewString() + `"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/query/execute", body)
	rec := httptest.NewRecorder()

	handler.Execute(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("expected status 404, got %d", rec.Code)
	}
}

func TestQueryHandler_Execute_NotAllowed(t *testing.T) {
	queryService := &mockQueryService{
		executeErr: errors.Join(apperrors.ErrQueryNotAllowed, errors.New("fallback query")),
	}
	handler := NewQueryHandler(queryService, &mockValidationService{}, &mockGroundTruthService{}, zap.NewNop())

	body := strings.NewReader(`{"query_id": "` + uuid.NewString() + `"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/query/execute", body)
	rec := httptest.NewRecorder()

	handler.Execute(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Errorf("expected status 403, got %d", rec.Code)
	}
}

func TestQueryHandler_Execute_MissingID(t *testing.T) {
	handler := NewQueryHandler(&mockQueryService{}, &mockValidationService{}, &mockGroundTruthService{}, zap.NewNop())

	req := httptest.NewRequest(http.MethodPost, "/api/query/execute", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()

	handler.Execute(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", rec.Code)
	}
}

func TestQueryHandler_Validate_WithGraph(t *testing.T) {
	validation := &mockValidationService{
		report: &services.ValidationReport{IsValid: true, Confidence: 1.0},
	}
	groundTruth := &mockGroundTruthService{
		current: &models.GroundTruth{
			Version: 1,
			Graph:   models.GroundTruthGraph{Tables: []models.GroundTruthTable{{Name: "VBAK"}}},
		},
	}
	handler := NewQueryHandler(&mockQueryService{}, validation, groundTruth, zap.NewNop())

	req := httptest.NewRequest(http.MethodPost, "/api/query/validate", strings.NewReader(`{"sql": "SELECT * FROM VBAK"}`))
	rec := httptest.NewRecorder()

	handler.Validate(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if validation.lastGraph == nil {
		t.Error("expected the current graph to be passed to the validator")
	}
}

func TestQueryHandler_Validate_NoGroundTruthDegrades(t *testing.T) {
	validation := &mockValidationService{
		report: &services.ValidationReport{IsValid: true, Warnings: []string{"no ground truth graph available"}},
	}
	groundTruth := &mockGroundTruthService{currentErr: apperrors.ErrNoGroundTruth}
	handler := NewQueryHandler(&mockQueryService{}, validation, groundTruth, zap.NewNop())

	req := httptest.NewRequest(http.MethodPost, "/api/query/validate", strings.NewReader(`{"sql": "SELECT * FROM VBAK"}`))
	rec := httptest.NewRecorder()

	handler.Validate(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if validation.lastGraph != nil {
		t.Error("expected nil graph when no ground truth exists")
	}
}

func TestQueryHandler_History(t *testing.T) {
	queryService := &mockQueryService{
		history: []*models.GeneratedQuery{{ID: uuid.New(), Prompt: "q1"}},
	}
	handler := NewQueryHandler(queryService, &mockValidationService{}, &mockGroundTruthService{}, zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/api/query/history?limit=5", nil)
	rec := httptest.NewRecorder()

	handler.History(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if queryService.lastLimit != 5 {
		t.Errorf("expected limit 5, got %d", queryService.lastLimit)
	}
}

func TestQueryHandler_History_InvalidLimit(t *testing.T) {
	handler := NewQueryHandler(&mockQueryService{}, &mockValidationService{}, &mockGroundTruthService{}, zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/api/query/history?limit=zero", nil)
	rec := httptest.NewRecorder()

	handler.History(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", rec.Code)
	}
}
