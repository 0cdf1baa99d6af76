package handlers

import (
	"context"

	"github.com/google/uuid"

	"github.com/saplens-io/saplens-engine/pkg/adapters/sapdb"
	"github.com/saplens-io/saplens-engine/pkg/apperrors"
	"github.com/saplens-io/saplens-engine/pkg/models"
	"github.com/saplens-io/saplens-engine/pkg/services"
)

// Service mocks shared across the handler tests. Each mock returns its
// configured value or error.

type mockQueryService struct {
	result  *services.GenerateResult
	rows    *sapdb.QueryResult
	history []*models.GeneratedQuery

	generateErr error
	executeErr  error
	historyErr  error

	lastQuestion string
	lastLimit    int
}

func (m *mockQueryService) Generate(ctx context.Context, question string) (*services.GenerateResult, error) {
	m.lastQuestion = question
	if m.generateErr != nil {
		return nil, m.generateErr
	}
	return m.result, nil
}

func (m *mockQueryService) Execute(ctx context.Context, id uuid.UUID) (*sapdb.QueryResult, error) {
	if m.executeErr != nil {
		return nil, m.executeErr
	}
	return m.rows, nil
}

func (m *mockQueryService) History(ctx context.Context, limit int) ([]*models.GeneratedQuery, error) {
	m.lastLimit = limit
	if m.historyErr != nil {
		return nil, m.historyErr
	}
	return m.history, nil
}

type mockValidationService struct {
	report    *services.ValidationReport
	lastGraph *models.GroundTruthGraph
}

func (m *mockValidationService) Validate(sqlQuery string, graph *models.GroundTruthGraph) *services.ValidationReport {
	m.lastGraph = graph
	return m.report
}

type mockGroundTruthService struct {
	current    *models.GroundTruth
	built      *models.GroundTruth
	versions   []*models.GroundTruth
	currentErr error
	buildErr   error
	versionErr error
}

func (m *mockGroundTruthService) Build(ctx context.Context) (*models.GroundTruth, error) {
	if m.buildErr != nil {
		return nil, m.buildErr
	}
	return m.built, nil
}

func (m *mockGroundTruthService) Current(ctx context.Context) (*models.GroundTruth, error) {
	if m.currentErr != nil {
		return nil, m.currentErr
	}
	return m.current, nil
}

func (m *mockGroundTruthService) GetVersion(ctx context.Context, version int) (*models.GroundTruth, error) {
	if m.versionErr != nil {
		return nil, m.versionErr
	}
	for _, gt := range m.versions {
		if gt.Version == version {
			return gt, nil
		}
	}
	return nil, apperrors.ErrNotFound
}

func (m *mockGroundTruthService) ListVersions(ctx context.Context) ([]*models.GroundTruth, error) {
	return m.versions, nil
}

type mockPipelineService struct {
	result *services.PipelineResult
	status *services.PipelineResult
	runErr error
}

func (m *mockPipelineService) Run(ctx context.Context) (*services.PipelineResult, error) {
	if m.runErr != nil {
		return nil, m.runErr
	}
	return m.result, nil
}

func (m *mockPipelineService) Status() *services.PipelineResult {
	return m.status
}

type mockSummaryService struct {
	summary *models.SchemaSummary
	err     error
	tables  []string
}

func (m *mockSummaryService) Summarize(ctx context.Context, extract *sapdb.TableExtract) (*models.SchemaSummary, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.tables = append(m.tables, extract.Name)
	if m.summary != nil {
		return m.summary, nil
	}
	return &models.SchemaSummary{TableName: extract.Name, Summary: "mock summary"}, nil
}

func (m *mockSummaryService) GetSummary(ctx context.Context, tableName string) (*models.SchemaSummary, error) {
	return nil, apperrors.ErrNotFound
}

func (m *mockSummaryService) ListSummaries(ctx context.Context) ([]*models.SchemaSummary, error) {
	return nil, nil
}

type mockColumnService struct {
	columns []*models.ColumnMetadata
	err     error
}

func (m *mockColumnService) AnalyzeTable(ctx context.Context, extract *sapdb.TableExtract) ([]*models.ColumnMetadata, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.columns, nil
}

func (m *mockColumnService) ListColumns(ctx context.Context, tableName string) ([]*models.ColumnMetadata, error) {
	return m.columns, nil
}

type mockRelationshipService struct {
	relationships []*models.TableRelationship
	err           error
	lastExtracts  []*sapdb.TableExtract
}

func (m *mockRelationshipService) Infer(ctx context.Context, extracts []*sapdb.TableExtract) ([]*models.TableRelationship, error) {
	m.lastExtracts = extracts
	if m.err != nil {
		return nil, m.err
	}
	return m.relationships, nil
}

func (m *mockRelationshipService) List(ctx context.Context) ([]*models.TableRelationship, error) {
	return m.relationships, nil
}

func (m *mockRelationshipService) ListByTable(ctx context.Context, tableName string) ([]*models.TableRelationship, error) {
	return m.relationships, nil
}

type mockExtractor struct {
	extracts   map[string]*sapdb.TableExtract
	extractErr error
	result     *sapdb.QueryResult
	queryErr   error
	lastQuery  string
	lastLimit  int
}

func (m *mockExtractor) TestConnection(ctx context.Context) error { return nil }

func (m *mockExtractor) ExtractTable(ctx context.Context, table string) (*sapdb.TableExtract, error) {
	if m.extractErr != nil {
		return nil, m.extractErr
	}
	if e, ok := m.extracts[table]; ok {
		return e, nil
	}
	return &sapdb.TableExtract{Name: table}, nil
}

func (m *mockExtractor) Query(ctx context.Context, sqlQuery string, limit int) (*sapdb.QueryResult, error) {
	m.lastQuery = sqlQuery
	m.lastLimit = limit
	if m.queryErr != nil {
		return nil, m.queryErr
	}
	if m.result != nil {
		return m.result, nil
	}
	return &sapdb.QueryResult{}, nil
}

func (m *mockExtractor) QuoteIdentifier(name string) string { return `"` + name + `"` }

func (m *mockExtractor) Close() error { return nil }
