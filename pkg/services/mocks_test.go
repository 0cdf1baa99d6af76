package services

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/saplens-io/saplens-engine/pkg/adapters/sapdb"
	"github.com/saplens-io/saplens-engine/pkg/apperrors"
	"github.com/saplens-io/saplens-engine/pkg/models"
)

// testTemperature is the sampling temperature the test services run with.
const testTemperature = 0.2

// In-memory repository fakes shared by the service tests.

type fakeSummaryRepo struct {
	mu        sync.Mutex
	summaries map[string]*models.SchemaSummary
}

func newFakeSummaryRepo() *fakeSummaryRepo {
	return &fakeSummaryRepo{summaries: make(map[string]*models.SchemaSummary)}
}

func (r *fakeSummaryRepo) Upsert(ctx context.Context, summary *models.SchemaSummary) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if summary.ID == uuid.Nil {
		summary.ID = uuid.New()
	}
	r.summaries[summary.TableName] = summary
	return nil
}

func (r *fakeSummaryRepo) GetByTable(ctx context.Context, tableName string) (*models.SchemaSummary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.summaries[tableName]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return s, nil
}

func (r *fakeSummaryRepo) List(ctx context.Context) ([]*models.SchemaSummary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.SchemaSummary
	for _, s := range r.summaries {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TableName < out[j].TableName })
	return out, nil
}

type fakeColumnRepo struct {
	mu      sync.Mutex
	columns map[string]*models.ColumnMetadata
}

func newFakeColumnRepo() *fakeColumnRepo {
	return &fakeColumnRepo{columns: make(map[string]*models.ColumnMetadata)}
}

func (r *fakeColumnRepo) Upsert(ctx context.Context, meta *models.ColumnMetadata) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if meta.ID == uuid.Nil {
		meta.ID = uuid.New()
	}
	r.columns[meta.QualifiedName()] = meta
	return nil
}

func (r *fakeColumnRepo) GetByColumn(ctx context.Context, tableName, columnName string) (*models.ColumnMetadata, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.columns[tableName+"."+columnName]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return m, nil
}

func (r *fakeColumnRepo) ListByTable(ctx context.Context, tableName string) ([]*models.ColumnMetadata, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.ColumnMetadata
	for _, m := range r.columns {
		if m.TableName == tableName {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ColumnName < out[j].ColumnName })
	return out, nil
}

func (r *fakeColumnRepo) List(ctx context.Context) ([]*models.ColumnMetadata, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.ColumnMetadata
	for _, m := range r.columns {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].QualifiedName() < out[j].QualifiedName() })
	return out, nil
}

type fakeRelationshipRepo struct {
	mu            sync.Mutex
	relationships []*models.TableRelationship
	replaceCalls  int
}

func (r *fakeRelationshipRepo) ReplaceAll(ctx context.Context, relationships []*models.TableRelationship) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.relationships = relationships
	r.replaceCalls++
	return nil
}

func (r *fakeRelationshipRepo) List(ctx context.Context) ([]*models.TableRelationship, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*models.TableRelationship(nil), r.relationships...), nil
}

func (r *fakeRelationshipRepo) ListByTable(ctx context.Context, tableName string) ([]*models.TableRelationship, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.TableRelationship
	for _, rel := range r.relationships {
		if rel.LeftTable == tableName || rel.RightTable == tableName {
			out = append(out, rel)
		}
	}
	return out, nil
}

type fakeGroundTruthRepo struct {
	mu       sync.Mutex
	versions []*models.GroundTruth
}

func (r *fakeGroundTruthRepo) Create(ctx context.Context, gt *models.GroundTruth) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	gt.ID = uuid.New()
	gt.Version = len(r.versions) + 1
	r.versions = append(r.versions, gt)
	return nil
}

func (r *fakeGroundTruthRepo) GetCurrent(ctx context.Context) (*models.GroundTruth, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.versions) == 0 {
		return nil, apperrors.ErrNoGroundTruth
	}
	return r.versions[len(r.versions)-1], nil
}

func (r *fakeGroundTruthRepo) GetByVersion(ctx context.Context, version int) (*models.GroundTruth, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, gt := range r.versions {
		if gt.Version == version {
			return gt, nil
		}
	}
	return nil, apperrors.ErrNotFound
}

func (r *fakeGroundTruthRepo) ListVersions(ctx context.Context) ([]*models.GroundTruth, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := append([]*models.GroundTruth(nil), r.versions...)
	sort.Slice(out, func(i, j int) bool { return out[i].Version > out[j].Version })
	return out, nil
}

type fakeAuditRepo struct {
	mu      sync.Mutex
	queries []*models.GeneratedQuery
}

func (r *fakeAuditRepo) Create(ctx context.Context, q *models.GeneratedQuery) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if q.ID == uuid.Nil {
		q.ID = uuid.New()
	}
	r.queries = append(r.queries, q)
	return nil
}

func (r *fakeAuditRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.GeneratedQuery, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, q := range r.queries {
		if q.ID == id {
			return q, nil
		}
	}
	return nil, apperrors.ErrNotFound
}

func (r *fakeAuditRepo) MarkExecuted(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, q := range r.queries {
		if q.ID == id {
			q.Executed = true
			return nil
		}
	}
	return apperrors.ErrNotFound
}

func (r *fakeAuditRepo) ListRecent(ctx context.Context, limit int) ([]*models.GeneratedQuery, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := append([]*models.GeneratedQuery(nil), r.queries...)
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// fakeExtractor serves canned table extracts and records executed queries.
type fakeExtractor struct {
	mu       sync.Mutex
	extracts map[string]*sapdb.TableExtract
	failOn   map[string]error
	queries  []string
	result   *sapdb.QueryResult
	queryErr error
}

func newFakeExtractor() *fakeExtractor {
	return &fakeExtractor{
		extracts: make(map[string]*sapdb.TableExtract),
		failOn:   make(map[string]error),
	}
}

func (f *fakeExtractor) TestConnection(ctx context.Context) error { return nil }

func (f *fakeExtractor) ExtractTable(ctx context.Context, table string) (*sapdb.TableExtract, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	table = strings.ToUpper(table)
	if err, ok := f.failOn[table]; ok {
		return nil, err
	}
	if e, ok := f.extracts[table]; ok {
		return e, nil
	}
	return nil, apperrors.ErrUnknownTable
}

func (f *fakeExtractor) Query(ctx context.Context, sqlQuery string, limit int) (*sapdb.QueryResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, sqlQuery)
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	if f.result != nil {
		return f.result, nil
	}
	return &sapdb.QueryResult{}, nil
}

func (f *fakeExtractor) QuoteIdentifier(name string) string { return `"` + name + `"` }

func (f *fakeExtractor) Close() error { return nil }

// Extract fixtures mirroring the simulated SAP schema.

func vbakExtract() *sapdb.TableExtract {
	return &sapdb.TableExtract{
		Name:        "VBAK",
		Description: "Sales document header data",
		RowCount:    100,
		Columns: []sapdb.ColumnInfo{
			{Name: "MANDT", DataType: "varchar"},
			{Name: "VBELN", DataType: "varchar", IsPrimaryKey: true},
			{Name: "KUNNR", DataType: "varchar"},
			{Name: "NETWR", DataType: "numeric"},
		},
		DistinctValues: map[string][]string{
			"VBELN": {"0000000001", "0000000002", "0000000003"},
			"KUNNR": {"0000012345", "0000012346"},
		},
	}
}

func vbapExtract() *sapdb.TableExtract {
	return &sapdb.TableExtract{
		Name:        "VBAP",
		Description: "Sales document item data",
		RowCount:    300,
		Columns: []sapdb.ColumnInfo{
			{Name: "MANDT", DataType: "varchar"},
			{Name: "VBELN", DataType: "varchar", IsPrimaryKey: true},
			{Name: "POSNR", DataType: "varchar", IsPrimaryKey: true},
			{Name: "MATNR", DataType: "varchar"},
		},
		DistinctValues: map[string][]string{
			"VBELN": {"0000000001", "0000000002", "0000000004"},
			"MATNR": {"MAT-001", "MAT-002"},
		},
	}
}
