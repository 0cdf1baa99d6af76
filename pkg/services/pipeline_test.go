package services

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/saplens-io/saplens-engine/pkg/adapters/sapdb"
	"github.com/saplens-io/saplens-engine/pkg/apperrors"
	"github.com/saplens-io/saplens-engine/pkg/models"
)

// Stage service stubs so the pipeline tests only exercise orchestration.

type stubSummaries struct {
	mu     sync.Mutex
	err    error
	tables []string
	block  chan struct{}
}

func (s *stubSummaries) Summarize(ctx context.Context, extract *sapdb.TableExtract) (*models.SchemaSummary, error) {
	if s.block != nil {
		<-s.block
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	s.tables = append(s.tables, extract.Name)
	return &models.SchemaSummary{TableName: extract.Name, Summary: "stub"}, nil
}

func (s *stubSummaries) GetSummary(ctx context.Context, tableName string) (*models.SchemaSummary, error) {
	return nil, apperrors.ErrNotFound
}

func (s *stubSummaries) ListSummaries(ctx context.Context) ([]*models.SchemaSummary, error) {
	return nil, nil
}

type stubColumns struct {
	err    error
	failOn string
}

func (s *stubColumns) AnalyzeTable(ctx context.Context, extract *sapdb.TableExtract) ([]*models.ColumnMetadata, error) {
	if s.err != nil {
		return nil, s.err
	}
	if s.failOn != "" && s.failOn == extract.Name {
		return nil, errors.New("analysis failed")
	}
	return nil, nil
}

func (s *stubColumns) ListColumns(ctx context.Context, tableName string) ([]*models.ColumnMetadata, error) {
	return nil, nil
}

type stubRelationships struct {
	err error
}

func (s *stubRelationships) Infer(ctx context.Context, extracts []*sapdb.TableExtract) ([]*models.TableRelationship, error) {
	if s.err != nil {
		return nil, s.err
	}
	return nil, nil
}

func (s *stubRelationships) List(ctx context.Context) ([]*models.TableRelationship, error) {
	return nil, nil
}

func (s *stubRelationships) ListByTable(ctx context.Context, tableName string) ([]*models.TableRelationship, error) {
	return nil, nil
}

type stubGroundTruth struct {
	err error
}

func (s *stubGroundTruth) Build(ctx context.Context) (*models.GroundTruth, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &models.GroundTruth{Version: 1}, nil
}

func (s *stubGroundTruth) Current(ctx context.Context) (*models.GroundTruth, error) {
	return nil, apperrors.ErrNoGroundTruth
}

func (s *stubGroundTruth) GetVersion(ctx context.Context, version int) (*models.GroundTruth, error) {
	return nil, apperrors.ErrNotFound
}

func (s *stubGroundTruth) ListVersions(ctx context.Context) ([]*models.GroundTruth, error) {
	return nil, nil
}

func fullExtractor() *fakeExtractor {
	extractor := newFakeExtractor()
	extractor.extracts["VBAK"] = vbakExtract()
	extractor.extracts["VBAP"] = vbapExtract()
	extractor.extracts["MARA"] = &sapdb.TableExtract{
		Name:    "MARA",
		Columns: []sapdb.ColumnInfo{{Name: "MATNR", DataType: "varchar", IsPrimaryKey: true}},
	}
	extractor.extracts["KNA1"] = &sapdb.TableExtract{
		Name:    "KNA1",
		Columns: []sapdb.ColumnInfo{{Name: "KUNNR", DataType: "varchar", IsPrimaryKey: true}},
	}
	return extractor
}

func stageByName(t *testing.T, result *PipelineResult, name string) StageResult {
	t.Helper()
	for _, stage := range result.Stages {
		if stage.Name == name {
			return stage
		}
	}
	t.Fatalf("stage %q not found", name)
	return StageResult{}
}

func TestPipelineRun_AllStagesComplete(t *testing.T) {
	svc := NewPipelineService(fullExtractor(), &stubSummaries{}, &stubColumns{}, &stubRelationships{}, &stubGroundTruth{}, "", zap.NewNop())

	result, err := svc.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, result.Stages, 5)
	wantOrder := []string{StageExtract, StageSummarize, StageColumns, StageRelationships, StageGroundTruth}
	for i, name := range wantOrder {
		assert.Equal(t, name, result.Stages[i].Name)
		assert.Equal(t, StatusCompleted, result.Stages[i].Status)
	}
	assert.True(t, result.Succeeded)
	assert.False(t, result.Running)
	require.NotNil(t, result.FinishedAt)
}

func TestPipelineRun_PartialExtraction(t *testing.T) {
	extractor := fullExtractor()
	extractor.failOn["MARA"] = errors.New("connection reset")

	svc := NewPipelineService(extractor, &stubSummaries{}, &stubColumns{}, &stubRelationships{}, &stubGroundTruth{}, "", zap.NewNop())

	result, err := svc.Run(context.Background())
	require.NoError(t, err)

	extract := stageByName(t, result, StageExtract)
	assert.Equal(t, StatusPartial, extract.Status)
	require.Len(t, extract.Errors, 1)
	assert.Contains(t, extract.Errors[0], "MARA")

	// Later stages still run on the tables that made it through.
	assert.Equal(t, StatusCompleted, stageByName(t, result, StageSummarize).Status)
	assert.Equal(t, StatusCompleted, stageByName(t, result, StageGroundTruth).Status)
	assert.True(t, result.Succeeded)
}

func TestPipelineRun_NoTablesExtracted(t *testing.T) {
	extractor := newFakeExtractor()
	for _, table := range sapdb.KnownTables {
		extractor.failOn[table] = errors.New("unreachable")
	}

	svc := NewPipelineService(extractor, &stubSummaries{}, &stubColumns{}, &stubRelationships{}, &stubGroundTruth{}, "", zap.NewNop())

	result, err := svc.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no tables extracted")

	require.Len(t, result.Stages, 1)
	assert.Equal(t, StatusFailed, result.Stages[0].Status)
	assert.False(t, result.Succeeded)
}

func TestPipelineRun_SingleTableSkipsRelationships(t *testing.T) {
	extractor := newFakeExtractor()
	extractor.extracts["VBAK"] = vbakExtract()
	for _, table := range []string{"VBAP", "MARA", "KNA1"} {
		extractor.failOn[table] = errors.New("missing")
	}

	svc := NewPipelineService(extractor, &stubSummaries{}, &stubColumns{}, &stubRelationships{}, &stubGroundTruth{}, "", zap.NewNop())

	result, err := svc.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StatusSkipped, stageByName(t, result, StageRelationships).Status)
}

func TestPipelineRun_StageFailureMarksRunFailed(t *testing.T) {
	svc := NewPipelineService(fullExtractor(), &stubSummaries{}, &stubColumns{}, &stubRelationships{}, &stubGroundTruth{err: errors.New("nothing stored")}, "", zap.NewNop())

	result, err := svc.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StatusFailed, stageByName(t, result, StageGroundTruth).Status)
	assert.False(t, result.Succeeded)
}

func TestPipelineRun_PartialColumnAnalysis(t *testing.T) {
	svc := NewPipelineService(fullExtractor(), &stubSummaries{}, &stubColumns{failOn: "VBAP"}, &stubRelationships{}, &stubGroundTruth{}, "", zap.NewNop())

	result, err := svc.Run(context.Background())
	require.NoError(t, err)

	columns := stageByName(t, result, StageColumns)
	assert.Equal(t, StatusPartial, columns.Status)
	require.Len(t, columns.Errors, 1)
	assert.Contains(t, columns.Errors[0], "VBAP")
	assert.True(t, result.Succeeded)
}

func TestPipelineRun_ConcurrentRunConflicts(t *testing.T) {
	block := make(chan struct{})
	summaries := &stubSummaries{block: block}
	svc := NewPipelineService(fullExtractor(), summaries, &stubColumns{}, &stubRelationships{}, &stubGroundTruth{}, "", zap.NewNop())

	done := make(chan error, 1)
	go func() {
		_, err := svc.Run(context.Background())
		done <- err
	}()

	// Wait until the first run is inside the summarize stage.
	require.Eventually(t, func() bool {
		status := svc.Status()
		return status != nil && status.Running
	}, 2*time.Second, 10*time.Millisecond)

	_, err := svc.Run(context.Background())
	assert.ErrorIs(t, err, apperrors.ErrConflict)

	close(block)
	require.NoError(t, <-done)
}

func TestPipelineStatus(t *testing.T) {
	svc := NewPipelineService(fullExtractor(), &stubSummaries{}, &stubColumns{}, &stubRelationships{}, &stubGroundTruth{}, "", zap.NewNop())

	assert.Nil(t, svc.Status())

	_, err := svc.Run(context.Background())
	require.NoError(t, err)

	status := svc.Status()
	require.NotNil(t, status)
	assert.False(t, status.Running)
	assert.Len(t, status.Stages, 5)

	// Mutating the snapshot must not touch the stored result.
	status.Stages[0].Status = "mangled"
	assert.Equal(t, StatusCompleted, svc.Status().Stages[0].Status)
}

func TestPipelineRun_DebugDump(t *testing.T) {
	path := filepath.Join(t.TempDir(), "extracts.json")
	svc := NewPipelineService(fullExtractor(), &stubSummaries{}, &stubColumns{}, &stubRelationships{}, &stubGroundTruth{}, path, zap.NewNop())

	_, err := svc.Run(context.Background())
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "VBAK")
	assert.Contains(t, string(data), "MATNR")
}
