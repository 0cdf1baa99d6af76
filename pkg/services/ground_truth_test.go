package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/saplens-io/saplens-engine/pkg/apperrors"
	"github.com/saplens-io/saplens-engine/pkg/models"
)

func seededGroundTruthService(t *testing.T) (GroundTruthService, *fakeGroundTruthRepo) {
	t.Helper()
	ctx := context.Background()

	summaryRepo := newFakeSummaryRepo()
	require.NoError(t, summaryRepo.Upsert(ctx, &models.SchemaSummary{TableName: "VBAK", Summary: "Order headers."}))
	require.NoError(t, summaryRepo.Upsert(ctx, &models.SchemaSummary{TableName: "VBAP", Summary: "Order items."}))

	columnRepo := newFakeColumnRepo()
	for _, col := range []struct{ table, name string }{
		{"VBAK", "VBELN"}, {"VBAK", "KUNNR"}, {"VBAP", "VBELN"}, {"VBAP", "MATNR"},
	} {
		require.NoError(t, columnRepo.Upsert(ctx, &models.ColumnMetadata{TableName: col.table, ColumnName: col.name}))
	}

	relationshipRepo := &fakeRelationshipRepo{}
	require.NoError(t, relationshipRepo.ReplaceAll(ctx, []*models.TableRelationship{
		{LeftTable: "VBAK", LeftColumn: "VBELN", RightTable: "VBAP", RightColumn: "VBELN", JoinType: "INNER", Confidence: 1.0, Provenance: models.ProvenanceBusinessRule},
	}))

	gtRepo := &fakeGroundTruthRepo{}
	return NewGroundTruthService(summaryRepo, columnRepo, relationshipRepo, gtRepo, zap.NewNop()), gtRepo
}

func TestBuildGroundTruth(t *testing.T) {
	svc, _ := seededGroundTruthService(t)

	gt, err := svc.Build(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, gt.Version)
	assert.Len(t, gt.Graph.Tables, 2)
	assert.Len(t, gt.Graph.Joins, 1)
	assert.True(t, gt.Graph.HasTable("VBAK"))
	assert.True(t, gt.Graph.HasColumn("VBAP", "MATNR"))
	assert.True(t, gt.Graph.HasJoin("VBAP", "VBAK"))
	assert.Equal(t, 2, gt.Graph.Metadata.TableCount)
	assert.Equal(t, 1, gt.Graph.Metadata.RelationshipCount)
}

func TestBuildGroundTruth_VersionsMonotonic(t *testing.T) {
	svc, _ := seededGroundTruthService(t)
	ctx := context.Background()

	first, err := svc.Build(ctx)
	require.NoError(t, err)
	second, err := svc.Build(ctx)
	require.NoError(t, err)

	assert.Equal(t, first.Version+1, second.Version)

	current, err := svc.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, second.Version, current.Version)

	// Earlier versions stay retrievable
	old, err := svc.GetVersion(ctx, first.Version)
	require.NoError(t, err)
	assert.Equal(t, first.Version, old.Version)

	versions, err := svc.ListVersions(ctx)
	require.NoError(t, err)
	assert.Len(t, versions, 2)
}

func TestBuildGroundTruth_NoSummaries(t *testing.T) {
	svc := NewGroundTruthService(newFakeSummaryRepo(), newFakeColumnRepo(), &fakeRelationshipRepo{}, &fakeGroundTruthRepo{}, zap.NewNop())

	_, err := svc.Build(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no schema summaries")
}

func TestCurrent_NoGroundTruth(t *testing.T) {
	svc := NewGroundTruthService(newFakeSummaryRepo(), newFakeColumnRepo(), &fakeRelationshipRepo{}, &fakeGroundTruthRepo{}, zap.NewNop())

	_, err := svc.Current(context.Background())
	assert.ErrorIs(t, err, apperrors.ErrNoGroundTruth)
}
