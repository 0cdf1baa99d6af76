package services

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/saplens-io/saplens-engine/pkg/models"
	"github.com/saplens-io/saplens-engine/pkg/repositories"
)

// GroundTruthService assembles the reference graph that SQL validation
// checks against, from stored summaries, column metadata, and relationships.
// Each build appends a new version; history is never rewritten.
type GroundTruthService interface {
	// Build assembles and persists a new ground truth version.
	Build(ctx context.Context) (*models.GroundTruth, error)

	// Current returns the latest version.
	Current(ctx context.Context) (*models.GroundTruth, error)

	// GetVersion returns one specific version.
	GetVersion(ctx context.Context, version int) (*models.GroundTruth, error)

	// ListVersions returns all versions, newest first, without graphs.
	ListVersions(ctx context.Context) ([]*models.GroundTruth, error)
}

type groundTruthService struct {
	summaryRepo      repositories.SchemaSummaryRepository
	columnRepo       repositories.ColumnMetadataRepository
	relationshipRepo repositories.RelationshipRepository
	repo             repositories.GroundTruthRepository
	logger           *zap.Logger
}

// NewGroundTruthService creates a new GroundTruthService.
func NewGroundTruthService(
	summaryRepo repositories.SchemaSummaryRepository,
	columnRepo repositories.ColumnMetadataRepository,
	relationshipRepo repositories.RelationshipRepository,
	repo repositories.GroundTruthRepository,
	logger *zap.Logger,
) GroundTruthService {
	return &groundTruthService{
		summaryRepo:      summaryRepo,
		columnRepo:       columnRepo,
		relationshipRepo: relationshipRepo,
		repo:             repo,
		logger:           logger.Named("ground-truth"),
	}
}

var _ GroundTruthService = (*groundTruthService)(nil)

func (s *groundTruthService) Build(ctx context.Context) (*models.GroundTruth, error) {
	summaries, err := s.summaryRepo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("load summaries: %w", err)
	}
	if len(summaries) == 0 {
		return nil, fmt.Errorf("no schema summaries stored; run extraction and summarization first")
	}

	columns, err := s.columnRepo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("load column metadata: %w", err)
	}

	relationships, err := s.relationshipRepo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("load relationships: %w", err)
	}

	columnsByTable := make(map[string][]string)
	for _, col := range columns {
		columnsByTable[col.TableName] = append(columnsByTable[col.TableName], col.ColumnName)
	}

	graph := models.GroundTruthGraph{
		Metadata: models.GroundTruthMeta{
			BuiltAt:           time.Now().UTC(),
			TableCount:        len(summaries),
			RelationshipCount: len(relationships),
			Source:            "pipeline",
		},
	}

	for _, summary := range summaries {
		graph.Tables = append(graph.Tables, models.GroundTruthTable{
			Name:        summary.TableName,
			Description: summary.Summary,
			Columns:     columnsByTable[summary.TableName],
		})
	}

	for _, rel := range relationships {
		graph.Joins = append(graph.Joins, models.GroundTruthJoin{
			LeftTable:   rel.LeftTable,
			LeftColumn:  rel.LeftColumn,
			RightTable:  rel.RightTable,
			RightColumn: rel.RightColumn,
			JoinType:    rel.JoinType,
			Confidence:  rel.Confidence,
			Provenance:  rel.Provenance,
		})
	}

	gt := &models.GroundTruth{Graph: graph}
	if err := s.repo.Create(ctx, gt); err != nil {
		return nil, err
	}

	s.logger.Info("ground truth built",
		zap.Int("version", gt.Version),
		zap.Int("tables", len(graph.Tables)),
		zap.Int("joins", len(graph.Joins)))

	return gt, nil
}

func (s *groundTruthService) Current(ctx context.Context) (*models.GroundTruth, error) {
	return s.repo.GetCurrent(ctx)
}

func (s *groundTruthService) GetVersion(ctx context.Context, version int) (*models.GroundTruth, error) {
	return s.repo.GetByVersion(ctx, version)
}

func (s *groundTruthService) ListVersions(ctx context.Context) ([]*models.GroundTruth, error) {
	return s.repo.ListVersions(ctx)
}
