package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/saplens-io/saplens-engine/pkg/adapters/sapdb"
	"github.com/saplens-io/saplens-engine/pkg/llm"
	"github.com/saplens-io/saplens-engine/pkg/models"
	"github.com/saplens-io/saplens-engine/pkg/prompts"
	"github.com/saplens-io/saplens-engine/pkg/repositories"
)

// columnBatchSize bounds how many columns go into one LLM call.
const columnBatchSize = 10

// ColumnAnalysisService has the LLM describe every column of a table and
// persists the results as column metadata.
type ColumnAnalysisService interface {
	// AnalyzeTable analyzes all columns of one extracted table. Batches run
	// concurrently through the worker pool; a failed batch fails the table.
	AnalyzeTable(ctx context.Context, extract *sapdb.TableExtract) ([]*models.ColumnMetadata, error)

	// ListColumns returns stored metadata for a table.
	ListColumns(ctx context.Context, tableName string) ([]*models.ColumnMetadata, error)
}

// columnAnalysisResponse is the JSON shape the LLM must return per batch.
type columnAnalysisResponse struct {
	Columns []columnAnalysisEntry `json:"columns"`
}

type columnAnalysisEntry struct {
	Column       string `json:"column"`
	Description  string `json:"description"`
	SemanticType string `json:"semantic_type"`
	IsEnum       bool   `json:"is_enum"`
	References   string `json:"references"`
}

type columnAnalysisService struct {
	llmClient   llm.Client
	repo        repositories.ColumnMetadataRepository
	pool        *llm.WorkerPool
	temperature float64
	logger      *zap.Logger
}

// NewColumnAnalysisService creates a new ColumnAnalysisService.
func NewColumnAnalysisService(llmClient llm.Client, repo repositories.ColumnMetadataRepository, pool *llm.WorkerPool, temperature float64, logger *zap.Logger) ColumnAnalysisService {
	return &columnAnalysisService{
		llmClient:   llmClient,
		repo:        repo,
		pool:        pool,
		temperature: temperature,
		logger:      logger.Named("column-analysis"),
	}
}

var _ ColumnAnalysisService = (*columnAnalysisService)(nil)

func (s *columnAnalysisService) AnalyzeTable(ctx context.Context, extract *sapdb.TableExtract) ([]*models.ColumnMetadata, error) {
	profile := TableProfileFromExtract(extract)

	batches := batchColumns(profile.Columns, columnBatchSize)
	items := make([]llm.WorkItem[[]columnAnalysisEntry], 0, len(batches))
	for i, batch := range batches {
		batch := batch
		items = append(items, llm.WorkItem[[]columnAnalysisEntry]{
			ID: fmt.Sprintf("%s-batch-%d", extract.Name, i),
			Execute: func(ctx context.Context) ([]columnAnalysisEntry, error) {
				return s.analyzeBatch(ctx, profile, batch)
			},
		})
	}

	results := llm.Process(ctx, s.pool, items, func(completed, total int) {
		s.logger.Debug("column batch done",
			zap.String("table", extract.Name),
			zap.Int("completed", completed),
			zap.Int("total", total))
	})

	entries := make(map[string]columnAnalysisEntry)
	for _, r := range results {
		if r.Err != nil {
			return nil, fmt.Errorf("analyze columns of %s: %w", extract.Name, r.Err)
		}
		for _, e := range r.Result {
			entries[strings.ToUpper(e.Column)] = e
		}
	}

	now := time.Now()
	var metadata []*models.ColumnMetadata
	for _, col := range extract.Columns {
		meta := &models.ColumnMetadata{
			TableName:    extract.Name,
			ColumnName:   col.Name,
			DataType:     col.DataType,
			SampleValues: extract.DistinctValues[col.Name],
			AnalyzedAt:   &now,
		}

		if entry, ok := entries[strings.ToUpper(col.Name)]; ok {
			meta.Description = entry.Description
			meta.SemanticTags = semanticTags(entry)
		} else {
			s.logger.Warn("LLM response missing column, storing without description",
				zap.String("column", meta.QualifiedName()))
		}

		if meta.Description != "" {
			embedding, err := s.llmClient.CreateEmbedding(ctx, meta.QualifiedName()+": "+meta.Description)
			if err == nil {
				meta.Embedding = embedding
			} else if !errors.Is(err, llm.ErrEmbeddingsUnsupported) {
				return nil, fmt.Errorf("embed column %s: %w", meta.QualifiedName(), err)
			}
		}

		if err := s.repo.Upsert(ctx, meta); err != nil {
			return nil, err
		}
		metadata = append(metadata, meta)
	}

	s.logger.Info("table columns analyzed",
		zap.String("table", extract.Name),
		zap.Int("columns", len(metadata)),
		zap.Int("batches", len(batches)))

	return metadata, nil
}

func (s *columnAnalysisService) analyzeBatch(ctx context.Context, profile prompts.TableProfile, batch []prompts.ColumnProfile) ([]columnAnalysisEntry, error) {
	prompt := prompts.BuildColumnAnalysisPrompt(profile, batch)
	result, err := s.llmClient.GenerateResponse(ctx, prompt, prompts.BuildColumnAnalysisSystemMessage(), s.temperature)
	if err != nil {
		return nil, err
	}

	parsed, err := llm.ParseJSONResponse[columnAnalysisResponse](result.Content)
	if err != nil {
		return nil, fmt.Errorf("parse column analysis response: %w", err)
	}
	return parsed.Columns, nil
}

func (s *columnAnalysisService) ListColumns(ctx context.Context, tableName string) ([]*models.ColumnMetadata, error) {
	return s.repo.ListByTable(ctx, strings.ToUpper(tableName))
}

// semanticTags flattens an analysis entry into the stored tag list.
func semanticTags(entry columnAnalysisEntry) []string {
	var tags []string
	if entry.SemanticType != "" {
		tags = append(tags, entry.SemanticType)
	}
	if entry.IsEnum {
		tags = append(tags, "enum")
	}
	if entry.References != "" {
		tags = append(tags, "references:"+strings.ToUpper(entry.References))
	}
	return tags
}

func batchColumns(columns []prompts.ColumnProfile, size int) [][]prompts.ColumnProfile {
	if size <= 0 {
		size = columnBatchSize
	}
	var batches [][]prompts.ColumnProfile
	for start := 0; start < len(columns); start += size {
		end := start + size
		if end > len(columns) {
			end = len(columns)
		}
		batches = append(batches, columns[start:end])
	}
	return batches
}
