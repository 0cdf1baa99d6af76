package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/saplens-io/saplens-engine/pkg/adapters/sapdb"
	"github.com/saplens-io/saplens-engine/pkg/llm"
	"github.com/saplens-io/saplens-engine/pkg/models"
	"github.com/saplens-io/saplens-engine/pkg/prompts"
	"github.com/saplens-io/saplens-engine/pkg/repositories"
)

// SchemaSummaryService turns extracted table shapes into LLM summaries with
// embeddings and persists them.
type SchemaSummaryService interface {
	// Summarize writes one table's summary, replacing any previous one.
	Summarize(ctx context.Context, extract *sapdb.TableExtract) (*models.SchemaSummary, error)

	// GetSummary returns the stored summary for a table.
	GetSummary(ctx context.Context, tableName string) (*models.SchemaSummary, error)

	// ListSummaries returns all stored summaries.
	ListSummaries(ctx context.Context) ([]*models.SchemaSummary, error)
}

// schemaSummaryResponse is the JSON shape the LLM must return.
type schemaSummaryResponse struct {
	Summary         string   `json:"summary"`
	BusinessPurpose string   `json:"business_purpose"`
	Tags            []string `json:"tags"`
}

type schemaSummaryService struct {
	llmClient   llm.Client
	repo        repositories.SchemaSummaryRepository
	temperature float64
	logger      *zap.Logger
}

// NewSchemaSummaryService creates a new SchemaSummaryService. temperature is
// the sampling temperature for the summarization calls.
func NewSchemaSummaryService(llmClient llm.Client, repo repositories.SchemaSummaryRepository, temperature float64, logger *zap.Logger) SchemaSummaryService {
	return &schemaSummaryService{
		llmClient:   llmClient,
		repo:        repo,
		temperature: temperature,
		logger:      logger.Named("schema-summary"),
	}
}

var _ SchemaSummaryService = (*schemaSummaryService)(nil)

func (s *schemaSummaryService) Summarize(ctx context.Context, extract *sapdb.TableExtract) (*models.SchemaSummary, error) {
	profile := TableProfileFromExtract(extract)

	prompt := prompts.BuildSchemaSummaryPrompt(profile)
	result, err := s.llmClient.GenerateResponse(ctx, prompt, prompts.BuildSchemaSummarySystemMessage(), s.temperature)
	if err != nil {
		return nil, fmt.Errorf("summarize table %s: %w", extract.Name, err)
	}

	parsed, err := llm.ParseJSONResponse[schemaSummaryResponse](result.Content)
	if err != nil {
		return nil, fmt.Errorf("parse summary response for %s: %w", extract.Name, err)
	}
	if strings.TrimSpace(parsed.Summary) == "" {
		return nil, fmt.Errorf("summary response for %s has empty summary", extract.Name)
	}

	summaryText := parsed.Summary
	if parsed.BusinessPurpose != "" {
		summaryText = summaryText + " " + parsed.BusinessPurpose
	}

	summary := &models.SchemaSummary{
		TableName: extract.Name,
		Summary:   summaryText,
		Model:     s.llmClient.GetModel(),
	}

	// Embeddings are optional: a provider without them still yields a usable
	// summary, table selection just falls back to keyword matching.
	embedding, err := s.llmClient.CreateEmbedding(ctx, summaryText)
	switch {
	case err == nil:
		summary.Embedding = embedding
	case errors.Is(err, llm.ErrEmbeddingsUnsupported):
		s.logger.Info("provider has no embeddings, storing summary without one",
			zap.String("table", extract.Name))
	default:
		return nil, fmt.Errorf("embed summary for %s: %w", extract.Name, err)
	}

	if err := s.repo.Upsert(ctx, summary); err != nil {
		return nil, err
	}

	s.logger.Info("table summarized",
		zap.String("table", extract.Name),
		zap.Int("summary_len", len(summaryText)),
		zap.Bool("embedded", len(summary.Embedding) > 0),
		zap.Int("total_tokens", result.TotalTokens))

	return summary, nil
}

func (s *schemaSummaryService) GetSummary(ctx context.Context, tableName string) (*models.SchemaSummary, error) {
	return s.repo.GetByTable(ctx, strings.ToUpper(tableName))
}

func (s *schemaSummaryService) ListSummaries(ctx context.Context) ([]*models.SchemaSummary, error) {
	return s.repo.List(ctx)
}

// TableProfileFromExtract maps an extraction result into prompt context.
func TableProfileFromExtract(extract *sapdb.TableExtract) prompts.TableProfile {
	profile := prompts.TableProfile{
		Name:        extract.Name,
		Description: extract.Description,
		RowCount:    extract.RowCount,
		SampleRows:  extract.SampleRows,
	}
	for _, col := range extract.Columns {
		profile.Columns = append(profile.Columns, prompts.ColumnProfile{
			Name:           col.Name,
			DataType:       col.DataType,
			IsNullable:     col.IsNullable,
			IsPrimaryKey:   col.IsPrimaryKey,
			DistinctValues: extract.DistinctValues[col.Name],
		})
	}
	return profile
}
