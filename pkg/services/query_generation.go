package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/saplens-io/saplens-engine/pkg/adapters/sapdb"
	"github.com/saplens-io/saplens-engine/pkg/apperrors"
	"github.com/saplens-io/saplens-engine/pkg/llm"
	"github.com/saplens-io/saplens-engine/pkg/models"
	"github.com/saplens-io/saplens-engine/pkg/prompts"
	"github.com/saplens-io/saplens-engine/pkg/repositories"
	sqlutil "github.com/saplens-io/saplens-engine/pkg/sql"

	"github.com/jinzhu/inflection"
)

// FallbackSQL is returned when no stored table is relevant to the question.
const FallbackSQL = `SELECT 'No relevant tables found' AS message;`

// Table selection bounds.
const (
	embeddingSimilarityThreshold = 0.25
	maxSelectedTables            = 4
)

// GenerateResult pairs the persisted audit row with its validation report.
type GenerateResult struct {
	Query  *models.GeneratedQuery `json:"query"`
	Report *ValidationReport      `json:"report"`
}

// QueryService turns natural-language questions into validated SQL and runs
// the result read-only against the SAP source.
type QueryService interface {
	// Generate runs the full chain: intent extraction, table selection, SQL
	// drafting, identifier quoting, validation, and audit persistence.
	// A question matching no stored table yields the fallback statement,
	// never an error.
	Generate(ctx context.Context, question string) (*GenerateResult, error)

	// Execute runs a previously generated, valid query against the SAP
	// source with a bounded row count.
	Execute(ctx context.Context, id uuid.UUID) (*sapdb.QueryResult, error)

	// History returns recent generations, newest first.
	History(ctx context.Context, limit int) ([]*models.GeneratedQuery, error)
}

// sqlDraftResponse is the JSON shape the drafting LLM must return.
type sqlDraftResponse struct {
	SQL         string   `json:"sql"`
	Explanation string   `json:"explanation"`
	TablesUsed  []string `json:"tables_used"`
}

type queryService struct {
	llmClient   llm.Client
	extractor   sapdb.Extractor
	summaryRepo repositories.SchemaSummaryRepository
	gtRepo      repositories.GroundTruthRepository
	auditRepo   repositories.GeneratedQueryRepository
	validator   ValidationService
	rowLimit    int
	temperature float64
	logger      *zap.Logger
}

// NewQueryService creates a new QueryService. rowLimit bounds executed
// result sets; temperature is the sampling temperature for the intent and
// drafting calls.
func NewQueryService(
	llmClient llm.Client,
	extractor sapdb.Extractor,
	summaryRepo repositories.SchemaSummaryRepository,
	gtRepo repositories.GroundTruthRepository,
	auditRepo repositories.GeneratedQueryRepository,
	validator ValidationService,
	rowLimit int,
	temperature float64,
	logger *zap.Logger,
) QueryService {
	return &queryService{
		llmClient:   llmClient,
		extractor:   extractor,
		summaryRepo: summaryRepo,
		gtRepo:      gtRepo,
		auditRepo:   auditRepo,
		validator:   validator,
		rowLimit:    rowLimit,
		temperature: temperature,
		logger:      logger.Named("query"),
	}
}

var _ QueryService = (*queryService)(nil)

func (s *queryService) Generate(ctx context.Context, question string) (*GenerateResult, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, fmt.Errorf("question is empty")
	}

	started := time.Now()
	var totalPromptTokens, totalCompletionTokens int

	summaries, err := s.summaryRepo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("load summaries: %w", err)
	}

	intent, usage, err := s.extractIntent(ctx, question, summaries)
	if err != nil {
		return nil, err
	}
	totalPromptTokens += usage.PromptTokens
	totalCompletionTokens += usage.CompletionTokens

	selected := s.selectTables(ctx, question, intent, summaries)
	if len(selected) == 0 {
		// No relevant tables is an answer, not a failure.
		return s.persistFallback(ctx, question, intent, started, totalPromptTokens, totalCompletionTokens)
	}

	gt, err := s.gtRepo.GetCurrent(ctx)
	if err != nil {
		if errors.Is(err, apperrors.ErrNoGroundTruth) {
			return nil, fmt.Errorf("no ground truth built yet; run the pipeline first: %w", err)
		}
		return nil, err
	}

	draft, usage, err := s.draftSQL(ctx, question, selected, &gt.Graph)
	if err != nil {
		return nil, err
	}
	totalPromptTokens += usage.PromptTokens
	totalCompletionTokens += usage.CompletionTokens

	// The draft is kept verbatim apart from identifier quoting.
	finalSQL := sqlutil.QuoteIdentifiers(draft.SQL, graphTableNames(&gt.Graph))

	report := s.validator.Validate(finalSQL, &gt.Graph)

	query := &models.GeneratedQuery{
		Prompt:             question,
		GeneratedSQL:       finalSQL,
		Intent:             intent,
		TablesUsed:         report.TablesUsed,
		Confidence:         report.Confidence,
		ValidationErrors:   len(report.Errors),
		ValidationWarnings: len(report.Warnings),
		IsValid:            report.IsValid,
		Model:              s.llmClient.GetModel(),
		PromptTokens:       totalPromptTokens,
		CompletionTokens:   totalCompletionTokens,
		DurationMS:         time.Since(started).Milliseconds(),
	}
	if err := s.auditRepo.Create(ctx, query); err != nil {
		return nil, err
	}

	s.logger.Info("query generated",
		zap.String("id", query.ID.String()),
		zap.Bool("valid", report.IsValid),
		zap.Float64("confidence", report.Confidence),
		zap.Strings("tables", report.TablesUsed),
		zap.Int64("duration_ms", query.DurationMS))

	return &GenerateResult{Query: query, Report: report}, nil
}

type tokenUsage struct {
	PromptTokens     int
	CompletionTokens int
}

func (s *queryService) extractIntent(ctx context.Context, question string, summaries []*models.SchemaSummary) (models.QueryIntent, tokenUsage, error) {
	summaryMap := make(map[string]string, len(summaries))
	for _, sum := range summaries {
		summaryMap[sum.TableName] = sum.Summary
	}

	prompt := prompts.BuildIntentExtractionPrompt(question, summaryMap)
	result, err := s.llmClient.GenerateResponse(ctx, prompt, prompts.BuildIntentExtractionSystemMessage(), s.temperature)
	if err != nil {
		return models.QueryIntent{}, tokenUsage{}, fmt.Errorf("extract intent: %w", err)
	}

	usage := tokenUsage{PromptTokens: result.PromptTokens, CompletionTokens: result.CompletionTokens}

	intent, err := llm.ParseJSONResponse[models.QueryIntent](result.Content)
	if err != nil {
		return models.QueryIntent{}, usage, fmt.Errorf("parse intent response: %w", err)
	}
	return intent, usage, nil
}

// selectTables picks the summaries relevant to the question. Embedding
// similarity is preferred; without embeddings it falls back to keyword
// matching on singularized words.
func (s *queryService) selectTables(ctx context.Context, question string, intent models.QueryIntent, summaries []*models.SchemaSummary) []*models.SchemaSummary {
	if len(summaries) == 0 {
		return nil
	}

	if selected := s.selectByEmbedding(ctx, question, summaries); selected != nil {
		return selected
	}
	return selectByKeywords(question, intent, summaries)
}

func (s *queryService) selectByEmbedding(ctx context.Context, question string, summaries []*models.SchemaSummary) []*models.SchemaSummary {
	embedded := false
	for _, sum := range summaries {
		if len(sum.Embedding) > 0 {
			embedded = true
			break
		}
	}
	if !embedded {
		return nil
	}

	questionEmbedding, err := s.llmClient.CreateEmbedding(ctx, question)
	if err != nil {
		if !errors.Is(err, llm.ErrEmbeddingsUnsupported) {
			s.logger.Warn("question embedding failed, falling back to keyword selection", zap.Error(err))
		}
		return nil
	}

	type scored struct {
		summary *models.SchemaSummary
		score   float64
	}
	var candidates []scored
	for _, sum := range summaries {
		if len(sum.Embedding) == 0 {
			continue
		}
		score := cosineSimilarity(questionEmbedding, sum.Embedding)
		if score >= embeddingSimilarityThreshold {
			candidates = append(candidates, scored{summary: sum, score: score})
		}
	}

	sort.Slice(candidates, func(i, j int) bool { return candidates[i].score > candidates[j].score })
	if len(candidates) > maxSelectedTables {
		candidates = candidates[:maxSelectedTables]
	}

	selected := make([]*models.SchemaSummary, 0, len(candidates))
	for _, c := range candidates {
		selected = append(selected, c.summary)
	}
	return selected
}

// selectByKeywords matches singularized question and intent words against
// table names and summary text.
func selectByKeywords(question string, intent models.QueryIntent, summaries []*models.SchemaSummary) []*models.SchemaSummary {
	words := strings.Fields(strings.ToLower(question))
	words = append(words, strings.Fields(strings.ToLower(intent.Entity))...)
	for _, f := range intent.OutputFields {
		words = append(words, strings.Fields(strings.ToLower(f))...)
	}

	keywords := make(map[string]struct{})
	for _, w := range words {
		w = strings.Trim(w, ".,?!'\"")
		if len(w) < 3 {
			continue
		}
		keywords[inflection.Singular(w)] = struct{}{}
	}

	var selected []*models.SchemaSummary
	for _, sum := range summaries {
		text := strings.ToLower(sum.TableName + " " + sum.Summary)
		for kw := range keywords {
			if strings.Contains(text, kw) {
				selected = append(selected, sum)
				break
			}
		}
	}
	if len(selected) > maxSelectedTables {
		selected = selected[:maxSelectedTables]
	}
	return selected
}

func (s *queryService) draftSQL(ctx context.Context, question string, selected []*models.SchemaSummary, graph *models.GroundTruthGraph) (*sqlDraftResponse, tokenUsage, error) {
	selectedNames := make(map[string]struct{}, len(selected))
	var tables []prompts.TableProfile
	for _, sum := range selected {
		selectedNames[sum.TableName] = struct{}{}
		tables = append(tables, tableProfileFromGraph(graph, sum.TableName, sum.Summary))
	}

	var joins []prompts.JoinContext
	for _, j := range graph.Joins {
		_, left := selectedNames[j.LeftTable]
		_, right := selectedNames[j.RightTable]
		if left && right {
			joins = append(joins, prompts.JoinContext{
				SourceTable:  j.LeftTable,
				SourceColumn: j.LeftColumn,
				TargetTable:  j.RightTable,
				TargetColumn: j.RightColumn,
			})
		}
	}

	prompt := prompts.BuildSQLGenerationPrompt(question, tables, joins)
	result, err := s.llmClient.GenerateResponse(ctx, prompt, prompts.BuildSQLGenerationSystemMessage(), s.temperature)
	if err != nil {
		return nil, tokenUsage{}, fmt.Errorf("draft SQL: %w", err)
	}

	usage := tokenUsage{PromptTokens: result.PromptTokens, CompletionTokens: result.CompletionTokens}

	draft, err := llm.ParseJSONResponse[sqlDraftResponse](result.Content)
	if err != nil {
		return nil, usage, fmt.Errorf("parse SQL draft response: %w", err)
	}
	if strings.TrimSpace(draft.SQL) == "" {
		return nil, usage, fmt.Errorf("SQL draft response has empty sql field")
	}
	return &draft, usage, nil
}

func (s *queryService) persistFallback(ctx context.Context, question string, intent models.QueryIntent, started time.Time, promptTokens, completionTokens int) (*GenerateResult, error) {
	query := &models.GeneratedQuery{
		Prompt:           question,
		GeneratedSQL:     FallbackSQL,
		Intent:           intent,
		Confidence:       0,
		IsValid:          true,
		IsFallback:       true,
		Model:            s.llmClient.GetModel(),
		PromptTokens:     promptTokens,
		CompletionTokens: completionTokens,
		DurationMS:       time.Since(started).Milliseconds(),
	}
	if err := s.auditRepo.Create(ctx, query); err != nil {
		return nil, err
	}

	s.logger.Info("no relevant tables, returning fallback",
		zap.String("id", query.ID.String()),
		zap.String("question", question))

	return &GenerateResult{
		Query:  query,
		Report: &ValidationReport{IsValid: true, Confidence: 0},
	}, nil
}

func (s *queryService) Execute(ctx context.Context, id uuid.UUID) (*sapdb.QueryResult, error) {
	query, err := s.auditRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if query.IsFallback {
		return nil, fmt.Errorf("%w: fallback statements are informational only", apperrors.ErrQueryNotAllowed)
	}
	if !query.IsValid {
		return nil, fmt.Errorf("%w: query failed validation", apperrors.ErrQueryNotAllowed)
	}

	normalized := sqlutil.ValidateAndNormalize(query.GeneratedSQL)
	if normalized.Error != nil {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrQueryNotAllowed, normalized.Error)
	}
	if _, err := sqlutil.EnsureReadOnly(normalized.NormalizedSQL); err != nil {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrQueryNotAllowed, err)
	}

	result, err := s.extractor.Query(ctx, normalized.NormalizedSQL, s.rowLimit)
	if err != nil {
		return nil, fmt.Errorf("execute against SAP source: %w", err)
	}

	if err := s.auditRepo.MarkExecuted(ctx, id); err != nil {
		s.logger.Warn("failed to mark query executed", zap.String("id", id.String()), zap.Error(err))
	}

	s.logger.Info("query executed",
		zap.String("id", id.String()),
		zap.Int("rows", result.RowCount))

	return result, nil
}

func (s *queryService) History(ctx context.Context, limit int) ([]*models.GeneratedQuery, error) {
	return s.auditRepo.ListRecent(ctx, limit)
}

func graphTableNames(graph *models.GroundTruthGraph) []string {
	names := make([]string, 0, len(graph.Tables))
	for _, t := range graph.Tables {
		names = append(names, t.Name)
	}
	return names
}

func tableProfileFromGraph(graph *models.GroundTruthGraph, tableName, summary string) prompts.TableProfile {
	profile := prompts.TableProfile{
		Name:        tableName,
		Description: summary,
	}
	for _, t := range graph.Tables {
		if t.Name != tableName {
			continue
		}
		for _, col := range t.Columns {
			profile.Columns = append(profile.Columns, prompts.ColumnProfile{Name: col})
		}
	}
	return profile
}

// cosineSimilarity computes the cosine of the angle between two vectors.
// Mismatched or zero-length vectors score zero.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
