package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/saplens-io/saplens-engine/pkg/adapters/sapdb"
	"github.com/saplens-io/saplens-engine/pkg/jsonutil"
	"github.com/saplens-io/saplens-engine/pkg/llm"
	"github.com/saplens-io/saplens-engine/pkg/models"
	"github.com/saplens-io/saplens-engine/pkg/prompts"
	"github.com/saplens-io/saplens-engine/pkg/repositories"
)

// Heuristic thresholds for relationship candidates.
const (
	nameSimilarityThreshold = 0.85
	valueOverlapThreshold   = 0.30
)

// RelationshipService infers join relationships between the SAP tables from
// name similarity, sample value overlap, curated business rules, and an
// optional LLM review pass. Each inference run replaces the stored set.
type RelationshipService interface {
	// Infer rebuilds the relationship set from the given extracts.
	Infer(ctx context.Context, extracts []*sapdb.TableExtract) ([]*models.TableRelationship, error)

	// List returns the stored relationships.
	List(ctx context.Context) ([]*models.TableRelationship, error)

	// ListByTable returns relationships touching one table.
	ListByTable(ctx context.Context, tableName string) ([]*models.TableRelationship, error)
}

// relationshipReviewResponse is the JSON shape of the LLM review pass.
// Confidence stays raw because models occasionally quote it as a string.
type relationshipReviewResponse struct {
	Decisions []struct {
		CandidateID string          `json:"candidate_id"`
		Action      string          `json:"action"`
		Confidence  json.RawMessage `json:"confidence"`
		Reasoning   string          `json:"reasoning"`
	} `json:"decisions"`
	NewRelationships []struct {
		SourceTable  string          `json:"source_table"`
		SourceColumn string          `json:"source_column"`
		TargetTable  string          `json:"target_table"`
		TargetColumn string          `json:"target_column"`
		Confidence   json.RawMessage `json:"confidence"`
		Reasoning    string          `json:"reasoning"`
	} `json:"new_relationships"`
}

type relationshipService struct {
	llmClient   llm.Client
	repo        repositories.RelationshipRepository
	rules       *BusinessRules
	useLLMPass  bool
	temperature float64
	logger      *zap.Logger
}

// NewRelationshipService creates a new RelationshipService.
func NewRelationshipService(llmClient llm.Client, repo repositories.RelationshipRepository, rules *BusinessRules, useLLMPass bool, temperature float64, logger *zap.Logger) RelationshipService {
	return &relationshipService{
		llmClient:   llmClient,
		repo:        repo,
		rules:       rules,
		useLLMPass:  useLLMPass,
		temperature: temperature,
		logger:      logger.Named("relationships"),
	}
}

var _ RelationshipService = (*relationshipService)(nil)

func (s *relationshipService) Infer(ctx context.Context, extracts []*sapdb.TableExtract) ([]*models.TableRelationship, error) {
	if len(extracts) < 2 {
		return nil, fmt.Errorf("relationship inference needs at least two tables, got %d", len(extracts))
	}

	// Business rules first: they are ground truth and always win.
	merged := make(map[string]*models.TableRelationship)
	for _, rule := range s.rules.Rules {
		rel := &models.TableRelationship{
			ID:          uuid.New(),
			LeftTable:   rule.LeftTable,
			LeftColumn:  rule.LeftColumn,
			RightTable:  rule.RightTable,
			RightColumn: rule.RightColumn,
			JoinType:    rule.JoinType,
			Confidence:  1.0,
			Provenance:  models.ProvenanceBusinessRule,
		}
		merged[rel.Key()] = rel
	}

	candidates := s.heuristicCandidates(extracts)

	if s.useLLMPass && len(candidates) > 0 {
		reviewed, err := s.reviewCandidates(ctx, extracts, candidates)
		if err != nil {
			// The heuristic evidence stands on its own; log and keep it.
			s.logger.Warn("LLM relationship review failed, keeping heuristic candidates",
				zap.Error(err))
		} else {
			candidates = reviewed
		}
	}

	for _, c := range candidates {
		if existing, ok := merged[c.Key()]; ok {
			// Rules and earlier evidence win; keep the higher confidence.
			if c.Confidence > existing.Confidence {
				existing.Confidence = c.Confidence
			}
			continue
		}
		merged[c.Key()] = c
	}

	relationships := make([]*models.TableRelationship, 0, len(merged))
	for _, rel := range merged {
		rel.Confidence = clampConfidence(rel.Confidence)
		relationships = append(relationships, rel)
	}

	if err := s.repo.ReplaceAll(ctx, relationships); err != nil {
		return nil, err
	}

	s.logger.Info("relationships inferred",
		zap.Int("total", len(relationships)),
		zap.Int("from_rules", len(s.rules.Rules)),
		zap.Int("candidates", len(candidates)))

	return relationships, nil
}

// heuristicCandidates scans every cross-table column pair for name
// similarity and sample value overlap.
func (s *relationshipService) heuristicCandidates(extracts []*sapdb.TableExtract) []*models.TableRelationship {
	var candidates []*models.TableRelationship
	seen := make(map[string]struct{})

	for i, left := range extracts {
		for _, right := range extracts[i+1:] {
			for _, lcol := range left.Columns {
				if s.rules.IsIgnoredColumn(lcol.Name) {
					continue
				}
				for _, rcol := range right.Columns {
					if s.rules.IsIgnoredColumn(rcol.Name) {
						continue
					}

					sim := nameSimilarity(lcol.Name, rcol.Name)
					overlap := jaccardOverlap(left.DistinctValues[lcol.Name], right.DistinctValues[rcol.Name])

					var provenance string
					var confidence float64
					switch {
					case sim >= nameSimilarityThreshold && overlap >= valueOverlapThreshold:
						provenance = models.ProvenanceNameMatch
						confidence = 0.6 + 0.4*overlap
					case sim >= nameSimilarityThreshold:
						provenance = models.ProvenanceNameMatch
						confidence = 0.5 * sim
					case overlap >= valueOverlapThreshold:
						provenance = models.ProvenanceValueOverlap
						confidence = 0.4 * overlap
					default:
						continue
					}

					rel := &models.TableRelationship{
						ID:          uuid.New(),
						LeftTable:   left.Name,
						LeftColumn:  lcol.Name,
						RightTable:  right.Name,
						RightColumn: rcol.Name,
						JoinType:    "INNER",
						Confidence:  clampConfidence(confidence),
						Provenance:  provenance,
					}
					if _, dup := seen[rel.Key()]; dup {
						continue
					}
					seen[rel.Key()] = struct{}{}
					candidates = append(candidates, rel)
				}
			}
		}
	}

	return candidates
}

// reviewCandidates sends heuristic candidates through the LLM, dropping
// rejected ones and adding any new relationships it proposes.
func (s *relationshipService) reviewCandidates(ctx context.Context, extracts []*sapdb.TableExtract, candidates []*models.TableRelationship) ([]*models.TableRelationship, error) {
	byID := make(map[string]*models.TableRelationship, len(candidates))
	candidateCtx := make([]prompts.CandidateContext, 0, len(candidates))
	for _, c := range candidates {
		byID[c.ID.String()] = c
		candidateCtx = append(candidateCtx, prompts.CandidateContext{
			ID:           c.ID.String(),
			SourceTable:  c.LeftTable,
			SourceColumn: c.LeftColumn,
			TargetTable:  c.RightTable,
			TargetColumn: c.RightColumn,
			Provenance:   c.Provenance,
		})
	}

	tables := make([]prompts.TableProfile, 0, len(extracts))
	for _, e := range extracts {
		tables = append(tables, TableProfileFromExtract(e))
	}

	prompt := prompts.BuildRelationshipAnalysisPrompt(tables, candidateCtx)
	result, err := s.llmClient.GenerateResponse(ctx, prompt, prompts.BuildRelationshipAnalysisSystemMessage(), s.temperature)
	if err != nil {
		return nil, err
	}

	parsed, err := llm.ParseJSONResponse[relationshipReviewResponse](result.Content)
	if err != nil {
		return nil, fmt.Errorf("parse relationship review response: %w", err)
	}

	var reviewed []*models.TableRelationship
	decided := make(map[string]struct{})
	for _, d := range parsed.Decisions {
		c, ok := byID[d.CandidateID]
		if !ok {
			continue
		}
		decided[d.CandidateID] = struct{}{}
		if !strings.EqualFold(d.Action, "confirm") {
			continue
		}
		c.Provenance = models.ProvenanceLLM
		c.Confidence = clampConfidence(jsonutil.FlexibleFloat64Value(d.Confidence, c.Confidence))
		reviewed = append(reviewed, c)
	}

	// Candidates the review never mentioned keep their heuristic score.
	for _, c := range candidates {
		if _, ok := decided[c.ID.String()]; !ok {
			reviewed = append(reviewed, c)
		}
	}

	for _, n := range parsed.NewRelationships {
		if !sapdb.IsKnownTable(n.SourceTable) || !sapdb.IsKnownTable(n.TargetTable) {
			continue
		}
		reviewed = append(reviewed, &models.TableRelationship{
			ID:          uuid.New(),
			LeftTable:   strings.ToUpper(n.SourceTable),
			LeftColumn:  strings.ToUpper(n.SourceColumn),
			RightTable:  strings.ToUpper(n.TargetTable),
			RightColumn: strings.ToUpper(n.TargetColumn),
			JoinType:    "INNER",
			Confidence:  clampConfidence(jsonutil.FlexibleFloat64Value(n.Confidence, 0)),
			Provenance:  models.ProvenanceLLM,
		})
	}

	return reviewed, nil
}

func (s *relationshipService) List(ctx context.Context) ([]*models.TableRelationship, error) {
	return s.repo.List(ctx)
}

func (s *relationshipService) ListByTable(ctx context.Context, tableName string) ([]*models.TableRelationship, error) {
	return s.repo.ListByTable(ctx, strings.ToUpper(tableName))
}
