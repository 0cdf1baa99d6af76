package services

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/saplens-io/saplens-engine/pkg/adapters/sapdb"
	"github.com/saplens-io/saplens-engine/pkg/apperrors"
)

// Pipeline stage names, in execution order.
const (
	StageExtract       = "extract"
	StageSummarize     = "summarize"
	StageColumns       = "column_analysis"
	StageRelationships = "relationships"
	StageGroundTruth   = "ground_truth"
)

// Stage statuses.
const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusPartial   = "partial"
	StatusFailed    = "failed"
	StatusSkipped   = "skipped"
)

// StageResult records one stage's outcome.
type StageResult struct {
	Name       string   `json:"name"`
	Status     string   `json:"status"`
	DurationMS int64    `json:"duration_ms"`
	Errors     []string `json:"errors,omitempty"`
}

// PipelineResult is the outcome of one full pipeline run.
type PipelineResult struct {
	Running    bool          `json:"running"`
	Stages     []StageResult `json:"stages"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt *time.Time    `json:"finished_at,omitempty"`
	Succeeded  bool          `json:"succeeded"`
}

// PipelineService runs the full ingestion chain: extraction, summarization,
// column analysis, relationship inference, and ground truth assembly. A
// failed table doesn't abort the run; later stages work with what succeeded.
type PipelineService interface {
	// Run executes the pipeline. Only one run may be active at a time;
	// a second concurrent call returns apperrors.ErrConflict.
	Run(ctx context.Context) (*PipelineResult, error)

	// Status returns the latest run's state, nil if never run.
	Status() *PipelineResult
}

type pipelineService struct {
	extractor     sapdb.Extractor
	summaries     SchemaSummaryService
	columns       ColumnAnalysisService
	relationships RelationshipService
	groundTruth   GroundTruthService
	debugDumpPath string
	logger        *zap.Logger

	mu      sync.Mutex
	running bool
	last    *PipelineResult
}

// NewPipelineService creates a new PipelineService. debugDumpPath, when
// non-empty, receives a JSON dump of every extraction for inspection.
func NewPipelineService(
	extractor sapdb.Extractor,
	summaries SchemaSummaryService,
	columns ColumnAnalysisService,
	relationships RelationshipService,
	groundTruth GroundTruthService,
	debugDumpPath string,
	logger *zap.Logger,
) PipelineService {
	return &pipelineService{
		extractor:     extractor,
		summaries:     summaries,
		columns:       columns,
		relationships: relationships,
		groundTruth:   groundTruth,
		debugDumpPath: debugDumpPath,
		logger:        logger.Named("pipeline"),
	}
}

var _ PipelineService = (*pipelineService)(nil)

func (s *pipelineService) Run(ctx context.Context) (*PipelineResult, error) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: pipeline already running", apperrors.ErrConflict)
	}
	s.running = true
	result := &PipelineResult{Running: true, StartedAt: time.Now().UTC()}
	s.last = result
	s.mu.Unlock()

	defer func() {
		now := time.Now().UTC()
		s.mu.Lock()
		s.running = false
		result.Running = false
		result.FinishedAt = &now
		s.mu.Unlock()
	}()

	extracts := s.runExtract(ctx)
	if len(extracts) == 0 {
		s.logger.Error("extraction produced no tables, aborting pipeline")
		return s.snapshot(), fmt.Errorf("pipeline aborted: no tables extracted")
	}

	s.runSummarize(ctx, extracts)
	s.runColumns(ctx, extracts)
	s.runRelationships(ctx, extracts)
	s.runGroundTruth(ctx)

	succeeded := true
	for _, stage := range result.Stages {
		if stage.Status == StatusFailed {
			succeeded = false
			break
		}
	}
	s.mu.Lock()
	result.Succeeded = succeeded
	s.mu.Unlock()

	s.logger.Info("pipeline finished", zap.Bool("succeeded", succeeded))
	return s.snapshot(), nil
}

func (s *pipelineService) Status() *PipelineResult {
	return s.snapshot()
}

// snapshot copies the last result so callers never see live mutation.
func (s *pipelineService) snapshot() *PipelineResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return nil
	}
	cp := *s.last
	cp.Stages = append([]StageResult(nil), s.last.Stages...)
	return &cp
}

func (s *pipelineService) appendStage(stage StageResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last.Stages = append(s.last.Stages, stage)
}

func (s *pipelineService) runExtract(ctx context.Context) []*sapdb.TableExtract {
	started := time.Now()
	stage := StageResult{Name: StageExtract}

	var extracts []*sapdb.TableExtract
	for _, table := range sapdb.KnownTables {
		extract, err := s.extractor.ExtractTable(ctx, table)
		if err != nil {
			s.logger.Error("table extraction failed", zap.String("table", table), zap.Error(err))
			stage.Errors = append(stage.Errors, fmt.Sprintf("%s: %v", table, err))
			continue
		}
		extracts = append(extracts, extract)
	}

	stage.Status = partialStatus(len(extracts), len(sapdb.KnownTables), stage.Errors)
	stage.DurationMS = time.Since(started).Milliseconds()
	s.appendStage(stage)

	if len(extracts) > 0 && s.debugDumpPath != "" {
		s.dumpExtracts(extracts)
	}

	return extracts
}

func (s *pipelineService) runSummarize(ctx context.Context, extracts []*sapdb.TableExtract) {
	started := time.Now()
	stage := StageResult{Name: StageSummarize}

	done := 0
	for _, extract := range extracts {
		if _, err := s.summaries.Summarize(ctx, extract); err != nil {
			s.logger.Error("summarization failed", zap.String("table", extract.Name), zap.Error(err))
			stage.Errors = append(stage.Errors, fmt.Sprintf("%s: %v", extract.Name, err))
			continue
		}
		done++
	}

	stage.Status = partialStatus(done, len(extracts), stage.Errors)
	stage.DurationMS = time.Since(started).Milliseconds()
	s.appendStage(stage)
}

func (s *pipelineService) runColumns(ctx context.Context, extracts []*sapdb.TableExtract) {
	started := time.Now()
	stage := StageResult{Name: StageColumns}

	done := 0
	for _, extract := range extracts {
		if _, err := s.columns.AnalyzeTable(ctx, extract); err != nil {
			s.logger.Error("column analysis failed", zap.String("table", extract.Name), zap.Error(err))
			stage.Errors = append(stage.Errors, fmt.Sprintf("%s: %v", extract.Name, err))
			continue
		}
		done++
	}

	stage.Status = partialStatus(done, len(extracts), stage.Errors)
	stage.DurationMS = time.Since(started).Milliseconds()
	s.appendStage(stage)
}

func (s *pipelineService) runRelationships(ctx context.Context, extracts []*sapdb.TableExtract) {
	started := time.Now()
	stage := StageResult{Name: StageRelationships}

	if len(extracts) < 2 {
		stage.Status = StatusSkipped
		stage.Errors = append(stage.Errors, "fewer than two tables extracted")
	} else if _, err := s.relationships.Infer(ctx, extracts); err != nil {
		s.logger.Error("relationship inference failed", zap.Error(err))
		stage.Status = StatusFailed
		stage.Errors = append(stage.Errors, err.Error())
	} else {
		stage.Status = StatusCompleted
	}

	stage.DurationMS = time.Since(started).Milliseconds()
	s.appendStage(stage)
}

func (s *pipelineService) runGroundTruth(ctx context.Context) {
	started := time.Now()
	stage := StageResult{Name: StageGroundTruth}

	if _, err := s.groundTruth.Build(ctx); err != nil {
		s.logger.Error("ground truth build failed", zap.Error(err))
		stage.Status = StatusFailed
		stage.Errors = append(stage.Errors, err.Error())
	} else {
		stage.Status = StatusCompleted
	}

	stage.DurationMS = time.Since(started).Milliseconds()
	s.appendStage(stage)
}

func (s *pipelineService) dumpExtracts(extracts []*sapdb.TableExtract) {
	data, err := json.MarshalIndent(extracts, "", "  ")
	if err != nil {
		s.logger.Warn("failed to marshal extraction dump", zap.Error(err))
		return
	}
	if err := os.WriteFile(s.debugDumpPath, data, 0o644); err != nil {
		s.logger.Warn("failed to write extraction dump",
			zap.String("path", s.debugDumpPath), zap.Error(err))
	}
}

func partialStatus(done, total int, errs []string) string {
	switch {
	case done == 0:
		return StatusFailed
	case len(errs) > 0 || done < total:
		return StatusPartial
	default:
		return StatusCompleted
	}
}
