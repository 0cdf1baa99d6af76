package services

import (
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/saplens-io/saplens-engine/pkg/models"
	sqlutil "github.com/saplens-io/saplens-engine/pkg/sql"
)

// Confidence penalties per finding.
const (
	errorPenalty   = 0.3
	warningPenalty = 0.1
)

var (
	// fromListPattern captures the comma-separated table list after FROM.
	fromListPattern = regexp.MustCompile(`(?i)\bFROM\s+("?\w+"?(?:\s+(?:AS\s+)?\w+)?(?:\s*,\s*"?\w+"?(?:\s+(?:AS\s+)?\w+)?)*)`)
	// joinTablePattern captures table references after any JOIN keyword.
	joinTablePattern = regexp.MustCompile(`(?i)\bJOIN\s+"?(\w+)"?`)
	// joinConditionPattern captures ON "A"."x" = "B"."y" join conditions.
	joinConditionPattern = regexp.MustCompile(`(?i)\bON\s+"?(\w+)"?\."?(\w+)"?\s*=\s*"?(\w+)"?\."?(\w+)"?`)

	// SQL keywords the FROM list pattern can overrun into.
	tableScanStopWords = map[string]struct{}{
		"SELECT": {}, "WHERE": {}, "GROUP": {}, "ORDER": {}, "LIMIT": {},
		"JOIN": {}, "INNER": {}, "LEFT": {}, "RIGHT": {}, "FULL": {},
		"CROSS": {}, "ON": {}, "AS": {}, "HAVING": {}, "UNION": {},
	}
)

// ValidationReport is the outcome of checking generated SQL against the
// ground truth graph.
type ValidationReport struct {
	IsValid    bool     `json:"is_valid"`
	Errors     []string `json:"errors,omitempty"`
	Warnings   []string `json:"warnings,omitempty"`
	Confidence float64  `json:"confidence"`
	TablesUsed []string `json:"tables_used,omitempty"`
}

// ValidationService checks generated SQL against the current ground truth:
// single statement, SELECT only, known tables, joins along known edges.
type ValidationService interface {
	Validate(sqlQuery string, graph *models.GroundTruthGraph) *ValidationReport
}

type validationService struct {
	logger *zap.Logger
}

// NewValidationService creates a new ValidationService.
func NewValidationService(logger *zap.Logger) ValidationService {
	return &validationService{logger: logger.Named("validation")}
}

var _ ValidationService = (*validationService)(nil)

func (s *validationService) Validate(sqlQuery string, graph *models.GroundTruthGraph) *ValidationReport {
	report := &ValidationReport{}

	normalized := sqlutil.ValidateAndNormalize(sqlQuery)
	if normalized.Error != nil {
		report.Errors = append(report.Errors, normalized.Error.Error())
	} else {
		sqlQuery = normalized.NormalizedSQL
	}

	if _, err := sqlutil.EnsureReadOnly(sqlQuery); err != nil {
		report.Errors = append(report.Errors, err.Error())
	}

	for _, hit := range sqlutil.ScreenStringLiterals(sqlQuery) {
		report.Errors = append(report.Errors,
			fmt.Sprintf("string literal %q matches an injection pattern (fingerprint %s)",
				hit.ParamValue, hit.Fingerprint))
	}

	tables := extractReferencedTables(sqlQuery)
	report.TablesUsed = tables

	// Without a graph only the statement-level checks apply.
	if graph == nil {
		report.Warnings = append(report.Warnings,
			"no ground truth graph available; table and join checks skipped")
		return s.finish(report)
	}

	for _, table := range tables {
		if !graph.HasTable(table) {
			report.Errors = append(report.Errors,
				fmt.Sprintf("table %s is not in the ground truth", table))
		}
	}

	for _, cond := range joinConditionPattern.FindAllStringSubmatch(sqlQuery, -1) {
		leftTable, leftCol := strings.ToUpper(cond[1]), strings.ToUpper(cond[2])
		rightTable, rightCol := strings.ToUpper(cond[3]), strings.ToUpper(cond[4])

		if !graph.HasJoin(leftTable, rightTable) {
			report.Warnings = append(report.Warnings,
				fmt.Sprintf("join between %s and %s has no known relationship", leftTable, rightTable))
			continue
		}
		if graph.HasTable(leftTable) && !graph.HasColumn(leftTable, leftCol) {
			report.Warnings = append(report.Warnings,
				fmt.Sprintf("join column %s.%s is not a known column", leftTable, leftCol))
		}
		if graph.HasTable(rightTable) && !graph.HasColumn(rightTable, rightCol) {
			report.Warnings = append(report.Warnings,
				fmt.Sprintf("join column %s.%s is not a known column", rightTable, rightCol))
		}
	}

	// More tables than FROM+JOINs can wire together suggests a cartesian
	// product or a missed join condition.
	joinCount := len(joinConditionPattern.FindAllString(sqlQuery, -1))
	if len(tables) > 1 && joinCount < len(tables)-1 {
		report.Warnings = append(report.Warnings,
			fmt.Sprintf("%d tables referenced but only %d join conditions", len(tables), joinCount))
	}

	return s.finish(report)
}

func (s *validationService) finish(report *ValidationReport) *ValidationReport {
	report.Confidence = clampConfidence(
		1.0 - errorPenalty*float64(len(report.Errors)) - warningPenalty*float64(len(report.Warnings)))
	report.IsValid = len(report.Errors) == 0

	s.logger.Debug("SQL validated",
		zap.Bool("valid", report.IsValid),
		zap.Int("errors", len(report.Errors)),
		zap.Int("warnings", len(report.Warnings)),
		zap.Float64("confidence", report.Confidence))

	return report
}

// extractReferencedTables pulls unique uppercase table names from FROM and
// JOIN clauses, including comma-separated FROM lists. Subquery parentheses
// yield no match and are skipped.
func extractReferencedTables(sqlQuery string) []string {
	seen := make(map[string]struct{})
	var tables []string

	add := func(name string) {
		name = strings.ToUpper(strings.Trim(name, `" `))
		if name == "" {
			return
		}
		if _, stop := tableScanStopWords[name]; stop {
			return
		}
		if _, ok := seen[name]; ok {
			return
		}
		seen[name] = struct{}{}
		tables = append(tables, name)
	}

	for _, m := range fromListPattern.FindAllStringSubmatch(sqlQuery, -1) {
		for _, item := range strings.Split(m[1], ",") {
			// Each list item is "table" or "table alias"; the table comes first.
			fields := strings.Fields(item)
			if len(fields) > 0 {
				add(fields[0])
			}
		}
	}
	for _, m := range joinTablePattern.FindAllStringSubmatch(sqlQuery, -1) {
		add(m[1])
	}

	return tables
}
