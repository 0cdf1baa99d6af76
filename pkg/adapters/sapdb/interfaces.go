// Package sapdb provides read-only access to the simulated SAP datasource.
// Two drivers are supported: PostgreSQL and SQL Server.
package sapdb

import (
	"context"
	"strings"
)

// KnownTables are the SAP tables the engine works with. Extraction,
// relationship inference, and SQL generation are scoped to these four.
var KnownTables = []string{"VBAK", "VBAP", "MARA", "KNA1"}

// TableDescriptions carries the standard SAP meaning of each known table.
// Fed into LLM prompts as background context.
var TableDescriptions = map[string]string{
	"VBAK": "Sales document header data",
	"VBAP": "Sales document item data",
	"MARA": "General material master data",
	"KNA1": "Customer master general data",
}

// IsKnownTable reports whether name is one of the SAP tables, case-insensitively.
func IsKnownTable(name string) bool {
	for _, t := range KnownTables {
		if strings.EqualFold(t, name) {
			return true
		}
	}
	return false
}

// MaxQueryLimit is the hard cap on rows returned by Query.
const MaxQueryLimit = 1000

// extractConcurrency bounds the metadata queries run in parallel per table
// during extraction.
const extractConcurrency = 4

// ColumnInfo describes one column of an extracted table.
type ColumnInfo struct {
	Name            string `json:"name"`
	DataType        string `json:"data_type"`
	IsNullable      bool   `json:"is_nullable"`
	IsPrimaryKey    bool   `json:"is_primary_key"`
	OrdinalPosition int    `json:"ordinal_position"`
}

// TableExtract is everything pulled from the source for one table.
type TableExtract struct {
	Name           string              `json:"name"`
	Description    string              `json:"description"`
	RowCount       int64               `json:"row_count"`
	Columns        []ColumnInfo        `json:"columns"`
	SampleRows     []map[string]any    `json:"sample_rows"`
	DistinctValues map[string][]string `json:"distinct_values"`
}

// QueryResult holds the rows returned by a bounded read-only query.
type QueryResult struct {
	Columns  []string         `json:"columns"`
	Rows     []map[string]any `json:"rows"`
	RowCount int              `json:"row_count"`
}

// Extractor pulls schema and sample data from the SAP source and runs
// bounded SELECT queries against it. Implementations own their connection
// and must be closed when done.
type Extractor interface {
	// TestConnection verifies the source is reachable.
	TestConnection(ctx context.Context) error

	// ExtractTable pulls column metadata, row count, sample rows, and
	// bounded distinct values per column for one known table.
	ExtractTable(ctx context.Context, table string) (*TableExtract, error)

	// Query runs a SELECT and returns bounded results. The query is always
	// wrapped with a dialect-specific limit; limit <= 0 or above
	// MaxQueryLimit falls back to MaxQueryLimit.
	Query(ctx context.Context, sqlQuery string, limit int) (*QueryResult, error)

	// QuoteIdentifier quotes a table or column name for this dialect.
	QuoteIdentifier(name string) string

	// Close releases the connection.
	Close() error
}

func clampLimit(limit int) int {
	if limit <= 0 || limit > MaxQueryLimit {
		return MaxQueryLimit
	}
	return limit
}
