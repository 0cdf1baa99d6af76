package models

import (
	"time"

	"github.com/google/uuid"
)

// ColumnMetadata holds per-column analysis results for a SAP table column.
// Keyed by (table_name, column_name); reanalysis upserts.
type ColumnMetadata struct {
	ID           uuid.UUID  `json:"id"`
	TableName    string     `json:"table_name"`
	ColumnName   string     `json:"column_name"`
	DataType     string     `json:"data_type"`
	SemanticTags []string   `json:"semantic_tags,omitempty"`
	SampleValues []string   `json:"sample_values,omitempty"`
	Description  string     `json:"description,omitempty"`
	Embedding    []float32  `json:"embedding,omitempty"`
	AnalyzedAt   *time.Time `json:"analyzed_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// QualifiedName returns "TABLE.COLUMN" for prompts and logs.
func (c *ColumnMetadata) QualifiedName() string {
	return c.TableName + "." + c.ColumnName
}
