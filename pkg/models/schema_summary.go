package models

import (
	"time"

	"github.com/google/uuid"
)

// SchemaSummary is an LLM-written description of one SAP table plus an
// embedding of that description. Unique per table; re-summarization upserts.
type SchemaSummary struct {
	ID        uuid.UUID `json:"id"`
	TableName string    `json:"table_name"`
	Summary   string    `json:"summary"`
	Embedding []float32 `json:"embedding,omitempty"`
	Model     string    `json:"model"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
