package models

import (
	"time"

	"github.com/google/uuid"
)

// Relationship provenance values. Business rules always win over inference;
// the LLM pass only reviews heuristic candidates.
const (
	ProvenanceBusinessRule = "business_rule"
	ProvenanceNameMatch    = "name_match"
	ProvenanceValueOverlap = "value_overlap"
	ProvenanceLLM          = "llm"
)

// TableRelationship is an inferred or curated join between two SAP table columns.
// The full set is rebuilt wholesale (delete-then-insert) on each inference run.
type TableRelationship struct {
	ID          uuid.UUID `json:"id"`
	LeftTable   string    `json:"left_table"`
	LeftColumn  string    `json:"left_column"`
	RightTable  string    `json:"right_table"`
	RightColumn string    `json:"right_column"`
	JoinType    string    `json:"join_type"`  // INNER, LEFT
	Confidence  float64   `json:"confidence"` // [0,1]
	Provenance  string    `json:"provenance"`
	CreatedAt   time.Time `json:"created_at"`
}

// Key returns a direction-insensitive identity for deduplication across
// evidence sources.
func (r *TableRelationship) Key() string {
	a := r.LeftTable + "." + r.LeftColumn
	b := r.RightTable + "." + r.RightColumn
	if a > b {
		a, b = b, a
	}
	return a + "=" + b
}
