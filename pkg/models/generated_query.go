package models

import (
	"time"

	"github.com/google/uuid"
)

// QueryIntent is the structured intent the LLM extracts from a user prompt.
type QueryIntent struct {
	Entity       string   `json:"entity"`
	Aggregation  string   `json:"aggregation,omitempty"`
	Filters      []string `json:"filters,omitempty"`
	TimeRange    string   `json:"time_range,omitempty"`
	OutputFields []string `json:"output_fields,omitempty"`
}

// GeneratedQuery is one audit-log row per user prompt. Written once per
// generation; read back only for history display.
type GeneratedQuery struct {
	ID                 uuid.UUID   `json:"id"`
	Prompt             string      `json:"prompt"`
	GeneratedSQL       string      `json:"generated_sql"`
	Intent             QueryIntent `json:"intent"`
	TablesUsed         []string    `json:"tables_used,omitempty"`
	Confidence         float64     `json:"confidence"`
	ValidationErrors   int         `json:"validation_errors"`
	ValidationWarnings int         `json:"validation_warnings"`
	IsValid            bool        `json:"is_valid"`
	IsFallback         bool        `json:"is_fallback"`
	Executed           bool        `json:"executed"`
	Model              string      `json:"model"`
	PromptTokens       int         `json:"prompt_tokens"`
	CompletionTokens   int         `json:"completion_tokens"`
	DurationMS         int64       `json:"duration_ms"`
	CreatedAt          time.Time   `json:"created_at"`
}
