// Package prompts builds the LLM prompts used across the pipeline. Each
// builder takes plain context structs so services decide what to include.
package prompts

import (
	"fmt"
	"strings"
)

// TableProfile is the extracted shape of one SAP table, formatted into
// prompts for summarization and column analysis.
type TableProfile struct {
	Name        string
	Description string
	RowCount    int64
	Columns     []ColumnProfile
	SampleRows  []map[string]any
}

// ColumnProfile is one column plus its observed sample values.
type ColumnProfile struct {
	Name           string
	DataType       string
	IsNullable     bool
	IsPrimaryKey   bool
	DistinctValues []string
}

// BuildSchemaSummaryPrompt asks the LLM to summarize one table's business
// meaning from its structure and sample data.
func BuildSchemaSummaryPrompt(table TableProfile) string {
	var prompt strings.Builder

	prompt.WriteString("# Table Summarization\n\n")
	prompt.WriteString("Summarize the business meaning of the following SAP table.\n\n")

	writeTableSection(&prompt, table)

	prompt.WriteString("## Output Format\n\n")
	prompt.WriteString("Respond in JSON with:\n")
	prompt.WriteString("- `summary`: 2-3 sentences describing what the table holds and how it is used\n")
	prompt.WriteString("- `business_purpose`: one sentence naming the business process this table supports\n")
	prompt.WriteString("- `tags`: array of 3-6 short lowercase keywords for retrieval\n\n")
	prompt.WriteString("Example:\n")
	prompt.WriteString("```json\n")
	prompt.WriteString(`{
  "summary": "Sales order headers, one row per order. Carries the customer, order date, and document currency for every sales document.",
  "business_purpose": "Order-to-cash: entry point for sales order processing.",
  "tags": ["sales", "orders", "header", "customer"]
}
`)
	prompt.WriteString("```\n\n")
	prompt.WriteString("Return ONLY the JSON, no additional text.\n")

	return prompt.String()
}

// BuildSchemaSummarySystemMessage returns the system message for table summarization.
func BuildSchemaSummarySystemMessage() string {
	return `You are an SAP data analyst. You know the standard SAP ERP tables (VBAK, VBAP, MARA, KNA1) and their German-abbreviated column names. Explain tables in plain business language.`
}

func writeTableSection(prompt *strings.Builder, table TableProfile) {
	prompt.WriteString(fmt.Sprintf("## Table: %s\n", table.Name))
	if table.Description != "" {
		prompt.WriteString(fmt.Sprintf("Standard SAP description: %s\n", table.Description))
	}
	prompt.WriteString(fmt.Sprintf("Row count: %d\n\n", table.RowCount))

	prompt.WriteString("Columns:\n")
	for _, col := range table.Columns {
		flags := ""
		if col.IsPrimaryKey {
			flags += " [PK]"
		}
		if col.IsNullable {
			flags += " (nullable)"
		}
		if col.DataType != "" {
			prompt.WriteString(fmt.Sprintf("- %s (%s)%s\n", col.Name, col.DataType, flags))
		} else {
			prompt.WriteString(fmt.Sprintf("- %s%s\n", col.Name, flags))
		}
		if len(col.DistinctValues) > 0 {
			prompt.WriteString(fmt.Sprintf("  sample values: %s\n", formatValues(col.DistinctValues, 8)))
		}
	}
	prompt.WriteString("\n")

	if len(table.SampleRows) > 0 {
		prompt.WriteString(fmt.Sprintf("Sample rows (first %d):\n", len(table.SampleRows)))
		for _, row := range table.SampleRows {
			prompt.WriteString(fmt.Sprintf("- %v\n", row))
		}
		prompt.WriteString("\n")
	}
}

// formatValues joins up to max values, marking truncation.
func formatValues(values []string, max int) string {
	if len(values) <= max {
		return strings.Join(values, ", ")
	}
	return strings.Join(values[:max], ", ") + fmt.Sprintf(", ... (%d total)", len(values))
}
