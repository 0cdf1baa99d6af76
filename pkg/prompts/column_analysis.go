package prompts

import (
	"fmt"
	"strings"
)

// BuildColumnAnalysisPrompt asks the LLM to describe a batch of columns from
// one table. Batching keeps token usage bounded while still giving the model
// the whole-table context it needs to disambiguate SAP abbreviations.
func BuildColumnAnalysisPrompt(table TableProfile, batch []ColumnProfile) string {
	var prompt strings.Builder

	prompt.WriteString("# Column Analysis\n\n")
	prompt.WriteString(fmt.Sprintf("Analyze the following columns of SAP table %s.\n", table.Name))
	if table.Description != "" {
		prompt.WriteString(fmt.Sprintf("Table meaning: %s\n", table.Description))
	}
	prompt.WriteString("\n## Columns to analyze\n\n")

	for _, col := range batch {
		flags := ""
		if col.IsPrimaryKey {
			flags += " [PK]"
		}
		prompt.WriteString(fmt.Sprintf("### %s (%s)%s\n", col.Name, col.DataType, flags))
		if len(col.DistinctValues) > 0 {
			prompt.WriteString(fmt.Sprintf("Observed values: %s\n", formatValues(col.DistinctValues, 12)))
		}
		prompt.WriteString("\n")
	}

	prompt.WriteString("## Output Format\n\n")
	prompt.WriteString("Respond in JSON with a `columns` array, one entry per column above:\n")
	prompt.WriteString("- `column`: the column name exactly as given\n")
	prompt.WriteString("- `description`: what the column means in business terms\n")
	prompt.WriteString("- `semantic_type`: one of \"identifier\", \"foreign_key\", \"date\", \"amount\", \"quantity\", \"code\", \"text\", \"flag\"\n")
	prompt.WriteString("- `is_enum`: true if the observed values look like a small fixed code set\n")
	prompt.WriteString("- `references`: \"TABLE.COLUMN\" if this column references another SAP table, else empty string\n\n")
	prompt.WriteString("Example:\n")
	prompt.WriteString("```json\n")
	prompt.WriteString(`{
  "columns": [
    {
      "column": "KUNNR",
      "description": "Customer number of the sold-to party.",
      "semantic_type": "foreign_key",
      "is_enum": false,
      "references": "KNA1.KUNNR"
    }
  ]
}
`)
	prompt.WriteString("```\n\n")
	prompt.WriteString("Return ONLY the JSON, no additional text.\n")

	return prompt.String()
}

// BuildColumnAnalysisSystemMessage returns the system message for column analysis.
func BuildColumnAnalysisSystemMessage() string {
	return `You are an SAP data dictionary expert. You recognize standard SAP column names (VBELN, MATNR, KUNNR, ERDAT, NETWR and the rest) and describe them precisely.`
}
