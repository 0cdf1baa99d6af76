package prompts

import (
	"fmt"
	"sort"
	"strings"
)

// JoinContext is one ground-truth join passed to the SQL drafting prompt.
type JoinContext struct {
	SourceTable  string
	SourceColumn string
	TargetTable  string
	TargetColumn string
}

// BuildIntentExtractionPrompt asks the LLM to turn a natural-language
// question into a structured query intent.
func BuildIntentExtractionPrompt(question string, tableSummaries map[string]string) string {
	var prompt strings.Builder

	prompt.WriteString("# Query Intent Extraction\n\n")
	prompt.WriteString("Extract the structured intent from this question about SAP sales data.\n\n")
	prompt.WriteString(fmt.Sprintf("Question: %s\n\n", question))

	if len(tableSummaries) > 0 {
		prompt.WriteString("## Available tables\n\n")
		tables := make([]string, 0, len(tableSummaries))
		for table := range tableSummaries {
			tables = append(tables, table)
		}
		sort.Strings(tables)
		for _, table := range tables {
			prompt.WriteString(fmt.Sprintf("- %s: %s\n", table, tableSummaries[table]))
		}
		prompt.WriteString("\n")
	}

	prompt.WriteString("## Output Format\n\n")
	prompt.WriteString("Respond in JSON with:\n")
	prompt.WriteString("- `entity`: the main business entity asked about (e.g. \"sales orders\", \"customers\", \"materials\")\n")
	prompt.WriteString("- `aggregation`: aggregation requested, if any (\"count\", \"sum\", \"average\", \"max\", \"min\", or \"\")\n")
	prompt.WriteString("- `filters`: array of plain-language filter conditions\n")
	prompt.WriteString("- `time_range`: plain-language time constraint, or \"\"\n")
	prompt.WriteString("- `output_fields`: fields the user wants to see, in their words\n\n")
	prompt.WriteString("Return ONLY the JSON, no additional text.\n")

	return prompt.String()
}

// BuildIntentExtractionSystemMessage returns the system message for intent extraction.
func BuildIntentExtractionSystemMessage() string {
	return `You extract structured query intents from business questions. Be literal: only include filters and fields the user actually asked for.`
}

// BuildSQLGenerationPrompt asks the LLM to draft a single SELECT statement
// answering the question, restricted to the given tables and joins.
func BuildSQLGenerationPrompt(question string, tables []TableProfile, joins []JoinContext) string {
	var prompt strings.Builder

	prompt.WriteString("# SQL Generation\n\n")
	prompt.WriteString("Write one SQL SELECT statement that answers the question using ONLY the tables and joins below.\n\n")
	prompt.WriteString(fmt.Sprintf("Question: %s\n\n", question))

	prompt.WriteString("## Tables\n\n")
	for _, table := range tables {
		writeTableSection(&prompt, table)
	}

	if len(joins) > 0 {
		prompt.WriteString("## Allowed joins\n\n")
		for _, j := range joins {
			prompt.WriteString(fmt.Sprintf("- %s.%s = %s.%s\n",
				j.SourceTable, j.SourceColumn, j.TargetTable, j.TargetColumn))
		}
		prompt.WriteString("\n")
	}

	prompt.WriteString("## Rules\n\n")
	prompt.WriteString("- One SELECT statement only. No INSERT, UPDATE, DELETE, or DDL.\n")
	prompt.WriteString("- Use only the tables and columns listed above.\n")
	prompt.WriteString("- Join tables only along the allowed joins.\n")
	prompt.WriteString("- Ignore the client column MANDT entirely.\n")
	prompt.WriteString("- Standard SQL, no vendor-specific extensions.\n\n")

	prompt.WriteString("## Output Format\n\n")
	prompt.WriteString("Respond in JSON with:\n")
	prompt.WriteString("- `sql`: the SELECT statement\n")
	prompt.WriteString("- `explanation`: one sentence describing what the query returns\n")
	prompt.WriteString("- `tables_used`: array of table names the query reads\n\n")
	prompt.WriteString("Return ONLY the JSON, no additional text.\n")

	return prompt.String()
}

// BuildSQLGenerationSystemMessage returns the system message for SQL drafting.
func BuildSQLGenerationSystemMessage() string {
	return `You are an expert SQL author for SAP data. You write precise, minimal SELECT statements against the sales document and master data tables.`
}
