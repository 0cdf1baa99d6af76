package prompts

import (
	"fmt"
	"strings"
)

// CandidateContext is one detected relationship candidate with the evidence
// behind it, formatted for LLM review.
type CandidateContext struct {
	ID             string
	SourceTable    string
	SourceColumn   string
	TargetTable    string
	TargetColumn   string
	Provenance     string
	NameSimilarity float64
	ValueOverlap   float64
}

// BuildRelationshipAnalysisPrompt asks the LLM to confirm or reject detected
// join candidates and propose any the heuristics missed.
func BuildRelationshipAnalysisPrompt(tables []TableProfile, candidates []CandidateContext) string {
	var prompt strings.Builder

	prompt.WriteString("# Relationship Analysis\n\n")
	prompt.WriteString("Review the join candidates between the SAP tables below and decide which are real relationships.\n\n")

	prompt.WriteString("## Schema\n\n")
	for _, table := range tables {
		writeTableSection(&prompt, table)
	}

	prompt.WriteString("## Candidates\n\n")
	for i, c := range candidates {
		prompt.WriteString(fmt.Sprintf("### Candidate %d: %s.%s = %s.%s\n",
			i+1, c.SourceTable, c.SourceColumn, c.TargetTable, c.TargetColumn))
		prompt.WriteString(fmt.Sprintf("- ID: %s\n", c.ID))
		prompt.WriteString(fmt.Sprintf("- Detected by: %s\n", c.Provenance))
		if c.NameSimilarity > 0 {
			prompt.WriteString(fmt.Sprintf("- Name similarity: %.2f\n", c.NameSimilarity))
		}
		if c.ValueOverlap > 0 {
			prompt.WriteString(fmt.Sprintf("- Sample value overlap: %.1f%%\n", c.ValueOverlap*100))
		}
		prompt.WriteString("\n")
	}

	prompt.WriteString("## Guidelines\n\n")
	prompt.WriteString("- SAP document flow joins header to item on the document number (VBELN).\n")
	prompt.WriteString("- Master data references use the master table's key (MATNR, KUNNR).\n")
	prompt.WriteString("- The client column MANDT appears in every table and is never a business relationship.\n")
	prompt.WriteString("- High value overlap between unrelated code columns is coincidence, not a join.\n\n")

	prompt.WriteString("## Output Format\n\n")
	prompt.WriteString("Respond in JSON with:\n")
	prompt.WriteString("- `decisions`: array with one entry per candidate\n")
	prompt.WriteString("  - `candidate_id`: the candidate ID from above\n")
	prompt.WriteString("  - `action`: \"confirm\" or \"reject\"\n")
	prompt.WriteString("  - `confidence`: 0.0-1.0\n")
	prompt.WriteString("  - `reasoning`: 1-2 sentences\n")
	prompt.WriteString("- `new_relationships`: array of joins you infer that are not listed (may be empty)\n")
	prompt.WriteString("  - `source_table`, `source_column`, `target_table`, `target_column`\n")
	prompt.WriteString("  - `confidence`: 0.0-1.0\n")
	prompt.WriteString("  - `reasoning`: why this is a relationship\n\n")
	prompt.WriteString("Return ONLY the JSON, no additional text.\n")

	return prompt.String()
}

// BuildRelationshipAnalysisSystemMessage returns the system message for relationship review.
func BuildRelationshipAnalysisSystemMessage() string {
	return `You are an SAP data model expert. You know how the sales documents (VBAK, VBAP) relate to each other and to the material (MARA) and customer (KNA1) masters.`
}
