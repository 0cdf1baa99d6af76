package sql

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

var sapTables = []string{"VBAK", "VBAP", "MARA", "KNA1"}

func TestQuoteIdentifiers(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "bare uppercase table",
			input:    "SELECT * FROM VBAK",
			expected: `SELECT * FROM "VBAK"`,
		},
		{
			name:     "lowercase table normalized",
			input:    "SELECT * FROM vbak",
			expected: `SELECT * FROM "VBAK"`,
		},
		{
			name:     "mixed case",
			input:    "SELECT * FROM Vbak JOIN vbAP ON 1=1",
			expected: `SELECT * FROM "VBAK" JOIN "VBAP" ON 1=1`,
		},
		{
			name:     "already quoted left alone",
			input:    `SELECT * FROM "VBAK"`,
			expected: `SELECT * FROM "VBAK"`,
		},
		{
			name:     "qualified column",
			input:    "SELECT vbak.VBELN FROM vbak",
			expected: `SELECT "VBAK".VBELN FROM "VBAK"`,
		},
		{
			name:     "substring not touched",
			input:    "SELECT * FROM VBAKX",
			expected: "SELECT * FROM VBAKX",
		},
		{
			name:     "no known tables",
			input:    "SELECT 'No relevant tables found' AS message",
			expected: "SELECT 'No relevant tables found' AS message",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, QuoteIdentifiers(tt.input, sapTables))
		})
	}
}

func TestQuoteIdentifiers_SkipsStringLiterals(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "table name inside literal untouched",
			input:    "SELECT * FROM vbak WHERE note = 'ship with vbak label'",
			expected: `SELECT * FROM "VBAK" WHERE note = 'ship with vbak label'`,
		},
		{
			name:     "escaped quote inside literal",
			input:    "SELECT * FROM kna1 WHERE NAME1 = 'O''Brien kna1'",
			expected: `SELECT * FROM "KNA1" WHERE NAME1 = 'O''Brien kna1'`,
		},
		{
			name:     "identifier between two literals still quoted",
			input:    "SELECT 'mara' AS a, MATNR FROM mara WHERE MTART = 'mara'",
			expected: `SELECT 'mara' AS a, MATNR FROM "MARA" WHERE MTART = 'mara'`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := QuoteIdentifiers(tt.input, sapTables)
			assert.Equal(t, tt.expected, got)
			assert.Equal(t, got, QuoteIdentifiers(got, sapTables))
		})
	}
}

func TestQuoteIdentifiers_Idempotent(t *testing.T) {
	inputs := []string{
		"SELECT * FROM vbak JOIN vbap ON vbak.VBELN = vbap.VBELN",
		`SELECT "MARA"."MATNR" FROM mara`,
		"SELECT kna1.NAME1 FROM KNA1 WHERE kna1.LAND1 = 'DE'",
	}

	for _, in := range inputs {
		once := QuoteIdentifiers(in, sapTables)
		twice := QuoteIdentifiers(once, sapTables)
		assert.Equal(t, once, twice)
	}
}
