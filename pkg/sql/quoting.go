package sql

import (
	"regexp"
	"strings"
	"sync"
)

// identifierPatterns caches one compiled pattern per identifier so repeated
// generation requests don't recompile.
var (
	identifierPatternsMu sync.Mutex
	identifierPatterns   = map[string]*regexp.Regexp{}
)

// stringLiteralPattern matches a single-quoted SQL literal, including
// doubled-quote escapes inside it.
var stringLiteralPattern = regexp.MustCompile(`'(?:[^']|'')*'`)

// QuoteIdentifiers uppercase-normalizes and double-quotes every occurrence
// of the given identifiers in the SQL. Already-quoted occurrences are
// rewritten to the same canonical form, so applying the substitution twice
// yields the same string as applying it once. String literals pass through
// untouched; a table name mentioned inside one is data, not an identifier.
func QuoteIdentifiers(sqlQuery string, identifiers []string) string {
	var out strings.Builder
	last := 0
	for _, loc := range stringLiteralPattern.FindAllStringIndex(sqlQuery, -1) {
		out.WriteString(quoteSegment(sqlQuery[last:loc[0]], identifiers))
		out.WriteString(sqlQuery[loc[0]:loc[1]])
		last = loc[1]
	}
	out.WriteString(quoteSegment(sqlQuery[last:], identifiers))
	return out.String()
}

func quoteSegment(segment string, identifiers []string) string {
	for _, ident := range identifiers {
		if ident == "" {
			continue
		}
		re := patternFor(ident)
		segment = re.ReplaceAllString(segment, `"`+strings.ToUpper(ident)+`"`)
	}
	return segment
}

func patternFor(ident string) *regexp.Regexp {
	key := strings.ToUpper(ident)

	identifierPatternsMu.Lock()
	defer identifierPatternsMu.Unlock()

	if re, ok := identifierPatterns[key]; ok {
		return re
	}
	// The optional surrounding quotes make the substitution idempotent:
	// "VBAK" matches as a whole and is replaced by itself.
	re := regexp.MustCompile(`"?\b(?i:` + regexp.QuoteMeta(ident) + `)\b"?`)
	identifierPatterns[key] = re
	return re
}
