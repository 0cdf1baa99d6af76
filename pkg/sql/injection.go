package sql

import (
	"fmt"
	"strings"

	libinjection "github.com/corazawaf/libinjection-go"
)

// InjectionCheckResult describes an injection pattern detected in a value.
type InjectionCheckResult struct {
	IsSQLi      bool
	Fingerprint string // libinjection fingerprint of the detected pattern
	ParamName   string
	ParamValue  any
}

// CheckParameterForInjection runs libinjection over a single value.
// Only strings are checked; numbers and booleans cannot carry injection
// payloads and return nil. Returns nil when the value is clean.
func CheckParameterForInjection(paramName string, value any) *InjectionCheckResult {
	strValue, ok := value.(string)
	if !ok {
		return nil
	}

	isSQLi, fingerprint := libinjection.IsSQLi(strValue)
	if isSQLi {
		return &InjectionCheckResult{
			IsSQLi:      true,
			Fingerprint: string(fingerprint),
			ParamName:   paramName,
			ParamValue:  value,
		}
	}

	return nil
}

// ScreenStringLiterals runs the injection detector over every string literal
// in the SQL. User-derived filter values only ever reach a generated
// statement inside literals, so this is where smuggled fragments surface.
func ScreenStringLiterals(sqlQuery string) []*InjectionCheckResult {
	var results []*InjectionCheckResult
	for i, lit := range stringLiteralPattern.FindAllString(sqlQuery, -1) {
		value := strings.ReplaceAll(lit[1:len(lit)-1], "''", "'")
		name := fmt.Sprintf("literal_%d", i+1)
		if result := CheckParameterForInjection(name, value); result != nil {
			results = append(results, result)
		}
	}
	return results
}

// CheckAllParameters checks every value in params and returns one result per
// value that tripped the injection detector. Empty slice means all clean.
func CheckAllParameters(params map[string]any) []*InjectionCheckResult {
	var results []*InjectionCheckResult
	for name, value := range params {
		if result := CheckParameterForInjection(name, value); result != nil {
			results = append(results, result)
		}
	}
	return results
}
