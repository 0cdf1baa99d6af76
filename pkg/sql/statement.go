package sql

import (
	"regexp"
	"strings"
)

// StatementType classifies a SQL statement by its leading keyword.
type StatementType string

const (
	TypeSelect  StatementType = "SELECT"
	TypeInsert  StatementType = "INSERT"
	TypeUpdate  StatementType = "UPDATE"
	TypeDelete  StatementType = "DELETE"
	TypeDDL     StatementType = "DDL"
	TypeUnknown StatementType = "UNKNOWN"
)

// modifyingCTEPattern matches CTEs that contain data-modifying operations,
// e.g. WITH deleted AS (DELETE FROM ...) SELECT * FROM deleted.
var modifyingCTEPattern = regexp.MustCompile(`(?i)\bAS\s*\(\s*(INSERT|UPDATE|DELETE)\b`)

// DetectStatementType determines the statement type from the first keyword.
// WITH queries count as SELECT unless a CTE modifies data, in which case
// they are classified Unknown and blocked.
func DetectStatementType(sql string) StatementType {
	normalized := strings.ToUpper(strings.TrimSpace(sql))

	switch {
	case strings.HasPrefix(normalized, "SELECT"):
		return TypeSelect

	case strings.HasPrefix(normalized, "WITH"):
		if modifyingCTEPattern.MatchString(sql) {
			return TypeUnknown
		}
		return TypeSelect

	case strings.HasPrefix(normalized, "INSERT"):
		return TypeInsert

	case strings.HasPrefix(normalized, "UPDATE"):
		return TypeUpdate

	case strings.HasPrefix(normalized, "DELETE"):
		return TypeDelete

	case strings.HasPrefix(normalized, "CREATE"),
		strings.HasPrefix(normalized, "ALTER"),
		strings.HasPrefix(normalized, "DROP"),
		strings.HasPrefix(normalized, "TRUNCATE"),
		strings.HasPrefix(normalized, "GRANT"),
		strings.HasPrefix(normalized, "REVOKE"):
		return TypeDDL

	case strings.HasPrefix(normalized, "BEGIN"),
		strings.HasPrefix(normalized, "COMMIT"),
		strings.HasPrefix(normalized, "ROLLBACK"),
		strings.HasPrefix(normalized, "SAVEPOINT"),
		strings.HasPrefix(normalized, "CALL"),
		strings.HasPrefix(normalized, "EXEC"),
		strings.HasPrefix(normalized, "EXECUTE"):
		return TypeUnknown

	default:
		return TypeUnknown
	}
}

// StatementTypeError reports a statement rejected by EnsureReadOnly.
type StatementTypeError struct {
	Type    StatementType
	Message string
}

func (e *StatementTypeError) Error() string {
	return e.Message
}

// EnsureReadOnly returns an error unless the statement is a plain SELECT
// (including non-modifying CTEs). Everything else is rejected: the engine
// only ever reads from the SAP source.
func EnsureReadOnly(sql string) (StatementType, error) {
	sqlType := DetectStatementType(sql)

	switch sqlType {
	case TypeSelect:
		return sqlType, nil
	case TypeDDL:
		return sqlType, &StatementTypeError{
			Type:    sqlType,
			Message: "DDL statements (CREATE, ALTER, DROP, TRUNCATE) are not allowed",
		}
	case TypeInsert, TypeUpdate, TypeDelete:
		return sqlType, &StatementTypeError{
			Type:    sqlType,
			Message: "data-modifying statements are not allowed; only SELECT queries may run",
		}
	default:
		return sqlType, &StatementTypeError{
			Type:    sqlType,
			Message: "unrecognized or blocked statement type; only SELECT queries may run",
		}
	}
}
