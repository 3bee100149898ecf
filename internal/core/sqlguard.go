package core

import (
	"errors"
	"strings"
)

// Fixed safety-policy errors. Rejection is a control path, not a failure:
// the query is refused before the warehouse ever sees it and never retried.
var (
	ErrForbiddenKeyword  = errors.New("query contains forbidden SQL keyword")
	ErrUnionNotSupported = errors.New("UNION queries not supported")
)

// Deliberately a substring check on the uppercased query, not a parser.
// Fail-closed: a false positive refuses a harmless query, which is fine.
var forbiddenKeywords = []string{"INSERT", "UPDATE", "DELETE", "DROP", "ALTER", "CREATE"}

// CheckQuerySafety rejects mutating statements and UNION. UNION is blocked on
// the read path because independently shaped result sets risk type-mismatch
// errors in ClickHouse.
func CheckQuerySafety(sqlQuery string) error {
	upper := strings.ToUpper(sqlQuery)
	for _, kw := range forbiddenKeywords {
		if strings.Contains(upper, kw) {
			return ErrForbiddenKeyword
		}
	}
	if strings.Contains(upper, "UNION") {
		return ErrUnionNotSupported
	}
	return nil
}
