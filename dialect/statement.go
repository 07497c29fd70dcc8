package dialect

import (
	"strings"

	"github.com/rqlite/sql"
)

// IsReadOnly reports whether sqlStr is a single plain SELECT that can be
// routed to one node. Anything the parser rejects, and any batch of more
// than one statement, is treated as mutating.
func IsReadOnly(sqlStr string) bool {
	trimmed := strings.TrimRight(strings.TrimSpace(sqlStr), ";")
	if trimmed == "" || strings.Contains(trimmed, ";") {
		return false
	}

	parser := sql.NewParser(strings.NewReader(trimmed))
	stmt, err := parser.ParseStatement()
	if err != nil {
		return false
	}

	_, ok := stmt.(*sql.SelectStatement)
	return ok
}
