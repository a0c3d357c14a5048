package duckdb

import (
	"fmt"
	"strings"
	"time"
)

// InterpolateQuery substitutes args into query for trace logging. The result is
// valid DuckDB SQL for the supported argument types.
func InterpolateQuery(query string, args []any) string {
	for _, arg := range args {
		var lit string
		switch v := arg.(type) {
		case string:
			lit = "'" + strings.ReplaceAll(v, "'", "''") + "'"
		case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
			lit = fmt.Sprintf("%d", v)
		case float32, float64:
			lit = fmt.Sprintf("%v", v)
		case bool:
			lit = fmt.Sprintf("%t", v)
		case time.Time:
			// Round(0) strips the monotonic reading.
			lit = "'" + v.Round(0).Format(time.RFC3339Nano) + "'"
		case nil:
			lit = "NULL"
		default:
			lit = fmt.Sprintf("'%v'", v)
		}
		query = strings.Replace(query, "?", lit, 1)
	}

	query = strings.ReplaceAll(query, "\t", " ")
	return strings.ReplaceAll(query, "\n", " ")
}
