// Package duckdb provides the small DuckDB toolkit behind the run history: opening
// database files, a struct-tag table mapper, and a SELECT builder.
//
//	type Run struct {
//	    ID    string    `duckdb:"run_id,pk"`
//	    Ended time.Time `duckdb:"end_time"`
//	}
//
//	runs := duckdb.NewTable[Run](db, "runs")
//	err := runs.Insert(ctx, &Run{...})
//
//	latest, err := runs.Select(ctx, duckdb.NewQueryBuilder("runs").OrderBy("-end_time").Limit(10))
package duckdb
