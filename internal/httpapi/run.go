package httpapi

import (
	"context"

	"github.com/crrserver/core/internal/apperror"
	"github.com/crrserver/core/internal/database"
	"github.com/crrserver/core/internal/value"
)

// runStatement executes sql against db's connection in one of three modes: "run" (an exec,
// reporting rows-affected), "get" (a single-row fetch), or "all" (a full fetch). Every mode
// runs through the connection the Database handle already authorizes per-statement, so this
// helper performs no table-level checks of its own.
func runStatement(ctx context.Context, db *database.Database, sql string, args []any, mode string) (runResponse, error) {
	switch mode {
	case "", "run":
		res, err := db.Conn().ExecContext(ctx, sql, args...)
		if err != nil {
			return runResponse{}, apperror.DatabaseError(err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return runResponse{}, apperror.DatabaseError(err)
		}
		return runResponse{Changes: &affected}, nil

	case "get", "all":
		rows, err := db.Conn().QueryContext(ctx, sql, args...)
		if err != nil {
			return runResponse{}, apperror.DatabaseError(err)
		}
		defer rows.Close()

		cols, err := rows.Columns()
		if err != nil {
			return runResponse{}, apperror.DatabaseError(err)
		}

		var out [][]value.Value
		for rows.Next() {
			scanned := make([]any, len(cols))
			ptrs := make([]any, len(cols))
			for i := range scanned {
				ptrs[i] = &scanned[i]
			}
			if err := rows.Scan(ptrs...); err != nil {
				return runResponse{}, apperror.DatabaseError(err)
			}
			row := make([]value.Value, len(cols))
			for i, col := range scanned {
				row[i] = value.FromColumn(col)
			}
			out = append(out, row)
			if mode == "get" {
				break
			}
		}
		if err := rows.Err(); err != nil {
			return runResponse{}, apperror.DatabaseError(err)
		}
		return runResponse{Rows: out}, nil

	default:
		return runResponse{}, apperror.Parser("mode must be one of run, get, all")
	}
}
