// Package store executes SQL against the on-disk movie catalogue.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

// Store runs queries against a SQLite database file. Each call opens a
// fresh connection and closes it before returning: no pooling, no
// cross-call transactions.
type Store struct {
	path string
}

// New creates a store for the given database file path.
func New(path string) *Store {
	return &Store{path: path}
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Query executes a single query and materializes every result row as
// strings. Engine-level failures are returned as errors; converting
// them into planner-visible text is the tool layer's job.
func (s *Store) Query(ctx context.Context, query string) ([][]string, error) {
	db, err := sql.Open("sqlite3", s.path)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var result [][]string
	for rows.Next() {
		values := make([]interface{}, len(columns))
		scanTargets := make([]interface{}, len(columns))
		for i := range values {
			scanTargets[i] = &values[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return nil, err
		}

		row := make([]string, len(columns))
		for i, v := range values {
			row[i] = formatValue(v)
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

// formatValue renders a scanned SQLite value as text.
func formatValue(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return "NULL"
	case []byte:
		return string(val)
	default:
		return fmt.Sprintf("%v", val)
	}
}

// FormatRows renders materialized rows the way the planner sees tool
// output: one parenthesized tuple per row.
func FormatRows(rows [][]string) string {
	if len(rows) == 0 {
		return "[]"
	}
	var sb strings.Builder
	sb.WriteString("[")
	for i, row := range rows {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("(")
		for j, v := range row {
			if j > 0 {
				sb.WriteString(", ")
			}
			fmt.Fprintf(&sb, "%q", v)
		}
		sb.WriteString(")")
	}
	sb.WriteString("]")
	return sb.String()
}
