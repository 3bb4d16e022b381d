// SPDX-License-Identifier: GPL-3.0-or-later

// Package sqlquery reads result sets as strings, which is all the
// performance_schema and EXPLAIN consumers need.
package sqlquery

import (
	"context"
	"database/sql"
	"time"
)

// Queryer is satisfied by *sql.DB, *sql.Conn and *sql.Tx.
type Queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// AssignFunc receives each row value as string and rowEnd=true for the last column.
type AssignFunc func(column, value string, rowEnd bool)

// rowFunc sees one row at a time. The row slice is reused between calls,
// returning false stops reading.
type rowFunc func(columns []string, row []sql.NullString) bool

// QueryRows streams every value through assign. NULLs arrive as empty
// strings. The duration is the latency of the QueryContext call alone.
func QueryRows(ctx context.Context, q Queryer, query string, assign AssignFunc, args ...any) (time.Duration, error) {
	return forEachRow(ctx, q, query, args, func(columns []string, row []sql.NullString) bool {
		if assign == nil {
			return false
		}
		for i := range row {
			assign(columns[i], row[i].String, i == len(row)-1)
		}
		return true
	})
}

// QueryColumn returns the first column of every row.
func QueryColumn(ctx context.Context, q Queryer, query string, args ...any) ([]string, error) {
	var values []string

	_, err := forEachRow(ctx, q, query, args, func(_ []string, row []sql.NullString) bool {
		values = append(values, row[0].String)
		return true
	})
	if err != nil {
		return nil, err
	}

	return values, nil
}

// QueryFirstValue returns the first column of the first row. ok is false
// when there are no rows or the value is NULL.
func QueryFirstValue(ctx context.Context, q Queryer, query string, args ...any) (string, bool, error) {
	var first sql.NullString

	_, err := forEachRow(ctx, q, query, args, func(_ []string, row []sql.NullString) bool {
		first = row[0]
		return false
	})
	if err != nil {
		return "", false, err
	}

	return first.String, first.Valid, nil
}

func forEachRow(ctx context.Context, q Queryer, query string, args []any, fn rowFunc) (time.Duration, error) {
	start := time.Now()
	rows, err := q.QueryContext(ctx, query, args...)
	took := time.Since(start)
	if err != nil {
		return 0, err
	}
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return took, err
	}
	if len(columns) == 0 {
		return took, rows.Err()
	}

	row := make([]sql.NullString, len(columns))
	dest := make([]any, len(columns))
	for i := range row {
		dest[i] = &row[i]
	}

	for rows.Next() {
		if err := rows.Scan(dest...); err != nil {
			return took, err
		}
		if !fn(columns, row) {
			break
		}
	}

	return took, rows.Err()
}
