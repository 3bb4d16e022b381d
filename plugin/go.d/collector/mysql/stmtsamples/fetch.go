// SPDX-License-Identifier: GPL-3.0-or-later

package stmtsamples

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const (
	eventNamePattern       = "statement/%"
	explainDigestPattern   = "EXPLAIN %"
	querySetSessionNoNotes = "SET @@SESSION.sql_notes = 0"
)

// queryEventsStatements is formatted with the source table name, which is
// always one of the known events_statements tables.
const queryEventsStatements = `
SELECT current_schema,
       sql_text,
       IFNULL(digest_text, sql_text) AS digest_text,
       timer_start,
       UNIX_TIMESTAMP() - (SELECT VARIABLE_VALUE FROM performance_schema.global_status WHERE VARIABLE_NAME = 'UPTIME') + timer_end * 1e-12 AS timer_end_time_s,
       timer_wait / 1000 AS timer_wait_ns,
       lock_time / 1000 AS lock_time_ns,
       rows_affected,
       rows_sent,
       rows_examined,
       select_full_join,
       select_full_range_join,
       select_range,
       select_range_check,
       select_scan,
       sort_merge_passes,
       sort_range,
       sort_rows,
       sort_scan,
       no_index_used,
       no_good_index_used,
       processlist_user,
       processlist_host,
       processlist_db
FROM performance_schema.%s AS E
LEFT JOIN performance_schema.threads AS T ON E.thread_id = T.thread_id
WHERE sql_text IS NOT NULL
  AND event_name LIKE ?
  AND (digest_text IS NULL OR digest_text NOT LIKE ?)
  AND timer_start > ?
ORDER BY timer_wait DESC
LIMIT ?`

// counterColumns are passed through to events unchanged.
var counterColumns = [...]string{
	"rows_affected",
	"rows_sent",
	"rows_examined",
	"select_full_join",
	"select_full_range_join",
	"select_range",
	"select_range_check",
	"select_scan",
	"sort_merge_passes",
	"sort_range",
	"sort_rows",
	"sort_scan",
	"no_index_used",
	"no_good_index_used",
}

type StatementRow struct {
	CurrentSchema   sql.NullString
	SQLText         sql.NullString
	DigestText      sql.NullString
	TimerStart      sql.Null[uint64]
	TimerEndTimeS   sql.NullFloat64
	TimerWaitNs     sql.NullFloat64
	LockTimeNs      sql.NullFloat64
	Counters        [len(counterColumns)]sql.NullInt64
	ProcesslistUser sql.NullString
	ProcesslistHost sql.NullString
	ProcesslistDB   sql.NullString
}

// complete reports whether the fields every event needs are present.
// Partial rows show up when a history consumer is toggled mid-read.
func (r StatementRow) complete() bool {
	return r.SQLText.Valid &&
		r.DigestText.Valid &&
		r.TimerStart.Valid &&
		r.TimerEndTimeS.Valid &&
		r.TimerWaitNs.Valid &&
		r.LockTimeNs.Valid
}

func (r *StatementRow) scanDest() []any {
	dest := []any{
		&r.CurrentSchema,
		&r.SQLText,
		&r.DigestText,
		&r.TimerStart,
		&r.TimerEndTimeS,
		&r.TimerWaitNs,
		&r.LockTimeNs,
	}
	for i := range r.Counters {
		dest = append(dest, &r.Counters[i])
	}
	return append(dest, &r.ProcesslistUser, &r.ProcesslistHost, &r.ProcesslistDB)
}

// fetchEventsStatements pulls statements newer than the checkpoint. The
// checkpoint only moves when advance is set, so strategy probes don't skip
// rows the next cycle should see.
func (s *Sampler) fetchEventsStatements(ctx context.Context, conn dbConn, table string, limit int, advance bool) ([]StatementRow, error) {
	start := time.Now()

	query := fmt.Sprintf(queryEventsStatements, table)
	rows, err := conn.QueryContext(ctx, query, eventNamePattern, explainDigestPattern, s.checkpoint, limit)
	if err != nil {
		return nil, fmt.Errorf("querying %s: %w", table, err)
	}
	defer func() { _ = rows.Close() }()

	var batch []StatementRow
	for rows.Next() {
		var row StatementRow
		if err := rows.Scan(row.scanDest()...); err != nil {
			return nil, fmt.Errorf("scanning %s row: %w", table, err)
		}
		batch = append(batch, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading %s rows: %w", table, err)
	}

	if len(batch) == 0 {
		s.Debugf("no statements found in performance_schema.%s", table)
	} else {
		if advance {
			s.advanceCheckpoint(batch)
		}
		if _, err := conn.ExecContext(ctx, querySetSessionNoNotes); err != nil {
			return nil, fmt.Errorf("resetting session sql_notes: %w", err)
		}
	}

	if advance {
		s.mx.fetchDuration.WithLabelValues(table).Observe(time.Since(start).Seconds())
		s.mx.fetchRows.WithLabelValues(table).Observe(float64(len(batch)))
	}

	return batch, nil
}

func (s *Sampler) advanceCheckpoint(batch []StatementRow) {
	for _, row := range batch {
		if row.TimerStart.Valid && row.TimerStart.V > s.checkpoint {
			s.checkpoint = row.TimerStart.V
		}
	}
}
