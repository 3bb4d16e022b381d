// SPDX-License-Identifier: GPL-3.0-or-later

package stmtsamples

import (
	"iter"
	"strings"
)

const truncationMarker = "..."

// validStatementRows yields the rows worth explaining. Truncated SQL text
// can't be explained, so those rows are dropped and reported once per pass.
func (s *Sampler) validStatementRows(batch []StatementRow) iter.Seq[StatementRow] {
	return func(yield func(StatementRow) bool) {
		var sent, truncated int

		defer func() {
			if truncated == 0 {
				return
			}
			s.Warningf("%d/%d statements were dropped because their sql_text was truncated, "+
				"raise performance_schema_max_sql_text_length to avoid this", truncated, sent+truncated)
			s.mx.countError("truncated-sql-text", truncated)
		}()

		for _, row := range batch {
			if !row.complete() {
				s.Debugf("skipping partial statement row (schema '%s')", row.CurrentSchema.String)
				continue
			}
			text := row.SQLText.String
			if text == "" {
				continue
			}
			if strings.HasSuffix(text, truncationMarker) {
				truncated++
				continue
			}
			sent++
			if !yield(row) {
				return
			}
		}
	}
}
