// SPDX-License-Identifier: GPL-3.0-or-later

package stmtsamples

import (
	"fmt"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestSampler_validStatementRows(t *testing.T) {
	ts := newTestSampler(t)

	var batch []StatementRow
	for i := range 10 {
		text := fmt.Sprintf("SELECT * FROM t%d", i)
		if i%3 == 1 {
			text = "SELECT * FROM a_table_with_a_very_long_na..."
		}
		batch = append(batch, testStatementRow("shop", text, uint64(i+1)))
	}

	var got []StatementRow
	for row := range ts.validStatementRows(batch) {
		got = append(got, row)
	}

	assert.Len(t, got, 7)
	for _, row := range got {
		assert.NotContains(t, row.SQLText.String, "...")
	}
	assert.Equal(t, float64(3), testutil.ToFloat64(ts.mx.errors.WithLabelValues("truncated-sql-text")))
	assert.Contains(t, ts.logs.String(), "3/10 statements were dropped")
}

func TestSampler_validStatementRows_SkipsPartialAndEmpty(t *testing.T) {
	ts := newTestSampler(t)

	partial := testStatementRow("shop", "SELECT 1", 1)
	partial.TimerWaitNs.Valid = false
	noDigest := testStatementRow("shop", "SELECT 2", 2)
	noDigest.DigestText.Valid = false
	empty := testStatementRow("shop", "", 3)
	valid := testStatementRow("shop", "SELECT 4", 4)

	var got []StatementRow
	for row := range ts.validStatementRows([]StatementRow{partial, noDigest, empty, valid}) {
		got = append(got, row)
	}

	assert.Equal(t, []StatementRow{valid}, got)
	assert.Zero(t, testutil.ToFloat64(ts.mx.errors.WithLabelValues("truncated-sql-text")))
	assert.NotContains(t, ts.logs.String(), "were dropped")
}

func TestSampler_validStatementRows_Restartable(t *testing.T) {
	ts := newTestSampler(t)

	batch := []StatementRow{
		testStatementRow("shop", "SELECT 1", 1),
		testStatementRow("shop", "SELECT 2", 2),
		testStatementRow("shop", "SELECT 3...", 3),
	}
	seq := ts.validStatementRows(batch)

	var first int
	for range seq {
		first++
		break
	}

	var second int
	for range seq {
		second++
	}

	assert.Equal(t, 1, first)
	assert.Equal(t, 2, second)
	assert.Equal(t, float64(1), testutil.ToFloat64(ts.mx.errors.WithLabelValues("truncated-sql-text")))
}
