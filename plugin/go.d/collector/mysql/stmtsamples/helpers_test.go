// SPDX-License-Identifier: GPL-3.0-or-later

package stmtsamples

import (
	"bytes"
	"context"
	"database/sql/driver"
	"errors"
	"io"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/netdata/netdata/go/stmtsampler/logger"
)

var testStatementColumns = append(append([]string{
	"current_schema",
	"sql_text",
	"digest_text",
	"timer_start",
	"timer_end_time_s",
	"timer_wait_ns",
	"lock_time_ns",
}, counterColumns[:]...), "processlist_user", "processlist_host", "processlist_db")

const testTimerEndTimeS = 1700000000.25

func newStatementRows() *sqlmock.Rows {
	return sqlmock.NewRows(testStatementColumns)
}

func addStatementRow(rows *sqlmock.Rows, schema, sqlText string, timerStart int64) *sqlmock.Rows {
	var schemaValue driver.Value
	if schema != "" {
		schemaValue = schema
	}
	values := []driver.Value{schemaValue, sqlText, sqlText, timerStart, testTimerEndTimeS, float64(1500000), float64(1000)}
	for i := range counterColumns {
		values = append(values, int64(i))
	}
	values = append(values, "app", "10.0.0.7", schemaValue)
	return rows.AddRow(values...)
}

func testStatementRow(schema, sqlText string, timerStart uint64) StatementRow {
	row := StatementRow{}
	row.CurrentSchema.String, row.CurrentSchema.Valid = schema, schema != ""
	row.SQLText.String, row.SQLText.Valid = sqlText, true
	row.DigestText.String, row.DigestText.Valid = sqlText, true
	row.TimerStart.V, row.TimerStart.Valid = timerStart, true
	row.TimerEndTimeS.Float64, row.TimerEndTimeS.Valid = testTimerEndTimeS, true
	row.TimerWaitNs.Float64, row.TimerWaitNs.Valid = 1500000, true
	row.LockTimeNs.Float64, row.LockTimeNs.Valid = 1000, true
	for i := range row.Counters {
		row.Counters[i].Int64, row.Counters[i].Valid = int64(i), true
	}
	row.ProcesslistUser.String, row.ProcesslistUser.Valid = "app", true
	row.ProcesslistHost.String, row.ProcesslistHost.Valid = "10.0.0.7", true
	row.ProcesslistDB = row.CurrentSchema
	return row
}

func expectEnabledConsumers(mock sqlmock.Sqlmock, names ...string) {
	rows := sqlmock.NewRows([]string{"name"})
	for _, name := range names {
		rows.AddRow(name)
	}
	mock.ExpectQuery(regexp.QuoteMeta(queryEnabledConsumers)).WillReturnRows(rows)
}

func expectFetch(mock sqlmock.Sqlmock, table string, checkpoint uint64, limit int) *sqlmock.ExpectedQuery {
	return mock.ExpectQuery(`(?s)SELECT current_schema,.*FROM performance_schema\.`+table+` AS E.*ORDER BY timer_wait DESC\s+LIMIT \?`).
		WithArgs(eventNamePattern, explainDigestPattern, checkpoint, limit)
}

func expectResetSQLNotes(mock sqlmock.Sqlmock) {
	mock.ExpectExec(regexp.QuoteMeta(querySetSessionNoNotes)).WillReturnResult(sqlmock.NewResult(0, 0))
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Add(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type testSubmitter struct {
	mu     sync.Mutex
	events []Sample
	err    error
}

func (s *testSubmitter) SubmitEvents(_ context.Context, events []Sample) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return 0, s.err
	}
	s.events = append(s.events, events...)
	return len(events), nil
}

func (s *testSubmitter) submitted() []Sample {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Sample(nil), s.events...)
}

const unparsableMarker = "/* unparsable */"

// testObfuscator keeps statements as they are so tests can match on them.
type testObfuscator struct{}

func (testObfuscator) ObfuscateSQL(query string) (string, error) {
	if strings.Contains(query, unparsableMarker) {
		return "", errors.New("unparsable statement")
	}
	return strings.TrimSpace(query), nil
}

func (testObfuscator) ObfuscateExecPlan(plan string, normalize bool) (string, error) {
	if normalize {
		return "normalized:" + plan, nil
	}
	return plan, nil
}

type testSampler struct {
	*Sampler
	mock  sqlmock.Sqlmock
	clock *testClock
	sub   *testSubmitter
	logs  *syncBuffer
}

func newTestSampler(t *testing.T, opts ...func(*Sampler)) *testSampler {
	t.Helper()

	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)

	clock := newTestClock()
	sub := &testSubmitter{}
	logs := &syncBuffer{}

	s := New()
	s.Enabled = true
	s.DisableSessionQueryLog = false
	s.Obfuscator = testObfuscator{}
	s.Submitter = sub
	s.Registerer = prometheus.NewRegistry()
	s.Logger = logger.NewWithHandler(slog.NewTextHandler(logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	s.now = clock.Now
	for _, opt := range opts {
		opt(s)
	}

	require.NoError(t, s.Init(context.Background()))
	s.db = db

	t.Cleanup(func() {
		s.Stop()
		s.cycleMu.Lock()
		s.closeConn()
		s.cycleMu.Unlock()
		_ = db.Close()
	})

	return &testSampler{Sampler: s, mock: mock, clock: clock, sub: sub, logs: logs}
}

func (ts *testSampler) conn(t *testing.T) dbConn {
	t.Helper()
	conn, err := ts.getConn(context.Background())
	require.NoError(t, err)
	return conn
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

var _ io.Writer = (*syncBuffer)(nil)

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
