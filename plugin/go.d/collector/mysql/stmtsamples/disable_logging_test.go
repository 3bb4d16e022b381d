// SPDX-License-Identifier: GPL-3.0-or-later

package stmtsamples

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
)

func TestSampler_disableSessionQueryLog(t *testing.T) {
	tests := map[string]struct {
		sqlLogOff    string
		slowQueryLog string
		prepare      func(mock sqlmock.Sqlmock)
		wantEnabled  bool
	}{
		"both logs on": {
			sqlLogOff:    "OFF",
			slowQueryLog: "ON",
			prepare: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec(regexp.QuoteMeta("SET SESSION sql_log_off='ON';")).WillReturnResult(sqlmock.NewResult(0, 0))
				mock.ExpectExec(regexp.QuoteMeta("SET SESSION slow_query_log='OFF';")).WillReturnResult(sqlmock.NewResult(0, 0))
			},
			wantEnabled: true,
		},
		"already off": {
			sqlLogOff:    "ON",
			slowQueryLog: "OFF",
			prepare:      func(sqlmock.Sqlmock) {},
			wantEnabled:  true,
		},
		"missing privilege": {
			sqlLogOff:    "OFF",
			slowQueryLog: "OFF",
			prepare: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec(regexp.QuoteMeta("SET SESSION sql_log_off='ON';")).WillReturnError(errors.New("access denied"))
			},
			wantEnabled: false,
		},
		"slow log failure is tolerated": {
			sqlLogOff:    "ON",
			slowQueryLog: "ON",
			prepare: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec(regexp.QuoteMeta("SET SESSION slow_query_log='OFF';")).WillReturnError(errors.New("global only"))
			},
			wantEnabled: true,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			ts := newTestSampler(t)
			ts.DisableSessionQueryLog = true

			ts.mock.ExpectQuery(regexp.QuoteMeta(queryShowSessionLogVariables)).
				WillReturnRows(sqlmock.NewRows([]string{"Variable_name", "Value"}).
					AddRow("slow_query_log", test.slowQueryLog).
					AddRow("sql_log_off", test.sqlLogOff))
			test.prepare(ts.mock)

			conn, err := ts.db.Conn(context.Background())
			if !assert.NoError(t, err) {
				return
			}
			defer func() { _ = conn.Close() }()

			ts.disableSessionQueryLog(context.Background(), conn)

			assert.Equal(t, test.wantEnabled, ts.DisableSessionQueryLog)
			assert.NoError(t, ts.mock.ExpectationsWereMet())
		})
	}
}

func TestSampler_disableSessionQueryLog_ReadError(t *testing.T) {
	ts := newTestSampler(t)
	ts.DisableSessionQueryLog = true

	ts.mock.ExpectQuery(regexp.QuoteMeta(queryShowSessionLogVariables)).WillReturnError(errors.New("denied"))

	conn, err := ts.db.Conn(context.Background())
	if !assert.NoError(t, err) {
		return
	}
	defer func() { _ = conn.Close() }()

	ts.disableSessionQueryLog(context.Background(), conn)

	assert.True(t, ts.DisableSessionQueryLog)
	assert.NoError(t, ts.mock.ExpectationsWereMet())
}
