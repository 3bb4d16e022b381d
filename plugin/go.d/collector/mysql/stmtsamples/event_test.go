// SPDX-License-Identifier: GPL-3.0-or-later

package stmtsamples

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSampler_newSample(t *testing.T) {
	ts := newTestSampler(t)
	ts.dbHost = "db1.example.com"

	row := testStatementRow("shop", "SELECT * FROM orders WHERE id = 1", 10)
	cost := 12.5
	es := explainedStatement{
		row:            row,
		statement:      "SELECT * FROM orders WHERE id = ?",
		querySignature: "qsig",
		resourceHash:   "rhash",
		planDefinition: testPlan,
		planSignature:  "psig",
		planCost:       &cost,
	}

	sample := ts.newSample(es, newTagSet([]string{"env:prod", "service:orders", "role:primary"}))

	assert.Equal(t, testTimerEndTimeS*1000, sample.Timestamp)
	assert.Equal(t, "db1.example.com", sample.Host)
	assert.Equal(t, "orders", sample.Service)
	assert.Equal(t, "mysql", sample.Source)
	assert.Equal(t, "env:prod,service:orders,role:primary", sample.Tags)
	assert.Equal(t, float64(1500000), sample.Duration)
	assert.Equal(t, "10.0.0.7", sample.Network.Client.IP)
	assert.Equal(t, SampleDB{
		Instance:       "shop",
		Plan:           SamplePlan{Definition: testPlan, Cost: &cost, Signature: "psig"},
		QuerySignature: "qsig",
		ResourceHash:   "rhash",
		Statement:      "SELECT * FROM orders WHERE id = ?",
	}, sample.DB)

	for _, promoted := range []string{
		"sql_text", "current_schema", "digest_text", "timer_end_time_s", "timer_start", "processlist_host",
	} {
		assert.NotContains(t, sample.MySQL, promoted)
	}
	assert.Equal(t, float64(1500000), sample.MySQL["timer_wait_ns"])
	assert.Equal(t, float64(1000), sample.MySQL["lock_time_ns"])
	assert.Equal(t, "app", sample.MySQL["processlist_user"])
	assert.Equal(t, "shop", sample.MySQL["processlist_db"])
	for i, name := range counterColumns {
		assert.Equal(t, int64(i), sample.MySQL[name], name)
	}
}

func Test_residualColumns_Nulls(t *testing.T) {
	row := testStatementRow("", "SELECT 1", 1)
	row.ProcesslistUser.Valid = false
	row.Counters[0].Valid = false

	m := residualColumns(row)

	assert.Len(t, m, 4+len(counterColumns))
	assert.Nil(t, m["processlist_user"])
	assert.Nil(t, m["processlist_db"])
	assert.Nil(t, m[counterColumns[0]])
	assert.Contains(t, m, counterColumns[0])
}

func Test_newTagSet(t *testing.T) {
	ts := newTagSet([]string{"a:b", "service:first", "service:second"})
	assert.Equal(t, "first", ts.service)
	assert.Equal(t, "a:b,service:first,service:second", ts.joined)

	empty := newTagSet(nil)
	assert.Empty(t, empty.service)
	assert.Empty(t, empty.joined)
}

func Test_resolveDBHost(t *testing.T) {
	hostname, err := os.Hostname()
	require.NoError(t, err)

	tests := map[string]struct {
		dsn  string
		want string
	}{
		"localhost":   {dsn: "root@tcp(localhost:3306)/", want: hostname},
		"loopback v4": {dsn: "root@tcp(127.0.0.1:3306)/", want: hostname},
		"loopback v6": {dsn: "root@tcp([::1]:3306)/", want: hostname},
		"socket":      {dsn: "root@unix(/var/run/mysqld/mysqld.sock)/", want: hostname},
		"remote":      {dsn: "netdata:secret@tcp(db1.example.com:3307)/", want: "db1.example.com"},
		"remote ip":   {dsn: "netdata@tcp(10.20.30.40:3306)/", want: "10.20.30.40"},
		"invalid":     {dsn: "not a dsn", want: ""},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, test.want, resolveDBHost(test.dsn))
		})
	}
}
