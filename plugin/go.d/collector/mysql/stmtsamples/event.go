// SPDX-License-Identifier: GPL-3.0-or-later

package stmtsamples

import (
	"database/sql"
	"net"
	"os"
	"strings"

	"github.com/go-sql-driver/mysql"
)

const sampleSource = "mysql"

type (
	Sample struct {
		// Timestamp is in milliseconds since the epoch.
		Timestamp float64        `json:"timestamp"`
		Host      string         `json:"host"`
		Service   string         `json:"service"`
		Source    string         `json:"ddsource"`
		Tags      string         `json:"ddtags"`
		Duration  float64        `json:"duration"`
		Network   SampleNetwork  `json:"network"`
		DB        SampleDB       `json:"db"`
		MySQL     map[string]any `json:"mysql"`
	}
	SampleNetwork struct {
		Client SampleClient `json:"client"`
	}
	SampleClient struct {
		IP string `json:"ip,omitempty"`
	}
	SampleDB struct {
		Instance       string     `json:"instance,omitempty"`
		Plan           SamplePlan `json:"plan"`
		QuerySignature string     `json:"query_signature"`
		ResourceHash   string     `json:"resource_hash"`
		Statement      string     `json:"statement"`
	}
	SamplePlan struct {
		Definition string   `json:"definition,omitempty"`
		Cost       *float64 `json:"cost,omitempty"`
		Signature  string   `json:"signature,omitempty"`
	}
)

// explainedStatement is what the explain stage hands over for event creation.
type explainedStatement struct {
	row            StatementRow
	statement      string
	querySignature string
	resourceHash   string
	planDefinition string
	planSignature  string
	planCost       *float64
}

func (s *Sampler) newSample(es explainedStatement, tags *tagSet) Sample {
	row := es.row
	return Sample{
		Timestamp: row.TimerEndTimeS.Float64 * 1000,
		Host:      s.dbHost,
		Service:   tags.service,
		Source:    sampleSource,
		Tags:      tags.joined,
		Duration:  row.TimerWaitNs.Float64,
		Network:   SampleNetwork{Client: SampleClient{IP: row.ProcesslistHost.String}},
		DB: SampleDB{
			Instance: row.CurrentSchema.String,
			Plan: SamplePlan{
				Definition: es.planDefinition,
				Cost:       es.planCost,
				Signature:  es.planSignature,
			},
			QuerySignature: es.querySignature,
			ResourceHash:   es.resourceHash,
			Statement:      es.statement,
		},
		MySQL: residualColumns(row),
	}
}

// residualColumns holds the source columns that have no structured field.
func residualColumns(row StatementRow) map[string]any {
	m := map[string]any{
		"timer_wait_ns":    nullFloat(row.TimerWaitNs),
		"lock_time_ns":     nullFloat(row.LockTimeNs),
		"processlist_user": nullString(row.ProcesslistUser),
		"processlist_db":   nullString(row.ProcesslistDB),
	}
	for i, name := range counterColumns {
		if v := row.Counters[i]; v.Valid {
			m[name] = v.Int64
		} else {
			m[name] = nil
		}
	}
	return m
}

type tagSet struct {
	tags    []string
	joined  string
	service string
}

func newTagSet(tags []string) *tagSet {
	ts := &tagSet{
		tags:   append([]string(nil), tags...),
		joined: strings.Join(tags, ","),
	}
	for _, tag := range tags {
		if v, ok := strings.CutPrefix(tag, "service:"); ok {
			ts.service = v
			break
		}
	}
	return ts
}

// resolveDBHost picks the host identity reported on events. A local server
// is reported under this machine's hostname.
func resolveDBHost(dsn string) string {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return ""
	}

	host := cfg.Addr
	if cfg.Net == "unix" || host == "" {
		return localHostname()
	}
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	if host == "localhost" {
		return localHostname()
	}
	if ip := net.ParseIP(host); ip != nil && ip.IsLoopback() {
		return localHostname()
	}
	return host
}

func localHostname() string {
	name, err := os.Hostname()
	if err != nil {
		return "localhost"
	}
	return name
}

func nullString(v sql.NullString) any {
	if !v.Valid {
		return nil
	}
	return v.String
}

func nullFloat(v sql.NullFloat64) any {
	if !v.Valid {
		return nil
	}
	return v.Float64
}
