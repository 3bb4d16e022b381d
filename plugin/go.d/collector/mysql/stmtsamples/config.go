// SPDX-License-Identifier: GPL-3.0-or-later

package stmtsamples

import (
	"errors"
	"fmt"
	"time"

	"github.com/netdata/netdata/go/stmtsampler/pkg/confopt"
)

type Config struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	RunSync bool   `yaml:"run_sync,omitempty" json:"run_sync"`
	DSN     string `yaml:"dsn" json:"dsn"`
	MyCNF   string `yaml:"my.cnf,omitempty" json:"my.cnf"`

	Timeout               confopt.Duration `yaml:"timeout,omitempty" json:"timeout"`
	MinCollectionInterval confopt.Duration `yaml:"min_collection_interval,omitempty" json:"min_collection_interval"`

	DisableSessionQueryLog bool `yaml:"disable_session_query_log" json:"disable_session_query_log"`
	AutoEnableConsumers    bool `yaml:"auto_enable_events_statements_consumers,omitempty" json:"auto_enable_events_statements_consumers"`

	// CollectionsPerSecond overrides the per-table default when positive.
	CollectionsPerSecond     float64 `yaml:"collections_per_second,omitempty" json:"collections_per_second"`
	EventsStatementsRowLimit int     `yaml:"events_statements_row_limit,omitempty" json:"events_statements_row_limit"`
	EventsStatementsTable    string  `yaml:"events_statements_table,omitempty" json:"events_statements_table"`

	ExplainProcedure               string `yaml:"explain_procedure" json:"explain_procedure"`
	FullyQualifiedExplainProcedure string `yaml:"fully_qualified_explain_procedure" json:"fully_qualified_explain_procedure"`

	CollectionStrategyCacheMaxSize     int              `yaml:"collection_strategy_cache_maxsize,omitempty" json:"collection_strategy_cache_maxsize"`
	CollectionStrategyCacheTTL         confopt.Duration `yaml:"collection_strategy_cache_ttl,omitempty" json:"collection_strategy_cache_ttl"`
	ExplainedStatementsCacheMaxSize    int              `yaml:"explained_statements_cache_maxsize,omitempty" json:"explained_statements_cache_maxsize"`
	ExplainedStatementsPerHourPerQuery float64          `yaml:"explained_statements_per_hour_per_query,omitempty" json:"explained_statements_per_hour_per_query"`
	SeenSamplesCacheMaxSize            int              `yaml:"seen_samples_cache_maxsize,omitempty" json:"seen_samples_cache_maxsize"`
	SamplesPerHourPerQuery             float64          `yaml:"samples_per_hour_per_query,omitempty" json:"samples_per_hour_per_query"`
}

func DefaultConfig() Config {
	return Config{
		DSN:                                "root@tcp(localhost:3306)/",
		Timeout:                            confopt.Duration(time.Second * 5),
		MinCollectionInterval:              confopt.Duration(time.Second * 15),
		DisableSessionQueryLog:             true,
		CollectionsPerSecond:               -1,
		EventsStatementsRowLimit:           5000,
		ExplainProcedure:                   "explain_statement",
		FullyQualifiedExplainProcedure:     "netdata.explain_statement",
		CollectionStrategyCacheMaxSize:     1000,
		CollectionStrategyCacheTTL:         confopt.Duration(time.Second * 300),
		ExplainedStatementsCacheMaxSize:    5000,
		ExplainedStatementsPerHourPerQuery: 60,
		SeenSamplesCacheMaxSize:            10000,
		SamplesPerHourPerQuery:             15,
	}
}

func (c Config) validate() error {
	if c.DSN == "" {
		return errors.New("config: dsn not set")
	}
	if c.EventsStatementsRowLimit <= 0 {
		return fmt.Errorf("config: events_statements_row_limit must be positive, got %d", c.EventsStatementsRowLimit)
	}
	if c.MinCollectionInterval.Duration() <= 0 {
		return errors.New("config: min_collection_interval must be positive")
	}
	if c.CollectionStrategyCacheMaxSize <= 0 || c.ExplainedStatementsCacheMaxSize <= 0 || c.SeenSamplesCacheMaxSize <= 0 {
		return errors.New("config: cache sizes must be positive")
	}
	if c.CollectionStrategyCacheTTL.Duration() <= 0 {
		return errors.New("config: collection_strategy_cache_ttl must be positive")
	}
	if c.ExplainedStatementsPerHourPerQuery <= 0 || c.SamplesPerHourPerQuery <= 0 {
		return errors.New("config: per hour per query rates must be positive")
	}
	return nil
}

// perHourTTL turns an "N per hour per query" budget into the TTL of the
// suppression cache entry guarding that query.
func perHourTTL(perHour float64) time.Duration {
	return time.Duration(float64(time.Hour) / perHour)
}
