// SPDX-License-Identifier: GPL-3.0-or-later

package stmtsamples

import (
	"context"
	"slices"

	"github.com/netdata/netdata/go/stmtsampler/plugin/go.d/pkg/sqlquery"
)

const (
	tableEventsStatementsHistoryLong = "events_statements_history_long"
	tableEventsStatementsHistory     = "events_statements_history"
	tableEventsStatementsCurrent     = "events_statements_current"

	collectionStrategyCacheKey = "plan_collection_strategy"
)

const (
	queryEnabledConsumers = "SELECT name FROM performance_schema.setup_consumers WHERE enabled = 'YES'"
	queryEnableConsumer   = "UPDATE performance_schema.setup_consumers SET enabled = 'YES' WHERE name = ?"
)

// Long history keeps statements of finished sessions, current only sees
// statements of sessions alive at poll time.
var preferredEventsStatementsTables = []string{
	tableEventsStatementsHistoryLong,
	tableEventsStatementsHistory,
	tableEventsStatementsCurrent,
}

// defaultCollectionRates are in collections per second.
var defaultCollectionRates = map[string]float64{
	tableEventsStatementsHistoryLong: 0.1,
	tableEventsStatementsHistory:     0.1,
	tableEventsStatementsCurrent:     1,
}

type collectionStrategy struct {
	table string
	rate  float64
}

// eventsStatementsTables returns the candidate tables. A valid
// events_statements_table pins the choice to that single table.
func eventsStatementsTables(override string) ([]string, bool) {
	if override == "" {
		return preferredEventsStatementsTables, true
	}
	if !slices.Contains(preferredEventsStatementsTables, override) {
		return preferredEventsStatementsTables, false
	}
	return []string{override}, true
}

// collectionStrategy returns the table to poll and its rate. ok is false
// when no table is enabled and populated, the cycle is skipped then.
func (s *Sampler) collectionStrategy(ctx context.Context, conn dbConn) (collectionStrategy, bool, error) {
	if cs, ok := s.strategyCache.Get(collectionStrategyCacheKey); ok {
		return cs, true, nil
	}

	names, err := sqlquery.QueryColumn(ctx, conn, queryEnabledConsumers)
	if err != nil {
		return collectionStrategy{}, false, err
	}
	enabled := make(map[string]bool, len(names))
	for _, name := range names {
		enabled[name] = true
	}

	for _, table := range s.tables {
		if !enabled[table] {
			if !s.AutoEnableConsumers {
				s.Debugf("%s consumer is disabled and auto enabling is off, skipping", table)
				continue
			}
			if !s.enableConsumer(ctx, conn, table) {
				continue
			}
		}

		rows, err := s.fetchEventsStatements(ctx, conn, table, 1, false)
		if err != nil {
			return collectionStrategy{}, false, err
		}
		if len(rows) == 0 {
			s.Debugf("%s has no new statements, trying the next table", table)
			continue
		}

		rate := s.CollectionsPerSecond
		if rate <= 0 {
			rate = defaultCollectionRates[table]
		}
		cs := collectionStrategy{table: table, rate: rate}
		s.strategyCache.Put(collectionStrategyCacheKey, cs)
		s.Debugf("chose plan collection strategy: table '%s', %.3f collections/s", cs.table, cs.rate)

		return cs, true, nil
	}

	s.Infof("no valid performance_schema.events_statements table found, cannot collect statement samples (tried %v)", s.tables)

	return collectionStrategy{}, false, nil
}

func (s *Sampler) enableConsumer(ctx context.Context, conn dbConn, table string) bool {
	if _, err := conn.ExecContext(ctx, queryEnableConsumer, table); err != nil {
		if isMySQLErrorCode(err, errCodeOptionPreventsStmt) {
			s.Debugf("can not enable %s consumer, the server is read-only: %v", table, err)
		} else {
			s.Debugf("failed to enable %s consumer: %v", table, err)
		}
		return false
	}
	s.Infof("enabled %s consumer", table)
	return true
}
