// SPDX-License-Identifier: GPL-3.0-or-later

package stmtsamples

import (
	"context"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/netdata/netdata/go/stmtsampler/pkg/sqlobfuscate"
	"github.com/netdata/netdata/go/stmtsampler/plugin/go.d/pkg/sqlquery"
)

type explainMechanism int

const (
	explainByStatement explainMechanism = iota
	explainByProcedure
	explainByFQProcedure
)

func (m explainMechanism) String() string {
	switch m {
	case explainByStatement:
		return "explain_statement"
	case explainByProcedure:
		return "explain_procedure"
	case explainByFQProcedure:
		return "explain_fq_procedure"
	default:
		return "unknown"
	}
}

type explainOutcome int

const (
	// explainUntried is never stored, a missing cache entry means the same.
	explainUntried explainOutcome = iota
	explainSucceeded
	explainFailed
)

// explainStrategy is the per-schema record. mechanism is only meaningful
// when outcome is explainSucceeded.
type explainStrategy struct {
	outcome   explainOutcome
	mechanism explainMechanism
}

// explainableVerbs are the statements EXPLAIN accepts and can't modify data through.
var explainableVerbs = map[string]bool{
	"select":  true,
	"table":   true,
	"delete":  true,
	"insert":  true,
	"replace": true,
	"update":  true,
}

func canExplain(statement string) bool {
	fields := strings.Fields(statement)
	if len(fields) == 0 {
		return false
	}
	return explainableVerbs[strings.ToLower(fields[0])]
}

// explainRows runs the explain stage over the filtered batch and returns
// the samples that were not seen before.
func (s *Sampler) explainRows(ctx context.Context, conn dbConn, batch []StatementRow, tags *tagSet) []Sample {
	var samples []Sample

	for row := range s.validStatementRows(batch) {
		if ctx.Err() != nil {
			break
		}

		es, ok := s.explainRow(ctx, conn, row)
		if !ok {
			continue
		}

		key := seenSampleKey{querySignature: es.querySignature, planSignature: es.planSignature}
		if s.seenSamplesCache.Contains(key) {
			continue
		}
		s.seenSamplesCache.Put(key, struct{}{})

		samples = append(samples, s.newSample(es, tags))
	}

	return samples
}

type seenSampleKey struct {
	querySignature string
	planSignature  string
}

func (s *Sampler) explainRow(ctx context.Context, conn dbConn, row StatementRow) (explainedStatement, bool) {
	statement, err := s.Obfuscator.ObfuscateSQL(row.SQLText.String)
	if err != nil {
		s.Debugf("failed to obfuscate statement: %v", err)
		s.mx.countError("sql-obfuscate", 1)
		return explainedStatement{}, false
	}
	digest, err := s.Obfuscator.ObfuscateSQL(row.DigestText.String)
	if err != nil {
		s.Debugf("failed to obfuscate statement digest: %v", err)
		s.mx.countError("sql-obfuscate", 1)
		return explainedStatement{}, false
	}

	es := explainedStatement{
		row:            row,
		statement:      statement,
		querySignature: sqlobfuscate.ComputeSignature(digest),
		resourceHash:   sqlobfuscate.ComputeSignature(statement),
	}

	if s.explainedCache.Contains(es.querySignature) {
		return explainedStatement{}, false
	}
	s.explainedCache.Put(es.querySignature, struct{}{})

	plan, ok := s.explainStatementSafe(ctx, conn, row.SQLText.String, row.CurrentSchema.String, statement)
	if !ok {
		return es, true
	}

	normalized, err := s.Obfuscator.ObfuscateExecPlan(plan, true)
	if err != nil {
		s.Debugf("failed to normalize plan of '%s': %v", statement, err)
		s.mx.countError("plan-obfuscate", 1)
		return es, true
	}
	obfuscated, err := s.Obfuscator.ObfuscateExecPlan(plan, false)
	if err != nil {
		s.Debugf("failed to obfuscate plan of '%s': %v", statement, err)
		s.mx.countError("plan-obfuscate", 1)
		return es, true
	}

	cost := parseExecutionPlanCost(plan)
	es.planDefinition = obfuscated
	es.planSignature = sqlobfuscate.ComputeSignature(normalized)
	es.planCost = &cost

	return es, true
}

// explainStatementSafe never fails the cycle, anything unexpected is
// logged and the statement goes out without a plan.
func (s *Sampler) explainStatementSafe(ctx context.Context, conn dbConn, statement, schema, obfuscated string) (string, bool) {
	start := time.Now()
	defer func() { s.mx.explainDuration.Observe(time.Since(start).Seconds()) }()

	plan, ok, err := s.explainStatement(ctx, conn, statement, schema, obfuscated)
	if err != nil {
		s.Errorf("failed to collect execution plan for '%s': %v", obfuscated, err)
		s.mx.countError("explain", 1)
		return "", false
	}
	return plan, ok
}

// explainStatement tries the explain mechanisms for the schema, starting
// with the one that worked last time. Server errors are handled here, any
// other error is returned.
func (s *Sampler) explainStatement(ctx context.Context, conn dbConn, statement, schema, obfuscated string) (string, bool, error) {
	if !canExplain(statement) {
		s.Debugf("skipping plan collection for a statement that can't be explained: '%s'", obfuscated)
		return "", false, nil
	}

	cached, hit := s.explainStrategyCache.Get(schema)
	if hit && cached.outcome == explainFailed {
		s.Debugf("plan collection for schema '%s' failed permanently, skipping", schema)
		return "", false, nil
	}

	if schema != "" {
		if _, err := conn.ExecContext(ctx, "USE "+quoteIdentifier(schema)); err != nil {
			switch classifyError(err) {
			case errorClassOther:
				return "", false, err
			case errorClassNonRetryable:
				s.explainStrategyCache.Put(schema, explainStrategy{outcome: explainFailed})
			}
			s.Debugf("failed to switch to schema '%s': %v", schema, err)
			s.mx.countError("explain-use-schema", 1)
			return "", false, nil
		}
	}

	for _, m := range s.explainOrder(cached, hit) {
		plan, ok, err := s.runExplain(ctx, conn, m, statement)
		if err != nil {
			class := classifyError(err)
			if class == errorClassOther {
				return "", false, err
			}
			s.Debugf("plan collection with %s failed for schema '%s': %v", m, schema, err)
			s.mx.countError("explain-attempt-"+m.String(), 1)
			if class == errorClassNonRetryable {
				s.explainStrategyCache.Put(schema, explainStrategy{outcome: explainFailed})
				return "", false, nil
			}
			continue
		}
		if ok && plan != "" {
			s.explainStrategyCache.Put(schema, explainStrategy{outcome: explainSucceeded, mechanism: m})
			s.Debugf("collected plan for schema '%s' with %s", schema, m)
			return plan, true, nil
		}
	}

	return "", false, nil
}

// explainOrder puts the cached working mechanism first, then the remaining
// configured ones in preference order.
func (s *Sampler) explainOrder(cached explainStrategy, hit bool) []explainMechanism {
	order := make([]explainMechanism, 0, len(s.mechanisms))
	if hit && cached.outcome == explainSucceeded {
		order = append(order, cached.mechanism)
	}
	for _, m := range s.mechanisms {
		if hit && cached.outcome == explainSucceeded && m == cached.mechanism {
			continue
		}
		order = append(order, m)
	}
	return order
}

func (s *Sampler) configuredMechanisms() []explainMechanism {
	ms := []explainMechanism{explainByStatement}
	if s.ExplainProcedure != "" {
		ms = append(ms, explainByProcedure)
	}
	if s.FullyQualifiedExplainProcedure != "" {
		ms = append(ms, explainByFQProcedure)
	}
	return ms
}

func (s *Sampler) runExplain(ctx context.Context, conn dbConn, m explainMechanism, statement string) (string, bool, error) {
	switch m {
	case explainByStatement:
		return sqlquery.QueryFirstValue(ctx, conn, "EXPLAIN FORMAT=json "+statement)
	case explainByProcedure:
		return sqlquery.QueryFirstValue(ctx, conn, "CALL "+s.ExplainProcedure+"(?)", statement)
	case explainByFQProcedure:
		return sqlquery.QueryFirstValue(ctx, conn, "CALL "+s.FullyQualifiedExplainProcedure+"(?)", statement)
	default:
		return "", false, nil
	}
}

// parseExecutionPlanCost reads query_block.cost_info.query_cost, which
// MySQL reports as a quoted number. Missing or malformed plans cost 0.
func parseExecutionPlanCost(plan string) float64 {
	if !gjson.Valid(plan) {
		return 0
	}
	v := gjson.Get(plan, "query_block.cost_info.query_cost")
	if !v.Exists() {
		return 0
	}
	return v.Float()
}

func quoteIdentifier(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}
