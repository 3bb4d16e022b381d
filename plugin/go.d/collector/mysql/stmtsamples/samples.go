// SPDX-License-Identifier: GPL-3.0-or-later

package stmtsamples

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sourcegraph/conc/panics"

	"github.com/netdata/netdata/go/stmtsampler/logger"
	"github.com/netdata/netdata/go/stmtsampler/pkg/ratelimit"
	"github.com/netdata/netdata/go/stmtsampler/pkg/sqlobfuscate"
	"github.com/netdata/netdata/go/stmtsampler/pkg/ttlcache"
	"github.com/netdata/netdata/go/stmtsampler/plugin/go.d/pkg/sqlquery"
)

const envRunSync = "NETDATA_STATEMENT_SAMPLER_RUN_SYNC"

// Obfuscator redacts statements and execution plans before they leave the sampler.
type Obfuscator interface {
	ObfuscateSQL(query string) (string, error)
	ObfuscateExecPlan(plan string, normalize bool) (string, error)
}

type dbConn interface {
	sqlquery.Queryer
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func New() *Sampler {
	return &Sampler{
		Config: DefaultConfig(),
		now:    time.Now,
	}
}

// Sampler harvests statement samples and their execution plans from
// performance_schema. Dependencies left nil are defaulted by Init.
type Sampler struct {
	*logger.Logger
	Config `yaml:",inline" json:""`

	Obfuscator Obfuscator
	Submitter  Submitter
	Registerer prometheus.Registerer

	now func() time.Time

	safeDSN    string
	dbHost     string
	tables     []string
	mechanisms []explainMechanism

	// cycleMu guards everything below up to mx, a cycle runs under it.
	cycleMu              sync.Mutex
	limiter              *ratelimit.Limiter
	strategyCache        *ttlcache.Cache[string, collectionStrategy]
	explainStrategyCache *ttlcache.Cache[string, explainStrategy]
	explainedCache       *ttlcache.Cache[string, struct{}]
	seenSamplesCache     *ttlcache.Cache[seenSampleKey, struct{}]
	checkpoint           uint64
	db                   *sql.DB
	conn                 *sql.Conn

	mx *samplerMetrics

	tags         atomic.Pointer[tagSet]
	lastCheckRun atomic.Int64
	running      atomic.Bool

	loopMu sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func (s *Sampler) Init(context.Context) error {
	if s.MyCNF != "" {
		dsn, err := dsnFromFile(s.MyCNF)
		if err != nil {
			return err
		}
		s.DSN = dsn
	}

	if err := s.validate(); err != nil {
		return err
	}

	cfg, err := mysql.ParseDSN(s.DSN)
	if err != nil {
		return fmt.Errorf("error on parsing DSN: %v", err)
	}
	cfg.Passwd = strings.Repeat("x", len(cfg.Passwd))
	s.safeDSN = cfg.FormatDSN()
	s.Debugf("using DSN [%s]", s.safeDSN)

	tables, ok := eventsStatementsTables(s.EventsStatementsTable)
	if !ok {
		s.Warningf("invalid events_statements_table '%s', must be one of %v, ignoring it",
			s.EventsStatementsTable, preferredEventsStatementsTables)
	}
	s.tables = tables
	s.mechanisms = s.configuredMechanisms()

	if s.now == nil {
		s.now = time.Now
	}
	if s.Obfuscator == nil {
		s.Obfuscator = sqlobfuscate.New()
	}
	if s.Submitter == nil {
		s.Submitter = DiscardSubmitter
	}

	if s.limiter, err = ratelimit.New(1); err != nil {
		return err
	}

	strategyTTL := s.CollectionStrategyCacheTTL.Duration()
	s.strategyCache = ttlcache.New[string, collectionStrategy](s.CollectionStrategyCacheMaxSize, strategyTTL).WithClock(s.now)
	s.explainStrategyCache = ttlcache.New[string, explainStrategy](s.CollectionStrategyCacheMaxSize, strategyTTL).WithClock(s.now)
	s.explainedCache = ttlcache.New[string, struct{}](
		s.ExplainedStatementsCacheMaxSize, perHourTTL(s.ExplainedStatementsPerHourPerQuery)).WithClock(s.now)
	s.seenSamplesCache = ttlcache.New[seenSampleKey, struct{}](
		s.SeenSamplesCacheMaxSize, perHourTTL(s.SamplesPerHourPerQuery)).WithClock(s.now)

	if s.mx, err = newSamplerMetrics(s.Registerer); err != nil {
		return err
	}

	s.dbHost = resolveDBHost(s.DSN)
	s.tags.Store(newTagSet(nil))

	return nil
}

// Run is called by the host check on every collection. It refreshes the
// tags and the liveness timestamp, then either runs one cycle in place or
// makes sure the background loop is running.
func (s *Sampler) Run(ctx context.Context, tags []string) {
	if !s.Enabled {
		return
	}

	s.tags.Store(newTagSet(tags))
	s.lastCheckRun.Store(s.now().UnixNano())

	if s.runSync() {
		s.Debug("running statement sampler synchronously")
		s.catchPanic(func() {
			if err := s.runCycle(ctx, true); err != nil {
				s.Errorf("statement sampler collection failure: %v", err)
				s.mx.countError("collection-loop-failure", 1)
			}
		})
		return
	}

	if !s.running.CompareAndSwap(false, true) {
		s.Debug("statement sampler already running")
		return
	}

	s.Info("starting mysql statement sampler")

	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})

	s.loopMu.Lock()
	s.cancel, s.done = cancel, done
	s.loopMu.Unlock()

	go func() {
		defer close(done)
		defer s.running.Store(false)
		defer cancel()

		s.catchPanic(func() { s.collectionLoop(loopCtx) })
	}()
}

// catchPanic runs fn on the calling goroutine. A panic is logged and
// counted instead of reaching the host.
func (s *Sampler) catchPanic(fn func()) {
	var pc panics.Catcher
	pc.Try(fn)
	if r := pc.Recovered(); r != nil {
		s.Errorf("statement sampler collection loop panic: %v", r.AsError())
		s.mx.countError("collection-loop-panic", 1)
	}
}

// Running reports whether the background collection loop is active.
func (s *Sampler) Running() bool {
	return s.running.Load()
}

// Stop cancels the background loop and waits for it to exit.
func (s *Sampler) Stop() {
	s.loopMu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.loopMu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Cleanup stops the loop and closes the sampler's own connection.
func (s *Sampler) Cleanup(context.Context) {
	s.Stop()

	s.cycleMu.Lock()
	defer s.cycleMu.Unlock()

	s.closeConn()
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.Errorf("cleanup: error on closing the mysql database [%s]: %v", s.safeDSN, err)
		}
		s.db = nil
	}
}

func (s *Sampler) runSync() bool {
	if s.RunSync {
		return true
	}
	v, err := strconv.ParseBool(os.Getenv(envRunSync))
	return err == nil && v
}

func (s *Sampler) collectionLoop(ctx context.Context) {
	s.Info("started mysql statement sampler collection loop")

	for {
		if ctx.Err() != nil {
			s.Info("stopping mysql statement sampler collection loop, cancelled")
			return
		}
		if s.hostInactive() {
			s.Info("stopping mysql statement sampler collection loop due to check inactivity")
			s.mx.inactiveStops.Inc()
			return
		}
		if err := s.runCycle(ctx, false); err != nil {
			if ctx.Err() != nil {
				continue
			}
			s.Errorf("mysql statement sampler collection loop failure: %v", err)
			s.mx.countError("collection-loop-failure", 1)
			return
		}
	}
}

func (s *Sampler) hostInactive() bool {
	last := time.Unix(0, s.lastCheckRun.Load())
	return s.now().Sub(last) > 2*s.MinCollectionInterval.Duration()
}

// runCycle waits for the rate limiter and runs one cycle. With try set the
// cycle is skipped when another one holds the cycle lock.
func (s *Sampler) runCycle(ctx context.Context, try bool) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}

	if !try {
		s.cycleMu.Lock()
	} else if !s.cycleMu.TryLock() {
		s.Debug("statement sample collection already in progress, skipping")
		return nil
	}
	defer s.cycleMu.Unlock()

	err := s.collectStatementSamples(ctx)
	if isBadConn(err) {
		s.closeConn()
	}
	return err
}

func (s *Sampler) collectStatementSamples(ctx context.Context) error {
	start := time.Now()

	conn, err := s.getConn(ctx)
	if err != nil {
		return err
	}

	cs, ok, err := s.collectionStrategy(ctx, conn)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	if s.limiter.Rate() != cs.rate {
		if err := s.limiter.SetRate(cs.rate); err != nil {
			return err
		}
	}

	batch, err := s.fetchEventsStatements(ctx, conn, cs.table, s.EventsStatementsRowLimit, true)
	if err != nil {
		// the next cycle picks the table again
		s.strategyCache.Delete(collectionStrategyCacheKey)
		return err
	}

	samples := s.explainRows(ctx, conn, batch, s.tags.Load())

	submitted, err := s.Submitter.SubmitEvents(ctx, samples)
	if err != nil {
		s.Warningf("failed to submit statement samples (%d/%d submitted): %v", submitted, len(samples), err)
		s.mx.countError("submit", 1)
	}

	s.mx.collectDuration.Observe(time.Since(start).Seconds())
	s.mx.eventsSubmitted.WithLabelValues(cs.table).Add(float64(submitted))
	s.publishCacheEntries()

	s.Debugf("collected %d statement samples from %s (%d rows)", submitted, cs.table, len(batch))

	return nil
}

// publishCacheEntries reports live entries only, expired ones are swept first.
func (s *Sampler) publishCacheEntries() {
	s.seenSamplesCache.Sweep()
	s.explainedCache.Sweep()
	s.explainStrategyCache.Sweep()

	s.mx.cacheEntries.WithLabelValues("seen_samples").Set(float64(s.seenSamplesCache.Len()))
	s.mx.cacheEntries.WithLabelValues("explained_statements").Set(float64(s.explainedCache.Len()))
	s.mx.cacheEntries.WithLabelValues("explain_strategies").Set(float64(s.explainStrategyCache.Len()))
}

// getConn returns the sampler's pinned connection, opening it on first use.
// The connection is never shared with the host check, and USE / SET
// SESSION state stays on it between cycles.
func (s *Sampler) getConn(ctx context.Context) (*sql.Conn, error) {
	if s.conn != nil {
		return s.conn, nil
	}

	if s.db == nil {
		if err := s.openConnection(ctx); err != nil {
			return nil, err
		}
	}

	connCtx, cancel := context.WithTimeout(ctx, s.Timeout.Duration())
	defer cancel()

	conn, err := s.db.Conn(connCtx)
	if err != nil {
		return nil, fmt.Errorf("error on acquiring a connection to the mysql database [%s]: %w", s.safeDSN, err)
	}

	if s.DisableSessionQueryLog {
		s.disableSessionQueryLog(ctx, conn)
	}

	s.conn = conn
	return conn, nil
}

func (s *Sampler) openConnection(ctx context.Context) error {
	db, err := sql.Open("mysql", s.DSN)
	if err != nil {
		return fmt.Errorf("error on opening a connection with the mysql database [%s]: %v", s.safeDSN, err)
	}

	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(10 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, s.Timeout.Duration())
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return fmt.Errorf("error on pinging the mysql database [%s]: %w", s.safeDSN, err)
	}

	s.db = db
	return nil
}

func (s *Sampler) closeConn() {
	if s.conn == nil {
		return
	}
	if err := s.conn.Close(); err != nil && !errors.Is(err, sql.ErrConnDone) {
		s.Debugf("error on closing the sampler connection: %v", err)
	}
	s.conn = nil
}

func isBadConn(err error) bool {
	return err != nil && (errors.Is(err, driver.ErrBadConn) || errors.Is(err, mysql.ErrInvalidConn) || errors.Is(err, sql.ErrConnDone))
}
