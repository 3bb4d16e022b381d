// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/automaxprocs/maxprocs"

	"github.com/netdata/netdata/go/stmtsampler/logger"
	"github.com/netdata/netdata/go/stmtsampler/plugin/go.d/cli"
	"github.com/netdata/netdata/go/stmtsampler/plugin/go.d/collector/mysql/stmtsamples"
)

var version = "v0.0.0-dev"

func main() {
	_, _ = maxprocs.Set(maxprocs.Logger(func(s string, args ...interface{}) {}))

	opts := parseCLI()

	if opts.Version {
		fmt.Printf("stmtsampler, version: %s\n", version)
		return
	}

	if lvl := os.Getenv("NETDATA_LOG_LEVEL"); lvl != "" {
		logger.SetLevel(lvl)
	}
	if opts.Debug {
		logger.Level.Set(slog.LevelDebug)
	}

	log := logger.New().With(slog.String("component", "stmtsampler"))

	cfg, err := loadConfig(opts.ConfigPath)
	if err != nil {
		log.Errorf("loading config: %v", err)
		os.Exit(1)
	}
	if opts.UpdateEvery > 0 {
		cfg.setUpdateEvery(opts.UpdateEvery)
	}

	out, closeOut, err := openOutput(opts.Output)
	if err != nil {
		log.Errorf("opening output: %v", err)
		os.Exit(1)
	}
	defer closeOut()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	sampler := stmtsamples.New()
	sampler.Config = cfg.Sampler
	sampler.Logger = log.With(slog.String("collector", "mysql"))
	sampler.Submitter = stmtsamples.NewJSONLinesSubmitter(out)
	sampler.Registerer = reg

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := sampler.Init(ctx); err != nil {
		log.Errorf("init: %v", err)
		os.Exit(1)
	}

	if opts.MetricsAddr != "" {
		srv := serveMetrics(log, opts.MetricsAddr, reg)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second*5)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	log.Infof("running statement sampler every %ds", cfg.UpdateEvery)

	run(ctx, sampler, cfg)

	sampler.Cleanup(context.Background())
	log.Info("statement sampler stopped")
}

// run plays the host check: Run is called on every tick so the sampler's
// background loop knows it is still wanted.
func run(ctx context.Context, sampler *stmtsamples.Sampler, cfg *config) {
	tk := time.NewTicker(time.Duration(cfg.UpdateEvery) * time.Second)
	defer tk.Stop()

	for {
		sampler.Run(ctx, cfg.Tags)

		select {
		case <-ctx.Done():
			return
		case <-tk.C:
		}
	}
}

func serveMetrics(log *logger.Logger, addr string, reg *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: time.Second * 5}

	go func() {
		log.Infof("serving metrics on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("metrics server: %v", err)
		}
	}()

	return srv
}

func openOutput(path string) (io.Writer, func(), error) {
	if path == "" || path == "-" {
		return os.Stdout, func() {}, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0640)
	if err != nil {
		return nil, nil, err
	}
	return f, func() { _ = f.Close() }, nil
}

func parseCLI() *cli.Option {
	opt, err := cli.Parse(os.Args)
	if err != nil {
		if cli.IsHelp(err) {
			os.Exit(0)
		}
		os.Exit(1)
	}
	return opt
}
