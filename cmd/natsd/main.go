// Command natsd runs the in-memory pub/sub broker.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	_ "go.uber.org/automaxprocs"

	"github.com/adred-codev/natsd/internal/acceptor"
	"github.com/adred-codev/natsd/internal/config"
	"github.com/adred-codev/natsd/internal/metrics"
	"github.com/adred-codev/natsd/internal/monitoring"
	"github.com/adred-codev/natsd/internal/router"
)

func main() {
	debug := flag.Bool("debug", false, "enable debug logging (overrides NATSD_LOG_LEVEL)")
	flag.Parse()

	fmt.Printf("natsd: GOMAXPROCS=%d (via automaxprocs)\n", runtime.GOMAXPROCS(0))

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "natsd: failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if *debug {
		cfg.LogLevel = "debug"
	}
	cfg.Print()

	logger := monitoring.NewLogger(monitoring.LoggerConfig{Level: cfg.LogLevel, Format: cfg.LogFormat})
	cfg.LogConfig(logger)

	r := router.New(logger)
	acc := acceptor.New(cfg, r, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := acc.Start(ctx); err != nil {
		logger.Fatal().Err(err).Msg("failed to start acceptor")
	}

	metricsServer := metrics.NewServer(cfg.MetricsAddr)
	go func() {
		if err := metricsServer.Run(ctx); err != nil {
			logger.Error().Err(err).Msg("metrics server error")
		}
	}()

	sampler, err := monitoring.NewSampler(logger, cfg.StatsPeriod, monitoring.Counters{
		Connections:   acc.ConnectionCount,
		Subscriptions: r.Count,
	})
	if err != nil {
		logger.Warn().Err(err).Msg("failed to start stats sampler")
	} else {
		go sampler.Run(ctx)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	logger.Info().Msg("shutting down")
	cancel()
	if err := acc.Shutdown(); err != nil {
		logger.Error().Err(err).Msg("error during shutdown")
	}
}
