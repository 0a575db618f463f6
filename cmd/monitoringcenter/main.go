// Command monitoringcenter runs a standalone monitoring center that exports
// its own process metrics to Graphite and serves the HTTP inspection API.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/monitoringcenter/monitoringcenter/internal/config"
	"github.com/monitoringcenter/monitoringcenter/pkg/api"
	"github.com/monitoringcenter/monitoringcenter/pkg/health"
	"github.com/monitoringcenter/monitoringcenter/pkg/metrics"
	"github.com/monitoringcenter/monitoringcenter/pkg/monitoring"
	"github.com/monitoringcenter/monitoringcenter/pkg/utils"
	"github.com/peterbourgon/ff/v3"
	"github.com/sirupsen/logrus"
)

const shutdownTimeout = 10 * time.Second

type arguments struct {
	configFile      string
	logLevel        string
	logFormat       string
	application     string
	nodeID          string
	httpAddress     string
	graphiteAddress string
	checkConfig     bool
}

func parseArgs() (*arguments, error) {
	var args arguments

	fs := flag.NewFlagSet("monitoringcenter", flag.ExitOnError)
	fs.StringVar(&args.configFile, "config", "", "Path to a YAML configuration file.")
	fs.StringVar(&args.logLevel, "log-level", "", "Log level (debug, info, warn, error).")
	fs.StringVar(&args.logFormat, "log-format", "", "Log format (text or json).")
	fs.StringVar(&args.application, "application-name", "", "Application name used as the export prefix.")
	fs.StringVar(&args.nodeID, "node-id", "", "Node identifier; defaults to the host name.")
	fs.StringVar(&args.httpAddress, "http-address", "", "Address for the HTTP API.")
	fs.StringVar(&args.graphiteAddress, "graphite-address", "", "Graphite plaintext endpoint; enables the reporter.")
	fs.BoolVar(&args.checkConfig, "check-config", false, "Validate the configuration and exit.")

	return &args, ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("MONITORINGCENTER"),
	)
}

func loadConfig(args *arguments) (*config.Configuration, error) {
	cfg := config.NewDefault()
	if args.configFile != "" {
		if err := cfg.LoadFromFile(args.configFile); err != nil {
			return nil, err
		}
	}
	if err := cfg.LoadFromEnv(); err != nil {
		return nil, err
	}

	if args.logLevel != "" {
		cfg.Logging.Level = args.logLevel
	}
	if args.logFormat != "" {
		cfg.Logging.Format = args.logFormat
	}
	if args.application != "" {
		cfg.Naming.ApplicationName = args.application
	}
	if args.nodeID != "" {
		cfg.Naming.NodeID = args.nodeID
	}
	if args.httpAddress != "" {
		cfg.HTTP.Address = args.httpAddress
	}
	if args.graphiteAddress != "" {
		cfg.Graphite.Enabled = true
		cfg.Graphite.Address = args.graphiteAddress
	}
	return cfg, cfg.Validate()
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "monitoringcenter: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	args, err := parseArgs()
	if err != nil {
		return err
	}
	cfg, err := loadConfig(args)
	if err != nil {
		return err
	}
	if args.checkConfig {
		fmt.Println("configuration OK")
		return nil
	}

	logger, err := utils.NewLogger(cfg.Logging.Level, cfg.Logging.Format, nil)
	if err != nil {
		return err
	}

	center := monitoring.New(monitoring.WithLogger(logger))
	if err := center.RegisterHealthCheck("ping", health.Ping()); err != nil {
		return err
	}
	if err := center.Configure(cfg.Monitoring()); err != nil {
		return err
	}
	if err := registerSelfMetrics(center); err != nil {
		logger.WithError(err).Warn("Failed to register self metrics")
	}

	var server *api.Server
	if cfg.HTTP.Enabled {
		server = api.NewServer(cfg.HTTP, center, logger)
		server.StartBackground()
	}

	logger.WithFields(logrus.Fields{
		"prefix":   cfg.Naming.Prefix(),
		"graphite": cfg.Graphite.Enabled,
		"http":     cfg.HTTP.Enabled,
	}).Info("monitoringcenter started")

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	received := <-sig
	logger.WithField("signal", received.String()).Info("Shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if server != nil {
		if err := server.Shutdown(ctx); err != nil {
			logger.WithError(err).Warn("API server shutdown failed")
		}
	}
	return center.Shutdown(ctx)
}

func registerSelfMetrics(center *monitoring.Center) error {
	col, err := center.MetricCollectorFor(center)
	if err != nil {
		return err
	}
	started := time.Now()
	return col.RegisterGauge(metrics.NewGauge(func() float64 {
		return time.Since(started).Seconds()
	}), "uptime")
}
