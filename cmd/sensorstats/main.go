package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"sensorstats/app"
	"sensorstats/config"
	"sensorstats/logging"
)

var configFile = flag.String("config", "configs/sensorstats.yaml", "Path to the configuration file")

func main() {
	flag.Parse()
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: Failed to load configuration from %s: %v\n", *configFile, err)
		return 1
	}

	logger, err := logging.NewLogger(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: Failed to initialize logger: %v\n", err)
		return 1
	}
	defer func() {
		_ = logger.Sync()
	}()

	sugar := logger.Sugar()
	sugar.Infow("Configuration loaded",
		"path", *configFile,
		"level", cfg.Log.Level,
		"statistics", len(cfg.Statistics),
		"distributions", len(cfg.Distributions),
		"derived", len(cfg.Derived),
	)

	host, err := app.New(cfg, logger)
	if err != nil {
		sugar.Errorw("Failed to initialize host", zap.Error(err))
		return 1
	}
	defer func() {
		if err := host.Close(); err != nil {
			sugar.Warnw("Failed to close host cleanly", zap.Error(err))
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-signals
		sugar.Infow("Received signal, initiating shutdown...", "signal", sig.String())
		cancel()
	}()

	sugar.Info("Starting sensorstats host...")
	runErr := host.Run(ctx)

	finalLogLevel := zapcore.InfoLevel
	shutdownReason := "gracefully"
	finalErrorField := zap.Skip()
	exitCode := 0

	switch {
	case runErr == nil:
		sugar.Info("Input exhausted, host finished.")
	case errors.Is(runErr, context.Canceled):
		sugar.Info("Host cancelled (expected on shutdown).")
	default:
		shutdownReason = "due to error"
		finalLogLevel = zapcore.ErrorLevel
		finalErrorField = zap.Error(runErr)
		exitCode = 1
	}

	logger.Log(finalLogLevel, fmt.Sprintf("Host shutdown %s.", shutdownReason),
		zap.String("reason", shutdownReason),
		finalErrorField,
	)
	return exitCode
}
