package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"creditbridge/config"
	"creditbridge/core/events"
	"creditbridge/core/runtime"
	"creditbridge/observability"
	"creditbridge/observability/logging"
	telemetry "creditbridge/observability/otel"
	"creditbridge/rpc"
	"creditbridge/storage"
)

const serviceName = "bridged"

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	skipMigrate := flag.Bool("skip-migrate", false, "Do not run the bridge migrate hook on boot")
	flag.Parse()

	if err := run(*configFile, *skipMigrate); err != nil {
		fmt.Fprintf(os.Stderr, "bridged: %v\n", err)
		os.Exit(1)
	}
}

func run(configFile string, skipMigrate bool) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	opts := []logging.Option{logging.WithLevel(cfg.LogLevel)}
	if strings.TrimSpace(cfg.LogFile) != "" {
		opts = append(opts, logging.WithFile(cfg.LogFile, cfg.LogMaxSizeMB, cfg.LogMaxBackups))
	}
	logger, logCloser := logging.Setup(serviceName, cfg.Environment, opts...)
	defer logCloser.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	headers := telemetry.ParseHeaders(cfg.Telemetry.Headers)
	if envHeaders := os.Getenv("OTEL_EXPORTER_OTLP_HEADERS"); envHeaders != "" {
		for k, v := range telemetry.ParseHeaders(envHeaders) {
			headers[k] = v
		}
	}
	shutdownTelemetry, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    serviceName,
		ServiceVersion: version,
		Environment:    cfg.Environment,
		Endpoint:       cfg.Telemetry.Endpoint,
		Insecure:       cfg.Telemetry.Insecure,
		Headers:        headers,
		Metrics:        cfg.Telemetry.Metrics,
		Traces:         cfg.Telemetry.Traces,
		SampleRatio:    cfg.Telemetry.SampleRatio,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(flushCtx); err != nil {
			logger.Warn("telemetry shutdown failed", slog.Any("error", err))
		}
	}()

	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	broadcaster := events.NewBroadcaster()
	rt, err := runtime.New(db, runtime.Config{
		ChainID:  cfg.ChainID,
		Contract: cfg.ContractAddress,
		Prefix:   cfg.Prefix(),
	},
		runtime.WithEmitter(events.Fanout{broadcaster, observability.Events()}),
		runtime.WithLogger(logger),
	)
	if err != nil {
		return fmt.Errorf("open runtime: %w", err)
	}

	if err := bootstrap(ctx, rt, cfg, logger, !skipMigrate); err != nil {
		return err
	}

	secret := strings.TrimSpace(os.Getenv(cfg.RPC.JWTSecretEnv))
	if secret == "" {
		logger.Warn("operator JWT secret not set; bridge_migrate and bridge_fund are disabled",
			slog.String("env", cfg.RPC.JWTSecretEnv))
	}
	server := rpc.NewServer(rt, broadcaster, rpc.ServerConfig{
		Prefix:            cfg.Prefix(),
		RequestsPerMinute: cfg.RPC.RequestsPerMinute,
		Burst:             cfg.RPC.Burst,
		JWTSecret:         []byte(secret),
		JWTIssuer:         cfg.RPC.JWTIssuer,
		EnableFaucet:      cfg.RPC.EnableFaucet,
		TrustProxyHeaders: cfg.RPC.TrustProxyHeaders,
		Logger:            logger,
	})
	httpServer := &http.Server{
		Addr:              cfg.RPCAddress,
		Handler:           server.Handler(),
		ReadHeaderTimeout: time.Duration(cfg.RPC.ReadHeaderTimeout) * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("bridge RPC listening",
			slog.String("address", cfg.RPCAddress),
			slog.String("chain_id", cfg.ChainID),
			slog.String("contract", cfg.ContractAddress))
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("rpc server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.RPC.ShutdownTimeout)*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("rpc shutdown: %w", err)
	}
	return nil
}
