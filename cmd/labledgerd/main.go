package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"labledger/config"
	"labledger/core"
	"labledger/observability/logging"
	telemetry "labledger/observability/otel"
	"labledger/rpc"
	"labledger/rpc/middleware"
	"labledger/storage"
)

const serviceName = "labledgerd"

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "./labledger.toml", "path to node configuration")
	flag.Parse()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config %s:\n%v\n", cfgPath, err)
		os.Exit(1)
	}

	logger := logging.Setup(serviceName, cfg.Environment, logging.Options{
		Level:      cfg.Logging.Level,
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("labledgerd exited", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	shutdownTelemetry, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName: serviceName,
		Environment: cfg.Environment,
		Endpoint:    cfg.Telemetry.Endpoint,
		Insecure:    cfg.Telemetry.Insecure,
		Headers:     telemetry.ParseHeaders(cfg.Telemetry.Headers),
		Metrics:     cfg.Telemetry.Metrics,
		Traces:      cfg.Telemetry.Traces,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(flushCtx); err != nil {
			logger.Warn("telemetry shutdown", "error", err)
		}
	}()

	daoAdmin, escrowAdmin, err := cfg.Admins()
	if err != nil {
		return err
	}
	cooldown, err := cfg.Cooldown()
	if err != nil {
		return err
	}
	skew, err := cfg.ClockSkew()
	if err != nil {
		return err
	}
	allocations, err := cfg.GenesisAmounts()
	if err != nil {
		return err
	}

	db, err := storage.Open(cfg.StorageBackend, cfg.DataDir)
	if err != nil {
		return fmt.Errorf("open data dir %s: %w", cfg.DataDir, err)
	}
	defer db.Close()

	node, err := core.NewNode(db, core.Config{
		DAOAdmin:        daoAdmin,
		EscrowAdmin:     escrowAdmin,
		UnstakeCooldown: cooldown,
		PausedModules:   cfg.PausedModules,
		FaucetEnabled:   cfg.Faucet.Enabled,
	}, logger)
	if err != nil {
		return fmt.Errorf("init node: %w", err)
	}

	genesis := make([]core.GenesisAllocation, 0, len(allocations))
	for _, alloc := range allocations {
		genesis = append(genesis, core.GenesisAllocation{Address: alloc.Address, Amount: alloc.Amount})
	}
	applied, err := node.ApplyGenesis(genesis)
	if err != nil {
		return fmt.Errorf("apply genesis: %w", err)
	}
	if applied {
		logger.Info("genesis applied", "allocations", len(genesis))
	}

	logger.Info("starting labledgerd",
		"listen", cfg.ListenAddress,
		"data_dir", cfg.DataDir,
		"storage", cfg.StorageBackend,
		"unstake_cooldown", cooldown.String(),
		"paused_modules", cfg.PausedModules,
		"faucet", cfg.Faucet.Enabled,
		"auth", cfg.Auth.Enabled,
		logging.MaskField("hmac_secret", cfg.Auth.HMACSecret),
	)

	server, err := rpc.NewServer(node, rpc.ServerConfig{
		ServiceName: serviceName,
		Auth: middleware.AuthConfig{
			Enabled:    cfg.Auth.Enabled,
			HMACSecret: cfg.Auth.HMACSecret,
			Issuer:     cfg.Auth.Issuer,
			Audience:   cfg.Auth.Audience,
			ClockSkew:  skew,
		},
		RateLimit: middleware.RateLimit{
			RequestsPerMinute: cfg.RateLimit.RequestsPerMinute,
			Burst:             cfg.RateLimit.Burst,
		},
		Tracing:     cfg.Telemetry.Traces,
		LogRequests: true,
		IdleTimeout: 60 * time.Second,
	}, logger)
	if err != nil {
		return fmt.Errorf("init server: %w", err)
	}

	if err := server.ListenAndServe(ctx, cfg.ListenAddress); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("labledgerd stopped")
	return nil
}
