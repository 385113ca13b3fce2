// Command shieldwalletd runs the signature coordinator daemon. It serves the
// HTTP API over a SQL-backed approval store, with an optional Redis
// read-through cache and OTLP metric export.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/shieldwallet/shieldwallet/pkg/api"
	"github.com/shieldwallet/shieldwallet/pkg/auth"
	"github.com/shieldwallet/shieldwallet/pkg/config"
	"github.com/shieldwallet/shieldwallet/pkg/coordinator"
	"github.com/shieldwallet/shieldwallet/pkg/observability"
	"github.com/shieldwallet/shieldwallet/pkg/wallet"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("shieldwalletd", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	var configPath string
	fs.StringVar(&configPath, "config", "", "Path to YAML config file (optional)")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	obs, err := observability.New(ctx, &observability.Config{
		ServiceName:    "shieldwallet-coordinator",
		ServiceVersion: "1.0.0",
		OTLPEndpoint:   cfg.MetricsEndpoint,
		ExportInterval: 15 * time.Second,
		Insecure:       true,
	})
	if err != nil {
		logger.Error("observability init failed", "error", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = obs.Shutdown(shutdownCtx)
	}()

	db, err := openDatabase(cfg)
	if err != nil {
		logger.Error("database open failed", "driver", cfg.DBDriver, "error", err)
		return 1
	}
	defer db.Close()

	store, err := buildStore(db, cfg, logger)
	if err != nil {
		logger.Error("store init failed", "error", err)
		return 1
	}

	service := coordinator.NewService(store, coordinator.WithLogger(logger))

	if cfg.GenesisPath != "" {
		if err := seedGenesis(ctx, service, cfg.GenesisPath); err != nil {
			logger.Error("genesis seed failed", "path", cfg.GenesisPath, "error", err)
			return 1
		}
		logger.Info("wallet seeded from genesis", "path", cfg.GenesisPath)
	}

	opts := []api.ServerOption{api.WithServerLogger(logger), api.WithMetrics(obs)}
	if cfg.RateLimitRPS > 0 {
		opts = append(opts, api.WithRateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst))
	}
	if validator := auth.NewValidator(cfg.AuthSecret); validator != nil {
		opts = append(opts, api.WithMiddleware(auth.Middleware(validator)))
	} else {
		logger.Warn("authentication disabled: no auth secret configured")
	}
	server := api.NewServer(service, opts...)

	if err := server.ListenAndServe(ctx, cfg.Port); err != nil {
		logger.Error("server failed", "error", err)
		return 1
	}
	return 0
}

// seedGenesis registers the wallet snapshot described by a genesis file so a
// fresh coordinator can accept approvals without a separate registration call.
// Registration is an upsert, so re-seeding on restart is harmless.
func seedGenesis(ctx context.Context, service *coordinator.Service, path string) error {
	g, err := wallet.LoadGenesis(path)
	if err != nil {
		return err
	}
	addr, err := g.Address()
	if err != nil {
		return err
	}
	pol, err := g.Policy()
	if err != nil {
		return err
	}
	owners := pol.Owners()
	rec := coordinator.WalletRecord{
		Address:    addr,
		Signers:    owners,
		Thresholds: pol.Thresholds(),
		Proposer:   pol.Proposer(),
		DelaySec:   pol.Delay(),
		Creator:    owners[0],
	}
	_, err = service.RegisterWallet(ctx, rec)
	return err
}

func openDatabase(cfg *config.Config) (*sql.DB, error) {
	// modernc registers itself as "sqlite", lib/pq as "postgres".
	db, err := sql.Open(cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		return nil, err
	}
	if cfg.DBDriver == "sqlite" {
		// A single writer avoids SQLITE_BUSY under concurrent approvals.
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func buildStore(db *sql.DB, cfg *config.Config, logger *slog.Logger) (coordinator.Store, error) {
	sqlStore, err := coordinator.NewSQLStore(db)
	if err != nil {
		return nil, err
	}
	if cfg.RedisAddr == "" {
		return sqlStore, nil
	}
	logger.Info("redis cache enabled", "addr", cfg.RedisAddr)
	return coordinator.NewCachedStore(sqlStore, cfg.RedisAddr, cfg.RedisPassword, 0, 30*time.Second), nil
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToUpper(level) {
	case "DEBUG":
		lvl = slog.LevelDebug
	case "WARN":
		lvl = slog.LevelWarn
	case "ERROR":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
