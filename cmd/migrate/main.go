package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ShannaChang/serverless-demo-for-aiops/internal/app/migrate"
	"github.com/ShannaChang/serverless-demo-for-aiops/pkg/config"
	"github.com/ShannaChang/serverless-demo-for-aiops/pkg/logger"
)

func main() {
	command := flag.String("command", "up", "migrate command (up|status|down|version|ping)")
	timeout := flag.Duration("timeout", time.Minute, "command timeout")
	target := flag.Int64("target", 0, "target version for down command (optional)")
	flag.Parse()

	cfg := config.LoadAPIConfig()
	log := logger.New("item_migrate", logger.ParseLevel(cfg.LogLevel))
	if cfg.ItemStore != "postgres" {
		log.Warn("ITEM_STORE is not postgres; migrations only affect the postgres item table", "item_store", cfg.ItemStore)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	err := run(ctx, cfg, *command, *target)
	cancel()
	if err != nil {
		log.Error("migration command failed", "command", *command, "error", err)
		os.Exit(1)
	}
	log.Info("migration command completed", "command", *command)
}

func run(ctx context.Context, cfg config.APIConfig, command string, target int64) error {
	log := logger.New("item_migrate", logger.ParseLevel(cfg.LogLevel))
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	runner, err := migrate.New(pool, cfg.DatabaseURL, cfg.MigrationsDir, log)
	if err != nil {
		pool.Close()
		return err
	}
	defer runner.Close()

	switch command {
	case "up":
		return runner.Ensure(ctx)
	case "status":
		return runner.Status(ctx)
	case "down":
		return runner.Down(ctx, target)
	case "version":
		version, err := runner.Version(ctx)
		if err != nil {
			return err
		}
		log.Info("current migration version", "version", version)
		return nil
	case "ping":
		return runner.Ping(ctx)
	default:
		return fmt.Errorf("unsupported command %q", command)
	}
}
