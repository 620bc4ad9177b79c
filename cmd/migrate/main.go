package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/splax/todos/internal/app/migrate"
	"github.com/splax/todos/pkg/config"
	"github.com/splax/todos/pkg/logger"
)

func main() {
	command := flag.String("command", "up", "migrate command (up|status|down)")
	timeout := flag.Duration("timeout", time.Minute, "command timeout")
	target := flag.Int64("target", 0, "target version for down command (optional)")
	flag.Parse()

	cfg := config.LoadAPIConfig()
	log := logger.New("migrate", logger.ParseLevel(cfg.LogLevel))

	if err := run(cfg, log, *command, *timeout, *target); err != nil {
		log.Error("migration command failed", "command", *command, "error", err)
		os.Exit(1)
	}
	log.Info("migration command completed", "command", *command)
}

func run(cfg config.APIConfig, log *slog.Logger, command string, timeout time.Duration, target int64) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer pool.Close()

	runner, err := migrate.New(stdlib.OpenDBFromPool(pool), log)
	if err != nil {
		return fmt.Errorf("configure migration runner: %w", err)
	}
	defer runner.Close()

	if err := runner.Ping(ctx); err != nil {
		return err
	}

	switch command {
	case "up":
		if err := runner.Ensure(ctx); err != nil {
			return fmt.Errorf("apply migrations: %w", err)
		}
	case "status":
		if err := runner.Status(ctx); err != nil {
			return fmt.Errorf("fetch migration status: %w", err)
		}
	case "down":
		if err := runner.Down(ctx, target); err != nil {
			return fmt.Errorf("roll back migrations: %w", err)
		}
	default:
		return fmt.Errorf("unsupported command %q", command)
	}
	return nil
}
