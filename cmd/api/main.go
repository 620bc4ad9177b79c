package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	redis "github.com/redis/go-redis/v9"

	"github.com/splax/todos/internal/app/migrate"
	httpx "github.com/splax/todos/internal/http"
	"github.com/splax/todos/internal/repository"
	"github.com/splax/todos/internal/repository/memory"
	"github.com/splax/todos/internal/repository/postgres"
	"github.com/splax/todos/internal/repository/redisstore"
	"github.com/splax/todos/internal/service/auth"
	"github.com/splax/todos/internal/service/todo"
	"github.com/splax/todos/internal/service/user"
	"github.com/splax/todos/pkg/config"
	"github.com/splax/todos/pkg/logger"
)

func main() {
	cfg := config.LoadAPIConfig()
	log := logger.New("api", logger.ParseLevel(cfg.LogLevel))
	if err := run(cfg, log); err != nil {
		log.Error("api server failed", "error", err)
		os.Exit(1)
	}
}

// run serves until a termination signal arrives. Resources opened here are
// released before it returns.
func run(cfg config.APIConfig, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("open %s store: %w", cfg.StoreDriver, err)
	}
	defer closeStore()

	var redisClient *redis.Client
	if addr := strings.TrimSpace(cfg.RedisAddr); addr != "" {
		redisClient, err = redisstore.Connect(ctx, addr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			log.Warn("redis unavailable, using in-process limiter and token registry", "error", err)
			redisClient = nil
		} else {
			defer redisClient.Close()
		}
	}

	var tokens repository.RefreshTokenRepository = memory.NewRefreshTokens(cfg.RefreshRegistrySize, cfg.RefreshTokenTTL)
	limiter := httpx.NewMemoryRateLimiter()
	if redisClient != nil {
		tokens = redisstore.NewRefreshTokens(redisClient)
		limiter.Close()
		limiter = httpx.NewRedisRateLimiter(redisClient, log)
	}

	authSvc := auth.New(store, tokens, log, cfg)
	userSvc := user.New(store, log, cfg)
	todoSvc := todo.New(store, log)

	if email := strings.TrimSpace(cfg.AdminEmail); email != "" {
		if _, err := userSvc.SeedAdmin(ctx, cfg.AdminName, email, cfg.AdminPassword); err != nil {
			return fmt.Errorf("seed administrator: %w", err)
		}
	}

	router := httpx.NewRouter(log, authSvc, userSvc, todoSvc, limiter, cfg, store.Ping)
	defer router.Close()

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}

	errorCh := make(chan error, 1)
	go func() {
		log.Info("api server starting", "addr", cfg.Addr, "store", cfg.StoreDriver, "environment", cfg.Environment)
		errorCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("graceful shutdown failed", "error", err)
		}
		log.Info("api server stopped")
		return nil
	case err := <-errorCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	}
}

// openStore builds the configured store. The postgres store is migrated
// before it is returned.
func openStore(ctx context.Context, cfg config.APIConfig, log *slog.Logger) (repository.Store, func(), error) {
	switch cfg.StoreDriver {
	case config.StoreMemory, "":
		return memory.NewStore(), func() {}, nil
	case config.StorePostgres:
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("connect to database: %w", err)
		}
		db := stdlib.OpenDBFromPool(pool)
		cleanup := func() {
			_ = db.Close()
			pool.Close()
		}
		runner, err := migrate.New(db, log)
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		if err := runner.Ping(ctx); err != nil {
			cleanup()
			return nil, nil, err
		}
		if err := runner.Ensure(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("apply migrations: %w", err)
		}
		return postgres.New(db), cleanup, nil
	default:
		return nil, nil, fmt.Errorf("unsupported store driver %q", cfg.StoreDriver)
	}
}
