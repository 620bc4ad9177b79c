package migrate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	"github.com/pressly/goose/v3"

	"github.com/splax/todos/internal/repository/postgres/migrations"
)

// goose entry points, replaced in tests.
var (
	gooseUp     = goose.UpContext
	gooseStatus = goose.StatusContext
	gooseDown   = goose.DownContext
	gooseDownTo = goose.DownToContext
	gooseVer    = goose.GetDBVersionContext
)

// Runner wraps database migration capabilities.
type Runner struct {
	db   *sql.DB
	fsys fs.FS
	log  *slog.Logger
}

// New returns a migration runner backed by goose and the embedded migrations.
func New(db *sql.DB, log *slog.Logger) (Runner, error) {
	if db == nil {
		return Runner{}, errors.New("nil database provided")
	}
	if log == nil {
		log = slog.Default()
	}
	return Runner{db: db, fsys: migrations.FS, log: log}, nil
}

func (r Runner) configure() error {
	goose.SetBaseFS(r.fsys)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("configure goose: %w", err)
	}
	return nil
}

// Ensure applies pending migrations.
func (r Runner) Ensure(ctx context.Context) error {
	if err := r.configure(); err != nil {
		return err
	}
	runCtx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	r.log.Info("applying migrations")
	if err := gooseUp(runCtx, r.db, "."); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	version, err := gooseVer(runCtx, r.db)
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	r.log.Info("migrations applied", "version", version)
	return nil
}

// Status reports applied and pending migrations.
func (r Runner) Status(ctx context.Context) error {
	if err := r.configure(); err != nil {
		return err
	}
	r.log.Info("migration status")
	if err := gooseStatus(ctx, r.db, "."); err != nil {
		return fmt.Errorf("migration status: %w", err)
	}
	return nil
}

// Down rolls back migrations either to the previous version or a specific target version.
func (r Runner) Down(ctx context.Context, targetVersion int64) error {
	if err := r.configure(); err != nil {
		return err
	}
	runCtx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	if targetVersion > 0 {
		r.log.Info("rolling back migrations", "target", targetVersion)
		if err := gooseDownTo(runCtx, r.db, ".", targetVersion); err != nil {
			return fmt.Errorf("rollback to version %d: %w", targetVersion, err)
		}
	} else {
		r.log.Info("rolling back latest migration")
		if err := gooseDown(runCtx, r.db, "."); err != nil {
			return fmt.Errorf("rollback latest migration: %w", err)
		}
	}
	r.log.Info("rollback complete")
	return nil
}

// Ping ensures the database connection is alive.
func (r Runner) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := r.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}
	return nil
}

// Close releases the underlying handle.
func (r Runner) Close() error {
	return r.db.Close()
}
