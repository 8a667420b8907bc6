package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/Yellowatch/boxumco/store/postgres/migrations"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

// goose keeps its base FS and dialect in package globals.
var gooseMu sync.Mutex

// Migrate applies every pending migration.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	return runGoose(ctx, pool, func(ctx context.Context, db *sql.DB) error {
		return goose.UpContext(ctx, db, ".")
	})
}

// MigrateDown rolls back the most recent migration.
func MigrateDown(ctx context.Context, pool *pgxpool.Pool) error {
	return runGoose(ctx, pool, func(ctx context.Context, db *sql.DB) error {
		return goose.DownContext(ctx, db, ".")
	})
}

// MigrationVersion reports the current schema version.
func MigrationVersion(ctx context.Context, pool *pgxpool.Pool) (int64, error) {
	var version int64
	err := runGoose(ctx, pool, func(ctx context.Context, db *sql.DB) error {
		v, err := goose.GetDBVersionContext(ctx, db)
		version = v
		return err
	})
	return version, err
}

func runGoose(ctx context.Context, pool *pgxpool.Pool, fn func(context.Context, *sql.DB) error) error {
	gooseMu.Lock()
	defer gooseMu.Unlock()

	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()

	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("pgx"); err != nil {
		return fmt.Errorf("goose dialect: %w", err)
	}
	if err := fn(ctx, db); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}
