package repository

import (
	"context"
	stdsql "database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"entgo.io/ent/dialect"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"github.com/joseph-ayodele/timetable-extractor/internal/common"
)

// DB is an open database handle plus the ent dialect its queries are built for.
type DB struct {
	SQL     *stdsql.DB
	Dialect string
	pool    *pgxpool.Pool
}

// Open connects to the database named by cfg.DSN. postgres:// and postgresql:// DSNs
// go through a pgx pool; sqlite:, file: and :memory: DSNs open modernc sqlite.
func Open(ctx context.Context, cfg common.DatabaseConfig, logger *slog.Logger) (*DB, error) {
	if logger == nil {
		logger = slog.Default()
	}
	switch {
	case strings.HasPrefix(cfg.DSN, "postgres://"), strings.HasPrefix(cfg.DSN, "postgresql://"):
		return openPostgres(ctx, cfg, logger)
	case strings.HasPrefix(cfg.DSN, "sqlite:"), strings.HasPrefix(cfg.DSN, "file:"), cfg.DSN == ":memory:":
		return openSQLite(ctx, strings.TrimPrefix(strings.TrimPrefix(cfg.DSN, "sqlite://"), "sqlite:"), logger)
	}
	return nil, fmt.Errorf("%w: unsupported database dsn", common.ErrInvalidInput)
}

func openPostgres(ctx context.Context, cfg common.DatabaseConfig, logger *slog.Logger) (*DB, error) {
	logger.Info("connecting to database", "dialect", dialect.Postgres)
	pc, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		logger.Error("failed to parse database dsn", "error", err)
		return nil, fmt.Errorf("%w: %w", common.ErrDatabase, err)
	}
	if cfg.MaxConns > 0 {
		pc.MaxConns = cfg.MaxConns
	}
	pc.MinConns = cfg.MinConns
	if cfg.MaxConnLifetime > 0 {
		pc.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		pc.MaxConnIdleTime = cfg.MaxConnIdleTime
	}
	pc.ConnConfig.RuntimeParams["application_name"] = "timetable-extractor"
	if cfg.StatementTimeout > 0 {
		pc.ConnConfig.RuntimeParams["statement_timeout"] = fmt.Sprint(cfg.StatementTimeout.Milliseconds())
	}

	if cfg.DialTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.DialTimeout)
		defer cancel()
	}
	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		return nil, fmt.Errorf("%w: %w", common.ErrDatabase, err)
	}

	logger.Info("successfully connected to database")
	return &DB{SQL: stdlib.OpenDBFromPool(pool), Dialect: dialect.Postgres, pool: pool}, nil
}

func openSQLite(ctx context.Context, path string, logger *slog.Logger) (*DB, error) {
	logger.Info("opening database", "dialect", dialect.SQLite, "path", path)
	db, err := stdsql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrDatabase, err)
	}
	// one connection: every :memory: connection is its own database
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: %w", common.ErrDatabase, err)
	}
	return &DB{SQL: db, Dialect: dialect.SQLite}, nil
}

// Close closes the database connections gracefully
func (d *DB) Close() error {
	err := d.SQL.Close()
	if d.pool != nil {
		d.pool.Close()
	}
	return err
}

// HealthCheck pings the database to catch DSN issues early.
func (d *DB) HealthCheck(ctx context.Context, timeout time.Duration) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return d.SQL.PingContext(ctx)
}

const ddlJobs = `CREATE TABLE IF NOT EXISTS extraction_jobs (
	id                TEXT PRIMARY KEY,
	file_path         TEXT NOT NULL,
	original_filename TEXT NOT NULL DEFAULT '',
	media_type        TEXT NOT NULL,
	size              BIGINT NOT NULL DEFAULT 0,
	status            TEXT NOT NULL,
	progress          INTEGER NOT NULL DEFAULT 0,
	attempts          INTEGER NOT NULL DEFAULT 0,
	last_error        TEXT NOT NULL DEFAULT '',
	method            TEXT NOT NULL DEFAULT '',
	created_at        BIGINT NOT NULL,
	updated_at        BIGINT NOT NULL,
	started_at        BIGINT,
	finished_at       BIGINT
)`

const ddlJobsStatusIndex = `CREATE INDEX IF NOT EXISTS extraction_jobs_status_updated_idx ON extraction_jobs (status, updated_at)`

const ddlTimetables = `CREATE TABLE IF NOT EXISTS timetables (
	job_id       TEXT PRIMARY KEY,
	teacher_name TEXT NOT NULL,
	confidence   DOUBLE PRECISION NOT NULL,
	method       TEXT NOT NULL DEFAULT '',
	document     TEXT NOT NULL,
	created_at   BIGINT NOT NULL
)`

// Migrate creates the tables when they do not exist.
func (d *DB) Migrate(ctx context.Context) error {
	for _, stmt := range []string{ddlJobs, ddlJobsStatusIndex, ddlTimetables} {
		if _, err := d.SQL.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("%w: migrate: %w", common.ErrDatabase, err)
		}
	}
	return nil
}
