// Package store persists the community tables and the render log in SQLite
// or PostgreSQL.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a keyed lookup matches no row.
var ErrNotFound = errors.New("not found")

// Store wraps the database connection. Instants are stored as Unix
// milliseconds.
type Store struct {
	db      *sql.DB
	dialect Dialect
	now     func() time.Time
}

// Open connects to the configured database and creates missing tables.
func Open(cfg Config) (*Store, error) {
	dialect := NewDialect(DialectType(cfg.Driver))

	var dsn string
	switch dialect.(type) {
	case *PostgresDialect:
		dsn = cfg.Postgres.DSN()
	default:
		if err := os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
		dsn = cfg.SQLitePath
	}

	db, err := sql.Open(dialect.DriverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	switch dialect.(type) {
	case *PostgresDialect:
		db.SetMaxOpenConns(cfg.Postgres.MaxOpenConns)
		db.SetMaxIdleConns(cfg.Postgres.MaxIdleConns)
		db.SetConnMaxLifetime(cfg.Postgres.ConnMaxLifetime)
	default:
		// Pragmas are per connection.
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	for _, stmt := range dialect.InitStatements() {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to run %q: %w", stmt, err)
		}
	}

	s := &Store{db: db, dialect: dialect, now: time.Now}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the tables that do not exist yet.
func (s *Store) migrate() error {
	d := s.dialect
	migrations := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS rom_hacks (
			id %s,
			hack_key TEXT NOT NULL UNIQUE,
			name TEXT NOT NULL DEFAULT '',
			description TEXT NOT NULL DEFAULT '',
			url_main TEXT NOT NULL DEFAULT '',
			url_discord TEXT NOT NULL DEFAULT '',
			url_download TEXT NOT NULL DEFAULT '',
			video TEXT NOT NULL DEFAULT '',
			hack_type TEXT NOT NULL DEFAULT '',
			role_name TEXT NOT NULL,
			message_id BIGINT NOT NULL DEFAULT 0,
			updated_at BIGINT NOT NULL
		)`, d.SerialPrimaryKey()),
		`CREATE INDEX IF NOT EXISTS idx_rom_hacks_role ON rom_hacks(role_name)`,

		`CREATE TABLE IF NOT EXISTS rep (
			discord_id BIGINT PRIMARY KEY,
			points INTEGER NOT NULL
		)`,

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS jam (
			id %s,
			jam_key TEXT NOT NULL UNIQUE,
			config TEXT NOT NULL
		)`, d.SerialPrimaryKey()),

		`CREATE TABLE IF NOT EXISTS jam_votes (
			user_id BIGINT NOT NULL,
			jam TEXT NOT NULL,
			hack TEXT NOT NULL,
			PRIMARY KEY (user_id, jam)
		)`,

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS render_log (
			id %s,
			message_id BIGINT NOT NULL,
			channel_id BIGINT NOT NULL,
			author_id BIGINT NOT NULL,
			seed BIGINT NOT NULL,
			tileset_id INTEGER NOT NULL,
			archive_digest TEXT NOT NULL DEFAULT '',
			options TEXT NOT NULL DEFAULT '',
			outcome TEXT NOT NULL,
			error_title TEXT NOT NULL DEFAULT '',
			duration_ms BIGINT NOT NULL,
			created_at BIGINT NOT NULL
		)`, d.SerialPrimaryKey()),
		`CREATE INDEX IF NOT EXISTS idx_render_log_message ON render_log(message_id)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return err
		}
	}
	return nil
}

// insert runs an INSERT and returns the new id.
func (s *Store) insert(ctx context.Context, query string, args ...any) (int64, error) {
	if s.dialect.SupportsLastInsertID() {
		res, err := s.db.ExecContext(ctx, rebind(s.dialect, query), args...)
		if err != nil {
			return 0, err
		}
		return res.LastInsertId()
	}
	var id int64
	err := s.db.QueryRowContext(ctx, returning(s.dialect, query, "id"), args...).Scan(&id)
	return id, err
}

func (s *Store) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return s.db.ExecContext(ctx, rebind(s.dialect, query), args...)
}

func (s *Store) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return s.db.QueryContext(ctx, rebind(s.dialect, query), args...)
}

func (s *Store) selectRows(ctx context.Context, q *selectQuery) (*sql.Rows, error) {
	query, args := q.build(s.dialect)
	return s.db.QueryContext(ctx, query, args...)
}

func (s *Store) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return s.db.QueryRowContext(ctx, rebind(s.dialect, query), args...)
}
