// Package storage opens the relational database shared by the task queue and
// the group activity feed.
//
// Two drivers are supported:
//   - "sqlite": modernc.org/sqlite, single writer, WAL journal
//   - "postgres": pgx through database/sql
//
// Queries are written with '?' placeholders and passed through DB.Rebind.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

type Dialect int

const (
	SQLite Dialect = iota
	Postgres
)

func (d Dialect) String() string {
	if d == Postgres {
		return "postgres"
	}
	return "sqlite"
}

type Config struct {
	Driver      string
	DSN         string
	BusyTimeout time.Duration // sqlite only
}

type DB struct {
	*sql.DB
	Dialect Dialect
}

// Open connects to the configured database and applies driver pragmas.
func Open(ctx context.Context, cfg Config) (*DB, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("storage: dsn is required")
	}

	switch driver {
	case "", "sqlite", "sqlite3":
		db, err := sql.Open("sqlite", dsn)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		db.SetMaxOpenConns(1) // SQLite single writer
		if cfg.BusyTimeout > 0 {
			_, _ = db.ExecContext(ctx, fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
		}
		_, _ = db.ExecContext(ctx, "PRAGMA journal_mode = WAL")
		return &DB{DB: db, Dialect: SQLite}, nil
	case "postgres", "postgresql", "pgx":
		db, err := sql.Open("pgx", dsn)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		if err := db.PingContext(ctx); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("ping postgres: %w", err)
		}
		return &DB{DB: db, Dialect: Postgres}, nil
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}

// Rebind rewrites '?' placeholders into the dialect's form.
func (d *DB) Rebind(query string) string {
	if d.Dialect != Postgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

// ExecAll runs each statement in order. Used for schema setup, where postgres
// rejects multi-statement prepared queries.
func (d *DB) ExecAll(ctx context.Context, stmts []string) error {
	for _, s := range stmts {
		if _, err := d.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("exec %q: %w", firstLine(s), err)
		}
	}
	return nil
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func Millis(t time.Time) int64 { return t.UnixMilli() }

func FromMillis(ms int64) time.Time { return time.UnixMilli(ms).UTC() }
