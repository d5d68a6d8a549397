package database

import (
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // postgres:// URLs
	_ "github.com/mattn/go-sqlite3"    // local files and tests
	"glucolog/internal/platform/config"
)

type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"

	driverSQLite   = "sqlite3"
	driverPostgres = "pgx"
)

// DB carries the dialect next to the pool so repositories can write `?` queries once.
type DB struct {
	*sql.DB
	Dialect Dialect
}

func New(db *sql.DB, dialect Dialect) *DB {
	return &DB{DB: db, Dialect: dialect}
}

func DialectFor(url string) Dialect {
	if strings.HasPrefix(url, "postgres://") || strings.HasPrefix(url, "postgresql://") {
		return DialectPostgres
	}
	return DialectSQLite
}

func Open(cfg config.DatabaseConfig) (*DB, error) {
	dialect := DialectFor(cfg.URL)

	driver := driverSQLite
	dsn := cfg.URL
	if dialect == DialectPostgres {
		driver = driverPostgres
	} else {
		dsn = strings.TrimPrefix(dsn, "file:")
		if dsn != ":memory:" {
			dsn = fmt.Sprintf("%s?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000", dsn)
		}
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", dialect, err)
	}

	configurePool(db, dialect, cfg)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s database: %w", dialect, err)
	}

	return New(db, dialect), nil
}

func configurePool(db *sql.DB, dialect Dialect, cfg config.DatabaseConfig) {
	if dialect == DialectSQLite {
		// one writer; also keeps ":memory:" a single database
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		db.SetConnMaxLifetime(0)
		return
	}

	maxOpen := cfg.MaxConnections
	if maxOpen <= 0 {
		maxOpen = 25
	}
	maxIdle := cfg.MaxIdle
	if maxIdle <= 0 {
		maxIdle = 5
	}
	lifetime := cfg.ConnMaxLifetime
	if lifetime <= 0 {
		lifetime = time.Hour
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	db.SetConnMaxLifetime(lifetime)
}

// Rebind rewrites `?` placeholders to `$n` for postgres.
func (d *DB) Rebind(query string) string {
	if d.Dialect != DialectPostgres {
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
