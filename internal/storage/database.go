package storage

import (
	"database/sql"
	"fmt"
	"strings"

	"zonewatch/internal/config"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
)

// Open connects to the database described by cfg.
func Open(cfg config.StorageConfig) (*sql.DB, error) {
	var (
		db  *sql.DB
		err error
	)

	switch strings.ToLower(cfg.Driver) {
	case "sqlite", "sqlite3":
		if cfg.DSN == "" {
			return nil, fmt.Errorf("sqlite dsn must be provided")
		}
		db, err = sql.Open("sqlite3", cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("open sqlite database: %w", err)
		}
		// one writer keeps sqlite from returning SQLITE_BUSY under concurrent upserts
		db.SetMaxOpenConns(1)
	case "mysql":
		dsn := cfg.DSN
		if dsn == "" {
			dsn = fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?%s",
				cfg.Username,
				cfg.Password,
				cfg.Host,
				cfg.Port,
				cfg.DBName,
				cfg.Params,
			)
		}
		db, err = sql.Open("mysql", dsn)
		if err != nil {
			return nil, fmt.Errorf("open mysql database: %w", err)
		}
	case "postgres", "pgx":
		dsn := cfg.DSN
		if dsn == "" {
			dsn = fmt.Sprintf("postgres://%s:%s@%s:%d/%s?%s",
				cfg.Username,
				cfg.Password,
				cfg.Host,
				cfg.Port,
				cfg.DBName,
				cfg.Params,
			)
		}
		db, err = sql.Open("pgx", dsn)
		if err != nil {
			return nil, fmt.Errorf("open postgres database: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

// Migrate ensures the documents table is present.
func Migrate(db *sql.DB, driver string) error {
	var stmt string
	switch strings.ToLower(driver) {
	case "sqlite", "sqlite3":
		stmt = `CREATE TABLE IF NOT EXISTS documents (
			name TEXT PRIMARY KEY,
			body TEXT NOT NULL,
			updated_at DATETIME NOT NULL
		)`
	case "mysql":
		stmt = `CREATE TABLE IF NOT EXISTS documents (
			name VARCHAR(64) NOT NULL,
			body LONGTEXT NOT NULL,
			updated_at DATETIME NOT NULL,
			PRIMARY KEY (name)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`
	case "postgres", "pgx":
		stmt = `CREATE TABLE IF NOT EXISTS documents (
			name TEXT PRIMARY KEY,
			body TEXT NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`
	default:
		return fmt.Errorf("unsupported driver for migration: %s", driver)
	}

	if _, err := db.Exec(stmt); err != nil {
		return fmt.Errorf("migrate (%s): %w", driver, err)
	}
	return nil
}
