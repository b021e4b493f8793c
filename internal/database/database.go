package database

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	migratedb "github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/lib/pq"
	"modernc.org/sqlite"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

//go:embed migrations/postgres/*.sql migrations/sqlite/*.sql
var migrations embed.FS

type Credentials struct {
	Driver     string
	Host       string
	Port       int
	User       string
	Password   string
	DBName     string
	SQLitePath string
}

// Open connects to the configured database and verifies the connection.
func Open(cred *Credentials) (*sql.DB, error) {
	switch cred.Driver {
	case DriverPostgres:
		psqlconn := fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
			cred.Host,
			cred.Port,
			cred.User,
			cred.Password,
			cred.DBName)

		db, err := sql.Open("postgres", psqlconn)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		if e2 := db.Ping(); e2 != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to ping database: %w", e2)
		}
		db.SetMaxOpenConns(100)
		db.SetMaxIdleConns(10)
		return db, nil
	case DriverSQLite:
		return OpenSQLite(cred.SQLitePath)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cred.Driver)
	}
}

// OpenSQLite opens a SQLite database. SQLite allows a single writer, so the
// pool is pinned to one connection; this also keeps ":memory:" databases alive.
func OpenSQLite(path string) (*sql.DB, error) {
	if path == "" {
		path = ":memory:"
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	return db, nil
}

// RunMigrations applies the embedded schema for the given driver.
func RunMigrations(db *sql.DB, driver string) error {
	var (
		instance migratedb.Driver
		err      error
	)
	switch driver {
	case DriverPostgres:
		instance, err = postgres.WithInstance(db, &postgres.Config{
			MigrationsTable: "checkout_schema_migrations",
		})
	case DriverSQLite:
		instance, err = migratesqlite.WithInstance(db, &migratesqlite.Config{})
	default:
		return fmt.Errorf("unsupported database driver %q", driver)
	}
	if err != nil {
		return fmt.Errorf("could not create migration driver: %w", err)
	}

	source, err := iofs.New(migrations, "migrations/"+driver)
	if err != nil {
		return fmt.Errorf("could not open migrations: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, driver, instance)
	if err != nil {
		return fmt.Errorf("could not create migrate instance: %w", err)
	}

	if e2 := m.Up(); e2 != nil && !errors.Is(e2, migrate.ErrNoChange) {
		return fmt.Errorf("could not run migrations: %w", e2)
	}

	return nil
}

// WithTx runs fn inside a transaction, committing on success.
func WithTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// SQLite result codes for PRIMARY KEY and UNIQUE constraint failures.
const (
	sqliteConstraint           = 19
	sqliteConstraintPrimaryKey = 1555
	sqliteConstraintUnique     = 2067
)

// IsUniqueViolation reports whether err is a unique constraint failure on
// either supported driver.
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		switch liteErr.Code() {
		case sqliteConstraintPrimaryKey, sqliteConstraintUnique:
			return true
		case sqliteConstraint:
			return strings.Contains(liteErr.Error(), "UNIQUE constraint failed")
		}
	}
	return false
}
