// Package gormstore implements store.Store on gorm, backed by SQLite for
// embedded use and tests or by PostgreSQL in production.
package gormstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/vitwit/chaindonate/store"
	"github.com/vitwit/chaindonate/types"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	// InMemorySQLiteDSN is a special DSN to create an ephemeral in-memory SQLite database.
	InMemorySQLiteDSN = ":memory:"

	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

var (
	gormConfig = &gorm.Config{
		Logger:                                   logger.Default.LogMode(logger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
	}

	// schemaModels lists the structs to be auto-migrated into the database.
	schemaModels = []any{
		&types.Campaign{},
		&types.CampaignAssetTotal{},
		&types.Deposit{},
		&types.PaymentIntent{},
		&types.ChainTransaction{},
		&types.Donation{},
		&types.Milestone{},
		&types.Allocation{},
		&types.LedgerEvent{},
	}
)

// Store is a gorm backed store.Store.
type Store struct {
	db *gorm.DB
}

var _ store.Store = (*Store)(nil)

// Open connects with the named driver and migrates the schema.
func Open(driver, dsn string) (*Store, error) {
	switch driver {
	case "", DriverSQLite:
		return OpenSQLite(dsn)
	case DriverPostgres:
		return OpenPostgres(dsn)
	default:
		return nil, fmt.Errorf("unsupported sql driver %q", driver)
	}
}

// OpenInMemory opens a non-persistent SQLite database.
func OpenInMemory() (*Store, error) {
	return OpenSQLite(InMemorySQLiteDSN)
}

// OpenSQLite opens a file or in-memory SQLite database. SQLite has no
// row locks, so the pool is pinned to one connection and transactions
// serialise.
func OpenSQLite(dsn string) (*Store, error) {
	if dsn == "" {
		dsn = InMemorySQLiteDSN
	}
	if dsn != InMemorySQLiteDSN {
		if err := os.MkdirAll(filepath.Dir(dsn), 0o750); err != nil {
			return nil, errors.Wrap(err, "failed to create database directory")
		}
		if !strings.Contains(dsn, "?") {
			dsn += "?_journal_mode=WAL&_busy_timeout=5000&cache=shared&mode=rwc"
		}
	}

	db, err := gorm.Open(sqlite.Open(dsn), gormConfig)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open SQLite database")
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, errors.Wrap(err, "failed to get underlying sql.DB")
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(0)

	return migrate(db)
}

// OpenPostgres opens a PostgreSQL database.
func OpenPostgres(dsn string) (*Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), gormConfig)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open PostgreSQL database")
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, errors.Wrap(err, "failed to get underlying sql.DB")
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	return migrate(db)
}

func migrate(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(schemaModels...); err != nil {
		return nil, errors.Wrap(err, "failed to auto-migrate database schema")
	}
	return &Store{db: db}, nil
}

// RunInTx runs fn inside a gorm transaction.
func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	return s.db.WithContext(ctx).Transaction(func(db *gorm.DB) error {
		return fn(ctx, &gormTx{db: db})
	})
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return errors.Wrap(err, "failed to retrieve native sql.DB")
	}
	if err := sqlDB.Close(); err != nil {
		return errors.Wrap(err, "failed to close database connection")
	}
	return nil
}

// notFound maps gorm's sentinel onto store.ErrNotFound.
func notFound(err error, what string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s: %w", what, store.ErrNotFound)
	}
	return errors.Wrapf(err, "failed to load %s", what)
}
