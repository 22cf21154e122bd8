package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/civicnet/weeklymatch/internal/telemetry"
)

type DB struct {
	*sqlx.DB
}

type Config struct {
	URL          string
	DBName       string
	Instrumented bool
}

func configurePool(db *sql.DB) {
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
}

// Open connects to Postgres, with OpenTelemetry instrumentation when config.Instrumented is set.
func Open(ctx context.Context, config Config) (*DB, error) {
	logger := telemetry.LogFromContext(ctx).WithFields(map[string]interface{}{
		"database":     config.DBName,
		"instrumented": config.Instrumented,
		"operation":    "database_connection",
	})

	logger.Info("Establishing database connection")

	var (
		sqlDB *sql.DB
		err   error
	)
	if config.Instrumented {
		sqlDB, err = telemetry.InstrumentDatabase(config.URL, config.DBName)
	} else {
		sqlDB, err = sql.Open("postgres", config.URL)
	}
	if err != nil {
		logger.WithError(err).Error("Failed to open database connection")
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	configurePool(sqlDB)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		_ = sqlDB.Close()
		logger.WithError(err).Error("Failed to ping database")
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("Database connection established successfully")
	return &DB{sqlx.NewDb(sqlDB, "postgres")}, nil
}

func (db *DB) Close() error {
	return db.DB.Close()
}

// Health pings the database; used by the health checker.
func (db *DB) Health(ctx context.Context) error {
	err := db.PingContext(ctx)
	if err != nil {
		telemetry.LogFromContext(ctx).WithField("operation", "database_health_check").
			WithError(err).Error("Database health check failed")
	}
	return err
}

// WithTransaction runs fn in a transaction, rolling back on error or panic.
func (db *DB) WithTransaction(ctx context.Context, fn func(*sqlx.Tx) error) (err error) {
	logger := telemetry.LogFromContext(ctx).WithField("operation", "database_transaction")

	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		logger.WithError(err).Error("Failed to begin transaction")
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			logger.WithField("panic", p).Error("Transaction panicked, rolling back")
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			logger.WithError(err).Warn("Transaction failed, rolling back")
			_ = tx.Rollback()
			return
		}
		if err = tx.Commit(); err != nil {
			logger.WithError(err).Error("Failed to commit transaction")
		}
	}()

	return fn(tx)
}
