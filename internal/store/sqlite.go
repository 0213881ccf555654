package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"github.com/pavetrack/field-sync/internal/logger"
	"github.com/pavetrack/field-sync/migrations"
)

// DB wraps the shared sqlite handle used by the durable store and the
// outbox. There is exactly one local writer process per device, so no
// cross-process locking is needed beyond what sqlite provides.
type DB struct {
	*sql.DB
	logger *logger.Logger
}

// Open connects to the sqlite database at dsn, creates the file and parent
// directory if missing, enables WAL so readers are not blocked during a
// drain, and applies pending migrations.
func Open(ctx context.Context, dsn string, log *logger.Logger) (*DB, error) {
	if err := createDBFileIfNotExists(dsn); err != nil {
		log.Err(err).Str("dsn", dsn).Msg("error creating database file")
		return nil, fmt.Errorf("create database file: %w", err)
	}

	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err = conn.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	db := &DB{DB: conn, logger: log}
	if err = db.Migrate(); err != nil {
		return nil, err
	}

	log.Debug().Str("dsn", dsn).Msg("local store opened")
	return db, nil
}

func (db *DB) Migrate() error {
	return migrations.Migrate(db.DB)
}

func createDBFileIfNotExists(dbFile string) error {
	if _, err := os.Stat(dbFile); !os.IsNotExist(err) {
		return err
	}

	if dir := filepath.Dir(dbFile); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create DB dir: %w", err)
		}
	}

	f, err := os.Create(dbFile)
	if err != nil {
		return fmt.Errorf("create DB file: %w", err)
	}
	return f.Close()
}
