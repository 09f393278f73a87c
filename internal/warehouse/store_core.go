package warehouse

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"medwarehouse/internal/config"
	"medwarehouse/internal/services"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

func init() {
	// modernc registers as "sqlite", which sqlx does not know by default.
	sqlx.BindDriver(DriverSQLite, sqlx.QUESTION)
}

// Store wraps the warehouse database handle.
type Store struct {
	db     *sqlx.DB
	driver string
}

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code()&0xff == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}

// Open connects to the configured warehouse and applies pending migrations.
func Open(ctx context.Context, cfg *config.Config) (*Store, error) {
	if cfg == nil {
		return nil, services.Wrap(services.ErrConfiguration, "warehouse", "open", "config is nil", nil)
	}
	return OpenDSN(ctx, cfg.Warehouse.Driver, cfg.Warehouse.DSN)
}

// OpenDSN connects using an explicit driver and DSN. For sqlite the DSN may be
// a plain file path; connection pragmas are added automatically.
func OpenDSN(ctx context.Context, driver, dsn string) (*Store, error) {
	var connStr string
	switch driver {
	case DriverSQLite:
		if err := ensureSQLiteDir(dsn); err != nil {
			return nil, services.Wrap(services.ErrConfiguration, "warehouse", "open", "create database directory", err)
		}
		connStr = sqliteConnString(dsn)
	case DriverPostgres:
		connStr = dsn
	default:
		return nil, services.Wrap(services.ErrConfiguration, "warehouse", "open", fmt.Sprintf("unsupported driver %q", driver), nil)
	}

	db, err := sqlx.Open(driver, connStr)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "warehouse", "open", driver, err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, services.Wrap(services.ErrTransient, "warehouse", "ping", driver, err)
	}

	store := &Store{db: db, driver: driver}
	if err := store.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func ensureSQLiteDir(dsn string) error {
	path := strings.TrimPrefix(dsn, "file:")
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if path == "" || path == ":memory:" {
		return nil
	}
	return os.MkdirAll(filepath.Dir(path), 0o755)
}

func sqliteConnString(dsn string) string {
	if strings.Contains(dsn, "_pragma=") {
		return dsn
	}
	pragmas := url.Values{}
	pragmas.Add("_pragma", "busy_timeout(5000)")
	pragmas.Add("_pragma", "journal_mode(WAL)")
	pragmas.Add("_pragma", "foreign_keys(1)")
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	if !strings.HasPrefix(dsn, "file:") {
		dsn = "file:" + dsn
	}
	return dsn + sep + pragmas.Encode()
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Driver reports the backend name (sqlite or postgres).
func (s *Store) Driver() string {
	return s.driver
}

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return services.Wrap(services.ErrTransient, "warehouse", "ping", s.driver, err)
	}
	return nil
}

// TableExists reports whether a table is present in the current schema.
func (s *Store) TableExists(ctx context.Context, table string) (bool, error) {
	var query string
	switch s.driver {
	case DriverPostgres:
		query = "SELECT COUNT(1) FROM information_schema.tables WHERE table_schema = current_schema() AND table_name = ?"
	default:
		query = "SELECT COUNT(1) FROM sqlite_master WHERE type = 'table' AND name = ?"
	}
	var count int
	if err := s.db.GetContext(ctx, &count, s.db.Rebind(query), table); err != nil {
		return false, services.Wrap(services.ErrTransient, "warehouse", "table exists", table, err)
	}
	return count > 0, nil
}

// withTx runs fn inside a transaction, retrying the whole transaction when
// SQLite reports the database as busy. fn must be safe to re-run.
func (s *Store) withTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	return retryOnBusy(ctx, func() error {
		tx, err := s.db.BeginTxx(ctx, nil)
		if err != nil {
			return err
		}
		if err := fn(tx); err != nil {
			_ = tx.Rollback()
			return err
		}
		return tx.Commit()
	})
}

func (s *Store) selectWithRetry(ctx context.Context, dest any, query string, args ...any) error {
	query = s.db.Rebind(query)
	return retryOnBusy(ctx, func() error {
		return s.db.SelectContext(ctx, dest, query, args...)
	})
}

func (s *Store) getWithRetry(ctx context.Context, dest any, query string, args ...any) error {
	query = s.db.Rebind(query)
	return retryOnBusy(ctx, func() error {
		return s.db.GetContext(ctx, dest, query, args...)
	})
}

func (s *Store) execWithRetry(ctx context.Context, query string, args ...any) (sql.Result, error) {
	query = s.db.Rebind(query)
	var res sql.Result
	err := retryOnBusy(ctx, func() error {
		var execErr error
		res, execErr = s.db.ExecContext(ctx, query, args...)
		return execErr
	})
	return res, err
}
