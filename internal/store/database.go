package store

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/fortuna/metapitch/internal/logging"
)

// Driver names accepted by NewDatabase.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Querier is satisfied by *sql.DB and *sql.Tx.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	PrepareContext(ctx context.Context, query string) (*sql.Stmt, error)
}

// Database wraps the tracking store connection. SQL in this package is
// written with ? placeholders and rebound for PostgreSQL.
type Database struct {
	conn   *sql.DB
	driver string

	mu          sync.Mutex
	schemaReady bool
}

// NewDatabase opens and pings the store.
func NewDatabase(driver, dsn string) (*Database, error) {
	switch driver {
	case DriverSQLite:
		dsn = sqliteDSN(dsn)
	case DriverPostgres:
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if driver == DriverSQLite {
		// One writer; also keeps :memory: databases on a single connection.
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(20)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(time.Hour)
		db.SetConnMaxIdleTime(10 * time.Minute)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Database{conn: db, driver: driver}, nil
}

func sqliteDSN(dsn string) string {
	if strings.Contains(dsn, "?") {
		return dsn
	}
	return dsn + "?_pragma=journal_mode(WAL)&_pragma=synchronous(OFF)&_pragma=busy_timeout(5000)"
}

// Close closes the database connection
func (db *Database) Close() error {
	if db.conn != nil {
		return db.conn.Close()
	}
	return nil
}

// DB returns the underlying *sql.DB for queries
func (db *Database) DB() *sql.DB {
	return db.conn
}

// Driver returns the driver name the database was opened with.
func (db *Database) Driver() string {
	return db.driver
}

// Rebind converts ? placeholders to the driver's native form.
func (db *Database) Rebind(query string) string {
	if db.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 16)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// InTx runs fn inside a transaction, committing on success.
func (db *Database) InTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// HealthCheck performs a health check on the database
func (db *Database) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	return db.conn.PingContext(ctx)
}

// Summary holds table row counts.
type Summary struct {
	Games   int64 `json:"games"`
	Players int64 `json:"players"`
	Plays   int64 `json:"plays"`
	Frames  int64 `json:"frames"`
}

// Counts returns the row count of every canonical table.
func (db *Database) Counts(ctx context.Context) (Summary, error) {
	var s Summary
	targets := []struct {
		table string
		dst   *int64
	}{
		{"games", &s.Games},
		{"players", &s.Players},
		{"plays", &s.Plays},
		{"frames", &s.Frames},
	}
	for _, t := range targets {
		if err := db.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+t.table).Scan(t.dst); err != nil {
			return s, fmt.Errorf("count %s: %w", t.table, err)
		}
	}
	return s, nil
}

// RequireSchema returns ErrSchemaMissing unless all canonical tables exist.
// A positive result is cached until the next ResetSchema.
func (db *Database) RequireSchema(ctx context.Context, q Querier) error {
	db.mu.Lock()
	ready := db.schemaReady
	db.mu.Unlock()
	if ready {
		return nil
	}

	for _, table := range canonicalTables {
		ok, err := db.tableExists(ctx, q, table)
		if err != nil {
			return fmt.Errorf("check table %s: %w", table, err)
		}
		if !ok {
			return fmt.Errorf("%w: table %s does not exist", ErrSchemaMissing, table)
		}
	}

	db.mu.Lock()
	db.schemaReady = true
	db.mu.Unlock()
	return nil
}

func (db *Database) tableExists(ctx context.Context, q Querier, table string) (bool, error) {
	query := `SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`
	if db.driver == DriverPostgres {
		query = `SELECT COUNT(*) FROM information_schema.tables
			WHERE table_schema = current_schema() AND table_name = ?`
	}

	var n int
	if err := q.QueryRowContext(ctx, db.Rebind(query), table).Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}

func logTableCounts(ctx context.Context, db *Database) {
	s, err := db.Counts(ctx)
	if err != nil {
		logging.Warn().Err(err).Msg("Failed to count tables")
		return
	}
	logging.Debug().
		Int64("games", s.Games).
		Int64("players", s.Players).
		Int64("plays", s.Plays).
		Int64("frames", s.Frames).
		Msg("Table counts")
}
