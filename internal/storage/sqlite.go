// Package storage provides the local transactional key/value store.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"
)

// DatabaseName is the fixed file name of the local database.
const DatabaseName = "storyloom.db"

// SchemaVersion is the schema version this build migrates to.
const SchemaVersion = 3

// Supported database/sql driver names.
const (
	DriverPureGo = "sqlite"  // modernc.org/sqlite
	DriverCgo    = "sqlite3" // github.com/mattn/go-sqlite3
)

type migration struct {
	version int
	stmt    string
}

// migrations are additive only: a version may create tables or indexes but
// never drops or rewrites what an earlier version created.
var migrations = []migration{
	{
		version: 1,
		stmt: `CREATE TABLE IF NOT EXISTS app_data (
			key TEXT PRIMARY KEY,
			value BLOB NOT NULL
		)`,
	},
	{
		version: 2,
		stmt: `CREATE TABLE IF NOT EXISTS snapshots (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			value BLOB NOT NULL
		)`,
	},
	{
		version: 3,
		stmt: `CREATE TABLE IF NOT EXISTS images (
			key TEXT PRIMARY KEY,
			value BLOB NOT NULL
		)`,
	},
}

// Options configures Open.
type Options struct {
	// Dir is the directory holding the database file.
	Dir string
	// Driver is DriverPureGo or DriverCgo. Empty means DriverPureGo.
	Driver string
	// Version caps the schema version to migrate to. Zero means SchemaVersion.
	Version int
}

// SQLiteStore manages the SQLite database backing all partitions.
type SQLiteStore struct {
	db     *sql.DB
	path   string
	driver string
}

var _ Store = (*SQLiteStore)(nil)

// Open opens or creates the database and migrates it to the requested version.
// Any failure is reported as ErrUnavailable.
func Open(ctx context.Context, opts Options) (*SQLiteStore, error) {
	driver := opts.Driver
	if driver == "" {
		driver = DriverPureGo
	}
	target := opts.Version
	if target == 0 {
		target = SchemaVersion
	}

	if err := os.MkdirAll(opts.Dir, 0755); err != nil {
		return nil, fmt.Errorf("%w: failed to create data directory: %w", ErrUnavailable, err)
	}

	dbPath := filepath.Join(opts.Dir, DatabaseName)
	dsn, err := buildDSN(driver, dbPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open database: %w", ErrUnavailable, err)
	}
	// Single writer: one connection serialises every statement.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: failed to connect: %w", ErrUnavailable, err)
	}

	s := &SQLiteStore{db: db, path: dbPath, driver: driver}
	if err := s.migrate(ctx, target); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: failed to migrate database: %w", ErrUnavailable, err)
	}

	return s, nil
}

func buildDSN(driver, path string) (string, error) {
	switch driver {
	case DriverCgo:
		return path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000", nil
	case DriverPureGo:
		return "file:" + path + "?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)", nil
	default:
		return "", fmt.Errorf("unsupported sqlite driver %q", driver)
	}
}

// migrate applies every migration above the stored version, each in its own
// transaction.
func (s *SQLiteStore) migrate(ctx context.Context, target int) error {
	if _, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY
	)`); err != nil {
		return err
	}

	current, err := s.Version(ctx)
	if err != nil {
		return err
	}

	for _, m := range migrations {
		if m.version <= current || m.version > target {
			continue
		}
		if err := s.apply(ctx, m); err != nil {
			return fmt.Errorf("migration %d: %w", m.version, err)
		}
	}
	return nil
}

func (s *SQLiteStore) apply(ctx context.Context, m migration) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, m.stmt); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, "INSERT OR IGNORE INTO schema_version (version) VALUES (?)", m.version); err != nil {
		return err
	}
	return tx.Commit()
}

// Version returns the highest applied schema version, or 0 for a new database.
func (s *SQLiteStore) Version(ctx context.Context) (int, error) {
	var version int
	err := s.db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&version)
	return version, err
}

func keyColumn(def partitionDef) string {
	if def.autoIncrement {
		return "id"
	}
	return "key"
}

// keyArg converts a key to the column's native type.
func keyArg(def partitionDef, key string) (any, error) {
	if !def.autoIncrement {
		return key, nil
	}
	id, err := strconv.ParseInt(key, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid integer key %q: %w", key, err)
	}
	return id, nil
}

// Put upserts a value. An existing key keeps its insertion position.
func (s *SQLiteStore) Put(ctx context.Context, partition Partition, key string, value []byte) error {
	def, err := lookup(partition)
	if err != nil {
		return writeErr("put", partition, key, err)
	}
	arg, err := keyArg(def, key)
	if err != nil {
		return writeErr("put", partition, key, err)
	}

	col := keyColumn(def)
	query := fmt.Sprintf(
		"INSERT INTO %s (%s, value) VALUES (?, ?) ON CONFLICT(%s) DO UPDATE SET value = excluded.value",
		def.table, col, col,
	)
	if _, err := s.db.ExecContext(ctx, query, arg, value); err != nil {
		return writeErr("put", partition, key, err)
	}
	return nil
}

// Get returns the value stored under key, or ErrNotFound.
func (s *SQLiteStore) Get(ctx context.Context, partition Partition, key string) ([]byte, error) {
	def, err := lookup(partition)
	if err != nil {
		return nil, readErr("get", partition, key, err)
	}
	arg, err := keyArg(def, key)
	if err != nil {
		return nil, readErr("get", partition, key, err)
	}

	var value []byte
	query := fmt.Sprintf("SELECT value FROM %s WHERE %s = ?", def.table, keyColumn(def))
	err = s.db.QueryRowContext(ctx, query, arg).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, readErr("get", partition, key, err)
	}
	return value, nil
}

// Delete removes a key. Deleting a missing key is not an error.
func (s *SQLiteStore) Delete(ctx context.Context, partition Partition, key string) error {
	def, err := lookup(partition)
	if err != nil {
		return writeErr("delete", partition, key, err)
	}
	arg, err := keyArg(def, key)
	if err != nil {
		return writeErr("delete", partition, key, err)
	}

	query := fmt.Sprintf("DELETE FROM %s WHERE %s = ?", def.table, keyColumn(def))
	if _, err := s.db.ExecContext(ctx, query, arg); err != nil {
		return writeErr("delete", partition, key, err)
	}
	return nil
}

// Append inserts value under the next auto-incremented id.
func (s *SQLiteStore) Append(ctx context.Context, partition Partition, value []byte) (int64, error) {
	def, err := lookup(partition)
	if err != nil {
		return 0, writeErr("append", partition, "", err)
	}
	if !def.autoIncrement {
		return 0, writeErr("append", partition, "", errors.New("partition has no auto-incrementing keys"))
	}

	result, err := s.db.ExecContext(ctx, fmt.Sprintf("INSERT INTO %s (value) VALUES (?)", def.table), value)
	if err != nil {
		return 0, writeErr("append", partition, "", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, writeErr("append", partition, "", err)
	}
	return id, nil
}

// ListAll returns every record of the partition in reverse insertion order.
func (s *SQLiteStore) ListAll(ctx context.Context, partition Partition) ([]Record, error) {
	def, err := lookup(partition)
	if err != nil {
		return nil, readErr("list", partition, "", err)
	}

	query := fmt.Sprintf("SELECT CAST(%s AS TEXT), value FROM %s ORDER BY rowid DESC", keyColumn(def), def.table)
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, readErr("list", partition, "", err)
	}
	defer rows.Close()

	records := []Record{}
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.Key, &r.Value); err != nil {
			return nil, readErr("list", partition, "", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, readErr("list", partition, "", err)
	}
	return records, nil
}

// Clear removes every record of the partition.
func (s *SQLiteStore) Clear(ctx context.Context, partition Partition) error {
	def, err := lookup(partition)
	if err != nil {
		return writeErr("clear", partition, "", err)
	}
	if _, err := s.db.ExecContext(ctx, "DELETE FROM "+def.table); err != nil {
		return writeErr("clear", partition, "", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string {
	return s.path
}

// Driver returns the database/sql driver name in use.
func (s *SQLiteStore) Driver() string {
	return s.driver
}
