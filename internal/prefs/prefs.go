// Package prefs is the durable local preference store shared by the settings
// surfaces and the background worker.
//
// The store is a single SQLite file holding one table with one logical
// record: the user's quiet-hours window. Exactly one role creates schema.
// The settings surfaces open the store as RoleOwner and create the file,
// table and schema version on first use. The worker opens it as
// RoleReadOnly and never creates anything; a missing file, table or schema
// version reads as "unset".
package prefs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"chokewatch/internal/quiet"

	"github.com/fxamacker/cbor/v2"
	_ "github.com/glebarez/go-sqlite"
	log "github.com/sirupsen/logrus"
)

// Identifiers shared by every reader and writer of the store. A mismatch
// between processes would make the worker read "unset" forever.
const (
	DBName        = "pta_prefs"
	StoreName     = "prefs"
	QuietHoursKey = "quiet_hours"
	SchemaVersion = 1
)

const (
	dbDirPerm   os.FileMode = 0700
	busyTimeout             = 2 * time.Second
)

// Role decides whether a repository may create schema and write records.
type Role int

const (
	// RoleReadOnly never creates files or tables and never writes.
	RoleReadOnly Role = iota
	// RoleOwner creates schema on first use and owns all writes.
	RoleOwner
)

func (r Role) String() string {
	switch r {
	case RoleOwner:
		return "owner"
	case RoleReadOnly:
		return "read-only"
	default:
		return fmt.Sprintf("role(%d)", int(r))
	}
}

var (
	// ErrReadOnly is returned by write operations on a read-only repository.
	ErrReadOnly = errors.New("preference store is read-only")

	// ErrSchemaTooNew is returned when the file was stamped by a newer build.
	ErrSchemaTooNew = errors.New("preference store schema is newer than supported")

	errNoStore    = errors.New("preference store does not exist")
	errNoSchema   = errors.New("preference store schema not initialized")
	errNoRecord   = errors.New("no quiet hours record")
	errIncomplete = errors.New("quiet hours record is incomplete")
)

// record is the stored value. Both fields are nullable so that a partial
// record can be told apart from a zero hour.
type record struct {
	Start *int `cbor:"start"`
	End   *int `cbor:"end"`
}

// Path returns the database file for a data directory.
func Path(dataDir string) string {
	return filepath.Join(dataDir, DBName+".db")
}

// Repository reads and writes the quiet-hours record.
type Repository struct {
	path string
	role Role
	log  log.FieldLogger
	now  func() time.Time

	mu sync.Mutex
	db *sql.DB
}

// Option configures a Repository.
type Option func(*Repository)

// WithLogger routes diagnostic messages to l.
func WithLogger(l log.FieldLogger) Option {
	return func(r *Repository) {
		if l != nil {
			r.log = l
		}
	}
}

// WithClock overrides the clock used for updated_at stamps.
func WithClock(now func() time.Time) Option {
	return func(r *Repository) {
		if now != nil {
			r.now = now
		}
	}
}

// New builds a repository for the database file at path. It does not touch
// the disk; the file is opened lazily by the first operation.
func New(path string, role Role, opts ...Option) *Repository {
	discard := log.New()
	discard.SetOutput(io.Discard)

	r := &Repository{
		path: path,
		role: role,
		log:  discard,
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.log = r.log.WithFields(log.Fields{"store": DBName, "role": role.String()})
	return r
}

// Path returns the database file path.
func (r *Repository) Path() string {
	return r.path
}

// Role returns the repository role.
func (r *Repository) Role() Role {
	return r.role
}

// Initialize creates the schema if needed. Only the owner may call it.
func (r *Repository) Initialize(ctx context.Context) error {
	if r.role != RoleOwner {
		return ErrReadOnly
	}
	_, release, err := r.conn(ctx)
	if err != nil {
		return err
	}
	release()
	return nil
}

// Get returns the stored window. ok is false when no window is stored or
// when the store cannot be read for any reason; Get never fails.
func (r *Repository) Get(ctx context.Context) (w quiet.Window, ok bool) {
	w, _, err := r.load(ctx)
	if err != nil {
		r.logLoadError(err)
		return quiet.Window{}, false
	}
	return w, true
}

// Stat is Get plus the time the record was last written.
func (r *Repository) Stat(ctx context.Context) (quiet.Window, time.Time, bool) {
	w, updated, err := r.load(ctx)
	if err != nil {
		r.logLoadError(err)
		return quiet.Window{}, time.Time{}, false
	}
	return w, updated, true
}

// Put stores w, replacing any previous window.
func (r *Repository) Put(ctx context.Context, w quiet.Window) error {
	if r.role != RoleOwner {
		return ErrReadOnly
	}
	if err := w.Validate(); err != nil {
		return err
	}

	start, end := w.Start, w.End
	value, err := cbor.Marshal(record{Start: &start, End: &end})
	if err != nil {
		return fmt.Errorf("encode quiet hours: %w", err)
	}

	db, release, err := r.conn(ctx)
	if err != nil {
		return err
	}
	defer release()

	query := fmt.Sprintf(
		"INSERT INTO %s (key, value, updated_at) VALUES (?, ?, ?) "+
			"ON CONFLICT(key) DO UPDATE SET value=excluded.value, updated_at=excluded.updated_at",
		StoreName)
	if _, err := db.ExecContext(ctx, query, QuietHoursKey, value, r.now().UnixMilli()); err != nil {
		return fmt.Errorf("save quiet hours: %w", err)
	}
	return nil
}

// Clear removes the stored window. Clearing an empty store is not an error.
func (r *Repository) Clear(ctx context.Context) error {
	if r.role != RoleOwner {
		return ErrReadOnly
	}
	db, release, err := r.conn(ctx)
	if err != nil {
		return err
	}
	defer release()
	query := fmt.Sprintf("DELETE FROM %s WHERE key = ?", StoreName)
	if _, err := db.ExecContext(ctx, query, QuietHoursKey); err != nil {
		return fmt.Errorf("clear quiet hours: %w", err)
	}
	return nil
}

// Snapshot writes a consistent copy of the database to dst.
func (r *Repository) Snapshot(ctx context.Context, dst string) error {
	db, release, err := r.conn(ctx)
	if err != nil {
		return err
	}
	defer release()
	if _, err := db.ExecContext(ctx, "VACUUM INTO ?", dst); err != nil {
		return fmt.Errorf("snapshot %s: %w", dst, err)
	}
	return nil
}

// Check verifies that the file at path is a store this build can read. A
// store without a record passes; a corrupt file, a newer schema or an
// undecodable record does not.
func Check(ctx context.Context, path string) error {
	r := New(path, RoleReadOnly)
	db, release, err := r.conn(ctx)
	if err != nil {
		return err
	}
	defer release()

	var result string
	if err := db.QueryRowContext(ctx, "PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("integrity check: %s", result)
	}

	if _, _, err := r.load(ctx); err != nil && !isUnset(err) {
		return err
	}
	return nil
}

// Close releases the owner's pooled handle. The repository may be used again
// afterwards; the next operation reopens the file.
func (r *Repository) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.db == nil {
		return nil
	}
	err := r.db.Close()
	r.db = nil
	return err
}

func (r *Repository) load(ctx context.Context) (quiet.Window, time.Time, error) {
	db, release, err := r.conn(ctx)
	if err != nil {
		return quiet.Window{}, time.Time{}, err
	}
	defer release()

	var version int
	if err := db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return quiet.Window{}, time.Time{}, fmt.Errorf("read schema version: %w", err)
	}
	switch {
	case version == 0:
		return quiet.Window{}, time.Time{}, errNoSchema
	case version > SchemaVersion:
		return quiet.Window{}, time.Time{}, fmt.Errorf("version %d: %w", version, ErrSchemaTooNew)
	}

	var (
		value     []byte
		updatedMs int64
	)
	query := fmt.Sprintf("SELECT value, updated_at FROM %s WHERE key = ?", StoreName)
	err = db.QueryRowContext(ctx, query, QuietHoursKey).Scan(&value, &updatedMs)
	if errors.Is(err, sql.ErrNoRows) {
		return quiet.Window{}, time.Time{}, errNoRecord
	}
	if err != nil {
		if isMissingTable(err) {
			return quiet.Window{}, time.Time{}, errNoSchema
		}
		return quiet.Window{}, time.Time{}, fmt.Errorf("read quiet hours: %w", err)
	}

	w, err := decodeRecord(value)
	if err != nil {
		return quiet.Window{}, time.Time{}, err
	}
	return w, time.UnixMilli(updatedMs), nil
}

func decodeRecord(value []byte) (quiet.Window, error) {
	var rec record
	if err := cbor.Unmarshal(value, &rec); err != nil {
		return quiet.Window{}, fmt.Errorf("decode quiet hours: %w", err)
	}
	if rec.Start == nil || rec.End == nil {
		return quiet.Window{}, errIncomplete
	}
	w := quiet.Window{Start: *rec.Start, End: *rec.End}
	if err := w.Validate(); err != nil {
		return quiet.Window{}, err
	}
	return w, nil
}

func isUnset(err error) bool {
	return errors.Is(err, errNoStore) || errors.Is(err, errNoSchema) ||
		errors.Is(err, errNoRecord) || errors.Is(err, errIncomplete)
}

func (r *Repository) logLoadError(err error) {
	switch {
	case isUnset(err):
		r.log.WithError(err).Debug("quiet hours unset")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		r.log.WithError(err).Debug("quiet hours lookup abandoned")
	default:
		r.log.WithError(err).Warn("quiet hours unreadable, treating as unset")
	}
}

// conn returns a handle and the function that releases it. The owner keeps
// one pooled handle; readers open the file per operation so that a store
// created or restored after the worker started is picked up.
func (r *Repository) conn(ctx context.Context) (*sql.DB, func(), error) {
	if r.role != RoleOwner {
		db, err := r.openReader(ctx)
		if err != nil {
			return nil, nil, err
		}
		return db, func() { _ = db.Close() }, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.db == nil {
		db, err := r.openOwner(ctx)
		if err != nil {
			return nil, nil, err
		}
		r.db = db
	}
	return r.db, func() {}, nil
}

func (r *Repository) openOwner(ctx context.Context) (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(r.path), dbDirPerm); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}

	db, err := sql.Open("sqlite", r.path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", r.path, err)
	}
	db.SetMaxOpenConns(1)

	if err := configure(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := createSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func (r *Repository) openReader(ctx context.Context) (*sql.DB, error) {
	if _, err := os.Stat(r.path); err != nil {
		if os.IsNotExist(err) {
			return nil, errNoStore
		}
		return nil, fmt.Errorf("stat %s: %w", r.path, err)
	}

	db, err := sql.Open("sqlite", readOnlyDSN(r.path))
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", r.path, err)
	}
	db.SetMaxOpenConns(1)

	if err := configure(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func configure(ctx context.Context, db *sql.DB) error {
	pragma := fmt.Sprintf("PRAGMA busy_timeout=%d;", busyTimeout.Milliseconds())
	if _, err := db.ExecContext(ctx, pragma); err != nil {
		return fmt.Errorf("failed to set pragma %s: %w", pragma, err)
	}
	return nil
}

func createSchema(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var version int
	if err := tx.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version > SchemaVersion {
		return fmt.Errorf("version %d: %w", version, ErrSchemaTooNew)
	}

	_, err = tx.ExecContext(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			key TEXT PRIMARY KEY,
			value BLOB NOT NULL,
			updated_at INTEGER NOT NULL
		);
	`, StoreName))
	if err != nil {
		return fmt.Errorf("failed to create %s table: %w", StoreName, err)
	}

	if version < SchemaVersion {
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", SchemaVersion)); err != nil {
			return fmt.Errorf("stamp schema version: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema: %w", err)
	}
	return nil
}

// readOnlyDSN builds a URI filename that SQLite opens without write access
// and without creating the file.
func readOnlyDSN(path string) string {
	escaped := strings.NewReplacer("%", "%25", "?", "%3f", "#", "%23").Replace(filepath.ToSlash(path))
	return "file:" + escaped + "?mode=ro"
}

func isMissingTable(err error) bool {
	return strings.Contains(err.Error(), "no such table")
}
