// Package database implements the Database handle: an authorizing wrapper over one
// CR-SQLite connection, per §4.C of the specification. Each Database owns exactly one
// physical SQLite connection (pinned via crsqlite.Open's SetMaxOpenConns(1)) and is not safe
// for concurrent use by more than one goroutine at a time.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/mattn/go-sqlite3"

	"github.com/crrserver/core/internal/apperror"
	"github.com/crrserver/core/internal/crsqlite"
	"github.com/crrserver/core/internal/permission"
)

// ReservedNames are database names the boundary must reject outright.
var ReservedNames = map[string]struct{}{
	"auth": {},
	"sync": {},
}

// CheckReservedName returns a ReservedName AppError if name is reserved.
func CheckReservedName(name string) error {
	if _, reserved := ReservedNames[name]; reserved {
		return apperror.ReservedName(name)
	}
	return nil
}

const migrationsTableDDL = `CREATE TABLE IF NOT EXISTS crr_server_migrations (
	version INTEGER PRIMARY KEY,
	sql TEXT NOT NULL
)`

// Database is a handle to one tenant's SQLite file, loaded with CR-SQLite, authorized
// according to a Permissions snapshot captured at open time.
type Database struct {
	mu sync.Mutex

	name      string
	path      string
	perms     permission.Permissions
	readOnly  bool
	dbVersion int64 // exclusive lower bound for the next change read

	sqldb *sql.DB
	conn  *sql.Conn
	raw   *sqlite3.SQLiteConn
}

func dsn(dataDir, name string, readOnly bool) string {
	path := filepath.Join(dataDir, name+".sqlite3")
	if readOnly {
		return fmt.Sprintf("file:%s?mode=ro&_busy_timeout=5000", path)
	}
	return fmt.Sprintf("file:%s?_busy_timeout=5000&_foreign_keys=on", path)
}

func open(ctx context.Context, dataDir, name string, perms permission.Permissions, readOnly bool) (*Database, error) {
	if err := CheckReservedName(name); err != nil {
		return nil, err
	}

	sqldb, err := crsqlite.Open(dsn(dataDir, name, readOnly))
	if err != nil {
		return nil, apperror.DatabaseError(err)
	}

	conn, err := sqldb.Conn(ctx)
	if err != nil {
		sqldb.Close()
		return nil, apperror.DatabaseError(err)
	}

	raw, err := crsqlite.Raw(conn)
	if err != nil {
		conn.Close()
		sqldb.Close()
		return nil, apperror.DatabaseError(err)
	}

	d := &Database{
		name:     name,
		path:     filepath.Join(dataDir, name+".sqlite3"),
		perms:    perms,
		readOnly: readOnly,
		sqldb:    sqldb,
		conn:     conn,
		raw:      raw,
	}

	if !readOnly {
		if err := d.ensureMigrationsTable(ctx); err != nil {
			d.Close(ctx)
			return nil, err
		}
	}

	crsqlite.InstallAuthorizer(d.raw, perms)

	return d, nil
}

// Open opens a read-write Database handle for name under dataDir. Statements that violate
// perms fail with Unauthorized via the installed authorizer.
func Open(ctx context.Context, dataDir, name string, perms permission.Permissions) (*Database, error) {
	return open(ctx, dataDir, name, perms, false)
}

// OpenReadOnly opens a read-only Database handle whose change reads start strictly after
// dbVersion.
func OpenReadOnly(ctx context.Context, dataDir, name string, dbVersion int64, perms permission.Permissions) (*Database, error) {
	d, err := open(ctx, dataDir, name, perms, true)
	if err != nil {
		return nil, err
	}
	d.dbVersion = dbVersion
	return d, nil
}

// OpenReadOnlyLatest opens a read-only Database handle seeded at the current db_version, so
// a fresh read sees nothing already committed. Used by the Change Manager's publisher task.
func OpenReadOnlyLatest(ctx context.Context, dataDir, name string, perms permission.Permissions) (*Database, error) {
	d, err := open(ctx, dataDir, name, perms, true)
	if err != nil {
		return nil, err
	}
	var latest int64
	row := d.conn.QueryRowContext(ctx, "SELECT crsql_dbversion()")
	if err := row.Scan(&latest); err != nil {
		d.Close(ctx)
		return nil, apperror.DatabaseError(err)
	}
	d.dbVersion = latest
	return d, nil
}

func (d *Database) Name() string                     { return d.name }
func (d *Database) Permissions() permission.Permissions { return d.perms }
func (d *Database) DBVersion() int64                 { return d.dbVersion }
func (d *Database) Conn() *sql.Conn                  { return d.conn }

// UpdateHook installs fn as the raw connection's update hook. Used only by the Change
// Manager, which is responsible for giving fn a weak reference to the signal it sends on.
func (d *Database) UpdateHook(fn func(op int, db, table string, rowID int64)) {
	d.raw.RegisterUpdateHook(fn)
}

func (d *Database) ensureMigrationsTable(ctx context.Context) error {
	guard := crsqlite.DisableAuthorization(d.raw, d.perms)
	defer guard.Restore()
	if _, err := d.conn.ExecContext(ctx, migrationsTableDDL); err != nil {
		return apperror.DatabaseError(err)
	}
	return nil
}

// Close finalizes CR-SQLite on this connection and releases it, per the Database lifetime
// rule: "on drop, crsql_finalize() is invoked."
func (d *Database) Close(ctx context.Context) error {
	if d.conn != nil {
		_, _ = d.conn.ExecContext(ctx, "SELECT crsql_finalize()")
		d.conn.Close()
	}
	if d.sqldb != nil {
		d.sqldb.Close()
	}
	return nil
}
