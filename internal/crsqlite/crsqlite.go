// Package crsqlite is the thin layer between the Database handle and the C-level SQLite
// APIs CR-SQLite and the authorizer/update-hook model require: extension loading, the
// authorizer action mapping, and update-hook registration, all against mattn/go-sqlite3's
// SQLiteConn (the pure-Go modernc.org/sqlite driver does not expose any of these three).
package crsqlite

import (
	"database/sql"
	"fmt"
	"runtime"
	"sync"

	"github.com/mattn/go-sqlite3"

	"github.com/crrserver/core/internal/apperror"
	"github.com/crrserver/core/internal/permission"
)

// DriverName is the database/sql driver name registered by this package's init.
const DriverName = "crsqlite"

// allowedFunctions is the SQLITE_FUNCTION allow-list: the SQL functions this codebase's own
// queries and migration ceremony call, plus a few side-effect-free scalar builtins (lower,
// upper, abs, length, likely, unlikely), per §4.C's authorizer rule
// "Function(<allow-listed>) → Allow". Anything outside this set is denied even under a
// restricted Permissions value, since a function is a plausible side-channel (e.g. reading
// files) that the authorizer is precisely meant to gate.
var allowedFunctions = map[string]struct{}{
	"coalesce":            {},
	"crsql_siteid":        {},
	"crsql_dbversion":     {},
	"crsql_as_crr":        {},
	"crsql_begin_alter":   {},
	"crsql_commit_alter":  {},
	"crsql_finalize":      {},
	"lower":               {},
	"upper":               {},
	"abs":                 {},
	"length":              {},
	"likely":              {},
	"unlikely":            {},
}

var (
	registerOnce sync.Once
	registerErr  error
)

// ExtensionPath returns the path to the CR-SQLite shared object for the running host, per
// ./extensions/crsqlite-<os>-<arch>.<dllext>. Hosts outside {darwin, windows, linux} fail
// with UnsupportedOS.
func ExtensionPath() (string, error) {
	var osName, dllext string
	switch runtime.GOOS {
	case "darwin":
		osName, dllext = "darwin", "dylib"
	case "windows":
		osName, dllext = "windows", "dll"
	case "linux":
		osName, dllext = "linux", "so"
	default:
		return "", apperror.UnsupportedOS(runtime.GOOS)
	}
	return fmt.Sprintf("./extensions/crsqlite-%s-%s.%s", osName, runtime.GOARCH, dllext), nil
}

// register installs the crsqlite database/sql driver once per process: a mattn/go-sqlite3
// driver whose ConnectHook loads the CR-SQLite extension on every new connection, mirroring
// the original's "on every open" extension-loading rule (database.rs's load_crsqlite).
func register() error {
	registerOnce.Do(func() {
		path, err := ExtensionPath()
		if err != nil {
			registerErr = err
			return
		}
		sql.Register(DriverName, &sqlite3.SQLiteDriver{
			ConnectHook: func(conn *sqlite3.SQLiteConn) error {
				if err := conn.LoadExtension(path, "sqlite3_crsqlite_init"); err != nil {
					return fmt.Errorf("loading crsqlite extension from %s: %w", path, err)
				}
				return nil
			},
		})
	})
	return registerErr
}

// Open opens a pooled *sql.DB against dsn using the registered crsqlite driver, pinned to a
// single connection (SetMaxOpenConns(1)): the authorizer and update-hook state this package
// installs lives on one physical connection, so the Database handle must never let the pool
// hand out a second one.
func Open(dsn string) (*sql.DB, error) {
	if err := register(); err != nil {
		return nil, err
	}
	db, err := sql.Open(DriverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", dsn, err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	return db, nil
}

// authorizerFor builds the authorizer callback §4.C describes for a non-Full Permissions
// value. Returns codes are sqlite3's SQLITE_OK ("allow") / SQLITE_DENY.
func authorizerFor(perms permission.Permissions) func(int, string, string, string) int {
	return func(action int, arg1, arg2, _ string) int {
		switch action {
		case sqlite3.SQLITE_SELECT, sqlite3.SQLITE_TRANSACTION, sqlite3.SQLITE_SAVEPOINT:
			return sqlite3.SQLITE_OK
		case sqlite3.SQLITE_FUNCTION:
			if _, ok := allowedFunctions[arg2]; ok {
				return sqlite3.SQLITE_OK
			}
			return sqlite3.SQLITE_DENY
		case sqlite3.SQLITE_READ:
			if perms.ReadTable(arg1) {
				return sqlite3.SQLITE_OK
			}
			return sqlite3.SQLITE_DENY
		case sqlite3.SQLITE_UPDATE:
			if perms.UpdateTable(arg1) {
				return sqlite3.SQLITE_OK
			}
			return sqlite3.SQLITE_DENY
		case sqlite3.SQLITE_INSERT:
			if perms.InsertTable(arg1) {
				return sqlite3.SQLITE_OK
			}
			return sqlite3.SQLITE_DENY
		case sqlite3.SQLITE_DELETE:
			if perms.DeleteTable(arg1) {
				return sqlite3.SQLITE_OK
			}
			return sqlite3.SQLITE_DENY
		default:
			// CreateTable, Pragma, AttachDatabase, AlterTable, and everything else not named
			// above: deny. Schema changes go through the migration endpoint under Full.
			return sqlite3.SQLITE_DENY
		}
	}
}

// InstallAuthorizer installs the authorizer matching perms, or removes it entirely when
// perms.Full() (uninstalled for performance, per §4.C).
func InstallAuthorizer(conn *sqlite3.SQLiteConn, perms permission.Permissions) {
	if perms.Full() {
		conn.RegisterAuthorizer(nil)
		return
	}
	conn.RegisterAuthorizer(authorizerFor(perms))
}

// Guard is the scope guard for disable_authorization(): on construction it removes the
// authorizer; Restore (called via defer on every exit path, including error) reinstalls the
// authorizer matching the original permissions. This prevents the authorizer from being left
// permissive across an error return.
type Guard struct {
	conn  *sqlite3.SQLiteConn
	perms permission.Permissions
}

// DisableAuthorization removes the authorizer and returns a Guard whose Restore reinstalls
// it. Callers must `defer guard.Restore()` immediately.
func DisableAuthorization(conn *sqlite3.SQLiteConn, perms permission.Permissions) *Guard {
	conn.RegisterAuthorizer(nil)
	return &Guard{conn: conn, perms: perms}
}

func (g *Guard) Restore() {
	InstallAuthorizer(g.conn, g.perms)
}

// RegisterUpdateHook installs fn as the connection's update hook, replacing any previous one.
// fn receives the raw sqlite3 op code, database name, table name, and rowid for every row
// change on this connection.
func RegisterUpdateHook(conn *sqlite3.SQLiteConn, fn func(op int, db, table string, rowID int64)) {
	conn.RegisterUpdateHook(fn)
}

// Raw extracts the driver-level *sqlite3.SQLiteConn backing a pinned *sql.Conn. Must only be
// used on a *sql.DB opened with SetMaxOpenConns(1) via Open above, so the raw connection
// handle stays valid for the lifetime of the Database that captured it.
func Raw(conn *sql.Conn) (*sqlite3.SQLiteConn, error) {
	var raw *sqlite3.SQLiteConn
	err := conn.Raw(func(driverConn any) error {
		sc, ok := driverConn.(*sqlite3.SQLiteConn)
		if !ok {
			return fmt.Errorf("unexpected driver connection type %T", driverConn)
		}
		raw = sc
		return nil
	})
	if err != nil {
		return nil, err
	}
	return raw, nil
}
