package database

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"

	"github.com/crrserver/core/internal/apperror"
	"github.com/crrserver/core/internal/changeset"
	"github.com/crrserver/core/internal/crsqlite"
	"github.com/crrserver/core/internal/permission"
	"github.com/crrserver/core/internal/value"
)

// ChangeBufferSize is the byte-budget quantum a single page of changes accumulates to
// before closing, per §4.C.
const ChangeBufferSize = 1_000_000

const selectColumns = `"table", pk, cid, val, col_version, db_version, COALESCE(site_id, crsql_siteid())`

// ChangeIterator is the lazy, paged iterator both change-read queries produce. It closes
// over the owning Database's mutex and current cursor rather than holding a live *sql.Rows,
// so it is safe to hand across a goroutine boundary (e.g. into the publisher task or across
// an SSE handler's blocking writes) without pinning a prepared statement there.
type ChangeIterator struct {
	db      *Database
	full    bool
	siteID  changeset.SiteID
	allowed permission.ReadableTables
	done    bool
}

// Changes returns the selective-read iterator used by the stream endpoint: rows with
// db_version greater than the Database's current cursor, excluding the caller's own site,
// restricted to perms.ReadableTables(). This query (like AllChanges) runs with the
// authorizer disabled, since crsql_changes is a system table the authorizer does not gate by
// name; table-level filtering is instead expressed directly in the WHERE clause below.
func (d *Database) Changes(siteID changeset.SiteID) *ChangeIterator {
	return &ChangeIterator{
		db:      d,
		full:    false,
		siteID:  siteID,
		allowed: d.perms.ReadableTables(),
	}
}

// AllChanges returns the full-read iterator used by the publisher task: every row with
// db_version greater than the Database's current cursor, with no site or table filter.
// Requires Full permission.
func (d *Database) AllChanges() (*ChangeIterator, error) {
	if !d.perms.Full() {
		return nil, apperror.Unauthorized("full access required to read the unfiltered change log")
	}
	return &ChangeIterator{db: d, full: true}, nil
}

// HasNext reports whether another page may still be available. Once Next has returned a
// page with hasNext == false, HasNext is false on an empty tail.
func (it *ChangeIterator) HasNext() bool { return !it.done }

// Next reads and returns the next page. hasNext mirrors the iterator's own HasNext() after
// this call.
func (it *ChangeIterator) Next(ctx context.Context) (page []changeset.Changeset, hasNext bool, err error) {
	it.db.mu.Lock()
	defer it.db.mu.Unlock()

	if it.done {
		return nil, false, nil
	}

	if !it.full && !it.allowed.All && len(it.allowed.Tables) == 0 {
		it.done = true
		return nil, false, nil
	}

	query, args := it.buildQuery()

	guard := crsqlite.DisableAuthorization(it.db.raw, it.db.perms)
	defer guard.Restore()

	rows, err := it.db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, false, apperror.DatabaseError(err)
	}
	defer rows.Close()

	lastVersion := it.db.dbVersion
	size := 0
	more := false

	for rows.Next() {
		cs, scanErr := scanChangeset(rows)
		if scanErr != nil {
			return nil, false, apperror.DatabaseError(scanErr)
		}
		if size >= ChangeBufferSize && cs.DBVersion > lastVersion {
			more = true
			break
		}
		page = append(page, cs)
		size += cs.Size()
		lastVersion = cs.DBVersion
	}
	if err := rows.Err(); err != nil {
		return nil, false, apperror.DatabaseError(err)
	}

	if len(page) > 0 {
		it.db.dbVersion = lastVersion
	}
	it.done = !more
	return page, more, nil
}

func (it *ChangeIterator) buildQuery() (string, []any) {
	var b strings.Builder
	fmt.Fprintf(&b, `SELECT %s FROM crsql_changes WHERE db_version > ?`, selectColumns)
	args := []any{it.db.dbVersion}

	if !it.full {
		b.WriteString(` AND site_id IS NOT ?`)
		args = append(args, it.siteID[:])

		if !it.allowed.All {
			names := make([]string, 0, len(it.allowed.Tables))
			for name := range it.allowed.Tables {
				names = append(names, name)
			}
			placeholders := make([]string, len(names))
			for i, name := range names {
				placeholders[i] = "?"
				args = append(args, name)
			}
			fmt.Fprintf(&b, ` AND "table" IN (%s)`, strings.Join(placeholders, ","))
		}
	}

	b.WriteString(` ORDER BY db_version`)
	return b.String(), args
}

func scanChangeset(rows *sql.Rows) (changeset.Changeset, error) {
	var (
		table      string
		pk         any
		cid        sql.NullString
		val        any
		colVersion int64
		dbVersion  int64
		siteID     []byte
	)
	if err := rows.Scan(&table, &pk, &cid, &val, &colVersion, &dbVersion, &siteID); err != nil {
		return changeset.Changeset{}, err
	}

	cs := changeset.Changeset{
		Table:      table,
		PK:         value.FromColumn(pk),
		Val:        value.FromColumn(val),
		ColVersion: colVersion,
		DBVersion:  dbVersion,
	}
	if cid.Valid {
		c := cid.String
		cs.CID = &c
	}
	if len(siteID) == 16 {
		copy(cs.SiteID[:], siteID)
	}
	return cs, nil
}

// --- apply_changes -----------------------------------------------------------------------

const insertChangeSQL = `INSERT INTO crsql_changes
	("table", pk, cid, val, col_version, db_version, site_id)
	VALUES (?, ?, ?, ?, ?, ?, ?)`

// ApplyChanges inserts each incoming row into crsql_changes after checking the matching
// table predicate from perms, in order, inside a single transaction rolled back on any
// error. See §4.C.
func (d *Database) ApplyChanges(ctx context.Context, changesets []changeset.Changeset) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	tx, err := d.conn.BeginTx(ctx, nil)
	if err != nil {
		return apperror.DatabaseError(err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	guard := crsqlite.DisableAuthorization(d.raw, d.perms)
	defer guard.Restore()

	stmt, err := tx.PrepareContext(ctx, insertChangeSQL)
	if err != nil {
		return apperror.DatabaseError(err)
	}
	defer stmt.Close()

	for _, cs := range changesets {
		action, allowed := authorizeRow(d.perms, cs)
		if !allowed {
			return apperror.UnauthorizedTable(action, cs.Table)
		}

		var cidArg any
		if cs.CID != nil {
			cidArg = *cs.CID
		}
		siteID := cs.SiteID
		if _, err := stmt.ExecContext(ctx, cs.Table, cs.PK.Bind(), cidArg, cs.Val.Bind(), cs.ColVersion, cs.DBVersion, siteID[:]); err != nil {
			return apperror.DatabaseError(err)
		}
	}

	if err := tx.Commit(); err != nil {
		return apperror.DatabaseError(err)
	}
	committed = true
	return nil
}

// authorizeRow classifies a row and checks the matching table predicate: cid ==
// "__crsql_del" is a delete; col_version == 1 (and not a delete) is an insert; otherwise an
// update.
func authorizeRow(perms permission.Permissions, cs changeset.Changeset) (action string, allowed bool) {
	switch {
	case cs.IsDelete():
		return "delete", perms.DeleteTable(cs.Table)
	case cs.IsInsert():
		return "insert", perms.InsertTable(cs.Table)
	default:
		return "update", perms.UpdateTable(cs.Table)
	}
}

// --- migrations ----------------------------------------------------------------------------

// The canonical migration classifier requires the table name to be double-quoted; an
// unquoted CREATE/ALTER TABLE statement falls through to "other" and is not CR-SQLite
// enabled (see SPEC_FULL.md §9's resolution of this documented open question).
var (
	reCreateTable = regexp.MustCompile(`(?is)^\s*CREATE\s+TABLE\s+"([^"]+)"`)
	reAlterTable  = regexp.MustCompile(`(?is)^\s*ALTER\s+TABLE\s+"([^"]+)"`)
)

func classifyMigration(sql string) (kind, name string) {
	if m := reCreateTable.FindStringSubmatch(sql); m != nil {
		return "create", m[1]
	}
	if m := reAlterTable.FindStringSubmatch(sql); m != nil {
		return "alter", m[1]
	}
	return "other", ""
}

// rewriteMigration applies the CR-SQLite ceremony for a single migration statement.
func rewriteMigration(stmt string) string {
	kind, name := classifyMigration(stmt)
	switch kind {
	case "create":
		return fmt.Sprintf("%s; SELECT crsql_as_crr('%s')", stmt, name)
	case "alter":
		return fmt.Sprintf("SELECT crsql_begin_alter('%s'); %s; SELECT crsql_commit_alter('%s')", name, stmt, name)
	default:
		return stmt
	}
}

// ApplyMigration rewrites and executes queries as one batch inside a savepoint, then appends
// the joined, rewritten SQL to crr_server_migrations. Requires perms.Full().
func (d *Database) ApplyMigration(ctx context.Context, queries []string) (changeset.Migration, error) {
	if !d.perms.Full() {
		return changeset.Migration{}, apperror.Unauthorized("full access required to apply migrations")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	rewritten := make([]string, len(queries))
	for i, q := range queries {
		rewritten[i] = rewriteMigration(q)
	}
	joined := strings.Join(rewritten, ";\n")

	if _, err := d.conn.ExecContext(ctx, "SAVEPOINT crr_migration"); err != nil {
		return changeset.Migration{}, apperror.DatabaseError(err)
	}

	guard := crsqlite.DisableAuthorization(d.raw, d.perms)
	defer guard.Restore()

	if _, err := d.conn.ExecContext(ctx, joined); err != nil {
		_, _ = d.conn.ExecContext(ctx, "ROLLBACK TO crr_migration")
		_, _ = d.conn.ExecContext(ctx, "RELEASE crr_migration")
		return changeset.Migration{}, apperror.DatabaseError(err)
	}

	res, err := d.conn.ExecContext(ctx, "INSERT INTO crr_server_migrations (sql) VALUES (?)", joined)
	if err != nil {
		_, _ = d.conn.ExecContext(ctx, "ROLLBACK TO crr_migration")
		_, _ = d.conn.ExecContext(ctx, "RELEASE crr_migration")
		return changeset.Migration{}, apperror.DatabaseError(err)
	}
	version, err := res.LastInsertId()
	if err != nil {
		_, _ = d.conn.ExecContext(ctx, "ROLLBACK TO crr_migration")
		_, _ = d.conn.ExecContext(ctx, "RELEASE crr_migration")
		return changeset.Migration{}, apperror.DatabaseError(err)
	}

	if _, err := d.conn.ExecContext(ctx, "RELEASE crr_migration"); err != nil {
		return changeset.Migration{}, apperror.DatabaseError(err)
	}

	return changeset.Migration{Version: version, SQL: joined}, nil
}

// Migrations returns all (version, sql) rows with version > sinceVersion, ordered by
// version.
func (d *Database) Migrations(ctx context.Context, sinceVersion int64) ([]changeset.Migration, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	rows, err := d.conn.QueryContext(ctx,
		`SELECT version, sql FROM crr_server_migrations WHERE version > ? ORDER BY version`, sinceVersion)
	if err != nil {
		return nil, apperror.DatabaseError(err)
	}
	defer rows.Close()

	var migrations []changeset.Migration
	for rows.Next() {
		var m changeset.Migration
		if err := rows.Scan(&m.Version, &m.SQL); err != nil {
			return nil, apperror.DatabaseError(err)
		}
		migrations = append(migrations, m)
	}
	if err := rows.Err(); err != nil {
		return nil, apperror.DatabaseError(err)
	}
	return migrations, nil
}
