package authsvc

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/crrserver/core/internal/apperror"
	"github.com/crrserver/core/internal/permission"
)

// Resolve implements §4.G's permission lookup: an existing roles row wins; absent a row, a
// not-yet-existing database file grants Create ("owner on first use" is decided later, by
// AuthorizeMigration); anything else resolves to the empty Partial permissions.
func (s *Store) Resolve(ctx context.Context, dataDir, userID, dbName string) (permission.Permissions, error) {
	var raw string
	row := s.db.QueryRowContext(ctx,
		`SELECT permissions_json FROM roles WHERE user_id = ? AND database_name = ?`, userID, dbName)
	switch err := row.Scan(&raw); err {
	case nil:
		var perms permission.Permissions
		if jsonErr := perms.UnmarshalJSON([]byte(raw)); jsonErr != nil {
			return permission.Permissions{}, apperror.JSON(jsonErr)
		}
		return perms, nil
	case sql.ErrNoRows:
		if _, statErr := os.Stat(filepath.Join(dataDir, dbName+".sqlite3")); os.IsNotExist(statErr) {
			return permission.Create(), nil
		}
		return permission.Partial(permission.Caps{}, nil), nil
	default:
		return permission.Permissions{}, apperror.DatabaseError(err)
	}
}

// AuthorizeMigration implements §4.G's first-use grant: called only when Resolve returned
// Create, after the migration or stream endpoint has provisioned the database file. It records userID as
// the database's owner with Full permissions.
func (s *Store) AuthorizeMigration(ctx context.Context, userID, dbName string) error {
	full, err := permission.Full().MarshalJSON()
	if err != nil {
		return apperror.JSON(err)
	}
	_, execErr := s.db.ExecContext(ctx, `
		INSERT INTO roles (user_id, database_name, permissions_json) VALUES (?, ?, ?)
		ON CONFLICT(user_id, database_name) DO UPDATE SET permissions_json = excluded.permissions_json`,
		userID, dbName, string(full))
	if execErr != nil {
		return apperror.DatabaseError(fmt.Errorf("granting first-use ownership: %w", execErr))
	}
	return nil
}
