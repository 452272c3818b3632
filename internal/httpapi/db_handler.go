package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/crrserver/core/internal/apperror"
	"github.com/crrserver/core/internal/authsvc"
	"github.com/crrserver/core/internal/changemgr"
	"github.com/crrserver/core/internal/changeset"
	"github.com/crrserver/core/internal/database"
	"github.com/crrserver/core/internal/middleware"
	"github.com/crrserver/core/internal/permission"
	"github.com/crrserver/core/internal/value"
)

// DBHandler implements the per-database routes of §6: migrate, changes (apply + stream), run.
type DBHandler struct {
	dataDir  string
	auth     *authsvc.Service
	registry *changemgr.Registry
	logger   *slog.Logger
}

// NewDBHandler constructs a DBHandler.
func NewDBHandler(dataDir string, auth *authsvc.Service, registry *changemgr.Registry, logger *slog.Logger) *DBHandler {
	return &DBHandler{dataDir: dataDir, auth: auth, registry: registry, logger: logger}
}

// resolveRequest extracts the path's database name and resolves the caller's Permissions
// against it, short-circuiting with a reserved-name error before any lookup.
func (h *DBHandler) resolveRequest(r *http.Request) (dbName string, id *authsvc.Identity, perms permission.Permissions, err error) {
	dbName = chi.URLParam(r, "name")
	if err := database.CheckReservedName(dbName); err != nil {
		return dbName, nil, permission.Permissions{}, err
	}
	id, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		return dbName, nil, permission.Permissions{}, apperror.Unauthorized("no identity resolved for request")
	}
	perms, err = h.auth.Resolve(r.Context(), id, dbName)
	if err != nil {
		return dbName, id, permission.Permissions{}, err
	}
	return dbName, id, perms, nil
}

// --- migrate -------------------------------------------------------------------------------

type migrateRequest struct {
	Queries []string `json:"queries"`
}

// HandleMigrate implements POST /db/:name/migrate (§4.F): first-use "owner on first use"
// provisioning when Resolve returned Create, otherwise requires the caller already hold Full.
func (h *DBHandler) HandleMigrate(w http.ResponseWriter, r *http.Request) {
	dbName, id, perms, err := h.resolveRequest(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	var req migrateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, h.logger, apperror.JSON(err))
		return
	}

	firstUse := perms.Create()
	if firstUse {
		perms = permission.Full()
	} else if !perms.Full() {
		writeError(w, h.logger, apperror.Unauthorized("full access required to apply migrations"))
		return
	}

	db, err := database.Open(r.Context(), h.dataDir, dbName, perms)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	defer db.Close(r.Context())

	migration, err := db.ApplyMigration(r.Context(), req.Queries)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	if firstUse {
		if err := h.auth.AuthorizeMigration(r.Context(), id, dbName); err != nil {
			writeError(w, h.logger, err)
			return
		}
	}

	h.registry.PublishMigration(dbName, migration)
	writeJSON(w, h.logger, http.StatusOK, nil)
}

// --- apply changes ---------------------------------------------------------------------------

// HandleApplyChanges implements POST /db/:name/changes: a batch of Changeset rows applied
// inside one transaction, each checked against the caller's table-level predicates.
func (h *DBHandler) HandleApplyChanges(w http.ResponseWriter, r *http.Request) {
	dbName, _, perms, err := h.resolveRequest(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if perms.Create() {
		writeError(w, h.logger, apperror.Unauthorized("database does not exist; apply a migration first"))
		return
	}

	var changes []changeset.Changeset
	if err := json.NewDecoder(r.Body).Decode(&changes); err != nil {
		writeError(w, h.logger, apperror.JSON(err))
		return
	}

	db, err := database.Open(r.Context(), h.dataDir, dbName, perms)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	defer db.Close(r.Context())

	if err := db.ApplyChanges(r.Context(), changes); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, nil)
}

// --- run -----------------------------------------------------------------------------------

type runRequest struct {
	SQL    string        `json:"sql"`
	Params []value.Value `json:"params"`
	Mode   string        `json:"mode"`
}

type runResponse struct {
	Rows    [][]value.Value `json:"rows,omitempty"`
	Changes *int64          `json:"changes,omitempty"`
}

// HandleRun implements POST /db/:name/run: a single parameterized statement, executed as a
// plain exec ("run"), single-row fetch ("get"), or full fetch ("all"). Authorization comes
// entirely from the authorizer already installed on the opened Database handle; this handler
// does not re-derive table predicates itself.
func (h *DBHandler) HandleRun(w http.ResponseWriter, r *http.Request) {
	dbName, _, perms, err := h.resolveRequest(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if perms.Create() {
		writeError(w, h.logger, apperror.Unauthorized("database does not exist; apply a migration first"))
		return
	}

	var req runRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, h.logger, apperror.JSON(err))
		return
	}

	db, err := database.Open(r.Context(), h.dataDir, dbName, perms)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	defer db.Close(r.Context())

	args := make([]any, len(req.Params))
	for i, p := range req.Params {
		args[i] = p.Bind()
	}

	resp, err := runStatement(r.Context(), db, req.SQL, args, req.Mode)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, resp)
}
