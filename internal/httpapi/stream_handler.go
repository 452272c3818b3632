package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/crrserver/core/internal/apperror"
	"github.com/crrserver/core/internal/changemgr"
	"github.com/crrserver/core/internal/changeset"
	"github.com/crrserver/core/internal/database"
	"github.com/crrserver/core/internal/permission"
)

// HandleStream implements GET /db/:name/changes: subscribe-then-catch-up-then-live, per §4.E
// and §5's "open subscription before catch-up read" rule, which this handler follows literally
// (Subscribe happens before the catch-up Database handle is opened) to avoid the gap the
// opposite ordering would leave between catch-up and the live stream.
func (h *DBHandler) HandleStream(w http.ResponseWriter, r *http.Request) {
	dbName, id, perms, err := h.resolveRequest(r)
	if err != nil {
		writeSSEError(w, err)
		return
	}
	// First-use: the caller is the future owner and the tenant file does not exist yet.
	// Create and initialize it (mirroring HandleMigrate's first-use path) before subscribing,
	// so a bare subscribe on a not-yet-existing database succeeds instead of erroring, per §4.E.
	// Ownership is recorded here via AuthorizeMigration: once the file exists, Resolve no
	// longer reports Create for it, so a later HandleMigrate relies on this roles row.
	if perms.Create() {
		perms = permission.Full()
		provision, err := database.Open(r.Context(), h.dataDir, dbName, perms)
		if err != nil {
			writeSSEError(w, err)
			return
		}
		provision.Close(r.Context())
		if err := h.auth.AuthorizeMigration(r.Context(), id, dbName); err != nil {
			writeSSEError(w, err)
			return
		}
	}

	q := r.URL.Query()
	siteID, err := changeset.ParseSiteID(q.Get("site_id"))
	if err != nil {
		writeSSEError(w, apperror.InvalidURL(err))
		return
	}
	baselineVersion, err := strconv.ParseInt(q.Get("db_version"), 10, 64)
	if err != nil {
		writeSSEError(w, apperror.InvalidURL(fmt.Errorf("invalid db_version: %w", err)))
		return
	}
	schemaVersion, err := strconv.ParseInt(q.Get("schema_version"), 10, 64)
	if err != nil {
		writeSSEError(w, apperror.InvalidURL(fmt.Errorf("invalid schema_version: %w", err)))
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeSSEError(w, apperror.IO(fmt.Errorf("streaming unsupported")))
		return
	}

	sub, err := h.registry.Subscribe(r.Context(), dbName)
	if err != nil {
		writeSSEError(w, err)
		return
	}
	defer sub.Close()

	catchup, err := database.OpenReadOnly(r.Context(), h.dataDir, dbName, baselineVersion, perms)
	if err != nil {
		writeSSEError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	highestMigration := schemaVersion
	migrations, err := catchup.Migrations(r.Context(), schemaVersion)
	if err != nil {
		catchup.Close(r.Context())
		writeSSEFrame(w, flusher, "error", errorFrame(err))
		return
	}
	for _, m := range migrations {
		writeSSEFrame(w, flusher, "migration", m)
		if m.Version > highestMigration {
			highestMigration = m.Version
		}
	}

	highestChange := baselineVersion
	it := catchup.Changes(siteID)
	for it.HasNext() {
		page, _, err := it.Next(r.Context())
		if err != nil {
			catchup.Close(r.Context())
			writeSSEFrame(w, flusher, "error", errorFrame(err))
			return
		}
		for _, cs := range page {
			writeSSEFrame(w, flusher, "change", cs)
			if cs.DBVersion > highestChange {
				highestChange = cs.DBVersion
			}
		}
	}
	catchup.Close(r.Context())

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-sub.Messages():
			if !ok {
				writeSSEFrame(w, flusher, "error", errorFrame(apperror.BroadcastRecv(fmt.Errorf("subscription closed"))))
				return
			}
			switch msg.Kind {
			case changemgr.KindChange:
				cs := msg.Change
				if cs.DBVersion <= highestChange {
					continue
				}
				if cs.SiteID == siteID {
					continue
				}
				if !perms.ReadTable(cs.Table) {
					continue
				}
				writeSSEFrame(w, flusher, "change", cs)
				// advance the cutoff to this commit; later rows of the same commit share its
				// db_version and must still pass the filter above
				highestChange = cs.DBVersion - 1
			case changemgr.KindMigration:
				if msg.Migration.Version <= highestMigration {
					continue
				}
				writeSSEFrame(w, flusher, "migration", msg.Migration)
				highestMigration = msg.Migration.Version
			case changemgr.KindError:
				writeSSEFrame(w, flusher, "error", errorFrame(msg.Err))
				return
			}
		}
	}
}

func writeSSEFrame(w http.ResponseWriter, flusher http.Flusher, event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		data = []byte(`{"error":"encoding failure"}`)
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	flusher.Flush()
}

// writeSSEError emits a single error frame for failures discovered before the SSE headers are
// committed (bad query params, subscribe failure, auth failure), under the HTTP status
// classify assigns the error (500 for an unclassified error).
func writeSSEError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		status, _ = classify(appErr)
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.WriteHeader(status)
	data, _ := json.Marshal(errorFrame(err))
	fmt.Fprintf(w, "event: error\ndata: %s\n\n", data)
	if flusher, ok := w.(http.Flusher); ok {
		flusher.Flush()
	}
}

func errorFrame(err error) ErrorResponse {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		_, kind := classify(appErr)
		return ErrorResponse{Error: kind, Message: appErr.Message}
	}
	return ErrorResponse{Error: "internal_error", Message: err.Error()}
}
