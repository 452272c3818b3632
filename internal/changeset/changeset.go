// Package changeset models one row of the CR-SQLite change log, the unit the Database
// handle reads/writes and the unit the stream endpoint broadcasts.
package changeset

import (
	"encoding/base64"
	"fmt"

	"github.com/crrserver/core/internal/value"
)

// DeleteMarker is the reserved cid marking row deletion.
const DeleteMarker = "__crsql_del"

// PKOnlyMarker is the reserved cid marking a pk-only row-creation marker.
const PKOnlyMarker = "__crsql_pko"

// SiteID is the 16-byte origin site identifier.
type SiteID [16]byte

func (s SiteID) MarshalJSON() ([]byte, error) {
	return []byte(`"` + base64.StdEncoding.EncodeToString(s[:]) + `"`), nil
}

func (s *SiteID) UnmarshalJSON(data []byte) error {
	var encoded string
	if len(data) >= 2 && data[0] == '"' {
		encoded = string(data[1 : len(data)-1])
	}
	decoded, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return fmt.Errorf("changeset: decoding site_id: %w", err)
	}
	if len(decoded) != 16 {
		return fmt.Errorf("changeset: site_id must decode to 16 bytes, got %d", len(decoded))
	}
	copy(s[:], decoded)
	return nil
}

// ParseSiteID decodes a base64-encoded 16-byte site identifier from a query parameter.
func ParseSiteID(encoded string) (SiteID, error) {
	decoded, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return SiteID{}, fmt.Errorf("invalid site_id: %w", err)
	}
	if len(decoded) != 16 {
		return SiteID{}, fmt.Errorf("site_id must decode to 16 bytes, got %d", len(decoded))
	}
	var s SiteID
	copy(s[:], decoded)
	return s, nil
}

// Changeset is one row of the crsql_changes virtual table.
type Changeset struct {
	Table      string      `json:"table"`
	PK         value.Value `json:"pk"`
	CID        *string     `json:"cid"`
	Val        value.Value `json:"val"`
	ColVersion int64       `json:"col_version"`
	DBVersion  int64       `json:"db_version"`
	SiteID     SiteID      `json:"site_id"`
}

// Size returns the byte footprint used for the paging byte-budget.
func (c Changeset) Size() int {
	size := len(c.Table) + c.PK.Size() + c.Val.Size() + 8 + 8 + 16
	if c.CID != nil {
		size += len(*c.CID)
	}
	return size
}

// IsDelete reports whether this row marks a row deletion.
func (c Changeset) IsDelete() bool {
	return c.CID != nil && *c.CID == DeleteMarker
}

// IsInsert reports whether this row marks a row-insert (col_version == 1 and not a delete).
func (c Changeset) IsInsert() bool {
	return !c.IsDelete() && c.ColVersion == 1
}

// Migration is a schema-evolution record appended to crr_server_migrations.
type Migration struct {
	Version int64  `json:"version"`
	SQL     string `json:"sql"`
}
