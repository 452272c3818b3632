// Package permission implements the per-(database,table) CRUD capability set that the auth
// subsystem resolves per request and that the Database handle's authorizer enforces.
package permission

import "encoding/json"

// Caps is a database-level (or table-level baseline) set of CRUD capabilities.
type Caps struct {
	Read   bool
	Insert bool
	Update bool
	Delete bool
}

// TableCaps extends Caps with a Full flag: a table a caller owns outright regardless of the
// database-level capability set.
type TableCaps struct {
	Caps
	Full bool
}

// Kind distinguishes the three Permissions shapes.
type Kind int

const (
	KindPartial Kind = iota
	KindFull
	KindCreate
)

// Permissions is the immutable capability set tied to one opened Database. The zero value is
// the empty Partial permissions: every predicate false.
type Permissions struct {
	kind     Kind
	database Caps
	tables   map[string]TableCaps
}

// Full grants every predicate unconditionally.
func Full() Permissions { return Permissions{kind: KindFull} }

// Create marks the caller as the first user of a not-yet-existing database: owner on first
// use. It carries no capability predicates of its own; the migration endpoint upgrades a
// Create caller to Full after it provisions the database.
func Create() Permissions { return Permissions{kind: KindCreate} }

// Partial constructs an explicit capability set. A nil tables map is treated as empty.
func Partial(database Caps, tables map[string]TableCaps) Permissions {
	if tables == nil {
		tables = map[string]TableCaps{}
	}
	return Permissions{kind: KindPartial, database: database, tables: tables}
}

func (p Permissions) Full() bool   { return p.kind == KindFull }
func (p Permissions) Create() bool { return p.kind == KindCreate }

// IsEmpty reports whether every predicate is false: true only for the Partial permissions
// with no database capability and no table granting anything.
func (p Permissions) IsEmpty() bool {
	if p.kind != KindPartial {
		return false
	}
	if p.database.Read || p.database.Insert || p.database.Update || p.database.Delete {
		return false
	}
	for _, t := range p.tables {
		if t.Read || t.Insert || t.Update || t.Delete || t.Full {
			return false
		}
	}
	return true
}

func (p Permissions) table(name string) (TableCaps, bool) {
	t, ok := p.tables[name]
	return t, ok
}

// ReadTable reports whether table can be read: Full always true; Create always false (a
// caller with Create has not yet been granted any table capability); Partial is the
// disjunction of the database-level and table-level read capability.
func (p Permissions) ReadTable(table string) bool {
	switch p.kind {
	case KindFull:
		return true
	case KindCreate:
		return false
	default:
		t, _ := p.table(table)
		return p.database.Read || t.Read
	}
}

func (p Permissions) InsertTable(table string) bool {
	switch p.kind {
	case KindFull:
		return true
	case KindCreate:
		return false
	default:
		t, _ := p.table(table)
		return p.database.Insert || t.Insert
	}
}

func (p Permissions) UpdateTable(table string) bool {
	switch p.kind {
	case KindFull:
		return true
	case KindCreate:
		return false
	default:
		t, _ := p.table(table)
		return p.database.Update || t.Update
	}
}

func (p Permissions) DeleteTable(table string) bool {
	switch p.kind {
	case KindFull:
		return true
	case KindCreate:
		return false
	default:
		t, _ := p.table(table)
		return p.database.Delete || t.Delete
	}
}

// FullTable reports whether the caller owns table outright: Full is always true; Partial is
// true only when that table's own Full flag is set (this is an independent flag, not derived
// from the read predicate).
func (p Permissions) FullTable(table string) bool {
	switch p.kind {
	case KindFull:
		return true
	case KindCreate:
		return false
	default:
		t, _ := p.table(table)
		return t.Full
	}
}

// ReadableTables is the result of ReadableTables(): either every table (All) or an explicit
// set of table names.
type ReadableTables struct {
	All    bool
	Tables map[string]struct{}
}

// ReadableTables returns All when the database-level read capability holds, otherwise the
// explicit set of table names with any table-level read capability.
func (p Permissions) ReadableTables() ReadableTables {
	if p.kind == KindFull || (p.kind == KindPartial && p.database.Read) {
		return ReadableTables{All: true}
	}
	tables := map[string]struct{}{}
	if p.kind == KindPartial {
		for name, t := range p.tables {
			if t.Read {
				tables[name] = struct{}{}
			}
		}
	}
	return ReadableTables{Tables: tables}
}

// Entry is one step of Apply's iteration: either the database-level capability (Table == "")
// or one table's capability.
type Entry struct {
	Table string
	Caps  TableCaps
}

// Apply iterates (None, db-caps) then (Some(table), caps) for each table, in the order
// callers need to persist or inspect the full structure (e.g. serializing Permissions to the
// roles table, or rendering a diagnostic).
func (p Permissions) Apply(f func(Entry)) {
	if p.kind != KindPartial {
		return
	}
	f(Entry{Table: "", Caps: TableCaps{Caps: p.database}})
	for name, t := range p.tables {
		f(Entry{Table: name, Caps: t})
	}
}

// KindOf exposes the discriminant for callers that need to branch without re-deriving it from
// the predicates (e.g. JSON encoding of Permissions for the roles table).
func (p Permissions) KindOf() Kind { return p.kind }

// Database exposes the raw database-level caps for Partial permissions; zero value for
// Full/Create (whose predicates don't come from this field).
func (p Permissions) Database() Caps { return p.database }

// Tables exposes the raw table map for Partial permissions; nil for Full/Create.
func (p Permissions) Tables() map[string]TableCaps { return p.tables }

// wireForm is the roles-table JSON representation: a kind tag plus the Partial fields (empty
// for Full/Create).
type wireForm struct {
	Kind     string                 `json:"kind"`
	Database Caps                   `json:"database,omitempty"`
	Tables   map[string]TableCaps   `json:"tables,omitempty"`
}

var kindNames = map[Kind]string{KindPartial: "partial", KindFull: "full", KindCreate: "create"}

// MarshalJSON encodes Permissions for storage in the roles table's permissions_json column.
func (p Permissions) MarshalJSON() ([]byte, error) {
	w := wireForm{Kind: kindNames[p.kind]}
	if p.kind == KindPartial {
		w.Database = p.database
		w.Tables = p.tables
	}
	return json.Marshal(w)
}

// UnmarshalJSON decodes a roles-table row back into Permissions.
func (p *Permissions) UnmarshalJSON(data []byte) error {
	var w wireForm
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	switch w.Kind {
	case "full":
		*p = Full()
	case "create":
		*p = Create()
	default:
		*p = Partial(w.Database, w.Tables)
	}
	return nil
}
