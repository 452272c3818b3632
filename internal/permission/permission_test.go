package permission

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFullGrantsEverything(t *testing.T) {
	p := Full()

	assert.True(t, p.ReadTable("foo"))
	assert.True(t, p.InsertTable("foo"))
	assert.True(t, p.UpdateTable("foo"))
	assert.True(t, p.DeleteTable("foo"))
	assert.True(t, p.FullTable("foo"))
	assert.True(t, p.Full())
	assert.False(t, p.Create())
}

func TestCreateGrantsNothing(t *testing.T) {
	p := Create()

	assert.False(t, p.ReadTable("foo"))
	assert.False(t, p.InsertTable("foo"))
	assert.False(t, p.UpdateTable("foo"))
	assert.False(t, p.DeleteTable("foo"))
	assert.True(t, p.Create())
	assert.False(t, p.Full())
}

func TestPartialDatabaseLevelCapability(t *testing.T) {
	p := Partial(Caps{Read: true}, nil)

	assert.True(t, p.ReadTable("anything"))
	assert.False(t, p.InsertTable("anything"))
}

func TestPartialTableLevelCapability(t *testing.T) {
	p := Partial(Caps{}, map[string]TableCaps{
		"widgets": {Caps: Caps{Insert: true}},
	})

	assert.True(t, p.InsertTable("widgets"))
	assert.False(t, p.InsertTable("gadgets"))
}

func TestFullTableIsIndependentOfRead(t *testing.T) {
	// A table can be owned outright (Full) without the database granting Read — FullTable is
	// its own flag, not derived from ReadTable.
	p := Partial(Caps{}, map[string]TableCaps{
		"widgets": {Full: true},
	})

	assert.True(t, p.FullTable("widgets"))
	assert.False(t, p.ReadTable("widgets"))
}

func TestIsEmpty(t *testing.T) {
	tests := []struct {
		name string
		p    Permissions
		want bool
	}{
		{"zero value", Permissions{}, true},
		{"full", Full(), false},
		{"create", Create(), false},
		{"partial with db read", Partial(Caps{Read: true}, nil), false},
		{"partial with table insert", Partial(Caps{}, map[string]TableCaps{"t": {Caps: Caps{Insert: true}}}), false},
		{"partial all false", Partial(Caps{}, map[string]TableCaps{"t": {}}), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.p.IsEmpty())
		})
	}
}

func TestReadableTables(t *testing.T) {
	full := Full().ReadableTables()
	assert.True(t, full.All)

	dbRead := Partial(Caps{Read: true}, nil).ReadableTables()
	assert.True(t, dbRead.All)

	explicit := Partial(Caps{}, map[string]TableCaps{
		"a": {Caps: Caps{Read: true}},
		"b": {Caps: Caps{Insert: true}},
	}).ReadableTables()
	assert.False(t, explicit.All)
	assert.Contains(t, explicit.Tables, "a")
	assert.NotContains(t, explicit.Tables, "b")
}

func TestApplyIteratesDatabaseThenTables(t *testing.T) {
	p := Partial(Caps{Read: true}, map[string]TableCaps{
		"widgets": {Caps: Caps{Insert: true}},
	})

	var entries []Entry
	p.Apply(func(e Entry) { entries = append(entries, e) })

	require.Len(t, entries, 2)
	assert.Equal(t, "", entries[0].Table)
	assert.Equal(t, "widgets", entries[1].Table)
}

func TestApplyIsNoOpForFullAndCreate(t *testing.T) {
	var calls int
	Full().Apply(func(Entry) { calls++ })
	Create().Apply(func(Entry) { calls++ })
	assert.Equal(t, 0, calls)
}

func TestPermissionsJSONRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		p    Permissions
	}{
		{"full", Full()},
		{"create", Create()},
		{"partial", Partial(Caps{Read: true}, map[string]TableCaps{
			"widgets": {Caps: Caps{Insert: true, Update: true}, Full: false},
		})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(tt.p)
			require.NoError(t, err)

			var out Permissions
			require.NoError(t, json.Unmarshal(data, &out))

			assert.Equal(t, tt.p.KindOf(), out.KindOf())
			assert.Equal(t, tt.p.Database(), out.Database())
			assert.Equal(t, tt.p.ReadTable("widgets"), out.ReadTable("widgets"))
		})
	}
}

func TestUnmarshalJSONUnknownKindIsPartial(t *testing.T) {
	var p Permissions
	require.NoError(t, json.Unmarshal([]byte(`{"kind":"bogus"}`), &p))
	assert.Equal(t, KindPartial, p.KindOf())
	assert.True(t, p.IsEmpty())
}
