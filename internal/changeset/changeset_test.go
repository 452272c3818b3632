package changeset

import (
	"encoding/json"
	"testing"

	"github.com/crrserver/core/internal/value"
)

func TestSiteIDRoundTrip(t *testing.T) {
	var s SiteID
	for i := range s {
		s[i] = byte(i)
	}

	data, err := s.MarshalJSON()
	if err != nil {
		t.Fatalf("MarshalJSON() error = %v", err)
	}

	var out SiteID
	if err := out.UnmarshalJSON(data); err != nil {
		t.Fatalf("UnmarshalJSON() error = %v", err)
	}
	if out != s {
		t.Errorf("round trip = %v, want %v", out, s)
	}
}

func TestParseSiteID(t *testing.T) {
	var s SiteID
	for i := range s {
		s[i] = byte(i * 2)
	}
	encoded, _ := s.MarshalJSON()
	var encodedStr string
	if err := json.Unmarshal(encoded, &encodedStr); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}

	got, err := ParseSiteID(encodedStr)
	if err != nil {
		t.Fatalf("ParseSiteID() error = %v", err)
	}
	if got != s {
		t.Errorf("ParseSiteID() = %v, want %v", got, s)
	}
}

func TestParseSiteIDRejectsWrongLength(t *testing.T) {
	if _, err := ParseSiteID("aGVsbG8="); err == nil { // "hello", 5 bytes
		t.Fatal("ParseSiteID() should reject a non-16-byte payload")
	}
}

func TestIsDeleteAndIsInsert(t *testing.T) {
	del := DeleteMarker
	deleteRow := Changeset{CID: &del, ColVersion: 1}
	if !deleteRow.IsDelete() {
		t.Error("row with DeleteMarker cid should report IsDelete")
	}
	if deleteRow.IsInsert() {
		t.Error("a delete row should never also report IsInsert")
	}

	cid := "name"
	insertRow := Changeset{CID: &cid, ColVersion: 1}
	if !insertRow.IsInsert() {
		t.Error("col_version 1 on a non-delete row should report IsInsert")
	}

	updateRow := Changeset{CID: &cid, ColVersion: 2}
	if updateRow.IsInsert() {
		t.Error("col_version > 1 should not report IsInsert")
	}
}

func TestSize(t *testing.T) {
	cid := "name"
	c := Changeset{
		Table:  "widgets",
		PK:     value.Integer(1),
		CID:    &cid,
		Val:    value.Text("hello"),
		SiteID: SiteID{},
	}
	want := len("widgets") + 8 + len("hello") + 8 + 8 + 16 + len("name")
	if got := c.Size(); got != want {
		t.Errorf("Size() = %d, want %d", got, want)
	}
}

func TestChangesetJSONRoundTrip(t *testing.T) {
	cid := "col"
	var site SiteID
	for i := range site {
		site[i] = byte(i)
	}
	c := Changeset{
		Table:      "widgets",
		PK:         value.Integer(7),
		CID:        &cid,
		Val:        value.Text("v"),
		ColVersion: 2,
		DBVersion:  99,
		SiteID:     site,
	}

	data, err := json.Marshal(c)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	var out Changeset
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}

	if out.Table != c.Table || out.DBVersion != c.DBVersion || out.ColVersion != c.ColVersion {
		t.Errorf("round trip mismatch: got %+v, want %+v", out, c)
	}
	if out.SiteID != c.SiteID {
		t.Errorf("SiteID round trip mismatch: got %v, want %v", out.SiteID, c.SiteID)
	}
	if *out.CID != *c.CID {
		t.Errorf("CID round trip mismatch: got %q, want %q", *out.CID, *c.CID)
	}
}
