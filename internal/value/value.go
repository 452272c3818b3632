// Package value implements the tagged scalar that flows through the change log: the five
// SQLite storage classes (null, integer, real, text, blob), with lossless conversion to and
// from database/sql bind/scan values and a JSON wire encoding for the HTTP surface.
package value

import (
	"bytes"
	"database/sql/driver"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Kind identifies which SQLite storage class a Value holds.
type Kind int

const (
	KindNull Kind = iota
	KindInteger
	KindReal
	KindText
	KindBlob
)

// Value is a tagged union over SQLite's five storage classes. The zero Value is Null.
type Value struct {
	kind    Kind
	integer int64
	real    float64
	text    string
	blob    []byte
}

func Null() Value                { return Value{kind: KindNull} }
func Integer(v int64) Value      { return Value{kind: KindInteger, integer: v} }
func Real(v float64) Value       { return Value{kind: KindReal, real: v} }
func Text(v string) Value        { return Value{kind: KindText, text: v} }
func Blob(v []byte) Value        { return Value{kind: KindBlob, blob: append([]byte(nil), v...)} }
func (v Value) Kind() Kind        { return v.kind }
func (v Value) IsNull() bool      { return v.kind == KindNull }

func (v Value) Integer64() (int64, bool)  { return v.integer, v.kind == KindInteger }
func (v Value) Float64() (float64, bool)  { return v.real, v.kind == KindReal }
func (v Value) String() (string, bool)    { return v.text, v.kind == KindText }
func (v Value) Bytes() ([]byte, bool)     { return v.blob, v.kind == KindBlob }

// FromColumn constructs a Value from a database/sql driver.Value obtained by scanning a
// SQLite column. The mattn/go-sqlite3 driver already distinguishes TEXT ([]byte vs string is
// driver-dependent) and BLOB at this layer, so this conversion is lossless.
func FromColumn(col any) Value {
	switch t := col.(type) {
	case nil:
		return Null()
	case int64:
		return Integer(t)
	case float64:
		return Real(t)
	case string:
		return Text(t)
	case []byte:
		return Blob(t)
	default:
		// Unexpected driver type; preserve via its default string form rather than panic.
		return Text(fmt.Sprintf("%v", t))
	}
}

// Bind returns the driver.Value used to bind this Value as a SQL statement parameter.
func (v Value) Bind() driver.Value {
	switch v.kind {
	case KindNull:
		return nil
	case KindInteger:
		return v.integer
	case KindReal:
		return v.real
	case KindText:
		return v.text
	case KindBlob:
		return v.blob
	default:
		return nil
	}
}

// Size returns the byte footprint used for the change-read buffering quantum: 0 for null, 8
// for integer/real (their in-memory width), and the byte length for text/blob.
func (v Value) Size() int {
	switch v.kind {
	case KindNull:
		return 0
	case KindInteger, KindReal:
		return 8
	case KindText:
		return len(v.text)
	case KindBlob:
		return len(v.blob)
	default:
		return 0
	}
}

// Equal reports structural equality.
func (v Value) Equal(other Value) bool {
	if v.kind != other.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindInteger:
		return v.integer == other.integer
	case KindReal:
		return v.real == other.real
	case KindText:
		return v.text == other.text
	case KindBlob:
		return bytes.Equal(v.blob, other.blob)
	default:
		return false
	}
}

// MarshalJSON follows the wire rule: null as JSON null, integer/real as JSON numbers, text as
// a JSON string, blob as a base64-encoded JSON string.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindNull:
		return []byte("null"), nil
	case KindInteger:
		return []byte(strconv.FormatInt(v.integer, 10)), nil
	case KindReal:
		return json.Marshal(v.real)
	case KindText:
		return json.Marshal(v.text)
	case KindBlob:
		return json.Marshal(base64.StdEncoding.EncodeToString(v.blob))
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON decodes the wire rule above. A JSON string always decodes to Text: the wire
// format gives blob and text the same JSON type (string), so a bare Value cannot recover
// which one it was meant to be. Callers that need a Blob leg of a round trip must construct
// it explicitly via Blob(...); the lossless round trip this package guarantees is the SQL
// bind/scan one (FromColumn / Bind), not a blind JSON round trip of an isolated blob Value.
func (v *Value) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*v = Null()
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("value: decoding text: %w", err)
		}
		*v = Text(s)
		return nil
	}
	numStr := string(data)
	if strings.ContainsAny(numStr, ".eE") {
		var f float64
		if err := json.Unmarshal(data, &f); err != nil {
			return fmt.Errorf("value: decoding real: %w", err)
		}
		*v = Real(f)
		return nil
	}
	var i int64
	if err := json.Unmarshal(data, &i); err != nil {
		var f float64
		if ferr := json.Unmarshal(data, &f); ferr != nil {
			return fmt.Errorf("value: decoding number: %w", err)
		}
		*v = Real(f)
		return nil
	}
	*v = Integer(i)
	return nil
}
