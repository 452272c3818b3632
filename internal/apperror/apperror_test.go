// GO TESTING BASICS:
// 1. Test files MUST end in _test.go — Go's tooling auto-discovers them
// 2. Test functions MUST start with "Test" and take *testing.T as the only param
// 3. Same package as the code being tested (so we can access unexported stuff)
// 4. Run with: go test ./internal/apperror/ -v  (-v = verbose, shows each test name)
package apperror

import (
	"errors"
	"testing"
)

func TestErrorsIs(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		target    error
		wantMatch bool
	}{
		{
			name:      "ReservedName wraps ErrReservedName",
			err:       ReservedName("auth"),
			target:    ErrReservedName,
			wantMatch: true,
		},
		{
			name:      "UnauthorizedTable wraps ErrUnauthorized",
			err:       UnauthorizedTable("insert", "foo"),
			target:    ErrUnauthorized,
			wantMatch: true,
		},
		{
			name:      "ReservedName does NOT match ErrUnauthorized",
			err:       ReservedName("sync"),
			target:    ErrUnauthorized,
			wantMatch: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := errors.Is(tt.err, tt.target)
			if got != tt.wantMatch {
				t.Errorf("errors.Is(%v, %v) = %v, want %v", tt.err, tt.target, got, tt.wantMatch)
			}
		})
	}
}

func TestErrorMessages(t *testing.T) {
	tests := []struct {
		name        string
		err         *AppError
		wantMessage string
	}{
		{
			name:        "ReservedName message names the offending name",
			err:         ReservedName("auth"),
			wantMessage: `"auth" is a reserved database name`,
		},
		{
			name:        "UnauthorizedTable message names action and table",
			err:         UnauthorizedTable("update", "foo"),
			wantMessage: `not authorized to update table "foo"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.wantMessage {
				t.Errorf("Error() = %q, want %q", got, tt.wantMessage)
			}
		})
	}
}

func TestUnwrap(t *testing.T) {
	err := ReservedName("auth")
	unwrapped := err.Unwrap()

	if unwrapped != ErrReservedName {
		t.Errorf("Unwrap() = %v, want %v", unwrapped, ErrReservedName)
	}
}

func TestUnauthorizedTableField(t *testing.T) {
	err := UnauthorizedTable("insert", "foo")

	if err.Field != "foo" {
		t.Errorf("Field = %q, want %q", err.Field, "foo")
	}
}
