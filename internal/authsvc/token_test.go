package authsvc

import (
	"strings"
	"testing"
)

func testSecret() []byte { return []byte("test-secret-at-least-32-bytes!!!") }

func TestMintReturnsJWT(t *testing.T) {
	ts := NewTokenService(testSecret())

	token, err := ts.Mint("user-123")
	if err != nil {
		t.Fatalf("Mint() error = %v", err)
	}
	if strings.Count(token, ".") != 2 {
		t.Errorf("Mint() token doesn't look like a JWT: %q", token)
	}
}

func TestValidateRoundTrip(t *testing.T) {
	ts := NewTokenService(testSecret())

	token, err := ts.Mint("user-abc")
	if err != nil {
		t.Fatalf("Mint() error = %v", err)
	}

	got, err := ts.Validate(token)
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if got != "user-abc" {
		t.Errorf("Validate() = %q, want %q", got, "user-abc")
	}
}

func TestValidateWrongSecret(t *testing.T) {
	ts1 := NewTokenService([]byte("secret-one-at-least-32-bytes!!!!"))
	ts2 := NewTokenService([]byte("secret-two-at-least-32-bytes!!!!"))

	token, err := ts1.Mint("user-123")
	if err != nil {
		t.Fatalf("Mint() error = %v", err)
	}

	if _, err := ts2.Validate(token); err == nil {
		t.Fatal("Validate() should fail with a different secret")
	}
}

func TestValidateTamperedToken(t *testing.T) {
	ts := NewTokenService(testSecret())

	token, err := ts.Mint("user-123")
	if err != nil {
		t.Fatalf("Mint() error = %v", err)
	}
	tampered := token[:len(token)-3] + "xxx"

	if _, err := ts.Validate(tampered); err == nil {
		t.Fatal("Validate() should fail for a tampered signature")
	}
}

func TestValidateGarbageToken(t *testing.T) {
	ts := NewTokenService(testSecret())

	if _, err := ts.Validate("not.a.jwt"); err == nil {
		t.Fatal("Validate() should fail for a garbage string")
	}
	if _, err := ts.Validate(""); err == nil {
		t.Fatal("Validate() should fail for an empty string")
	}
}
