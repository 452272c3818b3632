package authsvc

import (
	"context"
	"crypto/rand"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/xid"
	"golang.org/x/crypto/bcrypt"

	"github.com/crrserver/core/internal/apperror"
)

// otpTTL is the one-time-password's validity window (§4.G: "expires_at = now+10m").
const otpTTL = 10 * time.Minute

// otpCost matches the teacher's password-hashing cost; an OTP code is six digits, a far
// smaller keyspace than a user-chosen password, but the code is single-use and short-lived,
// so the same work factor is still cheap insurance against an offline guess of the stored hash.
const otpCost = 12

// IssueOTP generates a fresh six-digit code for email, replacing any prior unconsumed code,
// and returns the plaintext code for the caller to email. It never reports whether email is a
// known user — callers always return 200 regardless (§4.G's anti-enumeration rule).
func (s *Store) IssueOTP(ctx context.Context, email string) (string, error) {
	code, err := randomDigits(6)
	if err != nil {
		return "", apperror.IO(fmt.Errorf("generating otp: %w", err))
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(code), otpCost)
	if err != nil {
		return "", apperror.DatabaseError(fmt.Errorf("hashing otp: %w", err))
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO otp_codes (email, code_hash, expires_at, consumed)
		VALUES (?, ?, ?, 0)
		ON CONFLICT(email) DO UPDATE SET code_hash = excluded.code_hash,
			expires_at = excluded.expires_at, consumed = 0`,
		email, string(hash), time.Now().Add(otpTTL))
	if err != nil {
		return "", apperror.DatabaseError(err)
	}

	return code, nil
}

// VerifyOTP checks code against email's outstanding OTP row, enforcing the §9-resolved
// expiry predicate expires_at > now ("has not yet expired"). On success it consumes the code
// and upserts the User row, returning its internal id.
func (s *Store) VerifyOTP(ctx context.Context, email, code string) (userID string, err error) {
	var (
		hash     string
		expires  time.Time
		consumed bool
	)
	row := s.db.QueryRowContext(ctx,
		`SELECT code_hash, expires_at, consumed FROM otp_codes WHERE email = ?`, email)
	if err := row.Scan(&hash, &expires, &consumed); err != nil {
		if err == sql.ErrNoRows {
			return "", apperror.Unauthorized("no outstanding one-time password for this address")
		}
		return "", apperror.DatabaseError(err)
	}

	if consumed {
		return "", apperror.Unauthorized("one-time password already used")
	}
	if !expires.After(time.Now()) {
		return "", apperror.Unauthorized("one-time password expired")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(code)); err != nil {
		return "", apperror.Unauthorized("incorrect one-time password")
	}

	if _, err := s.db.ExecContext(ctx, `UPDATE otp_codes SET consumed = 1 WHERE email = ?`, email); err != nil {
		return "", apperror.DatabaseError(err)
	}

	return s.upsertUser(ctx, email)
}

func (s *Store) upsertUser(ctx context.Context, email string) (string, error) {
	var id string
	row := s.db.QueryRowContext(ctx, `SELECT id FROM users WHERE email = ?`, email)
	switch err := row.Scan(&id); err {
	case nil:
		return id, nil
	case sql.ErrNoRows:
		id = xid.New().String()
		if _, err := s.db.ExecContext(ctx,
			`INSERT INTO users (id, email) VALUES (?, ?)`, id, email); err != nil {
			return "", apperror.DatabaseError(err)
		}
		return id, nil
	default:
		return "", apperror.DatabaseError(err)
	}
}

func randomDigits(n int) (string, error) {
	const digits = "0123456789"
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	for i, b := range buf {
		buf[i] = digits[int(b)%len(digits)]
	}
	return string(buf), nil
}
