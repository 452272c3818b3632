// Package apperror is the core's tagged error sum type. Every error kind §7 of the
// specification names is a sentinel here; boundary code (internal/httpapi) maps a sentinel to
// an HTTP status via errors.Is, and the stream endpoint maps it to an event:error frame
// instead. No panic-based control flow crosses a component boundary.
package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrDatabaseError   = errors.New("database error")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrReservedName    = errors.New("reserved name")
	ErrUnsupportedOS   = errors.New("unsupported os")
	ErrIO              = errors.New("io error")
	ErrSmtp            = errors.New("smtp error")
	ErrMailing         = errors.New("mailing error")
	ErrInvalidAddress  = errors.New("invalid address")
	ErrEnvVar          = errors.New("env var error")
	ErrJSON            = errors.New("json error")
	ErrBase64Decode    = errors.New("base64 decode error")
	ErrInvalidURL      = errors.New("invalid url")
	ErrParser          = errors.New("parse error")
	ErrPathRejection   = errors.New("path rejection")
	ErrPoisonedLock    = errors.New("poisoned lock")
	ErrBroadcastRecv   = errors.New("broadcast recv error")
	ErrSignalSend      = errors.New("signal send error")
)

// AppError is the concrete carrier: a sentinel (Err), a human-readable message, and optional
// structured context (Field, the offending table/site name, etc).
type AppError struct {
	Err     error
	Message string
	Field   string
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func DatabaseError(err error) *AppError {
	return &AppError{Err: ErrDatabaseError, Message: fmt.Sprintf("database error: %s", err)}
}

func Unauthorized(message string) *AppError {
	return &AppError{Err: ErrUnauthorized, Message: message}
}

func UnauthorizedTable(action, table string) *AppError {
	return &AppError{
		Err:     ErrUnauthorized,
		Message: fmt.Sprintf("not authorized to %s table %q", action, table),
		Field:   table,
	}
}

func ReservedName(name string) *AppError {
	return &AppError{
		Err:     ErrReservedName,
		Message: fmt.Sprintf("%q is a reserved database name", name),
		Field:   name,
	}
}

func UnsupportedOS(goos string) *AppError {
	return &AppError{Err: ErrUnsupportedOS, Message: fmt.Sprintf("unsupported host os %q", goos), Field: goos}
}

func IO(err error) *AppError {
	return &AppError{Err: ErrIO, Message: err.Error()}
}

func Smtp(err error) *AppError {
	return &AppError{Err: ErrSmtp, Message: err.Error()}
}

func Mailing(message string) *AppError {
	return &AppError{Err: ErrMailing, Message: message}
}

func InvalidAddress(address string) *AppError {
	return &AppError{Err: ErrInvalidAddress, Message: fmt.Sprintf("invalid email address %q", address), Field: address}
}

func EnvVar(name string) *AppError {
	return &AppError{Err: ErrEnvVar, Message: fmt.Sprintf("missing or invalid environment variable %q", name), Field: name}
}

func JSON(err error) *AppError {
	return &AppError{Err: ErrJSON, Message: fmt.Sprintf("invalid json: %s", err)}
}

func Base64Decode(err error) *AppError {
	return &AppError{Err: ErrBase64Decode, Message: fmt.Sprintf("invalid base64: %s", err)}
}

func InvalidURL(err error) *AppError {
	return &AppError{Err: ErrInvalidURL, Message: fmt.Sprintf("invalid url: %s", err)}
}

func Parser(message string) *AppError {
	return &AppError{Err: ErrParser, Message: message}
}

func PathRejection(message string) *AppError {
	return &AppError{Err: ErrPathRejection, Message: message}
}

// PoisonedLock signals an internal invariant violation at site (the function/lock name).
func PoisonedLock(site string) *AppError {
	return &AppError{Err: ErrPoisonedLock, Message: fmt.Sprintf("poisoned lock at %s", site), Field: site}
}

func BroadcastRecv(err error) *AppError {
	return &AppError{Err: ErrBroadcastRecv, Message: fmt.Sprintf("broadcast closed: %s", err)}
}

func SignalSend() *AppError {
	return &AppError{Err: ErrSignalSend, Message: "signal channel closed"}
}
