// Package changemgr is the Change Manager: a process-wide registry of per-database
// publisher tasks, per §4.D of the specification.
package changemgr

import (
	"github.com/crrserver/core/internal/changeset"
)

// Kind discriminates a Message's payload.
type Kind int

const (
	KindChange Kind = iota
	KindMigration
	KindError
)

// Message is one broadcast unit: either a committed change, a schema migration, or a
// terminal error (channel closure, broadcast failure).
type Message struct {
	Kind      Kind
	Change    changeset.Changeset
	Migration changeset.Migration
	Err       error
}

func changeMessage(cs changeset.Changeset) Message   { return Message{Kind: KindChange, Change: cs} }
func migrationMessage(m changeset.Migration) Message { return Message{Kind: KindMigration, Migration: m} }
func errorMessage(err error) Message                 { return Message{Kind: KindError, Err: err} }
