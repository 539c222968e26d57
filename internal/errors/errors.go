// Package errors is the error vocabulary of the converter.
//
// It re-exports github.com/cockroachdb/errors and adds the three error kinds the
// pipeline reacts to:
//
//   - ErrConfig: a pipeline or option is misconfigured. Fatal, raised before any I/O.
//   - ErrDataConsistency: the stored telemetry contradicts itself (missing snapshot,
//     key mismatch between two vectors, zero-length match). Aborts the current match only.
//   - ErrTransient: the storage connection was interrupted. Storage retries once.
//
// Kinds are attached with Mark, so wrapping with extra context keeps them detectable:
//
//	err = errors.Wrapf(err, "extract match %d", id)
//	if errors.IsDataConsistency(err) { ... }
package errors

import (
	"fmt"

	crdb "github.com/cockroachdb/errors"
)

// Core error creation and wrapping
var (
	New         = crdb.New
	Newf        = crdb.Newf
	Wrap        = crdb.Wrap
	Wrapf       = crdb.Wrapf
	WithStack   = crdb.WithStack
	WithMessage = crdb.WithMessage
	Mark        = crdb.Mark
)

// User-facing messages and details
var (
	WithHint       = crdb.WithHint
	WithHintf      = crdb.WithHintf
	WithDetail     = crdb.WithDetail
	WithDetailf    = crdb.WithDetailf
	GetAllHints    = crdb.GetAllHints
	FlattenHints   = crdb.FlattenHints
	FlattenDetails = crdb.FlattenDetails
)

// Error inspection
var (
	Is    = crdb.Is
	IsAny = crdb.IsAny
	As    = crdb.As
)

// Error kinds.
var (
	ErrConfig          = New("configuration error")
	ErrDataConsistency = New("data consistency error")
	ErrTransient       = New("transient storage error")
)

// Config builds a configuration error.
func Config(format string, args ...any) error {
	return Mark(Newf(format, args...), ErrConfig)
}

// DataConsistency builds a data-consistency error carrying the coordinates an
// operator needs to clean the upstream store. Pass key="" when no key is involved.
func DataConsistency(matchID int64, tick int, key, format string, args ...any) error {
	err := Newf(format, args...)
	detail := fmt.Sprintf("match_id=%d tick=%d", matchID, tick)
	if key != "" {
		detail += " key=" + key
	}
	return Mark(WithDetail(err, detail), ErrDataConsistency)
}

// Inconsistent builds a data-consistency error for code that does not know
// which match it is working on. Callers add the coordinates with WithDetailf.
func Inconsistent(key, format string, args ...any) error {
	err := Newf(format, args...)
	if key != "" {
		err = WithDetail(err, "key="+key)
	}
	return Mark(err, ErrDataConsistency)
}

// Transient marks err as a recoverable connection failure.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return Mark(err, ErrTransient)
}

func IsConfig(err error) bool          { return Is(err, ErrConfig) }
func IsDataConsistency(err error) bool { return Is(err, ErrDataConsistency) }
func IsTransient(err error) bool       { return Is(err, ErrTransient) }
