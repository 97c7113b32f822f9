// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package base

import (
	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/redact"
)

// Kind classifies an error returned by the table engine.
type Kind int8

const (
	// KindNone is the kind of a nil error.
	KindNone Kind = iota
	KindNoSuchInstance
	KindNoSuchObject
	KindNoAccess
	KindInconsistentValue
	KindDuplicateKey
	KindNotFound
	// KindOther is an error produced by a collaborator hook that carries none
	// of the engine's marks (a factory or validation veto).
	KindOther
)

var kindNames = [...]string{
	KindNone:              "none",
	KindNoSuchInstance:    "noSuchInstance",
	KindNoSuchObject:      "noSuchObject",
	KindNoAccess:          "noAccess",
	KindInconsistentValue: "inconsistentValue",
	KindDuplicateKey:      "duplicateKey",
	KindNotFound:          "notFound",
	KindOther:             "other",
}

// String implements fmt.Stringer.
func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// SafeFormat implements redact.SafeFormatter.
func (k Kind) SafeFormat(w redact.SafePrinter, _ rune) {
	w.SafeString(redact.SafeString(k.String()))
}

// KindOf returns the kind of err.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrNoSuchInstance):
		return KindNoSuchInstance
	case errors.Is(err, ErrNoSuchObject):
		return KindNoSuchObject
	case errors.Is(err, ErrNoAccess):
		return KindNoAccess
	case errors.Is(err, ErrInconsistentValue):
		return KindInconsistentValue
	case errors.Is(err, ErrDuplicateKey):
		return KindDuplicateKey
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	default:
		return KindOther
	}
}

// Protocol error-status values (RFC 3416 section 4.1.2.1).
const (
	StatusNoError           uint8 = 0x00
	StatusGenErr            uint8 = 0x05
	StatusNoAccess          uint8 = 0x06
	StatusNoCreation        uint8 = 0x0B
	StatusInconsistentValue uint8 = 0x0C
)

// Varbind exception tags (RFC 3416 section 3), reported in place of a value
// rather than as an error-status.
const (
	ExceptionNoSuchObject   uint8 = 0x80
	ExceptionNoSuchInstance uint8 = 0x81
	ExceptionEndOfMibView   uint8 = 0x82
)

// Status translates the kind into the protocol's error-status. When exception
// is true, code is a varbind exception tag instead.
func (k Kind) Status() (code uint8, exception bool) {
	switch k {
	case KindNone:
		return StatusNoError, false
	case KindNoSuchInstance:
		return ExceptionNoSuchInstance, true
	case KindNoSuchObject:
		return ExceptionNoSuchObject, true
	case KindNotFound:
		// A walk that runs off the end of the table.
		return ExceptionEndOfMibView, true
	case KindNoAccess:
		return StatusNoAccess, false
	case KindInconsistentValue:
		return StatusInconsistentValue, false
	case KindDuplicateKey:
		// Two transactions raced to create the same row; the loser reports the
		// row as not creatable.
		return StatusNoCreation, false
	default:
		return StatusGenErr, false
	}
}
