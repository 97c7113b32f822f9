// Copyright 2018 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package mibtable

import (
	"github.com/cockroachdb/mibtable/internal/base"
	"github.com/cockroachdb/mibtable/rowstatus"
)

// RowKey exports the base.RowKey type.
type RowKey = base.RowKey

// MakeRowKey constructs a row key from its sub-identifiers.
func MakeRowKey(arcs ...uint32) RowKey {
	return base.MakeRowKey(arcs...)
}

// ParseRowKey parses a dotted row key such as "1.3.6".
func ParseRowKey(s string) (RowKey, error) {
	return base.ParseRowKey(s)
}

// Logger exports the base.Logger type.
type Logger = base.Logger

// DefaultLogger exports the base.DefaultLogger type.
type DefaultLogger = base.DefaultLogger

// NoopLogger exports the base.NoopLogger type.
type NoopLogger = base.NoopLogger

// ErrorKind exports the base.Kind type.
type ErrorKind = base.Kind

// KindOf returns the kind of an error returned by a Table.
func KindOf(err error) ErrorKind {
	return base.KindOf(err)
}

// Error kinds, as returned by KindOf.
const (
	KindNone              = base.KindNone
	KindNoSuchInstance    = base.KindNoSuchInstance
	KindNoSuchObject      = base.KindNoSuchObject
	KindNoAccess          = base.KindNoAccess
	KindInconsistentValue = base.KindInconsistentValue
	KindDuplicateKey      = base.KindDuplicateKey
	KindNotFound          = base.KindNotFound
	KindOther             = base.KindOther
)

// Error marks. Test for them with errors.Is from github.com/cockroachdb/errors,
// or with KindOf; the marks are not visible to the standard library's
// errors.Is.
var (
	ErrNoSuchInstance    = base.ErrNoSuchInstance
	ErrNoSuchObject      = base.ErrNoSuchObject
	ErrNoAccess          = base.ErrNoAccess
	ErrInconsistentValue = base.ErrInconsistentValue
	ErrDuplicateKey      = base.ErrDuplicateKey
	ErrNotFound          = base.ErrNotFound
)

// RowStatus exports the rowstatus.State type.
type RowStatus = rowstatus.State
