// Copyright 2011 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package base

import "github.com/cockroachdb/errors"

var (
	// ErrNoSuchInstance means a row is absent and may not be created by the
	// request that addressed it.
	ErrNoSuchInstance = errors.New("mibtable: no such instance")
	// ErrNoSuchObject means a column or row key is malformed or unknown to the
	// table definition.
	ErrNoSuchObject = errors.New("mibtable: no such object")
	// ErrNoAccess means the operation is disallowed by policy, e.g. implicit
	// row creation or creation while it is administratively disabled.
	ErrNoAccess = errors.New("mibtable: no access")
	// ErrInconsistentValue means a row status value is invalid or the requested
	// transition is illegal in the row's current state.
	ErrInconsistentValue = errors.New("mibtable: inconsistent value")
	// ErrDuplicateKey means an insertion addressed a key that is already present.
	ErrDuplicateKey = errors.New("mibtable: duplicate key")
	// ErrNotFound means a removal or unsubscription addressed something absent.
	ErrNotFound = errors.New("mibtable: not found")
)

// NoSuchInstanceErrorf formats an error marked with ErrNoSuchInstance.
func NoSuchInstanceErrorf(format string, args ...interface{}) error {
	return errors.Mark(errors.NewWithDepthf(1, format, args...), ErrNoSuchInstance)
}

// NoSuchObjectErrorf formats an error marked with ErrNoSuchObject.
func NoSuchObjectErrorf(format string, args ...interface{}) error {
	return errors.Mark(errors.NewWithDepthf(1, format, args...), ErrNoSuchObject)
}

// NoAccessErrorf formats an error marked with ErrNoAccess.
func NoAccessErrorf(format string, args ...interface{}) error {
	return errors.Mark(errors.NewWithDepthf(1, format, args...), ErrNoAccess)
}

// InconsistentValueErrorf formats an error marked with ErrInconsistentValue.
func InconsistentValueErrorf(format string, args ...interface{}) error {
	return errors.Mark(errors.NewWithDepthf(1, format, args...), ErrInconsistentValue)
}

// DuplicateKeyErrorf formats an error marked with ErrDuplicateKey.
func DuplicateKeyErrorf(format string, args ...interface{}) error {
	return errors.Mark(errors.NewWithDepthf(1, format, args...), ErrDuplicateKey)
}

// NotFoundErrorf formats an error marked with ErrNotFound.
func NotFoundErrorf(format string, args ...interface{}) error {
	return errors.Mark(errors.NewWithDepthf(1, format, args...), ErrNotFound)
}
