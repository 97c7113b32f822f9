// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package base defines fundamental types used across mibtable: row keys, the
// error kinds surfaced to protocol dispatchers, and the logger interface.
//
// # Row keys
//
// A [RowKey] is the index suffix of a conceptual table row: an ordered tuple of
// unsigned 32-bit sub-identifiers. Keys are ordered lexicographically by
// sub-identifier with a proper prefix ordering before any of its extensions,
// which is the same order a management protocol walk visits instance
// identifiers in.
//
// # Error kinds
//
// Every failure the table engine reports carries one of the marks
// [ErrNoSuchInstance], [ErrNoSuchObject], [ErrNoAccess],
// [ErrInconsistentValue], [ErrDuplicateKey] or [ErrNotFound]. Dispatchers test
// for a kind with errors.Is from github.com/cockroachdb/errors (the standard
// library's errors.Is does not see marks) and translate it into a protocol
// status with [KindOf] and [Kind.Status]. Errors returned by collaborator hooks are passed
// through (wrapped) and keep whatever marks they already had.
package base
