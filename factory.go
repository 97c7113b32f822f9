// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package mibtable

import "github.com/cockroachdb/mibtable/internal/base"

// EntryFactory materializes and tears down the resources behind table rows.
//
// Create is invoked while checking a creating SET, before the row exists in
// the index and without the table lock held. OnAdded and OnRemoved are
// invoked with the table lock held, immediately after the index has been
// changed, and must not call back into the table.
type EntryFactory[V any] interface {
	// Create builds the payload of a row about to be created by the row status
	// lifecycle. depth is the number of columns the creating request supplies
	// for the row. Returning an error vetoes the creation.
	Create(key RowKey, depth int, reqCtx any) (V, error)
	// OnAdded is called after the row has been inserted at pos. Returning an
	// error rolls the insertion back and fails the operation.
	OnAdded(pos int, key RowKey, owner string, payload V) error
	// OnRemoved is called after the row has been removed from pos. Errors are
	// logged; the removal has already happened.
	OnRemoved(pos int, key RowKey, owner string, payload V) error
}

// EntryDiscarder is implemented by factories that want the payloads of
// creations that were checked but never committed handed back to them.
type EntryDiscarder[V any] interface {
	Discard(key RowKey, payload V)
}

// NopFactory accepts every structural change and refuses to create rows
// through the row status lifecycle. It is the factory of tables whose rows are
// only ever added with AddRow.
type NopFactory[V any] struct{}

var _ EntryFactory[int] = NopFactory[int]{}

// Create implements EntryFactory.
func (NopFactory[V]) Create(key RowKey, depth int, reqCtx any) (V, error) {
	var zero V
	return zero, base.NoAccessErrorf("row %s cannot be created remotely", key)
}

// OnAdded implements EntryFactory.
func (NopFactory[V]) OnAdded(int, RowKey, string, V) error { return nil }

// OnRemoved implements EntryFactory.
func (NopFactory[V]) OnRemoved(int, RowKey, string, V) error { return nil }

// FactoryFuncs adapts plain functions to EntryFactory. Nil functions behave as
// in NopFactory.
type FactoryFuncs[V any] struct {
	CreateFn    func(key RowKey, depth int, reqCtx any) (V, error)
	OnAddedFn   func(pos int, key RowKey, owner string, payload V) error
	OnRemovedFn func(pos int, key RowKey, owner string, payload V) error
}

var _ EntryFactory[int] = FactoryFuncs[int]{}

// Create implements EntryFactory.
func (f FactoryFuncs[V]) Create(key RowKey, depth int, reqCtx any) (V, error) {
	if f.CreateFn == nil {
		return NopFactory[V]{}.Create(key, depth, reqCtx)
	}
	return f.CreateFn(key, depth, reqCtx)
}

// OnAdded implements EntryFactory.
func (f FactoryFuncs[V]) OnAdded(pos int, key RowKey, owner string, payload V) error {
	if f.OnAddedFn == nil {
		return nil
	}
	return f.OnAddedFn(pos, key, owner, payload)
}

// OnRemoved implements EntryFactory.
func (f FactoryFuncs[V]) OnRemoved(pos int, key RowKey, owner string, payload V) error {
	if f.OnRemovedFn == nil {
		return nil
	}
	return f.OnRemovedFn(pos, key, owner, payload)
}
