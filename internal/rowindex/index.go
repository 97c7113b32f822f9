// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package rowindex implements the ordered row index backing a table: a dense,
// sorted array of row keys with parallel arrays of payloads and owners.
//
// Lookups are binary searches. Insertion and removal shift the tail of the
// arrays by one slot, which is linear but cheap for the table sizes an agent
// serves. Index is not safe for concurrent use; the owning table serializes
// access.
package rowindex

import (
	"fmt"
	"sort"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/mibtable/internal/base"
	"github.com/cockroachdb/mibtable/internal/invariants"
)

// minGrowth is the minimum number of slots added when the backing arrays are
// exhausted. Beyond that the capacity doubles.
const minGrowth = 16

// Index is a sorted set of row keys, each associated with a payload and an
// optional owner.
//
// The three backing arrays always have the same length (the capacity) and the
// first n slots of each are the logically valid entries. Slots at or beyond n
// are kept zeroed so that removed payloads can be collected.
type Index[V any] struct {
	keys     []base.RowKey
	payloads []V
	owners   []string
	n        int
}

// Init initializes the index with room for capacity entries.
func (x *Index[V]) Init(capacity int) {
	*x = Index[V]{}
	if capacity > 0 {
		x.keys = make([]base.RowKey, capacity)
		x.payloads = make([]V, capacity)
		x.owners = make([]string, capacity)
	}
}

// Len returns the number of entries in the index.
func (x *Index[V]) Len() int {
	return x.n
}

// Cap returns the number of entries the index can hold before growing.
func (x *Index[V]) Cap() int {
	return len(x.keys)
}

// search returns the smallest position i in [0, n] such that keys[i] >= key.
func (x *Index[V]) search(key base.RowKey) int {
	return sort.Search(x.n, func(i int) bool {
		return x.keys[i].Compare(key) >= 0
	})
}

// Find returns the position of key, or false if key is absent.
func (x *Index[V]) Find(key base.RowKey) (int, bool) {
	i := x.search(key)
	if i < x.n && x.keys[i].Equal(key) {
		return i, true
	}
	return -1, false
}

// InsertionPoint returns the position at which key would be inserted to keep
// the index ordered. If key is already present and failOnDuplicate is true an
// ErrDuplicateKey error is returned; if it is present and failOnDuplicate is
// false the position after the existing entry is returned, which is where a
// "next" query for key would start.
func (x *Index[V]) InsertionPoint(key base.RowKey, failOnDuplicate bool) (int, error) {
	i := x.search(key)
	if i < x.n && x.keys[i].Equal(key) {
		if failOnDuplicate {
			return -1, base.DuplicateKeyErrorf("row %s already exists", key)
		}
		return i + 1, nil
	}
	return i, nil
}

// InsertAt inserts an entry at pos, shifting the entries at and after pos one
// slot to the right. The caller must have obtained pos from InsertionPoint
// without intervening mutation.
func (x *Index[V]) InsertAt(pos int, key base.RowKey, payload V, owner string) {
	invariants.CheckBounds(pos, x.n+1)
	if x.n == len(x.keys) {
		x.grow()
	}
	if pos < x.n {
		copy(x.keys[pos+1:x.n+1], x.keys[pos:x.n])
		copy(x.payloads[pos+1:x.n+1], x.payloads[pos:x.n])
		copy(x.owners[pos+1:x.n+1], x.owners[pos:x.n])
	}
	x.keys[pos] = key
	x.payloads[pos] = payload
	x.owners[pos] = owner
	x.n++
	if invariants.Enabled {
		x.checkNeighbors(pos)
		if invariants.Sometimes(10) {
			if err := x.CheckOrdering(); err != nil {
				panic(err)
			}
		}
	}
}

// RemoveAt removes the entry at pos, shifting the following entries one slot
// to the left, and returns the removed entry.
func (x *Index[V]) RemoveAt(pos int) (key base.RowKey, payload V, owner string) {
	invariants.CheckBounds(pos, x.n)
	key, payload, owner = x.keys[pos], x.payloads[pos], x.owners[pos]
	copy(x.keys[pos:x.n-1], x.keys[pos+1:x.n])
	copy(x.payloads[pos:x.n-1], x.payloads[pos+1:x.n])
	copy(x.owners[pos:x.n-1], x.owners[pos+1:x.n])
	x.n--
	var zero V
	x.keys[x.n] = base.RowKey{}
	x.payloads[x.n] = zero
	x.owners[x.n] = ""
	return key, payload, owner
}

// NextAfter returns the position of the smallest key strictly greater than
// key, or false if there is none.
func (x *Index[V]) NextAfter(key base.RowKey) (int, bool) {
	i, _ := x.InsertionPoint(key, false /* failOnDuplicate */)
	if i >= x.n {
		return -1, false
	}
	return i, true
}

// First returns the position of the smallest key, or false if the index is
// empty.
func (x *Index[V]) First() (int, bool) {
	if x.n == 0 {
		return -1, false
	}
	return 0, true
}

// At returns the entry at pos.
func (x *Index[V]) At(pos int) (key base.RowKey, payload V, owner string) {
	invariants.CheckBounds(pos, x.n)
	return x.keys[pos], x.payloads[pos], x.owners[pos]
}

// KeyAt returns the key at pos.
func (x *Index[V]) KeyAt(pos int) base.RowKey {
	invariants.CheckBounds(pos, x.n)
	return x.keys[pos]
}

// Reset removes all entries, retaining the backing arrays.
func (x *Index[V]) Reset() {
	clear(x.keys[:x.n])
	clear(x.payloads[:x.n])
	clear(x.owners[:x.n])
	x.n = 0
}

// CheckOrdering verifies that the keys are strictly ascending and that the
// slots beyond the logical length are empty.
func (x *Index[V]) CheckOrdering() error {
	if len(x.payloads) != len(x.keys) || len(x.owners) != len(x.keys) {
		return errors.AssertionFailedf("parallel arrays diverged: %d keys, %d payloads, %d owners",
			len(x.keys), len(x.payloads), len(x.owners))
	}
	if x.n > len(x.keys) {
		return errors.AssertionFailedf("length %d exceeds capacity %d", x.n, len(x.keys))
	}
	for i := 1; i < x.n; i++ {
		if x.keys[i-1].Compare(x.keys[i]) >= 0 {
			return errors.AssertionFailedf("keys out of order at %d: %s >= %s", i, x.keys[i-1], x.keys[i])
		}
	}
	for i := x.n; i < len(x.keys); i++ {
		if !x.keys[i].Empty() || x.owners[i] != "" {
			return errors.AssertionFailedf("slot %d beyond length %d is not empty", i, x.n)
		}
	}
	return nil
}

// String returns the keys of the index, one per line, with their owners.
func (x *Index[V]) String() string {
	var buf strings.Builder
	for i := 0; i < x.n; i++ {
		fmt.Fprintf(&buf, "%d: %s", i, x.keys[i])
		if x.owners[i] != "" {
			fmt.Fprintf(&buf, " owner=%s", x.owners[i])
		}
		buf.WriteString("\n")
	}
	return buf.String()
}

func (x *Index[V]) grow() {
	c := max(2*len(x.keys), len(x.keys)+minGrowth)
	keys := make([]base.RowKey, c)
	payloads := make([]V, c)
	owners := make([]string, c)
	copy(keys, x.keys[:x.n])
	copy(payloads, x.payloads[:x.n])
	copy(owners, x.owners[:x.n])
	x.keys, x.payloads, x.owners = keys, payloads, owners
}

func (x *Index[V]) checkNeighbors(pos int) {
	if pos > 0 && x.keys[pos-1].Compare(x.keys[pos]) >= 0 {
		panic(errors.AssertionFailedf("inserted %s at %d after %s", x.keys[pos], pos, x.keys[pos-1]))
	}
	if pos+1 < x.n && x.keys[pos].Compare(x.keys[pos+1]) >= 0 {
		panic(errors.AssertionFailedf("inserted %s at %d before %s", x.keys[pos], pos, x.keys[pos+1]))
	}
}
