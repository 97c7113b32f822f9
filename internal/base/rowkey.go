// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package base

import (
	"strconv"
	"strings"

	"github.com/cockroachdb/mibtable/internal/invariants"
	"github.com/cockroachdb/redact"
)

// arcWidth is the encoded width of a single sub-identifier.
const arcWidth = 4

// RowKey is the immutable index of a table row: a tuple of sub-identifiers.
//
// The tuple is stored as a string of big-endian, fixed-width arcs. Byte-wise
// comparison of that encoding is exactly the lexicographic order of the tuples
// (a proper prefix sorts before its extensions), so keys compare with a single
// string comparison and can be used directly as map keys.
type RowKey struct {
	enc string
}

// MakeRowKey returns the row key made of the given sub-identifiers.
func MakeRowKey(arcs ...uint32) RowKey {
	if len(arcs) == 0 {
		return RowKey{}
	}
	buf := make([]byte, len(arcs)*arcWidth)
	for i, a := range arcs {
		j := i * arcWidth
		buf[j] = byte(a >> 24)
		buf[j+1] = byte(a >> 16)
		buf[j+2] = byte(a >> 8)
		buf[j+3] = byte(a)
	}
	return RowKey{enc: string(buf)}
}

// ParseRowKey parses the dotted form produced by RowKey.String, e.g. "1.3.6".
// A single leading dot is tolerated.
func ParseRowKey(s string) (RowKey, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), ".")
	if s == "" {
		return RowKey{}, nil
	}
	parts := strings.Split(s, ".")
	arcs := make([]uint32, len(parts))
	for i, p := range parts {
		v, err := strconv.ParseUint(p, 10, 32)
		if err != nil {
			return RowKey{}, NoSuchObjectErrorf("invalid row key %q", redact.Safe(s))
		}
		arcs[i] = uint32(v)
	}
	return MakeRowKey(arcs...), nil
}

// Len returns the number of sub-identifiers in the key.
func (k RowKey) Len() int {
	return len(k.enc) / arcWidth
}

// Empty returns true if the key has no sub-identifiers.
func (k RowKey) Empty() bool {
	return len(k.enc) == 0
}

// At returns the i-th sub-identifier.
func (k RowKey) At(i int) uint32 {
	invariants.CheckBounds(i, k.Len())
	j := i * arcWidth
	return uint32(k.enc[j])<<24 | uint32(k.enc[j+1])<<16 | uint32(k.enc[j+2])<<8 | uint32(k.enc[j+3])
}

// Arcs returns a copy of the sub-identifiers.
func (k RowKey) Arcs() []uint32 {
	arcs := make([]uint32, k.Len())
	for i := range arcs {
		arcs[i] = k.At(i)
	}
	return arcs
}

// Compare returns -1, 0, or +1 depending on whether k is less than, equal to,
// or greater than other.
func (k RowKey) Compare(other RowKey) int {
	return strings.Compare(k.enc, other.enc)
}

// Equal returns true if both keys have the same sub-identifiers.
func (k RowKey) Equal(other RowKey) bool {
	return k.enc == other.enc
}

// String implements fmt.Stringer.
func (k RowKey) String() string {
	return redact.StringWithoutMarkers(k)
}

// SafeFormat implements redact.SafeFormatter. Row keys are numeric and never
// carry user data, so the whole key is safe.
func (k RowKey) SafeFormat(w redact.SafePrinter, _ rune) {
	if k.Empty() {
		w.SafeString("<empty>")
		return
	}
	for i, n := 0, k.Len(); i < n; i++ {
		if i > 0 {
			w.SafeString(".")
		}
		w.SafeUint(redact.SafeUint(k.At(i)))
	}
}

// CompareRowKeys is a comparison function over row keys, suitable for
// slices.SortFunc and friends.
func CompareRowKeys(a, b RowKey) int {
	return a.Compare(b)
}
