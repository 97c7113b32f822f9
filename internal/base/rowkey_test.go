// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package base

import (
	"math"
	"math/rand/v2"
	"slices"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/redact"
	"github.com/stretchr/testify/require"
)

func TestRowKeyRoundTrip(t *testing.T) {
	for _, arcs := range [][]uint32{
		{0},
		{1, 3, 6},
		{math.MaxUint32},
		{0, 0, 0},
		{255, 256, 65536, 1 << 24},
	} {
		k := MakeRowKey(arcs...)
		require.Equal(t, len(arcs), k.Len())
		require.Equal(t, arcs, k.Arcs())
		p, err := ParseRowKey(k.String())
		require.NoError(t, err)
		require.True(t, k.Equal(p))
		require.Equal(t, k, p)
	}
}

func TestRowKeyParse(t *testing.T) {
	k, err := ParseRowKey(".1.2")
	require.NoError(t, err)
	require.Equal(t, MakeRowKey(1, 2), k)

	k, err = ParseRowKey("")
	require.NoError(t, err)
	require.True(t, k.Empty())
	require.Equal(t, "<empty>", k.String())

	for _, s := range []string{"1..2", "a", "1.-1", "4294967296", "1.2."} {
		_, err := ParseRowKey(s)
		require.Error(t, err, s)
		require.True(t, errors.Is(err, ErrNoSuchObject), s)
	}
}

func TestRowKeyCompare(t *testing.T) {
	testCases := []struct {
		a, b []uint32
		want int
	}{
		{[]uint32{1}, []uint32{1}, 0},
		{[]uint32{1}, []uint32{2}, -1},
		{[]uint32{1}, []uint32{1, 0}, -1},
		{[]uint32{1, 5}, []uint32{2}, -1},
		{[]uint32{256}, []uint32{255, 9}, +1},
		{[]uint32{}, []uint32{0}, -1},
		{[]uint32{math.MaxUint32}, []uint32{1, 1}, +1},
	}
	for _, tc := range testCases {
		a, b := MakeRowKey(tc.a...), MakeRowKey(tc.b...)
		require.Equal(t, tc.want, a.Compare(b), "%s vs %s", a, b)
		require.Equal(t, -tc.want, b.Compare(a), "%s vs %s", b, a)
	}
}

// TestRowKeyOrderMatchesTuples checks that the packed encoding orders keys the
// same way a lexicographic comparison of the sub-identifiers does.
func TestRowKeyOrderMatchesTuples(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	randArcs := func() []uint32 {
		arcs := make([]uint32, rng.IntN(4))
		for i := range arcs {
			if rng.IntN(2) == 0 {
				arcs[i] = uint32(rng.IntN(4))
			} else {
				arcs[i] = rng.Uint32()
			}
		}
		return arcs
	}
	for i := 0; i < 1000; i++ {
		a, b := randArcs(), randArcs()
		require.Equal(t, slices.Compare(a, b), MakeRowKey(a...).Compare(MakeRowKey(b...)), "%v vs %v", a, b)
	}
}

func TestRowKeyRedaction(t *testing.T) {
	k := MakeRowKey(10, 20)
	require.Equal(t, "10.20", string(redact.Sprint(k).Redact()))
}
