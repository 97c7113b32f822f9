// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package testutils

import "github.com/cockroachdb/mibtable/internal/base"

// CheckErr can be used to simplify test code that expects no errors.
//
//	v := testutils.CheckErr(someFunc())
func CheckErr[V any](v V, err error) V {
	if err != nil {
		panic(err)
	}
	return v
}

// Key parses a dotted row key, panicking on malformed input.
func Key(s string) base.RowKey {
	return CheckErr(base.ParseRowKey(s))
}

