// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package rowstatus defines the row lifecycle states driven by a table's
// control column (the RowStatus textual convention of RFC 2579) and the codec
// that converts them to and from protocol values.
package rowstatus

import (
	"math"

	"github.com/cockroachdb/mibtable/internal/base"
	"github.com/cockroachdb/redact"
)

// State is the decoded intended action, or resulting state, of a row during a
// SET transaction. The numeric values of the defined states are their RFC 2579
// encodings; Unspecified means the request carried no control value.
type State int8

const (
	Unspecified   State = 0
	Active        State = 1
	NotInService  State = 2
	NotReady      State = 3
	CreateAndGo   State = 4
	CreateAndWait State = 5
	Destroy       State = 6
)

var stateNames = [...]string{
	Unspecified:   "unspecified",
	Active:        "active",
	NotInService:  "notInService",
	NotReady:      "notReady",
	CreateAndGo:   "createAndGo",
	CreateAndWait: "createAndWait",
	Destroy:       "destroy",
}

// String implements fmt.Stringer.
func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "invalid"
}

// SafeFormat implements redact.SafeFormatter.
func (s State) SafeFormat(w redact.SafePrinter, _ rune) {
	w.SafeString(redact.SafeString(s.String()))
}

// Valid returns true if s is one of the defined states.
func (s State) Valid() bool {
	return s >= Unspecified && s <= Destroy
}

// IsCreate returns true for the two creating actions.
func (s State) IsCreate() bool {
	return s == CreateAndGo || s == CreateAndWait
}

// ParseState returns the state with the given name, as produced by String.
func ParseState(name string) (State, error) {
	for i, n := range stateNames {
		if n == name {
			return State(i), nil
		}
	}
	return Unspecified, base.InconsistentValueErrorf("unknown row status %q", redact.Safe(name))
}

// Codec converts between protocol control values and states.
type Codec interface {
	// Decode returns the state encoded by raw, failing with an
	// ErrInconsistentValue error if raw does not encode a defined state.
	Decode(raw any) (State, error)
	// Encode returns the protocol value for s.
	Encode(s State) any
}

// IntegerCodec is the RFC 2579 encoding: states are carried as integers 1
// through 6. Decode accepts any Go integer type; Encode produces an int32.
type IntegerCodec struct{}

var _ Codec = IntegerCodec{}

// Decode implements Codec.
func (IntegerCodec) Decode(raw any) (State, error) {
	var v int64
	switch x := raw.(type) {
	case int:
		v = int64(x)
	case int8:
		v = int64(x)
	case int16:
		v = int64(x)
	case int32:
		v = int64(x)
	case int64:
		v = x
	case uint:
		v = clampUint(uint64(x))
	case uint8:
		v = int64(x)
	case uint16:
		v = int64(x)
	case uint32:
		v = int64(x)
	case uint64:
		v = clampUint(x)
	case State:
		v = int64(x)
	default:
		return Unspecified, base.InconsistentValueErrorf("row status of type %T is not an integer", raw)
	}
	if v < int64(Active) || v > int64(Destroy) {
		return Unspecified, base.InconsistentValueErrorf("row status value %d out of range", redact.Safe(v))
	}
	return State(v), nil
}

// Encode implements Codec.
func (IntegerCodec) Encode(s State) any {
	return int32(s)
}

func clampUint(v uint64) int64 {
	if v > math.MaxInt64 {
		return math.MaxInt64
	}
	return int64(v)
}

// Resolve interprets the control value of a SET sub-request. Without a control
// value, a new row defaults to CreateAndGo and an existing row to Unspecified.
// With one, it is decoded by codec; a decoding failure is an
// ErrInconsistentValue error.
func Resolve(isNewRow, controlPresent bool, raw any, codec Codec) (State, error) {
	if !controlPresent {
		if isNewRow {
			return CreateAndGo, nil
		}
		return Unspecified, nil
	}
	s, err := codec.Decode(raw)
	if err != nil {
		return Unspecified, err
	}
	return s, nil
}
