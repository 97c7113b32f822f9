// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package mibtable

import (
	"cmp"
	"slices"

	"github.com/cockroachdb/crlib/crtime"
	"github.com/cockroachdb/mibtable/internal/base"
	"github.com/cockroachdb/redact"
)

// ProtocolVersion is the management protocol version negotiated for a
// request. Some columns are not readable by older versions.
type ProtocolVersion int8

const (
	V1 ProtocolVersion = iota
	V2c
	V3
)

// String implements fmt.Stringer.
func (v ProtocolVersion) String() string {
	switch v {
	case V1:
		return "v1"
	case V2c:
		return "v2c"
	case V3:
		return "v3"
	default:
		return "unknown"
	}
}

// Phase is the phase of the request a sub-request belongs to.
type Phase int8

const (
	PhaseGet Phase = iota
	PhaseCheck
	PhaseSet
)

// String implements fmt.Stringer.
func (p Phase) String() string {
	switch p {
	case PhaseGet:
		return "get"
	case PhaseCheck:
		return "check"
	case PhaseSet:
		return "set"
	default:
		return "unknown"
	}
}

// SafeFormat implements redact.SafeFormatter.
func (p Phase) SafeFormat(w redact.SafePrinter, _ rune) {
	w.SafeString(redact.SafeString(p.String()))
}

// ColumnValidator is supplied by the table definition to check column
// addressing.
type ColumnValidator interface {
	// ValidateColumn fails with an ErrNoSuchObject or ErrNoSuchInstance error
	// if column is not a valid column of the row.
	ValidateColumn(key RowKey, column uint32, reqCtx any) error
	// IsColumnReadable reports whether the column is visible to a walk made
	// with the given protocol version.
	IsColumnReadable(key RowKey, column uint32, reqCtx any, version ProtocolVersion) bool
}

type columnSet []uint32

// DefaultColumns returns a validator accepting the given columns, every one of
// them readable. With no columns, every non-zero column is accepted.
func DefaultColumns(columns []uint32) ColumnValidator {
	cols := slices.Clone(columns)
	slices.Sort(cols)
	return columnSet(slices.Compact(cols))
}

func (s columnSet) ValidateColumn(key RowKey, column uint32, _ any) error {
	if column == 0 {
		return base.NoSuchObjectErrorf("row %s: column 0 is not valid", key)
	}
	if len(s) == 0 {
		return nil
	}
	if _, ok := slices.BinarySearch(s, column); !ok {
		return base.NoSuchObjectErrorf("row %s: column %d is not defined", key, redact.Safe(column))
	}
	return nil
}

func (s columnSet) IsColumnReadable(RowKey, uint32, any, ProtocolVersion) bool {
	return true
}

// RouteRequest addresses one column of one row.
type RouteRequest struct {
	Key    RowKey
	Column uint32
	Phase  Phase
	// AllowCreation is set when the request may create the row if it is
	// absent. It is ignored in the GET phase.
	AllowCreation bool
	Context       any
}

// Route is the result of routing a sub-request.
type Route struct {
	Key    RowKey
	Column uint32
	Phase  Phase
	// IsNewRow is set if the row did not exist when the request was routed.
	IsNewRow bool
	// Lifecycle is set on CHECK and SET sub-requests that carry row status
	// semantics: the control column itself, or with RouteRow any column of a
	// row whose control column is addressed. The dispatcher applies the
	// control column of such a row last.
	Lifecycle bool
}

// RouteColumn determines whether the addressed row exists and validates the
// column. An absent row fails with an ErrNoSuchInstance error unless the
// request may create it.
func (t *Table[V]) RouteColumn(req RouteRequest) (Route, error) {
	start := crtime.NowMono()
	defer func() { t.opts.Instruments.routed(start.Elapsed()) }()

	isNew, err := t.routeRow(req.Key, req.Phase, req.AllowCreation)
	if err != nil {
		return Route{}, err
	}
	if err := t.hooks.Columns.ValidateColumn(req.Key, req.Column, req.Context); err != nil {
		return Route{}, err
	}
	return Route{
		Key:       req.Key,
		Column:    req.Column,
		Phase:     req.Phase,
		IsNewRow:  isNew,
		Lifecycle: req.Phase != PhaseGet && t.isControlColumn(req.Column),
	}, nil
}

// RouteRow routes every column a request addresses in one row. The routes are
// returned in column order with the control column, if present, last; in that
// case every route of a CHECK or SET is flagged Lifecycle. The length of
// columns is the depth to pass to BeginAction.
func (t *Table[V]) RouteRow(
	key RowKey, columns []uint32, phase Phase, allowCreation bool, reqCtx any,
) ([]Route, error) {
	start := crtime.NowMono()
	defer func() { t.opts.Instruments.routed(start.Elapsed()) }()

	isNew, err := t.routeRow(key, phase, allowCreation)
	if err != nil {
		return nil, err
	}
	cols := slices.Clone(columns)
	slices.SortStableFunc(cols, func(a, b uint32) int {
		ac, bc := t.isControlColumn(a), t.isControlColumn(b)
		switch {
		case ac == bc:
			return cmp.Compare(a, b)
		case ac:
			return 1
		default:
			return -1
		}
	})
	lifecycle := phase != PhaseGet && slices.ContainsFunc(cols, t.isControlColumn)
	routes := make([]Route, 0, len(cols))
	for _, c := range cols {
		if err := t.hooks.Columns.ValidateColumn(key, c, reqCtx); err != nil {
			return nil, err
		}
		routes = append(routes, Route{
			Key:       key,
			Column:    c,
			Phase:     phase,
			IsNewRow:  isNew,
			Lifecycle: lifecycle,
		})
	}
	return routes, nil
}

func (t *Table[V]) routeRow(key RowKey, phase Phase, allowCreation bool) (isNew bool, _ error) {
	if key.Empty() {
		return false, base.NoSuchObjectErrorf("row key must not be empty")
	}
	t.mu.Lock()
	_, found := t.mu.index.Find(key)
	t.mu.Unlock()
	if !found && (!allowCreation || phase == PhaseGet) {
		return true, base.NoSuchInstanceErrorf("row %s does not exist", key)
	}
	return !found, nil
}

func (t *Table[V]) isControlColumn(c uint32) bool {
	return t.opts.ControlColumn != 0 && c == t.opts.ControlColumn
}

// WalkRequest is the position a GET-NEXT continues from.
type WalkRequest struct {
	// Key is the row of the last position returned. An empty key starts the
	// walk before the first row.
	Key RowKey
	// Column is the column of the last position returned. Zero starts before
	// the first column of Key.
	Column  uint32
	Context any
	Version ProtocolVersion
}

// WalkNext returns the readable (row, column) position that follows the
// request's position, in row-major order over Options.Columns. It fails with
// an ErrNotFound error when the walk is exhausted.
//
// Each step reads the index at a single point in time. Rows added or removed
// between calls may be skipped or visited twice by a walk.
func (t *Table[V]) WalkNext(req WalkRequest) (RowKey, uint32, error) {
	start := crtime.NowMono()
	defer func() { t.opts.Instruments.routed(start.Elapsed()) }()

	cols := t.opts.Columns
	row, idx, ok := t.walkStart(req.Key, req.Column)
	for ok {
		for _, c := range cols[idx:] {
			if t.hooks.Columns.IsColumnReadable(row, c, req.Context, req.Version) {
				return row, c, nil
			}
		}
		idx = 0
		row, ok = t.nextRow(row)
	}
	return RowKey{}, 0, base.NotFoundErrorf("end of table")
}

// walkStart returns the row a walk continues in and the index in
// Options.Columns of the first column to consider.
func (t *Table[V]) walkStart(key RowKey, column uint32) (RowKey, int, bool) {
	if key.Empty() {
		t.mu.Lock()
		defer t.mu.Unlock()
		pos, ok := t.mu.index.First()
		if !ok {
			return RowKey{}, 0, false
		}
		return t.mu.index.KeyAt(pos), 0, true
	}
	t.mu.Lock()
	_, found := t.mu.index.Find(key)
	t.mu.Unlock()
	if !found {
		row, ok := t.nextRow(key)
		return row, 0, ok
	}
	idx, exact := slices.BinarySearch(t.opts.Columns, column)
	if exact {
		idx++
	}
	return key, idx, true
}

func (t *Table[V]) nextRow(key RowKey) (RowKey, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	pos, ok := t.mu.index.NextAfter(key)
	if !ok {
		return RowKey{}, false
	}
	return t.mu.index.KeyAt(pos), true
}
