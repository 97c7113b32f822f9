// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package mibtable

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/cockroachdb/crlib/testutils/leaktest"
	"github.com/cockroachdb/datadriven"
	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/mibtable/internal/testutils"
	"github.com/cockroachdb/mibtable/rowstatus"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

// recorder is a listener that writes the events it receives to a buffer.
type recorder struct {
	buf *strings.Builder
}

func (r *recorder) RowChanged(e Event[string], handback any) error {
	fmt.Fprintf(r.buf, "%v: %s\n", handback, e)
	return nil
}

// tableHarness drives a Table[string] from datadriven scripts. Rows added with
// "add" carry the payload "p<key>"; rows created by the factory carry
// "new-<key>/<depth>".
type tableHarness struct {
	t   *testing.T
	tbl *Table[string]
	log *testutils.Logger
	// out collects listener events, status changes and discarded payloads.
	out       strings.Builder
	listeners map[string]*recorder
	actions   map[string]*Action[string]
	// vetoes maps a hook name to the keys it refuses.
	vetoes   map[string]map[string]bool
	hiddenV1 []uint32
}

type harnessFactory struct {
	FactoryFuncs[string]
	h *tableHarness
}

func (f harnessFactory) Discard(key RowKey, payload string) {
	fmt.Fprintf(&f.h.out, "discarded %s %s\n", key, payload)
}

func (h *tableHarness) vetoed(hook string, key RowKey) bool {
	return h.vetoes[hook][key.String()]
}

func (h *tableHarness) ValidateColumn(key RowKey, column uint32, reqCtx any) error {
	return DefaultColumns(h.tbl.opts.Columns).ValidateColumn(key, column, reqCtx)
}

func (h *tableHarness) IsColumnReadable(
	key RowKey, column uint32, reqCtx any, version ProtocolVersion,
) bool {
	return version != V1 || !slices.Contains(h.hiddenV1, column)
}

func newTableHarness(t *testing.T) *tableHarness {
	return &tableHarness{t: t}
}

func (h *tableHarness) init(td *datadriven.TestData) {
	opts := &Options{
		Logger: h.log,
		Clock:  func() time.Time { return time.Unix(0, 0) },
	}
	for _, arg := range td.CmdArgs {
		switch arg.Key {
		case "control":
			c, err := strconv.ParseUint(arg.Vals[0], 10, 32)
			require.NoError(h.t, err)
			opts.ControlColumn = uint32(c)
		case "columns":
			cols, err := parseColumnList(strings.Join(arg.Vals, ","))
			require.NoError(h.t, err)
			opts.Columns = cols
		case "creation":
			opts.DisableCreation = arg.Vals[0] == "off"
		default:
			h.t.Fatalf("unknown argument %q", arg.Key)
		}
	}
	h.out.Reset()
	h.listeners = make(map[string]*recorder)
	h.actions = make(map[string]*Action[string])
	h.vetoes = make(map[string]map[string]bool)
	h.hiddenV1 = nil

	factory := harnessFactory{h: h}
	factory.CreateFn = func(key RowKey, depth int, reqCtx any) (string, error) {
		if h.vetoed("create", key) {
			return "", errors.Newf("factory refused %s", key)
		}
		return fmt.Sprintf("new-%s/%d", key, depth), nil
	}
	factory.OnAddedFn = func(pos int, key RowKey, owner string, payload string) error {
		if h.vetoed("added", key) {
			return errors.New("onAdded veto")
		}
		return nil
	}
	factory.OnRemovedFn = func(pos int, key RowKey, owner string, payload string) error {
		if h.vetoed("removed", key) {
			return errors.New("onRemoved failed")
		}
		return nil
	}
	hooks := Hooks[string]{
		Factory: factory,
		Columns: h,
		IsRowReady: func(key RowKey, payload string, reqCtx any) bool {
			return !h.vetoed("ready", key)
		},
		ValidateDestroy: func(key RowKey, payload string, reqCtx any) error {
			if h.vetoed("destroy", key) {
				return errors.Newf("destroy refused %s", key)
			}
			return nil
		},
		ValidateTransition: func(key RowKey, payload string, to rowstatus.State, reqCtx any) error {
			if h.vetoed("transition", key) {
				return errors.Newf("transition refused %s", key)
			}
			return nil
		},
		StatusChanged: func(key RowKey, payload string, s rowstatus.State) {
			fmt.Fprintf(&h.out, "status %s -> %s\n", key, s)
		},
	}
	var err error
	h.tbl, err = New(opts, hooks)
	require.NoError(h.t, err)
}

func formatErr(err error) string {
	return fmt.Sprintf("%s: %s\n", KindOf(err), err)
}

// positional returns the CmdArgs that have no values, in order.
func positional(td *datadriven.TestData) []string {
	var res []string
	for _, arg := range td.CmdArgs {
		if len(arg.Vals) == 0 {
			res = append(res, arg.Key)
		}
	}
	return res
}

func (h *tableHarness) run(t *testing.T, td *datadriven.TestData) string {
	args := positional(td)
	key := func(i int) RowKey {
		require.Greater(t, len(args), i, "missing argument")
		return testutils.Key(args[i])
	}
	var buf strings.Builder
	switch td.Cmd {
	case "new":
		h.init(td)
		return ""

	case "subscribe":
		var name string
		td.ScanArgs(t, "name", &name)
		r, ok := h.listeners[name]
		if !ok {
			r = &recorder{buf: &h.out}
			h.listeners[name] = r
		}
		var filter EventFilter[string]
		if td.HasArg("filter") {
			var f string
			td.ScanArgs(t, "filter", &f)
			switch f {
			case "added":
				filter = OnlyType[string](RowAdded)
			case "removed":
				filter = OnlyType[string](RowRemoved)
			default:
				t.Fatalf("unknown filter %q", f)
			}
		}
		h.tbl.Subscribe(r, filter, name)
		return ""

	case "unsubscribe":
		var name string
		td.ScanArgs(t, "name", &name)
		if err := h.tbl.Unsubscribe(h.listeners[name]); err != nil {
			return formatErr(err)
		}
		return "ok"

	case "add":
		var owner string
		if td.HasArg("owner") {
			td.ScanArgs(t, "owner", &owner)
		}
		k := key(0)
		if err := h.tbl.AddRow(k, owner, "p"+k.String()); err != nil {
			return formatErr(err)
		}
		return "ok"

	case "remove":
		if err := h.tbl.RemoveRow(key(0)); err != nil {
			return formatErr(err)
		}
		return "ok"

	case "remove-owner":
		n, err := h.tbl.RemoveOwner(args[0])
		if err != nil {
			return formatErr(err)
		}
		return fmt.Sprintf("removed %d", n)

	case "get":
		r, err := h.tbl.GetRow(key(0))
		if err != nil {
			return formatErr(err)
		}
		return formatRow(r)

	case "veto", "allow":
		// veto <hook> <key>
		hook, k := args[0], key(1).String()
		if h.vetoes[hook] == nil {
			h.vetoes[hook] = make(map[string]bool)
		}
		h.vetoes[hook][k] = td.Cmd == "veto"
		return ""

	case "creation":
		h.tbl.SetCreationEnabled(args[0] == "on")
		return fmt.Sprintf("enabled=%t", h.tbl.IsCreationEnabled())

	case "begin":
		k := key(0)
		s, err := rowstatus.ParseState(args[1])
		require.NoError(t, err)
		req := ActionRequest{Key: k, State: s}
		if td.HasArg("depth") {
			td.ScanArgs(t, "depth", &req.Depth)
		}
		if td.HasArg("owner") {
			td.ScanArgs(t, "owner", &req.Owner)
		}
		a, err := h.tbl.BeginAction(req)
		if err != nil {
			return formatErr(err)
		}
		h.actions[k.String()] = a
		return "ok"

	case "commit":
		a, ok := h.actions[key(0).String()]
		require.True(t, ok, "no action for %s", args[0])
		s, v, err := a.Commit()
		if err != nil {
			return formatErr(err)
		}
		return fmt.Sprintf("state=%s value=%v", s, v)

	case "abort":
		a, ok := h.actions[key(0).String()]
		require.True(t, ok, "no action for %s", args[0])
		a.Abort()
		return "ok"

	case "route":
		// route <key> <column> <phase> [create]
		col, err := strconv.ParseUint(args[1], 10, 32)
		require.NoError(t, err)
		r, err := h.tbl.RouteColumn(RouteRequest{
			Key:           key(0),
			Column:        uint32(col),
			Phase:         parsePhase(t, args[2]),
			AllowCreation: slices.Contains(args, "create"),
		})
		if err != nil {
			return formatErr(err)
		}
		return formatRoute(r)

	case "route-row":
		// route-row <key> <phase> [create] cols=(...)
		var cols []uint32
		for _, arg := range td.CmdArgs {
			if arg.Key == "cols" {
				var err error
				cols, err = parseColumnList(strings.Join(arg.Vals, ","))
				require.NoError(t, err)
			}
		}
		routes, err := h.tbl.RouteRow(key(0), cols, parsePhase(t, args[1]),
			slices.Contains(args, "create"), nil)
		if err != nil {
			return formatErr(err)
		}
		for _, r := range routes {
			buf.WriteString(formatRoute(r))
			buf.WriteString("\n")
		}
		return buf.String()

	case "hide-v1":
		for _, a := range args {
			c, err := strconv.ParseUint(a, 10, 32)
			require.NoError(t, err)
			h.hiddenV1 = append(h.hiddenV1, uint32(c))
		}
		return ""

	case "walk":
		// walk [version=v1]
		req := WalkRequest{Version: V2c}
		if td.HasArg("version") {
			var v string
			td.ScanArgs(t, "version", &v)
			if v == "v1" {
				req.Version = V1
			}
		}
		for {
			k, c, err := h.tbl.WalkNext(req)
			if err != nil {
				buf.WriteString(formatErr(err))
				break
			}
			fmt.Fprintf(&buf, "%s col=%d\n", k, c)
			req.Key, req.Column = k, c
		}
		return buf.String()

	case "walk-from":
		// walk-from <key> <column>: a single step.
		col, err := strconv.ParseUint(args[1], 10, 32)
		require.NoError(t, err)
		k, c, err := h.tbl.WalkNext(WalkRequest{Key: key(0), Column: uint32(col), Version: V2c})
		if err != nil {
			return formatErr(err)
		}
		return fmt.Sprintf("%s col=%d", k, c)

	case "print":
		h.tbl.Scan(RowKey{}, func(r Row[string]) bool {
			buf.WriteString(formatRow(r))
			buf.WriteString("\n")
			return true
		})
		fmt.Fprintf(&buf, "size=%d", h.tbl.Size())
		require.NoError(t, h.tbl.CheckInvariants())
		return buf.String()

	case "events":
		s := h.out.String()
		h.out.Reset()
		if s == "" {
			return "no events"
		}
		return s

	case "logged":
		if h.log.ErrorCount() == 0 {
			return "nothing logged"
		}
		return h.log.Errors()

	default:
		return fmt.Sprintf("unknown command: %s", td.Cmd)
	}
}

func formatRow(r Row[string]) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s", r.Key)
	if r.Owner != "" {
		fmt.Fprintf(&b, " owner=%s", r.Owner)
	}
	fmt.Fprintf(&b, " payload=%s", r.Payload)
	return b.String()
}

func formatRoute(r Route) string {
	return fmt.Sprintf("row=%s col=%d new=%t lifecycle=%t", r.Key, r.Column, r.IsNewRow, r.Lifecycle)
}

func parsePhase(t *testing.T, s string) Phase {
	for _, p := range []Phase{PhaseGet, PhaseCheck, PhaseSet} {
		if p.String() == s {
			return p
		}
	}
	t.Fatalf("unknown phase %q", s)
	return 0
}

func TestTableDataDriven(t *testing.T) {
	defer leaktest.AfterTest(t)()
	for _, file := range []string{"table", "lifecycle", "walk"} {
		t.Run(file, func(t *testing.T) {
			h := newTableHarness(t)
			h.log = testutils.NewLogger(t)
			datadriven.RunTest(t, "testdata/"+file, h.run)
		})
	}
}

func TestTableInsertionOrder(t *testing.T) {
	tbl, err := New[int](nil, Hooks[int]{})
	require.NoError(t, err)
	for _, k := range []uint32{5, 1, 3} {
		require.NoError(t, tbl.AddRow(MakeRowKey(k), "", int(k)))
	}
	var keys []string
	tbl.Scan(RowKey{}, func(r Row[int]) bool {
		keys = append(keys, r.Key.String())
		return true
	})
	require.Equal(t, []string{"1", "3", "5"}, keys)

	r, err := tbl.GetRow(MakeRowKey(3))
	require.NoError(t, err)
	require.Equal(t, 3, r.Payload)

	k, _, err := tbl.WalkNext(WalkRequest{Key: MakeRowKey(1), Column: 0})
	// Without columns there is nothing readable to walk to.
	require.True(t, errors.Is(err, ErrNotFound))
	require.True(t, k.Empty())
}

func TestTableDuplicateRejection(t *testing.T) {
	tbl, err := New[string](nil, Hooks[string]{})
	require.NoError(t, err)
	require.NoError(t, tbl.AddRow(MakeRowKey(2), "", "a"))
	err = tbl.AddRow(MakeRowKey(2), "", "b")
	require.True(t, errors.Is(err, ErrDuplicateKey))
	require.Equal(t, KindDuplicateKey, KindOf(err))
	require.Equal(t, 1, tbl.Size())
	r, err := tbl.GetRow(MakeRowKey(2))
	require.NoError(t, err)
	require.Equal(t, "a", r.Payload)
}

func TestTableRejectsEmptyKey(t *testing.T) {
	tbl, err := New[string](nil, Hooks[string]{})
	require.NoError(t, err)
	require.True(t, errors.Is(tbl.AddRow(RowKey{}, "", "x"), ErrNoSuchObject))
	_, err = tbl.RouteColumn(RouteRequest{Column: 1})
	require.True(t, errors.Is(err, ErrNoSuchObject))
	_, err = tbl.BeginAction(ActionRequest{State: rowstatus.CreateAndGo})
	require.True(t, errors.Is(err, ErrNoSuchObject))
	require.Equal(t, 0, tbl.Size())
}

func TestTableRollbackOnAddVeto(t *testing.T) {
	veto := errors.New("no room")
	tbl, err := New[string](nil, Hooks[string]{
		Factory: FactoryFuncs[string]{
			OnAddedFn: func(pos int, key RowKey, owner, payload string) error {
				if key.Equal(MakeRowKey(7)) {
					return veto
				}
				return nil
			},
		},
	})
	require.NoError(t, err)
	require.NoError(t, tbl.AddRow(MakeRowKey(1), "o", "a"))

	var rec strings.Builder
	tbl.Subscribe(&recorder{buf: &rec}, nil, "L")
	err = tbl.AddRow(MakeRowKey(7), "o", "b")
	require.True(t, errors.Is(err, veto))
	require.Equal(t, KindOther, KindOf(err))

	_, err = tbl.GetRow(MakeRowKey(7))
	require.True(t, errors.Is(err, ErrNotFound))
	require.Equal(t, 1, tbl.Size())
	require.Equal(t, 1, tbl.OwnerRows("o"))
	require.Empty(t, rec.String())
	require.EqualValues(t, 1, tbl.Metrics().AddRollbacks)
	require.NoError(t, tbl.CheckInvariants())
}

func TestTableOwners(t *testing.T) {
	tbl, err := New[string](nil, Hooks[string]{})
	require.NoError(t, err)
	for i, owner := range []string{"a", "b", "a", "", "a", "b"} {
		require.NoError(t, tbl.AddRow(MakeRowKey(uint32(i+1)), owner, ""))
	}
	require.Equal(t, 3, tbl.OwnerRows("a"))
	require.Equal(t, 2, tbl.OwnerRows("b"))
	require.Equal(t, 0, tbl.OwnerRows(""))

	n, err := tbl.RemoveOwner("a")
	require.NoError(t, err)
	require.Equal(t, 3, n)
	require.Equal(t, 3, tbl.Size())
	require.Equal(t, 0, tbl.OwnerRows("a"))

	_, err = tbl.RemoveOwner("a")
	require.True(t, errors.Is(err, ErrNotFound))
	_, err = tbl.RemoveOwner("")
	require.True(t, errors.Is(err, ErrNotFound))

	require.NoError(t, tbl.RemoveRow(MakeRowKey(2)))
	require.Equal(t, 1, tbl.OwnerRows("b"))
	require.NoError(t, tbl.CheckInvariants())
}

func TestTableScan(t *testing.T) {
	tbl, err := New[int](nil, Hooks[int]{})
	require.NoError(t, err)
	for i := uint32(1); i <= 5; i++ {
		require.NoError(t, tbl.AddRow(MakeRowKey(i, 0), "", int(i)))
	}
	collect := func(start RowKey, limit int) []int {
		var res []int
		tbl.Scan(start, func(r Row[int]) bool {
			res = append(res, r.Payload)
			return len(res) < limit
		})
		return res
	}
	require.Equal(t, []int{1, 2, 3, 4, 5}, collect(RowKey{}, 10))
	require.Equal(t, []int{3, 4, 5}, collect(MakeRowKey(3, 0), 10))
	require.Equal(t, []int{3, 4, 5}, collect(MakeRowKey(3), 10))
	require.Equal(t, []int{4}, collect(MakeRowKey(3, 1), 1))
	require.Empty(t, collect(MakeRowKey(6), 10))
}

// TestTableConcurrentMutation checks that concurrent writers on distinct keys
// leave a consistent index. Run it with -race.
func TestTableConcurrentMutation(t *testing.T) {
	defer leaktest.AfterTest(t)()
	tbl, err := New[int](&Options{Columns: []uint32{1, 2}}, Hooks[int]{})
	require.NoError(t, err)
	var rec counter
	tbl.Subscribe(&rec, nil, nil)

	const writers, perWriter = 8, 200
	var g errgroup.Group
	for w := 0; w < writers; w++ {
		g.Go(func() error {
			for i := 0; i < perWriter; i++ {
				key := MakeRowKey(uint32(i), uint32(w))
				if err := tbl.AddRow(key, strconv.Itoa(w), i); err != nil {
					return err
				}
				if i%2 == 1 {
					if err := tbl.RemoveRow(key); err != nil {
						return err
					}
				}
			}
			return nil
		})
	}
	g.Go(func() error {
		// A concurrent walker must never fail with anything but the end of the
		// table.
		for i := 0; i < 50; i++ {
			var req WalkRequest
			for {
				k, c, err := tbl.WalkNext(req)
				if errors.Is(err, ErrNotFound) {
					break
				} else if err != nil {
					return err
				}
				req.Key, req.Column = k, c
			}
		}
		return nil
	})
	require.NoError(t, g.Wait())

	require.Equal(t, writers*perWriter/2, tbl.Size())
	require.NoError(t, tbl.CheckInvariants())
	for w := 0; w < writers; w++ {
		require.Equal(t, perWriter/2, tbl.OwnerRows(strconv.Itoa(w)))
	}
	m := tbl.Metrics()
	require.EqualValues(t, writers*perWriter, m.RowsAdded)
	require.EqualValues(t, writers*perWriter/2, m.RowsRemoved)
	require.EqualValues(t, writers*perWriter*3/2, rec.n.Load())
}

// TestTableDeliveryFromListener checks that an event caused by a listener is
// delivered by the goroutine already delivering, after the listener returns.
func TestTableDeliveryFromListener(t *testing.T) {
	var tbl *Table[int]
	var seen []string
	seenWhenInnerReturned := -1
	l := &funcListener{fn: func(e Event[int], _ any) error {
		seen = append(seen, e.String())
		if e.Type == RowAdded && e.Key.At(0) == 1 {
			if err := tbl.AddRow(MakeRowKey(2), "", 0); err != nil {
				return err
			}
			seenWhenInnerReturned = len(seen)
		}
		return nil
	}}
	var err error
	tbl, err = New[int](nil, Hooks[int]{})
	require.NoError(t, err)
	tbl.Subscribe(l, nil, nil)

	require.NoError(t, tbl.AddRow(MakeRowKey(1), "", 0))
	// The inner AddRow returned before its own event was delivered.
	require.Equal(t, 1, seenWhenInnerReturned)
	// The outer AddRow returned only after both were delivered, in order.
	require.Equal(t, []string{"row 1 added", "row 2 added"}, seen)
	require.EqualValues(t, 0, tbl.Metrics().ListenerErrors)
}
