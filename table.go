// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package mibtable implements indexed conceptual tables for a network
// management agent: an ordered index of rows addressed by numeric row keys,
// routing of GET, CHECK and SET sub-requests to those rows, the RowStatus
// lifecycle through which managers create and destroy rows, and notification
// of row additions and removals.
//
// A Table is generic over the application payload carried by each row. The
// application supplies the behavior a table definition needs through Hooks:
// an EntryFactory that materializes rows, a ColumnValidator and optional
// validation hooks. Errors carry a kind (see KindOf) that the protocol layer
// translates to an error status.
package mibtable

import (
	"sync"

	"github.com/cockroachdb/crlib/fifo"
	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/mibtable/internal/base"
	"github.com/cockroachdb/mibtable/internal/invariants"
	"github.com/cockroachdb/mibtable/internal/rowindex"
	"github.com/cockroachdb/mibtable/rowstatus"
	"github.com/cockroachdb/swiss"
)

// Row is a table row: its key, the identifier of the registration that owns
// it (empty if none) and the application payload.
type Row[V any] struct {
	Key     RowKey
	Owner   string
	Payload V
}

// Hooks are the application callbacks a table invokes. Every field is
// optional.
//
// Except for Factory.Create and Columns, hooks are invoked with the table lock
// held so that the state transition they observe is atomic; they must not call
// back into the table.
type Hooks[V any] struct {
	// Factory materializes rows created through the row status lifecycle and
	// observes insertions and removals. Defaults to NopFactory.
	Factory EntryFactory[V]
	// Columns validates column addressing and readability. Defaults to a
	// validator derived from Options.Columns.
	Columns ColumnValidator
	// IsRowReady reports whether a row has every value it needs to become
	// active. Defaults to true.
	IsRowReady func(key RowKey, payload V, reqCtx any) bool
	// ValidateDestroy may veto the destruction of an existing row.
	ValidateDestroy func(key RowKey, payload V, reqCtx any) error
	// ValidateTransition may veto switching an existing row to Active or
	// NotInService.
	ValidateTransition func(key RowKey, payload V, to rowstatus.State, reqCtx any) error
	// StatusChanged is told the state a committed action left the row in.
	StatusChanged func(key RowKey, payload V, s rowstatus.State)
}

// Table is an ordered table of rows addressed by row keys. It is safe for
// concurrent use.
//
// Structural changes and the index reads used for routing are serialized by a
// single mutex. Notifications are queued while the mutex is held and delivered
// after it is released, by whichever goroutine finds the queue non-empty and
// no delivery in progress. A mutation made by one goroutine may therefore be
// delivered by another, and a listener that mutates the table sees its own
// events delivered after it returns.
type Table[V any] struct {
	opts      Options
	hooks     Hooks[V]
	hub       notificationHub[V]
	eventPool fifo.QueueBackingPool[Event[V]]

	mu struct {
		sync.Mutex

		index rowindex.Index[V]
		// owners counts the rows registered under each non-empty owner.
		owners swiss.Map[string, int]
		// creating holds the keys of checked, uncommitted creations.
		creating        swiss.Map[RowKey, *Action[V]]
		creationEnabled bool

		// pending holds events not yet handed to the notification hub.
		pending    fifo.Queue[Event[V]]
		delivering bool

		metrics Metrics
	}
}

// New creates a table. opts may be nil.
func New[V any](opts *Options, hooks Hooks[V]) (*Table[V], error) {
	opts = opts.Clone()
	opts.EnsureDefaults()
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if hooks.Factory == nil {
		hooks.Factory = NopFactory[V]{}
	}
	if hooks.Columns == nil {
		hooks.Columns = DefaultColumns(opts.Columns)
	}

	t := &Table[V]{
		opts:      *opts,
		hooks:     hooks,
		eventPool: fifo.MakeQueueBackingPool[Event[V]](),
	}
	t.hub.init(&t.opts)
	t.mu.index.Init(opts.InitialCapacity)
	t.mu.owners.Init(8)
	t.mu.creating.Init(8)
	t.mu.creationEnabled = !opts.DisableCreation
	t.mu.pending = fifo.MakeQueue(&t.eventPool)
	return t, nil
}

// Options returns a copy of the table's options.
func (t *Table[V]) Options() *Options {
	return t.opts.Clone()
}

// Size returns the number of rows.
func (t *Table[V]) Size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.mu.index.Len()
}

// SetCreationEnabled administratively enables or disables row creation
// through the row status lifecycle.
func (t *Table[V]) SetCreationEnabled(enabled bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.mu.creationEnabled = enabled
}

// IsCreationEnabled returns whether rows may be created through the row status
// lifecycle.
func (t *Table[V]) IsCreationEnabled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.mu.creationEnabled
}

// GetRow returns the row with the given key, or an ErrNotFound error.
func (t *Table[V]) GetRow(key RowKey) (Row[V], error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	pos, ok := t.mu.index.Find(key)
	if !ok {
		return Row[V]{}, base.NotFoundErrorf("row %s not found", key)
	}
	k, payload, owner := t.mu.index.At(pos)
	return Row[V]{Key: k, Owner: owner, Payload: payload}, nil
}

// AddRow inserts a row. It fails with an ErrDuplicateKey error, before any
// change, if the key is present. If EntryFactory.OnAdded fails the insertion
// is undone and the factory's error returned. On success a RowAdded event is
// published after the table lock is released. Events are delivered in commit
// order by a single goroutine at a time: when another goroutine is already
// delivering, that goroutine delivers this event too, and AddRow may return
// before the listeners have seen it. The same holds for RemoveRow,
// RemoveOwner and Action.Commit.
func (t *Table[V]) AddRow(key RowKey, owner string, payload V) error {
	if key.Empty() {
		return base.NoSuchObjectErrorf("row key must not be empty")
	}
	t.mu.Lock()
	err := t.addRowLocked(key, owner, payload)
	t.mu.Unlock()
	t.flushEvents()
	return err
}

// addRowLocked inserts a row and queues its event. t.mu must be held.
func (t *Table[V]) addRowLocked(key RowKey, owner string, payload V) error {
	pos, err := t.mu.index.InsertionPoint(key, true /* failOnDuplicate */)
	if err != nil {
		return err
	}
	t.mu.index.InsertAt(pos, key, payload, owner)
	if err := t.hooks.Factory.OnAdded(pos, key, owner, payload); err != nil {
		t.mu.index.RemoveAt(pos)
		t.mu.metrics.AddRollbacks++
		t.opts.Instruments.addRolledBack()
		return errors.Wrapf(err, "adding row %s", key)
	}
	if owner != "" {
		n, _ := t.mu.owners.Get(owner)
		t.mu.owners.Put(owner, n+1)
	}
	t.mu.metrics.RowsAdded++
	t.opts.Instruments.rowAdded(t.mu.index.Len())
	t.mu.pending.PushBack(Event[V]{
		Type:    RowAdded,
		Time:    t.opts.Clock(),
		Key:     key,
		Owner:   owner,
		Payload: payload,
	})
	return nil
}

// RemoveRow removes the row with the given key. Removing an absent row is a
// no-op. On removal a RowRemoved event is published.
func (t *Table[V]) RemoveRow(key RowKey) error {
	t.mu.Lock()
	if pos, ok := t.mu.index.Find(key); ok {
		t.removeAtLocked(pos)
	}
	t.mu.Unlock()
	t.flushEvents()
	return nil
}

// removeAtLocked removes the row at pos and queues its event. t.mu must be
// held.
func (t *Table[V]) removeAtLocked(pos int) Row[V] {
	key, payload, owner := t.mu.index.RemoveAt(pos)
	if err := t.hooks.Factory.OnRemoved(pos, key, owner, payload); err != nil {
		t.mu.metrics.RemoveCallbackErrors++
		t.opts.Logger.Errorf("mibtable: %s: removing row %s: %v", t.name(), key, err)
	}
	if owner != "" {
		n, _ := t.mu.owners.Get(owner)
		if n = invariants.SafeSub(n, 1); n > 0 {
			t.mu.owners.Put(owner, n)
		} else {
			t.mu.owners.Delete(owner)
		}
	}
	t.mu.metrics.RowsRemoved++
	t.opts.Instruments.rowRemoved(t.mu.index.Len())
	t.mu.pending.PushBack(Event[V]{
		Type:    RowRemoved,
		Time:    t.opts.Clock(),
		Key:     key,
		Owner:   owner,
		Payload: payload,
	})
	return Row[V]{Key: key, Owner: owner, Payload: payload}
}

// OwnerRows returns the number of rows registered under owner.
func (t *Table[V]) OwnerRows(owner string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n, _ := t.mu.owners.Get(owner)
	return n
}

// RemoveOwner removes every row registered under owner, as when the session
// that registered them goes away, and returns how many were removed. It fails
// with an ErrNotFound error if the owner has no rows.
func (t *Table[V]) RemoveOwner(owner string) (int, error) {
	t.mu.Lock()
	n, ok := t.mu.owners.Get(owner)
	if !ok || owner == "" {
		t.mu.Unlock()
		return 0, base.NotFoundErrorf("no rows registered by %q", owner)
	}
	removed := 0
	for pos := t.mu.index.Len() - 1; pos >= 0 && removed < n; pos-- {
		if _, _, o := t.mu.index.At(pos); o == owner {
			t.removeAtLocked(pos)
			removed++
		}
	}
	t.mu.Unlock()
	t.flushEvents()
	return removed, nil
}

// Scan calls fn for each row in key order, starting with the first row whose
// key is greater than or equal to start, until fn returns false. The rows are
// a snapshot taken before the first call; fn runs without the table lock held.
func (t *Table[V]) Scan(start RowKey, fn func(r Row[V]) bool) {
	t.mu.Lock()
	pos, _ := t.mu.index.InsertionPoint(start, false /* failOnDuplicate */)
	if p, ok := t.mu.index.Find(start); ok {
		pos = p
	}
	rows := make([]Row[V], 0, t.mu.index.Len()-pos)
	for ; pos < t.mu.index.Len(); pos++ {
		k, payload, owner := t.mu.index.At(pos)
		rows = append(rows, Row[V]{Key: k, Owner: owner, Payload: payload})
	}
	t.mu.Unlock()
	for _, r := range rows {
		if !fn(r) {
			return
		}
	}
}

// Subscribe registers a listener. A listener may be subscribed several times,
// each registration with its own filter and handback. filter may be nil.
func (t *Table[V]) Subscribe(l Listener[V], filter EventFilter[V], handback any) {
	t.hub.subscribe(l, filter, handback)
}

// Unsubscribe removes every registration of l. It fails with an ErrNotFound
// error if l is not subscribed, and with an assertion failure if the type of l
// is not comparable.
func (t *Table[V]) Unsubscribe(l Listener[V]) error {
	return t.hub.unsubscribe(l)
}

// Metrics returns a snapshot of the table's counters.
func (t *Table[V]) Metrics() *Metrics {
	t.mu.Lock()
	m := t.mu.metrics
	m.Rows = uint64(t.mu.index.Len())
	m.Capacity = uint64(t.mu.index.Cap())
	t.mu.Unlock()

	t.hub.mu.Lock()
	m.Subscriptions = uint64(len(t.hub.mu.subs))
	m.EventsDelivered = t.hub.mu.delivered
	m.EventsDropped = t.hub.mu.dropped
	m.ListenerErrors = t.hub.mu.listenerErrors
	t.hub.mu.Unlock()
	return &m
}

// CheckInvariants verifies the internal consistency of the table. It is
// intended for tests.
func (t *Table[V]) CheckInvariants() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.mu.index.CheckOrdering(); err != nil {
		return err
	}
	counts := make(map[string]int)
	for pos := 0; pos < t.mu.index.Len(); pos++ {
		if _, _, o := t.mu.index.At(pos); o != "" {
			counts[o]++
		}
	}
	if len(counts) != t.mu.owners.Len() {
		return errors.AssertionFailedf("%d owners indexed, %d owners present", t.mu.owners.Len(), len(counts))
	}
	for o, c := range counts {
		if n, _ := t.mu.owners.Get(o); n != c {
			return errors.AssertionFailedf("owner %q: %d rows indexed, %d present", o, n, c)
		}
	}
	return nil
}

// flushEvents hands queued events to the notification hub. It must be called
// without t.mu held. If another goroutine is already delivering, that
// goroutine delivers the queued events instead.
func (t *Table[V]) flushEvents() {
	t.mu.Lock()
	if t.mu.delivering {
		t.mu.Unlock()
		return
	}
	t.mu.delivering = true
	for t.mu.pending.Len() > 0 {
		e := *t.mu.pending.PeekFront()
		t.mu.pending.PopFront()
		func() {
			t.mu.Unlock()
			defer t.mu.Lock()
			t.hub.publish(e)
		}()
	}
	t.mu.delivering = false
	t.mu.Unlock()
}

func (t *Table[V]) name() string {
	if t.opts.Name == "" {
		return "table"
	}
	return t.opts.Name
}
