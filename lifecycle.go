// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package mibtable

import (
	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/mibtable/internal/base"
	"github.com/cockroachdb/mibtable/rowstatus"
)

// ResolveAction interprets the control value of a SET sub-request using the
// table's codec. See rowstatus.Resolve.
func (t *Table[V]) ResolveAction(
	isNewRow, controlPresent bool, raw any,
) (rowstatus.State, error) {
	return rowstatus.Resolve(isNewRow, controlPresent, raw, t.opts.Codec)
}

// ActionRequest describes the lifecycle action requested for one row by a SET
// transaction.
type ActionRequest struct {
	Key RowKey
	// State is the resolved action, usually from ResolveAction.
	State rowstatus.State
	// Depth is the number of columns the transaction supplies for the row. It
	// is passed to EntryFactory.Create.
	Depth int
	// Owner is recorded on rows created by the action.
	Owner string
	// Context is the caller's opaque request context, passed to every hook.
	Context any
}

// Action is a lifecycle action that passed the check phase. Exactly one of
// Commit or Abort should be called; Abort after Commit is a no-op.
//
// An uncommitted creating action reserves its key: a concurrent creation of
// the same key fails the check phase until the action finishes.
type Action[V any] struct {
	t   *Table[V]
	req ActionRequest

	// payload is the row created by the factory for creating actions.
	payload  V
	reserved bool
	// done is protected by t.mu.
	done bool
}

// Request returns the request the action was begun with.
func (a *Action[V]) Request() ActionRequest {
	return a.req
}

// BeginAction runs the check phase of a lifecycle action. No structural
// change is made. Errors carry the kind the request should fail with; vetoes
// from the factory and validation hooks are returned wrapped, with their own
// kind preserved.
//
// Whether the row is new is read from the index. Creating actions call
// EntryFactory.Create without the table lock held; the validation hooks run
// with it held.
func (t *Table[V]) BeginAction(req ActionRequest) (*Action[V], error) {
	if req.Key.Empty() {
		return nil, base.NoSuchObjectErrorf("row key must not be empty")
	}
	a := &Action[V]{t: t, req: req}

	if req.State.IsCreate() {
		if err := t.reserve(a); err != nil {
			return nil, err
		}
		returned := false
		defer func() {
			// Create panicked; the key must not stay reserved.
			if !returned {
				t.mu.Lock()
				a.release()
				t.mu.Unlock()
			}
		}()
		payload, err := t.hooks.Factory.Create(req.Key, req.Depth, req.Context)
		returned = true
		t.mu.Lock()
		defer t.mu.Unlock()
		if err != nil {
			a.release()
			t.vetoedLocked()
			return nil, errors.Wrapf(err, "creating row %s", req.Key)
		}
		a.payload = payload
		t.mu.metrics.ActionsBegun++
		return a, nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	pos, exists := t.mu.index.Find(req.Key)
	var payload V
	if exists {
		_, payload, _ = t.mu.index.At(pos)
	}

	switch req.State {
	case rowstatus.Unspecified:
		if !exists {
			return nil, base.NoAccessErrorf("row %s cannot be created without a row status", req.Key)
		}

	case rowstatus.Destroy:
		if exists && t.hooks.ValidateDestroy != nil {
			if err := t.hooks.ValidateDestroy(req.Key, payload, req.Context); err != nil {
				t.vetoedLocked()
				return nil, errors.Wrapf(err, "destroying row %s", req.Key)
			}
		}

	case rowstatus.Active, rowstatus.NotInService:
		if !exists {
			return nil, base.InconsistentValueErrorf("row %s does not exist and cannot become %s",
				req.Key, req.State)
		}
		if t.hooks.ValidateTransition != nil {
			if err := t.hooks.ValidateTransition(req.Key, payload, req.State, req.Context); err != nil {
				t.vetoedLocked()
				return nil, errors.Wrapf(err, "row %s to %s", req.Key, req.State)
			}
		}
		if req.State == rowstatus.Active && !t.isRowReady(req.Key, payload, req.Context) {
			return nil, base.InconsistentValueErrorf("row %s is not ready to become active", req.Key)
		}

	default:
		return nil, base.InconsistentValueErrorf("row status %s cannot be set", req.State)
	}
	t.mu.metrics.ActionsBegun++
	return a, nil
}

// reserve runs the checks of a creating action and reserves its key.
func (t *Table[V]) reserve(a *Action[V]) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	key := a.req.Key
	if !t.mu.creationEnabled {
		return base.NoAccessErrorf("row creation is disabled; cannot create row %s", key)
	}
	if _, exists := t.mu.index.Find(key); exists {
		return base.InconsistentValueErrorf("row %s already exists", key)
	}
	if _, ok := t.mu.creating.Get(key); ok {
		return base.InconsistentValueErrorf("row %s is already being created", key)
	}
	t.mu.creating.Put(key, a)
	a.reserved = true
	return nil
}

func (t *Table[V]) vetoedLocked() {
	t.mu.metrics.Vetoes++
	t.opts.Instruments.vetoed()
}

func (t *Table[V]) isRowReady(key RowKey, payload V, reqCtx any) bool {
	if t.hooks.IsRowReady == nil {
		return true
	}
	return t.hooks.IsRowReady(key, payload, reqCtx)
}

// Commit runs the set phase of the action. It returns the state the row was
// left in and the value to reflect in the control column of the response,
// which is nil if the table has no control column or the action carried no
// row status.
//
//   - createAndGo inserts the row and makes it active.
//   - createAndWait inserts the row, which is notInService if it is ready and
//     notReady otherwise.
//   - destroy removes the row if it is still present.
//   - active and notInService set that state.
//
// Insertion has the semantics of AddRow, including the rollback when
// EntryFactory.OnAdded fails. Committing twice is an error.
func (a *Action[V]) Commit() (rowstatus.State, any, error) {
	t := a.t
	key := a.req.Key
	t.mu.Lock()
	if a.done {
		t.mu.Unlock()
		return rowstatus.Unspecified, nil, errors.AssertionFailedf("row %s: action already finished", key)
	}
	a.done = true
	a.release()

	state, payload, err := a.commitLocked()
	if err == nil {
		t.mu.metrics.ActionsCommitted++
		if state != rowstatus.Unspecified && t.hooks.StatusChanged != nil {
			t.hooks.StatusChanged(key, payload, state)
		}
	}
	t.mu.Unlock()
	t.flushEvents()

	if err != nil {
		if a.req.State.IsCreate() {
			a.discard()
		}
		return rowstatus.Unspecified, nil, err
	}
	if state == rowstatus.Unspecified || t.opts.ControlColumn == 0 {
		return state, nil, nil
	}
	return state, t.opts.Codec.Encode(state), nil
}

// commitLocked applies the action. t.mu must be held.
func (a *Action[V]) commitLocked() (rowstatus.State, V, error) {
	t := a.t
	key := a.req.Key
	switch a.req.State {
	case rowstatus.CreateAndGo, rowstatus.CreateAndWait:
		if err := t.addRowLocked(key, a.req.Owner, a.payload); err != nil {
			return rowstatus.Unspecified, a.payload, err
		}
		if a.req.State == rowstatus.CreateAndGo {
			return rowstatus.Active, a.payload, nil
		}
		if t.isRowReady(key, a.payload, a.req.Context) {
			return rowstatus.NotInService, a.payload, nil
		}
		return rowstatus.NotReady, a.payload, nil

	case rowstatus.Destroy:
		var payload V
		if pos, ok := t.mu.index.Find(key); ok {
			payload = t.removeAtLocked(pos).Payload
		}
		return rowstatus.Destroy, payload, nil

	case rowstatus.Active, rowstatus.NotInService:
		pos, ok := t.mu.index.Find(key)
		if !ok {
			return rowstatus.Unspecified, a.payload,
				base.InconsistentValueErrorf("row %s was removed before it became %s", key, a.req.State)
		}
		_, payload, _ := t.mu.index.At(pos)
		return a.req.State, payload, nil

	default:
		var payload V
		if pos, ok := t.mu.index.Find(key); ok {
			_, payload, _ = t.mu.index.At(pos)
		}
		return rowstatus.Unspecified, payload, nil
	}
}

// Abort abandons the action, releasing a creation reservation and handing an
// uncommitted payload to the factory if it implements EntryDiscarder. It is
// idempotent.
func (a *Action[V]) Abort() {
	t := a.t
	t.mu.Lock()
	if a.done {
		t.mu.Unlock()
		return
	}
	a.done = true
	a.release()
	t.mu.metrics.ActionsAborted++
	t.mu.Unlock()
	if a.req.State.IsCreate() {
		a.discard()
	}
}

// release drops the creation reservation. t.mu must be held.
func (a *Action[V]) release() {
	if a.reserved {
		a.t.mu.creating.Delete(a.req.Key)
		a.reserved = false
	}
}

func (a *Action[V]) discard() {
	if d, ok := a.t.hooks.Factory.(EntryDiscarder[V]); ok {
		d.Discard(a.req.Key, a.payload)
	}
}
