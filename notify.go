// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package mibtable

import (
	"reflect"
	"slices"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/mibtable/internal/base"
	"github.com/cockroachdb/tokenbucket"
)

type subscription[V any] struct {
	listener Listener[V]
	filter   EventFilter[V]
	handback any
}

// notificationHub fans events out to subscribed listeners.
//
// The subscription slice is copy-on-write: publish delivers to the snapshot it
// observed, so listeners may subscribe and unsubscribe while being notified.
type notificationHub[V any] struct {
	logger      Logger
	instruments *Instruments

	mu struct {
		sync.Mutex
		subs []subscription[V]
		// limiter is nil when delivery is not throttled.
		limiter *tokenbucket.TokenBucket

		delivered      uint64
		dropped        uint64
		listenerErrors uint64
	}
}

func (h *notificationHub[V]) init(opts *Options) {
	h.logger = opts.Logger
	h.instruments = opts.Instruments
	if opts.MaxEventsPerSecond > 0 {
		burst := tokenbucket.Tokens(max(opts.MaxEventsPerSecond, 1))
		h.mu.limiter = &tokenbucket.TokenBucket{}
		h.mu.limiter.InitWithNowFn(tokenbucket.TokensPerSecond(opts.MaxEventsPerSecond), burst, opts.Clock)
	}
}

func (h *notificationHub[V]) subscribe(l Listener[V], filter EventFilter[V], handback any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.mu.subs = append(slices.Clip(h.mu.subs), subscription[V]{
		listener: l,
		filter:   filter,
		handback: handback,
	})
}

func (h *notificationHub[V]) unsubscribe(l Listener[V]) error {
	if l == nil {
		return base.NotFoundErrorf("listener is not subscribed")
	}
	if typ := reflect.TypeOf(l); !typ.Comparable() {
		return errors.AssertionFailedf("listener of type %s is not comparable; use a pointer", typ)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	subs := make([]subscription[V], 0, len(h.mu.subs))
	for _, s := range h.mu.subs {
		if s.listener != l {
			subs = append(subs, s)
		}
	}
	if len(subs) == len(h.mu.subs) {
		return base.NotFoundErrorf("listener is not subscribed")
	}
	h.mu.subs = subs
	return nil
}

// publish delivers e to every subscription whose filter accepts it. It must
// be called without the table lock held.
func (h *notificationHub[V]) publish(e Event[V]) {
	h.mu.Lock()
	subs := h.mu.subs
	if h.mu.limiter != nil && len(subs) > 0 {
		if ok, _ := h.mu.limiter.TryToFulfill(1); !ok {
			h.mu.dropped++
			h.mu.Unlock()
			h.instruments.eventDropped()
			return
		}
	}
	h.mu.Unlock()

	var delivered, failed uint64
	for i := range subs {
		ok, err := h.deliver(&subs[i], e)
		if err != nil {
			failed++
			h.logger.Errorf("mibtable: listener failed on %s: %v", e, err)
			h.instruments.listenerError()
		}
		if ok {
			delivered++
		}
	}

	h.mu.Lock()
	h.mu.delivered += delivered
	h.mu.listenerErrors += failed
	h.mu.Unlock()
}

// deliver invokes a single subscription, converting a panic into an error. It
// returns whether the listener was invoked.
func (h *notificationHub[V]) deliver(s *subscription[V], e Event[V]) (invoked bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Newf("listener panic: %v", r)
		}
	}()
	if s.filter != nil && !s.filter(&e) {
		return false, nil
	}
	invoked = true
	return invoked, s.listener.RowChanged(e, s.handback)
}
