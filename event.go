// Copyright 2018 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package mibtable

import (
	"time"

	"github.com/cockroachdb/redact"
)

// EventType is the kind of structural change an Event reports.
type EventType int8

const (
	// RowAdded reports a row inserted into the table.
	RowAdded EventType = iota + 1
	// RowRemoved reports a row removed from the table.
	RowRemoved
)

// String implements fmt.Stringer.
func (t EventType) String() string {
	switch t {
	case RowAdded:
		return "added"
	case RowRemoved:
		return "removed"
	default:
		return "unknown"
	}
}

// SafeFormat implements redact.SafeFormatter.
func (t EventType) SafeFormat(w redact.SafePrinter, _ rune) {
	w.SafeString(redact.SafeString(t.String()))
}

// Event describes a committed structural change to a table.
type Event[V any] struct {
	Type EventType
	// Time is when the change was committed, according to Options.Clock.
	Time    time.Time
	Key     RowKey
	Owner   string
	Payload V
}

// String implements fmt.Stringer.
func (e Event[V]) String() string {
	return redact.StringWithoutMarkers(e)
}

// SafeFormat implements redact.SafeFormatter. The payload is not printed.
func (e Event[V]) SafeFormat(w redact.SafePrinter, _ rune) {
	w.Printf("row %s %s", e.Key, e.Type)
	if e.Owner != "" {
		w.Printf(" (owner %s)", e.Owner)
	}
}

// Listener receives the events of the tables it is subscribed to.
//
// Listeners are identified by interface equality when unsubscribing, so
// implementations should be pointer types. A listener whose type is not
// comparable (a slice, map or func, or a struct holding one) can be
// subscribed but not unsubscribed. RowChanged is called without any
// table lock held and may call back into the table; the events it causes are
// delivered after it returns. An error or panic is logged and does not affect
// delivery to other listeners.
type Listener[V any] interface {
	RowChanged(e Event[V], handback any) error
}

// EventFilter selects the events delivered to a subscription. A nil filter
// accepts every event.
type EventFilter[V any] func(e *Event[V]) bool

// OnlyType returns a filter accepting events of the given type.
func OnlyType[V any](t EventType) EventFilter[V] {
	return func(e *Event[V]) bool { return e.Type == t }
}

// LoggingListener logs every event it receives.
type LoggingListener[V any] struct {
	logger Logger
}

// MakeLoggingListener creates a listener that logs events to logger.
func MakeLoggingListener[V any](logger Logger) *LoggingListener[V] {
	if logger == nil {
		logger = DefaultLogger{}
	}
	return &LoggingListener[V]{logger: logger}
}

// RowChanged implements Listener.
func (l *LoggingListener[V]) RowChanged(e Event[V], handback any) error {
	if handback != nil {
		l.logger.Infof("[%v] %s", handback, e)
	} else {
		l.logger.Infof("%s", e)
	}
	return nil
}
