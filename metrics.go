// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package mibtable

import (
	"time"

	"github.com/cockroachdb/crlib/crhumanize"
	"github.com/cockroachdb/redact"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds counters describing a table's activity since it was created.
type Metrics struct {
	// Rows is the current number of rows.
	Rows uint64
	// Capacity is the number of rows the index can hold before growing.
	Capacity uint64

	// RowsAdded and RowsRemoved count committed structural changes.
	RowsAdded   uint64
	RowsRemoved uint64
	// AddRollbacks counts insertions undone because EntryFactory.OnAdded
	// failed.
	AddRollbacks uint64
	// RemoveCallbackErrors counts EntryFactory.OnRemoved failures.
	RemoveCallbackErrors uint64

	// ActionsBegun, ActionsCommitted and ActionsAborted count row status
	// lifecycle actions.
	ActionsBegun     uint64
	ActionsCommitted uint64
	ActionsAborted   uint64
	// Vetoes counts lifecycle actions refused by the factory or a validation
	// hook during the check phase.
	Vetoes uint64

	// Subscriptions is the current number of listener registrations.
	Subscriptions uint64
	// EventsDelivered counts listener invocations.
	EventsDelivered uint64
	// EventsDropped counts events discarded by the delivery throttle.
	EventsDropped uint64
	// ListenerErrors counts listener invocations that failed or panicked.
	ListenerErrors uint64
}

// String implements fmt.Stringer.
func (m *Metrics) String() string {
	return redact.StringWithoutMarkers(m)
}

// SafeFormat implements redact.SafeFormatter.
func (m *Metrics) SafeFormat(w redact.SafePrinter, _ rune) {
	count := func(v uint64) redact.SafeString {
		return redact.SafeString(crhumanize.Count(v, crhumanize.Compact))
	}
	w.Printf("rows: %s (capacity %s)\n", count(m.Rows), count(m.Capacity))
	w.Printf("structure: %s added, %s removed, %s rolled back, %s remove errors\n",
		count(m.RowsAdded), count(m.RowsRemoved), count(m.AddRollbacks), count(m.RemoveCallbackErrors))
	w.Printf("lifecycle: %s begun, %s committed, %s aborted, %s vetoed\n",
		count(m.ActionsBegun), count(m.ActionsCommitted), count(m.ActionsAborted), count(m.Vetoes))
	w.Printf("notifications: %s subscriptions, %s delivered, %s dropped, %s listener errors\n",
		count(m.Subscriptions), count(m.EventsDelivered), count(m.EventsDropped), count(m.ListenerErrors))
}

// Instruments are the Prometheus collectors a table reports to. A nil
// *Instruments disables reporting.
type Instruments struct {
	RowsAdded      prometheus.Counter
	RowsRemoved    prometheus.Counter
	AddRollbacks   prometheus.Counter
	Vetoes         prometheus.Counter
	ListenerErrors prometheus.Counter
	EventsDropped  prometheus.Counter
	Rows           prometheus.Gauge
	// RouteLatency observes the duration of RouteColumn and WalkNext calls, in
	// seconds.
	RouteLatency prometheus.Histogram
}

// NewInstruments creates unregistered collectors named under the given
// namespace and subsystem. Register them with Collectors.
func NewInstruments(namespace, subsystem string, constLabels prometheus.Labels) *Instruments {
	counter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   subsystem,
			Name:        name,
			Help:        help,
			ConstLabels: constLabels,
		})
	}
	return &Instruments{
		RowsAdded:      counter("rows_added_total", "Rows inserted into the table."),
		RowsRemoved:    counter("rows_removed_total", "Rows removed from the table."),
		AddRollbacks:   counter("add_rollbacks_total", "Insertions rolled back by the entry factory."),
		Vetoes:         counter("lifecycle_vetoes_total", "Row status actions vetoed during the check phase."),
		ListenerErrors: counter("listener_errors_total", "Listener invocations that failed."),
		EventsDropped:  counter("events_dropped_total", "Events dropped by the delivery throttle."),
		Rows: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   subsystem,
			Name:        "rows",
			Help:        "Rows currently in the table.",
			ConstLabels: constLabels,
		}),
		RouteLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   namespace,
			Subsystem:   subsystem,
			Name:        "route_latency_seconds",
			Help:        "Latency of request routing and table walk steps.",
			ConstLabels: constLabels,
			Buckets:     prometheus.ExponentialBuckets(1e-6, 4, 10),
		}),
	}
}

// Collectors returns the collectors for registration with a
// prometheus.Registerer.
func (i *Instruments) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		i.RowsAdded, i.RowsRemoved, i.AddRollbacks, i.Vetoes,
		i.ListenerErrors, i.EventsDropped, i.Rows, i.RouteLatency,
	}
}

func (i *Instruments) rowAdded(rows int) {
	if i != nil {
		i.RowsAdded.Inc()
		i.Rows.Set(float64(rows))
	}
}

func (i *Instruments) rowRemoved(rows int) {
	if i != nil {
		i.RowsRemoved.Inc()
		i.Rows.Set(float64(rows))
	}
}

func (i *Instruments) addRolledBack() {
	if i != nil {
		i.AddRollbacks.Inc()
	}
}

func (i *Instruments) vetoed() {
	if i != nil {
		i.Vetoes.Inc()
	}
}

func (i *Instruments) listenerError() {
	if i != nil {
		i.ListenerErrors.Inc()
	}
}

func (i *Instruments) eventDropped() {
	if i != nil {
		i.EventsDropped.Inc()
	}
}

func (i *Instruments) routed(d time.Duration) {
	if i != nil {
		i.RouteLatency.Observe(d.Seconds())
	}
}
