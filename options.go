// Copyright 2011 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package mibtable

import (
	"bytes"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/crlib/crstrings"
	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/mibtable/rowstatus"
)

const defaultInitialCapacity = 16

// Options holds the optional parameters for configuring a table. The zero
// value is a valid configuration once EnsureDefaults has been called.
type Options struct {
	// Name identifies the table in log messages and metric labels.
	Name string

	// DisableCreation administratively disables creation of rows through the
	// row status lifecycle. It can be toggled at runtime with
	// Table.SetCreationEnabled. Rows added directly with Table.AddRow are not
	// affected.
	DisableCreation bool

	// ControlColumn is the column id of the row status column. Zero means the
	// table has no control column; SETs against new rows are then treated as
	// createAndGo.
	ControlColumn uint32

	// Columns lists the column ids defined for every row. It is sorted and
	// deduplicated by EnsureDefaults. Table walks visit columns in this order.
	Columns []uint32

	// InitialCapacity is the number of rows the index has room for before it
	// first grows.
	InitialCapacity int

	// MaxEventsPerSecond throttles notification delivery. Events beyond the
	// budget are dropped and counted in Metrics.EventsDropped. Zero disables
	// throttling.
	MaxEventsPerSecond float64

	// Codec converts between control column values and row states. Defaults to
	// rowstatus.IntegerCodec.
	Codec rowstatus.Codec

	// Logger used to write log messages.
	//
	// The default logger uses the Go standard library log package.
	Logger Logger

	// Clock supplies event timestamps. Defaults to time.Now.
	Clock func() time.Time

	// Instruments, if set, receives Prometheus measurements for the table.
	Instruments *Instruments
}

// EnsureDefaults ensures that the default values for all options are set if a
// valid value was not already specified.
func (o *Options) EnsureDefaults() {
	if o.InitialCapacity <= 0 {
		o.InitialCapacity = defaultInitialCapacity
	}
	if o.Codec == nil {
		o.Codec = rowstatus.IntegerCodec{}
	}
	if o.Logger == nil {
		o.Logger = DefaultLogger{}
	}
	if o.Clock == nil {
		o.Clock = time.Now
	}
	if len(o.Columns) > 0 {
		o.Columns = slices.Clone(o.Columns)
		slices.Sort(o.Columns)
		o.Columns = slices.Compact(o.Columns)
	}
}

// Validate verifies that the options are mutually consistent. EnsureDefaults
// must have been called.
func (o *Options) Validate() error {
	var buf strings.Builder
	if len(o.Columns) > 0 && o.Columns[0] == 0 {
		fmt.Fprintf(&buf, "Columns must not contain column 0\n")
	}
	if o.ControlColumn != 0 && len(o.Columns) > 0 {
		if _, ok := slices.BinarySearch(o.Columns, o.ControlColumn); !ok {
			fmt.Fprintf(&buf, "ControlColumn (%d) is not one of Columns %v\n", o.ControlColumn, o.Columns)
		}
	}
	if o.MaxEventsPerSecond < 0 {
		fmt.Fprintf(&buf, "MaxEventsPerSecond (%f) must be >= 0\n", o.MaxEventsPerSecond)
	}
	if buf.Len() == 0 {
		return nil
	}
	return errors.New(buf.String())
}

// Clone creates a shallow-copy of the supplied options.
func (o *Options) Clone() *Options {
	n := &Options{}
	if o != nil {
		*n = *o
		n.Columns = slices.Clone(o.Columns)
	}
	return n
}

// String returns the textual form of the options that can be restored with
// Parse. Options that are not textual (the codec, logger, clock and
// instruments) are omitted.
func (o *Options) String() string {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "[Table]\n")
	if o.Name != "" {
		fmt.Fprintf(&buf, "  name=%s\n", o.Name)
	}
	fmt.Fprintf(&buf, "  creation_enabled=%t\n", !o.DisableCreation)
	fmt.Fprintf(&buf, "  control_column=%d\n", o.ControlColumn)
	cols := make([]string, len(o.Columns))
	for i, c := range o.Columns {
		cols[i] = strconv.FormatUint(uint64(c), 10)
	}
	fmt.Fprintf(&buf, "  columns=%s\n", strings.Join(cols, ","))
	fmt.Fprintf(&buf, "  initial_capacity=%d\n", o.InitialCapacity)
	fmt.Fprint(&buf, crstrings.If(o.MaxEventsPerSecond > 0,
		fmt.Sprintf("  max_events_per_second=%g\n", o.MaxEventsPerSecond)))
	return buf.String()
}

// Parse parses the options from the specified string, in the form produced by
// String. Blank lines and lines starting with ';' or '#' are ignored.
func (o *Options) Parse(s string) error {
	var section string
	for lineNum, line := range crstrings.Lines(s) {
		line = strings.TrimSpace(line)
		if len(line) == 0 || line[0] == ';' || line[0] == '#' {
			continue
		}
		n := len(line)
		if line[0] == '[' && line[n-1] == ']' {
			section = line[1 : n-1]
			if section != "Table" {
				return errors.Errorf("mibtable: unknown section: %s", errors.Safe(section))
			}
			continue
		}
		pos := strings.Index(line, "=")
		if pos < 0 {
			return errors.Errorf("mibtable: invalid key=value syntax on line %d: %q",
				errors.Safe(lineNum+1), errors.Safe(line))
		}
		if section == "" {
			return errors.Errorf("mibtable: option outside of a section on line %d", errors.Safe(lineNum+1))
		}
		key := strings.TrimSpace(line[:pos])
		value := strings.TrimSpace(line[pos+1:])

		var err error
		switch key {
		case "name":
			o.Name = value
		case "creation_enabled":
			var enabled bool
			enabled, err = strconv.ParseBool(value)
			o.DisableCreation = !enabled
		case "control_column":
			var c uint64
			c, err = strconv.ParseUint(value, 10, 32)
			o.ControlColumn = uint32(c)
		case "columns":
			o.Columns, err = parseColumnList(value)
		case "initial_capacity":
			o.InitialCapacity, err = strconv.Atoi(value)
		case "max_events_per_second":
			o.MaxEventsPerSecond, err = strconv.ParseFloat(value, 64)
		default:
			return errors.Errorf("mibtable: unknown option: %s.%s",
				errors.Safe(section), errors.Safe(key))
		}
		if err != nil {
			return errors.Wrapf(err, "mibtable: parsing %s.%s", errors.Safe(section), errors.Safe(key))
		}
	}
	return nil
}

func parseColumnList(value string) ([]uint32, error) {
	if value == "" {
		return nil, nil
	}
	parts := strings.Split(value, ",")
	cols := make([]uint32, 0, len(parts))
	for _, p := range parts {
		c, err := strconv.ParseUint(strings.TrimSpace(p), 10, 32)
		if err != nil {
			return nil, err
		}
		cols = append(cols, uint32(c))
	}
	return cols, nil
}
