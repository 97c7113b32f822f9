// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package main

import (
	"fmt"
	"io"
	"log"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/cockroachdb/crlib/crstrings"
	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/mibtable"
	"github.com/cockroachdb/mibtable/internal/base"
	"github.com/cockroachdb/mibtable/rowstatus"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

var replayCmd = &cobra.Command{
	Use:   "replay <script>",
	Short: "run a request script against an in-memory table",
	Long: `
Run a script of management requests against an in-memory table and print the
table when done. Each line of the script is one of:

  add <row> [owner]           add a row directly
  remove <row>                remove a row
  set <row> <col>=<value>...  a SET of one row; the control column takes a
                              row status name or number
  get <row> <col>             a GET of one column
  walk                        walk the whole table with GET-NEXT
  print                       print the table

Blank lines and lines starting with '#' are ignored.
`,
	Args: cobra.ExactArgs(1),
	RunE: runReplay,
}

// row is the payload of a replayed table: the column values and the row
// status the last committed action left.
type row struct {
	values map[uint32]string
	status rowstatus.State
}

// setRequest is the request context of a SET.
type setRequest struct {
	values map[uint32]string
}

type replayer struct {
	out  io.Writer
	opts *mibtable.Options
	tbl  *mibtable.Table[*row]
}

func loadOptions(cmd *cobra.Command) (*mibtable.Options, error) {
	opts := &mibtable.Options{Name: "replay"}
	if optionsFile != "" {
		data, err := os.ReadFile(optionsFile)
		if err != nil {
			return nil, err
		}
		if err := opts.Parse(string(data)); err != nil {
			return nil, errors.Wrapf(err, "%s", optionsFile)
		}
	}
	if optionsFile == "" || cmd.Flags().Changed("columns") {
		opts.Columns = opts.Columns[:0]
		for _, f := range strings.Split(columnsFlag, ",") {
			c, err := strconv.ParseUint(strings.TrimSpace(f), 10, 32)
			if err != nil {
				return nil, errors.Wrapf(err, "invalid column %q", f)
			}
			opts.Columns = append(opts.Columns, uint32(c))
		}
	}
	if optionsFile == "" || cmd.Flags().Changed("control") {
		opts.ControlColumn = controlFlag
	}
	return opts, nil
}

func newReplayer(out io.Writer, opts *mibtable.Options) (*replayer, error) {
	r := &replayer{out: out}
	tbl, err := mibtable.New(opts, mibtable.Hooks[*row]{
		Factory: mibtable.FactoryFuncs[*row]{
			CreateFn: r.create,
		},
		IsRowReady: r.isReady,
		StatusChanged: func(_ mibtable.RowKey, p *row, s rowstatus.State) {
			if p != nil {
				p.status = s
			}
		},
	})
	if err != nil {
		return nil, err
	}
	r.tbl = tbl
	r.opts = tbl.Options()
	if verbose {
		tbl.Subscribe(mibtable.MakeLoggingListener[*row](nil), nil, nil)
	}
	return r, nil
}

func runReplay(cmd *cobra.Command, args []string) error {
	opts, err := loadOptions(cmd)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	r, err := newReplayer(os.Stdout, opts)
	if err != nil {
		return err
	}
	if err := r.run(string(data)); err != nil {
		return err
	}
	r.print()
	return nil
}

// run executes a script. Request failures are printed; malformed lines stop
// the script.
func (r *replayer) run(script string) error {
	for i, line := range crstrings.Lines(script) {
		fields := strings.Fields(line)
		if len(fields) == 0 || strings.HasPrefix(fields[0], "#") {
			continue
		}
		if err := r.exec(fields); err != nil {
			return errors.Wrapf(err, "line %d", errors.Safe(i+1))
		}
	}
	return nil
}

func (r *replayer) exec(fields []string) error {
	cmd, args := fields[0], fields[1:]
	need := func(n int) error {
		if len(args) < n {
			return errors.Errorf("%s: expected %d arguments", cmd, n)
		}
		return nil
	}
	var key mibtable.RowKey
	if len(args) > 0 && cmd != "walk" && cmd != "print" {
		var err error
		if key, err = mibtable.ParseRowKey(args[0]); err != nil {
			return err
		}
	}

	switch cmd {
	case "add":
		if err := need(1); err != nil {
			return err
		}
		owner := ""
		if len(args) > 1 {
			owner = args[1]
		}
		p := &row{values: make(map[uint32]string), status: rowstatus.Active}
		r.report(fmt.Sprintf("add %s", key), r.tbl.AddRow(key, owner, p))

	case "remove":
		if err := need(1); err != nil {
			return err
		}
		r.report(fmt.Sprintf("remove %s", key), r.tbl.RemoveRow(key))

	case "set":
		if err := need(2); err != nil {
			return err
		}
		values := make(map[uint32]string, len(args)-1)
		for _, a := range args[1:] {
			col, val, ok := strings.Cut(a, "=")
			if !ok {
				return errors.Errorf("set: expected <col>=<value>, found %q", a)
			}
			c, err := strconv.ParseUint(col, 10, 32)
			if err != nil {
				return errors.Wrapf(err, "set: column %q", col)
			}
			values[uint32(c)] = val
		}
		state, err := r.set(key, values)
		if err == nil {
			fmt.Fprintf(r.out, "set %s: %s\n", key, state)
		} else {
			r.report(fmt.Sprintf("set %s", key), err)
		}

	case "get":
		if err := need(2); err != nil {
			return err
		}
		c, err := strconv.ParseUint(args[1], 10, 32)
		if err != nil {
			return errors.Wrapf(err, "get: column %q", args[1])
		}
		v, err := r.get(key, uint32(c))
		if err == nil {
			fmt.Fprintf(r.out, "get %s.%d: %s\n", key, c, v)
		} else {
			r.report(fmt.Sprintf("get %s.%d", key, c), err)
		}

	case "walk":
		var req mibtable.WalkRequest
		for {
			k, c, err := r.tbl.WalkNext(req)
			if err != nil {
				if !errors.Is(err, mibtable.ErrNotFound) {
					return err
				}
				break
			}
			v, err := r.get(k, c)
			if err != nil {
				// The row went away between the walk step and the read.
				v = "<" + mibtable.KindOf(err).String() + ">"
			}
			fmt.Fprintf(r.out, "walk %s.%d: %s\n", k, c, v)
			req.Key, req.Column = k, c
		}
		fmt.Fprintf(r.out, "walk: end of table\n")

	case "print":
		r.print()

	default:
		return errors.Errorf("unknown command %q", cmd)
	}
	return nil
}

// report prints the outcome of a request, with the protocol status a failure
// maps to.
func (r *replayer) report(what string, err error) {
	if err == nil {
		fmt.Fprintf(r.out, "%s: ok\n", what)
		return
	}
	kind := base.KindOf(err)
	code, exception := kind.Status()
	label := "status"
	if exception {
		label = "exception"
	}
	fmt.Fprintf(r.out, "%s: %s (%s %d): %v\n", what, kind, label, code, err)
}

// set runs the CHECK and SET phases of a SET request addressing one row.
func (r *replayer) set(key mibtable.RowKey, values map[uint32]string) (rowstatus.State, error) {
	cols := make([]uint32, 0, len(values))
	for c := range values {
		cols = append(cols, c)
	}
	slices.Sort(cols)
	req := &setRequest{values: values}

	routes, err := r.tbl.RouteRow(key, cols, mibtable.PhaseCheck, true /* allowCreation */, req)
	if err != nil {
		return 0, err
	}
	isNew := routes[0].IsNewRow
	raw, present := values[r.opts.ControlColumn]
	present = present && r.opts.ControlColumn != 0
	var control any
	if present {
		control = parseControlValue(raw)
	}
	state, err := r.tbl.ResolveAction(isNew, present, control)
	if err != nil {
		return 0, err
	}
	a, err := r.tbl.BeginAction(mibtable.ActionRequest{
		Key:     key,
		State:   state,
		Depth:   len(cols),
		Context: req,
	})
	if err != nil {
		return 0, err
	}

	// SET phase: the column values are applied before the control column.
	if !isNew {
		if existing, err := r.tbl.GetRow(key); err == nil {
			r.apply(existing.Payload, values)
		}
	}
	s, _, err := a.Commit()
	return s, err
}

// parseControlValue accepts a row status as a number or by name. Anything
// else is passed through for the codec to reject.
func parseControlValue(raw string) any {
	if n, err := strconv.Atoi(raw); err == nil {
		return n
	}
	if s, err := rowstatus.ParseState(raw); err == nil {
		return s
	}
	return raw
}

func (r *replayer) get(key mibtable.RowKey, column uint32) (string, error) {
	if _, err := r.tbl.RouteColumn(mibtable.RouteRequest{
		Key:    key,
		Column: column,
		Phase:  mibtable.PhaseGet,
	}); err != nil {
		return "", err
	}
	rw, err := r.tbl.GetRow(key)
	if err != nil {
		return "", err
	}
	if column == r.opts.ControlColumn {
		return rw.Payload.status.String(), nil
	}
	v, ok := rw.Payload.values[column]
	if !ok {
		return "", mibtable.ErrNoSuchInstance
	}
	return v, nil
}

func (r *replayer) create(_ mibtable.RowKey, depth int, reqCtx any) (*row, error) {
	p := &row{values: make(map[uint32]string, depth)}
	if req, ok := reqCtx.(*setRequest); ok {
		r.apply(p, req.values)
	}
	return p, nil
}

func (r *replayer) apply(p *row, values map[uint32]string) {
	for c, v := range values {
		if c != r.opts.ControlColumn {
			p.values[c] = v
		}
	}
}

// isReady reports whether every column other than the control column has a
// value in the row or in the request being checked.
func (r *replayer) isReady(_ mibtable.RowKey, p *row, reqCtx any) bool {
	req, _ := reqCtx.(*setRequest)
	for _, c := range r.opts.Columns {
		if c == r.opts.ControlColumn {
			continue
		}
		if _, ok := p.values[c]; ok {
			continue
		}
		if req != nil {
			if _, ok := req.values[c]; ok {
				continue
			}
		}
		return false
	}
	return true
}

func (r *replayer) print() {
	header := []string{"Row", "Owner"}
	for _, c := range r.opts.Columns {
		if c != r.opts.ControlColumn {
			header = append(header, strconv.FormatUint(uint64(c), 10))
		}
	}
	header = append(header, "Status")

	tbl := tablewriter.NewWriter(r.out)
	tbl.SetHeader(header)
	r.tbl.Scan(mibtable.RowKey{}, func(rw mibtable.Row[*row]) bool {
		line := []string{rw.Key.String(), rw.Owner}
		for _, c := range r.opts.Columns {
			if c != r.opts.ControlColumn {
				line = append(line, rw.Payload.values[c])
			}
		}
		line = append(line, rw.Payload.status.String())
		tbl.Append(line)
		return true
	})
	tbl.Render()
	if verbose {
		log.Printf("%s", r.tbl.Metrics())
	}
}
