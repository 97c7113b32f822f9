// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
	"github.com/cockroachdb/crlib/crhumanize"
	"github.com/cockroachdb/crlib/crtime"
	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/mibtable"
	"github.com/cockroachdb/mibtable/rowstatus"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var benchCmd = &cobra.Command{
	Use:   "bench",
	Short: "benchmark concurrent row creation, walks and removal",
	Long: `
Run concurrent workers against one table. Each worker cycles through its own
range of rows, creating each row with a createAndGo SET, walking the table with
GET-NEXT, and destroying the row again.
`,
	Args: cobra.NoArgs,
	RunE: runBench,
}

const (
	minLatency = 100 * time.Nanosecond
	maxLatency = 10 * time.Second
)

type namedHistogram struct {
	name string
	mu   struct {
		sync.Mutex
		hist *hdrhistogram.Histogram
	}
}

func newNamedHistogram(name string) *namedHistogram {
	w := &namedHistogram{name: name}
	w.mu.hist = hdrhistogram.New(minLatency.Nanoseconds(), maxLatency.Nanoseconds(), 2)
	return w
}

func (w *namedHistogram) Record(elapsed time.Duration) {
	elapsed = min(max(elapsed, minLatency), maxLatency)

	w.mu.Lock()
	err := w.mu.hist.RecordValue(elapsed.Nanoseconds())
	w.mu.Unlock()

	if err != nil {
		// Values are clamped to the histogram range.
		panic(fmt.Sprintf(`%s: recording value: %s`, w.name, err))
	}
}

func (w *namedHistogram) row() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	h := w.mu.hist
	q := func(p float64) string {
		return time.Duration(h.ValueAtQuantile(p)).String()
	}
	return []string{
		w.name,
		string(crhumanize.Count(h.TotalCount(), crhumanize.Compact)),
		q(50), q(95), q(99),
		time.Duration(h.Max()).String(),
	}
}

type benchResults struct {
	create  *namedHistogram
	walk    *namedHistogram
	destroy *namedHistogram
	errors  atomic.Int64
}

func runBench(cmd *cobra.Command, _ []string) error {
	opts, err := loadOptions(cmd)
	if err != nil {
		return err
	}
	if opts.ControlColumn == 0 {
		return errors.New("bench requires a control column")
	}
	if benchRows <= 0 || concurrency <= 0 {
		return errors.Newf("--rows (%d) and --concurrency (%d) must be positive", benchRows, concurrency)
	}
	ctx, cancel := context.WithTimeout(context.Background(), duration)
	defer cancel()
	return bench(ctx, os.Stdout, opts, concurrency, benchRows, walkPerWrite)
}

func bench(
	ctx context.Context, out io.Writer, opts *mibtable.Options, workers, rows, walks int,
) error {
	tbl, err := mibtable.New(opts, mibtable.Hooks[int]{
		Factory: mibtable.FactoryFuncs[int]{
			CreateFn: func(_ mibtable.RowKey, depth int, _ any) (int, error) {
				return depth, nil
			},
		},
	})
	if err != nil {
		return err
	}
	if verbose {
		tbl.Subscribe(mibtable.MakeLoggingListener[int](nil), nil, nil)
	}
	res := &benchResults{
		create:  newNamedHistogram("create"),
		walk:    newNamedHistogram("walk"),
		destroy: newNamedHistogram("destroy"),
	}

	start := crtime.NowMono()
	g, ctx := errgroup.WithContext(ctx)
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			return benchWorker(ctx, tbl, res, uint32(w), rows, walks)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	elapsed := start.Elapsed()

	tw := tablewriter.NewWriter(out)
	tw.SetHeader([]string{"op", "ops", "p50", "p95", "p99", "max"})
	for _, h := range []*namedHistogram{res.create, res.walk, res.destroy} {
		tw.Append(h.row())
	}
	tw.Render()
	fmt.Fprintf(out, "%d workers, %s elapsed, %d refused actions\n",
		workers, elapsed.Round(time.Millisecond), res.errors.Load())
	fmt.Fprint(out, tbl.Metrics().String())
	return tbl.CheckInvariants()
}

func benchWorker(
	ctx context.Context, tbl *mibtable.Table[int], res *benchResults, id uint32, rows, walks int,
) error {
	columns := tbl.Options().Columns
	for i := 0; ; i++ {
		if ctx.Err() != nil {
			return nil
		}
		key := mibtable.MakeRowKey(id, uint32(i%rows))

		begin := crtime.NowMono()
		if err := commitAction(tbl, key, rowstatus.CreateAndGo, len(columns)); err != nil {
			if !errors.Is(err, mibtable.ErrInconsistentValue) {
				return err
			}
			res.errors.Add(1)
		}
		res.create.Record(begin.Elapsed())

		var req mibtable.WalkRequest
		for j := 0; j < walks; j++ {
			begin = crtime.NowMono()
			k, c, err := tbl.WalkNext(req)
			res.walk.Record(begin.Elapsed())
			if errors.Is(err, mibtable.ErrNotFound) {
				req = mibtable.WalkRequest{}
				continue
			} else if err != nil {
				return err
			}
			req.Key, req.Column = k, c
		}

		// Rows are destroyed one step behind creation so the table is never
		// empty.
		if i > 0 {
			prev := mibtable.MakeRowKey(id, uint32((i-1)%rows))
			begin = crtime.NowMono()
			if err := commitAction(tbl, prev, rowstatus.Destroy, 1); err != nil {
				return err
			}
			res.destroy.Record(begin.Elapsed())
		}
	}
}

func commitAction(tbl *mibtable.Table[int], key mibtable.RowKey, s rowstatus.State, depth int) error {
	a, err := tbl.BeginAction(mibtable.ActionRequest{Key: key, State: s, Depth: depth})
	if err != nil {
		return err
	}
	_, _, err = a.Commit()
	return err
}
