// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package main

import (
	"log"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	columnsFlag  string
	controlFlag  uint32
	optionsFile  string
	verbose      bool
	concurrency  int
	duration     time.Duration
	benchRows    int
	walkPerWrite int
)

var rootCmd = &cobra.Command{
	Use:   "mibtable [command] (flags)",
	Short: "conceptual table replay and benchmarking tool",
	Long:  ``,
}

func main() {
	log.SetFlags(0)

	cobra.EnableCommandSorting = false
	rootCmd.AddCommand(replayCmd, benchCmd)

	for _, cmd := range []*cobra.Command{replayCmd, benchCmd} {
		cmd.Flags().StringVar(
			&columnsFlag, "columns", "1,2,3", "comma separated column ids of the table")
		cmd.Flags().Uint32Var(
			&controlFlag, "control", 3, "column id of the row status column (0 for none)")
		cmd.Flags().StringVar(
			&optionsFile, "options", "", "file holding table options; flags override it")
		cmd.Flags().BoolVarP(
			&verbose, "verbose", "v", false, "log every row added and removed")
	}

	benchCmd.Flags().IntVarP(
		&concurrency, "concurrency", "c", 4, "number of concurrent workers")
	benchCmd.Flags().DurationVarP(
		&duration, "duration", "d", 5*time.Second, "the duration to run")
	benchCmd.Flags().IntVar(
		&benchRows, "rows", 1000, "number of rows each worker cycles through")
	benchCmd.Flags().IntVar(
		&walkPerWrite, "walk", 4, "GET-NEXT steps per row added")

	if err := rootCmd.Execute(); err != nil {
		// Cobra has already printed the error message.
		os.Exit(1)
	}
}
