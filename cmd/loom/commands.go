// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"github.com/spf13/cobra"
)

// --- Global Command Variables ---
var (
	configPath string
	logDir     string
	logJSON    bool
	verbose    bool

	formatFrom  string
	formatTo    string
	startID     string
	ordering    string
	concurrency int
	writeBack   bool
	paramArgs   []string

	rootCmd = &cobra.Command{
		Use:   "loom",
		Short: "A cli for executable documents with reactive code dependencies",
		Long: `Loom opens documents whose code blocks form a dependency graph,
executes them in dependency order, and keeps outputs in the document
up to date as code and files change.`,
		SilenceUsage: true,
	}

	// --- Sessions ---
	openCmd = &cobra.Command{
		Use:   "open [file]",
		Short: "Open a document session, watch its file, and stream its events",
		Args:  cobra.ExactArgs(1),
		RunE:  runOpen, // Defined in cmd_open.go
	}

	// --- Inspection ---
	showCmd = &cobra.Command{
		Use:   "show [file]",
		Short: "Decode a document and print it in another format",
		Args:  cobra.ExactArgs(1),
		RunE:  runShow, // Defined in cmd_show.go
	}
	graphCmd = &cobra.Command{
		Use:   "graph [file]",
		Short: "Print the document's dependency graph as JSON",
		Args:  cobra.ExactArgs(1),
		RunE:  runGraph, // Defined in cmd_run.go
	}
	planCmd = &cobra.Command{
		Use:   "plan [file]",
		Short: "Print the execution plan without running it",
		Args:  cobra.ExactArgs(1),
		RunE:  runPlan, // Defined in cmd_run.go
	}
	paramsCmd = &cobra.Command{
		Use:   "params [file]",
		Short: "List the document's parameters",
		Args:  cobra.ExactArgs(1),
		RunE:  runParams, // Defined in cmd_run.go
	}

	// --- Execution ---
	runCmd = &cobra.Command{
		Use:   "run [file]",
		Short: "Execute a document's code and print (or write back) the result",
		Args:  cobra.ExactArgs(1),
		RunE:  runRun, // Defined in cmd_run.go
	}

	// --- Utilities ---
	diffCmd = &cobra.Command{
		Use:   "diff [old] [new]",
		Short: "Print the patch that turns one document into another",
		Args:  cobra.ExactArgs(2),
		RunE:  runDiff, // Defined in cmd_show.go
	}
	convertCmd = &cobra.Command{
		Use:   "convert [in] [out]",
		Short: "Convert a document between formats",
		Args:  cobra.ExactArgs(2),
		RunE:  runConvert, // Defined in cmd_show.go
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a loom.yaml session config")
	rootCmd.PersistentFlags().StringVar(&logDir, "log-dir", "", "Directory for log files (stderr only when empty)")
	rootCmd.PersistentFlags().BoolVar(&logJSON, "log-json", false, "Log to stderr as JSON")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	showCmd.Flags().StringVar(&formatTo, "to", "json", "Output format")

	planCmd.Flags().StringVar(&startID, "start", "", "Node id to plan from")
	planCmd.Flags().StringVar(&ordering, "ordering", "topological", "Plan ordering: topological or appearance")
	planCmd.Flags().IntVar(&concurrency, "concurrency", 0, "Max steps per stage (0 = number of CPUs)")

	runCmd.Flags().StringVar(&startID, "start", "", "Node id to execute from")
	runCmd.Flags().StringVar(&ordering, "ordering", "topological", "Plan ordering: topological or appearance")
	runCmd.Flags().IntVar(&concurrency, "concurrency", 0, "Max steps per stage (0 = number of CPUs)")
	runCmd.Flags().StringVar(&formatTo, "to", "", "Output format (the file's own format when empty)")
	runCmd.Flags().BoolVarP(&writeBack, "write", "w", false, "Write results back to the file instead of printing")
	runCmd.Flags().StringArrayVarP(&paramArgs, "param", "p", nil, "Parameter value as name=value (repeatable)")

	diffCmd.Flags().StringVar(&formatFrom, "from", "", "Input format (inferred from extensions when empty)")

	convertCmd.Flags().StringVar(&formatFrom, "from", "", "Input format (inferred from the input extension when empty)")
	convertCmd.Flags().StringVar(&formatTo, "to", "", "Output format (inferred from the output extension when empty)")

	rootCmd.AddCommand(openCmd, showCmd, graphCmd, planCmd, paramsCmd, runCmd, diffCmd, convertCmd)
}
