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
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/loom/document"
	"github.com/AleutianAI/loom/graph"
	"github.com/AleutianAI/loom/schema"
)

// openSession reads and compiles the document at path into a fresh
// session. Callers own the returned session and must Close it.
func openSession(ctx context.Context, path string) (*document.Document, error) {
	doc := document.New(path, document.Options{Config: &config, Logger: logger})
	if err := doc.Read(ctx); err != nil {
		doc.Close()
		return nil, err
	}
	return doc, nil
}

func parseOrdering(name string) (graph.PlanOrdering, error) {
	switch strings.ToLower(name) {
	case "", "topological":
		return graph.Topological, nil
	case "appearance":
		return graph.Appearance, nil
	}
	return graph.Topological, fmt.Errorf("unknown ordering %q (topological or appearance)", name)
}

func runGraph(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	doc, err := openSession(ctx, args[0])
	if err != nil {
		return err
	}
	defer doc.Close()

	snapshot, err := doc.GraphSnapshot()
	if err != nil {
		return err
	}
	return printJSON(snapshot)
}

func runPlan(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	doc, err := openSession(ctx, args[0])
	if err != nil {
		return err
	}
	defer doc.Close()

	order, err := parseOrdering(ordering)
	if err != nil {
		return err
	}
	plan, err := doc.Plan(ctx, startID, graph.PlanOptions{Ordering: order, MaxConcurrency: concurrency})
	if err != nil {
		return err
	}

	fmt.Printf("Plan: %d steps in %d stages (%s ordering)\n", plan.StepCount(), len(plan.Stages), plan.Ordering)
	for i, stage := range plan.Stages {
		fmt.Printf("Stage %d:\n", i+1)
		for _, step := range stage.Steps {
			fmt.Printf("  %s\n", step.ResourceID())
		}
	}
	return nil
}

func runParams(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	doc, err := openSession(ctx, args[0])
	if err != nil {
		return err
	}
	defer doc.Close()

	params := doc.Params()
	if len(params) == 0 {
		fmt.Println("No parameters.")
		return nil
	}
	for _, param := range params {
		line := param.Name
		if param.Validator != nil {
			line += " (" + schema.TypeName(param.Validator) + ")"
		}
		if param.Default != nil {
			line += fmt.Sprintf(" default=%v", schema.ToValue(param.Default))
		}
		if param.Value != nil {
			line += fmt.Sprintf(" value=%v", schema.ToValue(param.Value))
		}
		fmt.Println(line)
	}
	return nil
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	doc, err := openSession(ctx, args[0])
	if err != nil {
		return err
	}
	defer doc.Close()

	if len(paramArgs) > 0 {
		values := make(map[string]string, len(paramArgs))
		for _, arg := range paramArgs {
			name, value, ok := strings.Cut(arg, "=")
			if !ok {
				return fmt.Errorf("invalid --param %q, expected name=value", arg)
			}
			values[name] = value
		}
		if err := doc.Call(ctx, values); err != nil {
			return err
		}
	} else {
		order, err := parseOrdering(ordering)
		if err != nil {
			return err
		}
		options := graph.PlanOptions{Ordering: order, MaxConcurrency: concurrency}
		if err := doc.Execute(ctx, startID, options); err != nil {
			return err
		}
	}

	if writeBack {
		return doc.Write(ctx)
	}
	output, err := doc.Dump(formatTo)
	if err != nil {
		return err
	}
	fmt.Print(output)
	return nil
}
