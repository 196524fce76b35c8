// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package graph

import (
	"context"
	"runtime"
	"sort"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/AleutianAI/loom/resource"
	"github.com/AleutianAI/loom/schema"
)

// PlanOrdering selects how a plan's steps are grouped into stages.
type PlanOrdering int

const (
	// Topological stages steps so that every step's dependencies are in
	// earlier stages, allowing steps within a stage to run concurrently.
	Topological PlanOrdering = iota

	// Appearance executes steps in document order, one stage per step,
	// batching only consecutive side-effect free steps.
	Appearance
)

// String returns the ordering's name.
func (o PlanOrdering) String() string {
	if o == Appearance {
		return "Appearance"
	}
	return "Topological"
}

// PlanOptions configures plan generation.
type PlanOptions struct {
	// Ordering of steps, Topological by default.
	Ordering PlanOrdering

	// MaxConcurrency caps the number of steps in any one stage. Zero or
	// negative means the number of CPUs.
	MaxConcurrency int
}

// Step is one resource to execute.
type Step struct {
	// Info of the code resource to execute.
	Info *resource.Info
}

// ResourceID returns the id of the step's resource.
func (s Step) ResourceID() string {
	return s.Info.Resource.ID()
}

// Stage is a set of steps that may execute concurrently. Stages execute
// sequentially in order.
type Stage struct {
	Steps []Step
}

// Plan is an ordered set of stages to execute.
type Plan struct {
	Ordering PlanOrdering
	Stages   []Stage
}

// StepCount returns the total number of steps across all stages.
func (p Plan) StepCount() int {
	count := 0
	for _, stage := range p.Stages {
		count += len(stage.Steps)
	}
	return count
}

// Plan generates an execution plan.
//
// With no start resources, the plan covers every code resource that needs
// executing: those marked Always, and stale ones marked WhenNecessary.
// With start resources, the plan covers each start resource regardless of
// staleness, its stale upstream dependencies, and its downstream
// dependents (which executing the start will make stale) - in both
// directions skipping resources marked Never.
func (g *Graph) Plan(ctx context.Context, start []string, options PlanOptions) (Plan, error) {
	_, span := tracer.Start(ctx, "graph.Plan")
	defer span.End()

	if options.MaxConcurrency <= 0 {
		options.MaxConcurrency = runtime.NumCPU()
	}

	targeted := make(map[string]bool, len(start))
	for _, id := range start {
		targeted[id] = true
	}

	include := make(map[string]bool)
	if len(start) == 0 {
		for _, id := range g.order {
			info := g.infos[id]
			if info.Resource.Kind != resource.KindCode {
				continue
			}
			switch auto(info) {
			case schema.ExecuteAutoAlways:
				include[id] = true
			case schema.ExecuteAutoWhenNecessary:
				if info.IsStale() {
					include[id] = true
				}
			}
		}
	} else {
		for _, id := range start {
			info, err := g.Get(id)
			if err != nil {
				span.SetStatus(codes.Error, err.Error())
				return Plan{}, err
			}
			include[id] = true
			for _, dep := range info.Dependencies {
				depID := dep.ID()
				depInfo := g.infos[depID]
				if dep.Kind == resource.KindCode && depInfo.IsStale() && auto(depInfo) != schema.ExecuteAutoNever {
					include[depID] = true
				}
			}
			for _, dependent := range info.Dependents {
				depID := dependent.ID()
				if dependent.Kind == resource.KindCode && auto(g.infos[depID]) != schema.ExecuteAutoNever {
					include[depID] = true
				}
			}
		}
	}

	g.excludeAfterNever(include, targeted, options.Ordering)

	ordered := make([]*resource.Info, 0, len(include))
	for _, id := range g.order {
		if include[id] {
			ordered = append(ordered, g.infos[id])
		}
	}

	var plan Plan
	plan.Ordering = options.Ordering
	switch options.Ordering {
	case Appearance:
		plan.Stages = stagesByAppearance(ordered, options.MaxConcurrency)
	default:
		plan.Stages = stagesByDepth(ordered, options.MaxConcurrency)
	}

	span.SetAttributes(
		attribute.String("plan.ordering", options.Ordering.String()),
		attribute.Int("plan.stages", len(plan.Stages)),
		attribute.Int("plan.steps", plan.StepCount()),
	)
	return plan, nil
}

// excludeAfterNever drops resources that would execute against an
// upstream marked Never: its transitive dependents under Topological
// ordering, everything after it in document order under Appearance.
// Directly targeted start resources stay.
func (g *Graph) excludeAfterNever(include map[string]bool, targeted map[string]bool, ordering PlanOrdering) {
	if ordering == Appearance {
		blocked := false
		for _, id := range g.order {
			info := g.infos[id]
			if info.Resource.Kind != resource.KindCode {
				continue
			}
			if blocked && !targeted[id] {
				delete(include, id)
			}
			if auto(info) == schema.ExecuteAutoNever && !targeted[id] {
				blocked = true
			}
		}
		return
	}
	for _, id := range g.order {
		info := g.infos[id]
		if info.Resource.Kind != resource.KindCode || auto(info) != schema.ExecuteAutoNever || targeted[id] {
			continue
		}
		for _, dependent := range info.Dependents {
			depID := dependent.ID()
			if !targeted[depID] {
				delete(include, depID)
			}
		}
	}
}

func auto(info *resource.Info) schema.ExecuteAuto {
	if info.ExecuteAuto != nil {
		return *info.ExecuteAuto
	}
	return schema.ExecuteAutoWhenNecessary
}

// stagesByDepth groups steps by dependency depth. Every dependency of a
// resource has strictly smaller depth, so a depth class is a valid
// concurrent stage; classes larger than maxConcurrency are chunked.
func stagesByDepth(ordered []*resource.Info, maxConcurrency int) []Stage {
	byDepth := make(map[int][]*resource.Info)
	var depths []int
	for _, info := range ordered {
		if _, ok := byDepth[info.Depth]; !ok {
			depths = append(depths, info.Depth)
		}
		byDepth[info.Depth] = append(byDepth[info.Depth], info)
	}
	sort.Ints(depths)

	var stages []Stage
	for _, depth := range depths {
		infos := byDepth[depth]
		for from := 0; from < len(infos); from += maxConcurrency {
			to := from + maxConcurrency
			if to > len(infos) {
				to = len(infos)
			}
			stage := Stage{}
			for _, info := range infos[from:to] {
				stage.Steps = append(stage.Steps, Step{Info: info})
			}
			stages = append(stages, stage)
		}
	}
	return stages
}

// stagesByAppearance emits one stage per step in document order, except
// that runs of consecutive pure steps are batched into one stage. An
// impure step must see every earlier step's effects, so it always starts
// a new stage and runs alone.
func stagesByAppearance(ordered []*resource.Info, maxConcurrency int) []Stage {
	var stages []Stage
	for _, info := range ordered {
		step := Step{Info: info}
		last := len(stages) - 1
		if info.IsPure() && last >= 0 &&
			len(stages[last].Steps) < maxConcurrency &&
			allPure(stages[last]) {
			stages[last].Steps = append(stages[last].Steps, step)
			continue
		}
		stages = append(stages, Stage{Steps: []Step{step}})
	}
	return stages
}

func allPure(stage Stage) bool {
	for _, step := range stage.Steps {
		if !step.Info.IsPure() {
			return false
		}
	}
	return true
}
