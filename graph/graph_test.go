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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/loom/resource"
	"github.com/AleutianAI/loom/schema"
)

const path = "report.md"

func codeInfo(id, text string, relations ...resource.Pair) *resource.Info {
	info := resource.NewInfo(resource.Code(path, id, "CodeChunk", "calc"))
	info.Relations = relations
	digest := resource.DigestFromStrings(text, text)
	info.CompileDigest = &digest
	return info
}

func assigns(name string) resource.Pair {
	return resource.Pair{Relation: resource.RelationAssigns, Object: resource.Symbol(path, name, "")}
}

func uses(name string) resource.Pair {
	return resource.Pair{Relation: resource.RelationUses, Object: resource.Symbol(path, name, "")}
}

// chain returns a three chunk fixture: c1 assigns x, c2 derives y from x,
// c3 derives z from both.
func chain() []*resource.Info {
	return []*resource.Info{
		codeInfo("c1", "x = 1", assigns("x")),
		codeInfo("c2", "y = x * 2", uses("x"), assigns("y")),
		codeInfo("c3", "z = y + x", uses("x"), uses("y"), assigns("z")),
	}
}

func executeAll(t *testing.T, g *Graph, infos []*resource.Info) {
	t.Helper()
	for _, info := range infos {
		info.DidExecute(false)
		require.NoError(t, g.Update(context.Background()))
	}
}

func TestUpdateDerivesDepthsAndDependencies(t *testing.T) {
	infos := chain()
	g, err := New(context.Background(), path, infos)
	require.NoError(t, err)

	assert.True(t, g.Contains("symbol://report.md#x"), "symbols become nodes of their own")
	assert.Equal(t, 0, infos[0].Depth)
	assert.Equal(t, 2, infos[1].Depth, "c2 depends on c1 via the symbol x")
	assert.Equal(t, 4, infos[2].Depth)

	depIDs := func(resources []resource.Resource) []string {
		var ids []string
		for _, r := range resources {
			ids = append(ids, r.ID())
		}
		return ids
	}

	assert.Contains(t, depIDs(infos[2].Dependencies), "code://report.md#c1")
	assert.Contains(t, depIDs(infos[2].Dependencies), "code://report.md#c2")
	assert.Contains(t, depIDs(infos[2].Dependencies), "symbol://report.md#y")

	assert.Contains(t, depIDs(infos[0].Dependents), "code://report.md#c2")
	assert.Contains(t, depIDs(infos[0].Dependents), "code://report.md#c3")
}

func TestUpdatePropagatesStaleness(t *testing.T) {
	infos := chain()
	g, err := New(context.Background(), path, infos)
	require.NoError(t, err)

	for _, info := range infos {
		assert.True(t, info.IsStale(), "never executed: %s", info.Resource.ID())
	}

	executeAll(t, g, infos)
	for _, info := range infos {
		assert.False(t, info.IsStale(), "freshly executed: %s", info.Resource.ID())
	}

	// Edit c1; its dependents become stale without being edited themselves.
	edited := resource.DigestFromStrings("x = 42", "x = 42")
	infos[0].CompileDigest = &edited
	require.NoError(t, g.Update(context.Background()))

	assert.True(t, infos[0].IsStale())
	assert.True(t, infos[1].IsStale())
	assert.True(t, infos[2].IsStale())
	assert.Equal(t, uint32(2), infos[2].CompileDigest.StaleCount)
}

func TestUpdateCountsFailures(t *testing.T) {
	infos := chain()
	g, err := New(context.Background(), path, infos)
	require.NoError(t, err)

	infos[0].DidExecute(true)
	require.NoError(t, g.Update(context.Background()))

	assert.True(t, infos[0].IsFail())
	assert.Equal(t, uint32(1), infos[1].CompileDigest.FailedCount)
	assert.Equal(t, uint32(1), infos[2].CompileDigest.FailedCount)
}

func TestNewRejectsCycles(t *testing.T) {
	infos := []*resource.Info{
		codeInfo("c1", "x = y", uses("y"), assigns("x")),
		codeInfo("c2", "y = x", uses("x"), assigns("y")),
	}

	_, err := New(context.Background(), path, infos)
	assert.ErrorIs(t, err, ErrCyclicDependency)
}

func TestSelfReferenceIsNotACycle(t *testing.T) {
	infos := []*resource.Info{
		codeInfo("c1", "x = x + 1", uses("x"), assigns("x")),
	}

	_, err := New(context.Background(), path, infos)
	assert.NoError(t, err)
}

func TestPlanTopological(t *testing.T) {
	infos := chain()
	g, err := New(context.Background(), path, infos)
	require.NoError(t, err)

	plan, err := g.Plan(context.Background(), nil, PlanOptions{})
	require.NoError(t, err)
	assert.Equal(t, 3, plan.StepCount(), "all chunks are stale")

	// Every step's dependencies appear in an earlier stage.
	seen := make(map[string]bool)
	for _, stage := range plan.Stages {
		for _, step := range stage.Steps {
			for _, dep := range step.Info.Dependencies {
				if dep.Kind == resource.KindCode {
					assert.True(t, seen[dep.ID()], "%s before its dependent", dep.ID())
				}
			}
		}
		for _, step := range stage.Steps {
			seen[step.ResourceID()] = true
		}
	}

	executeAll(t, g, infos)
	plan, err = g.Plan(context.Background(), nil, PlanOptions{})
	require.NoError(t, err)
	assert.Zero(t, plan.StepCount(), "nothing stale, nothing planned")
}

func TestPlanRespectsMaxConcurrency(t *testing.T) {
	infos := []*resource.Info{
		codeInfo("c1", "a = 1", assigns("a")),
		codeInfo("c2", "b = 2", assigns("b")),
		codeInfo("c3", "c = 3", assigns("c")),
		codeInfo("c4", "d = 4", assigns("d")),
	}
	g, err := New(context.Background(), path, infos)
	require.NoError(t, err)

	plan, err := g.Plan(context.Background(), nil, PlanOptions{MaxConcurrency: 2})
	require.NoError(t, err)

	assert.Equal(t, 4, plan.StepCount())
	require.Len(t, plan.Stages, 2)
	for _, stage := range plan.Stages {
		assert.LessOrEqual(t, len(stage.Steps), 2)
	}
}

func TestPlanAppearanceBatchesPureRuns(t *testing.T) {
	pure := func(id, text string, names ...string) *resource.Info {
		var rels []resource.Pair
		for _, name := range names {
			rels = append(rels, uses(name))
		}
		return codeInfo(id, text, rels...)
	}

	infos := []*resource.Info{
		codeInfo("c1", "x = 1", assigns("x")),
		pure("c2", "x + 1", "x"),
		pure("c3", "x + 2", "x"),
		codeInfo("c4", "y = x", uses("x"), assigns("y")),
	}
	g, err := New(context.Background(), path, infos)
	require.NoError(t, err)

	plan, err := g.Plan(context.Background(), nil, PlanOptions{Ordering: Appearance, MaxConcurrency: 8})
	require.NoError(t, err)

	// c1 alone (impure), then c2+c3 batched (pure run), then c4 alone.
	require.Len(t, plan.Stages, 3)
	assert.Len(t, plan.Stages[0].Steps, 1)
	assert.Len(t, plan.Stages[1].Steps, 2)
	assert.Len(t, plan.Stages[2].Steps, 1)
}

func TestPlanFromStart(t *testing.T) {
	infos := chain()
	g, err := New(context.Background(), path, infos)
	require.NoError(t, err)
	executeAll(t, g, infos)

	// With everything fresh, planning from c2 re-executes it anyway,
	// plus its dependent c3, but not the fresh dependency c1.
	plan, err := g.Plan(context.Background(), []string{"code://report.md#c2"}, PlanOptions{})
	require.NoError(t, err)

	var ids []string
	for _, stage := range plan.Stages {
		for _, step := range stage.Steps {
			ids = append(ids, step.ResourceID())
		}
	}
	assert.Equal(t, []string{"code://report.md#c2", "code://report.md#c3"}, ids)

	_, err = g.Plan(context.Background(), []string{"code://report.md#nope"}, PlanOptions{})
	assert.ErrorIs(t, err, ErrResourceNotFound)
}

func TestPlanSkipsNever(t *testing.T) {
	infos := chain()
	never := schema.ExecuteAutoNever
	infos[2].ExecuteAuto = &never

	g, err := New(context.Background(), path, infos)
	require.NoError(t, err)

	plan, err := g.Plan(context.Background(), nil, PlanOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, plan.StepCount())

	for _, stage := range plan.Stages {
		for _, step := range stage.Steps {
			assert.NotEqual(t, "code://report.md#c3", step.ResourceID())
		}
	}
}

func TestPlanNeverExcludesDownstream(t *testing.T) {
	infos := chain()
	never := schema.ExecuteAutoNever
	infos[0].ExecuteAuto = &never

	g, err := New(context.Background(), path, infos)
	require.NoError(t, err)

	// c2 and c3 would execute against a c1 that is never run, so they are
	// excluded along with it.
	plan, err := g.Plan(context.Background(), nil, PlanOptions{})
	require.NoError(t, err)
	assert.Zero(t, plan.StepCount())

	// Explicitly starting from c2 overrides the exclusion for c2 itself,
	// but not for its own dependent c3.
	plan, err = g.Plan(context.Background(), []string{"code://report.md#c2"}, PlanOptions{})
	require.NoError(t, err)

	var ids []string
	for _, stage := range plan.Stages {
		for _, step := range stage.Steps {
			ids = append(ids, step.ResourceID())
		}
	}
	assert.Equal(t, []string{"code://report.md#c2"}, ids)
}

func TestPlanAppearanceTruncatesAfterNever(t *testing.T) {
	infos := []*resource.Info{
		codeInfo("c1", "a = 1", assigns("a")),
		codeInfo("c2", "b = 2", assigns("b")),
		codeInfo("c3", "c = 3", assigns("c")),
	}
	never := schema.ExecuteAutoNever
	infos[1].ExecuteAuto = &never

	g, err := New(context.Background(), path, infos)
	require.NoError(t, err)

	// In document order nothing after a Never chunk runs, even when
	// independent of it: c3 may observe side effects c2 never produced.
	plan, err := g.Plan(context.Background(), nil, PlanOptions{Ordering: Appearance})
	require.NoError(t, err)

	var ids []string
	for _, stage := range plan.Stages {
		for _, step := range stage.Steps {
			ids = append(ids, step.ResourceID())
		}
	}
	assert.Equal(t, []string{"code://report.md#c1"}, ids)
}
