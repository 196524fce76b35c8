// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package graph maintains the dependency graph between a document's
// resources and derives execution plans from it.
//
// Nodes are keyed by resource id. An edge u -> v means v depends on u:
// u must execute before v. Edges are derived from the relations that
// parsers discover; relations that modify their object (Assigns, Declares,
// Alters, Writes, Imports) produce an edge from the code to the object,
// all others (Uses, Reads, Calls, ...) produce an edge from the object to
// the code.
package graph

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/AleutianAI/loom/resource"
)

var tracer = otel.Tracer("github.com/AleutianAI/loom/graph")

var (
	// ErrCyclicDependency is returned by Update when the relations imply a
	// dependency cycle. The graph keeps its pre-update derived state.
	ErrCyclicDependency = errors.New("graph: cyclic dependency")

	// ErrResourceNotFound is returned when a referenced resource id is not
	// in the graph.
	ErrResourceNotFound = errors.New("graph: resource not found")
)

// Graph is the dependency graph for one document.
//
// Graph is not safe for concurrent use; the owning document serializes
// access to it.
type Graph struct {
	path string

	// infos keyed by resource id.
	infos map[string]*resource.Info

	// order is resource ids in order of first appearance. Appearance
	// order is the tie-breaker everywhere planning needs determinism.
	order []string

	// dependsOn[v] is the set of direct dependencies of v.
	dependsOn map[string]map[string]bool

	// requiredBy[u] is the set of direct dependents of u.
	requiredBy map[string]map[string]bool
}

// New builds a graph for the document at path from parsed resource infos,
// in order of appearance. Symbols, files and modules referenced by
// relations are added as nodes of their own, then Update derives the
// per-resource dependency state.
func New(ctx context.Context, path string, infos []*resource.Info) (*Graph, error) {
	_, span := tracer.Start(ctx, "graph.New")
	defer span.End()

	g := &Graph{
		path:       path,
		infos:      make(map[string]*resource.Info),
		dependsOn:  make(map[string]map[string]bool),
		requiredBy: make(map[string]map[string]bool),
	}

	for _, info := range infos {
		g.add(info)
	}
	for _, info := range infos {
		subject := info.Resource.ID()
		for _, pair := range info.Relations {
			object := pair.Object.ID()
			if _, ok := g.infos[object]; !ok {
				g.add(pair.Object.Info())
			}
			if pair.Relation.Modifies() {
				g.link(subject, object)
			} else if pair.Relation.DependsOnObject() {
				g.link(object, subject)
			}
		}
	}

	span.SetAttributes(
		attribute.String("document.path", path),
		attribute.Int("graph.resources", len(g.infos)),
	)

	if err := g.Update(ctx); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return g, err
	}
	return g, nil
}

func (g *Graph) add(info *resource.Info) {
	id := info.Resource.ID()
	if _, ok := g.infos[id]; ok {
		return
	}
	g.infos[id] = info
	g.order = append(g.order, id)
}

// link records that `to` depends on `from`.
func (g *Graph) link(from, to string) {
	if from == to {
		// Self-assignment (e.g. "x = x + 1") is not a cycle.
		return
	}
	if g.dependsOn[to] == nil {
		g.dependsOn[to] = make(map[string]bool)
	}
	g.dependsOn[to][from] = true
	if g.requiredBy[from] == nil {
		g.requiredBy[from] = make(map[string]bool)
	}
	g.requiredBy[from][to] = true
}

// Get returns the info for a resource id.
func (g *Graph) Get(id string) (*resource.Info, error) {
	info, ok := g.infos[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrResourceNotFound, id)
	}
	return info, nil
}

// Contains reports whether the graph has a node with the given id.
func (g *Graph) Contains(id string) bool {
	_, ok := g.infos[id]
	return ok
}

// Infos returns all infos in appearance order.
func (g *Graph) Infos() []*resource.Info {
	result := make([]*resource.Info, 0, len(g.order))
	for _, id := range g.order {
		result = append(result, g.infos[id])
	}
	return result
}

// Update recomputes the derived state of every node: depth, transitive
// dependencies and dependents, and the dependency parts of the compile
// digest (folded dependency hash, stale and failed counts).
//
// Nodes are processed in topological order so each node sees its
// dependencies fully updated. Returns ErrCyclicDependency when the edges
// admit no topological order.
func (g *Graph) Update(ctx context.Context) error {
	_, span := tracer.Start(ctx, "graph.Update")
	defer span.End()

	sorted, err := g.topological()
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	deps := make(map[string]map[string]bool, len(g.infos))
	for _, id := range sorted {
		set := make(map[string]bool)
		for direct := range g.dependsOn[id] {
			set[direct] = true
			for transitive := range deps[direct] {
				set[transitive] = true
			}
		}
		deps[id] = set

		info := g.infos[id]
		info.Depth = 0
		info.Dependencies = nil
		info.Dependents = nil

		ids := sortedKeys(set)
		var staleCount, failedCount uint32
		for _, depID := range ids {
			depInfo := g.infos[depID]
			info.Dependencies = append(info.Dependencies, depInfo.Resource)
			if depInfo.Resource.Kind == resource.KindCode {
				if depInfo.IsStale() {
					staleCount++
				}
				if depInfo.IsFail() {
					failedCount++
				}
			}
		}
		for direct := range g.dependsOn[id] {
			if depth := g.infos[direct].Depth + 1; depth > info.Depth {
				info.Depth = depth
			}
		}

		if info.CompileDigest != nil {
			digest := *info.CompileDigest
			digest.Dependencies = 0
			for _, depID := range ids {
				if dep := g.infos[depID].CompileDigest; dep != nil {
					digest.Fold(dep.Semantic)
				}
			}
			digest.StaleCount = staleCount
			digest.FailedCount = failedCount
			info.CompileDigest = &digest
		}
	}

	// Dependents are the inverse of the transitive dependency sets. They
	// are necessarily partial: only resources present in this graph are
	// known.
	for _, id := range sorted {
		for depID := range deps[id] {
			dep := g.infos[depID]
			dep.Dependents = append(dep.Dependents, g.infos[id].Resource)
		}
	}
	for _, info := range g.infos {
		sort.Slice(info.Dependents, func(a, b int) bool {
			return info.Dependents[a].ID() < info.Dependents[b].ID()
		})
	}

	return nil
}

// topological returns the node ids in a topological order that breaks
// ties by appearance order (Kahn's algorithm over an ordered frontier).
func (g *Graph) topological() ([]string, error) {
	indegree := make(map[string]int, len(g.infos))
	for id := range g.infos {
		indegree[id] = len(g.dependsOn[id])
	}

	var frontier []string
	for _, id := range g.order {
		if indegree[id] == 0 {
			frontier = append(frontier, id)
		}
	}

	position := make(map[string]int, len(g.order))
	for i, id := range g.order {
		position[id] = i
	}

	sorted := make([]string, 0, len(g.infos))
	for len(frontier) > 0 {
		id := frontier[0]
		frontier = frontier[1:]
		sorted = append(sorted, id)

		var released []string
		for dependent := range g.requiredBy[id] {
			indegree[dependent]--
			if indegree[dependent] == 0 {
				released = append(released, dependent)
			}
		}
		sort.Slice(released, func(a, b int) bool {
			return position[released[a]] < position[released[b]]
		})
		frontier = append(frontier, released...)
	}

	if len(sorted) != len(g.infos) {
		var remainder []string
		for id := range g.infos {
			if indegree[id] > 0 {
				remainder = append(remainder, id)
			}
		}
		sort.Strings(remainder)
		return nil, fmt.Errorf("%w: involving %v", ErrCyclicDependency, remainder)
	}
	return sorted, nil
}

// Dependents returns the transitive dependents of a resource id.
func (g *Graph) Dependents(id string) ([]resource.Resource, error) {
	info, err := g.Get(id)
	if err != nil {
		return nil, err
	}
	return info.Dependents, nil
}

// Edge is one dependency edge in a Snapshot.
type Edge struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// Snapshot is a serializable view of the graph, published on the event
// bus after each compile.
type Snapshot struct {
	Path      string   `json:"path"`
	Resources []string `json:"resources"`
	Edges     []Edge   `json:"edges"`
}

// Snapshot returns the graph's nodes (in appearance order) and edges (in
// sorted order).
func (g *Graph) Snapshot() Snapshot {
	snap := Snapshot{Path: g.path, Resources: append([]string(nil), g.order...)}
	for to, froms := range g.dependsOn {
		for from := range froms {
			snap.Edges = append(snap.Edges, Edge{From: from, To: to})
		}
	}
	sort.Slice(snap.Edges, func(a, b int) bool {
		if snap.Edges[a].From != snap.Edges[b].From {
			return snap.Edges[a].From < snap.Edges[b].From
		}
		return snap.Edges[a].To < snap.Edges[b].To
	})
	return snap
}

func sortedKeys(set map[string]bool) []string {
	keys := make([]string, 0, len(set))
	for key := range set {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
