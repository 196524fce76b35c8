// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package resource

import "github.com/AleutianAI/loom/schema"

// Info carries everything the planner needs to know about one resource:
// its relations to other resources, its place in the dependency graph,
// and the digests used to decide whether it must be re-executed.
//
// Parsers produce the Resource, Relations, ExecuteAuto/ExecutePure hints
// and the compile digest; the graph's update pass fills in Dependencies,
// Dependents, Depth and the digest's dependency parts.
type Info struct {
	// Resource this info describes.
	Resource Resource

	// Relations discovered by parsing, in order of appearance.
	// Nil (as opposed to empty) means relations could not be determined,
	// which forces the resource to be treated as impure.
	Relations []Pair

	// Dependencies is the full transitive set of resources this one
	// depends on. Populated by graph update.
	Dependencies []Resource

	// Dependents is the set of resources that depend on this one.
	// Populated by graph update and may be partial: it covers only the
	// resources reachable in the analyzed documents.
	Dependents []Resource

	// Depth is the length of the longest dependency chain below this
	// resource; zero for resources with no dependencies.
	Depth int

	// ExecuteAuto records when the resource should be automatically
	// executed, nil when unspecified (defaults to WhenNecessary).
	ExecuteAuto *schema.ExecuteAuto

	// ExecutePure overrides purity inference when non-nil ("@pure" or
	// "@impure" tags).
	ExecutePure *bool

	// CompileDigest is the digest computed at compile time, nil before
	// the first compile.
	CompileDigest *Digest

	// ExecuteDigest is the compile digest captured when the resource was
	// last executed, nil if it has never been executed.
	ExecuteDigest *Digest

	// ExecuteFailed records whether the last execution failed, nil if the
	// resource has never been executed.
	ExecuteFailed *bool

	// Tags parsed from comments in the resource's code.
	Tags TagMap
}

// NewInfo returns an Info for the resource with everything else unset.
func NewInfo(r Resource) *Info {
	return &Info{Resource: r}
}

// IsStale reports whether the resource needs to be re-executed: it has
// never been executed, or the semantic, dependency or stale-count parts
// of its compile digest differ from those captured at last execution.
// The content part is deliberately ignored so formatting-only edits do
// not trigger re-execution, and the failed count plays no role here: a
// failed dependency classifies as IsFail, not as staleness.
func (i *Info) IsStale() bool {
	if i.CompileDigest == nil || i.ExecuteDigest == nil {
		return true
	}
	c, e := i.CompileDigest, i.ExecuteDigest
	return c.Semantic != e.Semantic ||
		c.Dependencies != e.Dependencies ||
		c.StaleCount != e.StaleCount
}

// IsPure reports whether executing the resource has no side effects on
// other resources. An explicit "@pure"/"@impure" tag wins; otherwise a
// resource is pure when none of its relations modify anything. Unknown
// relations (nil) are conservatively impure.
func (i *Info) IsPure() bool {
	if i.ExecutePure != nil {
		return *i.ExecutePure
	}
	if i.Relations == nil {
		return false
	}
	for _, pair := range i.Relations {
		if pair.Relation.Modifies() {
			return false
		}
	}
	return true
}

// IsFail reports whether the last execution failed.
func (i *Info) IsFail() bool {
	return i.ExecuteFailed != nil && *i.ExecuteFailed
}

// DidExecute records the outcome of an execution: the current compile
// digest becomes the execute digest and the failure flag is set.
func (i *Info) DidExecute(failed bool) {
	if i.CompileDigest != nil {
		digest := *i.CompileDigest
		i.ExecuteDigest = &digest
	}
	i.ExecuteFailed = &failed
}

// SymbolsUsed returns the symbols this resource uses, in order of
// appearance.
func (i *Info) SymbolsUsed() []Resource {
	var symbols []Resource
	for _, pair := range i.Relations {
		if pair.Relation == RelationUses && pair.Object.Kind == KindSymbol {
			symbols = append(symbols, pair.Object)
		}
	}
	return symbols
}

// SymbolsModified returns the symbols this resource assigns, declares or
// alters, in order of appearance.
func (i *Info) SymbolsModified() []Resource {
	var symbols []Resource
	for _, pair := range i.Relations {
		if pair.Relation.Modifies() && pair.Object.Kind == KindSymbol {
			symbols = append(symbols, pair.Object)
		}
	}
	return symbols
}
