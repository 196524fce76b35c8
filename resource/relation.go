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

// Relation is the typed edge between a subject resource and an object
// resource, e.g. a code chunk Assigns a symbol, or Uses one.
type Relation int

const (
	// RelationAssigns means the subject assigns the object symbol.
	RelationAssigns Relation = iota

	// RelationAlters means the subject modifies the object symbol in place.
	RelationAlters

	// RelationCalls means the subject calls the object (a file or symbol).
	RelationCalls

	// RelationDeclares means the subject declares the object symbol
	// (e.g. a function or class definition).
	RelationDeclares

	// RelationEmbeds means the subject embeds the object (e.g. an image).
	RelationEmbeds

	// RelationImports means the subject imports the object module.
	RelationImports

	// RelationIncludes means the subject includes the object file's content.
	RelationIncludes

	// RelationLinks means the subject links to the object.
	RelationLinks

	// RelationReads means the subject reads the object file.
	RelationReads

	// RelationUses means the subject uses the object symbol's value.
	RelationUses

	// RelationWrites means the subject writes the object file.
	RelationWrites
)

var relationNames = [...]string{
	RelationAssigns:  "Assigns",
	RelationAlters:   "Alters",
	RelationCalls:    "Calls",
	RelationDeclares: "Declares",
	RelationEmbeds:   "Embeds",
	RelationImports:  "Imports",
	RelationIncludes: "Includes",
	RelationLinks:    "Links",
	RelationReads:    "Reads",
	RelationUses:     "Uses",
	RelationWrites:   "Writes",
}

// String returns the relation's name.
func (r Relation) String() string {
	if int(r) < len(relationNames) {
		return relationNames[r]
	}
	return "Unknown"
}

// Modifies reports whether the relation creates or mutates the object,
// which makes the subject impure.
func (r Relation) Modifies() bool {
	switch r {
	case RelationAssigns, RelationAlters, RelationDeclares, RelationImports, RelationWrites:
		return true
	}
	return false
}

// DependsOnObject reports whether the subject depends on the object
// (rather than the other way around). Edges for these relations point
// object -> subject in the dependency graph.
func (r Relation) DependsOnObject() bool {
	switch r {
	case RelationCalls, RelationEmbeds, RelationImports, RelationIncludes,
		RelationLinks, RelationReads, RelationUses:
		return true
	}
	return false
}

// Pair couples a relation with the object resource it refers to.
type Pair struct {
	Relation Relation
	Object   Resource
}
