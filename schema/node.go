// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package schema defines the document node types that make up a Loom
// document tree.
//
// The tree is built from three closed sums:
//
//   - Node: any value in the document type system, including primitives
//   - BlockContent: block-level content (paragraphs, code chunks, tables, ...)
//   - InlineContent: inline content (strings, expressions, parameters, ...)
//
// All sums are sealed with unexported marker methods so that dispatch code
// (diffing, patching, pointer resolution) can use exhaustive type switches
// and the compiler flags missing variants when new types are added.
//
// Entity variants are pointer types: a document tree is a mutable structure
// shared (behind locks) between the session's background tasks, and patches
// mutate nodes in place.
package schema

// Node is any value in the document type system.
//
// Primitives (Null, Boolean, Integer, Number, String, Array, Object)
// implement Node directly; all block and inline entities implement it via
// their narrower sums.
type Node interface {
	isNode()
}

// Primitive node types.
type (
	// Null is the null value.
	Null struct{}

	// Boolean is a boolean value.
	Boolean bool

	// Integer is a 64-bit integer value.
	Integer int64

	// Number is a 64-bit floating point value.
	Number float64

	// String is a string value. It is also valid inline content.
	String string

	// Array is an ordered collection of values.
	Array []Node

	// Object is a string-keyed map of values.
	Object map[string]Node
)

func (Null) isNode()    {}
func (Boolean) isNode() {}
func (Integer) isNode() {}
func (Number) isNode()  {}
func (String) isNode()  {}
func (Array) isNode()   {}
func (Object) isNode()  {}

// String is the only primitive that is also inline content.
func (String) isInline() {}

// Article is the root node of most documents.
type Article struct {
	ID      string
	Content []BlockContent
}

func (*Article) isNode() {}

// CodeError is a structured error message attached to an executable node
// after a failed compile or execute.
type CodeError struct {
	// ErrorType classifies the error, e.g. "SyntaxError", "RuntimeError".
	ErrorType string

	// ErrorMessage is the human readable message.
	ErrorMessage string
}

func (*CodeError) isNode() {}

// ExecuteAuto controls when an executable node is automatically executed.
type ExecuteAuto int

const (
	// ExecuteAutoWhenNecessary executes the node when it is a stale upstream
	// dependency of a node being run. This is the default.
	ExecuteAutoWhenNecessary ExecuteAuto = iota

	// ExecuteAutoNever only executes the node when it is run directly.
	ExecuteAutoNever

	// ExecuteAutoAlways executes the node whenever a downstream dependent runs.
	ExecuteAutoAlways
)

// String returns the lowercase name of the policy.
func (e ExecuteAuto) String() string {
	switch e {
	case ExecuteAutoNever:
		return "never"
	case ExecuteAutoAlways:
		return "always"
	default:
		return "when-necessary"
	}
}

// ParseExecuteAuto parses a policy name. Unknown names map to the default.
func ParseExecuteAuto(name string) ExecuteAuto {
	switch name {
	case "never":
		return ExecuteAutoNever
	case "always":
		return ExecuteAutoAlways
	default:
		return ExecuteAutoWhenNecessary
	}
}

// Datatable is tabular data with named, typed columns.
//
// Diffing of datatables is replace-only: fine grained patches for large
// columnar data are not yet supported.
type Datatable struct {
	ID      string
	Columns []DatatableColumn
}

func (*Datatable) isNode() {}

// DatatableColumn is a single named column of a Datatable.
type DatatableColumn struct {
	Name      string
	Validator ValidatorTypes
	Values    []Node
}
