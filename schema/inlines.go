// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package schema

// InlineContent is the closed sum of inline content types.
//
// Plain text is represented by the String primitive, which also
// implements this interface.
type InlineContent interface {
	Node
	isInline()
}

// Emphasis is emphasized (usually italic) inline content.
type Emphasis struct {
	ID      string
	Content []InlineContent
}

// Strong is strongly emphasized (usually bold) inline content.
type Strong struct {
	ID      string
	Content []InlineContent
}

// Link is a hyperlink. Relative targets within the document's project
// become File resources in the dependency graph.
type Link struct {
	ID      string
	Target  string
	Content []InlineContent
}

// CodeFragment is static inline code.
type CodeFragment struct {
	ID                  string
	ProgrammingLanguage string
	Text                string
}

// CodeExpression is an executable inline expression whose single output is
// interpolated into the surrounding content.
type CodeExpression struct {
	ID                  string
	ProgrammingLanguage string
	Text                string
	Output              Node
	Errors              []*CodeError
	CompileDigest       string
	ExecuteDigest       string
}

// MathFragment is inline math.
type MathFragment struct {
	ID   string
	Text string
}

// Parameter is a named, validated value that is set into the kernel space
// before dependent code is executed.
type Parameter struct {
	ID        string
	Name      string
	Validator ValidatorTypes
	Default   Node
	Value     Node
}

func (*Emphasis) isNode()       {}
func (*Strong) isNode()         {}
func (*Link) isNode()           {}
func (*CodeFragment) isNode()   {}
func (*CodeExpression) isNode() {}
func (*MathFragment) isNode()   {}
func (*Parameter) isNode()      {}

func (*Emphasis) isInline()       {}
func (*Strong) isInline()         {}
func (*Link) isInline()           {}
func (*CodeFragment) isInline()   {}
func (*CodeExpression) isInline() {}
func (*MathFragment) isInline()   {}
func (*Parameter) isInline()      {}
