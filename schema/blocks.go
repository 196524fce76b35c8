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

// BlockContent is the closed sum of block-level content types.
type BlockContent interface {
	Node
	isBlock()
}

// CodeBlock is a static, non-executable block of code.
type CodeBlock struct {
	ID                  string
	ProgrammingLanguage string
	Text                string
}

// CodeChunk is an executable block of code.
//
// The digests are the string forms of resource digests captured when the
// chunk was last compiled and last executed; their divergence is the
// staleness signal surfaced to user interfaces.
type CodeChunk struct {
	ID                  string
	ProgrammingLanguage string
	Text                string
	ExecuteAuto         ExecuteAuto
	Outputs             []Node
	Errors              []*CodeError
	CompileDigest       string
	ExecuteDigest       string
}

// Heading is a section heading.
type Heading struct {
	ID      string
	Depth   int
	Content []InlineContent
}

// Paragraph is a paragraph of inline content.
type Paragraph struct {
	ID      string
	Content []InlineContent
}

// QuoteBlock is quoted block content.
type QuoteBlock struct {
	ID      string
	Content []BlockContent
}

// ListOrder is the ordering of a List.
type ListOrder int

const (
	// ListOrderUnordered is a bulleted list.
	ListOrderUnordered ListOrder = iota

	// ListOrderAscending is a numbered list.
	ListOrderAscending
)

// List is an ordered or unordered list.
type List struct {
	ID    string
	Order ListOrder
	Items []*ListItem
}

// ListItem is a single item of a List.
type ListItem struct {
	ID      string
	Content []BlockContent
}

// MathBlock is display math.
type MathBlock struct {
	ID   string
	Text string
}

// Table is a simple table of rows and cells.
type Table struct {
	ID   string
	Rows []*TableRow
}

// TableRow is a row of a Table.
type TableRow struct {
	ID    string
	Cells []*TableCell
}

// TableCell is a single cell of a TableRow.
type TableCell struct {
	ID      string
	Content []InlineContent
}

// ThematicBreak is a horizontal rule.
type ThematicBreak struct {
	ID string
}

// Include transcludes the content of another file into the document.
// The source file becomes a File resource in the dependency graph.
type Include struct {
	ID      string
	Source  string
	Content []BlockContent
}

func (*CodeBlock) isNode()     {}
func (*CodeChunk) isNode()     {}
func (*Heading) isNode()       {}
func (*Paragraph) isNode()     {}
func (*QuoteBlock) isNode()    {}
func (*List) isNode()          {}
func (*ListItem) isNode()      {}
func (*MathBlock) isNode()     {}
func (*Table) isNode()         {}
func (*TableRow) isNode()      {}
func (*TableCell) isNode()     {}
func (*ThematicBreak) isNode() {}
func (*Include) isNode()       {}

func (*CodeBlock) isBlock()     {}
func (*CodeChunk) isBlock()     {}
func (*Heading) isBlock()       {}
func (*Paragraph) isBlock()     {}
func (*QuoteBlock) isBlock()    {}
func (*List) isBlock()          {}
func (*MathBlock) isBlock()     {}
func (*Table) isBlock()         {}
func (*ThematicBreak) isBlock() {}
func (*Include) isBlock()       {}
