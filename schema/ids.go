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

import (
	"strings"

	"github.com/google/uuid"
)

// NewID generates a unique node id with a short type prefix,
// e.g. "cc-5ad0e8665dd1" for a code chunk.
func NewID(prefix string) string {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	return prefix + "-" + raw[:12]
}

// TypeName returns the variant name of a node, e.g. "Paragraph".
// Used as the discriminator in serialized forms and in Transform patch
// operations.
func TypeName(node Node) string {
	switch node.(type) {
	case nil:
		return ""
	case Null:
		return "Null"
	case Boolean:
		return "Boolean"
	case Integer:
		return "Integer"
	case Number:
		return "Number"
	case String:
		return "String"
	case Array:
		return "Array"
	case Object:
		return "Object"
	case *Article:
		return "Article"
	case *CodeError:
		return "CodeError"
	case *Datatable:
		return "Datatable"
	case *CodeBlock:
		return "CodeBlock"
	case *CodeChunk:
		return "CodeChunk"
	case *Heading:
		return "Heading"
	case *Paragraph:
		return "Paragraph"
	case *QuoteBlock:
		return "QuoteBlock"
	case *List:
		return "List"
	case *ListItem:
		return "ListItem"
	case *MathBlock:
		return "MathBlock"
	case *Table:
		return "Table"
	case *TableRow:
		return "TableRow"
	case *TableCell:
		return "TableCell"
	case *ThematicBreak:
		return "ThematicBreak"
	case *Include:
		return "Include"
	case *Emphasis:
		return "Emphasis"
	case *Strong:
		return "Strong"
	case *Link:
		return "Link"
	case *CodeFragment:
		return "CodeFragment"
	case *CodeExpression:
		return "CodeExpression"
	case *MathFragment:
		return "MathFragment"
	case *Parameter:
		return "Parameter"
	case *BooleanValidator:
		return "BooleanValidator"
	case *IntegerValidator:
		return "IntegerValidator"
	case *NumberValidator:
		return "NumberValidator"
	case *StringValidator:
		return "StringValidator"
	case *EnumValidator:
		return "EnumValidator"
	case *ConstantValidator:
		return "ConstantValidator"
	case *TupleValidator:
		return "TupleValidator"
	default:
		return "Unknown"
	}
}

// GetID returns the id of an entity node, or "" for nodes without ids.
func GetID(node Node) string {
	switch n := node.(type) {
	case *Article:
		return n.ID
	case *Datatable:
		return n.ID
	case *CodeBlock:
		return n.ID
	case *CodeChunk:
		return n.ID
	case *Heading:
		return n.ID
	case *Paragraph:
		return n.ID
	case *QuoteBlock:
		return n.ID
	case *List:
		return n.ID
	case *ListItem:
		return n.ID
	case *MathBlock:
		return n.ID
	case *Table:
		return n.ID
	case *TableRow:
		return n.ID
	case *TableCell:
		return n.ID
	case *ThematicBreak:
		return n.ID
	case *Include:
		return n.ID
	case *Emphasis:
		return n.ID
	case *Strong:
		return n.ID
	case *Link:
		return n.ID
	case *CodeFragment:
		return n.ID
	case *CodeExpression:
		return n.ID
	case *MathFragment:
		return n.ID
	case *Parameter:
		return n.ID
	default:
		return ""
	}
}

// idPrefixes maps type names to the prefixes used by NewID.
var idPrefixes = map[string]string{
	"Article":        "ar",
	"CodeBlock":      "cb",
	"CodeChunk":      "cc",
	"CodeExpression": "ce",
	"CodeFragment":   "cf",
	"Heading":        "he",
	"Paragraph":      "pa",
	"QuoteBlock":     "qb",
	"List":           "li",
	"ListItem":       "lt",
	"MathBlock":      "mb",
	"MathFragment":   "mf",
	"Table":          "ta",
	"TableRow":       "tr",
	"TableCell":      "tc",
	"ThematicBreak":  "tb",
	"Include":        "in",
	"Emphasis":       "em",
	"Strong":         "st",
	"Link":           "lk",
	"Parameter":      "pr",
	"Datatable":      "dt",
}

// EnsureID assigns a fresh id to an entity node that does not have one and
// returns the node's id. Nodes without an id field return "".
func EnsureID(node Node) string {
	if id := GetID(node); id != "" {
		return id
	}
	prefix, ok := idPrefixes[TypeName(node)]
	if !ok {
		return ""
	}
	id := NewID(prefix)
	setID(node, id)
	return id
}

func setID(node Node, id string) {
	switch n := node.(type) {
	case *Article:
		n.ID = id
	case *Datatable:
		n.ID = id
	case *CodeBlock:
		n.ID = id
	case *CodeChunk:
		n.ID = id
	case *Heading:
		n.ID = id
	case *Paragraph:
		n.ID = id
	case *QuoteBlock:
		n.ID = id
	case *List:
		n.ID = id
	case *ListItem:
		n.ID = id
	case *MathBlock:
		n.ID = id
	case *Table:
		n.ID = id
	case *TableRow:
		n.ID = id
	case *TableCell:
		n.ID = id
	case *ThematicBreak:
		n.ID = id
	case *Include:
		n.ID = id
	case *Emphasis:
		n.ID = id
	case *Strong:
		n.ID = id
	case *Link:
		n.ID = id
	case *CodeFragment:
		n.ID = id
	case *CodeExpression:
		n.ID = id
	case *MathFragment:
		n.ID = id
	case *Parameter:
		n.ID = id
	}
}
