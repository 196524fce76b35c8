// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package patch computes and applies structural edits to document trees.
//
// A Patch is an ordered list of operations addressed into the tree (see
// the address package). Operations are designed to be forwarded to
// clients over the wire, so values are schema nodes (or plain strings for
// rune-level edits) and addresses are valid at the moment the operation
// applies, given all earlier operations in the patch have been applied.
//
// The central law: for any two nodes of the same family,
// Apply(old, Diff(old, new)) is equal to new.
package patch

import (
	"errors"
	"fmt"

	"github.com/AleutianAI/loom/address"
	"github.com/AleutianAI/loom/schema"
)

var (
	// ErrInvalidAddress is returned when an operation's address cannot be
	// resolved in the target tree.
	ErrInvalidAddress = errors.New("patch: invalid address")

	// ErrInvalidValue is returned when an operation's value has a type
	// that cannot be placed at its address.
	ErrInvalidValue = errors.New("patch: invalid value")
)

// Operation is one step of a patch.
type Operation interface {
	isOperation()
}

// Add inserts a value. At an index slot the value is inserted into the
// sequence (or string, at a rune offset) before that index; at a name
// slot it sets a previously unset optional field.
type Add struct {
	Address address.Address

	// Value is a schema node, a slice of schema nodes, or a string for
	// rune-level inserts.
	Value any

	// Length is the number of items inserted (runes for strings).
	Length int
}

// Remove deletes Items elements (runes for strings) starting at an index
// slot, or clears the optional field at a name slot.
type Remove struct {
	Address address.Address
	Items   int
}

// Replace removes Items elements at the address and inserts Value in
// their place. At a name slot it overwrites the field.
type Replace struct {
	Address address.Address
	Items   int
	Value   any
	Length  int
}

// Move relocates Items elements from one position to another within the
// same sequence.
type Move struct {
	From  address.Address
	Items int
	To    address.Address
}

// Transform changes a node's type in place, keeping its content, e.g.
// Emphasis to Strong.
type Transform struct {
	Address address.Address
	From    string
	To      string
}

func (Add) isOperation()       {}
func (Remove) isOperation()    {}
func (Replace) isOperation()   {}
func (Move) isOperation()      {}
func (Transform) isOperation() {}

// Patch is an ordered list of operations, optionally scoped to the node
// with id Target rather than the document root.
type Patch struct {
	Ops []Operation

	// Target is the id of the node the addresses are relative to; empty
	// means the document root.
	Target string

	// ActorID identifies the client that generated the patch, so it can
	// be excluded when the patch is broadcast back out.
	ActorID string
}

// Empty reports whether the patch has no operations.
func (p Patch) Empty() bool {
	return len(p.Ops) == 0
}

// Value returns a serializable representation of the patch, with schema
// node values lowered via their value form. Used when publishing patches
// to clients.
func (p Patch) Value() any {
	ops := make([]any, len(p.Ops))
	for i, op := range p.Ops {
		ops[i] = opValue(op)
	}
	result := map[string]any{"ops": ops}
	if p.Target != "" {
		result["target"] = p.Target
	}
	if p.ActorID != "" {
		result["actor"] = p.ActorID
	}
	return result
}

func opValue(op Operation) any {
	switch op := op.(type) {
	case Add:
		return map[string]any{
			"type":    "Add",
			"address": op.Address.String(),
			"value":   lowerValue(op.Value),
			"length":  op.Length,
		}
	case Remove:
		return map[string]any{
			"type":    "Remove",
			"address": op.Address.String(),
			"items":   op.Items,
		}
	case Replace:
		return map[string]any{
			"type":    "Replace",
			"address": op.Address.String(),
			"items":   op.Items,
			"value":   lowerValue(op.Value),
			"length":  op.Length,
		}
	case Move:
		return map[string]any{
			"type":  "Move",
			"from":  op.From.String(),
			"items": op.Items,
			"to":    op.To.String(),
		}
	case Transform:
		return map[string]any{
			"type":    "Transform",
			"address": op.Address.String(),
			"from":    op.From,
			"to":      op.To,
		}
	default:
		panic(fmt.Sprintf("unhandled operation %T", op))
	}
}

func lowerValue(value any) any {
	switch value := value.(type) {
	case nil:
		return nil
	case string:
		return value
	case schema.Node:
		return schema.ToValue(value)
	case []schema.BlockContent:
		items := make([]any, len(value))
		for i, item := range value {
			items[i] = schema.ToValue(item)
		}
		return items
	case []schema.InlineContent:
		items := make([]any, len(value))
		for i, item := range value {
			items[i] = schema.ToValue(item)
		}
		return items
	case []schema.Node:
		items := make([]any, len(value))
		for i, item := range value {
			items[i] = schema.ToValue(item)
		}
		return items
	default:
		return value
	}
}
