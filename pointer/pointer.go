// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package pointer locates nodes within a document tree, by address or by
// node id.
//
// Ids are the durable way to refer to a node: addresses shift when an
// ancestor sequence changes length. Find therefore treats a cached
// address as a hint, verifying the node it reaches carries the wanted id
// before trusting it, and falls back to a full tree walk.
package pointer

import (
	"errors"
	"fmt"
	"reflect"
	"unicode"
	"unicode/utf8"

	"github.com/AleutianAI/loom/address"
	"github.com/AleutianAI/loom/schema"
)

// ErrNotFound is returned when no node matches.
var ErrNotFound = errors.New("pointer: node not found")

// Visitor is called for every node in document order with the node's
// address. Returning false stops descent into the node's children.
type Visitor func(addr address.Address, node schema.Node) bool

// Walk visits every node under root in document order, depth first.
func Walk(root schema.Node, visit Visitor) {
	walkValue(address.Address{}, reflect.ValueOf(root), visit)
}

func walkValue(addr address.Address, v reflect.Value, visit Visitor) {
	for v.Kind() == reflect.Interface {
		if v.IsNil() {
			return
		}
		v = v.Elem()
	}

	if node, ok := v.Interface().(schema.Node); ok {
		if !visit(addr, node) {
			return
		}
	}

	for v.Kind() == reflect.Ptr {
		if v.IsNil() {
			return
		}
		v = v.Elem()
	}

	switch v.Kind() {
	case reflect.Struct:
		t := v.Type()
		for i := 0; i < t.NumField(); i++ {
			walkValue(addr.Append(address.NameSlot(slotName(t.Field(i).Name))), v.Field(i), visit)
		}
	case reflect.Slice:
		for i := 0; i < v.Len(); i++ {
			walkValue(addr.Append(address.IndexSlot(i)), v.Index(i), visit)
		}
	}
}

// Resolve returns the node at an address.
func Resolve(root schema.Node, addr address.Address) (schema.Node, error) {
	v := reflect.ValueOf(root)
	for _, slot := range addr {
		for v.Kind() == reflect.Interface || v.Kind() == reflect.Ptr {
			if v.IsNil() {
				return nil, fmt.Errorf("%w: %q traverses nil", ErrNotFound, addr)
			}
			v = v.Elem()
		}
		if slot.IsName() {
			if v.Kind() != reflect.Struct {
				return nil, fmt.Errorf("%w: no slot %q in a %s", ErrNotFound, slot.Name, v.Type())
			}
			field, ok := fieldBySlot(v, slot.Name)
			if !ok {
				return nil, fmt.Errorf("%w: %s has no slot %q", ErrNotFound, v.Type(), slot.Name)
			}
			v = field
		} else {
			if v.Kind() != reflect.Slice || slot.Index < 0 || slot.Index >= v.Len() {
				return nil, fmt.Errorf("%w: index %d in %q", ErrNotFound, slot.Index, addr)
			}
			v = v.Index(slot.Index)
		}
	}
	for v.Kind() == reflect.Interface {
		if v.IsNil() {
			return nil, fmt.Errorf("%w: %q points at nil", ErrNotFound, addr)
		}
		v = v.Elem()
	}
	node, ok := v.Interface().(schema.Node)
	if !ok {
		return nil, fmt.Errorf("%w: %q points at a %s, not a node", ErrNotFound, addr, v.Type())
	}
	return node, nil
}

// Find locates the node with the given id. A non-empty hint address is
// tried first and trusted only if the node there carries the id;
// otherwise the whole tree is searched.
func Find(root schema.Node, id string, hint address.Address) (address.Address, schema.Node, error) {
	if len(hint) > 0 {
		if node, err := Resolve(root, hint); err == nil && schema.GetID(node) == id {
			return hint, node, nil
		}
	}

	var foundAddr address.Address
	var foundNode schema.Node
	Walk(root, func(addr address.Address, node schema.Node) bool {
		if foundNode != nil {
			return false
		}
		if schema.GetID(node) == id {
			foundAddr = addr.Clone()
			foundNode = node
			return false
		}
		return true
	})
	if foundNode == nil {
		return nil, nil, fmt.Errorf("%w: id %q", ErrNotFound, id)
	}
	return foundAddr, foundNode, nil
}

// BuildMap walks the tree and returns the address of every node that
// carries an id.
func BuildMap(root schema.Node) address.Map {
	result := make(address.Map)
	Walk(root, func(addr address.Address, node schema.Node) bool {
		if id := schema.GetID(node); id != "" {
			result[id] = addr.Clone()
		}
		return true
	})
	return result
}

// slotName matches the address slot naming used by diffing and the value
// form: "ID" -> "id", otherwise lower the first rune.
func slotName(field string) string {
	if field == "ID" {
		return "id"
	}
	r, size := utf8.DecodeRuneInString(field)
	return string(unicode.ToLower(r)) + field[size:]
}

func fieldBySlot(v reflect.Value, name string) (reflect.Value, bool) {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		if slotName(t.Field(i).Name) == name {
			return v.Field(i), true
		}
	}
	return reflect.Value{}, false
}
