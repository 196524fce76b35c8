// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package address locates nodes within a document tree.
//
// An Address is a path of slots from the tree root to a node: a name slot
// selects a struct field ("content"), an index slot selects an element of a
// sequence or a rune offset within a string. Addresses are stable across
// unrelated edits but must be re-derived when an ancestor sequence changes
// length, so cached addresses are treated as hints and verified before use.
package address

import (
	"fmt"
	"strconv"
	"strings"
)

// Slot is one step of an Address: either a field name or a sequence index.
type Slot struct {
	// Name selects a struct field when non-empty.
	Name string

	// Index selects a sequence element (or rune offset) when Name is empty.
	Index int
}

// NameSlot returns a slot selecting a struct field.
func NameSlot(name string) Slot { return Slot{Name: name} }

// IndexSlot returns a slot selecting a sequence element.
func IndexSlot(index int) Slot { return Slot{Index: index} }

// IsName reports whether the slot selects a field.
func (s Slot) IsName() bool { return s.Name != "" }

// String returns the text form of the slot.
func (s Slot) String() string {
	if s.IsName() {
		return s.Name
	}
	return strconv.Itoa(s.Index)
}

// Address is a path of slots from the tree root to a node.
type Address []Slot

// Append returns a new address with an extra slot. The receiver is not
// modified and its backing array is never shared with the result, so
// addresses recorded during a tree walk do not alias each other.
func (a Address) Append(slot Slot) Address {
	result := make(Address, len(a), len(a)+1)
	copy(result, a)
	return append(result, slot)
}

// Clone returns a copy of the address.
func (a Address) Clone() Address {
	result := make(Address, len(a))
	copy(result, a)
	return result
}

// String returns the dot-joined text form, e.g. "content.3.text".
func (a Address) String() string {
	parts := make([]string, len(a))
	for i, slot := range a {
		parts[i] = slot.String()
	}
	return strings.Join(parts, ".")
}

// Parse parses the dot-joined text form of an address.
func Parse(text string) (Address, error) {
	if text == "" {
		return Address{}, nil
	}
	parts := strings.Split(text, ".")
	result := make(Address, len(parts))
	for i, part := range parts {
		if part == "" {
			return nil, fmt.Errorf("empty slot at position %d in %q", i, text)
		}
		if index, err := strconv.Atoi(part); err == nil {
			if index < 0 {
				return nil, fmt.Errorf("negative index at position %d in %q", i, text)
			}
			result[i] = IndexSlot(index)
		} else {
			result[i] = NameSlot(part)
		}
	}
	return result, nil
}

// Map is a flat index from node id to the node's address in the tree.
// It is rebuilt from scratch on every compile; between compiles, entries
// are fast-path hints that resolution verifies before trusting.
type Map map[string]Address

// Get returns the cached address for a node id.
func (m Map) Get(id string) (Address, bool) {
	addr, ok := m[id]
	return addr, ok
}
