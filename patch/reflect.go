// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package patch

import (
	"reflect"
	"unicode"
	"unicode/utf8"

	"github.com/AleutianAI/loom/schema"
)

// Diff and apply share one model of the tree, built on reflection: struct
// fields are addressed by their lower-camel name, slices and strings by
// index, and the closed schema sums are crossed by unwrapping interface
// values. The helpers below define that model.

// slotName maps a Go field name to its address slot name, matching the
// keys used by the schema value form ("ID" -> "id", "ProgrammingLanguage"
// -> "programmingLanguage").
func slotName(field string) string {
	if field == "ID" {
		return "id"
	}
	r, size := utf8.DecodeRuneInString(field)
	return string(unicode.ToLower(r)) + field[size:]
}

// fieldBySlot returns the struct field whose slot name matches.
func fieldBySlot(v reflect.Value, name string) (reflect.Value, bool) {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		if slotName(t.Field(i).Name) == name {
			return v.Field(i), true
		}
	}
	return reflect.Value{}, false
}

// iface returns the value's interface, nil for invalid values.
func iface(v reflect.Value) any {
	if !v.IsValid() {
		return nil
	}
	return v.Interface()
}

// absent reports whether the value represents "nothing there": an invalid
// value, a nil pointer, interface or map, a nil slice, or Null.
func absent(v reflect.Value) bool {
	if !v.IsValid() {
		return true
	}
	switch v.Kind() {
	case reflect.Interface, reflect.Ptr, reflect.Slice, reflect.Map:
		return v.IsNil()
	}
	return false
}

// lengthOf returns the number of items a value contributes when inserted:
// element count for slices, rune count for strings, otherwise one.
func lengthOf(v reflect.Value) int {
	if !v.IsValid() {
		return 0
	}
	switch v.Kind() {
	case reflect.Slice:
		return v.Len()
	case reflect.String:
		return utf8.RuneCountInString(v.String())
	}
	return 1
}

// typeName returns the schema type name of a value, falling back to the
// reflect type name for non-node values.
func typeName(v reflect.Value) string {
	if node, ok := iface(v).(schema.Node); ok {
		return schema.TypeName(node)
	}
	t := v.Type()
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// replaceOnly reports whether a type is diffed by whole-value replacement
// rather than fine grained operations.
func replaceOnly(name string) bool {
	switch name {
	case "EnumValidator", "Datatable", "DatatableColumn":
		return true
	}
	return false
}

// transformable reports whether nodes of type `from` can be changed into
// type `to` in place, keeping their content.
func transformable(from, to string) bool {
	return (from == "Emphasis" || from == "Strong") &&
		(to == "Emphasis" || to == "Strong") && from != to
}

// transformNode converts a node to the named type, keeping id and content.
func transformNode(node schema.Node, to string) (schema.Node, bool) {
	switch node := node.(type) {
	case *schema.Emphasis:
		if to == "Strong" {
			return &schema.Strong{ID: node.ID, Content: node.Content}, true
		}
	case *schema.Strong:
		if to == "Emphasis" {
			return &schema.Emphasis{ID: node.ID, Content: node.Content}, true
		}
	}
	return nil, false
}

func equalValues(a, b reflect.Value) bool {
	return reflect.DeepEqual(iface(a), iface(b))
}
