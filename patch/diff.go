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

	"github.com/AleutianAI/loom/address"
	"github.com/AleutianAI/loom/schema"
)

// Diff computes a patch that transforms old into new:
// Apply(old, Diff(old, new)) equals new.
//
// Values carried by the returned operations reference subtrees of new;
// callers that mutate new after diffing should clone first.
func Diff(old, new schema.Node) Patch {
	d := &differ{}
	d.diffValue(address.Address{}, reflect.ValueOf(old), reflect.ValueOf(new))
	return Patch{Ops: d.ops}
}

// DiffTarget is Diff with the resulting patch scoped to the node with the
// given id.
func DiffTarget(target string, old, new schema.Node) Patch {
	patch := Diff(old, new)
	patch.Target = target
	return patch
}

type differ struct {
	ops []Operation
}

func (d *differ) diffValue(addr address.Address, old, new reflect.Value) {
	for old.Kind() == reflect.Interface {
		old = old.Elem()
	}
	for new.Kind() == reflect.Interface {
		new = new.Elem()
	}

	if reflect.DeepEqual(iface(old), iface(new)) {
		return
	}

	oldAbsent, newAbsent := absent(old), absent(new)
	switch {
	case oldAbsent && newAbsent:
		return
	case oldAbsent:
		d.ops = append(d.ops, Add{Address: addr.Clone(), Value: iface(new), Length: lengthOf(new)})
		return
	case newAbsent:
		d.ops = append(d.ops, Remove{Address: addr.Clone(), Items: 1})
		return
	}

	if old.Type() != new.Type() {
		d.transformOrReplace(addr, old, new)
		return
	}

	if replaceOnly(typeName(old)) {
		d.replace(addr, new)
		return
	}

	switch old.Kind() {
	case reflect.Ptr:
		d.diffValue(addr, old.Elem(), new.Elem())
	case reflect.Struct:
		t := old.Type()
		for i := 0; i < t.NumField(); i++ {
			d.diffValue(addr.Append(address.NameSlot(slotName(t.Field(i).Name))),
				old.Field(i), new.Field(i))
		}
	case reflect.Slice:
		d.diffSequence(addr, old, new)
	case reflect.String:
		d.diffString(addr, old.String(), new.String())
	case reflect.Bool, reflect.Int, reflect.Int64, reflect.Float64:
		d.replace(addr, new)
	default:
		// Maps (Object) and anything else: whole value replacement.
		d.replace(addr, new)
	}
}

func (d *differ) replace(addr address.Address, new reflect.Value) {
	d.ops = append(d.ops, Replace{
		Address: addr.Clone(),
		Items:   1,
		Value:   iface(new),
		Length:  1,
	})
}

// transformOrReplace handles values whose type changed: a Transform (plus
// a diff of the content) when the types are interconvertible, otherwise a
// whole value replacement.
func (d *differ) transformOrReplace(addr address.Address, old, new reflect.Value) {
	from, to := typeName(old), typeName(new)
	if transformable(from, to) {
		d.ops = append(d.ops, Transform{Address: addr.Clone(), From: from, To: to})
		oldContent, _ := fieldBySlot(old.Elem(), "content")
		newContent, _ := fieldBySlot(new.Elem(), "content")
		d.diffValue(addr.Append(address.NameSlot("content")), oldContent, newContent)
		return
	}
	d.replace(addr, new)
}

// diffSequence aligns two sequences position by position, reusing equal
// elements, moving elements that reappear later, and recursing into
// same-typed pairs. It simulates application as it goes, so every emitted
// operation's index is valid given the operations before it.
func (d *differ) diffSequence(addr address.Address, old, new reflect.Value) {
	sim := make([]reflect.Value, old.Len())
	for i := range sim {
		sim[i] = old.Index(i)
	}
	target := make([]reflect.Value, new.Len())
	for i := range target {
		target[i] = new.Index(i)
	}

	for i, want := range target {
		if i < len(sim) && equalValues(sim[i], want) {
			continue
		}

		// An equal element further along is moved into place.
		if j := indexOfEqual(sim, want, i+1); j >= 0 {
			d.ops = append(d.ops, Move{
				From:  addr.Append(address.IndexSlot(j)),
				Items: 1,
				To:    addr.Append(address.IndexSlot(i)),
			})
			moved := sim[j]
			sim = append(sim[:j], sim[j+1:]...)
			sim = insertAt(sim, i, moved)
			continue
		}

		// The current element is kept for a later position: insert the
		// wanted one in front of it.
		if i < len(sim) && indexOfEqual(target, sim[i], i+1) >= 0 {
			d.ops = append(d.ops, Add{
				Address: addr.Append(address.IndexSlot(i)),
				Value:   iface(want),
				Length:  1,
			})
			sim = insertAt(sim, i, want)
			continue
		}

		if i < len(sim) {
			// Edit the element in place; same-typed pairs diff fine
			// grained, different types transform or replace.
			d.diffValue(addr.Append(address.IndexSlot(i)), sim[i], want)
			sim[i] = want
			continue
		}

		d.ops = append(d.ops, Add{
			Address: addr.Append(address.IndexSlot(i)),
			Value:   iface(want),
			Length:  1,
		})
		sim = append(sim, want)
	}

	if len(sim) > len(target) {
		d.ops = append(d.ops, Remove{
			Address: addr.Append(address.IndexSlot(len(target))),
			Items:   len(sim) - len(target),
		})
	}
}

func indexOfEqual(values []reflect.Value, want reflect.Value, from int) int {
	for j := from; j < len(values); j++ {
		if equalValues(values[j], want) {
			return j
		}
	}
	return -1
}

func insertAt(values []reflect.Value, i int, v reflect.Value) []reflect.Value {
	values = append(values, reflect.Value{})
	copy(values[i+1:], values[i:])
	values[i] = v
	return values
}
