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
	"fmt"
	"reflect"

	"github.com/AleutianAI/loom/address"
	"github.com/AleutianAI/loom/schema"
)

// Apply applies a patch to a node and returns the resulting node. Entity
// nodes are mutated in place; the returned node differs from the argument
// only when an operation replaces or transforms the root itself.
//
// Operations are validated as they resolve: a failing operation returns
// an error and leaves the tree in the state produced by the operations
// before it.
func Apply(node schema.Node, p Patch) (schema.Node, error) {
	root := reflect.ValueOf(node)
	for i, op := range p.Ops {
		var err error
		if move, ok := op.(Move); ok {
			root, err = applyMove(root, move)
		} else {
			root, err = applyValue(root, opAddress(op), op)
		}
		if err != nil {
			return nil, fmt.Errorf("op %d: %w", i, err)
		}
	}
	result, ok := iface(root).(schema.Node)
	if !ok {
		return nil, fmt.Errorf("%w: patch produced a non-node root", ErrInvalidValue)
	}
	return result, nil
}

func opAddress(op Operation) address.Address {
	switch op := op.(type) {
	case Add:
		return op.Address
	case Remove:
		return op.Address
	case Replace:
		return op.Address
	case Transform:
		return op.Address
	default:
		panic(fmt.Sprintf("operation %T has no single address", op))
	}
}

// applyValue applies op at addr within v and returns the updated value
// for the subtree. Mutation happens in place where the tree allows it
// (behind pointers, inside slices); otherwise the updated value must be
// stored back by the caller.
func applyValue(v reflect.Value, addr address.Address, op Operation) (reflect.Value, error) {
	if v.Kind() == reflect.Interface {
		if v.IsNil() {
			return v, fmt.Errorf("%w: %q traverses a nil value", ErrInvalidAddress, addr)
		}
		return applyValue(v.Elem(), addr, op)
	}

	if len(addr) == 0 {
		return applyTerminal(v, op)
	}

	if v.Kind() == reflect.Ptr {
		if v.IsNil() {
			return v, fmt.Errorf("%w: %q traverses a nil pointer", ErrInvalidAddress, addr)
		}
		result, err := applyValue(v.Elem(), addr, op)
		if err != nil {
			return v, err
		}
		v.Elem().Set(result)
		return v, nil
	}

	slot, rest := addr[0], addr[1:]
	switch v.Kind() {
	case reflect.Struct:
		if !slot.IsName() {
			return v, fmt.Errorf("%w: index slot %d into a %s", ErrInvalidAddress, slot.Index, v.Type())
		}
		sv := v
		if !sv.CanSet() {
			copied := reflect.New(v.Type()).Elem()
			copied.Set(v)
			sv = copied
		}
		field, ok := fieldBySlot(sv, slot.Name)
		if !ok {
			return v, fmt.Errorf("%w: %s has no slot %q", ErrInvalidAddress, v.Type(), slot.Name)
		}
		if len(rest) == 0 {
			if err := applyToField(field, op); err != nil {
				return v, err
			}
			return sv, nil
		}
		result, err := applyValue(field, rest, op)
		if err != nil {
			return v, err
		}
		if err := assign(field, result); err != nil {
			return v, err
		}
		return sv, nil

	case reflect.Slice:
		if slot.IsName() {
			return v, fmt.Errorf("%w: name slot %q into a sequence", ErrInvalidAddress, slot.Name)
		}
		if len(rest) == 0 {
			return spliceSlice(v, slot.Index, op)
		}
		if slot.Index < 0 || slot.Index >= v.Len() {
			return v, fmt.Errorf("%w: index %d out of range (len %d)", ErrInvalidAddress, slot.Index, v.Len())
		}
		elem := v.Index(slot.Index)
		result, err := applyValue(elem, rest, op)
		if err != nil {
			return v, err
		}
		if err := assign(elem, result); err != nil {
			return v, err
		}
		return v, nil

	case reflect.String:
		if len(rest) != 0 || slot.IsName() {
			return v, fmt.Errorf("%w: %q within a string", ErrInvalidAddress, addr)
		}
		return spliceString(v, slot.Index, op)
	}

	return v, fmt.Errorf("%w: %q into a %s", ErrInvalidAddress, addr, v.Type())
}

// applyTerminal applies an op addressed at v itself.
func applyTerminal(v reflect.Value, op Operation) (reflect.Value, error) {
	switch op := op.(type) {
	case Replace:
		rv := reflect.ValueOf(op.Value)
		if !rv.IsValid() {
			return v, fmt.Errorf("%w: nil replacement value", ErrInvalidValue)
		}
		if rv.Type() != v.Type() && rv.Type().ConvertibleTo(v.Type()) && rv.Kind() == v.Kind() {
			rv = rv.Convert(v.Type())
		}
		return rv, nil
	case Transform:
		node, ok := iface(v).(schema.Node)
		if !ok {
			return v, fmt.Errorf("%w: transform of a non-node %s", ErrInvalidValue, v.Type())
		}
		converted, ok := transformNode(node, op.To)
		if !ok {
			return v, fmt.Errorf("%w: cannot transform %s to %s", ErrInvalidValue, schema.TypeName(node), op.To)
		}
		return reflect.ValueOf(converted), nil
	default:
		return v, fmt.Errorf("%w: %T at terminal address", ErrInvalidAddress, op)
	}
}

// applyToField applies a name-slot terminal op: set, clear or transform
// the whole field.
func applyToField(field reflect.Value, op Operation) error {
	switch op := op.(type) {
	case Add:
		return assign(field, reflect.ValueOf(op.Value))
	case Replace:
		return assign(field, reflect.ValueOf(op.Value))
	case Remove:
		field.Set(reflect.Zero(field.Type()))
		return nil
	case Transform:
		result, err := applyTerminal(field, op)
		if err != nil {
			return err
		}
		return assign(field, result)
	default:
		return fmt.Errorf("%w: %T at a field", ErrInvalidValue, op)
	}
}

func assign(dst, src reflect.Value) error {
	if !src.IsValid() {
		dst.Set(reflect.Zero(dst.Type()))
		return nil
	}
	if src.Type().AssignableTo(dst.Type()) {
		dst.Set(src)
		return nil
	}
	if src.Type().ConvertibleTo(dst.Type()) && src.Kind() == dst.Kind() {
		dst.Set(src.Convert(dst.Type()))
		return nil
	}
	return fmt.Errorf("%w: %s is not assignable to %s", ErrInvalidValue, src.Type(), dst.Type())
}

// spliceSlice applies a terminal index op to a sequence, returning the
// new sequence.
func spliceSlice(v reflect.Value, index int, op Operation) (reflect.Value, error) {
	length := v.Len()
	switch op := op.(type) {
	case Add:
		if index < 0 || index > length {
			return v, fmt.Errorf("%w: insert at %d (len %d)", ErrInvalidAddress, index, length)
		}
		return sliceInsert(v, index, 0, op.Value)
	case Remove:
		if index < 0 || index+op.Items > length {
			return v, fmt.Errorf("%w: remove %d at %d (len %d)", ErrInvalidAddress, op.Items, index, length)
		}
		return sliceInsert(v, index, op.Items, nil)
	case Replace:
		if index < 0 || index+op.Items > length {
			return v, fmt.Errorf("%w: replace %d at %d (len %d)", ErrInvalidAddress, op.Items, index, length)
		}
		return sliceInsert(v, index, op.Items, op.Value)
	case Transform:
		if index < 0 || index >= length {
			return v, fmt.Errorf("%w: transform at %d (len %d)", ErrInvalidAddress, index, length)
		}
		result, err := applyTerminal(v.Index(index), op)
		if err != nil {
			return v, err
		}
		if err := assign(v.Index(index), result); err != nil {
			return v, err
		}
		return v, nil
	}
	return v, fmt.Errorf("%w: %T at a sequence index", ErrInvalidValue, op)
}

// sliceInsert removes `items` elements at index and inserts `value`,
// which may be a single element or a slice of the sequence's type.
func sliceInsert(v reflect.Value, index, items int, value any) (reflect.Value, error) {
	var inserted []reflect.Value
	if value != nil {
		rv := reflect.ValueOf(value)
		switch {
		case rv.Type().AssignableTo(v.Type()):
			for i := 0; i < rv.Len(); i++ {
				inserted = append(inserted, rv.Index(i))
			}
		case rv.Type().AssignableTo(v.Type().Elem()):
			inserted = append(inserted, rv)
		case rv.Type().ConvertibleTo(v.Type().Elem()) && rv.Kind() == v.Type().Elem().Kind():
			inserted = append(inserted, rv.Convert(v.Type().Elem()))
		default:
			return v, fmt.Errorf("%w: cannot insert %s into %s", ErrInvalidValue, rv.Type(), v.Type())
		}
	}

	result := reflect.MakeSlice(v.Type(), 0, v.Len()-items+len(inserted))
	result = reflect.AppendSlice(result, v.Slice(0, index))
	for _, elem := range inserted {
		result = reflect.Append(result, elem)
	}
	result = reflect.AppendSlice(result, v.Slice(index+items, v.Len()))
	return result, nil
}

// spliceString applies a terminal rune-index op to a string, returning
// the new string as the same (possibly named) type.
func spliceString(v reflect.Value, index int, op Operation) (reflect.Value, error) {
	runes := []rune(v.String())

	text := func(value any) (string, error) {
		rv := reflect.ValueOf(value)
		if !rv.IsValid() || rv.Kind() != reflect.String {
			return "", fmt.Errorf("%w: %T is not text", ErrInvalidValue, value)
		}
		return rv.String(), nil
	}

	var result []rune
	switch op := op.(type) {
	case Add:
		if index < 0 || index > len(runes) {
			return v, fmt.Errorf("%w: insert at rune %d (len %d)", ErrInvalidAddress, index, len(runes))
		}
		s, err := text(op.Value)
		if err != nil {
			return v, err
		}
		result = append(result, runes[:index]...)
		result = append(result, []rune(s)...)
		result = append(result, runes[index:]...)
	case Remove:
		if index < 0 || index+op.Items > len(runes) {
			return v, fmt.Errorf("%w: remove %d at rune %d (len %d)", ErrInvalidAddress, op.Items, index, len(runes))
		}
		result = append(result, runes[:index]...)
		result = append(result, runes[index+op.Items:]...)
	case Replace:
		if index < 0 || index+op.Items > len(runes) {
			return v, fmt.Errorf("%w: replace %d at rune %d (len %d)", ErrInvalidAddress, op.Items, index, len(runes))
		}
		s, err := text(op.Value)
		if err != nil {
			return v, err
		}
		result = append(result, runes[:index]...)
		result = append(result, []rune(s)...)
		result = append(result, runes[index+op.Items:]...)
	default:
		return v, fmt.Errorf("%w: %T at a rune index", ErrInvalidValue, op)
	}

	return reflect.ValueOf(string(result)).Convert(v.Type()), nil
}

// applyMove relocates elements within a sequence: the element is removed
// from its old position first, then inserted at the new one.
func applyMove(root reflect.Value, op Move) (reflect.Value, error) {
	if len(op.From) == 0 || len(op.To) == 0 {
		return root, fmt.Errorf("%w: move with empty address", ErrInvalidAddress)
	}
	from, to := op.From[len(op.From)-1], op.To[len(op.To)-1]
	if from.IsName() || to.IsName() {
		return root, fmt.Errorf("%w: move between name slots", ErrInvalidAddress)
	}

	value, err := resolve(root, op.From)
	if err != nil {
		return root, err
	}
	moved := iface(value)

	root, err = applyValue(root, op.From, Remove{Address: op.From, Items: op.Items})
	if err != nil {
		return root, err
	}
	return applyValue(root, op.To, Add{Address: op.To, Value: moved, Length: op.Items})
}

// resolve walks an address read-only and returns the value it points at.
func resolve(v reflect.Value, addr address.Address) (reflect.Value, error) {
	for _, slot := range addr {
		for v.Kind() == reflect.Interface || v.Kind() == reflect.Ptr {
			if v.IsNil() {
				return v, fmt.Errorf("%w: %q traverses nil", ErrInvalidAddress, addr)
			}
			v = v.Elem()
		}
		if slot.IsName() {
			if v.Kind() != reflect.Struct {
				return v, fmt.Errorf("%w: name slot %q into a %s", ErrInvalidAddress, slot.Name, v.Type())
			}
			field, ok := fieldBySlot(v, slot.Name)
			if !ok {
				return v, fmt.Errorf("%w: %s has no slot %q", ErrInvalidAddress, v.Type(), slot.Name)
			}
			v = field
		} else {
			if v.Kind() != reflect.Slice || slot.Index < 0 || slot.Index >= v.Len() {
				return v, fmt.Errorf("%w: index %d", ErrInvalidAddress, slot.Index)
			}
			v = v.Index(slot.Index)
		}
	}
	return v, nil
}
