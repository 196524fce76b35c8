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
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ValidatorTypes is the closed sum of parameter validator types.
type ValidatorTypes interface {
	Node
	isValidator()

	// Parse parses and validates a string form of a value, returning the
	// typed node or an error describing the constraint that failed.
	Parse(value string) (Node, error)
}

// BooleanValidator accepts boolean values.
type BooleanValidator struct{}

// IntegerValidator accepts integer values within optional bounds.
type IntegerValidator struct {
	Minimum    *float64
	Maximum    *float64
	MultipleOf *float64
}

// NumberValidator accepts numeric values within optional bounds.
type NumberValidator struct {
	Minimum    *float64
	Maximum    *float64
	MultipleOf *float64
}

// StringValidator accepts strings constrained by length and pattern.
type StringValidator struct {
	MinLength *int
	MaxLength *int
	Pattern   string
}

// EnumValidator accepts one of a fixed set of values.
//
// EnumValidator is diffed as a whole (replace-only): its values back a
// single UI control so fine grained patches to the list are unsafe.
type EnumValidator struct {
	Values []Node
}

// ConstantValidator accepts exactly one value.
type ConstantValidator struct {
	Value Node
}

// TupleValidator accepts a fixed-length array validated per position.
type TupleValidator struct {
	Items []ValidatorTypes
}

func (*BooleanValidator) isNode()  {}
func (*IntegerValidator) isNode()  {}
func (*NumberValidator) isNode()   {}
func (*StringValidator) isNode()   {}
func (*EnumValidator) isNode()     {}
func (*ConstantValidator) isNode() {}
func (*TupleValidator) isNode()    {}

func (*BooleanValidator) isValidator()  {}
func (*IntegerValidator) isValidator()  {}
func (*NumberValidator) isValidator()   {}
func (*StringValidator) isValidator()   {}
func (*EnumValidator) isValidator()     {}
func (*ConstantValidator) isValidator() {}
func (*TupleValidator) isValidator()    {}

// Parse implements ValidatorTypes.
func (v *BooleanValidator) Parse(value string) (Node, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "true", "yes", "1":
		return Boolean(true), nil
	case "false", "no", "0":
		return Boolean(false), nil
	}
	return nil, fmt.Errorf("invalid boolean: %q", value)
}

// Parse implements ValidatorTypes.
func (v *IntegerValidator) Parse(value string) (Node, error) {
	num, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid integer: %q", value)
	}
	if err := checkBounds(float64(num), v.Minimum, v.Maximum, v.MultipleOf); err != nil {
		return nil, err
	}
	return Integer(num), nil
}

// Parse implements ValidatorTypes.
func (v *NumberValidator) Parse(value string) (Node, error) {
	num, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return nil, fmt.Errorf("invalid number: %q", value)
	}
	if err := checkBounds(num, v.Minimum, v.Maximum, v.MultipleOf); err != nil {
		return nil, err
	}
	return Number(num), nil
}

// Parse implements ValidatorTypes.
func (v *StringValidator) Parse(value string) (Node, error) {
	if v.MinLength != nil && len(value) < *v.MinLength {
		return nil, fmt.Errorf("string shorter than minimum length %d", *v.MinLength)
	}
	if v.MaxLength != nil && len(value) > *v.MaxLength {
		return nil, fmt.Errorf("string longer than maximum length %d", *v.MaxLength)
	}
	if v.Pattern != "" {
		matched, err := regexp.MatchString(v.Pattern, value)
		if err != nil {
			return nil, fmt.Errorf("invalid pattern %q: %w", v.Pattern, err)
		}
		if !matched {
			return nil, fmt.Errorf("string does not match pattern %q", v.Pattern)
		}
	}
	return String(value), nil
}

// Parse implements ValidatorTypes.
func (v *EnumValidator) Parse(value string) (Node, error) {
	for _, candidate := range v.Values {
		if str, ok := candidate.(String); ok && string(str) == value {
			return candidate, nil
		}
	}
	return nil, fmt.Errorf("value %q is not one of the allowed values", value)
}

// Parse implements ValidatorTypes.
func (v *ConstantValidator) Parse(value string) (Node, error) {
	if str, ok := v.Value.(String); ok && string(str) == value {
		return v.Value, nil
	}
	return nil, fmt.Errorf("value %q does not equal the constant", value)
}

// Parse implements ValidatorTypes.
//
// The input is split on commas and each item validated positionally.
func (v *TupleValidator) Parse(value string) (Node, error) {
	parts := strings.Split(value, ",")
	if len(parts) != len(v.Items) {
		return nil, fmt.Errorf("expected %d items, got %d", len(v.Items), len(parts))
	}
	result := make(Array, len(parts))
	for i, part := range parts {
		item, err := v.Items[i].Parse(strings.TrimSpace(part))
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		result[i] = item
	}
	return result, nil
}

func checkBounds(num float64, minimum, maximum, multipleOf *float64) error {
	if minimum != nil && num < *minimum {
		return fmt.Errorf("value %v below minimum %v", num, *minimum)
	}
	if maximum != nil && num > *maximum {
		return fmt.Errorf("value %v above maximum %v", num, *maximum)
	}
	if multipleOf != nil && *multipleOf != 0 {
		ratio := num / *multipleOf
		if ratio != float64(int64(ratio)) {
			return fmt.Errorf("value %v is not a multiple of %v", num, *multipleOf)
		}
	}
	return nil
}
