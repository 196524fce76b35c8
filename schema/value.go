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
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
)

// ToValue converts a node to a generic value (maps, slices, primitives)
// suitable for JSON or YAML marshalling. Entity nodes become maps with a
// "type" discriminator; empty fields are omitted.
func ToValue(node Node) any {
	switch n := node.(type) {
	case nil, Null:
		return nil
	case Boolean:
		return bool(n)
	case Integer:
		return int64(n)
	case Number:
		return float64(n)
	case String:
		return string(n)
	case Array:
		values := make([]any, len(n))
		for i, item := range n {
			values[i] = ToValue(item)
		}
		return values
	case Object:
		values := make(map[string]any, len(n))
		for key, item := range n {
			values[key] = ToValue(item)
		}
		return values
	case *CodeError:
		m := entity("CodeError", "")
		put(m, "errorType", n.ErrorType)
		put(m, "errorMessage", n.ErrorMessage)
		return m
	case *Article:
		m := entity("Article", n.ID)
		putBlocks(m, "content", n.Content)
		return m
	case *Datatable:
		m := entity("Datatable", n.ID)
		if len(n.Columns) > 0 {
			columns := make([]any, len(n.Columns))
			for i, col := range n.Columns {
				cm := map[string]any{"type": "DatatableColumn", "name": col.Name}
				if col.Validator != nil {
					cm["validator"] = ToValue(col.Validator)
				}
				putNodes(cm, "values", col.Values)
				columns[i] = cm
			}
			m["columns"] = columns
		}
		return m
	case *CodeBlock:
		m := entity("CodeBlock", n.ID)
		put(m, "programmingLanguage", n.ProgrammingLanguage)
		put(m, "text", n.Text)
		return m
	case *CodeChunk:
		m := entity("CodeChunk", n.ID)
		put(m, "programmingLanguage", n.ProgrammingLanguage)
		put(m, "text", n.Text)
		if n.ExecuteAuto != ExecuteAutoWhenNecessary {
			m["executeAuto"] = n.ExecuteAuto.String()
		}
		putNodes(m, "outputs", n.Outputs)
		putErrors(m, n.Errors)
		put(m, "compileDigest", n.CompileDigest)
		put(m, "executeDigest", n.ExecuteDigest)
		return m
	case *Heading:
		m := entity("Heading", n.ID)
		if n.Depth != 0 {
			m["depth"] = int64(n.Depth)
		}
		putInlines(m, "content", n.Content)
		return m
	case *Paragraph:
		m := entity("Paragraph", n.ID)
		putInlines(m, "content", n.Content)
		return m
	case *QuoteBlock:
		m := entity("QuoteBlock", n.ID)
		putBlocks(m, "content", n.Content)
		return m
	case *List:
		m := entity("List", n.ID)
		if n.Order == ListOrderAscending {
			m["order"] = "ascending"
		}
		if len(n.Items) > 0 {
			items := make([]any, len(n.Items))
			for i, item := range n.Items {
				items[i] = ToValue(item)
			}
			m["items"] = items
		}
		return m
	case *ListItem:
		m := entity("ListItem", n.ID)
		putBlocks(m, "content", n.Content)
		return m
	case *MathBlock:
		m := entity("MathBlock", n.ID)
		put(m, "text", n.Text)
		return m
	case *Table:
		m := entity("Table", n.ID)
		if len(n.Rows) > 0 {
			rows := make([]any, len(n.Rows))
			for i, row := range n.Rows {
				rows[i] = ToValue(row)
			}
			m["rows"] = rows
		}
		return m
	case *TableRow:
		m := entity("TableRow", n.ID)
		if len(n.Cells) > 0 {
			cells := make([]any, len(n.Cells))
			for i, cell := range n.Cells {
				cells[i] = ToValue(cell)
			}
			m["cells"] = cells
		}
		return m
	case *TableCell:
		m := entity("TableCell", n.ID)
		putInlines(m, "content", n.Content)
		return m
	case *ThematicBreak:
		return entity("ThematicBreak", n.ID)
	case *Include:
		m := entity("Include", n.ID)
		put(m, "source", n.Source)
		putBlocks(m, "content", n.Content)
		return m
	case *Emphasis:
		m := entity("Emphasis", n.ID)
		putInlines(m, "content", n.Content)
		return m
	case *Strong:
		m := entity("Strong", n.ID)
		putInlines(m, "content", n.Content)
		return m
	case *Link:
		m := entity("Link", n.ID)
		put(m, "target", n.Target)
		putInlines(m, "content", n.Content)
		return m
	case *CodeFragment:
		m := entity("CodeFragment", n.ID)
		put(m, "programmingLanguage", n.ProgrammingLanguage)
		put(m, "text", n.Text)
		return m
	case *CodeExpression:
		m := entity("CodeExpression", n.ID)
		put(m, "programmingLanguage", n.ProgrammingLanguage)
		put(m, "text", n.Text)
		if n.Output != nil {
			m["output"] = ToValue(n.Output)
		}
		putErrors(m, n.Errors)
		put(m, "compileDigest", n.CompileDigest)
		put(m, "executeDigest", n.ExecuteDigest)
		return m
	case *MathFragment:
		m := entity("MathFragment", n.ID)
		put(m, "text", n.Text)
		return m
	case *Parameter:
		m := entity("Parameter", n.ID)
		put(m, "name", n.Name)
		if n.Validator != nil {
			m["validator"] = ToValue(n.Validator)
		}
		if n.Default != nil {
			m["default"] = ToValue(n.Default)
		}
		if n.Value != nil {
			m["value"] = ToValue(n.Value)
		}
		return m
	case *BooleanValidator:
		return entity("BooleanValidator", "")
	case *IntegerValidator:
		m := entity("IntegerValidator", "")
		putFloat(m, "minimum", n.Minimum)
		putFloat(m, "maximum", n.Maximum)
		putFloat(m, "multipleOf", n.MultipleOf)
		return m
	case *NumberValidator:
		m := entity("NumberValidator", "")
		putFloat(m, "minimum", n.Minimum)
		putFloat(m, "maximum", n.Maximum)
		putFloat(m, "multipleOf", n.MultipleOf)
		return m
	case *StringValidator:
		m := entity("StringValidator", "")
		if n.MinLength != nil {
			m["minLength"] = int64(*n.MinLength)
		}
		if n.MaxLength != nil {
			m["maxLength"] = int64(*n.MaxLength)
		}
		put(m, "pattern", n.Pattern)
		return m
	case *EnumValidator:
		m := entity("EnumValidator", "")
		putNodes(m, "values", n.Values)
		return m
	case *ConstantValidator:
		m := entity("ConstantValidator", "")
		if n.Value != nil {
			m["value"] = ToValue(n.Value)
		}
		return m
	case *TupleValidator:
		m := entity("TupleValidator", "")
		if len(n.Items) > 0 {
			items := make([]any, len(n.Items))
			for i, item := range n.Items {
				items[i] = ToValue(item)
			}
			m["items"] = items
		}
		return m
	default:
		return nil
	}
}

// FromValue converts a generic value back to a node. It is the inverse of
// ToValue and accepts values produced by encoding/json (including
// json.Number) and gopkg.in/yaml.v3.
func FromValue(value any) (Node, error) {
	switch v := value.(type) {
	case nil:
		return Null{}, nil
	case bool:
		return Boolean(v), nil
	case int:
		return Integer(v), nil
	case int64:
		return Integer(v), nil
	case uint64:
		return Integer(v), nil
	case float64:
		return Number(v), nil
	case json.Number:
		if i, err := strconv.ParseInt(string(v), 10, 64); err == nil {
			return Integer(i), nil
		}
		f, err := v.Float64()
		if err != nil {
			return nil, fmt.Errorf("invalid number %q: %w", v, err)
		}
		return Number(f), nil
	case string:
		return String(v), nil
	case []any:
		array := make(Array, len(v))
		for i, item := range v {
			node, err := FromValue(item)
			if err != nil {
				return nil, err
			}
			array[i] = node
		}
		return array, nil
	case map[string]any:
		typeName, _ := v["type"].(string)
		if typeName == "" {
			object := make(Object, len(v))
			for key, item := range v {
				node, err := FromValue(item)
				if err != nil {
					return nil, err
				}
				object[key] = node
			}
			return object, nil
		}
		return entityFromMap(typeName, v)
	default:
		return nil, fmt.Errorf("cannot convert value of type %T to a node", value)
	}
}

// Clone returns a deep copy of a node.
func Clone(node Node) Node {
	copied, err := FromValue(ToValue(node))
	if err != nil {
		// ToValue output is always convertible back
		panic(fmt.Sprintf("schema: clone failed: %v", err))
	}
	return copied
}

// Equal reports whether two nodes are deeply equal.
func Equal(a, b Node) bool {
	return reflect.DeepEqual(a, b)
}

func entityFromMap(typeName string, m map[string]any) (Node, error) {
	switch typeName {
	case "CodeError":
		return &CodeError{ErrorType: str(m, "errorType"), ErrorMessage: str(m, "errorMessage")}, nil
	case "Article":
		content, err := blocks(m, "content")
		if err != nil {
			return nil, err
		}
		return &Article{ID: str(m, "id"), Content: content}, nil
	case "Datatable":
		dt := &Datatable{ID: str(m, "id")}
		if raw, ok := m["columns"].([]any); ok {
			for _, rawCol := range raw {
				cm, ok := rawCol.(map[string]any)
				if !ok {
					return nil, fmt.Errorf("invalid datatable column")
				}
				col := DatatableColumn{Name: str(cm, "name")}
				if rawVal, ok := cm["validator"]; ok {
					node, err := FromValue(rawVal)
					if err != nil {
						return nil, err
					}
					if validator, ok := node.(ValidatorTypes); ok {
						col.Validator = validator
					}
				}
				values, err := nodes(cm, "values")
				if err != nil {
					return nil, err
				}
				col.Values = values
				dt.Columns = append(dt.Columns, col)
			}
		}
		return dt, nil
	case "CodeBlock":
		return &CodeBlock{ID: str(m, "id"), ProgrammingLanguage: str(m, "programmingLanguage"), Text: str(m, "text")}, nil
	case "CodeChunk":
		outputs, err := nodes(m, "outputs")
		if err != nil {
			return nil, err
		}
		errs, err := codeErrors(m)
		if err != nil {
			return nil, err
		}
		return &CodeChunk{
			ID:                  str(m, "id"),
			ProgrammingLanguage: str(m, "programmingLanguage"),
			Text:                str(m, "text"),
			ExecuteAuto:         ParseExecuteAuto(str(m, "executeAuto")),
			Outputs:             outputs,
			Errors:              errs,
			CompileDigest:       str(m, "compileDigest"),
			ExecuteDigest:       str(m, "executeDigest"),
		}, nil
	case "Heading":
		content, err := inlines(m, "content")
		if err != nil {
			return nil, err
		}
		return &Heading{ID: str(m, "id"), Depth: integer(m, "depth"), Content: content}, nil
	case "Paragraph":
		content, err := inlines(m, "content")
		if err != nil {
			return nil, err
		}
		return &Paragraph{ID: str(m, "id"), Content: content}, nil
	case "QuoteBlock":
		content, err := blocks(m, "content")
		if err != nil {
			return nil, err
		}
		return &QuoteBlock{ID: str(m, "id"), Content: content}, nil
	case "List":
		list := &List{ID: str(m, "id")}
		if str(m, "order") == "ascending" {
			list.Order = ListOrderAscending
		}
		if raw, ok := m["items"].([]any); ok {
			for _, rawItem := range raw {
				node, err := FromValue(rawItem)
				if err != nil {
					return nil, err
				}
				item, ok := node.(*ListItem)
				if !ok {
					return nil, fmt.Errorf("list items must be ListItem, got %s", TypeName(node))
				}
				list.Items = append(list.Items, item)
			}
		}
		return list, nil
	case "ListItem":
		content, err := blocks(m, "content")
		if err != nil {
			return nil, err
		}
		return &ListItem{ID: str(m, "id"), Content: content}, nil
	case "MathBlock":
		return &MathBlock{ID: str(m, "id"), Text: str(m, "text")}, nil
	case "Table":
		table := &Table{ID: str(m, "id")}
		if raw, ok := m["rows"].([]any); ok {
			for _, rawRow := range raw {
				node, err := FromValue(rawRow)
				if err != nil {
					return nil, err
				}
				row, ok := node.(*TableRow)
				if !ok {
					return nil, fmt.Errorf("table rows must be TableRow, got %s", TypeName(node))
				}
				table.Rows = append(table.Rows, row)
			}
		}
		return table, nil
	case "TableRow":
		row := &TableRow{ID: str(m, "id")}
		if raw, ok := m["cells"].([]any); ok {
			for _, rawCell := range raw {
				node, err := FromValue(rawCell)
				if err != nil {
					return nil, err
				}
				cell, ok := node.(*TableCell)
				if !ok {
					return nil, fmt.Errorf("table cells must be TableCell, got %s", TypeName(node))
				}
				row.Cells = append(row.Cells, cell)
			}
		}
		return row, nil
	case "TableCell":
		content, err := inlines(m, "content")
		if err != nil {
			return nil, err
		}
		return &TableCell{ID: str(m, "id"), Content: content}, nil
	case "ThematicBreak":
		return &ThematicBreak{ID: str(m, "id")}, nil
	case "Include":
		content, err := blocks(m, "content")
		if err != nil {
			return nil, err
		}
		return &Include{ID: str(m, "id"), Source: str(m, "source"), Content: content}, nil
	case "Emphasis":
		content, err := inlines(m, "content")
		if err != nil {
			return nil, err
		}
		return &Emphasis{ID: str(m, "id"), Content: content}, nil
	case "Strong":
		content, err := inlines(m, "content")
		if err != nil {
			return nil, err
		}
		return &Strong{ID: str(m, "id"), Content: content}, nil
	case "Link":
		content, err := inlines(m, "content")
		if err != nil {
			return nil, err
		}
		return &Link{ID: str(m, "id"), Target: str(m, "target"), Content: content}, nil
	case "CodeFragment":
		return &CodeFragment{ID: str(m, "id"), ProgrammingLanguage: str(m, "programmingLanguage"), Text: str(m, "text")}, nil
	case "CodeExpression":
		expr := &CodeExpression{
			ID:                  str(m, "id"),
			ProgrammingLanguage: str(m, "programmingLanguage"),
			Text:                str(m, "text"),
			CompileDigest:       str(m, "compileDigest"),
			ExecuteDigest:       str(m, "executeDigest"),
		}
		if raw, ok := m["output"]; ok {
			output, err := FromValue(raw)
			if err != nil {
				return nil, err
			}
			expr.Output = output
		}
		errs, err := codeErrors(m)
		if err != nil {
			return nil, err
		}
		expr.Errors = errs
		return expr, nil
	case "MathFragment":
		return &MathFragment{ID: str(m, "id"), Text: str(m, "text")}, nil
	case "Parameter":
		param := &Parameter{ID: str(m, "id"), Name: str(m, "name")}
		if raw, ok := m["validator"]; ok {
			node, err := FromValue(raw)
			if err != nil {
				return nil, err
			}
			validator, ok := node.(ValidatorTypes)
			if !ok {
				return nil, fmt.Errorf("parameter validator must be a validator, got %s", TypeName(node))
			}
			param.Validator = validator
		}
		if raw, ok := m["default"]; ok {
			node, err := FromValue(raw)
			if err != nil {
				return nil, err
			}
			param.Default = node
		}
		if raw, ok := m["value"]; ok {
			node, err := FromValue(raw)
			if err != nil {
				return nil, err
			}
			param.Value = node
		}
		return param, nil
	case "BooleanValidator":
		return &BooleanValidator{}, nil
	case "IntegerValidator":
		return &IntegerValidator{Minimum: float(m, "minimum"), Maximum: float(m, "maximum"), MultipleOf: float(m, "multipleOf")}, nil
	case "NumberValidator":
		return &NumberValidator{Minimum: float(m, "minimum"), Maximum: float(m, "maximum"), MultipleOf: float(m, "multipleOf")}, nil
	case "StringValidator":
		validator := &StringValidator{Pattern: str(m, "pattern")}
		if raw, ok := m["minLength"]; ok {
			length := int(toFloat(raw))
			validator.MinLength = &length
		}
		if raw, ok := m["maxLength"]; ok {
			length := int(toFloat(raw))
			validator.MaxLength = &length
		}
		return validator, nil
	case "EnumValidator":
		values, err := nodes(m, "values")
		if err != nil {
			return nil, err
		}
		return &EnumValidator{Values: values}, nil
	case "ConstantValidator":
		validator := &ConstantValidator{}
		if raw, ok := m["value"]; ok {
			node, err := FromValue(raw)
			if err != nil {
				return nil, err
			}
			validator.Value = node
		}
		return validator, nil
	case "TupleValidator":
		validator := &TupleValidator{}
		if raw, ok := m["items"].([]any); ok {
			for _, rawItem := range raw {
				node, err := FromValue(rawItem)
				if err != nil {
					return nil, err
				}
				item, ok := node.(ValidatorTypes)
				if !ok {
					return nil, fmt.Errorf("tuple items must be validators, got %s", TypeName(node))
				}
				validator.Items = append(validator.Items, item)
			}
		}
		return validator, nil
	default:
		return nil, fmt.Errorf("unknown node type %q", typeName)
	}
}

// Map construction helpers. Empty values are omitted so serialized forms
// stay small and deterministic.

func entity(typeName, id string) map[string]any {
	m := map[string]any{"type": typeName}
	if id != "" {
		m["id"] = id
	}
	return m
}

func put(m map[string]any, key, value string) {
	if value != "" {
		m[key] = value
	}
}

func putFloat(m map[string]any, key string, value *float64) {
	if value != nil {
		m[key] = *value
	}
}

func putNodes(m map[string]any, key string, values []Node) {
	if len(values) == 0 {
		return
	}
	items := make([]any, len(values))
	for i, value := range values {
		items[i] = ToValue(value)
	}
	m[key] = items
}

func putBlocks(m map[string]any, key string, values []BlockContent) {
	if len(values) == 0 {
		return
	}
	items := make([]any, len(values))
	for i, value := range values {
		items[i] = ToValue(value)
	}
	m[key] = items
}

func putInlines(m map[string]any, key string, values []InlineContent) {
	if len(values) == 0 {
		return
	}
	items := make([]any, len(values))
	for i, value := range values {
		items[i] = ToValue(value)
	}
	m[key] = items
}

func putErrors(m map[string]any, errs []*CodeError) {
	if len(errs) == 0 {
		return
	}
	items := make([]any, len(errs))
	for i, err := range errs {
		items[i] = ToValue(err)
	}
	m["errors"] = items
}

// Map access helpers for decoding.

func str(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

func toFloat(value any) float64 {
	switch v := value.(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case uint64:
		return float64(v)
	case json.Number:
		f, _ := v.Float64()
		return f
	default:
		return 0
	}
}

func integer(m map[string]any, key string) int {
	if raw, ok := m[key]; ok {
		return int(toFloat(raw))
	}
	return 0
}

func float(m map[string]any, key string) *float64 {
	if raw, ok := m[key]; ok {
		f := toFloat(raw)
		return &f
	}
	return nil
}

func nodes(m map[string]any, key string) ([]Node, error) {
	raw, ok := m[key].([]any)
	if !ok {
		return nil, nil
	}
	result := make([]Node, len(raw))
	for i, item := range raw {
		node, err := FromValue(item)
		if err != nil {
			return nil, err
		}
		result[i] = node
	}
	return result, nil
}

func blocks(m map[string]any, key string) ([]BlockContent, error) {
	raw, err := nodes(m, key)
	if err != nil || raw == nil {
		return nil, err
	}
	result := make([]BlockContent, len(raw))
	for i, node := range raw {
		block, ok := node.(BlockContent)
		if !ok {
			return nil, fmt.Errorf("expected block content, got %s", TypeName(node))
		}
		result[i] = block
	}
	return result, nil
}

func inlines(m map[string]any, key string) ([]InlineContent, error) {
	raw, err := nodes(m, key)
	if err != nil || raw == nil {
		return nil, err
	}
	result := make([]InlineContent, len(raw))
	for i, node := range raw {
		inline, ok := node.(InlineContent)
		if !ok {
			return nil, fmt.Errorf("expected inline content, got %s", TypeName(node))
		}
		result[i] = inline
	}
	return result, nil
}

func codeErrors(m map[string]any) ([]*CodeError, error) {
	raw, err := nodes(m, "errors")
	if err != nil || raw == nil {
		return nil, err
	}
	result := make([]*CodeError, len(raw))
	for i, node := range raw {
		codeErr, ok := node.(*CodeError)
		if !ok {
			return nil, fmt.Errorf("expected CodeError, got %s", TypeName(node))
		}
		result[i] = codeErr
	}
	return result, nil
}
