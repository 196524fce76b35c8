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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/loom/address"
	"github.com/AleutianAI/loom/schema"
)

func para(id string, content ...schema.InlineContent) *schema.Paragraph {
	return &schema.Paragraph{ID: id, Content: content}
}

// roundTrip asserts the central law: applying Diff(old, new) to a clone
// of old yields new.
func roundTrip(t *testing.T, old, new schema.Node) Patch {
	t.Helper()
	patch := Diff(old, new)
	result, err := Apply(schema.Clone(old), patch)
	require.NoError(t, err)
	assert.True(t, schema.Equal(new, result),
		"round trip mismatch:\nwant %#v\ngot  %#v\nops  %#v", new, result, patch.Ops)
	return patch
}

func TestDiffApplyRoundTrip(t *testing.T) {
	cases := []struct {
		name string
		old  schema.Node
		new  schema.Node
	}{
		{
			"string edit",
			schema.String("abcd"),
			schema.String("eacp"),
		},
		{
			"text field edit",
			&schema.CodeChunk{ID: "cc-1", ProgrammingLanguage: "calc", Text: "x = 1"},
			&schema.CodeChunk{ID: "cc-1", ProgrammingLanguage: "calc", Text: "x = 42"},
		},
		{
			"scalar and enum fields",
			&schema.CodeChunk{ID: "cc-1", Text: "x = 1"},
			&schema.CodeChunk{ID: "cc-1", Text: "x = 1", ExecuteAuto: schema.ExecuteAutoAlways},
		},
		{
			"outputs replaced",
			&schema.CodeChunk{ID: "cc-1", Text: "x", Outputs: []schema.Node{schema.Integer(1)}},
			&schema.CodeChunk{ID: "cc-1", Text: "x", Outputs: []schema.Node{schema.Integer(2), schema.String("two")}},
		},
		{
			"errors set and cleared",
			&schema.CodeChunk{ID: "cc-1", Text: "x", Errors: []*schema.CodeError{{ErrorType: "SyntaxError", ErrorMessage: "bad"}}},
			&schema.CodeChunk{ID: "cc-1", Text: "x"},
		},
		{
			"inline edits in a paragraph",
			para("pa-1", schema.String("Hello world"), &schema.Emphasis{ID: "em-1", Content: []schema.InlineContent{schema.String("now")}}),
			para("pa-1", schema.String("Hello there world"), &schema.Emphasis{ID: "em-1", Content: []schema.InlineContent{schema.String("later")}}),
		},
		{
			"block insert and remove",
			&schema.Article{ID: "ar-1", Content: []schema.BlockContent{para("pa-1", schema.String("one")), para("pa-2", schema.String("two"))}},
			&schema.Article{ID: "ar-1", Content: []schema.BlockContent{para("pa-2", schema.String("two")), para("pa-3", schema.String("three"))}},
		},
		{
			"optional validator added",
			&schema.Parameter{ID: "pr-1", Name: "n"},
			&schema.Parameter{ID: "pr-1", Name: "n", Validator: &schema.IntegerValidator{}, Default: schema.Integer(1)},
		},
		{
			"optional validator removed",
			&schema.Parameter{ID: "pr-1", Name: "n", Validator: &schema.NumberValidator{}},
			&schema.Parameter{ID: "pr-1", Name: "n"},
		},
		{
			"enum validator is replace only",
			&schema.Parameter{ID: "pr-1", Name: "n", Validator: &schema.EnumValidator{Values: []schema.Node{schema.String("a")}}},
			&schema.Parameter{ID: "pr-1", Name: "n", Validator: &schema.EnumValidator{Values: []schema.Node{schema.String("a"), schema.String("b")}}},
		},
		{
			"table cells",
			&schema.Table{ID: "ta-1", Rows: []*schema.TableRow{
				{Cells: []*schema.TableCell{{Content: []schema.InlineContent{schema.String("a")}}}},
			}},
			&schema.Table{ID: "ta-1", Rows: []*schema.TableRow{
				{Cells: []*schema.TableCell{{Content: []schema.InlineContent{schema.String("a")}}, {Content: []schema.InlineContent{schema.String("b")}}}},
			}},
		},
		{
			"root type change",
			schema.String("plain"),
			schema.Integer(3),
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			roundTrip(t, tc.old, tc.new)
			// And, since diffing is not symmetric, the other direction.
			roundTrip(t, tc.new, tc.old)
		})
	}
}

func TestDiffStringOps(t *testing.T) {
	patch := Diff(schema.String("abcd"), schema.String("eacp"))

	// "abcd" -> insert "e" at 0, remove "b" at 2, replace "d" with "p" at 3.
	require.Len(t, patch.Ops, 3)

	add, ok := patch.Ops[0].(Add)
	require.True(t, ok)
	assert.Equal(t, "0", add.Address.String())
	assert.Equal(t, "e", add.Value)

	remove, ok := patch.Ops[1].(Remove)
	require.True(t, ok)
	assert.Equal(t, "2", remove.Address.String())
	assert.Equal(t, 1, remove.Items)

	replace, ok := patch.Ops[2].(Replace)
	require.True(t, ok)
	assert.Equal(t, "3", replace.Address.String())
	assert.Equal(t, "p", replace.Value)
}

func TestDiffDetectsMoves(t *testing.T) {
	old := &schema.Article{ID: "ar-1", Content: []schema.BlockContent{
		para("pa-1", schema.String("one")),
		para("pa-2", schema.String("two")),
		para("pa-3", schema.String("three")),
	}}
	new := &schema.Article{ID: "ar-1", Content: []schema.BlockContent{
		para("pa-3", schema.String("three")),
		para("pa-1", schema.String("one")),
		para("pa-2", schema.String("two")),
	}}

	patch := roundTrip(t, old, new)

	require.Len(t, patch.Ops, 1)
	move, ok := patch.Ops[0].(Move)
	require.True(t, ok)
	assert.Equal(t, "content.2", move.From.String())
	assert.Equal(t, "content.0", move.To.String())
}

func TestDiffEmitsTransform(t *testing.T) {
	old := para("pa-1", &schema.Emphasis{ID: "in-1", Content: []schema.InlineContent{schema.String("hi")}})
	new := para("pa-1", &schema.Strong{ID: "in-1", Content: []schema.InlineContent{schema.String("hi")}})

	patch := roundTrip(t, old, new)

	require.Len(t, patch.Ops, 1)
	transform, ok := patch.Ops[0].(Transform)
	require.True(t, ok)
	assert.Equal(t, "content.0", transform.Address.String())
	assert.Equal(t, "Emphasis", transform.From)
	assert.Equal(t, "Strong", transform.To)
}

func TestDiffEqualNodesIsEmpty(t *testing.T) {
	article := &schema.Article{ID: "ar-1", Content: []schema.BlockContent{para("pa-1", schema.String("hi"))}}
	assert.True(t, Diff(article, schema.Clone(article)).Empty())
}

func TestApplyRejectsBadAddresses(t *testing.T) {
	article := &schema.Article{ID: "ar-1", Content: []schema.BlockContent{para("pa-1", schema.String("hi"))}}

	cases := []Operation{
		Remove{Address: address.Address{address.NameSlot("nope")}, Items: 1},
		Remove{Address: address.Address{address.NameSlot("content"), address.IndexSlot(5)}, Items: 1},
		Add{Address: address.Address{address.IndexSlot(0)}, Value: schema.String("x"), Length: 1},
		Replace{Address: address.Address{address.NameSlot("content"), address.IndexSlot(0), address.NameSlot("content"), address.IndexSlot(0), address.IndexSlot(99)}, Items: 1, Value: "x", Length: 1},
	}

	for _, op := range cases {
		_, err := Apply(schema.Clone(article), Patch{Ops: []Operation{op}})
		assert.ErrorIs(t, err, ErrInvalidAddress, "%#v", op)
	}
}

func TestApplyRejectsBadValues(t *testing.T) {
	article := &schema.Article{ID: "ar-1", Content: []schema.BlockContent{para("pa-1", schema.String("hi"))}}

	// An integer cannot be inserted into block content.
	op := Add{Address: address.Address{address.NameSlot("content"), address.IndexSlot(0)}, Value: 42, Length: 1}
	_, err := Apply(schema.Clone(article), Patch{Ops: []Operation{op}})
	assert.ErrorIs(t, err, ErrInvalidValue)
}

func TestPatchValue(t *testing.T) {
	patch := Patch{
		Target:  "pa-1",
		ActorID: "client-9",
		Ops: []Operation{
			Add{Address: address.Address{address.NameSlot("content"), address.IndexSlot(0)}, Value: schema.String("hi"), Length: 1},
			Move{From: address.Address{address.IndexSlot(2)}, Items: 1, To: address.Address{address.IndexSlot(0)}},
		},
	}

	value, ok := patch.Value().(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "pa-1", value["target"])
	assert.Equal(t, "client-9", value["actor"])

	ops, ok := value["ops"].([]any)
	require.True(t, ok)
	require.Len(t, ops, 2)

	first := ops[0].(map[string]any)
	assert.Equal(t, "Add", first["type"])
	assert.Equal(t, "content.0", first["address"])

	second := ops[1].(map[string]any)
	assert.Equal(t, "Move", second["type"])
	assert.Equal(t, "2", second["from"])
}
