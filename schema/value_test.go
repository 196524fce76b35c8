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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleArticle() *Article {
	return &Article{
		ID: "ar-1",
		Content: []BlockContent{
			&Heading{ID: "he-1", Depth: 1, Content: []InlineContent{String("Title")}},
			&Paragraph{ID: "pa-1", Content: []InlineContent{
				String("Some "),
				&Strong{ID: "st-1", Content: []InlineContent{String("bold")}},
				String(" text with "),
				&Link{ID: "lk-1", Target: "other.md", Content: []InlineContent{String("a link")}},
			}},
			&CodeChunk{ID: "cc-1", ProgrammingLanguage: "calc", Text: "x = 1"},
			&List{ID: "li-1", Order: ListOrderAscending, Items: []*ListItem{
				{ID: "lt-1", Content: []BlockContent{&Paragraph{Content: []InlineContent{String("one")}}}},
				{ID: "lt-2", Content: []BlockContent{&Paragraph{Content: []InlineContent{String("two")}}}},
			}},
			&Table{ID: "ta-1", Rows: []*TableRow{
				{Cells: []*TableCell{{Content: []InlineContent{String("a")}}, {Content: []InlineContent{String("b")}}}},
			}},
			&ThematicBreak{},
		},
	}
}

func TestValueRoundTrip(t *testing.T) {
	cases := []struct {
		name string
		node Node
	}{
		{"null", Null{}},
		{"boolean", Boolean(true)},
		{"integer", Integer(42)},
		{"number", Number(3.14)},
		{"string", String("hello")},
		{"array", Array{Integer(1), String("two"), Null{}}},
		{"object", Object{"a": Integer(1), "b": String("two")}},
		{"article", sampleArticle()},
		{"parameter", &Parameter{
			ID:        "pr-1",
			Name:      "n",
			Validator: &IntegerValidator{Minimum: ptr(0.0), Maximum: ptr(10.0)},
			Default:   Integer(5),
		}},
		{"code expression", &CodeExpression{
			ID: "ce-1", ProgrammingLanguage: "calc", Text: "x * 2",
			Output: Number(4), Errors: []*CodeError{{ErrorType: "RuntimeError", ErrorMessage: "boom"}},
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			back, err := FromValue(ToValue(tc.node))
			require.NoError(t, err)
			assert.True(t, Equal(tc.node, back), "expected %#v, got %#v", tc.node, back)
		})
	}
}

func TestClone(t *testing.T) {
	article := sampleArticle()
	copied := Clone(article)

	require.True(t, Equal(article, copied))

	// Mutating the copy must not touch the original.
	copied.(*Article).Content[0].(*Heading).Content[0] = String("Changed")
	assert.False(t, Equal(article, copied))
	assert.Equal(t, String("Title"), article.Content[0].(*Heading).Content[0])
}

func TestEnsureID(t *testing.T) {
	para := &Paragraph{}
	id := EnsureID(para)
	require.NotEmpty(t, id)
	assert.True(t, strings.HasPrefix(id, "pa-"))
	assert.Equal(t, id, EnsureID(para), "existing ids are kept")

	// Primitives have no id.
	assert.Empty(t, EnsureID(String("x")))
}

func TestTypeName(t *testing.T) {
	assert.Equal(t, "Paragraph", TypeName(&Paragraph{}))
	assert.Equal(t, "String", TypeName(String("")))
	assert.Equal(t, "EnumValidator", TypeName(&EnumValidator{}))
}

func TestValidatorParse(t *testing.T) {
	t.Run("integer bounds", func(t *testing.T) {
		v := &IntegerValidator{Minimum: ptr(1.0), Maximum: ptr(10.0)}

		node, err := v.Parse("5")
		require.NoError(t, err)
		assert.Equal(t, Integer(5), node)

		_, err = v.Parse("11")
		assert.Error(t, err)

		_, err = v.Parse("abc")
		assert.Error(t, err)
	})

	t.Run("enum", func(t *testing.T) {
		v := &EnumValidator{Values: []Node{String("a"), String("b")}}

		node, err := v.Parse("b")
		require.NoError(t, err)
		assert.Equal(t, String("b"), node)

		_, err = v.Parse("c")
		assert.Error(t, err)
	})

	t.Run("string pattern", func(t *testing.T) {
		v := &StringValidator{Pattern: "^[a-z]+$"}

		_, err := v.Parse("abc")
		require.NoError(t, err)

		_, err = v.Parse("ABC")
		assert.Error(t, err)
	})

	t.Run("tuple", func(t *testing.T) {
		v := &TupleValidator{Items: []ValidatorTypes{&IntegerValidator{}, &BooleanValidator{}}}

		node, err := v.Parse("1, true")
		require.NoError(t, err)
		assert.Equal(t, Array{Integer(1), Boolean(true)}, node)

		_, err = v.Parse("1")
		assert.Error(t, err)
	})
}

func ptr(f float64) *float64 { return &f }
