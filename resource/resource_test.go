// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package resource

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResourceIDs(t *testing.T) {
	cases := []struct {
		resource Resource
		id       string
	}{
		{Symbol("report.md", "x", "Number"), "symbol://report.md#x"},
		{Code("report.md", "cc-1", "CodeChunk", "calc"), "code://report.md#cc-1"},
		{Node("report.md", "pa-1", "Parameter"), "node://report.md#pa-1"},
		{File("data/prices.csv"), "file://data/prices.csv"},
		{Module("python", "numpy"), "module://python#numpy"},
		{URL("https://example.org/data.json"), "https://example.org/data.json"},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.id, tc.resource.ID())
	}
}

func TestResourceSameIgnoresHints(t *testing.T) {
	a := Symbol("report.md", "x", "Number")
	b := Symbol("report.md", "x", "String")
	assert.True(t, a.Same(b))

	c := Code("report.md", "cc-1", "CodeChunk", "calc")
	d := Code("report.md", "cc-1", "CodeExpression", "python")
	assert.True(t, c.Same(d))
}

func TestDigestStringRoundTrip(t *testing.T) {
	digest := Digest{Content: 123, Semantic: 456, Dependencies: 789, StaleCount: 2, FailedCount: 1}

	text := digest.String()
	assert.Equal(t, "123.456.789.2.1", text)

	back, err := ParseDigest(text)
	require.NoError(t, err)
	assert.Equal(t, digest, back)

	_, err = ParseDigest("1.2.3")
	assert.Error(t, err)

	_, err = ParseDigest("1.2.3.x.5")
	assert.Error(t, err)
}

func TestDigestStripsCarriageReturns(t *testing.T) {
	unix := DigestFromStrings("a = 1\nb = 2\n", "a=1\nb=2")
	windows := DigestFromStrings("a = 1\r\nb = 2\r\n", "a=1\r\nb=2")

	assert.Equal(t, unix, windows)
	assert.NotZero(t, unix.Content)
	assert.NotEqual(t, unix.Content, unix.Semantic)
}

func TestDigestEmptySemanticFallsBackToContent(t *testing.T) {
	digest := DigestFromStrings("x = 1", "")
	assert.Equal(t, digest.Content, digest.Semantic)
	assert.NotZero(t, digest.Semantic)
}

func TestDigestFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello\r\nworld\r\n"), 0o644))

	digest := DigestFromFile(path)
	assert.Equal(t, DigestFromStrings("hello\nworld\n", "hello\nworld\n"), digest)

	// Unreadable files digest to zero, which always differs from a real
	// digest and so propagates the change.
	missing := DigestFromFile(filepath.Join(dir, "missing.txt"))
	assert.True(t, missing.Zero())
}

func TestDigestFoldIsOrderSensitive(t *testing.T) {
	a := DigestFromStrings("a", "a")
	a.Fold(1)
	a.Fold(2)

	b := DigestFromStrings("a", "a")
	b.Fold(2)
	b.Fold(1)

	assert.NotEqual(t, a.Dependencies, b.Dependencies)
}

func TestTagMapInsertAndItems(t *testing.T) {
	var tags TagMap
	tags.Insert(Tag{Name: "uses", Value: "x, y  z"})
	tags.Insert(Tag{Name: "autorun", Value: "always"})
	tags.Insert(Tag{Name: "uses", Value: "a"})

	assert.Equal(t, 2, tags.Len())
	assert.Equal(t, []string{"a"}, tags.GetItems("uses"))
	assert.Equal(t, "always", tags.GetValue("autorun"))
	assert.Empty(t, tags.GetItems("missing"))

	var multi TagMap
	multi.Insert(Tag{Name: "uses", Value: "x, y  z"})
	assert.Equal(t, []string{"x", "y", "z"}, multi.GetItems("uses"))
}

func TestTagMapGlobalsAndMerge(t *testing.T) {
	var local TagMap
	local.Insert(Tag{Name: "uses", Value: "x"})
	local.Insert(Tag{Name: "db", Value: "local.sqlite"})

	var doc TagMap
	doc.Insert(Tag{Name: "db", Value: "shared.sqlite", Global: true})
	doc.Insert(Tag{Name: "private", Value: "yes"})

	// Only global tags cross over, and they override local ones.
	local.InsertGlobals(&doc)
	assert.Equal(t, "shared.sqlite", local.GetValue("db"))
	_, ok := local.Get("private")
	assert.False(t, ok)

	var all TagMap
	all.Insert(Tag{Name: "db", Value: "local.sqlite"})
	all.Merge(&doc)
	assert.Equal(t, "shared.sqlite", all.GetValue("db"))
	assert.Equal(t, "yes", all.GetValue("private"))
}

func TestInfoStaleness(t *testing.T) {
	info := NewInfo(Code("report.md", "cc-1", "CodeChunk", "calc"))
	assert.True(t, info.IsStale(), "never compiled")

	digest := DigestFromStrings("x = 1", "x=1")
	info.CompileDigest = &digest
	assert.True(t, info.IsStale(), "never executed")

	info.DidExecute(false)
	assert.False(t, info.IsStale())
	assert.False(t, info.IsFail())

	// Formatting-only edit: content changes, semantic does not.
	reformatted := DigestFromStrings("x  =  1", "x=1")
	info.CompileDigest = &reformatted
	assert.False(t, info.IsStale())

	// Semantic edit.
	edited := DigestFromStrings("x = 2", "x=2")
	info.CompileDigest = &edited
	assert.True(t, info.IsStale())

	info.DidExecute(true)
	assert.False(t, info.IsStale(), "executed, even though it failed")
	assert.True(t, info.IsFail())

	// A stale dependency makes this resource stale too.
	upstream := *info.CompileDigest
	upstream.StaleCount = 1
	info.CompileDigest = &upstream
	assert.True(t, info.IsStale())

	// Digests equal in every field are never stale, even with stale
	// dependencies on both sides: the resource already executed against
	// that exact upstream state.
	settled := Digest{Content: 1, Semantic: 2, Dependencies: 3, StaleCount: 2, FailedCount: 1}
	settledCopy := settled
	info.CompileDigest = &settled
	info.ExecuteDigest = &settledCopy
	assert.False(t, info.IsStale())

	// Any stale-count difference is staleness, in either direction.
	fewer := settled
	fewer.StaleCount = 0
	info.CompileDigest = &fewer
	assert.True(t, info.IsStale())

	// A failed-count difference alone is not staleness; failures classify
	// through IsFail.
	failedOnly := settled
	failedOnly.FailedCount = 3
	info.CompileDigest = &failedOnly
	assert.False(t, info.IsStale())
}

func TestInfoPurity(t *testing.T) {
	code := Code("report.md", "cc-1", "CodeChunk", "calc")

	pure := NewInfo(code)
	pure.Relations = []Pair{
		{RelationUses, Symbol("report.md", "x", "")},
		{RelationReads, File("data.csv")},
	}
	assert.True(t, pure.IsPure())

	impure := NewInfo(code)
	impure.Relations = []Pair{
		{RelationUses, Symbol("report.md", "x", "")},
		{RelationAssigns, Symbol("report.md", "y", "")},
	}
	assert.False(t, impure.IsPure())

	unknown := NewInfo(code)
	assert.False(t, unknown.IsPure(), "nil relations are conservatively impure")

	tagged := NewInfo(code)
	tagged.Relations = []Pair{{RelationAssigns, Symbol("report.md", "y", "")}}
	yes := true
	tagged.ExecutePure = &yes
	assert.True(t, tagged.IsPure(), "@pure tag overrides inference")
}

func TestInfoSymbols(t *testing.T) {
	info := NewInfo(Code("report.md", "cc-1", "CodeChunk", "calc"))
	info.Relations = []Pair{
		{RelationUses, Symbol("report.md", "a", "")},
		{RelationAssigns, Symbol("report.md", "b", "")},
		{RelationImports, Module("python", "numpy")},
		{RelationUses, Symbol("report.md", "c", "")},
	}

	used := info.SymbolsUsed()
	require.Len(t, used, 2)
	assert.Equal(t, "a", used[0].Name)
	assert.Equal(t, "c", used[1].Name)

	modified := info.SymbolsModified()
	require.Len(t, modified, 1)
	assert.Equal(t, "b", modified[0].Name)
}
