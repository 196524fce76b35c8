// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package document

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/loom/events"
	"github.com/AleutianAI/loom/schema"
)

func newRegistry(t *testing.T) *Registry {
	t.Helper()
	r := NewRegistry(fastConfig(), nil, events.NewBus())
	t.Cleanup(r.CloseAll)
	return r
}

func writeSource(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestRegistryOpenDedupes(t *testing.T) {
	r := newRegistry(t)
	dir := t.TempDir()
	path := writeSource(t, dir, "report.md", reactiveSource)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	first, err := r.Open(ctx, path)
	require.NoError(t, err)

	// The same file through a dot-dot path is still the same session.
	indirect := filepath.Join(dir, "..", filepath.Base(dir), "report.md")
	second, err := r.Open(ctx, indirect)
	require.NoError(t, err)
	assert.Same(t, first, second)

	assert.Len(t, r.List(), 1)
}

func TestRegistryGetAndClose(t *testing.T) {
	r := newRegistry(t)
	path := writeSource(t, t.TempDir(), "report.md", reactiveSource)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	doc, err := r.Open(ctx, path)
	require.NoError(t, err)

	got, err := r.Get(doc.ID)
	require.NoError(t, err)
	assert.Same(t, doc, got)

	_, err = r.Get("doc_unknown")
	assert.ErrorIs(t, err, ErrDocumentNotFound)

	// Close accepts a path as well as an id.
	require.NoError(t, r.Close(path))
	_, err = r.Get(doc.ID)
	assert.ErrorIs(t, err, ErrDocumentNotFound)

	err = r.Close(path)
	assert.ErrorIs(t, err, ErrDocumentNotFound)
}

func TestRegistryOpenMissingFile(t *testing.T) {
	r := newRegistry(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := r.Open(ctx, filepath.Join(t.TempDir(), "absent.md"))
	assert.Error(t, err)
}

func TestRegistryList(t *testing.T) {
	r := newRegistry(t)
	dir := t.TempDir()
	a := writeSource(t, dir, "a.md", reactiveSource)
	b := writeSource(t, dir, "b.md", reactiveSource)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_, err := r.Open(ctx, a)
	require.NoError(t, err)
	_, err = r.Open(ctx, b)
	require.NoError(t, err)

	entries := r.List()
	require.Len(t, entries, 2)
	for _, entry := range entries {
		assert.NotEmpty(t, entry.ID)
		assert.NotEmpty(t, entry.Path)
		assert.Equal(t, "synced", entry.Status)
	}
}

func TestRegistryRereadsOnExternalChange(t *testing.T) {
	r := newRegistry(t)
	dir := t.TempDir()
	path := writeSource(t, dir, "report.md", "```calc exec\nx = 1\n```\n")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	doc, err := r.Open(ctx, path)
	require.NoError(t, err)

	sub := r.Bus().Subscribe("documents:"+doc.ID+":modified", 16)
	defer sub.Cancel()

	require.NoError(t, os.WriteFile(path, []byte("```calc exec\nx = 42\n```\n"), 0644))

	select {
	case <-sub.C:
	case <-time.After(5 * time.Second):
		t.Fatal("no modified event for external change")
	}

	assert.Eventually(t, func() bool {
		article, ok := doc.Root().(*schema.Article)
		if !ok || len(article.Content) == 0 {
			return false
		}
		chunk, ok := article.Content[0].(*schema.CodeChunk)
		return ok && chunk.Text == "x = 42"
	}, 5*time.Second, 20*time.Millisecond)
}

func TestRegistryMutesOwnWrites(t *testing.T) {
	config := fastConfig()
	config.WatcherMute = Duration(2 * time.Second)
	r := NewRegistry(config, nil, events.NewBus())
	t.Cleanup(r.CloseAll)

	dir := t.TempDir()
	path := writeSource(t, dir, "report.md", reactiveSource)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	doc, err := r.Open(ctx, path)
	require.NoError(t, err)

	sub := r.Bus().Subscribe("documents:"+doc.ID+":modified", 16)
	defer sub.Cancel()

	article := doc.Root().(*schema.Article)
	article.Content[0].(*schema.CodeChunk).Text = "x = 8"
	require.NoError(t, doc.Alter(ctx, article))
	require.NoError(t, doc.Write(ctx))

	select {
	case <-sub.C:
		t.Fatal("own write surfaced as an external modification")
	case <-time.After(500 * time.Millisecond):
	}
	assert.Equal(t, StatusSynced, doc.Status())
}

func TestCanonicalPath(t *testing.T) {
	dir := t.TempDir()
	path := writeSource(t, dir, "report.md", "")

	indirect := filepath.Join(dir, ".", "report.md")
	canonical, err := canonicalPath(indirect)
	require.NoError(t, err)

	direct, err := canonicalPath(path)
	require.NoError(t, err)
	assert.Equal(t, direct, canonical)

	// Nonexistent files still canonicalize to an absolute path.
	missing, err := canonicalPath("does/not/exist.md")
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(missing))
}
