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
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/loom/events"
	"github.com/AleutianAI/loom/graph"
	"github.com/AleutianAI/loom/kernel"
	"github.com/AleutianAI/loom/schema"
)

// fastConfig shrinks the batch and debounce windows so tests do not
// spend their time waiting.
func fastConfig() Config {
	config := DefaultConfig()
	config.CompileBatch = Duration(10 * time.Millisecond)
	config.WriteDebounce = Duration(60 * time.Millisecond)
	config.WatcherMute = Duration(100 * time.Millisecond)
	return config
}

// newSession writes content to a file in a temp dir and opens a session
// over it.
func newSession(t *testing.T, name, content string) *Document {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	config := fastConfig()
	doc := New(path, Options{Config: &config, Bus: events.NewBus()})
	t.Cleanup(doc.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, doc.Read(ctx))
	return doc
}

const reactiveSource = "```calc exec\n" +
	"x = 1\n" +
	"```\n" +
	"\n" +
	"```calc exec\n" +
	"y = x * 2\n" +
	"```\n" +
	"\n" +
	"The result is `calc> y`.\n"

func findChunks(t *testing.T, doc *Document) []*schema.CodeChunk {
	t.Helper()
	article, ok := doc.Root().(*schema.Article)
	require.True(t, ok)
	var chunks []*schema.CodeChunk
	for _, block := range article.Content {
		if chunk, ok := block.(*schema.CodeChunk); ok {
			chunks = append(chunks, chunk)
		}
	}
	return chunks
}

func findExpression(t *testing.T, doc *Document) *schema.CodeExpression {
	t.Helper()
	article, ok := doc.Root().(*schema.Article)
	require.True(t, ok)
	for _, block := range article.Content {
		para, ok := block.(*schema.Paragraph)
		if !ok {
			continue
		}
		for _, inline := range para.Content {
			if expr, ok := inline.(*schema.CodeExpression); ok {
				return expr
			}
		}
	}
	t.Fatal("no code expression in document")
	return nil
}

func TestReadCompilesAndAssignsIDs(t *testing.T) {
	doc := newSession(t, "report.md", reactiveSource)

	assert.Equal(t, StatusSynced, doc.Status())

	chunks := findChunks(t, doc)
	require.Len(t, chunks, 2)
	for _, chunk := range chunks {
		assert.NotEmpty(t, chunk.ID)
		assert.NotEmpty(t, chunk.CompileDigest)
		assert.Empty(t, chunk.ExecuteDigest, "not yet executed")
	}

	snapshot, err := doc.GraphSnapshot()
	require.NoError(t, err)
	assert.NotEmpty(t, snapshot.Edges)
}

func TestExecuteEndToEnd(t *testing.T) {
	doc := newSession(t, "report.md", reactiveSource)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, doc.Execute(ctx, "", graph.PlanOptions{}))

	expr := findExpression(t, doc)
	assert.Equal(t, schema.Integer(2), expr.Output)
	assert.Empty(t, expr.Errors)

	chunks := findChunks(t, doc)
	for _, chunk := range chunks {
		assert.NotEmpty(t, chunk.ExecuteDigest)
		assert.Empty(t, chunk.Errors)
	}
	assert.Equal(t, StatusUnwritten, doc.Status())

	// Everything is fresh now, so there is nothing left to plan.
	plan, err := doc.Plan(ctx, "", graph.PlanOptions{})
	require.NoError(t, err)
	assert.Zero(t, plan.StepCount())
}

func TestExecuteRecordsErrors(t *testing.T) {
	doc := newSession(t, "report.md", "```calc exec\nx = 1 / 0\n```\n")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, doc.Execute(ctx, "", graph.PlanOptions{}))

	chunks := findChunks(t, doc)
	require.Len(t, chunks, 1)
	require.Len(t, chunks[0].Errors, 1)
	assert.Equal(t, "RuntimeError", chunks[0].Errors[0].ErrorType)
}

func TestAlterTriggersRecompile(t *testing.T) {
	doc := newSession(t, "report.md", reactiveSource)

	before := findChunks(t, doc)[0].CompileDigest

	article := doc.Root().(*schema.Article)
	article.Content[0].(*schema.CodeChunk).Text = "x = 5"

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, doc.Alter(ctx, article))
	require.NoError(t, doc.Compile(ctx))

	after := findChunks(t, doc)
	assert.Equal(t, "x = 5", after[0].Text)
	assert.NotEqual(t, before, after[0].CompileDigest)
	assert.Equal(t, StatusUnwritten, doc.Status())
}

func TestCompileCoalescesRequests(t *testing.T) {
	doc := newSession(t, "report.md", reactiveSource)

	bus := doc.bus
	sub := bus.Subscribe("documents:"+doc.ID+":compiled", 16)
	defer sub.Cancel()

	ch, cancelResponses := doc.Responses()
	defer cancelResponses()

	ids := []RequestID{doc.RequestCompile(), doc.RequestCompile(), doc.RequestCompile()}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, id := range ids {
		require.NoError(t, await(ctx, ch, id))
	}

	compiles := 0
	deadline := time.After(200 * time.Millisecond)
	for done := false; !done; {
		select {
		case <-sub.C:
			compiles++
		case <-deadline:
			done = true
		}
	}
	assert.Equal(t, 1, compiles, "requests within the batch window share one compile")
}

func TestWriteDebounce(t *testing.T) {
	doc := newSession(t, "report.md", reactiveSource)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	article := doc.Root().(*schema.Article)
	article.Content[0].(*schema.CodeChunk).Text = "x = 9"
	require.NoError(t, doc.Alter(ctx, article))

	ch, cancelResponses := doc.Responses()
	defer cancelResponses()

	first := doc.RequestWrite(false)
	second := doc.RequestWrite(false)

	data, err := os.ReadFile(doc.Path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "x = 9", "write should still be debounced")

	require.NoError(t, await(ctx, ch, first))
	require.NoError(t, await(ctx, ch, second))

	data, err = os.ReadFile(doc.Path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "x = 9")
	assert.Equal(t, StatusSynced, doc.Status())
}

func TestWriteNowSkipsDebounce(t *testing.T) {
	doc := newSession(t, "report.md", reactiveSource)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	article := doc.Root().(*schema.Article)
	article.Content[0].(*schema.CodeChunk).Text = "x = 7"
	require.NoError(t, doc.Alter(ctx, article))
	require.NoError(t, doc.Write(ctx))

	data, err := os.ReadFile(doc.Path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "x = 7")
	assert.False(t, doc.LastWrite().IsZero())
}

func TestCallSetsValidatedParameters(t *testing.T) {
	article := &schema.Article{Content: []schema.BlockContent{
		&schema.Paragraph{Content: []schema.InlineContent{
			&schema.Parameter{Name: "n", Validator: &schema.IntegerValidator{}},
			&schema.CodeExpression{ProgrammingLanguage: "calc", Text: "n + 1"},
		}},
	}}

	path := filepath.Join(t.TempDir(), "doc.json")
	config := fastConfig()
	doc := New(path, Options{Config: &config, Temporary: true})
	t.Cleanup(doc.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	doc.mu.Lock()
	doc.root = article
	doc.mu.Unlock()
	require.NoError(t, doc.Compile(ctx))

	require.NoError(t, doc.Call(ctx, map[string]string{"n": "3"}))

	params := doc.Params()
	require.Len(t, params, 1)
	assert.Equal(t, schema.Integer(3), params[0].Value)
	assert.Equal(t, schema.Integer(4), findExpression(t, doc).Output)

	err := doc.Call(ctx, map[string]string{"n": "not a number"})
	assert.Error(t, err)

	err = doc.Call(ctx, map[string]string{"missing": "1"})
	assert.Error(t, err)
}

func TestDump(t *testing.T) {
	doc := newSession(t, "report.md", reactiveSource)

	markdown, err := doc.Dump("")
	require.NoError(t, err)
	assert.Contains(t, markdown, "```calc exec")

	jsonForm, err := doc.Dump("json")
	require.NoError(t, err)
	assert.Contains(t, jsonForm, "Article")

	_, err = doc.Dump("docx")
	assert.Error(t, err)
}

func TestMergeAppliesVersionsInOrder(t *testing.T) {
	doc := newSession(t, "report.md", reactiveSource)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	v1 := doc.Root().(*schema.Article)
	v1.Content[0].(*schema.CodeChunk).Text = "x = 2"
	v2 := doc.Root().(*schema.Article)
	v2.Content[0].(*schema.CodeChunk).Text = "x = 3"

	require.NoError(t, doc.Merge(ctx, schema.Node(v1), schema.Node(v2)))
	assert.Equal(t, "x = 3", findChunks(t, doc)[0].Text)
}

func TestTemporarySessionsNeverWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scratch.md")
	config := fastConfig()
	doc := New(path, Options{Config: &config, Temporary: true})
	t.Cleanup(doc.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, doc.Load(ctx, "```calc exec\nx = 1\n```\n", "md"))
	require.NoError(t, doc.Write(ctx))

	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestExecuteDigestSurvivesReload(t *testing.T) {
	doc := newSession(t, "report.md", reactiveSource)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, doc.Execute(ctx, "", graph.PlanOptions{}))

	// Digests only round trip through formats that carry the full tree.
	jsonForm, err := doc.Dump("json")
	require.NoError(t, err)
	doc.Close()

	// A new session over the dumped tree restores execution state from
	// the persisted digests.
	reopened := newSession(t, "copy.json", jsonForm)
	chunks := findChunks(t, reopened)
	require.Len(t, chunks, 2)
	for _, chunk := range chunks {
		assert.NotEmpty(t, chunk.ExecuteDigest)
	}

	// Nothing is stale, so a fresh session has nothing to plan.
	ctx2, cancel2 := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel2()
	plan, err := reopened.Plan(ctx2, "", graph.PlanOptions{})
	require.NoError(t, err)
	assert.Zero(t, plan.StepCount())
}

func TestDetect(t *testing.T) {
	doc := newSession(t, "report.md", reactiveSource)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	detections, err := doc.Detect(ctx, func(node schema.Node) bool {
		_, ok := node.(*schema.CodeChunk)
		return ok
	})
	require.NoError(t, err)
	require.Len(t, detections, 2)
	for _, detection := range detections {
		assert.NotEmpty(t, detection.NodeID)
		assert.NotEmpty(t, detection.Address)
	}

	cancelled, stop := context.WithCancel(context.Background())
	stop()
	_, err = doc.Detect(cancelled, func(schema.Node) bool { return true })
	assert.Error(t, err)
}

// blockingKernel gates each execution behind a channel handshake so a
// test can hold a plan mid stage and observe exactly what ran.
type blockingKernel struct {
	started chan string
	release chan struct{}

	mu       sync.Mutex
	executed []string
}

func newBlockingKernel() *blockingKernel {
	return &blockingKernel{started: make(chan string), release: make(chan struct{})}
}

func (k *blockingKernel) Language() string { return "calc" }

func (k *blockingKernel) Exec(ctx context.Context, code string) ([]schema.Node, []*schema.CodeError, error) {
	select {
	case k.started <- code:
	case <-ctx.Done():
		return nil, nil, ctx.Err()
	}
	select {
	case <-k.release:
	case <-ctx.Done():
		return nil, nil, ctx.Err()
	}
	k.mu.Lock()
	k.executed = append(k.executed, code)
	k.mu.Unlock()
	return nil, nil, nil
}

func (k *blockingKernel) Get(ctx context.Context, name string) (schema.Node, error) {
	return nil, kernel.ErrSymbolNotFound
}

func (k *blockingKernel) Set(ctx context.Context, name string, value schema.Node) error {
	return nil
}

func (k *blockingKernel) ran() []string {
	k.mu.Lock()
	defer k.mu.Unlock()
	return append([]string(nil), k.executed...)
}

func TestCancelStopsAtStageBoundary(t *testing.T) {
	k := newBlockingKernel()
	factory := func(string) (kernel.Kernel, error) { return k, nil }

	path := filepath.Join(t.TempDir(), "report.md")
	config := fastConfig()
	doc := New(path, Options{Config: &config, Temporary: true, Kernels: factory})
	t.Cleanup(doc.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, doc.Load(ctx, reactiveSource, "md"))

	ch, cancelResponses := doc.Responses()
	defer cancelResponses()
	id := doc.RequestExecute("", graph.PlanOptions{})

	// The first stage is executing x = 1. Cancel while it is in flight,
	// then let it finish; the plan must stop before the next stage.
	select {
	case code := <-k.started:
		assert.Equal(t, "x = 1", code)
	case <-ctx.Done():
		t.Fatal("execution never reached the kernel")
	}
	doc.Cancel()
	k.release <- struct{}{}

	assert.ErrorIs(t, await(ctx, ch, id), ErrCancelled)
	assert.Equal(t, []string{"x = 1"}, k.ran(), "stages after the cancel must not run")
}

func TestPublishesLifecycleEvents(t *testing.T) {
	bus := events.NewBus()
	path := filepath.Join(t.TempDir(), "report.md")
	require.NoError(t, os.WriteFile(path, []byte(reactiveSource), 0644))

	config := fastConfig()
	doc := New(path, Options{Config: &config, Bus: bus})
	t.Cleanup(doc.Close)

	sub := bus.Subscribe("documents:"+doc.ID+":*", 64)
	defer sub.Cancel()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, doc.Read(ctx))
	require.NoError(t, doc.Execute(ctx, "", graph.PlanOptions{}))

	seen := map[string]bool{}
	deadline := time.After(time.Second)
	for len(seen) < 3 {
		select {
		case msg := <-sub.C:
			parts := strings.SplitN(msg.Topic, ":", 3)
			seen[parts[2]] = true
		case <-deadline:
			t.Fatalf("timed out, saw %v", seen)
		}
	}
	assert.True(t, seen["compiled"])
	assert.True(t, seen["patched"])
	assert.True(t, seen["executed"])
}
