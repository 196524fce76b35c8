// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package document runs live sessions over executable documents.
//
// A Document owns one in-memory tree and keeps it, the file it was read
// from, its dependency graph and its kernels consistent while patches,
// compiles, executions and writes arrive concurrently. Four background
// tasks, connected by channels, serialize the work:
//
//	patch task    applies queued patches to the tree
//	compile task  coalesces compile requests, reparses, rebuilds the graph
//	execute task  plans and runs code against the kernel space
//	write task    debounces writes of the encoded tree back to disk
//
// Work flows strictly patch -> compile -> execute -> write, so a response
// for a request of one stage implies all earlier stages it triggered have
// finished. Public operations come in asynchronous Request* form,
// returning a RequestID to correlate with the Responses stream, and in
// synchronous form that awaits the response.
//
// A Registry manages the open sessions of a process and watches their
// files for outside changes.
package document

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/loom/address"
	"github.com/AleutianAI/loom/codec"
	"github.com/AleutianAI/loom/events"
	"github.com/AleutianAI/loom/graph"
	"github.com/AleutianAI/loom/kernel"
	"github.com/AleutianAI/loom/patch"
	"github.com/AleutianAI/loom/pkg/logging"
	"github.com/AleutianAI/loom/pointer"
	"github.com/AleutianAI/loom/resource"
	"github.com/AleutianAI/loom/schema"
)

var tracer trace.Tracer = otel.Tracer("github.com/AleutianAI/loom/document")

var (
	// ErrNotLoaded is returned by operations that need content before the
	// document has been loaded or read.
	ErrNotLoaded = errors.New("document: not loaded")

	// ErrNotCompiled is returned by operations that need the dependency
	// graph before the first compile.
	ErrNotCompiled = errors.New("document: not compiled")

	// ErrCancelled is returned by an execution interrupted by Cancel.
	ErrCancelled = errors.New("document: execution cancelled")

	// ErrClosed is returned when a request arrives after Close.
	ErrClosed = errors.New("document: session closed")
)

// Status is the synchronization state between the in-memory tree and the
// file on disk.
type Status int

const (
	// StatusSynced means the tree and the file agree.
	StatusSynced Status = iota

	// StatusUnwritten means the tree has changes not yet written.
	StatusUnwritten

	// StatusUnread means the file has changes not yet read.
	StatusUnread

	// StatusDeleted means the file was deleted from under the session.
	StatusDeleted
)

// String returns the lowercase name of the status.
func (s Status) String() string {
	switch s {
	case StatusUnwritten:
		return "unwritten"
	case StatusUnread:
		return "unread"
	case StatusDeleted:
		return "deleted"
	default:
		return "synced"
	}
}

// Options configures a new document session. The zero value is usable:
// defaults are a fresh config, the default logger, a private event bus
// and the built in kernels.
type Options struct {
	// Config tunes timing and capacities; zero means DefaultConfig.
	Config *Config

	// Logger for session events; nil means logging.Default.
	Logger *logging.Logger

	// Bus receives the session's events; nil means a private bus.
	Bus *events.Bus

	// Kernels creates kernels for the session; nil means the built ins.
	Kernels kernel.Factory

	// Format overrides the format inferred from the path's extension.
	Format string

	// Temporary marks sessions over scratch content that should not be
	// written back.
	Temporary bool
}

// Document is a live session over one executable document.
type Document struct {
	// ID uniquely identifies the session, not the file: two sessions over
	// the same path at different times get different ids.
	ID string

	// Path of the document file.
	Path string

	// Project is the directory the document belongs to.
	Project string

	// Name is the file name.
	Name string

	// Format name used to decode and encode the file.
	Format string

	// Temporary sessions never write back to Path.
	Temporary bool

	config  Config
	logger  *logging.Logger
	bus     *events.Bus
	kernels *kernel.Space

	// mu guards the tree and everything derived from it.
	mu        sync.RWMutex
	root      schema.Node
	addresses address.Map
	graph     *graph.Graph
	globals   resource.TagMap
	status    Status
	lastWrite time.Time

	patches   *patchQueue
	compileCh chan compileRequest
	executeCh chan executeRequest
	writeCh   chan writeRequest
	cancelCh  chan struct{}
	responses *responseHub

	done    chan struct{}
	stop    context.CancelFunc
	wg      sync.WaitGroup
	closing sync.Once
}

// New creates a session for the document at path and starts its
// background tasks. The file is not read; call Read or Load to get
// content into the session.
func New(path string, options Options) *Document {
	config := DefaultConfig()
	if options.Config != nil {
		config = *options.Config
	}
	logger := options.Logger
	if logger == nil {
		logger = logging.Default()
	}
	bus := options.Bus
	if bus == nil {
		bus = events.NewBus()
	}

	format := options.Format
	if format == "" {
		format = strings.TrimPrefix(filepath.Ext(path), ".")
	}

	d := &Document{
		ID:        "doc_" + uuid.NewString(),
		Path:      path,
		Project:   filepath.Dir(path),
		Name:      filepath.Base(path),
		Format:    format,
		Temporary: options.Temporary,

		config:  config,
		bus:     bus,
		kernels: kernel.NewSpace(options.Kernels),

		status: StatusUnread,

		patches:   newPatchQueue(),
		compileCh: make(chan compileRequest, 64),
		executeCh: make(chan executeRequest, config.ExecuteCapacity),
		writeCh:   make(chan writeRequest, 64),
		cancelCh:  make(chan struct{}, 1),
		responses: newResponseHub(config.ResponseCapacity),

		done: make(chan struct{}),
	}
	d.logger = logger.With("document_id", d.ID, "path", path)

	ctx, cancel := context.WithCancel(context.Background())
	d.stop = cancel
	d.wg.Add(4)
	go d.patchTask(ctx)
	go d.compileTask(ctx)
	go d.executeTask(ctx)
	go d.writeTask(ctx)

	metricDocumentsOpen.Inc()
	d.logger.Debug("session started", "format", format)
	return d
}

// Close stops the session's background tasks. Pending requests are
// abandoned; call Write first if unwritten changes matter.
func (d *Document) Close() {
	d.closing.Do(func() {
		close(d.done)
		d.stop()
		d.wg.Wait()
		metricDocumentsOpen.Dec()
		d.logger.Debug("session closed")
	})
}

// Status returns the synchronization state with the file.
func (d *Document) Status() Status {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.status
}

// Root returns a deep copy of the document tree, nil before Load.
func (d *Document) Root() schema.Node {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.root == nil {
		return nil
	}
	return schema.Clone(d.root)
}

// GraphSnapshot returns a serializable view of the dependency graph.
func (d *Document) GraphSnapshot() (graph.Snapshot, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.graph == nil {
		return graph.Snapshot{}, ErrNotCompiled
	}
	return d.graph.Snapshot(), nil
}

// LastWrite returns the time of the session's last own write to disk.
// The registry's watcher uses it to mute self-write events.
func (d *Document) LastWrite() time.Time {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.lastWrite
}

// HasFileResource reports whether the dependency graph contains the file
// as a resource, i.e. whether changes to it affect this document.
func (d *Document) HasFileResource(path string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.graph != nil && d.graph.Contains(resource.File(path).ID())
}

// Responses returns a subscription to the session's response stream and
// a cancel function. Subscribe before issuing the request whose response
// you want to see.
func (d *Document) Responses() (<-chan Response, func()) {
	id, ch := d.responses.subscribe()
	return ch, func() { d.responses.unsubscribe(id) }
}

// RequestPatch queues a patch for application, followed by a recompile.
func (d *Document) RequestPatch(p patch.Patch) RequestID {
	request := patchRequest{id: newRequestID(), patch: p, compile: true}
	d.patches.push(request)
	return request.id
}

// RequestCompile queues a compile. Compiles requested within the batch
// window run as one pass and all their ids are acknowledged together.
func (d *Document) RequestCompile() RequestID {
	request := compileRequest{id: newRequestID()}
	d.send(request)
	return request.id
}

// RequestExecute queues an execution. An empty start means everything
// that needs executing; otherwise execution is planned from the node
// with that id.
func (d *Document) RequestExecute(start string, options graph.PlanOptions) RequestID {
	request := executeRequest{id: newRequestID(), start: start, options: options}
	select {
	case d.executeCh <- request:
	case <-d.done:
	}
	return request.id
}

// RequestWrite queues a write of the encoded tree back to the file. With
// now set the debounce window is skipped.
func (d *Document) RequestWrite(now bool) RequestID {
	request := writeRequest{id: newRequestID(), now: now}
	select {
	case d.writeCh <- request:
	case <-d.done:
	}
	return request.id
}

// Patch applies a patch and waits for it. The recompile it triggers is
// not waited for.
func (d *Document) Patch(ctx context.Context, p patch.Patch) error {
	ch, cancel := d.Responses()
	defer cancel()
	return await(ctx, ch, d.RequestPatch(p))
}

// Compile recompiles the document and waits for it.
func (d *Document) Compile(ctx context.Context) error {
	ch, cancel := d.Responses()
	defer cancel()
	return await(ctx, ch, d.RequestCompile())
}

// Execute compiles, then plans and runs from start (or everything that
// needs executing when start is empty), and waits for the result.
func (d *Document) Execute(ctx context.Context, start string, options graph.PlanOptions) error {
	if err := d.Compile(ctx); err != nil {
		return err
	}
	ch, cancel := d.Responses()
	defer cancel()
	return await(ctx, ch, d.RequestExecute(start, options))
}

// Write encodes the tree and writes it to the file immediately.
func (d *Document) Write(ctx context.Context) error {
	ch, cancel := d.Responses()
	defer cancel()
	return await(ctx, ch, d.RequestWrite(true))
}

// Cancel interrupts the running execution, if any, at the next stage
// boundary.
func (d *Document) Cancel() {
	select {
	case d.cancelCh <- struct{}{}:
	default:
	}
}

// Restart discards all kernels and their state. Digests are left
// untouched: a restart alone does not mark nodes stale.
func (d *Document) Restart() {
	d.kernels.Restart()
	d.publish("restarted", nil)
}

// Load decodes content in the given format (the document's own format
// when empty) into the tree and compiles it.
func (d *Document) Load(ctx context.Context, content, format string) error {
	if format == "" {
		format = d.Format
	}
	c, err := codec.Get(format)
	if err != nil {
		return err
	}
	root, err := c.Decode([]byte(content))
	if err != nil {
		return err
	}

	d.mu.Lock()
	d.root = root
	d.status = StatusUnwritten
	d.mu.Unlock()

	return d.Compile(ctx)
}

// Read loads the tree from the document's file and compiles it.
func (d *Document) Read(ctx context.Context) error {
	data, err := os.ReadFile(d.Path)
	if err != nil {
		return fmt.Errorf("document: read %s: %w", d.Path, err)
	}
	if err := d.Load(ctx, string(data), d.Format); err != nil {
		return err
	}
	d.mu.Lock()
	d.status = StatusSynced
	d.mu.Unlock()
	return nil
}

// Dump encodes the current tree in the given format (the document's own
// format when empty) without touching the file.
func (d *Document) Dump(format string) (string, error) {
	if format == "" {
		format = d.Format
	}
	c, err := codec.Get(format)
	if err != nil {
		return "", err
	}

	d.mu.RLock()
	root := d.root
	d.mu.RUnlock()
	if root == nil {
		return "", ErrNotLoaded
	}

	d.mu.RLock()
	data, err := c.Encode(root)
	d.mu.RUnlock()
	if err != nil {
		return "", err
	}
	d.publish("encoded:"+format, string(data))
	return string(data), nil
}

// Diff returns the patch that would turn the current tree into new.
func (d *Document) Diff(new schema.Node) (patch.Patch, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.root == nil {
		return patch.Patch{}, ErrNotLoaded
	}
	return patch.Diff(d.root, new), nil
}

// Alter diffs the current tree against new and applies the resulting
// patch, triggering a recompile.
func (d *Document) Alter(ctx context.Context, new schema.Node) error {
	p, err := d.Diff(new)
	if err != nil {
		return err
	}
	if p.Empty() {
		return nil
	}
	return d.Patch(ctx, p)
}

// Merge applies other versions of the document in order, each as a diff
// against the then-current tree. Later versions win conflicts.
func (d *Document) Merge(ctx context.Context, versions ...schema.Node) error {
	for _, version := range versions {
		if err := d.Alter(ctx, version); err != nil {
			return err
		}
	}
	return nil
}

// Params returns the document's parameters in document order. The
// returned nodes are shared with the tree; treat them as read only.
func (d *Document) Params() []*schema.Parameter {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.root == nil {
		return nil
	}
	var params []*schema.Parameter
	pointer.Walk(d.root, func(_ address.Address, node schema.Node) bool {
		if param, ok := node.(*schema.Parameter); ok {
			params = append(params, param)
		}
		return true
	})
	return params
}

// Call sets parameter values from their string forms, validating each
// against the parameter's validator, then executes the document.
func (d *Document) Call(ctx context.Context, args map[string]string) error {
	params := d.Params()
	byName := make(map[string]*schema.Parameter, len(params))
	for _, param := range params {
		byName[param.Name] = param
	}

	for name, raw := range args {
		param, ok := byName[name]
		if !ok {
			return fmt.Errorf("document: no parameter %q", name)
		}
		var value schema.Node
		if param.Validator != nil {
			parsed, err := param.Validator.Parse(raw)
			if err != nil {
				return fmt.Errorf("document: parameter %q: %w", name, err)
			}
			value = parsed
		} else {
			value = schema.String(raw)
		}

		d.mu.Lock()
		param.Value = value
		d.status = StatusUnwritten
		d.mu.Unlock()
		d.publish("patched", param.ID)
	}

	return d.Execute(ctx, "", graph.PlanOptions{})
}

// send delivers a compile request unless the session is closed.
func (d *Document) send(request compileRequest) {
	select {
	case d.compileCh <- request:
	case <-d.done:
	}
}

// publish emits a session event under the document's topic prefix.
func (d *Document) publish(event string, data any) {
	d.bus.Publish("documents:"+d.ID+":"+event, data)
}

// patchTask applies queued patches in arrival order. The queue is
// unbounded so producers never block; each applied patch is acknowledged
// and, when requested, forwarded to the compile task.
func (d *Document) patchTask(ctx context.Context) {
	defer d.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-d.patches.notify:
		}
		for _, request := range d.patches.drain() {
			err := d.applyPatch(request.patch)
			d.responses.respond(err, request.id)
			if err != nil {
				d.logger.Error("patch failed", "request_id", request.id, "error", err)
				continue
			}
			if request.compile {
				d.send(compileRequest{id: newRequestID(), execute: request.execute, write: request.write})
			}
		}
	}
}

// applyPatch applies one patch to the tree under the write lock.
func (d *Document) applyPatch(p patch.Patch) error {
	d.mu.Lock()
	if d.root == nil {
		d.mu.Unlock()
		return ErrNotLoaded
	}
	root, err := patch.Apply(d.root, p)
	if err != nil {
		d.mu.Unlock()
		return err
	}
	d.root = root
	d.status = StatusUnwritten
	d.mu.Unlock()

	metricPatchesApplied.Inc()
	d.publish("patched", p.Value())
	return nil
}

// compileTask coalesces compile requests arriving within the batch
// window into one compile pass and acknowledges all of them with its
// outcome. Execute and write wishes of the batch are merged and
// forwarded.
func (d *Document) compileTask(ctx context.Context) {
	defer d.wg.Done()
	for {
		var first compileRequest
		select {
		case <-ctx.Done():
			return
		case first = <-d.compileCh:
		}

		batch := []compileRequest{first}
		timer := time.NewTimer(time.Duration(d.config.CompileBatch))
	collect:
		for {
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case more := <-d.compileCh:
				batch = append(batch, more)
			case <-timer.C:
				break collect
			}
		}

		err := d.compile(ctx)
		metricCompiles.Inc()

		ids := make([]RequestID, len(batch))
		execute, write := false, false
		start := ""
		for i, request := range batch {
			ids[i] = request.id
			execute = execute || request.execute
			write = write || request.write
			if request.start != "" {
				start = request.start
			}
		}
		d.responses.respond(err, ids...)

		if err != nil {
			d.logger.Error("compile failed", "error", err)
			continue
		}
		switch {
		case execute:
			select {
			case d.executeCh <- executeRequest{id: newRequestID(), start: start, write: write}:
			case <-ctx.Done():
				return
			}
		case write:
			select {
			case d.writeCh <- writeRequest{id: newRequestID()}:
			case <-ctx.Done():
				return
			}
		}
	}
}

// executeTask runs executions one at a time in request order.
func (d *Document) executeTask(ctx context.Context) {
	defer d.wg.Done()
	for {
		var request executeRequest
		select {
		case <-ctx.Done():
			return
		case request = <-d.executeCh:
		}

		started := time.Now()
		err := d.execute(ctx, request)
		metricExecuteDuration.Observe(time.Since(started).Seconds())
		d.responses.respond(err, request.id)

		if err != nil {
			d.logger.Error("execute failed", "request_id", request.id, "error", err)
			continue
		}
		if request.write {
			select {
			case d.writeCh <- writeRequest{id: newRequestID()}:
			case <-ctx.Done():
				return
			}
		}
	}
}

// writeTask debounces writes: a request opens (or extends) the debounce
// window, and the file is written when the window lapses. Requests with
// now set flush immediately. All requests pending at flush time are
// acknowledged with the write's outcome.
func (d *Document) writeTask(ctx context.Context) {
	defer d.wg.Done()

	var pending []RequestID
	var timer *time.Timer
	var timerC <-chan time.Time

	flush := func() {
		if timer != nil {
			timer.Stop()
			timer, timerC = nil, nil
		}
		err := d.writeFile()
		d.responses.respond(err, pending...)
		if err != nil {
			d.logger.Error("write failed", "error", err)
		}
		pending = nil
	}

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return
		case request := <-d.writeCh:
			pending = append(pending, request.id)
			if request.now {
				flush()
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.NewTimer(time.Duration(d.config.WriteDebounce))
			timerC = timer.C
		case <-timerC:
			flush()
		}
	}
}

// writeFile encodes the tree and writes it to the document's file.
func (d *Document) writeFile() error {
	if d.Temporary {
		return nil
	}

	c, err := codec.Get(d.Format)
	if err != nil {
		return err
	}

	d.mu.RLock()
	root := d.root
	d.mu.RUnlock()
	if root == nil {
		return ErrNotLoaded
	}

	d.mu.RLock()
	data, err := c.Encode(root)
	d.mu.RUnlock()
	if err != nil {
		return err
	}

	d.mu.Lock()
	d.lastWrite = time.Now()
	d.mu.Unlock()

	if err := os.WriteFile(d.Path, data, 0644); err != nil {
		return fmt.Errorf("document: write %s: %w", d.Path, err)
	}

	d.mu.Lock()
	d.status = StatusSynced
	d.mu.Unlock()

	metricWrites.Inc()
	d.publish("encoded:"+d.Format, string(data))
	d.logger.Debug("written", "bytes", len(data))
	return nil
}
