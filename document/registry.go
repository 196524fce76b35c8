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
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/AleutianAI/loom/events"
	"github.com/AleutianAI/loom/pkg/logging"
)

// ErrDocumentNotFound is returned by registry lookups for unknown ids
// or paths.
var ErrDocumentNotFound = errors.New("document: not found in registry")

// Registry manages the open document sessions of a process.
//
// Opening the same file twice returns the same session. Each session
// gets a watcher on its parent directory that reacts to outside changes
// of the document file and of any file the document depends on.
type Registry struct {
	config Config
	logger *logging.Logger
	bus    *events.Bus

	mu        sync.Mutex
	byID      map[string]*handler
	byPath    map[string]string // canonical path -> document id
	customize OptionsFunc
}

// OptionsFunc customizes the options of each session the registry opens.
type OptionsFunc func(options *Options)

// handler pairs a session with its file watcher.
type handler struct {
	doc     *Document
	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewRegistry returns an empty registry. Sessions it opens share the
// logger and event bus.
func NewRegistry(config Config, logger *logging.Logger, bus *events.Bus, opts ...OptionsFunc) *Registry {
	if logger == nil {
		logger = logging.Default()
	}
	if bus == nil {
		bus = events.NewBus()
	}
	var customize OptionsFunc
	if len(opts) > 0 {
		customize = opts[0]
	}
	return &Registry{
		config:    config,
		logger:    logger,
		bus:       bus,
		byID:      make(map[string]*handler),
		byPath:    make(map[string]string),
		customize: customize,
	}
}

// Bus returns the event bus shared by the registry's sessions.
func (r *Registry) Bus() *events.Bus {
	return r.bus
}

// Open opens a session for the file at path, reading and compiling it.
// A second open of the same file returns the existing session.
func (r *Registry) Open(ctx context.Context, path string) (*Document, error) {
	canonical, err := canonicalPath(path)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	if id, ok := r.byPath[canonical]; ok {
		doc := r.byID[id].doc
		r.mu.Unlock()
		return doc, nil
	}
	r.mu.Unlock()

	options := Options{Config: &r.config, Logger: r.logger, Bus: r.bus}
	if r.customize != nil {
		r.customize(&options)
	}
	doc := New(canonical, options)
	if err := doc.Read(ctx); err != nil {
		doc.Close()
		return nil, err
	}

	h := &handler{doc: doc, done: make(chan struct{})}
	if watcher, werr := r.watch(h); werr != nil {
		r.logger.Warn("file watching disabled", "path", canonical, "error", werr)
	} else {
		h.watcher = watcher
	}

	r.mu.Lock()
	// Lost the race against a concurrent Open of the same path.
	if id, ok := r.byPath[canonical]; ok {
		existing := r.byID[id].doc
		r.mu.Unlock()
		r.shutdown(h)
		return existing, nil
	}
	r.byID[doc.ID] = h
	r.byPath[canonical] = doc.ID
	r.mu.Unlock()

	r.logger.Info("document opened", "document_id", doc.ID, "path", canonical)
	return doc, nil
}

// Get returns the open session with the given id.
func (r *Registry) Get(id string) (*Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: id %q", ErrDocumentNotFound, id)
	}
	return h.doc, nil
}

// Close closes the session with the given id or path.
func (r *Registry) Close(idOrPath string) error {
	r.mu.Lock()
	h, ok := r.byID[idOrPath]
	if !ok {
		if canonical, err := canonicalPath(idOrPath); err == nil {
			if id, found := r.byPath[canonical]; found {
				h, ok = r.byID[id], true
			}
		}
	}
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrDocumentNotFound, idOrPath)
	}
	delete(r.byID, h.doc.ID)
	delete(r.byPath, h.doc.Path)
	r.mu.Unlock()

	r.shutdown(h)
	r.logger.Info("document closed", "document_id", h.doc.ID, "path", h.doc.Path)
	return nil
}

// CloseAll closes every open session.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	handlers := make([]*handler, 0, len(r.byID))
	for _, h := range r.byID {
		handlers = append(handlers, h)
	}
	r.byID = make(map[string]*handler)
	r.byPath = make(map[string]string)
	r.mu.Unlock()

	for _, h := range handlers {
		r.shutdown(h)
	}
}

// Entry describes one open session in a List.
type Entry struct {
	ID     string `json:"id"`
	Path   string `json:"path"`
	Status string `json:"status"`
}

// List returns the open sessions, with paths relative to the working
// directory where possible.
func (r *Registry) List() []Entry {
	cwd, _ := os.Getwd()

	r.mu.Lock()
	defer r.mu.Unlock()
	entries := make([]Entry, 0, len(r.byID))
	for _, h := range r.byID {
		path := h.doc.Path
		if cwd != "" {
			if rel, err := filepath.Rel(cwd, path); err == nil {
				path = rel
			}
		}
		entries = append(entries, Entry{ID: h.doc.ID, Path: path, Status: h.doc.Status().String()})
	}
	return entries
}

func (r *Registry) shutdown(h *handler) {
	close(h.done)
	if h.watcher != nil {
		h.watcher.Close()
	}
	h.doc.Close()
}

// watch starts a watcher on the document's parent directory. Watching
// the directory rather than the file keeps events flowing across the
// delete-and-rename save strategy of most editors.
func (r *Registry) watch(h *handler) (*fsnotify.Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(filepath.Dir(h.doc.Path)); err != nil {
		watcher.Close()
		return nil, err
	}

	go r.watchLoop(h, watcher)
	return watcher, nil
}

func (r *Registry) watchLoop(h *handler, watcher *fsnotify.Watcher) {
	doc := h.doc
	for {
		select {
		case <-h.done:
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			path, err := canonicalPath(event.Name)
			if err != nil {
				path = event.Name
			}

			if path == doc.Path {
				// Our own writes come back as events; ignore them for
				// the mute window after the last write.
				if time.Since(doc.LastWrite()) < time.Duration(r.config.WatcherMute) {
					continue
				}
				r.documentEvent(doc, event)
				continue
			}

			// A change to a file the document depends on invalidates
			// digests; recompile to pick it up.
			if doc.HasFileResource(path) {
				r.logger.Debug("dependency changed", "document_id", doc.ID, "file", path)
				doc.RequestCompile()
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			r.logger.Warn("watch error", "document_id", doc.ID, "error", err)
		}
	}
}

// documentEvent reacts to an outside change of the document file itself.
func (r *Registry) documentEvent(doc *Document, event fsnotify.Event) {
	switch {
	case event.Op&fsnotify.Remove != 0:
		doc.mu.Lock()
		doc.status = StatusDeleted
		doc.mu.Unlock()
		doc.publish("deleted", doc.Path)

	case event.Op&fsnotify.Rename != 0:
		doc.mu.Lock()
		doc.status = StatusDeleted
		doc.mu.Unlock()
		doc.publish("renamed", doc.Path)

	case event.Op&(fsnotify.Write|fsnotify.Create) != 0:
		doc.mu.Lock()
		doc.status = StatusUnread
		doc.mu.Unlock()
		doc.publish("modified", doc.Path)

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := doc.Read(ctx); err != nil {
			r.logger.Error("reread failed", "document_id", doc.ID, "error", err)
		}
	}
}

// canonicalPath makes paths comparable across opens: absolute, cleaned,
// symlinks resolved when the file exists.
func canonicalPath(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("document: resolve %s: %w", path, err)
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved, nil
	}
	return abs, nil
}
