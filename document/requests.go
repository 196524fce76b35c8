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
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/AleutianAI/loom/graph"
	"github.com/AleutianAI/loom/patch"
)

// RequestID correlates an asynchronous request with its response.
type RequestID string

func newRequestID() RequestID {
	return RequestID("req_" + uuid.NewString())
}

// patchRequest asks the patch task to apply a patch to the document.
type patchRequest struct {
	id    RequestID
	patch patch.Patch

	// compile forwards a compile request once the patch is applied.
	compile bool

	// execute and write propagate through the compile to the later
	// stages of the pipeline.
	execute bool
	write   bool
}

// compileRequest asks the compile task to recompile the document.
// Requests arriving within the batch window are coalesced; every
// coalesced id is acknowledged when the single compile pass finishes.
type compileRequest struct {
	id      RequestID
	execute bool
	write   bool

	// start restricts a forwarded execute to one node id.
	start string
}

// executeRequest asks the execute task to plan and run.
type executeRequest struct {
	id RequestID

	// start is the node id to execute from; empty means everything
	// that needs executing.
	start string

	options graph.PlanOptions
	write   bool
}

// writeRequest asks the write task to persist the document.
type writeRequest struct {
	id RequestID

	// now skips the debounce window.
	now bool
}

// Response reports the outcome of a request.
type Response struct {
	RequestID RequestID
	Err       error
}

// responseHub broadcasts responses to all current subscribers.
//
// Sends never block: a subscriber that stops draining its channel
// loses responses rather than stalling the document's tasks.
type responseHub struct {
	mu       sync.Mutex
	subs     map[int]chan Response
	next     int
	capacity int
}

func newResponseHub(capacity int) *responseHub {
	if capacity <= 0 {
		capacity = 64
	}
	return &responseHub{subs: make(map[int]chan Response), capacity: capacity}
}

func (h *responseHub) subscribe() (int, <-chan Response) {
	h.mu.Lock()
	defer h.mu.Unlock()
	id := h.next
	h.next++
	ch := make(chan Response, h.capacity)
	h.subs[id] = ch
	return id, ch
}

func (h *responseHub) unsubscribe(id int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.subs, id)
}

func (h *responseHub) publish(response Response) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.subs {
		select {
		case ch <- response:
		default:
		}
	}
}

// respond acknowledges a set of request ids with a shared outcome.
func (h *responseHub) respond(err error, ids ...RequestID) {
	for _, id := range ids {
		h.publish(Response{RequestID: id, Err: err})
	}
}

// await blocks until a response for the id arrives on the subscription
// channel, or the context ends.
func await(ctx context.Context, ch <-chan Response, id RequestID) error {
	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("document: awaiting request %s: %w", id, ctx.Err())
		case response, ok := <-ch:
			if !ok {
				return fmt.Errorf("document: awaiting request %s: session closed", id)
			}
			if response.RequestID == id {
				return response.Err
			}
		}
	}
}

// patchQueue is an unbounded FIFO of patch requests.
//
// Producers must never block: user interfaces submit patches from
// interactive paths, so the queue grows instead of applying
// backpressure.
type patchQueue struct {
	mu     sync.Mutex
	items  []patchRequest
	notify chan struct{}
}

func newPatchQueue() *patchQueue {
	return &patchQueue{notify: make(chan struct{}, 1)}
}

func (q *patchQueue) push(request patchRequest) {
	q.mu.Lock()
	q.items = append(q.items, request)
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// drain removes and returns all queued requests.
func (q *patchQueue) drain() []patchRequest {
	q.mu.Lock()
	defer q.mu.Unlock()
	items := q.items
	q.items = nil
	return items
}
