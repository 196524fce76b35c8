// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package events is a small in-process publish/subscribe bus.
//
// Components receive a *Bus by injection rather than sharing a process
// global, so tests and embedders can run isolated buses side by side.
// Delivery is best effort: a subscriber that stops draining its channel
// loses messages instead of blocking publishers.
package events

import (
	"strings"
	"sync"
)

// Message is one published event.
type Message struct {
	// Topic the message was published under, e.g.
	// "documents:doc-3f9a:patched".
	Topic string

	// Data is the event payload.
	Data any
}

// Bus fans messages out to matching subscribers.
type Bus struct {
	mu   sync.RWMutex
	subs map[int]*Subscription
	next int
}

// NewBus returns an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[int]*Subscription)}
}

// Subscription is one subscriber's registration. Receive messages from C;
// call Cancel when done.
type Subscription struct {
	// C delivers matching messages.
	C <-chan Message

	pattern string
	ch      chan Message
	id      int
	bus     *Bus
}

// Subscribe registers for messages whose topic matches pattern: an exact
// topic, or a prefix followed by "*" ("documents:doc-3f9a:*"). The buffer
// bounds how far the subscriber may lag before messages are dropped.
func (b *Bus) Subscribe(pattern string, buffer int) *Subscription {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan Message, buffer)
	sub := &Subscription{C: ch, pattern: pattern, ch: ch, bus: b}

	b.mu.Lock()
	sub.id = b.next
	b.next++
	b.subs[sub.id] = sub
	b.mu.Unlock()
	return sub
}

// Cancel removes the subscription and closes its channel. Safe to call
// more than once.
func (s *Subscription) Cancel() {
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()
	if _, ok := s.bus.subs[s.id]; ok {
		delete(s.bus.subs, s.id)
		close(s.ch)
	}
}

// Publish sends a message to every matching subscriber without blocking;
// subscribers with full buffers miss it.
func (b *Bus) Publish(topic string, data any) {
	msg := Message{Topic: topic, Data: data}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subs {
		if !topicMatches(sub.pattern, topic) {
			continue
		}
		select {
		case sub.ch <- msg:
		default:
		}
	}
}

func topicMatches(pattern, topic string) bool {
	if pattern == "*" {
		return true
	}
	if prefix, ok := strings.CutSuffix(pattern, "*"); ok {
		return strings.HasPrefix(topic, prefix)
	}
	return pattern == topic
}
