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

import "regexp"

// Tag is a directive attached to a code resource via a comment, e.g.
// "@uses x y" or "@global @assigns data".
type Tag struct {
	// Name of the tag, e.g. "uses", "autorun", "pure".
	Name string

	// Value is the raw text following the tag name.
	Value string

	// Global marks the tag as applying document-wide rather than only to
	// the resource it was written on.
	Global bool
}

var tagItemSep = regexp.MustCompile(`[\s,]+`)

// TagMap is an ordered collection of tags with at most one tag per name.
// Order is retained for round-tripping back to source.
type TagMap struct {
	tags []Tag
}

// Get returns the tag with the given name.
func (m *TagMap) Get(name string) (Tag, bool) {
	for _, tag := range m.tags {
		if tag.Name == name {
			return tag, true
		}
	}
	return Tag{}, false
}

// GetValue returns the value of the named tag, or "" when absent.
func (m *TagMap) GetValue(name string) string {
	tag, ok := m.Get(name)
	if !ok {
		return ""
	}
	return tag.Value
}

// GetItems splits the named tag's value on whitespace or commas. Absent
// tags yield no items.
func (m *TagMap) GetItems(name string) []string {
	value := m.GetValue(name)
	if value == "" {
		return nil
	}
	var items []string
	for _, item := range tagItemSep.Split(value, -1) {
		if item != "" {
			items = append(items, item)
		}
	}
	return items
}

// Insert adds a tag, replacing any existing tag of the same name in place.
func (m *TagMap) Insert(tag Tag) {
	for i, existing := range m.tags {
		if existing.Name == tag.Name {
			m.tags[i] = tag
			return
		}
	}
	m.tags = append(m.tags, tag)
}

// InsertGlobals inserts the other map's global tags into this one,
// overriding same-named tags. Non-global tags are ignored.
func (m *TagMap) InsertGlobals(other *TagMap) {
	if other == nil {
		return
	}
	for _, tag := range other.tags {
		if tag.Global {
			m.Insert(tag)
		}
	}
}

// Merge inserts all of the other map's tags into this one, overriding
// same-named tags.
func (m *TagMap) Merge(other *TagMap) {
	if other == nil {
		return
	}
	for _, tag := range other.tags {
		m.Insert(tag)
	}
}

// All returns the tags in insertion order. The returned slice is owned by
// the map and must not be modified.
func (m *TagMap) All() []Tag {
	return m.tags
}

// Len returns the number of tags.
func (m *TagMap) Len() int {
	return len(m.tags)
}
