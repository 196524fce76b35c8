// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package codec converts documents between schema node trees and external
// formats.
//
// Formats register by name and file extension; documents pick a codec
// from their path or an explicit format. Lossiness varies by format: JSON
// and YAML round trip the full tree, Markdown covers the authoring
// subset, plain text keeps only text.
package codec

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/AleutianAI/loom/schema"
)

// ErrUnknownFormat is returned when no codec handles a format.
var ErrUnknownFormat = errors.New("codec: unknown format")

// Codec converts between bytes and node trees.
type Codec interface {
	// Names returns the format names and file extensions (without dot)
	// the codec handles; the first name is canonical.
	Names() []string

	// Decode converts bytes to a node tree.
	Decode(data []byte) (schema.Node, error)

	// Encode converts a node tree to bytes.
	Encode(node schema.Node) ([]byte, error)
}

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Codec)
)

// Register makes a codec available under all of its names.
func Register(c Codec) {
	registryMu.Lock()
	defer registryMu.Unlock()
	for _, name := range c.Names() {
		registry[strings.ToLower(name)] = c
	}
}

// Get returns the codec for a format name or extension.
func Get(format string) (Codec, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	c, ok := registry[strings.ToLower(strings.TrimPrefix(format, "."))]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
	return c, nil
}

// ForPath returns the codec matching a file path's extension.
func ForPath(path string) (Codec, error) {
	ext := filepath.Ext(path)
	if ext == "" {
		return nil, fmt.Errorf("%w: %q has no extension", ErrUnknownFormat, path)
	}
	return Get(ext)
}

// Formats returns all registered format names, sorted by name.
func Formats() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
