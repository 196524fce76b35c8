// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package parser performs static analysis of code to discover the
// relations that drive the dependency graph: which symbols a piece of
// code assigns, uses or declares, which modules it imports, which files
// it reads or writes.
//
// Each supported language registers a Parser. Analysis is best effort:
// code that cannot be fully analyzed still yields an info, with whatever
// relations were found; code that cannot be analyzed at all yields nil
// relations, which downstream treats as impure.
package parser

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/AleutianAI/loom/resource"
)

// Parser analyzes code in one language.
type Parser interface {
	// Language returns the canonical language name, e.g. "python".
	Language() string

	// Parse analyzes the code of the given code resource and returns its
	// info: relations, digests, tags and execution hints.
	Parse(ctx context.Context, code resource.Resource, text string) (*resource.Info, error)
}

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Parser)

	// aliases maps the names editors and documents use to canonical
	// language names.
	aliases = map[string]string{
		"py":      "python",
		"python3": "python",
	}
)

// Register makes a parser available under its language name. Later
// registrations replace earlier ones.
func Register(p Parser) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[p.Language()] = p
}

// Get returns the parser for a language, resolving aliases. Language
// matching is case insensitive.
func Get(language string) (Parser, bool) {
	name := strings.ToLower(strings.TrimSpace(language))
	if canonical, ok := aliases[name]; ok {
		name = canonical
	}
	registryMu.RLock()
	defer registryMu.RUnlock()
	p, ok := registry[name]
	return p, ok
}

// Parse analyzes code with the parser registered for its language.
func Parse(ctx context.Context, code resource.Resource, text string) (*resource.Info, error) {
	p, ok := Get(code.Language)
	if !ok {
		return nil, fmt.Errorf("parser: no parser for language %q", code.Language)
	}
	return p.Parse(ctx, code, text)
}

// Languages returns the canonical names of all registered parsers.
func Languages() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	return names
}

// semanticLines reduces code to its execution-relevant lines: comments
// are dropped (except tag comments, which change relations), trailing
// whitespace is trimmed and blank lines are removed. Used to build the
// semantic part of compile digests so that formatting-only edits do not
// mark code stale.
func semanticLines(text, commentMarker string) string {
	var kept []string
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimRight(line, " \t")
		stripped := strings.TrimSpace(trimmed)
		if stripped == "" {
			continue
		}
		if strings.HasPrefix(stripped, commentMarker) {
			if strings.Contains(stripped, "@") {
				kept = append(kept, stripped)
			}
			continue
		}
		kept = append(kept, trimmed)
	}
	return strings.Join(kept, "\n")
}
