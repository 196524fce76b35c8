// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package kernel executes document code and holds the variables it
// produces.
//
// A Kernel is a stateful interpreter for one language. A Space owns one
// kernel per language used by a document and routes execution and symbol
// access to them.
package kernel

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/AleutianAI/loom/schema"
)

var (
	// ErrUnsupportedLanguage is returned when no kernel can execute the
	// requested language.
	ErrUnsupportedLanguage = errors.New("kernel: unsupported language")

	// ErrSymbolNotFound is returned by Get for unknown symbols.
	ErrSymbolNotFound = errors.New("kernel: symbol not found")
)

// Kernel is a stateful interpreter for one language.
//
// Exec reports execution failures as CodeError values, not Go errors:
// a failed execution is a normal document state that gets patched into
// the executable node. The error return is reserved for kernel-level
// failures such as a cancelled context.
type Kernel interface {
	// Language returns the canonical language the kernel executes.
	Language() string

	// Exec executes code and returns its outputs and errors.
	Exec(ctx context.Context, code string) ([]schema.Node, []*schema.CodeError, error)

	// Get returns the value of a variable.
	Get(ctx context.Context, name string) (schema.Node, error)

	// Set assigns a variable.
	Set(ctx context.Context, name string, value schema.Node) error
}

// Factory creates a kernel for a language, ErrUnsupportedLanguage when it
// cannot.
type Factory func(language string) (Kernel, error)

// DefaultFactory creates the built in kernels.
func DefaultFactory(language string) (Kernel, error) {
	switch canonical(language) {
	case "calc":
		return NewCalc(), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedLanguage, language)
}

func canonical(language string) string {
	name := strings.ToLower(strings.TrimSpace(language))
	switch name {
	case "py", "python3":
		return "python"
	}
	return name
}

// Space owns the kernels of one document, one per language, created
// lazily on first use.
//
// Space is safe for concurrent use: the executor runs plan stages with
// concurrent steps against it.
type Space struct {
	mu      sync.Mutex
	factory Factory
	kernels map[string]Kernel
}

// NewSpace returns an empty space using the given factory, or
// DefaultFactory when nil.
func NewSpace(factory Factory) *Space {
	if factory == nil {
		factory = DefaultFactory
	}
	return &Space{factory: factory, kernels: make(map[string]Kernel)}
}

// Exec executes code in the language's kernel, creating it on first use.
func (s *Space) Exec(ctx context.Context, language, code string) ([]schema.Node, []*schema.CodeError, error) {
	k, err := s.kernel(language)
	if err != nil {
		return nil, nil, err
	}
	return k.Exec(ctx, code)
}

// Get returns a variable, searching the language's kernel first and then
// the others, so cross language reads of parameters work.
func (s *Space) Get(ctx context.Context, language, name string) (schema.Node, error) {
	s.mu.Lock()
	kernels := s.snapshot(language)
	s.mu.Unlock()

	for _, k := range kernels {
		if value, err := k.Get(ctx, name); err == nil {
			return value, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrSymbolNotFound, name)
}

// Set assigns a variable in every live kernel, so parameters are visible
// to all languages. At least one kernel must exist or be creatable for
// the preferred language.
func (s *Space) Set(ctx context.Context, language, name string, value schema.Node) error {
	if _, err := s.kernel(language); err != nil {
		return err
	}

	s.mu.Lock()
	kernels := s.snapshot(language)
	s.mu.Unlock()

	for _, k := range kernels {
		if err := k.Set(ctx, name, value); err != nil {
			return err
		}
	}
	return nil
}

// Restart discards all kernels and their variables.
func (s *Space) Restart() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.kernels = make(map[string]Kernel)
}

// Languages returns the languages with a live kernel, sorted.
func (s *Space) Languages() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.kernels))
	for name := range s.kernels {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s *Space) kernel(language string) (Kernel, error) {
	name := canonical(language)
	s.mu.Lock()
	defer s.mu.Unlock()
	if k, ok := s.kernels[name]; ok {
		return k, nil
	}
	k, err := s.factory(name)
	if err != nil {
		return nil, err
	}
	s.kernels[name] = k
	return k, nil
}

// snapshot returns the live kernels, preferred language first, the rest
// in sorted order. Callers must hold mu.
func (s *Space) snapshot(language string) []Kernel {
	preferred := canonical(language)
	var rest []string
	for name := range s.kernels {
		if name != preferred {
			rest = append(rest, name)
		}
	}
	sort.Strings(rest)

	var kernels []Kernel
	if k, ok := s.kernels[preferred]; ok {
		kernels = append(kernels, k)
	}
	for _, name := range rest {
		kernels = append(kernels, s.kernels[name])
	}
	return kernels
}
