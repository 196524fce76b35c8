// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package resource models the addressable entities that participate in a
// document's dependency graph: symbols in code, executable nodes, document
// nodes, files, language modules and URLs.
//
// Resources are immutable value types identified by a scheme-prefixed id
// such as "symbol://report.md#x". Type metadata (Kind, Language) is a hint
// only and is excluded from identity, so resources referring to the same
// logical entity compare equal across recompiles even when inference of
// their type improves.
package resource

import "path/filepath"

// Kind discriminates the variants of Resource.
type Kind int

const (
	// KindSymbol is a symbol within code, within a document.
	KindSymbol Kind = iota

	// KindCode is a node containing code within a document.
	KindCode

	// KindNode is a non-code node within a document.
	KindNode

	// KindFile is a file on the local filesystem.
	KindFile

	// KindModule is a programming language module.
	KindModule

	// KindURL is a remote resource.
	KindURL
)

// Resource is one addressable entity in a dependency graph.
//
// Exactly the fields relevant to the Kind are set. NodeKind and Language
// are hints: they never contribute to ID() and must not be used for
// identity comparisons.
type Resource struct {
	Kind Kind

	// Path is the document or file path (Symbol, Code, Node, File).
	Path string

	// Name is the symbol or module name (Symbol, Module).
	Name string

	// NodeID is the id of the node within the document (Code, Node).
	NodeID string

	// NodeKind is the type of node, e.g. "CodeChunk" (Symbol, Code, Node).
	// Hint only.
	NodeKind string

	// Language is the programming language (Code, Module). Hint only.
	Language string

	// URL is the address of the remote resource (URL).
	URL string
}

// Symbol creates a symbol resource.
func Symbol(path, name, kind string) Resource {
	return Resource{Kind: KindSymbol, Path: path, Name: name, NodeKind: kind}
}

// Code creates a code node resource.
func Code(path, id, kind, language string) Resource {
	return Resource{Kind: KindCode, Path: path, NodeID: id, NodeKind: kind, Language: language}
}

// Node creates a document node resource.
func Node(path, id, kind string) Resource {
	return Resource{Kind: KindNode, Path: path, NodeID: id, NodeKind: kind}
}

// File creates a file resource.
func File(path string) Resource {
	return Resource{Kind: KindFile, Path: path}
}

// Module creates a language module resource.
func Module(language, name string) Resource {
	return Resource{Kind: KindModule, Language: language, Name: name}
}

// URL creates a remote resource.
func URL(url string) Resource {
	return Resource{Kind: KindURL, URL: url}
}

// ID returns the scheme-prefixed identifier used as the graph node key.
// It is deterministic and excludes hint fields, so the id of a logical
// resource never changes across recompiles.
func (r Resource) ID() string {
	switch r.Kind {
	case KindSymbol:
		return "symbol://" + slash(r.Path) + "#" + r.Name
	case KindCode:
		return "code://" + slash(r.Path) + "#" + r.NodeID
	case KindNode:
		return "node://" + slash(r.Path) + "#" + r.NodeID
	case KindFile:
		return "file://" + slash(r.Path)
	case KindModule:
		return "module://" + r.Language + "#" + r.Name
	default:
		return r.URL
	}
}

// Same reports whether two resources refer to the same logical entity,
// ignoring hint fields.
func (r Resource) Same(other Resource) bool {
	return r.ID() == other.ID()
}

// Digest generates a digest for the resource.
//
// Only File resources support direct digest generation (by reading and
// hashing the file); other variants return the zero digest because their
// digests are computed by the parser that discovered them, from source
// text.
func (r Resource) Digest() Digest {
	if r.Kind == KindFile {
		return DigestFromFile(r.Path)
	}
	return Digest{}
}

// Info returns a default Info for the resource, with the digest (if any)
// as the compile digest.
func (r Resource) Info() *Info {
	info := NewInfo(r)
	if r.Kind == KindFile {
		digest := r.Digest()
		info.CompileDigest = &digest
	}
	return info
}

// Paths use forward slashes on all platforms so that resource ids are
// portable.
func slash(path string) string {
	return filepath.ToSlash(path)
}
