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

import (
	"bytes"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// Digest summarizes the state of a resource and of its dependencies.
//
// The first three parts are content hashes; the last two are counts that
// propagate through the dependency graph so that a resource can tell, from
// its digest alone, whether anything upstream is stale or has failed.
type Digest struct {
	// Content is a hash of the resource's content, including whitespace
	// and comments.
	Content uint64

	// Semantic is a hash of the execution-relevant parts of the content
	// only, so formatting-only edits do not trigger re-execution.
	Semantic uint64

	// Dependencies is a hash folded over the semantic digests of every
	// dependency, zero when there are none.
	Dependencies uint64

	// StaleCount is the number of dependencies (transitively) that are
	// stale. In graphs with shared upstreams this is an upper bound, which
	// is safe: it can only cause re-execution, never a missed one.
	StaleCount uint32

	// FailedCount is the number of dependencies (transitively) whose last
	// execution failed, with the same upper-bound caveat.
	FailedCount uint32
}

// Zero reports whether the digest is the zero value.
func (d Digest) Zero() bool {
	return d == Digest{}
}

// String renders the digest as five dot-separated decimal fields, e.g.
// "12345.678.0.1.0".
func (d Digest) String() string {
	return fmt.Sprintf("%d.%d.%d.%d.%d",
		d.Content, d.Semantic, d.Dependencies, d.StaleCount, d.FailedCount)
}

// ParseDigest parses the string form produced by String. Malformed input
// yields the zero digest and an error.
func ParseDigest(text string) (Digest, error) {
	parts := strings.Split(text, ".")
	if len(parts) != 5 {
		return Digest{}, fmt.Errorf("digest %q: expected 5 parts, got %d", text, len(parts))
	}
	var nums [5]uint64
	for i, part := range parts {
		n, err := strconv.ParseUint(part, 10, 64)
		if err != nil {
			return Digest{}, fmt.Errorf("digest %q: part %d: %w", text, i, err)
		}
		nums[i] = n
	}
	return Digest{
		Content:      nums[0],
		Semantic:     nums[1],
		Dependencies: nums[2],
		StaleCount:   uint32(nums[3]),
		FailedCount:  uint32(nums[4]),
	}, nil
}

// DigestFromStrings computes a digest from a resource's full content and
// its execution-relevant (semantic) reduction. An empty semantic
// reduction falls back to the content hash, so code without a semantic
// analysis still re-executes on any content change. Carriage returns are
// stripped before hashing so that digests are identical across
// line-ending conventions.
func DigestFromStrings(content, semantic string) Digest {
	d := Digest{Content: hashString(content)}
	if semantic == "" {
		d.Semantic = d.Content
	} else {
		d.Semantic = hashString(semantic)
	}
	return d
}

// DigestFromFile computes a content digest from a file's bytes. A file
// that cannot be read digests to zero, which marks it changed relative to
// any previous digest and thereby propagates the disappearance downstream.
func DigestFromFile(path string) Digest {
	data, err := os.ReadFile(path)
	if err != nil {
		return Digest{}
	}
	hash := hashBytes(bytes.ReplaceAll(data, []byte("\r"), nil))
	return Digest{Content: hash, Semantic: hash}
}

// Fold mixes another hash into the dependencies part. Folding is done in
// a deterministic dependency order by the graph so equal dependency sets
// yield equal digests.
func (d *Digest) Fold(hash uint64) {
	var buf [16]byte
	putUint64(buf[:8], d.Dependencies)
	putUint64(buf[8:], hash)
	d.Dependencies = xxhash.Sum64(buf[:])
}

func hashString(s string) uint64 {
	return hashBytes(bytes.ReplaceAll([]byte(s), []byte("\r"), nil))
}

func hashBytes(b []byte) uint64 {
	return xxhash.Sum64(b)
}

func putUint64(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
}
