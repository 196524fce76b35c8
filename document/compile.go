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
	"path/filepath"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/AleutianAI/loom/address"
	"github.com/AleutianAI/loom/graph"
	"github.com/AleutianAI/loom/parser"
	"github.com/AleutianAI/loom/pointer"
	"github.com/AleutianAI/loom/resource"
	"github.com/AleutianAI/loom/schema"
)

// compiled pairs a code node with its parsed resource info for the
// digest write-back after the graph update.
type compiled struct {
	info  *resource.Info
	chunk *schema.CodeChunk
	expr  *schema.CodeExpression
}

// compile reparses the document into resource infos, rebuilds the
// dependency graph and writes the fresh compile digests back into the
// executable nodes.
//
// The pass runs under the write lock: it assigns ids to new nodes and
// mutates digest fields, and nothing else may see the tree while the
// address map and graph are out of sync with it.
func (d *Document) compile(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "document.compile")
	defer span.End()

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.root == nil {
		return ErrNotLoaded
	}

	// Every entity gets a stable id before addresses are derived.
	pointer.Walk(d.root, func(_ address.Address, node schema.Node) bool {
		schema.EnsureID(node)
		return true
	})
	d.addresses = pointer.BuildMap(d.root)

	var entries []compiled
	var infos []*resource.Info
	var globals resource.TagMap

	pointer.Walk(d.root, func(_ address.Address, node schema.Node) bool {
		switch n := node.(type) {
		case *schema.CodeChunk:
			info := d.parseCode(ctx, n.ID, "CodeChunk", n.ProgrammingLanguage, n.Text)
			if info.ExecuteAuto == nil && n.ExecuteAuto != schema.ExecuteAutoWhenNecessary {
				auto := n.ExecuteAuto
				info.ExecuteAuto = &auto
			}
			restoreExecution(info, n.ExecuteDigest, len(n.Errors) > 0)
			globals.InsertGlobals(&info.Tags)
			entries = append(entries, compiled{info: info, chunk: n})
			infos = append(infos, info)

		case *schema.CodeExpression:
			info := d.parseCode(ctx, n.ID, "CodeExpression", n.ProgrammingLanguage, n.Text)
			restoreExecution(info, n.ExecuteDigest, len(n.Errors) > 0)
			globals.InsertGlobals(&info.Tags)
			entries = append(entries, compiled{info: info, expr: n})
			infos = append(infos, info)

		case *schema.Include:
			info := resource.NewInfo(resource.Node(d.Path, n.ID, "Include"))
			info.Relations = []resource.Pair{{
				Relation: resource.RelationIncludes,
				Object:   resource.File(d.resolvePath(n.Source)),
			}}
			infos = append(infos, info)

		case *schema.Link:
			if local(n.Target) {
				info := resource.NewInfo(resource.Node(d.Path, n.ID, "Link"))
				info.Relations = []resource.Pair{{
					Relation: resource.RelationLinks,
					Object:   resource.File(d.resolvePath(n.Target)),
				}}
				infos = append(infos, info)
			}
		}
		return true
	})

	// Document-global tags override each resource's local ones.
	d.globals = globals
	for _, entry := range entries {
		entry.info.Tags.InsertGlobals(&globals)
	}

	g, err := graph.New(ctx, d.Path, infos)
	d.graph = g
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	// The graph update filled in the dependency parts of the digests;
	// surface them on the nodes.
	for _, entry := range entries {
		if entry.info.CompileDigest == nil {
			continue
		}
		digest := entry.info.CompileDigest.String()
		if entry.chunk != nil {
			entry.chunk.CompileDigest = digest
		} else {
			entry.expr.CompileDigest = digest
		}
	}

	span.SetAttributes(attribute.Int("compile.resources", len(infos)))
	d.publish("compiled", g.Snapshot())
	return nil
}

// parseCode analyzes one executable node. Code in a language without a
// parser still gets an info with a content digest; its nil relations
// mark it impure.
func (d *Document) parseCode(ctx context.Context, id, kind, language, text string) *resource.Info {
	code := resource.Code(d.Path, id, kind, language)
	info, err := parser.Parse(ctx, code, text)
	if err != nil {
		d.logger.Debug("code not analyzable", "node_id", id, "language", language, "error", err)
		info = resource.NewInfo(code)
		digest := resource.DigestFromStrings(text, text)
		info.CompileDigest = &digest
	}
	return info
}

// restoreExecution rebuilds the info's execution state from the digest
// string persisted on the node, so staleness survives recompiles and
// session restarts.
func restoreExecution(info *resource.Info, executeDigest string, failed bool) {
	if executeDigest == "" {
		return
	}
	digest, err := resource.ParseDigest(executeDigest)
	if err != nil {
		return
	}
	info.ExecuteDigest = &digest
	info.ExecuteFailed = &failed
}

// resolvePath resolves a document-relative file reference against the
// document's project directory.
func (d *Document) resolvePath(target string) string {
	if filepath.IsAbs(target) {
		return target
	}
	return filepath.Join(d.Project, target)
}

// local reports whether a link target is a file within the project, as
// opposed to a URL or intra-document fragment.
func local(target string) bool {
	return target != "" &&
		!strings.Contains(target, "://") &&
		!strings.HasPrefix(target, "#") &&
		!strings.HasPrefix(target, "mailto:")
}
