// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package parser

import (
	"context"
	"regexp"
	"strings"

	"github.com/AleutianAI/loom/resource"
)

// calc is a deliberately small spreadsheet-like language: each line is
// either "name = expression" or a bare expression, with "#" comments.
// Its analysis is exact, which makes it the reference language for
// dependency tracking.

func init() {
	Register(calcParser{})
}

type calcParser struct{}

var (
	calcAssignment = regexp.MustCompile(`^\s*([a-zA-Z_][a-zA-Z0-9_]*)\s*=\s*(.*)$`)
	calcIdentifier = regexp.MustCompile(`[a-zA-Z_][a-zA-Z0-9_]*`)
)

// calcBuiltins are callable without creating a symbol dependency.
var calcBuiltins = map[string]bool{
	"abs": true, "ceil": true, "floor": true, "max": true,
	"min": true, "pow": true, "round": true, "sqrt": true,
}

func (calcParser) Language() string { return "calc" }

func (calcParser) Parse(_ context.Context, code resource.Resource, text string) (*resource.Info, error) {
	info := resource.NewInfo(code)
	// Non-nil: calc is always fully analyzable.
	info.Relations = []resource.Pair{}

	var comments []string
	for _, line := range strings.Split(text, "\n") {
		if i := strings.Index(line, "#"); i >= 0 {
			comments = append(comments, line[i:])
			line = line[:i]
		}
		if strings.TrimSpace(line) == "" {
			continue
		}

		expr := line
		if match := calcAssignment.FindStringSubmatch(line); match != nil {
			addRelation(info, resource.RelationAssigns, resource.Symbol(code.Path, match[1], "Number"))
			expr = match[2]
		}
		for _, name := range calcIdentifier.FindAllString(expr, -1) {
			if calcBuiltins[name] {
				continue
			}
			addRelation(info, resource.RelationUses, resource.Symbol(code.Path, name, "Number"))
		}
	}

	parseTags(info, strings.Join(comments, "\n"))
	pruneSelfUses(info)

	digest := resource.DigestFromStrings(text, semanticLines(text, "#"))
	info.CompileDigest = &digest
	return info, nil
}

// pruneSelfUses drops Uses relations for symbols the same code assigns,
// alters or declares. Without this, "x = x + 1" style code would put a
// two node cycle into the graph; the code's dependents still see the
// assignment.
func pruneSelfUses(info *resource.Info) {
	modified := make(map[string]bool)
	for _, pair := range info.Relations {
		if pair.Relation.Modifies() && pair.Object.Kind == resource.KindSymbol {
			modified[pair.Object.Name] = true
		}
	}

	kept := info.Relations[:0]
	for _, pair := range info.Relations {
		if pair.Relation == resource.RelationUses &&
			pair.Object.Kind == resource.KindSymbol &&
			modified[pair.Object.Name] {
			continue
		}
		kept = append(kept, pair)
	}
	info.Relations = kept
}
