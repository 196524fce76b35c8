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
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"

	"github.com/AleutianAI/loom/resource"
)

func init() {
	Register(&pythonParser{language: python.GetLanguage()})
}

// pythonParser analyzes Python with a tree-sitter grammar. The analysis
// is approximate: module level assignments and imports are tracked
// exactly, assignments inside function and class bodies are treated as
// local and ignored, and reads of unknown names become Uses relations.
type pythonParser struct {
	language *sitter.Language
}

func (p *pythonParser) Language() string { return "python" }

func (p *pythonParser) Parse(ctx context.Context, code resource.Resource, text string) (*resource.Info, error) {
	parser := sitter.NewParser()
	parser.SetLanguage(p.language)

	tree, err := parser.ParseCtx(ctx, nil, []byte(text))
	if err != nil {
		return nil, fmt.Errorf("parser: python parse: %w", err)
	}
	defer tree.Close()

	info := resource.NewInfo(code)
	info.Relations = []resource.Pair{}

	a := &pythonAnalysis{info: info, source: []byte(text), path: code.Path}
	a.walk(tree.RootNode(), false)

	parseTags(info, strings.Join(a.comments, "\n"))
	pruneSelfUses(info)

	digest := resource.DigestFromStrings(text, semanticLines(text, "#"))
	info.CompileDigest = &digest
	return info, nil
}

type pythonAnalysis struct {
	info     *resource.Info
	source   []byte
	path     string
	comments []string
}

// pythonBuiltins are names that never become symbol dependencies.
var pythonBuiltins = map[string]bool{
	"abs": true, "all": true, "any": true, "bool": true, "dict": true,
	"enumerate": true, "filter": true, "float": true, "format": true,
	"int": true, "len": true, "list": true, "map": true, "max": true,
	"min": true, "open": true, "print": true, "range": true, "round": true,
	"set": true, "sorted": true, "str": true, "sum": true, "tuple": true,
	"type": true, "zip": true, "None": true, "True": true, "False": true,
}

func (a *pythonAnalysis) walk(node *sitter.Node, local bool) {
	switch node.Type() {
	case "comment":
		a.comments = append(a.comments, node.Content(a.source))
		return

	case "assignment":
		if !local {
			a.collectTargets(node.ChildByFieldName("left"), resource.RelationAssigns)
		}
		if right := node.ChildByFieldName("right"); right != nil {
			a.walk(right, local)
		}
		return

	case "augmented_assignment":
		if !local {
			a.collectTargets(node.ChildByFieldName("left"), resource.RelationAlters)
		}
		if right := node.ChildByFieldName("right"); right != nil {
			a.walk(right, local)
		}
		return

	case "function_definition", "class_definition":
		if !local {
			kind := "Function"
			if node.Type() == "class_definition" {
				kind = "Class"
			}
			if name := node.ChildByFieldName("name"); name != nil {
				addRelation(a.info, resource.RelationDeclares,
					resource.Symbol(a.path, name.Content(a.source), kind))
			}
		}
		if body := node.ChildByFieldName("body"); body != nil {
			a.walk(body, true)
		}
		return

	case "import_statement":
		for i := 0; i < int(node.NamedChildCount()); i++ {
			child := node.NamedChild(i)
			name := child
			if child.Type() == "aliased_import" {
				name = child.ChildByFieldName("name")
			}
			if name != nil {
				a.addImport(name.Content(a.source))
			}
		}
		return

	case "import_from_statement":
		if module := node.ChildByFieldName("module_name"); module != nil {
			a.addImport(module.Content(a.source))
		}
		return

	case "call":
		a.analyzeCall(node, local)
		return

	case "attribute":
		// Only the object of "obj.attr" is a name read.
		if object := node.ChildByFieldName("object"); object != nil {
			a.walk(object, local)
		}
		return

	case "keyword_argument":
		if value := node.ChildByFieldName("value"); value != nil {
			a.walk(value, local)
		}
		return

	case "identifier":
		name := node.Content(a.source)
		if !pythonBuiltins[name] {
			addRelation(a.info, resource.RelationUses, resource.Symbol(a.path, name, ""))
		}
		return
	}

	for i := 0; i < int(node.NamedChildCount()); i++ {
		a.walk(node.NamedChild(i), local)
	}
}

func (a *pythonAnalysis) collectTargets(node *sitter.Node, relation resource.Relation) {
	if node == nil {
		return
	}
	switch node.Type() {
	case "identifier":
		addRelation(a.info, relation, resource.Symbol(a.path, node.Content(a.source), ""))
	case "pattern_list", "tuple_pattern", "list_pattern":
		for i := 0; i < int(node.NamedChildCount()); i++ {
			a.collectTargets(node.NamedChild(i), relation)
		}
	}
	// Subscript and attribute targets mutate existing values.
	if node.Type() == "subscript" || node.Type() == "attribute" {
		if object := firstIdentifier(node, a.source); object != "" {
			addRelation(a.info, resource.RelationAlters, resource.Symbol(a.path, object, ""))
		}
	}
}

// analyzeCall records file relations for open() calls and walks the
// callee and arguments for name reads.
func (a *pythonAnalysis) analyzeCall(node *sitter.Node, local bool) {
	function := node.ChildByFieldName("function")
	arguments := node.ChildByFieldName("arguments")

	if function != nil && function.Type() == "identifier" && function.Content(a.source) == "open" && arguments != nil {
		var path, mode string
		seen := 0
		for i := 0; i < int(arguments.NamedChildCount()); i++ {
			arg := arguments.NamedChild(i)
			if arg.Type() != "string" {
				continue
			}
			literal := strings.Trim(arg.Content(a.source), `"'`)
			if seen == 0 {
				path = literal
			} else if seen == 1 {
				mode = literal
			}
			seen++
		}
		if path != "" {
			relation := resource.RelationReads
			if strings.ContainsAny(mode, "wax+") {
				relation = resource.RelationWrites
			}
			addRelation(a.info, relation, resource.File(path))
		}
	}

	if function != nil {
		a.walk(function, local)
	}
	if arguments != nil {
		for i := 0; i < int(arguments.NamedChildCount()); i++ {
			a.walk(arguments.NamedChild(i), local)
		}
	}
}

func (a *pythonAnalysis) addImport(module string) {
	// Only the top level package matters for dependency tracking.
	if i := strings.Index(module, "."); i > 0 {
		module = module[:i]
	}
	addRelation(a.info, resource.RelationImports, resource.Module("python", module))
}

func firstIdentifier(node *sitter.Node, source []byte) string {
	if node.Type() == "identifier" {
		return node.Content(source)
	}
	for i := 0; i < int(node.NamedChildCount()); i++ {
		if name := firstIdentifier(node.NamedChild(i), source); name != "" {
			return name
		}
	}
	return ""
}
