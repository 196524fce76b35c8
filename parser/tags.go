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
	"regexp"
	"strings"

	"github.com/AleutianAI/loom/resource"
	"github.com/AleutianAI/loom/schema"
)

// Comment tags let authors override or extend static analysis:
//
//	# @uses height width
//	# @assigns area
//	# @imports numpy
//	# @autorun always
//	# @pure
//	# @global @db shared.sqlite
//
// A "@global" modifier marks the following tag as document-wide, so it is
// copied onto every other code resource in the document.

var tagPattern = regexp.MustCompile(`@(global\s+@)?([a-zA-Z][a-zA-Z0-9-]*)[ \t]*([^@\n]*)`)

// parseTags scans comment text for tags and folds them into the info:
// relation tags add relations, execution tags set the execution hints and
// everything else is kept as a named tag.
func parseTags(info *resource.Info, commentText string) {
	path := info.Resource.Path
	for _, match := range tagPattern.FindAllStringSubmatch(commentText, -1) {
		global := match[1] != ""
		name := strings.ToLower(match[2])
		value := strings.TrimSpace(match[3])

		switch name {
		case "global":
			continue
		case "uses", "assigns", "alters", "declares":
			for _, symbol := range splitItems(value) {
				addRelation(info, relationForTag(name), resource.Symbol(path, symbol, ""))
			}
		case "imports":
			for _, module := range splitItems(value) {
				addRelation(info, resource.RelationImports, resource.Module(info.Resource.Language, module))
			}
		case "reads":
			for _, file := range splitItems(value) {
				addRelation(info, resource.RelationReads, resource.File(file))
			}
		case "writes":
			for _, file := range splitItems(value) {
				addRelation(info, resource.RelationWrites, resource.File(file))
			}
		case "autorun":
			auto := schema.ParseExecuteAuto(value)
			info.ExecuteAuto = &auto
		case "pure":
			pure := true
			info.ExecutePure = &pure
		case "impure":
			pure := false
			info.ExecutePure = &pure
		default:
			info.Tags.Insert(resource.Tag{Name: name, Value: value, Global: global})
		}
	}
}

func relationForTag(name string) resource.Relation {
	switch name {
	case "assigns":
		return resource.RelationAssigns
	case "alters":
		return resource.RelationAlters
	case "declares":
		return resource.RelationDeclares
	default:
		return resource.RelationUses
	}
}

var itemSep = regexp.MustCompile(`[\s,]+`)

func splitItems(value string) []string {
	var items []string
	for _, item := range itemSep.Split(value, -1) {
		if item != "" {
			items = append(items, item)
		}
	}
	return items
}

// addRelation appends a relation, skipping exact duplicates.
func addRelation(info *resource.Info, relation resource.Relation, object resource.Resource) {
	for _, pair := range info.Relations {
		if pair.Relation == relation && pair.Object.Same(object) {
			return
		}
	}
	info.Relations = append(info.Relations, resource.Pair{Relation: relation, Object: object})
}
