// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package codec

import (
	"fmt"
	"strings"

	"github.com/AleutianAI/loom/schema"
)

func (markdownCodec) Encode(node schema.Node) ([]byte, error) {
	article, ok := node.(*schema.Article)
	if !ok {
		if block, ok := node.(schema.BlockContent); ok {
			article = &schema.Article{Content: []schema.BlockContent{block}}
		} else {
			return nil, fmt.Errorf("codec: encode markdown: cannot encode %s", schema.TypeName(node))
		}
	}

	var parts []string
	for _, block := range article.Content {
		parts = append(parts, encodeBlock(block))
	}
	return []byte(strings.Join(parts, "\n\n") + "\n"), nil
}

func encodeBlock(block schema.BlockContent) string {
	switch block := block.(type) {
	case *schema.Heading:
		return strings.Repeat("#", block.Depth) + " " + encodeInlines(block.Content)

	case *schema.Paragraph:
		return encodeInlines(block.Content)

	case *schema.CodeChunk:
		return "```" + block.ProgrammingLanguage + " exec\n" + block.Text + "\n```"

	case *schema.CodeBlock:
		return "```" + block.ProgrammingLanguage + "\n" + block.Text + "\n```"

	case *schema.QuoteBlock:
		var inner []string
		for _, b := range block.Content {
			inner = append(inner, encodeBlock(b))
		}
		lines := strings.Split(strings.Join(inner, "\n\n"), "\n")
		for i, line := range lines {
			lines[i] = strings.TrimRight("> "+line, " ")
		}
		return strings.Join(lines, "\n")

	case *schema.List:
		var items []string
		for i, item := range block.Items {
			marker := "- "
			if block.Order == schema.ListOrderAscending {
				marker = fmt.Sprintf("%d. ", i+1)
			}
			items = append(items, marker+encodeListItem(item, len(marker)))
		}
		return strings.Join(items, "\n")

	case *schema.MathBlock:
		return "$$\n" + block.Text + "\n$$"

	case *schema.Table:
		return encodeTable(block)

	case *schema.ThematicBreak:
		return "---"

	case *schema.Include:
		// Transclusion is not representable; the transcluded content is.
		var inner []string
		for _, b := range block.Content {
			inner = append(inner, encodeBlock(b))
		}
		return strings.Join(inner, "\n\n")
	}
	return ""
}

func encodeListItem(item *schema.ListItem, indent int) string {
	var inner []string
	for _, block := range item.Content {
		inner = append(inner, encodeBlock(block))
	}
	lines := strings.Split(strings.Join(inner, "\n\n"), "\n")
	pad := strings.Repeat(" ", indent)
	for i := 1; i < len(lines); i++ {
		if lines[i] != "" {
			lines[i] = pad + lines[i]
		}
	}
	return strings.Join(lines, "\n")
}

func encodeTable(table *schema.Table) string {
	var lines []string
	for i, row := range table.Rows {
		var cells []string
		for _, cell := range row.Cells {
			cells = append(cells, encodeInlines(cell.Content))
		}
		lines = append(lines, "| "+strings.Join(cells, " | ")+" |")
		if i == 0 {
			var seps []string
			for range row.Cells {
				seps = append(seps, "---")
			}
			lines = append(lines, "| "+strings.Join(seps, " | ")+" |")
		}
	}
	return strings.Join(lines, "\n")
}

func encodeInlines(content []schema.InlineContent) string {
	var sb strings.Builder
	for _, inline := range content {
		sb.WriteString(encodeInline(inline))
	}
	return sb.String()
}

func encodeInline(inline schema.InlineContent) string {
	switch inline := inline.(type) {
	case schema.String:
		return string(inline)
	case *schema.Emphasis:
		return "*" + encodeInlines(inline.Content) + "*"
	case *schema.Strong:
		return "**" + encodeInlines(inline.Content) + "**"
	case *schema.Link:
		return "[" + encodeInlines(inline.Content) + "](" + inline.Target + ")"
	case *schema.CodeFragment:
		return "`" + inline.Text + "`"
	case *schema.CodeExpression:
		return "`" + inline.ProgrammingLanguage + "> " + inline.Text + "`"
	case *schema.MathFragment:
		return "$" + inline.Text + "$"
	case *schema.Parameter:
		return "&[" + inline.Name + "]"
	}
	return ""
}
