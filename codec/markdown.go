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

	"gitlab.com/golang-commonmark/markdown"

	"github.com/AleutianAI/loom/schema"
)

func init() {
	Register(markdownCodec{})
}

// markdownCodec covers the authoring subset of the schema.
//
// Executable nodes use two conventions on top of CommonMark:
//
//   - a fenced code block whose info string is "<language> exec" is an
//     executable CodeChunk; without "exec" it is a static CodeBlock
//   - inline code of the form `<language>> expression` is an executable
//     CodeExpression, e.g. `calc> x * 2`
type markdownCodec struct{}

func (markdownCodec) Names() []string { return []string{"markdown", "md"} }

func (markdownCodec) Decode(data []byte) (schema.Node, error) {
	md := markdown.New(
		markdown.HTML(false),
		markdown.Tables(true),
		markdown.Linkify(false),
		markdown.Typographer(false),
	)

	d := &mdDecoder{tokens: md.Parse(data)}
	blocks, err := d.blocks(func(markdown.Token) bool { return false })
	if err != nil {
		return nil, err
	}
	return &schema.Article{Content: blocks}, nil
}

type mdDecoder struct {
	tokens []markdown.Token
	pos    int
}

func (d *mdDecoder) next() markdown.Token {
	if d.pos >= len(d.tokens) {
		return nil
	}
	tok := d.tokens[d.pos]
	d.pos++
	return tok
}

// blocks consumes block content until stop matches a token (which is
// consumed) or the stream ends.
func (d *mdDecoder) blocks(stop func(markdown.Token) bool) ([]schema.BlockContent, error) {
	var result []schema.BlockContent
	for {
		tok := d.next()
		if tok == nil || stop(tok) {
			return result, nil
		}

		switch tok := tok.(type) {
		case *markdown.HeadingOpen:
			content, err := d.inlineUntil(func(t markdown.Token) bool {
				_, ok := t.(*markdown.HeadingClose)
				return ok
			})
			if err != nil {
				return nil, err
			}
			result = append(result, &schema.Heading{Depth: tok.HLevel, Content: content})

		case *markdown.ParagraphOpen:
			content, err := d.inlineUntil(func(t markdown.Token) bool {
				_, ok := t.(*markdown.ParagraphClose)
				return ok
			})
			if err != nil {
				return nil, err
			}
			result = append(result, &schema.Paragraph{Content: content})

		case *markdown.Fence:
			language, exec := parseFenceParams(tok.Params)
			text := strings.TrimRight(tok.Content, "\n")
			if exec {
				result = append(result, &schema.CodeChunk{ProgrammingLanguage: language, Text: text})
			} else {
				result = append(result, &schema.CodeBlock{ProgrammingLanguage: language, Text: text})
			}

		case *markdown.CodeBlock:
			result = append(result, &schema.CodeBlock{Text: strings.TrimRight(tok.Content, "\n")})

		case *markdown.BlockquoteOpen:
			inner, err := d.blocks(func(t markdown.Token) bool {
				_, ok := t.(*markdown.BlockquoteClose)
				return ok
			})
			if err != nil {
				return nil, err
			}
			result = append(result, &schema.QuoteBlock{Content: inner})

		case *markdown.BulletListOpen:
			list, err := d.list(schema.ListOrderUnordered, func(t markdown.Token) bool {
				_, ok := t.(*markdown.BulletListClose)
				return ok
			})
			if err != nil {
				return nil, err
			}
			result = append(result, list)

		case *markdown.OrderedListOpen:
			list, err := d.list(schema.ListOrderAscending, func(t markdown.Token) bool {
				_, ok := t.(*markdown.OrderedListClose)
				return ok
			})
			if err != nil {
				return nil, err
			}
			result = append(result, list)

		case *markdown.TableOpen:
			table, err := d.table()
			if err != nil {
				return nil, err
			}
			result = append(result, table)

		case *markdown.Hr:
			result = append(result, &schema.ThematicBreak{})

		default:
			// Unhandled block tokens (html, definition lists, ...) drop.
		}
	}
}

func (d *mdDecoder) list(order schema.ListOrder, stop func(markdown.Token) bool) (*schema.List, error) {
	list := &schema.List{Order: order}
	for {
		tok := d.next()
		if tok == nil || stop(tok) {
			return list, nil
		}
		if _, ok := tok.(*markdown.ListItemOpen); !ok {
			continue
		}
		blocks, err := d.blocks(func(t markdown.Token) bool {
			_, ok := t.(*markdown.ListItemClose)
			return ok
		})
		if err != nil {
			return nil, err
		}
		list.Items = append(list.Items, &schema.ListItem{Content: blocks})
	}
}

func (d *mdDecoder) table() (*schema.Table, error) {
	table := &schema.Table{}
	var row *schema.TableRow
	for {
		tok := d.next()
		if tok == nil {
			return table, nil
		}
		switch tok.(type) {
		case *markdown.TableClose:
			return table, nil
		case *markdown.TrOpen:
			row = &schema.TableRow{}
		case *markdown.TrClose:
			if row != nil {
				table.Rows = append(table.Rows, row)
				row = nil
			}
		case *markdown.ThOpen, *markdown.TdOpen:
			content, err := d.inlineUntil(func(t markdown.Token) bool {
				switch t.(type) {
				case *markdown.ThClose, *markdown.TdClose:
					return true
				}
				return false
			})
			if err != nil {
				return nil, err
			}
			if row != nil {
				row.Cells = append(row.Cells, &schema.TableCell{Content: content})
			}
		}
	}
}

// inlineUntil consumes the single Inline token expected before the stop
// token and converts its children.
func (d *mdDecoder) inlineUntil(stop func(markdown.Token) bool) ([]schema.InlineContent, error) {
	var content []schema.InlineContent
	for {
		tok := d.next()
		if tok == nil || stop(tok) {
			return content, nil
		}
		if inline, ok := tok.(*markdown.Inline); ok {
			converted, err := convertInlines(inline.Children)
			if err != nil {
				return nil, err
			}
			content = append(content, converted...)
		}
	}
}

// convertInlines converts an inline token stream, pairing open and close
// tokens into nested content.
func convertInlines(tokens []markdown.Token) ([]schema.InlineContent, error) {
	content, rest, err := convertInlinesUntil(tokens, nil)
	if err != nil {
		return nil, err
	}
	if len(rest) != 0 {
		return nil, fmt.Errorf("codec: decode markdown: unbalanced inline markup")
	}
	return content, nil
}

func convertInlinesUntil(tokens []markdown.Token, stop func(markdown.Token) bool) ([]schema.InlineContent, []markdown.Token, error) {
	var content []schema.InlineContent
	appendText := func(text string) {
		if len(content) > 0 {
			if s, ok := content[len(content)-1].(schema.String); ok {
				content[len(content)-1] = s + schema.String(text)
				return
			}
		}
		content = append(content, schema.String(text))
	}

	for len(tokens) > 0 {
		tok := tokens[0]
		if stop != nil && stop(tok) {
			return content, tokens[1:], nil
		}
		tokens = tokens[1:]

		switch tok := tok.(type) {
		case *markdown.Text:
			appendText(tok.Content)

		case *markdown.Softbreak, *markdown.Hardbreak:
			appendText(" ")

		case *markdown.CodeInline:
			if language, text, ok := parseExpression(tok.Content); ok {
				content = append(content, &schema.CodeExpression{ProgrammingLanguage: language, Text: text})
			} else {
				content = append(content, &schema.CodeFragment{Text: tok.Content})
			}

		case *markdown.EmphasisOpen:
			inner, rest, err := convertInlinesUntil(tokens, func(t markdown.Token) bool {
				_, ok := t.(*markdown.EmphasisClose)
				return ok
			})
			if err != nil {
				return nil, nil, err
			}
			tokens = rest
			content = append(content, &schema.Emphasis{Content: inner})

		case *markdown.StrongOpen:
			inner, rest, err := convertInlinesUntil(tokens, func(t markdown.Token) bool {
				_, ok := t.(*markdown.StrongClose)
				return ok
			})
			if err != nil {
				return nil, nil, err
			}
			tokens = rest
			content = append(content, &schema.Strong{Content: inner})

		case *markdown.LinkOpen:
			inner, rest, err := convertInlinesUntil(tokens, func(t markdown.Token) bool {
				_, ok := t.(*markdown.LinkClose)
				return ok
			})
			if err != nil {
				return nil, nil, err
			}
			tokens = rest
			content = append(content, &schema.Link{Target: tok.Href, Content: inner})
		}
	}
	if stop != nil {
		return nil, nil, fmt.Errorf("codec: decode markdown: unclosed inline markup")
	}
	return content, nil, nil
}

// parseFenceParams splits a fence info string like "calc exec" into the
// language and the executable flag.
func parseFenceParams(params string) (language string, exec bool) {
	fields := strings.Fields(params)
	if len(fields) > 0 {
		language = fields[0]
	}
	for _, field := range fields[1:] {
		if field == "exec" {
			exec = true
		}
	}
	return language, exec
}

// parseExpression recognizes `lang> expr` inline code as an executable
// expression.
func parseExpression(content string) (language, text string, ok bool) {
	i := strings.Index(content, ">")
	if i <= 0 {
		return "", "", false
	}
	language = strings.TrimSpace(content[:i])
	if strings.ContainsAny(language, " \t`=<") {
		return "", "", false
	}
	return language, strings.TrimSpace(content[i+1:]), true
}
