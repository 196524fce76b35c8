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
	"strings"

	"github.com/AleutianAI/loom/address"
	"github.com/AleutianAI/loom/pointer"
	"github.com/AleutianAI/loom/schema"
)

func init() {
	Register(plainCodec{})
}

// plainCodec is maximally lossy: decoding wraps the text in a paragraph,
// encoding keeps only the text content of the tree.
type plainCodec struct{}

func (plainCodec) Names() []string { return []string{"plain", "txt", "text"} }

func (plainCodec) Decode(data []byte) (schema.Node, error) {
	article := &schema.Article{}
	for _, block := range strings.Split(strings.TrimRight(string(data), "\n"), "\n\n") {
		article.Content = append(article.Content, &schema.Paragraph{
			Content: []schema.InlineContent{schema.String(block)},
		})
	}
	return article, nil
}

func (plainCodec) Encode(node schema.Node) ([]byte, error) {
	var parts []string
	pointer.Walk(node, func(_ address.Address, n schema.Node) bool {
		switch n := n.(type) {
		case schema.String:
			parts = append(parts, string(n))
			return false
		case *schema.CodeBlock:
			parts = append(parts, n.Text)
			return false
		case *schema.CodeChunk:
			parts = append(parts, n.Text)
			return false
		}
		return true
	})
	return []byte(strings.Join(parts, "\n") + "\n"), nil
}
