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
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/AleutianAI/loom/schema"
)

func init() {
	Register(jsonCodec{})
}

// jsonCodec round trips the full tree through the schema value form.
type jsonCodec struct{}

func (jsonCodec) Names() []string { return []string{"json"} }

func (jsonCodec) Decode(data []byte) (schema.Node, error) {
	decoder := json.NewDecoder(bytes.NewReader(data))
	// Numbers must stay distinguishable: 1 decodes to Integer, 1.5 to
	// Number, which float64-only decoding cannot do.
	decoder.UseNumber()

	var value any
	if err := decoder.Decode(&value); err != nil {
		return nil, fmt.Errorf("codec: decode json: %w", err)
	}
	node, err := schema.FromValue(value)
	if err != nil {
		return nil, fmt.Errorf("codec: decode json: %w", err)
	}
	return node, nil
}

func (jsonCodec) Encode(node schema.Node) ([]byte, error) {
	data, err := json.MarshalIndent(schema.ToValue(node), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("codec: encode json: %w", err)
	}
	return append(data, '\n'), nil
}
