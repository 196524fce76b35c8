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

	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/loom/schema"
)

func init() {
	Register(yamlCodec{})
}

// yamlCodec round trips the full tree through the schema value form.
type yamlCodec struct{}

func (yamlCodec) Names() []string { return []string{"yaml", "yml"} }

func (yamlCodec) Decode(data []byte) (schema.Node, error) {
	var value any
	if err := yaml.Unmarshal(data, &value); err != nil {
		return nil, fmt.Errorf("codec: decode yaml: %w", err)
	}
	node, err := schema.FromValue(value)
	if err != nil {
		return nil, fmt.Errorf("codec: decode yaml: %w", err)
	}
	return node, nil
}

func (yamlCodec) Encode(node schema.Node) ([]byte, error) {
	data, err := yaml.Marshal(schema.ToValue(node))
	if err != nil {
		return nil, fmt.Errorf("codec: encode yaml: %w", err)
	}
	return data, nil
}
