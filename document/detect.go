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

	"github.com/AleutianAI/loom/address"
	"github.com/AleutianAI/loom/pointer"
	"github.com/AleutianAI/loom/schema"
)

// Detection is one finding of a detector: a node of interest and where it
// sits in the tree.
type Detection struct {
	// Address of the detected node.
	Address address.Address

	// NodeID of the detected node, empty for nodes without identity.
	NodeID string

	// Node is the detected content, detached from the live tree.
	Node schema.Node
}

// Detector inspects a node and reports whether it is of interest.
type Detector func(node schema.Node) bool

// Detect walks a snapshot of the document and returns the nodes matching
// the detector, in document order.
func (d *Document) Detect(ctx context.Context, detect Detector) ([]Detection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	root := d.Root()
	if root == nil {
		return nil, ErrNotLoaded
	}

	var detections []Detection
	pointer.Walk(root, func(addr address.Address, node schema.Node) bool {
		if detect(node) {
			detections = append(detections, Detection{
				Address: append(address.Address(nil), addr...),
				NodeID:  schema.GetID(node),
				Node:    node,
			})
		}
		return true
	})
	return detections, nil
}
