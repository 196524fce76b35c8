// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/loom/codec"
	"github.com/AleutianAI/loom/patch"
	"github.com/AleutianAI/loom/schema"
)

// decodeFile reads and decodes a document, using the explicit format when
// given and the path's extension otherwise.
func decodeFile(path, format string) (schema.Node, error) {
	var c codec.Codec
	var err error
	if format != "" {
		c, err = codec.Get(format)
	} else {
		c, err = codec.ForPath(path)
	}
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return c.Decode(data)
}

func runShow(cmd *cobra.Command, args []string) error {
	node, err := decodeFile(args[0], "")
	if err != nil {
		return err
	}
	c, err := codec.Get(formatTo)
	if err != nil {
		return err
	}
	data, err := c.Encode(node)
	if err != nil {
		return err
	}
	_, err = os.Stdout.Write(data)
	return err
}

func runConvert(cmd *cobra.Command, args []string) error {
	in, out := args[0], args[1]

	node, err := decodeFile(in, formatFrom)
	if err != nil {
		return err
	}

	var c codec.Codec
	if formatTo != "" {
		c, err = codec.Get(formatTo)
	} else {
		c, err = codec.ForPath(out)
	}
	if err != nil {
		return err
	}
	data, err := c.Encode(node)
	if err != nil {
		return err
	}
	if err := os.WriteFile(out, data, 0644); err != nil {
		return err
	}
	logger.Info("converted", "from", in, "to", out)
	return nil
}

func runDiff(cmd *cobra.Command, args []string) error {
	old, err := decodeFile(args[0], formatFrom)
	if err != nil {
		return err
	}
	new, err := decodeFile(args[1], formatFrom)
	if err != nil {
		return err
	}

	p := patch.Diff(old, new)
	if p.Empty() {
		fmt.Println("Documents are identical.")
		return nil
	}
	return printJSON(p.Value())
}

func printJSON(value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}
