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
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/loom/document"
)

// runOpen keeps a session alive, re-reading on outside file changes, and
// streams the session's events to stdout until interrupted.
func runOpen(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry := document.NewRegistry(config, logger, nil)
	defer registry.CloseAll()

	doc, err := registry.Open(ctx, args[0])
	if err != nil {
		return err
	}

	sub := registry.Bus().Subscribe("documents:"+doc.ID+":*", 256)
	defer sub.Cancel()

	fmt.Printf("Opened %s (%s). Watching for changes; Ctrl-C to stop.\n", doc.Path, doc.ID)
	for {
		select {
		case <-ctx.Done():
			fmt.Println("\nClosing.")
			return nil
		case msg, ok := <-sub.C:
			if !ok {
				return nil
			}
			line := msg.Topic
			if msg.Data != nil {
				if data, err := json.Marshal(msg.Data); err == nil && len(data) <= 120 {
					line += " " + string(data)
				}
			}
			fmt.Println(line)
		}
	}
}
