// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"strings"

	"github.com/AleutianAI/text2cypher/services/text2cypher"
	"github.com/spf13/cobra"
)

func (a *app) askCmd() *cobra.Command {
	var provider string
	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Generate one Cypher query and exit",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			gen, err := a.newGenerator(provider, nil)
			if err != nil {
				return err
			}
			errOut := a.printer(a.stderr)
			stop := errOut.Spin("generating query")
			reply, err := gen.Respond(cmd.Context(), text2cypher.DefaultSessionID, strings.Join(args, " "))
			stop()
			if err != nil {
				return err
			}
			a.printer(a.stdout).Query(reply.Query)
			for _, v := range reply.Violations {
				errOut.Warning(v.String())
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&provider, "provider", "llama", "model provider")
	return cmd
}
