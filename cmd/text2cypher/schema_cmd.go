// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"github.com/AleutianAI/text2cypher/services/schema"
	"github.com/AleutianAI/text2cypher/services/schemaprompt"
	"github.com/spf13/cobra"
)

func (a *app) schemaCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Inspect the persisted schema",
	}

	var withProperties bool
	show := &cobra.Command{
		Use:   "show",
		Short: "Print the schema as the model sees it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := schema.NewStore(a.settings.SchemaPath).Load()
			if err != nil {
				return err
			}
			hints, err := schema.LoadHints(a.settings.HintsPath)
			if err != nil {
				return err
			}
			text := schemaprompt.Unescape(schemaprompt.Compile(s, hints,
				schemaprompt.Options{IncludeProperties: withProperties}))
			a.printer(a.stdout).Box(a.settings.SchemaPath, text)
			return nil
		},
	}
	show.Flags().BoolVar(&withProperties, "properties", true, "include node properties")

	cmd.AddCommand(show)
	return cmd
}
