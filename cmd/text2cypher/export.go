// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"fmt"

	"github.com/AleutianAI/text2cypher/pkg/config"
	"github.com/AleutianAI/text2cypher/services/schema"
	"github.com/spf13/cobra"
)

func (a *app) exportSchemaCmd() *cobra.Command {
	var (
		outputDir         string
		withRelProperties bool
	)
	cmd := &cobra.Command{
		Use:   "export-schema",
		Short: "Extract the graph schema from Neo4j and write it as JSON",
		Long: "Connects to DB_URL / DB_NAME (with DB_USER and DB_PASSWORD when set),\n" +
			"reads the node and relationship catalog for the allowed labels and writes\n" +
			"neo4j_schema.json into --output_dir.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := a.exportSchema(cmd.Context(), expandHome(outputDir), withRelProperties)
			if err != nil {
				return err
			}
			fmt.Fprintln(a.stdout, path)
			return nil
		},
	}
	cmd.Flags().StringVar(&outputDir, "output_dir", "", "directory for neo4j_schema.json")
	cmd.Flags().BoolVar(&withRelProperties, "relationship-properties", false, "also extract relationship properties")
	_ = cmd.MarkFlagRequired("output_dir")
	return cmd
}

// exportSchema runs extraction and persists the result. Configuration is
// checked before any connection is attempted.
func (a *app) exportSchema(ctx context.Context, dir string, withRelProperties bool) (string, error) {
	db, err := config.LoadDatabase(a.getenv)
	if err != nil {
		return "", err
	}

	driver, err := schema.OpenNeo4j(ctx, db)
	if err != nil {
		return "", err
	}
	defer func() {
		if cerr := driver.Close(context.WithoutCancel(ctx)); cerr != nil {
			a.log().Warn("close neo4j driver", "error", cerr)
		}
	}()

	catalog := schema.NewNeo4jCatalog(driver, db.Database, a.settings.CatalogTimeout)
	extractor := schema.NewExtractor(catalog, a.settings.AllowedLabels,
		schema.WithLogger(a.log()),
		schema.WithRelationshipProperties(withRelProperties))

	stop := a.printer(a.stderr).Spin("reading schema from " + db.URI)
	s, err := extractor.Extract(ctx)
	stop()
	if err != nil {
		return "", err
	}
	path, err := schema.WriteFile(dir, s)
	if err != nil {
		return "", err
	}
	a.log().Info("schema exported", "path", path,
		"labels", len(s.NodeTypes), "relationship_types", len(s.RelationshipTypes))
	return path, nil
}
