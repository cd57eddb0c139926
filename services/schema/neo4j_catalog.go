// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package schema

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/AleutianAI/text2cypher/pkg/config"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

const nodeTypePropertiesQuery = `
CALL db.schema.nodeTypeProperties()
YIELD nodeType, nodeLabels, propertyName, propertyTypes
WHERE any(label IN nodeLabels WHERE label IN $labels)
RETURN nodeLabels, propertyName, propertyTypes
ORDER BY nodeType, propertyName`

// relationshipEndpointsQuery reads declared directions from the APOC meta
// schema rather than sampling edges. Outgoing declarations sort first so
// the canonical side wins deduplication.
const relationshipEndpointsQuery = `
CALL apoc.meta.schema()
YIELD value
UNWIND keys(value) AS nodeLabel
WITH nodeLabel, value[nodeLabel] AS nodeMeta
WHERE nodeMeta.type = "node" AND nodeLabel IN $labels
UNWIND keys(nodeMeta.relationships) AS relType
WITH relType, nodeLabel, nodeMeta.relationships[relType] AS rmeta
UNWIND rmeta.labels AS peerLabel
WITH relType, nodeLabel, rmeta.direction AS direction, peerLabel
WHERE peerLabel IN $labels
RETURN DISTINCT relType, nodeLabel, direction, peerLabel
ORDER BY relType, CASE direction WHEN "out" THEN 0 ELSE 1 END, nodeLabel, peerLabel`

const relTypePropertiesQuery = `
CALL db.schema.relTypeProperties()
YIELD relType, propertyName, propertyTypes
RETURN relType, propertyName, propertyTypes
ORDER BY relType, propertyName`

// DefaultCatalogTimeout bounds each catalog query.
const DefaultCatalogTimeout = 10 * time.Second

// OpenNeo4j creates a driver for cfg and verifies connectivity.
//
// Basic auth is used when cfg carries a user and password, no auth
// otherwise. The caller owns the driver and must Close it.
func OpenNeo4j(ctx context.Context, cfg config.DatabaseConfig) (neo4j.DriverWithContext, error) {
	auth := neo4j.NoAuth()
	if cfg.HasAuth() {
		auth = neo4j.BasicAuth(cfg.User, cfg.Password, "")
	}
	driver, err := neo4j.NewDriverWithContext(cfg.URI, auth)
	if err != nil {
		return nil, fmt.Errorf("create neo4j driver for %s: %w", cfg.URI, err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, &CatalogQueryError{Query: "connectivity", Retryable: true, Wrapped: err}
	}
	return driver, nil
}

// Neo4jCatalog implements Catalog with read sessions on a Neo4j database.
//
// Every query opens its own session, closed before the method returns on
// every path, so methods are safe to call concurrently. Queries run as
// auto-commit transactions: the driver does not retry them.
type Neo4jCatalog struct {
	driver   neo4j.DriverWithContext
	database string
	timeout  time.Duration
}

// NewNeo4jCatalog binds a catalog to a driver and database. A timeout of
// zero means DefaultCatalogTimeout.
func NewNeo4jCatalog(driver neo4j.DriverWithContext, database string, timeout time.Duration) *Neo4jCatalog {
	if timeout <= 0 {
		timeout = DefaultCatalogTimeout
	}
	return &Neo4jCatalog{driver: driver, database: database, timeout: timeout}
}

func (c *Neo4jCatalog) NodeTypeProperties(ctx context.Context, labels []string) ([]NodePropertyRow, error) {
	records, err := c.run(ctx, "db.schema.nodeTypeProperties", nodeTypePropertiesQuery, map[string]any{"labels": labels})
	if err != nil {
		return nil, err
	}
	rows := make([]NodePropertyRow, 0, len(records))
	for _, rec := range records {
		rows = append(rows, NodePropertyRow{
			Labels:   stringList(recordValue(rec, "nodeLabels")),
			Property: stringValue(recordValue(rec, "propertyName")),
			Types:    stringList(recordValue(rec, "propertyTypes")),
		})
	}
	return rows, nil
}

func (c *Neo4jCatalog) RelationshipEndpoints(ctx context.Context, labels []string) ([]RelationshipRow, error) {
	records, err := c.run(ctx, "apoc.meta.schema", relationshipEndpointsQuery, map[string]any{"labels": labels})
	if err != nil {
		return nil, err
	}
	rows := make([]RelationshipRow, 0, len(records))
	for _, rec := range records {
		rows = append(rows, RelationshipRow{
			Type:      stringValue(recordValue(rec, "relType")),
			Label:     stringValue(recordValue(rec, "nodeLabel")),
			Direction: stringValue(recordValue(rec, "direction")),
			Peer:      stringValue(recordValue(rec, "peerLabel")),
		})
	}
	return rows, nil
}

func (c *Neo4jCatalog) RelationshipProperties(ctx context.Context) ([]RelationshipPropertyRow, error) {
	records, err := c.run(ctx, "db.schema.relTypeProperties", relTypePropertiesQuery, nil)
	if err != nil {
		return nil, err
	}
	rows := make([]RelationshipPropertyRow, 0, len(records))
	for _, rec := range records {
		rows = append(rows, RelationshipPropertyRow{
			Type:     trimTypeName(stringValue(recordValue(rec, "relType"))),
			Property: stringValue(recordValue(rec, "propertyName")),
			Types:    stringList(recordValue(rec, "propertyTypes")),
		})
	}
	return rows, nil
}

// run executes one auto-commit read query in a dedicated session.
func (c *Neo4jCatalog) run(ctx context.Context, name, query string, params map[string]any) ([]*neo4j.Record, error) {
	session := c.driver.NewSession(ctx, neo4j.SessionConfig{
		DatabaseName: c.database,
		AccessMode:   neo4j.AccessModeRead,
	})
	defer session.Close(ctx)

	result, err := session.Run(ctx, query, params, neo4j.WithTxTimeout(c.timeout))
	if err != nil {
		return nil, newCatalogError(name, err)
	}
	records, err := result.Collect(ctx)
	if err != nil {
		return nil, newCatalogError(name, err)
	}
	return records, nil
}

func newCatalogError(name string, err error) *CatalogQueryError {
	return &CatalogQueryError{
		Query:     name,
		Retryable: isTimeout(err) || neo4j.IsRetryable(err),
		Wrapped:   err,
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var neoErr *neo4j.Neo4jError
	if errors.As(err, &neoErr) {
		return strings.Contains(neoErr.Code, "TransactionTimedOut")
	}
	return false
}

func recordValue(rec *neo4j.Record, key string) any {
	v, _ := rec.Get(key)
	return v
}

func stringValue(v any) string {
	s, _ := v.(string)
	return s
}

func stringList(v any) []string {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// trimTypeName turns the catalog's ":`TREATS`" form into "TREATS".
func trimTypeName(s string) string {
	return strings.Trim(s, ":`")
}
