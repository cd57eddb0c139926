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
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

// =============================================================================
// Catalog Interface
// =============================================================================

// NodePropertyRow is one row of the node property catalog.
type NodePropertyRow struct {
	// Labels is the label combination the row describes.
	Labels []string

	// Property is empty when the catalog reports the label combination
	// without any property.
	Property string

	// Types is the catalog's type list for the property.
	Types []string
}

// RelationshipRow is one relationship declaration seen from a node label.
type RelationshipRow struct {
	Type string

	// Label is the node label the declaration belongs to.
	Label string

	// Direction is "out" when Label is the outgoing side.
	Direction string

	// Peer is the label on the other side.
	Peer string
}

// RelationshipPropertyRow is one row of the relationship property catalog.
type RelationshipPropertyRow struct {
	Type     string
	Property string
	Types    []string
}

// Catalog reads schema metadata from a graph database.
//
// # Description
//
// Catalog hides the driver so normalization can be tested without a
// database. Neo4jCatalog is the production implementation.
//
// Implementations must return rows in a stable order; Extractor keeps the
// first row when several describe the same relationship type.
//
// # Assumptions
//
//   - Methods may be called concurrently.
//   - Failures are returned as *CatalogQueryError when possible.
type Catalog interface {
	NodeTypeProperties(ctx context.Context, labels []string) ([]NodePropertyRow, error)
	RelationshipEndpoints(ctx context.Context, labels []string) ([]RelationshipRow, error)
	RelationshipProperties(ctx context.Context) ([]RelationshipPropertyRow, error)
}

// =============================================================================
// Extractor
// =============================================================================

// Extractor turns catalog rows into a NormalizedSchema restricted to an
// allow-list of labels.
type Extractor struct {
	catalog      Catalog
	allowed      []string
	allowSet     map[string]struct{}
	logger       *slog.Logger
	withRelProps bool
}

// ExtractorOption configures an Extractor.
type ExtractorOption func(*Extractor)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(logger *slog.Logger) ExtractorOption {
	return func(e *Extractor) { e.logger = logger }
}

// WithRelationshipProperties toggles relationship property extraction.
// Default: enabled.
func WithRelationshipProperties(enabled bool) ExtractorOption {
	return func(e *Extractor) { e.withRelProps = enabled }
}

// NewExtractor creates an Extractor over catalog for the allowed labels.
func NewExtractor(catalog Catalog, allowedLabels []string, opts ...ExtractorOption) *Extractor {
	e := &Extractor{
		catalog:      catalog,
		allowed:      append([]string(nil), allowedLabels...),
		allowSet:     make(map[string]struct{}, len(allowedLabels)),
		logger:       slog.Default(),
		withRelProps: true,
	}
	for _, l := range allowedLabels {
		e.allowSet[l] = struct{}{}
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract queries the catalog and builds the normalized schema.
//
// # Description
//
// The node, relationship and relationship-property catalogs are read
// concurrently. Node properties keep their primary type. Relationship
// endpoints follow the catalog's declared direction: when a row marks its
// label as the outgoing side that label is the start, otherwise the peer
// is. Each relationship type keeps only the first endpoint pair seen.
//
// # Outputs
//
//   - *NormalizedSchema: Fully populated; both maps are non-nil.
//   - error: *CatalogQueryError when any catalog query fails. Nothing is
//     retried.
func (e *Extractor) Extract(ctx context.Context) (*NormalizedSchema, error) {
	ctx, span := startExtractSpan(ctx, len(e.allowed))
	defer span.End()
	start := time.Now()

	var (
		nodeRows []NodePropertyRow
		relRows  []RelationshipRow
		propRows []RelationshipPropertyRow
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		rows, err := e.catalog.NodeTypeProperties(gctx, e.allowed)
		nodeRows = rows
		return asCatalogError("db.schema.nodeTypeProperties", err)
	})
	g.Go(func() error {
		rows, err := e.catalog.RelationshipEndpoints(gctx, e.allowed)
		relRows = rows
		return asCatalogError("apoc.meta.schema", err)
	})
	if e.withRelProps {
		g.Go(func() error {
			rows, err := e.catalog.RelationshipProperties(gctx)
			propRows = rows
			return asCatalogError("db.schema.relTypeProperties", err)
		})
	}
	if err := g.Wait(); err != nil {
		setExtractSpanResult(span, nil, err)
		recordExtractMetrics(ctx, time.Since(start), false)
		e.logger.Error("schema extraction failed", "error", err)
		return nil, err
	}

	s := NewNormalizedSchema()
	e.addNodes(s, nodeRows)
	e.addRelationships(s, relRows)
	addRelationshipProperties(s, propRows)

	setExtractSpanResult(span, s, nil)
	recordExtractMetrics(ctx, time.Since(start), true)
	e.logger.Info("schema extracted",
		"labels", len(s.NodeTypes),
		"relationship_types", len(s.RelationshipTypes),
		"duration", time.Since(start))
	return s, nil
}

func (e *Extractor) addNodes(s *NormalizedSchema, rows []NodePropertyRow) {
	for _, row := range rows {
		for _, label := range row.Labels {
			if !e.isAllowed(label) {
				continue
			}
			props, ok := s.NodeTypes[label]
			if !ok {
				props = make(map[string]TypeTag)
				s.NodeTypes[label] = props
			}
			if row.Property == "" {
				continue
			}
			if _, seen := props[row.Property]; seen {
				continue
			}
			props[row.Property] = MapType(row.Types)
		}
	}
}

func (e *Extractor) addRelationships(s *NormalizedSchema, rows []RelationshipRow) {
	for _, row := range rows {
		if row.Type == "" || !e.isAllowed(row.Label) || !e.isAllowed(row.Peer) {
			continue
		}
		if _, seen := s.RelationshipTypes[row.Type]; seen {
			e.logger.Debug("dropping additional endpoint pair",
				"relationship_type", row.Type, "label", row.Label, "peer", row.Peer)
			continue
		}
		s.RelationshipTypes[row.Type] = RelationshipType{Endpoints: resolveEndpoints(row)}
	}
}

func addRelationshipProperties(s *NormalizedSchema, rows []RelationshipPropertyRow) {
	for _, row := range rows {
		rel, ok := s.RelationshipTypes[row.Type]
		if !ok || row.Property == "" || row.Property == EndpointsKey {
			continue
		}
		if rel.Properties == nil {
			rel.Properties = make(map[string]TypeTag)
		}
		if _, seen := rel.Properties[row.Property]; seen {
			continue
		}
		rel.Properties[row.Property] = MapType(row.Types)
		s.RelationshipTypes[row.Type] = rel
	}
}

// resolveEndpoints orders a declaration as [start, end].
func resolveEndpoints(row RelationshipRow) [2]string {
	if row.Direction == "out" {
		return [2]string{row.Label, row.Peer}
	}
	return [2]string{row.Peer, row.Label}
}

func (e *Extractor) isAllowed(label string) bool {
	_, ok := e.allowSet[label]
	return ok
}

func asCatalogError(query string, err error) error {
	if err == nil {
		return nil
	}
	var cqe *CatalogQueryError
	if errors.As(err, &cqe) {
		return err
	}
	return &CatalogQueryError{
		Query:     query,
		Retryable: errors.Is(err, context.DeadlineExceeded),
		Wrapped:   err,
	}
}
