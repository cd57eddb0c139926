// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package schema extracts, normalizes, persists and caches the graph schema
// that constrains query generation.
//
// # Document Format
//
// The normalized schema is serialized as indented JSON with keys sorted at
// every level, so re-extracting an unchanged database reproduces the same
// bytes:
//
//	{
//	  "NodeTypes": {
//	    "Disease": {"name": "String"},
//	    "Drug": {"id": "String", "name": "String"}
//	  },
//	  "RelationshipTypes": {
//	    "TREATS": {"_endpoints": ["Drug", "Disease"]}
//	  }
//	}
package schema

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
)

// TypeTag is the simplified type of a property.
//
// Catalog types outside the known set are passed through verbatim.
type TypeTag string

const (
	TypeString      TypeTag = "String"
	TypeStringArray TypeTag = "StringArray"
	TypeBoolean     TypeTag = "Boolean"
	TypeDouble      TypeTag = "Double"
	TypeInteger     TypeTag = "Integer"
	TypeDate        TypeTag = "Date"
	TypeDateTime    TypeTag = "DateTime"
	TypeUnknown     TypeTag = "Unknown"
)

var catalogTypes = map[string]TypeTag{
	"String":      TypeString,
	"StringArray": TypeStringArray,
	"Boolean":     TypeBoolean,
	"Float":       TypeDouble,
	"Double":      TypeDouble,
	"Integer":     TypeInteger,
	"Long":        TypeInteger,
	"Date":        TypeDate,
	"DateTime":    TypeDateTime,
}

// MapType collapses a catalog type list to its primary type.
//
// Multi-typed properties keep only their first reported type. An empty
// list maps to TypeUnknown.
func MapType(types []string) TypeTag {
	if len(types) == 0 || types[0] == "" {
		return TypeUnknown
	}
	if tag, ok := catalogTypes[types[0]]; ok {
		return tag
	}
	return TypeTag(types[0])
}

// EndpointsKey is the reserved JSON key holding a relationship's endpoints.
const EndpointsKey = "_endpoints"

// RelationshipType is the record kept per relationship type.
//
// It serializes as a flat JSON object: the "_endpoints" pair plus one entry
// per relationship property.
type RelationshipType struct {
	// Endpoints is the canonical [start, end] label pair.
	Endpoints [2]string

	// Properties maps property name to type tag. Nil when the relationship
	// type has no properties.
	Properties map[string]TypeTag
}

// Start is the schema-declared source label.
func (r RelationshipType) Start() string { return r.Endpoints[0] }

// End is the schema-declared target label.
func (r RelationshipType) End() string { return r.Endpoints[1] }

func (r RelationshipType) MarshalJSON() ([]byte, error) {
	flat := make(map[string]any, len(r.Properties)+1)
	for name, tag := range r.Properties {
		flat[name] = tag
	}
	flat[EndpointsKey] = r.Endpoints
	return json.Marshal(flat)
}

func (r *RelationshipType) UnmarshalJSON(data []byte) error {
	var flat map[string]json.RawMessage
	if err := json.Unmarshal(data, &flat); err != nil {
		return err
	}
	raw, ok := flat[EndpointsKey]
	if !ok {
		return fmt.Errorf("relationship record has no %s", EndpointsKey)
	}
	var endpoints []string
	if err := json.Unmarshal(raw, &endpoints); err != nil {
		return fmt.Errorf("decode %s: %w", EndpointsKey, err)
	}
	if len(endpoints) != 2 {
		return fmt.Errorf("%s must hold exactly 2 labels, got %d", EndpointsKey, len(endpoints))
	}
	r.Endpoints = [2]string{endpoints[0], endpoints[1]}
	r.Properties = nil

	for key, value := range flat {
		if key == EndpointsKey {
			continue
		}
		var tag TypeTag
		if err := json.Unmarshal(value, &tag); err != nil {
			return fmt.Errorf("decode relationship property %q: %w", key, err)
		}
		if r.Properties == nil {
			r.Properties = make(map[string]TypeTag)
		}
		r.Properties[key] = tag
	}
	return nil
}

// NormalizedSchema is the extracted schema document.
type NormalizedSchema struct {
	// NodeTypes maps label to property name to type tag. A label the catalog
	// reported without properties maps to an empty property map.
	NodeTypes map[string]map[string]TypeTag `json:"NodeTypes"`

	// RelationshipTypes maps relationship type to its record.
	RelationshipTypes map[string]RelationshipType `json:"RelationshipTypes"`
}

// NewNormalizedSchema returns an empty schema with both maps allocated.
func NewNormalizedSchema() *NormalizedSchema {
	return &NormalizedSchema{
		NodeTypes:         make(map[string]map[string]TypeTag),
		RelationshipTypes: make(map[string]RelationshipType),
	}
}

// Labels returns the node labels in alphabetical order.
func (s *NormalizedSchema) Labels() []string {
	return sortedKeys(s.NodeTypes)
}

// RelationshipNames returns the relationship types in alphabetical order.
func (s *NormalizedSchema) RelationshipNames() []string {
	return sortedKeys(s.RelationshipTypes)
}

// Properties returns the property names of label in alphabetical order.
// Unknown labels have no properties.
func (s *NormalizedSchema) Properties(label string) []string {
	return sortedKeys(s.NodeTypes[label])
}

// HasLabel reports whether label is a known node label.
func (s *NormalizedSchema) HasLabel(label string) bool {
	_, ok := s.NodeTypes[label]
	return ok
}

// HasRelationship reports whether name is a known relationship type.
func (s *NormalizedSchema) HasRelationship(name string) bool {
	_, ok := s.RelationshipTypes[name]
	return ok
}

// HasProperty reports whether label declares property.
func (s *NormalizedSchema) HasProperty(label, property string) bool {
	_, ok := s.NodeTypes[label][property]
	return ok
}

// ErrDanglingEndpoint is wrapped by Validate for each endpoint label that is
// neither a known node label nor allow-listed.
var ErrDanglingEndpoint = errors.New("relationship endpoint references unknown label")

// Validate checks that every relationship endpoint names a label present in
// NodeTypes or in allowed (allow-listed labels may be propertyless and so
// absent from NodeTypes).
//
// # Outputs
//
//   - error: nil when consistent, otherwise an errors.Join of one
//     ErrDanglingEndpoint-wrapping error per offending endpoint, in
//     relationship name order.
func (s *NormalizedSchema) Validate(allowed []string) error {
	allow := make(map[string]struct{}, len(allowed))
	for _, l := range allowed {
		allow[l] = struct{}{}
	}
	var errs []error
	for _, name := range s.RelationshipNames() {
		for _, label := range s.RelationshipTypes[name].Endpoints {
			if s.HasLabel(label) {
				continue
			}
			if _, ok := allow[label]; ok {
				continue
			}
			errs = append(errs, fmt.Errorf("%w: %s references %q", ErrDanglingEndpoint, name, label))
		}
	}
	return errors.Join(errs...)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
