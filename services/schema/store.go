// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package schema

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// FileName is the fixed name of the persisted schema document.
const FileName = "neo4j_schema.json"

// Marshal renders s as the canonical document: two-space indent, sorted
// keys, no HTML escaping, trailing newline.
func Marshal(s *NormalizedSchema) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(s); err != nil {
		return nil, fmt.Errorf("encode schema: %w", err)
	}
	return buf.Bytes(), nil
}

// WriteFile writes s to dir/FileName, creating dir as needed.
//
// The document is written to a temporary file in dir and renamed into
// place, so readers never observe a half-written schema.
//
// # Outputs
//
//   - string: The absolute path written.
//   - error: Non-nil when encoding or any filesystem step fails.
func WriteFile(dir string, s *NormalizedSchema) (string, error) {
	data, err := Marshal(s)
	if err != nil {
		return "", err
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolve output dir %s: %w", dir, err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return "", fmt.Errorf("create output dir %s: %w", abs, err)
	}

	tmp, err := os.CreateTemp(abs, ".neo4j_schema-*.json")
	if err != nil {
		return "", fmt.Errorf("create temp schema file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return "", fmt.Errorf("write schema: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close schema: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return "", fmt.Errorf("chmod schema: %w", err)
	}

	path := filepath.Join(abs, FileName)
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("move schema into place: %w", err)
	}
	return path, nil
}

// Store loads the persisted schema once and caches it for the process
// lifetime.
//
// # Description
//
// The first successful Load reads and parses the document; every later
// call returns the same *NormalizedSchema without touching the file.
// Concurrent first callers are serialized, so the document is parsed at
// most once. A failed load is not cached and the next call tries again.
//
// There is no invalidation: picking up a re-extracted schema needs a new
// Store (in practice, a restart).
//
// # Thread Safety
//
// Safe for concurrent use. Callers must treat the returned schema as
// read-only since it is shared.
type Store struct {
	path string

	mu     sync.Mutex
	cached *NormalizedSchema
}

// NewStore creates a Store reading path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the document path.
func (s *Store) Path() string {
	return s.path
}

// Load returns the cached schema, reading it on first use.
//
// # Outputs
//
//   - *NormalizedSchema: The shared schema.
//   - error: *SchemaUnavailableError when the document is missing,
//     unreadable, malformed or has no node types. A partial or empty schema
//     is never returned.
func (s *Store) Load() (*NormalizedSchema, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cached != nil {
		return s.cached, nil
	}
	loaded, err := ReadFile(s.path)
	if err != nil {
		return nil, err
	}
	s.cached = loaded
	return loaded, nil
}

// ReadFile parses a schema document without caching.
func ReadFile(path string) (*NormalizedSchema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		reason := "cannot read document"
		if errors.Is(err, fs.ErrNotExist) {
			reason = "document does not exist"
		}
		return nil, &SchemaUnavailableError{Path: path, Reason: reason, Wrapped: err}
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	var parsed NormalizedSchema
	if err := dec.Decode(&parsed); err != nil {
		return nil, &SchemaUnavailableError{Path: path, Reason: "malformed document", Wrapped: err}
	}
	if len(parsed.NodeTypes) == 0 {
		return nil, &SchemaUnavailableError{Path: path, Reason: "document declares no node types"}
	}
	if parsed.RelationshipTypes == nil {
		parsed.RelationshipTypes = make(map[string]RelationshipType)
	}
	return &parsed, nil
}
