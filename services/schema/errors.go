// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package schema

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrSchemaUnavailable matches every SchemaUnavailableError.
	ErrSchemaUnavailable = errors.New("schema unavailable")

	// ErrCatalogQuery matches every CatalogQueryError.
	ErrCatalogQuery = errors.New("catalog query failed")
)

// SchemaUnavailableError reports a persisted schema document that is
// missing, unreadable or malformed.
type SchemaUnavailableError struct {
	Path    string
	Reason  string
	Wrapped error
}

func (e *SchemaUnavailableError) Error() string {
	if e.Wrapped != nil {
		return fmt.Sprintf("schema unavailable at %s: %s: %v", e.Path, e.Reason, e.Wrapped)
	}
	return fmt.Sprintf("schema unavailable at %s: %s", e.Path, e.Reason)
}

func (e *SchemaUnavailableError) Unwrap() error { return e.Wrapped }

func (e *SchemaUnavailableError) Is(target error) bool { return target == ErrSchemaUnavailable }

// CatalogQueryError reports a failed or timed-out metadata query.
//
// Extraction never retries. Retryable tells the caller whether trying again
// is reasonable (timeouts and transient driver errors).
type CatalogQueryError struct {
	// Query names the catalog procedure, e.g. "db.schema.nodeTypeProperties".
	Query string

	Retryable bool
	Wrapped   error
}

func (e *CatalogQueryError) Error() string {
	return fmt.Sprintf("catalog query %s failed: %v", e.Query, e.Wrapped)
}

func (e *CatalogQueryError) Unwrap() error { return e.Wrapped }

func (e *CatalogQueryError) Is(target error) bool { return target == ErrCatalogQuery }

// Timeout reports whether the query failed because its deadline passed.
func (e *CatalogQueryError) Timeout() bool {
	return errors.Is(e.Wrapped, context.DeadlineExceeded) || isTimeout(e.Wrapped)
}
