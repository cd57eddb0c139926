// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package text2cypher

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrBackendRequest matches every BackendRequestError.
	ErrBackendRequest = errors.New("backend request failed")

	// ErrOutputContract matches every ContractViolationError.
	ErrOutputContract = errors.New("output contract violation")

	// ErrEmptyUtterance is returned by Respond for blank input.
	ErrEmptyUtterance = errors.New("utterance is empty")

	// ErrSessionLimit is returned by OpenSession when the generator already
	// holds its maximum number of sessions.
	ErrSessionLimit = errors.New("session limit reached")
)

// BackendRequestError reports a generation call that failed, timed out or
// produced an unusable reply. The turn is not recorded and not retried.
type BackendRequestError struct {
	Provider string
	Reason   string
	Wrapped  error
}

func (e *BackendRequestError) Error() string {
	if e.Wrapped != nil {
		return fmt.Sprintf("backend %s: %s: %v", e.Provider, e.Reason, e.Wrapped)
	}
	return fmt.Sprintf("backend %s: %s", e.Provider, e.Reason)
}

func (e *BackendRequestError) Unwrap() error { return e.Wrapped }

func (e *BackendRequestError) Is(target error) bool { return target == ErrBackendRequest }

// Timeout reports whether the turn was aborted by its deadline.
func (e *BackendRequestError) Timeout() bool {
	return errors.Is(e.Wrapped, context.DeadlineExceeded)
}

// Rule identifies one of the query rules a reply can break.
type Rule string

const (
	RuleSchema          Rule = "schema"
	RuleTraversal       Rule = "traversal"
	RuleUndirected      Rule = "undirected"
	RuleRelationshipVar Rule = "relationship_variable"
	RuleReturn          Rule = "return_projection"
	RuleNodeFilter      Rule = "node_filter_only"
	RuleCaseInsensitive Rule = "case_insensitive"
	RuleInlineList      Rule = "inline_list"
	RulePathQuantifier  Rule = "path_quantifier"
	RuleReadOnly        Rule = "read_only"
	RuleLimit           Rule = "limit"
	RuleBareQuery       Rule = "bare_query"
)

// Violation is one rule broken by a generated query.
type Violation struct {
	Rule   Rule   `json:"rule"`
	Detail string `json:"detail"`
}

func (v Violation) String() string {
	return fmt.Sprintf("%s: %s", v.Rule, v.Detail)
}

// ContractViolationError is returned in strict mode when a reply breaks
// one or more rules.
type ContractViolationError struct {
	Query      string
	Violations []Violation
}

func (e *ContractViolationError) Error() string {
	parts := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		parts = append(parts, v.String())
	}
	return fmt.Sprintf("generated query violates %d rule(s): %s", len(e.Violations), strings.Join(parts, "; "))
}

func (e *ContractViolationError) Is(target error) bool { return target == ErrOutputContract }
