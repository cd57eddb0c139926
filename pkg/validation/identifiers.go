// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package validation checks identifiers that come from users or config
// files before they reach a prompt, a log line or a URL.
package validation

import (
	"fmt"
	"regexp"
	"strings"
)

// Allows: letters, digits and underscores, starting with a letter.
// Max length: 64 characters.
var labelPattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]{0,63}$`)

// Allows: letters, digits, dots, underscores and hyphens, starting with a
// letter or digit. Covers UUIDs and hand-picked names like "alice".
var sessionIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._\-]{0,63}$`)

// ValidateLabel checks a node label or relationship type name.
//
// Labels are rendered into the system prompt verbatim, so anything that
// could break out of a bullet line (newlines, braces, backticks) is
// rejected.
//
// Example:
//
//	if err := validation.ValidateLabel("Protein"); err != nil {
//	    return err
//	}
func ValidateLabel(label string) error {
	if label == "" {
		return fmt.Errorf("label cannot be empty")
	}
	if !labelPattern.MatchString(label) {
		return fmt.Errorf("invalid label: %q (must be 1-64 letters, digits or underscores, starting with a letter)", label)
	}
	return nil
}

// ValidateLabels validates multiple labels.
// Returns an error listing all invalid labels if any fail validation.
func ValidateLabels(labels []string) error {
	var invalid []string
	for _, l := range labels {
		if err := ValidateLabel(l); err != nil {
			invalid = append(invalid, fmt.Sprintf("%q", l))
		}
	}
	if len(invalid) > 0 {
		return fmt.Errorf("invalid labels: %s", strings.Join(invalid, ", "))
	}
	return nil
}

// ValidateSessionID checks a conversation id.
func ValidateSessionID(id string) error {
	if id == "" {
		return fmt.Errorf("session id cannot be empty")
	}
	if !sessionIDPattern.MatchString(id) {
		return fmt.Errorf("invalid session id: %q (must be 1-64 letters, digits, dots, underscores or hyphens)", id)
	}
	return nil
}
