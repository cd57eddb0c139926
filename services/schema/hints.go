// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package schema

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"gopkg.in/yaml.v3"
)

// Hints maps natural-language terms to schema vocabulary, for example
//
//	synonyms:
//	  medication: Drug
//	  illness: Disease
//	relationships:
//	  cures: TREATS
//
// The structure is free-form; it is rendered into the prompt verbatim.
type Hints map[string]any

// LoadHints reads an optional hints document (YAML or JSON).
//
// # Outputs
//
//   - Hints: nil when path is empty or the file does not exist.
//   - error: Non-nil when the file exists but cannot be read or parsed.
func LoadHints(path string) (Hints, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read schema hints %s: %w", path, err)
	}
	var hints Hints
	if err := yaml.Unmarshal(data, &hints); err != nil {
		return nil, fmt.Errorf("parse schema hints %s: %w", path, err)
	}
	if len(hints) == 0 {
		return nil, nil
	}
	return hints, nil
}
