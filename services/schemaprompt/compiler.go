// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package schemaprompt renders a NormalizedSchema as prompt text.
//
// # Output Layout
//
//	Allowed node labels:
//	- Disease
//	- Drug
//
//	Allowed relationship types:
//	- TREATS (Drug -> Disease)
//
//	Node properties:
//	- Disease: name (String)
//	- Drug: id (String), name (String)
//
//	Schema hints:
//	synonyms:
//	  medication: Drug
//
// The output is safe to embed in a Go text/template based prompt: template
// delimiters in schema names or hints are escaped.
package schemaprompt

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/AleutianAI/text2cypher/services/schema"
	"gopkg.in/yaml.v3"
)

// Options controls the optional sections of the compiled text.
type Options struct {
	// IncludeProperties adds the "Node properties:" section.
	IncludeProperties bool
}

// templateEscaper neutralizes text/template delimiters in a single pass, so
// an escaped "{{" is never rescanned.
var templateEscaper = strings.NewReplacer(
	"{{", `{{"{{"}}`,
	"}}", `{{"}}"}}`,
)

var templateUnescaper = strings.NewReplacer(
	`{{"{{"}}`, "{{",
	`{{"}}"}}`, "}}",
)

// Compile renders s, plus hints when present, as prompt text.
//
// # Description
//
// Labels and relationship types are listed alphabetically, one bullet
// each. A relationship is rendered with its canonical endpoints as
// "TYPE (FROM -> TO)". The hints section is omitted entirely when hints is
// empty.
//
// Compile is pure: equal inputs always produce equal text.
//
// # Inputs
//
//   - s: The schema. Must not be nil.
//   - hints: Optional disambiguation mapping. May be nil.
//   - opts: Section toggles.
//
// # Outputs
//
//   - string: Template-escaped prompt text without a trailing newline.
func Compile(s *schema.NormalizedSchema, hints schema.Hints, opts Options) string {
	var b strings.Builder

	b.WriteString("Allowed node labels:\n")
	for _, label := range s.Labels() {
		fmt.Fprintf(&b, "- %s\n", label)
	}

	b.WriteString("\nAllowed relationship types:\n")
	for _, name := range s.RelationshipNames() {
		rel := s.RelationshipTypes[name]
		fmt.Fprintf(&b, "- %s (%s -> %s)\n", name, rel.Start(), rel.End())
	}

	if opts.IncludeProperties {
		writeProperties(&b, s)
	}

	if text := renderHints(hints); text != "" {
		b.WriteString("\nSchema hints:\n")
		b.WriteString(text)
	}

	return Escape(strings.TrimRight(b.String(), "\n"))
}

// Escape makes text literal under Go text/template.
func Escape(text string) string {
	return templateEscaper.Replace(text)
}

// Unescape reverses Escape, for showing compiled text outside a template.
func Unescape(text string) string {
	return templateUnescaper.Replace(text)
}

func writeProperties(b *strings.Builder, s *schema.NormalizedSchema) {
	var lines []string
	for _, label := range s.Labels() {
		names := s.Properties(label)
		if len(names) == 0 {
			continue
		}
		parts := make([]string, 0, len(names))
		for _, name := range names {
			parts = append(parts, fmt.Sprintf("%s (%s)", name, s.NodeTypes[label][name]))
		}
		lines = append(lines, fmt.Sprintf("- %s: %s", label, strings.Join(parts, ", ")))
	}
	if len(lines) == 0 {
		return
	}
	b.WriteString("\nNode properties:\n")
	for _, line := range lines {
		b.WriteString(line)
		b.WriteByte('\n')
	}
}

// renderHints encodes hints as YAML. yaml.v3 sorts map keys, which keeps
// the output deterministic.
func renderHints(hints schema.Hints) string {
	if len(hints) == 0 {
		return ""
	}
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(map[string]any(hints)); err != nil {
		return fmt.Sprintf("%v\n", map[string]any(hints))
	}
	if err := enc.Close(); err != nil {
		return fmt.Sprintf("%v\n", map[string]any(hints))
	}
	return buf.String()
}
