// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package schemaprompt

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"text/template"

	"github.com/AleutianAI/text2cypher/services/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func drugDiseaseSchema() *schema.NormalizedSchema {
	s := schema.NewNormalizedSchema()
	s.NodeTypes["Drug"] = map[string]schema.TypeTag{"name": schema.TypeString, "id": schema.TypeString}
	s.NodeTypes["Disease"] = map[string]schema.TypeTag{"name": schema.TypeString}
	s.RelationshipTypes["TREATS"] = schema.RelationshipType{Endpoints: [2]string{"Drug", "Disease"}}
	return s
}

func TestCompile_DrugDisease(t *testing.T) {
	text := Compile(drugDiseaseSchema(), nil, Options{})

	want := "Allowed node labels:\n" +
		"- Disease\n" +
		"- Drug\n" +
		"\n" +
		"Allowed relationship types:\n" +
		"- TREATS (Drug -> Disease)"
	assert.Equal(t, want, text)

	assert.Contains(t, text, "- Drug\n")
	assert.Contains(t, text, "- Disease\n")
	assert.Equal(t, 1, strings.Count(text, "TREATS ("))
	assert.NotContains(t, text, "Schema hints", "no empty hints section")
	assert.NotContains(t, text, "Node properties")
}

func TestCompile_Pure(t *testing.T) {
	s := drugDiseaseSchema()
	hints := schema.Hints{"synonyms": map[string]any{"medication": "Drug", "illness": "Disease"}}
	opts := Options{IncludeProperties: true}

	first := Compile(s, hints, opts)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, Compile(s, hints, opts))
	}
}

func TestCompile_Properties(t *testing.T) {
	s := drugDiseaseSchema()
	s.NodeTypes["Tissue"] = map[string]schema.TypeTag{}

	text := Compile(s, nil, Options{IncludeProperties: true})
	assert.Contains(t, text, "Node properties:\n- Disease: name (String)\n- Drug: id (String), name (String)")
	assert.NotContains(t, text, "- Tissue:", "propertyless labels have no property line")
	assert.Contains(t, text, "- Tissue\n")
}

func TestCompile_Hints(t *testing.T) {
	hints := schema.Hints{
		"synonyms":      map[string]any{"medication": "Drug", "illness": "Disease"},
		"relationships": map[string]any{"cures": "TREATS"},
	}
	text := Compile(drugDiseaseSchema(), hints, Options{})

	idx := strings.Index(text, "\n\nSchema hints:\n")
	require.NotEqual(t, -1, idx)
	section := text[idx:]
	assert.Contains(t, section, "relationships:\n  cures: TREATS")
	assert.Contains(t, section, "synonyms:\n  illness: Disease\n  medication: Drug")
	assert.Less(t, strings.Index(section, "relationships:"), strings.Index(section, "synonyms:"))

	assert.NotContains(t, Compile(drugDiseaseSchema(), schema.Hints{}, Options{}), "Schema hints")
}

// unencodable fails when marshalled to YAML.
type unencodable struct{}

func (unencodable) MarshalYAML() (any, error) { return nil, errors.New("no yaml form") }

func TestRenderHints_FallsBackOnEncodeError(t *testing.T) {
	out := renderHints(schema.Hints{"synonyms": unencodable{}})

	assert.True(t, strings.HasPrefix(out, "map[synonyms:"), out)
	assert.True(t, strings.HasSuffix(out, "\n"))
}

func TestRenderHints_Empty(t *testing.T) {
	assert.Empty(t, renderHints(nil))
}

func TestCompile_EscapesTemplateDelimiters(t *testing.T) {
	s := drugDiseaseSchema()
	s.NodeTypes["Drug"]["{{.injected}}"] = schema.TypeString
	hints := schema.Hints{"note": "use }} and {{ literally"}

	text := Compile(s, hints, Options{IncludeProperties: true})

	tmpl, err := template.New("system").Parse(text)
	require.NoError(t, err)
	var out bytes.Buffer
	require.NoError(t, tmpl.Execute(&out, map[string]any{"injected": "BAD"}))

	rendered := out.String()
	assert.Contains(t, rendered, "{{.injected}} (String)")
	assert.Contains(t, rendered, "use }} and {{ literally")
	assert.NotContains(t, rendered, "BAD")
}

func TestEscape(t *testing.T) {
	assert.Equal(t, "plain", Escape("plain"))
	assert.Equal(t, `{{"{{"}}x{{"}}"}}`, Escape("{{x}}"))
}

func TestUnescape(t *testing.T) {
	for _, s := range []string{"plain", "{{x}}", "}} {{ }}{{", `{{"{{"}}`} {
		assert.Equal(t, s, Unescape(Escape(s)))
	}
}
