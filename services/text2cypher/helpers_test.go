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
	"io"
	"log/slog"
	"sync"

	"github.com/AleutianAI/text2cypher/services/llm"
	"github.com/AleutianAI/text2cypher/services/schema"
)

// =============================================================================
// Test Helpers
// =============================================================================

const lungCancerQuery = `MATCH (p:Protein)-[r:IS_BIOMARKER_OF_DISEASE]-(d:Disease) WHERE toLower(d.name) = "lung cancer" RETURN p, r, d LIMIT 10`

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func biomedicalSchema() *schema.NormalizedSchema {
	s := schema.NewNormalizedSchema()
	s.NodeTypes["Protein"] = map[string]schema.TypeTag{"name": schema.TypeString, "id": schema.TypeString}
	s.NodeTypes["Disease"] = map[string]schema.TypeTag{"name": schema.TypeString}
	s.NodeTypes["Gene"] = map[string]schema.TypeTag{"name": schema.TypeString}
	s.NodeTypes["Transcript"] = map[string]schema.TypeTag{"id": schema.TypeString}
	s.NodeTypes["Drug"] = map[string]schema.TypeTag{"name": schema.TypeString}
	s.NodeTypes["Publication"] = map[string]schema.TypeTag{"title": schema.TypeString, "year": schema.TypeInteger}

	rel := func(start, end string) schema.RelationshipType {
		return schema.RelationshipType{Endpoints: [2]string{start, end}, Properties: map[string]schema.TypeTag{}}
	}
	s.RelationshipTypes["IS_BIOMARKER_OF_DISEASE"] = schema.RelationshipType{
		Endpoints:  [2]string{"Protein", "Disease"},
		Properties: map[string]schema.TypeTag{"score": schema.TypeDouble},
	}
	s.RelationshipTypes["TRANSCRIBED_INTO"] = rel("Gene", "Transcript")
	s.RelationshipTypes["TRANSLATED_INTO"] = rel("Transcript", "Protein")
	s.RelationshipTypes["INTERACTS_WITH"] = rel("Drug", "Protein")
	s.RelationshipTypes["MENTIONED_IN_PUBLICATION"] = rel("Disease", "Publication")
	return s
}

type staticSource struct {
	schema *schema.NormalizedSchema
	err    error
}

func (s staticSource) Load() (*schema.NormalizedSchema, error) {
	return s.schema, s.err
}

// fakeClient replays scripted replies and records every conversation it
// was sent. The last reply repeats once the script runs out.
type fakeClient struct {
	mu      sync.Mutex
	replies []string
	err     error
	block   bool
	calls   [][]llm.Message
}

func (f *fakeClient) Chat(ctx context.Context, msgs []llm.Message, _ llm.GenerationParams) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, append([]llm.Message(nil), msgs...))
	block, err := f.block, f.err
	f.mu.Unlock()

	if block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if err != nil {
		return "", err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.replies) == 0 {
		return "", errors.New("no scripted reply")
	}
	reply := f.replies[0]
	if len(f.replies) > 1 {
		f.replies = f.replies[1:]
	}
	return reply, nil
}

func (f *fakeClient) Model() string { return "fake-model" }

func (f *fakeClient) lastCall() []llm.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.calls) == 0 {
		return nil
	}
	return f.calls[len(f.calls)-1]
}

func (f *fakeClient) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func testConfig() Config {
	return Config{
		Provider:                "fake",
		DefaultLimit:            10,
		IncludeProperties:       true,
		CaseSensitiveProperties: []string{"Protein.name"},
	}
}

func rulesOf(violations []Violation) []Rule {
	rules := make([]Rule, 0, len(violations))
	for _, v := range violations {
		rules = append(rules, v.Rule)
	}
	return rules
}
