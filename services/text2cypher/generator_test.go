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
	"sync"
	"testing"
	"time"

	"github.com/AleutianAI/text2cypher/services/llm"
	"github.com/AleutianAI/text2cypher/services/schema"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestGenerator(t *testing.T, cfg Config, client llm.ChatClient, opts ...Option) *Generator {
	t.Helper()
	opts = append([]Option{WithLogger(quietLogger())}, opts...)
	gen, err := New(cfg, staticSource{schema: biomedicalSchema()}, client, opts...)
	require.NoError(t, err)
	return gen
}

// =============================================================================
// Construction Tests
// =============================================================================

func TestNew_SchemaUnavailable(t *testing.T) {
	src := staticSource{err: &schema.SchemaUnavailableError{Path: "/missing/schema.json", Reason: "not found"}}

	gen, err := New(testConfig(), src, &fakeClient{}, WithLogger(quietLogger()))

	assert.Nil(t, gen)
	assert.ErrorIs(t, err, schema.ErrSchemaUnavailable)
}

func TestNew_NilClient(t *testing.T) {
	_, err := New(testConfig(), staticSource{schema: biomedicalSchema()}, nil)
	assert.Error(t, err)
}

func TestNew_Defaults(t *testing.T) {
	gen := newTestGenerator(t, Config{}, &fakeClient{})

	assert.Equal(t, "fake-model", gen.Provider())
	assert.Contains(t, gen.SystemPrompt(), "LIMIT 10")
	assert.NotNil(t, gen.Schema())
	assert.NotNil(t, gen.Validator())
}

func TestGenerator_SystemPrompt(t *testing.T) {
	hints := schema.Hints{"synonyms": map[string]any{"tumour": "Disease {{name}}"}}
	gen := newTestGenerator(t, testConfig(), &fakeClient{}, WithHints(hints))

	prompt := gen.SystemPrompt()

	assert.Contains(t, prompt, "You are a Neo4j Cypher-generating assistant.")
	assert.Contains(t, prompt, "### Schema")
	assert.Contains(t, prompt, "- IS_BIOMARKER_OF_DISEASE (Protein -> Disease)")
	assert.Contains(t, prompt, "Exception: Protein.name is case-sensitive.")
	assert.Contains(t, prompt, "tumour")
	assert.Contains(t, prompt, "{{name}}")
}

// =============================================================================
// Respond Tests
// =============================================================================

func TestRespond_LungCancer(t *testing.T) {
	client := &fakeClient{replies: []string{"```cypher\n" + lungCancerQuery + "\n```"}}
	gen := newTestGenerator(t, testConfig(), client)

	reply, err := gen.Session("").Respond(context.Background(), "find proteins linked to lung cancer")

	require.NoError(t, err)
	assert.Equal(t, lungCancerQuery, reply.Query)
	assert.True(t, reply.Valid())
	assert.NotNil(t, reply.Violations)

	sent := client.lastCall()
	require.Len(t, sent, 2)
	assert.Equal(t, llm.RoleSystem, sent[0].Role)
	assert.Equal(t, gen.SystemPrompt(), sent[0].Content)
	assert.Equal(t, llm.Message{Role: llm.RoleUser, Content: "find proteins linked to lung cancer"}, sent[1])
}

func TestRespond_CarriesHistory(t *testing.T) {
	refined := `MATCH (p:Protein)-[r:IS_BIOMARKER_OF_DISEASE]-(d:Disease) WHERE toLower(d.name) = "lung cancer" AND p.name = "TP53" RETURN p, r, d LIMIT 10`
	client := &fakeClient{replies: []string{lungCancerQuery, refined}}
	gen := newTestGenerator(t, testConfig(), client)
	ctx := context.Background()
	session := gen.Session("alice")

	_, err := session.Respond(ctx, "find proteins linked to lung cancer")
	require.NoError(t, err)
	reply, err := session.Respond(ctx, "only TP53")
	require.NoError(t, err)
	assert.Equal(t, refined, reply.Query)

	sent := client.lastCall()
	require.Len(t, sent, 4)
	assert.Equal(t, llm.RoleSystem, sent[0].Role)
	assert.Equal(t, llm.Message{Role: llm.RoleUser, Content: "find proteins linked to lung cancer"}, sent[1])
	assert.Equal(t, llm.Message{Role: llm.RoleAssistant, Content: lungCancerQuery}, sent[2])
	assert.Equal(t, llm.Message{Role: llm.RoleUser, Content: "only TP53"}, sent[3])

	history, err := session.History(ctx)
	require.NoError(t, err)
	assert.Len(t, history, 4)
}

func TestRespond_UtteranceIsNotATemplate(t *testing.T) {
	client := &fakeClient{replies: []string{lungCancerQuery}}
	gen := newTestGenerator(t, testConfig(), client)

	_, err := gen.Session("").Respond(context.Background(), "what is {{.history}} {{")

	require.NoError(t, err)
	sent := client.lastCall()
	assert.Equal(t, "what is {{.history}} {{", sent[len(sent)-1].Content)
}

func TestRespond_EmptyUtterance(t *testing.T) {
	client := &fakeClient{replies: []string{lungCancerQuery}}
	gen := newTestGenerator(t, testConfig(), client)

	_, err := gen.Session("").Respond(context.Background(), "  \n ")

	assert.ErrorIs(t, err, ErrEmptyUtterance)
	assert.Zero(t, client.callCount())
}

func TestRespond_ClearThenRespond(t *testing.T) {
	client := &fakeClient{replies: []string{lungCancerQuery}}
	gen := newTestGenerator(t, testConfig(), client)
	ctx := context.Background()
	session := gen.Session("")

	_, err := session.Respond(ctx, "find proteins linked to lung cancer")
	require.NoError(t, err)

	require.NoError(t, session.Clear(ctx))
	history, err := session.History(ctx)
	require.NoError(t, err)
	assert.Empty(t, history)

	_, err = session.Respond(ctx, "find proteins linked to lung cancer")
	require.NoError(t, err)

	history, err = session.History(ctx)
	require.NoError(t, err)
	assert.Equal(t, []Turn{
		{Role: llm.RoleUser, Content: "find proteins linked to lung cancer"},
		{Role: llm.RoleAssistant, Content: lungCancerQuery},
	}, history)
	assert.Len(t, client.lastCall(), 2)
}

func TestRespond_SessionsAreIsolated(t *testing.T) {
	client := &fakeClient{replies: []string{lungCancerQuery}}
	gen := newTestGenerator(t, testConfig(), client)
	ctx := context.Background()

	_, err := gen.Session("alice").Respond(ctx, "find proteins linked to lung cancer")
	require.NoError(t, err)
	_, err = gen.Session("bob").Respond(ctx, "find proteins linked to lung cancer")
	require.NoError(t, err)

	assert.Len(t, client.lastCall(), 2, "bob must not see alice's turns")
	assert.Equal(t, []string{"alice", "bob"}, gen.SessionIDs())

	aliceHistory, err := gen.Session("alice").History(ctx)
	require.NoError(t, err)
	assert.Len(t, aliceHistory, 2)
}

func TestRespond_ConcurrentSessions(t *testing.T) {
	client := &fakeClient{replies: []string{lungCancerQuery}}
	gen := newTestGenerator(t, testConfig(), client)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			session := gen.Session(fmt.Sprintf("user-%d", i))
			for j := 0; j < 3; j++ {
				_, err := session.Respond(ctx, "find proteins linked to lung cancer")
				assert.NoError(t, err)
			}
		}(i)
	}
	wg.Wait()

	for _, id := range gen.SessionIDs() {
		history, err := gen.Session(id).History(ctx)
		require.NoError(t, err)
		assert.Len(t, history, 6, id)
	}
}

func TestRespond_BackendFailureLeavesHistory(t *testing.T) {
	client := &fakeClient{replies: []string{lungCancerQuery}}
	gen := newTestGenerator(t, testConfig(), client)
	ctx := context.Background()
	session := gen.Session("")

	_, err := session.Respond(ctx, "find proteins linked to lung cancer")
	require.NoError(t, err)

	client.mu.Lock()
	client.err = errors.New("connection refused")
	client.mu.Unlock()

	_, err = session.Respond(ctx, "only TP53")

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBackendRequest)
	var backendErr *BackendRequestError
	require.ErrorAs(t, err, &backendErr)
	assert.Equal(t, "fake", backendErr.Provider)
	assert.False(t, backendErr.Timeout())

	history, err := session.History(ctx)
	require.NoError(t, err)
	assert.Len(t, history, 2)
}

func TestRespond_Timeout(t *testing.T) {
	cfg := testConfig()
	cfg.Timeout = 20 * time.Millisecond
	gen := newTestGenerator(t, cfg, &fakeClient{block: true})

	_, err := gen.Session("").Respond(context.Background(), "find proteins linked to lung cancer")

	var backendErr *BackendRequestError
	require.ErrorAs(t, err, &backendErr)
	assert.True(t, backendErr.Timeout())
}

func TestRespond_EmptyReply(t *testing.T) {
	gen := newTestGenerator(t, testConfig(), &fakeClient{replies: []string{"```\n```"}})

	_, err := gen.Session("").Respond(context.Background(), "find proteins linked to lung cancer")

	assert.ErrorIs(t, err, ErrBackendRequest)
	assert.ErrorIs(t, err, llm.ErrEmptyResponse)
}

func TestRespond_ViolationsReported(t *testing.T) {
	directed := `MATCH (p:Protein)-[r:IS_BIOMARKER_OF_DISEASE]->(d:Disease) RETURN p, d LIMIT 10`
	gen := newTestGenerator(t, testConfig(), &fakeClient{replies: []string{directed}})
	ctx := context.Background()

	reply, err := gen.Session("").Respond(ctx, "find proteins linked to lung cancer")

	require.NoError(t, err)
	assert.False(t, reply.Valid())
	assert.Contains(t, rulesOf(reply.Violations), RuleUndirected)
	assert.Contains(t, rulesOf(reply.Violations), RuleReturn)

	history, err := gen.Session("").History(ctx)
	require.NoError(t, err)
	assert.Len(t, history, 2)
}

func TestRespond_StrictRejects(t *testing.T) {
	cfg := testConfig()
	cfg.Strict = true
	directed := `MATCH (p:Protein)-[r:IS_BIOMARKER_OF_DISEASE]->(d:Disease) RETURN p, r, d LIMIT 10`
	gen := newTestGenerator(t, cfg, &fakeClient{replies: []string{directed}})
	ctx := context.Background()

	_, err := gen.Session("").Respond(ctx, "find proteins linked to lung cancer")

	assert.ErrorIs(t, err, ErrOutputContract)
	var contractErr *ContractViolationError
	require.ErrorAs(t, err, &contractErr)
	assert.Equal(t, directed, contractErr.Query)
	assert.Equal(t, []Rule{RuleUndirected}, rulesOf(contractErr.Violations))

	history, err := gen.Session("").History(ctx)
	require.NoError(t, err)
	assert.Empty(t, history)
}

// =============================================================================
// Session Registry Tests
// =============================================================================

func TestGenerator_SessionRegistry(t *testing.T) {
	gen := newTestGenerator(t, testConfig(), &fakeClient{})

	shared := gen.Session("")
	assert.Equal(t, DefaultSessionID, shared.ID())
	assert.Same(t, shared, gen.Session(DefaultSessionID))
	assert.True(t, gen.HasSession(DefaultSessionID))
	assert.False(t, gen.HasSession("nobody"))

	assert.True(t, gen.EndSession(DefaultSessionID))
	assert.False(t, gen.EndSession(DefaultSessionID))
	assert.Empty(t, gen.SessionIDs())
}

func TestGenerator_OpenSessionLimit(t *testing.T) {
	gen := newTestGenerator(t, testConfig(), &fakeClient{})

	a, err := gen.OpenSession("a", 2)
	require.NoError(t, err)
	_, err = gen.OpenSession("b", 2)
	require.NoError(t, err)

	_, err = gen.OpenSession("c", 2)
	assert.ErrorIs(t, err, ErrSessionLimit)
	assert.False(t, gen.HasSession("c"))

	again, err := gen.OpenSession("a", 2)
	require.NoError(t, err)
	assert.Same(t, a, again)

	require.True(t, gen.EndSession("b"))
	_, err = gen.OpenSession("c", 2)
	assert.NoError(t, err)

	_, err = gen.OpenSession("d", 0)
	assert.NoError(t, err)
}

// =============================================================================
// Metrics Tests
// =============================================================================

func TestRespond_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	directed := `MATCH (p:Protein)-[r:IS_BIOMARKER_OF_DISEASE]->(d:Disease) RETURN p, r, d LIMIT 10`
	client := &fakeClient{replies: []string{lungCancerQuery, directed}}
	gen := newTestGenerator(t, testConfig(), client, WithMetrics(metrics))
	ctx := context.Background()

	_, err := gen.Session("alice").Respond(ctx, "find proteins linked to lung cancer")
	require.NoError(t, err)
	_, err = gen.Session("bob").Respond(ctx, "find proteins linked to lung cancer")
	require.NoError(t, err)

	client.mu.Lock()
	client.err = errors.New("boom")
	client.mu.Unlock()
	_, err = gen.Session("bob").Respond(ctx, "again")
	require.Error(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.RequestsTotal.WithLabelValues("fake", statusSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.RequestsTotal.WithLabelValues("fake", statusViolation)))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.RequestsTotal.WithLabelValues("fake", statusBackendError)))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.ContractViolationsTotal.WithLabelValues(string(RuleUndirected))))
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.ActiveSessions))

	gen.EndSession("alice")
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.ActiveSessions))
}

func TestMetrics_NilIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.recordTurn("fake", statusSuccess, time.Second)
		m.recordViolations([]Violation{{Rule: RuleLimit}})
		m.sessionOpened()
		m.sessionClosed()
	})
}
