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
	"sync"
	"time"

	"github.com/AleutianAI/text2cypher/services/llm"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/memory"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Turn statuses recorded in text2cypher_generator_requests_total.
const (
	statusSuccess      = "success"
	statusViolation    = "violation"
	statusBackendError = "backend_error"
	statusRejected     = "rejected"
)

// Turn is one entry of a session history.
type Turn struct {
	Role    llm.Role `json:"role"`
	Content string   `json:"content"`
}

// Reply is the outcome of one successful turn.
type Reply struct {
	// Query is the cleaned Cypher text.
	Query string `json:"query"`

	// Violations lists the rules the query breaks. Empty when it follows
	// every rule. Always empty in strict mode.
	Violations []Violation `json:"violations"`
}

// Valid reports whether the query follows every rule.
func (r Reply) Valid() bool { return len(r.Violations) == 0 }

// Session is one conversation with its own history.
//
// # Thread Safety
//
// Safe for concurrent use. Turns are serialized so a history always reads
// user, assistant, user, assistant.
type Session struct {
	id      string
	gen     *Generator
	mu      sync.Mutex
	history *memory.ChatMessageHistory
}

func newSession(id string, gen *Generator) *Session {
	return &Session{
		id:      id,
		gen:     gen,
		history: memory.NewChatMessageHistory(),
	}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Respond generates a query for utterance in the context of the prior
// turns.
//
// # Description
//
// Sends the system block, the history and the utterance to the backend,
// cleans the reply and checks it against the rules. On success the
// utterance and the cleaned query are appended to the history.
//
// # Outputs
//
//   - Reply: The query and any broken rules.
//   - error: ErrEmptyUtterance for blank input; *BackendRequestError when
//     the backend fails, times out or returns nothing; in strict mode
//     *ContractViolationError when a rule is broken. The history is
//     unchanged on every error.
func (s *Session) Respond(ctx context.Context, utterance string) (Reply, error) {
	utterance = strings.TrimSpace(utterance)
	if utterance == "" {
		return Reply{}, ErrEmptyUtterance
	}

	g := s.gen
	ctx, span := tracer.Start(ctx, "Session.Respond")
	defer span.End()
	span.SetAttributes(
		attribute.String("session.id", s.id),
		attribute.String("provider", g.cfg.Provider),
	)

	s.mu.Lock()
	defer s.mu.Unlock()

	prior, err := s.history.Messages(ctx)
	if err != nil {
		return Reply{}, fmt.Errorf("read history: %w", err)
	}
	formatted, err := g.template.FormatMessages(map[string]any{
		historyKey:   prior,
		userInputKey: utterance,
	})
	if err != nil {
		return Reply{}, fmt.Errorf("format prompt: %w", err)
	}

	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return Reply{}, s.backendFailure(span, "rate limit wait", err, 0)
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()
	start := time.Now()
	raw, err := g.client.Chat(callCtx, toLLMMessages(formatted), llm.GenerationParams{})
	elapsed := time.Since(start)
	if err != nil {
		reason := "request failed"
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			reason = fmt.Sprintf("no reply within %s", g.cfg.Timeout)
			if !errors.Is(err, context.DeadlineExceeded) {
				err = fmt.Errorf("%w: %v", context.DeadlineExceeded, err)
			}
		}
		return Reply{}, s.backendFailure(span, reason, err, elapsed)
	}

	query := Clean(raw)
	if query == "" {
		return Reply{}, s.backendFailure(span, "empty reply", llm.ErrEmptyResponse, elapsed)
	}

	violations := g.validator.Validate(query)
	g.metrics.recordViolations(violations)
	span.SetAttributes(attribute.Int("violations", len(violations)))

	if len(violations) > 0 && g.cfg.Strict {
		g.metrics.recordTurn(g.cfg.Provider, statusRejected, elapsed)
		g.logger.Warn("generated query rejected",
			"session_id", s.id,
			"violations", len(violations),
			"query", query)
		span.SetStatus(codes.Error, "contract violation")
		return Reply{}, &ContractViolationError{Query: query, Violations: violations}
	}

	if err := s.history.AddUserMessage(ctx, utterance); err != nil {
		return Reply{}, fmt.Errorf("record turn: %w", err)
	}
	if err := s.history.AddAIMessage(ctx, query); err != nil {
		return Reply{}, fmt.Errorf("record turn: %w", err)
	}

	status := statusSuccess
	if len(violations) > 0 {
		status = statusViolation
		g.logger.Warn("generated query breaks rules",
			"session_id", s.id,
			"violations", len(violations))
	}
	g.metrics.recordTurn(g.cfg.Provider, status, elapsed)
	g.logger.Debug("turn complete",
		"session_id", s.id,
		"duration_ms", elapsed.Milliseconds(),
		"status", status)

	if violations == nil {
		violations = []Violation{}
	}
	return Reply{Query: query, Violations: violations}, nil
}

func (s *Session) backendFailure(span trace.Span, reason string, err error, elapsed time.Duration) error {
	g := s.gen
	g.metrics.recordTurn(g.cfg.Provider, statusBackendError, elapsed)
	g.logger.Error("backend request failed",
		"session_id", s.id,
		"provider", g.cfg.Provider,
		"reason", reason,
		"error", err)
	span.RecordError(err)
	span.SetStatus(codes.Error, reason)
	return &BackendRequestError{Provider: g.cfg.Provider, Reason: reason, Wrapped: err}
}

// History returns the recorded turns, oldest first.
func (s *Session) History(ctx context.Context) ([]Turn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	msgs, err := s.history.Messages(ctx)
	if err != nil {
		return nil, fmt.Errorf("read history: %w", err)
	}
	turns := make([]Turn, 0, len(msgs))
	for _, m := range msgs {
		turns = append(turns, Turn{Role: roleOf(m.GetType()), Content: m.GetContent()})
	}
	return turns, nil
}

// Clear empties the history. The system block is unaffected.
func (s *Session) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.history.Clear(ctx); err != nil {
		return fmt.Errorf("clear history: %w", err)
	}
	s.gen.logger.Debug("session cleared", "session_id", s.id)
	return nil
}

func toLLMMessages(msgs []llms.ChatMessage) []llm.Message {
	out := make([]llm.Message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, llm.Message{Role: roleOf(m.GetType()), Content: m.GetContent()})
	}
	return out
}

func roleOf(t llms.ChatMessageType) llm.Role {
	switch t {
	case llms.ChatMessageTypeSystem:
		return llm.RoleSystem
	case llms.ChatMessageTypeAI:
		return llm.RoleAssistant
	default:
		return llm.RoleUser
	}
}
