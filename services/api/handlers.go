// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package api exposes a Generator over HTTP.
package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/AleutianAI/text2cypher/pkg/telemetry"
	"github.com/AleutianAI/text2cypher/pkg/validation"
	"github.com/AleutianAI/text2cypher/services/schemaprompt"
	"github.com/AleutianAI/text2cypher/services/text2cypher"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// QueryRequest is the body of POST /v1/sessions/:sessionId/query.
type QueryRequest struct {
	Question string `json:"question" binding:"required"`
}

// QueryResponse is a generated query.
type QueryResponse struct {
	SessionID  string                  `json:"session_id"`
	Query      string                  `json:"query"`
	Valid      bool                    `json:"valid"`
	Violations []text2cypher.Violation `json:"violations"`
}

// HistoryResponse lists the turns of a session.
type HistoryResponse struct {
	SessionID string             `json:"session_id"`
	Turns     []text2cypher.Turn `json:"turns"`
}

// DefaultMaxSessions caps the sessions POST /v1/sessions may hold open.
const DefaultMaxSessions = 1000

// Handlers serves the text2cypher routes.
type Handlers struct {
	gen         *text2cypher.Generator
	logger      *slog.Logger
	maxSessions int
}

// Option configures Handlers.
type Option func(*Handlers)

// WithMaxSessions overrides DefaultMaxSessions. n <= 0 removes the cap.
func WithMaxSessions(n int) Option {
	return func(h *Handlers) { h.maxSessions = n }
}

// NewHandlers binds the handlers to gen. A nil logger means slog.Default().
func NewHandlers(gen *text2cypher.Generator, logger *slog.Logger, opts ...Option) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handlers{gen: gen, logger: logger, maxSessions: DefaultMaxSessions}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Health reports liveness and the provider in use.
func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "provider": h.gen.Provider()})
}

// CreateSession starts a conversation with a fresh id. Once the cap is
// reached clients get 503 until sessions are deleted.
func (h *Handlers) CreateSession(c *gin.Context) {
	id := uuid.NewString()
	if _, err := h.gen.OpenSession(id, h.maxSessions); err != nil {
		telemetry.LoggerWithTrace(c.Request.Context(), h.logger).Warn("session rejected", "error", err, "max_sessions", h.maxSessions)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	telemetry.LoggerWithTrace(c.Request.Context(), h.logger).Info("session created", "session_id", id)
	c.JSON(http.StatusCreated, gin.H{"session_id": id})
}

// ListSessions returns the live session ids.
func (h *Handlers) ListSessions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"sessions": h.gen.SessionIDs()})
}

// DeleteSession forgets a session.
func (h *Handlers) DeleteSession(c *gin.Context) {
	id := c.Param("sessionId")
	if !h.gen.EndSession(id) {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "deleted_session_id": id})
}

// Query generates a Cypher query for the question in the session.
func (h *Handlers) Query(c *gin.Context) {
	id, ok := h.session(c)
	if !ok {
		return
	}
	var req QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	ctx := c.Request.Context()
	logger := telemetry.LoggerWithTrace(ctx, h.logger)
	reply, err := h.gen.Respond(ctx, id, req.Question)
	if err != nil {
		var contractErr *text2cypher.ContractViolationError
		var backendErr *text2cypher.BackendRequestError
		switch {
		case errors.Is(err, text2cypher.ErrEmptyUtterance):
			c.JSON(http.StatusBadRequest, gin.H{"error": "question is empty"})
		case errors.As(err, &contractErr):
			c.JSON(http.StatusUnprocessableEntity, gin.H{
				"error":      "generated query breaks the query rules",
				"query":      contractErr.Query,
				"violations": contractErr.Violations,
			})
		case errors.As(err, &backendErr):
			status := http.StatusBadGateway
			if backendErr.Timeout() {
				status = http.StatusGatewayTimeout
			}
			logger.Error("query generation failed", "session_id", id, "error", err)
			c.JSON(status, gin.H{"error": backendErr.Error()})
		default:
			logger.Error("query generation failed", "session_id", id, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "query generation failed"})
		}
		return
	}

	c.JSON(http.StatusOK, QueryResponse{
		SessionID:  id,
		Query:      reply.Query,
		Valid:      reply.Valid(),
		Violations: reply.Violations,
	})
}

// History returns the turns of a session.
func (h *Handlers) History(c *gin.Context) {
	id, ok := h.session(c)
	if !ok {
		return
	}
	turns, err := h.gen.History(c.Request.Context(), id)
	if err != nil {
		h.logger.Error("failed to read history", "session_id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read history"})
		return
	}
	c.JSON(http.StatusOK, HistoryResponse{SessionID: id, Turns: turns})
}

// ClearHistory empties the history of a session.
func (h *Handlers) ClearHistory(c *gin.Context) {
	id, ok := h.session(c)
	if !ok {
		return
	}
	if err := h.gen.Clear(c.Request.Context(), id); err != nil {
		h.logger.Error("failed to clear history", "session_id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to clear history"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "cleared", "session_id": id})
}

// Schema returns the schema document, or the compiled prompt text with
// ?format=prompt.
func (h *Handlers) Schema(c *gin.Context) {
	if c.Query("format") == "prompt" {
		text := schemaprompt.Compile(h.gen.Schema(), h.gen.Hints(), schemaprompt.Options{IncludeProperties: true})
		c.String(http.StatusOK, schemaprompt.Unescape(text))
		return
	}
	c.JSON(http.StatusOK, h.gen.Schema())
}

// session resolves the :sessionId parameter. Only sessions created through
// CreateSession and the shared session are addressable.
func (h *Handlers) session(c *gin.Context) (string, bool) {
	id := c.Param("sessionId")
	if err := validation.ValidateSessionID(id); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return "", false
	}
	if id == text2cypher.DefaultSessionID || h.gen.HasSession(id) {
		return id, true
	}
	c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
	return "", false
}
