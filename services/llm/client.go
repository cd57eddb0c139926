// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package llm provides chat clients for the generation backends.
//
// Three drivers are supported:
//
//   - go-openai: Groq, OpenAI and other hosted OpenAI APIs (OpenAIClient).
//   - openai-compatible: self-hosted servers such as llama.cpp or vLLM,
//     through langchaingo (LangchainClient).
//   - ollama: a local Ollama daemon, through langchaingo (LangchainClient).
//
// NewClient picks the driver from a config.ProviderConfig.
package llm

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("text2cypher.llm")

// Role is the author of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one chat message sent to a backend.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// GenerationParams are optional per-request overrides. Nil fields use the
// client's configured defaults.
type GenerationParams struct {
	Temperature *float32 `json:"temperature"`
	MaxTokens   *int     `json:"max_tokens"`
	Stop        []string `json:"stop"`
}

// ErrEmptyResponse is returned when a backend answers without any content.
var ErrEmptyResponse = errors.New("backend returned no choices")

// ChatClient is a chat completion backend.
//
// # Assumptions
//
//   - Chat performs exactly one request and never retries.
//   - ctx bounds the whole round trip.
type ChatClient interface {
	Chat(ctx context.Context, messages []Message, params GenerationParams) (string, error)

	// Model names the model requests are sent to.
	Model() string
}
