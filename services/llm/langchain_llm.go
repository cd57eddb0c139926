// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package llm

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/AleutianAI/text2cypher/pkg/config"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// placeholderAPIKey is sent to servers that do not check keys. langchaingo
// refuses to build an OpenAI client without one.
const placeholderAPIKey = "dummy"

// LangchainClient adapts a langchaingo llms.Model to ChatClient.
type LangchainClient struct {
	model       llms.Model
	name        string
	temperature float64
	logger      *slog.Logger
}

// NewLangchainClient wraps an already constructed langchaingo model.
func NewLangchainClient(model llms.Model, modelName string, temperature float64, logger *slog.Logger) *LangchainClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &LangchainClient{model: model, name: modelName, temperature: temperature, logger: logger}
}

// NewOpenAICompatibleClient creates a langchaingo OpenAI client for a
// self-hosted OpenAI-compatible server. A missing API key is replaced by a
// placeholder.
func NewOpenAICompatibleClient(cfg config.ProviderConfig, logger *slog.Logger) (*LangchainClient, error) {
	key := cfg.APIKey
	if key == "" {
		key = placeholderAPIKey
	}
	model, err := openai.New(
		openai.WithToken(key),
		openai.WithModel(cfg.Model),
		openai.WithBaseURL(cfg.BaseURL),
		openai.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}),
	)
	if err != nil {
		return nil, fmt.Errorf("%s: create openai-compatible client: %w", cfg.Name, err)
	}
	client := NewLangchainClient(model, cfg.Model, cfg.Temperature, logger)
	client.logger.Info("Initializing OpenAI-compatible client", "provider", cfg.Name, "model", cfg.Model, "base_url", cfg.BaseURL)
	return client, nil
}

// Model implements ChatClient.
func (c *LangchainClient) Model() string { return c.name }

// Chat implements ChatClient.
func (c *LangchainClient) Chat(ctx context.Context, messages []Message, params GenerationParams) (string, error) {
	ctx, span := tracer.Start(ctx, "LangchainClient.Chat")
	defer span.End()
	span.SetAttributes(
		attribute.String("llm.model", c.name),
		attribute.Int("llm.num_messages", len(messages)),
	)

	content := make([]llms.MessageContent, 0, len(messages))
	for _, m := range messages {
		content = append(content, llms.TextParts(chatMessageType(m.Role), m.Content))
	}

	temperature := c.temperature
	if params.Temperature != nil {
		temperature = float64(*params.Temperature)
	}
	opts := []llms.CallOption{llms.WithTemperature(temperature)}
	if params.MaxTokens != nil {
		opts = append(opts, llms.WithMaxTokens(*params.MaxTokens))
	}
	if len(params.Stop) > 0 {
		opts = append(opts, llms.WithStopWords(params.Stop))
	}

	c.logger.Debug("Generating text via langchaingo", "model", c.name)
	resp, err := c.model.GenerateContent(ctx, content, opts...)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", fmt.Errorf("%s chat call failed: %w", c.name, err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		span.SetStatus(codes.Error, ErrEmptyResponse.Error())
		return "", ErrEmptyResponse
	}
	return resp.Choices[0].Content, nil
}

func chatMessageType(role Role) llms.ChatMessageType {
	switch role {
	case RoleSystem:
		return llms.ChatMessageTypeSystem
	case RoleAssistant:
		return llms.ChatMessageTypeAI
	default:
		return llms.ChatMessageTypeHuman
	}
}
