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
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/AleutianAI/text2cypher/pkg/config"
	"github.com/tmc/langchaingo/llms/ollama"
)

// NewOllamaClient creates a client for a local Ollama daemon.
//
// # Description
//
// Requests go to the daemon's chat endpoint without streaming. The model
// must already be pulled; a missing model surfaces as a request error on
// the first Chat call, not here.
func NewOllamaClient(cfg config.ProviderConfig, logger *slog.Logger) (*LangchainClient, error) {
	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	model, err := ollama.New(
		ollama.WithServerURL(baseURL),
		ollama.WithModel(cfg.Model),
		ollama.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}),
	)
	if err != nil {
		return nil, fmt.Errorf("%s: create ollama client: %w", cfg.Name, err)
	}
	client := NewLangchainClient(model, cfg.Model, cfg.Temperature, logger)
	client.logger.Info("Initializing Ollama client", "provider", cfg.Name, "base_url", baseURL, "model", cfg.Model)
	return client, nil
}

// NewClient builds the ChatClient for cfg.Driver.
//
// # Outputs
//
//   - ChatClient: Ready for use. No network call is made.
//   - error: Non-nil for an unknown driver or a client construction error.
func NewClient(cfg config.ProviderConfig, logger *slog.Logger) (ChatClient, error) {
	var (
		client ChatClient
		err    error
	)
	switch cfg.Driver {
	case config.DriverGoOpenAI:
		client, err = NewOpenAIClient(cfg, logger)
	case config.DriverOpenAICompatible, "":
		client, err = NewOpenAICompatibleClient(cfg, logger)
	case config.DriverOllama:
		client, err = NewOllamaClient(cfg, logger)
	default:
		return nil, fmt.Errorf("unknown driver %q for provider %s", cfg.Driver, cfg.Name)
	}
	if err != nil {
		return nil, err
	}
	return client, nil
}
