// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config resolves connection settings for the graph database and
// the generation providers.
//
// Connection parameters come from the environment (optionally seeded from
// a .env file). Tuning knobs that are not secrets live in an optional YAML
// file, see Settings. Every required variable is checked before any network
// activity; a missing one surfaces as *ConfigMissingError naming it.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Getenv looks up an environment variable. os.Getenv satisfies it; tests
// pass a map-backed function.
type Getenv func(key string) string

// MapEnv adapts a map to Getenv.
func MapEnv(m map[string]string) Getenv {
	return func(key string) string { return m[key] }
}

// =============================================================================
// Database
// =============================================================================

// DatabaseConfig holds the Neo4j connection parameters.
type DatabaseConfig struct {
	// URI is the bolt/neo4j URI, e.g. "neo4j://localhost:7687".
	URI string `env:"DB_URL" validate:"required"`

	// Database is the database name opened by every session.
	Database string `env:"DB_NAME" validate:"required"`

	// User and Password enable basic auth when both are set.
	User     string `env:"DB_USER"`
	Password string `env:"DB_PASSWORD" validate:"required_with=User"`
}

// HasAuth reports whether basic auth credentials are configured.
func (c DatabaseConfig) HasAuth() bool {
	return c.User != "" && c.Password != ""
}

// LoadDatabase reads DB_URL, DB_NAME and the optional DB_USER/DB_PASSWORD.
//
// # Outputs
//
//   - DatabaseConfig: The resolved settings.
//   - error: *ConfigMissingError when DB_URL or DB_NAME is unset, or when
//     DB_USER is set without DB_PASSWORD.
func LoadDatabase(getenv Getenv) (DatabaseConfig, error) {
	if getenv == nil {
		getenv = os.Getenv
	}
	cfg := DatabaseConfig{
		URI:      strings.TrimSpace(getenv("DB_URL")),
		Database: strings.TrimSpace(getenv("DB_NAME")),
		User:     strings.TrimSpace(getenv("DB_USER")),
		Password: getenv("DB_PASSWORD"),
	}
	if err := validateEnv("", cfg); err != nil {
		return DatabaseConfig{}, err
	}
	return cfg, nil
}

// =============================================================================
// Providers
// =============================================================================

// Provider drivers.
const (
	// DriverOpenAICompatible talks to any OpenAI-compatible endpoint
	// (llama.cpp server, vLLM) through langchaingo.
	DriverOpenAICompatible = "openai-compatible"

	// DriverGoOpenAI uses the go-openai client directly (Groq, OpenAI).
	DriverGoOpenAI = "go-openai"

	// DriverOllama uses langchaingo's Ollama client.
	DriverOllama = "ollama"
)

// DefaultProviderTimeout bounds a single backend round trip.
const DefaultProviderTimeout = 20 * time.Second

// ProviderConfig is a fully resolved generation backend.
type ProviderConfig struct {
	// Name is the provider key, e.g. "llama". Its upper-cased form prefixes
	// the environment variables: LLAMA_BASE_URL, LLAMA_MODEL, LLAMA_API_KEY.
	Name string `env:"-"`

	Driver  string `env:"-" validate:"oneof=openai-compatible go-openai ollama"`
	BaseURL string `env:"BASE_URL" validate:"required,url"`
	Model   string `env:"MODEL" validate:"required"`
	APIKey  string `env:"API_KEY" validate:"required_if=APIKeyRequired true"`

	// APIKeyRequired is false for local servers that ignore the key.
	APIKeyRequired bool `env:"-"`

	// Timeout bounds one backend call.
	Timeout time.Duration `env:"-"`

	// Temperature is sent with every request. Query generation uses 0.
	Temperature float64 `env:"-"`

	// RequestsPerSecond throttles backend calls; 0 disables throttling.
	RequestsPerSecond float64 `env:"-" validate:"gte=0"`
}

// EnvPrefix returns the environment variable prefix for the provider.
func (p ProviderConfig) EnvPrefix() string {
	return EnvPrefix(p.Name)
}

// EnvPrefix upper-cases a provider name and replaces dashes, so "my-llama"
// reads MY_LLAMA_BASE_URL.
func EnvPrefix(name string) string {
	return strings.ToUpper(strings.ReplaceAll(name, "-", "_")) + "_"
}

// LoadProvider resolves the named provider from settings and environment.
//
// # Inputs
//
//   - name: Provider key, must exist in settings.Providers.
//   - settings: Tuning loaded by LoadSettings (or DefaultSettings()).
//   - getenv: Environment lookup; nil means os.Getenv.
//
// # Outputs
//
//   - ProviderConfig: Ready to pass to llm.NewClient.
//   - error: *ConfigInvalidError for an unknown provider or bad value,
//     *ConfigMissingError for an unset required variable.
func LoadProvider(name string, settings Settings, getenv Getenv) (ProviderConfig, error) {
	if getenv == nil {
		getenv = os.Getenv
	}
	ps, ok := settings.Providers[name]
	if !ok {
		return ProviderConfig{}, &ConfigInvalidError{
			Variable: "provider",
			Reason:   fmt.Sprintf("unknown provider %q (known: %s)", name, strings.Join(settings.ProviderNames(), ", ")),
		}
	}

	prefix := EnvPrefix(name)
	cfg := ProviderConfig{
		Name:              name,
		Driver:            ps.Driver,
		BaseURL:           firstNonEmpty(strings.TrimSpace(getenv(prefix+"BASE_URL")), ps.BaseURL),
		Model:             firstNonEmpty(strings.TrimSpace(getenv(prefix+"MODEL")), ps.Model),
		APIKey:            strings.TrimSpace(getenv(prefix + "API_KEY")),
		APIKeyRequired:    ps.APIKeyRequired,
		Timeout:           ps.Timeout,
		Temperature:       ps.Temperature,
		RequestsPerSecond: ps.RequestsPerSecond,
	}
	if cfg.Driver == "" {
		cfg.Driver = DriverOpenAICompatible
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultProviderTimeout
	}

	if err := validateEnv(prefix, cfg); err != nil {
		return ProviderConfig{}, err
	}
	return cfg, nil
}

// =============================================================================
// Environment files
// =============================================================================

// LoadDotEnv seeds the process environment from .env files. Variables that
// are already set win. Missing files are skipped; unreadable ones fail.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if _, err := os.Stat(p); errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return &ConfigInvalidError{Variable: p, Reason: "cannot load env file", Wrapped: err}
		}
	}
	return nil
}

// =============================================================================
// Validation
// =============================================================================

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := f.Tag.Get("env")
			if name == "" || name == "-" {
				return f.Name
			}
			return name
		})
	})
	return validate
}

// validateEnv runs struct validation and converts the first failure into a
// typed error naming the environment variable (prefix + env tag).
func validateEnv(prefix string, v any) error {
	err := getValidator().Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return &ConfigInvalidError{Variable: "config", Reason: "validation failed", Wrapped: err}
	}
	fe := verrs[0]
	variable := fe.Field()
	if variable == strings.ToUpper(variable) {
		variable = prefix + variable
	}
	switch fe.Tag() {
	case "required", "required_if", "required_with":
		return &ConfigMissingError{Variable: variable}
	case "url":
		return &ConfigInvalidError{Variable: variable, Reason: fmt.Sprintf("%q is not a URL", fe.Value())}
	case "oneof":
		return &ConfigInvalidError{Variable: variable, Reason: fmt.Sprintf("%v is not one of [%s]", fe.Value(), fe.Param())}
	default:
		return &ConfigInvalidError{Variable: variable, Reason: fmt.Sprintf("failed %q check", fe.Tag())}
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
