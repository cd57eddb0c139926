// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package config

import (
	"errors"
	"io/fs"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/AleutianAI/text2cypher/pkg/validation"
	"gopkg.in/yaml.v3"
)

// DefaultSettingsFile is read from the working directory when present.
const DefaultSettingsFile = "text2cypher.yaml"

// DefaultSchemaPath is where export-schema output is expected by the generator.
const DefaultSchemaPath = "data/input/neo4j_schema.json"

// DefaultHintsPath is the optional schema hints document.
const DefaultHintsPath = "data/input/schema_hints.yaml"

// DefaultLimit is the result cap every generated query must end with.
const DefaultLimit = 10

// DefaultAllowedLabels is the biomedical label allow-list used when
// extracting the schema.
var DefaultAllowedLabels = []string{
	"Gene",
	"Protein",
	"Transcript",
	"Disease",
	"Drug",
	"Publication",
	"Pathway",
	"Metabolite",
	"Tissue",
	"Modified_Protein",
	"Protein_Structure",
}

// Settings are the non-secret knobs, loaded from YAML.
type Settings struct {
	SchemaPath    string   `yaml:"schema_path"`
	HintsPath     string   `yaml:"hints_path"`
	AllowedLabels []string `yaml:"allowed_labels"`

	// DefaultLimit is the LIMIT the rules ask for unless the user wants more.
	DefaultLimit int `yaml:"default_limit"`

	// CaseSensitiveProperties lists "Label.property" pairs exempt from the
	// lowercase comparison rule.
	CaseSensitiveProperties []string `yaml:"case_sensitive_properties"`

	// Strict rejects replies that violate the query rules instead of
	// returning them with violations attached.
	Strict bool `yaml:"strict"`

	// CatalogTimeout bounds each catalog query during extraction.
	CatalogTimeout time.Duration `yaml:"catalog_timeout"`

	// Providers is read from the file through providerOverride so that a
	// partial entry keeps the defaults it does not mention.
	Providers map[string]ProviderSettings `yaml:"-"`
}

// ProviderSettings describes a provider before environment resolution.
// BaseURL and Model act as fallbacks when the environment leaves them unset.
type ProviderSettings struct {
	Driver            string        `yaml:"driver"`
	BaseURL           string        `yaml:"base_url"`
	Model             string        `yaml:"model"`
	APIKeyRequired    bool          `yaml:"api_key_required"`
	Timeout           time.Duration `yaml:"timeout"`
	Temperature       float64       `yaml:"temperature"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
}

// settingsFile is the on-disk shape of Settings.
type settingsFile struct {
	Settings  `yaml:",inline"`
	Providers map[string]providerOverride `yaml:"providers"`
}

// providerOverride is one provider entry in the settings file. Zero values
// leave the built-in entry alone; APIKeyRequired is a pointer so a file can
// switch it off.
type providerOverride struct {
	Driver            string        `yaml:"driver"`
	BaseURL           string        `yaml:"base_url"`
	Model             string        `yaml:"model"`
	APIKeyRequired    *bool         `yaml:"api_key_required"`
	Timeout           time.Duration `yaml:"timeout"`
	Temperature       *float64      `yaml:"temperature"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
}

func (o providerOverride) apply(p ProviderSettings) ProviderSettings {
	if o.Driver != "" {
		p.Driver = o.Driver
	}
	if o.BaseURL != "" {
		p.BaseURL = o.BaseURL
	}
	if o.Model != "" {
		p.Model = o.Model
	}
	if o.APIKeyRequired != nil {
		p.APIKeyRequired = *o.APIKeyRequired
	}
	if o.Timeout > 0 {
		p.Timeout = o.Timeout
	}
	if o.Temperature != nil {
		p.Temperature = *o.Temperature
	}
	if o.RequestsPerSecond > 0 {
		p.RequestsPerSecond = o.RequestsPerSecond
	}
	return p
}

// DefaultSettings returns the built-in configuration: the llama and groq
// providers of the reference deployment plus openai and ollama.
func DefaultSettings() Settings {
	return Settings{
		SchemaPath:              DefaultSchemaPath,
		HintsPath:               DefaultHintsPath,
		AllowedLabels:           append([]string(nil), DefaultAllowedLabels...),
		DefaultLimit:            DefaultLimit,
		CaseSensitiveProperties: []string{"Protein.name"},
		CatalogTimeout:          10 * time.Second,
		Providers: map[string]ProviderSettings{
			"llama": {
				Driver:  DriverOpenAICompatible,
				Timeout: DefaultProviderTimeout,
			},
			"groq": {
				Driver:         DriverGoOpenAI,
				APIKeyRequired: true,
				Timeout:        DefaultProviderTimeout,
			},
			"openai": {
				Driver:         DriverGoOpenAI,
				BaseURL:        "https://api.openai.com/v1",
				APIKeyRequired: true,
				Timeout:        DefaultProviderTimeout,
			},
			"ollama": {
				Driver:  DriverOllama,
				BaseURL: "http://localhost:11434",
				Timeout: 60 * time.Second,
			},
		},
	}
}

// LoadSettings reads a YAML settings file on top of DefaultSettings.
//
// # Inputs
//
//   - path: File to read. Empty means DefaultSettingsFile, which may be
//     absent. An explicit path that does not exist is an error.
//   - getenv: Used for TEXT2CYPHER_SCHEMA_PATH / TEXT2CYPHER_HINTS_PATH
//     overrides; nil means os.Getenv.
//
// # Outputs
//
//   - Settings: Defaults merged with the file. Providers in the file are
//     merged per key, so a file can tune "groq" without redefining "llama".
//   - error: *ConfigInvalidError when the file cannot be read or parsed.
func LoadSettings(path string, getenv Getenv) (Settings, error) {
	if getenv == nil {
		getenv = os.Getenv
	}
	settings := DefaultSettings()

	explicit := path != ""
	if !explicit {
		path = DefaultSettingsFile
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		var file settingsFile
		if err := yaml.Unmarshal(data, &file); err != nil {
			return Settings{}, &ConfigInvalidError{Variable: path, Reason: "cannot parse settings", Wrapped: err}
		}
		settings.merge(file)
	case errors.Is(err, fs.ErrNotExist) && !explicit:
	default:
		return Settings{}, &ConfigInvalidError{Variable: path, Reason: "cannot read settings", Wrapped: err}
	}

	if v := strings.TrimSpace(getenv("TEXT2CYPHER_SCHEMA_PATH")); v != "" {
		settings.SchemaPath = v
	}
	if v := strings.TrimSpace(getenv("TEXT2CYPHER_HINTS_PATH")); v != "" {
		settings.HintsPath = v
	}
	if settings.DefaultLimit <= 0 {
		return Settings{}, &ConfigInvalidError{Variable: "default_limit", Reason: "must be positive"}
	}
	if err := validation.ValidateLabels(settings.AllowedLabels); err != nil {
		return Settings{}, &ConfigInvalidError{Variable: "allowed_labels", Reason: err.Error()}
	}
	return settings, nil
}

func (s *Settings) merge(file settingsFile) {
	if file.SchemaPath != "" {
		s.SchemaPath = file.SchemaPath
	}
	if file.HintsPath != "" {
		s.HintsPath = file.HintsPath
	}
	if len(file.AllowedLabels) > 0 {
		s.AllowedLabels = file.AllowedLabels
	}
	if file.DefaultLimit != 0 {
		s.DefaultLimit = file.DefaultLimit
	}
	if file.CaseSensitiveProperties != nil {
		s.CaseSensitiveProperties = file.CaseSensitiveProperties
	}
	if file.CatalogTimeout > 0 {
		s.CatalogTimeout = file.CatalogTimeout
	}
	s.Strict = s.Strict || file.Strict
	for name, o := range file.Providers {
		s.Providers[name] = o.apply(s.Providers[name])
	}
}

// ProviderNames returns the configured provider keys in sorted order.
func (s Settings) ProviderNames() []string {
	names := make([]string, 0, len(s.Providers))
	for name := range s.Providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
