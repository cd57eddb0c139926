// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package text2cypher turns natural-language questions into read-only
// Cypher queries constrained to the extracted graph schema.
//
// # Overview
//
// A Generator is bound to one backend provider. At construction it loads
// the schema, compiles it into prompt text and assembles the system block
// (rules, schema, hints) once. Conversations live in Sessions keyed by an
// identifier; each Session keeps its own history, so concurrent
// conversations never see each other's turns.
//
//	gen, err := text2cypher.New(cfg, schema.NewStore(path), client)
//	reply, err := gen.Session("alice").Respond(ctx, "find proteins linked to lung cancer")
//	fmt.Println(reply.Query)
package text2cypher

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/AleutianAI/text2cypher/pkg/config"
	"github.com/AleutianAI/text2cypher/services/llm"
	"github.com/AleutianAI/text2cypher/services/schema"
	"github.com/AleutianAI/text2cypher/services/schemaprompt"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/prompts"
	"go.opentelemetry.io/otel"
	"golang.org/x/time/rate"
)

var tracer = otel.Tracer("text2cypher.generator")

// DefaultSessionID is the conversation used when the caller does not name
// one. Every caller that omits an id shares it.
const DefaultSessionID = "shared"

const (
	historyKey   = "history"
	userInputKey = "user_input"
)

// SchemaSource supplies the schema a Generator is built on.
// *schema.Store implements it.
type SchemaSource interface {
	Load() (*schema.NormalizedSchema, error)
}

// Config tunes a Generator.
type Config struct {
	// Provider names the backend, used in logs, metrics and errors.
	Provider string

	// Timeout bounds one backend round trip. Zero means
	// config.DefaultProviderTimeout.
	Timeout time.Duration

	// RequestsPerSecond throttles backend calls across all sessions.
	// Zero disables throttling.
	RequestsPerSecond float64

	// DefaultLimit is the LIMIT the rules require. Zero means
	// config.DefaultLimit.
	DefaultLimit int

	// CaseSensitiveProperties are "Label.property" pairs exempt from the
	// lowercase comparison rule.
	CaseSensitiveProperties []string

	// IncludeProperties adds node properties to the compiled schema.
	IncludeProperties bool

	// Strict rejects replies that break a rule instead of returning them
	// with violations attached.
	Strict bool
}

// NewConfig derives a Config from loaded settings and a resolved provider.
func NewConfig(settings config.Settings, provider config.ProviderConfig) Config {
	return Config{
		Provider:                provider.Name,
		Timeout:                 provider.Timeout,
		RequestsPerSecond:       provider.RequestsPerSecond,
		DefaultLimit:            settings.DefaultLimit,
		CaseSensitiveProperties: append([]string(nil), settings.CaseSensitiveProperties...),
		IncludeProperties:       true,
		Strict:                  settings.Strict,
	}
}

// Option configures a Generator.
type Option func(*Generator)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(g *Generator) { g.logger = logger }
}

// WithHints adds schema hints to the system block.
func WithHints(hints schema.Hints) Option {
	return func(g *Generator) { g.hints = hints }
}

// WithMetrics records Prometheus metrics. Default: none.
func WithMetrics(m *Metrics) Option {
	return func(g *Generator) { g.metrics = m }
}

// Generator produces Cypher queries for conversational sessions.
//
// # Description
//
// The system block is built once in New and reused for every turn of
// every session: a schema re-extracted after construction is not seen
// until a new Generator is built.
//
// # Thread Safety
//
// Safe for concurrent use. Sessions are independent; turns within one
// session are serialized.
type Generator struct {
	cfg       Config
	client    llm.ChatClient
	schema    *schema.NormalizedSchema
	hints     schema.Hints
	validator *Validator
	limiter   *rate.Limiter
	logger    *slog.Logger
	metrics   *Metrics

	template   prompts.ChatPromptTemplate
	systemText string

	mu       sync.Mutex
	sessions map[string]*Session
}

// New builds a Generator.
//
// # Inputs
//
//   - cfg: Provider and rule tuning.
//   - source: Schema source, normally a *schema.Store.
//   - client: Backend chat client.
//   - opts: Logger, hints and metrics.
//
// # Outputs
//
//   - *Generator: Ready for use.
//   - error: *schema.SchemaUnavailableError when the schema cannot be
//     loaded; a plain error when the system block cannot be assembled.
func New(cfg Config, source SchemaSource, client llm.ChatClient, opts ...Option) (*Generator, error) {
	if client == nil {
		return nil, fmt.Errorf("text2cypher: nil chat client")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = config.DefaultProviderTimeout
	}
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = config.DefaultLimit
	}
	if cfg.Provider == "" {
		cfg.Provider = client.Model()
	}

	s, err := source.Load()
	if err != nil {
		return nil, err
	}

	g := &Generator{
		cfg:      cfg,
		client:   client,
		schema:   s,
		logger:   slog.Default(),
		sessions: make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(g)
	}
	g.validator = NewValidator(s, cfg.CaseSensitiveProperties)
	if cfg.RequestsPerSecond > 0 {
		g.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}

	systemTemplate := schemaprompt.Escape(Rules(cfg.DefaultLimit, cfg.CaseSensitiveProperties)) +
		"\n\n### Schema\n" +
		schemaprompt.Compile(s, g.hints, schemaprompt.Options{IncludeProperties: cfg.IncludeProperties})

	g.template = prompts.NewChatPromptTemplate([]prompts.MessageFormatter{
		prompts.NewSystemMessagePromptTemplate(systemTemplate, nil),
		prompts.MessagesPlaceholder{VariableName: historyKey},
		prompts.NewHumanMessagePromptTemplate("{{."+userInputKey+"}}", []string{userInputKey}),
	})

	// Render once so a broken template fails construction, not the first turn.
	rendered, err := g.template.FormatMessages(map[string]any{
		historyKey:   []llms.ChatMessage{},
		userInputKey: "",
	})
	if err != nil {
		return nil, fmt.Errorf("assemble system prompt: %w", err)
	}
	g.systemText = rendered[0].GetContent()

	g.logger.Info("generator ready",
		"provider", cfg.Provider,
		"model", client.Model(),
		"labels", len(s.NodeTypes),
		"relationship_types", len(s.RelationshipTypes),
		"hints", len(g.hints) > 0,
		"strict", cfg.Strict)
	return g, nil
}

// Provider returns the configured provider name.
func (g *Generator) Provider() string { return g.cfg.Provider }

// Schema returns the schema the Generator was built on. Read-only.
func (g *Generator) Schema() *schema.NormalizedSchema { return g.schema }

// Hints returns the schema hints, or nil.
func (g *Generator) Hints() schema.Hints { return g.hints }

// SystemPrompt returns the rendered system block sent with every turn.
func (g *Generator) SystemPrompt() string { return g.systemText }

// Validator returns the rule checker applied to every reply.
func (g *Generator) Validator() *Validator { return g.validator }

// Session returns the session for id, creating it on first use. An empty
// id means DefaultSessionID.
func (g *Generator) Session(id string) *Session {
	s, _ := g.OpenSession(id, 0)
	return s
}

// OpenSession is Session with a cap: creating a session while limit are
// already live fails with ErrSessionLimit. limit <= 0 means no cap.
func (g *Generator) OpenSession(id string, limit int) (*Session, error) {
	if id == "" {
		id = DefaultSessionID
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	if s, ok := g.sessions[id]; ok {
		return s, nil
	}
	if limit > 0 && len(g.sessions) >= limit {
		return nil, ErrSessionLimit
	}
	s := newSession(id, g)
	g.sessions[id] = s
	g.metrics.sessionOpened()
	g.logger.Debug("session created", "session_id", id)
	return s, nil
}

// Respond runs one turn in the session named id.
func (g *Generator) Respond(ctx context.Context, id, utterance string) (Reply, error) {
	return g.Session(id).Respond(ctx, utterance)
}

// History returns the turns of the session named id.
func (g *Generator) History(ctx context.Context, id string) ([]Turn, error) {
	return g.Session(id).History(ctx)
}

// Clear empties the history of the session named id.
func (g *Generator) Clear(ctx context.Context, id string) error {
	return g.Session(id).Clear(ctx)
}

// HasSession reports whether id has been used.
func (g *Generator) HasSession(id string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.sessions[id]
	return ok
}

// EndSession forgets the session and its history. It reports whether the
// session existed.
func (g *Generator) EndSession(id string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.sessions[id]; !ok {
		return false
	}
	delete(g.sessions, id)
	g.metrics.sessionClosed()
	return true
}

// SessionIDs lists live sessions in alphabetical order.
func (g *Generator) SessionIDs() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	ids := make([]string, 0, len(g.sessions))
	for id := range g.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
