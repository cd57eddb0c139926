// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/AleutianAI/text2cypher/pkg/config"
	"github.com/AleutianAI/text2cypher/pkg/logging"
	"github.com/AleutianAI/text2cypher/pkg/telemetry"
	"github.com/AleutianAI/text2cypher/pkg/ux"
	"github.com/AleutianAI/text2cypher/services/llm"
	"github.com/AleutianAI/text2cypher/services/schema"
	"github.com/AleutianAI/text2cypher/services/text2cypher"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

// app carries the process streams and the state shared by subcommands.
// Tests build one with buffers and a map-backed environment.
type app struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
	getenv config.Getenv

	// Set by the persistent pre-run.
	settings config.Settings
	logger   *logging.Logger

	// registry receives generator metrics and, when enabled, the OTel
	// bridge. Commands that serve /metrics expose it.
	registry *prometheus.Registry

	shutdownTelemetry func(context.Context) error

	// Flags.
	configPath string
	envFile    string
	logLevel   string
	logDir     string
	logJSON    bool
	trace      bool
}

func newApp(stdin io.Reader, stdout, stderr io.Writer, getenv config.Getenv) *app {
	return &app{
		stdin:    stdin,
		stdout:   stdout,
		stderr:   stderr,
		getenv:   getenv,
		registry: prometheus.NewRegistry(),
	}
}

// run executes the command line and returns the process exit code.
func (a *app) run(args []string) int {
	root := a.rootCmd()
	root.SetArgs(args)
	err := root.Execute()
	if terr := a.teardown(context.Background()); err == nil {
		err = terr
	}
	if err != nil {
		ux.NewPrinter(a.stderr, false).Error(err.Error())
		return 1
	}
	return 0
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "text2cypher",
		Short:         "Generate schema-constrained Cypher queries from natural language",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd.Context(), cmd.Name())
		},
	}
	root.SetIn(a.stdin)
	root.SetOut(a.stdout)
	root.SetErr(a.stderr)

	flags := root.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "settings file (default "+config.DefaultSettingsFile+" when present)")
	flags.StringVar(&a.envFile, "env-file", ".env", "environment file loaded before reading configuration")
	flags.StringVar(&a.logLevel, "log-level", "", "debug, info, warn or error (default $TEXT2CYPHER_LOG_LEVEL or warn)")
	flags.StringVar(&a.logDir, "log-dir", "", "also write JSON logs to this directory")
	flags.BoolVar(&a.logJSON, "log-json", false, "log to stderr as JSON")
	flags.BoolVar(&a.trace, "trace", false, "print OpenTelemetry spans to stderr")

	root.AddCommand(
		a.exportSchemaCmd(),
		a.chatCmd(),
		a.askCmd(),
		a.serveCmd(),
		a.schemaCmd(),
	)
	return root
}

// setup loads configuration, then builds the logger and telemetry.
// The serve command bridges OTel metrics into /metrics unless an exporter
// is chosen explicitly.
func (a *app) setup(ctx context.Context, command string) error {
	if err := config.LoadDotEnv(a.envFile); err != nil {
		return err
	}

	levelName := firstNonEmpty(a.logLevel, a.getenv("TEXT2CYPHER_LOG_LEVEL"), "warn")
	level, err := logging.ParseLevel(levelName)
	if err != nil {
		return &config.ConfigInvalidError{Variable: "TEXT2CYPHER_LOG_LEVEL", Reason: err.Error()}
	}
	a.logger = logging.New(logging.Config{
		Level:   level,
		LogDir:  a.logDir,
		Service: "text2cypher",
		JSON:    a.logJSON,
		Output:  a.stderr,
	})
	slog.SetDefault(a.logger.Slog())

	settings, err := config.LoadSettings(a.configPath, a.getenv)
	if err != nil {
		return err
	}
	a.settings = settings

	tcfg := telemetry.DefaultConfig(a.getenv)
	if a.trace {
		tcfg.TraceExporter = telemetry.ExporterStdout
	}
	if command == "serve" && tcfg.MetricExporter == telemetry.ExporterNone {
		tcfg.MetricExporter = telemetry.ExporterPrometheus
	}
	tcfg.Output = a.stderr
	tcfg.Registerer = a.registry
	if ctx == nil {
		ctx = context.Background()
	}
	shutdown, err := telemetry.Init(ctx, tcfg)
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	a.shutdownTelemetry = shutdown
	return nil
}

// teardown flushes telemetry and closes log files. It runs after every
// command, including failed ones.
func (a *app) teardown(ctx context.Context) error {
	var err error
	if a.shutdownTelemetry != nil {
		err = a.shutdownTelemetry(ctx)
		a.shutdownTelemetry = nil
	}
	if a.logger != nil {
		_ = a.logger.Close()
		a.logger = nil
	}
	return err
}

func (a *app) log() *slog.Logger {
	if a.logger == nil {
		return slog.Default()
	}
	return a.logger.Slog()
}

// newGenerator resolves the provider, loads the persisted schema and
// optional hints and builds a Generator.
func (a *app) newGenerator(providerName string, metrics *text2cypher.Metrics) (*text2cypher.Generator, error) {
	provider, err := config.LoadProvider(providerName, a.settings, a.getenv)
	if err != nil {
		return nil, err
	}
	client, err := llm.NewClient(provider, a.log())
	if err != nil {
		return nil, err
	}
	hints, err := schema.LoadHints(a.settings.HintsPath)
	if err != nil {
		return nil, err
	}

	opts := []text2cypher.Option{
		text2cypher.WithLogger(a.log()),
		text2cypher.WithHints(hints),
	}
	if metrics != nil {
		opts = append(opts, text2cypher.WithMetrics(metrics))
	}
	return text2cypher.New(
		text2cypher.NewConfig(a.settings, provider),
		schema.NewStore(a.settings.SchemaPath),
		client,
		opts...,
	)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

// expandHome replaces a leading "~" with the user's home directory.
func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return home + path[1:]
}
