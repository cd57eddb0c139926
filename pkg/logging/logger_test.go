// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package logging

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Level Tests
// =============================================================================

func TestLevel_String(t *testing.T) {
	tests := []struct {
		level Level
		want  string
	}{
		{LevelDebug, "DEBUG"},
		{LevelInfo, "INFO"},
		{LevelWarn, "WARN"},
		{LevelError, "ERROR"},
		{Level(42), "UNKNOWN"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.level.String())
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{"", LevelInfo, false},
		{"debug", LevelDebug, false},
		{"INFO", LevelInfo, false},
		{" warning ", LevelWarn, false},
		{"Error", LevelError, false},
		{"verbose", LevelInfo, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

// =============================================================================
// Logger Tests
// =============================================================================

func TestNew_WritesToOutput(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: LevelInfo, Service: "export-schema", Output: &buf})
	defer logger.Close()

	logger.Info("schema written", "path", "out/neo4j_schema.json")

	out := buf.String()
	assert.Contains(t, out, "schema written")
	assert.Contains(t, out, "service=export-schema")
	assert.Contains(t, out, "path=out/neo4j_schema.json")
}

func TestNew_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: LevelWarn, Output: &buf})
	defer logger.Close()

	logger.Debug("prompt assembled")
	logger.Info("turn completed")
	logger.Warn("contract violation", "rule", 9)
	logger.Error("backend failed")

	out := buf.String()
	assert.NotContains(t, out, "prompt assembled")
	assert.NotContains(t, out, "turn completed")
	assert.Contains(t, out, "contract violation")
	assert.Contains(t, out, "backend failed")
}

func TestNew_JSONOutput(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{JSON: true, Output: &buf})
	defer logger.Close()

	logger.Info("hello")
	assert.True(t, strings.HasPrefix(strings.TrimSpace(buf.String()), "{"))
	assert.Contains(t, buf.String(), `"msg":"hello"`)
}

func TestNew_WithLogDir(t *testing.T) {
	tmpDir := filepath.Join(t.TempDir(), "nested", "logs")
	var console bytes.Buffer
	logger := New(Config{LogDir: tmpDir, Service: "chat", Output: &console})

	logger.Info("session started", "session_id", "shared")
	require.NoError(t, logger.Close())

	files, err := os.ReadDir(tmpDir)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.True(t, strings.HasPrefix(files[0].Name(), "chat_"))

	data, err := os.ReadFile(filepath.Join(tmpDir, files[0].Name()))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"session_id":"shared"`)
	assert.Contains(t, console.String(), "session started")
}

func TestNew_QuietWithoutFileFallsBack(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Quiet: true, Output: &buf})
	defer logger.Close()

	logger.Info("still visible")
	assert.Contains(t, buf.String(), "still visible")
}

func TestLogger_With(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Output: &buf})
	defer logger.Close()

	child := logger.With("provider", "llama")
	child.Info("turn completed")
	assert.Contains(t, buf.String(), "provider=llama")
	assert.Same(t, logger.file, child.file)
}

func TestLogger_CloseIsIdempotent(t *testing.T) {
	logger := New(Config{LogDir: t.TempDir(), Quiet: true})
	assert.NoError(t, logger.Close())
	assert.NoError(t, logger.Close())
}

func TestLogger_Slog(t *testing.T) {
	logger := New(Config{Quiet: true, Output: &bytes.Buffer{}})
	assert.NotNil(t, logger.Slog())
}

// =============================================================================
// multiHandler Tests
// =============================================================================

func TestMultiHandler_Enabled(t *testing.T) {
	var buf bytes.Buffer
	h1 := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	h2 := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelError})
	mh := &multiHandler{handlers: []slog.Handler{h1, h2}}

	assert.True(t, mh.Enabled(context.Background(), slog.LevelDebug))

	only := &multiHandler{handlers: []slog.Handler{h2}}
	assert.False(t, only.Enabled(context.Background(), slog.LevelInfo))
}

func TestMultiHandler_HandleFiltersPerHandler(t *testing.T) {
	var debugBuf, errorBuf bytes.Buffer
	mh := &multiHandler{handlers: []slog.Handler{
		slog.NewTextHandler(&debugBuf, &slog.HandlerOptions{Level: slog.LevelDebug}),
		slog.NewTextHandler(&errorBuf, &slog.HandlerOptions{Level: slog.LevelError}),
	}}

	logger := slog.New(mh.WithAttrs([]slog.Attr{slog.String("k", "v")}))
	logger.Info("info only")

	assert.Contains(t, debugBuf.String(), "info only")
	assert.Contains(t, debugBuf.String(), "k=v")
	assert.Empty(t, errorBuf.String())
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}
	assert.Equal(t, filepath.Join(home, ".text2cypher/logs"), expandPath("~/.text2cypher/logs"))
	assert.Equal(t, "/var/log", expandPath("/var/log"))
}
