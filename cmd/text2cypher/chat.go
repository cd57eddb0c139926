// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/AleutianAI/text2cypher/pkg/ux"
	"github.com/AleutianAI/text2cypher/pkg/validation"
	"github.com/AleutianAI/text2cypher/services/text2cypher"
	"github.com/spf13/cobra"
)

const (
	promptText = "You> "

	commandClear   = ":clear"
	commandHistory = ":history"
	commandQuit    = ":quit"
	commandExit    = ":exit"
)

// =============================================================================
// Input
// =============================================================================

// InputReader abstracts line input so the chat loop can be driven by tests.
type InputReader interface {
	// ReadLine returns the next line with surrounding whitespace trimmed,
	// or io.EOF when input is exhausted.
	ReadLine() (string, error)
}

// StdinReader reads lines from a stream, normally os.Stdin.
//
// # Thread Safety
//
// Not thread-safe. One reader per stream.
type StdinReader struct {
	reader *bufio.Reader
}

// NewStdinReader wraps r.
func NewStdinReader(r io.Reader) *StdinReader {
	return &StdinReader{reader: bufio.NewReader(r)}
}

// ReadLine reads until newline. A final line without a newline is
// returned before io.EOF.
func (s *StdinReader) ReadLine() (string, error) {
	line, err := s.reader.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) && line != "" {
			return strings.TrimSpace(line), nil
		}
		return "", err
	}
	return strings.TrimSpace(line), nil
}

type lineResult struct {
	line string
	err  error
}

// readLine runs one blocking ReadLine so the loop can give up on ctx.
// A read abandoned on cancellation is left to the exiting process.
func readLine(ctx context.Context, input InputReader) (string, error) {
	ch := make(chan lineResult, 1)
	go func() {
		line, err := input.ReadLine()
		ch <- lineResult{line: line, err: err}
	}()
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case r := <-ch:
		return r.line, r.err
	}
}

// =============================================================================
// Chat loop
// =============================================================================

// chatRunner drives one interactive conversation.
type chatRunner struct {
	session *text2cypher.Session
	input   InputReader
	out     *ux.Printer
	errOut  *ux.Printer
}

// Run reads utterances until EOF, ":quit" or cancellation. Failed turns
// are reported and the loop continues.
func (r *chatRunner) Run(ctx context.Context) error {
	for {
		r.out.Prompt(promptText)
		line, err := readLine(ctx, r.input)
		if err != nil {
			// Leave the cursor on a fresh line after "You> ".
			r.out.Line("")
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read input: %w", err)
		}
		if line == "" {
			continue
		}

		switch line {
		case commandQuit, commandExit:
			return nil
		case commandClear:
			if err := r.session.Clear(ctx); err != nil {
				r.errOut.Error(err.Error())
				continue
			}
			r.out.Muted("history cleared")
			r.out.Line("")
			continue
		case commandHistory:
			r.printHistory(ctx)
			continue
		}

		stop := r.errOut.Spin("generating query")
		reply, err := r.session.Respond(ctx, line)
		stop()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			r.reportError(err)
			r.out.Line("")
			continue
		}
		r.out.Query(reply.Query)
		for _, v := range reply.Violations {
			r.errOut.Warning(v.String())
		}
		r.out.Line("")
	}
}

func (r *chatRunner) printHistory(ctx context.Context) {
	turns, err := r.session.History(ctx)
	if err != nil {
		r.errOut.Error(err.Error())
		return
	}
	if len(turns) == 0 {
		r.out.Muted("no history")
		r.out.Line("")
		return
	}
	for _, t := range turns {
		r.out.Line(fmt.Sprintf("[%s] %s", t.Role, t.Content))
	}
	r.out.Line("")
}

func (r *chatRunner) reportError(err error) {
	var contract *text2cypher.ContractViolationError
	if errors.As(err, &contract) {
		r.errOut.Error("rejected query: " + contract.Query)
		for _, v := range contract.Violations {
			r.errOut.Warning(v.String())
		}
		return
	}
	r.errOut.Error(err.Error())
}

// =============================================================================
// Command
// =============================================================================

func (a *app) chatCmd() *cobra.Command {
	var (
		provider  string
		sessionID string
	)
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Interactive session: type questions, get Cypher queries",
		Long: "Starts a conversation with the configured model. Each line you type is\n" +
			"answered with a single Cypher query. Follow-up questions see earlier turns.\n\n" +
			"Commands: :clear forgets the conversation, :history prints it, :quit exits.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validation.ValidateSessionID(sessionID); err != nil {
				return err
			}
			gen, err := a.newGenerator(provider, text2cypher.NewMetrics(a.registry))
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			runner := &chatRunner{
				session: gen.Session(sessionID),
				input:   NewStdinReader(a.stdin),
				out:     a.printer(a.stdout),
				errOut:  a.printer(a.stderr),
			}
			return runner.Run(ctx)
		},
	}
	cmd.Flags().StringVar(&provider, "provider", "llama", "model provider (see the providers section of the settings file)")
	cmd.Flags().StringVar(&sessionID, "session", text2cypher.DefaultSessionID, "conversation id")
	return cmd
}

// printer styles output only when w is a terminal.
func (a *app) printer(w io.Writer) *ux.Printer {
	if f, ok := w.(*os.File); ok {
		return ux.NewTerminalPrinter(f)
	}
	return ux.NewPrinter(w, false)
}
