// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package ux provides terminal output styling for the text2cypher CLI.
package ux

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
)

// Color palette: deep ocean teals plus standard semantic colors.
var (
	ColorTealBright  = lipgloss.Color("#2CD7C7")
	ColorTealPrimary = lipgloss.Color("#20B9B4")
	ColorTealDeep    = lipgloss.Color("#16858E")
	ColorSlate       = lipgloss.Color("#2C4A54")

	ColorWarning = lipgloss.Color("#F4D03F")
	ColorError   = lipgloss.Color("#E74C3C")
)

// Styles provides pre-configured lipgloss styles.
var Styles = struct {
	Title   lipgloss.Style
	Prompt  lipgloss.Style
	Query   lipgloss.Style
	Muted   lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style
	Box     lipgloss.Style
}{
	Title:   lipgloss.NewStyle().Bold(true).Foreground(ColorTealBright),
	Prompt:  lipgloss.NewStyle().Bold(true).Foreground(ColorTealPrimary),
	Query:   lipgloss.NewStyle().Foreground(ColorTealBright),
	Muted:   lipgloss.NewStyle().Foreground(ColorSlate),
	Warning: lipgloss.NewStyle().Foreground(ColorWarning),
	Error:   lipgloss.NewStyle().Foreground(ColorError),
	Box: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorTealDeep).
		Padding(0, 1),
}

// Icon is a status glyph.
type Icon string

const (
	IconWarning Icon = "⚠"
	IconError   Icon = "✗"
	IconBullet  Icon = "•"
)

// IsTerminal reports whether f is an interactive terminal.
func IsTerminal(f *os.File) bool {
	if f == nil {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// Printer writes CLI output, styled only when the destination is a
// terminal. Plain output is byte-stable so it can be piped or tested.
//
// # Thread Safety
//
// Not thread-safe. One Printer per output stream.
type Printer struct {
	out    io.Writer
	styled bool
}

// NewPrinter returns a Printer writing to out.
func NewPrinter(out io.Writer, styled bool) *Printer {
	return &Printer{out: out, styled: styled}
}

// NewTerminalPrinter styles output when f is a terminal.
func NewTerminalPrinter(f *os.File) *Printer {
	return NewPrinter(f, IsTerminal(f))
}

func (p *Printer) render(style lipgloss.Style, text string) string {
	if !p.styled {
		return text
	}
	return style.Render(text)
}

// Title prints a heading line.
func (p *Printer) Title(text string) {
	fmt.Fprintln(p.out, p.render(Styles.Title, text))
}

// Prompt prints text without a trailing newline.
func (p *Printer) Prompt(text string) {
	fmt.Fprint(p.out, p.render(Styles.Prompt, text))
}

// Query prints a generated query.
func (p *Printer) Query(query string) {
	fmt.Fprintln(p.out, p.render(Styles.Query, query))
}

// Line prints text as is.
func (p *Printer) Line(text string) {
	fmt.Fprintln(p.out, text)
}

// Muted prints secondary information.
func (p *Printer) Muted(text string) {
	fmt.Fprintln(p.out, p.render(Styles.Muted, text))
}

// Warning prints a warning line.
func (p *Printer) Warning(text string) {
	fmt.Fprintf(p.out, "%s %s\n", p.render(Styles.Warning, string(IconWarning)), p.render(Styles.Warning, text))
}

// Error prints an error line.
func (p *Printer) Error(text string) {
	fmt.Fprintf(p.out, "%s %s\n", p.render(Styles.Error, string(IconError)), p.render(Styles.Error, text))
}

// Bullets prints one bullet per item.
func (p *Printer) Bullets(items []string) {
	for _, item := range items {
		fmt.Fprintf(p.out, "  %s %s\n", IconBullet, item)
	}
}

// Box prints content in a bordered box, or under a title line when
// unstyled.
func (p *Printer) Box(title, content string) {
	if !p.styled {
		fmt.Fprintf(p.out, "%s\n%s\n", title, strings.TrimRight(content, "\n"))
		return
	}
	fmt.Fprintln(p.out, Styles.Box.Render(Styles.Title.Render(title)+"\n"+strings.TrimRight(content, "\n")))
}
