// Package output renders vestactl messages, service statuses and JSON.
package output

import (
	"fmt"
	"io"
)

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[0;31m"
	colorGreen  = "\033[0;32m"
	colorYellow = "\033[1;33m"
	colorCyan   = "\033[0;36m"
)

// level is the marker printed in front of a message
type level struct {
	color  string
	symbol string
}

var (
	levelSuccess = level{colorGreen, "✓"}
	levelError   = level{colorRed, "✗"}
	levelInfo    = level{colorCyan, "ℹ"}
)

// statusColors maps service statuses to terminal colors; others print plain.
var statusColors = map[string]string{
	"active":    colorGreen,
	"pending":   colorYellow,
	"suspended": colorYellow,
	"canceled":  colorRed,
	"missing":   colorRed,
}

// Styler decorates CLI output, with ANSI colors unless disabled.
type Styler struct {
	noColor bool
}

func NewStyler(noColor bool) *Styler {
	return &Styler{noColor: noColor}
}

func (s *Styler) paint(color, text string) string {
	if s.noColor || color == "" {
		return text
	}
	return color + text + colorReset
}

func (s *Styler) mark(l level, msg string) string {
	return s.paint(l.color, l.symbol) + " " + msg
}

func (s *Styler) Success(msg string) string { return s.mark(levelSuccess, msg) }
func (s *Styler) Error(msg string) string   { return s.mark(levelError, msg) }
func (s *Styler) Info(msg string) string    { return s.mark(levelInfo, msg) }

// Status colors a service status for the detail and list views.
func (s *Styler) Status(status string) string {
	return s.paint(statusColors[status], status)
}

func (s *Styler) FprintSuccess(w io.Writer, msg string) { fmt.Fprintln(w, s.Success(msg)) }
func (s *Styler) FprintError(w io.Writer, msg string)   { fmt.Fprintln(w, s.Error(msg)) }
func (s *Styler) FprintInfo(w io.Writer, msg string)    { fmt.Fprintln(w, s.Info(msg)) }
