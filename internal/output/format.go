// Package output formats command results for the courier CLI.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// Format represents the output format.
type Format string

// Output format constants.
const (
	FormatText Format = "text"
	FormatJSON Format = "json"
	FormatAuto Format = "auto"
)

// Formatter writes results either as indented JSON or as text.
type Formatter struct {
	format Format
	writer io.Writer
	status io.Writer
}

// NewFormatter creates a formatter writing results to w and status lines
// to stderr.
func NewFormatter(format Format, w io.Writer) *Formatter {
	return &Formatter{format: format, writer: w, status: os.Stderr}
}

// WithStatusWriter redirects status lines, mainly for tests.
func (f *Formatter) WithStatusWriter(w io.Writer) *Formatter {
	f.status = w
	return f
}

// Format returns the current output format.
func (f *Formatter) Format() Format {
	return f.format
}

// Writer returns the output writer.
func (f *Formatter) Writer() io.Writer {
	return f.writer
}

// IsJSON returns true if the formatter outputs JSON.
func (f *Formatter) IsJSON() bool {
	return f.format == FormatJSON
}

// Render writes v as JSON, or calls text for the text format.
func (f *Formatter) Render(v any, text func(w io.Writer) error) error {
	if f.IsJSON() {
		return writeJSON(f.writer, v)
	}
	return text(f.writer)
}

// Printf writes formatted text output.
func (f *Formatter) Printf(format string, args ...any) error {
	_, err := fmt.Fprintf(f.writer, format, args...)
	return err
}

// Statusf writes a progress line to the status writer. Status lines never
// mix with JSON results.
func (f *Formatter) Statusf(format string, args ...any) {
	_, _ = fmt.Fprintf(f.status, format+"\n", args...)
}

// Warnf writes a warning to the status writer.
func (f *Formatter) Warnf(format string, args ...any) {
	f.Statusf("warning: "+format, args...)
}

func writeJSON(w io.Writer, v any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

// DetectFormat resolves FormatAuto: text on a terminal, JSON otherwise.
func DetectFormat(w io.Writer, explicit Format) Format {
	if explicit != FormatAuto {
		return explicit
	}
	if f, ok := w.(*os.File); ok {
		if term.IsTerminal(int(f.Fd())) { //nolint:gosec // G115: Fd() returns uintptr, safe conversion for term.IsTerminal
			return FormatText
		}
	}
	return FormatJSON
}

// ParseFormat parses a format string.
func ParseFormat(s string) Format {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "json":
		return FormatJSON
	case "text":
		return FormatText
	default:
		return FormatAuto
	}
}
