// Package output formats CLI results for terminals and pipes.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/mattn/go-isatty"
)

// Writer prints human-readable CLI output. Icons are emoji on a terminal
// and ASCII tags otherwise, so piped output stays grep-friendly.
type Writer struct {
	out   io.Writer
	fancy bool
}

// New creates a Writer, detecting whether out is a terminal.
// NO_COLOR disables the terminal style.
func New(out io.Writer) *Writer {
	return &Writer{out: out, fancy: IsTTY(out) && !DetectNoColor()}
}

// NewPlain creates a Writer that never uses terminal styling.
func NewPlain(out io.Writer) *Writer {
	return &Writer{out: out}
}

// IsTTY reports whether w is a terminal.
func IsTTY(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok || f == nil {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// DetectNoColor checks if NO_COLOR environment variable is set.
func DetectNoColor() bool {
	_, exists := os.LookupEnv("NO_COLOR")
	return exists
}

func (w *Writer) icon(fancy, plain string) string {
	if w.fancy {
		return fancy
	}
	return plain
}

// Status prints a message with an optional icon.
// Errors from writing are intentionally ignored for console output.
func (w *Writer) Status(icon, msg string) {
	if icon != "" {
		_, _ = fmt.Fprintf(w.out, "%s %s\n", icon, msg)
	} else {
		_, _ = fmt.Fprintf(w.out, "   %s\n", msg)
	}
}

// Statusf prints a formatted status message.
func (w *Writer) Statusf(icon, format string, args ...any) {
	w.Status(icon, fmt.Sprintf(format, args...))
}

func (w *Writer) Success(msg string) { w.Status(w.icon("✅", "[ok]"), msg) }

// Successf prints a formatted success message.
func (w *Writer) Successf(format string, args ...any) {
	w.Success(fmt.Sprintf(format, args...))
}

func (w *Writer) Skipped(msg string) { w.Status(w.icon("⏭️ ", "[skip]"), msg) }

func (w *Writer) Warning(msg string) { w.Status(w.icon("⚠️ ", "[warn]"), msg) }

// Warningf prints a formatted warning.
func (w *Writer) Warningf(format string, args ...any) {
	w.Warning(fmt.Sprintf(format, args...))
}

func (w *Writer) Error(msg string) { w.Status(w.icon("❌", "[error]"), msg) }

// KeyValue prints an aligned "key: value" line.
func (w *Writer) KeyValue(key string, value any) {
	_, _ = fmt.Fprintf(w.out, "  %-14s %v\n", key+":", value)
}

// Table prints rows under a header, columns aligned with tabs.
func (w *Writer) Table(header []string, rows [][]string) {
	tw := tabwriter.NewWriter(w.out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, strings.Join(header, "\t"))
	for _, row := range rows {
		_, _ = fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	_ = tw.Flush()
}

// JSON prints v as indented JSON.
func (w *Writer) JSON(v any) error {
	enc := json.NewEncoder(w.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Newline prints an empty line.
func (w *Writer) Newline() {
	_, _ = fmt.Fprintln(w.out)
}
