// Package ui renders progress for bulk indexing runs: a bubbletea view on
// interactive terminals and line-oriented text everywhere else.
package ui

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/mattn/go-isatty"
)

// Stage is the phase of a bulk run.
type Stage int

const (
	// StageScanning walks the tree and queues files.
	StageScanning Stage = iota
	// StageProcessing waits for queued files to be indexed.
	StageProcessing
	// StageComplete is reached once the queue drains.
	StageComplete
)

func (s Stage) String() string {
	switch s {
	case StageScanning:
		return "Scanning"
	case StageProcessing:
		return "Processing"
	case StageComplete:
		return "Complete"
	default:
		return "Unknown"
	}
}

// Icon is the tag used by the plain renderer.
func (s Stage) Icon() string {
	switch s {
	case StageScanning:
		return "SCAN"
	case StageProcessing:
		return "INDEX"
	case StageComplete:
		return "DONE"
	default:
		return "???"
	}
}

// ProgressEvent reports Current of Total files finished. Total grows
// while scanning.
type ProgressEvent struct {
	Stage       Stage
	Current     int
	Total       int
	CurrentFile string
}

// ErrorEvent is one file that could not be processed.
type ErrorEvent struct {
	File string
	Err  error
}

// CompletionStats summarizes a finished run.
type CompletionStats struct {
	Processed int
	Skipped   int
	Failed    int
	Duration  time.Duration
	Model     string
}

// Renderer displays a bulk run. Implementations are safe for concurrent
// use.
type Renderer interface {
	Start(ctx context.Context) error
	UpdateProgress(event ProgressEvent)
	AddError(event ErrorEvent)
	Complete(stats CompletionStats)
	Stop() error
}

// Config selects and configures a renderer.
type Config struct {
	Output     io.Writer
	ForcePlain bool
	NoColor    bool
	Root       string // shown in the TUI header
}

// ConfigOption modifies a Config.
type ConfigOption func(*Config)

// WithForcePlain disables the TUI.
func WithForcePlain(force bool) ConfigOption {
	return func(c *Config) { c.ForcePlain = force }
}

// WithNoColor disables colors in the TUI.
func WithNoColor(noColor bool) ConfigOption {
	return func(c *Config) { c.NoColor = noColor }
}

// WithRoot sets the directory shown in the header.
func WithRoot(root string) ConfigOption {
	return func(c *Config) { c.Root = root }
}

// NewConfig returns a Config writing to output.
func NewConfig(output io.Writer, opts ...ConfigOption) Config {
	cfg := Config{Output: output, NoColor: DetectNoColor()}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// NewRenderer returns the TUI for interactive terminals outside CI and the
// plain renderer otherwise.
func NewRenderer(cfg Config) Renderer {
	if cfg.ForcePlain || !IsTTY(cfg.Output) || DetectCI() {
		return NewPlainRenderer(cfg)
	}
	tui, err := NewTUIRenderer(cfg)
	if err != nil {
		return NewPlainRenderer(cfg)
	}
	return tui
}

// IsTTY reports whether w is a terminal.
func IsTTY(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok || f == nil {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// DetectNoColor honors the NO_COLOR convention.
func DetectNoColor() bool {
	_, ok := os.LookupEnv("NO_COLOR")
	return ok
}

// DetectCI reports whether a common CI variable is set.
func DetectCI() bool {
	for _, v := range []string{"CI", "GITHUB_ACTIONS", "GITLAB_CI", "JENKINS_URL", "TRAVIS"} {
		if _, ok := os.LookupEnv(v); ok {
			return true
		}
	}
	return false
}
