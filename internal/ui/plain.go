package ui

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"
)

// PlainRenderer writes one line per change, for pipes and CI logs.
type PlainRenderer struct {
	mu   sync.Mutex
	out  io.Writer
	last ProgressEvent
}

// NewPlainRenderer creates a plain text renderer.
func NewPlainRenderer(cfg Config) *PlainRenderer {
	return &PlainRenderer{out: cfg.Output, last: ProgressEvent{Current: -1}}
}

// Start implements Renderer.
func (r *PlainRenderer) Start(context.Context) error {
	return nil
}

// UpdateProgress implements Renderer. Repeated identical counts are
// dropped so polling callers do not flood the output.
func (r *PlainRenderer) UpdateProgress(event ProgressEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if event.Stage == r.last.Stage && event.Current == r.last.Current && event.Total == r.last.Total {
		return
	}
	r.last = event

	if event.CurrentFile != "" {
		_, _ = fmt.Fprintf(r.out, "[%s] %d/%d - %s\n", event.Stage.Icon(), event.Current, event.Total, event.CurrentFile)
		return
	}
	_, _ = fmt.Fprintf(r.out, "[%s] %d/%d\n", event.Stage.Icon(), event.Current, event.Total)
}

// AddError implements Renderer.
func (r *PlainRenderer) AddError(event ErrorEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, _ = fmt.Fprintf(r.out, "ERROR: %s: %v\n", event.File, event.Err)
}

// Complete implements Renderer.
func (r *PlainRenderer) Complete(stats CompletionStats) {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, _ = fmt.Fprintf(r.out, "Complete: %d processed, %d skipped, %d failed in %s\n",
		stats.Processed, stats.Skipped, stats.Failed, stats.Duration.Round(100*time.Millisecond))
	if stats.Model != "" {
		_, _ = fmt.Fprintf(r.out, "Model: %s\n", stats.Model)
	}
}

// Stop implements Renderer.
func (r *PlainRenderer) Stop() error {
	return nil
}
