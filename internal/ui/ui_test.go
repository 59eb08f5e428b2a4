package ui

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStage_Strings(t *testing.T) {
	assert.Equal(t, "Scanning", StageScanning.String())
	assert.Equal(t, "INDEX", StageProcessing.Icon())
	assert.Equal(t, "DONE", StageComplete.Icon())
	assert.Equal(t, "Unknown", Stage(42).String())
}

func TestNewRenderer_NonTTYIsPlain(t *testing.T) {
	r := NewRenderer(NewConfig(&bytes.Buffer{}))
	_, ok := r.(*PlainRenderer)
	assert.True(t, ok)

	r = NewRenderer(NewConfig(&bytes.Buffer{}, WithForcePlain(true), WithRoot("/docs")))
	_, ok = r.(*PlainRenderer)
	assert.True(t, ok)
}

func TestNewTUIRenderer_RequiresTTY(t *testing.T) {
	_, err := NewTUIRenderer(NewConfig(&bytes.Buffer{}))
	assert.Error(t, err)
	assert.False(t, IsTTY(&bytes.Buffer{}))
}

func TestDetectNoColorAndCI(t *testing.T) {
	t.Setenv("NO_COLOR", "1")
	t.Setenv("CI", "true")
	assert.True(t, DetectNoColor())
	assert.True(t, DetectCI())
	assert.True(t, NewConfig(nil).NoColor)
}

func TestPlainRenderer(t *testing.T) {
	// Given: a plain renderer
	buf := &bytes.Buffer{}
	r := NewPlainRenderer(NewConfig(buf))
	require.NoError(t, r.Start(context.Background()))

	// When: reporting progress, a duplicate, an error and completion
	r.UpdateProgress(ProgressEvent{Stage: StageScanning, Current: 0, Total: 2})
	r.UpdateProgress(ProgressEvent{Stage: StageScanning, Current: 0, Total: 2})
	r.UpdateProgress(ProgressEvent{Stage: StageProcessing, Current: 1, Total: 2, CurrentFile: "/docs/a.txt"})
	r.AddError(ErrorEvent{File: "/docs/b.txt", Err: errors.New("boom")})
	r.Complete(CompletionStats{Processed: 1, Failed: 1, Duration: 1500 * time.Millisecond, Model: "static-32"})
	require.NoError(t, r.Stop())

	// Then: one line per distinct update
	assert.Equal(t, "[SCAN] 0/2\n"+
		"[INDEX] 1/2 - /docs/a.txt\n"+
		"ERROR: /docs/b.txt: boom\n"+
		"Complete: 1 processed, 0 skipped, 1 failed in 1.5s\n"+
		"Model: static-32\n", buf.String())
}

func TestModel_Update(t *testing.T) {
	m := newModel("/docs")
	m.styles = NoColorStyles()

	m.Update(tea.WindowSizeMsg{Width: 100, Height: 30})
	m.Update(progressMsg{Stage: StageProcessing, Current: 1, Total: 4, CurrentFile: "/docs/a.txt"})
	for i := 0; i < 5; i++ {
		m.Update(errorMsg{File: "/docs/bad.txt", Err: errors.New("nope")})
	}

	assert.Equal(t, 80, m.bar.Width)
	assert.Len(t, m.errs, maxShownErrors)
	assert.Equal(t, 5, m.failed)

	view := m.View()
	assert.Contains(t, view, "MagicFolder • /docs")
	assert.Contains(t, view, "Processing")
	assert.Contains(t, view, "1 / 4 files")
	assert.Contains(t, view, "25%")
	assert.Contains(t, view, "bad.txt: nope")
}

func TestModel_CompleteQuits(t *testing.T) {
	m := newModel("")
	m.styles = NoColorStyles()

	_, cmd := m.Update(completeMsg{Processed: 3, Skipped: 1, Duration: time.Second})

	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
	assert.Contains(t, m.View(), "3 processed, 1 skipped, 0 failed in 1s")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "...89", truncate("0123456789", 5))
}
