package ui

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// maxShownErrors bounds the error list in the live view.
const maxShownErrors = 3

// TUIRenderer draws a live progress panel with bubbletea.
type TUIRenderer struct {
	mu      sync.Mutex
	cfg     Config
	model   *model
	program *tea.Program
	done    chan struct{}
}

// NewTUIRenderer fails when the output is not a terminal.
func NewTUIRenderer(cfg Config) (*TUIRenderer, error) {
	if !IsTTY(cfg.Output) {
		return nil, errors.New("output is not a TTY")
	}
	m := newModel(cfg.Root)
	if cfg.NoColor {
		m.styles = NoColorStyles()
	}
	return &TUIRenderer{cfg: cfg, model: m, done: make(chan struct{})}, nil
}

// Start implements Renderer.
func (r *TUIRenderer) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.program != nil {
		return nil
	}

	opts := []tea.ProgramOption{tea.WithContext(ctx), tea.WithInput(nil)}
	if f, ok := r.cfg.Output.(*os.File); ok {
		opts = append(opts, tea.WithOutput(f))
	}
	r.program = tea.NewProgram(r.model, opts...)
	go func() {
		defer close(r.done)
		_, _ = r.program.Run()
	}()
	return nil
}

func (r *TUIRenderer) send(msg tea.Msg) {
	r.mu.Lock()
	p := r.program
	r.mu.Unlock()
	if p != nil {
		p.Send(msg)
	}
}

// UpdateProgress implements Renderer.
func (r *TUIRenderer) UpdateProgress(event ProgressEvent) { r.send(progressMsg(event)) }

// AddError implements Renderer.
func (r *TUIRenderer) AddError(event ErrorEvent) { r.send(errorMsg(event)) }

// Complete implements Renderer. The program exits after drawing the
// summary.
func (r *TUIRenderer) Complete(stats CompletionStats) { r.send(completeMsg(stats)) }

// Stop implements Renderer. It waits briefly for the final frame.
func (r *TUIRenderer) Stop() error {
	r.mu.Lock()
	p := r.program
	r.mu.Unlock()
	if p == nil {
		return nil
	}
	p.Quit()
	select {
	case <-r.done:
	case <-time.After(2 * time.Second):
	}
	return nil
}

type (
	progressMsg ProgressEvent
	errorMsg    ErrorEvent
	completeMsg CompletionStats
)

type model struct {
	root    string
	started time.Time
	stage   Stage
	current int
	total   int
	file    string
	errs    []ErrorEvent
	failed  int
	stats   *CompletionStats
	width   int
	spinner spinner.Model
	bar     progress.Model
	styles  Styles
}

func newModel(root string) *model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color(ColorAccent))

	return &model{
		root:    root,
		started: time.Now(),
		width:   80,
		spinner: s,
		bar: progress.New(
			progress.WithSolidFill(ColorAccent),
			progress.WithWidth(50),
			progress.WithoutPercentage(),
		),
		styles: DefaultStyles(),
	}
}

// Init implements tea.Model.
func (m *model) Init() tea.Cmd {
	return m.spinner.Tick
}

// Update implements tea.Model.
func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.bar.Width = max(msg.Width-20, 20)
	case progressMsg:
		m.stage = msg.Stage
		m.current = msg.Current
		m.total = msg.Total
		if msg.CurrentFile != "" {
			m.file = msg.CurrentFile
		}
	case errorMsg:
		m.failed++
		m.errs = append(m.errs, ErrorEvent(msg))
		if len(m.errs) > maxShownErrors {
			m.errs = m.errs[1:]
		}
	case completeMsg:
		stats := CompletionStats(msg)
		m.stats = &stats
		m.stage = StageComplete
		return m, tea.Quit
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

// View implements tea.Model.
func (m *model) View() string {
	if m.stats != nil {
		return m.summary()
	}

	title := "MagicFolder"
	if m.root != "" {
		title += " • " + m.root
	}

	lines := []string{
		m.styles.Header.Render(title),
		m.spinner.View() + " " + m.styles.Active.Render(m.stage.String()),
	}

	percent := 0.0
	if m.total > 0 {
		percent = float64(m.current) / float64(m.total)
	}
	lines = append(lines,
		fmt.Sprintf("%s  %s", m.bar.ViewAs(percent), m.styles.Active.Render(fmt.Sprintf("%3.0f%%", percent*100))),
		m.styles.Label.Render(fmt.Sprintf("%d / %d files", m.current, m.total)))

	if rate := m.rate(); rate > 0 {
		line := fmt.Sprintf("Speed: %.1f files/s", rate)
		if m.total > m.current && m.stage == StageProcessing {
			eta := time.Duration(float64(m.total-m.current) / rate * float64(time.Second))
			line += "  •  ETA: " + eta.Round(time.Second).String()
		}
		lines = append(lines, m.styles.Label.Render(line))
	}
	if m.file != "" {
		lines = append(lines, m.styles.Dim.Render(truncate(m.file, max(m.width-8, 20))))
	}
	for _, e := range m.errs {
		lines = append(lines, m.styles.Error.Render(fmt.Sprintf("✗ %s: %v", filepath.Base(e.File), e.Err)))
	}

	return m.styles.Panel.Render(strings.Join(lines, "\n")) + "\n"
}

func (m *model) rate() float64 {
	elapsed := time.Since(m.started).Seconds()
	if elapsed <= 0 || m.current == 0 {
		return 0
	}
	return float64(m.current) / elapsed
}

func (m *model) summary() string {
	s := m.stats
	line := fmt.Sprintf("✓ %d processed, %d skipped, %d failed in %s",
		s.Processed, s.Skipped, s.Failed, s.Duration.Round(100*time.Millisecond))
	style := m.styles.Success
	if s.Failed > 0 {
		style = m.styles.Error
	}
	out := style.Render(line) + "\n"
	if s.Model != "" {
		out += m.styles.Label.Render("Model: "+s.Model) + "\n"
	}
	return out
}

// truncate keeps the tail of long paths.
func truncate(s string, n int) string {
	if len(s) <= n || n < 4 {
		return s
	}
	return "..." + s[len(s)-n+3:]
}
