package main

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/wippyai/wasm-bridge/calltable"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#87CEEB"))

	typeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	tabStyle = lipgloss.NewStyle().
			Padding(0, 1).
			Foreground(lipgloss.Color("#888888"))

	activeTabStyle = tabStyle.
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4"))

	resultStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

const maxLogLines = 500

// logBuffer keeps the most recent log lines for the log tab
type logBuffer struct {
	lines []string
	mu    sync.Mutex
}

func (b *logBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, line := range strings.Split(strings.TrimRight(string(p), "\n"), "\n") {
		b.lines = append(b.lines, line)
	}
	if over := len(b.lines) - maxLogLines; over > 0 {
		b.lines = append(b.lines[:0], b.lines[over:]...)
	}
	return len(p), nil
}

func (b *logBuffer) tail(n int) []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if n <= 0 || n >= len(b.lines) {
		return append([]string(nil), b.lines...)
	}
	return append([]string(nil), b.lines[len(b.lines)-n:]...)
}

type tab int

const (
	tabHeap tab = iota
	tabImports
	tabLog
)

var tabNames = []string{"heap", "imports", "log"}

type interactiveModel struct {
	err      error
	session  *session
	opts     *options
	logs     *logBuffer
	locator  string
	status   string
	imports  []string
	input    textinput.Model
	width    int
	height   int
	tab      tab
	entering bool
}

type loadedMsg struct {
	err     error
	session *session
	imports []string
}

func newInteractiveModel(opts *options, locator string, logs *logBuffer) *interactiveModel {
	ti := textinput.New()
	ti.Placeholder = "export name"
	ti.Prompt = "call: "
	ti.Width = 40
	return &interactiveModel{
		opts:    opts,
		locator: locator,
		logs:    logs,
		input:   ti,
		height:  24,
		width:   80,
	}
}

func (m *interactiveModel) Init() tea.Cmd {
	return m.load
}

func (m *interactiveModel) load() tea.Msg {
	s, err := openSession(context.Background(), m.opts, m.locator)
	if err != nil {
		return loadedMsg{err: err}
	}
	res := s.loader.Bridge().Resolve(s.loader.Compiled())
	var imports []string
	for _, g := range []struct {
		title   string
		imports []calltable.Import
	}{{"core", res.Core}, {"forwarded", res.Forwarded}, {"closures", res.Closures}} {
		imports = append(imports, headerStyle.Render(fmt.Sprintf("%s (%d)", g.title, len(g.imports))))
		for _, imp := range g.imports {
			imports = append(imports, "  "+importLine(imp))
		}
	}
	return loadedMsg{session: s, imports: imports}
}

// Update drives the guest from the event loop only, so the bridge never
// sees two goroutines.
func (m *interactiveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height

	case loadedMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.session = msg.session
		m.imports = msg.imports
		m.status = "started " + m.session.loader.Started()

	case tea.KeyMsg:
		if m.entering {
			return m.updateInput(msg)
		}
		switch msg.String() {
		case "ctrl+c", "q":
			if m.session != nil {
				m.session.close(context.Background())
			}
			return m, tea.Quit

		case "tab", "right", "l":
			m.tab = (m.tab + 1) % tab(len(tabNames))

		case "shift+tab", "left", "h":
			m.tab = (m.tab + tab(len(tabNames)) - 1) % tab(len(tabNames))

		case "f":
			if m.session != nil {
				m.frame()
			}

		case "c":
			if m.session != nil {
				m.entering = true
				m.input.SetValue("")
				return m, m.input.Focus()
			}
		}
	}
	return m, nil
}

func (m *interactiveModel) updateInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.entering = false
		m.input.Blur()
		return m, nil

	case "enter":
		m.entering = false
		m.input.Blur()
		m.call(strings.TrimSpace(m.input.Value()))
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *interactiveModel) frame() {
	if err := m.session.frame(context.Background()); err != nil {
		m.status = errorStyle.Render(fmt.Sprintf("frame %d: %v", m.session.frames, err))
		return
	}
	m.status = fmt.Sprintf("frame %d done", m.session.frames)
}

func (m *interactiveModel) call(export string) {
	if export == "" {
		return
	}
	res, err := m.session.call(context.Background(), export)
	if err != nil {
		m.status = errorStyle.Render(fmt.Sprintf("%s: %v", export, err))
		return
	}
	m.status = resultStyle.Render(fmt.Sprintf("%s -> %s", export, formatResults(res)))
}

func (m *interactiveModel) View() string {
	if m.err != nil {
		return errorStyle.Render(fmt.Sprintf("Error: %v\n\nPress q to quit.", m.err))
	}
	if m.session == nil {
		return "Loading " + m.locator + "..."
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("wbg"))
	b.WriteString(" ")
	b.WriteString(m.locator)
	b.WriteString("\n\n")

	for i, name := range tabNames {
		style := tabStyle
		if tab(i) == m.tab {
			style = activeTabStyle
		}
		b.WriteString(style.Render(name))
	}
	b.WriteString("\n\n")

	rows := m.height - 9
	var lines []string
	switch m.tab {
	case tabHeap:
		lines = m.session.heapLines(m.width - 18)
		if len(lines) == 0 {
			lines = []string{helpStyle.Render("no live handles")}
		}
	case tabImports:
		lines = m.imports
	case tabLog:
		lines = m.logs.tail(rows)
	}
	if rows > 0 && len(lines) > rows {
		lines = lines[len(lines)-rows:]
	}
	b.WriteString(strings.Join(lines, "\n"))
	b.WriteString("\n\n")

	if m.entering {
		b.WriteString(m.input.View())
	} else {
		b.WriteString(m.status)
	}
	b.WriteString("\n")
	b.WriteString(helpStyle.Render("tab switch • f frame • c call export • q quit"))
	return b.String()
}

func runInteractive(ctx context.Context, opts *options, locator string) error {
	logs := &logBuffer{}
	log, err := newLogger(opts.LogLevel, logs)
	if err != nil {
		return err
	}
	setLoggers(log)

	p := tea.NewProgram(newInteractiveModel(opts, locator, logs), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err = p.Run()
	return err
}
