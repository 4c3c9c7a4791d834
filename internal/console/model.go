package console

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Channel is the RTT access the console needs. *rtt.Transport satisfies it.
type Channel interface {
	Read(ctx context.Context, channel int, maxBytes int) ([]byte, error)
	Write(ctx context.Context, channel int, data []byte) (int, error)
}

// Config selects the channels and polling behavior.
type Config struct {
	Title    string        // Shown in the status bar, e.g. the control block address
	Up       int           // Channel read into the viewport
	Down     int           // Channel written from the input field
	Interval time.Duration // Poll period, default 50ms
	MaxLines int           // Scrollback, default 5000
	NoEcho   bool          // Do not show sent lines in the output
}

func (c Config) withDefaults() Config {
	if c.Interval <= 0 {
		c.Interval = 50 * time.Millisecond
	}
	if c.MaxLines <= 0 {
		c.MaxLines = 5000
	}
	return c
}

type pollMsg struct{}

type readMsg struct {
	data []byte
	err  error
}

type writeMsg struct {
	line string
	n    int
	err  error
}

// chrome is the rows used by the status bar, output border, input, and help.
const chrome = 6

// Model is the console's Bubble Tea model.
type Model struct {
	ctx context.Context
	ch  Channel
	cfg Config

	Viewport viewport.Model
	Input    textinput.Model
	Spinner  spinner.Model
	Help     help.Model
	Keys     keyMap

	lines   []string
	partial string

	Received int
	Sent     int
	Dropped  int
	LastErr  error

	Width  int
	Height int
}

// New creates a console model. ctx bounds every probe access.
func New(ctx context.Context, ch Channel, cfg Config) Model {
	cfg = cfg.withDefaults()

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = spinnerStyle

	in := textinput.New()
	in.Placeholder = "type a command, enter to send"
	in.Prompt = promptStyle.Render(fmt.Sprintf("down %d> ", cfg.Down))
	in.CharLimit = 256
	in.Focus()

	return Model{
		ctx:      ctx,
		ch:       ch,
		cfg:      cfg,
		Viewport: viewport.New(80, 20),
		Input:    in,
		Spinner:  s,
		Help:     help.New(),
		Keys:     newKeyMap(),
		Width:    80,
		Height:   20 + chrome,
	}
}

// Init starts polling.
func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.Spinner.Tick, m.read())
}

func (m Model) tick() tea.Cmd {
	return tea.Tick(m.cfg.Interval, func(time.Time) tea.Msg { return pollMsg{} })
}

func (m Model) read() tea.Cmd {
	ctx, ch, up := m.ctx, m.ch, m.cfg.Up
	return func() tea.Msg {
		data, err := ch.Read(ctx, up, 0)
		return readMsg{data: data, err: err}
	}
}

func (m Model) write(line string) tea.Cmd {
	ctx, ch, down := m.ctx, m.ch, m.cfg.Down
	return func() tea.Msg {
		n, err := ch.Write(ctx, down, []byte(line+"\n"))
		return writeMsg{line: line, n: n, err: err}
	}
}

// Update handles input and probe results.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.Width, m.Height = msg.Width, msg.Height
		m.Viewport.Width = max(msg.Width-2, 10)
		m.Viewport.Height = max(msg.Height-chrome, 3)
		m.Input.Width = max(msg.Width-12, 10)
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.Keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, m.Keys.Send):
			line := m.Input.Value()
			m.Input.SetValue("")
			return m, m.write(line)
		case key.Matches(msg, m.Keys.Clear):
			m.lines, m.partial = nil, ""
			m.refresh()
			return m, nil
		case key.Matches(msg, m.Keys.PageUp), key.Matches(msg, m.Keys.PageDown):
			var cmd tea.Cmd
			m.Viewport, cmd = m.Viewport.Update(msg)
			return m, cmd
		case key.Matches(msg, m.Keys.Follow):
			m.Viewport.GotoBottom()
			return m, nil
		}

	case pollMsg:
		return m, m.read()

	case readMsg:
		if m.ctx.Err() != nil {
			return m, tea.Quit
		}
		if msg.err != nil {
			m.LastErr = msg.err
		} else if len(msg.data) > 0 {
			m.LastErr = nil
			m.Received += len(msg.data)
			m.appendOutput(string(msg.data))
		}
		return m, m.tick()

	case writeMsg:
		if msg.err != nil {
			m.LastErr = msg.err
			return m, nil
		}
		want := len(msg.line) + 1
		m.Sent += msg.n
		if msg.n < want {
			m.Dropped += want - msg.n
			m.LastErr = fmt.Errorf("down buffer full: sent %d of %d bytes", msg.n, want)
		}
		if !m.cfg.NoEcho {
			m.appendLine(sentStyle.Render("> " + msg.line))
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.Spinner, cmd = m.Spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.Input, cmd = m.Input.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

// appendOutput adds target text, holding an unterminated tail until its
// newline arrives.
func (m *Model) appendOutput(text string) {
	text = strings.ReplaceAll(m.partial+text, "\r", "")
	parts := strings.Split(text, "\n")
	m.partial = parts[len(parts)-1]
	m.lines = append(m.lines, parts[:len(parts)-1]...)
	m.trim()
	m.refresh()
}

func (m *Model) appendLine(line string) {
	m.lines = append(m.lines, line)
	m.trim()
	m.refresh()
}

func (m *Model) trim() {
	if over := len(m.lines) - m.cfg.MaxLines; over > 0 {
		m.lines = append([]string(nil), m.lines[over:]...)
	}
}

// refresh redraws the viewport, staying at the bottom if it was there.
func (m *Model) refresh() {
	follow := m.Viewport.AtBottom()
	content := strings.Join(m.lines, "\n")
	if m.partial != "" {
		if content != "" {
			content += "\n"
		}
		content += m.partial
	}
	m.Viewport.SetContent(outputStyle.Render(content))
	if follow {
		m.Viewport.GotoBottom()
	}
}

// Lines returns the completed output lines.
func (m Model) Lines() []string {
	return m.lines
}

// View renders the console.
func (m Model) View() string {
	status := fmt.Sprintf("%s up %d ↔ down %d   rx %d B  tx %d B",
		m.Spinner.View(), m.cfg.Up, m.cfg.Down, m.Received, m.Sent)
	if m.Dropped > 0 {
		status += fmt.Sprintf("  dropped %d B", m.Dropped)
	}
	title := titleStyle.Render("RTT CONSOLE")
	if m.cfg.Title != "" {
		title += "  " + m.cfg.Title
	}

	errLine := ""
	if m.LastErr != nil {
		errLine = errorStyle.Render("✗ " + m.LastErr.Error())
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		title+"  "+statusBarStyle.Render(status),
		outputBoxStyle.Render(m.Viewport.View()),
		m.Input.View(),
		errLine,
		m.Help.View(m.Keys),
	)
}

// Run starts the console full screen and returns when the user quits or ctx
// is done.
func Run(ctx context.Context, ch Channel, cfg Config) error {
	p := tea.NewProgram(New(ctx, ch, cfg), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}
