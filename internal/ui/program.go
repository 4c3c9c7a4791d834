package ui

import (
	"io"
	"os"

	tea "github.com/charmbracelet/bubbletea"
)

// RunOnceModel is a Bubble Tea model that renders its content once and quits.
type RunOnceModel struct {
	content string
}

// NewRunOnceModel creates a model for content.
func NewRunOnceModel(content string) RunOnceModel {
	return RunOnceModel{content: content}
}

// Init implements tea.Model
func (m RunOnceModel) Init() tea.Cmd {
	return tea.Quit
}

// Update implements tea.Model
func (m RunOnceModel) Update(tea.Msg) (tea.Model, tea.Cmd) {
	return m, nil
}

// View implements tea.Model
func (m RunOnceModel) View() string {
	return m.content
}

// RenderOnce draws content through Bubble Tea on a terminal. Other outputs
// get the content written directly so pipes never see terminal control codes.
func RenderOnce(w io.Writer, content string) error {
	if w == nil {
		w = os.Stdout
	}
	if f, ok := w.(*os.File); !ok || f != os.Stdout || !IsTerminal() {
		_, err := io.WriteString(w, content+"\n")
		return err
	}

	p := tea.NewProgram(NewRunOnceModel(content+"\n"), tea.WithOutput(w), tea.WithInput(nil))
	_, err := p.Run()
	return err
}
