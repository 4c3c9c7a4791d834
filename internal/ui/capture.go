package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// CaptureBox shows text read from an RTT channel.
type CaptureBox struct {
	Title    string
	Lines    []string
	Width    int
	MaxLines int // Keep only the last MaxLines, 0 keeps all
}

// NewCaptureBox splits captured output into lines. Carriage returns from
// target firmware are dropped.
func NewCaptureBox(title string, captured []byte) *CaptureBox {
	text := strings.ReplaceAll(string(captured), "\r", "")
	text = strings.TrimRight(text, "\n")

	var lines []string
	if text != "" {
		lines = strings.Split(text, "\n")
	}
	return &CaptureBox{
		Title: title,
		Lines: lines,
		Width: GetTerminalWidth(),
	}
}

// SetMaxLines keeps only the tail of the capture.
func (c *CaptureBox) SetMaxLines(n int) *CaptureBox {
	c.MaxLines = n
	return c
}

// SetWidth sets the width for rendering.
func (c *CaptureBox) SetWidth(width int) *CaptureBox {
	c.Width = width
	return c
}

// Render returns the styled box.
func (c *CaptureBox) Render() string {
	width := c.Width
	if width < MinTerminalWidth {
		width = MinTerminalWidth
	}

	lines := c.Lines
	var dropped int
	if c.MaxLines > 0 && len(lines) > c.MaxLines {
		dropped = len(lines) - c.MaxLines
		lines = lines[dropped:]
	}

	body := []string{CaptureTitleStyle.Render(c.Title)}
	if dropped > 0 {
		body = append(body, StepNoteStyle.Render(fmt.Sprintf("... %d earlier lines omitted", dropped)))
	}
	if len(lines) == 0 {
		body = append(body, StepNoteStyle.Render("(no output)"))
	} else {
		body = append(body, CaptureContentStyle.Render(strings.Join(lines, "\n")))
	}

	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(MutedColor).
		Width(width-4).
		Padding(0, 1).
		Render(strings.Join(body, "\n"))
}

func (c *CaptureBox) String() string {
	return c.Render()
}
