package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/lipgloss"
)

// StepStatus is the state of one step
type StepStatus int

const (
	StepPending StepStatus = iota
	StepRunning
	StepComplete
	StepFailed
	StepSkipped
)

// Step is one line of a multi-step operation.
type Step struct {
	Number  int
	Name    string
	Status  StepStatus
	Message string // e.g. "0x20000400", "3 channels"
}

// Progress tracks the steps of a probe operation.
type Progress struct {
	Steps []Step
	Width int
}

// NewProgress creates a progress tracker with the named steps pending.
func NewProgress(names ...string) *Progress {
	steps := make([]Step, len(names))
	for i, name := range names {
		steps[i] = Step{Number: i + 1, Name: name}
	}
	return &Progress{Steps: steps, Width: GetTerminalWidth()}
}

// UpdateStep sets a step's status and note. Out of range steps are ignored.
func (p *Progress) UpdateStep(number int, status StepStatus, message string) {
	if number < 1 || number > len(p.Steps) {
		return
	}
	p.Steps[number-1].Status = status
	p.Steps[number-1].Message = message
}

// Percent is the share of finished steps.
func (p *Progress) Percent() float64 {
	if len(p.Steps) == 0 {
		return 0
	}
	done := 0
	for _, s := range p.Steps {
		if s.Status == StepComplete || s.Status == StepSkipped {
			done++
		}
	}
	return float64(done) / float64(len(p.Steps))
}

// Render returns the step list.
func (p *Progress) Render() string {
	lines := make([]string, 0, len(p.Steps))
	for _, s := range p.Steps {
		lines = append(lines, p.renderStepLine(s))
	}
	return strings.Join(lines, "\n")
}

func (p *Progress) renderStepLine(step Step) string {
	var (
		marker string
		style  lipgloss.Style
	)
	switch step.Status {
	case StepComplete:
		marker, style = StepMarkerComplete, StepCompleteStyle
	case StepRunning:
		marker, style = StepMarkerRunning, StepRunningStyle
	case StepFailed:
		marker, style = FailureMarker, ErrorTitleStyle
	case StepSkipped:
		marker, style = StepMarkerSkipped, StepPendingStyle
	default:
		marker, style = StepMarkerPending, StepPendingStyle
	}

	var b strings.Builder
	fmt.Fprintf(&b, "  [%d/%d] ", step.Number, len(p.Steps))
	b.WriteString(style.Render(step.Name))
	b.WriteString(strings.Repeat(" ", max(40-lipgloss.Width(step.Name), 1)))
	b.WriteString(style.Render(marker))
	if step.Message != "" {
		b.WriteString("  ")
		b.WriteString(StepNoteStyle.Render("(" + step.Message + ")"))
	}
	return b.String()
}

func (p *Progress) String() string {
	return p.Render()
}

// StepCallback reports step progress from inside an operation.
type StepCallback func(step int, status StepStatus, message string)

// WaitBar renders a bounded wait, such as a boot log pattern search, as a
// bar that fills as the deadline approaches.
type WaitBar struct {
	Label   string
	Timeout time.Duration
	bar     progress.Model
}

// NewWaitBar creates a bar for a wait of at most timeout.
func NewWaitBar(label string, timeout time.Duration, width int) *WaitBar {
	return &WaitBar{
		Label:   label,
		Timeout: timeout,
		bar: progress.New(
			progress.WithDefaultGradient(),
			progress.WithWidth(min(max(width-40, 20), 50)),
			progress.WithoutPercentage(),
		),
	}
}

// Fraction is elapsed over timeout, clamped to [0, 1].
func (w *WaitBar) Fraction(elapsed time.Duration) float64 {
	if w.Timeout <= 0 {
		return 1
	}
	f := float64(elapsed) / float64(w.Timeout)
	if f > 1 {
		return 1
	}
	if f < 0 {
		return 0
	}
	return f
}

// Render returns one line: label, bar, elapsed/timeout, and captured bytes.
func (w *WaitBar) Render(elapsed time.Duration, captured int) string {
	return ProgressLabelStyle.Render(w.Label) + "  " +
		w.bar.ViewAs(w.Fraction(elapsed)) + "  " +
		StepNoteStyle.Render(fmt.Sprintf("%s/%s  %d bytes",
			elapsed.Round(100*time.Millisecond), w.Timeout, captured))
}
