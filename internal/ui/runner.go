package ui

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"
)

// RunnerConfig describes a probe command for the header → steps → result flow.
type RunnerConfig struct {
	Title           string
	Command         string
	Params          []Param
	Steps           []string
	Troubleshooting []string  // Shown on failure
	Output          io.Writer // Default os.Stdout
}

// Runner prints the header, live step lines, and the final result box.
type Runner struct {
	config   RunnerConfig
	progress *Progress
	output   io.Writer
	width    int
}

// NewRunner creates a runner sized to the terminal.
func NewRunner(config RunnerConfig) *Runner {
	if config.Output == nil {
		config.Output = os.Stdout
	}
	width := GetTerminalWidth()
	progress := NewProgress(config.Steps...)
	progress.Width = width

	return &Runner{
		config:   config,
		progress: progress,
		output:   config.Output,
		width:    width,
	}
}

// Operation does the work and returns the details for the success box.
type Operation func(ctx context.Context, onStep StepCallback) ([]Param, error)

// Run prints the header, executes op, and prints the outcome.
func (r *Runner) Run(ctx context.Context, op Operation) ([]Param, error) {
	start := time.Now()

	_, _ = fmt.Fprintln(r.output, NewHeader(r.config.Title, r.config.Command, r.config.Params...).SetWidth(r.width).Render())
	_, _ = fmt.Fprintln(r.output)

	details, err := op(ctx, r.onStep)
	duration := time.Since(start).Round(time.Millisecond)

	_, _ = fmt.Fprintln(r.output)
	if err != nil {
		res := NewFailureResult(r.config.Title+" failed", err, r.config.Troubleshooting)
		_, _ = fmt.Fprintln(r.output, res.SetWidth(r.width).Render())
		return nil, err
	}

	details = append(details, Param{Key: "Duration", Value: duration.String()})
	res := NewSuccessResult(r.config.Title+" complete", details...)
	_, _ = fmt.Fprintln(r.output, res.SetWidth(r.width).Render())
	return details, nil
}

func (r *Runner) onStep(step int, status StepStatus, message string) {
	if step < 1 || step > len(r.progress.Steps) {
		return
	}
	r.progress.UpdateStep(step, status, message)

	line := r.progress.renderStepLine(r.progress.Steps[step-1])
	if status == StepRunning {
		// Overwritten when the step finishes
		_, _ = fmt.Fprint(r.output, line+"\r")
		return
	}
	_, _ = fmt.Fprintln(r.output, line)
}

// PrintCommandHeader prints a header to stdout.
func PrintCommandHeader(title, command string, params ...Param) {
	fmt.Println(NewHeader(title, command, params...).Render())
	fmt.Println()
}

// PrintSuccess prints a success box to stdout.
func PrintSuccess(title string, details ...Param) {
	fmt.Println()
	fmt.Println(NewSuccessResult(title, details...).Render())
}

// PrintFailure prints a failure box to stdout.
func PrintFailure(title string, err error, troubleshooting []string) {
	fmt.Println()
	fmt.Println(NewFailureResult(title, err, troubleshooting).Render())
}

// PrintWarning prints a warning box to stdout.
func PrintWarning(title string, details ...Param) {
	fmt.Println()
	fmt.Println(NewWarningResult(title, details...).Render())
}
