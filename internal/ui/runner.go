package ui

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"
)

// StepCallback reports progress from inside an operation
type StepCallback func(number int, status StepStatus, message string)

// Operation is the work a Runner wraps. It returns the details shown in the
// success box.
type Operation func(ctx context.Context, onStep StepCallback) ([]Field, error)

// RunnerConfig holds what a Runner prints around an operation
type RunnerConfig struct {
	Title   string  // e.g., "Apply settings"
	Command string  // e.g., "pigeon-cfg settings apply"
	Params  []Field // shown in the header
	Steps   []string

	// Troubleshoot returns tips for a failure; nil prints none
	Troubleshoot func(error) []string

	Output io.Writer // default: os.Stdout
}

// Runner prints header, step lines and result for one command
type Runner struct {
	config   RunnerConfig
	header   *Header
	progress *Progress
	out      io.Writer
	width    int
	now      func() time.Time
}

// NewRunner creates a runner sized to the terminal
func NewRunner(config RunnerConfig) *Runner {
	if config.Output == nil {
		config.Output = os.Stdout
	}
	width := GetTerminalWidth()

	return &Runner{
		config:   config,
		header:   NewHeader(config.Title, config.Command, config.Params...).SetWidth(width),
		progress: NewProgress(config.Steps...).SetWidth(width),
		out:      config.Output,
		width:    width,
		now:      time.Now,
	}
}

// Progress exposes the step tracker
func (r *Runner) Progress() *Progress {
	return r.progress
}

// Run prints the header, runs op and prints the result box. The error from
// op is returned unchanged.
func (r *Runner) Run(ctx context.Context, op Operation) error {
	start := r.now()

	_, _ = fmt.Fprintln(r.out, r.header.Render())
	_, _ = fmt.Fprintln(r.out)

	details, err := op(ctx, r.onStep)
	elapsed := r.now().Sub(start).Round(time.Millisecond)

	_, _ = fmt.Fprintln(r.out)
	if err != nil {
		var tips []string
		if r.config.Troubleshoot != nil {
			tips = r.config.Troubleshoot(err)
		}
		result := NewFailureResult(r.config.Title+" failed", err, tips...).SetWidth(r.width)
		_, _ = fmt.Fprintln(r.out, result.Render())
		return err
	}

	result := NewSuccessResult(r.config.Title+" complete", details...).SetWidth(r.width)
	result.AddDetail("Duration", elapsed.String())
	_, _ = fmt.Fprintln(r.out, result.Render())
	return nil
}

func (r *Runner) onStep(number int, status StepStatus, message string) {
	r.progress.UpdateStep(number, status, message)
	if number < 1 || number > r.progress.Total() {
		return
	}

	line := r.progress.RenderStep(r.progress.Steps[number-1])
	switch status {
	case StepRunning:
		// overwritten when the step finishes
		_, _ = fmt.Fprint(r.out, line+"\r")
	case StepComplete, StepFailed, StepSkipped:
		_, _ = fmt.Fprintln(r.out, line)
	}
}
