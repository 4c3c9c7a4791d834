package rtt

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"regexp"
	"time"

	"go.uber.org/zap"
)

// PollOptions bounds a WaitForPattern loop.
type PollOptions struct {
	// Timeout is the wall-clock budget, checked once per iteration.
	// Default: 10s
	Timeout time.Duration

	// Interval is the pause between reads.
	// Default: 50ms
	Interval time.Duration

	// MaxChunk limits each read. Zero reads everything available.
	MaxChunk int

	// Progress, if set, is called after every iteration with the elapsed
	// time and the number of bytes captured so far.
	Progress func(elapsed time.Duration, captured int)
}

func (o PollOptions) withDefaults() PollOptions {
	if o.Timeout <= 0 {
		o.Timeout = 10 * time.Second
	}
	if o.Interval <= 0 {
		o.Interval = 50 * time.Millisecond
	}
	return o
}

// Capture is the outcome of WaitForPattern.
type Capture struct {
	Output   string        `json:"output"`
	Matched  bool          `json:"matched"`
	Match    string        `json:"match,omitempty"`
	Elapsed  time.Duration `json:"elapsed"`
	TimedOut bool          `json:"timed_out"`
}

// WaitForPattern polls an up channel until its accumulated output matches
// pattern, the timeout elapses, or ctx is done.
//
// A timeout is not an error: the returned Capture holds whatever arrived and
// TimedOut is set. A probe failure or context cancellation ends the loop and
// is returned together with the partial capture.
func (t *Transport) WaitForPattern(ctx context.Context, channel int, pattern *regexp.Regexp, opts PollOptions) (Capture, error) {
	opts = opts.withDefaults()

	var buf bytes.Buffer
	start := time.Now()
	deadline := start.Add(opts.Timeout)

	finish := func(c Capture) Capture {
		c.Output = buf.String()
		c.Elapsed = time.Since(start)
		return c
	}

	for {
		data, err := t.Read(ctx, channel, opts.MaxChunk)
		if err != nil {
			return finish(Capture{}), fmt.Errorf("boot validation read failed: %w", err)
		}
		buf.Write(data)

		if m := pattern.Find(buf.Bytes()); m != nil {
			t.logger.Info("Boot pattern matched",
				zap.String("pattern", pattern.String()),
				zap.Duration("elapsed", time.Since(start)))
			return finish(Capture{Matched: true, Match: string(m)}), nil
		}

		if opts.Progress != nil {
			opts.Progress(time.Since(start), buf.Len())
		}

		if !time.Now().Before(deadline) {
			t.logger.Warn("Boot pattern not seen before timeout",
				zap.String("pattern", pattern.String()),
				zap.Duration("timeout", opts.Timeout),
				zap.Int("captured", buf.Len()))
			return finish(Capture{TimedOut: true}), nil
		}

		select {
		case <-ctx.Done():
			return finish(Capture{}), ctx.Err()
		case <-time.After(opts.Interval):
		}
	}
}

// Stream copies an up channel to w until ctx is done. It returns nil when
// the context ends and the first read or write error otherwise.
func (t *Transport) Stream(ctx context.Context, channel int, w io.Writer, interval time.Duration) error {
	if interval <= 0 {
		interval = 50 * time.Millisecond
	}
	for {
		data, err := t.Read(ctx, channel, 0)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if len(data) > 0 {
			if _, err := w.Write(data); err != nil {
				return fmt.Errorf("failed to write channel output: %w", err)
			}
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(interval):
		}
	}
}
